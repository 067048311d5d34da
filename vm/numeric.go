package vm

import "math"

// ---------------------------------------------------------------------------
// Numeric arithmetic shared by the fast-path opcodes and the primitives
// ---------------------------------------------------------------------------

// floorDiv is integer division rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorMod is the remainder matching floorDiv: its sign follows b.
func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

func floatMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

func intPow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func compareOp(op Opcode, c int) bool {
	switch op {
	case OpLT:
		return c < 0
	case OpGT:
		return c > 0
	case OpLE:
		return c <= 0
	case OpGE:
		return c >= 0
	case OpEQ:
		return c == 0
	}
	return c != 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// fastBinary evaluates a fast-path opcode on builtin operands. ok is false
// when the operands need full dispatch (user-defined operators, strings,
// mismatched kinds).
func (vm *VM) fastBinary(op Opcode, a, b Value) (Value, bool, error) {
	if a.IsNumeric() && b.IsNumeric() {
		v, err := vm.arith(op, a, b)
		return v, err == nil, err
	}
	if op == OpEQ || op == OpNE {
		if a.kind == KindObject || a.kind == KindException {
			return Nil, false, nil
		}
		eq := Equal(a, b)
		return FromBool(eq == (op == OpEQ)), true, nil
	}
	return Nil, false, nil
}

// arith applies op to two numeric values. Integer pairs use floor
// division and modulo; any float operand makes the result a float.
func (vm *VM) arith(op Opcode, a, b Value) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt {
		x, y := a.Int(), b.Int()
		switch op {
		case OpAdd:
			return FromInt(x + y), nil
		case OpSub:
			return FromInt(x - y), nil
		case OpMul:
			return FromInt(x * y), nil
		case OpDiv, OpMod:
			if y == 0 {
				return Nil, vm.newError(KindZeroDivision, "divided by 0")
			}
			if op == OpDiv {
				return FromInt(floorDiv(x, y)), nil
			}
			return FromInt(floorMod(x, y)), nil
		}
		return FromBool(compareOp(op, cmpInt(x, y))), nil
	}
	x, y := a.Number(), b.Number()
	switch op {
	case OpAdd:
		return FromFloat(x + y), nil
	case OpSub:
		return FromFloat(x - y), nil
	case OpMul:
		return FromFloat(x * y), nil
	case OpDiv:
		return FromFloat(x / y), nil
	case OpMod:
		return FromFloat(floatMod(x, y)), nil
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		return FromBool(op == OpNE), nil
	}
	return FromBool(compareOp(op, cmpFloat(x, y))), nil
}

// numericOperand checks the argument of an arithmetic primitive.
func (vm *VM) numericOperand(self, arg Value, comparison bool) error {
	if arg.IsNumeric() {
		return nil
	}
	name := vm.ClassOf(arg).Name
	if arg.IsNil() {
		name = "nil"
	}
	if comparison {
		return vm.newError(KindArity, "comparison of %s with %s failed", vm.ClassOf(self).Name, name)
	}
	return vm.newError(KindType, "%s can't be coerced into %s", name, vm.ClassOf(self).Name)
}

// spaceship implements <=> for numbers, returning nil for incomparable
// operands.
func spaceship(a, b Value) Value {
	if !a.IsNumeric() || !b.IsNumeric() {
		return Nil
	}
	if a.kind == KindInt && b.kind == KindInt {
		return FromInt(int64(cmpInt(a.Int(), b.Int())))
	}
	x, y := a.Number(), b.Number()
	if math.IsNaN(x) || math.IsNaN(y) {
		return Nil
	}
	return FromInt(int64(cmpFloat(x, y)))
}
