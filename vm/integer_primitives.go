package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Integer Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerIntegerPrimitives() {
	c := vm.IntegerClass
	registerArithmetic(c)

	c.AddMethod1("div", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if err := in.vm.numericOperand(self, arg, false); err != nil {
			return Nil, err
		}
		if arg.IsFloat() {
			if arg.Float() == 0 {
				return Nil, in.vm.newError(KindZeroDivision, "divided by 0")
			}
			return FromInt(int64(math.Floor(self.Number() / arg.Float()))), nil
		}
		return in.vm.arith(OpDiv, self, arg)
	})
	c.AddMethod1("fdiv", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if err := in.vm.numericOperand(self, arg, false); err != nil {
			return Nil, err
		}
		return FromFloat(self.Number() / arg.Number()), nil
	})
	c.AddMethod1("**", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if err := in.vm.numericOperand(self, arg, false); err != nil {
			return Nil, err
		}
		if arg.IsInt() && arg.Int() >= 0 {
			return FromInt(intPow(self.Int(), arg.Int())), nil
		}
		return FromFloat(math.Pow(self.Number(), arg.Number())), nil
	})
	c.VTable.AddMethod("pow", c.LookupMethod("**"))

	c.AddMethod0("-@", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(-self.Int()), nil
	})
	c.AddMethod0("abs", func(_ *Interpreter, self Value) (Value, error) {
		if n := self.Int(); n < 0 {
			return FromInt(-n), nil
		}
		return self, nil
	})

	// Bitwise
	bitwise := func(name string, fn func(a, b int64) int64) {
		c.AddMethod1(name, func(in *Interpreter, self Value, arg Value) (Value, error) {
			if !arg.IsInt() {
				return Nil, in.vm.numericOperand(self, Nil, false)
			}
			return FromInt(fn(self.Int(), arg.Int())), nil
		})
	}
	bitwise("&", func(a, b int64) int64 { return a & b })
	bitwise("|", func(a, b int64) int64 { return a | b })
	bitwise("^", func(a, b int64) int64 { return a ^ b })
	bitwise("<<", shiftLeft)
	bitwise(">>", func(a, b int64) int64 { return shiftLeft(a, -b) })
	c.AddMethod0("~", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(^self.Int()), nil
	})
	c.AddMethod1("[]", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		if !arg.IsInt() || arg.Int() < 0 {
			return FromInt(0), nil
		}
		if arg.Int() > 63 {
			if self.Int() < 0 {
				return FromInt(1), nil
			}
			return FromInt(0), nil
		}
		return FromInt((self.Int() >> uint(arg.Int())) & 1), nil
	})

	// Conversion
	c.AddMethodN("to_s", 0, 1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		base := 10
		if len(args) == 1 {
			if !args[0].IsInt() || args[0].Int() < 2 || args[0].Int() > 36 {
				return Nil, in.vm.newError(KindArity, "invalid radix %s", inspectValue(args[0], true))
			}
			base = int(args[0].Int())
		}
		return NewString(strconv.FormatInt(self.Int(), base)), nil
	})
	c.VTable.AddMethod("inspect", c.LookupMethod("to_s"))
	c.AddMethod0("to_i", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("to_int", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("to_f", func(_ *Interpreter, self Value) (Value, error) {
		return FromFloat(float64(self.Int())), nil
	})
	c.AddMethod0("chr", func(in *Interpreter, self Value) (Value, error) {
		n := self.Int()
		if n < 0 || n > 255 {
			return Nil, in.vm.newError(KindOutOfBounds, "%d out of char range", n)
		}
		return FromBytes([]byte{byte(n)}), nil
	})
	c.AddMethod0("ord", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("hash", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("digits", func(in *Interpreter, self Value) (Value, error) {
		n := self.Int()
		if n < 0 {
			return Nil, in.vm.newError(KindArity, "out of domain")
		}
		out := []Value{FromInt(n % 10)}
		for n /= 10; n > 0; n /= 10 {
			out = append(out, FromInt(n%10))
		}
		return NewArray(out...), nil
	})

	// Predicates
	pred := func(name string, fn func(n int64) bool) {
		c.AddMethod0(name, func(_ *Interpreter, self Value) (Value, error) {
			return FromBool(fn(self.Int())), nil
		})
	}
	pred("zero?", func(n int64) bool { return n == 0 })
	pred("even?", func(n int64) bool { return n%2 == 0 })
	pred("odd?", func(n int64) bool { return n%2 != 0 })
	pred("positive?", func(n int64) bool { return n > 0 })
	pred("negative?", func(n int64) bool { return n < 0 })
	pred("integer?", func(int64) bool { return true })

	c.AddMethod0("succ", func(_ *Interpreter, self Value) (Value, error) { return FromInt(self.Int() + 1), nil })
	c.VTable.AddMethod("next", c.LookupMethod("succ"))
	c.AddMethod0("pred", func(_ *Interpreter, self Value) (Value, error) { return FromInt(self.Int() - 1), nil })

	c.AddMethod1("gcd", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if !arg.IsInt() {
			return Nil, in.vm.numericOperand(self, Nil, false)
		}
		return FromInt(gcd(self.Int(), arg.Int())), nil
	})
	c.AddMethod1("lcm", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if !arg.IsInt() {
			return Nil, in.vm.numericOperand(self, Nil, false)
		}
		a, b := self.Int(), arg.Int()
		if a == 0 || b == 0 {
			return FromInt(0), nil
		}
		l := a / gcd(a, b) * b
		if l < 0 {
			l = -l
		}
		return FromInt(l), nil
	})

	// Iteration
	c.AddBlockMethod("times", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		for i := int64(0); i < self.Int(); i++ {
			if r, stop, err := in.Yield(blk, FromInt(i)); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("upto", 1, 1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		if !args[0].IsNumeric() {
			return Result{}, in.vm.numericOperand(self, args[0], true)
		}
		for i := self.Int(); float64(i) <= args[0].Number(); i++ {
			if r, stop, err := in.Yield(blk, FromInt(i)); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("downto", 1, 1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		if !args[0].IsNumeric() {
			return Result{}, in.vm.numericOperand(self, args[0], true)
		}
		for i := self.Int(); float64(i) >= args[0].Number(); i-- {
			if r, stop, err := in.Yield(blk, FromInt(i)); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("step", 1, 2, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		limit, by := args[0], FromInt(1)
		if len(args) == 2 {
			by = args[1]
		}
		if !limit.IsNumeric() || !by.IsNumeric() {
			return Result{}, in.vm.newError(KindArity, "step arguments must be numeric")
		}
		if by.Number() == 0 {
			return Result{}, in.vm.newError(KindArity, "step can't be 0")
		}
		if self.IsInt() && limit.IsInt() && by.IsInt() {
			s := by.Int()
			for i := self.Int(); (s > 0 && i <= limit.Int()) || (s < 0 && i >= limit.Int()); i += s {
				if r, stop, err := in.Yield(blk, FromInt(i)); stop {
					return r, err
				}
			}
			return Normal(self), nil
		}
		s := by.Number()
		for x := self.Number(); (s > 0 && x <= limit.Number()) || (s < 0 && x >= limit.Number()); x += s {
			if r, stop, err := in.Yield(blk, FromFloat(x)); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
}

// registerArithmetic installs the operators shared by Integer and Float.
func registerArithmetic(c *Class) {
	for _, op := range []Opcode{OpAdd, OpSub, OpMul, OpDiv, OpMod, OpLT, OpGT, OpLE, OpGE} {
		op := op
		comparison := op >= OpLT && op <= OpGE
		c.AddMethod1(fastPathSelectors[op], func(in *Interpreter, self Value, arg Value) (Value, error) {
			if err := in.vm.numericOperand(self, arg, comparison); err != nil {
				return Nil, err
			}
			return in.vm.arith(op, self, arg)
		})
	}
	c.VTable.AddMethod("modulo", c.LookupMethod("%"))
	c.AddMethod1("==", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		return FromBool(Equal(self, arg)), nil
	})
	c.AddMethod1("<=>", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		return spaceship(self, arg), nil
	})
	c.AddMethod1("divmod", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if err := in.vm.numericOperand(self, arg, false); err != nil {
			return Nil, err
		}
		q, err := in.vm.arith(OpDiv, self, arg)
		if err != nil {
			return Nil, err
		}
		m, err := in.vm.arith(OpMod, self, arg)
		if err != nil {
			return Nil, err
		}
		if q.IsFloat() {
			q = FromFloat(math.Floor(q.Float()))
		}
		return NewArray(q, m), nil
	})
	c.AddMethod2("between?", func(_ *Interpreter, self Value, lo, hi Value) (Value, error) {
		return FromBool(spaceship(self, lo).Int() >= 0 && spaceship(self, hi).Int() <= 0), nil
	})
	c.AddMethod2("clamp", func(in *Interpreter, self Value, lo, hi Value) (Value, error) {
		if !lo.IsNumeric() || !hi.IsNumeric() {
			return Nil, in.vm.newError(KindArity, "clamp bounds must be numeric")
		}
		switch {
		case spaceship(self, lo).Int() < 0:
			return lo, nil
		case spaceship(self, hi).Int() > 0:
			return hi, nil
		}
		return self, nil
	})
	c.AddMethod0("+@", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
}

func shiftLeft(a, b int64) int64 {
	switch {
	case b >= 64:
		return 0
	case b >= 0:
		return a << uint(b)
	case b <= -64:
		if a < 0 {
			return -1
		}
		return 0
	}
	return a >> uint(-b)
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// parseInteger implements String#to_i: optional sign, leading digits in
// base, underscores between digits, anything after ignored.
func parseInteger(s string, base int) int64 {
	s = strings.TrimLeft(s, " \t\n\r\f\v")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if base == 16 && len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	var n int64
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '_' && i > 0 && i+1 < len(s) && s[i+1] != '_' {
			continue
		}
		d := digitValue(ch)
		if d < 0 || d >= base {
			break
		}
		n = n*int64(base) + int64(d)
	}
	if neg {
		n = -n
	}
	return n
}

func digitValue(ch byte) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'a' && ch <= 'z':
		return int(ch-'a') + 10
	case ch >= 'A' && ch <= 'Z':
		return int(ch-'A') + 10
	}
	return -1
}
