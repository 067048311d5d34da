package vm

import (
	"context"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Basic execution tests
// ---------------------------------------------------------------------------

func TestInterpreterConstants(t *testing.T) {
	vm, _ := newTestVM(t)

	tests := []struct {
		name string
		emit func(b *CompiledMethodBuilder)
		want Value
	}{
		{"nil", func(b *CompiledMethodBuilder) { b.Bytecode().Emit(OpPushNil) }, Nil},
		{"true", func(b *CompiledMethodBuilder) { b.Bytecode().Emit(OpPushTrue) }, True},
		{"false", func(b *CompiledMethodBuilder) { b.Bytecode().Emit(OpPushFalse) }, False},
		{"int8", func(b *CompiledMethodBuilder) { b.PushInt(-42) }, FromInt(-42)},
		{"int32", func(b *CompiledMethodBuilder) { b.PushInt(100000) }, FromInt(100000)},
		{"literal", func(b *CompiledMethodBuilder) { b.PushInt(1 << 40) }, FromInt(1 << 40)},
		{"float", func(b *CompiledMethodBuilder) { b.Bytecode().EmitFloat64(OpPushFloat, 2.5) }, FromFloat(2.5)},
		{"string", func(b *CompiledMethodBuilder) { b.PushString("hi") }, NewString("hi")},
		{"symbol", func(b *CompiledMethodBuilder) { b.PushSymbol("foo") }, Sym("foo")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
				tt.emit(b)
				b.Bytecode().Emit(OpReturn)
			})
			if got := run(t, vm, m); !Equal(got, tt.want) || got.Kind() != tt.want.Kind() {
				t.Errorf("result = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInterpreterReturnSelf(t *testing.T) {
	vm, _ := newTestVM(t)
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpReturnSelf)
	})
	v, err := vm.Execute(context.Background(), m, FromInt(7))
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 7)
}

func TestInterpreterPushStringIsFresh(t *testing.T) {
	vm, _ := newTestVM(t)

	// s = "a"; s << "b"; "a"
	m := method("test", 0, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		lit := b.AddLiteral(NewString("a"))
		bc.EmitUint16(OpPushString, lit)
		bc.EmitByte(OpStoreTemp, 0)
		b.PushString("b")
		b.Send("<<", 1)
		bc.Emit(OpPOP)
		bc.EmitUint16(OpPushString, lit)
		bc.Emit(OpReturn)
	})
	if got := run(t, vm, m).GoString(); got != "a" {
		t.Errorf("literal mutated: got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func TestInterpreterArithmetic(t *testing.T) {
	vm, _ := newTestVM(t)

	tests := []struct {
		op   Opcode
		a, b Value
		want Value
	}{
		{OpAdd, FromInt(3), FromInt(4), FromInt(7)},
		{OpSub, FromInt(3), FromInt(10), FromInt(-7)},
		{OpMul, FromInt(6), FromInt(7), FromInt(42)},
		{OpDiv, FromInt(7), FromInt(2), FromInt(3)},
		{OpDiv, FromInt(-7), FromInt(2), FromInt(-4)},
		{OpMod, FromInt(-7), FromInt(3), FromInt(2)},
		{OpMod, FromInt(7), FromInt(-3), FromInt(-2)},
		{OpAdd, FromInt(1), FromFloat(0.5), FromFloat(1.5)},
		{OpDiv, FromFloat(7), FromInt(2), FromFloat(3.5)},
		{OpLT, FromInt(1), FromInt(2), True},
		{OpGE, FromInt(1), FromInt(2), False},
		{OpEQ, FromInt(2), FromFloat(2), True},
		{OpNE, NewString("a"), NewString("a"), False},
		{OpAdd, NewString("ab"), NewString("cd"), NewString("abcd")},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			m := method("test", 2, 2, func(b *CompiledMethodBuilder) {
				b.Bytecode().EmitByte(OpPushTemp, 0)
				b.Bytecode().EmitByte(OpPushTemp, 1)
				b.Bytecode().Emit(tt.op)
				b.Bytecode().Emit(OpReturn)
			})
			got := run(t, vm, m, tt.a, tt.b)
			if !Equal(got, tt.want) || got.Kind() != tt.want.Kind() {
				t.Errorf("%v %s %v = %v, want %v", tt.a, tt.op, tt.b, got, tt.want)
			}
		})
	}
}

func TestInterpreterDivisionByZero(t *testing.T) {
	vm, _ := newTestVM(t)
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.PushInt(1)
		b.PushInt(0)
		b.Bytecode().Emit(OpDiv)
		b.Bytecode().Emit(OpReturn)
	})
	e := wantKind(t, runErr(vm, m), KindZeroDivision)
	if e.Message != "divided by 0" {
		t.Errorf("message = %q", e.Message)
	}
	if e.ClassName() != "ZeroDivisionError" {
		t.Errorf("class = %s", e.ClassName())
	}
}

func TestInterpreterTypeMismatch(t *testing.T) {
	vm, _ := newTestVM(t)
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.PushInt(1)
		b.PushString("x")
		b.Bytecode().Emit(OpAdd)
		b.Bytecode().Emit(OpReturn)
	})
	e := wantKind(t, runErr(vm, m), KindType)
	if !strings.Contains(e.Message, "String can't be coerced into Integer") {
		t.Errorf("message = %q", e.Message)
	}
}

// ---------------------------------------------------------------------------
// Locals and control flow
// ---------------------------------------------------------------------------

func TestInterpreterUnassignedLocal(t *testing.T) {
	vm, _ := newTestVM(t)
	b := NewCompiledMethodBuilder("test", 0)
	b.SetLocalNames("count")
	b.Bytecode().EmitByte(OpPushTemp, 0)
	b.Bytecode().Emit(OpReturn)

	e := wantKind(t, runErr(vm, b.Build()), KindUndefinedVariable)
	if !strings.Contains(e.Message, "count") {
		t.Errorf("message = %q, want the local's name", e.Message)
	}
}

func TestInterpreterConditional(t *testing.T) {
	vm, _ := newTestVM(t)

	// if x < 10 then 1 else 2 end
	m := method("test", 1, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		elseL := bc.NewLabel()
		bc.EmitByte(OpPushTemp, 0)
		b.PushInt(10)
		bc.Emit(OpLT)
		bc.EmitJump(OpJumpUnless, elseL)
		b.PushInt(1)
		bc.Emit(OpReturn)
		bc.Mark(elseL)
		b.PushInt(2)
		bc.Emit(OpReturn)
	})
	wantInt(t, run(t, vm, m, FromInt(3)), 1)
	wantInt(t, run(t, vm, m, FromInt(30)), 2)

	// NilClass has no <.
	e := wantKind(t, runErr(vm, m, Nil), KindNoMethod)
	if !strings.Contains(e.Message, "<") {
		t.Errorf("message = %q", e.Message)
	}
}

func TestInterpreterJumpNil(t *testing.T) {
	vm, _ := newTestVM(t)
	m := method("test", 1, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		isNil := bc.NewLabel()
		bc.EmitByte(OpPushTemp, 0)
		bc.EmitJump(OpJumpNil, isNil)
		b.PushInt(1)
		bc.Emit(OpReturn)
		bc.Mark(isNil)
		b.PushInt(0)
		bc.Emit(OpReturn)
	})
	wantInt(t, run(t, vm, m, False), 1)
	wantInt(t, run(t, vm, m, Nil), 0)
}

// sumTo emits: i = 0; s = 0; while i < n; i += 1; s += i; end; s
func sumTo() *CompiledMethod {
	return method("sum_to", 1, 3, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		cond, done := bc.NewLabel(), bc.NewLabel()
		b.PushInt(0)
		bc.EmitByte(OpStoreTemp, 1)
		bc.EmitByte(OpStoreTemp, 2)
		bc.Emit(OpPOP)
		bc.Mark(cond)
		bc.EmitByte(OpPushTemp, 1)
		bc.EmitByte(OpPushTemp, 0)
		bc.Emit(OpLT)
		bc.EmitJump(OpJumpUnless, done)
		bc.EmitByte(OpPushTemp, 1)
		b.PushInt(1)
		bc.Emit(OpAdd)
		bc.EmitByte(OpStoreTemp, 1)
		bc.EmitByte(OpPushTemp, 2)
		bc.Emit(OpAdd)
		bc.EmitByte(OpStoreTemp, 2)
		bc.Emit(OpPOP)
		bc.EmitJump(OpJump, cond)
		bc.Mark(done)
		bc.EmitByte(OpPushTemp, 2)
		bc.Emit(OpReturn)
	})
}

func TestInterpreterWhileLoop(t *testing.T) {
	vm, _ := newTestVM(t)
	wantInt(t, run(t, vm, sumTo(), FromInt(10)), 55)
	wantInt(t, run(t, vm, sumTo(), FromInt(0)), 0)
}

func TestInterpreterStackIsBalancedAfterLoop(t *testing.T) {
	vm, _ := newTestVM(t)
	run(t, vm, sumTo(), FromInt(100))
	if n := len(vm.Interpreter().stack); n != 0 {
		t.Errorf("operand stack holds %d values after return", n)
	}
}

// ---------------------------------------------------------------------------
// Sends
// ---------------------------------------------------------------------------

// fibMethod is def fib(n); n < 2 ? n : fib(n-1) + fib(n-2); end
func fibMethod() *CompiledMethod {
	return method("fib", 1, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		recur := bc.NewLabel()
		bc.EmitByte(OpPushTemp, 0)
		b.PushInt(2)
		bc.Emit(OpLT)
		bc.EmitJump(OpJumpUnless, recur)
		bc.EmitByte(OpPushTemp, 0)
		bc.Emit(OpReturn)
		bc.Mark(recur)
		for _, k := range []int64{1, 2} {
			bc.Emit(OpPushSelf)
			bc.EmitByte(OpPushTemp, 0)
			b.PushInt(k)
			bc.Emit(OpSub)
			b.Send("fib", 1)
		}
		bc.Emit(OpAdd)
		bc.Emit(OpReturn)
	})
}

func TestInterpreterRecursiveFib(t *testing.T) {
	vm, _ := newTestVM(t)
	mustLoad(t, vm, &Program{Name: "fib", Methods: []*CompiledMethod{fibMethod()}})

	v, err := vm.Funcall(context.Background(), "fib", FromInt(20))
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 6765)
}

func TestInterpreterNoMethod(t *testing.T) {
	vm, _ := newTestVM(t)
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.PushInt(3)
		b.Send("frobnicate", 0)
		b.Bytecode().Emit(OpReturn)
	})
	e := wantKind(t, runErr(vm, m), KindNoMethod)
	if !strings.Contains(e.Message, "frobnicate") || !strings.Contains(e.Message, "Integer") {
		t.Errorf("message = %q", e.Message)
	}
}

func TestInterpreterArity(t *testing.T) {
	vm, _ := newTestVM(t)
	mustLoad(t, vm, &Program{Name: "arity", Methods: []*CompiledMethod{fibMethod()}})

	_, err := vm.Funcall(context.Background(), "fib")
	e := wantKind(t, err, KindArity)
	if !strings.Contains(e.Message, "given 0, expected 1") {
		t.Errorf("message = %q", e.Message)
	}
}

func TestInterpreterSuper(t *testing.T) {
	vm, _ := newTestVM(t)

	// class A; def greet(x) = x * 2; end
	// class B < A; def greet(x) = super(x) + 1; end
	baseGreet := method("greet", 1, 1, func(b *CompiledMethodBuilder) {
		b.Bytecode().EmitByte(OpPushTemp, 0)
		b.PushInt(2)
		b.Bytecode().Emit(OpMul)
		b.Bytecode().Emit(OpReturn)
	})
	subGreet := method("greet", 1, 1, func(b *CompiledMethodBuilder) {
		b.Bytecode().EmitByte(OpPushTemp, 0)
		b.SendSuper("greet", 1)
		b.PushInt(1)
		b.Bytecode().Emit(OpAdd)
		b.Bytecode().Emit(OpReturn)
	})
	mustLoad(t, vm, &Program{
		Name: "super",
		Classes: []*ClassDef{
			{Name: "A", Methods: []*CompiledMethod{baseGreet}},
			{Name: "B", Superclass: "A", Methods: []*CompiledMethod{subGreet}},
		},
	})

	b := vm.Classes.Lookup("B")
	v, err := vm.CallMethod(context.Background(), FromObject(b.NewInstance()), "greet", FromInt(20))
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 41)
}

func TestInterpreterIvarsAndGlobals(t *testing.T) {
	vm, _ := newTestVM(t)

	// @x = 5; $g = @x + 1; $g
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(5)
		b.Named(OpStoreIvar, "@x")
		bc.Emit(OpPOP)
		b.Named(OpPushIvar, "@x")
		b.PushInt(1)
		bc.Emit(OpAdd)
		b.Named(OpStoreGlobal, "$g")
		bc.Emit(OpPOP)
		b.Named(OpPushGlobal, "$g")
		bc.Emit(OpReturn)
	})
	wantInt(t, run(t, vm, m), 6)
	wantInt(t, vm.Globals["$g"], 6)
	wantInt(t, vm.main.GetIvar("@x"), 5)
}

func TestInterpreterUnknownConstant(t *testing.T) {
	vm, _ := newTestVM(t)
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.Named(OpPushConst, "Nope")
		b.Bytecode().Emit(OpReturn)
	})
	e := wantKind(t, runErr(vm, m), KindUndefinedVariable)
	if e.ClassName() != "NameError" {
		t.Errorf("class = %s, want NameError", e.ClassName())
	}
}

func TestInterpreterCollections(t *testing.T) {
	vm, _ := newTestVM(t)

	// [1, 2, 3].size + {a: 1}.size + (1...4).size
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushInt(1)
		b.PushInt(2)
		b.PushInt(3)
		bc.EmitByte(OpMakeArray, 3)
		b.Send("size", 0)
		b.PushSymbol("a")
		b.PushInt(1)
		bc.EmitByte(OpMakeHash, 1)
		b.Send("size", 0)
		bc.Emit(OpAdd)
		b.PushInt(1)
		b.PushInt(4)
		bc.Emit(OpMakeRangeExcl)
		b.Send("size", 0)
		bc.Emit(OpAdd)
		bc.Emit(OpReturn)
	})
	wantInt(t, run(t, vm, m), 7)
}

func TestInterpreterStringInterpolation(t *testing.T) {
	vm, _ := newTestVM(t)

	// "x = #{40 + 2}!"
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.PushString("x = ")
		b.PushInt(40)
		b.PushInt(2)
		bc.Emit(OpAdd)
		bc.Emit(OpStrCat)
		b.PushString("!")
		bc.Emit(OpStrCat)
		bc.Emit(OpReturn)
	})
	if got := run(t, vm, m).GoString(); got != "x = 42!" {
		t.Errorf("result = %q", got)
	}
}

func TestInterpreterPuts(t *testing.T) {
	vm, out := newTestVM(t)
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		bc.Emit(OpPushSelf)
		b.PushString("hello")
		b.Send("puts", 1)
		bc.Emit(OpPOP)
		bc.Emit(OpPushSelf)
		b.PushInt(1)
		b.PushInt(2)
		bc.EmitByte(OpMakeArray, 2)
		b.Send("puts", 1)
		bc.Emit(OpReturn)
	})
	if v := run(t, vm, m); !v.IsNil() {
		t.Errorf("puts returned %v", v)
	}
	if got := out.String(); got != "hello\n1\n2\n" {
		t.Errorf("output = %q", got)
	}
}
