package vm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// guarded builds a method whose body runs emit under a rescue handler for
// classes. The handler returns the exception's message.
func guarded(classes []string, emit func(b *CompiledMethodBuilder)) *CompiledMethod {
	return method("guarded", 0, 1, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		start := bc.Len()
		emit(b)
		end := bc.Len()
		bc.Emit(OpReturn)
		target := bc.Len()
		bc.EmitByte(OpStoreTemp, 0)
		bc.Emit(OpPOP)
		bc.EmitByte(OpPushTemp, 0)
		b.Send("message", 0)
		bc.Emit(OpReturn)
		b.AddHandler(Handler{Start: start, End: end, Target: target, Classes: classes})
	})
}

func raiseString(msg string) func(b *CompiledMethodBuilder) {
	return func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushSelf)
		b.PushString(msg)
		b.Send("raise", 1)
	}
}

func divideByZero(b *CompiledMethodBuilder) {
	b.PushInt(1)
	b.PushInt(0)
	b.Bytecode().Emit(OpDiv)
}

func TestRescueRuntimeError(t *testing.T) {
	vm, _ := newTestVM(t)
	got := run(t, vm, guarded(nil, raiseString("boom")))
	if got.GoString() != "boom" {
		t.Errorf("rescued message = %v, want boom", got)
	}
}

func TestRescueByClass(t *testing.T) {
	vm, _ := newTestVM(t)

	got := run(t, vm, guarded([]string{"ZeroDivisionError"}, divideByZero))
	if got.GoString() != "divided by 0" {
		t.Errorf("rescued message = %v", got)
	}

	// A handler for an unrelated class lets the error through.
	wantKind(t, runErr(vm, guarded([]string{"TypeError"}, divideByZero)), KindZeroDivision)

	// StandardError covers its subclasses.
	got = run(t, vm, guarded([]string{"StandardError"}, divideByZero))
	if got.GoString() != "divided by 0" {
		t.Errorf("rescued message = %v", got)
	}
}

func TestRescueNoMethodAsNameError(t *testing.T) {
	vm, _ := newTestVM(t)
	m := guarded([]string{"NameError"}, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushNil)
		b.Send("nope", 0)
	})
	got := run(t, vm, m)
	if !strings.Contains(got.GoString(), "undefined method 'nope' for nil") {
		t.Errorf("rescued message = %v", got)
	}
}

func TestRescueUserDefinedClass(t *testing.T) {
	vm, _ := newTestVM(t)
	mustLoad(t, vm, &Program{
		Name:    "errors",
		Classes: []*ClassDef{{Name: "BotError", Superclass: "StandardError"}},
	})

	raiseBot := func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushSelf)
		b.Named(OpPushConst, "BotError")
		b.PushString("lost")
		b.Send("raise", 2)
	}
	if got := run(t, vm, guarded([]string{"BotError"}, raiseBot)); got.GoString() != "lost" {
		t.Errorf("rescued message = %v", got)
	}

	err := runErr(vm, guarded([]string{"ArgumentError"}, raiseBot))
	e := wantKind(t, err, KindRuntime)
	if e.ClassName() != "BotError" {
		t.Errorf("class = %s, want BotError", e.ClassName())
	}
	if e.Error() != "BotError: lost (in guarded)" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestRaiseArgumentErrorMapsToArity(t *testing.T) {
	vm, _ := newTestVM(t)
	m := method("test", 0, 0, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushSelf)
		b.Named(OpPushConst, "ArgumentError")
		b.PushString("bad")
		b.Send("raise", 2)
		b.Bytecode().Emit(OpReturn)
	})
	err := runErr(vm, m)
	if !errors.Is(err, ErrArity) {
		t.Errorf("errors.Is(%v, ErrArity) = false", err)
	}
}

func TestStackOverflowIsNotRescued(t *testing.T) {
	vm, _ := newTestVM(t, WithMaxFrameDepth(64))

	// def down; down; end, called under a StandardError handler.
	down := method("down", 0, 0, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushSelf)
		b.Send("down", 0)
		b.Bytecode().Emit(OpReturn)
	})
	mustLoad(t, vm, &Program{Name: "down", Methods: []*CompiledMethod{down}})

	m := guarded([]string{"Exception"}, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushSelf)
		b.Send("down", 0)
	})
	e := wantKind(t, runErr(vm, m), KindStackOverflow)
	if e.Recoverable() {
		t.Error("stack overflow reported as recoverable")
	}
	if vm.Interpreter().Depth() != 0 {
		t.Errorf("depth = %d after failure", vm.Interpreter().Depth())
	}
	wantInt(t, run(t, vm, constant("after", 3)), 3)
}

func TestErrorBacktrace(t *testing.T) {
	vm, _ := newTestVM(t)
	inner := method("inner", 0, 0, func(b *CompiledMethodBuilder) {
		raiseString("deep")(b)
		b.Bytecode().Emit(OpReturn)
	})
	outer := method("outer", 0, 0, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushSelf)
		b.Send("inner", 0)
		b.Bytecode().Emit(OpReturn)
	})
	mustLoad(t, vm, &Program{Name: "bt", Methods: []*CompiledMethod{inner, outer}})

	_, err := vm.Funcall(context.Background(), "outer")
	e := wantKind(t, err, KindRuntime)
	if len(e.Backtrace) < 2 || e.Backtrace[0] != "Object#inner" || e.Backtrace[1] != "Object#outer" {
		t.Errorf("backtrace = %v", e.Backtrace)
	}
}

func TestErrorKindsAndSentinels(t *testing.T) {
	tests := []struct {
		kind        ErrorKind
		sentinel    error
		recoverable bool
	}{
		{KindRuntime, ErrRuntime, true},
		{KindNoMethod, ErrNoMethod, true},
		{KindArity, ErrArity, true},
		{KindOutOfBounds, ErrOutOfBounds, true},
		{KindStackOverflow, ErrStackOverflow, false},
		{KindUndefinedVariable, ErrUndefinedVariable, true},
		{KindLocalJump, ErrLocalJump, true},
		{KindClosureExpired, ErrClosureExpired, true},
		{KindBudgetExceeded, ErrBudgetExceeded, false},
		{KindInternal, ErrInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := error(&Error{Kind: tt.kind, Message: "x"})
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false", err)
			}
			if tt.kind.Recoverable() != tt.recoverable {
				t.Errorf("Recoverable = %v, want %v", tt.kind.Recoverable(), tt.recoverable)
			}
		})
	}
	if errors.Is(&Error{Kind: KindArity}, ErrNoMethod) {
		t.Error("different kinds matched")
	}
}
