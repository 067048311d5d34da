package vm

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// newTestVM creates a VM whose output is captured.
func newTestVM(t *testing.T, opts ...Option) (*VM, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return NewVM(append([]Option{WithOutput(out)}, opts...)...), out
}

// run executes m with main as self and fails the test on error.
func run(t *testing.T, vm *VM, m *CompiledMethod, args ...Value) Value {
	t.Helper()
	v, err := vm.Execute(context.Background(), m, vm.Main(), args...)
	if err != nil {
		t.Fatalf("execute %s: %v", m, err)
	}
	return v
}

// runErr executes m and returns its error.
func runErr(vm *VM, m *CompiledMethod, args ...Value) error {
	_, err := vm.Execute(context.Background(), m, vm.Main(), args...)
	return err
}

func mustLoad(t *testing.T, vm *VM, p *Program) {
	t.Helper()
	if err := vm.Load(context.Background(), p); err != nil {
		t.Fatalf("load %s: %v", p.Name, err)
	}
}

func wantInt(t *testing.T, v Value, want int64) {
	t.Helper()
	if !v.IsInt() || v.Int() != want {
		t.Errorf("result = %v, want %d", v, want)
	}
}

func wantKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("err = %v, want %s", err, kind)
	}
	if e.Kind != kind {
		t.Fatalf("kind = %s (%v), want %s", e.Kind, err, kind)
	}
	return e
}

// method builds a method body from an emission function.
func method(name string, arity, temps int, emit func(b *CompiledMethodBuilder)) *CompiledMethod {
	b := NewCompiledMethodBuilder(name, arity)
	b.SetNumTemps(temps)
	emit(b)
	return b.Build()
}

// block builds a block body from an emission function.
func block(arity, temps int, emit func(b *CompiledMethodBuilder)) *CompiledMethod {
	b := NewBlockBuilder(arity)
	b.SetNumTemps(temps)
	emit(b)
	return b.Build()
}

// constant returns a body that returns v.
func constant(name string, v int64) *CompiledMethod {
	return method(name, 0, 0, func(b *CompiledMethodBuilder) {
		b.PushInt(v)
		b.Bytecode().Emit(OpReturn)
	})
}
