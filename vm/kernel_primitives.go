package vm

import (
	"bytes"
	"errors"
	"io"
)

// ---------------------------------------------------------------------------
// Kernel: functions callable without a receiver
// ---------------------------------------------------------------------------

func (vm *VM) registerKernelPrimitives() {
	c := vm.ObjectClass

	c.AddMethodN("puts", 0, -1, func(in *Interpreter, _ Value, args []Value) (Value, error) {
		var buf bytes.Buffer
		if len(args) == 0 {
			buf.WriteByte('\n')
		}
		for _, a := range args {
			if err := in.putsLine(&buf, a, 0); err != nil {
				return Nil, err
			}
		}
		return Nil, in.vm.write(buf.Bytes())
	})

	c.AddMethodN("print", 0, -1, func(in *Interpreter, _ Value, args []Value) (Value, error) {
		var buf bytes.Buffer
		for _, a := range args {
			s, err := in.ToS(a)
			if err != nil {
				return Nil, err
			}
			buf.WriteString(s)
		}
		return Nil, in.vm.write(buf.Bytes())
	})

	c.AddMethodN("p", 0, -1, func(in *Interpreter, _ Value, args []Value) (Value, error) {
		if err := in.inspectLines(args); err != nil {
			return Nil, err
		}
		switch len(args) {
		case 0:
			return Nil, nil
		case 1:
			return args[0], nil
		}
		return NewArray(args...), nil
	})

	c.AddMethod1("debug", func(in *Interpreter, _ Value, arg Value) (Value, error) {
		return arg, in.inspectLines([]Value{arg})
	})

	c.AddMethodN("raise", 0, 2, func(in *Interpreter, _ Value, args []Value) (Value, error) {
		return Nil, in.raise(args)
	})
	c.VTable.AddMethod("fail", c.LookupMethod("raise"))

	c.AddBlockMethod("loop", 0, 0, func(in *Interpreter, _ Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		for {
			r, stop, err := in.Yield(blk)
			if err != nil && isStopIteration(err) {
				return Normal(Nil), nil
			}
			if stop {
				return r, err
			}
		}
	})

	c.AddBlockMethod("lambda", 0, 0, func(in *Interpreter, _ Value, _ []Value, blk *Proc) (Result, error) {
		if blk == nil {
			return Result{}, in.vm.newError(KindArity, "tried to create Proc object without a block")
		}
		return Normal(FromProc(blk.asLambda())), nil
	})
	c.AddBlockMethod("proc", 0, 0, func(in *Interpreter, _ Value, _ []Value, blk *Proc) (Result, error) {
		if blk == nil {
			return Result{}, in.vm.newError(KindArity, "tried to create Proc object without a block")
		}
		return Normal(FromProc(blk)), nil
	})

	c.AddMethodN("Integer", 1, 1, func(in *Interpreter, _ Value, args []Value) (Value, error) {
		switch v := args[0]; v.kind {
		case KindInt:
			return v, nil
		case KindFloat:
			return in.Call(v, "to_i")
		case KindString:
			s := string(bytes.TrimSpace(v.Str().B))
			n := parseInteger(s, 10)
			if s == "" || inspectValue(FromInt(n), false) != trimPlus(s) {
				return Nil, in.vm.newError(KindArity, "invalid value for Integer(): %s", inspectValue(v, true))
			}
			return FromInt(n), nil
		}
		return Nil, in.vm.newError(KindType, "can't convert %s into Integer", in.vm.ClassOf(args[0]).Name)
	})
}

func trimPlus(s string) string {
	if len(s) > 1 && s[0] == '+' {
		return s[1:]
	}
	return s
}

// putsLine writes v the way puts does: arrays one element per line,
// nothing doubled when the text already ends in a newline.
func (in *Interpreter) putsLine(w io.Writer, v Value, depth int) error {
	if v.kind == KindArray && depth < 16 {
		if len(v.Array().Elems) == 0 && depth == 0 {
			_, err := io.WriteString(w, "\n")
			return err
		}
		for _, e := range v.Array().Elems {
			if err := in.putsLine(w, e, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	s, err := in.ToS(v)
	if err != nil {
		return err
	}
	if len(s) == 0 || s[len(s)-1] != '\n' {
		s += "\n"
	}
	_, err = io.WriteString(w, s)
	return err
}

func (in *Interpreter) inspectLines(args []Value) error {
	var buf bytes.Buffer
	for _, a := range args {
		s, err := in.Inspect(a)
		if err != nil {
			return err
		}
		buf.WriteString(s)
		buf.WriteByte('\n')
	}
	return in.vm.write(buf.Bytes())
}

func (vm *VM) write(b []byte) error {
	if vm.Out == nil || len(b) == 0 {
		return nil
	}
	_, err := vm.Out.Write(b)
	return err
}

// raise implements Kernel#raise.
func (in *Interpreter) raise(args []Value) error {
	vm := in.vm
	if len(args) == 0 {
		return vm.Raise(vm.Classes.Lookup("RuntimeError"), "unhandled exception")
	}
	first := args[0]
	msg := ""
	if len(args) == 2 {
		s, err := in.ToS(args[1])
		if err != nil {
			return err
		}
		msg = s
	}
	switch first.kind {
	case KindString:
		if len(args) == 2 {
			return vm.newError(KindType, "exception class/object expected")
		}
		return vm.Raise(vm.Classes.Lookup("RuntimeError"), "%s", string(first.Str().B))
	case KindClass:
		c := first.Class()
		if !c.IsSubclassOf(vm.ExceptionClass) {
			return vm.newError(KindType, "exception class/object expected")
		}
		if len(args) == 1 {
			msg = c.Name
		}
		return errorFromException(&Exception{class: c, Message: msg})
	case KindException:
		exc := first.Exception()
		if len(args) == 2 {
			exc = &Exception{class: exc.class, Message: msg}
		}
		return errorFromException(exc)
	}
	return vm.newError(KindType, "exception class/object expected")
}

func isStopIteration(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Exception != nil && e.Exception.class.Name == "StopIteration"
}
