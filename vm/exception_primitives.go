package vm

// ---------------------------------------------------------------------------
// Exception Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerExceptionPrimitives() {
	c := vm.ExceptionClass

	c.AddClassMethodN("exception", 0, 1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		return in.Call(self, "new", args...)
	})

	c.AddMethod0("message", func(_ *Interpreter, self Value) (Value, error) {
		return NewString(self.Exception().Message), nil
	})
	c.VTable.AddMethod("to_s", c.LookupMethod("message"))
	c.AddMethod0("full_message", func(_ *Interpreter, self Value) (Value, error) {
		e := self.Exception()
		return NewString(e.Message + " (" + e.class.Name + ")"), nil
	})
	c.AddMethod0("inspect", func(_ *Interpreter, self Value) (Value, error) {
		return NewString(inspectValue(self, true)), nil
	})
	c.AddMethod0("backtrace", func(_ *Interpreter, self Value) (Value, error) {
		e := self.Exception()
		if e.Backtrace == nil {
			return Nil, nil
		}
		out := make([]Value, len(e.Backtrace))
		for i, b := range e.Backtrace {
			out[i] = NewString(b)
		}
		return NewArray(out...), nil
	})
	c.AddMethod1("==", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		if arg.kind != KindException {
			return False, nil
		}
		a, b := self.Exception(), arg.Exception()
		return FromBool(a == b || (a.class == b.class && a.Message == b.Message)), nil
	})
}
