package vm

// ---------------------------------------------------------------------------
// Proc and Method Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerBlockPrimitives() {
	c := vm.ProcClass

	c.AddClassBlockMethod("new", 0, 0, func(in *Interpreter, _ Value, _ []Value, blk *Proc) (Result, error) {
		if blk == nil {
			return Result{}, in.vm.newError(KindArity, "tried to create Proc object without a block")
		}
		return Normal(FromProc(blk)), nil
	})

	call := func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		return in.CallBlock(self.Proc(), args, blk)
	}
	for _, name := range []string{"call", "()", "[]", "yield", "==="} {
		c.AddBlockMethod(name, 0, -1, call)
	}
	c.AddMethod0("arity", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(int64(self.Proc().Arity())), nil
	})
	c.AddMethod0("lambda?", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(self.Proc().Lambda), nil
	})
	c.AddMethod0("to_proc", func(_ *Interpreter, self Value) (Value, error) { return self, nil })

	m := vm.MethodClass
	m.AddBlockMethod("call", 0, -1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		bm := self.Method()
		return in.Invoke(bm.Method, bm.Receiver, args, blk)
	})
	m.VTable.AddMethod("[]", m.LookupMethod("call"))
	m.VTable.AddMethod("===", m.LookupMethod("call"))
	m.AddMethod0("arity", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(int64(self.Method().Method.MethodArity())), nil
	})
	m.AddMethod0("name", func(_ *Interpreter, self Value) (Value, error) {
		return Sym(self.Method().Method.Name()), nil
	})
	m.AddMethod0("receiver", func(_ *Interpreter, self Value) (Value, error) {
		return self.Method().Receiver, nil
	})
	m.AddMethod0("to_proc", func(in *Interpreter, self Value) (Value, error) {
		return FromProc(in.vm.methodProc(self.Method())), nil
	})
}
