package vm

// ---------------------------------------------------------------------------
// Symbol Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerSymbolPrimitives() {
	c := vm.SymbolClass

	c.AddMethod0("to_s", func(_ *Interpreter, self Value) (Value, error) {
		return NewString(self.Symbol()), nil
	})
	c.VTable.AddMethod("id2name", c.LookupMethod("to_s"))
	c.VTable.AddMethod("name", c.LookupMethod("to_s"))
	c.AddMethod0("to_sym", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("inspect", func(_ *Interpreter, self Value) (Value, error) {
		return NewString(":" + self.Symbol()), nil
	})
	c.AddMethod0("to_proc", func(in *Interpreter, self Value) (Value, error) {
		return FromProc(in.vm.symbolProc(self.Symbol())), nil
	})
	c.AddMethod0("size", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(int64(len(self.Symbol()))), nil
	})
	c.VTable.AddMethod("length", c.LookupMethod("size"))
	c.AddMethod1("<=>", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		if !arg.IsSymbol() {
			return Nil, nil
		}
		a, b := self.Symbol(), arg.Symbol()
		switch {
		case a < b:
			return FromInt(-1), nil
		case a > b:
			return FromInt(1), nil
		}
		return FromInt(0), nil
	})
}
