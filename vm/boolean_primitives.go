package vm

// ---------------------------------------------------------------------------
// nil, true and false
// ---------------------------------------------------------------------------

func (vm *VM) registerBooleanPrimitives() {
	n := vm.NilClass
	n.AddMethod0("to_s", func(_ *Interpreter, _ Value) (Value, error) { return NewString(""), nil })
	n.AddMethod0("to_a", func(_ *Interpreter, _ Value) (Value, error) { return NewArray(), nil })
	n.AddMethod0("to_i", func(_ *Interpreter, _ Value) (Value, error) { return FromInt(0), nil })
	n.AddMethod0("inspect", func(_ *Interpreter, _ Value) (Value, error) { return NewString("nil"), nil })
	n.AddMethod1("&", func(_ *Interpreter, _ Value, _ Value) (Value, error) { return False, nil })
	n.AddMethod1("|", func(_ *Interpreter, _ Value, arg Value) (Value, error) {
		return FromBool(arg.Truthy()), nil
	})

	t := vm.TrueClass
	t.AddMethod1("&", func(_ *Interpreter, _ Value, arg Value) (Value, error) {
		return FromBool(arg.Truthy()), nil
	})
	t.AddMethod1("|", func(_ *Interpreter, _ Value, _ Value) (Value, error) { return True, nil })
	t.AddMethod1("^", func(_ *Interpreter, _ Value, arg Value) (Value, error) {
		return FromBool(!arg.Truthy()), nil
	})

	f := vm.FalseClass
	f.AddMethod1("&", func(_ *Interpreter, _ Value, _ Value) (Value, error) { return False, nil })
	f.AddMethod1("|", func(_ *Interpreter, _ Value, arg Value) (Value, error) {
		return FromBool(arg.Truthy()), nil
	})
	f.VTable.AddMethod("^", f.LookupMethod("|"))
}
