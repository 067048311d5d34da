package vm

// ---------------------------------------------------------------------------
// Class Primitives: instance methods of Class, seen by every class value
// ---------------------------------------------------------------------------

func (vm *VM) registerClassPrimitives() {
	c := vm.ClassClass

	c.AddBlockMethod("new", 0, -1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		k := self.Class()
		switch {
		case k.IsSubclassOf(in.vm.ExceptionClass):
			msg := k.Name
			if len(args) > 0 {
				s, err := in.ToS(args[0])
				if err != nil {
					return Result{}, err
				}
				msg = s
			}
			return Normal(FromException(&Exception{class: k, Message: msg})), nil
		case k.native:
			return Result{}, in.vm.newError(KindNoMethod, "undefined method 'new' for class %s", k.Name)
		}
		obj := FromObject(k.NewInstance())
		r, err := in.Send(obj, "initialize", args, blk)
		if err != nil || !r.IsNormal() {
			return r, err
		}
		return Normal(obj), nil
	})
	c.AddMethod0("allocate", func(in *Interpreter, self Value) (Value, error) {
		if self.Class().native {
			return Nil, in.vm.newError(KindType, "allocator undefined for %s", self.Class().Name)
		}
		return FromObject(self.Class().NewInstance()), nil
	})

	c.AddMethod0("name", func(_ *Interpreter, self Value) (Value, error) {
		return NewString(self.Class().Name), nil
	})
	c.VTable.AddMethod("to_s", c.LookupMethod("name"))
	c.VTable.AddMethod("inspect", c.LookupMethod("name"))
	c.AddMethod0("superclass", func(_ *Interpreter, self Value) (Value, error) {
		if s := self.Class().Superclass; s != nil {
			return FromClass(s), nil
		}
		return Nil, nil
	})
	c.AddMethod0("ancestors", func(_ *Interpreter, self Value) (Value, error) {
		var out []Value
		for _, a := range self.Class().Ancestors() {
			out = append(out, FromClass(a))
		}
		return NewArray(out...), nil
	})
	c.AddMethodN("instance_methods", 0, 1, func(_ *Interpreter, self Value, args []Value) (Value, error) {
		vt := self.Class().VTable
		if len(args) == 1 && !args[0].Truthy() {
			return symbolList(vt.Names()), nil
		}
		return symbolList(vt.allNames()), nil
	})
	c.AddMethod1("method_defined?", func(in *Interpreter, self Value, arg Value) (Value, error) {
		name, err := in.vm.methodName(arg)
		if err != nil {
			return Nil, err
		}
		return FromBool(self.Class().LookupMethod(name) != nil), nil
	})
	c.AddMethod1("===", func(in *Interpreter, self Value, arg Value) (Value, error) {
		return FromBool(in.vm.ClassOf(arg).IsSubclassOf(self.Class())), nil
	})
	c.AddMethod1("<", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		if arg.kind != KindClass {
			return Nil, nil
		}
		return FromBool(self.Class() != arg.Class() && self.Class().IsSubclassOf(arg.Class())), nil
	})

	attr := func(name string, define func(k *Class, n string)) {
		c.AddMethodN(name, 0, -1, func(in *Interpreter, self Value, args []Value) (Value, error) {
			out := make([]Value, 0, len(args))
			for _, a := range args {
				n, err := in.vm.methodName(a)
				if err != nil {
					return Nil, err
				}
				define(self.Class(), n)
				out = append(out, Sym(n))
			}
			return NewArray(out...), nil
		})
	}
	attr("attr_reader", (*Class).DefineReader)
	attr("attr_writer", (*Class).DefineWriter)
	attr("attr_accessor", (*Class).DefineAccessor)

	c.AddBlockMethod("define_method", 1, 1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		name, err := in.vm.methodName(args[0])
		if err != nil {
			return Result{}, err
		}
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		self.Class().VTable.AddMethod(name, blockMethod(name, blk))
		return Normal(Sym(name)), nil
	})
}

// blockMethod turns a block into a method whose self is the receiver of
// each call. The body runs with lambda semantics.
func blockMethod(name string, blk *Proc) *NativeMethod {
	min, max := 0, -1
	if blk.native == nil {
		min, max = blk.Body.Arity, blk.Body.Arity
	}
	return NewNativeMethod(name, min, max, func(in *Interpreter, self Value, args []Value, _ *Proc) (Result, error) {
		p := blk.asLambda()
		p.Self = self
		return in.CallBlock(p, args, nil)
	})
}
