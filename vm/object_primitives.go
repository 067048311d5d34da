package vm

import "sort"

// ---------------------------------------------------------------------------
// Object Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerObjectPrimitives() {
	c := vm.ObjectClass

	c.AddMethodN("initialize", 0, 0, func(_ *Interpreter, _ Value, _ []Value) (Value, error) {
		return Nil, nil
	})

	c.AddMethod0("class", func(in *Interpreter, self Value) (Value, error) {
		return FromClass(in.vm.ClassOf(self)), nil
	})

	// Equality
	c.AddMethod1("==", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		return FromBool(Equal(self, arg)), nil
	})
	c.AddMethod1("!=", func(in *Interpreter, self Value, arg Value) (Value, error) {
		v, err := in.Call(self, "==", arg)
		return FromBool(!v.Truthy()), err
	})
	c.AddMethod0("!", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(!self.Truthy()), nil
	})
	c.AddMethod1("equal?", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		return FromBool(identical(self, arg)), nil
	})
	c.AddMethod1("eql?", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		return FromBool(self.kind == arg.kind && Equal(self, arg)), nil
	})
	c.AddMethod1("===", func(in *Interpreter, self Value, arg Value) (Value, error) {
		return in.Call(self, "==", arg)
	})
	c.AddMethod0("hash", func(in *Interpreter, self Value) (Value, error) {
		return FromInt(in.vm.objectID(self)), nil
	})
	c.AddMethod0("object_id", func(in *Interpreter, self Value) (Value, error) {
		return FromInt(in.vm.objectID(self)), nil
	})

	// Type tests
	c.AddMethod0("nil?", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(self.IsNil()), nil
	})
	isA := func(in *Interpreter, self Value, arg Value) (Value, error) {
		k := arg.Class()
		if arg.kind != KindClass {
			return Nil, in.vm.newError(KindType, "class or module required")
		}
		return FromBool(in.vm.ClassOf(self).IsSubclassOf(k)), nil
	}
	c.AddMethod1("is_a?", isA)
	c.AddMethod1("kind_of?", isA)
	c.AddMethod1("instance_of?", func(in *Interpreter, self Value, arg Value) (Value, error) {
		return FromBool(arg.kind == KindClass && in.vm.ClassOf(self) == arg.Class()), nil
	})
	c.AddMethodN("respond_to?", 1, 2, func(in *Interpreter, self Value, args []Value) (Value, error) {
		name, err := in.vm.methodName(args[0])
		if err != nil {
			return Nil, err
		}
		return FromBool(in.vm.RespondTo(self, name)), nil
	})

	// Rendering
	c.AddMethod0("to_s", func(in *Interpreter, self Value) (Value, error) {
		if self.kind == KindObject && self.Object() == in.vm.main {
			return NewString("main"), nil
		}
		return NewString(inspectValue(self, false)), nil
	})
	c.AddMethod0("inspect", func(in *Interpreter, self Value) (Value, error) {
		if self.kind == KindObject && self.Object() == in.vm.main {
			return NewString("main"), nil
		}
		return NewString(inspectValue(self, true)), nil
	})

	// Instance variables
	c.AddMethod1("instance_variable_get", func(in *Interpreter, self Value, arg Value) (Value, error) {
		name, err := in.vm.ivarName(arg)
		if err != nil {
			return Nil, err
		}
		return in.vm.ivarGet(self, name), nil
	})
	c.AddMethod2("instance_variable_set", func(in *Interpreter, self Value, arg, v Value) (Value, error) {
		name, err := in.vm.ivarName(arg)
		if err != nil {
			return Nil, err
		}
		return v, in.vm.ivarSet(self, name, v)
	})
	c.AddMethod0("instance_variables", func(_ *Interpreter, self Value) (Value, error) {
		var out []Value
		if o := self.Object(); o != nil {
			for _, n := range o.IvarNames() {
				out = append(out, Sym(n))
			}
		}
		return NewArray(out...), nil
	})

	// Reflection and dispatch
	c.AddBlockMethod("send", 1, -1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		name, err := in.vm.methodName(args[0])
		if err != nil {
			return Result{}, err
		}
		return in.Send(self, name, args[1:], blk)
	})
	c.VTable.AddMethod("__send__", c.LookupMethod("send"))
	c.VTable.AddMethod("public_send", c.LookupMethod("send"))
	c.AddMethod1("method", func(in *Interpreter, self Value, arg Value) (Value, error) {
		name, err := in.vm.methodName(arg)
		if err != nil {
			return Nil, err
		}
		m := in.vm.FindMethod(self, name)
		if m == nil {
			return Nil, in.vm.newError(KindUndefinedVariable, "undefined method '%s' for %s", name, in.vm.describe(self))
		}
		return FromMethod(&BoundMethod{Receiver: self, Method: m}), nil
	})
	c.AddMethod0("methods", func(in *Interpreter, self Value) (Value, error) {
		return symbolList(in.vm.ClassOf(self).VTable.allNames()), nil
	})

	c.AddBlockMethod("tap", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		if r, stop, err := in.Yield(blk, self); stop {
			return r, err
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("then", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		r, _, err := in.Yield(blk, self)
		return r, err
	})
	c.AddMethod0("itself", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("freeze", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("frozen?", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(self.kind != KindObject && self.kind != KindString && self.kind != KindArray && self.kind != KindHash), nil
	})
	c.AddMethod0("dup", func(_ *Interpreter, self Value) (Value, error) {
		return shallowCopy(self), nil
	})
	c.VTable.AddMethod("clone", c.LookupMethod("dup"))
}

// identical is equal? : value identity for immediates, reference identity
// otherwise.
func identical(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	return a == b
}

func shallowCopy(v Value) Value {
	switch v.kind {
	case KindString:
		return FromBytes(v.Str().B)
	case KindArray:
		return NewArray(append([]Value(nil), v.Array().Elems...)...)
	case KindHash:
		h := NewHash()
		src := v.Hash()
		for i := range src.keys {
			h.Set(src.keys[i], src.vals[i])
		}
		return FromHash(h)
	case KindObject:
		src := v.Object()
		o := NewObject(src.class)
		for _, n := range src.order {
			o.SetIvar(n, src.ivars[n])
		}
		o.Data = src.Data
		return FromObject(o)
	}
	return v
}

// objectID returns a stable identifier: small integers map to 2n+1 as in
// CRuby, references get sequential ids on first request.
func (vm *VM) objectID(v Value) int64 {
	switch v.kind {
	case KindNil:
		return 8
	case KindTrue:
		return 20
	case KindFalse:
		return 0
	case KindInt:
		return 2*v.Int() + 1
	case KindFloat, KindSymbol:
		k := keyOf(v)
		if id, ok := vm.immediateIDs[k]; ok {
			return id
		}
		vm.nextID += 8
		vm.immediateIDs[k] = vm.nextID
		return vm.nextID
	}
	if id, ok := vm.refIDs[v.ref]; ok {
		return id
	}
	vm.nextID += 8
	vm.refIDs[v.ref] = vm.nextID
	return vm.nextID
}

// methodName accepts a Symbol or String naming a method.
func (vm *VM) methodName(v Value) (string, error) {
	switch v.kind {
	case KindSymbol:
		return v.Symbol(), nil
	case KindString:
		return string(v.Str().B), nil
	}
	return "", vm.newError(KindType, "%s is not a symbol nor a string", inspectValue(v, true))
}

func (vm *VM) ivarName(v Value) (string, error) {
	name, err := vm.methodName(v)
	if err != nil {
		return "", err
	}
	if len(name) < 2 || name[0] != '@' {
		return "", vm.newError(KindUndefinedVariable, "'%s' is not allowed as an instance variable name", name)
	}
	return name, nil
}

func symbolList(names []string) Value {
	sort.Strings(names)
	out := make([]Value, len(names))
	for i, n := range names {
		out[i] = Sym(n)
	}
	return NewArray(out...)
}
