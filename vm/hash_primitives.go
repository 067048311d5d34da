package vm

// ---------------------------------------------------------------------------
// Hash Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerHashPrimitives() {
	c := vm.HashClass

	c.AddClassMethodN("new", 0, 1, func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		h := NewHash()
		if len(args) == 1 {
			h.Default = args[0]
		}
		return FromHash(h), nil
	})

	c.AddMethod1("[]", func(_ *Interpreter, self Value, key Value) (Value, error) {
		h := self.Hash()
		if v, ok := h.Get(key); ok {
			return v, nil
		}
		return h.Default, nil
	})
	c.AddMethod2("[]=", func(_ *Interpreter, self Value, key, v Value) (Value, error) {
		self.Hash().Set(key, v)
		return v, nil
	})
	c.VTable.AddMethod("store", c.LookupMethod("[]="))
	c.AddBlockMethod("fetch", 1, 2, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		if v, ok := self.Hash().Get(args[0]); ok {
			return Normal(v), nil
		}
		switch {
		case blk != nil:
			r, _, err := in.Yield(blk, args[0])
			return r, err
		case len(args) == 2:
			return Normal(args[1]), nil
		}
		return Result{}, in.vm.raiseNamed("KeyError", "key not found: %s", inspectValue(args[0], true))
	})
	hasKey := func(_ *Interpreter, self Value, key Value) (Value, error) {
		_, ok := self.Hash().Get(key)
		return FromBool(ok), nil
	}
	for _, name := range []string{"key?", "has_key?", "include?", "member?"} {
		c.AddMethod1(name, hasKey)
	}
	c.AddMethod1("value?", func(_ *Interpreter, self Value, v Value) (Value, error) {
		for _, x := range self.Hash().vals {
			if Equal(x, v) {
				return True, nil
			}
		}
		return False, nil
	})
	c.AddMethod1("key", func(_ *Interpreter, self Value, v Value) (Value, error) {
		h := self.Hash()
		for i, x := range h.vals {
			if Equal(x, v) {
				return h.keys[i], nil
			}
		}
		return Nil, nil
	})
	c.AddMethod1("delete", func(_ *Interpreter, self Value, key Value) (Value, error) {
		v, _ := self.Hash().Delete(key)
		return v, nil
	})
	c.AddMethod0("keys", func(_ *Interpreter, self Value) (Value, error) {
		return NewArray(self.Hash().Keys()...), nil
	})
	c.AddMethod0("values", func(_ *Interpreter, self Value) (Value, error) {
		return NewArray(self.Hash().Values()...), nil
	})
	c.AddMethod0("size", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(int64(self.Hash().Len())), nil
	})
	c.VTable.AddMethod("length", c.LookupMethod("size"))
	c.VTable.AddMethod("count", c.LookupMethod("size"))
	c.AddMethod0("empty?", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(self.Hash().Len() == 0), nil
	})
	c.AddMethod0("to_a", func(_ *Interpreter, self Value) (Value, error) {
		return NewArray(hashPairs(self.Hash())...), nil
	})
	c.AddMethod0("to_h", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("to_s", func(in *Interpreter, self Value) (Value, error) {
		s, err := in.Inspect(self)
		return NewString(s), err
	})
	c.VTable.AddMethod("inspect", c.LookupMethod("to_s"))
	c.AddMethod0("clear", func(_ *Interpreter, self Value) (Value, error) {
		h := self.Hash()
		*h = Hash{index: make(map[hashKey]int), Default: h.Default}
		return self, nil
	})
	c.AddMethod1("merge", func(in *Interpreter, self Value, other Value) (Value, error) {
		if other.kind != KindHash {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Hash", in.vm.typeName(other))
		}
		out := shallowCopy(self)
		out.Hash().Default = self.Hash().Default
		o := other.Hash()
		for i := range o.keys {
			out.Hash().Set(o.keys[i], o.vals[i])
		}
		return out, nil
	})
	c.AddMethod1("update", func(in *Interpreter, self Value, other Value) (Value, error) {
		if other.kind != KindHash {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Hash", in.vm.typeName(other))
		}
		o := other.Hash()
		for i := range o.keys {
			self.Hash().Set(o.keys[i], o.vals[i])
		}
		return self, nil
	})
	c.VTable.AddMethod("merge!", c.LookupMethod("update"))

	// Iteration. Entries are snapshotted so the block may modify the hash.
	each := func(name string, yield func(in *Interpreter, blk *Proc, k, v Value) (Result, bool, error)) {
		c.AddBlockMethod(name, 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
			if err := in.vm.needBlock(blk); err != nil {
				return Result{}, err
			}
			h := self.Hash()
			keys, vals := h.Keys(), h.Values()
			for i := range keys {
				if r, stop, err := yield(in, blk, keys[i], vals[i]); stop {
					return r, err
				}
			}
			return Normal(self), nil
		})
	}
	pair := func(in *Interpreter, blk *Proc, k, v Value) (Result, bool, error) {
		return in.Yield(blk, NewArray(k, v))
	}
	each("each", pair)
	each("each_pair", pair)
	each("each_key", func(in *Interpreter, blk *Proc, k, _ Value) (Result, bool, error) {
		return in.Yield(blk, k)
	})
	each("each_value", func(in *Interpreter, blk *Proc, _, v Value) (Result, bool, error) {
		return in.Yield(blk, v)
	})

	c.AddBlockMethod("map", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		var out []Value
		for _, p := range hashPairs(self.Hash()) {
			r, stop, err := in.Yield(blk, p)
			if stop {
				return r, err
			}
			out = append(out, r.Value)
		}
		return Normal(NewArray(out...)), nil
	})
	filter := func(name string, keep bool) {
		c.AddBlockMethod(name, 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
			if err := in.vm.needBlock(blk); err != nil {
				return Result{}, err
			}
			out := NewHash()
			for _, p := range hashPairs(self.Hash()) {
				r, stop, err := in.Yield(blk, p)
				if stop {
					return r, err
				}
				if r.Value.Truthy() == keep {
					kv := p.Array().Elems
					out.Set(kv[0], kv[1])
				}
			}
			return Normal(FromHash(out)), nil
		})
	}
	filter("select", true)
	filter("filter", true)
	filter("reject", false)
}

func hashPairs(h *Hash) []Value {
	out := make([]Value, len(h.keys))
	for i := range h.keys {
		out[i] = NewArray(h.keys[i], h.vals[i])
	}
	return out
}
