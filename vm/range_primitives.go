package vm

// ---------------------------------------------------------------------------
// Range Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerRangePrimitives() {
	c := vm.RangeClass

	c.AddClassMethodN("new", 2, 3, func(_ *Interpreter, _ Value, args []Value) (Value, error) {
		excl := len(args) == 3 && args[2].Truthy()
		return NewRange(args[0], args[1], excl), nil
	})

	c.AddMethod0("first", func(_ *Interpreter, self Value) (Value, error) { return self.Range().First, nil })
	c.VTable.AddMethod("begin", c.LookupMethod("first"))
	c.AddMethod0("last", func(_ *Interpreter, self Value) (Value, error) { return self.Range().Last, nil })
	c.VTable.AddMethod("end", c.LookupMethod("last"))
	c.AddMethod0("exclude_end?", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(self.Range().Exclusive), nil
	})

	covers := func(in *Interpreter, self Value, arg Value) (Value, error) {
		r := self.Range()
		if r.First.IsString() && r.Last.IsString() && arg.IsString() {
			lo, err := in.compareValues(r.First, arg)
			if err != nil {
				return Nil, err
			}
			hi, err := in.compareValues(arg, r.Last)
			if err != nil {
				return Nil, err
			}
			return FromBool(lo <= 0 && (hi < 0 || (hi == 0 && !r.Exclusive))), nil
		}
		return FromBool(r.Covers(arg)), nil
	}
	for _, name := range []string{"include?", "member?", "cover?", "==="} {
		c.AddMethod1(name, covers)
	}

	c.AddMethod0("size", func(in *Interpreter, self Value) (Value, error) {
		lo, hi, err := in.vm.intRange(self)
		if err != nil {
			return Nil, err
		}
		return FromInt(max(hi-lo+1, 0)), nil
	})
	c.VTable.AddMethod("count", c.LookupMethod("size"))
	c.AddMethod0("to_a", func(in *Interpreter, self Value) (Value, error) {
		lo, hi, err := in.vm.intRange(self)
		if err != nil {
			return Nil, err
		}
		if hi-lo >= 1<<24 {
			return Nil, in.vm.newError(KindArity, "range too large to materialize")
		}
		var out []Value
		for i := lo; i <= hi; i++ {
			out = append(out, FromInt(i))
		}
		return NewArray(out...), nil
	})
	c.VTable.AddMethod("entries", c.LookupMethod("to_a"))
	c.AddMethod0("min", func(_ *Interpreter, self Value) (Value, error) {
		r := self.Range()
		if lo, hi, ok := r.IntBounds(); ok && lo > hi {
			return Nil, nil
		}
		return r.First, nil
	})
	c.AddMethod0("max", func(_ *Interpreter, self Value) (Value, error) {
		r := self.Range()
		lo, hi, ok := r.IntBounds()
		if !ok {
			return r.Last, nil
		}
		if lo > hi {
			return Nil, nil
		}
		return FromInt(hi), nil
	})
	c.AddMethod0("sum", func(in *Interpreter, self Value) (Value, error) {
		lo, hi, err := in.vm.intRange(self)
		if err != nil {
			return Nil, err
		}
		if hi < lo {
			return FromInt(0), nil
		}
		return FromInt((lo + hi) * (hi - lo + 1) / 2), nil
	})
	c.AddMethod0("to_s", func(_ *Interpreter, self Value) (Value, error) {
		return NewString(inspectValue(self, false)), nil
	})
	c.AddMethod0("inspect", func(_ *Interpreter, self Value) (Value, error) {
		return NewString(inspectValue(self, true)), nil
	})

	c.AddBlockMethod("each", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		lo, hi, err := in.vm.intRange(self)
		if err != nil {
			return Result{}, err
		}
		for i := lo; i <= hi; i++ {
			if r, stop, err := in.Yield(blk, FromInt(i)); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("reverse_each", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		lo, hi, err := in.vm.intRange(self)
		if err != nil {
			return Result{}, err
		}
		for i := hi; i >= lo; i-- {
			if r, stop, err := in.Yield(blk, FromInt(i)); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("step", 1, 1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		lo, hi, err := in.vm.intRange(self)
		if err != nil {
			return Result{}, err
		}
		if !args[0].IsInt() || args[0].Int() <= 0 {
			return Result{}, in.vm.newError(KindArity, "step can't be negative or zero")
		}
		for i := lo; i <= hi; i += args[0].Int() {
			if r, stop, err := in.Yield(blk, FromInt(i)); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	collect := func(name string, pick func(v, res Value) (Value, bool)) {
		c.AddBlockMethod(name, 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
			if err := in.vm.needBlock(blk); err != nil {
				return Result{}, err
			}
			lo, hi, err := in.vm.intRange(self)
			if err != nil {
				return Result{}, err
			}
			var out []Value
			for i := lo; i <= hi; i++ {
				r, stop, err := in.Yield(blk, FromInt(i))
				if stop {
					return r, err
				}
				if v, ok := pick(FromInt(i), r.Value); ok {
					out = append(out, v)
				}
			}
			return Normal(NewArray(out...)), nil
		})
	}
	collect("map", func(_, res Value) (Value, bool) { return res, true })
	collect("collect", func(_, res Value) (Value, bool) { return res, true })
	collect("select", func(v, res Value) (Value, bool) { return v, res.Truthy() })
	collect("filter", func(v, res Value) (Value, bool) { return v, res.Truthy() })
	collect("reject", func(v, res Value) (Value, bool) { return v, !res.Truthy() })

	c.AddBlockMethod("inject", 0, 1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		arr, err := in.Call(self, "to_a")
		if err != nil {
			return Result{}, err
		}
		return in.Send(arr, "inject", args, blk)
	})
	c.VTable.AddMethod("reduce", c.LookupMethod("inject"))
}

// intRange returns the inclusive integer bounds of an iterable range.
func (vm *VM) intRange(v Value) (int64, int64, error) {
	lo, hi, ok := v.Range().IntBounds()
	if !ok {
		return 0, 0, vm.newError(KindType, "can't iterate from %s", vm.typeName(v.Range().First))
	}
	return lo, hi, nil
}
