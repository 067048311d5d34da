package vm

import (
	"bytes"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Array Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerArrayPrimitives() {
	c := vm.ArrayClass

	c.AddClassMethodN("new", 0, 2, func(in *Interpreter, _ Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return NewArray(), nil
		}
		if !args[0].IsInt() || args[0].Int() < 0 {
			return Nil, in.vm.newError(KindArity, "negative array size")
		}
		fill := Nil
		if len(args) == 2 {
			fill = args[1]
		}
		out := make([]Value, args[0].Int())
		for i := range out {
			out[i] = fill
		}
		return NewArray(out...), nil
	})

	// Size and access
	c.AddMethod0("size", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(int64(len(self.Array().Elems))), nil
	})
	c.VTable.AddMethod("length", c.LookupMethod("size"))
	c.AddMethod0("empty?", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(len(self.Array().Elems) == 0), nil
	})
	c.AddMethodN("[]", 1, 2, func(in *Interpreter, self Value, args []Value) (Value, error) {
		a := self.Array()
		if len(args) == 1 && args[0].IsInt() {
			return a.At(args[0].Int()), nil
		}
		start, n, ok, err := in.vm.sliceBounds(len(a.Elems), args)
		if err != nil || !ok {
			return Nil, err
		}
		return NewArray(append([]Value(nil), a.Elems[start:start+n]...)...), nil
	})
	c.VTable.AddMethod("slice", c.LookupMethod("[]"))
	c.AddMethod1("at", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if !arg.IsInt() {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Integer", in.vm.typeName(arg))
		}
		return self.Array().At(arg.Int()), nil
	})
	c.AddMethod2("[]=", func(in *Interpreter, self Value, idx, v Value) (Value, error) {
		if !idx.IsInt() {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Integer", in.vm.typeName(idx))
		}
		if !self.Array().Set(idx.Int(), v) {
			return Nil, in.vm.newError(KindOutOfBounds, "index %d too small for array; minimum: -%d", idx.Int(), len(self.Array().Elems))
		}
		return v, nil
	})
	c.AddMethodN("first", 0, 1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		elems := self.Array().Elems
		if len(args) == 0 {
			return self.Array().At(0), nil
		}
		n, err := in.vm.count(args[0], len(elems))
		if err != nil {
			return Nil, err
		}
		return NewArray(append([]Value(nil), elems[:n]...)...), nil
	})
	c.AddMethodN("last", 0, 1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		elems := self.Array().Elems
		if len(args) == 0 {
			return self.Array().At(-1), nil
		}
		n, err := in.vm.count(args[0], len(elems))
		if err != nil {
			return Nil, err
		}
		return NewArray(append([]Value(nil), elems[len(elems)-n:]...)...), nil
	})
	c.VTable.AddMethod("take", c.LookupMethod("first"))
	c.AddMethod1("drop", func(in *Interpreter, self Value, arg Value) (Value, error) {
		elems := self.Array().Elems
		n, err := in.vm.count(arg, len(elems))
		if err != nil {
			return Nil, err
		}
		return NewArray(append([]Value(nil), elems[n:]...)...), nil
	})

	// Mutation
	c.AddMethodN("push", 0, -1, func(_ *Interpreter, self Value, args []Value) (Value, error) {
		a := self.Array()
		a.Elems = append(a.Elems, args...)
		return self, nil
	})
	c.VTable.AddMethod("append", c.LookupMethod("push"))
	c.AddMethod1("<<", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		a := self.Array()
		a.Elems = append(a.Elems, arg)
		return self, nil
	})
	c.AddMethod0("pop", func(_ *Interpreter, self Value) (Value, error) {
		a := self.Array()
		if len(a.Elems) == 0 {
			return Nil, nil
		}
		v := a.Elems[len(a.Elems)-1]
		a.Elems = a.Elems[:len(a.Elems)-1]
		return v, nil
	})
	c.AddMethod0("shift", func(_ *Interpreter, self Value) (Value, error) {
		a := self.Array()
		if len(a.Elems) == 0 {
			return Nil, nil
		}
		v := a.Elems[0]
		a.Elems = append([]Value(nil), a.Elems[1:]...)
		return v, nil
	})
	c.AddMethodN("unshift", 0, -1, func(_ *Interpreter, self Value, args []Value) (Value, error) {
		a := self.Array()
		a.Elems = append(append([]Value(nil), args...), a.Elems...)
		return self, nil
	})
	c.VTable.AddMethod("prepend", c.LookupMethod("unshift"))
	c.AddMethodN("insert", 1, -1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		a := self.Array()
		if !args[0].IsInt() {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Integer", in.vm.typeName(args[0]))
		}
		i := int(args[0].Int())
		if i < 0 {
			i += len(a.Elems) + 1
		}
		if i < 0 {
			return Nil, in.vm.newError(KindOutOfBounds, "index %d too small for array", args[0].Int())
		}
		for len(a.Elems) < i {
			a.Elems = append(a.Elems, Nil)
		}
		rest := append([]Value(nil), a.Elems[i:]...)
		a.Elems = append(append(a.Elems[:i], args[1:]...), rest...)
		return self, nil
	})
	c.AddMethod1("delete", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		a := self.Array()
		kept := a.Elems[:0]
		found := Nil
		for _, e := range a.Elems {
			if Equal(e, arg) {
				found = e
				continue
			}
			kept = append(kept, e)
		}
		clear(a.Elems[len(kept):])
		a.Elems = kept
		return found, nil
	})
	c.AddMethod1("delete_at", func(in *Interpreter, self Value, arg Value) (Value, error) {
		a := self.Array()
		if !arg.IsInt() {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Integer", in.vm.typeName(arg))
		}
		i := arg.Int()
		if i < 0 {
			i += int64(len(a.Elems))
		}
		if i < 0 || i >= int64(len(a.Elems)) {
			return Nil, nil
		}
		v := a.Elems[i]
		a.Elems = append(a.Elems[:i:i], a.Elems[i+1:]...)
		return v, nil
	})
	c.AddMethod0("clear", func(_ *Interpreter, self Value) (Value, error) {
		self.Array().Elems = nil
		return self, nil
	})
	c.AddMethod1("concat", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if arg.kind != KindArray {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Array", in.vm.typeName(arg))
		}
		a := self.Array()
		a.Elems = append(a.Elems, arg.Array().Elems...)
		return self, nil
	})

	// New arrays
	c.AddMethod1("+", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if arg.kind != KindArray {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Array", in.vm.typeName(arg))
		}
		out := append(append([]Value(nil), self.Array().Elems...), arg.Array().Elems...)
		return NewArray(out...), nil
	})
	c.AddMethod1("-", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if arg.kind != KindArray {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Array", in.vm.typeName(arg))
		}
		drop := NewHash()
		for _, e := range arg.Array().Elems {
			drop.Set(e, True)
		}
		var out []Value
		for _, e := range self.Array().Elems {
			if _, ok := drop.Get(e); !ok {
				out = append(out, e)
			}
		}
		return NewArray(out...), nil
	})
	c.AddMethod1("*", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if arg.IsString() {
			return in.joinArray(self, string(arg.Str().B))
		}
		if !arg.IsInt() || arg.Int() < 0 {
			return Nil, in.vm.newError(KindArity, "negative argument")
		}
		var out []Value
		for i := int64(0); i < arg.Int(); i++ {
			out = append(out, self.Array().Elems...)
		}
		return NewArray(out...), nil
	})
	c.AddMethod0("reverse", func(_ *Interpreter, self Value) (Value, error) {
		elems := self.Array().Elems
		out := make([]Value, len(elems))
		for i, e := range elems {
			out[len(elems)-1-i] = e
		}
		return NewArray(out...), nil
	})
	c.AddMethod0("compact", func(_ *Interpreter, self Value) (Value, error) {
		var out []Value
		for _, e := range self.Array().Elems {
			if !e.IsNil() {
				out = append(out, e)
			}
		}
		return NewArray(out...), nil
	})
	c.AddMethodN("flatten", 0, 1, func(_ *Interpreter, self Value, args []Value) (Value, error) {
		depth := -1
		if len(args) == 1 && args[0].IsInt() {
			depth = int(args[0].Int())
		}
		return NewArray(flatten(self.Array().Elems, depth, 0)...), nil
	})
	c.AddMethod0("uniq", func(_ *Interpreter, self Value) (Value, error) {
		seen := NewHash()
		var out []Value
		for _, e := range self.Array().Elems {
			if _, ok := seen.Get(e); !ok {
				seen.Set(e, True)
				out = append(out, e)
			}
		}
		return NewArray(out...), nil
	})
	c.AddMethod0("to_a", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.AddMethod0("to_s", func(in *Interpreter, self Value) (Value, error) {
		s, err := in.Inspect(self)
		return NewString(s), err
	})
	c.VTable.AddMethod("inspect", c.LookupMethod("to_s"))
	c.AddMethod0("hash", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(int64(len(inspectValue(self, true)))), nil
	})
	c.AddMethodN("join", 0, 1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		sep := ""
		if len(args) == 1 && args[0].IsString() {
			sep = string(args[0].Str().B)
		}
		return in.joinArray(self, sep)
	})
	c.AddMethod1("pack", func(in *Interpreter, self Value, format Value) (Value, error) {
		b, err := in.vm.pack(self.Array().Elems, format)
		if err != nil {
			return Nil, err
		}
		return Value{kind: KindString, ref: &Str{B: b}}, nil
	})
	c.AddMethod1("include?", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		for _, e := range self.Array().Elems {
			if Equal(e, arg) {
				return True, nil
			}
		}
		return False, nil
	})
	c.AddBlockMethod("index", 0, 1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		a := self.Array()
		for i := 0; i < len(a.Elems); i++ {
			if len(args) == 1 {
				if Equal(a.Elems[i], args[0]) {
					return Normal(FromInt(int64(i))), nil
				}
				continue
			}
			if blk == nil {
				return Normal(Nil), nil
			}
			r, stop, err := in.Yield(blk, a.Elems[i])
			if stop {
				return r, err
			}
			if r.Value.Truthy() {
				return Normal(FromInt(int64(i))), nil
			}
		}
		return Normal(Nil), nil
	})
	c.AddMethod1("zip", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if arg.kind != KindArray {
			return Nil, in.vm.newError(KindType, "wrong argument type %s (must respond to :each)", in.vm.typeName(arg))
		}
		other := arg.Array()
		out := make([]Value, len(self.Array().Elems))
		for i, e := range self.Array().Elems {
			out[i] = NewArray(e, other.At(int64(i)))
		}
		return NewArray(out...), nil
	})

	// Ordering
	c.AddBlockMethod("sort", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		out := append([]Value(nil), self.Array().Elems...)
		if r, stopped, err := in.sortValues(out, blk, nil); stopped {
			return r, err
		}
		return Normal(NewArray(out...)), nil
	})
	c.AddBlockMethod("sort_by", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		out := append([]Value(nil), self.Array().Elems...)
		keys := make([]Value, len(out))
		for i, e := range out {
			r, stop, err := in.Yield(blk, e)
			if stop {
				return r, err
			}
			keys[i] = r.Value
		}
		if r, stopped, err := in.sortValues(out, nil, keys); stopped {
			return r, err
		}
		return Normal(NewArray(out...)), nil
	})
	extreme := func(name string, want int) {
		c.AddBlockMethod(name, 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
			elems := self.Array().Elems
			if len(elems) == 0 {
				return Normal(Nil), nil
			}
			best := elems[0]
			for _, e := range elems[1:] {
				var cmp int
				if blk != nil {
					r, stop, err := in.Yield(blk, e, best)
					if stop {
						return r, err
					}
					if !r.Value.IsInt() {
						return Result{}, in.vm.newError(KindArity, "comparison of %s with %s failed", in.vm.typeName(e), in.vm.typeName(best))
					}
					cmp = int(r.Value.Int())
				} else {
					var err error
					if cmp, err = in.compareValues(e, best); err != nil {
						return Result{}, err
					}
				}
				if cmp*want > 0 {
					best = e
				}
			}
			return Normal(best), nil
		})
	}
	extreme("min", -1)
	extreme("max", 1)
	c.AddMethodN("sum", 0, 1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		acc := FromInt(0)
		if len(args) == 1 {
			acc = args[0]
		}
		for _, e := range self.Array().Elems {
			v, err := in.Call(acc, "+", e)
			if err != nil {
				return Nil, err
			}
			acc = v
		}
		return acc, nil
	})

	vm.registerArrayIteration(c)
}

func (vm *VM) registerArrayIteration(c *Class) {
	// each and friends read the length on every step so that blocks which
	// push or pop see Ruby's behavior.
	c.AddBlockMethod("each", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		a := self.Array()
		for i := 0; i < len(a.Elems); i++ {
			if r, stop, err := in.Yield(blk, a.Elems[i]); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("each_with_index", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		a := self.Array()
		for i := 0; i < len(a.Elems); i++ {
			if r, stop, err := in.Yield(blk, a.Elems[i], FromInt(int64(i))); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("reverse_each", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		a := self.Array()
		for i := len(a.Elems) - 1; i >= 0; i-- {
			if i >= len(a.Elems) {
				continue
			}
			if r, stop, err := in.Yield(blk, a.Elems[i]); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("map", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		a := self.Array()
		out := make([]Value, 0, len(a.Elems))
		for i := 0; i < len(a.Elems); i++ {
			r, stop, err := in.Yield(blk, a.Elems[i])
			if stop {
				return r, err
			}
			out = append(out, r.Value)
		}
		return Normal(NewArray(out...)), nil
	})
	c.VTable.AddMethod("collect", c.LookupMethod("map"))

	filter := func(name string, keep bool) {
		c.AddBlockMethod(name, 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
			if err := in.vm.needBlock(blk); err != nil {
				return Result{}, err
			}
			a := self.Array()
			var out []Value
			for i := 0; i < len(a.Elems); i++ {
				e := a.Elems[i]
				r, stop, err := in.Yield(blk, e)
				if stop {
					return r, err
				}
				if r.Value.Truthy() == keep {
					out = append(out, e)
				}
			}
			return Normal(NewArray(out...)), nil
		})
	}
	filter("select", true)
	filter("filter", true)
	filter("reject", false)

	c.AddBlockMethod("find", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		a := self.Array()
		for i := 0; i < len(a.Elems); i++ {
			e := a.Elems[i]
			r, stop, err := in.Yield(blk, e)
			if stop {
				return r, err
			}
			if r.Value.Truthy() {
				return Normal(e), nil
			}
		}
		return Normal(Nil), nil
	})
	c.VTable.AddMethod("detect", c.LookupMethod("find"))

	quantifier := func(name string, stopOn bool, found Value) {
		c.AddBlockMethod(name, 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
			a := self.Array()
			for i := 0; i < len(a.Elems); i++ {
				t := a.Elems[i].Truthy()
				if blk != nil {
					r, stop, err := in.Yield(blk, a.Elems[i])
					if stop {
						return r, err
					}
					t = r.Value.Truthy()
				}
				if t == stopOn {
					return Normal(found), nil
				}
			}
			return Normal(FromBool(!found.Truthy())), nil
		})
	}
	quantifier("any?", true, True)
	quantifier("all?", false, False)
	quantifier("none?", true, False)

	c.AddBlockMethod("count", 0, 1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		a := self.Array()
		if len(args) == 0 && blk == nil {
			return Normal(FromInt(int64(len(a.Elems)))), nil
		}
		n := 0
		for i := 0; i < len(a.Elems); i++ {
			if len(args) == 1 {
				if Equal(a.Elems[i], args[0]) {
					n++
				}
				continue
			}
			r, stop, err := in.Yield(blk, a.Elems[i])
			if stop {
				return r, err
			}
			if r.Value.Truthy() {
				n++
			}
		}
		return Normal(FromInt(int64(n))), nil
	})

	c.AddBlockMethod("inject", 0, 2, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		elems := self.Array().Elems
		var acc Value
		op := ""
		switch {
		case len(args) == 2:
			acc = args[0]
			name, err := in.vm.methodName(args[1])
			if err != nil {
				return Result{}, err
			}
			op = name
		case len(args) == 1 && blk == nil:
			name, err := in.vm.methodName(args[0])
			if err != nil {
				return Result{}, err
			}
			op = name
			fallthrough
		case len(args) == 0:
			if len(elems) == 0 {
				return Normal(Nil), nil
			}
			acc, elems = elems[0], elems[1:]
		default:
			acc = args[0]
		}
		if op == "" {
			if err := in.vm.needBlock(blk); err != nil {
				return Result{}, err
			}
		}
		for _, e := range append([]Value(nil), elems...) {
			if op != "" {
				v, err := in.Call(acc, op, e)
				if err != nil {
					return Result{}, err
				}
				acc = v
				continue
			}
			r, stop, err := in.Yield(blk, acc, e)
			if stop {
				return r, err
			}
			acc = r.Value
		}
		return Normal(acc), nil
	})
	c.VTable.AddMethod("reduce", c.LookupMethod("inject"))

	c.AddBlockMethod("each_slice", 1, 1, func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		if !args[0].IsInt() || args[0].Int() <= 0 {
			return Result{}, in.vm.newError(KindArity, "invalid slice size")
		}
		n := int(args[0].Int())
		elems := append([]Value(nil), self.Array().Elems...)
		for i := 0; i < len(elems); i += n {
			end := min(i+n, len(elems))
			if r, stop, err := in.Yield(blk, NewArray(elems[i:end:end]...)); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
}

// count validates a non-negative element count, clamped to n.
func (vm *VM) count(v Value, n int) (int, error) {
	if !v.IsInt() {
		return 0, vm.newError(KindType, "no implicit conversion of %s into Integer", vm.typeName(v))
	}
	if v.Int() < 0 {
		return 0, vm.newError(KindArity, "negative array size")
	}
	return min(int(v.Int()), n), nil
}

func flatten(elems []Value, depth, level int) []Value {
	var out []Value
	for _, e := range elems {
		if e.kind == KindArray && (depth < 0 || level < depth) && level < 64 {
			out = append(out, flatten(e.Array().Elems, depth, level+1)...)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (in *Interpreter) joinArray(self Value, sep string) (Value, error) {
	var sb strings.Builder
	for i, e := range flatten(self.Array().Elems, -1, 0) {
		if i > 0 {
			sb.WriteString(sep)
		}
		s, err := in.ToS(e)
		if err != nil {
			return Nil, err
		}
		sb.WriteString(s)
	}
	return NewString(sb.String()), nil
}

// compareValues orders two values the way sort and min/max do.
func (in *Interpreter) compareValues(a, b Value) (int, error) {
	if c := spaceship(a, b); c.IsInt() {
		return int(c.Int()), nil
	}
	if a.IsString() && b.IsString() {
		return bytes.Compare(a.Str().B, b.Str().B), nil
	}
	if a.kind == KindObject {
		v, err := in.Call(a, "<=>", b)
		if err != nil {
			return 0, err
		}
		if v.IsInt() {
			return int(v.Int()), nil
		}
	}
	if a.IsSymbol() && b.IsSymbol() {
		return strings.Compare(a.Symbol(), b.Symbol()), nil
	}
	return 0, in.vm.newError(KindArity, "comparison of %s with %s failed", in.vm.typeName(a), inspectValue(b, true))
}

// sortValues sorts vals in place, either by blk's verdict, by keys, or by
// compareValues. stopped reports that blk ended the sort early (break,
// return or an error) with r.
func (in *Interpreter) sortValues(vals []Value, blk *Proc, keys []Value) (r Result, stopped bool, err error) {
	var halt *Result
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		if err != nil || halt != nil {
			return false
		}
		a, b := vals[idx[i]], vals[idx[j]]
		if blk != nil {
			res, stop, yerr := in.Yield(blk, a, b)
			if stop {
				if yerr != nil {
					err = yerr
				} else {
					halt = &res
				}
				return false
			}
			if !res.Value.IsInt() {
				err = in.vm.newError(KindArity, "comparison of %s with %s failed", in.vm.typeName(a), in.vm.typeName(b))
				return false
			}
			return res.Value.Int() < 0
		}
		if keys != nil {
			a, b = keys[idx[i]], keys[idx[j]]
		}
		c, cerr := in.compareValues(a, b)
		if cerr != nil {
			err = cerr
			return false
		}
		return c < 0
	})
	switch {
	case err != nil:
		return Result{}, true, err
	case halt != nil:
		return *halt, true, nil
	}
	sorted := make([]Value, len(vals))
	for i, k := range idx {
		sorted[i] = vals[k]
	}
	copy(vals, sorted)
	return Normal(Nil), false, nil
}
