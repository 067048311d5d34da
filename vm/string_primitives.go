package vm

import (
	"bytes"
	"hash/fnv"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// String Primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerStringPrimitives() {
	c := vm.StringClass

	c.AddMethod1("+", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if !arg.IsString() {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into String", in.vm.typeName(arg))
		}
		b := make([]byte, 0, len(self.Str().B)+len(arg.Str().B))
		b = append(append(b, self.Str().B...), arg.Str().B...)
		return Value{kind: KindString, ref: &Str{B: b}}, nil
	})
	c.AddMethod1("*", func(in *Interpreter, self Value, arg Value) (Value, error) {
		if !arg.IsInt() || arg.Int() < 0 {
			return Nil, in.vm.newError(KindArity, "negative argument")
		}
		return FromBytes(bytes.Repeat(self.Str().B, int(arg.Int()))), nil
	})
	c.AddMethod1("<<", func(in *Interpreter, self Value, arg Value) (Value, error) {
		s := self.Str()
		switch {
		case arg.IsString():
			s.B = append(s.B, arg.Str().B...)
		case arg.IsInt() && arg.Int() >= 0 && arg.Int() < 256:
			s.B = append(s.B, byte(arg.Int()))
		default:
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into String", in.vm.typeName(arg))
		}
		return self, nil
	})
	c.VTable.AddMethod("concat", c.LookupMethod("<<"))
	c.AddMethod1("<=>", func(_ *Interpreter, self Value, arg Value) (Value, error) {
		if !arg.IsString() {
			return Nil, nil
		}
		return FromInt(int64(bytes.Compare(self.Str().B, arg.Str().B))), nil
	})
	for _, op := range []Opcode{OpLT, OpGT, OpLE, OpGE} {
		op := op
		c.AddMethod1(fastPathSelectors[op], func(in *Interpreter, self Value, arg Value) (Value, error) {
			if !arg.IsString() {
				return Nil, in.vm.newError(KindArity, "comparison of String with %s failed", in.vm.typeName(arg))
			}
			return FromBool(compareOp(op, bytes.Compare(self.Str().B, arg.Str().B))), nil
		})
	}
	c.AddMethod0("hash", func(_ *Interpreter, self Value) (Value, error) {
		h := fnv.New64a()
		h.Write(self.Str().B)
		return FromInt(int64(h.Sum64() >> 1)), nil
	})

	// Size and conversion
	c.AddMethod0("size", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(int64(len(self.Str().B))), nil
	})
	c.VTable.AddMethod("length", c.LookupMethod("size"))
	c.VTable.AddMethod("bytesize", c.LookupMethod("size"))
	c.AddMethod0("empty?", func(_ *Interpreter, self Value) (Value, error) {
		return FromBool(len(self.Str().B) == 0), nil
	})
	c.AddMethod0("to_s", func(_ *Interpreter, self Value) (Value, error) { return self, nil })
	c.VTable.AddMethod("to_str", c.LookupMethod("to_s"))
	c.AddMethod0("to_sym", func(_ *Interpreter, self Value) (Value, error) {
		return Sym(string(self.Str().B)), nil
	})
	c.VTable.AddMethod("intern", c.LookupMethod("to_sym"))
	c.AddMethodN("to_i", 0, 1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		base := int64(10)
		if len(args) == 1 {
			if !args[0].IsInt() || args[0].Int() < 2 || args[0].Int() > 36 {
				return Nil, in.vm.newError(KindArity, "invalid radix %s", inspectValue(args[0], true))
			}
			base = args[0].Int()
		}
		return FromInt(parseInteger(string(self.Str().B), int(base))), nil
	})
	c.AddMethod0("to_f", func(_ *Interpreter, self Value) (Value, error) {
		return FromFloat(parseFloatPrefix(string(self.Str().B))), nil
	})
	c.AddMethod0("inspect", func(_ *Interpreter, self Value) (Value, error) {
		return NewString(inspectValue(self, true)), nil
	})
	c.AddMethod1("unpack", func(in *Interpreter, self Value, format Value) (Value, error) {
		return in.vm.unpack(self.Str().B, format)
	})
	c.AddMethod1("unpack1", func(in *Interpreter, self Value, format Value) (Value, error) {
		v, err := in.vm.unpack(self.Str().B, format)
		if err != nil {
			return Nil, err
		}
		return v.Array().At(0), nil
	})
	c.AddMethod0("bytes", func(_ *Interpreter, self Value) (Value, error) {
		b := self.Str().B
		out := make([]Value, len(b))
		for i, x := range b {
			out[i] = FromInt(int64(x))
		}
		return NewArray(out...), nil
	})
	c.AddMethod0("chars", func(_ *Interpreter, self Value) (Value, error) {
		return NewArray(stringChars(self)...), nil
	})
	c.AddMethod0("ord", func(in *Interpreter, self Value) (Value, error) {
		b := self.Str().B
		if len(b) == 0 {
			return Nil, in.vm.newError(KindArity, "empty string")
		}
		return FromInt(int64(b[0])), nil
	})

	// Indexing
	c.AddMethodN("[]", 1, 2, func(in *Interpreter, self Value, args []Value) (Value, error) {
		b := self.Str().B
		start, n, ok, err := in.vm.sliceBounds(len(b), args)
		if err != nil || !ok {
			return Nil, err
		}
		return FromBytes(b[start : start+n]), nil
	})
	c.VTable.AddMethod("slice", c.LookupMethod("[]"))
	c.AddMethodN("[]=", 2, 3, func(in *Interpreter, self Value, args []Value) (Value, error) {
		s := self.Str()
		v := args[len(args)-1]
		if !v.IsString() {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into String", in.vm.typeName(v))
		}
		start, n, ok, err := in.vm.sliceBounds(len(s.B), args[:len(args)-1])
		if err != nil {
			return Nil, err
		}
		if !ok {
			return Nil, in.vm.newError(KindOutOfBounds, "index %s out of string", inspectValue(args[0], true))
		}
		out := append([]byte(nil), s.B[:start]...)
		out = append(out, v.Str().B...)
		s.B = append(out, s.B[start+n:]...)
		return v, nil
	})

	// Transformation
	mapStr := func(name string, fn func(string) string) {
		c.AddMethod0(name, func(_ *Interpreter, self Value) (Value, error) {
			return NewString(fn(string(self.Str().B))), nil
		})
	}
	mapStr("upcase", strings.ToUpper)
	mapStr("downcase", strings.ToLower)
	mapStr("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	})
	mapStr("swapcase", func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z':
				return r - 32
			case r >= 'A' && r <= 'Z':
				return r + 32
			}
			return r
		}, s)
	})
	mapStr("reverse", func(s string) string {
		b := []byte(s)
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
		return string(b)
	})
	mapStr("strip", strings.TrimSpace)
	mapStr("lstrip", func(s string) string { return strings.TrimLeft(s, " \t\n\v\f\r\x00") })
	mapStr("rstrip", func(s string) string { return strings.TrimRight(s, " \t\n\v\f\r\x00") })
	mapStr("chomp", func(s string) string {
		s = strings.TrimSuffix(s, "\n")
		return strings.TrimSuffix(s, "\r")
	})

	// Queries
	strArg := func(name string, fn func(s, arg string) Value) {
		c.AddMethod1(name, func(in *Interpreter, self Value, arg Value) (Value, error) {
			if !arg.IsString() {
				return Nil, in.vm.newError(KindType, "no implicit conversion of %s into String", in.vm.typeName(arg))
			}
			return fn(string(self.Str().B), string(arg.Str().B)), nil
		})
	}
	strArg("include?", func(s, a string) Value { return FromBool(strings.Contains(s, a)) })
	strArg("start_with?", func(s, a string) Value { return FromBool(strings.HasPrefix(s, a)) })
	strArg("end_with?", func(s, a string) Value { return FromBool(strings.HasSuffix(s, a)) })
	strArg("index", func(s, a string) Value {
		if i := strings.Index(s, a); i >= 0 {
			return FromInt(int64(i))
		}
		return Nil
	})
	strArg("count", func(s, a string) Value {
		n := 0
		for i := 0; i < len(s); i++ {
			if strings.IndexByte(a, s[i]) >= 0 {
				n++
			}
		}
		return FromInt(int64(n))
	})
	c.AddMethodN("split", 0, 1, func(in *Interpreter, self Value, args []Value) (Value, error) {
		s := string(self.Str().B)
		var parts []string
		if len(args) == 0 || (args[0].IsString() && string(args[0].Str().B) == " ") {
			parts = strings.Fields(s)
		} else if args[0].IsString() {
			parts = strings.Split(s, string(args[0].Str().B))
			for len(parts) > 0 && parts[len(parts)-1] == "" {
				parts = parts[:len(parts)-1]
			}
		} else {
			return Nil, in.vm.newError(KindType, "wrong argument type %s (expected String)", in.vm.typeName(args[0]))
		}
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = NewString(p)
		}
		return NewArray(out...), nil
	})
	c.AddMethod2("sub", func(in *Interpreter, self Value, pat, rep Value) (Value, error) {
		if !pat.IsString() || !rep.IsString() {
			return Nil, in.vm.newError(KindType, "sub expects string arguments")
		}
		return NewString(strings.Replace(string(self.Str().B), string(pat.Str().B), string(rep.Str().B), 1)), nil
	})
	c.AddMethod2("gsub", func(in *Interpreter, self Value, pat, rep Value) (Value, error) {
		if !pat.IsString() || !rep.IsString() {
			return Nil, in.vm.newError(KindType, "gsub expects string arguments")
		}
		return NewString(strings.ReplaceAll(string(self.Str().B), string(pat.Str().B), string(rep.Str().B))), nil
	})
	pad := func(name string, fn func(s string, n int, p string) string) {
		c.AddMethodN(name, 1, 2, func(in *Interpreter, self Value, args []Value) (Value, error) {
			if !args[0].IsInt() {
				return Nil, in.vm.newError(KindType, "no implicit conversion into Integer")
			}
			p := " "
			if len(args) == 2 && args[1].IsString() && len(args[1].Str().B) > 0 {
				p = string(args[1].Str().B)
			}
			return NewString(fn(string(self.Str().B), int(args[0].Int()), p)), nil
		})
	}
	pad("ljust", func(s string, n int, p string) string { return s + padding(n-len(s), p) })
	pad("rjust", func(s string, n int, p string) string { return padding(n-len(s), p) + s })
	pad("center", func(s string, n int, p string) string {
		total := n - len(s)
		left := total / 2
		return padding(left, p) + s + padding(total-left, p)
	})

	// Iteration
	c.AddBlockMethod("each_char", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		for _, ch := range stringChars(self) {
			if r, stop, err := in.Yield(blk, ch); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
	c.AddBlockMethod("each_byte", 0, 0, func(in *Interpreter, self Value, _ []Value, blk *Proc) (Result, error) {
		if err := in.vm.needBlock(blk); err != nil {
			return Result{}, err
		}
		b := append([]byte(nil), self.Str().B...)
		for _, x := range b {
			if r, stop, err := in.Yield(blk, FromInt(int64(x))); stop {
				return r, err
			}
		}
		return Normal(self), nil
	})
}

func stringChars(s Value) []Value {
	str := string(s.Str().B)
	out := make([]Value, 0, len(str))
	for _, r := range str {
		out = append(out, NewString(string(r)))
	}
	return out
}

func padding(n int, p string) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(p, n/len(p)+1)[:n]
}

// parseFloatPrefix implements String#to_f: the longest numeric prefix.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimSpace(s)
	for end := len(s); end > 0; end-- {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f
		}
	}
	return 0
}

// sliceBounds resolves an index argument list (index, start+length, or
// range) against a sequence of length n. ok is false when the index
// falls outside the sequence.
func (vm *VM) sliceBounds(n int, args []Value) (start, length int, ok bool, err error) {
	norm := func(i int64) int64 {
		if i < 0 {
			i += int64(n)
		}
		return i
	}
	switch {
	case len(args) == 2:
		if !args[0].IsInt() || !args[1].IsInt() {
			return 0, 0, false, vm.newError(KindType, "no implicit conversion into Integer")
		}
		s, l := norm(args[0].Int()), args[1].Int()
		if s < 0 || s > int64(n) || l < 0 {
			return 0, 0, false, nil
		}
		if s+l > int64(n) {
			l = int64(n) - s
		}
		return int(s), int(l), true, nil
	case args[0].IsInt():
		i := norm(args[0].Int())
		if i < 0 || i >= int64(n) {
			return 0, 0, false, nil
		}
		return int(i), 1, true, nil
	case args[0].kind == KindRange:
		r := args[0].Range()
		if !r.First.IsInt() || !r.Last.IsInt() {
			return 0, 0, false, vm.newError(KindType, "range bounds must be integers")
		}
		s, e := norm(r.First.Int()), norm(r.Last.Int())
		if r.Exclusive {
			e--
		}
		if s < 0 || s > int64(n) {
			return 0, 0, false, nil
		}
		if e >= int64(n) {
			e = int64(n) - 1
		}
		l := e - s + 1
		if l < 0 {
			l = 0
		}
		return int(s), int(l), true, nil
	}
	return 0, 0, false, vm.newError(KindType, "no implicit conversion of %s into Integer", vm.typeName(args[0]))
}

// typeName names v's class for conversion errors, using "nil" for nil.
func (vm *VM) typeName(v Value) string {
	if v.IsNil() {
		return "nil"
	}
	return vm.ClassOf(v).Name
}
