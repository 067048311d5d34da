package vm

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Object: instances of guest classes
// ---------------------------------------------------------------------------

// Object is an instance of a guest class. Instance variables are created
// on first assignment; reading an unset one yields nil.
type Object struct {
	class *Class
	ivars map[string]Value
	order []string // assignment order, for inspect

	// Data carries a native payload for builtin classes such as Time.
	Data any
}

// NewObject allocates an instance of c with no instance variables.
func NewObject(c *Class) *Object {
	return &Object{class: c}
}

// Class returns the object's class.
func (o *Object) Class() *Class { return o.class }

// GetIvar returns the named instance variable, or nil when unset.
func (o *Object) GetIvar(name string) Value {
	if v, ok := o.ivars[name]; ok {
		return v
	}
	return Nil
}

// SetIvar assigns an instance variable.
func (o *Object) SetIvar(name string, v Value) {
	if o.ivars == nil {
		o.ivars = make(map[string]Value)
	}
	if _, ok := o.ivars[name]; !ok {
		o.order = append(o.order, name)
	}
	o.ivars[name] = v
}

// IvarNames returns the names of assigned instance variables in assignment
// order.
func (o *Object) IvarNames() []string {
	return append([]string(nil), o.order...)
}

// ---------------------------------------------------------------------------
// Builtin heap values
// ---------------------------------------------------------------------------

// Str is a mutable byte string. Strings are binary-safe so that pack
// results and shared-memory slices round-trip unchanged.
type Str struct {
	B []byte
}

// Array is a growable sequence of values.
type Array struct {
	Elems []Value
}

// At returns the element at index i, counting from the end when negative.
func (a *Array) At(i int64) Value {
	n := int64(len(a.Elems))
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return Nil
	}
	return a.Elems[i]
}

// Set assigns index i, growing the array with nils when i is past the end.
func (a *Array) Set(i int64, v Value) bool {
	n := int64(len(a.Elems))
	if i < 0 {
		i += n
		if i < 0 {
			return false
		}
	}
	for int64(len(a.Elems)) <= i {
		a.Elems = append(a.Elems, Nil)
	}
	a.Elems[i] = v
	return true
}

// Hash is an insertion-ordered map.
type Hash struct {
	keys  []Value
	vals  []Value
	index map[hashKey]int

	// Default is returned by [] for missing keys.
	Default Value
}

// NewHash allocates an empty hash.
func NewHash() *Hash {
	return &Hash{index: make(map[hashKey]int)}
}

// Len returns the number of entries.
func (h *Hash) Len() int { return len(h.keys) }

// Get looks up a key.
func (h *Hash) Get(k Value) (Value, bool) {
	if i, ok := h.index[keyOf(k)]; ok {
		return h.vals[i], true
	}
	return Nil, false
}

// Set inserts or replaces a key. String keys are copied so later mutation
// of the caller's string does not corrupt the table.
func (h *Hash) Set(k, v Value) {
	hk := keyOf(k)
	if i, ok := h.index[hk]; ok {
		h.vals[i] = v
		return
	}
	if k.kind == KindString {
		k = FromBytes(k.Str().B)
	}
	h.index[hk] = len(h.keys)
	h.keys = append(h.keys, k)
	h.vals = append(h.vals, v)
}

// Delete removes a key, returning its value.
func (h *Hash) Delete(k Value) (Value, bool) {
	hk := keyOf(k)
	i, ok := h.index[hk]
	if !ok {
		return Nil, false
	}
	v := h.vals[i]
	h.keys = append(h.keys[:i], h.keys[i+1:]...)
	h.vals = append(h.vals[:i], h.vals[i+1:]...)
	delete(h.index, hk)
	for j := i; j < len(h.keys); j++ {
		h.index[keyOf(h.keys[j])] = j
	}
	return v, true
}

// Keys returns a copy of the keys in insertion order.
func (h *Hash) Keys() []Value { return append([]Value(nil), h.keys...) }

// Values returns a copy of the values in insertion order.
func (h *Hash) Values() []Value { return append([]Value(nil), h.vals...) }

// Range is an integer (or general comparable) interval.
type Range struct {
	First     Value
	Last      Value
	Exclusive bool
}

// IntBounds returns the inclusive integer bounds of an integer range.
func (r *Range) IntBounds() (lo, hi int64, ok bool) {
	if !r.First.IsInt() || !r.Last.IsInt() {
		return 0, 0, false
	}
	lo, hi = r.First.Int(), r.Last.Int()
	if r.Exclusive {
		hi--
	}
	return lo, hi, true
}

// Covers reports whether v lies inside the range, comparing numerically.
func (r *Range) Covers(v Value) bool {
	if !v.IsNumeric() || !r.First.IsNumeric() || !r.Last.IsNumeric() {
		return false
	}
	x := v.Number()
	if x < r.First.Number() {
		return false
	}
	if r.Exclusive {
		return x < r.Last.Number()
	}
	return x <= r.Last.Number()
}

// Exception is a raised guest error.
type Exception struct {
	class     *Class
	Message   string
	Backtrace []string
}

// Class returns the exception's class.
func (e *Exception) Class() *Class { return e.class }

// BoundMethod is a method detached from a send site together with its
// receiver, the value produced by Object#method.
type BoundMethod struct {
	Receiver Value
	Method   Method
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".eEIN") {
		return s
	}
	return s + ".0"
}

// inspectValue renders builtin kinds. With quote set strings are quoted
// (inspect/p); otherwise they are emitted raw (to_s/puts).
func inspectValue(v Value, quote bool) string {
	switch v.kind {
	case KindNil:
		if quote {
			return "nil"
		}
		return ""
	case KindTrue:
		return "true"
	case KindFalse:
		return "false"
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindFloat:
		return formatFloat(v.Float())
	case KindSymbol:
		if quote {
			return ":" + v.sym
		}
		return v.sym
	case KindString:
		if quote {
			return strconv.Quote(string(v.Str().B))
		}
		return string(v.Str().B)
	case KindArray:
		parts := make([]string, len(v.Array().Elems))
		for i, e := range v.Array().Elems {
			parts[i] = inspectValue(e, true)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindHash:
		h := v.Hash()
		parts := make([]string, len(h.keys))
		for i := range h.keys {
			parts[i] = inspectValue(h.keys[i], true) + " => " + inspectValue(h.vals[i], true)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindRange:
		r := v.Range()
		sep := ".."
		if r.Exclusive {
			sep = "..."
		}
		return inspectValue(r.First, true) + sep + inspectValue(r.Last, true)
	case KindObject:
		o := v.Object()
		var sb strings.Builder
		sb.WriteString("#<")
		sb.WriteString(o.class.Name)
		if quote {
			for i, n := range o.order {
				if i == 0 {
					sb.WriteByte(' ')
				} else {
					sb.WriteString(", ")
				}
				sb.WriteString(n)
				sb.WriteByte('=')
				sb.WriteString(inspectValue(o.ivars[n], true))
			}
		}
		sb.WriteByte('>')
		return sb.String()
	case KindClass:
		return v.Class().Name
	case KindProc:
		if v.Proc().Lambda {
			return "#<Proc (lambda)>"
		}
		return "#<Proc>"
	case KindMethod:
		return "#<Method: " + v.Method().Method.Name() + ">"
	case KindException:
		e := v.Exception()
		if quote {
			return "#<" + e.class.Name + ": " + e.Message + ">"
		}
		return e.Message
	case KindMemory:
		return "#<SharedMemory size=" + strconv.Itoa(v.Memory().Size()) + ">"
	}
	return "#<undefined>"
}
