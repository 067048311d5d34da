package vm

import (
	"fmt"
	"math"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNil Kind = iota
	KindFalse
	KindTrue
	KindInt
	KindFloat
	KindSymbol
	KindString
	KindArray
	KindHash
	KindRange
	KindObject
	KindClass
	KindProc
	KindMethod
	KindException
	KindMemory

	// kindUndef marks a local slot that has never been assigned. It never
	// escapes a frame: reading it raises UndefinedVariable.
	kindUndef
)

var kindNames = [...]string{
	KindNil:       "nil",
	KindFalse:     "false",
	KindTrue:      "true",
	KindInt:       "integer",
	KindFloat:     "float",
	KindSymbol:    "symbol",
	KindString:    "string",
	KindArray:     "array",
	KindHash:      "hash",
	KindRange:     "range",
	KindObject:    "object",
	KindClass:     "class",
	KindProc:      "proc",
	KindMethod:    "method",
	KindException: "exception",
	KindMemory:    "shared memory",
	kindUndef:     "undefined",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is a tagged union over the guest language's values.
//
// Immediates (nil, booleans, integers, floats, symbols) live in bits/sym;
// heap values live in ref. Two Values compare equal with == exactly when
// they are identical in the Ruby sense (equal? semantics).
type Value struct {
	kind Kind
	bits uint64
	sym  string
	ref  any
}

// Pre-defined immediates.
var (
	Nil   = Value{kind: KindNil}
	True  = Value{kind: KindTrue}
	False = Value{kind: KindFalse}

	undef = Value{kind: kindUndef}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromInt returns an integer Value.
func FromInt(n int64) Value {
	return Value{kind: KindInt, bits: uint64(n)}
}

// FromFloat returns a float Value.
func FromFloat(f float64) Value {
	return Value{kind: KindFloat, bits: math.Float64bits(f)}
}

// FromBool maps a Go bool onto true/false.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Sym returns the symbol with the given name.
func Sym(name string) Value {
	return Value{kind: KindSymbol, sym: name}
}

// NewString allocates a fresh mutable string.
func NewString(s string) Value {
	return Value{kind: KindString, ref: &Str{B: []byte(s)}}
}

// FromBytes allocates a fresh string holding a copy of b.
func FromBytes(b []byte) Value {
	return Value{kind: KindString, ref: &Str{B: append([]byte(nil), b...)}}
}

// NewArray allocates an array holding elems. The slice is not copied.
func NewArray(elems ...Value) Value {
	return Value{kind: KindArray, ref: &Array{Elems: elems}}
}

// FromArray wraps an existing array.
func FromArray(a *Array) Value {
	return Value{kind: KindArray, ref: a}
}

// FromHash wraps an existing hash.
func FromHash(h *Hash) Value {
	return Value{kind: KindHash, ref: h}
}

// NewRange allocates a range.
func NewRange(first, last Value, exclusive bool) Value {
	return Value{kind: KindRange, ref: &Range{First: first, Last: last, Exclusive: exclusive}}
}

// FromObject wraps an object reference.
func FromObject(o *Object) Value {
	return Value{kind: KindObject, ref: o}
}

// FromClass wraps a class reference.
func FromClass(c *Class) Value {
	return Value{kind: KindClass, ref: c}
}

// FromProc wraps a closure reference.
func FromProc(p *Proc) Value {
	return Value{kind: KindProc, ref: p}
}

// FromMethod wraps a bound native or compiled method.
func FromMethod(m *BoundMethod) Value {
	return Value{kind: KindMethod, ref: m}
}

// FromException wraps a guest exception.
func FromException(e *Exception) Value {
	return Value{kind: KindException, ref: e}
}

// FromMemory wraps a shared-memory buffer.
func FromMemory(m *SharedMemory) Value {
	return Value{kind: KindMemory, ref: m}
}

// ---------------------------------------------------------------------------
// Predicates and accessors
// ---------------------------------------------------------------------------

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Truthy reports whether v counts as true in a condition. Only nil and
// false are falsy.
func (v Value) Truthy() bool {
	return v.kind != KindNil && v.kind != KindFalse
}

func (v Value) IsNil() bool    { return v.kind == KindNil }
func (v Value) IsInt() bool    { return v.kind == KindInt }
func (v Value) IsFloat() bool  { return v.kind == KindFloat }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) IsSymbol() bool { return v.kind == KindSymbol }
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// Int returns the integer payload. The result is meaningless unless IsInt.
func (v Value) Int() int64 { return int64(v.bits) }

// Float returns the float payload. The result is meaningless unless IsFloat.
func (v Value) Float() float64 { return math.Float64frombits(v.bits) }

// Number returns v as a float64 for either numeric kind.
func (v Value) Number() float64 {
	if v.kind == KindInt {
		return float64(v.Int())
	}
	return v.Float()
}

// Symbol returns the symbol name.
func (v Value) Symbol() string { return v.sym }

func (v Value) Str() *Str             { s, _ := v.ref.(*Str); return s }
func (v Value) Array() *Array         { a, _ := v.ref.(*Array); return a }
func (v Value) Hash() *Hash           { h, _ := v.ref.(*Hash); return h }
func (v Value) Range() *Range         { r, _ := v.ref.(*Range); return r }
func (v Value) Object() *Object       { o, _ := v.ref.(*Object); return o }
func (v Value) Class() *Class         { c, _ := v.ref.(*Class); return c }
func (v Value) Proc() *Proc           { p, _ := v.ref.(*Proc); return p }
func (v Value) Method() *BoundMethod  { m, _ := v.ref.(*BoundMethod); return m }
func (v Value) Exception() *Exception { e, _ := v.ref.(*Exception); return e }
func (v Value) Memory() *SharedMemory { m, _ := v.ref.(*SharedMemory); return m }

// GoString returns the string payload as a Go string, or "" when v is not
// a string.
func (v Value) GoString() string {
	if s := v.Str(); s != nil {
		return string(s.B)
	}
	return ""
}

// String renders the value the way to_s would for builtin kinds. It is a
// debugging aid; guest code goes through Interpreter.ToS so user-defined
// to_s methods are honored.
func (v Value) String() string {
	return inspectValue(v, false)
}

// ---------------------------------------------------------------------------
// Equality and hashing
// ---------------------------------------------------------------------------

// Equal implements == for builtin kinds: numeric comparison across int and
// float, content comparison for strings, element-wise for arrays and
// hashes, and identity for everything else.
func Equal(a, b Value) bool {
	switch {
	case a.IsNumeric() && b.IsNumeric():
		if a.kind == KindInt && b.kind == KindInt {
			return a.Int() == b.Int()
		}
		return a.Number() == b.Number()
	case a.kind != b.kind:
		return false
	}
	switch a.kind {
	case KindString:
		return string(a.Str().B) == string(b.Str().B)
	case KindArray:
		x, y := a.Array().Elems, b.Array().Elems
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case KindHash:
		x, y := a.Hash(), b.Hash()
		if x.Len() != y.Len() {
			return false
		}
		for i, k := range x.keys {
			w, ok := y.Get(k)
			if !ok || !Equal(x.vals[i], w) {
				return false
			}
		}
		return true
	case KindRange:
		x, y := a.Range(), b.Range()
		return x.Exclusive == y.Exclusive && Equal(x.First, y.First) && Equal(x.Last, y.Last)
	}
	return a == b
}

// hashKey is the Go map key a Value hashes to. Ints and floats are distinct
// keys (eql? semantics); strings hash by content.
type hashKey struct {
	kind Kind
	bits uint64
	s    string
	ref  any
}

func keyOf(v Value) hashKey {
	switch v.kind {
	case KindString:
		return hashKey{kind: KindString, s: string(v.Str().B)}
	case KindArray:
		return hashKey{kind: KindArray, s: inspectValue(v, true)}
	}
	return hashKey{kind: v.kind, bits: v.bits, s: v.sym, ref: v.ref}
}
