package vm

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Pack layouts: Array#pack, String#unpack and the SharedMemory views
// ---------------------------------------------------------------------------

// Layout is a parsed pack template: a sequence of fixed-width integer
// fields, each with a signedness and byte order. Native order is little
// endian.
type Layout struct {
	format string
	fields []packField
}

type packField struct {
	code   byte
	size   int
	signed bool
	order  byteOrder
	rest   bool // '*': repeat until the input runs out
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

var packCodes = map[byte]packField{
	'C': {size: 1},
	'c': {size: 1, signed: true},
	'S': {size: 2},
	's': {size: 2, signed: true},
	'L': {size: 4},
	'l': {size: 4, signed: true},
	'I': {size: 4},
	'i': {size: 4, signed: true},
	'Q': {size: 8},
	'q': {size: 8, signed: true},
	'n': {size: 2, order: binary.BigEndian},
	'N': {size: 4, order: binary.BigEndian},
	'v': {size: 2, order: binary.LittleEndian},
	'V': {size: 4, order: binary.LittleEndian},
	'x': {size: 1},
}

// ParseLayout parses a pack template such as "S S S S C C C" or "L>2 c*".
func ParseLayout(format string) (*Layout, error) {
	l := &Layout{format: format}
	for i := 0; i < len(format); {
		ch := format[i]
		i++
		if ch == ' ' || ch == '\t' || ch == '\n' {
			continue
		}
		proto, ok := packCodes[ch]
		if !ok {
			return nil, fmt.Errorf("unknown pack directive '%c' in '%s'", ch, format)
		}
		f := proto
		f.code = ch
		if f.order == nil {
			f.order = binary.LittleEndian
		}
	modifiers:
		for i < len(format) {
			switch format[i] {
			case '<', '>':
				if ch == 'n' || ch == 'N' || ch == 'v' || ch == 'V' || f.size == 1 {
					return nil, fmt.Errorf("'%c' allowed only after types sSiIlLqQ", format[i])
				}
				if format[i] == '>' {
					f.order = binary.BigEndian
				} else {
					f.order = binary.LittleEndian
				}
			case '_', '!':
			default:
				break modifiers
			}
			i++
		}
		n := 1
		switch {
		case i < len(format) && format[i] == '*':
			f.rest = true
			i++
		case i < len(format) && format[i] >= '0' && format[i] <= '9':
			j := i
			for j < len(format) && format[j] >= '0' && format[j] <= '9' {
				j++
			}
			n, _ = strconv.Atoi(format[i:j])
			i = j
		}
		if f.rest {
			l.fields = append(l.fields, f)
			continue
		}
		for ; n > 0; n-- {
			l.fields = append(l.fields, f)
		}
	}
	return l, nil
}

// MustParseLayout is ParseLayout for templates known to be valid.
func MustParseLayout(format string) *Layout {
	l, err := ParseLayout(format)
	if err != nil {
		panic(err)
	}
	return l
}

// String returns the template the layout was parsed from.
func (l *Layout) String() string { return l.format }

// Size returns the encoded width in bytes, or -1 when the layout has a
// '*' field and so no fixed width.
func (l *Layout) Size() int {
	n := 0
	for _, f := range l.fields {
		if f.rest {
			return -1
		}
		n += f.size
	}
	return n
}

// Encode packs vals. Fields with '*' consume the remaining values; 'x'
// writes a zero byte and consumes nothing. Values wider than their field
// are truncated to the field's low bytes.
func (l *Layout) Encode(vals []int64) ([]byte, error) {
	var out []byte
	idx := 0
	for _, f := range l.fields {
		if f.code == 'x' {
			out = append(out, 0)
			continue
		}
		if f.rest {
			for ; idx < len(vals); idx++ {
				out = f.put(out, vals[idx])
			}
			continue
		}
		if idx >= len(vals) {
			return nil, fmt.Errorf("too few arguments for '%s'", l.format)
		}
		out = f.put(out, vals[idx])
		idx++
	}
	return out, nil
}

// Decode unpacks data. Fields past the end of data decode to ok=false
// (nil in guest terms); '*' fields consume every complete value left.
func (l *Layout) Decode(data []byte) (vals []int64, ok []bool) {
	pos := 0
	emit := func(v int64, present bool) {
		vals = append(vals, v)
		ok = append(ok, present)
	}
	for _, f := range l.fields {
		if f.code == 'x' {
			pos++
			continue
		}
		if f.rest {
			for pos+f.size <= len(data) {
				emit(f.get(data[pos:]), true)
				pos += f.size
			}
			continue
		}
		if pos+f.size > len(data) {
			emit(0, false)
			pos = len(data)
			continue
		}
		emit(f.get(data[pos:]), true)
		pos += f.size
	}
	return vals, ok
}

func (f packField) put(out []byte, v int64) []byte {
	switch f.size {
	case 1:
		return append(out, byte(v))
	case 2:
		return f.order.AppendUint16(out, uint16(v))
	case 4:
		return f.order.AppendUint32(out, uint32(v))
	}
	return f.order.AppendUint64(out, uint64(v))
}

func (f packField) get(b []byte) int64 {
	switch f.size {
	case 1:
		if f.signed {
			return int64(int8(b[0]))
		}
		return int64(b[0])
	case 2:
		u := f.order.Uint16(b)
		if f.signed {
			return int64(int16(u))
		}
		return int64(u)
	case 4:
		u := f.order.Uint32(b)
		if f.signed {
			return int64(int32(u))
		}
		return int64(u)
	}
	return int64(f.order.Uint64(b))
}

// ---------------------------------------------------------------------------
// Guest-facing wrappers
// ---------------------------------------------------------------------------

func (vm *VM) layout(format Value) (*Layout, error) {
	if !format.IsString() {
		return nil, vm.newError(KindType, "no implicit conversion of %s into String", vm.ClassOf(format).Name)
	}
	l, err := ParseLayout(string(format.Str().B))
	if err != nil {
		return nil, vm.newError(KindArity, "%s", err.Error())
	}
	return l, nil
}

// pack implements Array#pack.
func (vm *VM) pack(elems []Value, format Value) ([]byte, error) {
	l, err := vm.layout(format)
	if err != nil {
		return nil, err
	}
	ints := make([]int64, len(elems))
	for i, e := range elems {
		switch e.kind {
		case KindInt:
			ints[i] = e.Int()
		case KindFloat:
			ints[i] = int64(e.Float())
		default:
			name := vm.ClassOf(e).Name
			if e.IsNil() {
				name = "nil"
			}
			return nil, vm.newError(KindType, "no implicit conversion of %s into Integer", name)
		}
	}
	b, err := l.Encode(ints)
	if err != nil {
		return nil, vm.newError(KindArity, "%s", err.Error())
	}
	return b, nil
}

// unpack implements String#unpack.
func (vm *VM) unpack(data []byte, format Value) (Value, error) {
	l, err := vm.layout(format)
	if err != nil {
		return Nil, err
	}
	return decodedArray(l.Decode(data)), nil
}

func decodedArray(vals []int64, ok []bool) Value {
	out := make([]Value, len(vals))
	for i, v := range vals {
		if ok[i] {
			out[i] = FromInt(v)
		}
	}
	return NewArray(out...)
}
