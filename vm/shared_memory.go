package vm

import "fmt"

// ---------------------------------------------------------------------------
// SharedMemory: the host/guest message buffer
// ---------------------------------------------------------------------------

// SharedMemory is a fixed-capacity byte buffer shared between a guest
// script and its host. Reads and writes are bounds-checked and act on the
// buffer in place. It is not safe for concurrent use.
type SharedMemory struct {
	buf []byte
}

// NewSharedMemory allocates a zeroed buffer of size bytes.
func NewSharedMemory(size int) *SharedMemory {
	return &SharedMemory{buf: make([]byte, size)}
}

// Size returns the capacity in bytes.
func (m *SharedMemory) Size() int { return len(m.buf) }

// Bytes returns the live buffer. Writes through it are visible to the
// guest.
func (m *SharedMemory) Bytes() []byte { return m.buf }

func (m *SharedMemory) check(start, end int) error {
	if start < 0 || end < start || end > len(m.buf) {
		return &Error{Kind: KindOutOfBounds, Message: fmt.Sprintf("range %d...%d outside shared memory of %d bytes", start, end, len(m.buf))}
	}
	return nil
}

// ReadRange copies out bytes [start, end).
func (m *SharedMemory) ReadRange(start, end int) ([]byte, error) {
	if err := m.check(start, end); err != nil {
		return nil, err
	}
	return append([]byte(nil), m.buf[start:end]...), nil
}

// WriteRange copies data into [start, end). data may be shorter than the
// range, in which case only len(data) bytes are written; longer data is
// an error.
func (m *SharedMemory) WriteRange(start, end int, data []byte) error {
	if err := m.check(start, end); err != nil {
		return err
	}
	if len(data) > end-start {
		return &Error{Kind: KindOutOfBounds, Message: fmt.Sprintf("%d bytes do not fit in range %d...%d", len(data), start, end)}
	}
	copy(m.buf[start:], data)
	return nil
}

// ReadAt copies n bytes starting at offset.
func (m *SharedMemory) ReadAt(offset, n int) ([]byte, error) {
	return m.ReadRange(offset, offset+n)
}

// WriteAt copies data to offset.
func (m *SharedMemory) WriteAt(offset int, data []byte) error {
	return m.WriteRange(offset, offset+len(data), data)
}

// Unpack decodes a fixed-width layout at offset.
func (m *SharedMemory) Unpack(offset int, l *Layout) ([]int64, error) {
	n := l.Size()
	if n < 0 {
		n = len(m.buf) - offset
	}
	data, err := m.ReadAt(offset, n)
	if err != nil {
		return nil, err
	}
	vals, _ := l.Decode(data)
	return vals, nil
}

// Pack encodes vals with l and writes them at offset.
func (m *SharedMemory) Pack(offset int, l *Layout, vals ...int64) error {
	data, err := l.Encode(vals)
	if err != nil {
		return &Error{Kind: KindArity, Message: err.Error()}
	}
	return m.WriteAt(offset, data)
}

// ---------------------------------------------------------------------------
// Guest primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerSharedMemoryPrimitives() {
	c := vm.SharedMemoryClass

	c.AddClassMethodN("new", 1, 1, func(in *Interpreter, _ Value, args []Value) (Value, error) {
		if !args[0].IsInt() {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into Integer", in.vm.ClassOf(args[0]).Name)
		}
		size := args[0].Int()
		if size < 0 || (in.vm.MemoryLimit > 0 && size > int64(in.vm.MemoryLimit)) {
			return Nil, in.vm.newError(KindArity, "invalid shared memory size %d (limit %d)", size, in.vm.MemoryLimit)
		}
		m := NewSharedMemory(int(size))
		in.vm.memory = m
		log.Debugf("shared memory allocated: %d bytes", size)
		return FromMemory(m), nil
	})

	c.AddMethod0("size", func(_ *Interpreter, self Value) (Value, error) {
		return FromInt(int64(self.Memory().Size())), nil
	})
	c.VTable.AddMethod("length", c.LookupMethod("size"))
	c.AddMethod0("to_s", func(_ *Interpreter, self Value) (Value, error) {
		return FromBytes(self.Memory().buf), nil
	})

	c.AddMethodN("[]", 1, 2, func(in *Interpreter, self Value, args []Value) (Value, error) {
		m := self.Memory()
		if len(args) == 1 && args[0].IsInt() {
			i := int(args[0].Int())
			b, err := m.ReadAt(i, 1)
			if err != nil {
				return Nil, in.vm.guestError(err)
			}
			return FromInt(int64(b[0])), nil
		}
		start, end, err := in.vm.memoryRange(args)
		if err != nil {
			return Nil, err
		}
		b, err := m.ReadRange(start, end)
		if err != nil {
			return Nil, in.vm.guestError(err)
		}
		return FromBytes(b), nil
	})

	c.AddMethodN("[]=", 2, 3, func(in *Interpreter, self Value, args []Value) (Value, error) {
		m := self.Memory()
		v := args[len(args)-1]
		if len(args) == 2 && args[0].IsInt() && v.IsInt() {
			i := int(args[0].Int())
			if err := m.WriteAt(i, []byte{byte(v.Int())}); err != nil {
				return Nil, in.vm.guestError(err)
			}
			return v, nil
		}
		start, end, err := in.vm.memoryRange(args[:len(args)-1])
		if err != nil {
			return Nil, err
		}
		if !v.IsString() {
			return Nil, in.vm.newError(KindType, "no implicit conversion of %s into String", in.vm.ClassOf(v).Name)
		}
		if err := m.WriteRange(start, end, v.Str().B); err != nil {
			return Nil, in.vm.guestError(err)
		}
		return v, nil
	})

	c.AddMethod2("read", func(in *Interpreter, self Value, off, n Value) (Value, error) {
		if !off.IsInt() || !n.IsInt() {
			return Nil, in.vm.newError(KindType, "read expects integer offset and length")
		}
		b, err := self.Memory().ReadAt(int(off.Int()), int(n.Int()))
		if err != nil {
			return Nil, in.vm.guestError(err)
		}
		return FromBytes(b), nil
	})
	c.AddMethod2("write", func(in *Interpreter, self Value, off, data Value) (Value, error) {
		if !off.IsInt() || !data.IsString() {
			return Nil, in.vm.newError(KindType, "write expects an integer offset and a string")
		}
		if err := self.Memory().WriteAt(int(off.Int()), data.Str().B); err != nil {
			return Nil, in.vm.guestError(err)
		}
		return FromInt(int64(len(data.Str().B))), nil
	})
	c.AddMethod2("unpack_at", func(in *Interpreter, self Value, off, format Value) (Value, error) {
		l, err := in.vm.layout(format)
		if err != nil {
			return Nil, err
		}
		if !off.IsInt() {
			return Nil, in.vm.newError(KindType, "unpack_at expects an integer offset")
		}
		vals, err := self.Memory().Unpack(int(off.Int()), l)
		if err != nil {
			return Nil, in.vm.guestError(err)
		}
		ok := make([]bool, len(vals))
		for i := range ok {
			ok[i] = true
		}
		return decodedArray(vals, ok), nil
	})
	c.AddMethodN("pack_at", 3, 3, func(in *Interpreter, self Value, args []Value) (Value, error) {
		off, format, vals := args[0], args[1], args[2]
		if !off.IsInt() || vals.kind != KindArray {
			return Nil, in.vm.newError(KindType, "pack_at expects an integer offset and an array")
		}
		data, err := in.vm.pack(vals.Array().Elems, format)
		if err != nil {
			return Nil, err
		}
		if err := self.Memory().WriteAt(int(off.Int()), data); err != nil {
			return Nil, in.vm.guestError(err)
		}
		return FromInt(int64(len(data))), nil
	})
}

// memoryRange converts a Range argument, or a start and length pair, into
// half-open byte bounds.
func (vm *VM) memoryRange(args []Value) (int, int, error) {
	if len(args) == 2 {
		if !args[0].IsInt() || !args[1].IsInt() {
			return 0, 0, vm.newError(KindType, "expected integer start and length")
		}
		start := int(args[0].Int())
		return start, start + int(args[1].Int()), nil
	}
	r := args[0].Range()
	if r == nil {
		return 0, 0, vm.newError(KindType, "no implicit conversion of %s into Range", vm.ClassOf(args[0]).Name)
	}
	lo, hi, ok := r.IntBounds()
	if !ok {
		return 0, 0, vm.newError(KindType, "shared memory range bounds must be integers")
	}
	if hi < lo-1 {
		hi = lo - 1
	}
	return int(lo), int(hi) + 1, nil
}
