package vm

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseLayout(t *testing.T) {
	tests := []struct {
		format string
		size   int
	}{
		{"C", 1},
		{"S S S S C C C", 11},
		{"I C S S", 9},
		{"c c c c", 4},
		{"L>2 n", 10},
		{"q", 8},
		{"C3x", 4},
		{"C*", -1},
	}
	for _, tt := range tests {
		l, err := ParseLayout(tt.format)
		if err != nil {
			t.Errorf("ParseLayout(%q): %v", tt.format, err)
			continue
		}
		if l.Size() != tt.size {
			t.Errorf("ParseLayout(%q).Size() = %d, want %d", tt.format, l.Size(), tt.size)
		}
		if l.String() != tt.format {
			t.Errorf("String() = %q", l.String())
		}
	}

	for _, bad := range []string{"Z", "C>", "n<"} {
		if _, err := ParseLayout(bad); err == nil {
			t.Errorf("ParseLayout(%q) succeeded", bad)
		}
	}
}

func TestLayoutEncode(t *testing.T) {
	tests := []struct {
		format string
		vals   []int64
		want   []byte
	}{
		{"C C C", []int64{1, 2, 3}, []byte{1, 2, 3}},
		{"S", []int64{0x0102}, []byte{0x02, 0x01}},
		{"n", []int64{0x0102}, []byte{0x01, 0x02}},
		{"S>", []int64{0x0102}, []byte{0x01, 0x02}},
		{"L", []int64{1}, []byte{1, 0, 0, 0}},
		{"N", []int64{0x01020304}, []byte{1, 2, 3, 4}},
		{"Q", []int64{0x0102030405060708}, []byte{8, 7, 6, 5, 4, 3, 2, 1}},
		{"q>", []int64{-2}, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFE}},
		{"c", []int64{-1}, []byte{0xFF}},
		{"C", []int64{0x1FF}, []byte{0xFF}},
		{"C x C", []int64{7, 8}, []byte{7, 0, 8}},
		{"C*", []int64{4, 5, 6}, []byte{4, 5, 6}},
	}
	for _, tt := range tests {
		got, err := MustParseLayout(tt.format).Encode(tt.vals)
		if err != nil {
			t.Errorf("Encode(%q, %v): %v", tt.format, tt.vals, err)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Encode(%q, %v) = %v, want %v", tt.format, tt.vals, got, tt.want)
		}
	}

	if _, err := MustParseLayout("C C").Encode([]int64{1}); err == nil {
		t.Error("Encode with too few values succeeded")
	}
}

func TestLayoutDecode(t *testing.T) {
	data := []byte{0x01, 0x02, 0xFF, 0x04}

	vals, ok := MustParseLayout("c c c c").Decode(data)
	var sum int64
	for i, v := range vals {
		if !ok[i] {
			t.Fatalf("field %d missing", i)
		}
		sum += v
	}
	if sum != 6 {
		t.Errorf("signed sum = %d, want 6", sum)
	}

	vals, _ = MustParseLayout("C C C C").Decode(data)
	if vals[2] != 255 {
		t.Errorf("unsigned byte = %d, want 255", vals[2])
	}

	vals, _ = MustParseLayout("S s").Decode(data)
	if vals[0] != 0x0201 || vals[1] != 0x04FF {
		t.Errorf("shorts = %v", vals)
	}

	// Fields past the end decode as missing.
	vals, ok = MustParseLayout("S S S").Decode(data)
	if len(vals) != 3 || !ok[0] || !ok[1] || ok[2] {
		t.Errorf("vals = %v ok = %v", vals, ok)
	}

	vals, _ = MustParseLayout("C*").Decode(data)
	if len(vals) != 4 {
		t.Errorf("C* decoded %d values", len(vals))
	}
}

func TestSharedMemoryRanges(t *testing.T) {
	m := NewSharedMemory(8)
	if m.Size() != 8 {
		t.Fatalf("size = %d", m.Size())
	}

	// Short writes fill only the data's length.
	if err := m.WriteRange(0, 5, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadRange(0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 0, 0}) {
		t.Errorf("read = %v", got)
	}

	// Reads are copies.
	got[0] = 99
	if m.Bytes()[0] != 1 {
		t.Error("ReadRange aliased the buffer")
	}

	for _, r := range [][2]int{{-1, 2}, {4, 9}, {5, 4}} {
		_, err := m.ReadRange(r[0], r[1])
		if !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("ReadRange(%d, %d) err = %v", r[0], r[1], err)
		}
	}
	if err := m.WriteRange(0, 2, []byte{1, 2, 3}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("oversized write err = %v", err)
	}
	if err := m.WriteAt(7, []byte{1, 2}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("write past end err = %v", err)
	}
}

func TestSharedMemoryPackUnpack(t *testing.T) {
	m := NewSharedMemory(16)
	l := MustParseLayout("I C S S")
	if err := m.Pack(2, l, 70000, 3, 40, 50); err != nil {
		t.Fatal(err)
	}
	vals, err := m.Unpack(2, l)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{70000, 3, 40, 50}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("vals = %v, want %v", vals, want)
			break
		}
	}
	if _, err := m.Unpack(10, l); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("unpack past end err = %v", err)
	}
	if err := m.Pack(0, l, 1); !errors.Is(err, ErrArity) {
		t.Errorf("pack with too few values err = %v", err)
	}
}

// memoryScript is:
//
//	$m = SharedMemory.new(8)
//	$m[0..4] = "\x01\x02\xFF\x04"
//	$m[0..3].unpack("c c c c")
func memoryScript() *CompiledMethod {
	return method("memory", 0, 0, func(b *CompiledMethodBuilder) {
		bc := b.Bytecode()
		b.Named(OpPushConst, "SharedMemory")
		b.PushInt(8)
		b.Send("new", 1)
		b.Named(OpStoreGlobal, "$m")
		bc.Emit(OpPOP)

		b.Named(OpPushGlobal, "$m")
		b.PushInt(0)
		b.PushInt(4)
		bc.Emit(OpMakeRange)
		b.PushString("\x01\x02\xFF\x04")
		b.Send("[]=", 2)
		bc.Emit(OpPOP)

		b.Named(OpPushGlobal, "$m")
		b.PushInt(0)
		b.PushInt(3)
		bc.Emit(OpMakeRange)
		b.Send("[]", 1)
		b.PushString("c c c c")
		b.Send("unpack", 1)
		bc.Emit(OpReturn)
	})
}

func TestGuestSharedMemory(t *testing.T) {
	vm, _ := newTestVM(t)
	got := run(t, vm, memoryScript())
	a := got.Array()
	if a == nil || len(a.Elems) != 4 {
		t.Fatalf("result = %v", got)
	}
	want := []int64{1, 2, -1, 4}
	for i, v := range a.Elems {
		wantInt(t, v, want[i])
	}
	if vm.Memory() == nil || vm.Memory().Bytes()[4] != 0 {
		t.Error("short write touched byte 4")
	}
}

func TestGuestSharedMemoryOutOfBounds(t *testing.T) {
	vm, _ := newTestVM(t)
	m := method("oob", 0, 0, func(b *CompiledMethodBuilder) {
		b.Named(OpPushConst, "SharedMemory")
		b.PushInt(4)
		b.Send("new", 1)
		b.PushInt(2)
		b.PushInt(9)
		b.Bytecode().Emit(OpMakeRange)
		b.Send("[]", 1)
		b.Bytecode().Emit(OpReturn)
	})
	e := wantKind(t, runErr(vm, m), KindOutOfBounds)
	if e.ClassName() != "IndexError" {
		t.Errorf("class = %s", e.ClassName())
	}
}

func TestGuestMemoryLimit(t *testing.T) {
	vm, _ := newTestVM(t, WithMemoryLimit(1024))
	m := method("big", 0, 0, func(b *CompiledMethodBuilder) {
		b.Named(OpPushConst, "SharedMemory")
		b.PushInt(4096)
		b.Send("new", 1)
		b.Bytecode().Emit(OpReturn)
	})
	wantKind(t, runErr(vm, m), KindArity)
}

func TestGuestArrayPack(t *testing.T) {
	vm, _ := newTestVM(t)
	// [2, 1, 1].pack("C C C")
	m := method("pack", 0, 0, func(b *CompiledMethodBuilder) {
		b.PushInt(2)
		b.PushInt(1)
		b.PushInt(1)
		b.Bytecode().EmitByte(OpMakeArray, 3)
		b.PushString("C C C")
		b.Send("pack", 1)
		b.Bytecode().Emit(OpReturn)
	})
	got := run(t, vm, m)
	if !got.IsString() || !bytes.Equal(got.Str().B, []byte{2, 1, 1}) {
		t.Errorf("pack = %v", got)
	}

	// [nil].pack("C") is a TypeError.
	bad := method("bad", 0, 0, func(b *CompiledMethodBuilder) {
		b.Bytecode().Emit(OpPushNil)
		b.Bytecode().EmitByte(OpMakeArray, 1)
		b.PushString("C")
		b.Send("pack", 1)
		b.Bytecode().Emit(OpReturn)
	})
	wantKind(t, runErr(vm, bad), KindType)
}
