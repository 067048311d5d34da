package image

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/rbot/examples"
	"github.com/chazu/rbot/vm"
)

func TestEverySampleRoundTrips(t *testing.T) {
	for _, name := range examples.Names() {
		t.Run(name, func(t *testing.T) {
			p, err := examples.Program(name)
			if err != nil {
				t.Fatal(err)
			}
			data, err := Marshal(p)
			if err != nil {
				t.Fatal(err)
			}
			back, err := Unmarshal(data)
			if err != nil {
				t.Fatal(err)
			}
			again, err := Marshal(back)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(data, again) {
				t.Error("re-encoding a decoded image changed its bytes")
			}
			if back.Name != p.Name || len(back.Classes) != len(p.Classes) || len(back.Methods) != len(p.Methods) {
				t.Errorf("decoded shape differs: %s %d/%d classes %d/%d methods",
					back.Name, len(back.Classes), len(p.Classes), len(back.Methods), len(p.Methods))
			}
		})
	}
}

func TestLoadedImageRuns(t *testing.T) {
	p, err := examples.Program("fib")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "fib"+Ext)
	if err := WriteFile(path, p); err != nil {
		t.Fatal(err)
	}
	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	machine := vm.NewVM()
	if err := machine.Load(context.Background(), loaded); err != nil {
		t.Fatal(err)
	}
	v, err := machine.Funcall(context.Background(), "fib", vm.FromInt(15))
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsInt() || v.Int() != 610 {
		t.Errorf("fib(15) = %v, want 610", v)
	}
}

func TestLiteralKindsSurvive(t *testing.T) {
	b := vm.NewCompiledMethodBuilder("lits", 0)
	b.PushString("héllo")
	b.Bytecode().Emit(vm.OpPOP)
	b.PushInt(1 << 40)
	b.Bytecode().Emit(vm.OpReturn)
	m := b.Build()
	m.Literals = append(m.Literals, vm.FromFloat(2.5))

	var buf bytes.Buffer
	if err := Write(&buf, &vm.Program{Name: "lits", Methods: []*vm.CompiledMethod{m}}); err != nil {
		t.Fatal(err)
	}
	p, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got := p.Methods[0]
	if got.Name() != "lits" {
		t.Errorf("name = %q", got.Name())
	}
	var sawString, sawFloat, sawInt bool
	for _, l := range got.Literals {
		switch {
		case l.IsString():
			sawString = l.GoString() == "héllo"
		case l.IsFloat():
			sawFloat = l.Float() == 2.5
		case l.IsInt():
			sawInt = l.Int() == 1<<40
		}
	}
	if !sawString || !sawFloat || !sawInt {
		t.Errorf("literals = %v", got.Literals)
	}
}

func TestUnencodableLiteral(t *testing.T) {
	m := vm.NewCompiledMethodBuilder("bad", 0).Build()
	m.Literals = append(m.Literals, vm.NewArray())
	if _, err := Marshal(&vm.Program{Name: "bad", Methods: []*vm.CompiledMethod{m}}); err == nil {
		t.Error("Marshal accepted an array literal")
	}
}

func TestRejectsForeignData(t *testing.T) {
	if _, err := Unmarshal([]byte("definitely not cbor")); !errors.Is(err, ErrNotImage) {
		t.Errorf("garbage err = %v", err)
	}

	other, _ := cbor.Marshal(file{Magic: [4]byte{'M', 'A', 'G', 'I'}, Version: Version})
	if _, err := Unmarshal(other); !errors.Is(err, ErrNotImage) {
		t.Errorf("wrong magic err = %v", err)
	}

	future, _ := cbor.Marshal(file{Magic: Magic, Version: Version + 1})
	if _, err := Unmarshal(future); !errors.Is(err, ErrVersion) {
		t.Errorf("future version err = %v", err)
	}
}

func TestRejectsCorruptBytecode(t *testing.T) {
	p, err := examples.Program("fib")
	if err != nil {
		t.Fatal(err)
	}
	img, err := encodeProgram(p)
	if err != nil {
		t.Fatal(err)
	}
	img.Methods[0].Bytecode = append([]byte{0xEE}, img.Methods[0].Bytecode...)
	data, err := encMode.Marshal(file{Magic: Magic, Version: Version, Program: img})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, vm.ErrInternal) {
		t.Errorf("corrupt bytecode err = %v, want InternalError", err)
	}
}
