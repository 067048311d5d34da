// Package image saves compiled programs to .rbi files and loads them
// back. An image is canonical CBOR: the same program always encodes to
// the same bytes.
package image

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/rbot/vm"
)

// Magic identifies an rbot image.
var Magic = [4]byte{'R', 'B', 'I', 'M'}

// Version is the image format version.
const Version uint32 = 1

// Ext is the conventional file extension.
const Ext = ".rbi"

var (
	// ErrNotImage is returned for data without the image magic.
	ErrNotImage = errors.New("image: not an rbot image")
	// ErrVersion is returned for images written by another format version.
	ErrVersion = errors.New("image: unsupported version")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	// Block bodies nest; allow deeper documents than the default.
	dm, err := cbor.DecOptions{MaxNestedLevels: 256}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// ---------------------------------------------------------------------------
// Wire structs
// ---------------------------------------------------------------------------

type file struct {
	Magic   [4]byte      `cbor:"1,keyasint"`
	Version uint32       `cbor:"2,keyasint"`
	Program programImage `cbor:"3,keyasint"`
}

type programImage struct {
	Name    string        `cbor:"1,keyasint"`
	Classes []classImage  `cbor:"2,keyasint,omitempty"`
	Methods []methodImage `cbor:"3,keyasint,omitempty"`
	Main    *methodImage  `cbor:"4,keyasint,omitempty"`
}

type classImage struct {
	Name         string        `cbor:"1,keyasint"`
	Superclass   string        `cbor:"2,keyasint,omitempty"`
	Readers      []string      `cbor:"3,keyasint,omitempty"`
	Writers      []string      `cbor:"4,keyasint,omitempty"`
	Accessors    []string      `cbor:"5,keyasint,omitempty"`
	Methods      []methodImage `cbor:"6,keyasint,omitempty"`
	ClassMethods []methodImage `cbor:"7,keyasint,omitempty"`
}

type methodImage struct {
	Name       string         `cbor:"1,keyasint"`
	Arity      int            `cbor:"2,keyasint"`
	NumTemps   int            `cbor:"3,keyasint"`
	IsBlock    bool           `cbor:"4,keyasint,omitempty"`
	Literals   []literal      `cbor:"5,keyasint,omitempty"`
	Symbols    []string       `cbor:"6,keyasint,omitempty"`
	Bytecode   []byte         `cbor:"7,keyasint"`
	Blocks     []methodImage  `cbor:"8,keyasint,omitempty"`
	Handlers   []handlerImage `cbor:"9,keyasint,omitempty"`
	LocalNames []string       `cbor:"10,keyasint,omitempty"`
}

type handlerImage struct {
	Start   int      `cbor:"1,keyasint"`
	End     int      `cbor:"2,keyasint"`
	Target  int      `cbor:"3,keyasint"`
	Classes []string `cbor:"4,keyasint,omitempty"`
}

type literalKind uint8

const (
	literalInt    literalKind = 1
	literalFloat  literalKind = 2
	literalString literalKind = 3
)

type literal struct {
	Kind  literalKind `cbor:"1,keyasint"`
	Int   int64       `cbor:"2,keyasint,omitempty"`
	Float float64     `cbor:"3,keyasint,omitempty"`
	Bytes []byte      `cbor:"4,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Marshal encodes p.
func Marshal(p *vm.Program) ([]byte, error) {
	img, err := encodeProgram(p)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(file{Magic: Magic, Version: Version, Program: img})
}

// Write encodes p to w.
func Write(w io.Writer, p *vm.Program) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteFile saves p at path.
func WriteFile(path string, p *vm.Program) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	return nil
}

func encodeProgram(p *vm.Program) (programImage, error) {
	img := programImage{Name: p.Name}
	for _, cd := range p.Classes {
		ci := classImage{
			Name:       cd.Name,
			Superclass: cd.Superclass,
			Readers:    cd.Readers,
			Writers:    cd.Writers,
			Accessors:  cd.Accessors,
		}
		var err error
		if ci.Methods, err = encodeMethods(cd.Methods); err != nil {
			return img, fmt.Errorf("image: class %s: %w", cd.Name, err)
		}
		if ci.ClassMethods, err = encodeMethods(cd.ClassMethods); err != nil {
			return img, fmt.Errorf("image: class %s: %w", cd.Name, err)
		}
		img.Classes = append(img.Classes, ci)
	}
	var err error
	if img.Methods, err = encodeMethods(p.Methods); err != nil {
		return img, fmt.Errorf("image: %w", err)
	}
	if p.Main != nil {
		m, err := encodeMethod(p.Main)
		if err != nil {
			return img, fmt.Errorf("image: main: %w", err)
		}
		img.Main = &m
	}
	return img, nil
}

func encodeMethods(ms []*vm.CompiledMethod) ([]methodImage, error) {
	var out []methodImage
	for _, m := range ms {
		mi, err := encodeMethod(m)
		if err != nil {
			return nil, err
		}
		out = append(out, mi)
	}
	return out, nil
}

func encodeMethod(m *vm.CompiledMethod) (methodImage, error) {
	mi := methodImage{
		Name:       m.Name(),
		Arity:      m.Arity,
		NumTemps:   m.NumTemps,
		IsBlock:    m.IsBlock,
		Symbols:    m.Symbols,
		Bytecode:   m.Bytecode,
		LocalNames: m.LocalNames,
	}
	for i, v := range m.Literals {
		switch {
		case v.IsInt():
			mi.Literals = append(mi.Literals, literal{Kind: literalInt, Int: v.Int()})
		case v.IsFloat():
			mi.Literals = append(mi.Literals, literal{Kind: literalFloat, Float: v.Float()})
		case v.IsString():
			mi.Literals = append(mi.Literals, literal{Kind: literalString, Bytes: v.Str().B})
		default:
			return mi, fmt.Errorf("method %s: literal %d has unsupported kind %s", m.Name(), i, v.Kind())
		}
	}
	for _, h := range m.Handlers {
		mi.Handlers = append(mi.Handlers, handlerImage{Start: h.Start, End: h.End, Target: h.Target, Classes: h.Classes})
	}
	for _, b := range m.Blocks {
		bi, err := encodeMethod(b)
		if err != nil {
			return mi, err
		}
		mi.Blocks = append(mi.Blocks, bi)
	}
	return mi, nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Unmarshal decodes and validates an image.
func Unmarshal(data []byte) (*vm.Program, error) {
	var f file
	if err := decMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	if f.Magic != Magic {
		return nil, ErrNotImage
	}
	if f.Version != Version {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrVersion, f.Version, Version)
	}

	p, err := decodeProgram(f.Program)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("image: %s: %w", p.Name, err)
	}
	return p, nil
}

// Read decodes an image from r.
func Read(r io.Reader) (*vm.Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return Unmarshal(data)
}

// ReadFile loads the image at path.
func ReadFile(path string) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return Unmarshal(data)
}

func decodeProgram(img programImage) (*vm.Program, error) {
	p := &vm.Program{Name: img.Name}
	var err error
	if p.Methods, err = decodeMethods(img.Methods); err != nil {
		return nil, err
	}
	for _, ci := range img.Classes {
		cd := &vm.ClassDef{
			Name:       ci.Name,
			Superclass: ci.Superclass,
			Readers:    ci.Readers,
			Writers:    ci.Writers,
			Accessors:  ci.Accessors,
		}
		if cd.Methods, err = decodeMethods(ci.Methods); err != nil {
			return nil, fmt.Errorf("class %s: %w", ci.Name, err)
		}
		if cd.ClassMethods, err = decodeMethods(ci.ClassMethods); err != nil {
			return nil, fmt.Errorf("class %s: %w", ci.Name, err)
		}
		p.Classes = append(p.Classes, cd)
	}
	if img.Main != nil {
		if p.Main, err = decodeMethod(*img.Main); err != nil {
			return nil, fmt.Errorf("main: %w", err)
		}
	}
	return p, nil
}

func decodeMethods(ms []methodImage) ([]*vm.CompiledMethod, error) {
	if ms == nil {
		return nil, nil
	}
	out := make([]*vm.CompiledMethod, len(ms))
	for i, mi := range ms {
		m, err := decodeMethod(mi)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

func decodeMethod(mi methodImage) (*vm.CompiledMethod, error) {
	blocks, err := decodeMethods(mi.Blocks)
	if err != nil {
		return nil, err
	}
	m := &vm.CompiledMethod{
		Arity:      mi.Arity,
		NumTemps:   mi.NumTemps,
		IsBlock:    mi.IsBlock,
		Symbols:    mi.Symbols,
		Bytecode:   mi.Bytecode,
		LocalNames: mi.LocalNames,
		Blocks:     blocks,
	}
	m.SetName(mi.Name)
	for i, l := range mi.Literals {
		switch l.Kind {
		case literalInt:
			m.Literals = append(m.Literals, vm.FromInt(l.Int))
		case literalFloat:
			m.Literals = append(m.Literals, vm.FromFloat(l.Float))
		case literalString:
			m.Literals = append(m.Literals, vm.FromBytes(l.Bytes))
		default:
			return nil, fmt.Errorf("method %s: literal %d has unknown kind %d", mi.Name, i, l.Kind)
		}
	}
	for _, h := range mi.Handlers {
		m.Handlers = append(m.Handlers, vm.Handler{Start: h.Start, End: h.End, Target: h.Target, Classes: h.Classes})
	}
	return m, nil
}
