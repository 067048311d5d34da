package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Program: the unit of loading
// ---------------------------------------------------------------------------

// Program is a compiled guest script: class definitions, top-level
// methods (defined on Object, callable as functions) and a main body that
// runs once at load time.
type Program struct {
	Name    string
	Classes []*ClassDef
	Methods []*CompiledMethod
	Main    *CompiledMethod
}

// ClassDef declares a class. Readers, Writers and Accessors correspond to
// attr_reader, attr_writer and attr_accessor.
type ClassDef struct {
	Name         string
	Superclass   string
	Readers      []string
	Writers      []string
	Accessors    []string
	Methods      []*CompiledMethod
	ClassMethods []*CompiledMethod
}

// Method returns the top-level method called name, or nil.
func (p *Program) Method(name string) *CompiledMethod {
	for _, m := range p.Methods {
		if m.name == name {
			return m
		}
	}
	return nil
}

// Class returns the class definition called name, or nil.
func (p *Program) Class(name string) *ClassDef {
	for _, c := range p.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Clone returns a copy of p whose method bodies may be installed in a
// VM without affecting other VMs loading the same program. Bytecode and
// literal tables are shared; they are never written after building.
func (p *Program) Clone() *Program {
	cp := &Program{Name: p.Name, Main: cloneMethod(p.Main)}
	for _, cd := range p.Classes {
		c := *cd
		c.Methods = cloneMethods(cd.Methods)
		c.ClassMethods = cloneMethods(cd.ClassMethods)
		cp.Classes = append(cp.Classes, &c)
	}
	cp.Methods = cloneMethods(p.Methods)
	return cp
}

func cloneMethods(ms []*CompiledMethod) []*CompiledMethod {
	if ms == nil {
		return nil
	}
	out := make([]*CompiledMethod, len(ms))
	for i, m := range ms {
		out[i] = cloneMethod(m)
	}
	return out
}

func cloneMethod(m *CompiledMethod) *CompiledMethod {
	if m == nil {
		return nil
	}
	c := *m
	c.class = nil
	c.IsClassMethod = false
	c.Blocks = cloneMethods(m.Blocks)
	return &c
}

// Validate checks the structural well-formedness of every body: operands
// in range, jump targets on instruction boundaries, handler ranges inside
// the bytecode. Failures are InternalError.
func (p *Program) Validate() error {
	var errs []error
	check := func(m *CompiledMethod) {
		if m != nil {
			errs = append(errs, ValidateMethod(m))
		}
	}
	for _, cd := range p.Classes {
		if cd.Name == "" {
			errs = append(errs, internalError("class definition without a name"))
		}
		for _, m := range cd.Methods {
			check(m)
		}
		for _, m := range cd.ClassMethods {
			check(m)
		}
	}
	for _, m := range p.Methods {
		check(m)
	}
	check(p.Main)
	return errors.Join(errs...)
}

// ValidateMethod checks one body and, recursively, its blocks.
func ValidateMethod(m *CompiledMethod) error {
	if m.Arity < 0 || m.NumTemps < m.Arity || m.NumTemps > 256 {
		return internalError("%s: bad frame shape (arity %d, temps %d)", m, m.Arity, m.NumTemps)
	}
	starts := make(map[int]bool)
	var jumps [][2]int // (target, pc)
	r := NewBytecodeReader(m.Bytecode)
	for r.HasMore() {
		pc := r.Position()
		starts[pc] = true
		op := r.ReadOpcode()
		if !op.Valid() {
			return internalError("%s: unknown opcode 0x%02X at %d", m, byte(op), pc)
		}
		if err := validateOperands(m, op, r, pc, &jumps); err != nil {
			return err
		}
	}
	if r.Err != nil {
		return internalError("%s: %v", m, r.Err)
	}
	end := len(m.Bytecode)
	starts[end] = true
	for _, j := range jumps {
		if !starts[j[0]] {
			return internalError("%s: jump at %d to %d is not an instruction boundary", m, j[1], j[0])
		}
	}
	for i, h := range m.Handlers {
		if h.Start < 0 || h.Start > h.End || h.End > end || !starts[h.Target] || h.Target == end {
			return internalError("%s: handler %d has a bad range [%d,%d) -> %d", m, i, h.Start, h.End, h.Target)
		}
	}
	for _, b := range m.Blocks {
		if err := ValidateMethod(b); err != nil {
			return err
		}
	}
	return nil
}

func validateOperands(m *CompiledMethod, op Opcode, r *BytecodeReader, pc int, jumps *[][2]int) error {
	bad := func(what string, n int) error {
		return internalError("%s: %s %d out of range at %d (%s)", m, what, n, pc, op)
	}
	switch op {
	case OpPushInt8:
		r.ReadInt8()
	case OpPushInt32:
		r.ReadInt32()
	case OpPushFloat:
		r.ReadFloat64()
	case OpPushLiteral, OpPushString:
		if i := int(r.ReadUint16()); i >= len(m.Literals) {
			return bad("literal", i)
		} else if op == OpPushString && !m.Literals[i].IsString() {
			return internalError("%s: PUSH_STRING of non-string literal at %d", m, pc)
		}
	case OpPushSymbol, OpPushIvar, OpStoreIvar, OpPushGlobal, OpStoreGlobal, OpPushConst, OpStoreConst:
		if i := int(r.ReadUint16()); i >= len(m.Symbols) {
			return bad("symbol", i)
		}
	case OpPushTemp, OpStoreTemp:
		if i := int(r.ReadU8()); i >= m.NumTemps {
			return bad("temp", i)
		}
	case OpPushOuter, OpStoreOuter:
		if d := int(r.ReadU8()); d < 1 || !m.IsBlock {
			return bad("outer depth", d)
		}
		r.ReadU8()
	case OpSend, OpSendBlock, OpSendSuper:
		if i := int(r.ReadUint16()); i >= len(m.Symbols) {
			return bad("selector", i)
		}
		r.ReadU8()
	case OpJump, OpJumpIf, OpJumpUnless, OpJumpNil:
		off := int(r.ReadInt16())
		*jumps = append(*jumps, [2]int{r.Position() + off, pc})
	case OpMakeBlock, OpMakeLambda:
		if i := int(r.ReadUint16()); i >= len(m.Blocks) {
			return bad("block", i)
		}
	case OpNext, OpBreak:
		if !m.IsBlock {
			return internalError("%s: %s outside of a block at %d", m, op, pc)
		}
	case OpYield, OpMakeArray, OpMakeHash:
		r.ReadU8()
	}
	if r.Err != nil {
		return internalError("%s: truncated %s at %d", m, op, pc)
	}
	return nil
}

// String summarizes the program.
func (p *Program) String() string {
	return fmt.Sprintf("program %s (%d classes, %d methods)", p.Name, len(p.Classes), len(p.Methods))
}
