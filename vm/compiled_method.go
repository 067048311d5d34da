package vm

import "math"

// ---------------------------------------------------------------------------
// CompiledMethod: bytecode method and block bodies
// ---------------------------------------------------------------------------

// CompiledMethod is a bytecode body. Method definitions and block
// literals share this representation; IsBlock distinguishes them. Block
// bodies live in the Blocks list of the body that defines them.
type CompiledMethod struct {
	name          string
	class         *Class // defining class (nil for detached bodies)
	IsClassMethod bool

	// Signature. Slots 0..Arity-1 receive positional arguments; the
	// remaining NumTemps-Arity slots are locals.
	Arity    int
	NumTemps int
	IsBlock  bool

	Literals []Value  // integers, floats, strings
	Symbols  []string // selectors, ivar/global/constant names
	Bytecode []byte

	Blocks   []*CompiledMethod
	Handlers []Handler

	// LocalNames names slots for diagnostics. May be shorter than NumTemps.
	LocalNames []string
}

// Handler is a rescue table entry. An error raised while executing an
// instruction in [Start, End) whose class matches one of Classes (any
// StandardError when empty) transfers control to Target with the
// exception pushed on the operand stack.
type Handler struct {
	Start   int
	End     int
	Target  int
	Classes []string
}

func (m *CompiledMethod) Name() string { return m.name }

// MethodArity returns the number of required arguments.
func (m *CompiledMethod) MethodArity() int { return m.Arity }

// Class returns the defining class.
func (m *CompiledMethod) Class() *Class { return m.class }

// SetName renames a detached body.
func (m *CompiledMethod) SetName(name string) { m.name = name }

func (m *CompiledMethod) displayName() string {
	switch {
	case m.IsBlock:
		return "block in " + m.name
	case m.class != nil:
		return m.class.Name + "#" + m.name
	}
	return m.name
}

// String returns Class#name.
func (m *CompiledMethod) String() string { return m.displayName() }

// localName returns the diagnostic name of slot i.
func (m *CompiledMethod) localName(i int) string {
	if i < len(m.LocalNames) && m.LocalNames[i] != "" {
		return m.LocalNames[i]
	}
	return "local" + itoa(i)
}

// ---------------------------------------------------------------------------
// CompiledMethodBuilder
// ---------------------------------------------------------------------------

// CompiledMethodBuilder helps construct CompiledMethod instances.
type CompiledMethodBuilder struct {
	method   *CompiledMethod
	bytecode *BytecodeBuilder
	symbols  map[string]uint16
}

// NewCompiledMethodBuilder creates a builder for a method taking arity
// positional arguments.
func NewCompiledMethodBuilder(name string, arity int) *CompiledMethodBuilder {
	return &CompiledMethodBuilder{
		method:   &CompiledMethod{name: name, Arity: arity, NumTemps: arity},
		bytecode: NewBytecodeBuilder(),
		symbols:  make(map[string]uint16),
	}
}

// NewBlockBuilder creates a builder for a block body taking arity
// parameters.
func NewBlockBuilder(arity int) *CompiledMethodBuilder {
	b := NewCompiledMethodBuilder("", arity)
	b.method.IsBlock = true
	return b
}

// SetNumTemps sets the total slot count (arguments + locals).
func (b *CompiledMethodBuilder) SetNumTemps(n int) *CompiledMethodBuilder {
	b.method.NumTemps = n
	return b
}

// SetLocalNames records slot names for diagnostics.
func (b *CompiledMethodBuilder) SetLocalNames(names ...string) *CompiledMethodBuilder {
	b.method.LocalNames = names
	if len(names) > b.method.NumTemps {
		b.method.NumTemps = len(names)
	}
	return b
}

// AddLocal allocates one more slot and returns its index.
func (b *CompiledMethodBuilder) AddLocal() int {
	idx := b.method.NumTemps
	b.method.NumTemps++
	return idx
}

// AddLiteral adds a literal and returns its index.
func (b *CompiledMethodBuilder) AddLiteral(v Value) uint16 {
	b.method.Literals = append(b.method.Literals, v)
	return uint16(len(b.method.Literals) - 1)
}

// AddSymbol interns a name in the symbol table and returns its index.
func (b *CompiledMethodBuilder) AddSymbol(name string) uint16 {
	if idx, ok := b.symbols[name]; ok {
		return idx
	}
	idx := uint16(len(b.method.Symbols))
	b.method.Symbols = append(b.method.Symbols, name)
	b.symbols[name] = idx
	return idx
}

// AddBlock nests a block body and returns its index.
func (b *CompiledMethodBuilder) AddBlock(blk *CompiledMethod) uint16 {
	blk.IsBlock = true
	if blk.name == "" {
		blk.name = b.method.name
	}
	b.method.Blocks = append(b.method.Blocks, blk)
	return uint16(len(b.method.Blocks) - 1)
}

// AddHandler appends a rescue table entry.
func (b *CompiledMethodBuilder) AddHandler(h Handler) {
	b.method.Handlers = append(b.method.Handlers, h)
}

// Bytecode returns the bytecode builder for direct emission.
func (b *CompiledMethodBuilder) Bytecode() *BytecodeBuilder {
	return b.bytecode
}

// Build finalizes and returns the method.
func (b *CompiledMethodBuilder) Build() *CompiledMethod {
	b.method.Bytecode = b.bytecode.Bytes()
	for _, blk := range b.method.Blocks {
		if blk.name == "" {
			blk.name = b.method.name
		}
	}
	return b.method
}

// ---------------------------------------------------------------------------
// Emission shorthands
// ---------------------------------------------------------------------------

// PushInt emits the shortest instruction that pushes n.
func (b *CompiledMethodBuilder) PushInt(n int64) {
	switch {
	case n >= math.MinInt8 && n <= math.MaxInt8:
		b.bytecode.EmitInt8(OpPushInt8, int8(n))
	case n >= math.MinInt32 && n <= math.MaxInt32:
		b.bytecode.EmitInt32(OpPushInt32, int32(n))
	default:
		b.bytecode.EmitUint16(OpPushLiteral, b.AddLiteral(FromInt(n)))
	}
}

// PushString emits a push of a fresh string.
func (b *CompiledMethodBuilder) PushString(s string) {
	b.bytecode.EmitUint16(OpPushString, b.AddLiteral(NewString(s)))
}

// PushSymbol emits a push of :name.
func (b *CompiledMethodBuilder) PushSymbol(name string) {
	b.bytecode.EmitUint16(OpPushSymbol, b.AddSymbol(name))
}

// Send emits a send of selector with argc arguments already pushed.
func (b *CompiledMethodBuilder) Send(selector string, argc int) {
	b.bytecode.EmitSend(OpSend, b.AddSymbol(selector), uint8(argc))
}

// SendBlock emits a send whose block is on top of the arguments.
func (b *CompiledMethodBuilder) SendBlock(selector string, argc int) {
	b.bytecode.EmitSend(OpSendBlock, b.AddSymbol(selector), uint8(argc))
}

// SendSuper emits a super send.
func (b *CompiledMethodBuilder) SendSuper(selector string, argc int) {
	b.bytecode.EmitSend(OpSendSuper, b.AddSymbol(selector), uint8(argc))
}

// Named emits an opcode whose 16-bit operand is a symbol index.
func (b *CompiledMethodBuilder) Named(op Opcode, name string) {
	b.bytecode.EmitUint16(op, b.AddSymbol(name))
}

// MakeBlock nests blk and emits MAKE_BLOCK for it.
func (b *CompiledMethodBuilder) MakeBlock(blk *CompiledMethod) {
	b.bytecode.EmitUint16(OpMakeBlock, b.AddBlock(blk))
}

// MakeLambda nests blk and emits MAKE_LAMBDA for it.
func (b *CompiledMethodBuilder) MakeLambda(blk *CompiledMethod) {
	b.bytecode.EmitUint16(OpMakeLambda, b.AddBlock(blk))
}

func itoa(i int) string {
	return inspectValue(FromInt(int64(i)), false)
}
