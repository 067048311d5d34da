package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is a single bytecode instruction. Operands follow the opcode byte
// and are little-endian.
type Opcode byte

// Stack Operations
const (
	OpNOP Opcode = 0x00 // no operation
	OpPOP Opcode = 0x01 // discard top of stack
	OpDUP Opcode = 0x02 // duplicate top of stack
)

// Push Constants
const (
	OpPushNil     Opcode = 0x10 // push nil
	OpPushTrue    Opcode = 0x11 // push true
	OpPushFalse   Opcode = 0x12 // push false
	OpPushSelf    Opcode = 0x13 // push self
	OpPushInt8    Opcode = 0x14 // push 8-bit signed integer
	OpPushInt32   Opcode = 0x15 // push 32-bit signed integer
	OpPushLiteral Opcode = 0x16 // push literal (16-bit index)
	OpPushFloat   Opcode = 0x17 // push inline float64
	OpPushString  Opcode = 0x18 // push a fresh copy of a string literal (16-bit index)
	OpPushSymbol  Opcode = 0x19 // push symbol (16-bit symbol index)
)

// Variable Operations. Stores leave the stored value on the stack.
const (
	OpPushTemp    Opcode = 0x20 // push local slot (8-bit index)
	OpStoreTemp   Opcode = 0x21 // store local slot (8-bit index)
	OpPushOuter   Opcode = 0x22 // push enclosing-scope slot (8-bit depth, 8-bit index)
	OpStoreOuter  Opcode = 0x23 // store enclosing-scope slot (8-bit depth, 8-bit index)
	OpPushIvar    Opcode = 0x24 // push instance variable (16-bit symbol)
	OpStoreIvar   Opcode = 0x25 // store instance variable (16-bit symbol)
	OpPushGlobal  Opcode = 0x26 // push $global (16-bit symbol)
	OpStoreGlobal Opcode = 0x27 // store $global (16-bit symbol)
	OpPushConst   Opcode = 0x28 // push constant (16-bit symbol)
	OpStoreConst  Opcode = 0x29 // store constant (16-bit symbol)
)

// Message Sends
const (
	OpSend      Opcode = 0x30 // recv args... -> result (16-bit selector, 8-bit argc)
	OpSendBlock Opcode = 0x31 // recv args... block -> result (16-bit selector, 8-bit argc)
	OpSendSuper Opcode = 0x32 // args... -> result, self implied (16-bit selector, 8-bit argc)
)

// Arithmetic and comparison fast paths. Non-numeric operands fall back to
// a full send of the operator.
const (
	OpAdd Opcode = 0x40 // +
	OpSub Opcode = 0x41 // -
	OpMul Opcode = 0x42 // *
	OpDiv Opcode = 0x43 // /
	OpMod Opcode = 0x44 // %
	OpLT  Opcode = 0x45 // <
	OpGT  Opcode = 0x46 // >
	OpLE  Opcode = 0x47 // <=
	OpGE  Opcode = 0x48 // >=
	OpEQ  Opcode = 0x49 // ==
	OpNE  Opcode = 0x4A // !=
	OpNot Opcode = 0x4B // !
)

// Control Flow. Offsets are signed 16-bit, relative to the end of the
// operand.
const (
	OpJump       Opcode = 0x60 // unconditional jump
	OpJumpIf     Opcode = 0x61 // pop, jump if truthy
	OpJumpUnless Opcode = 0x62 // pop, jump if falsy
	OpJumpNil    Opcode = 0x63 // pop, jump if nil
)

// Returns and control signals
const (
	OpReturn      Opcode = 0x70 // pop, finish this frame (method result or block value)
	OpReturnSelf  Opcode = 0x71 // finish with self
	OpReturnNil   Opcode = 0x72 // finish with nil
	OpBlockReturn Opcode = 0x73 // pop, return from the home method of this block
	OpNext        Opcode = 0x74 // pop, end this block invocation with a value
	OpBreak       Opcode = 0x75 // pop, terminate the iteration that called this block
)

// Blocks
const (
	OpMakeBlock  Opcode = 0x80 // push closure over nested body (16-bit block index)
	OpMakeLambda Opcode = 0x81 // push lambda over nested body (16-bit block index)
	OpYield      Opcode = 0x82 // call the method's block (8-bit argc)
	OpBlockGiven Opcode = 0x83 // push whether the method received a block
	OpPushBlock  Opcode = 0x84 // push the method's block or nil
)

// Object Creation
const (
	OpMakeArray     Opcode = 0x90 // pop N items into an array (8-bit count)
	OpMakeHash      Opcode = 0x91 // pop N key/value pairs into a hash (8-bit count)
	OpMakeRange     Opcode = 0x92 // pop first, last -> first..last
	OpMakeRangeExcl Opcode = 0x93 // pop first, last -> first...last
	OpStrCat        Opcode = 0x94 // pop s, v -> s with v.to_s appended
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (-1 = variable)
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP: {"NOP", 0, 0},
	OpPOP: {"POP", 0, -1},
	OpDUP: {"DUP", 0, 1},

	OpPushNil:     {"PUSH_NIL", 0, 1},
	OpPushTrue:    {"PUSH_TRUE", 0, 1},
	OpPushFalse:   {"PUSH_FALSE", 0, 1},
	OpPushSelf:    {"PUSH_SELF", 0, 1},
	OpPushInt8:    {"PUSH_INT8", 1, 1},
	OpPushInt32:   {"PUSH_INT32", 4, 1},
	OpPushLiteral: {"PUSH_LITERAL", 2, 1},
	OpPushFloat:   {"PUSH_FLOAT", 8, 1},
	OpPushString:  {"PUSH_STRING", 2, 1},
	OpPushSymbol:  {"PUSH_SYMBOL", 2, 1},

	OpPushTemp:    {"PUSH_TEMP", 1, 1},
	OpStoreTemp:   {"STORE_TEMP", 1, 0},
	OpPushOuter:   {"PUSH_OUTER", 2, 1},
	OpStoreOuter:  {"STORE_OUTER", 2, 0},
	OpPushIvar:    {"PUSH_IVAR", 2, 1},
	OpStoreIvar:   {"STORE_IVAR", 2, 0},
	OpPushGlobal:  {"PUSH_GLOBAL", 2, 1},
	OpStoreGlobal: {"STORE_GLOBAL", 2, 0},
	OpPushConst:   {"PUSH_CONST", 2, 1},
	OpStoreConst:  {"STORE_CONST", 2, 0},

	OpSend:      {"SEND", 3, -1},
	OpSendBlock: {"SEND_BLOCK", 3, -1},
	OpSendSuper: {"SEND_SUPER", 3, -1},

	OpAdd: {"ADD", 0, -1},
	OpSub: {"SUB", 0, -1},
	OpMul: {"MUL", 0, -1},
	OpDiv: {"DIV", 0, -1},
	OpMod: {"MOD", 0, -1},
	OpLT:  {"LT", 0, -1},
	OpGT:  {"GT", 0, -1},
	OpLE:  {"LE", 0, -1},
	OpGE:  {"GE", 0, -1},
	OpEQ:  {"EQ", 0, -1},
	OpNE:  {"NE", 0, -1},
	OpNot: {"NOT", 0, 0},

	OpJump:       {"JUMP", 2, 0},
	OpJumpIf:     {"JUMP_IF", 2, -1},
	OpJumpUnless: {"JUMP_UNLESS", 2, -1},
	OpJumpNil:    {"JUMP_NIL", 2, -1},

	OpReturn:      {"RETURN", 0, -1},
	OpReturnSelf:  {"RETURN_SELF", 0, 0},
	OpReturnNil:   {"RETURN_NIL", 0, 0},
	OpBlockReturn: {"BLOCK_RETURN", 0, -1},
	OpNext:        {"NEXT", 0, -1},
	OpBreak:       {"BREAK", 0, -1},

	OpMakeBlock:  {"MAKE_BLOCK", 2, 1},
	OpMakeLambda: {"MAKE_LAMBDA", 2, 1},
	OpYield:      {"YIELD", 1, -1},
	OpBlockGiven: {"BLOCK_GIVEN", 0, 1},
	OpPushBlock:  {"PUSH_BLOCK", 0, 1},

	OpMakeArray:     {"MAKE_ARRAY", 1, -1},
	OpMakeHash:      {"MAKE_HASH", 1, -1},
	OpMakeRange:     {"MAKE_RANGE", 0, -1},
	OpMakeRangeExcl: {"MAKE_RANGE_EXCL", 0, -1},
	OpStrCat:        {"STR_CAT", 0, -1},
}

// fastPathSelectors names the operator each fast-path opcode falls back to.
var fastPathSelectors = map[Opcode]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpLT: "<", OpGT: ">", OpLE: "<=", OpGE: ">=", OpEQ: "==", OpNE: "!=",
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

func (op Opcode) String() string { return op.Info().Name }

// ---------------------------------------------------------------------------
// BytecodeBuilder
// ---------------------------------------------------------------------------

// BytecodeBuilder appends encoded instructions.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates an empty builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{bytes: make([]byte, 0, 64)}
}

// Bytes returns the encoded instructions.
func (b *BytecodeBuilder) Bytes() []byte { return b.bytes }

// Len returns the current offset.
func (b *BytecodeBuilder) Len() int { return len(b.bytes) }

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with one unsigned byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitInt8 appends an opcode with one signed byte operand.
func (b *BytecodeBuilder) EmitInt8(op Opcode, operand int8) {
	b.bytes = append(b.bytes, byte(op), byte(operand))
}

// EmitUint16 appends an opcode with a 16-bit operand.
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = binary.LittleEndian.AppendUint16(append(b.bytes, byte(op)), operand)
}

// EmitInt32 appends an opcode with a 32-bit operand.
func (b *BytecodeBuilder) EmitInt32(op Opcode, operand int32) {
	b.bytes = binary.LittleEndian.AppendUint32(append(b.bytes, byte(op)), uint32(operand))
}

// EmitFloat64 appends an opcode with an inline float.
func (b *BytecodeBuilder) EmitFloat64(op Opcode, operand float64) {
	b.bytes = binary.LittleEndian.AppendUint64(append(b.bytes, byte(op)), math.Float64bits(operand))
}

// EmitOuter appends PUSH_OUTER or STORE_OUTER.
func (b *BytecodeBuilder) EmitOuter(op Opcode, depth, index uint8) {
	b.bytes = append(b.bytes, byte(op), depth, index)
}

// EmitSend appends SEND, SEND_BLOCK or SEND_SUPER.
func (b *BytecodeBuilder) EmitSend(op Opcode, selector uint16, argc uint8) {
	b.bytes = append(binary.LittleEndian.AppendUint16(append(b.bytes, byte(op)), selector), argc)
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label is a jump target that may be referenced before it is placed.
type Label struct {
	placed bool
	target int
	refs   []int // operand offsets awaiting the target
}

// NewLabel creates an unplaced label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{}
}

// Mark places a label at the current offset and patches earlier jumps.
func (b *BytecodeBuilder) Mark(l *Label) {
	if l.placed {
		panic("vm: label placed twice")
	}
	l.placed = true
	l.target = len(b.bytes)
	for _, ref := range l.refs {
		binary.LittleEndian.PutUint16(b.bytes[ref:], uint16(int16(l.target-(ref+2))))
	}
	l.refs = nil
}

// EmitJump appends a jump to l.
func (b *BytecodeBuilder) EmitJump(op Opcode, l *Label) {
	b.bytes = append(b.bytes, byte(op))
	ref := len(b.bytes)
	b.bytes = append(b.bytes, 0, 0)
	if l.placed {
		binary.LittleEndian.PutUint16(b.bytes[ref:], uint16(int16(l.target-(ref+2))))
		return
	}
	l.refs = append(l.refs, ref)
}

// ---------------------------------------------------------------------------
// BytecodeReader
// ---------------------------------------------------------------------------

// BytecodeReader decodes instructions. Reads past the end set Err instead
// of panicking so malformed programs can be rejected.
type BytecodeReader struct {
	bytes []byte
	pos   int
	Err   error
}

// NewBytecodeReader creates a reader over bc.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc}
}

func (r *BytecodeReader) Position() int { return r.pos }
func (r *BytecodeReader) HasMore() bool { return r.Err == nil && r.pos < len(r.bytes) }

func (r *BytecodeReader) take(n int) []byte {
	if r.pos+n > len(r.bytes) {
		if r.Err == nil {
			r.Err = fmt.Errorf("bytecode truncated at %d", r.pos)
		}
		r.pos = len(r.bytes)
		return make([]byte, n)
	}
	b := r.bytes[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *BytecodeReader) ReadOpcode() Opcode { return Opcode(r.take(1)[0]) }
func (r *BytecodeReader) ReadU8() byte       { return r.take(1)[0] }
func (r *BytecodeReader) ReadInt8() int8     { return int8(r.take(1)[0]) }
func (r *BytecodeReader) ReadUint16() uint16 { return binary.LittleEndian.Uint16(r.take(2)) }
func (r *BytecodeReader) ReadInt16() int16   { return int16(r.ReadUint16()) }
func (r *BytecodeReader) ReadInt32() int32   { return int32(binary.LittleEndian.Uint32(r.take(4))) }
func (r *BytecodeReader) ReadFloat64() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(r.take(8)))
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at the reader's position,
// resolving symbol operands against m when it is non-nil.
func DisassembleInstruction(r *BytecodeReader, m *CompiledMethod) string {
	pos := r.Position()
	op := r.ReadOpcode()
	name := op.Info().Name
	sym := func(i uint16) string {
		if m != nil && int(i) < len(m.Symbols) {
			return m.Symbols[i]
		}
		return fmt.Sprintf("#%d", i)
	}

	switch op {
	case OpPushInt8:
		return fmt.Sprintf("%04d  %s %d", pos, name, r.ReadInt8())
	case OpPushInt32:
		return fmt.Sprintf("%04d  %s %d", pos, name, r.ReadInt32())
	case OpPushFloat:
		return fmt.Sprintf("%04d  %s %g", pos, name, r.ReadFloat64())
	case OpPushLiteral, OpPushString:
		idx := r.ReadUint16()
		if m != nil && int(idx) < len(m.Literals) {
			return fmt.Sprintf("%04d  %s %d (%s)", pos, name, idx, inspectValue(m.Literals[idx], true))
		}
		return fmt.Sprintf("%04d  %s %d", pos, name, idx)
	case OpPushSymbol, OpPushIvar, OpStoreIvar, OpPushGlobal, OpStoreGlobal, OpPushConst, OpStoreConst:
		return fmt.Sprintf("%04d  %s %s", pos, name, sym(r.ReadUint16()))
	case OpPushTemp, OpStoreTemp, OpYield, OpMakeArray, OpMakeHash:
		return fmt.Sprintf("%04d  %s %d", pos, name, r.ReadU8())
	case OpPushOuter, OpStoreOuter:
		depth := r.ReadU8()
		return fmt.Sprintf("%04d  %s depth=%d slot=%d", pos, name, depth, r.ReadU8())
	case OpSend, OpSendBlock, OpSendSuper:
		sel := r.ReadUint16()
		return fmt.Sprintf("%04d  %s %s argc=%d", pos, name, sym(sel), r.ReadU8())
	case OpJump, OpJumpIf, OpJumpUnless, OpJumpNil:
		off := r.ReadInt16()
		return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, name, off, r.Position()+int(off))
	case OpMakeBlock, OpMakeLambda:
		return fmt.Sprintf("%04d  %s block=%d", pos, name, r.ReadUint16())
	}
	r.take(op.Info().OperandBytes)
	return fmt.Sprintf("%04d  %s", pos, name)
}

// Disassemble renders a method and its nested blocks.
func Disassemble(m *CompiledMethod) string {
	var sb strings.Builder
	disassembleInto(&sb, m, "")
	return sb.String()
}

func disassembleInto(sb *strings.Builder, m *CompiledMethod, indent string) {
	fmt.Fprintf(sb, "%s%s (arity=%d temps=%d)\n", indent, m.displayName(), m.Arity, m.NumTemps)
	r := NewBytecodeReader(m.Bytecode)
	for r.HasMore() {
		sb.WriteString(indent)
		sb.WriteString("  ")
		sb.WriteString(DisassembleInstruction(r, m))
		sb.WriteByte('\n')
	}
	for _, h := range m.Handlers {
		fmt.Fprintf(sb, "%s  rescue [%04d, %04d) -> %04d %v\n", indent, h.Start, h.End, h.Target, h.Classes)
	}
	for i, blk := range m.Blocks {
		fmt.Fprintf(sb, "%s  block %d:\n", indent, i)
		disassembleInto(sb, blk, indent+"    ")
	}
}
