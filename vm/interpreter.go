package vm

import (
	"encoding/binary"
	"errors"
	"math"
)

// ---------------------------------------------------------------------------
// Interpreter: bytecode execution engine
// ---------------------------------------------------------------------------

const (
	// DefaultMaxFrameDepth bounds nested method and block frames.
	DefaultMaxFrameDepth = 512
	// DefaultStackSlots is the capacity of the local-slot arena.
	DefaultStackSlots = 1 << 16
)

// Interpreter executes bytecode for one VM. It is single-threaded: callers
// that share a VM across goroutines must serialize access.
type Interpreter struct {
	vm *VM

	stack    []Value // operand stack
	arena    []Value // local slots; frames take fixed windows
	arenaTop int
	depth    int
	frame    *Frame // innermost live frame

	MaxFrameDepth int
	Policy        ClosurePolicy
	StepLimit     int64

	budget  budget
	entered int
}

func newInterpreter(vm *VM, maxDepth, slots int) *Interpreter {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxFrameDepth
	}
	if slots <= 0 {
		slots = DefaultStackSlots
	}
	return &Interpreter{
		vm:            vm,
		stack:         make([]Value, 0, 256),
		arena:         make([]Value, slots),
		MaxFrameDepth: maxDepth,
	}
}

// VM returns the owning VM.
func (in *Interpreter) VM() *VM { return in.vm }

// Depth returns the number of live frames.
func (in *Interpreter) Depth() int { return in.depth }

// Steps returns the instructions executed by the current (or last)
// top-level invocation.
func (in *Interpreter) Steps() int64 { return in.budget.used }

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (in *Interpreter) push(v Value) {
	in.stack = append(in.stack, v)
}

func (in *Interpreter) pop() Value {
	n := len(in.stack) - 1
	v := in.stack[n]
	in.stack = in.stack[:n]
	return v
}

func (in *Interpreter) peek() Value {
	return in.stack[len(in.stack)-1]
}

// popN removes the top n values and returns them in push order. The
// returned slice is a fresh copy.
func (in *Interpreter) popN(n int) []Value {
	top := len(in.stack)
	out := make([]Value, n)
	copy(out, in.stack[top-n:])
	in.stack = in.stack[:top-n]
	return out
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

func (in *Interpreter) pushFrame(m *CompiledMethod, self Value) (*Frame, error) {
	if in.depth >= in.MaxFrameDepth {
		return nil, in.vm.newError(KindStackOverflow, "stack level too deep (%d frames)", in.depth)
	}
	n := m.NumTemps
	if in.arenaTop+n > len(in.arena) {
		return nil, in.vm.newError(KindStackOverflow, "stack level too deep (%d slots in use)", in.arenaTop)
	}
	slots := in.arena[in.arenaTop : in.arenaTop+n : in.arenaTop+n]
	for i := range slots {
		slots[i] = undef
	}
	f := &Frame{
		method:   m,
		self:     self,
		slots:    slots,
		base:     len(in.stack),
		arenaTop: in.arenaTop,
		live:     true,
		parent:   in.frame,
	}
	in.arenaTop += n
	in.depth++
	in.frame = f
	return f, nil
}

func (in *Interpreter) popFrame(f *Frame) {
	in.retire(f)
	clear(in.arena[f.arenaTop:in.arenaTop])
	in.arenaTop = f.arenaTop
	in.depth--
	if len(in.stack) > f.base {
		in.stack = in.stack[:f.base]
	}
	in.frame = f.parent
}

// retire marks a frame dead. Under the strict policy its environment
// expires with it.
func (in *Interpreter) retire(f *Frame) {
	f.live = false
	if f.env != nil && in.Policy == StrictLifetime {
		f.env.expired = true
	}
}

// unwindAll abandons every live frame after a fatal failure.
func (in *Interpreter) unwindAll() {
	for f := in.frame; f != nil; f = f.parent {
		in.retire(f)
	}
	clear(in.arena[:in.arenaTop])
	in.arenaTop = 0
	in.depth = 0
	in.frame = nil
	in.stack = in.stack[:0]
}

// ---------------------------------------------------------------------------
// Main loop
// ---------------------------------------------------------------------------

// run executes f until it finishes or produces a control signal. Running
// off the end of the bytecode returns nil.
func (in *Interpreter) run(f *Frame) (Result, error) {
	code := f.method.Bytecode
	for f.pc < len(code) {
		if err := in.budget.step(); err != nil {
			return Result{}, err
		}
		start := f.pc
		op := Opcode(code[f.pc])
		f.pc++
		r, done, err := in.step(f, op, code)
		if err != nil {
			if in.rescue(f, start, err) {
				continue
			}
			return Result{}, err
		}
		if done {
			return r, nil
		}
	}
	return Normal(Nil), nil
}

func (f *Frame) u8(code []byte) int {
	v := code[f.pc]
	f.pc++
	return int(v)
}

func (f *Frame) u16(code []byte) int {
	v := binary.LittleEndian.Uint16(code[f.pc:])
	f.pc += 2
	return int(v)
}

func (f *Frame) i16(code []byte) int {
	return int(int16(f.u16(code)))
}

// step executes one instruction. done reports that the frame finished
// with r.
func (in *Interpreter) step(f *Frame, op Opcode, code []byte) (r Result, done bool, err error) {
	m := f.method
	switch op {
	case OpNOP:
	case OpPOP:
		in.pop()
	case OpDUP:
		in.push(in.peek())

	// Constants
	case OpPushNil:
		in.push(Nil)
	case OpPushTrue:
		in.push(True)
	case OpPushFalse:
		in.push(False)
	case OpPushSelf:
		in.push(f.self)
	case OpPushInt8:
		in.push(FromInt(int64(int8(code[f.pc]))))
		f.pc++
	case OpPushInt32:
		in.push(FromInt(int64(int32(binary.LittleEndian.Uint32(code[f.pc:])))))
		f.pc += 4
	case OpPushFloat:
		in.push(FromFloat(math.Float64frombits(binary.LittleEndian.Uint64(code[f.pc:]))))
		f.pc += 8
	case OpPushLiteral:
		in.push(m.Literals[f.u16(code)])
	case OpPushString:
		lit := m.Literals[f.u16(code)]
		if !lit.IsString() {
			return r, false, internalError("PUSH_STRING of non-string literal in %s", m)
		}
		in.push(FromBytes(lit.Str().B))
	case OpPushSymbol:
		in.push(Sym(m.Symbols[f.u16(code)]))

	// Variables
	case OpPushTemp:
		idx := f.u8(code)
		v := f.slots[idx]
		if v.kind == kindUndef {
			return r, false, in.vm.newError(KindUndefinedVariable, "undefined local variable '%s'", m.localName(idx))
		}
		in.push(v)
	case OpStoreTemp:
		f.slots[f.u8(code)] = in.peek()
	case OpPushOuter, OpStoreOuter:
		depth := f.u8(code)
		idx := f.u8(code)
		env, err := in.outerEnv(f, depth, idx)
		if err != nil {
			return r, false, err
		}
		if op == OpStoreOuter {
			env.slots[idx] = in.peek()
			break
		}
		v := env.slots[idx]
		if v.kind == kindUndef {
			return r, false, in.vm.newError(KindUndefinedVariable, "undefined local variable (depth %d slot %d)", depth, idx)
		}
		in.push(v)
	case OpPushIvar:
		in.push(in.vm.ivarGet(f.self, m.Symbols[f.u16(code)]))
	case OpStoreIvar:
		if err := in.vm.ivarSet(f.self, m.Symbols[f.u16(code)], in.peek()); err != nil {
			return r, false, err
		}
	case OpPushGlobal:
		in.push(in.vm.Globals[m.Symbols[f.u16(code)]])
	case OpStoreGlobal:
		in.vm.Globals[m.Symbols[f.u16(code)]] = in.peek()
	case OpPushConst:
		name := m.Symbols[f.u16(code)]
		v, ok := in.vm.Consts[name]
		if !ok {
			return r, false, in.vm.newError(KindUndefinedVariable, "uninitialized constant %s", name)
		}
		in.push(v)
	case OpStoreConst:
		in.vm.Consts[m.Symbols[f.u16(code)]] = in.peek()

	// Sends
	case OpSend, OpSendBlock, OpSendSuper:
		name := m.Symbols[f.u16(code)]
		argc := f.u8(code)
		var blk *Proc
		if op == OpSendBlock {
			if blk, err = in.vm.toBlock(in.pop()); err != nil {
				return r, false, err
			}
		}
		top := len(in.stack)
		args := in.stack[top-argc : top]
		if op == OpSendSuper {
			if blk == nil {
				blk = f.methodBlock()
			}
			r, err = in.sendSuper(f, name, args, blk)
			in.stack = in.stack[:top-argc]
		} else {
			recv := in.stack[top-argc-1]
			r, err = in.Send(recv, name, args, blk)
			in.stack = in.stack[:top-argc-1]
		}
		if err != nil {
			return r, false, err
		}
		if blk != nil {
			r = r.caught(blk)
		}
		if !r.IsNormal() {
			return r, true, nil
		}
		in.push(r.Value)

	// Arithmetic fast paths
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpLT, OpGT, OpLE, OpGE, OpEQ, OpNE:
		b := in.pop()
		a := in.pop()
		v, ok, err := in.vm.fastBinary(op, a, b)
		if err != nil {
			return r, false, err
		}
		if !ok {
			r, err = in.Send(a, fastPathSelectors[op], []Value{b}, nil)
			if err != nil {
				return r, false, err
			}
			if !r.IsNormal() {
				return r, true, nil
			}
			v = r.Value
		}
		in.push(v)
	case OpNot:
		in.push(FromBool(!in.pop().Truthy()))

	// Control flow
	case OpJump:
		off := f.i16(code)
		f.pc += off
	case OpJumpIf, OpJumpUnless, OpJumpNil:
		off := f.i16(code)
		v := in.pop()
		var take bool
		switch op {
		case OpJumpIf:
			take = v.Truthy()
		case OpJumpUnless:
			take = !v.Truthy()
		default:
			take = v.IsNil()
		}
		if take {
			f.pc += off
		}

	// Returns and signals
	case OpReturn:
		return Normal(in.pop()), true, nil
	case OpReturnSelf:
		return Normal(f.self), true, nil
	case OpReturnNil:
		return Normal(Nil), true, nil
	case OpBlockReturn:
		v := in.pop()
		if f.proc == nil || f.home == f {
			return Normal(v), true, nil
		}
		if f.home == nil || !f.home.live {
			return r, false, in.vm.newError(KindLocalJump, "unexpected return")
		}
		return Result{Signal: SignalReturn, Value: v, target: f.home}, true, nil
	case OpNext:
		v := in.pop()
		if f.proc == nil {
			return r, false, internalError("next outside of a block in %s", m)
		}
		return Result{Signal: SignalNext, Value: v}, true, nil
	case OpBreak:
		v := in.pop()
		if f.proc == nil {
			return r, false, internalError("break outside of a block in %s", m)
		}
		return Result{Signal: SignalBreak, Value: v, origin: f.proc}, true, nil

	// Blocks
	case OpMakeBlock, OpMakeLambda:
		body := m.Blocks[f.u16(code)]
		in.push(FromProc(in.makeClosure(f, body, op == OpMakeLambda)))
	case OpYield:
		argc := f.u8(code)
		blk := f.methodBlock()
		if blk == nil {
			return r, false, in.vm.newError(KindLocalJump, "no block given (yield)")
		}
		top := len(in.stack)
		r, err = in.CallBlock(blk, in.stack[top-argc:top], nil)
		in.stack = in.stack[:top-argc]
		if err != nil {
			return r, false, err
		}
		if !r.IsNormal() {
			return r, true, nil
		}
		in.push(r.Value)
	case OpBlockGiven:
		in.push(FromBool(f.methodBlock() != nil))
	case OpPushBlock:
		if blk := f.methodBlock(); blk != nil {
			in.push(FromProc(blk))
		} else {
			in.push(Nil)
		}

	// Object creation
	case OpMakeArray:
		in.push(NewArray(in.popN(f.u8(code))...))
	case OpMakeHash:
		kv := in.popN(2 * f.u8(code))
		h := NewHash()
		for i := 0; i < len(kv); i += 2 {
			h.Set(kv[i], kv[i+1])
		}
		in.push(FromHash(h))
	case OpMakeRange, OpMakeRangeExcl:
		last := in.pop()
		first := in.pop()
		in.push(NewRange(first, last, op == OpMakeRangeExcl))
	case OpStrCat:
		v := in.pop()
		s := in.peek()
		if !s.IsString() {
			return r, false, internalError("STR_CAT onto %s", s.kind)
		}
		piece, err := in.ToS(v)
		if err != nil {
			return r, false, err
		}
		s.Str().B = append(s.Str().B, piece...)

	default:
		return r, false, internalError("unknown opcode 0x%02X at %d in %s", byte(op), f.pc-1, m)
	}
	return r, false, nil
}

// outerEnv resolves an enclosing scope for PUSH_OUTER/STORE_OUTER.
func (in *Interpreter) outerEnv(f *Frame, depth, idx int) (*Env, error) {
	env := f.outer.up(depth)
	if depth < 1 || env == nil || idx >= len(env.slots) {
		return nil, internalError("no enclosing slot at depth %d index %d in %s", depth, idx, f.method)
	}
	if env.expired {
		return nil, in.vm.newError(KindClosureExpired, "closure environment of %s has expired", env.owner.method)
	}
	return env, nil
}

// rescue transfers control to a matching handler of f, if any.
func (in *Interpreter) rescue(f *Frame, pc int, err error) bool {
	var e *Error
	if !errors.As(err, &e) || !e.Recoverable() || e.Exception == nil {
		return false
	}
	for _, h := range f.method.Handlers {
		if pc < h.Start || pc >= h.End || !in.vm.handlerMatches(h, e.Exception) {
			continue
		}
		if len(in.stack) > f.base {
			in.stack = in.stack[:f.base]
		}
		in.push(FromException(e.Exception))
		f.pc = h.Target
		return true
	}
	return false
}
