package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/rbot/vm"
)

// ---------------------------------------------------------------------------
// Compiler: AST to bytecode
// ---------------------------------------------------------------------------

// maxSlots is the number of locals a single body may address with an
// 8-bit slot operand.
const maxSlots = 256

// binaryOps maps operators with an arithmetic fast path to their opcode.
var binaryOps = map[string]vm.Opcode{
	"+": vm.OpAdd, "-": vm.OpSub, "*": vm.OpMul, "/": vm.OpDiv, "%": vm.OpMod,
	"<": vm.OpLT, ">": vm.OpGT, "<=": vm.OpLE, ">=": vm.OpGE,
	"==": vm.OpEQ, "!=": vm.OpNE,
}

// Compiler turns AST definitions into CompiledMethods. A Compiler may be
// reused; errors accumulate until Err is called.
type Compiler struct {
	errors []string
	scope  *scope
}

// scope is one body being compiled: a method, the main script or a block.
// Blocks chain to their lexically enclosing scope.
type scope struct {
	name    string
	builder *vm.CompiledMethodBuilder
	parent  *scope
	locals  map[string]int
	names   []string
	arity   int
	isBlock bool
	loops   []*loop
}

// loop holds the jump targets of the innermost while. A normal exit
// goes through end, which pushes nil; break leaves its value and jumps
// to done.
type loop struct {
	cond *vm.Label
	end  *vm.Label
	done *vm.Label
}

// NewCompiler creates a new compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Errors returns accumulated compilation errors.
func (c *Compiler) Errors() []string {
	return c.errors
}

// Err joins accumulated errors, or returns nil.
func (c *Compiler) Err() error {
	if len(c.errors) == 0 {
		return nil
	}
	errs := make([]error, len(c.errors))
	for i, msg := range c.errors {
		errs[i] = errors.New(msg)
	}
	return errors.Join(errs...)
}

func (c *Compiler) errorf(format string, args ...interface{}) {
	where := ""
	if c.scope != nil {
		where = c.scope.name + ": "
	}
	c.errors = append(c.errors, where+fmt.Sprintf(format, args...))
}

func (c *Compiler) emit() *vm.BytecodeBuilder { return c.scope.builder.Bytecode() }

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// CompileMethod compiles a method definition. The value of the last
// statement is returned.
func (c *Compiler) CompileMethod(def *Def) *vm.CompiledMethod {
	prev := c.scope
	c.scope = newScope(def.Name, vm.NewCompiledMethodBuilder(def.Name, len(def.Params)), nil, false)
	c.scope.arity = len(def.Params)
	defer func() { c.scope = prev }()

	for _, p := range def.Params {
		c.scope.declare(p)
	}
	c.compileBody(def.Body)
	c.emit().Emit(vm.OpReturn)
	return c.scope.finish()
}

// CompileClass compiles a class definition.
func (c *Compiler) CompileClass(decl *ClassDecl) *vm.ClassDef {
	cd := &vm.ClassDef{
		Name:       decl.Name,
		Superclass: decl.Superclass,
		Readers:    decl.Readers,
		Writers:    decl.Writers,
		Accessors:  decl.Accessors,
	}
	for _, d := range decl.Methods {
		cd.Methods = append(cd.Methods, c.CompileMethod(d))
	}
	for _, d := range decl.ClassMethods {
		cd.ClassMethods = append(cd.ClassMethods, c.CompileMethod(d))
	}
	return cd
}

// CompileScript compiles a whole program.
func (c *Compiler) CompileScript(s *Script) *vm.Program {
	p := &vm.Program{Name: s.Name}
	for _, decl := range s.Classes {
		p.Classes = append(p.Classes, c.CompileClass(decl))
	}
	for _, d := range s.Defs {
		p.Methods = append(p.Methods, c.CompileMethod(d))
	}
	p.Main = c.CompileMethod(&Def{Name: "<main>", Body: s.Main})
	return p
}

// Compile compiles s and reports every error found.
func Compile(s *Script) (*vm.Program, error) {
	c := NewCompiler()
	p := c.CompileScript(s)
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", s.Name, err)
	}
	return p, nil
}

// MustCompile is Compile for programs known to be well formed.
func MustCompile(s *Script) *vm.Program {
	p, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return p
}

// CompileDef compiles a single method definition.
func CompileDef(def *Def) (*vm.CompiledMethod, error) {
	c := NewCompiler()
	m := c.CompileMethod(def)
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", def.Name, err)
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

func newScope(name string, b *vm.CompiledMethodBuilder, parent *scope, isBlock bool) *scope {
	return &scope{
		name:    name,
		builder: b,
		parent:  parent,
		locals:  make(map[string]int),
		isBlock: isBlock,
	}
}

// declare allocates a slot for name. Parameters are declared first so
// they occupy slots 0..arity-1.
func (s *scope) declare(name string) int {
	if idx, ok := s.locals[name]; ok {
		return idx
	}
	idx := len(s.names)
	if idx >= s.arity {
		s.builder.AddLocal()
	}
	s.locals[name] = idx
	s.names = append(s.names, name)
	return idx
}

// temp allocates an anonymous slot.
func (s *scope) temp() int {
	return s.declare(fmt.Sprintf("(tmp%d)", len(s.names)))
}

// resolve finds name in this scope or an enclosing one. depth is the
// number of block boundaries crossed.
func (s *scope) resolve(name string) (depth, idx int, ok bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if idx, ok := cur.locals[name]; ok {
			return depth, idx, true
		}
		depth++
	}
	return 0, 0, false
}

func (s *scope) finish() *vm.CompiledMethod {
	s.builder.SetLocalNames(s.names...)
	return s.builder.Build()
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// compileBody compiles statements leaving the last value on the stack.
func (c *Compiler) compileBody(body []Node) {
	if len(body) == 0 {
		c.emit().Emit(vm.OpPushNil)
		return
	}
	for i, n := range body {
		c.compileExpr(n)
		if i < len(body)-1 {
			c.emit().Emit(vm.OpPOP)
		}
	}
}

func (c *Compiler) compileExpr(n Node) {
	b := c.scope.builder
	switch n := n.(type) {
	case nil, *NilLit:
		c.emit().Emit(vm.OpPushNil)
	case *BoolLit:
		if n.Value {
			c.emit().Emit(vm.OpPushTrue)
		} else {
			c.emit().Emit(vm.OpPushFalse)
		}
	case *SelfRef:
		c.emit().Emit(vm.OpPushSelf)
	case *IntLit:
		b.PushInt(n.Value)
	case *FloatLit:
		c.emit().EmitFloat64(vm.OpPushFloat, n.Value)
	case *StrLit:
		b.PushString(n.Value)
	case *SymLit:
		b.PushSymbol(n.Value)
	case *Interp:
		c.compileInterp(n)
	case *ArrayLit:
		c.compileList(n.Elems, "array literal")
		c.emit().EmitByte(vm.OpMakeArray, byte(len(n.Elems)))
	case *HashLit:
		c.compileHash(n)
	case *RangeLit:
		c.compileExpr(n.From)
		c.compileExpr(n.To)
		if n.Exclusive {
			c.emit().Emit(vm.OpMakeRangeExcl)
		} else {
			c.emit().Emit(vm.OpMakeRange)
		}

	case *LocalVar:
		c.compileLocal(n.Name)
	case *LocalAssign:
		c.compileExpr(n.Value)
		c.compileLocalStore(n.Name)
	case *IvarRef:
		b.Named(vm.OpPushIvar, sigil("@", n.Name))
	case *IvarAssign:
		c.compileExpr(n.Value)
		b.Named(vm.OpStoreIvar, sigil("@", n.Name))
	case *GlobalRef:
		b.Named(vm.OpPushGlobal, sigil("$", n.Name))
	case *GlobalAssign:
		c.compileExpr(n.Value)
		b.Named(vm.OpStoreGlobal, sigil("$", n.Name))
	case *ConstRef:
		b.Named(vm.OpPushConst, n.Name)
	case *ConstAssign:
		c.compileExpr(n.Value)
		b.Named(vm.OpStoreConst, n.Name)

	case *Call:
		c.compileCall(n)
	case *Block:
		if !n.Lambda {
			c.errorf("bare block literal; use a lambda or pass it to a call")
		}
		c.compileBlock(n)
	case *Super:
		c.compileList(n.Args, "super")
		b.SendSuper(c.methodName(), len(n.Args))
	case *Yield:
		if !c.inMethod() {
			c.errorf("yield outside of a method")
		}
		c.compileList(n.Args, "yield")
		c.emit().EmitByte(vm.OpYield, byte(len(n.Args)))
	case *BlockGiven:
		c.emit().Emit(vm.OpBlockGiven)

	case *Seq:
		c.compileBody(n.Body)
	case *If:
		c.compileIf(n)
	case *While:
		c.compileWhile(n)
	case *Case:
		c.compileCase(n)
	case *And:
		c.compileLogical(n.Left, n.Right, vm.OpJumpUnless)
	case *Or:
		c.compileLogical(n.Left, n.Right, vm.OpJumpIf)
	case *Not:
		c.compileExpr(n.Operand)
		c.emit().Emit(vm.OpNot)
	case *Return:
		c.compileExpr(n.Value)
		if c.scope.isBlock {
			c.emit().Emit(vm.OpBlockReturn)
		} else {
			c.emit().Emit(vm.OpReturn)
		}
	case *Break:
		c.compileBreak(n)
	case *Next:
		c.compileNext(n)
	case *Begin:
		c.compileBegin(n)

	default:
		c.errorf("unsupported node %T", n)
		c.emit().Emit(vm.OpPushNil)
	}
}

func (c *Compiler) compileList(nodes []Node, what string) {
	if len(nodes) > 255 {
		c.errorf("%s: too many operands (%d)", what, len(nodes))
	}
	for _, n := range nodes {
		c.compileExpr(n)
	}
}

func (c *Compiler) compileInterp(n *Interp) {
	b := c.scope.builder
	parts := n.Parts
	if first, ok := firstString(parts); ok {
		b.PushString(first)
		parts = parts[1:]
	} else {
		b.PushString("")
	}
	for _, p := range parts {
		c.compileExpr(p)
		c.emit().Emit(vm.OpStrCat)
	}
}

func firstString(parts []Node) (string, bool) {
	if len(parts) == 0 {
		return "", false
	}
	s, ok := parts[0].(*StrLit)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func (c *Compiler) compileHash(n *HashLit) {
	if len(n.Keys) != len(n.Values) {
		c.errorf("hash literal with %d keys and %d values", len(n.Keys), len(n.Values))
		c.emit().Emit(vm.OpPushNil)
		return
	}
	if len(n.Keys) > 255 {
		c.errorf("hash literal: too many pairs (%d)", len(n.Keys))
	}
	for i := range n.Keys {
		c.compileExpr(n.Keys[i])
		c.compileExpr(n.Values[i])
	}
	c.emit().EmitByte(vm.OpMakeHash, byte(len(n.Keys)))
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func sigil(prefix, name string) string {
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

func (c *Compiler) compileLocal(name string) {
	depth, idx, ok := c.scope.resolve(name)
	if !ok {
		// A bare identifier that is not a local is a call with no args.
		c.emit().Emit(vm.OpPushSelf)
		c.scope.builder.Send(name, 0)
		return
	}
	c.emitSlot(vm.OpPushTemp, vm.OpPushOuter, depth, idx)
}

func (c *Compiler) compileLocalStore(name string) {
	depth, idx, ok := c.scope.resolve(name)
	if !ok {
		depth, idx = 0, c.scope.declare(name)
	}
	c.emitSlot(vm.OpStoreTemp, vm.OpStoreOuter, depth, idx)
}

func (c *Compiler) emitSlot(local, outer vm.Opcode, depth, idx int) {
	if idx >= maxSlots || depth > 255 {
		c.errorf("too many locals")
		return
	}
	if depth == 0 {
		c.emit().EmitByte(local, byte(idx))
		return
	}
	c.emit().EmitOuter(outer, uint8(depth), uint8(idx))
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (c *Compiler) compileCall(n *Call) {
	b := c.scope.builder
	if n.Receiver != nil && n.Block == nil && n.BlockArg == nil {
		if op, ok := binaryOps[n.Name]; ok && len(n.Args) == 1 {
			c.compileExpr(n.Receiver)
			c.compileExpr(n.Args[0])
			c.emit().Emit(op)
			return
		}
		if n.Name == "!" && len(n.Args) == 0 {
			c.compileExpr(n.Receiver)
			c.emit().Emit(vm.OpNot)
			return
		}
	}
	if n.Receiver == nil {
		if n.Name == "block_given?" && len(n.Args) == 0 {
			c.emit().Emit(vm.OpBlockGiven)
			return
		}
		c.emit().Emit(vm.OpPushSelf)
	} else {
		c.compileExpr(n.Receiver)
	}
	c.compileList(n.Args, n.Name)

	switch {
	case n.Block != nil && n.BlockArg != nil:
		c.errorf("%s: both block argument and literal block given", n.Name)
		b.Send(n.Name, len(n.Args))
	case n.Block != nil:
		c.compileBlock(n.Block)
		b.SendBlock(n.Name, len(n.Args))
	case n.BlockArg != nil:
		c.compileExpr(n.BlockArg)
		b.SendBlock(n.Name, len(n.Args))
	default:
		b.Send(n.Name, len(n.Args))
	}
}

func (c *Compiler) compileBlock(blk *Block) {
	parent := c.scope
	bb := vm.NewBlockBuilder(len(blk.Params))
	c.scope = newScope(parent.name, bb, parent, true)
	c.scope.arity = len(blk.Params)
	for _, p := range blk.Params {
		c.scope.declare(p)
	}
	c.compileBody(blk.Body)
	c.emit().Emit(vm.OpReturn)
	body := c.scope.finish()
	c.scope = parent

	if blk.Lambda {
		parent.builder.MakeLambda(body)
	} else {
		parent.builder.MakeBlock(body)
	}
}

// methodName is the name of the enclosing method, for super.
func (c *Compiler) methodName() string {
	s := c.scope
	for s.parent != nil {
		s = s.parent
	}
	return s.name
}

func (c *Compiler) inMethod() bool {
	return c.methodName() != "<main>"
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func (c *Compiler) compileIf(n *If) {
	e := c.emit()
	elseL, endL := e.NewLabel(), e.NewLabel()
	c.compileExpr(n.Cond)
	e.EmitJump(vm.OpJumpUnless, elseL)
	c.compileBody(n.Then)
	e.EmitJump(vm.OpJump, endL)
	e.Mark(elseL)
	c.compileBody(n.Else)
	e.Mark(endL)
}

func (c *Compiler) compileWhile(n *While) {
	e := c.emit()
	l := &loop{cond: e.NewLabel(), end: e.NewLabel(), done: e.NewLabel()}
	e.Mark(l.cond)
	c.compileExpr(n.Cond)
	if n.Until {
		e.EmitJump(vm.OpJumpIf, l.end)
	} else {
		e.EmitJump(vm.OpJumpUnless, l.end)
	}
	c.scope.loops = append(c.scope.loops, l)
	c.compileBody(n.Body)
	c.scope.loops = c.scope.loops[:len(c.scope.loops)-1]
	e.Emit(vm.OpPOP)
	e.EmitJump(vm.OpJump, l.cond)
	e.Mark(l.end)
	e.Emit(vm.OpPushNil)
	e.Mark(l.done)
}

func (c *Compiler) innerLoop() *loop {
	if n := len(c.scope.loops); n > 0 {
		return c.scope.loops[n-1]
	}
	return nil
}

func (c *Compiler) compileBreak(n *Break) {
	if l := c.innerLoop(); l != nil {
		c.compileExpr(n.Value)
		c.emit().EmitJump(vm.OpJump, l.done)
		return
	}
	if !c.scope.isBlock {
		c.errorf("break outside of a loop or block")
	}
	c.compileExpr(n.Value)
	c.emit().Emit(vm.OpBreak)
}

func (c *Compiler) compileNext(n *Next) {
	if l := c.innerLoop(); l != nil {
		c.compileExpr(n.Value)
		c.emit().Emit(vm.OpPOP)
		c.emit().EmitJump(vm.OpJump, l.cond)
		return
	}
	if !c.scope.isBlock {
		c.errorf("next outside of a loop or block")
	}
	c.compileExpr(n.Value)
	c.emit().Emit(vm.OpNext)
}

// compileLogical short-circuits: the left value is kept when jump fires.
func (c *Compiler) compileLogical(left, right Node, jump vm.Opcode) {
	e := c.emit()
	end := e.NewLabel()
	c.compileExpr(left)
	e.Emit(vm.OpDUP)
	e.EmitJump(jump, end)
	e.Emit(vm.OpPOP)
	c.compileExpr(right)
	e.Mark(end)
}

func (c *Compiler) compileCase(n *Case) {
	e := c.emit()
	end := e.NewLabel()
	subject := -1
	if n.Subject != nil {
		c.compileExpr(n.Subject)
		subject = c.scope.temp()
		c.emitSlot(vm.OpStoreTemp, vm.OpStoreOuter, 0, subject)
		e.Emit(vm.OpPOP)
	}

	bodies := make([]*vm.Label, len(n.Whens))
	for i, w := range n.Whens {
		bodies[i] = e.NewLabel()
		for _, cond := range w.Conds {
			c.compileExpr(cond)
			if subject >= 0 {
				c.emitSlot(vm.OpPushTemp, vm.OpPushOuter, 0, subject)
				c.scope.builder.Send("===", 1)
			}
			e.EmitJump(vm.OpJumpIf, bodies[i])
		}
	}
	c.compileBody(n.Else)
	e.EmitJump(vm.OpJump, end)
	for i, w := range n.Whens {
		e.Mark(bodies[i])
		c.compileBody(w.Body)
		e.EmitJump(vm.OpJump, end)
	}
	e.Mark(end)
}

// compileBegin lays out
//
//	start: body; JUMP done
//	handler_i: store or drop exception; rescue body; JUMP done
//	done:
func (c *Compiler) compileBegin(n *Begin) {
	e := c.emit()
	done := e.NewLabel()
	start := e.Len()
	c.compileBody(n.Body)
	end := e.Len()
	e.EmitJump(vm.OpJump, done)

	for _, r := range n.Rescues {
		target := e.Len()
		if r.Var != "" {
			c.compileLocalStore(r.Var)
		}
		e.Emit(vm.OpPOP)
		c.compileBody(r.Body)
		e.EmitJump(vm.OpJump, done)
		c.scope.builder.AddHandler(vm.Handler{
			Start:   start,
			End:     end,
			Target:  target,
			Classes: r.Classes,
		})
	}
	e.Mark(done)
}
