package compiler

// ---------------------------------------------------------------------------
// AST: the Ruby subset understood by the code generator
// ---------------------------------------------------------------------------

// Node is the interface implemented by all expression nodes. Every node
// leaves exactly one value on the operand stack when compiled.
type Node interface {
	node() // marker method
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// NilLit is nil.
type NilLit struct{}

// BoolLit is true or false.
type BoolLit struct {
	Value bool
}

// SelfRef is self.
type SelfRef struct{}

// IntLit is an integer literal.
type IntLit struct {
	Value int64
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	Value float64
}

// StrLit is a string literal. Each evaluation produces a fresh string.
type StrLit struct {
	Value string
}

// SymLit is a symbol literal (:name).
type SymLit struct {
	Value string
}

// Interp is an interpolated string: "a#{b}c".
type Interp struct {
	Parts []Node
}

// ArrayLit is [a, b, c].
type ArrayLit struct {
	Elems []Node
}

// HashLit is {k => v, ...}.
type HashLit struct {
	Keys   []Node
	Values []Node
}

// RangeLit is a..b or a...b.
type RangeLit struct {
	From      Node
	To        Node
	Exclusive bool
}

func (*NilLit) node()   {}
func (*BoolLit) node()  {}
func (*SelfRef) node()  {}
func (*IntLit) node()   {}
func (*FloatLit) node() {}
func (*StrLit) node()   {}
func (*SymLit) node()   {}
func (*Interp) node()   {}
func (*ArrayLit) node() {}
func (*HashLit) node()  {}
func (*RangeLit) node() {}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// LocalVar reads a local variable or block parameter.
type LocalVar struct {
	Name string
}

// LocalAssign is name = value.
type LocalAssign struct {
	Name  string
	Value Node
}

// IvarRef reads @name.
type IvarRef struct {
	Name string
}

// IvarAssign is @name = value.
type IvarAssign struct {
	Name  string
	Value Node
}

// GlobalRef reads $name.
type GlobalRef struct {
	Name string
}

// GlobalAssign is $name = value.
type GlobalAssign struct {
	Name  string
	Value Node
}

// ConstRef reads a constant.
type ConstRef struct {
	Name string
}

// ConstAssign is NAME = value.
type ConstAssign struct {
	Name  string
	Value Node
}

func (*LocalVar) node()     {}
func (*LocalAssign) node()  {}
func (*IvarRef) node()      {}
func (*IvarAssign) node()   {}
func (*GlobalRef) node()    {}
func (*GlobalAssign) node() {}
func (*ConstRef) node()     {}
func (*ConstAssign) node()  {}

// ---------------------------------------------------------------------------
// Calls and blocks
// ---------------------------------------------------------------------------

// Call is a message send. A nil Receiver sends to self, which is how
// top-level functions and private helpers are called.
type Call struct {
	Receiver Node
	Name     string
	Args     []Node
	Block    *Block // literal block, or nil
	BlockArg Node   // &expr, or nil
}

// WithBlock attaches a literal block and returns the call.
func (c *Call) WithBlock(b *Block) *Call {
	c.Block = b
	return c
}

// Block is a do...end / {...} literal, or a lambda body when Lambda is set.
type Block struct {
	Params []string
	Body   []Node
	Lambda bool
}

// Super calls the superclass implementation of the current method.
type Super struct {
	Args []Node
}

// Yield calls the block passed to the current method.
type Yield struct {
	Args []Node
}

// BlockGiven is block_given?.
type BlockGiven struct{}

func (*Call) node()       {}
func (*Block) node()      {}
func (*Super) node()      {}
func (*Yield) node()      {}
func (*BlockGiven) node() {}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// Seq evaluates statements in order; its value is the last one.
type Seq struct {
	Body []Node
}

// If is if/elsif/else. Unless is expressed with Not.
type If struct {
	Cond Node
	Then []Node
	Else []Node
}

// While is while cond ... end, or until when Until is set. Its value is nil.
type While struct {
	Cond  Node
	Body  []Node
	Until bool
}

// Case is case subject when ... end. A nil Subject tests each condition
// for truthiness.
type Case struct {
	Subject Node
	Whens   []When
	Else    []Node
}

// When is one branch of a Case.
type When struct {
	Conds []Node
	Body  []Node
}

// And is a && b.
type And struct {
	Left, Right Node
}

// Or is a || b.
type Or struct {
	Left, Right Node
}

// Not is !a.
type Not struct {
	Operand Node
}

// Return is return value.
type Return struct {
	Value Node
}

// Break is break value.
type Break struct {
	Value Node
}

// Next is next value.
type Next struct {
	Value Node
}

// Begin is begin ... rescue ... end.
type Begin struct {
	Body    []Node
	Rescues []Rescue
}

// Rescue is one rescue clause. Empty Classes rescues StandardError.
// Var, when set, receives the exception.
type Rescue struct {
	Classes []string
	Var     string
	Body    []Node
}

func (*Seq) node()    {}
func (*If) node()     {}
func (*While) node()  {}
func (*Case) node()   {}
func (*And) node()    {}
func (*Or) node()     {}
func (*Not) node()    {}
func (*Return) node() {}
func (*Break) node()  {}
func (*Next) node()   {}
func (*Begin) node()  {}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// Def is a method definition.
type Def struct {
	Name   string
	Params []string
	Body   []Node
}

// ClassDecl is a class definition.
type ClassDecl struct {
	Name         string
	Superclass   string
	Readers      []string
	Writers      []string
	Accessors    []string
	Methods      []*Def
	ClassMethods []*Def
}

// Script is a whole program: classes, top-level methods and the main body.
type Script struct {
	Name    string
	Classes []*ClassDecl
	Defs    []*Def
	Main    []Node
}
