package compiler

// Constructors for writing ASTs by hand. They keep sample programs and
// tests close to the Ruby they stand for:
//
//	Send(Local("i"), "+", Int(1))      // i + 1
//	Fn("puts", Str("hi"))              // puts "hi"
//	Fn("loop").WithBlock(Do(nil, ...)) // loop do ... end

func Nil() Node { return &NilLit{} }

func True() Node { return &BoolLit{Value: true} }

func False() Node { return &BoolLit{Value: false} }

func Self() Node { return &SelfRef{} }

func Int(v int64) Node { return &IntLit{Value: v} }

func Float(v float64) Node { return &FloatLit{Value: v} }

func Str(s string) Node { return &StrLit{Value: s} }

func Sym(s string) Node { return &SymLit{Value: s} }

// Fmt is an interpolated string.
func Fmt(parts ...Node) Node { return &Interp{Parts: parts} }

func Arr(elems ...Node) Node { return &ArrayLit{Elems: elems} }

// Hash builds a hash literal from alternating keys and values.
func Hash(kv ...Node) Node {
	h := &HashLit{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Keys = append(h.Keys, kv[i])
		h.Values = append(h.Values, kv[i+1])
	}
	return h
}

// Range is from..to.
func Range(from, to Node) Node { return &RangeLit{From: from, To: to} }

// RangeExcl is from...to.
func RangeExcl(from, to Node) Node { return &RangeLit{From: from, To: to, Exclusive: true} }

func Local(name string) Node { return &LocalVar{Name: name} }

func Set(name string, v Node) Node { return &LocalAssign{Name: name, Value: v} }

func Ivar(name string) Node { return &IvarRef{Name: name} }

func SetIvar(name string, v Node) Node { return &IvarAssign{Name: name, Value: v} }

func Global(name string) Node { return &GlobalRef{Name: name} }

func SetGlobal(name string, v Node) Node { return &GlobalAssign{Name: name, Value: v} }

func Const(name string) Node { return &ConstRef{Name: name} }

func SetConst(name string, v Node) Node { return &ConstAssign{Name: name, Value: v} }

// Send is recv.name(args...).
func Send(recv Node, name string, args ...Node) *Call {
	return &Call{Receiver: recv, Name: name, Args: args}
}

// Fn calls a method on self, the way top-level functions are called.
func Fn(name string, args ...Node) *Call { return &Call{Name: name, Args: args} }

// Index is recv[args...].
func Index(recv Node, args ...Node) *Call { return Send(recv, "[]", args...) }

// SetIndex is recv[idx] = v.
func SetIndex(recv, idx, v Node) *Call { return Send(recv, "[]=", idx, v) }

// Incr is name += by.
func Incr(name string, by Node) Node { return Set(name, Send(Local(name), "+", by)) }

// Do is a block literal.
func Do(params []string, body ...Node) *Block { return &Block{Params: params, Body: body} }

// Lambda is ->(params) { body }.
func Lambda(params []string, body ...Node) *Block {
	return &Block{Params: params, Body: body, Lambda: true}
}

func Params(names ...string) []string { return names }

func YieldWith(args ...Node) Node { return &Yield{Args: args} }

func SuperWith(args ...Node) Node { return &Super{Args: args} }

// IfThen is if cond ... end; chain Otherwise for the else branch.
func IfThen(cond Node, then ...Node) *If { return &If{Cond: cond, Then: then} }

// Otherwise attaches an else branch.
func (n *If) Otherwise(body ...Node) *If {
	n.Else = body
	return n
}

// Unless is unless cond ... end.
func Unless(cond Node, then ...Node) *If { return &If{Cond: &Not{Operand: cond}, Then: then} }

// Loop is while cond ... end.
func Loop(cond Node, body ...Node) Node { return &While{Cond: cond, Body: body} }

// Until is until cond ... end.
func Until(cond Node, body ...Node) Node { return &While{Cond: cond, Body: body, Until: true} }

func AndAlso(l, r Node) Node { return &And{Left: l, Right: r} }

func OrElse(l, r Node) Node { return &Or{Left: l, Right: r} }

func Negate(n Node) Node { return &Not{Operand: n} }

func Ret(v Node) Node { return &Return{Value: v} }

func Brk(v Node) Node { return &Break{Value: v} }

func Nxt(v Node) Node { return &Next{Value: v} }

// Stmts groups statements into one expression.
func Stmts(n ...Node) Node { return &Seq{Body: n} }

// Method is def name(params) body end.
func Method(name string, params []string, body ...Node) *Def {
	return &Def{Name: name, Params: params, Body: body}
}
