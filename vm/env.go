package vm

// ClosurePolicy selects how block environments relate to the frames that
// define them.
type ClosurePolicy uint8

const (
	// PromoteCaptured moves a frame's slots to the heap the first time a
	// block captures them. The frame keeps working on the promoted slots,
	// so block and frame share live storage and the block stays valid
	// after the frame returns.
	PromoteCaptured ClosurePolicy = iota

	// StrictLifetime lets environments alias the frame's slot window.
	// When the frame is popped the environment expires and any later use
	// of a closure over it fails with ClosureExpired.
	StrictLifetime
)

func (p ClosurePolicy) String() string {
	if p == StrictLifetime {
		return "strict"
	}
	return "promote"
}

// ParseClosurePolicy maps a config string to a policy.
func ParseClosurePolicy(s string) (ClosurePolicy, bool) {
	switch s {
	case "", "promote":
		return PromoteCaptured, true
	case "strict":
		return StrictLifetime, true
	}
	return PromoteCaptured, false
}

// Env is a captured lexical scope: the slots of one frame plus the scope
// that encloses it.
type Env struct {
	slots   []Value
	outer   *Env
	owner   *Frame
	expired bool
}

// Expired reports whether the defining frame has been popped under the
// strict policy.
func (e *Env) Expired() bool { return e.expired }

// Len returns the number of captured slots.
func (e *Env) Len() int { return len(e.slots) }

// up walks depth-1 links outward from e (depth 1 is e itself).
func (e *Env) up(depth int) *Env {
	for ; e != nil && depth > 1; depth-- {
		e = e.outer
	}
	return e
}

// Proc is a closure: a block body, the self and environment it was created
// in, and the method frame a return inside it targets.
type Proc struct {
	Body   *CompiledMethod
	Self   Value
	Env    *Env
	Lambda bool

	home  *Frame // method (or lambda) frame that return unwinds to
	block *Proc  // block of the home method, for yield inside the body

	// native replaces Body for procs made from symbols and methods.
	native func(in *Interpreter, args []Value) (Result, error)
	arity  int
}

// Arity returns the declared parameter count.
func (p *Proc) Arity() int {
	if p.native != nil {
		return p.arity
	}
	if p.Lambda {
		return p.Body.Arity
	}
	if p.Body.Arity == 0 {
		return 0
	}
	return -p.Body.Arity
}

// asLambda returns a lambda copy of p sharing the same environment.
func (p *Proc) asLambda() *Proc {
	q := *p
	q.Lambda = true
	return &q
}

// Frame is one activation record: a method invocation or a block call.
type Frame struct {
	method *CompiledMethod
	self   Value
	slots  []Value
	pc     int
	base   int // operand stack height on entry

	env   *Env  // this frame's captured scope, once something captured it
	outer *Env  // block frames: the scope the block closed over
	proc  *Proc // block frames: the closure being run
	block *Proc // method frames: the block passed by the caller
	home  *Frame

	arenaTop int // slot arena mark to restore on pop
	live     bool
	parent   *Frame
}

// Method returns the body being executed.
func (f *Frame) Method() *CompiledMethod { return f.method }

// Self returns the frame's receiver.
func (f *Frame) Self() Value { return f.self }

// IsBlock reports whether f runs a block body.
func (f *Frame) IsBlock() bool { return f.proc != nil }

// Live reports whether f is still on the call stack.
func (f *Frame) Live() bool { return f.live }

// methodBlock returns the block that yield in this frame calls.
func (f *Frame) methodBlock() *Proc {
	if f.proc != nil {
		return f.proc.block
	}
	return f.block
}

// capture returns the environment for a closure created in f, creating or
// promoting it on first use.
func (f *Frame) capture(policy ClosurePolicy) *Env {
	if f.env != nil {
		return f.env
	}
	env := &Env{outer: f.outer, owner: f}
	if policy == PromoteCaptured {
		env.slots = make([]Value, len(f.slots))
		copy(env.slots, f.slots)
		f.slots = env.slots
	} else {
		env.slots = f.slots
	}
	f.env = env
	return env
}
