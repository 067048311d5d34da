package vm

// Signal tags the non-local control outcomes a body can produce.
type Signal uint8

const (
	// SignalNone is ordinary completion.
	SignalNone Signal = iota
	// SignalNext ends the current block invocation with a value.
	SignalNext
	// SignalBreak ends the iteration that invoked the breaking block.
	SignalBreak
	// SignalReturn ends the block's home method.
	SignalReturn
)

func (s Signal) String() string {
	switch s {
	case SignalNone:
		return "normal"
	case SignalNext:
		return "next"
	case SignalBreak:
		return "break"
	case SignalReturn:
		return "return"
	}
	return "signal?"
}

// Result is the outcome of running a body or calling a method: a value
// plus the control signal that carried it. Signals travel as ordinary
// return values through the interpreter's call chain.
type Result struct {
	Signal Signal
	Value  Value

	target *Frame // SignalReturn: the method frame to return from
	origin *Proc  // SignalBreak: the closure that broke
}

// Normal wraps a plain value.
func Normal(v Value) Result {
	return Result{Value: v}
}

// IsNormal reports whether r carries no control signal.
func (r Result) IsNormal() bool { return r.Signal == SignalNone }

// caught folds a Break raised by blk into an ordinary value. Iteration
// primitives apply it to whatever their block produced: a Break from the
// block they invoked ends them, anything else keeps unwinding.
func (r Result) caught(blk *Proc) Result {
	if r.Signal == SignalBreak && r.origin == blk {
		return Normal(r.Value)
	}
	return r
}

// returnsFrom reports whether r is a Return aimed at f.
func (r Result) returnsFrom(f *Frame) bool {
	return r.Signal == SignalReturn && r.target == f
}
