package vm

// Method is anything a class can dispatch to: compiled bytecode or a
// native Go primitive.
type Method interface {
	Name() string
	// MethodArity returns the number of required arguments, or -1 when the
	// method accepts a variable count.
	MethodArity() int
}

// NativeFunc is a Go function implementing a method. It receives the
// block passed at the call site (nil when none) and returns a Result so
// that primitives which yield can propagate Break and Return.
type NativeFunc func(in *Interpreter, self Value, args []Value, blk *Proc) (Result, error)

// Method0Func is a primitive taking no arguments and no block.
type Method0Func func(in *Interpreter, self Value) (Value, error)

// Method1Func is a primitive taking one argument.
type Method1Func func(in *Interpreter, self Value, arg Value) (Value, error)

// Method2Func is a primitive taking two arguments.
type Method2Func func(in *Interpreter, self Value, a, b Value) (Value, error)

// NativeMethod wraps a NativeFunc with its name and accepted argument
// range. MaxArgs < 0 means unbounded.
type NativeMethod struct {
	name    string
	MinArgs int
	MaxArgs int
	Fn      NativeFunc
}

// NewNativeMethod creates a native method.
func NewNativeMethod(name string, minArgs, maxArgs int, fn NativeFunc) *NativeMethod {
	return &NativeMethod{name: name, MinArgs: minArgs, MaxArgs: maxArgs, Fn: fn}
}

func (m *NativeMethod) Name() string { return m.name }

func (m *NativeMethod) MethodArity() int {
	if m.MinArgs == m.MaxArgs {
		return m.MinArgs
	}
	return -1
}

// accepts reports whether argc is within the method's range.
func (m *NativeMethod) accepts(argc int) bool {
	return argc >= m.MinArgs && (m.MaxArgs < 0 || argc <= m.MaxArgs)
}

func method0(name string, fn Method0Func) *NativeMethod {
	return NewNativeMethod(name, 0, 0, func(in *Interpreter, self Value, _ []Value, _ *Proc) (Result, error) {
		v, err := fn(in, self)
		return Normal(v), err
	})
}

func method1(name string, fn Method1Func) *NativeMethod {
	return NewNativeMethod(name, 1, 1, func(in *Interpreter, self Value, args []Value, _ *Proc) (Result, error) {
		v, err := fn(in, self, args[0])
		return Normal(v), err
	})
}

func method2(name string, fn Method2Func) *NativeMethod {
	return NewNativeMethod(name, 2, 2, func(in *Interpreter, self Value, args []Value, _ *Proc) (Result, error) {
		v, err := fn(in, self, args[0], args[1])
		return Normal(v), err
	})
}

// VarFunc is a primitive taking a variable argument list and no block.
type VarFunc func(in *Interpreter, self Value, args []Value) (Value, error)

func methodN(name string, minArgs, maxArgs int, fn VarFunc) *NativeMethod {
	return NewNativeMethod(name, minArgs, maxArgs, func(in *Interpreter, self Value, args []Value, _ *Proc) (Result, error) {
		v, err := fn(in, self, args)
		return Normal(v), err
	})
}
