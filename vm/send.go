package vm

import "errors"

// ---------------------------------------------------------------------------
// Method dispatch
// ---------------------------------------------------------------------------

// ClassOf returns the class used to dispatch sends to v.
func (vm *VM) ClassOf(v Value) *Class {
	switch v.kind {
	case KindNil:
		return vm.NilClass
	case KindTrue:
		return vm.TrueClass
	case KindFalse:
		return vm.FalseClass
	case KindInt:
		return vm.IntegerClass
	case KindFloat:
		return vm.FloatClass
	case KindSymbol:
		return vm.SymbolClass
	case KindString:
		return vm.StringClass
	case KindArray:
		return vm.ArrayClass
	case KindHash:
		return vm.HashClass
	case KindRange:
		return vm.RangeClass
	case KindObject:
		return v.Object().class
	case KindClass:
		return vm.ClassClass
	case KindProc:
		return vm.ProcClass
	case KindMethod:
		return vm.MethodClass
	case KindException:
		return v.Exception().class
	case KindMemory:
		return vm.SharedMemoryClass
	}
	return vm.ObjectClass
}

// FindMethod resolves name for recv. Class receivers consult class-side
// methods first and then the instance methods of Class.
func (vm *VM) FindMethod(recv Value, name string) Method {
	if c := recv.Class(); c != nil && recv.kind == KindClass {
		if m := c.LookupClassMethod(name); m != nil {
			return m
		}
	}
	return vm.ClassOf(recv).LookupMethod(name)
}

// RespondTo reports whether recv has a method called name.
func (vm *VM) RespondTo(recv Value, name string) bool {
	return vm.FindMethod(recv, name) != nil
}

// Send dispatches name to recv. The args slice is not retained.
func (in *Interpreter) Send(recv Value, name string, args []Value, blk *Proc) (Result, error) {
	m := in.vm.FindMethod(recv, name)
	if m == nil {
		if mm := in.vm.FindMethod(recv, "method_missing"); mm != nil {
			full := make([]Value, 0, len(args)+1)
			full = append(append(full, Sym(name)), args...)
			return in.Invoke(mm, recv, full, blk)
		}
		return Result{}, in.vm.newError(KindNoMethod, "undefined method '%s' for %s", name, in.vm.describe(recv))
	}
	return in.Invoke(m, recv, args, blk)
}

// isRaise reports the Kernel primitives whose errors are attributed to the
// calling frame.
func isRaise(name string) bool {
	return name == "raise" || name == "fail"
}

// Invoke runs m with self bound to recv.
func (in *Interpreter) Invoke(m Method, recv Value, args []Value, blk *Proc) (Result, error) {
	switch m := m.(type) {
	case *CompiledMethod:
		return in.invokeCompiled(m, recv, args, blk)
	case *NativeMethod:
		if !m.accepts(len(args)) {
			return Result{}, in.vm.arityError(len(args), m.MinArgs, m.MaxArgs)
		}
		if len(args) > 0 {
			args = append([]Value(nil), args...)
		}
		r, err := m.Fn(in, recv, args, blk)
		if err != nil {
			err = in.vm.guestError(err)
			var e *Error
			if errors.As(err, &e) && len(e.Backtrace) == 0 && !isRaise(m.name) {
				e.addFrame(in.vm.ClassOf(recv).Name + "#" + m.name)
			}
		}
		return r, err
	}
	return Result{}, internalError("unsupported method type %T", m)
}

func (in *Interpreter) invokeCompiled(m *CompiledMethod, self Value, args []Value, blk *Proc) (Result, error) {
	if len(args) != m.Arity {
		return Result{}, in.vm.arityError(len(args), m.Arity, m.Arity)
	}
	f, err := in.pushFrame(m, self)
	if err != nil {
		return Result{}, err
	}
	copy(f.slots, args)
	f.block = blk
	f.home = f

	r, err := in.run(f)
	in.popFrame(f)
	if err != nil {
		return Result{}, annotate(err, f)
	}
	if r.returnsFrom(f) {
		return Normal(r.Value), nil
	}
	return r, nil
}

// sendSuper continues the lookup of the current method's name above the
// class that defined it.
func (in *Interpreter) sendSuper(f *Frame, name string, args []Value, blk *Proc) (Result, error) {
	home := f
	if f.proc != nil && f.proc.home != nil {
		home = f.proc.home
	}
	owner := home.method.class
	if owner == nil || owner.Superclass == nil {
		return Result{}, in.vm.newError(KindNoMethod, "super: no superclass method '%s'", name)
	}
	var m Method
	if home.method.IsClassMethod {
		m = owner.Superclass.LookupClassMethod(name)
	} else {
		m = owner.Superclass.LookupMethod(name)
	}
	if m == nil {
		return Result{}, in.vm.newError(KindNoMethod, "super: no superclass method '%s' for %s", name, in.vm.describe(f.self))
	}
	return in.Invoke(m, f.self, args, blk)
}

func annotate(err error, f *Frame) error {
	var e *Error
	if errors.As(err, &e) {
		e.addFrame(f.method.displayName())
	}
	return err
}

func (vm *VM) arityError(given, min, max int) error {
	switch {
	case min == max:
		return vm.newError(KindArity, "wrong number of arguments (given %d, expected %d)", given, min)
	case max < 0:
		return vm.newError(KindArity, "wrong number of arguments (given %d, expected %d+)", given, min)
	}
	return vm.newError(KindArity, "wrong number of arguments (given %d, expected %d..%d)", given, min, max)
}

// describe renders a receiver for error messages.
func (vm *VM) describe(v Value) string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindTrue, KindFalse:
		return inspectValue(v, true)
	case KindClass:
		return "class " + v.Class().Name
	case KindObject:
		if v.Object() == vm.main {
			return "main:Object"
		}
	}
	return "an instance of " + vm.ClassOf(v).Name
}

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

// makeClosure captures f's scope for body.
func (in *Interpreter) makeClosure(f *Frame, body *CompiledMethod, lambda bool) *Proc {
	return &Proc{
		Body:   body,
		Self:   f.self,
		Env:    f.capture(in.Policy),
		Lambda: lambda,
		home:   f.home,
		block:  f.methodBlock(),
	}
}

// CallBlock invokes a closure in a fresh frame. Next is folded into the
// block's value here; Break and Return are left for the caller, except
// that a lambda consumes its own Break and Return.
func (in *Interpreter) CallBlock(p *Proc, args []Value, blk *Proc) (Result, error) {
	if p.native != nil {
		return p.native(in, append([]Value(nil), args...))
	}
	for e := p.Env; e != nil; e = e.outer {
		if e.expired {
			return Result{}, in.vm.newError(KindClosureExpired, "closure defined in %s called after its frame returned", e.owner.method)
		}
	}
	body := p.Body
	if p.Lambda && len(args) != body.Arity {
		return Result{}, in.vm.arityError(len(args), body.Arity, body.Arity)
	}
	f, err := in.pushFrame(body, p.Self)
	if err != nil {
		return Result{}, err
	}
	bindBlockArgs(f.slots, body.Arity, args, p.Lambda)
	f.proc = p
	f.outer = p.Env
	f.block = blk
	if p.Lambda {
		f.home = f
	} else {
		f.home = p.home
	}

	r, err := in.run(f)
	in.popFrame(f)
	if err != nil {
		return Result{}, annotate(err, f)
	}
	switch {
	case r.Signal == SignalNext:
		return Normal(r.Value), nil
	case p.Lambda && (r.returnsFrom(f) || r.Signal == SignalBreak && r.origin == p):
		return Normal(r.Value), nil
	}
	return r, nil
}

// Yield calls blk on behalf of an iteration primitive. stop reports that
// the primitive must end now and return r: either blk broke (the break
// value is folded into r) or a return is unwinding through it.
func (in *Interpreter) Yield(blk *Proc, args ...Value) (r Result, stop bool, err error) {
	r, err = in.CallBlock(blk, args, nil)
	switch {
	case err != nil:
		return r, true, err
	case r.IsNormal():
		return r, false, nil
	}
	return r.caught(blk), true, nil
}

// bindBlockArgs binds block parameters. Procs are lenient: missing
// arguments are nil, extras are dropped, and a lone array argument is
// spread across several parameters.
func bindBlockArgs(slots []Value, arity int, args []Value, lambda bool) {
	if !lambda && arity > 1 && len(args) == 1 && args[0].kind == KindArray {
		args = args[0].Array().Elems
	}
	for i := 0; i < arity && i < len(slots); i++ {
		if i < len(args) {
			slots[i] = args[i]
		} else {
			slots[i] = Nil
		}
	}
}

// toBlock converts the block operand of SEND_BLOCK.
func (vm *VM) toBlock(v Value) (*Proc, error) {
	switch v.kind {
	case KindNil:
		return nil, nil
	case KindProc:
		return v.Proc(), nil
	case KindMethod:
		return vm.methodProc(v.Method()), nil
	case KindSymbol:
		return vm.symbolProc(v.Symbol()), nil
	}
	return nil, vm.newError(KindType, "wrong argument type %s (expected Proc)", vm.ClassOf(v).Name)
}

// ---------------------------------------------------------------------------
// Helpers for primitives
// ---------------------------------------------------------------------------

// Call sends name to recv and requires an ordinary result.
func (in *Interpreter) Call(recv Value, name string, args ...Value) (Value, error) {
	r, err := in.Send(recv, name, args, nil)
	if err != nil {
		return Nil, err
	}
	if !r.IsNormal() {
		return Nil, internalError("%s signal escaped %s", r.Signal, name)
	}
	return r.Value, nil
}

// ToS converts v to its string form, honoring user-defined to_s.
func (in *Interpreter) ToS(v Value) (string, error) {
	switch v.kind {
	case KindString:
		return string(v.Str().B), nil
	case KindObject, KindException:
		s, err := in.Call(v, "to_s")
		if err != nil {
			return "", err
		}
		if s.IsString() {
			return string(s.Str().B), nil
		}
		return inspectValue(s, false), nil
	}
	return inspectValue(v, false), nil
}

// Inspect renders v the way p does, honoring user-defined inspect.
func (in *Interpreter) Inspect(v Value) (string, error) {
	if v.kind == KindObject {
		if m := in.vm.FindMethod(v, "inspect"); m != nil {
			if _, native := m.(*NativeMethod); !native {
				s, err := in.Call(v, "inspect")
				if err != nil {
					return "", err
				}
				return inspectValue(s, false), nil
			}
		}
		if v.Object() == in.vm.main {
			return "main", nil
		}
	}
	return inspectValue(v, true), nil
}

// methodProc adapts a bound method to a block.
func (vm *VM) methodProc(bm *BoundMethod) *Proc {
	return &Proc{
		Lambda: true,
		arity:  bm.Method.MethodArity(),
		native: func(in *Interpreter, args []Value) (Result, error) {
			return in.Invoke(bm.Method, bm.Receiver, args, nil)
		},
	}
}

// symbolProc adapts :name to a block that sends name to its first
// argument.
func (vm *VM) symbolProc(name string) *Proc {
	return &Proc{
		Lambda: true,
		arity:  -2,
		native: func(in *Interpreter, args []Value) (Result, error) {
			if len(args) == 0 {
				return Result{}, in.vm.newError(KindArity, "no receiver given")
			}
			return in.Send(args[0], name, args[1:], nil)
		},
	}
}
