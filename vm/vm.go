package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("rbot.vm")

// ---------------------------------------------------------------------------
// VM: one guest interpreter instance
// ---------------------------------------------------------------------------

// VM owns every piece of guest state: classes, globals, constants, the
// shared-memory buffer and the interpreter. Separate VMs share nothing.
type VM struct {
	Classes *ClassTable
	Globals map[string]Value
	Consts  map[string]Value

	// Out receives puts/p/print output.
	Out io.Writer

	// MemoryLimit caps SharedMemory.new capacities (0 means unlimited).
	MemoryLimit int

	ObjectClass       *Class
	ClassClass        *Class
	NilClass          *Class
	TrueClass         *Class
	FalseClass        *Class
	IntegerClass      *Class
	FloatClass        *Class
	StringClass       *Class
	SymbolClass       *Class
	ArrayClass        *Class
	HashClass         *Class
	RangeClass        *Class
	ProcClass         *Class
	MethodClass       *Class
	TimeClass         *Class
	SharedMemoryClass *Class

	ExceptionClass     *Class
	StandardErrorClass *Class

	main   *Object
	memory *SharedMemory

	clock Clock

	refIDs       map[any]int64
	immediateIDs map[hashKey]int64
	nextID       int64

	interpreter *Interpreter
	program     *Program
}

// Option configures a VM.
type Option func(*VM)

// WithOutput redirects puts/p/print.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.Out = w }
}

// WithMaxFrameDepth sets the frame depth ceiling.
func WithMaxFrameDepth(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.interpreter.MaxFrameDepth = n
		}
	}
}

// WithStackSlots sizes the local-slot arena.
func WithStackSlots(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.interpreter.arena = make([]Value, n)
		}
	}
}

// WithClosurePolicy selects the closure environment policy.
func WithClosurePolicy(p ClosurePolicy) Option {
	return func(vm *VM) { vm.interpreter.Policy = p }
}

// WithStepLimit bounds the instructions of each top-level invocation.
func WithStepLimit(n int64) Option {
	return func(vm *VM) { vm.interpreter.StepLimit = n }
}

// WithMemoryLimit caps shared-memory capacity.
func WithMemoryLimit(n int) Option {
	return func(vm *VM) { vm.MemoryLimit = n }
}

// NewVM creates and bootstraps a VM.
func NewVM(opts ...Option) *VM {
	vm := &VM{
		Classes: NewClassTable(),
		Globals: make(map[string]Value),
		Consts:  make(map[string]Value),
		Out:     os.Stdout,
		clock:   time.Now,

		refIDs:       make(map[any]int64),
		immediateIDs: make(map[hashKey]int64),
	}
	vm.interpreter = newInterpreter(vm, DefaultMaxFrameDepth, DefaultStackSlots)
	vm.bootstrap()
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Interpreter returns the VM's interpreter.
func (vm *VM) Interpreter() *Interpreter { return vm.interpreter }

// Main returns the top-level self.
func (vm *VM) Main() Value { return FromObject(vm.main) }

// Memory returns the most recently created shared-memory buffer, or nil.
func (vm *VM) Memory() *SharedMemory { return vm.memory }

// Program returns the loaded program, if any.
func (vm *VM) Program() *Program { return vm.program }

// ---------------------------------------------------------------------------
// Class and function definition
// ---------------------------------------------------------------------------

// DefineClass creates a class and binds it to a constant of the same
// name. Redefining an existing class returns it unchanged (reopening).
func (vm *VM) DefineClass(name string, superclass *Class) *Class {
	if c := vm.Classes.Lookup(name); c != nil {
		return c
	}
	if superclass == nil {
		superclass = vm.ObjectClass
	}
	c := vm.Classes.Register(NewClass(name, superclass))
	vm.Consts[name] = FromClass(c)
	return c
}

// DefineGlobalFunction installs a function callable without a receiver,
// as Kernel methods are.
func (vm *VM) DefineGlobalFunction(name string, minArgs, maxArgs int, fn VarFunc) {
	vm.ObjectClass.AddMethodN(name, minArgs, maxArgs, fn)
}

// HasFunction reports whether a top-level function exists.
func (vm *VM) HasFunction(name string) bool {
	return vm.ObjectClass.LookupMethod(name) != nil
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Load installs a program's classes and methods and runs its main body.
// The program is cloned first, so one Program may be loaded into many VMs.
func (vm *VM) Load(ctx context.Context, p *Program) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.Clone()
	for _, cd := range p.Classes {
		if err := vm.defineClassDef(cd); err != nil {
			return err
		}
	}
	for _, m := range p.Methods {
		vm.ObjectClass.DefineMethod(m.Name(), m)
	}
	vm.program = p
	log.Debugf("loaded program %q: %d classes, %d methods", p.Name, len(p.Classes), len(p.Methods))
	if p.Main == nil {
		return nil
	}
	_, err := vm.Execute(ctx, p.Main, vm.Main())
	return err
}

func (vm *VM) defineClassDef(cd *ClassDef) error {
	super := vm.ObjectClass
	if cd.Superclass != "" {
		v, ok := vm.Consts[cd.Superclass]
		if !ok || v.Class() == nil {
			return vm.newError(KindUndefinedVariable, "superclass %s of %s is not defined", cd.Superclass, cd.Name)
		}
		super = v.Class()
	}
	c := vm.Classes.Lookup(cd.Name)
	switch {
	case c == nil:
		c = vm.DefineClass(cd.Name, super)
	case c.native:
		// reopening a builtin class adds methods only
	case cd.Superclass != "" && c.Superclass != super:
		return vm.newError(KindType, "superclass mismatch for class %s", cd.Name)
	}
	for _, n := range cd.Readers {
		c.DefineReader(n)
	}
	for _, n := range cd.Writers {
		c.DefineWriter(n)
	}
	for _, n := range cd.Accessors {
		c.DefineAccessor(n)
	}
	for _, m := range cd.Methods {
		c.DefineMethod(m.Name(), m)
	}
	for _, m := range cd.ClassMethods {
		c.DefineClassMethod(m.Name(), m)
	}
	return nil
}

// Execute runs a detached method body with the given self.
func (vm *VM) Execute(ctx context.Context, m *CompiledMethod, self Value, args ...Value) (Value, error) {
	in := vm.interpreter
	return in.enter(ctx, func() (Result, error) {
		return in.invokeCompiled(m, self, args, nil)
	})
}

// Funcall calls a top-level function with main as self.
func (vm *VM) Funcall(ctx context.Context, name string, args ...Value) (Value, error) {
	return vm.CallMethod(ctx, vm.Main(), name, args...)
}

// CallMethod sends name to recv as a top-level invocation.
func (vm *VM) CallMethod(ctx context.Context, recv Value, name string, args ...Value) (Value, error) {
	in := vm.interpreter
	return in.enter(ctx, func() (Result, error) {
		return in.Send(recv, name, args, nil)
	})
}

// CallProc invokes a closure as a top-level invocation.
func (vm *VM) CallProc(ctx context.Context, p *Proc, args ...Value) (Value, error) {
	in := vm.interpreter
	return in.enter(ctx, func() (Result, error) {
		r, err := in.CallBlock(p, args, nil)
		if err != nil {
			return r, err
		}
		return r.caught(p), nil
	})
}

// ---------------------------------------------------------------------------
// Instance variables
// ---------------------------------------------------------------------------

func (vm *VM) ivarGet(self Value, name string) Value {
	switch self.kind {
	case KindObject:
		return self.Object().GetIvar(name)
	case KindClass:
		return self.Class().classIvars().GetIvar(name)
	}
	return Nil
}

func (vm *VM) ivarSet(self Value, name string, v Value) error {
	switch self.kind {
	case KindObject:
		self.Object().SetIvar(name, v)
		return nil
	case KindClass:
		self.Class().classIvars().SetIvar(name, v)
		return nil
	}
	return vm.newError(KindType, "can't modify frozen %s", vm.ClassOf(self).Name)
}

// handlerMatches reports whether a rescue entry accepts exc.
func (vm *VM) handlerMatches(h Handler, exc *Exception) bool {
	if len(h.Classes) == 0 {
		return exc.class.IsSubclassOf(vm.StandardErrorClass)
	}
	for _, name := range h.Classes {
		if v, ok := vm.Consts[name]; ok && v.Class() != nil && exc.class.IsSubclassOf(v.Class()) {
			return true
		}
	}
	return false
}

// Raise builds an error carrying a new exception of class c.
func (vm *VM) Raise(c *Class, format string, args ...any) error {
	return errorFromException(&Exception{class: c, Message: fmt.Sprintf(format, args...)})
}

// raiseNamed raises an exception of the named builtin class, falling back
// to RuntimeError.
func (vm *VM) raiseNamed(class, format string, args ...any) error {
	c := vm.Classes.Lookup(class)
	if c == nil {
		c = vm.Classes.Lookup("RuntimeError")
	}
	return vm.Raise(c, format, args...)
}

// needBlock fails a primitive that was called without its block.
func (vm *VM) needBlock(blk *Proc) error {
	if blk == nil {
		return vm.newError(KindLocalJump, "no block given (yield)")
	}
	return nil
}
