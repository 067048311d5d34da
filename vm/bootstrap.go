package vm

// Engine identification exposed to guest scripts.
const (
	EngineName    = "rbot"
	EngineVersion = "3.3.0"
)

// exceptionHierarchy lists builtin exception classes after their parents.
var exceptionHierarchy = [][2]string{
	{"StandardError", "Exception"},
	{"RuntimeError", "StandardError"},
	{"FrozenError", "RuntimeError"},
	{"ArgumentError", "StandardError"},
	{"NameError", "StandardError"},
	{"NoMethodError", "NameError"},
	{"IndexError", "StandardError"},
	{"KeyError", "IndexError"},
	{"StopIteration", "IndexError"},
	{"RangeError", "StandardError"},
	{"FloatDomainError", "RangeError"},
	{"TypeError", "StandardError"},
	{"ZeroDivisionError", "StandardError"},
	{"LocalJumpError", "StandardError"},
	{"SystemStackError", "Exception"},
	{"ScriptError", "Exception"},
	{"NotImplementedError", "ScriptError"},
}

// bootstrap creates the builtin classes, constants and primitives.
func (vm *VM) bootstrap() {
	vm.ObjectClass = vm.DefineClass("Object", nil)
	vm.ClassClass = vm.DefineClass("Class", vm.ObjectClass)
	vm.Consts["Kernel"] = FromClass(vm.ObjectClass)

	native := func(name string, super *Class) *Class {
		c := vm.DefineClass(name, super)
		c.native = true
		return c
	}
	vm.NilClass = native("NilClass", nil)
	vm.TrueClass = native("TrueClass", nil)
	vm.FalseClass = native("FalseClass", nil)
	numeric := native("Numeric", nil)
	vm.IntegerClass = native("Integer", numeric)
	vm.FloatClass = native("Float", numeric)
	vm.StringClass = native("String", nil)
	vm.SymbolClass = native("Symbol", nil)
	vm.ArrayClass = native("Array", nil)
	vm.HashClass = native("Hash", nil)
	vm.RangeClass = native("Range", nil)
	vm.ProcClass = native("Proc", nil)
	vm.MethodClass = native("Method", nil)
	vm.TimeClass = native("Time", nil)
	vm.SharedMemoryClass = native("SharedMemory", nil)

	vm.ExceptionClass = vm.DefineClass("Exception", nil)
	for _, pair := range exceptionHierarchy {
		vm.DefineClass(pair[0], vm.Classes.Lookup(pair[1]))
	}
	vm.StandardErrorClass = vm.Classes.Lookup("StandardError")

	vm.Consts["RUBY_ENGINE"] = NewString(EngineName)
	vm.Consts["RUBY_VERSION"] = NewString(EngineVersion)
	vm.main = NewObject(vm.ObjectClass)

	vm.registerObjectPrimitives()
	vm.registerKernelPrimitives()
	vm.registerClassPrimitives()
	vm.registerBooleanPrimitives()
	vm.registerIntegerPrimitives()
	vm.registerFloatPrimitives()
	vm.registerStringPrimitives()
	vm.registerSymbolPrimitives()
	vm.registerArrayPrimitives()
	vm.registerHashPrimitives()
	vm.registerRangePrimitives()
	vm.registerBlockPrimitives()
	vm.registerExceptionPrimitives()
	vm.registerTimePrimitives()
	vm.registerSharedMemoryPrimitives()
}
