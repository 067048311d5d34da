package vm

// Class is a guest class: a name, an optional superclass and two method
// tables, one for instances and one for the class itself.
type Class struct {
	Name        string
	Superclass  *Class
	VTable      *VTable
	ClassVTable *VTable

	// native marks builtin classes whose instances are not *Object
	// (Integer, String, ...). Such classes cannot be instantiated with new.
	native bool

	// ivars holds class-level instance variables.
	ivars *Object
}

// NewClass creates a class with the given superclass. Both method tables
// are linked to the superclass's tables so lookups inherit.
func NewClass(name string, superclass *Class) *Class {
	var parentVT, parentClassVT *VTable
	if superclass != nil {
		parentVT = superclass.VTable
		parentClassVT = superclass.ClassVTable
	}
	c := &Class{Name: name, Superclass: superclass}
	c.VTable = NewVTable(c, parentVT)
	c.ClassVTable = NewVTable(c, parentClassVT)
	return c
}

// IsSubclassOf reports whether c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Superclass {
		if k == other {
			return true
		}
	}
	return false
}

// Ancestors returns c followed by its superclasses.
func (c *Class) Ancestors() []*Class {
	var out []*Class
	for k := c; k != nil; k = k.Superclass {
		out = append(out, k)
	}
	return out
}

func (c *Class) classIvars() *Object {
	if c.ivars == nil {
		c.ivars = NewObject(c)
	}
	return c.ivars
}

// NewInstance allocates an instance with no instance variables set.
func (c *Class) NewInstance() *Object {
	return NewObject(c)
}

// ---------------------------------------------------------------------------
// Method definition
// ---------------------------------------------------------------------------

// DefineMethod adds or replaces an instance method. Compiled methods record
// the class they belong to so super sends can resume the lookup.
func (c *Class) DefineMethod(name string, m Method) {
	if cm, ok := m.(*CompiledMethod); ok {
		cm.class = c
		if cm.name == "" {
			cm.name = name
		}
	}
	c.VTable.AddMethod(name, m)
}

// DefineClassMethod adds or replaces a class-side method.
func (c *Class) DefineClassMethod(name string, m Method) {
	if cm, ok := m.(*CompiledMethod); ok {
		cm.class = c
		cm.IsClassMethod = true
		if cm.name == "" {
			cm.name = name
		}
	}
	c.ClassVTable.AddMethod(name, m)
}

// AddMethod0 registers a zero-argument primitive.
func (c *Class) AddMethod0(name string, fn Method0Func) { c.VTable.AddMethod(name, method0(name, fn)) }

// AddMethod1 registers a one-argument primitive.
func (c *Class) AddMethod1(name string, fn Method1Func) { c.VTable.AddMethod(name, method1(name, fn)) }

// AddMethod2 registers a two-argument primitive.
func (c *Class) AddMethod2(name string, fn Method2Func) { c.VTable.AddMethod(name, method2(name, fn)) }

// AddMethodN registers a primitive taking between minArgs and maxArgs
// arguments.
func (c *Class) AddMethodN(name string, minArgs, maxArgs int, fn VarFunc) {
	c.VTable.AddMethod(name, methodN(name, minArgs, maxArgs, fn))
}

// AddBlockMethod registers a primitive that may receive a block.
func (c *Class) AddBlockMethod(name string, minArgs, maxArgs int, fn NativeFunc) {
	c.VTable.AddMethod(name, NewNativeMethod(name, minArgs, maxArgs, fn))
}

// AddClassMethodN registers a class-side primitive.
func (c *Class) AddClassMethodN(name string, minArgs, maxArgs int, fn VarFunc) {
	c.ClassVTable.AddMethod(name, methodN(name, minArgs, maxArgs, fn))
}

// AddClassBlockMethod registers a class-side primitive that may receive a
// block.
func (c *Class) AddClassBlockMethod(name string, minArgs, maxArgs int, fn NativeFunc) {
	c.ClassVTable.AddMethod(name, NewNativeMethod(name, minArgs, maxArgs, fn))
}

// LookupMethod finds an instance method along the superclass chain.
func (c *Class) LookupMethod(name string) Method {
	return c.VTable.Lookup(name)
}

// LookupClassMethod finds a class-side method along the superclass chain.
func (c *Class) LookupClassMethod(name string) Method {
	return c.ClassVTable.Lookup(name)
}

// ---------------------------------------------------------------------------
// Accessor synthesis
// ---------------------------------------------------------------------------

// DefineReader synthesizes a zero-argument getter returning @name.
func (c *Class) DefineReader(name string) {
	b := NewCompiledMethodBuilder(name, 0)
	ivar := b.AddSymbol("@" + name)
	b.Bytecode().EmitUint16(OpPushIvar, ivar)
	b.Bytecode().Emit(OpReturn)
	c.DefineMethod(name, b.Build())
}

// DefineWriter synthesizes a one-argument setter name= assigning @name
// and returning the assigned value.
func (c *Class) DefineWriter(name string) {
	b := NewCompiledMethodBuilder(name+"=", 1)
	ivar := b.AddSymbol("@" + name)
	b.Bytecode().EmitByte(OpPushTemp, 0)
	b.Bytecode().EmitUint16(OpStoreIvar, ivar)
	b.Bytecode().Emit(OpReturn)
	c.DefineMethod(name+"=", b.Build())
}

// DefineAccessor synthesizes both the getter and the setter.
func (c *Class) DefineAccessor(name string) {
	c.DefineReader(name)
	c.DefineWriter(name)
}

// ---------------------------------------------------------------------------
// ClassTable
// ---------------------------------------------------------------------------

// ClassTable indexes classes by name.
type ClassTable struct {
	classes map[string]*Class
	order   []*Class
}

// NewClassTable creates an empty table.
func NewClassTable() *ClassTable {
	return &ClassTable{classes: make(map[string]*Class)}
}

// Register adds or replaces a class by name.
func (ct *ClassTable) Register(c *Class) *Class {
	if _, ok := ct.classes[c.Name]; !ok {
		ct.order = append(ct.order, c)
	} else {
		for i, k := range ct.order {
			if k.Name == c.Name {
				ct.order[i] = c
			}
		}
	}
	ct.classes[c.Name] = c
	return c
}

// Lookup returns the named class or nil.
func (ct *ClassTable) Lookup(name string) *Class {
	return ct.classes[name]
}

// All returns classes in registration order.
func (ct *ClassTable) All() []*Class {
	return append([]*Class(nil), ct.order...)
}
