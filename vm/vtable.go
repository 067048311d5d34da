package vm

import "sort"

// VTable holds the method dispatch table for a class.
//
// Methods are keyed by name. Inheritance is handled by walking the parent
// chain when a method is not found locally.
type VTable struct {
	class   *Class
	parent  *VTable
	methods map[string]Method
}

// NewVTable creates an empty table owned by class c.
func NewVTable(c *Class, parent *VTable) *VTable {
	return &VTable{class: c, parent: parent, methods: make(map[string]Method)}
}

// Lookup finds a method by name, walking the inheritance chain.
// Returns nil if no method is found.
func (vt *VTable) Lookup(name string) Method {
	for v := vt; v != nil; v = v.parent {
		if m, ok := v.methods[name]; ok {
			return m
		}
	}
	return nil
}

// LookupLocal finds a method in this table only.
func (vt *VTable) LookupLocal(name string) Method {
	return vt.methods[name]
}

// AddMethod adds or replaces a method. The last definition wins.
func (vt *VTable) AddMethod(name string, m Method) {
	vt.methods[name] = m
}

// RemoveMethod removes a local method.
func (vt *VTable) RemoveMethod(name string) {
	delete(vt.methods, name)
}

// Parent returns the parent table.
func (vt *VTable) Parent() *VTable {
	return vt.parent
}

// Names returns the locally defined method names, sorted.
func (vt *VTable) Names() []string {
	names := make([]string, 0, len(vt.methods))
	for n := range vt.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// allNames returns every method name visible through the chain.
func (vt *VTable) allNames() []string {
	seen := make(map[string]bool)
	var names []string
	for v := vt; v != nil; v = v.parent {
		for n := range v.methods {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}
