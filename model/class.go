package model

import (
	"sort"

	"github.com/chazu/tessera/diag"
)

// TypeDef is a type that owns callables and may conform to protocols.
type TypeDef interface {
	TypeName() string
	Position() diag.Position
	Conformances() []*Protocol
	LookupMethod(name string) *Callable
}

// Field is an instance variable. Offset is assigned at finalization.
type Field struct {
	Name string  `yaml:"name" cbor:"name"`
	Type TypeRef `yaml:"type" cbor:"type"`

	Offset int `yaml:"-" cbor:"-"`
}

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class is a reference type with single inheritance and dynamically
// dispatched methods.
type Class struct {
	Name                 string        `yaml:"name" cbor:"name"`
	Superclass           string        `yaml:"superclass,omitempty" cbor:"superclass,omitempty"`
	Fields               []Field       `yaml:"fields,omitempty" cbor:"fields,omitempty"`
	Methods              []*Callable   `yaml:"methods,omitempty" cbor:"methods,omitempty"`
	TypeMethods          []*Callable   `yaml:"type-methods,omitempty" cbor:"type-methods,omitempty"`
	Initializers         []*Callable   `yaml:"initializers,omitempty" cbor:"initializers,omitempty"`
	Protocols            []string      `yaml:"protocols,omitempty" cbor:"protocols,omitempty"`
	InheritsInitializers bool          `yaml:"inherits-initializers,omitempty" cbor:"inherits-initializers,omitempty"`
	Pos                  diag.Position `yaml:"pos,omitempty" cbor:"pos,omitempty"`

	// Set by Resolve.
	Super    *Class      `yaml:"-" cbor:"-"`
	Package  *Package    `yaml:"-" cbor:"-"`
	Index    int         `yaml:"-" cbor:"-"`
	Conforms []*Protocol `yaml:"-" cbor:"-"`

	// Set at finalization. Size includes inherited fields.
	Size int `yaml:"-" cbor:"-"`
}

func (c *Class) TypeName() string          { return c.Name }
func (c *Class) Position() diag.Position   { return c.Pos }
func (c *Class) Conformances() []*Protocol { return c.Conforms }
func (c *Class) String() string            { return c.Name }

// Superclasses returns all superclasses from immediate parent to root.
func (c *Class) Superclasses() []*Class {
	var result []*Class
	for current := c.Super; current != nil; current = current.Super {
		result = append(result, current)
	}
	return result
}

// Depth returns the inheritance depth (0 for a root class).
func (c *Class) Depth() int {
	depth := 0
	for current := c.Super; current != nil; current = current.Super {
		depth++
	}
	return depth
}

// IsSubclassOf returns true if c is a subclass of other (or is the same class).
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.Super {
		if current == other {
			return true
		}
	}
	return false
}

// OwnMethod returns the method declared directly on c.
func (c *Class) OwnMethod(name string) *Callable {
	return findCallable(c.Methods, name)
}

// LookupMethod finds a method on c or its superclasses.
func (c *Class) LookupMethod(name string) *Callable {
	for current := c; current != nil; current = current.Super {
		if m := current.OwnMethod(name); m != nil {
			return m
		}
	}
	return nil
}

// LookupTypeMethod finds a type method on c or its superclasses.
func (c *Class) LookupTypeMethod(name string) *Callable {
	for current := c; current != nil; current = current.Super {
		if m := findCallable(current.TypeMethods, name); m != nil {
			return m
		}
	}
	return nil
}

// LookupInitializer finds an initializer declared on c, or inherited when c
// inherits its superclass's initializers.
func (c *Class) LookupInitializer(name string) *Callable {
	for current := c; current != nil; current = current.Super {
		if m := findCallable(current.Initializers, name); m != nil {
			return m
		}
		if !current.InheritsInitializers {
			return nil
		}
	}
	return nil
}

// Field returns the named field, searching superclasses.
func (c *Class) Field(name string) (Field, bool) {
	for current := c; current != nil; current = current.Super {
		for _, f := range current.Fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return Field{}, false
}

// AllFields returns inherited fields followed by c's own.
func (c *Class) AllFields() []Field {
	if c.Super == nil {
		return c.Fields
	}
	inherited := c.Super.AllFields()
	result := make([]Field, len(inherited)+len(c.Fields))
	copy(result, inherited)
	copy(result[len(inherited):], c.Fields)
	return result
}

// Callables returns methods, type methods and initializers in declaration
// order.
func (c *Class) Callables() []*Callable {
	all := make([]*Callable, 0, len(c.Methods)+len(c.TypeMethods)+len(c.Initializers))
	all = append(all, c.Methods...)
	all = append(all, c.TypeMethods...)
	return append(all, c.Initializers...)
}

// SortByDepth returns classes ordered so superclasses come before
// subclasses. Ties keep program order.
func SortByDepth(classes []*Class) []*Class {
	sorted := make([]*Class, len(classes))
	copy(sorted, classes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Depth() < sorted[j].Depth()
	})
	return sorted
}

// ---------------------------------------------------------------------------
// Value types
// ---------------------------------------------------------------------------

// ValueType is stored inline. Its methods are statically dispatched through
// the function domain; it is addressed by a box identifier when boxed.
type ValueType struct {
	Name         string        `yaml:"name" cbor:"name"`
	Fields       []Field       `yaml:"fields,omitempty" cbor:"fields,omitempty"`
	Methods      []*Callable   `yaml:"methods,omitempty" cbor:"methods,omitempty"`
	TypeMethods  []*Callable   `yaml:"type-methods,omitempty" cbor:"type-methods,omitempty"`
	Initializers []*Callable   `yaml:"initializers,omitempty" cbor:"initializers,omitempty"`
	Protocols    []string      `yaml:"protocols,omitempty" cbor:"protocols,omitempty"`
	Pos          diag.Position `yaml:"pos,omitempty" cbor:"pos,omitempty"`

	Package  *Package    `yaml:"-" cbor:"-"`
	Conforms []*Protocol `yaml:"-" cbor:"-"`

	// Set at finalization.
	BoxID    uint16      `yaml:"-" cbor:"-"`
	Size     int         `yaml:"-" cbor:"-"`
	Adapters []*Callable `yaml:"-" cbor:"-"`
}

func (v *ValueType) TypeName() string          { return v.Name }
func (v *ValueType) Position() diag.Position   { return v.Pos }
func (v *ValueType) Conformances() []*Protocol { return v.Conforms }
func (v *ValueType) String() string            { return v.Name }

func (v *ValueType) LookupMethod(name string) *Callable {
	return findCallable(v.Methods, name)
}

func (v *ValueType) LookupTypeMethod(name string) *Callable {
	return findCallable(v.TypeMethods, name)
}

func (v *ValueType) LookupInitializer(name string) *Callable {
	return findCallable(v.Initializers, name)
}

// Field returns the named field.
func (v *ValueType) Field(name string) (Field, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Callables returns declared callables followed by synthesized adapters.
func (v *ValueType) Callables() []*Callable {
	all := make([]*Callable, 0, len(v.Methods)+len(v.TypeMethods)+len(v.Initializers)+len(v.Adapters))
	all = append(all, v.Methods...)
	all = append(all, v.TypeMethods...)
	all = append(all, v.Initializers...)
	return append(all, v.Adapters...)
}

// ---------------------------------------------------------------------------
// Protocols
// ---------------------------------------------------------------------------

// Protocol is a named, ordered set of method signatures. Conformance is
// checked structurally against the declaring type's methods.
type Protocol struct {
	Name    string        `yaml:"name" cbor:"name"`
	Methods []*Callable   `yaml:"methods,omitempty" cbor:"methods,omitempty"`
	Pos     diag.Position `yaml:"pos,omitempty" cbor:"pos,omitempty"`

	Package *Package `yaml:"-" cbor:"-"`
	Index   int      `yaml:"-" cbor:"-"`
}

func (p *Protocol) String() string { return p.Name }

// MethodIndex returns the declaration index of a protocol method, or -1.
func (p *Protocol) MethodIndex(name string) int {
	for i, m := range p.Methods {
		if m.Name == name {
			return i
		}
	}
	return -1
}

func findCallable(list []*Callable, name string) *Callable {
	for _, c := range list {
		if c.Name == name {
			return c
		}
	}
	return nil
}
