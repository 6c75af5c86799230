package model

import (
	"fmt"

	"github.com/chazu/tessera/diag"
)

// CallableKind distinguishes the dispatch conventions of callables.
type CallableKind string

const (
	KindMethod      CallableKind = "method"
	KindTypeMethod  CallableKind = "type-method"
	KindInitializer CallableKind = "initializer"
	KindFunction    CallableKind = "function"
	KindClosure     CallableKind = "closure"
	KindAdapter     CallableKind = "adapter"
)

// Access is the visibility of a callable.
type Access string

const (
	Public    Access = "public"
	Protected Access = "protected"
	Private   Access = "private"
)

// rank orders access levels from most to least restrictive.
func (a Access) rank() int {
	switch a {
	case Private:
		return 0
	case Protected:
		return 1
	}
	return 2
}

// Narrower reports whether a is more restrictive than b.
func (a Access) Narrower(b Access) bool {
	return a.rank() < b.rank()
}

// Var is a named, typed parameter or local variable.
type Var struct {
	Name string  `yaml:"name" cbor:"name"`
	Type TypeRef `yaml:"type" cbor:"type"`
}

// Callable is a method, type method, initializer, function, closure or
// synthesized adapter. Dispatch indices and the used flag are not stored
// here; they belong to the compilation session.
type Callable struct {
	Name       string        `yaml:"name" cbor:"name"`
	Kind       CallableKind  `yaml:"kind,omitempty" cbor:"kind,omitempty"`
	Access     Access        `yaml:"access,omitempty" cbor:"access,omitempty"`
	Final      bool          `yaml:"final,omitempty" cbor:"final,omitempty"`
	Overriding bool          `yaml:"overriding,omitempty" cbor:"overriding,omitempty"`
	Deprecated bool          `yaml:"deprecated,omitempty" cbor:"deprecated,omitempty"`
	Mutating   bool          `yaml:"mutating,omitempty" cbor:"mutating,omitempty"`
	Required   bool          `yaml:"required,omitempty" cbor:"required,omitempty"`
	Start      bool          `yaml:"start,omitempty" cbor:"start,omitempty"`
	Native     uint16        `yaml:"native,omitempty" cbor:"native,omitempty"`
	Params     []Var         `yaml:"params,omitempty" cbor:"params,omitempty"`
	Returns    TypeRef       `yaml:"returns,omitempty" cbor:"returns,omitempty"`
	Locals     []Var         `yaml:"locals,omitempty" cbor:"locals,omitempty"`
	Body       []Node        `yaml:"body,omitempty" cbor:"body,omitempty"`
	Pos        diag.Position `yaml:"pos,omitempty" cbor:"pos,omitempty"`

	// Set by Resolve.
	Owner   TypeDef  `yaml:"-" cbor:"-"`
	Package *Package `yaml:"-" cbor:"-"`
}

// IsNative reports whether the callable is implemented by the runtime and
// has no body to generate.
func (c *Callable) IsNative() bool {
	return c.Native != 0
}

// Vars returns parameters followed by locals. Body nodes address variables
// by their index in this list.
func (c *Callable) Vars() []Var {
	vars := make([]Var, 0, len(c.Params)+len(c.Locals))
	vars = append(vars, c.Params...)
	return append(vars, c.Locals...)
}

// OwnerClass returns the owning class, or nil.
func (c *Callable) OwnerClass() *Class {
	cl, _ := c.Owner.(*Class)
	return cl
}

// OwnerValueType returns the owning value type, or nil.
func (c *Callable) OwnerValueType() *ValueType {
	vt, _ := c.Owner.(*ValueType)
	return vt
}

// InFunctionDomain reports whether the callable's dispatch index is drawn
// from the global function domain rather than a class table.
func (c *Callable) InFunctionDomain() bool {
	if c.OwnerClass() == nil {
		return true
	}
	return c.Kind == KindAdapter || c.Kind == KindClosure
}

// QualifiedName names the callable with its owner for diagnostics.
func (c *Callable) QualifiedName() string {
	if c.Owner == nil {
		return c.Name
	}
	return c.Owner.TypeName() + "." + c.Name
}

func (c *Callable) String() string {
	return fmt.Sprintf("%s %s", c.Kind, c.QualifiedName())
}
