package model

import (
	"fmt"

	"github.com/chazu/tessera/diag"
)

// Version is a package version.
type Version struct {
	Major uint16 `yaml:"major" cbor:"major"`
	Minor uint16 `yaml:"minor" cbor:"minor"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Package groups the types and functions of one compilation unit.
type Package struct {
	Name       string       `yaml:"name" cbor:"name"`
	Version    Version      `yaml:"version" cbor:"version"`
	Classes    []*Class     `yaml:"classes,omitempty" cbor:"classes,omitempty"`
	ValueTypes []*ValueType `yaml:"value-types,omitempty" cbor:"value-types,omitempty"`
	Protocols  []*Protocol  `yaml:"protocols,omitempty" cbor:"protocols,omitempty"`
	Functions  []*Callable  `yaml:"functions,omitempty" cbor:"functions,omitempty"`
}

// RequiresNativeLinking reports whether any callable of the package is
// implemented by the runtime, in which case the module names the package so
// the runtime can find its native library.
func (p *Package) RequiresNativeLinking() bool {
	for _, c := range p.Functions {
		if c.IsNative() {
			return true
		}
	}
	for _, cl := range p.Classes {
		for _, c := range cl.Callables() {
			if c.IsNative() {
				return true
			}
		}
	}
	for _, vt := range p.ValueTypes {
		for _, c := range vt.Callables() {
			if c.IsNative() {
				return true
			}
		}
	}
	return false
}

// Program is the analyzed input of the back end. Names of classes, value
// types and protocols are unique across all packages.
type Program struct {
	Packages []*Package `yaml:"packages" cbor:"packages"`

	// Source is the file the program was loaded from, if any.
	Source string `yaml:"-" cbor:"-"`

	classes    map[string]*Class
	valueTypes map[string]*ValueType
	protocols  map[string]*Protocol
	resolved   bool
}

// Class returns the named class, or nil.
func (p *Program) Class(name string) *Class { return p.classes[name] }

// ValueType returns the named value type, or nil.
func (p *Program) ValueType(name string) *ValueType { return p.valueTypes[name] }

// Protocol returns the named protocol, or nil.
func (p *Program) Protocol(name string) *Protocol { return p.protocols[name] }

// TypeDef returns the class or value type with the given name.
func (p *Program) TypeDef(name string) TypeDef {
	if c := p.classes[name]; c != nil {
		return c
	}
	if v := p.valueTypes[name]; v != nil {
		return v
	}
	return nil
}

// Function finds a package-level function, preferring the given package.
func (p *Program) Function(from *Package, name string) *Callable {
	if from != nil {
		if f := findCallable(from.Functions, name); f != nil {
			return f
		}
	}
	for _, pkg := range p.Packages {
		if f := findCallable(pkg.Functions, name); f != nil {
			return f
		}
	}
	return nil
}

// Classes returns every class in package order. A class's Index is its
// position in this list.
func (p *Program) Classes() []*Class {
	var all []*Class
	for _, pkg := range p.Packages {
		all = append(all, pkg.Classes...)
	}
	return all
}

// ValueTypes returns every value type in package order.
func (p *Program) ValueTypes() []*ValueType {
	var all []*ValueType
	for _, pkg := range p.Packages {
		all = append(all, pkg.ValueTypes...)
	}
	return all
}

// Protocols returns every protocol in package order.
func (p *Program) Protocols() []*Protocol {
	var all []*Protocol
	for _, pkg := range p.Packages {
		all = append(all, pkg.Protocols...)
	}
	return all
}

// Callables returns every declared callable: package functions, then class
// callables, then value type callables, package by package.
func (p *Program) Callables() []*Callable {
	var all []*Callable
	for _, pkg := range p.Packages {
		all = append(all, pkg.Functions...)
		for _, c := range pkg.Classes {
			all = append(all, c.Callables()...)
		}
		for _, v := range pkg.ValueTypes {
			all = append(all, v.Callables()...)
		}
	}
	return all
}

// StartFunction returns the function flagged as the program entry point.
func (p *Program) StartFunction() *Callable {
	for _, pkg := range p.Packages {
		for _, f := range pkg.Functions {
			if f.Start {
				return f
			}
		}
	}
	return nil
}

// SlotSize returns the number of slots a value of type t occupies. Value
// type sizes are only known after finalization.
func (p *Program) SlotSize(t TypeRef) int {
	switch t.Kind {
	case KindPlain, KindReference:
		return 1
	case KindOptional:
		return 2
	case KindBoxed:
		return BoxSlots
	case KindValue:
		if vt := p.valueTypes[t.Name]; vt != nil {
			return vt.Size
		}
	case KindOptionalValue:
		if vt := p.valueTypes[t.Name]; vt != nil {
			return 1 + vt.Size
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// Resolve links names to definitions, assigns class indices and sets the
// owner and kind of every declared callable. Unknown or duplicate names are
// fatal diagnostics. Resolve is idempotent.
func (p *Program) Resolve(diags *diag.List) {
	if p.resolved {
		return
	}
	p.resolved = true
	p.classes = make(map[string]*Class)
	p.valueTypes = make(map[string]*ValueType)
	p.protocols = make(map[string]*Protocol)

	declared := make(map[string]diag.Position)
	declare := func(name string, pos diag.Position) bool {
		if prev, dup := declared[name]; dup {
			diags.Fatalf(pos, "%s is already declared at %s", name, prev)
			return false
		}
		declared[name] = pos
		return true
	}

	for _, pkg := range p.Packages {
		for _, c := range pkg.Classes {
			c.Package = pkg
			if declare(c.Name, c.Pos) {
				p.classes[c.Name] = c
			}
		}
		for _, v := range pkg.ValueTypes {
			v.Package = pkg
			if declare(v.Name, v.Pos) {
				p.valueTypes[v.Name] = v
			}
		}
		for _, pr := range pkg.Protocols {
			pr.Package = pkg
			if declare(pr.Name, pr.Pos) {
				p.protocols[pr.Name] = pr
			}
			for _, m := range pr.Methods {
				p.bind(m, KindMethod, nil, pkg)
			}
		}
		for _, f := range pkg.Functions {
			p.bind(f, KindFunction, nil, pkg)
		}
	}

	for i, c := range p.Classes() {
		c.Index = i
		if c.Superclass != "" {
			c.Super = p.classes[c.Superclass]
			if c.Super == nil {
				diags.Fatalf(c.Pos, "superclass %s of %s is not declared", c.Superclass, c.Name)
			}
		}
		c.Conforms = p.conformances(c.Protocols, c.Pos, diags)
		p.bindAll(c.Methods, KindMethod, c, c.Package)
		p.bindAll(c.TypeMethods, KindTypeMethod, c, c.Package)
		p.bindAll(c.Initializers, KindInitializer, c, c.Package)
		p.checkFields(c.Fields, c.Pos, diags)
	}
	p.breakCycles(diags)

	for _, v := range p.ValueTypes() {
		v.Conforms = p.conformances(v.Protocols, v.Pos, diags)
		p.bindAll(v.Methods, KindMethod, v, v.Package)
		p.bindAll(v.TypeMethods, KindTypeMethod, v, v.Package)
		p.bindAll(v.Initializers, KindInitializer, v, v.Package)
		p.checkFields(v.Fields, v.Pos, diags)
	}

	for _, c := range p.Callables() {
		for _, v := range c.Vars() {
			p.checkType(v.Type, c.Pos, diags)
		}
		p.checkType(c.Returns, c.Pos, diags)
	}
}

// breakCycles reports classes that inherit from themselves and cuts the
// cycle so hierarchy walks terminate.
func (p *Program) breakCycles(diags *diag.List) {
	classes := p.Classes()
	for _, c := range classes {
		steps := 0
		for cur := c.Super; cur != nil && steps <= len(classes); cur = cur.Super {
			if cur == c {
				diags.Fatalf(c.Pos, "inheritance cycle through %s", c.Name)
				c.Super = nil
				break
			}
			steps++
		}
	}
}

func (p *Program) conformances(names []string, pos diag.Position, diags *diag.List) []*Protocol {
	var out []*Protocol
	for _, name := range names {
		pr := p.protocols[name]
		if pr == nil {
			diags.Fatalf(pos, "protocol %s is not declared", name)
			continue
		}
		out = append(out, pr)
	}
	return out
}

func (p *Program) checkFields(fields []Field, pos diag.Position, diags *diag.List) {
	for _, f := range fields {
		p.checkType(f.Type, pos, diags)
	}
}

func (p *Program) checkType(t TypeRef, pos diag.Position, diags *diag.List) {
	switch t.Kind {
	case KindValue, KindOptionalValue:
		if p.valueTypes[t.Name] == nil {
			diags.Fatalf(pos, "value type %s is not declared", t.Name)
		}
	case KindReference, KindOptional:
		if t.Name != "" && p.classes[t.Name] == nil {
			diags.Fatalf(pos, "class %s is not declared", t.Name)
		}
	}
}

func (p *Program) bindAll(list []*Callable, kind CallableKind, owner TypeDef, pkg *Package) {
	for _, c := range list {
		p.bind(c, kind, owner, pkg)
	}
}

func (p *Program) bind(c *Callable, kind CallableKind, owner TypeDef, pkg *Package) {
	if c.Kind == "" {
		c.Kind = kind
	}
	if c.Access == "" {
		c.Access = Public
	}
	c.Owner = owner
	c.Package = pkg
}
