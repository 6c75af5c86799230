package compiler

import (
	"math"
	"strings"

	"github.com/chazu/tessera/bytecode"
	"github.com/chazu/tessera/diag"
	"github.com/chazu/tessera/image"
	"github.com/chazu/tessera/layout"
	"github.com/chazu/tessera/model"
)

// ---------------------------------------------------------------------------
// Emission: assembles the image module
// ---------------------------------------------------------------------------

// Emit assembles the module from the finalized program and the generated
// callables. Limits of the format that the program exceeds are fatal; Emit
// then returns nil.
func (s *Session) Emit() *image.Module {
	prog := s.Program
	at := diag.Position{File: prog.Source}

	if len(prog.Packages) > image.MaxPackages {
		s.Diags.Fatalf(at, "a module holds at most %d packages, the program has %d", image.MaxPackages, len(prog.Packages))
		return nil
	}

	m := &image.Module{
		Version:       image.FormatVersion,
		ClassCount:    s.u16(at, "class count", len(prog.Classes())),
		FunctionCount: s.u16(at, "function count", s.Dispatch.Functions().Count()),
	}

	for _, pkg := range prog.Packages {
		ip := image.Package{}
		if pkg.RequiresNativeLinking() {
			if len(pkg.Name) == 0 || len(pkg.Name) > math.MaxUint8 {
				s.Diags.Fatalf(at, "package name %q cannot be linked: names must be 1 to %d bytes", pkg.Name, math.MaxUint8)
			}
			ip.Name = pkg.Name
			ip.Major = pkg.Version.Major
			ip.Minor = pkg.Version.Minor
		}
		for _, c := range pkg.Classes {
			ip.Classes = append(ip.Classes, s.emitClass(c))
		}
		for _, f := range pkg.Functions {
			if s.Dispatch.Used(f) {
				ip.Functions = append(ip.Functions, s.function(f))
			}
		}
		for _, vt := range pkg.ValueTypes {
			for _, f := range vt.Callables() {
				if s.Dispatch.Used(f) {
					ip.Functions = append(ip.Functions, s.function(f))
				}
			}
		}
		m.Packages = append(m.Packages, ip)
	}

	m.Boxes = s.boxes
	if s.Strings.Overflowed() {
		s.Diags.Fatalf(at, "the program uses more than %d distinct strings", math.MaxUint16)
	}
	m.Strings = s.Strings.Strings()

	if s.Diags.HasFatal() {
		return nil
	}
	s.log.Debugf("emitted %d packages", len(m.Packages))
	return m
}

func (s *Session) emitClass(c *model.Class) image.Class {
	ic := image.Class{
		Name:                 s.Strings.Intern(c.Name),
		Superclass:           uint16(c.Index),
		Size:                 s.u16(c.Pos, "size of "+c.Name, c.Size),
		MethodCount:          s.u16(c.Pos, "method count of "+c.Name, s.Dispatch.Methods(c).Count()),
		InheritsInitializers: c.InheritsInitializers,
		InitializerCount:     s.u16(c.Pos, "initializer count of "+c.Name, s.Dispatch.Initializers(c).Count()),
		Records:              layout.ForClass(s.Program, c),
	}
	if c.Super != nil {
		ic.Superclass = uint16(c.Super.Index)
	}
	for _, m := range c.Methods {
		if s.Dispatch.Used(m) {
			ic.Methods = append(ic.Methods, s.function(m))
		}
	}
	for _, m := range c.TypeMethods {
		if s.Dispatch.Used(m) {
			ic.Methods = append(ic.Methods, s.function(m))
		}
	}
	for _, in := range c.Initializers {
		if s.Dispatch.Used(in) {
			ic.Initializers = append(ic.Initializers, s.function(in))
		}
	}
	if t := s.tables[c]; t != nil {
		ic.Protocols = *t
	}
	return ic
}

// function returns the emitted form of a used callable.
func (s *Session) function(c *model.Callable) image.Function {
	if c.IsNative() {
		return image.Function{
			Index:  s.u16(c.Pos, "dispatch index of "+c.QualifiedName(), s.Dispatch.Index(c)),
			Name:   s.Strings.Intern(c.Name),
			Arity:  uint8(min(len(c.Params), math.MaxUint8)),
			Native: c.Native,
		}
	}
	f := s.compiled[c]
	if f == nil {
		diag.Invariantf("compiler.Session.Emit", "%s is used but was never generated", c.QualifiedName())
	}
	return *f
}

// u16 checks that n fits a 16-bit field of the module.
func (s *Session) u16(pos diag.Position, what string, n int) uint16 {
	if n < 0 || n > math.MaxUint16 {
		s.Diags.Fatalf(pos, "%s is %d, the module format allows at most %d", what, n, math.MaxUint16)
		return 0
	}
	return uint16(n)
}

// Listing disassembles every generated callable in program order.
func (s *Session) Listing() string {
	var sb strings.Builder
	for _, c := range s.Program.Callables() {
		if f := s.compiled[c]; f != nil {
			sb.WriteString(bytecode.DisassembleWithName(c.QualifiedName(), f.Code))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
