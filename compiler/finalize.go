package compiler

import (
	"github.com/chazu/tessera/diag"
	"github.com/chazu/tessera/layout"
	"github.com/chazu/tessera/model"
)

// ---------------------------------------------------------------------------
// Finalization
// ---------------------------------------------------------------------------

// Finalize fixes everything that must be known before code generation:
// protocol indices, value type box identifiers and sizes, class sizes and
// field offsets, class dispatch tables and conformance tables. It then marks
// the start function used, which seeds the compile queue. The program must
// already be resolved. Finalize is idempotent.
func (s *Session) Finalize() {
	if s.finalized {
		return
	}
	s.finalized = true

	for i, p := range s.Program.Protocols() {
		p.Index = i
	}
	s.finalizeValueTypes()
	if s.Diags.HasFatal() {
		// Sizes are unusable; Compile aborts on the fatal diagnostic.
		return
	}

	// Superclasses first: a subclass's size and dispatch domains continue
	// where its superclass's end.
	for _, c := range model.SortByDepth(s.Program.Classes()) {
		s.finalizeClass(c)
	}
	s.Dispatch.FreezeClasses()

	s.finalizeStart()
	s.buildConformances()
	s.log.Debugf("finalized: %d functions assigned, %d callables queued",
		s.Dispatch.Functions().Count(), len(s.queue))
}

// ---------------------------------------------------------------------------
// Value types
// ---------------------------------------------------------------------------

func (s *Session) finalizeValueTypes() {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*model.ValueType]int)

	var size func(vt *model.ValueType) int
	slots := func(t model.TypeRef) int {
		switch t.Kind {
		case model.KindValue, model.KindOptionalValue:
			vt := s.Program.ValueType(t.Name)
			if vt == nil {
				return 0
			}
			n := size(vt)
			if t.Kind == model.KindOptionalValue {
				n++
			}
			return n
		}
		return s.Program.SlotSize(t)
	}
	size = func(vt *model.ValueType) int {
		switch state[vt] {
		case visiting:
			s.Diags.Fatalf(vt.Pos, "value type %s contains itself", vt.Name)
			return 0
		case done:
			return vt.Size
		}
		state[vt] = visiting
		offset := 0
		for i := range vt.Fields {
			vt.Fields[i].Offset = offset
			offset += slots(vt.Fields[i].Type)
		}
		vt.Size = offset
		state[vt] = done
		return offset
	}

	for i, vt := range s.Program.ValueTypes() {
		id := int(model.FirstBoxID) + i
		if id >= 0xFFFF {
			s.Diags.Fatalf(vt.Pos, "too many value types: no box identifier left for %s", vt.Name)
			return
		}
		vt.BoxID = uint16(id)
		size(vt)
	}
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func (s *Session) finalizeClass(c *model.Class) {
	offset := 0
	if c.Super != nil {
		offset = c.Super.Size
	}
	for i := range c.Fields {
		c.Fields[i].Offset = offset
		offset += s.Program.SlotSize(c.Fields[i].Type)
	}
	c.Size = offset
	if err := layout.Verify(layout.ForClass(s.Program, c), c.Size); err != nil {
		diag.Invariantf("compiler.Session.finalizeClass", "layout of %s: %v", c.Name, err)
	}

	// Create the domains now so they start after the superclass's slots
	// even when c declares nothing.
	s.Dispatch.Methods(c)

	for _, m := range c.Methods {
		var super *model.Callable
		if c.Super != nil {
			super = c.Super.LookupMethod(m.Name)
		}
		s.assignMethod(m, super)
	}
	for _, m := range c.TypeMethods {
		var super *model.Callable
		if c.Super != nil {
			super = c.Super.LookupTypeMethod(m.Name)
		}
		s.assignMethod(m, super)
	}
	s.finalizeInitializers(c)
}

// assignMethod gives m its dispatch index: the slot of the method it
// overrides, or a fresh slot of its class's domain.
func (s *Session) assignMethod(m, super *model.Callable) {
	if super == nil || super.Access == model.Private {
		if m.Overriding {
			s.Diags.Errorf(m.Pos, "%s is declared overriding but there is no method to override", m.QualifiedName())
		}
		s.Dispatch.Assign(m)
		return
	}

	if super.Final {
		s.Diags.Errorf(m.Pos, "%s overrides final method %s", m.QualifiedName(), super.QualifiedName())
	}
	if !m.Overriding {
		s.Diags.Errorf(m.Pos, "%s overrides %s but is not declared overriding", m.QualifiedName(), super.QualifiedName())
	}
	if m.Access.Narrower(super.Access) {
		s.Diags.Errorf(m.Pos, "%s is %s but overrides %s method %s", m.QualifiedName(), m.Access, super.Access, super.QualifiedName())
	}
	if bridge, ok := promise(m, super); !ok || bridge {
		s.Diags.Errorf(m.Pos, "%s does not match the signature of %s", m.QualifiedName(), super.QualifiedName())
	}
	s.Dispatch.Override(m, super)
}

func (s *Session) finalizeInitializers(c *model.Class) {
	for _, in := range c.Initializers {
		var super *model.Callable
		if c.Super != nil {
			super = c.Super.LookupInitializer(in.Name)
		}
		if super != nil && super.Required {
			if bridge, ok := promise(in, super); !ok || bridge {
				s.Diags.Errorf(in.Pos, "%s does not match the signature of required initializer %s", in.QualifiedName(), super.QualifiedName())
			}
			s.Dispatch.Override(in, super)
			continue
		}
		s.Dispatch.Assign(in)
	}

	if c.Super == nil || c.InheritsInitializers {
		return
	}
	for _, req := range requiredInitializers(c.Super) {
		if c.LookupInitializer(req.Name) == nil {
			s.Diags.Errorf(c.Pos, "%s does not implement required initializer %s", c.Name, req.QualifiedName())
		}
	}
}

// requiredInitializers returns the required initializers available on c,
// inherited ones included.
func requiredInitializers(c *model.Class) []*model.Callable {
	var out []*model.Callable
	seen := make(map[string]bool)
	for cur := c; cur != nil; cur = cur.Super {
		for _, in := range cur.Initializers {
			if in.Required && !seen[in.Name] {
				seen[in.Name] = true
				out = append(out, in)
			}
		}
		if !cur.InheritsInitializers {
			break
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Start function and library exports
// ---------------------------------------------------------------------------

func (s *Session) finalizeStart() {
	if s.Config.Library {
		for _, c := range s.Program.Callables() {
			if c.Access != model.Private {
				s.Dispatch.ForUse(c)
			}
		}
	}

	start := s.Program.StartFunction()
	if start == nil {
		if !s.Config.Library {
			s.Diags.Fatalf(diag.Position{File: s.Program.Source}, "no start function was declared")
		}
		return
	}
	if len(start.Params) > 0 {
		s.Diags.Errorf(start.Pos, "start function %s must not take arguments", start.Name)
	}
	s.start = start
	s.Dispatch.ForUse(start)
}

// ---------------------------------------------------------------------------
// Promises
// ---------------------------------------------------------------------------

// promise compares impl against the signature it must satisfy. ok is false
// when the two cannot be reconciled. bridge is true when they differ only in
// representations that boxing can bridge: a boxed parameter on impl, or a
// boxed return on want.
func promise(impl, want *model.Callable) (bridge, ok bool) {
	if len(impl.Params) != len(want.Params) {
		return false, false
	}
	for i := range want.Params {
		w, got := want.Params[i].Type, impl.Params[i].Type
		if w.SameRepresentation(got) {
			continue
		}
		if got.Normalized().Kind == model.KindBoxed {
			bridge = true
			continue
		}
		return false, false
	}
	if !impl.Returns.SameRepresentation(want.Returns) {
		if want.Returns.Normalized().Kind != model.KindBoxed {
			return false, false
		}
		bridge = true
	}
	return bridge, true
}
