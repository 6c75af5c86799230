package compiler

import (
	"github.com/chazu/tessera/image"
	"github.com/chazu/tessera/model"
)

// ---------------------------------------------------------------------------
// Protocol conformance tables
// ---------------------------------------------------------------------------

func (s *Session) buildConformances() {
	for _, c := range s.Program.Classes() {
		s.tables[c] = s.protocolTable(c)
	}
	for _, vt := range s.Program.ValueTypes() {
		if t := s.protocolTable(vt); len(t.Entries) > 0 {
			s.boxes.Add(vt.BoxID, *t)
		}
	}
}

// protocolTable maps every protocol td conforms to, in declaration order, to
// the dispatch indices of its implementing methods. A missing or mismatched
// method is reported and its slot filled with image.NoDispatchIndex so the
// table stays dense.
func (s *Session) protocolTable(td model.TypeDef) *image.ProtocolTable {
	table := &image.ProtocolTable{}
	for _, p := range td.Conformances() {
		methods := make([]uint16, len(p.Methods))
		for i, want := range p.Methods {
			methods[i] = s.implementation(td, p, want)
		}
		table.Add(uint16(p.Index), methods)
	}
	return table
}

// implementation returns the dispatch index implementing want for td and
// marks it used: protocol dispatch can reach it at run time.
func (s *Session) implementation(td model.TypeDef, p *model.Protocol, want *model.Callable) uint16 {
	impl := td.LookupMethod(want.Name)
	if impl == nil {
		s.Diags.Errorf(td.Position(), "%s does not agree to protocol %s: Method %s is missing.",
			td.TypeName(), p.Name, want.Name)
		return image.NoDispatchIndex
	}

	bridge, ok := promise(impl, want)
	if !ok {
		s.Diags.Errorf(impl.Pos, "%s does not agree to protocol %s: Method %s does not match the promised signature.",
			td.TypeName(), p.Name, want.Name)
		return image.NoDispatchIndex
	}
	if bridge {
		vt, isValue := td.(*model.ValueType)
		if !isValue {
			s.Diags.Errorf(impl.Pos, "%s does not agree to protocol %s: Method %s needs boxing, which class dispatch cannot provide.",
				td.TypeName(), p.Name, want.Name)
			return image.NoDispatchIndex
		}
		impl = s.adapter(vt, impl, want)
	}
	return uint16(s.Dispatch.ForUse(impl))
}

// adapter synthesizes a function that takes want's representations, calls
// impl on self and converts the result back. Argument and result boxing is
// inserted by the code generator.
func (s *Session) adapter(vt *model.ValueType, impl, want *model.Callable) *model.Callable {
	call := &model.Node{
		Op:       model.OpCallMethod,
		Callee:   impl.Name,
		Owner:    vt.Name,
		Type:     impl.Returns,
		Receiver: &model.Node{Op: model.OpSelf, Type: model.Value(vt.Name)},
		Pos:      impl.Pos,
	}
	params := make([]model.Var, len(want.Params))
	for i, p := range want.Params {
		params[i] = p
		call.Args = append(call.Args, model.Node{Op: model.OpLoad, Var: i, Type: p.Type, Pos: impl.Pos})
	}

	a := &model.Callable{
		Name:    impl.Name,
		Kind:    model.KindAdapter,
		Access:  model.Public,
		Params:  params,
		Returns: want.Returns,
		Body:    []model.Node{{Op: model.OpReturn, Value: call, Pos: impl.Pos}},
		Pos:     impl.Pos,
		Owner:   vt,
		Package: vt.Package,
	}
	vt.Adapters = append(vt.Adapters, a)
	s.log.Debugf("adapter for %s as %s", impl.QualifiedName(), want.QualifiedName())
	return a
}
