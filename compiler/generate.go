package compiler

import (
	"math"

	"github.com/chazu/tessera/bytecode"
	"github.com/chazu/tessera/image"
	"github.com/chazu/tessera/layout"
	"github.com/chazu/tessera/model"
)

// ---------------------------------------------------------------------------
// Generator: lowers a callable's body to bytecode
// ---------------------------------------------------------------------------

// generator holds the state of one callable's generation. Code is written
// in prefix form; see package bytecode.
type generator struct {
	s    *Session
	prog *model.Program
	fn   *model.Callable
	w    *bytecode.Writer
	res  resolver

	vars    []model.Var
	offsets []int // frame slot of each variable
	frame   int

	// Live windows of declared locals. A nil bound means the start or end
	// of the callable.
	from []*bytecode.Position
	to   []*bytecode.Position

	// Variables declared in each open block, innermost last.
	blocks [][]int

	closures int
}

// generate writes c's body to w and returns the finished function.
func (s *Session) generate(c *model.Callable, w *bytecode.Writer, res resolver) *image.Function {
	g := &generator{s: s, prog: s.Program, fn: c, w: w, res: res}
	g.allocate()
	g.block(c.Body)
	end := w.Len()
	code := w.Seal()

	windows := make([]layout.Window, len(g.vars))
	for i := range windows {
		windows[i] = layout.Window{From: 0, To: end}
		if g.from[i] != nil {
			windows[i].From = g.from[i].Offset()
		}
		if g.to[i] != nil {
			windows[i].To = g.to[i].Offset()
		}
	}

	arity := len(c.Params)
	if arity > math.MaxUint8 {
		s.Diags.Errorf(c.Pos, "%s takes %d arguments, at most %d are supported", c.QualifiedName(), arity, math.MaxUint8)
		arity = math.MaxUint8
	}
	if g.frame > math.MaxUint16 {
		s.Diags.Errorf(c.Pos, "%s needs %d frame slots, at most %d are supported", c.QualifiedName(), g.frame, math.MaxUint16)
	}

	return &image.Function{
		Index:     res.callable(c),
		Name:      res.str(c.Name),
		Arity:     uint8(arity),
		FrameSize: uint16(g.frame),
		Code:      code,
		Records:   layout.ForFrame(g.prog, g.vars, g.offsets, windows),
	}
}

// allocate lays out the frame: parameters first, then locals.
func (g *generator) allocate() {
	g.vars = g.fn.Vars()
	g.offsets = make([]int, len(g.vars))
	g.from = make([]*bytecode.Position, len(g.vars))
	g.to = make([]*bytecode.Position, len(g.vars))
	for i, v := range g.vars {
		g.offsets[i] = g.frame
		size := g.prog.SlotSize(v.Type)
		if size == 0 && !v.Type.IsValueKind() {
			size = 1
		}
		g.frame += size
	}
}

func (g *generator) errorf(n *model.Node, format string, args ...any) {
	pos := n.Pos
	if pos.IsZero() {
		pos = g.fn.Pos
	}
	g.s.Diags.Errorf(pos, format, args...)
}

// fail reports an error and emits a placeholder value in place of the
// expression that could not be generated.
func (g *generator) fail(n *model.Node, format string, args ...any) {
	g.errorf(n, format, args...)
	g.w.WriteOp(bytecode.OpPushNothing)
}

func (g *generator) op(op bytecode.Opcode, immediates ...int) {
	words := make([]bytecode.Instruction, len(immediates))
	for i, v := range immediates {
		words[i] = bytecode.Instruction(v)
	}
	g.w.WriteOp(op, words...)
}

// ---------------------------------------------------------------------------
// Blocks and variables
// ---------------------------------------------------------------------------

// block generates a statement list. Locals declared in it, and the given
// closure parameters, stop being live at its end.
func (g *generator) block(body []model.Node, params ...int) {
	g.blocks = append(g.blocks, nil)
	for _, i := range params {
		g.declare(i)
	}
	for i := range body {
		g.expr(&body[i])
	}
	top := g.blocks[len(g.blocks)-1]
	g.blocks = g.blocks[:len(g.blocks)-1]
	if len(top) > 0 {
		end := g.w.Mark()
		for _, v := range top {
			g.to[v] = end
		}
	}
}

// section generates a counted block.
func (g *generator) section(body []model.Node, params ...int) {
	count := g.w.CountPlaceholder()
	g.block(body, params...)
	count.Write()
}

func (g *generator) declare(i int) {
	if i < len(g.fn.Params) || g.from[i] != nil {
		return
	}
	g.from[i] = g.w.Mark()
	top := len(g.blocks) - 1
	g.blocks[top] = append(g.blocks[top], i)
}

func (g *generator) variable(n *model.Node) (int, bool) {
	if n.Var < 0 || n.Var >= len(g.vars) {
		g.fail(n, "%s has no variable %d", g.fn.QualifiedName(), n.Var)
		return 0, false
	}
	return n.Var, true
}

func (g *generator) field(n *model.Node) (model.Field, bool) {
	var f model.Field
	ok := false
	switch owner := g.fn.Owner.(type) {
	case *model.Class:
		f, ok = owner.Field(n.Field)
	case *model.ValueType:
		f, ok = owner.Field(n.Field)
	case nil:
		g.fail(n, "%s has no fields", g.fn.QualifiedName())
		return f, false
	}
	if !ok {
		g.fail(n, "%s has no field %s", g.fn.Owner.TypeName(), n.Field)
	}
	return f, ok
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (g *generator) expr(n *model.Node) {
	switch n.Op {
	case model.OpInt:
		g.integer(n.Int)
	case model.OpDouble:
		g.w.WriteOp(bytecode.OpPushDouble)
		g.w.WriteDouble(n.Double)
	case model.OpString:
		g.op(bytecode.OpPushString, int(g.res.str(n.Str)))
	case model.OpBool:
		if n.Bool {
			g.w.WriteOp(bytecode.OpPushTrue)
		} else {
			g.w.WriteOp(bytecode.OpPushFalse)
		}
	case model.OpNothing:
		g.w.WriteOp(bytecode.OpPushNothing)
	case model.OpSelf:
		if g.fn.Owner == nil {
			g.fail(n, "self is not available in %s", g.fn.QualifiedName())
			return
		}
		g.w.WriteOp(bytecode.OpSelf)

	case model.OpLoad:
		i, ok := g.variable(n)
		if !ok {
			return
		}
		if t := g.vars[i].Type; t.IsValueKind() {
			g.op(bytecode.OpCopyLocal, g.offsets[i], g.prog.SlotSize(t))
		} else {
			g.op(bytecode.OpLoadLocal, g.offsets[i])
		}
	case model.OpStore, model.OpDeclare:
		g.store(n)
	case model.OpGetField:
		if f, ok := g.field(n); ok {
			g.op(bytecode.OpGetField, f.Offset)
		}
	case model.OpSetField:
		if f, ok := g.field(n); ok {
			g.op(bytecode.OpSetField, f.Offset)
			g.operand(n, n.Value, f.Type)
		}

	case model.OpCallMethod:
		g.callMethod(n)
	case model.OpCallTypeMethod:
		g.callTypeMethod(n)
	case model.OpNew:
		g.newInstance(n)
	case model.OpSuperInit:
		g.superInit(n)
	case model.OpCallFunction:
		g.callFunction(n)
	case model.OpCallProtocol:
		g.callProtocol(n)

	case model.OpBox:
		if n.Value == nil {
			g.fail(n, "box without a value")
			return
		}
		g.op(bytecode.OpBox, int(g.boxTag(n, n.Value.Type)))
		g.expr(n.Value)
	case model.OpUnbox:
		if n.Value == nil {
			g.fail(n, "unbox without a value")
			return
		}
		g.op(bytecode.OpUnbox, int(g.boxTag(n, n.Type)))
		g.expr(n.Value)

	case model.OpIf:
		if len(n.Else) == 0 {
			g.w.WriteOp(bytecode.OpIf)
		} else {
			g.w.WriteOp(bytecode.OpIfElse)
		}
		g.operand(n, n.Cond, model.Plain("boolean"))
		g.section(n.Then)
		if len(n.Else) > 0 {
			g.section(n.Else)
		}
	case model.OpWhile:
		g.w.WriteOp(bytecode.OpRepeatWhile)
		g.operand(n, n.Cond, model.Plain("boolean"))
		g.section(n.Body)
	case model.OpReturn:
		g.ret(n)
	case model.OpClosure:
		g.closure(n)

	default:
		g.fail(n, "unknown operation %q", n.Op)
	}
}

func (g *generator) integer(v int64) {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		g.w.WriteOp(bytecode.OpPushInteger, bytecode.Instruction(uint32(int32(v))))
		return
	}
	u := uint64(v)
	g.w.WriteOp(bytecode.OpPushLong, bytecode.Instruction(u>>32), bytecode.Instruction(uint32(u)))
}

func (g *generator) store(n *model.Node) {
	i, ok := g.variable(n)
	if !ok {
		return
	}
	t := g.vars[i].Type
	if t.IsValueKind() {
		g.op(bytecode.OpStoreValue, g.offsets[i], g.prog.SlotSize(t))
	} else {
		g.op(bytecode.OpStoreLocal, g.offsets[i])
	}
	g.operand(n, n.Value, t)
	if n.Op == model.OpDeclare {
		g.declare(i)
	}
}

func (g *generator) ret(n *model.Node) {
	g.w.WriteOp(bytecode.OpReturn)
	if n.Value == nil {
		if g.closures == 0 && g.fn.Returns.Normalized().Kind != model.KindNothing {
			g.errorf(n, "%s must return %s", g.fn.QualifiedName(), g.fn.Returns.Normalized())
		}
		g.w.WriteOp(bytecode.OpPushNothing)
		return
	}
	if g.closures > 0 {
		g.expr(n.Value)
		return
	}
	g.value(n.Value, g.fn.Returns)
}

func (g *generator) closure(n *model.Node) {
	for _, i := range n.Params {
		if i < 0 || i >= len(g.vars) {
			g.fail(n, "closure parameter %d is not a variable of %s", i, g.fn.QualifiedName())
			return
		}
	}
	g.op(bytecode.OpClosure, len(n.Params))
	g.closures++
	g.section(n.Body, n.Params...)
	g.closures--
}

// ---------------------------------------------------------------------------
// Representation changes
// ---------------------------------------------------------------------------

// operand generates a required sub-expression of n converted to target.
func (g *generator) operand(n, sub *model.Node, target model.TypeRef) {
	if sub == nil {
		g.fail(n, "%s is missing an operand", n.Op)
		return
	}
	g.value(sub, target)
}

// value generates n and, when its representation differs from target,
// inserts a box or unbox in front of it.
func (g *generator) value(n *model.Node, target model.TypeRef) {
	at := g.w.InsertionPoint()
	g.expr(n)

	from, to := n.Type.Normalized(), target.Normalized()
	switch {
	case to.Kind == model.KindBoxed && from.Kind != model.KindBoxed:
		at.InsertOp(bytecode.OpBox, bytecode.Instruction(g.boxTag(n, from)))
	case from.Kind == model.KindBoxed && to.Kind != model.KindBoxed && to.Kind != model.KindNothing:
		at.InsertOp(bytecode.OpUnbox, bytecode.Instruction(g.boxTag(n, to)))
	}
}

// boxTag returns the tag identifying t's payload inside a box.
func (g *generator) boxTag(n *model.Node, t model.TypeRef) uint16 {
	switch t = t.Normalized(); t.Kind {
	case model.KindReference:
		return model.TagObject
	case model.KindOptional:
		return model.TagOptionalObject
	case model.KindPlain:
		if tag, ok := model.PlainTag(t.Name); ok {
			return tag
		}
		g.errorf(n, "%s cannot be boxed", t)
	case model.KindValue, model.KindOptionalValue:
		if vt := g.prog.ValueType(t.Name); vt != nil {
			g.boxable(n, vt, t.Kind == model.KindOptionalValue)
			return vt.BoxID
		}
	}
	return model.TagNothing
}

// boxable reports value types a box cannot hold. The payload gets the slots
// after the tag, and the tracer follows a box's payload only when the tag is
// TagObject, so the payload must not hold references.
func (g *generator) boxable(n *model.Node, vt *model.ValueType, optional bool) {
	payload := vt.Size
	if optional {
		payload++
	}
	if payload > model.BoxSlots-1 {
		g.errorf(n, "%s cannot be boxed: it needs %d slots and a box holds %d", vt.Name, payload, model.BoxSlots-1)
	}
	if len(layout.Describe(g.prog, model.Value(vt.Name), 0, nil)) > 0 {
		g.errorf(n, "%s cannot be boxed: it holds references", vt.Name)
	}
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// callee validates a call to c: arity, access and deprecation.
func (g *generator) callee(n *model.Node, c *model.Callable) bool {
	if len(n.Args) != len(c.Params) {
		g.fail(n, "%s expects %d arguments, got %d", c.QualifiedName(), len(c.Params), len(n.Args))
		return false
	}
	if !g.accessible(c) {
		g.fail(n, "%s is %s", c.QualifiedName(), c.Access)
		return false
	}
	if c.Deprecated && g.fn.Kind != model.KindAdapter {
		pos := n.Pos
		if pos.IsZero() {
			pos = g.fn.Pos
		}
		g.s.Diags.Warnf(pos, "%s is deprecated", c.QualifiedName())
	}
	return true
}

func (g *generator) accessible(c *model.Callable) bool {
	switch c.Access {
	case model.Private:
		if c.Owner == nil {
			return c.Package == g.fn.Package
		}
		return c.Owner == g.fn.Owner
	case model.Protected:
		owner := c.OwnerClass()
		if owner == nil {
			return c.Owner == g.fn.Owner
		}
		caller := g.fn.OwnerClass()
		return caller != nil && caller.IsSubclassOf(owner)
	}
	return true
}

func (g *generator) args(n *model.Node, c *model.Callable) {
	for i := range n.Args {
		g.value(&n.Args[i], c.Params[i].Type)
	}
}

func (g *generator) receiver(n *model.Node) {
	switch {
	case n.Receiver != nil:
		g.expr(n.Receiver)
	case g.fn.Owner != nil:
		g.w.WriteOp(bytecode.OpSelf)
	default:
		g.fail(n, "call to %s has no receiver", n.Callee)
	}
}

// typeNamed resolves the type a call names: n.Owner, else the receiver's
// static type, else the type owning the current callable.
func (g *generator) typeNamed(n *model.Node) (model.TypeDef, bool) {
	name := n.Owner
	if name == "" && n.Receiver != nil {
		name = n.Receiver.Type.Name
	}
	if name == "" {
		if g.fn.Owner != nil {
			return g.fn.Owner, true
		}
		g.fail(n, "%s does not name a type", n.Op)
		return nil, false
	}
	td := g.prog.TypeDef(name)
	if td == nil {
		g.fail(n, "type %s is not declared", name)
		return nil, false
	}
	return td, true
}

func (g *generator) callMethod(n *model.Node) {
	td, ok := g.typeNamed(n)
	if !ok {
		return
	}
	m := td.LookupMethod(n.Callee)
	if m == nil {
		g.fail(n, "%s has no method %s", td.TypeName(), n.Callee)
		return
	}
	if !g.callee(n, m) {
		return
	}
	argc := len(n.Args)
	if _, isClass := td.(*model.Class); isClass {
		g.op(bytecode.OpDispatchMethod, int(g.res.callable(m)), argc)
	} else {
		// Value type methods are statically dispatched; self is the first
		// argument.
		g.op(bytecode.OpCallFunction, int(g.res.callable(m)), argc+1)
	}
	g.receiver(n)
	g.args(n, m)
}

func (g *generator) callTypeMethod(n *model.Node) {
	td, ok := g.typeNamed(n)
	if !ok {
		return
	}
	switch t := td.(type) {
	case *model.Class:
		m := t.LookupTypeMethod(n.Callee)
		if m == nil {
			g.fail(n, "%s has no type method %s", t.Name, n.Callee)
			return
		}
		if !g.callee(n, m) {
			return
		}
		g.op(bytecode.OpDispatchTypeMethod, t.Index, int(g.res.callable(m)), len(n.Args))
		g.args(n, m)
	case *model.ValueType:
		m := t.LookupTypeMethod(n.Callee)
		if m == nil {
			g.fail(n, "%s has no type method %s", t.Name, n.Callee)
			return
		}
		if !g.callee(n, m) {
			return
		}
		g.op(bytecode.OpCallFunction, int(g.res.callable(m)), len(n.Args))
		g.args(n, m)
	}
}

func (g *generator) newInstance(n *model.Node) {
	td, ok := g.typeNamed(n)
	if !ok {
		return
	}
	switch t := td.(type) {
	case *model.Class:
		init := t.LookupInitializer(n.Callee)
		if init == nil {
			g.fail(n, "%s has no initializer %s", t.Name, n.Callee)
			return
		}
		if !g.callee(n, init) {
			return
		}
		g.op(bytecode.OpNewObject, t.Index, int(g.res.callable(init)), len(n.Args))
		g.args(n, init)
	case *model.ValueType:
		init := t.LookupInitializer(n.Callee)
		if init == nil {
			g.fail(n, "%s has no initializer %s", t.Name, n.Callee)
			return
		}
		if !g.callee(n, init) {
			return
		}
		g.op(bytecode.OpCallFunction, int(g.res.callable(init)), len(n.Args))
		g.args(n, init)
	}
}

func (g *generator) superInit(n *model.Node) {
	c := g.fn.OwnerClass()
	if c == nil || c.Super == nil || g.fn.Kind != model.KindInitializer {
		g.fail(n, "%s cannot call a superclass initializer", g.fn.QualifiedName())
		return
	}
	init := c.Super.LookupInitializer(n.Callee)
	if init == nil {
		g.fail(n, "%s has no initializer %s", c.Super.Name, n.Callee)
		return
	}
	if !g.callee(n, init) {
		return
	}
	g.op(bytecode.OpSuperInitializer, c.Super.Index, int(g.res.callable(init)), len(n.Args))
	g.args(n, init)
}

func (g *generator) callFunction(n *model.Node) {
	f := g.prog.Function(g.fn.Package, n.Callee)
	if f == nil {
		g.fail(n, "function %s is not declared", n.Callee)
		return
	}
	if !g.callee(n, f) {
		return
	}
	g.op(bytecode.OpCallFunction, int(g.res.callable(f)), len(n.Args))
	g.args(n, f)
}

func (g *generator) callProtocol(n *model.Node) {
	p := g.prog.Protocol(n.Owner)
	if p == nil {
		g.fail(n, "protocol %s is not declared", n.Owner)
		return
	}
	i := p.MethodIndex(n.Callee)
	if i < 0 {
		g.fail(n, "protocol %s has no method %s", p.Name, n.Callee)
		return
	}
	m := p.Methods[i]
	if !g.callee(n, m) {
		return
	}
	g.op(bytecode.OpDispatchProtocol, p.Index, i, len(n.Args))
	switch {
	case n.Receiver == nil:
		g.receiver(n)
	case n.Receiver.Type.IsValueKind() || n.Receiver.Type.Kind == model.KindPlain:
		g.value(n.Receiver, model.Boxed())
	default:
		g.expr(n.Receiver)
	}
	g.args(n, m)
}
