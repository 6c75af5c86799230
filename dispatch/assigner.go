package dispatch

import (
	"github.com/chazu/tessera/diag"
	"github.com/chazu/tessera/model"
)

// EnqueueFunc receives each callable exactly once, when it first becomes
// used and has a body to generate.
type EnqueueFunc func(*model.Callable)

type entry struct {
	index      int
	assigned   bool
	used       bool
	domain     *Domain
	overriders []*model.Callable
}

type classDomains struct {
	methods      *Domain
	initializers *Domain
}

// Assigner owns every dispatch domain of one compilation session.
type Assigner struct {
	functions *Domain
	classes   map[*model.Class]*classDomains
	entries   map[*model.Callable]*entry
	enqueue   EnqueueFunc
}

// NewAssigner creates an assigner with an empty function domain.
func NewAssigner(enqueue EnqueueFunc) *Assigner {
	if enqueue == nil {
		enqueue = func(*model.Callable) {}
	}
	return &Assigner{
		functions: NewDomain("functions", nil),
		classes:   make(map[*model.Class]*classDomains),
		entries:   make(map[*model.Callable]*entry),
		enqueue:   enqueue,
	}
}

// Functions returns the global function domain.
func (a *Assigner) Functions() *Domain { return a.functions }

// Methods returns the method domain of a class, creating it after its
// superclass's. Classes must be visited superclass first: a domain starts at
// the superclass domain's count at creation time.
func (a *Assigner) Methods(c *model.Class) *Domain {
	return a.domains(c).methods
}

// Initializers returns the initializer domain of a class.
func (a *Assigner) Initializers(c *model.Class) *Domain {
	return a.domains(c).initializers
}

func (a *Assigner) domains(c *model.Class) *classDomains {
	if d, ok := a.classes[c]; ok {
		return d
	}
	var parent *classDomains
	if c.Super != nil {
		parent = a.domains(c.Super)
	}
	d := &classDomains{}
	if parent != nil {
		d.methods = NewDomain(c.Name+".methods", parent.methods)
		d.initializers = NewDomain(c.Name+".initializers", parent.initializers)
	} else {
		d.methods = NewDomain(c.Name+".methods", nil)
		d.initializers = NewDomain(c.Name+".initializers", nil)
	}
	a.classes[c] = d
	return d
}

// DomainOf returns the domain a callable draws its index from.
func (a *Assigner) DomainOf(c *model.Callable) *Domain {
	if c.InFunctionDomain() {
		return a.functions
	}
	if c.Kind == model.KindInitializer {
		return a.Initializers(c.OwnerClass())
	}
	return a.Methods(c.OwnerClass())
}

// FreezeClasses freezes every class domain created so far.
func (a *Assigner) FreezeClasses() {
	for _, d := range a.classes {
		d.methods.Freeze()
		d.initializers.Freeze()
	}
}

func (a *Assigner) entry(c *model.Callable) *entry {
	e, ok := a.entries[c]
	if !ok {
		e = &entry{}
		a.entries[c] = e
	}
	return e
}

// Assign gives c the next index of its domain. Assigning an already
// assigned callable returns its index unchanged.
func (a *Assigner) Assign(c *model.Callable) int {
	e := a.entry(c)
	if e.assigned {
		return e.index
	}
	e.domain = a.DomainOf(c)
	e.index = e.domain.draw()
	e.assigned = true
	return e.index
}

// Override gives c the index of the callable it overrides and registers c as
// an overrider. If super is already used, c becomes used too, since dynamic
// dispatch through super's slot can reach it.
func (a *Assigner) Override(c, super *model.Callable) int {
	se, ok := a.entries[super]
	if !ok || !se.assigned {
		diag.Invariantf("dispatch.Assigner.Override", "%s overrides unassigned %s", c.QualifiedName(), super.QualifiedName())
	}
	e := a.entry(c)
	if e.assigned {
		diag.Invariantf("dispatch.Assigner.Override", "%s already has index %d", c.QualifiedName(), e.index)
	}
	e.index = se.index
	e.domain = se.domain
	e.assigned = true
	se.overriders = append(se.overriders, c)
	if se.used {
		a.MarkUsed(c)
	}
	return e.index
}

// ForUse returns c's index, assigning it if needed, and marks c used.
func (a *Assigner) ForUse(c *model.Callable) int {
	index := a.Assign(c)
	a.MarkUsed(c)
	return index
}

// MarkUsed marks c used, assigning an index first if it has none. The first
// time a callable becomes used it is enqueued for code generation (unless it
// is native) and all of its overriders become used as well.
func (a *Assigner) MarkUsed(c *model.Callable) {
	a.Assign(c)
	e := a.entries[c]
	if e.used {
		return
	}
	e.used = true
	if !c.IsNative() {
		a.enqueue(c)
	}
	for _, o := range e.overriders {
		a.MarkUsed(o)
	}
}

// Index returns c's assigned index. Requesting the index of a callable that
// was never assigned is an invariant violation.
func (a *Assigner) Index(c *model.Callable) int {
	e, ok := a.entries[c]
	if !ok || !e.assigned {
		diag.Invariantf("dispatch.Assigner.Index", "%s has no dispatch index", c.QualifiedName())
	}
	return e.index
}

// Lookup returns c's index without side effects.
func (a *Assigner) Lookup(c *model.Callable) (int, bool) {
	e, ok := a.entries[c]
	if !ok || !e.assigned {
		return 0, false
	}
	return e.index, true
}

// Used reports whether c is used.
func (a *Assigner) Used(c *model.Callable) bool {
	e, ok := a.entries[c]
	return ok && e.used
}

// Overriders returns the callables registered as overriding c.
func (a *Assigner) Overriders(c *model.Callable) []*model.Callable {
	if e, ok := a.entries[c]; ok {
		return e.overriders
	}
	return nil
}

// Domain returns the domain c's index was drawn from, or nil.
func (a *Assigner) Domain(c *model.Callable) *Domain {
	if e, ok := a.entries[c]; ok {
		return e.domain
	}
	return nil
}
