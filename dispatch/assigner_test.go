package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/tessera/diag"
	"github.com/chazu/tessera/model"
)

type recorder struct {
	queued []*model.Callable
}

func (r *recorder) enqueue(c *model.Callable) { r.queued = append(r.queued, c) }

func method(owner *model.Class, name string) *model.Callable {
	m := &model.Callable{Name: name, Kind: model.KindMethod, Owner: owner}
	owner.Methods = append(owner.Methods, m)
	return m
}

// chain builds A <- B <- C, each declaring "run".
func chain() (a, b, c *model.Class, ra, rb, rc *model.Callable) {
	a = &model.Class{Name: "A"}
	b = &model.Class{Name: "B", Super: a}
	c = &model.Class{Name: "C", Super: b}
	return a, b, c, method(a, "run"), method(b, "run"), method(c, "run")
}

func TestOverrideChainSharesIndex(t *testing.T) {
	a, _, _, ra, rb, rc := chain()
	method(a, "other")

	as := NewAssigner(nil)
	as.Assign(a.Methods[1])
	as.Assign(ra)
	as.Override(rb, ra)
	as.Override(rc, rb)

	assert.Equal(t, 1, as.Index(ra))
	assert.Equal(t, as.Index(ra), as.Index(rb))
	assert.Equal(t, as.Index(ra), as.Index(rc))
	assert.Equal(t, []*model.Callable{rb}, as.Overriders(ra))
	assert.Equal(t, []*model.Callable{rc}, as.Overriders(rb))
}

func TestSubclassDomainContinuesSuperclass(t *testing.T) {
	a, b, _, ra, _, _ := chain()
	extra := method(b, "extra")

	as := NewAssigner(nil)
	as.Assign(ra)
	as.Assign(method(a, "second"))

	assert.Equal(t, 2, as.Assign(extra))
	assert.Equal(t, 2, as.Methods(b).Start())
	assert.Equal(t, 3, as.Methods(b).Count())
	assert.Equal(t, 1, as.Methods(b).Own())
	assert.Equal(t, 2, as.Methods(a).Count())
}

func TestFunctionDomainIsIndependent(t *testing.T) {
	a, _, _, ra, _, _ := chain()
	f := &model.Callable{Name: "main", Kind: model.KindFunction}
	vm := &model.Callable{Name: "len", Kind: model.KindMethod, Owner: &model.ValueType{Name: "Str"}}

	as := NewAssigner(nil)
	as.Assign(ra)
	assert.Equal(t, 0, as.Assign(f))
	assert.Equal(t, 1, as.Assign(vm))
	assert.Equal(t, 2, as.Functions().Count())
	assert.Equal(t, 1, as.Methods(a).Count())
	assert.Same(t, as.Functions(), as.Domain(vm))
}

func TestInitializersHaveTheirOwnDomain(t *testing.T) {
	a, b, _, ra, _, _ := chain()
	initA := &model.Callable{Name: "init", Kind: model.KindInitializer, Owner: a}
	initB := &model.Callable{Name: "make", Kind: model.KindInitializer, Owner: b}

	as := NewAssigner(nil)
	as.Assign(ra)
	assert.Equal(t, 0, as.Assign(initA))
	assert.Equal(t, 1, as.Assign(initB))
	assert.Same(t, as.Initializers(b), as.DomainOf(initB))
}

func TestForUseEnqueuesOnce(t *testing.T) {
	rec := &recorder{}
	as := NewAssigner(rec.enqueue)
	f := &model.Callable{Name: "f", Kind: model.KindFunction}

	assert.False(t, as.Used(f))
	i := as.ForUse(f)
	assert.Equal(t, i, as.ForUse(f))
	as.MarkUsed(f)

	assert.True(t, as.Used(f))
	assert.Equal(t, []*model.Callable{f}, rec.queued)
}

func TestNativeCallablesAreNotEnqueued(t *testing.T) {
	rec := &recorder{}
	as := NewAssigner(rec.enqueue)
	f := &model.Callable{Name: "print", Kind: model.KindFunction, Native: 3}

	as.ForUse(f)
	assert.True(t, as.Used(f))
	assert.Empty(t, rec.queued)
}

func TestMarkingAncestorUsedMarksOverriders(t *testing.T) {
	_, _, _, ra, rb, rc := chain()
	rec := &recorder{}
	as := NewAssigner(rec.enqueue)
	as.Assign(ra)
	as.Override(rb, ra)
	as.Override(rc, rb)

	assert.Empty(t, rec.queued)
	as.ForUse(ra)

	assert.True(t, as.Used(rb))
	assert.True(t, as.Used(rc))
	assert.Equal(t, []*model.Callable{ra, rb, rc}, rec.queued)
}

func TestOverrideOfUsedAncestorIsUsed(t *testing.T) {
	_, _, _, ra, rb, _ := chain()
	rec := &recorder{}
	as := NewAssigner(rec.enqueue)
	as.ForUse(ra)
	as.Override(rb, ra)

	assert.True(t, as.Used(rb))
	assert.Equal(t, []*model.Callable{ra, rb}, rec.queued)
}

func TestOverrideRequiresAssignedAncestor(t *testing.T) {
	_, _, _, ra, rb, _ := chain()
	as := NewAssigner(nil)
	assert.Panics(t, func() { as.Override(rb, ra) })
}

func TestIndexOfUnassignedCallablePanics(t *testing.T) {
	as := NewAssigner(nil)
	f := &model.Callable{Name: "f", Kind: model.KindFunction}

	defer func() {
		r := recover()
		ie, ok := r.(*diag.InvariantError)
		require.True(t, ok, "expected *diag.InvariantError, got %T", r)
		assert.Contains(t, ie.Error(), "f has no dispatch index")
	}()
	as.Index(f)
}

func TestLookupHasNoSideEffects(t *testing.T) {
	as := NewAssigner(nil)
	f := &model.Callable{Name: "f", Kind: model.KindFunction}

	_, ok := as.Lookup(f)
	assert.False(t, ok)
	assert.Equal(t, 0, as.Functions().Count())
}

func TestFrozenDomainRejectsAssignment(t *testing.T) {
	a, _, _, ra, _, _ := chain()
	as := NewAssigner(nil)
	as.Assign(ra)
	as.FreezeClasses()

	assert.True(t, as.Methods(a).Frozen())
	assert.Equal(t, 0, as.Assign(ra))
	assert.Panics(t, func() { as.Assign(method(a, "late")) })
}
