// Package dispatch assigns dispatch indices (vtable slots) to callables and
// tracks which callables are used.
//
// Indices are drawn from independent domains: one global domain for
// functions and statically dispatched callables, and a method domain and an
// initializer domain per class. A subclass's domains continue after the last
// slot of its superclass's, so an override can occupy the same slot as the
// callable it overrides.
package dispatch

import (
	"fmt"

	"github.com/chazu/tessera/diag"
)

// Domain is an independent counter of dispatch indices.
type Domain struct {
	name   string
	parent *Domain
	start  int
	next   int
	frozen bool
}

// NewDomain creates a domain. A child domain starts numbering where its
// parent currently ends.
func NewDomain(name string, parent *Domain) *Domain {
	d := &Domain{name: name, parent: parent}
	if parent != nil {
		d.start = parent.next
		d.next = parent.next
	}
	return d
}

// Name returns the domain's diagnostic name.
func (d *Domain) Name() string { return d.name }

// Parent returns the domain this one continues, or nil.
func (d *Domain) Parent() *Domain { return d.parent }

// Start returns the first index drawn by this domain itself.
func (d *Domain) Start() int { return d.start }

// Count returns the full table size, inherited slots included.
func (d *Domain) Count() int { return d.next }

// Own returns the number of indices this domain drew itself.
func (d *Domain) Own() int { return d.next - d.start }

// Freeze prevents further draws.
func (d *Domain) Freeze() { d.frozen = true }

// Frozen reports whether the domain has been frozen.
func (d *Domain) Frozen() bool { return d.frozen }

// Contains reports whether index i is a valid slot of the domain.
func (d *Domain) Contains(i int) bool { return i >= 0 && i < d.next }

func (d *Domain) draw() int {
	if d.frozen {
		diag.Invariantf("dispatch.Domain.draw", "domain %s is frozen", d.name)
	}
	i := d.next
	d.next++
	return i
}

func (d *Domain) String() string {
	return fmt.Sprintf("%s[%d..%d)", d.name, d.start, d.next)
}
