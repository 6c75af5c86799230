package compiler

import (
	"github.com/chazu/tessera/bytecode"
	"github.com/chazu/tessera/image"
	"github.com/chazu/tessera/model"
)

// ---------------------------------------------------------------------------
// Compile queue
// ---------------------------------------------------------------------------

// enqueue is called by the dispatch assigner the first time a callable with
// a body becomes used.
func (s *Session) enqueue(c *model.Callable) {
	s.queue = append(s.queue, c)
}

// Drain generates queued callables in first-in first-out order until the
// queue is empty. Generating a callable may queue more. It returns the
// number of callables generated.
func (s *Session) Drain() int {
	n := 0
	for len(s.queue) > 0 {
		c := s.queue[0]
		s.queue = s.queue[1:]
		if _, done := s.compiled[c]; done {
			continue
		}
		f := s.generate(c, bytecode.NewMemoryWriter(), live{s})
		s.compiled[c] = f
		s.log.Debugf("generated %s: %d words", c, len(f.Code))
		n++
	}
	return n
}

// Sweep generates every declared callable that is neither used nor native
// into a discarding writer. Diagnostics are kept; the code is dropped and
// nothing becomes used, so the module is unaffected. It returns the number
// of callables swept.
func (s *Session) Sweep() int {
	n := 0
	for _, c := range s.Program.Callables() {
		if c.IsNative() || s.Dispatch.Used(c) {
			continue
		}
		s.generate(c, bytecode.NewDiscardingWriter(), sweep{s})
		n++
	}
	return n
}

// ---------------------------------------------------------------------------
// Resolvers
// ---------------------------------------------------------------------------

// resolver turns references made by generated code into operands.
type resolver interface {
	// callable returns the dispatch index of a referenced callable.
	callable(c *model.Callable) uint16
	// str returns the pool index of a string constant.
	str(v string) uint16
}

// live marks referenced callables used and interns strings.
type live struct{ s *Session }

func (r live) callable(c *model.Callable) uint16 {
	return uint16(r.s.Dispatch.ForUse(c))
}

func (r live) str(v string) uint16 {
	return r.s.Strings.Intern(v)
}

// sweep only reads existing state.
type sweep struct{ s *Session }

func (r sweep) callable(c *model.Callable) uint16 {
	if i, ok := r.s.Dispatch.Lookup(c); ok {
		return uint16(i)
	}
	return image.NoDispatchIndex
}

func (r sweep) str(v string) uint16 {
	i, _ := r.s.Strings.Lookup(v)
	return i
}
