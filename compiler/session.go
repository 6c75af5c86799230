// Package compiler turns an analyzed program model into a linkable module.
//
// A Session drives the back end: it finalizes class and value type layouts,
// assigns dispatch indices, builds protocol conformance tables, generates the
// bytecode of every reachable callable and assembles the image. Callables
// are generated lazily, the first time something uses them; unused ones are
// optionally generated into a discarding writer so their diagnostics are
// still reported.
package compiler

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/tessera/diag"
	"github.com/chazu/tessera/dispatch"
	"github.com/chazu/tessera/image"
	"github.com/chazu/tessera/model"
)

// Config selects build options.
type Config struct {
	// Library builds a module without a start function.
	Library bool
	// Strict suppresses emission when any Error diagnostic was reported.
	Strict bool
	// Sweep generates unused callables into a discarding writer so their
	// diagnostics are reported.
	Sweep bool
}

// DefaultConfig returns the options used when no manifest says otherwise.
func DefaultConfig() Config {
	return Config{Sweep: true}
}

// Session owns all state of one compilation: the dispatch assigner, the
// compile queue, the string pool and the diagnostics. It is not safe for
// concurrent use and is discarded after Compile.
type Session struct {
	ID       uuid.UUID
	Program  *model.Program
	Config   Config
	Diags    diag.List
	Dispatch *dispatch.Assigner
	Strings  *image.StringPool

	queue     []*model.Callable
	compiled  map[*model.Callable]*image.Function
	tables    map[*model.Class]*image.ProtocolTable
	boxes     image.BoxTable
	start     *model.Callable
	finalized bool

	log commonlog.Logger
}

// NewSession creates an empty session for prog.
func NewSession(prog *model.Program, cfg Config) *Session {
	s := &Session{
		ID:       uuid.New(),
		Program:  prog,
		Config:   cfg,
		Strings:  image.NewStringPool(),
		compiled: make(map[*model.Callable]*image.Function),
		tables:   make(map[*model.Class]*image.ProtocolTable),
	}
	s.Dispatch = dispatch.NewAssigner(s.enqueue)
	s.log = commonlog.NewKeyValueLogger(commonlog.GetLogger("tessera.compiler"), "session", s.ID.String())
	return s
}

// Compile runs every stage and returns the module. It returns an error
// wrapping diag.ErrFatal when a fatal diagnostic was reported (or, in strict
// mode, any error), and one wrapping diag.ErrInternal when an internal
// invariant was violated. Diagnostics remain available in s.Diags either way.
func (s *Session) Compile() (m *image.Module, err error) {
	defer diag.Recover(&err)

	s.log.Infof("compiling %d packages", len(s.Program.Packages))
	s.Program.Resolve(&s.Diags)
	if s.Diags.HasFatal() {
		return nil, s.abort("resolve")
	}

	s.Finalize()
	if s.Diags.HasFatal() {
		return nil, s.abort("finalize")
	}

	n := s.Drain()
	s.log.Debugf("generated %d callables", n)

	m = s.Emit()
	if s.Config.Sweep {
		n = s.Sweep()
		s.log.Debugf("swept %d unused callables", n)
	}

	if s.Diags.HasFatal() || (s.Config.Strict && s.Diags.HasErrors()) {
		return nil, s.abort("emit")
	}
	s.log.Info("compiled",
		"classes", m.ClassCount,
		"functions", m.FunctionCount,
		"strings", len(m.Strings),
		"warnings", s.Diags.Count(diag.Warning),
		"errors", s.Diags.Count(diag.Error))
	return m, nil
}

func (s *Session) abort(stage string) error {
	s.log.Warningf("aborted after %s with %d diagnostics", stage, s.Diags.Len())
	return fmt.Errorf("%w: %w", diag.ErrFatal, s.Diags.Err())
}

// Compiled returns the generated body of a callable, or nil if it was not
// generated.
func (s *Session) Compiled(c *model.Callable) *image.Function {
	return s.compiled[c]
}

// Start returns the start function, or nil when building a library.
func (s *Session) Start() *model.Callable {
	return s.start
}

// ClassProtocols returns the conformance table built for a class.
func (s *Session) ClassProtocols(c *model.Class) *image.ProtocolTable {
	return s.tables[c]
}

// Boxes returns the box table of value type conformances.
func (s *Session) Boxes() *image.BoxTable {
	return &s.boxes
}
