// Package diag collects compiler diagnostics and internal invariant failures.
package diag

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrFatal is returned when a fatal diagnostic aborted the run.
	ErrFatal = errors.New("compilation aborted")

	// ErrInternal wraps a recovered invariant violation.
	ErrInternal = errors.New("internal compiler error")
)

// ---------------------------------------------------------------------------
// Severity
// ---------------------------------------------------------------------------

// Severity classifies a diagnostic.
type Severity int

const (
	// Warning never affects emission.
	Warning Severity = iota
	// Error is user-attributable; the current pass continues.
	Error
	// Fatal aborts the run and suppresses emission.
	Fatal
)

// String returns a human-readable name for the severity.
func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ---------------------------------------------------------------------------
// Position and Diagnostic
// ---------------------------------------------------------------------------

// Position is a source location supplied by the front end.
type Position struct {
	File   string `yaml:"file,omitempty" cbor:"file,omitempty"`
	Line   int    `yaml:"line,omitempty" cbor:"line,omitempty"`
	Column int    `yaml:"column,omitempty" cbor:"column,omitempty"`
}

// IsZero reports whether no location is known.
func (p Position) IsZero() bool {
	return p.File == "" && p.Line == 0 && p.Column == 0
}

func (p Position) String() string {
	if p.IsZero() {
		return "<unknown>"
	}
	file := p.File
	if file == "" {
		file = "<input>"
	}
	if p.Line == 0 {
		return file
	}
	return fmt.Sprintf("%s:%d:%d", file, p.Line, p.Column)
}

// Diagnostic is one reported problem.
type Diagnostic struct {
	Severity Severity
	Pos      Position
	Message  string
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

// List accumulates diagnostics in the order they were reported.
// It is owned by a single compilation session and is not safe for
// concurrent use.
type List struct {
	items  []Diagnostic
	counts [3]int
}

// Add records a diagnostic.
func (l *List) Add(d Diagnostic) {
	l.items = append(l.items, d)
	if d.Severity >= Warning && d.Severity <= Fatal {
		l.counts[d.Severity]++
	}
}

// Warnf records a warning.
func (l *List) Warnf(pos Position, format string, args ...any) {
	l.Add(Diagnostic{Severity: Warning, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Errorf records a recoverable error.
func (l *List) Errorf(pos Position, format string, args ...any) {
	l.Add(Diagnostic{Severity: Error, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Fatalf records a fatal error.
func (l *List) Fatalf(pos Position, format string, args ...any) {
	l.Add(Diagnostic{Severity: Fatal, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// All returns every recorded diagnostic.
func (l *List) All() []Diagnostic {
	return l.items
}

// Len returns the number of recorded diagnostics.
func (l *List) Len() int {
	return len(l.items)
}

// Count returns how many diagnostics of the given severity were recorded.
func (l *List) Count(s Severity) int {
	if s < Warning || s > Fatal {
		return 0
	}
	return l.counts[s]
}

// HasFatal reports whether any fatal diagnostic was recorded.
func (l *List) HasFatal() bool {
	return l.counts[Fatal] > 0
}

// HasErrors reports whether any Error or Fatal diagnostic was recorded.
func (l *List) HasErrors() bool {
	return l.counts[Error] > 0 || l.counts[Fatal] > 0
}

// Err folds every Error and Fatal diagnostic into one error.
// Returns nil when there are none.
func (l *List) Err() error {
	var result *multierror.Error
	for _, d := range l.items {
		if d.Severity >= Error {
			result = multierror.Append(result, d)
		}
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = formatList
	return result.ErrorOrNil()
}

func formatList(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	s := fmt.Sprintf("%d diagnostics:", len(errs))
	for _, err := range errs {
		s += "\n\t" + err.Error()
	}
	return s
}
