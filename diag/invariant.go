package diag

import "fmt"

// InvariantError reports a compiler-internal bug: a placeholder written twice,
// a dispatch index read before assignment, and the like. It is raised with
// panic and never expected in correct operation.
type InvariantError struct {
	Where   string
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Where, e.Message)
}

// Invariantf panics with an InvariantError.
func Invariantf(where, format string, args ...any) {
	panic(&InvariantError{Where: where, Message: fmt.Sprintf(format, args...)})
}

// Recover converts an InvariantError panic into an error wrapping ErrInternal.
// Use it deferred at a stage boundary:
//
//	defer diag.Recover(&err)
//
// Any other panic is re-raised.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	ie, ok := r.(*InvariantError)
	if !ok {
		panic(r)
	}
	*errp = fmt.Errorf("%w: %v", ErrInternal, ie)
}
