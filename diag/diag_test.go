package diag

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCounts(t *testing.T) {
	var l List
	pos := Position{File: "a.tess", Line: 3, Column: 7}

	l.Warnf(pos, "deprecated %s", "foo")
	l.Errorf(pos, "missing %s", "bar")
	l.Errorf(pos, "missing %s", "baz")

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 1, l.Count(Warning))
	assert.Equal(t, 2, l.Count(Error))
	assert.False(t, l.HasFatal())
	assert.True(t, l.HasErrors())

	l.Fatalf(pos, "too many packages")
	assert.True(t, l.HasFatal())
}

func TestListErrIgnoresWarnings(t *testing.T) {
	var l List
	l.Warnf(Position{}, "only a warning")
	assert.NoError(t, l.Err())

	l.Errorf(Position{File: "x", Line: 1, Column: 1}, "first")
	l.Fatalf(Position{File: "x", Line: 2, Column: 1}, "second")

	err := l.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 diagnostics")
	assert.Contains(t, err.Error(), "x:1:1: error: first")
	assert.Contains(t, err.Error(), "x:2:1: fatal: second")
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "<unknown>", Position{}.String())
	assert.Equal(t, "<input>:4:2", Position{Line: 4, Column: 2}.String())
	assert.Equal(t, "m.yaml:1:9", Position{File: "m.yaml", Line: 1, Column: 9}.String())
	assert.Equal(t, "m.yaml", Position{File: "m.yaml"}.String())
}

func TestRecoverInvariant(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err)
		Invariantf("writer", "placeholder at %d written twice", 4)
		return nil
	}

	err := run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInternal))
	assert.True(t, strings.Contains(err.Error(), "placeholder at 4 written twice"))
}

func TestRecoverRepanicsForeignValues(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		var err error
		defer Recover(&err)
		panic("boom")
	})
}
