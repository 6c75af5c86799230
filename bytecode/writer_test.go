package bytecode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/tessera/diag"
)

func words(vs ...int) []Instruction {
	out := make([]Instruction, len(vs))
	for i, v := range vs {
		out[i] = Instruction(v)
	}
	return out
}

// ---------------------------------------------------------------------------
// Placeholders
// ---------------------------------------------------------------------------

func TestPlaceholderWrittenOnce(t *testing.T) {
	w := NewMemoryWriter()
	w.Write(1, 2)
	p := w.Placeholder()
	w.Write(3)
	p.Write(99)

	assert.Equal(t, words(1, 2, 99, 3), w.Seal())
	assert.Equal(t, Instruction(99), p.Value())
	assert.Equal(t, 2, p.Offset())
}

func TestPlaceholderDoubleWritePanics(t *testing.T) {
	w := NewMemoryWriter()
	p := w.Placeholder()
	p.Write(1)

	assert.PanicsWithError(t, "bytecode.Placeholder.Write: placeholder at offset 0 written twice", func() {
		p.Write(2)
	})
}

func TestPlaceholderReadBeforeWritePanics(t *testing.T) {
	w := NewMemoryWriter()
	p := w.Placeholder()

	defer func() {
		r := recover()
		_, ok := r.(*diag.InvariantError)
		assert.True(t, ok, "expected *diag.InvariantError, got %T", r)
	}()
	p.Value()
}

func TestPlaceholderReadTwicePanics(t *testing.T) {
	w := NewMemoryWriter()
	p := w.Placeholder()
	p.Write(5)
	assert.Equal(t, Instruction(5), p.Value())

	assert.PanicsWithError(t, "bytecode.Placeholder.Value: placeholder at offset 0 read twice", func() {
		p.Value()
	})
}

func TestSealWithUnwrittenPlaceholderPanics(t *testing.T) {
	w := NewMemoryWriter()
	w.Write(7)
	w.Placeholder()

	assert.Panics(t, func() { w.Seal() })
}

func TestCountPlaceholderCountsFollowingInstructions(t *testing.T) {
	w := NewMemoryWriter()
	w.Write(42)
	c := w.CountPlaceholder()
	w.Write(10, 11, 12, 13, 14)
	c.Write()

	code := w.Seal()
	require.Len(t, code, 7)
	assert.Equal(t, Instruction(5), code[c.Offset()])
	assert.Equal(t, words(10, 11, 12, 13, 14), code[c.Offset()+1:])
}

func TestCountPlaceholderIncludesInsertedContent(t *testing.T) {
	w := NewMemoryWriter()
	c := w.CountPlaceholder()
	w.Write(1)
	ip := w.InsertionPoint()
	w.Write(2)
	ip.Insert(9, 9)
	c.Write()

	assert.Equal(t, words(4, 1, 9, 9, 2), w.Seal())
}

// ---------------------------------------------------------------------------
// Insertion points
// ---------------------------------------------------------------------------

func TestInsertionPointKeepsOrder(t *testing.T) {
	w := NewMemoryWriter()
	w.Write(1)
	ip := w.InsertionPoint()
	w.Write(2, 3)

	ip.Insert(10)
	ip.Insert(11, 12)

	assert.Equal(t, words(1, 10, 11, 12, 2, 3), w.Seal())
}

func TestInsertionShiftsLaterPlaceholders(t *testing.T) {
	w := NewMemoryWriter()
	ip := w.InsertionPoint()
	w.Write(5)
	p := w.Placeholder()
	mark := w.Mark()
	w.Write(6)

	ip.Insert(100, 101)
	p.Write(77)

	code := w.Seal()
	assert.Equal(t, words(100, 101, 5, 77, 6), code)
	assert.Equal(t, 3, p.Offset())
	assert.Equal(t, 4, mark.Offset())
}

func TestInsertionPointsAtSameOffsetKeepCreationOrder(t *testing.T) {
	w := NewMemoryWriter()
	w.Write(1)
	first := w.InsertionPoint()
	second := w.InsertionPoint()
	w.Write(2)

	second.Insert(20)
	first.Insert(10)
	second.Insert(21)
	first.Insert(11)

	assert.Equal(t, words(1, 10, 11, 20, 21, 2), w.Seal())
}

func TestNestedInsertionPointsStayTransitive(t *testing.T) {
	w := NewMemoryWriter()
	outer := w.InsertionPoint()
	w.Write(1)
	inner := w.InsertionPoint()
	w.Write(2)
	tail := w.InsertionPoint()

	tail.Insert(30)
	inner.Insert(20)
	outer.Insert(10)
	inner.Insert(21)

	assert.Equal(t, words(10, 1, 20, 21, 2, 30), w.Seal())
}

func TestPlaceholderDerivedInsertionPoint(t *testing.T) {
	w := NewMemoryWriter()
	p := w.Placeholder()
	w.Write(8)
	mark := w.Mark()

	ip := p.InsertionPoint()
	ip.Insert(50)
	p.Write(3)

	assert.Equal(t, words(3, 50, 8), w.Seal())
	assert.Equal(t, 3, mark.Offset())
}

func TestInterleavedPlaceholdersAndInsertions(t *testing.T) {
	w := NewMemoryWriter()
	var ps []*Placeholder
	var ips []*InsertionPoint
	for i := 0; i < 4; i++ {
		ips = append(ips, w.InsertionPoint())
		ps = append(ps, w.Placeholder())
		w.Write(Instruction(1000 + i))
	}
	for i := len(ips) - 1; i >= 0; i-- {
		ips[i].Insert(Instruction(500 + i))
	}
	for i, p := range ps {
		p.Write(Instruction(i))
	}

	want := words(
		500, 0, 1000,
		501, 1, 1001,
		502, 2, 1002,
		503, 3, 1003,
	)
	assert.Equal(t, want, w.Seal())
	for i, p := range ps {
		assert.Equal(t, Instruction(i), p.Value())
	}
}

func TestSealedWriterRejectsWrites(t *testing.T) {
	w := NewMemoryWriter()
	w.Write(1)
	w.Seal()
	assert.Panics(t, func() { w.Write(2) })
}

// ---------------------------------------------------------------------------
// Sinks and doubles
// ---------------------------------------------------------------------------

func TestDiscardingWriterTracksLength(t *testing.T) {
	w := NewDiscardingWriter()
	assert.True(t, w.Discarding())

	ip := w.InsertionPoint()
	c := w.CountPlaceholder()
	w.Write(1, 2, 3)
	ip.Insert(4)
	c.Write()

	assert.Equal(t, 5, w.Len())
	assert.Equal(t, Instruction(3), c.Value())
	assert.Nil(t, w.Seal())
}

func TestDoubleEncodingRoundTrip(t *testing.T) {
	for _, f := range []float64{0, -0.5, 1, math.Pi, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(-1)} {
		hi, lo := EncodeDouble(f)
		assert.Equal(t, f, DecodeDouble(hi, lo))
	}

	w := NewMemoryWriter()
	w.WriteDouble(2.5)
	code := w.Seal()
	require.Len(t, code, 2)
	assert.Equal(t, Instruction(0x40040000), code[0])
	assert.Equal(t, Instruction(0), code[1])
}
