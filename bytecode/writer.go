package bytecode

import (
	"github.com/chazu/tessera/diag"
)

// ---------------------------------------------------------------------------
// Anchors
// ---------------------------------------------------------------------------

// anchor is a position in the stream that follows later insertions.
// Anchors at the same raw offset are ordered by creation: inserting at one
// anchor shifts every anchor created after it at that offset, and every
// anchor at a greater offset.
type anchor struct {
	pos int
	seq uint64
}

// seqStride leaves room between creation sequence numbers so anchors derived
// from a placeholder can sort directly after it.
const seqStride = 1 << 16

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer is the append-only instruction stream of one callable. It supports
// one-shot placeholders, count placeholders and insertion points. Offsets are
// kept relative to the in-progress buffer and are final only after Seal.
type Writer struct {
	sink         Sink
	anchors      []*anchor
	nextSeq      uint64
	placeholders []*Placeholder
	sealed       bool
}

// NewWriter creates a writer over the given sink.
func NewWriter(sink Sink) *Writer {
	return &Writer{sink: sink}
}

// NewMemoryWriter creates a writer that keeps its instructions.
func NewMemoryWriter() *Writer {
	return NewWriter(NewSink(Memory))
}

// NewDiscardingWriter creates a writer that drops its instructions.
func NewDiscardingWriter() *Writer {
	return NewWriter(NewSink(Discard))
}

// Discarding reports whether the writer's output is dropped.
func (w *Writer) Discarding() bool {
	_, ok := w.sink.(*DiscardSink)
	return ok
}

// Len returns the number of instructions written so far.
func (w *Writer) Len() int {
	return w.sink.Len()
}

// Write appends instructions.
func (w *Writer) Write(words ...Instruction) {
	w.checkOpen("Write")
	w.sink.Append(words...)
}

// WriteOp appends an opcode followed by its immediates.
func (w *Writer) WriteOp(op Opcode, immediates ...Instruction) {
	w.checkOpen("WriteOp")
	w.sink.Append(Instruction(op))
	w.sink.Append(immediates...)
}

// Placeholder reserves one word to be written exactly once later.
func (w *Writer) Placeholder() *Placeholder {
	w.checkOpen("Placeholder")
	p := &Placeholder{w: w, at: w.newAnchor(w.Len())}
	w.sink.Append(0)
	w.placeholders = append(w.placeholders, p)
	return p
}

// CountPlaceholder reserves one word that will hold the number of
// instructions following it at the time it is written.
func (w *Writer) CountPlaceholder() *CountPlaceholder {
	return &CountPlaceholder{p: w.Placeholder()}
}

// InsertionPoint captures the current logical position. Content inserted
// through it appears there, after anything inserted through it before.
func (w *Writer) InsertionPoint() *InsertionPoint {
	w.checkOpen("InsertionPoint")
	return &InsertionPoint{w: w, at: w.newAnchor(w.Len())}
}

// Mark captures the current logical position as a Position that follows
// later insertions.
func (w *Writer) Mark() *Position {
	return &Position{at: w.newAnchor(w.Len())}
}

// Seal finishes the stream and returns its instructions. Every placeholder
// must have been written. A discarding writer returns nil.
func (w *Writer) Seal() []Instruction {
	for _, p := range w.placeholders {
		if !p.written {
			diag.Invariantf("bytecode.Writer.Seal", "placeholder at offset %d was never written", p.at.pos)
		}
	}
	w.sealed = true
	return w.sink.Words()
}

// Sealed reports whether Seal was called.
func (w *Writer) Sealed() bool {
	return w.sealed
}

func (w *Writer) newAnchor(pos int) *anchor {
	a := &anchor{pos: pos, seq: w.nextSeq}
	w.nextSeq += seqStride
	w.anchors = append(w.anchors, a)
	return a
}

// insertAt inserts words at a and shifts every anchor logically after it.
func (w *Writer) insertAt(a *anchor, words []Instruction) {
	if len(words) == 0 {
		return
	}
	p, n := a.pos, len(words)
	w.sink.Insert(p, words...)
	for _, b := range w.anchors {
		if b == a {
			continue
		}
		if b.pos > p || (b.pos == p && b.seq > a.seq) {
			b.pos += n
		}
	}
	a.pos += n
}

func (w *Writer) checkOpen(op string) {
	if w.sealed {
		diag.Invariantf("bytecode.Writer."+op, "writer already sealed")
	}
}

// ---------------------------------------------------------------------------
// Placeholder
// ---------------------------------------------------------------------------

// Placeholder is a reserved word bound to exactly one later write.
type Placeholder struct {
	w       *Writer
	at      *anchor
	value   Instruction
	written bool
	read    bool
	derived uint64
}

// Write stores v at the reserved offset. Writing twice is an invariant
// violation.
func (p *Placeholder) Write(v Instruction) {
	if p.written {
		diag.Invariantf("bytecode.Placeholder.Write", "placeholder at offset %d written twice", p.at.pos)
	}
	p.w.checkOpen("Placeholder.Write")
	p.w.sink.Set(p.at.pos, v)
	p.value = v
	p.written = true
}

// Value returns the written value and consumes it. Reading an unwritten
// placeholder, or reading one twice, is an invariant violation.
func (p *Placeholder) Value() Instruction {
	if !p.written {
		diag.Invariantf("bytecode.Placeholder.Value", "placeholder at offset %d read before it was written", p.at.pos)
	}
	if p.read {
		diag.Invariantf("bytecode.Placeholder.Value", "placeholder at offset %d read twice", p.at.pos)
	}
	p.read = true
	return p.value
}

// Written reports whether the placeholder has been written.
func (p *Placeholder) Written() bool {
	return p.written
}

// Offset returns the placeholder's current offset.
func (p *Placeholder) Offset() int {
	return p.at.pos
}

// InsertionPoint derives an insertion point directly after the reserved word.
// Its content lands before anything captured after the placeholder.
func (p *Placeholder) InsertionPoint() *InsertionPoint {
	p.w.checkOpen("Placeholder.InsertionPoint")
	p.derived++
	a := &anchor{pos: p.at.pos + 1, seq: p.at.seq + p.derived}
	p.w.anchors = append(p.w.anchors, a)
	return &InsertionPoint{w: p.w, at: a}
}

// CountPlaceholder is a placeholder whose value is the number of
// instructions written after it.
type CountPlaceholder struct {
	p *Placeholder
}

// Write stores the number of instructions following the placeholder.
func (c *CountPlaceholder) Write() {
	c.p.Write(Instruction(c.p.w.Len() - c.p.at.pos - 1))
}

// Value returns the stored count and consumes it, like Placeholder.Value.
func (c *CountPlaceholder) Value() Instruction {
	return c.p.Value()
}

// Offset returns the placeholder's current offset.
func (c *CountPlaceholder) Offset() int {
	return c.p.Offset()
}

// ---------------------------------------------------------------------------
// InsertionPoint and Position
// ---------------------------------------------------------------------------

// InsertionPoint inserts instructions at a captured logical position.
type InsertionPoint struct {
	w  *Writer
	at *anchor
}

// Insert places words at the insertion point, after anything previously
// inserted through it.
func (ip *InsertionPoint) Insert(words ...Instruction) {
	ip.w.checkOpen("InsertionPoint.Insert")
	ip.w.insertAt(ip.at, words)
}

// InsertOp inserts an opcode followed by its immediates.
func (ip *InsertionPoint) InsertOp(op Opcode, immediates ...Instruction) {
	words := make([]Instruction, 0, 1+len(immediates))
	words = append(words, Instruction(op))
	words = append(words, immediates...)
	ip.Insert(words...)
}

// Offset returns the current offset at which the next insert lands.
func (ip *InsertionPoint) Offset() int {
	return ip.at.pos
}

// Position is a stream offset that follows later insertions.
type Position struct {
	at *anchor
}

// Offset returns the current offset.
func (p *Position) Offset() int {
	return p.at.pos
}
