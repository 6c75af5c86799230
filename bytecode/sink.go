package bytecode

// Sink stores the words produced by a Writer.
type Sink interface {
	// Append adds words at the end.
	Append(words ...Instruction)
	// Insert places words before the word at offset at.
	Insert(at int, words ...Instruction)
	// Set overwrites the word at offset at.
	Set(at int, v Instruction)
	// Len returns the number of words held (or, for a discarding sink,
	// the number that would be held).
	Len() int
	// Words returns the stored words. A discarding sink returns nil.
	Words() []Instruction
}

// SinkKind selects a Sink implementation.
type SinkKind int

const (
	// Memory keeps every word.
	Memory SinkKind = iota
	// Discard keeps only the length, for validation-only generation.
	Discard
)

// NewSink returns an empty sink of the given kind.
func NewSink(kind SinkKind) Sink {
	if kind == Discard {
		return &DiscardSink{}
	}
	return &MemorySink{words: make([]Instruction, 0, 32)}
}

// MemorySink is an in-memory Sink.
type MemorySink struct {
	words []Instruction
}

func (s *MemorySink) Append(words ...Instruction) {
	s.words = append(s.words, words...)
}

func (s *MemorySink) Insert(at int, words ...Instruction) {
	if len(words) == 0 {
		return
	}
	s.words = append(s.words, words...)
	copy(s.words[at+len(words):], s.words[at:len(s.words)-len(words)])
	copy(s.words[at:], words)
}

func (s *MemorySink) Set(at int, v Instruction) {
	s.words[at] = v
}

func (s *MemorySink) Len() int {
	return len(s.words)
}

func (s *MemorySink) Words() []Instruction {
	return s.words
}

// DiscardSink drops every word but tracks how many were written, so offsets
// computed against it stay meaningful.
type DiscardSink struct {
	n int
}

func (s *DiscardSink) Append(words ...Instruction) { s.n += len(words) }

func (s *DiscardSink) Insert(at int, words ...Instruction) { s.n += len(words) }

func (s *DiscardSink) Set(at int, v Instruction) {}

func (s *DiscardSink) Len() int { return s.n }

func (s *DiscardSink) Words() []Instruction { return nil }
