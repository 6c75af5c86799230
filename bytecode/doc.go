// Package bytecode provides the instruction stream writer used by the code
// generator.
//
// A callable's code is a sequence of fixed-width words. Opcodes are written
// in prefix form: the opcode word, its immediates, then its operand
// expressions. Sections whose length is only known later (the body of an
// if, a loop, a closure) are preceded by a count placeholder.
//
// # Anchors
//
// Placeholders, insertion points and position marks are anchors into the
// stream. Inserting through an insertion point shifts every anchor that is
// logically after it, so offsets captured earlier stay correct. Offsets
// are only final once the writer is sealed.
//
// # Sinks
//
// A Writer stores words in a Sink. MemorySink keeps them; DiscardSink only
// counts them and is used to validate code that will never be emitted.
package bytecode
