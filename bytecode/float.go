package bytecode

import "math"

// WriteDouble appends a double as two words: the high and then the low half
// of its IEEE-754 bit pattern. The encoding does not depend on the host's
// byte order or float layout.
func (w *Writer) WriteDouble(f float64) {
	hi, lo := EncodeDouble(f)
	w.Write(hi, lo)
}

// EncodeDouble splits a double into its two-word encoding.
func EncodeDouble(f float64) (hi, lo Instruction) {
	bits := math.Float64bits(f)
	return Instruction(bits >> 32), Instruction(bits)
}

// DecodeDouble reverses EncodeDouble.
func DecodeDouble(hi, lo Instruction) float64 {
	return math.Float64frombits(uint64(hi)<<32 | uint64(lo))
}
