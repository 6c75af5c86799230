package bytecode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisassembleNestedBlocks(t *testing.T) {
	w := NewMemoryWriter()
	w.WriteOp(OpIf)
	w.WriteOp(OpPushTrue)
	c := w.CountPlaceholder()
	w.WriteOp(OpReturn)
	w.WriteOp(OpPushDouble)
	w.WriteDouble(1.5)
	c.Write()
	w.WriteOp(OpCallFunction, 3, 1)
	w.WriteOp(OpPushInteger, 7)

	out := DisassembleWithName("main", w.Seal())

	assert.True(t, strings.HasPrefix(out, "; === main ===\n"))
	assert.Contains(t, out, "0000  IF\n")
	assert.Contains(t, out, "0001    PUSH_TRUE\n")
	assert.Contains(t, out, "0002    { 4 words\n")
	assert.Contains(t, out, "0003      RETURN\n")
	assert.Contains(t, out, "0004        PUSH_DOUBLE 1.5\n")
	assert.Contains(t, out, "0007  CALL_FUNCTION 3 1\n")
	assert.Contains(t, out, "0010    PUSH_INTEGER 7\n")
}

func TestDisassembleUnknownOpcode(t *testing.T) {
	out := Disassemble([]Instruction{0xDEAD})
	assert.Contains(t, out, "??? 0x0000DEAD")
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "DISPATCH_PROTOCOL", OpDispatchProtocol.String())
	assert.Equal(t, "Opcode(0xFF)", Opcode(0xFF).String())
}
