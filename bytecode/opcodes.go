package bytecode

import "fmt"

// Instruction is one fixed-width code word.
type Instruction uint32

// Opcode identifies an instruction. An opcode occupies one word and is
// followed by its immediates and then its operand expressions (prefix
// encoding: the runtime evaluates operands recursively).
type Opcode Instruction

const (
	// ========================================================================
	// Constants (0x00-0x0F)
	// ========================================================================

	OpNop         Opcode = 0x00
	OpPushInteger Opcode = 0x01 // <value:i32>
	OpPushLong    Opcode = 0x02 // <hi:u32> <lo:u32>
	OpPushDouble  Opcode = 0x03 // <hi:u32> <lo:u32> IEEE-754 bits
	OpPushString  Opcode = 0x04 // <pool index>
	OpPushTrue    Opcode = 0x05
	OpPushFalse   Opcode = 0x06
	OpPushNothing Opcode = 0x07
	OpSelf        Opcode = 0x08

	// ========================================================================
	// Variables (0x10-0x1F)
	// ========================================================================

	OpLoadLocal  Opcode = 0x10 // <slot>
	OpStoreLocal Opcode = 0x11 // <slot> expr
	OpCopyLocal  Opcode = 0x12 // <slot> <size> value-type copy
	OpStoreValue Opcode = 0x13 // <slot> <size> expr
	OpGetField   Opcode = 0x14 // <slot>
	OpSetField   Opcode = 0x15 // <slot> expr

	// ========================================================================
	// Calls (0x20-0x2F)
	// ========================================================================

	OpDispatchMethod     Opcode = 0x20 // <vti> <argc> receiver args...
	OpDispatchTypeMethod Opcode = 0x21 // <class> <vti> <argc> args...
	OpNewObject          Opcode = 0x22 // <class> <vti> <argc> args...
	OpSuperInitializer   Opcode = 0x23 // <class> <vti> <argc> args...
	OpCallFunction       Opcode = 0x24 // <vti> <argc> args...
	OpDispatchProtocol   Opcode = 0x25 // <protocol> <method> <argc> receiver args...

	// ========================================================================
	// Boxing (0x30-0x3F)
	// ========================================================================

	OpBox   Opcode = 0x30 // <tag> expr
	OpUnbox Opcode = 0x31 // <tag> expr

	// ========================================================================
	// Control flow (0x40-0x4F)
	// ========================================================================

	OpIf          Opcode = 0x40 // cond <count> then...
	OpIfElse      Opcode = 0x41 // cond <count> then... <count> else...
	OpRepeatWhile Opcode = 0x42 // cond <count> body...
	OpReturn      Opcode = 0x43 // expr
	OpClosure     Opcode = 0x44 // <argc> <count> body...
)

// OperandKind describes one element of an opcode's encoding after the
// opcode word.
type OperandKind int

const (
	// Imm is a single immediate word.
	Imm OperandKind = iota
	// Expr is one operand expression.
	Expr
	// Args is one expression per argument; the count is the most recent
	// immediate named argc.
	Args
	// Block is a count word followed by that many words of statements.
	Block
)

// OpcodeInfo provides metadata about each opcode for disassembly.
type OpcodeInfo struct {
	Name     string
	Operands []OperandKind
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:         {"NOP", nil},
	OpPushInteger: {"PUSH_INTEGER", []OperandKind{Imm}},
	OpPushLong:    {"PUSH_LONG", []OperandKind{Imm, Imm}},
	OpPushDouble:  {"PUSH_DOUBLE", []OperandKind{Imm, Imm}},
	OpPushString:  {"PUSH_STRING", []OperandKind{Imm}},
	OpPushTrue:    {"PUSH_TRUE", nil},
	OpPushFalse:   {"PUSH_FALSE", nil},
	OpPushNothing: {"PUSH_NOTHING", nil},
	OpSelf:        {"SELF", nil},

	OpLoadLocal:  {"LOAD_LOCAL", []OperandKind{Imm}},
	OpStoreLocal: {"STORE_LOCAL", []OperandKind{Imm, Expr}},
	OpCopyLocal:  {"COPY_LOCAL", []OperandKind{Imm, Imm}},
	OpStoreValue: {"STORE_VALUE", []OperandKind{Imm, Imm, Expr}},
	OpGetField:   {"GET_FIELD", []OperandKind{Imm}},
	OpSetField:   {"SET_FIELD", []OperandKind{Imm, Expr}},

	OpDispatchMethod:     {"DISPATCH_METHOD", []OperandKind{Imm, Imm, Expr, Args}},
	OpDispatchTypeMethod: {"DISPATCH_TYPE_METHOD", []OperandKind{Imm, Imm, Imm, Args}},
	OpNewObject:          {"NEW_OBJECT", []OperandKind{Imm, Imm, Imm, Args}},
	OpSuperInitializer:   {"SUPER_INITIALIZER", []OperandKind{Imm, Imm, Imm, Args}},
	OpCallFunction:       {"CALL_FUNCTION", []OperandKind{Imm, Imm, Args}},
	OpDispatchProtocol:   {"DISPATCH_PROTOCOL", []OperandKind{Imm, Imm, Imm, Expr, Args}},

	OpBox:   {"BOX", []OperandKind{Imm, Expr}},
	OpUnbox: {"UNBOX", []OperandKind{Imm, Expr}},

	OpIf:          {"IF", []OperandKind{Expr, Block}},
	OpIfElse:      {"IF_ELSE", []OperandKind{Expr, Block, Block}},
	OpRepeatWhile: {"REPEAT_WHILE", []OperandKind{Expr, Block}},
	OpReturn:      {"RETURN", []OperandKind{Expr}},
	OpClosure:     {"CLOSURE", []OperandKind{Imm, Block}},
}

// Info returns metadata for the opcode and whether it is known.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	return info, ok
}

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if info, ok := opcodeInfoTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("Opcode(0x%02X)", uint32(op))
}
