package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of a callable's instructions.
// Operand expressions and blocks are indented under the instruction that
// owns them.
func Disassemble(code []Instruction) string {
	return DisassembleWithName("", code)
}

// DisassembleWithName returns a listing with a name header.
func DisassembleWithName(name string, code []Instruction) string {
	var sb strings.Builder
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; %d words\n", len(code)))

	d := disassembler{code: code, sb: &sb}
	for d.pc < len(code) {
		d.expr(0)
	}
	return sb.String()
}

type disassembler struct {
	code []Instruction
	pc   int
	sb   *strings.Builder
}

func (d *disassembler) line(depth, offset int, format string, args ...any) {
	d.sb.WriteString(fmt.Sprintf("%04d  ", offset))
	d.sb.WriteString(strings.Repeat("  ", depth))
	d.sb.WriteString(fmt.Sprintf(format, args...))
	d.sb.WriteByte('\n')
}

func (d *disassembler) word() (Instruction, bool) {
	if d.pc >= len(d.code) {
		return 0, false
	}
	w := d.code[d.pc]
	d.pc++
	return w, true
}

func (d *disassembler) expr(depth int) {
	offset := d.pc
	w, ok := d.word()
	if !ok {
		d.line(depth, offset, "<truncated>")
		return
	}
	op := Opcode(w)
	info, known := op.Info()
	if !known {
		d.line(depth, offset, "??? 0x%08X", uint32(w))
		return
	}

	var imms []string
	var lastImm Instruction
	i := 0
	for ; i < len(info.Operands) && info.Operands[i] == Imm; i++ {
		v, ok := d.word()
		if !ok {
			d.line(depth, offset, "%s <truncated>", info.Name)
			return
		}
		lastImm = v
		imms = append(imms, fmt.Sprintf("%d", v))
	}
	if op == OpPushDouble && len(imms) == 2 {
		hi, lo := d.code[offset+1], d.code[offset+2]
		imms = []string{fmt.Sprintf("%g", DecodeDouble(hi, lo))}
	}
	if len(imms) > 0 {
		d.line(depth, offset, "%s %s", info.Name, strings.Join(imms, " "))
	} else {
		d.line(depth, offset, "%s", info.Name)
	}

	for ; i < len(info.Operands); i++ {
		switch info.Operands[i] {
		case Imm:
			v, _ := d.word()
			lastImm = v
			d.line(depth+1, d.pc-1, "#%d", v)
		case Expr:
			d.expr(depth + 1)
		case Args:
			for n := Instruction(0); n < lastImm && d.pc < len(d.code); n++ {
				d.expr(depth + 1)
			}
		case Block:
			countAt := d.pc
			count, ok := d.word()
			if !ok {
				d.line(depth+1, countAt, "<truncated block>")
				return
			}
			d.line(depth+1, countAt, "{ %d words", count)
			end := d.pc + int(count)
			for d.pc < end && d.pc < len(d.code) {
				d.expr(depth + 2)
			}
			d.line(depth+1, d.pc, "}")
		}
	}
}
