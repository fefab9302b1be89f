// Package disasm renders isa.Instruction values back to the textual
// mnemonic syntax internal/assembler reads, one operand-shape dispatch
// shared by cmd/compile's assembly renderer and the assembler/linker's
// -f {macro,text} listing outputs, so the three call sites can't drift on
// how a given opcode's operands print.
package disasm

import (
	"fmt"

	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// Instruction renders one instruction, preferring inst.Label over its
// resolved immediate/offset when both are present (an unassembled or
// not-yet-linked instruction carries a Label; a resolved one does not).
func Instruction(inst isa.Instruction) string {
	mnemonic := inst.Op.Mnemonic()
	switch inst.Op {
	case isa.ADD, isa.SUB, isa.AND, isa.OR, isa.XOR, isa.SLL, isa.SRL, isa.SLT, isa.SLTU,
		isa.MUL, isa.DIV, isa.MOD, isa.LOAD, isa.STORE:
		return fmt.Sprintf("%s %s, %s, %s", mnemonic, reg(inst.A), reg(inst.B), reg(inst.C))

	case isa.ADDI, isa.SUBI, isa.ANDI, isa.ORI, isa.XORI, isa.SLLI, isa.SRLI,
		isa.MULI, isa.DIVI, isa.MODI:
		return fmt.Sprintf("%s %s, %s, %s", mnemonic, reg(inst.A), reg(inst.B), immOrLabel(inst))

	case isa.JAL:
		return fmt.Sprintf("%s %s, %s", mnemonic, reg(inst.A), immOrLabel(inst))

	case isa.JALR:
		return fmt.Sprintf("%s %s, %s, %d", mnemonic, reg(inst.A), reg(inst.B), inst.C)

	case isa.BEQ, isa.BNE, isa.BLT, isa.BGE:
		return fmt.Sprintf("%s %s, %s, %s", mnemonic, reg(inst.A), reg(inst.B), immOrLabel(inst))

	case isa.NOP, isa.BRK:
		return mnemonic

	default:
		return fmt.Sprintf("%s %d, %d, %d", mnemonic, inst.A, inst.B, inst.C)
	}
}

func reg(v int32) string {
	return isa.Reg(v).String()
}

func immOrLabel(inst isa.Instruction) string {
	if inst.Label != "" {
		return inst.Label
	}
	return fmt.Sprintf("%d", inst.C)
}
