package assembler

import (
	"strings"

	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// realMnemonics maps every genuine opcode's mnemonic to its isa.Op, the
// inverse of isa.Op.Mnemonic(), built once so both directions of the
// encoding stay in lockstep with the ISA definition.
var realMnemonics = buildRealMnemonics()

func buildRealMnemonics() map[string]isa.Op {
	ops := []isa.Op{
		isa.NOP, isa.ADD, isa.SUB, isa.AND, isa.OR, isa.XOR, isa.SLL, isa.SRL, isa.SLT, isa.SLTU,
		isa.ADDI, isa.SUBI, isa.ANDI, isa.ORI, isa.XORI, isa.SLLI, isa.SRLI,
		isa.LOAD, isa.STORE, isa.JAL, isa.JALR, isa.BEQ, isa.BNE, isa.BLT, isa.BGE, isa.BRK,
		isa.MUL, isa.DIV, isa.MOD, isa.MULI, isa.DIVI, isa.MODI,
	}
	m := make(map[string]isa.Op, len(ops))
	for _, op := range ops {
		m[strings.ToUpper(op.Mnemonic())] = op
	}
	return m
}

// pseudoMnemonics names the pseudo-instructions spec §4.5 lists, expanded
// by expandPseudo into their canonical multi-instruction forms.
var pseudoMnemonics = map[string]bool{
	"MOVE": true, "PUSH": true, "POP": true, "CALL": true, "RET": true,
	"INC": true, "DEC": true, "NEG": true, "NOT": true, "HALT": true,
}

// controlFlowOps are the mnemonics whose label operand is PC-relative
// (spec §4.5 pass 2: "pc-relative writes (target - site - 1)"), since the
// VM interprets their operand as a jump/branch offset rather than an
// absolute address.
var controlFlowOps = map[string]bool{
	"JAL": true, "JALR": true, "BEQ": true, "BNE": true, "BLT": true, "BGE": true,
}
