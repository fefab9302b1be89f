package assembler

import (
	"strings"

	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// assembleReal lowers one real-opcode statement (not a pseudo-instruction)
// into the single isa.Instruction spec §4.5 expects: "Each instruction is
// 4 x 16-bit words: [opcode, op1, op2, op3]; register operands encode the
// register's numeric index; immediates occupy a 16-bit word directly."
func (st *state) assembleReal(s statement) (isa.Instruction, error) {
	op, ok := realMnemonics[strings.ToUpper(s.mnemonic)]
	if !ok {
		return isa.Instruction{}, diag.New(diag.Syntax, diag.Span{File: st.file, Line: s.line}, "unknown mnemonic %q", s.mnemonic)
	}

	reg := func(idx int) (isa.Reg, error) {
		if idx >= len(s.operands) || s.operands[idx].kind != operandReg {
			return 0, diag.New(diag.Syntax, diag.Span{File: st.file, Line: s.line}, "%s: expected register operand %d", s.mnemonic, idx+1)
		}
		return isa.Reg(s.operands[idx].reg), nil
	}
	immOrLabel := func(idx int) (int32, string, error) {
		if idx >= len(s.operands) {
			return 0, "", diag.New(diag.Syntax, diag.Span{File: st.file, Line: s.line}, "%s: expected operand %d", s.mnemonic, idx+1)
		}
		o := s.operands[idx]
		switch o.kind {
		case operandImm:
			return o.imm, "", nil
		case operandLabel:
			return 0, o.label, nil
		default:
			return 0, "", diag.New(diag.Syntax, diag.Span{File: st.file, Line: s.line}, "%s: expected constant or label at operand %d", s.mnemonic, idx+1)
		}
	}
	label := func(idx int) (string, error) {
		if idx >= len(s.operands) || s.operands[idx].kind != operandLabel {
			return "", diag.New(diag.Syntax, diag.Span{File: st.file, Line: s.line}, "%s: expected label operand %d", s.mnemonic, idx+1)
		}
		return s.operands[idx].label, nil
	}
	want := func(n int) error {
		if len(s.operands) != n {
			return diag.New(diag.Syntax, diag.Span{File: st.file, Line: s.line}, "%s: expected %d operand(s), got %d", s.mnemonic, n, len(s.operands))
		}
		return nil
	}

	switch op {
	case isa.ADD, isa.SUB, isa.AND, isa.OR, isa.XOR, isa.SLL, isa.SRL, isa.SLT, isa.SLTU,
		isa.MUL, isa.DIV, isa.MOD, isa.LOAD, isa.STORE:
		if err := want(3); err != nil {
			return isa.Instruction{}, err
		}
		a, err := reg(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		b, err := reg(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		c, err := reg(2)
		if err != nil {
			return isa.Instruction{}, err
		}
		return isa.Instruction{Op: op, A: int32(a), B: int32(b), C: int32(c)}, nil

	case isa.ADDI, isa.SUBI, isa.ANDI, isa.ORI, isa.XORI, isa.SLLI, isa.SRLI,
		isa.MULI, isa.DIVI, isa.MODI:
		if err := want(3); err != nil {
			return isa.Instruction{}, err
		}
		a, err := reg(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		b, err := reg(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		c, lbl, err := immOrLabel(2)
		if err != nil {
			return isa.Instruction{}, err
		}
		if lbl == "" && (int64(c) < -0x8000 || int64(c) > 0xFFFF) {
			return isa.Instruction{}, diag.New(diag.Overflow, diag.Span{File: st.file, Line: s.line}, "%s: immediate %d exceeds 16 bits", s.mnemonic, c)
		}
		return isa.Instruction{Op: op, A: int32(a), B: int32(b), C: c, Label: lbl}, nil

	case isa.JAL:
		if err := want(2); err != nil {
			return isa.Instruction{}, err
		}
		a, err := reg(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		lbl, err := label(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		return isa.Instruction{Op: op, A: int32(a), Label: lbl}, nil

	case isa.JALR:
		if err := want(3); err != nil {
			return isa.Instruction{}, err
		}
		a, err := reg(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		b, err := reg(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		c, _, err := immOrLabel(2)
		if err != nil {
			return isa.Instruction{}, err
		}
		return isa.Instruction{Op: op, A: int32(a), B: int32(b), C: c}, nil

	case isa.BEQ, isa.BNE, isa.BLT, isa.BGE:
		if err := want(3); err != nil {
			return isa.Instruction{}, err
		}
		a, err := reg(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		b, err := reg(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		lbl, err := label(2)
		if err != nil {
			return isa.Instruction{}, err
		}
		return isa.Instruction{Op: op, A: int32(a), B: int32(b), Label: lbl}, nil

	case isa.NOP, isa.BRK:
		if err := want(0); err != nil {
			return isa.Instruction{}, err
		}
		return isa.Instruction{Op: op}, nil

	default:
		return isa.Instruction{}, diag.New(diag.Internal, diag.Span{File: st.file, Line: s.line}, "assembler: unhandled opcode %v", op)
	}
}
