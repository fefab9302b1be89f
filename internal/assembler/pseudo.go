package assembler

import (
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// expandPseudo lowers one pseudo-instruction statement into its canonical
// multi-instruction form, per spec §4.5: "Expand pseudo-instructions
// (MOVE, PUSH, POP, CALL, RET, INC, DEC, NEG, NOT, HALT) into their
// canonical multi-instruction forms." Each form is built from the same
// primitives codegen itself uses (internal/codegen/func.go's prologue/
// epilogue and internal/codegen/inst.go's lowering), so hand-written
// assembly and compiler output share one machine-level vocabulary.
func expandPseudo(file string, st statement) ([]isa.Instruction, error) {
	reg := func(ops []operand, idx int) (isa.Reg, error) {
		if idx >= len(ops) || ops[idx].kind != operandReg {
			return 0, diag.New(diag.Syntax, diag.Span{File: file, Line: st.line}, "%s: expected register operand %d", st.mnemonic, idx+1)
		}
		return isa.Reg(ops[idx].reg), nil
	}
	label := func(ops []operand, idx int) (string, error) {
		if idx >= len(ops) || ops[idx].kind != operandLabel {
			return "", diag.New(diag.Syntax, diag.Span{File: file, Line: st.line}, "%s: expected label operand %d", st.mnemonic, idx+1)
		}
		return ops[idx].label, nil
	}
	want := func(n int) error {
		if len(st.operands) != n {
			return diag.New(diag.Syntax, diag.Span{File: file, Line: st.line}, "%s: expected %d operand(s), got %d", st.mnemonic, n, len(st.operands))
		}
		return nil
	}

	switch st.mnemonic {
	case "MOVE":
		if err := want(2); err != nil {
			return nil, err
		}
		rd, err := reg(st.operands, 0)
		if err != nil {
			return nil, err
		}
		rs, err := reg(st.operands, 1)
		if err != nil {
			return nil, err
		}
		return []isa.Instruction{{Op: isa.ADDI, A: int32(rd), B: int32(rs), C: 0}}, nil

	case "PUSH":
		if err := want(1); err != nil {
			return nil, err
		}
		rs, err := reg(st.operands, 0)
		if err != nil {
			return nil, err
		}
		return []isa.Instruction{
			{Op: isa.SUBI, A: int32(isa.SP), B: int32(isa.SP), C: 1},
			{Op: isa.STORE, A: int32(isa.SB), B: int32(isa.SP), C: int32(rs)},
		}, nil

	case "POP":
		if err := want(1); err != nil {
			return nil, err
		}
		rd, err := reg(st.operands, 0)
		if err != nil {
			return nil, err
		}
		return []isa.Instruction{
			{Op: isa.LOAD, A: int32(rd), B: int32(isa.SB), C: int32(isa.SP)},
			{Op: isa.ADDI, A: int32(isa.SP), B: int32(isa.SP), C: 1},
		}, nil

	case "CALL":
		if err := want(1); err != nil {
			return nil, err
		}
		target, err := label(st.operands, 0)
		if err != nil {
			return nil, err
		}
		return []isa.Instruction{{Op: isa.JAL, A: int32(isa.RA), Label: target}}, nil

	case "RET":
		if err := want(0); err != nil {
			return nil, err
		}
		return []isa.Instruction{{Op: isa.JALR, A: int32(isa.Zero), B: int32(isa.RA), C: 0}}, nil

	case "INC":
		if err := want(1); err != nil {
			return nil, err
		}
		rd, err := reg(st.operands, 0)
		if err != nil {
			return nil, err
		}
		return []isa.Instruction{{Op: isa.ADDI, A: int32(rd), B: int32(rd), C: 1}}, nil

	case "DEC":
		if err := want(1); err != nil {
			return nil, err
		}
		rd, err := reg(st.operands, 0)
		if err != nil {
			return nil, err
		}
		return []isa.Instruction{{Op: isa.SUBI, A: int32(rd), B: int32(rd), C: 1}}, nil

	case "NEG":
		if err := want(1); err != nil {
			return nil, err
		}
		rd, err := reg(st.operands, 0)
		if err != nil {
			return nil, err
		}
		return []isa.Instruction{{Op: isa.SUB, A: int32(rd), B: int32(isa.Zero), C: int32(rd)}}, nil

	case "NOT":
		if err := want(1); err != nil {
			return nil, err
		}
		rd, err := reg(st.operands, 0)
		if err != nil {
			return nil, err
		}
		return []isa.Instruction{{Op: isa.XORI, A: int32(rd), B: int32(rd), C: 0xFFFF}}, nil

	case "HALT":
		if err := want(0); err != nil {
			return nil, err
		}
		return []isa.Instruction{{Op: isa.NOP, A: 0, B: 0, C: 0}}, nil

	default:
		return nil, diag.New(diag.Internal, diag.Span{File: file, Line: st.line}, "unknown pseudo-instruction %q", st.mnemonic)
	}
}
