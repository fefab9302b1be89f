package codegen

import (
	"github.com/rvmtoolchain/rvmc/internal/callconv"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/ir"
	"github.com/rvmtoolchain/rvmc/internal/ir/types"
	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// genInst dispatches one IR instruction to its lowering. Operand evaluation
// order below is fixed left-to-right rather than a true Sethi-Ullman
// ordering of subexpression evaluation by register need — recorded as an
// intentional simplification (see DESIGN.md): the register manager's LRU
// spilling still keeps every case correct, just not always minimal in
// spill count.
func (g *funcGen) genInst(inst *ir.Inst) {
	switch inst.Op {
	case ir.OpConst:
		dst := g.define(inst.ID)
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(dst), B: int32(isa.Zero), C: inst.Imm})

	case ir.OpLocalAddr:
		dst := g.define(inst.ID)
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(dst), B: int32(isa.FP), C: int32(inst.Local)})

	case ir.OpGlobalAddr:
		dst := g.define(inst.ID)
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(dst), B: int32(isa.GP), C: 0, Label: inst.Symbol})

	case ir.OpBinary:
		g.genBinary(inst)

	case ir.OpCompare:
		g.genCompare(inst)

	case ir.OpGEP:
		g.genGEP(inst)

	case ir.OpPtrDiff:
		g.genPtrDiff(inst)

	case ir.OpLoad:
		g.genLoad(inst)

	case ir.OpStore:
		g.genStore(inst)

	case ir.OpCall:
		g.genCall(inst)

	case ir.OpCallBankResult:
		dst := g.define(inst.ID)
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(dst), B: int32(isa.RV1), C: 0})

	case ir.OpParamBankIn:
		dst := g.define(inst.ID)
		word := g.paramBankArgWord(inst.ParamIndex)
		if word.InReg {
			g.emit(isa.Instruction{Op: isa.ADDI, A: int32(dst), B: int32(word.Reg), C: 0})
		} else {
			frame := callconv.Frame{Locals: g.fn.NumLocals}
			addr := g.materialize(0)
			g.emit(isa.Instruction{Op: isa.ADDI, A: int32(addr), B: int32(isa.FP), C: frame.IncomingStackParamOffset(word.Offset)})
			g.emit(isa.Instruction{Op: isa.LOAD, A: int32(dst), B: int32(isa.SB), C: int32(addr)})
		}

	case ir.OpCast:
		dst := g.define(inst.ID)
		src := g.use(inst.A)
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(dst), B: int32(src), C: 0})

	case ir.OpBr:
		g.emit(isa.Instruction{Op: isa.JAL, A: int32(isa.Zero), Label: g.blockLabel(inst.Target)})

	case ir.OpCondBr:
		cond := g.use(inst.A)
		g.emit(isa.Instruction{Op: isa.BNE, A: int32(cond), B: int32(isa.Zero), Label: g.blockLabel(inst.Target)})
		g.emit(isa.Instruction{Op: isa.JAL, A: int32(isa.Zero), Label: g.blockLabel(inst.Else)})

	case ir.OpReturn:
		g.genReturn(inst)

	default:
		g.fail(diag.Internal, "codegen: unhandled ir op %d", inst.Op)
	}
}

func (g *funcGen) genBinary(inst *ir.Inst) {
	a := g.use(inst.A)
	dst := g.define(inst.ID)
	op := binaryOp(inst.Arith)
	if inst.B.IsConst && isa.FitsImmediate16(int64(inst.B.Const)) {
		if iop, ok := isa.ImmediateOpOf(op); ok {
			g.emit(isa.Instruction{Op: iop, A: int32(dst), B: int32(a), C: inst.B.Const})
			return
		}
	}
	b := g.use(inst.B)
	g.emit(isa.Instruction{Op: op, A: int32(dst), B: int32(a), C: int32(b)})
}

func binaryOp(op types.ArithmeticOp) isa.Op {
	switch op {
	case types.Add:
		return isa.ADD
	case types.Sub:
		return isa.SUB
	case types.Mul:
		return isa.MUL
	case types.Div:
		return isa.DIV
	case types.Mod:
		return isa.MOD
	case types.Shl:
		return isa.SLL
	case types.Shr:
		return isa.SRL
	case types.And:
		return isa.AND
	case types.Xor:
		return isa.XOR
	case types.Or:
		return isa.OR
	default:
		return isa.NOP
	}
}

// genCompare lowers a RelationalOp to a 0/1 scalar using the SLT/SLTU
// primitives the ISA provides, per the idiom of deriving every comparison
// from "less-than" plus XOR-with-1 negation (spec §6 defines no dedicated
// equality or greater-than opcodes).
func (g *funcGen) genCompare(inst *ir.Inst) {
	a := g.use(inst.A)
	b := g.use(inst.B)
	dst := g.define(inst.ID)
	slt := isa.SLT
	if !inst.Rel.Signed() {
		slt = isa.SLTU
	}
	switch inst.Rel {
	case types.Eq, types.Neq:
		xorReg := dst
		g.emit(isa.Instruction{Op: isa.XOR, A: int32(xorReg), B: int32(a), C: int32(b)})
		if inst.Rel == types.Eq {
			one := g.materialize(1)
			g.emit(isa.Instruction{Op: isa.SLTU, A: int32(dst), B: int32(xorReg), C: int32(one)})
		} else {
			g.emit(isa.Instruction{Op: isa.SLTU, A: int32(dst), B: int32(isa.Zero), C: int32(xorReg)})
		}
	case types.LessThanSigned, types.LessThanUnsigned:
		g.emit(isa.Instruction{Op: slt, A: int32(dst), B: int32(a), C: int32(b)})
	case types.GreaterThanSigned, types.GreaterThanUnsigned:
		g.emit(isa.Instruction{Op: slt, A: int32(dst), B: int32(b), C: int32(a)})
	case types.LessEqualSigned, types.LessEqualUnsigned:
		g.emit(isa.Instruction{Op: slt, A: int32(dst), B: int32(b), C: int32(a)})
		g.emit(isa.Instruction{Op: isa.XORI, A: int32(dst), B: int32(dst), C: 1})
	case types.GreaterEqualSigned, types.GreaterEqualUnsigned:
		g.emit(isa.Instruction{Op: slt, A: int32(dst), B: int32(a), C: int32(b)})
		g.emit(isa.Instruction{Op: isa.XORI, A: int32(dst), B: int32(dst), C: 1})
	}
}
