package codegen

import (
	"github.com/rvmtoolchain/rvmc/internal/callconv"
	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/ir"
	"github.com/rvmtoolchain/rvmc/internal/ir/types"
	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// paramLayout returns the register/stack packing of fn's own parameter
// list, by which both genPrologue (reading incoming arguments) and the
// caller's genCall (packing outgoing arguments) agree — callconv.Pack is
// pure and deterministic in parameter kind order, so there is exactly one
// answer for a given signature.
func (g *funcGen) paramLayout() callconv.Layout {
	kinds := make([]types.DataKind, len(g.fn.Params))
	for i, p := range g.fn.Params {
		kinds[i] = p.Kind
	}
	return callconv.Pack(kinds)
}

func (g *funcGen) paramBankArgWord(paramIndex int) callconv.ArgWord {
	layout := g.paramLayout()
	words := layout.Params[paramIndex].Words
	return words[len(words)-1] // Pointer params: [address, bank]; bank is always last.
}

// genPrologue emits the stack-bank init, the saved-register area, and the
// parameter-to-local-slot copy that the body's parameter reads depend on
// (the builder lowers every parameter read as a load from its local slot;
// spec §4.4: "the callee's prologue immediately moves
// register-resident parameters from A-registers to callee-owned
// temporaries"). It runs as a second pass after the body, once frame.Spills
// is known; see funcGen.run. SB is initialized immediately after the stack
// pointer adjustment and before the saved-register area is written, so no
// frame memory access in this function ever runs with SB unset (spec §4.3.5:
// "initialize stack-bank register; push return address... to stack").
func (g *funcGen) genPrologue(frame callconv.Frame) {
	total := int32(frame.FrameSize() + callconv.SavedAreaWords)
	g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.SP), B: int32(isa.SP), C: -total})

	g.mgr.Init()
	g.flushManager()

	saveSlot := func(reg isa.Reg) {
		addr := g.materialize(0)
		offset := frame.SavedRegOffset(reg)
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(addr), B: int32(isa.SP), C: int32(callconv.SavedAreaWords) + offset})
		g.emit(isa.Instruction{Op: isa.STORE, A: int32(isa.SB), B: int32(addr), C: int32(reg)})
	}
	saveSlot(isa.RA)
	saveSlot(isa.FP)
	saveSlot(isa.S0)
	saveSlot(isa.S1)
	saveSlot(isa.S2)
	saveSlot(isa.S3)

	g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.FP), B: int32(isa.SP), C: int32(callconv.SavedAreaWords)})

	g.copyParamsToLocals()
}

// copyParamsToLocals writes every incoming parameter's word(s) to its local
// slot (spec §3's word-offset scheme: parameter i's slot is
// fn.ParamOffsets[i]), covering both the register and stack-spilled cases
// callconv.Pack may have chosen.
func (g *funcGen) copyParamsToLocals() {
	layout := g.paramLayout()
	for i, pl := range layout.Params {
		offset := g.fn.ParamOffsets[i]
		for wi, w := range pl.Words {
			var src isa.Reg
			if w.InReg {
				src = w.Reg
			} else {
				addr := g.materialize(0)
				frame := callconv.Frame{}
				g.emit(isa.Instruction{Op: isa.ADDI, A: int32(addr), B: int32(isa.FP), C: frame.IncomingStackParamOffset(w.Offset)})
				reg := g.materialize(0)
				g.emit(isa.Instruction{Op: isa.LOAD, A: int32(reg), B: int32(isa.SB), C: int32(addr)})
				src = reg
			}
			addr := g.materialize(0)
			g.emit(isa.Instruction{Op: isa.ADDI, A: int32(addr), B: int32(isa.FP), C: int32(offset + wi)})
			g.emit(isa.Instruction{Op: isa.STORE, A: int32(isa.SB), B: int32(addr), C: int32(src)})
		}
	}
}

// genEpilogue reloads the saved registers, restores SP, and returns. It
// runs at the label every OpReturn jumps to, so the restore sequence is
// emitted exactly once per function regardless of how many return
// statements the source had.
func (g *funcGen) genEpilogue(frame callconv.Frame) {
	loadSlot := func(dst, bankHolder isa.Reg, offset int32) {
		addr := g.materialize(0)
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(addr), B: int32(isa.FP), C: offset})
		g.emit(isa.Instruction{Op: isa.LOAD, A: int32(dst), B: int32(bankHolder), C: int32(addr)})
	}
	loadSlot(isa.S0, isa.SB, frame.SavedRegOffset(isa.S0))
	loadSlot(isa.S1, isa.SB, frame.SavedRegOffset(isa.S1))
	loadSlot(isa.S2, isa.SB, frame.SavedRegOffset(isa.S2))
	loadSlot(isa.S3, isa.SB, frame.SavedRegOffset(isa.S3))
	loadSlot(isa.RA, isa.SB, frame.SavedRegOffset(isa.RA))

	// The saved caller FP must be restored last: SP's restore offset below
	// is computed from the current (callee) FP, and the S0-S3/RA reloads
	// above address via the same current FP.
	oldFP := g.materialize(0)
	addr := g.materialize(0)
	g.emit(isa.Instruction{Op: isa.ADDI, A: int32(addr), B: int32(isa.FP), C: frame.SavedRegOffset(isa.FP)})
	g.emit(isa.Instruction{Op: isa.LOAD, A: int32(oldFP), B: int32(isa.SB), C: int32(addr)})

	g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.SP), B: int32(isa.FP), C: int32(frame.FrameSize())})
	g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.FP), B: int32(oldFP), C: 0})
	g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.PCB), B: int32(isa.RAB), C: 0})
	g.emit(isa.Instruction{Op: isa.JALR, A: int32(isa.Zero), B: int32(isa.RA), C: 0})
}

func (g *funcGen) genReturn(inst *ir.Inst) {
	if inst.HasValue {
		if inst.Kind == types.Pointer {
			addr := g.use(inst.A)
			bankReg := g.bankRegFor(inst.PtrBank)
			g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.RV0), B: int32(addr), C: 0})
			g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.RV1), B: int32(bankReg), C: 0})
		} else {
			v := g.use(inst.A)
			g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.RV0), B: int32(v), C: 0})
		}
	}
	g.emit(isa.Instruction{Op: isa.JAL, A: int32(isa.Zero), Label: g.epilogueLabel()})
}

func (g *funcGen) genPtrDiff(inst *ir.Inst) {
	base := g.use(inst.Base)
	a := g.use(inst.A)
	dst := g.define(inst.ID)
	g.emit(isa.Instruction{Op: isa.SUB, A: int32(dst), B: int32(base), C: int32(a)})
	if inst.ElemWords != 1 {
		if isa.FitsImmediate16(int64(inst.ElemWords)) {
			g.emit(isa.Instruction{Op: isa.DIVI, A: int32(dst), B: int32(dst), C: int32(inst.ElemWords)})
		} else {
			div := g.materialize(int32(inst.ElemWords))
			g.emit(isa.Instruction{Op: isa.DIV, A: int32(dst), B: int32(dst), C: int32(div)})
		}
	}
}

func (g *funcGen) genLoad(inst *ir.Inst) {
	base := g.use(inst.Base)
	bankReg := g.bankRegFor(inst.BaseBank)
	dst := g.define(inst.ID)
	switch inst.Word {
	case ir.WordWhole, ir.WordAddr:
		g.emit(isa.Instruction{Op: isa.LOAD, A: int32(dst), B: int32(bankReg), C: int32(base)})
	case ir.WordBank:
		addr := g.materialize(0)
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(addr), B: int32(base), C: 1})
		g.emit(isa.Instruction{Op: isa.LOAD, A: int32(dst), B: int32(bankReg), C: int32(addr)})
	}
}

func (g *funcGen) genStore(inst *ir.Inst) {
	base := g.use(inst.Base)
	bankReg := g.bankRegFor(inst.BaseBank)
	src := g.use(inst.A)
	switch inst.Word {
	case ir.WordWhole, ir.WordAddr:
		g.emit(isa.Instruction{Op: isa.STORE, A: int32(bankReg), B: int32(base), C: int32(src)})
	case ir.WordBank:
		addr := g.materialize(0)
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(addr), B: int32(base), C: 1})
		g.emit(isa.Instruction{Op: isa.STORE, A: int32(bankReg), B: int32(addr), C: int32(src)})
	}
}

// genGEP lowers pointer arithmetic, including the bank-overflow carry, per
// spec §4.3.3. A global's address is only assigned at link time and a
// stack slot's address depends on the call depth at runtime, so neither
// base's bank can be assumed safe from overflow at compile time; only a
// GEP that provably adds nothing (a constant zero index, matching
// emitGEP's IR-level decision to keep the base's bank unchanged in exactly
// that case) skips the carry sequence.
func (g *funcGen) genGEP(inst *ir.Inst) {
	base := g.use(inst.Base)
	zeroOffset := inst.A.IsConst && inst.A.Const == 0

	var offset isa.Reg
	if zeroOffset {
		offset = isa.Zero
	} else {
		idx := g.use(inst.A)
		offset = idx
		if inst.ElemWords != 1 {
			scaled := g.materialize(0)
			if inst.A.IsConst && isa.FitsImmediate16(int64(inst.A.Const)*int64(inst.ElemWords)) {
				g.emit(isa.Instruction{Op: isa.ADDI, A: int32(scaled), B: int32(isa.Zero), C: inst.A.Const * int32(inst.ElemWords)})
			} else if isa.FitsImmediate16(int64(inst.ElemWords)) {
				g.emit(isa.Instruction{Op: isa.MULI, A: int32(scaled), B: int32(idx), C: int32(inst.ElemWords)})
			} else {
				elemReg := g.materialize(int32(inst.ElemWords))
				g.emit(isa.Instruction{Op: isa.MUL, A: int32(scaled), B: int32(idx), C: int32(elemReg)})
			}
			offset = scaled
		}
	}

	dst := g.define(inst.ID)
	g.emit(isa.Instruction{Op: isa.ADD, A: int32(dst), B: int32(base), C: int32(offset)})

	if zeroOffset {
		// Base unchanged: inst.PtrBank equals inst.BaseBank exactly (see
		// emitGEP), so no bank register is needed at all.
		return
	}

	// The GEP's own arena id already names the address-word register
	// (dst, bound above); its dynamic bank word can't reuse that id, so it
	// lives under a derived companion name instead (see bankCompanionName).
	bankOut, err := g.mgr.GetRegister(bankCompanionName(inst.ID))
	if err != nil {
		g.fail(diag.Internal, "%s", err)
		return
	}
	bankReg := g.bankRegFor(inst.BaseBank)
	g.emit(isa.Instruction{Op: isa.ADDI, A: int32(bankOut), B: int32(bankReg), C: 0})

	// The offset may have carried the address across more than one bank
	// boundary in a single step (e.g. a large compile-time-constant
	// index), so the carry is computed by division rather than a single
	// conditional subtract: delta is how many whole banks the address
	// crossed, and the remainder is the wrapped in-bank address.
	bankSize := int32(config.BankSizeCells)
	delta := g.materialize(0)
	if isa.FitsImmediate16(int64(bankSize)) {
		g.emit(isa.Instruction{Op: isa.DIVI, A: int32(delta), B: int32(dst), C: bankSize})
		g.emit(isa.Instruction{Op: isa.MODI, A: int32(dst), B: int32(dst), C: bankSize})
	} else {
		sizeReg := g.materialize(bankSize)
		g.emit(isa.Instruction{Op: isa.DIV, A: int32(delta), B: int32(dst), C: int32(sizeReg)})
		g.emit(isa.Instruction{Op: isa.MOD, A: int32(dst), B: int32(dst), C: int32(sizeReg)})
	}
	g.emit(isa.Instruction{Op: isa.ADD, A: int32(bankOut), B: int32(bankOut), C: int32(delta)})
}

func (g *funcGen) genCall(inst *ir.Inst) {
	callee := lookupFunction(g.mod, inst.Symbol)
	var kinds []types.DataKind
	if callee != nil {
		for _, p := range callee.Params {
			kinds = append(kinds, p.Kind)
		}
	} else {
		kinds = make([]types.DataKind, len(inst.Args))
	}
	layout := callconv.Pack(kinds)

	srcRegs := make([]isa.Reg, len(inst.Args))
	for i, a := range inst.Args {
		srcRegs[i] = g.use(a)
	}

	if err := g.mgr.SpillAll(); err != nil {
		g.fail(diag.Internal, "%s", err)
	}
	g.flushManager()

	if layout.StackWords > 0 {
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.SP), B: int32(isa.SP), C: -int32(layout.StackWords)})
	}
	argIdx := 0
	for _, pl := range layout.Params {
		for _, w := range pl.Words {
			src := srcRegs[argIdx]
			argIdx++
			if w.InReg {
				g.emit(isa.Instruction{Op: isa.ADDI, A: int32(w.Reg), B: int32(src), C: 0})
			} else {
				addr := g.materialize(0)
				g.emit(isa.Instruction{Op: isa.ADDI, A: int32(addr), B: int32(isa.SP), C: int32(w.Offset)})
				g.emit(isa.Instruction{Op: isa.STORE, A: int32(isa.SB), B: int32(addr), C: int32(src)})
			}
		}
	}

	g.emit(isa.Instruction{Op: isa.JAL, A: int32(isa.RA), Label: inst.Symbol})

	if layout.StackWords > 0 {
		g.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.SP), B: int32(isa.SP), C: int32(layout.StackWords)})
	}

	// The call's own id always carries the address/scalar result word (spec
	// §4.4: "scalar in RV0... fat pointer: address in RV0"), whether or not
	// anything downstream reads it; a companion OpCallBankResult reads RV1
	// separately when the callee returns a pointer.
	dst := g.define(inst.ID)
	g.emit(isa.Instruction{Op: isa.ADDI, A: int32(dst), B: int32(isa.RV0), C: 0})
}
