// Package callconv implements the calling convention of spec §4.4: a
// 4-word register argument window (A0-A3), scalar=1 slot / fat-pointer=2
// contiguous slots, full-spill-on-straddle, and the frame layout of spec
// §3 that the prologue/epilogue in internal/codegen builds on.
package callconv

import (
	"github.com/rvmtoolchain/rvmc/internal/ir/types"
	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// ArgWord is one machine word of a packed argument list: either a register
// or a stack slot, at the caller-callee-shared word index it was packed
// into (spec's "round-trip property": "caller and callee compute the same
// (register slot, stack offset) mapping").
type ArgWord struct {
	InReg  bool
	Reg    isa.Reg
	Offset int // Stack word offset, ascending from the base of the spilled-argument area; valid iff !InReg.
}

// ParamLayout is the packed layout of one formal/actual parameter: one
// ArgWord for a scalar, two contiguous ArgWords (address, then bank) for a
// fat pointer.
type ParamLayout struct {
	Kind  types.DataKind
	Words []ArgWord
}

// Layout is the full packed argument layout of a call or function
// signature.
type Layout struct {
	Params     []ParamLayout
	StackWords int // Total words spilled to the stack argument area.
}

// ---------------------
// ----- Constants -----
// ---------------------

// ArgRegs is the 4-word register window, A0-A3, spec §4.4.
var ArgRegs = [4]isa.Reg{isa.A0, isa.A1, isa.A2, isa.A3}

// ---------------------
// ----- Functions -----
// ---------------------

// Pack computes the shared caller/callee argument layout for a parameter
// list described by kinds, in declaration order. Spec §4.4: "If a fat
// pointer would straddle the boundary (1 slot left, 2 needed), it spills
// in full to the stack — it never occupies one register and one stack
// slot. Subsequent parameters resume packing the remaining register slot
// if any, then spill."
func Pack(kinds []types.DataKind) Layout {
	var layout Layout
	regIdx := 0
	stackWord := 0
	for _, k := range kinds {
		need := 1
		if k == types.Pointer {
			need = 2
		}
		var pl ParamLayout
		pl.Kind = k
		if regIdx+need <= len(ArgRegs) {
			for i := 0; i < need; i++ {
				pl.Words = append(pl.Words, ArgWord{InReg: true, Reg: ArgRegs[regIdx]})
				regIdx++
			}
		} else {
			for i := 0; i < need; i++ {
				pl.Words = append(pl.Words, ArgWord{InReg: false, Offset: stackWord})
				stackWord++
			}
			// regIdx is deliberately left unchanged: a straddling fat
			// pointer spills in full rather than claiming the partial
			// register slot, which stays available to the next parameter.
		}
		layout.Params = append(layout.Params, pl)
	}
	layout.StackWords = stackWord
	return layout
}

// ReturnScalarReg and the ReturnPointer{Addr,Bank}Reg constants name the
// fixed return-value registers (spec §4.4: "Scalar in RV0... Fat pointer:
// address in RV0, bank in RV1").
const (
	ReturnScalarReg     = isa.RV0
	ReturnPointerAddrReg = isa.RV0
	ReturnPointerBankReg = isa.RV1
)

// Frame is the finalized per-function frame layout of spec §3:
//
//	[saved RA][saved FP][saved S0..S3][locals 0..L-1][spill slots 0..S-1]
//
// growing upward from the callee-saved area. FP addresses the boundary
// between the saved area and locals: locals and spills sit at non-negative
// offsets from FP, the saved area at negative offsets.
type Frame struct {
	Locals    int // L
	Spills    int // S
	StackArgs int // Words of stack-spilled incoming parameters, living below the prior frame's FP.
}

// SavedAreaWords is the fixed size, in words, of [RA][FP][S0][S1][S2][S3].
const SavedAreaWords = 6

// FrameSize returns the total number of words the prologue must reserve
// above the saved area: locals plus spill slots.
func (f Frame) FrameSize() int {
	return f.Locals + f.Spills
}

// LocalOffset returns local slot i's offset from FP.
func (f Frame) LocalOffset(i int) int32 {
	return int32(i)
}

// SpillOffset returns spill slot i's offset from FP (spec §4.2: "slot k
// resides at FP + L + k").
func (f Frame) SpillOffset(i int) int32 {
	return int32(f.Locals + i)
}

// SavedRegOffset returns the offset from FP of the saved RA, old FP, or
// one of S0-S3, all of which live below the locals/spill area.
func (f Frame) SavedRegOffset(reg isa.Reg) int32 {
	switch reg {
	case isa.RA:
		return -1
	case isa.FP:
		return -2
	case isa.S0:
		return -3
	case isa.S1:
		return -4
	case isa.S2:
		return -5
	case isa.S3:
		return -6
	default:
		return 0
	}
}

// IncomingStackParamOffset returns the FP-relative offset of a parameter
// that spilled at the call site, per spec §3: "Parameters that spilled at
// the call site live below the prior frame pointer at negative offsets
// from the callee's FP", immediately below the saved area.
func (f Frame) IncomingStackParamOffset(stackWordIndex int) int32 {
	return -int32(SavedAreaWords) - int32(stackWordIndex) - 1
}
