// Package ir implements the typed three-address IR of spec.md §4.1: a
// linear instruction stream grouped into basic blocks per function,
// produced from the typed AST in internal/ast. Pointer arithmetic always
// routes through GEP; provenance (Bank) is tracked on
// every pointer-producing instruction.
//
// Per DESIGN NOTES §9 ("cyclic graphs... arena-allocated instruction nodes
// keyed by integer ids; uses store ids, never owning references"),
// instructions live in a per-function arena and are referenced by ID, not
// by pointer: IDs are preferred here since GEP chains and provenance
// lookups need stable, comparable handles that survive across
// register-allocation rewrites.
package ir

import (
	"fmt"

	"github.com/rvmtoolchain/rvmc/internal/ir/types"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// ID identifies an instruction within a Function's arena. ID zero is never
// valid; it marks "no value" (e.g. a void call's result).
type ID int

// Op tags the kind of an Inst. Instructions are a flat struct with
// per-variant fields rather than an interface hierarchy, per DESIGN NOTES
// §9: "Represent IR instructions as a tagged sum (enum) with per-variant
// payloads; pattern-match at each stage. No inheritance."
type Op int

const (
	OpConst      Op = iota // 16-bit integer constant. Imm holds the value.
	OpLocalAddr            // Address of local slot Local, bank Stack. Produces a pointer.
	OpGlobalAddr           // Address of global symbol Symbol, bank Global. Produces a pointer.
	OpBinary               // Arith Op on A, B. Produces a scalar.
	OpCompare              // Rel Op on A, B. Produces a 0/1 scalar.
	OpGEP                  // Pointer arithmetic: Base (+A*ElemWords). Produces a pointer. See Builder.emitGEP.
	OpPtrDiff              // (Base - A) / ElemWords. Produces a scalar.
	OpLoad                 // Load scalar (or one fat-pointer word, see LoadWord) from Base pointer.
	OpStore                // Store A to Base pointer.
	OpCall                 // Call Symbol with Args; the returned word is this instruction's value (a pointer's bank word via OpCallBankResult).
	OpCast                 // Cast A to Kind (int<->int no-op; ptr<->int sets BankUnknown).
	OpBr                   // Unconditional jump to Target.
	OpCondBr               // Conditional jump: A != 0 -> Target, else Else.
	OpReturn               // Return A (scalar) or A/PtrBank (pointer); HasValue false for void returns.
	OpCallBankResult       // Reads the RV1 bank word produced by the OpCall named in A; emits no call of its own.
	OpParamBankIn          // Reads the incoming bank word for pointer parameter ParamIndex at function entry.
)

// LoadWord selects which 16-bit word of a fat pointer a Load/Store touches.
// Scalars always use WordWhole.
type LoadWord int

const (
	WordWhole LoadWord = iota // A scalar load/store: one word.
	WordAddr                  // The address word of a fat pointer (offset 0).
	WordBank                  // The bank word of a fat pointer (offset 1).
)

// Operand is a reference to either a compile-time constant or the result of
// another instruction, i.e. a classic three-address-code operand.
type Operand struct {
	IsConst bool
	Const   int32
	Value   ID
}

// Const builds an immediate operand.
func Const(v int32) Operand { return Operand{IsConst: true, Const: v} }

// Ref builds an operand referencing instruction id's result.
func Ref(id ID) Operand { return Operand{Value: id} }

// Bank is the IR-level provenance of a pointer value. Unlike
// internal/ir/types.BankInfo (which names a physical register once
// allocation has run), BankRuntime here names the IR instruction that
// computes the bank word, since register allocation hasn't happened yet.
type Bank struct {
	Tag     types.BankTag
	BankVal ID // valid iff Tag == types.BankRuntime: the instruction producing the dynamic bank word.
}

// GlobalBank, StackBank, UnknownBank and MixedBank are the constant Bank
// values for the non-dynamic tags.
var (
	GlobalBank  = Bank{Tag: types.BankGlobal}
	StackBank   = Bank{Tag: types.BankStack}
	UnknownBank = Bank{Tag: types.BankUnknown}
	MixedBank   = Bank{Tag: types.BankMixed}
)

// RuntimeBank builds a Bank tagged BankRuntime, naming the instruction that
// produced the bank word.
func RuntimeBank(id ID) Bank { return Bank{Tag: types.BankRuntime, BankVal: id} }

// JoinBank applies the provenance lattice of spec §4.1 at the IR level.
func JoinBank(a, b Bank) Bank {
	if a.Tag == types.BankUnknown {
		return b
	}
	if b.Tag == types.BankUnknown {
		return a
	}
	if a.Tag == b.Tag {
		if a.Tag == types.BankRuntime && a.BankVal != b.BankVal {
			return MixedBank
		}
		return a
	}
	return MixedBank
}

// Derefable mirrors types.BankInfo.Derefable for the IR-level Bank.
func (b Bank) Derefable() bool {
	return b.Tag != types.BankUnknown && b.Tag != types.BankMixed
}

// Inst is one IR instruction. Fields not used by Op are zero. Kind records
// whether the instruction's result (if any) is a Scalar or Pointer value;
// PtrBank carries the pointer's provenance when Kind == types.Pointer.
type Inst struct {
	ID   ID
	Op   Op
	Kind types.DataKind

	// Operands, meaning depends on Op.
	A, B Operand
	Base Operand // OpGEP/OpPtrDiff/OpLoad/OpStore: the pointer operand.
	BaseBank Bank // Provenance of Base, when Base is a pointer-producing operand.

	Arith   types.ArithmeticOp
	Rel     types.RelationalOp
	Imm     int32
	Local   int    // OpLocalAddr: local slot index.
	ParamIndex int // OpParamBankIn: index into the function's parameter list.
	Symbol  string // OpGlobalAddr/OpCall: symbol name.
	ElemWords int  // OpGEP/OpPtrDiff: element size in words.
	Word    LoadWord
	Target  *Block // OpBr/OpCondBr.
	Else    *Block // OpCondBr only.
	Args    []Operand // OpCall.
	HasValue bool      // OpReturn: false for "return;" in a void function.
	CastTo  types.DataKind // OpCast.

	PtrBank Bank // Provenance of this instruction's own result, if Kind == Pointer.
}

// Block is a basic block: an ordered instruction sequence ending in a
// branch or return (spec §3). All temps defined in a block are dead at
// block exit; values that must survive are spilled to a Local by the
// builder before the block ends (spec §3: "temps never cross blocks").
type Block struct {
	ID    int
	Name  string
	Insts []*Inst
	Term  *Inst // The terminating branch/return instruction, or nil if not yet closed.
}

// Function is one IR function: parameters, locals and an ordered list of
// basic blocks forming a DAG (spec §5: "basic blocks are a DAG").
type Function struct {
	Name       string
	Params     []Param
	ReturnKind types.DataKind
	Returns    bool // false for void functions.
	Blocks     []*Block
	NumLocals  int // Finalized local area size in words, L in spec's frame layout.
	ParamOffsets []int // FP-relative word offset of parameter i's backing slot, parallel to Params.

	arena   []*Inst
	nextID  ID
}

// Param is one formal parameter as the IR sees it: a name and its kind. A
// pointer parameter's bank is not stored here; the builder reads it at entry
// with OpParamBankIn, since the caller always supplies a concrete bank word
// per the ABI (spec §4.4).
type Param struct {
	Name string
	Kind types.DataKind
}

// Module is a compiled translation unit: zero or more global data objects
// plus the functions defined in it.
type Module struct {
	Globals   []Global
	Functions []*Function
}

// Global is a file-scope data object, lowered to the assembler's .data
// section by the caller of this package.
type Global struct {
	Name   string
	Words  int    // Size in 16-bit words.
	Init   []int32 // Initializer words, nil for zero-initialized.
	IsCString bool
	CString   string
}

// ---------------------
// ----- Functions -----
// ---------------------

// newFunction allocates an empty Function ready for block/instruction
// construction.
func newFunction(name string) *Function {
	return &Function{Name: name, nextID: 1}
}

// emit appends inst to b, assigning it a fresh arena ID and recording it in
// f's arena. emit never assigns a branch/return Op to b.Term; callers use
// terminate for that so that b.Insts only ever holds non-terminating
// instructions.
func (f *Function) emit(b *Block, inst Inst) *Inst {
	inst.ID = f.nextID
	f.nextID++
	p := &inst
	f.arena = append(f.arena, p)
	b.Insts = append(b.Insts, p)
	return p
}

// terminate closes b with inst, which must be OpBr, OpCondBr or OpReturn.
func (f *Function) terminate(b *Block, inst Inst) *Inst {
	inst.ID = f.nextID
	f.nextID++
	p := &inst
	f.arena = append(f.arena, p)
	b.Term = p
	return p
}

// Lookup resolves an instruction ID to its Inst within f. It panics if id
// is not a member of f's arena, which would indicate a compiler-internal
// bug (an ID leaked across functions); temps never cross blocks, let alone
// functions, so this should never fire on well-formed IR.
func (f *Function) Lookup(id ID) *Inst {
	for _, inst := range f.arena {
		if inst.ID == id {
			return inst
		}
	}
	panic(fmt.Sprintf("ir: instruction id %d not found in function %q", id, f.Name))
}

// NewBlock appends a fresh, empty basic block to f and returns it.
func (f *Function) NewBlock(name string) *Block {
	b := &Block{ID: len(f.Blocks), Name: name}
	f.Blocks = append(f.Blocks, b)
	return b
}
