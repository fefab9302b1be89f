// Package codegen lowers internal/ir to internal/isa instruction streams:
// operand/result binding through internal/regalloc, argument packing
// through internal/callconv, and the provenance-aware address arithmetic
// spec §4.3 describes for GEP, generalized from a register-rich RISC-V-style
// target with a system assembler to this architecture's 12-register pool
// and custom two-pass assembler.
package codegen

import (
	"fmt"

	"github.com/rvmtoolchain/rvmc/internal/callconv"
	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/ir"
	"github.com/rvmtoolchain/rvmc/internal/ir/types"
	"github.com/rvmtoolchain/rvmc/internal/isa"
	"github.com/rvmtoolchain/rvmc/internal/regalloc"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Line is one output line: an instruction, optionally preceded by one or
// more labels that the assembler should bind to its address.
type Line struct {
	Labels []string
	Inst   isa.Instruction
}

// Function is one function's generated code, plus the frame layout its
// prologue/epilogue were built from.
type Function struct {
	Name  string
	Frame callconv.Frame
	Lines []Line
}

// Program is a whole module's generated code, ready for cmd/compile to
// render as assembly text.
type Program struct {
	Globals   []ir.Global
	Functions []Function
}

// funcGen holds the per-function state of one lowering pass. One funcGen
// is created per ir.Function (DESIGN NOTES §9: no module-level singletons).
type funcGen struct {
	mod     *ir.Module
	fn      *ir.Function
	cfg     config.Options
	mgr     *regalloc.Manager
	lines   []Line
	pending []string // Labels waiting to be attached to the next emitted instruction.
	tmp      int
	labelSeq int
	errs     *diag.Listener
}

// ---------------------
// ----- Functions -----
// ---------------------

// Generate lowers every function in mod to isa instructions.
func Generate(mod *ir.Module, cfg config.Options) (*Program, *diag.Listener) {
	listener := diag.NewListener()
	prog := &Program{Globals: mod.Globals}
	for _, fn := range mod.Functions {
		g := &funcGen{mod: mod, fn: fn, cfg: cfg, mgr: regalloc.New(fn.NumLocals), errs: listener}
		prog.Functions = append(prog.Functions, g.run())
	}
	return prog, listener
}

func lookupFunction(mod *ir.Module, name string) *ir.Function {
	for _, fn := range mod.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// run lowers fn's body, then prepends the prologue and appends the shared
// epilogue once the final spill count is known (S is only known after the
// whole body has been allocated, since spilling is demand-driven rather
// than precomputed, so the frame is finalized in two passes within the
// function).
func (g *funcGen) run() Function {
	// Body codegen runs before the prologue is synthesized (the frame size
	// depends on the final spill count, known only once the body is done),
	// so the real Init() instruction is emitted after register requests the
	// body already made. MarkInitialized satisfies requireInit() for those
	// requests on the understanding that genPrologue's Init() is spliced in
	// ahead of the body in the final instruction order below.
	g.mgr.MarkInitialized()
	for _, b := range g.fn.Blocks {
		g.pending = append(g.pending, g.blockLabel(b))
		for _, inst := range b.Insts {
			g.genInst(inst)
		}
		if b.Term != nil {
			g.genInst(b.Term)
		}
	}
	frame := callconv.Frame{Locals: g.fn.NumLocals, Spills: g.mgr.SpillSlotCount()}
	body := g.lines
	g.lines = nil
	g.genPrologue(frame)
	prologue := g.lines
	g.lines = nil
	g.pending = append(g.pending, g.epilogueLabel())
	g.genEpilogue(frame)
	epilogue := g.lines

	out := append(prologue, body...)
	out = append(out, epilogue...)
	return Function{Name: g.fn.Name, Frame: frame, Lines: out}
}

func (g *funcGen) blockLabel(b *ir.Block) string {
	return fmt.Sprintf("%s.%s", g.fn.Name, b.Name)
}

func (g *funcGen) epilogueLabel() string {
	return g.fn.Name + ".epilogue"
}

// newTemp mints a unique regalloc.Name for a throwaway scratch value (a
// materialized constant, an intermediate GEP offset) that never aliases an
// IR instruction id.
func (g *funcGen) newTemp() regalloc.Name {
	g.tmp++
	return regalloc.Name(fmt.Sprintf("$t%d", g.tmp))
}

// newLocalLabel mints a label for a multi-instruction lowering (bank
// overflow carry, boolean materialization) that branches within a single
// IR block.
func (g *funcGen) newLocalLabel() string {
	g.labelSeq++
	return fmt.Sprintf("%s.L%d", g.fn.Name, g.labelSeq)
}

func idName(id ir.ID) regalloc.Name { return regalloc.IDName(int(id)) }

// bankCompanionName names the register holding a GEP's dynamically computed
// result bank. A GEP's arena id already names its address-word register
// (unlike OpLoad's fat-pointer read or OpCall, which get a distinct
// companion instruction id for their bank word), so the bank word needs a
// derived name instead of a second id.
func bankCompanionName(id ir.ID) regalloc.Name {
	return regalloc.Name(fmt.Sprintf("%%%d#bank", id))
}

// emit appends inst, attaching any labels accumulated since the last
// emission (block entry, or a branch target minted mid-lowering), then
// splices in whatever spill/reload instructions the register manager
// generated servicing this emission's register requests.
func (g *funcGen) emit(inst isa.Instruction) {
	g.flushManager()
	g.lines = append(g.lines, Line{Labels: g.pending, Inst: inst})
	g.pending = nil
}

// flushManager drains instructions the register manager queued (spills,
// reloads, the stack-bank init) ahead of whatever g.emit is about to add,
// preserving program order.
func (g *funcGen) flushManager() {
	for _, inst := range g.mgr.TakeInstructions() {
		g.lines = append(g.lines, Line{Labels: g.pending, Inst: inst})
		g.pending = nil
	}
}

func (g *funcGen) label(name string) {
	g.pending = append(g.pending, name)
}

func (g *funcGen) fail(kind diag.Kind, format string, args ...interface{}) {
	g.errs.Append(diag.New(kind, diag.Span{}, format, args...))
}

// materialize loads a compile-time constant into a fresh register.
func (g *funcGen) materialize(v int32) isa.Reg {
	name := g.newTemp()
	reg, err := g.mgr.GetRegister(name)
	if err != nil {
		g.fail(diag.Internal, "%s", err)
		return isa.Zero
	}
	g.emit(isa.Instruction{Op: isa.ADDI, A: int32(reg), B: int32(isa.Zero), C: v})
	return reg
}

// use resolves an ir.Operand to a register, reloading from its spill slot
// if necessary, or materializing it if it is a constant.
func (g *funcGen) use(op ir.Operand) isa.Reg {
	if op.IsConst {
		return g.materialize(op.Const)
	}
	reg, err := g.mgr.Use(idName(op.Value))
	if err != nil {
		g.fail(diag.Internal, "%s", err)
		return isa.Zero
	}
	return reg
}

// define obtains a fresh register to hold id's result.
func (g *funcGen) define(id ir.ID) isa.Reg {
	reg, err := g.mgr.GetRegister(idName(id))
	if err != nil {
		g.fail(diag.Internal, "%s", err)
		return isa.Zero
	}
	return reg
}

// bankRegFor resolves a Bank to the register holding its bank index: the
// fixed GP/SB registers for the two reserved banks, or the live register
// tracked for a dynamically computed bank. Unknown/Mixed never reach here;
// the IR builder already rejected dereferences of non-derefable banks
// (spec §4.1/§7), and GEP over a non-derefable base is a pure address
// computation that doesn't need a bank register at all.
func (g *funcGen) bankRegFor(b ir.Bank) isa.Reg {
	switch b.Tag {
	case types.BankGlobal:
		return isa.GP
	case types.BankStack:
		return isa.SB
	case types.BankRuntime:
		name := idName(b.BankVal)
		if producer := g.fn.Lookup(b.BankVal); producer.Op == ir.OpGEP {
			name = bankCompanionName(b.BankVal)
		}
		reg, err := g.mgr.Use(name)
		if err != nil {
			g.fail(diag.Internal, "%s", err)
			return isa.Zero
		}
		return reg
	default:
		return isa.Zero
	}
}
