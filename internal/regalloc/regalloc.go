// Package regalloc implements the register manager of spec §4.2: a
// 12-register allocatable pool (T0-T7 caller-saved, S0-S3 callee-saved),
// LRU spilling to the current function's frame, and a provenance map
// tracking each live pointer value's BankInfo across spills and reloads.
//
// This favors the simpler LRU discipline spec.md mandates over graph
// coloring, keeping the usual split between an abstract register file (the
// pool of usable physical registers) and the allocator that drives it —
// here, Manager plays both roles, since the target has exactly one
// allocatable pool shape rather than a family of per-architecture register
// files.
package regalloc

import (
	"fmt"

	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/ir/types"
	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Name identifies a live value the manager tracks a register for. Callers
// key it however is convenient for their stage (codegen uses IDName's "%N"
// form of an ir.ID, "$tN" for scratch values and "%N#bank" for a GEP's bank
// word); the manager treats it opaquely.
type Name string

// slotState tracks one name's current residency.
type slotState struct {
	reg      isa.Reg
	inReg    bool
	slot     int // Frame-relative spill slot index, valid once assigned != -1.
	hasSlot  bool
	pinned   bool
}

// Manager is the register manager of spec §4.2. One Manager is created per
// function being lowered (DESIGN NOTES §9: no module-level singletons).
type Manager struct {
	pool       []isa.Reg // The 12 allocatable registers, in fixed pool order.
	free       []bool    // free[i] true iff pool[i] is currently unassigned.
	lru        []Name    // Insertion-order queue; tail is most-recently-used.
	names      map[Name]*slotState
	regOwner   map[isa.Reg]Name
	bankInfo   map[Name]types.BankInfo
	nextSlot   int // Next fresh spill slot index to hand out; S grows monotonically (spec §5).
	localCount int // L: declared local count, fixed before allocation begins.
	stackBankInit bool
	insts      []isa.Instruction
}

// ---------------------
// ----- Constants -----
// ---------------------

// Pool is the fixed allocation order of the 12 registers spec §4.2 names:
// T0-T7 caller-saved, S0-S3 callee-saved.
var Pool = []isa.Reg{isa.T0, isa.T1, isa.T2, isa.T3, isa.T4, isa.T5, isa.T6, isa.T7, isa.S0, isa.S1, isa.S2, isa.S3}

// CalleeSaved reports whether reg is one of S0-S3, which the calling
// convention's prologue/epilogue must preserve across calls.
func CalleeSaved(reg isa.Reg) bool {
	return reg == isa.S0 || reg == isa.S1 || reg == isa.S2 || reg == isa.S3
}

// CallerSaved reports whether reg is one of T0-T7 or the argument
// registers A0-A3, all of which the caller must spill before a call (spec §4.4).
func CallerSaved(reg isa.Reg) bool {
	switch reg {
	case isa.T0, isa.T1, isa.T2, isa.T3, isa.T4, isa.T5, isa.T6, isa.T7,
		isa.A0, isa.A1, isa.A2, isa.A3:
		return true
	default:
		return false
	}
}

// StackBankInitValue is the fixed value spec §4.3.5 expects the prologue to
// set SB to; this architecture uses bank 1 for every frame, so every
// function's stack bank is statically this constant.
const StackBankInitValue = int32(types.StackBankIndex)

// ---------------------
// ----- Functions -----
// ---------------------

// New returns a Manager with an empty pool of live values, for a function
// whose declared local count is localCount (L in spec §3's frame layout —
// fixed before allocation begins, unlike S, which grows as spills happen).
// Init must be called before any frame access is emitted, per spec §4.2.
func New(localCount int) *Manager {
	m := &Manager{
		free:       make([]bool, len(Pool)),
		names:      make(map[Name]*slotState),
		regOwner:   make(map[isa.Reg]Name),
		bankInfo:   make(map[Name]types.BankInfo),
		localCount: localCount,
	}
	for i := range m.free {
		m.free[i] = true
	}
	return m
}

// Init emits the stack-bank initialization instruction and marks it
// fulfilled. Spec §4.2: "every function's prologue invokes this before any
// frame access... violating this is a catastrophic bug... the manager
// enforces it structurally, not by convention."
func (m *Manager) Init() {
	m.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.SB), B: int32(isa.Zero), C: StackBankInitValue})
	m.stackBankInit = true
}

// MarkInitialized records that SB will be initialized by the time this
// function's body runs, without itself emitting an instruction. Codegen
// generates a function's body before its prologue (the final spill count,
// and so the frame size, isn't known until the body is done), so the real
// stack-bank-init instruction is necessarily emitted after body codegen has
// already made register requests; MarkInitialized lets those requests
// through on the understanding that the caller guarantees Init's
// instruction precedes the body in the final, reordered output. Init
// remains the right call for any conventional single-pass caller.
func (m *Manager) MarkInitialized() {
	m.stackBankInit = true
}

// requireInit panics — an Internal diagnostic, per spec §7's "internal
// invariant" class — if a frame access is attempted before Init ran.
func (m *Manager) requireInit() {
	if !m.stackBankInit {
		panic(diag.New(diag.Internal, diag.Span{}, "frame access before stack-bank register was initialized"))
	}
}

// emit appends a manager-generated instruction (spill store, reload load,
// stack-bank init) to the buffer TakeInstructions later drains.
func (m *Manager) emit(i isa.Instruction) {
	m.insts = append(m.insts, i)
}

// TakeInstructions drains and returns every instruction the manager has
// accumulated, for the caller to splice into its own output stream (spec
// §4.2).
func (m *Manager) TakeInstructions() []isa.Instruction {
	out := m.insts
	m.insts = nil
	return out
}

// GetRegister returns a register holding name's value: its current
// register if live, a free register if one exists, or the LRU victim's
// register after spilling it. Spec §4.2.
func (m *Manager) GetRegister(name Name) (isa.Reg, error) {
	if st, ok := m.names[name]; ok && st.inReg {
		m.touch(name)
		return st.reg, nil
	}
	if idx, ok := m.firstFree(); ok {
		reg := Pool[idx]
		m.bind(name, reg, idx)
		return reg, nil
	}
	victim, victimIdx, err := m.victim()
	if err != nil {
		return 0, err
	}
	if err := m.spillName(victim); err != nil {
		return 0, err
	}
	reg := Pool[victimIdx]
	m.bind(name, reg, victimIdx)
	return reg, nil
}

// firstFree returns the pool index of an unallocated register, if any.
func (m *Manager) firstFree() (int, bool) {
	for i, isFree := range m.free {
		if isFree {
			return i, true
		}
	}
	return 0, false
}

// victim selects the LRU, unpinned live name to evict. Spec §4.2: "select
// the LRU live register, spill it" with pinning flags protecting a
// register mid-emission.
func (m *Manager) victim() (Name, int, error) {
	for _, n := range m.lru {
		st := m.names[n]
		if st == nil || !st.inReg || st.pinned {
			continue
		}
		idx := poolIndex(st.reg)
		return n, idx, nil
	}
	return "", 0, diag.New(diag.Internal, diag.Span{}, "no unpinned register available to spill")
}

func poolIndex(reg isa.Reg) int {
	for i, r := range Pool {
		if r == reg {
			return i
		}
	}
	return -1
}

// bind assigns reg (pool index idx) to name and promotes it to the LRU
// queue's tail.
func (m *Manager) bind(name Name, reg isa.Reg, idx int) {
	m.free[idx] = false
	st, ok := m.names[name]
	if !ok {
		st = &slotState{slot: -1}
		m.names[name] = st
	}
	st.reg = reg
	st.inReg = true
	m.regOwner[reg] = name
	m.touch(name)
}

// touch promotes name to the tail of the LRU queue (most-recently-used).
func (m *Manager) touch(name Name) {
	for i, n := range m.lru {
		if n == name {
			m.lru = append(m.lru[:i], m.lru[i+1:]...)
			break
		}
	}
	m.lru = append(m.lru, name)
}

// spillName writes name's current register to its spill slot (allocating a
// fresh one on first spill) and frees the register, without removing name
// from the LRU queue's bookkeeping (ReloadValue re-touches it later).
func (m *Manager) spillName(name Name) error {
	m.requireInit()
	st := m.names[name]
	if st == nil || !st.inReg {
		return diag.New(diag.Internal, diag.Span{}, "spill of name %q with no live register", name)
	}
	slot := m.slotFor(name, st)
	m.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.SC), B: int32(isa.FP), C: m.frameOffset(slot)})
	m.emit(isa.Instruction{Op: isa.STORE, A: int32(isa.SB), B: int32(isa.SC), C: int32(st.reg)})
	idx := poolIndex(st.reg)
	m.free[idx] = true
	delete(m.regOwner, st.reg)
	st.inReg = false
	return nil
}

// frameOffset renders spill slot k's frame-relative offset, FP+L+k, per
// spec §3: "Slot numbers are frame-relative: slot k resides at FP + L + k."
func (m *Manager) frameOffset(slot int) int32 {
	return int32(m.localCount + slot)
}

// slotFor returns name's spill slot, allocating a fresh one on first use.
// Spec §4.2: "First spill of a name allocates a fresh slot... subsequent
// spills reuse it."
func (m *Manager) slotFor(name Name, st *slotState) int {
	if !st.hasSlot {
		st.slot = m.nextSlot
		st.hasSlot = true
		m.nextSlot++
	}
	return st.slot
}

// FreeRegister marks reg available; the value may still be recoverable via
// its spill slot (spec §4.2).
func (m *Manager) FreeRegister(reg isa.Reg) {
	name, ok := m.regOwner[reg]
	if !ok {
		return
	}
	if st := m.names[name]; st != nil {
		st.inReg = false
	}
	delete(m.regOwner, reg)
	m.free[poolIndex(reg)] = true
}

// SpillAll writes every live register to its spill slot and empties the
// pool; used before calls (spec §4.2/§4.4).
func (m *Manager) SpillAll() error {
	for _, reg := range Pool {
		if name, ok := m.regOwner[reg]; ok {
			if err := m.spillName(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadValue loads name's value from its spill slot into a fresh register.
func (m *Manager) ReloadValue(name Name) (isa.Reg, error) {
	m.requireInit()
	st, ok := m.names[name]
	if !ok || !st.hasSlot {
		return 0, diag.New(diag.Internal, diag.Span{}, "reload of name %q with no spill slot", name)
	}
	idx, ok := m.firstFree()
	if !ok {
		victim, victimIdx, err := m.victim()
		if err != nil {
			return 0, err
		}
		if err := m.spillName(victim); err != nil {
			return 0, err
		}
		idx = victimIdx
	}
	reg := Pool[idx]
	m.emit(isa.Instruction{Op: isa.ADDI, A: int32(isa.SC), B: int32(isa.FP), C: m.frameOffset(st.slot)})
	m.emit(isa.Instruction{Op: isa.LOAD, A: int32(reg), B: int32(isa.SB), C: int32(isa.SC)})
	m.bind(name, reg, idx)
	return reg, nil
}

// Use returns a register holding name's current value, for a read: its
// live register if resident, a reload from its spill slot if it has one,
// or otherwise a fresh register exactly as GetRegister would hand out for
// a brand-new definition. GetRegister alone is ambiguous between "define a
// new value" and "read a value that may have been spilled since it was
// last live"; codegen uses Use for the latter and GetRegister only when
// emitting the instruction that originates a value.
func (m *Manager) Use(name Name) (isa.Reg, error) {
	if st, ok := m.names[name]; ok {
		if st.inReg {
			m.touch(name)
			return st.reg, nil
		}
		if st.hasSlot {
			return m.ReloadValue(name)
		}
	}
	return m.GetRegister(name)
}

// Pin protects reg from eviction during a multi-step instruction emission.
func (m *Manager) Pin(reg isa.Reg) {
	if name, ok := m.regOwner[reg]; ok {
		if st := m.names[name]; st != nil {
			st.pinned = true
		}
	}
}

// Unpin releases a previous Pin.
func (m *Manager) Unpin(reg isa.Reg) {
	if name, ok := m.regOwner[reg]; ok {
		if st := m.names[name]; st != nil {
			st.pinned = false
		}
	}
}

// SetPointerBank records name's provenance, surviving spills and reloads
// since the map is keyed by name, not by register (spec §4.2).
func (m *Manager) SetPointerBank(name Name, bank types.BankInfo) {
	m.bankInfo[name] = bank
}

// GetPointerBank retrieves name's tracked provenance.
func (m *Manager) GetPointerBank(name Name) (types.BankInfo, bool) {
	b, ok := m.bankInfo[name]
	return b, ok
}

// SpillSlotCount returns S, the number of distinct spill slots assigned so
// far, for the caller to finalize the frame layout (spec §3).
func (m *Manager) SpillSlotCount() int {
	return m.nextSlot
}

// Live reports whether name currently occupies a register.
func (m *Manager) Live(name Name) bool {
	st, ok := m.names[name]
	return ok && st.inReg
}

// IDName renders an integer IR id as a regalloc Name.
func IDName(id int) Name {
	return Name(fmt.Sprintf("%%%d", id))
}
