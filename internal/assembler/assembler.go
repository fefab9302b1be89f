package assembler

import (
	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/isa"
	"github.com/rvmtoolchain/rvmc/internal/object"
)

// section names which array a statement currently appends to.
type section int

const (
	secCode section = iota
	secData
)

// state carries the assembler's running position across both passes
// (spec §4.5: pass 1 tokenizes, expands pseudo-instructions and builds the
// symbol table; pass 2 patches local references).
type state struct {
	file    string
	cfg     config.Options
	obj     *object.Object
	section section
}

// Assemble runs both passes of spec §4.5 over src (from a file named file,
// for diagnostics) and returns the resulting object record. Unresolved
// label references that name no symbol in this object are left in
// obj.Unresolved for the linker.
func Assemble(file, src string, cfg config.Options) (*object.Object, error) {
	toks, err := Tokens(file, src)
	if err != nil {
		return nil, err
	}
	stmts, err := parseStatements(file, toks)
	if err != nil {
		return nil, err
	}

	st := &state{file: file, cfg: cfg, obj: object.New()}

	// Pass 1: expand pseudo-instructions, emit real instructions and data
	// bytes, and record every label's address as it is defined.
	for _, s := range stmts {
		if err := st.defineLabels(s); err != nil {
			return nil, err
		}
		switch {
		case s.directive != "":
			if err := st.applyDirective(s); err != nil {
				return nil, err
			}
		case pseudoMnemonics[s.mnemonic]:
			insts, err := expandPseudo(file, s)
			if err != nil {
				return nil, err
			}
			st.appendCode(insts)
		case s.mnemonic != "":
			inst, err := st.assembleReal(s)
			if err != nil {
				return nil, err
			}
			st.appendCode([]isa.Instruction{inst})
		}
	}
	if len(st.obj.Data)%2 != 0 {
		st.obj.Data = append(st.obj.Data, 0)
	}

	// Pass 2: patch every reference to a label defined in this same object;
	// references with no local symbol stay in obj.Unresolved for the linker
	// (spec §4.5 pass 2: "Remaining references stay unresolved for the
	// linker.").
	if cfg.Entry != "" {
		if _, ok := st.obj.FindSymbol(cfg.Entry); ok {
			st.obj.Entry = cfg.Entry
		}
	}
	return st.resolveLocal()
}

func (st *state) defineLabels(s statement) error {
	if st.section == secData && len(st.obj.Data)%2 != 0 {
		st.obj.Data = append(st.obj.Data, 0)
	}
	for _, name := range s.labels {
		if _, exists := st.obj.FindSymbol(name); exists {
			return diag.New(diag.Resolution, diag.Span{File: st.file, Line: s.line}, "duplicate symbol %q", name)
		}
		addr := len(st.obj.Instructions)
		isData := st.section == secData
		if isData {
			addr = len(st.obj.Data) / 2
		}
		st.obj.Symbols = append(st.obj.Symbols, object.Symbol{Name: name, Address: addr, IsData: isData})
	}
	return nil
}

func (st *state) appendCode(insts []isa.Instruction) {
	for _, inst := range insts {
		site := len(st.obj.Instructions)
		if inst.Label != "" {
			kind := object.Absolute
			if controlFlowOps[inst.Op.Mnemonic()] {
				kind = object.PCRelative
			}
			st.obj.Unresolved = append(st.obj.Unresolved, object.Reloc{
				Site: site, Operand: object.OperandC, Symbol: inst.Label, Kind: kind,
			})
		}
		st.obj.Instructions = append(st.obj.Instructions, inst)
	}
}

// resolveLocal is spec §4.5 pass 2: patch every unresolved reference whose
// symbol is defined in this same object, using the recorded relocation
// kind; references to symbols this object does not define are left for
// the linker.
func (st *state) resolveLocal() (*object.Object, error) {
	var remaining []object.Reloc
	for _, r := range st.obj.Unresolved {
		sym, ok := st.obj.FindSymbol(r.Symbol)
		if !ok {
			remaining = append(remaining, r)
			continue
		}
		bankSize := st.cfg.BankSize
		if bankSize == 0 {
			bankSize = config.BankSizeCells
		}
		if err := object.ApplyReloc(st.obj, r, sym.Address, bankSize); err != nil {
			return nil, diag.Wrap(err, diag.Internal, diag.Span{File: st.file}, "patching local reference to %q", r.Symbol)
		}
	}
	st.obj.Unresolved = remaining
	return st.obj, nil
}
