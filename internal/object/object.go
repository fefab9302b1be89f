// Package object implements the object file and archive format of spec
// §4.5/§6: a self-describing record holding an instruction array, a data
// byte array, a symbol table and a list of unresolved references, produced
// by internal/assembler and consumed by internal/linker. The on-disk form
// is JSON ("a JSON-like record", per spec §6), encoded with the standard
// library's encoding/json, grounded directly on the field list the object
// format needs to be self-describing.
package object

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// RelocKind tags how a Reloc's operand word must be patched once its
// symbol resolves, per spec §4.5's pass-2 rule.
type RelocKind int

const (
	// Absolute writes the target's full resolved address into the site.
	Absolute RelocKind = iota
	// PCRelative writes (target - site - 1), the offset a JAL/branch expects.
	PCRelative
	// Bank writes only the target's bank-index fragment.
	Bank
)

// String renders a RelocKind for diagnostics and the text object format.
func (k RelocKind) String() string {
	switch k {
	case Absolute:
		return "absolute"
	case PCRelative:
		return "pc_relative"
	case Bank:
		return "bank"
	default:
		return "unknown"
	}
}

// Operand selects which word of a multi-operand instruction a Reloc
// patches; the assembler always emits label operands into the C word, but
// the field is explicit rather than assumed so the linker never guesses.
type Operand int

const (
	OperandC Operand = iota
	OperandB
	OperandA
)

// Reloc is one unresolved reference: a site within this object's
// instruction array, the symbol it names, and how to patch it once the
// symbol is resolved (spec §4.5: "(site, symbol, kind)").
type Reloc struct {
	Site    int       `json:"site"`
	Operand Operand   `json:"operand"`
	Symbol  string     `json:"symbol"`
	Kind    RelocKind `json:"kind"`
}

// ApplyReloc patches target into obj's instruction at r.Site/r.Operand,
// per spec §4.5's three relocation kinds. The assembler's own local pass
// and the linker's cross-object pass both route through this so the patch
// arithmetic is defined exactly once.
func ApplyReloc(obj *Object, r Reloc, target, bankSizeCells int) error {
	if r.Site < 0 || r.Site >= len(obj.Instructions) {
		return errors.Errorf("object: relocation site %d out of range", r.Site)
	}
	inst := &obj.Instructions[r.Site]
	var value int32
	switch r.Kind {
	case Absolute:
		value = int32(target)
	case PCRelative:
		value = int32(target - r.Site - 1)
	case Bank:
		if bankSizeCells <= 0 {
			return errors.Errorf("object: bank relocation requires a positive bank size")
		}
		value = int32(target / bankSizeCells)
	default:
		return errors.Errorf("object: unknown relocation kind %v", r.Kind)
	}
	switch r.Operand {
	case OperandA:
		inst.A = value
	case OperandB:
		inst.B = value
	case OperandC:
		inst.C = value
	default:
		return errors.Errorf("object: unknown relocation operand %v", r.Operand)
	}
	inst.Label = ""
	return nil
}

// Symbol is one entry of an object's symbol table: a name resolved to an
// address within this object's own instruction or data space, per spec
// §4.5. IsData distinguishes a data-section symbol (rebased against the
// linker's data-base offset) from a code symbol (rebased against the
// instruction-base offset).
type Symbol struct {
	Name    string `json:"name"`
	Address int    `json:"address"`
	IsData  bool   `json:"is_data"`
}

// Object is the self-describing artifact spec §4.5 names: "instruction
// array, data byte array, symbol table (name->address), unresolved list,
// and optional entry symbol".
type Object struct {
	Instructions []isa.Instruction `json:"instructions"`
	Data         []byte            `json:"data"`
	Symbols      []Symbol          `json:"symbols"`
	Unresolved   []Reloc           `json:"unresolved"`
	Entry        string            `json:"entry,omitempty"`
}

// Archive is a keyed collection of Objects, spec §4.5/§6's `-l archive`:
// a keyed collection of object records, pulled in lazily by the linker to
// satisfy otherwise-unresolved symbols (analogous to a Unix .a static
// archive, one member per object).
type Archive struct {
	Members map[string]*Object `json:"members"`
}

// ---------------------
// ----- Functions -----
// ---------------------

// New returns an empty Object ready for the assembler to populate.
func New() *Object {
	return &Object{}
}

// FindSymbol looks up name in o's own symbol table.
func (o *Object) FindSymbol(name string) (Symbol, bool) {
	for _, s := range o.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// Encode writes o as JSON to w.
func (o *Object) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		return errors.Wrap(err, "object: encode")
	}
	return nil
}

// Decode reads an Object previously written by Encode.
func Decode(r io.Reader) (*Object, error) {
	var o Object
	if err := json.NewDecoder(r).Decode(&o); err != nil {
		return nil, errors.Wrap(err, "object: decode")
	}
	return &o, nil
}

// NewArchive returns an empty Archive.
func NewArchive() *Archive {
	return &Archive{Members: make(map[string]*Object)}
}

// Add inserts obj into the archive under name, e.g. the source file stem
// that produced it.
func (a *Archive) Add(name string, obj *Object) {
	if a.Members == nil {
		a.Members = make(map[string]*Object)
	}
	a.Members[name] = obj
}

// Lookup returns the member providing symbol, if any, for the linker's
// lazy archive-pulling pass.
func (a *Archive) Lookup(symbol string) (string, *Object, bool) {
	for name, obj := range a.Members {
		if _, ok := obj.FindSymbol(symbol); ok {
			return name, obj, true
		}
	}
	return "", nil, false
}

// Encode writes a as JSON to w.
func (a *Archive) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return errors.Wrap(err, "object: encode archive")
	}
	return nil
}

// DecodeArchive reads an Archive previously written by Encode.
func DecodeArchive(r io.Reader) (*Archive, error) {
	var a Archive
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, errors.Wrap(err, "object: decode archive")
	}
	return &a, nil
}
