package linker

import (
	"testing"

	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/isa"
	"github.com/rvmtoolchain/rvmc/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkTwoObjectsResolvesCrossReference(t *testing.T) {
	main := &object.Object{
		Instructions: []isa.Instruction{
			{Op: isa.JAL, A: int32(isa.RA)}, // call "helper"
			{Op: isa.JALR, A: int32(isa.Zero), B: int32(isa.RA)},
		},
		Symbols:    []object.Symbol{{Name: "main", Address: 0}},
		Unresolved: []object.Reloc{{Site: 0, Operand: object.OperandC, Symbol: "helper", Kind: object.PCRelative}},
	}
	helper := &object.Object{
		Instructions: []isa.Instruction{
			{Op: isa.JALR, A: int32(isa.Zero), B: int32(isa.RA)},
		},
		Symbols: []object.Symbol{{Name: "helper", Address: 0}},
	}

	img, err := Link(Input{Objects: []*object.Object{main, helper}, Entry: "main"}, config.Default())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), img.EntryAddress)
	require.Len(t, img.Instructions, 3)

	// "helper" now sits at global instruction index 2 (after main's 2
	// instructions); site 0's pc-relative patch is target - site - 1.
	assert.Equal(t, int32(2-0-1), img.Instructions[0].C)
}

func TestLinkPullsArchiveMemberLazily(t *testing.T) {
	main := &object.Object{
		Instructions: []isa.Instruction{{Op: isa.JAL, A: int32(isa.RA)}},
		Symbols:      []object.Symbol{{Name: "main", Address: 0}},
		Unresolved:   []object.Reloc{{Site: 0, Operand: object.OperandC, Symbol: "libfn", Kind: object.PCRelative}},
	}
	ar := object.NewArchive()
	libObj := &object.Object{
		Instructions: []isa.Instruction{{Op: isa.JALR, A: int32(isa.Zero), B: int32(isa.RA)}},
		Symbols:      []object.Symbol{{Name: "libfn", Address: 0}},
	}
	ar.Add("lib", libObj)

	img, err := Link(Input{Objects: []*object.Object{main}, Archives: []*object.Archive{ar}, Entry: "main"}, config.Default())
	require.NoError(t, err)
	require.Len(t, img.Instructions, 2)
}

func TestLinkDetectsMultiplyDefinedSymbol(t *testing.T) {
	a := &object.Object{Symbols: []object.Symbol{{Name: "dup", Address: 0}}}
	b := &object.Object{Symbols: []object.Symbol{{Name: "dup", Address: 0}}}
	_, err := Link(Input{Objects: []*object.Object{a, b}, Entry: "dup"}, config.Default())
	assert.Error(t, err)
}

func TestLinkReportsUnresolvedSymbol(t *testing.T) {
	main := &object.Object{
		Instructions: []isa.Instruction{{Op: isa.JAL, A: int32(isa.RA)}},
		Symbols:      []object.Symbol{{Name: "main", Address: 0}},
		Unresolved:   []object.Reloc{{Site: 0, Operand: object.OperandC, Symbol: "missing", Kind: object.PCRelative}},
	}
	_, err := Link(Input{Objects: []*object.Object{main}, Entry: "main"}, config.Default())
	assert.Error(t, err)
}

func TestLinkReportsMissingEntry(t *testing.T) {
	main := &object.Object{Symbols: []object.Symbol{{Name: "notmain", Address: 0}}}
	_, err := Link(Input{Objects: []*object.Object{main}, Entry: "main"}, config.Default())
	assert.Error(t, err)
}
