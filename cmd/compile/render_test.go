package main

import (
	"testing"

	"github.com/rvmtoolchain/rvmc/internal/assembler"
	"github.com/rvmtoolchain/rvmc/internal/codegen"
	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/isa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRenderProgramAssembles exercises the compile/assemble process
// boundary: whatever renderProgram emits must be valid input to
// internal/assembler.Assemble, never just human-readable text.
func TestRenderProgramAssembles(t *testing.T) {
	prog := &codegen.Program{
		Functions: []codegen.Function{
			{
				Name: "main",
				Lines: []codegen.Line{
					{Inst: isa.Instruction{Op: isa.ADDI, A: int32(isa.T0), B: int32(isa.Zero), C: 0}},
					{Labels: []string{"loop"}, Inst: isa.Instruction{Op: isa.ADDI, A: int32(isa.T0), B: int32(isa.T0), C: 1}},
					{Inst: isa.Instruction{Op: isa.BNE, A: int32(isa.T0), B: int32(isa.Zero), Label: "loop"}},
					{Inst: isa.Instruction{Op: isa.JALR, A: int32(isa.Zero), B: int32(isa.RA), C: 0}},
				},
			},
		},
	}

	asm := renderProgram(prog)
	obj, err := assembler.Assemble("t.asm", asm, config.Default())
	require.NoError(t, err)

	sym, ok := obj.FindSymbol("loop")
	require.True(t, ok)
	assert.Equal(t, 1, sym.Address)
	assert.Empty(t, obj.Unresolved)
}
