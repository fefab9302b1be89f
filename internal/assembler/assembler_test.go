package assembler

import (
	"testing"

	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/isa"
	"github.com/rvmtoolchain/rvmc/internal/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleSimpleLoop(t *testing.T) {
	src := `
main:
	ADDI t0, zero, 0
loop:
	ADDI t0, t0, 1
	BNE t0, zero, loop
	JAL zero, done
done:
	RET
`
	obj, err := Assemble("t.asm", src, config.Default())
	require.NoError(t, err)
	assert.Empty(t, obj.Unresolved)

	sym, ok := obj.FindSymbol("loop")
	require.True(t, ok)
	assert.Equal(t, 1, sym.Address)

	// BNE at index 2 branches back to "loop" (index 1): pc_relative value
	// is target - site - 1 = 1 - 2 - 1 = -2.
	assert.Equal(t, isa.BNE, obj.Instructions[2].Op)
	assert.Equal(t, int32(-2), obj.Instructions[2].C)
}

func TestAssembleLeavesExternalReferenceUnresolved(t *testing.T) {
	src := `
main:
	CALL helper
	RET
`
	obj, err := Assemble("t.asm", src, config.Default())
	require.NoError(t, err)
	require.Len(t, obj.Unresolved, 1)
	assert.Equal(t, "helper", obj.Unresolved[0].Symbol)
	assert.Equal(t, object.PCRelative, obj.Unresolved[0].Kind)
}

func TestAssembleDirectives(t *testing.T) {
	src := `
.data
msg:
	.asciiz "hi"
count:
	.word 5, 6
.code
main:
	RET
`
	obj, err := Assemble("t.asm", src, config.Default())
	require.NoError(t, err)

	msg, ok := obj.FindSymbol("msg")
	require.True(t, ok)
	assert.True(t, msg.IsData)
	assert.Equal(t, 0, msg.Address)

	count, ok := obj.FindSymbol("count")
	require.True(t, ok)
	assert.True(t, count.IsData)

	// "hi\0" is 3 bytes, padded to 4 for word alignment before .word.
	assert.Equal(t, 2, count.Address)
	assert.Equal(t, byte(5), obj.Data[4])
	assert.Equal(t, byte(6), obj.Data[6])
}

func TestAssembleDuplicateSymbolFails(t *testing.T) {
	src := `
main:
	RET
main:
	RET
`
	_, err := Assemble("t.asm", src, config.Default())
	assert.Error(t, err)
}

func TestAssembleUnknownMnemonicFails(t *testing.T) {
	src := "FROBNICATE t0, t1, t2\n"
	_, err := Assemble("t.asm", src, config.Default())
	assert.Error(t, err)
}

func TestExpandPseudoPushPop(t *testing.T) {
	insts, err := expandPseudo("t.asm", statement{mnemonic: "PUSH", operands: []operand{{kind: operandReg, reg: uint8(isa.T0)}}})
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, isa.SUBI, insts[0].Op)
	assert.Equal(t, isa.STORE, insts[1].Op)

	insts, err = expandPseudo("t.asm", statement{mnemonic: "POP", operands: []operand{{kind: operandReg, reg: uint8(isa.T0)}}})
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, isa.LOAD, insts[0].Op)
	assert.Equal(t, isa.ADDI, insts[1].Op)
}
