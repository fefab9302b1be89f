package regalloc

import (
	"testing"

	"github.com/rvmtoolchain/rvmc/internal/ir/types"
	"github.com/rvmtoolchain/rvmc/internal/isa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRegisterFillsPoolInOrder(t *testing.T) {
	m := New(0)
	m.Init()

	for i := 0; i < len(Pool); i++ {
		reg, err := m.GetRegister(IDName(i))
		require.NoError(t, err)
		assert.Equal(t, Pool[i], reg)
	}
}

func TestGetRegisterSpillsLRUVictimWhenPoolIsFull(t *testing.T) {
	m := New(0)
	m.Init()
	m.TakeInstructions() // drop Init's stack-bank setup so only the spill is left below

	for i := 0; i < len(Pool); i++ {
		_, err := m.GetRegister(IDName(i))
		require.NoError(t, err)
	}

	// Name 0 is the LRU entry; requesting one more live value must spill it
	// and reuse its register.
	reg, err := m.GetRegister(IDName(len(Pool)))
	require.NoError(t, err)
	assert.Equal(t, Pool[0], reg)
	assert.False(t, m.Live(IDName(0)))
	assert.Equal(t, 1, m.SpillSlotCount())

	insts := m.TakeInstructions()
	require.Len(t, insts, 2, "spill emits a frame-address ADDI and a STORE")
	assert.Equal(t, isa.ADDI, insts[0].Op)
	assert.Equal(t, isa.STORE, insts[1].Op)
}

func TestUseReloadsASpilledValue(t *testing.T) {
	m := New(0)
	m.Init()
	for i := 0; i < len(Pool); i++ {
		_, err := m.GetRegister(IDName(i))
		require.NoError(t, err)
	}
	_, err := m.GetRegister(IDName(len(Pool))) // evicts name 0
	require.NoError(t, err)
	m.TakeInstructions()

	reg, err := m.Use(IDName(0))
	require.NoError(t, err)
	assert.True(t, m.Live(IDName(0)))

	insts := m.TakeInstructions()
	// The pool is full, so the reload first spills the LRU live name (1)
	// with an ADDI and a STORE, then emits its own frame-address ADDI and LOAD.
	require.Len(t, insts, 4, "victim spill (ADDI, STORE) then reload (ADDI, LOAD)")
	assert.Equal(t, isa.LOAD, insts[3].Op)
	assert.Equal(t, reg, isa.Reg(insts[3].A))
}

func TestTouchingALiveNameDoesNotMakeItTheNextVictim(t *testing.T) {
	m := New(0)
	m.Init()
	for i := 0; i < len(Pool); i++ {
		_, err := m.GetRegister(IDName(i))
		require.NoError(t, err)
	}

	// Re-touch name 0 so it is no longer the LRU entry; name 1 becomes it.
	_, err := m.Use(IDName(0))
	require.NoError(t, err)

	_, err = m.GetRegister(IDName(100))
	require.NoError(t, err)
	assert.True(t, m.Live(IDName(0)))
	assert.False(t, m.Live(IDName(1)))
}

func TestPinProtectsARegisterFromEviction(t *testing.T) {
	m := New(0)
	m.Init()
	var regs []isa.Reg
	for i := 0; i < len(Pool); i++ {
		reg, err := m.GetRegister(IDName(i))
		require.NoError(t, err)
		regs = append(regs, reg)
	}

	// Name 0 is LRU but pinned; eviction must skip it for name 1.
	m.Pin(regs[0])
	_, err := m.GetRegister(IDName(100))
	require.NoError(t, err)
	assert.True(t, m.Live(IDName(0)))
	assert.False(t, m.Live(IDName(1)))
}

func TestSpillAllEmptiesThePool(t *testing.T) {
	m := New(0)
	m.Init()
	for i := 0; i < 3; i++ {
		_, err := m.GetRegister(IDName(i))
		require.NoError(t, err)
	}
	require.NoError(t, m.SpillAll())
	for i := 0; i < 3; i++ {
		assert.False(t, m.Live(IDName(i)))
	}
	assert.Equal(t, 3, m.SpillSlotCount())
}

func TestFrameAccessBeforeInitPanics(t *testing.T) {
	m := New(0)
	for i := 0; i < len(Pool); i++ {
		_, err := m.GetRegister(IDName(i))
		require.NoError(t, err)
	}
	assert.Panics(t, func() {
		_, _ = m.GetRegister(IDName(100)) // pool is full: this spills, which requires Init
	})
}

func TestPointerBankRoundTrips(t *testing.T) {
	m := New(0)
	m.SetPointerBank(IDName(0), types.BankInfo{Tag: types.BankStack})
	b, ok := m.GetPointerBank(IDName(0))
	require.True(t, ok)
	assert.Equal(t, types.BankStack, b.Tag)

	_, ok = m.GetPointerBank(IDName(1))
	assert.False(t, ok)
}

func TestSpillSlotIsReusedAcrossRepeatedSpills(t *testing.T) {
	m := New(2)
	m.Init()
	for i := 0; i < len(Pool); i++ {
		_, err := m.GetRegister(IDName(i))
		require.NoError(t, err)
	}
	_, err := m.GetRegister(IDName(100)) // spills name 0 into slot 0
	require.NoError(t, err)
	_, err = m.Use(IDName(0)) // reload name 0; this spills name 1 into slot 1
	require.NoError(t, err)
	// Touch every other live name so name 0 is the LRU live entry again.
	for i := 2; i < len(Pool); i++ {
		_, err = m.Use(IDName(i))
		require.NoError(t, err)
	}
	_, err = m.Use(IDName(100))
	require.NoError(t, err)
	m.TakeInstructions()

	_, err = m.GetRegister(IDName(101)) // name 0 is LRU again, spills into same slot
	require.NoError(t, err)
	assert.Equal(t, 2, m.SpillSlotCount(), "slots 0 (name 0) and 1 (name 1); no third slot")

	insts := m.TakeInstructions()
	require.Len(t, insts, 2)
	assert.Equal(t, int32(2+0), insts[0].C, "frame offset is localCount + slot")
}
