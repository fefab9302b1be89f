package object

import (
	"bytes"
	"testing"

	"github.com/rvmtoolchain/rvmc/internal/isa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectEncodeDecodeRoundTrip(t *testing.T) {
	o := New()
	o.Instructions = []isa.Instruction{
		{Op: isa.ADDI, A: int32(isa.T0), B: int32(isa.Zero), C: 7},
	}
	o.Data = []byte{0x01, 0x02}
	o.Symbols = []Symbol{{Name: "main", Address: 0}}
	o.Unresolved = []Reloc{{Site: 1, Operand: OperandC, Symbol: "helper", Kind: PCRelative}}
	o.Entry = "main"

	var buf bytes.Buffer
	require.NoError(t, o.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, o.Instructions, got.Instructions)
	assert.Equal(t, o.Data, got.Data)
	assert.Equal(t, o.Symbols, got.Symbols)
	assert.Equal(t, o.Unresolved, got.Unresolved)
	assert.Equal(t, o.Entry, got.Entry)
}

func TestObjectFindSymbol(t *testing.T) {
	o := New()
	o.Symbols = []Symbol{{Name: "a", Address: 4}, {Name: "b", Address: 8}}

	s, ok := o.FindSymbol("b")
	require.True(t, ok)
	assert.Equal(t, 8, s.Address)

	_, ok = o.FindSymbol("missing")
	assert.False(t, ok)
}

func TestArchiveLookup(t *testing.T) {
	a := NewArchive()
	one := New()
	one.Symbols = []Symbol{{Name: "strlen", Address: 0}}
	a.Add("string", one)

	name, obj, ok := a.Lookup("strlen")
	require.True(t, ok)
	assert.Equal(t, "string", name)
	assert.Same(t, one, obj)

	_, _, ok = a.Lookup("nope")
	assert.False(t, ok)
}

func TestArchiveEncodeDecodeRoundTrip(t *testing.T) {
	a := NewArchive()
	m := New()
	m.Symbols = []Symbol{{Name: "memcpy", Address: 10}}
	a.Add("mem", m)

	var buf bytes.Buffer
	require.NoError(t, a.Encode(&buf))

	got, err := DecodeArchive(&buf)
	require.NoError(t, err)
	require.Contains(t, got.Members, "mem")
	assert.Equal(t, m.Symbols, got.Members["mem"].Symbols)
}

func TestImageEncodeDecodeRoundTrip(t *testing.T) {
	img := &Image{
		EntryAddress: 4,
		Instructions: []isa.Instruction{
			{Op: isa.ADD, A: int32(isa.T0), B: int32(isa.T1), C: int32(isa.T2)},
			{Op: isa.NOP},
		},
		Data: []byte{0xAA, 0xBB, 0xCC},
	}

	var buf bytes.Buffer
	require.NoError(t, img.Encode(&buf))

	got, err := DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.EntryAddress, got.EntryAddress)
	assert.Equal(t, img.Instructions, got.Instructions)
	assert.Equal(t, img.Data, got.Data)
}

func TestDecodeImageRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("NOTRLINKDATA")
	_, err := DecodeImage(buf)
	assert.Error(t, err)
}
