package dwarfinfo

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubprogramContains(t *testing.T) {
	s := Subprogram{Name: "main", LowPC: 0x401000, HighPCOffset: 0x20}

	assert.True(t, s.Contains(0x401000))
	assert.True(t, s.Contains(0x40101f))
	assert.False(t, s.Contains(0x401020))
	assert.False(t, s.Contains(0x400fff))
}

func TestHighPCOffsetAsOffset(t *testing.T) {
	entry := &dwarf.Entry{
		Field: []dwarf.Field{
			{Attr: dwarf.AttrHighpc, Val: uint64(0x30)},
		},
	}

	off, ok := highPCOffset(entry, 0x401000)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x30), off)
}

func TestHighPCOffsetAsAbsoluteAddress(t *testing.T) {
	// A high_pc >= low_pc is treated as an absolute end address.
	entry := &dwarf.Entry{
		Field: []dwarf.Field{
			{Attr: dwarf.AttrHighpc, Val: uint64(0x401030)},
		},
	}

	off, ok := highPCOffset(entry, 0x401000)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x30), off)
}

func TestHighPCOffsetMissing(t *testing.T) {
	entry := &dwarf.Entry{}
	_, ok := highPCOffset(entry, 0x401000)
	assert.False(t, ok)
}
