package breakpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/ptdbg/internal/registers"
	"github.com/Manu343726/ptdbg/internal/trace"
)

// fakeOps is an in-memory trace.Ops backed by a byte-addressable map,
// enough to exercise breakpoint patching without a real traced child.
type fakeOps struct {
	mem map[uint64]uint64 // word-aligned memory, addressed by addr
}

func newFakeOps() *fakeOps {
	return &fakeOps{mem: make(map[uint64]uint64)}
}

func (f *fakeOps) ReadWord(pid int, addr uint64) (uint64, error) {
	return f.mem[addr], nil
}

func (f *fakeOps) WriteWord(pid int, addr uint64, value uint64) error {
	f.mem[addr] = value
	return nil
}

func (f *fakeOps) Cont(pid int, signal int) error                    { return nil }
func (f *fakeOps) Step(pid int) error                                { return nil }
func (f *fakeOps) Wait(pid int) (trace.StopEvent, error)             { return trace.StopEvent{}, nil }
func (f *fakeOps) GetRegs(pid int) (registers.Bank, error)           { return nil, nil }
func (f *fakeOps) SetRegs(pid int, regs registers.Bank) error        { return nil }
func (f *fakeOps) GetSignalInfo(pid int) (trace.SignalInfo, error)   { return trace.SignalInfo{}, nil }
func (f *fakeOps) Terminate(pid int) error                           { return nil }

var _ trace.Ops = (*fakeOps)(nil)

func TestArmDisarmRoundTrip(t *testing.T) {
	ops := newFakeOps()
	ops.mem[0x1000] = 0x1122334455667788

	bp := New(ops, 1, 0x1000)
	require.NoError(t, bp.Arm())

	word, _ := ops.ReadWord(1, 0x1000)
	assert.Equal(t, uint64(0xCC), word&0xff)
	assert.True(t, bp.Armed())

	require.NoError(t, bp.Disarm())
	word, _ = ops.ReadWord(1, 0x1000)
	assert.Equal(t, uint64(0x88), word&0xff)
	assert.False(t, bp.Armed())
}

func TestTableRejectsDuplicateAddress(t *testing.T) {
	ops := newFakeOps()
	table := NewTable()

	_, err := table.Insert(New(ops, 1, 0x401000))
	require.NoError(t, err)

	_, err = table.Insert(New(ops, 1, 0x401000))
	assert.ErrorIs(t, err, ErrDuplicateAddress)
	assert.Len(t, table.IterLive(), 1)
}

func TestIndicesNeverReused(t *testing.T) {
	ops := newFakeOps()
	table := NewTable()

	idx0, err := table.Insert(New(ops, 1, 0x401000))
	require.NoError(t, err)
	idx1, err := table.Insert(New(ops, 1, 0x401010))
	require.NoError(t, err)

	require.NoError(t, table.Delete(idx0))

	idx2, err := table.Insert(New(ops, 1, 0x401020))
	require.NoError(t, err)

	assert.Equal(t, 0, idx0)
	assert.Equal(t, 1, idx1)
	assert.Equal(t, 2, idx2)

	live := table.IterLive()
	require.Len(t, live, 2)
	assert.Equal(t, idx1, live[0].Index)
	assert.Equal(t, idx2, live[1].Index)
}

func TestDeleteThenOperateIsNotFound(t *testing.T) {
	ops := newFakeOps()
	table := NewTable()

	idx, err := table.Insert(New(ops, 1, 0x401000))
	require.NoError(t, err)
	require.NoError(t, table.Delete(idx))

	assert.ErrorIs(t, table.Delete(idx), ErrNotFound)
	assert.ErrorIs(t, table.Enable(idx), ErrNotFound)
	assert.ErrorIs(t, table.Disable(idx), ErrNotFound)
	assert.False(t, table.ContainsAddr(0x401000))
}

func TestEnableDisableByIndex(t *testing.T) {
	ops := newFakeOps()
	ops.mem[0x2000] = 0xAABBCCDDEEFF0011
	table := NewTable()

	idx, err := table.Insert(New(ops, 1, 0x2000))
	require.NoError(t, err)

	require.NoError(t, table.Disable(idx))
	bp, err := table.Get(idx)
	require.NoError(t, err)
	assert.False(t, bp.Armed())

	require.NoError(t, table.Enable(idx))
	assert.True(t, bp.Armed())
}

func TestAtMostOneLiveEntryPerAddress(t *testing.T) {
	ops := newFakeOps()
	table := NewTable()

	idx, err := table.Insert(New(ops, 1, 0x3000))
	require.NoError(t, err)
	require.NoError(t, table.Delete(idx))

	// Address is free again once the only live entry at it is deleted.
	_, err = table.Insert(New(ops, 1, 0x3000))
	require.NoError(t, err)

	count := 0
	for _, e := range table.IterLive() {
		if e.Bp.Addr() == 0x3000 {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
