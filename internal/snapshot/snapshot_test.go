package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Manu343726/ptdbg/internal/registers"
	"github.com/Manu343726/ptdbg/internal/trace"
)

// fakeOps is a minimal in-memory trace.Ops, enough to exercise the
// register/memory writeback half of Restore without a real traced child.
type fakeOps struct {
	mem  map[uint64]uint64
	regs registers.Bank
}

func newFakeOps() *fakeOps {
	return &fakeOps{mem: make(map[uint64]uint64), regs: make(registers.Bank)}
}

func (f *fakeOps) ReadWord(pid int, addr uint64) (uint64, error) { return f.mem[addr], nil }
func (f *fakeOps) WriteWord(pid int, addr uint64, value uint64) error {
	f.mem[addr] = value
	return nil
}
func (f *fakeOps) Cont(pid int, signal int) error        { return nil }
func (f *fakeOps) Step(pid int) error                     { return nil }
func (f *fakeOps) Wait(pid int) (trace.StopEvent, error)  { return trace.StopEvent{}, nil }
func (f *fakeOps) GetRegs(pid int) (registers.Bank, error) { return f.regs.Clone(), nil }
func (f *fakeOps) SetRegs(pid int, regs registers.Bank) error {
	f.regs = regs.Clone()
	return nil
}
func (f *fakeOps) GetSignalInfo(pid int) (trace.SignalInfo, error) {
	return trace.SignalInfo{}, nil
}
func (f *fakeOps) Terminate(pid int) error { return nil }

var _ trace.Ops = (*fakeOps)(nil)

func TestDocumentYAMLRoundTrip(t *testing.T) {
	doc := Document{
		Registers: map[string]uint64{"rax": 0x41, "rip": 0x401000},
		Stack:     []uint64{1, 2, 3},
		Heap:      []uint64{4, 5},
	}

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	var got Document
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, doc, got)
}

func TestWriteWords(t *testing.T) {
	ops := newFakeOps()
	require.NoError(t, writeWords(ops, 1, 0x7000, []uint64{0xAAAA, 0xBBBB, 0xCCCC}))

	assert.Equal(t, uint64(0xAAAA), ops.mem[0x7000])
	assert.Equal(t, uint64(0xBBBB), ops.mem[0x7008])
	assert.Equal(t, uint64(0xCCCC), ops.mem[0x7010])
}

func TestAdvanceToReentryArmsContinuesAndDisarms(t *testing.T) {
	ops := newFakeOps()
	const pc = uint64(0x401050)
	ops.mem[pc] = 0x9090909090905541 // arbitrary code bytes, low byte 0x41
	ops.regs[registers.RIP] = 0

	require.NoError(t, advanceToReentry(ops, 1, pc))

	assert.Equal(t, uint64(0x41), ops.mem[pc]&0xff, "original byte restored after trap")
	assert.Equal(t, pc, ops.regs[registers.RIP])
}
