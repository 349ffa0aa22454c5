package debugger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu343726/ptdbg/internal/format"
	"github.com/Manu343726/ptdbg/internal/registers"
	"github.com/Manu343726/ptdbg/internal/trace"
)

// fakeOps is an in-memory trace.Ops, enough to exercise the continue
// protocol and register/memory commands without a real traced child.
type fakeOps struct {
	mem       map[uint64]uint64
	regs      registers.Bank
	contCount int
	stepCount int
}

func newFakeOps() *fakeOps {
	regs := make(registers.Bank)
	for _, n := range registers.All {
		regs[n] = 0
	}
	return &fakeOps{mem: make(map[uint64]uint64), regs: regs}
}

func (f *fakeOps) ReadWord(pid int, addr uint64) (uint64, error) { return f.mem[addr], nil }
func (f *fakeOps) WriteWord(pid int, addr uint64, value uint64) error {
	f.mem[addr] = value
	return nil
}
func (f *fakeOps) Cont(pid int, signal int) error {
	f.contCount++
	return nil
}
func (f *fakeOps) Step(pid int) error {
	f.stepCount++
	return nil
}
func (f *fakeOps) Wait(pid int) (trace.StopEvent, error) {
	return trace.StopEvent{Pid: pid, Stopped: true}, nil
}
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

func TestContinueOverLiveBreakpointRearmsAfterward(t *testing.T) {
	ops := newFakeOps()
	const addr = uint64(0x401000)
	ops.mem[addr] = 0x9090909090905541 // low byte 0x41 is the "original" instruction byte

	d := New(ops, 1, nil, nil)
	idx, err := d.AddBreakpoint(addr)
	require.NoError(t, err)

	bp, err := d.bps.Get(idx)
	require.NoError(t, err)
	assert.True(t, bp.Armed())
	assert.Equal(t, byte(0xCC), byte(ops.mem[addr]))

	// Simulate the child having trapped one byte past the breakpoint.
	ops.regs[registers.RIP] = addr + 1

	_, err = d.Continue()
	require.NoError(t, err)

	assert.True(t, bp.Armed(), "breakpoint must be re-armed after stepping over it")
	assert.Equal(t, byte(0xCC), byte(ops.mem[addr]))
	assert.Equal(t, 1, ops.stepCount)
	assert.Equal(t, 1, ops.contCount)
}

func TestContinueWithoutLiveBreakpointJustContinues(t *testing.T) {
	ops := newFakeOps()
	d := New(ops, 1, nil, nil)
	ops.regs[registers.RIP] = 0x500000

	_, err := d.Continue()
	require.NoError(t, err)

	assert.Equal(t, 0, ops.stepCount)
	assert.Equal(t, 1, ops.contCount)
}

func TestReadWriteRegisterRoundTrip(t *testing.T) {
	ops := newFakeOps()
	d := New(ops, 1, nil, nil)

	spec, err := format.Parse("w4x")
	require.NoError(t, err)
	require.NoError(t, d.WriteRegister(registers.RAX, spec, 0xdeadbeef))

	readSpec, err := format.Parse("r4x")
	require.NoError(t, err)
	out, err := d.ReadRegister(registers.RAX, readSpec)
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", out)
}

func TestReadWriteMemoryRoundTrip(t *testing.T) {
	ops := newFakeOps()
	d := New(ops, 1, nil, nil)

	spec, err := format.Parse("w2x")
	require.NoError(t, err)
	require.NoError(t, d.WriteMemory(0x7000, spec, 0xbeef))

	assert.Equal(t, uint64(0xbeef), ops.mem[0x7000])
}

func TestWriteRegisterUnknownName(t *testing.T) {
	ops := newFakeOps()
	d := New(ops, 1, nil, nil)
	spec, err := format.Parse("w8x")
	require.NoError(t, err)

	err = d.WriteRegister(registers.Name("not-a-register"), spec, 0)
	assert.Error(t, err)
}

func TestSubprogramAtWithoutDwarfErrors(t *testing.T) {
	ops := newFakeOps()
	d := New(ops, 1, nil, nil)

	_, err := d.SubprogramAt(0x401000)
	assert.Error(t, err)
}
