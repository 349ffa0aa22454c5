// Package trace is a thin semantic layer over the kernel's process-tracing
// primitive: continue, single-step, wait-on-event, word-granular memory
// access, register bank get/set, signal info and terminate. Attaching as a
// traced child is done by internal/supervisor, not here. Every exported
// operation here blocks and requires the child to be in a stopped state
// except Cont/Step, which resume it.
package trace

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/Manu343726/ptdbg/internal/registers"
)

// StopEvent reports why wait() returned.
type StopEvent struct {
	Pid      int
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   unix.Signal
	Stopped  bool
	StopSig  unix.Signal
}

// SignalInfo mirrors the subset of siginfo_t the debugger surfaces as a
// diagnostic after a stop.
type SignalInfo struct {
	Signal unix.Signal
	Code   int32
}

// Ops is implemented by the real kernel-backed tracer; tests may swap in a
// fake. Keeping it as an interface lets the continue-protocol and
// breakpoint-arming logic in internal/debugger and internal/breakpoint be
// exercised without forking a real traced child.
type Ops interface {
	Cont(pid int, signal int) error
	Step(pid int) error
	Wait(pid int) (StopEvent, error)
	ReadWord(pid int, addr uint64) (uint64, error)
	WriteWord(pid int, addr uint64, value uint64) error
	GetRegs(pid int) (registers.Bank, error)
	SetRegs(pid int, regs registers.Bank) error
	GetSignalInfo(pid int) (SignalInfo, error)
	Terminate(pid int) error
}

// Kernel is the real Ops implementation, built directly on
// golang.org/x/sys/unix's ptrace(2)/wait4(2) wrappers.
type Kernel struct{}

var _ Ops = Kernel{}

// Cont resumes the child, optionally delivering signal. Callers must Wait
// before issuing any further tracing call.
func (Kernel) Cont(pid int, signal int) error {
	if err := unix.PtraceCont(pid, signal); err != nil {
		return fmt.Errorf("ptrace cont pid %d: %w", pid, err)
	}
	return nil
}

// Step single-steps the child by one instruction.
func (Kernel) Step(pid int) error {
	if err := unix.PtraceSingleStep(pid); err != nil {
		return fmt.Errorf("ptrace singlestep pid %d: %w", pid, err)
	}
	return nil
}

// Wait blocks until pid stops or exits.
func (Kernel) Wait(pid int) (StopEvent, error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, 0, nil)
	if err != nil {
		return StopEvent{}, fmt.Errorf("wait4 pid %d: %w", pid, err)
	}

	ev := StopEvent{Pid: wpid}
	switch {
	case ws.Exited():
		ev.Exited = true
		ev.ExitCode = ws.ExitStatus()
	case ws.Signaled():
		ev.Signaled = true
		ev.Signal = ws.Signal()
	case ws.Stopped():
		ev.Stopped = true
		ev.StopSig = ws.StopSignal()
	}
	return ev, nil
}

// ReadWord reads 8 bytes starting at addr; addr need not be word-aligned.
func (Kernel) ReadWord(pid int, addr uint64) (uint64, error) {
	var buf [8]byte
	n, err := unix.PtracePeekData(pid, uintptr(addr), buf[:])
	if err != nil {
		return 0, fmt.Errorf("ptrace peek pid %d addr %#x: %w", pid, addr, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("ptrace peek pid %d addr %#x: short read (%d bytes)", pid, addr, n)
	}
	return littleEndianWord(buf[:]), nil
}

// WriteWord writes an 8-byte word starting at addr; addr need not be
// word-aligned.
func (Kernel) WriteWord(pid int, addr uint64, value uint64) error {
	var buf [8]byte
	putLittleEndianWord(buf[:], value)
	n, err := unix.PtracePokeData(pid, uintptr(addr), buf[:])
	if err != nil {
		return fmt.Errorf("ptrace poke pid %d addr %#x: %w", pid, addr, err)
	}
	if n != len(buf) {
		return fmt.Errorf("ptrace poke pid %d addr %#x: short write (%d bytes)", pid, addr, n)
	}
	return nil
}

// GetRegs fetches the full register bank.
func (Kernel) GetRegs(pid int) (registers.Bank, error) {
	var raw unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &raw); err != nil {
		return nil, fmt.Errorf("ptrace getregs pid %d: %w", pid, err)
	}
	return registers.FromRaw(&raw), nil
}

// SetRegs writes the full register bank. regs must cover every register
// name, or registers.ToRaw panics: a programming bug, not a user error.
func (Kernel) SetRegs(pid int, regs registers.Bank) error {
	raw := registers.ToRaw(regs)
	if err := unix.PtraceSetRegs(pid, &raw); err != nil {
		return fmt.Errorf("ptrace setregs pid %d: %w", pid, err)
	}
	return nil
}

// rawSiginfo mirrors the head of Linux's siginfo_t (si_signo, si_errno,
// si_code) followed by padding out to the kernel's fixed 128-byte size.
// PTRACE_GETSIGINFO is not wrapped by golang.org/x/sys/unix, so this issues
// the raw ptrace(2) syscall directly, the same way delve's native backend
// does for the same request.
type rawSiginfo struct {
	Signo int32
	Errno int32
	Code  int32
	_     [116]byte
}

// GetSignalInfo fetches the last stop's siginfo_t (signal + code), used for
// the diagnostic line printed after every continue.
func (Kernel) GetSignalInfo(pid int) (SignalInfo, error) {
	var raw rawSiginfo
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(unix.PTRACE_GETSIGINFO),
		uintptr(pid), 0, uintptr(unsafe.Pointer(&raw)), 0, 0)
	if errno != 0 {
		return SignalInfo{}, fmt.Errorf("ptrace getsiginfo pid %d: %w", pid, errno)
	}
	return SignalInfo{Signal: unix.Signal(raw.Signo), Code: raw.Code}, nil
}

// Terminate kills the child. A process-not-found error is swallowed:
// terminate is idempotent shutdown.
func (Kernel) Terminate(pid int) error {
	if err := unix.PtraceKill(pid); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		return fmt.Errorf("ptrace kill pid %d: %w", pid, err)
	}
	return nil
}

func littleEndianWord(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

func putLittleEndianWord(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
