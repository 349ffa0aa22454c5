// Package debugger owns the traced child's PID, exposes one method per
// interactive command (the command line itself is parsed in cmd/ptdbg),
// enforces the continue-over-breakpoint protocol, and drives
// snapshot/restore.
package debugger

import (
	"fmt"
	"log/slog"

	"github.com/Manu343726/ptdbg/internal/breakpoint"
	"github.com/Manu343726/ptdbg/internal/dwarfinfo"
	"github.com/Manu343726/ptdbg/internal/format"
	"github.com/Manu343726/ptdbg/internal/registers"
	"github.com/Manu343726/ptdbg/internal/snapshot"
	"github.com/Manu343726/ptdbg/internal/trace"
)

// Verdict is returned by the command loop to tell the Supervisor what to do
// next.
type Verdict int

const (
	// VerdictContinue keeps the current command loop running.
	VerdictContinue Verdict = iota
	// VerdictExit ends the debugger entirely; the supervisor must not restart.
	VerdictExit
	// VerdictRestart ends this session; the supervisor forks a fresh child.
	VerdictRestart
)

// Debugger is the core control loop bound to one traced child PID. It owns
// the breakpoint table and consults the (optional) debug-info handle.
type Debugger struct {
	ops   trace.Ops
	pid   int
	bps   *breakpoint.Table
	dwarf *dwarfinfo.Handle // nil if no debug info was loaded
	log   *slog.Logger
}

// New constructs a Debugger bound to pid. dwarf may be nil.
func New(ops trace.Ops, pid int, dwarf *dwarfinfo.Handle, log *slog.Logger) *Debugger {
	if log == nil {
		log = slog.Default()
	}
	return &Debugger{
		ops:   ops,
		pid:   pid,
		bps:   breakpoint.NewTable(),
		dwarf: dwarf,
		log:   log,
	}
}

// Pid returns the traced child's process ID.
func (d *Debugger) Pid() int { return d.pid }

// Breakpoints returns the debugger's breakpoint table.
func (d *Debugger) Breakpoints() *breakpoint.Table { return d.bps }

// Continue implements the continue-over-breakpoint protocol: if the child
// is stopped one byte past a live armed breakpoint, the original
// instruction is replayed before resuming, so the breakpoint site doesn't
// permanently block progress.
func (d *Debugger) Continue() (trace.StopEvent, error) {
	regs, err := d.ops.GetRegs(d.pid)
	if err != nil {
		return trace.StopEvent{}, fmt.Errorf("continue: get regs: %w", err)
	}

	candidateAddr := regs[registers.RIP] - 1
	if idx, ok := d.bps.FindByAddr(candidateAddr); ok {
		bp, err := d.bps.Get(idx)
		if err != nil {
			return trace.StopEvent{}, fmt.Errorf("continue: %w", err)
		}

		if bp.Armed() {
			if err := bp.Disarm(); err != nil {
				return trace.StopEvent{}, fmt.Errorf("continue: disarm breakpoint %d: %w", idx, err)
			}

			regs = regs.Clone()
			regs[registers.RIP] = candidateAddr
			if err := d.ops.SetRegs(d.pid, regs); err != nil {
				return trace.StopEvent{}, fmt.Errorf("continue: rewind rip: %w", err)
			}

			if err := d.ops.Step(d.pid); err != nil {
				return trace.StopEvent{}, fmt.Errorf("continue: step over breakpoint: %w", err)
			}
			if _, err := d.ops.Wait(d.pid); err != nil {
				return trace.StopEvent{}, fmt.Errorf("continue: wait after step: %w", err)
			}

			if err := bp.Arm(); err != nil {
				return trace.StopEvent{}, fmt.Errorf("continue: re-arm breakpoint %d: %w", idx, err)
			}
		}
	}

	if err := d.ops.Cont(d.pid, 0); err != nil {
		return trace.StopEvent{}, fmt.Errorf("continue: cont: %w", err)
	}
	ev, err := d.ops.Wait(d.pid)
	if err != nil {
		return trace.StopEvent{}, fmt.Errorf("continue: wait: %w", err)
	}

	if sig, sigErr := d.ops.GetSignalInfo(d.pid); sigErr == nil {
		d.log.Info("stop event", "pid", d.pid, "signal", sig.Signal, "code", sig.Code)
	}

	return ev, nil
}

// Step single-steps the child by one instruction. It does not perform the
// disarm/rearm dance of Continue; stepping onto a breakpoint instruction is
// the caller's responsibility.
func (d *Debugger) Step() (trace.StopEvent, error) {
	if err := d.ops.Step(d.pid); err != nil {
		return trace.StopEvent{}, fmt.Errorf("step: %w", err)
	}
	return d.ops.Wait(d.pid)
}

// AddBreakpoint arms a new breakpoint at addr and inserts it into the
// table. A duplicate address or a transient tracing error leaves the table
// untouched.
func (d *Debugger) AddBreakpoint(addr uint64) (int, error) {
	bp := breakpoint.New(d.ops, d.pid, addr)
	idx, err := d.bps.Insert(bp)
	if err != nil {
		return 0, fmt.Errorf("break: %w", err)
	}
	return idx, nil
}

// ReadRegister returns a single register's value, masked and radix-rendered
// per spec.
func (d *Debugger) ReadRegister(name registers.Name, spec format.Spec) (string, error) {
	bank, err := d.ops.GetRegs(d.pid)
	if err != nil {
		return "", fmt.Errorf("registers: %w", err)
	}
	v, ok := bank[name]
	if !ok {
		return "", fmt.Errorf("registers: unknown register %q", name)
	}
	return spec.Format(v), nil
}

// WriteRegister fetches the bank, clears the low width*8 bits of the named
// register, ORs in the trimmed value, and writes the bank back.
func (d *Debugger) WriteRegister(name registers.Name, spec format.Spec, value uint64) error {
	bank, err := d.ops.GetRegs(d.pid)
	if err != nil {
		return fmt.Errorf("registers: %w", err)
	}
	current, ok := bank[name]
	if !ok {
		return fmt.Errorf("registers: unknown register %q", name)
	}

	bank = bank.Clone()
	bank[name] = (current & spec.ClearMask()) | spec.TrimVal(value)

	if err := d.ops.SetRegs(d.pid, bank); err != nil {
		return fmt.Errorf("registers: set: %w", err)
	}
	return nil
}

// ReadMemory reads one word at addr, trims it per spec, and renders it.
func (d *Debugger) ReadMemory(addr uint64, spec format.Spec) (string, error) {
	word, err := d.ops.ReadWord(d.pid, addr)
	if err != nil {
		return "", fmt.Errorf("memory: read %#x: %w", addr, err)
	}
	return spec.Format(word), nil
}

// WriteMemory performs the same masked read-modify-write as WriteRegister,
// against the word at addr.
func (d *Debugger) WriteMemory(addr uint64, spec format.Spec, value uint64) error {
	current, err := d.ops.ReadWord(d.pid, addr)
	if err != nil {
		return fmt.Errorf("memory: read %#x: %w", addr, err)
	}

	updated := (current & spec.ClearMask()) | spec.TrimVal(value)
	if err := d.ops.WriteWord(d.pid, addr, updated); err != nil {
		return fmt.Errorf("memory: write %#x: %w", addr, err)
	}
	return nil
}

// Snapshot captures the child's current registers and stack/heap memory
// and writes it to path.
func (d *Debugger) Snapshot(path string) error {
	doc, err := snapshot.Capture(d.ops, d.pid)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := snapshot.Save(doc, path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// Restore loads a snapshot document from path and restores it, advancing
// the child to reentryPC.
func (d *Debugger) Restore(path string, reentryPC uint64) error {
	doc, err := snapshot.Load(path)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := snapshot.Restore(d.ops, d.pid, doc, reentryPC); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

// SubprogramAt returns the subprogram containing pc, if debug info was
// loaded and a match exists.
func (d *Debugger) SubprogramAt(pc uint64) (*dwarfinfo.Subprogram, error) {
	if d.dwarf == nil {
		return nil, fmt.Errorf("dwarf: no debug info loaded")
	}
	return d.dwarf.SubprogramContaining(pc)
}

// LineRows returns the full line table, if debug info was loaded.
func (d *Debugger) LineRows() ([]dwarfinfo.LineRow, error) {
	if d.dwarf == nil {
		return nil, fmt.Errorf("dwarf: no debug info loaded")
	}
	return d.dwarf.IterateLineRows()
}

// Terminate sends the traced child a kill; NoSuchProcess is swallowed as a
// benign already-dead outcome.
func (d *Debugger) Terminate() error {
	return d.ops.Terminate(d.pid)
}
