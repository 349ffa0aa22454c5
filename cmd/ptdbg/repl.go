package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Manu343726/ptdbg/internal/debugger"
	"github.com/Manu343726/ptdbg/internal/format"
	"github.com/Manu343726/ptdbg/internal/registers"
	"github.com/Manu343726/ptdbg/internal/trace"
)

// session drives one interactive command loop bound to a single traced
// child, mirroring the CPU debugger's debugSession/executeCommand split but
// against the real ptrace-backed Debugger core.
type session struct {
	dbg          *debugger.Debugger
	rl           *readline.Instance
	lastCmd      string
	snapshotPath string
	reentryPC    uint64
}

// runSession reads commands until the user asks to exit or to restart, or
// input ends (EOF, interrupt or a read error, all treated as exit), returning
// the verdict the supervisor acts on. A child that exits does not end the
// loop by itself.
func runSession(d *debugger.Debugger, rl *readline.Instance, snapshotPath string, reentryPC uint64) debugger.Verdict {
	s := &session{dbg: d, rl: rl, snapshotPath: snapshotPath, reentryPC: reentryPC}

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return debugger.VerdictExit
			}
			colorError.Printf("input error: %v\n", err)
			return debugger.VerdictExit
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = s.lastCmd
		}
		if line == "" {
			continue
		}
		s.lastCmd = line

		if verdict, done := s.dispatch(line); done {
			return verdict
		}
	}
}

// dispatch executes one command line. The bool return reports whether the
// session loop must end, in which case verdict carries the supervisor's
// next action.
func (s *session) dispatch(line string) (debugger.Verdict, bool) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "continue", "cont", "c":
		s.cmdContinue()
	case "s", "si":
		s.cmdStep()
	case "break", "breakpoint", "b":
		s.cmdBreak(args)
	case "registers", "regs", "r":
		s.cmdRegisters(args)
	case "memory", "mem", "m":
		s.cmdMemory(args)
	case "snapshot":
		s.cmdSnapshot()
	case "restore":
		s.cmdRestore(args)
	case "dwarf":
		s.cmdDwarf()
	case "exit":
		colorSuccess.Println("exiting")
		return debugger.VerdictExit, true
	case "restart":
		colorWarning.Println("restarting debuggee")
		return debugger.VerdictRestart, true
	default:
		colorError.Printf("unknown command: %s\n", cmd)
	}
	return debugger.VerdictContinue, false
}

func (s *session) cmdContinue() {
	ev, err := s.dbg.Continue()
	if err != nil {
		colorError.Printf("continue: %v\n", err)
		return
	}
	printStopEvent(ev)
}

func (s *session) cmdStep() {
	ev, err := s.dbg.Step()
	if err != nil {
		colorError.Printf("step: %v\n", err)
		return
	}
	printStopEvent(ev)
}

// cmdBreak implements `break <addr>`, `break list`/`b l`, `break
// enable|disable|delete <idx>`.
func (s *session) cmdBreak(args []string) {
	if len(args) == 0 {
		colorError.Println("break: address or subcommand required")
		return
	}

	switch args[0] {
	case "list", "l":
		s.cmdBreakList()
		return
	case "enable", "e":
		s.cmdBreakIndexed(args[1:], s.dbg.Breakpoints().Enable, "enable")
		return
	case "disable", "d":
		s.cmdBreakIndexed(args[1:], s.dbg.Breakpoints().Disable, "disable")
		return
	case "delete", "de":
		s.cmdBreakIndexed(args[1:], s.dbg.Breakpoints().Delete, "delete")
		return
	}

	addr, err := parseAddr(args[0])
	if err != nil {
		colorError.Printf("break: %v\n", err)
		return
	}

	idx, err := s.dbg.AddBreakpoint(addr)
	if err != nil {
		colorError.Printf("break: %v\n", err)
		return
	}
	colorSuccess.Printf("breakpoint %d armed at %s\n", idx, colorAddr.Sprintf("%#x", addr))
}

func (s *session) cmdBreakList() {
	entries := s.dbg.Breakpoints().IterLive()
	if len(entries) == 0 {
		fmt.Println("no breakpoints")
		return
	}
	for _, e := range entries {
		armed := colorBreakpoint.Sprintf("%v", e.Bp.Armed())
		fmt.Printf("%d: %s: %s\n", e.Index, armed, colorAddr.Sprintf("%#x", e.Bp.Addr()))
	}
}

func (s *session) cmdBreakIndexed(args []string, op func(int) error, verb string) {
	if len(args) != 1 {
		colorError.Printf("break %s: index required\n", verb)
		return
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		colorError.Printf("break %s: bad index %q\n", verb, args[0])
		return
	}
	if err := op(idx); err != nil {
		colorError.Printf("break %s: %v\n", verb, err)
		return
	}
	colorSuccess.Printf("breakpoint %d %sd\n", idx, verb)
}

// cmdRegisters implements bare `registers`, the FormatSpec read form, and
// the FormatSpec write form.
func (s *session) cmdRegisters(args []string) {
	if len(args) == 0 {
		s.dumpAllRegisters()
		return
	}

	spec, err := format.Parse(args[0])
	if err != nil {
		colorError.Printf("registers: %v\n", err)
		return
	}

	if spec.Direction == format.DirectionWrite {
		if len(args) != 3 {
			colorError.Println("registers: write form is `registers w<fmt> <name> <val>`")
			return
		}
		value, err := parseAddr(args[2])
		if err != nil {
			colorError.Printf("registers: %v\n", err)
			return
		}
		if err := s.dbg.WriteRegister(registers.Name(args[1]), spec, value); err != nil {
			colorError.Printf("registers: %v\n", err)
			return
		}
		colorSuccess.Printf("%s <- %s\n", colorReg.Sprint(args[1]), colorValue.Sprint(spec.Format(value)))
		return
	}

	for _, name := range args[1:] {
		out, err := s.dbg.ReadRegister(registers.Name(name), spec)
		if err != nil {
			colorError.Printf("registers: %v\n", err)
			continue
		}
		fmt.Printf("%s: %s\n", colorReg.Sprint(name), colorValue.Sprint(out))
	}
}

func (s *session) dumpAllRegisters() {
	spec, _ := format.Parse("r8x")
	for _, name := range registers.All {
		out, err := s.dbg.ReadRegister(name, spec)
		if err != nil {
			colorError.Printf("registers: %v\n", err)
			continue
		}
		fmt.Printf("%-10s %s\n", colorReg.Sprint(string(name)), colorValue.Sprint(out))
	}
}

// cmdMemory implements `memory r<fmt> <addr>` / `memory w<fmt> <addr>
// <val>`.
func (s *session) cmdMemory(args []string) {
	if len(args) < 2 {
		colorError.Println("memory: usage `memory r<fmt> <addr>` or `memory w<fmt> <addr> <val>`")
		return
	}

	spec, err := format.Parse(args[0])
	if err != nil {
		colorError.Printf("memory: %v\n", err)
		return
	}
	addr, err := parseAddr(args[1])
	if err != nil {
		colorError.Printf("memory: %v\n", err)
		return
	}

	if spec.Direction == format.DirectionWrite {
		if len(args) != 3 {
			colorError.Println("memory: write form is `memory w<fmt> <addr> <val>`")
			return
		}
		value, err := parseAddr(args[2])
		if err != nil {
			colorError.Printf("memory: %v\n", err)
			return
		}
		if err := s.dbg.WriteMemory(addr, spec, value); err != nil {
			colorError.Printf("memory: %v\n", err)
			return
		}
		colorSuccess.Printf("%s <- %s\n", colorAddr.Sprintf("%#x", addr), colorValue.Sprint(spec.Format(value)))
		return
	}

	out, err := s.dbg.ReadMemory(addr, spec)
	if err != nil {
		colorError.Printf("memory: %v\n", err)
		return
	}
	fmt.Printf("%s: %s\n", colorAddr.Sprintf("%#x", addr), colorValue.Sprint(out))
}

func (s *session) cmdSnapshot() {
	if err := s.dbg.Snapshot(s.snapshotPath); err != nil {
		colorError.Printf("snapshot: %v\n", err)
		return
	}
	colorSuccess.Printf("snapshot written to %s\n", s.snapshotPath)
}

func (s *session) cmdRestore(args []string) {
	if len(args) == 0 {
		colorError.Println("restore: path required")
		return
	}
	path := args[0]

	reentry := s.reentryPC
	if len(args) > 1 {
		v, err := parseAddr(args[1])
		if err != nil {
			colorError.Printf("restore: %v\n", err)
			return
		}
		reentry = v
	}
	if reentry == 0 {
		colorError.Println("restore: no re-entry pc configured; pass one as a second argument")
		return
	}

	if err := s.dbg.Restore(path, reentry); err != nil {
		colorError.Printf("restore: %v\n", err)
		return
	}
	colorSuccess.Printf("restored from %s, resumed at %s\n", path, colorAddr.Sprintf("%#x", reentry))
}

// cmdDwarf looks up the subprogram containing the current rip, then dumps
// the line table.
func (s *session) cmdDwarf() {
	spec, _ := format.Parse("r8x")
	ripStr, err := s.dbg.ReadRegister(registers.RIP, spec)
	if err != nil {
		colorError.Printf("dwarf: %v\n", err)
		return
	}
	rip, err := strconv.ParseUint(strings.TrimPrefix(ripStr, "0x"), 16, 64)
	if err != nil {
		colorError.Printf("dwarf: %v\n", err)
		return
	}

	sub, err := s.dbg.SubprogramAt(rip)
	if err != nil {
		colorError.Printf("dwarf: %v\n", err)
		return
	}
	if sub == nil {
		fmt.Printf("no subprogram contains %s\n", colorAddr.Sprintf("%#x", rip))
	} else {
		fmt.Printf("%s: %s [%s, %s)\n", sub.Name,
			colorAddr.Sprintf("%#x", rip),
			colorAddr.Sprintf("%#x", sub.LowPC),
			colorAddr.Sprintf("%#x", sub.LowPC+sub.HighPCOffset))
	}

	rows, err := s.dbg.LineRows()
	if err != nil {
		colorError.Printf("dwarf: %v\n", err)
		return
	}
	for _, row := range rows {
		fmt.Printf("%s  %s\n", colorAddr.Sprintf("%#x", row.Address), colorSourceFile.Sprint(row.File))
	}
}

// printStopEvent prints the wait() outcome. The child's signal info
// diagnostic is logged by Debugger.Continue, not printed here.
func printStopEvent(ev trace.StopEvent) {
	switch {
	case ev.Exited:
		colorWarning.Printf("child exited with code %d\n", ev.ExitCode)
	case ev.Signaled:
		colorWarning.Printf("child killed by signal %v\n", ev.Signal)
	case ev.Stopped:
		fmt.Printf("stopped: signal %v\n", ev.StopSig)
	}
}

// parseAddr accepts both "0x"-prefixed hex and plain decimal.
func parseAddr(s string) (uint64, error) {
	base, digits := 10, s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base, digits = 16, s[2:]
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric literal %q: %w", s, err)
	}
	return v, nil
}
