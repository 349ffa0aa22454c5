// Package supervisor forks and execs the debuggee with tracing armed and
// address-space randomization disabled, and owns the outer restart loop.
package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/Manu343726/ptdbg/internal/debugger"
	"github.com/Manu343726/ptdbg/internal/dwarfinfo"
	"github.com/Manu343726/ptdbg/internal/trace"
)

// childEntrypointArg, when present as os.Args[1], tells main to run
// RunChildEntrypoint instead of the debugger frontend. Go's runtime does not
// allow issuing arbitrary syscalls between fork and exec (only the small set
// of os/exec's SysProcAttr knobs), so the child side of the traced fork is
// implemented by re-executing this same binary: a technique borrowed from
// how container runtimes re-enter themselves to run namespace setup before
// the real workload starts.
const childEntrypointArg = "__ptdbg_trace_child__"

// addrNoRandomize is ADDR_NO_RANDOMIZE from <linux/personality.h>; not
// exported as a named constant by golang.org/x/sys/unix on every platform,
// so it is reproduced here directly.
const addrNoRandomize = 0x0040000

// IsChildEntrypoint reports whether the process was re-invoked as the
// traced-child helper, i.e. args (os.Args[1:]) starts with the internal
// marker.
func IsChildEntrypoint(args []string) bool {
	return len(args) > 0 && args[0] == childEntrypointArg
}

// RunChildEntrypoint marks the current process traceable, disables ASLR for
// it, and execs the debuggee image. It never returns on success; on failure
// it returns an error for the caller to report before exiting.
func RunChildEntrypoint(debuggeePath string) error {
	if err := unix.PtraceTraceMe(); err != nil {
		return fmt.Errorf("child: traceme: %w", err)
	}
	if _, err := unix.Personality(addrNoRandomize); err != nil {
		return fmt.Errorf("child: disable aslr: %w", err)
	}

	argv := []string{debuggeePath}
	if err := unix.Exec(debuggeePath, argv, os.Environ()); err != nil {
		return fmt.Errorf("child: exec %s: %w", debuggeePath, err)
	}
	return nil // unreachable: Exec only returns on error
}

// Session is run once per fork/exec cycle, with a fresh Debugger bound to
// the new child. Its return value tells the outer loop whether to restart.
type Session func(d *debugger.Debugger) debugger.Verdict

// Supervisor owns the debuggee path, the tracing backend, and the
// (optionally nil) pre-loaded debug-info handle, which is loaded once before
// the restart loop begins.
type Supervisor struct {
	ops          trace.Ops
	debuggeePath string
	selfPath     string
	dwarf        *dwarfinfo.Handle
	log          *slog.Logger
}

// New constructs a Supervisor. dwarf may be nil if no debug info was loaded.
func New(ops trace.Ops, debuggeePath string, dwarf *dwarfinfo.Handle, log *slog.Logger) (*Supervisor, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("supervisor: resolve self path: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{ops: ops, debuggeePath: debuggeePath, selfPath: self, dwarf: dwarf, log: log}, nil
}

// Run executes the fork/exec/restart loop: fork (via re-exec), wait for the
// post-exec trap, build a Debugger, run session,
// terminate the child, and repeat unless session returned VerdictExit.
//
// Every ptrace(2) request for a tracee must originate from the OS thread
// that attached to it; an unlocked goroutine can be migrated by the Go
// scheduler mid-session and start failing with ESRCH. Run and everything it
// calls (the command loop, which issues every tracing call) stays pinned to
// one OS thread for the supervisor's lifetime.
func (s *Supervisor) Run(session Session) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		cmd := exec.Command(s.selfPath, childEntrypointArg, s.debuggeePath)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("supervisor: fork debuggee: %w", err)
		}

		pid := cmd.Process.Pid
		if _, err := s.ops.Wait(pid); err != nil {
			return fmt.Errorf("supervisor: wait for initial stop: %w", err)
		}

		s.log.Info("debuggee stopped at entry", "pid", pid, "path", s.debuggeePath)

		d := debugger.New(s.ops, pid, s.dwarf, s.log)
		verdict := session(d)

		if err := d.Terminate(); err != nil {
			s.log.Warn("terminate failed", "pid", pid, "error", err)
		}

		if verdict == debugger.VerdictExit {
			return nil
		}
	}
}
