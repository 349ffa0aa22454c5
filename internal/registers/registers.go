// Package registers models the x86-64 register bank exposed by the kernel's
// tracing primitive as a closed, named mapping, so the rest of the debugger
// never has to pattern-match on a 27-field struct.
package registers

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Name is one of the 27 register names the debugger understands.
type Name string

// The closed enumeration of register names exposed by the traced process.
const (
	RAX     Name = "rax"
	RBX     Name = "rbx"
	RCX     Name = "rcx"
	RDX     Name = "rdx"
	RDI     Name = "rdi"
	RSI     Name = "rsi"
	RBP     Name = "rbp"
	RSP     Name = "rsp"
	R8      Name = "r8"
	R9      Name = "r9"
	R10     Name = "r10"
	R11     Name = "r11"
	R12     Name = "r12"
	R13     Name = "r13"
	R14     Name = "r14"
	R15     Name = "r15"
	RIP     Name = "rip"
	Eflags  Name = "eflags"
	CS      Name = "cs"
	DS      Name = "ds"
	ES      Name = "es"
	FS      Name = "fs"
	GS      Name = "gs"
	FSBase  Name = "fs_base"
	GSBase  Name = "gs_base"
	SS      Name = "ss"
	OrigRax Name = "orig_rax"
)

// All lists every register name in a stable, display-friendly order.
var All = []Name{
	RAX, RBX, RCX, RDX, RDI, RSI, RBP, RSP,
	R8, R9, R10, R11, R12, R13, R14, R15,
	RIP, Eflags, CS, DS, ES, FS, GS, FSBase, GSBase, SS, OrigRax,
}

// Bank is the by-name view of a RegisterBank. FromRaw always fills all 27
// names, and ToRaw panics if any of them is missing. Lookups are plain map
// lookups: a name outside the set yields ok == false and does not panic.
type Bank map[Name]uint64

// FromRaw converts the kernel's unix.PtraceRegs struct into a Bank.
func FromRaw(r *unix.PtraceRegs) Bank {
	return Bank{
		RAX: r.Rax, RBX: r.Rbx, RCX: r.Rcx, RDX: r.Rdx,
		RDI: r.Rdi, RSI: r.Rsi, RBP: r.Rbp, RSP: r.Rsp,
		R8: r.R8, R9: r.R9, R10: r.R10, R11: r.R11,
		R12: r.R12, R13: r.R13, R14: r.R14, R15: r.R15,
		RIP: r.Rip, Eflags: r.Eflags,
		CS: r.Cs, DS: r.Ds, ES: r.Es, FS: r.Fs, GS: r.Gs,
		FSBase: r.Fs_base, GSBase: r.Gs_base,
		SS: r.Ss, OrigRax: r.Orig_rax,
	}
}

// ToRaw converts a Bank back into a unix.PtraceRegs struct. Every register
// not present in the Bank is a programming bug: get/set must cover the full
// set, so a missing key indicates the caller built an incomplete Bank
// rather than a legitimate
// partial update (partial register writes are handled by Read-Modify-Write
// in the caller, not by a sparse Bank reaching ToRaw).
func ToRaw(b Bank) unix.PtraceRegs {
	get := func(n Name) uint64 {
		v, ok := b[n]
		if !ok {
			panic(fmt.Sprintf("registers: bank missing required register %q", n))
		}
		return v
	}

	return unix.PtraceRegs{
		Rax: get(RAX), Rbx: get(RBX), Rcx: get(RCX), Rdx: get(RDX),
		Rdi: get(RDI), Rsi: get(RSI), Rbp: get(RBP), Rsp: get(RSP),
		R8: get(R8), R9: get(R9), R10: get(R10), R11: get(R11),
		R12: get(R12), R13: get(R13), R14: get(R14), R15: get(R15),
		Rip: get(RIP), Eflags: get(Eflags),
		Cs: get(CS), Ds: get(DS), Es: get(ES), Fs: get(FS), Gs: get(GS),
		Fs_base: get(FSBase), Gs_base: get(GSBase),
		Ss: get(SS), Orig_rax: get(OrigRax),
	}
}

// Clone returns a shallow copy of the bank (maps are reference types, so
// callers that modify a bank they did not build use this to leave the
// original untouched).
func (b Bank) Clone() Bank {
	out := make(Bank, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Valid reports whether name is one of the 27 known register names.
func Valid(name Name) bool {
	for _, n := range All {
		if n == name {
			return true
		}
	}
	return false
}
