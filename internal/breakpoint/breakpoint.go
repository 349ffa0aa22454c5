// Package breakpoint implements software breakpoints by patching the
// traced child's text with the 0xCC trap instruction, and a stable-index
// registry of them.
package breakpoint

import (
	"fmt"

	"github.com/Manu343726/ptdbg/internal/ptdbgerr"
	"github.com/Manu343726/ptdbg/internal/trace"
)

const trapByte = 0xCC

// ErrDuplicateAddress is returned by Table.Insert when addr is already live.
var ErrDuplicateAddress = fmt.Errorf("breakpoint: duplicate address")

// ErrNotFound is returned by index-addressed Table operations when idx is
// out of range or tombstoned.
var ErrNotFound = fmt.Errorf("breakpoint: index not found")

// Breakpoint is a single software breakpoint bound to one traced process.
// armed is true iff the byte at addr currently holds 0xCC and saved holds
// the byte that was there before arming.
type Breakpoint struct {
	ops    trace.Ops
	pid    int
	addr   uint64
	saved  byte
	armed  bool
	primed bool // saved has been populated by at least one Arm
}

// New constructs a disarmed breakpoint; it performs no kernel interaction.
func New(ops trace.Ops, pid int, addr uint64) *Breakpoint {
	return &Breakpoint{ops: ops, pid: pid, addr: addr}
}

// Addr returns the breakpoint's address.
func (b *Breakpoint) Addr() uint64 { return b.addr }

// Armed reports whether the breakpoint is currently patched into the text.
func (b *Breakpoint) Armed() bool { return b.armed }

// SavedByte returns the byte the breakpoint will restore on Disarm. Only
// meaningful once the breakpoint has been armed at least once.
func (b *Breakpoint) SavedByte() byte { return b.saved }

// Arm reads the word at addr, saves its low byte, and writes 0xCC into that
// byte. Arming an already-armed breakpoint does nothing, so the saved byte
// stays the original one. A read failure is returned as a wrapped I/O error.
// A write failure after a successful read is also returned wrapped, with its
// message marked fatal because the text may be left half-patched; Arm does
// not escalate it further, and its callers report it like any other error.
func (b *Breakpoint) Arm() error {
	if b.armed {
		return nil
	}

	word, err := b.ops.ReadWord(b.pid, b.addr)
	if err != nil {
		return fmt.Errorf("arm breakpoint at %#x: %w", b.addr, err)
	}

	b.saved = byte(word)
	b.primed = true

	patched := (word &^ 0xff) | trapByte
	if err := b.ops.WriteWord(b.pid, b.addr, patched); err != nil {
		return fmt.Errorf("arm breakpoint at %#x: write failed after read succeeded (fatal): %w", b.addr, err)
	}

	b.armed = true
	return nil
}

// Disarm reads the current word, restores the saved low byte, and writes
// it back. Calling Disarm on a breakpoint that has never been armed does
// nothing and returns nil.
func (b *Breakpoint) Disarm() error {
	if !b.primed {
		return nil
	}

	word, err := b.ops.ReadWord(b.pid, b.addr)
	if err != nil {
		return fmt.Errorf("disarm breakpoint at %#x: %w", b.addr, err)
	}

	restored := (word &^ 0xff) | uint64(b.saved)
	if err := b.ops.WriteWord(b.pid, b.addr, restored); err != nil {
		return fmt.Errorf("disarm breakpoint at %#x: %w", b.addr, err)
	}

	b.armed = false
	return nil
}

// slot is one entry in Table's sparse vector: either a live breakpoint or a
// tombstone from a prior delete.
type slot struct {
	bp        *Breakpoint
	tombstone bool
}

// Table is the stable-index, duplicate-address-rejecting breakpoint
// registry. Indices are never reused, even after Delete; deletion
// tombstones the slot instead of compacting it.
type Table struct {
	slots     []slot
	liveAddrs map[uint64]int // addr -> index, for live slots only
}

// NewTable creates an empty breakpoint table.
func NewTable() *Table {
	return &Table{liveAddrs: make(map[uint64]int)}
}

// Insert arms bp and appends it to the table, returning its stable index.
// If bp's address is already live, the breakpoint is left untouched (not
// armed, not inserted) and ErrDuplicateAddress is returned.
func (t *Table) Insert(bp *Breakpoint) (int, error) {
	if _, dup := t.liveAddrs[bp.Addr()]; dup {
		return 0, ptdbgerr.Wrap(ErrDuplicateAddress, "%#x", bp.Addr())
	}

	if err := bp.Arm(); err != nil {
		return 0, err
	}

	idx := len(t.slots)
	t.slots = append(t.slots, slot{bp: bp})
	t.liveAddrs[bp.Addr()] = idx
	return idx, nil
}

// Delete disarms and tombstones the slot at idx. The index is never handed
// out again.
func (t *Table) Delete(idx int) error {
	s, err := t.liveSlot(idx)
	if err != nil {
		return err
	}

	if err := s.bp.Disarm(); err != nil {
		return err
	}

	delete(t.liveAddrs, s.bp.Addr())
	t.slots[idx] = slot{tombstone: true}
	return nil
}

// Enable arms the breakpoint at idx.
func (t *Table) Enable(idx int) error {
	s, err := t.liveSlot(idx)
	if err != nil {
		return err
	}
	return s.bp.Arm()
}

// Disable disarms the breakpoint at idx.
func (t *Table) Disable(idx int) error {
	s, err := t.liveSlot(idx)
	if err != nil {
		return err
	}
	return s.bp.Disarm()
}

// ContainsAddr reports whether addr currently has a live breakpoint.
func (t *Table) ContainsAddr(addr uint64) bool {
	_, ok := t.liveAddrs[addr]
	return ok
}

// FindByAddr returns the index of the live breakpoint at addr, if any.
func (t *Table) FindByAddr(addr uint64) (int, bool) {
	idx, ok := t.liveAddrs[addr]
	return idx, ok
}

// Get returns the breakpoint at idx if the slot is live.
func (t *Table) Get(idx int) (*Breakpoint, error) {
	s, err := t.liveSlot(idx)
	if err != nil {
		return nil, err
	}
	return s.bp, nil
}

// Entry is a (index, breakpoint) pair yielded by IterLive.
type Entry struct {
	Index int
	Bp    *Breakpoint
}

// IterLive returns every non-tombstoned slot in index order.
func (t *Table) IterLive() []Entry {
	var out []Entry
	for i, s := range t.slots {
		if !s.tombstone {
			out = append(out, Entry{Index: i, Bp: s.bp})
		}
	}
	return out
}

func (t *Table) liveSlot(idx int) (slot, error) {
	if idx < 0 || idx >= len(t.slots) || t.slots[idx].tombstone {
		return slot{}, ptdbgerr.Wrap(ErrNotFound, "%d", idx)
	}
	return t.slots[idx], nil
}
