// Package snapshot captures and restores a partial execution state,
// registers plus anonymous stack/heap memory, as a persistable document.
// The document is serialized as YAML, a self-describing text format,
// built on the same gopkg.in/yaml.v3 dependency the config loader (viper)
// already pulls in.
package snapshot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Manu343726/ptdbg/internal/memmap"
	"github.com/Manu343726/ptdbg/internal/registers"
	"github.com/Manu343726/ptdbg/internal/trace"
)

// Document is the persisted shape of a Snapshot: a name->value register map
// and ascending-address word sequences for stack and heap.
// Fields are little-endian within each sequence, matching native word order
// on this platform.
type Document struct {
	Registers map[string]uint64 `yaml:"registers"`
	Stack     []uint64          `yaml:"stack"`
	Heap      []uint64          `yaml:"heap"`
}

// Capture reads the child's registers and every stack/heap word, in
// ascending address order, and returns the document to persist.
func Capture(ops trace.Ops, pid int) (Document, error) {
	bank, err := ops.GetRegs(pid)
	if err != nil {
		return Document{}, fmt.Errorf("snapshot: get regs: %w", err)
	}

	regions, err := memmap.Read(pid)
	if err != nil {
		return Document{}, fmt.Errorf("snapshot: read memory map: %w", err)
	}

	stackWords, err := readRegions(ops, pid, memmap.Filter(regions, memmap.KindStack))
	if err != nil {
		return Document{}, fmt.Errorf("snapshot: read stack: %w", err)
	}

	// Multiple heap regions, if present, are concatenated in map order.
	heapWords, err := readRegions(ops, pid, memmap.Filter(regions, memmap.KindHeap))
	if err != nil {
		return Document{}, fmt.Errorf("snapshot: read heap: %w", err)
	}

	doc := Document{
		Registers: make(map[string]uint64, len(bank)),
		Stack:     stackWords,
		Heap:      heapWords,
	}
	for name, v := range bank {
		doc.Registers[string(name)] = v
	}
	return doc, nil
}

func readRegions(ops trace.Ops, pid int, regions []memmap.Region) ([]uint64, error) {
	var words []uint64
	for _, region := range regions {
		for addr := region.Start; addr < region.End; addr += 8 {
			w, err := ops.ReadWord(pid, addr)
			if err != nil {
				return nil, err
			}
			words = append(words, w)
		}
	}
	return words, nil
}

// Save writes doc to path as YAML.
func Save(doc Document, path string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a snapshot document from path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("snapshot: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("snapshot: unmarshal %s: %w", path, err)
	}
	return doc, nil
}

// Restore writes the document's stack/heap words back into the child's
// current stack/heap regions, advances the child to reentryPC by arming a
// one-shot breakpoint there, and finally restores registers.
//
// Restore assumes a single heap region at restore time; if the live
// process has more than one heap region, only the first receives the
// concatenated heap words. This is a known limitation, not a correctness
// guarantee.
func Restore(ops trace.Ops, pid int, doc Document, reentryPC uint64) error {
	regions, err := memmap.Read(pid)
	if err != nil {
		return fmt.Errorf("snapshot: restore: read memory map: %w", err)
	}

	stackRegions := memmap.Filter(regions, memmap.KindStack)
	if len(stackRegions) == 0 {
		return fmt.Errorf("snapshot: restore: no stack region found")
	}
	if err := writeWords(ops, pid, stackRegions[0].Start, doc.Stack); err != nil {
		return fmt.Errorf("snapshot: restore stack: %w", err)
	}

	heapRegions := memmap.Filter(regions, memmap.KindHeap)
	if len(doc.Heap) > 0 {
		if len(heapRegions) == 0 {
			return fmt.Errorf("snapshot: restore: no heap region found")
		}
		if err := writeWords(ops, pid, heapRegions[0].Start, doc.Heap); err != nil {
			return fmt.Errorf("snapshot: restore heap: %w", err)
		}
	}

	if err := advanceToReentry(ops, pid, reentryPC); err != nil {
		return fmt.Errorf("snapshot: restore: advance to reentry pc %#x: %w", reentryPC, err)
	}

	// advanceToReentry leaves rip == reentryPC; it's only a landing spot to
	// resume execution from, and the SetRegs below intentionally overwrites
	// it (along with everything else) with the captured bank.
	bank := make(registers.Bank, len(doc.Registers))
	for name, v := range doc.Registers {
		bank[registers.Name(name)] = v
	}
	if err := ops.SetRegs(pid, bank); err != nil {
		return fmt.Errorf("snapshot: restore: set regs: %w", err)
	}
	return nil
}

func writeWords(ops trace.Ops, pid int, start uint64, words []uint64) error {
	for i, w := range words {
		if err := ops.WriteWord(pid, start+uint64(i)*8, w); err != nil {
			return err
		}
	}
	return nil
}

// advanceToReentry arms a one-shot breakpoint at pc, continues, waits for
// the trap, then disarms it, leaving the child stopped at pc.
func advanceToReentry(ops trace.Ops, pid int, pc uint64) error {
	word, err := ops.ReadWord(pid, pc)
	if err != nil {
		return err
	}
	saved := byte(word)

	if err := ops.WriteWord(pid, pc, (word&^0xff)|0xCC); err != nil {
		return err
	}

	if err := ops.Cont(pid, 0); err != nil {
		return err
	}
	if _, err := ops.Wait(pid); err != nil {
		return err
	}

	restoredWord, err := ops.ReadWord(pid, pc)
	if err != nil {
		return err
	}
	if err := ops.WriteWord(pid, pc, (restoredWord&^0xff)|uint64(saved)); err != nil {
		return err
	}

	bank, err := ops.GetRegs(pid)
	if err != nil {
		return err
	}
	bank = bank.Clone()
	bank[registers.RIP] = pc
	return ops.SetRegs(pid, bank)
}
