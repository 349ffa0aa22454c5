// Package dwarfinfo loads the DWARF debug sections from a debuggee's ELF
// image and answers the two queries the debugger needs: which subprogram
// contains a given PC, and the full address->file line table.
//
// No repository in the retrieval pack parses DWARF from Go, so the
// standard library's debug/dwarf and debug/elf are used instead, the same
// packages delve itself builds its own DWARF layer on top of. See
// DESIGN.md for the full justification.
package dwarfinfo

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
)

// Subprogram is a resolved DW_TAG_subprogram entry: a name and the half
// -open PC range it covers, [LowPC, LowPC+HighPCOffset) per the
// high-pc-as-offset convention of DWARF v4+.
type Subprogram struct {
	Name         string
	LowPC        uint64
	HighPCOffset uint64
}

// Contains reports whether pc falls within the subprogram's range.
func (s Subprogram) Contains(pc uint64) bool {
	return pc >= s.LowPC && pc < s.LowPC+s.HighPCOffset
}

// LineRow is one resolved (address, source file) pair from the line
// number program.
type LineRow struct {
	Address uint64
	File    string
}

// Handle is the opaque, pre-parsed debug-info bundle held immutably for the
// debugger's lifetime. It is loaded once
// before the supervisor's restart loop begins since the
// binary image does not change between restarts.
type Handle struct {
	data *dwarf.Data
}

// Load opens path as an ELF image and parses its DWARF sections.
func Load(path string) (*Handle, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dwarfinfo: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("dwarfinfo: load dwarf sections from %s: %w", path, err)
	}

	return &Handle{data: data}, nil
}

// SubprogramContaining iterates every compilation unit's debug entries,
// considers those tagged DW_TAG_subprogram, and returns the first one whose
// [low_pc, low_pc+high_pc) range contains pc. Returns nil if
// none matches.
func (h *Handle) SubprogramContaining(pc uint64) (*Subprogram, error) {
	reader := h.data.Reader()

	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("dwarfinfo: read entries: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}

		low, ok := entry.Val(dwarf.AttrLowpc).(uint64)
		if !ok {
			continue
		}

		high, ok := highPCOffset(entry, low)
		if !ok {
			continue
		}

		if pc >= low && pc < low+high {
			name, _ := entry.Val(dwarf.AttrName).(string)
			return &Subprogram{Name: name, LowPC: low, HighPCOffset: high}, nil
		}
	}

	return nil, nil
}

// highPCOffset extracts DW_AT_high_pc as an offset from low, handling both
// the DWARF v4+ "offset" encoding (a plain integer class attribute) and the
// older "absolute address" encoding by subtracting low from it.
func highPCOffset(entry *dwarf.Entry, low uint64) (uint64, bool) {
	val := entry.Val(dwarf.AttrHighpc)
	if val == nil {
		return 0, false
	}

	switch v := val.(type) {
	case uint64:
		if v >= low {
			return v - low, true
		}
		return v, true
	case int64:
		return uint64(v), true
	default:
		return 0, false
	}
}

// IterateLineRows resumes the row machine for every sequence in every
// compilation unit's line program and yields (address, file) for each row,
// resolving the row's file entry through the program header's file table.
func (h *Handle) IterateLineRows() ([]LineRow, error) {
	var all []LineRow

	reader := h.data.Reader()
	for {
		cu, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("dwarfinfo: read compilation units: %w", err)
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			continue
		}

		lr, err := h.data.LineReader(cu)
		if err != nil {
			continue
		}
		if lr == nil {
			continue
		}

		var entry dwarf.LineEntry
		for {
			if err := lr.Next(&entry); err != nil {
				break
			}
			file := ""
			if entry.File != nil {
				file = entry.File.Name
			}
			all = append(all, LineRow{Address: entry.Address, File: file})
		}

		reader.SkipChildren()
	}

	return all, nil
}
