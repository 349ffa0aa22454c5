// Package format parses the short width/radix/direction specifier used by
// the register and memory read/write commands, and trims 64-bit words to a
// requested byte width.
package format

import (
	"fmt"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/Manu343726/ptdbg/internal/ptdbgerr"
)

// Direction selects whether a FormatSpec describes a read or a write.
type Direction int

const (
	// DirectionNone is the zero value; never valid on a parsed spec.
	DirectionNone Direction = iota
	DirectionRead
	DirectionWrite
)

// Radix selects how a trimmed value should be rendered.
type Radix int

const (
	RadixHex Radix = iota
	RadixUnsignedDecimal
	RadixSignedDecimal
)

// PointerWidthBytes is the native pointer width on the supported x86-64 host.
const PointerWidthBytes = 8

// ErrInvalidSpec is the sentinel wrapped by every FormatSpec parse failure.
var ErrInvalidSpec = fmt.Errorf("invalid format specifier")

// Spec is the parsed (direction, radix, width) triple.
type Spec struct {
	Direction Direction
	Radix     Radix
	Width     int // bytes: 1, 2, 4, or 8
}

// Parse validates and parses a format string made of the legal characters
// {1,2,4,8,r,w,x,u,d}. Exactly one of r/w is required; at most one radix
// character and at most one width character are allowed; any other rune, or
// a duplicate within a category, is rejected.
func Parse(s string) (Spec, error) {
	const legal = "1248rwxud"

	var rCount, wCount int
	var radixCount int
	var widthCount int

	spec := Spec{
		Radix: RadixHex,
		Width: PointerWidthBytes,
	}

	for _, ch := range s {
		if !strings.ContainsRune(legal, ch) {
			return Spec{}, ptdbgerr.Wrap(ErrInvalidSpec, "illegal character %q in %q", ch, s)
		}

		switch ch {
		case 'r':
			rCount++
			spec.Direction = DirectionRead
		case 'w':
			wCount++
			spec.Direction = DirectionWrite
		case 'x':
			radixCount++
			spec.Radix = RadixHex
		case 'u':
			radixCount++
			spec.Radix = RadixUnsignedDecimal
		case 'd':
			radixCount++
			spec.Radix = RadixSignedDecimal
		case '1', '2', '4', '8':
			widthCount++
			spec.Width = int(ch - '0')
		}
	}

	if rCount+wCount != 1 {
		return Spec{}, ptdbgerr.Wrap(ErrInvalidSpec, "exactly one of 'r'/'w' required, got %d in %q", rCount+wCount, s)
	}
	if radixCount > 1 {
		return Spec{}, ptdbgerr.Wrap(ErrInvalidSpec, "multiple radix characters in %q", s)
	}
	if widthCount > 1 {
		return Spec{}, ptdbgerr.Wrap(ErrInvalidSpec, "multiple width characters in %q", s)
	}

	return spec, nil
}

// allOnes returns a mask of the low `bits` bits of an unsigned integer type.
// Go defines a left shift by the full width of the type as yielding zero
// rather than undefined behavior, so allOnes[uint64](64) computes as
// (0 - 1), which wraps around to all ones instead of requiring a special
// case for the width=8 edge case in mask64 below.
func allOnes[T constraints.Unsigned](bits int) T {
	return (T(1) << uint(bits)) - T(1)
}

// mask64 returns a mask with the low width*8 bits set.
func mask64(widthBytes int) uint64 {
	return allOnes[uint64](widthBytes * 8)
}

// TrimVal masks v down to s's width, discarding higher bits.
func (s Spec) TrimVal(v uint64) uint64 {
	return v & mask64(s.Width)
}

// ClearMask returns the mask to AND against a full word before OR-ing in a
// trimmed value at width s.Width: all bits *above* position width*8 are kept,
// the low width*8 bits are cleared. At width=8 this evaluates to 0, i.e. the
// entire word is overwritten.
func (s Spec) ClearMask() uint64 {
	return ^mask64(s.Width)
}

// Format renders a trimmed value in s's radix.
func (s Spec) Format(v uint64) string {
	trimmed := s.TrimVal(v)
	switch s.Radix {
	case RadixHex:
		return fmt.Sprintf("0x%x", trimmed)
	case RadixUnsignedDecimal:
		return fmt.Sprintf("%d", trimmed)
	case RadixSignedDecimal:
		return fmt.Sprintf("%d", signExtend(trimmed, s.Width))
	default:
		return fmt.Sprintf("0x%x", trimmed)
	}
}

// signExtend reinterprets the low widthBytes bytes of v as a signed integer.
func signExtend(v uint64, widthBytes int) int64 {
	bits := widthBytes * 8
	if bits >= 64 {
		return int64(v)
	}
	signBit := uint64(1) << uint(bits-1)
	if v&signBit != 0 {
		return int64(v | ^mask64(widthBytes))
	}
	return int64(v)
}
