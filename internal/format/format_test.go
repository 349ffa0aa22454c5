package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Spec
		wantErr bool
	}{
		{name: "read defaults", input: "r", want: Spec{Direction: DirectionRead, Radix: RadixHex, Width: 8}},
		{name: "write defaults", input: "w", want: Spec{Direction: DirectionWrite, Radix: RadixHex, Width: 8}},
		{name: "read width1 unsigned", input: "ru1", want: Spec{Direction: DirectionRead, Radix: RadixUnsignedDecimal, Width: 1}},
		{name: "write width4 signed", input: "wd4", want: Spec{Direction: DirectionWrite, Radix: RadixSignedDecimal, Width: 4}},
		{name: "order independent", input: "2xw", want: Spec{Direction: DirectionWrite, Radix: RadixHex, Width: 2}},
		{name: "missing direction", input: "x1", wantErr: true},
		{name: "both directions", input: "rw", wantErr: true},
		{name: "duplicate radix", input: "rxu", wantErr: true},
		{name: "duplicate width", input: "r14", wantErr: true},
		{name: "illegal character", input: "rz", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSpec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrimVal(t *testing.T) {
	v := uint64(0x1122334455667788)

	tests := []struct {
		width int
		want  uint64
	}{
		{1, 0x88},
		{2, 0x7788},
		{4, 0x55667788},
		{8, 0x1122334455667788},
	}

	for _, tt := range tests {
		s := Spec{Width: tt.width}
		got := s.TrimVal(v)
		assert.Equal(t, tt.want, got)
		// idempotent
		assert.Equal(t, got, s.TrimVal(got))
		if tt.width < 8 {
			assert.Less(t, got, uint64(1)<<uint(tt.width*8))
		}
	}
}

func TestClearMaskWidth8IsZero(t *testing.T) {
	s := Spec{Width: 8}
	assert.Equal(t, uint64(0), s.ClearMask())
}

func TestClearMaskPreservesHighBits(t *testing.T) {
	s := Spec{Width: 1}
	original := uint64(0x1122334455667788)
	written := uint64(0xFF)

	result := (original & s.ClearMask()) | (written & (^s.ClearMask()))
	assert.Equal(t, uint64(0x11223344556677FF), result)
}

func TestFormatRadices(t *testing.T) {
	s := Spec{Radix: RadixHex, Width: 1}
	assert.Equal(t, "0xff", s.Format(0xFF))

	s.Radix = RadixUnsignedDecimal
	assert.Equal(t, "255", s.Format(0xFF))

	s.Radix = RadixSignedDecimal
	assert.Equal(t, "-1", s.Format(0xFF))
}
