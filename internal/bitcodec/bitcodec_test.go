package bitcodec

import (
	"testing"

	"github.com/mrc-go/mrc/internal/instruction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceReader adapts a byte slice to ByteReader for table-driven ModR/M tests.
type sliceReader struct {
	buf []byte
	pos int
}

func (s *sliceReader) ReadByte() (byte, bool) {
	if s.pos >= len(s.buf) {
		return 0, false
	}
	b := s.buf[s.pos]
	s.pos++
	return b, true
}

func TestRegisterFromBitsAllEightEncodings(t *testing.T) {
	for b := byte(0); b < 8; b++ {
		assert.Equal(t, instruction.Register(b), RegisterFromBits(b))
	}
}

func TestSegmentFromBitsAllFourEncodings(t *testing.T) {
	for b := byte(0); b < 4; b++ {
		assert.Equal(t, instruction.Segment(b), SegmentFromBits(b))
	}
}

// TestModRMByteLengths is invariant 3 from spec.md §8: mod=00 rm=110 adds 2
// displacement bytes, mod=01 adds 1, mod=10 adds 2, mod=11 adds 0.
func TestModRMByteLengths(t *testing.T) {
	tests := []struct {
		name      string
		modrm     byte
		trailing  []byte
		wantKind  RegisterOrMemoryKind
		wantExtra int
	}{
		{"mod00 rm110 direct", 0b00_000_110, []byte{0x34, 0x12}, RMDirect, 2},
		{"mod00 indirect", 0b00_000_000, nil, RMIndirect, 0},
		{"mod01 disp8", 0b01_000_011, []byte{0xFF}, RMDisplacementByte, 1},
		{"mod10 disp16", 0b10_000_011, []byte{0x00, 0x01}, RMDisplacementWord, 2},
		{"mod11 register", 0b11_000_011, nil, RMRegister, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &sliceReader{buf: append([]byte{tt.modrm}, tt.trailing...)}
			modrm, err := ReadModRM(r)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, modrm.RegisterOrMemory.Kind)
			assert.Equal(t, 1+tt.wantExtra, r.pos, "stream should advance exactly 1 + displacement bytes")
		})
	}
}

func TestModRMDirectIsNotBPWhenModIsZero(t *testing.T) {
	// mod=00, rm=110 is a direct 16-bit displacement, never [BP].
	r := &sliceReader{buf: []byte{0b00_000_110, 0x00, 0x80}}
	modrm, err := ReadModRM(r)
	require.NoError(t, err)
	assert.Equal(t, RMDirect, modrm.RegisterOrMemory.Kind)
	assert.EqualValues(t, 0x8000, modrm.RegisterOrMemory.Direct)
}

func TestEncodeModRMRoundTripsAllModes(t *testing.T) {
	cases := []RegisterOrMemory{
		{Kind: RMDirect, Direct: 0x1234},
		{Kind: RMIndirect, Addressing: instruction.BxSi},
		{Kind: RMDisplacementByte, Addressing: instruction.Bp, Displacement: 0xFFFF}, // -1
		{Kind: RMDisplacementWord, Addressing: instruction.Bx, Displacement: 0x7FFF},
		{Kind: RMRegister, Register: instruction.ClCx},
	}
	for _, rm := range cases {
		encoded := EncodeModRM(instruction.DlDx, rm)
		r := &sliceReader{buf: encoded}
		decoded, err := ReadModRM(r)
		require.NoError(t, err)
		assert.Equal(t, instruction.DlDx, decoded.Register)
		assert.Equal(t, rm.Kind, decoded.RegisterOrMemory.Kind)
		assert.Equal(t, len(encoded), r.pos)
	}
}

func TestReadModRMUnexpectedEOF(t *testing.T) {
	_, err := ReadModRM(&sliceReader{})
	require.Error(t, err)
}
