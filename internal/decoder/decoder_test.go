package decoder

import (
	"testing"

	"github.com/mrc-go/mrc/internal/instruction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestS2MovImmediateWord decodes B8 34 12 -> MOV AX, 0x1234 (spec.md §8 S2).
func TestS2MovImmediateWord(t *testing.T) {
	s := NewSliceStream([]byte{0xB8, 0x34, 0x12})
	ins, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, instruction.MOV, ins.Operation)
	require.Equal(t, instruction.SetDestinationAndSource, ins.Operands.Kind)
	assert.Equal(t, instruction.AlAx, ins.Operands.Destination.Register)
	assert.EqualValues(t, 0x1234, ins.Operands.Source.Immediate)
	assert.Equal(t, 3, s.Pos(), "decoder must consume exactly its 3 bytes")
}

// TestS3AddAxImmediate decodes 05 FF FF -> ADD AX, 0xFFFF (spec.md §8 S3).
func TestS3AddAxImmediate(t *testing.T) {
	s := NewSliceStream([]byte{0x05, 0xFF, 0xFF})
	ins, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, instruction.ADD, ins.Operation)
	assert.EqualValues(t, 0xFFFF, ins.Operands.Source.Immediate)
	assert.Equal(t, 3, s.Pos())
}

// TestS4CmpAlImmediate decodes 3C 80 -> CMP AL, 0x80 (spec.md §8 S4).
func TestS4CmpAlImmediate(t *testing.T) {
	s := NewSliceStream([]byte{0x3C, 0x80})
	ins, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, instruction.CMP, ins.Operation)
	assert.Equal(t, instruction.Byte, ins.Operands.Destination.Size)
	assert.EqualValues(t, 0x80, ins.Operands.Source.Immediate)
	assert.Equal(t, 2, s.Pos())
}

func TestDecodeConsumesExactlyItsBytesAcrossFamilies(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"mov reg/mem<->reg mod=11", []byte{0x89, 0xD8}},              // MOV AX, BX
		{"mov reg/mem<->reg mod=00 direct", []byte{0x8B, 0x06, 0x00, 0x10}}, // MOV AX, [0x1000]
		{"push reg", []byte{0x50}},
		{"pop reg", []byte{0x58}},
		{"jcc rel8", []byte{0x74, 0x05}},
		{"call near", []byte{0xE8, 0x00, 0x01}},
		{"jmp far", []byte{0xEA, 0x00, 0x00, 0x00, 0x00}},
		{"int imm8", []byte{0xCD, 0x21}},
		{"hlt", []byte{0xF4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSliceStream(tt.in)
			_, err := Decode(s)
			require.NoError(t, err)
			assert.Equal(t, len(tt.in), s.Pos())
		})
	}
}

func TestPrefixRecursionStampsOverrideAndRepeat(t *testing.T) {
	// 2E F3 A4 : CS-override, REP, MOVSB
	s := NewSliceStream([]byte{0x2E, 0xF3, 0xA4})
	ins, err := Decode(s)
	require.NoError(t, err)
	require.NotNil(t, ins.SegmentOverride)
	assert.Equal(t, instruction.CS, *ins.SegmentOverride)
	assert.Equal(t, instruction.RepeatEqual, ins.Repeat)
}

func TestPrefixOrderIsLatchedNotStacked(t *testing.T) {
	// Reversing the prefix order must decode identically: each prefix class
	// latches its last occurrence (spec.md §9 Open Question 2).
	a := NewSliceStream([]byte{0x2E, 0xF3, 0xA4})
	b := NewSliceStream([]byte{0xF3, 0x2E, 0xA4})
	insA, errA := Decode(a)
	insB, errB := Decode(b)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, insA.Operation, insB.Operation)
	assert.Equal(t, *insA.SegmentOverride, *insB.SegmentOverride)
	assert.Equal(t, insA.Repeat, insB.Repeat)
}

func TestTooManyPrefixesRejected(t *testing.T) {
	// Five segment-override bytes in a row exceeds maxPrefixDepth.
	s := NewSliceStream([]byte{0x2E, 0x2E, 0x2E, 0x2E, 0x2E, 0xF4})
	_, err := Decode(s)
	require.Error(t, err)
}

func TestUnexpectedEOFOnEmptyStream(t *testing.T) {
	_, err := Decode(NewSliceStream(nil))
	require.Error(t, err)
}

func TestInvalidOpCode(t *testing.T) {
	// 0x0F alone (two-byte opcode escape) is not modeled and must be
	// rejected as an invalid single-byte opcode in this 8086-only decoder.
	_, err := Decode(NewSliceStream([]byte{0x0F}))
	require.Error(t, err)
}
