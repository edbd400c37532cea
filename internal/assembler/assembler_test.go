package assembler

import (
	"testing"

	"github.com/mrc-go/mrc/internal/decoder"
	"github.com/mrc-go/mrc/internal/disasm"
	"github.com/mrc-go/mrc/internal/instruction"
	"github.com/mrc-go/mrc/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assembleSrc(t *testing.T, src string) Output {
	t.Helper()
	prog, err := parser.NewParser(src).ParseProgram()
	require.NoError(t, err)
	out, diags := Assemble(prog, 0)
	require.Empty(t, diags, "unexpected diagnostics: %v", diags)
	return out
}

// TestS5AssembleRoundTrip is spec.md §8 S5: the three instructions
// round-trip through disassembly and JMP resolves back to the start label.
func TestS5AssembleRoundTrip(t *testing.T) {
	const src = "start:\n  mov ax, 0xB800\n  mov ds, ax\n  jmp start\n"
	out := assembleSrc(t, src)

	sec := disasm.Section{Bytes: out.Bytes}
	lines := disasm.WalkSection(sec, disasm.DefaultStyle)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0].Text, "MOV")
	assert.Contains(t, lines[0].Text, "0xB800")
	assert.Contains(t, lines[1].Text, "MOV")
	assert.Contains(t, lines[2].Text, "JMP")
	// E9 rel16: the JMP ends at offset 8, so -8 (0xFFF8) lands on start.
	assert.Equal(t, []byte{0xE9, 0xF8, 0xFF}, out.Bytes[5:])

	startOffset, ok := out.Symbols.Lookup("start")
	require.True(t, ok)
	assert.EqualValues(t, 0, startOffset)
}

func TestAssembleSimpleMovImmediate(t *testing.T) {
	out := assembleSrc(t, "mov ax, 0x1234\n")
	assert.Equal(t, []byte{0xB8, 0x34, 0x12}, out.Bytes)
}

func TestAssembleDbDirective(t *testing.T) {
	out := assembleSrc(t, "db 1, 2, 3\n")
	assert.Equal(t, []byte{1, 2, 3}, out.Bytes)
}

func TestAssembleTimesDirective(t *testing.T) {
	out := assembleSrc(t, "times 4 db 0xAA\n")
	assert.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xAA}, out.Bytes)
}

func TestAssembleEquConstant(t *testing.T) {
	out := assembleSrc(t, "BASE equ 0x100\nmov ax, BASE\n")
	assert.Equal(t, []byte{0xB8, 0x00, 0x01}, out.Bytes)
}

func TestDuplicateLabelIsDiagnosed(t *testing.T) {
	prog, err := parser.NewParser("a:\nb:\na:\n").ParseProgram()
	require.NoError(t, err)
	_, diags := Assemble(prog, 0)
	require.NotEmpty(t, diags)
}

func TestUnresolvedLabelIsDiagnosed(t *testing.T) {
	prog, err := parser.NewParser("jmp nowhere\n").ParseProgram()
	require.NoError(t, err)
	_, diags := Assemble(prog, 0)
	require.NotEmpty(t, diags)
}

// TestTwoPassIdempotence is invariant 7 from spec.md §8: running pass 1
// twice on the same program yields identical symbol offsets.
func TestTwoPassIdempotence(t *testing.T) {
	const src = "start:\n  mov ax, 0xB800\n  mov ds, ax\nloop_top:\n  jmp loop_top\n"
	prog, err := parser.NewParser(src).ParseProgram()
	require.NoError(t, err)

	out1, diags1 := Assemble(prog, 0)
	require.Empty(t, diags1)
	out2, diags2 := Assemble(prog, 0)
	require.Empty(t, diags2)

	assert.Equal(t, out1.Symbols.All(), out2.Symbols.All())
	assert.Equal(t, out1.Bytes, out2.Bytes)
}

// TestEncodeDecodeRoundTrip is invariant 1 from spec.md §8: every
// assembler-producible instruction decodes back to an equivalent form.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	out := assembleSrc(t, "mov ax, 0x1234\n")
	ins, err := decoder.Decode(decoder.NewSliceStream(out.Bytes))
	require.NoError(t, err)
	assert.Equal(t, instruction.MOV, ins.Operation)
	assert.EqualValues(t, 0x1234, ins.Operands.Source.Immediate)
}

// TestAssembleBpZeroDisplacement guards against [bp] with no displacement
// being encoded as mod=00 rm=110, which is reserved on the wire for a
// direct 16-bit address (spec.md §3's AddressingMode note, invariant 3 in
// §8). [bp] must instead take the disp8=0 form, or the bytes of the next
// instruction get consumed as a bogus direct address.
func TestAssembleBpZeroDisplacement(t *testing.T) {
	out := assembleSrc(t, "mov ax, [bp]\nmov bx, 0x0102\n")
	assert.Equal(t, []byte{0x8B, 0x46, 0x00, 0xBB, 0x02, 0x01}, out.Bytes)

	stream := decoder.NewSliceStream(out.Bytes)
	first, err := decoder.Decode(stream)
	require.NoError(t, err)
	assert.Equal(t, instruction.MOV, first.Operation)
	assert.Equal(t, instruction.Bp, first.Operands.Source.Addressing)
	assert.EqualValues(t, 0, first.Operands.Source.Displacement)

	second, err := decoder.Decode(stream)
	require.NoError(t, err)
	assert.Equal(t, instruction.MOV, second.Operation)
	assert.EqualValues(t, 0x0102, second.Operands.Source.Immediate)
}
