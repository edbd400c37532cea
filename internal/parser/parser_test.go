package parser

import (
	"testing"

	"github.com/mrc-go/mrc/internal/instruction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleInstructionWithImmediate(t *testing.T) {
	lines, err := NewParser("mov ax, 0x1234\n").ParseProgram()
	require.NoError(t, err)
	require.Len(t, lines, 1)
	ins := lines[0].Content.Instruction
	assert.Equal(t, instruction.MOV, ins.Operation)
	assert.Equal(t, OperandsDestinationAndSource, ins.Operands.Kind)
	assert.Equal(t, OperandRegister, ins.Operands.Destination.Kind)
	assert.Equal(t, instruction.AlAx, ins.Operands.Destination.Register)
	assert.Equal(t, OperandImmediate, ins.Operands.Source.Kind)
}

func TestParseLabelAndMnemonicAreCaseInsensitive(t *testing.T) {
	lines, err := NewParser("Start:\n  MOV AX, BX\n  JMP start\n").ParseProgram()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.NotNil(t, lines[0].Label)
	assert.Equal(t, "Start", lines[0].Label.Name)
	assert.Equal(t, instruction.MOV, lines[1].Content.Instruction.Operation)
	assert.Equal(t, instruction.JMP, lines[2].Content.Instruction.Operation)
}

func TestParseIndirectAddressingRecognisesRegisterCombination(t *testing.T) {
	lines, err := NewParser("mov ax, [bx+si]\n").ParseProgram()
	require.NoError(t, err)
	src := lines[0].Content.Instruction.Operands.Source
	assert.Equal(t, OperandAddress, src.Kind)
}

func TestParseDirectAddressIsPureValue(t *testing.T) {
	lines, err := NewParser("mov ax, [0x8000]\n").ParseProgram()
	require.NoError(t, err)
	src := lines[0].Content.Instruction.Operands.Source
	assert.Equal(t, OperandAddress, src.Kind)
	assert.Equal(t, ValueConstant, src.Expr.Value.Kind)
}

func TestParseSegmentOverrideBeforeBracketedAddress(t *testing.T) {
	lines, err := NewParser("mov ax, es:[bx]\n").ParseProgram()
	require.NoError(t, err)
	src := lines[0].Content.Instruction.Operands.Source
	require.NotNil(t, src.SegmentOvr)
	assert.Equal(t, instruction.ES, *src.SegmentOvr)
}

func TestParseBareSegmentRegisterOperand(t *testing.T) {
	lines, err := NewParser("mov ax, es\n").ParseProgram()
	require.NoError(t, err)
	src := lines[0].Content.Instruction.Operands.Source
	assert.Equal(t, OperandSegment, src.Kind)
	assert.Equal(t, instruction.ES, src.Segment)
}

func TestParseByteWordSizeQualifier(t *testing.T) {
	lines, err := NewParser("mov byte [bx], 0x01\n").ParseProgram()
	require.NoError(t, err)
	dst := lines[0].Content.Instruction.Operands.Destination
	require.NotNil(t, dst.Size)
	assert.Equal(t, instruction.Byte, *dst.Size)
}

func TestParseTimesDirective(t *testing.T) {
	lines, err := NewParser("times 4 db 0\n").ParseProgram()
	require.NoError(t, err)
	require.Equal(t, ContentTimes, lines[0].Content.Kind)
	require.NotNil(t, lines[0].Content.TimesBody)
	assert.Equal(t, ContentData, lines[0].Content.TimesBody.Kind)
}

func TestParseEquConstant(t *testing.T) {
	lines, err := NewParser("VIDEO_SEG equ 0xB800\n").ParseProgram()
	require.NoError(t, err)
	require.Equal(t, ContentConstant, lines[0].Content.Kind)
	require.NotNil(t, lines[0].Label)
	assert.Equal(t, "VIDEO_SEG", lines[0].Label.Name)
}

func TestParseHexAndDecimalIntegers(t *testing.T) {
	lines, err := NewParser("db 0x2A, 42\n").ParseProgram()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2A, 42}, lines[0].Content.Data)
}

func TestParseCharLiteral(t *testing.T) {
	lines, err := NewParser("db '$'\n").ParseProgram()
	require.NoError(t, err)
	assert.Equal(t, []byte{'$'}, lines[0].Content.Data)
}

func TestParseUnknownMnemonicFails(t *testing.T) {
	_, err := NewParser("frobnicate ax\n").ParseProgram()
	require.Error(t, err)
}

// TestParseExpressionIsFlatLeftAssociative confirms the expression grammar
// has no operator-precedence levels: "2+3*4" parses the same shape as
// "(2+3)*4", strictly left to right.
func TestParseExpressionIsFlatLeftAssociative(t *testing.T) {
	lines, err := NewParser("mov ax, 2+3*4\n").ParseProgram()
	require.NoError(t, err)
	e := lines[0].Content.Instruction.Operands.Source.Expr
	require.Equal(t, ExprInfix, e.Kind)
	assert.Equal(t, OpMultiply, e.Operator)
	require.Equal(t, ExprInfix, e.Left.Kind)
	assert.Equal(t, OpAdd, e.Left.Operator)
}

func TestParseParenthesisedExpression(t *testing.T) {
	lines, err := NewParser("mov ax, (2+3)*4\n").ParseProgram()
	require.NoError(t, err)
	e := lines[0].Content.Instruction.Operands.Source.Expr
	require.Equal(t, ExprInfix, e.Kind)
	assert.Equal(t, OpMultiply, e.Operator)
	assert.Equal(t, ExprInfix, e.Left.Kind)
	assert.Equal(t, OpAdd, e.Left.Operator)
}
