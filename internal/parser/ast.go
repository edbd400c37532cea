// Package parser implements a hand-written recursive-descent lexer and
// parser for the assembler's source text, producing an AST of Line values
// with every node carrying the source Span it was parsed from.
package parser

import (
	"fmt"

	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/instruction"
)

// Span is a byte-offset range into the source buffer a node was parsed from.
type Span = errs.Span

// Label is a bare `name:` line or the label attached to a content line.
type Label struct {
	Span Span
	Name string
}

// Operator is one of the four arithmetic operators the expression grammar
// supports.
type Operator int

const (
	OpAdd Operator = iota
	OpSubtract
	OpMultiply
	OpDivide
)

func (o Operator) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	default:
		return "?"
	}
}

// ValueKind discriminates the leaf of an expression tree.
type ValueKind int

const (
	ValueConstant ValueKind = iota
	ValueLabelRef
	ValueRegister
)

// Value is a leaf term of an expression: a constant, a reference to a label
// bound elsewhere in the program, or a bare register name used as part of
// an addressing-mode recognition (e.g. `bx+si`).
type Value struct {
	Kind     ValueKind
	Constant int32
	Label    string
	Register instruction.Register
}

// ExpressionKind discriminates the Expression union.
type ExpressionKind int

const (
	ExprTerm ExpressionKind = iota
	ExprPrefix
	ExprInfix
)

// Expression is the arithmetic expression tree: a term, a prefix operator
// applied to one sub-expression, or an infix operator applied to two.
type Expression struct {
	Kind     ExpressionKind
	Span     Span
	Value    Value
	Operator Operator
	Left     *Expression
	Right    *Expression
}

func TermExpr(span Span, v Value) *Expression {
	return &Expression{Kind: ExprTerm, Span: span, Value: v}
}

func PrefixExpr(span Span, op Operator, operand *Expression) *Expression {
	return &Expression{Kind: ExprPrefix, Span: span, Operator: op, Left: operand}
}

func InfixExpr(span Span, op Operator, left, right *Expression) *Expression {
	return &Expression{Kind: ExprInfix, Span: span, Operator: op, Left: left, Right: right}
}

func (e *Expression) String() string {
	switch e.Kind {
	case ExprTerm:
		switch e.Value.Kind {
		case ValueConstant:
			return fmt.Sprintf("%d", e.Value.Constant)
		case ValueLabelRef:
			return e.Value.Label
		case ValueRegister:
			return e.Value.Register.Name(instruction.Word)
		}
	case ExprPrefix:
		return fmt.Sprintf("%s%s", e.Operator, e.Left)
	case ExprInfix:
		return fmt.Sprintf("%s%s%s", e.Left, e.Operator, e.Right)
	}
	return "?"
}

// OperandKind discriminates the parsed Operand union, mirroring
// instruction.OperandKind but carrying unresolved expressions instead of
// fixed values until the assembler's pass 2 resolves them.
type OperandKind int

const (
	OperandImmediate OperandKind = iota
	OperandAddress
	OperandRegister
	OperandSegment
)

// Operand is a parsed, not-yet-resolved operand.
type Operand struct {
	Span       Span
	Kind       OperandKind
	Expr       *Expression
	Size       *instruction.OperandSize
	SegmentOvr *instruction.Segment
	Register   instruction.Register
	Segment    instruction.Segment
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandImmediate:
		return o.Expr.String()
	case OperandAddress:
		prefix := ""
		if o.Size != nil {
			prefix = o.Size.String() + " "
		}
		seg := ""
		if o.SegmentOvr != nil {
			seg = o.SegmentOvr.String() + ":"
		}
		return fmt.Sprintf("%s[%s%s]", prefix, seg, o.Expr)
	case OperandRegister:
		if o.Size != nil {
			return o.Register.Name(*o.Size)
		}
		return o.Register.Name(instruction.Word)
	case OperandSegment:
		return o.Segment.String()
	default:
		return "?"
	}
}

// OperandsKind discriminates how many operands an instruction line carries.
type OperandsKind int

const (
	OperandsNone OperandsKind = iota
	OperandsDestination
	OperandsDestinationAndSource
)

// Operands is the parsed operand list of an instruction line.
type Operands struct {
	Span        Span
	Kind        OperandsKind
	Destination Operand
	Source      Operand
}

// Instruction is a parsed mnemonic plus its operand list, before the
// assembler resolves it into a concrete encoding.
type Instruction struct {
	Span      Span
	Operation instruction.Operation
	Repeat    instruction.Repeat
	Operands  Operands
}

// LineContentKind discriminates what a source line, beyond its optional
// label, actually contains.
type LineContentKind int

const (
	ContentNone LineContentKind = iota
	ContentInstruction
	ContentData
	ContentConstant
	ContentTimes
)

// LineContent is the body of a source line.
type LineContent struct {
	Span        Span
	Kind        LineContentKind
	Instruction Instruction
	Data        []byte
	Constant    *Expression
	TimesCount  *Expression
	TimesBody   *LineContent
}

func (c LineContent) GetSpan() Span { return c.Span }

// Line is one line of assembler source: an optional label and a content
// node. A bare label line has ContentNone; blank and comment-only lines
// produce no Line at all.
type Line struct {
	Span    Span
	Label   *Label
	Content LineContent
}
