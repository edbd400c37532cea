// Package errs defines the error taxonomy shared by the decoder, parser,
// assembler and CPU engine, plus the source-span diagnostics the assembler
// accumulates instead of aborting on first error.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one entry of the closed error taxonomy.
type Kind int

const (
	InvalidOpCode Kind = iota
	InvalidModRM
	InvalidRegisterEncoding
	InvalidAddressingMode
	UnexpectedEOF
	InvalidAddress
	InvalidPort
	ErrDivideByZero
	UnresolvedLabel
	DuplicateLabel
	DisplacementOutOfRange
	SizeMismatch
	InvalidOperandCombination
	ParseError
)

var kindNames = [...]string{
	InvalidOpCode:           "invalid opcode",
	InvalidModRM:            "invalid ModR/M byte",
	InvalidRegisterEncoding: "invalid register encoding",
	InvalidAddressingMode:   "invalid addressing mode",
	UnexpectedEOF:           "unexpected end of input",
	InvalidAddress:          "invalid address",
	InvalidPort:             "invalid port",
	ErrDivideByZero:         "divide by zero",
	UnresolvedLabel:         "unresolved label",
	DuplicateLabel:          "duplicate label",
	DisplacementOutOfRange:    "displacement out of range",
	SizeMismatch:              "operand size mismatch",
	InvalidOperandCombination: "invalid operand combination",
	ParseError:                "parse error",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a taxonomy-tagged error. It wraps an optional underlying cause
// via github.com/pkg/errors so call sites can attach byte offsets or
// source positions without losing the original error chain.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause returns the deepest underlying error, mirroring pkg/errors.Cause.
func (e *Error) Cause() error {
	if e.cause == nil {
		return e
	}
	return errors.Cause(e.cause)
}

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// Span is a half-open byte range [Start, End) into a source buffer.
type Span struct {
	Start int
	End   int
}

func (s Span) String() string { return fmt.Sprintf("%d..%d", s.Start, s.End) }

// Diagnostic is a span-anchored error surfaced by the assembler.
// Unlike *Error, diagnostics accumulate: the assembler keeps producing them
// across an entire source file rather than aborting on the first one.
type Diagnostic struct {
	Span Span
	Kind Kind
	Line int
	Col  int
	Err  error
}

func NewDiagnostic(span Span, kind Kind, line, col int, message string) Diagnostic {
	return Diagnostic{Span: span, Kind: kind, Line: line, Col: col, Err: New(kind, message)}
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Col, d.Err)
}

// Diagnostics is a collection of Diagnostic values with a Render method
// for presenting them against their originating source text.
type Diagnostics []Diagnostic

func (ds Diagnostics) Error() string {
	if len(ds) == 0 {
		return "no diagnostics"
	}
	if len(ds) == 1 {
		return ds[0].String()
	}
	return fmt.Sprintf("%s (and %d more)", ds[0], len(ds)-1)
}

// Render formats each diagnostic as "line:col: message", one per line,
// pointing at the offending source line when lines is provided.
func (ds Diagnostics) Render(lines []string) string {
	out := ""
	for _, d := range ds {
		if d.Line == 0 && len(lines) > 0 {
			// Derive line/col from the span's byte offset into the source.
			d.Line, d.Col = 1, d.Span.Start+1
			for d.Line < len(lines) && d.Col > len(lines[d.Line-1])+1 {
				d.Col -= len(lines[d.Line-1]) + 1
				d.Line++
			}
		}
		out += d.String() + "\n"
		if d.Line-1 >= 0 && d.Line-1 < len(lines) {
			out += "    " + lines[d.Line-1] + "\n"
		}
	}
	return out
}
