// Package assembler resolves a parsed program (internal/parser) into a flat
// byte image, following the two-pass design spec.md §4.4 lays out: pass 1
// fixes every label's offset and every instruction's size without ever
// needing a symbol's resolved value (only whether one is referenced at
// all), then pass 2 walks the program again and emits bytes against the
// now-complete symbol table. Errors accumulate as errs.Diagnostics instead
// of aborting the run, so one bad line doesn't hide the rest.
package assembler

import (
	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/parser"
)

// Output is the result of a successful (or partially successful) assembly.
type Output struct {
	Origin  uint16
	Bytes   []byte
	Symbols *SymbolTable
}

// lineLayout records what pass 1 decided about one source line, so pass 2
// need not re-derive it.
type lineLayout struct {
	offset uint16
	size   int
}

// Assemble resolves prog into a byte image starting at origin.
func Assemble(prog []parser.Line, origin uint16) (Output, errs.Diagnostics) {
	symtab := NewSymbolTable()
	var diags errs.Diagnostics
	layouts := make([]lineLayout, len(prog))

	offset := origin
	for i, line := range prog {
		if line.Label != nil && line.Content.Kind != parser.ContentConstant {
			if err := symtab.Bind(line.Label.Name, int32(offset)); err != nil {
				diags = append(diags, diagAt(line.Label.Span, err))
			}
		}

		size := 0
		switch line.Content.Kind {
		case parser.ContentConstant:
			v, err := evalExpr(line.Content.Constant, symtab)
			if err != nil {
				diags = append(diags, diagAt(line.Content.Span, err))
			} else if line.Label != nil {
				if err := symtab.Bind(line.Label.Name, v); err != nil {
					diags = append(diags, diagAt(line.Label.Span, err))
				}
			}
		default:
			s, err := sizeOfContent(line.Content, symtab)
			if err != nil {
				diags = append(diags, diagAt(line.Content.Span, err))
			} else {
				size = s
			}
		}

		layouts[i] = lineLayout{offset: offset, size: size}
		offset += uint16(size)
	}

	var out []byte
	for i, line := range prog {
		if line.Content.Kind == parser.ContentNone || line.Content.Kind == parser.ContentConstant {
			continue
		}
		bytes, err := emitContent(line.Content, layouts[i].offset, symtab)
		if err != nil {
			diags = append(diags, diagAt(line.Content.Span, err))
			continue
		}
		out = append(out, bytes...)
	}

	return Output{Origin: origin, Bytes: out, Symbols: symtab}, diags
}

func diagAt(span errs.Span, err error) errs.Diagnostic {
	kind := errs.ParseError
	if e, ok := err.(*errs.Error); ok {
		kind = e.Kind
	}
	return errs.NewDiagnostic(span, kind, 0, 0, err.Error())
}

// sizeOfContent computes the byte length line content i will occupy, using
// symtab only for the one place layout legitimately needs a resolved
// value: a `times` repeat count.
func sizeOfContent(c parser.LineContent, symtab *SymbolTable) (int, error) {
	switch c.Kind {
	case parser.ContentNone, parser.ContentConstant:
		return 0, nil
	case parser.ContentData:
		return len(c.Data), nil
	case parser.ContentInstruction:
		return instructionSize(c.Instruction)
	case parser.ContentTimes:
		count, err := evalExpr(c.TimesCount, symtab)
		if err != nil {
			return 0, err
		}
		bodySize, err := sizeOfContent(*c.TimesBody, symtab)
		if err != nil {
			return 0, err
		}
		return int(count) * bodySize, nil
	default:
		return 0, nil
	}
}

// emitContent produces the bytes for one line's content at the given
// offset, using symtab for final value resolution.
func emitContent(c parser.LineContent, offset uint16, symtab *SymbolTable) ([]byte, error) {
	switch c.Kind {
	case parser.ContentNone, parser.ContentConstant:
		return nil, nil
	case parser.ContentData:
		return c.Data, nil
	case parser.ContentInstruction:
		size, err := instructionSize(c.Instruction)
		if err != nil {
			return nil, err
		}
		return buildInstruction(c.Instruction, offset+uint16(size), symtab)
	case parser.ContentTimes:
		count, err := evalExpr(c.TimesCount, symtab)
		if err != nil {
			return nil, err
		}
		bodySize, err := sizeOfContent(*c.TimesBody, symtab)
		if err != nil {
			return nil, err
		}
		var out []byte
		cur := offset
		for i := int32(0); i < count; i++ {
			b, err := emitContent(*c.TimesBody, cur, symtab)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
			cur += uint16(bodySize)
		}
		return out, nil
	default:
		return nil, nil
	}
}
