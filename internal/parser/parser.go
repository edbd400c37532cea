package parser

import (
	"strings"

	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/instruction"
)

// registerNames maps a lowercased register mnemonic to its Register/size.
var registerNames = map[string]struct {
	Register instruction.Register
	Size     instruction.OperandSize
}{
	"al": {instruction.AlAx, instruction.Byte}, "ah": {instruction.AhSp, instruction.Byte},
	"cl": {instruction.ClCx, instruction.Byte}, "ch": {instruction.ChBp, instruction.Byte},
	"dl": {instruction.DlDx, instruction.Byte}, "dh": {instruction.DhSi, instruction.Byte},
	"bl": {instruction.BlBx, instruction.Byte}, "bh": {instruction.BhDi, instruction.Byte},
	"ax": {instruction.AlAx, instruction.Word}, "cx": {instruction.ClCx, instruction.Word},
	"dx": {instruction.DlDx, instruction.Word}, "bx": {instruction.BlBx, instruction.Word},
	"sp": {instruction.AhSp, instruction.Word}, "bp": {instruction.ChBp, instruction.Word},
	"si": {instruction.DhSi, instruction.Word}, "di": {instruction.BhDi, instruction.Word},
}

var segmentNames = map[string]instruction.Segment{
	"es": instruction.ES, "cs": instruction.CS, "ss": instruction.SS, "ds": instruction.DS,
}

var operationNames = buildOperationNames()

func buildOperationNames() map[string]instruction.Operation {
	m := map[string]instruction.Operation{}
	for op := instruction.MOV; op <= instruction.LOCK; op++ {
		m[strings.ToLower(op.String())] = op
	}
	return m
}

// Parser is a recursive-descent parser over a token stream produced by
// Lexer. It parses one Program (a sequence of Line nodes) per call.
type Parser struct {
	lex  *Lexer
	tok  Token
	prev Token
}

func NewParser(src string) *Parser {
	p := &Parser{lex: NewLexer(src)}
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.prev = p.tok
	p.tok = p.lex.Next()
}

func (p *Parser) at(kind TokenKind) bool { return p.tok.Kind == kind }

func (p *Parser) atIdent(text string) bool {
	return p.tok.Kind == TokIdent && strings.EqualFold(p.tok.Text, text)
}

func (p *Parser) expect(kind TokenKind, what string) (Token, error) {
	if p.tok.Kind != kind {
		return Token{}, errs.Newf(errs.ParseError, "expected %s at offset %d", what, p.tok.Span.Start)
	}
	tok := p.tok
	p.advance()
	return tok, nil
}

func (p *Parser) skipNewlines() {
	for p.at(TokNewline) {
		p.advance()
	}
}

// ParseProgram parses the entire source buffer into a sequence of lines,
// skipping blank lines.
func (p *Parser) ParseProgram() ([]Line, error) {
	var lines []Line
	p.skipNewlines()
	for !p.at(TokEOF) {
		line, err := p.parseLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		if !p.at(TokEOF) {
			if _, err := p.expect(TokNewline, "newline"); err != nil {
				return nil, err
			}
		}
		p.skipNewlines()
	}
	return lines, nil
}

func (p *Parser) parseLine() (Line, error) {
	start := p.tok.Span.Start
	var label *Label

	if p.at(TokIdent) && p.lookaheadIsColon() {
		name := p.tok.Text
		span := p.tok.Span
		p.advance() // ident
		p.advance() // colon
		label = &Label{Span: span, Name: name}
	} else if p.at(TokIdent) && !p.atIdent("equ") {
		// `NAME equ expr` names its constant without a colon.
		saved, savedTok, savedPrev := *p.lex, p.tok, p.prev
		p.advance()
		nextIsEqu := p.atIdent("equ")
		*p.lex, p.tok, p.prev = saved, savedTok, savedPrev
		if nextIsEqu {
			label = &Label{Span: p.tok.Span, Name: p.tok.Text}
			p.advance() // ident; parseLineContent consumes `equ`
		}
	}

	var content LineContent
	if p.at(TokNewline) || p.at(TokEOF) {
		content = LineContent{Kind: ContentNone, Span: Span{Start: start, End: p.tok.Span.Start}}
	} else {
		c, err := p.parseLineContent()
		if err != nil {
			return Line{}, err
		}
		content = c
	}

	return Line{Span: Span{Start: start, End: p.prev.Span.End}, Label: label, Content: content}, nil
}

// lookaheadIsColon peeks whether the token after the current identifier is
// a colon, without consuming either — used to distinguish a label from a
// bare mnemonic/directive identifier.
func (p *Parser) lookaheadIsColon() bool {
	saved := *p.lex
	savedTok := p.tok
	savedPrev := p.prev
	p.advance()
	isColon := p.at(TokColon)
	*p.lex = saved
	p.tok = savedTok
	p.prev = savedPrev
	return isColon
}

func (p *Parser) parseLineContent() (LineContent, error) {
	start := p.tok.Span.Start

	switch {
	case p.atIdent("times"):
		p.advance()
		count, err := p.parseExpression()
		if err != nil {
			return LineContent{}, err
		}
		body, err := p.parseLineContent()
		if err != nil {
			return LineContent{}, err
		}
		bodyCopy := body
		return LineContent{
			Kind: ContentTimes, Span: Span{Start: start, End: p.prev.Span.End},
			TimesCount: count, TimesBody: &bodyCopy,
		}, nil

	case p.atIdent("db") || p.atIdent("dw"):
		wide := p.atIdent("dw")
		p.advance()
		var data []byte
		for {
			if p.at(TokString) {
				data = append(data, []byte(p.tok.Text)...)
				p.advance()
			} else {
				e, err := p.parseExpression()
				if err != nil {
					return LineContent{}, err
				}
				if e.Kind == ExprTerm && e.Value.Kind == ValueConstant {
					if wide {
						v := uint16(e.Value.Constant)
						data = append(data, byte(v), byte(v>>8))
					} else {
						data = append(data, byte(e.Value.Constant))
					}
				} else {
					return LineContent{}, errs.New(errs.ParseError, "db/dw requires constant-foldable values at parse time")
				}
			}
			if p.at(TokComma) {
				p.advance()
				continue
			}
			break
		}
		return LineContent{Kind: ContentData, Span: Span{Start: start, End: p.prev.Span.End}, Data: data}, nil

	case p.atIdent("equ"):
		p.advance()
		e, err := p.parseExpression()
		if err != nil {
			return LineContent{}, err
		}
		return LineContent{Kind: ContentConstant, Span: Span{Start: start, End: p.prev.Span.End}, Constant: e}, nil

	default:
		ins, err := p.parseInstruction()
		if err != nil {
			return LineContent{}, err
		}
		return LineContent{Kind: ContentInstruction, Span: ins.Span, Instruction: ins}, nil
	}
}

var repeatPrefixes = map[string]instruction.Repeat{
	"rep": instruction.RepeatEqual, "repe": instruction.RepeatEqual, "repz": instruction.RepeatEqual,
	"repne": instruction.RepeatNotEqual, "repnz": instruction.RepeatNotEqual,
}

func (p *Parser) parseInstruction() (Instruction, error) {
	start := p.tok.Span.Start
	repeat := instruction.RepeatNone

	if p.at(TokIdent) {
		if r, ok := repeatPrefixes[strings.ToLower(p.tok.Text)]; ok {
			repeat = r
			p.advance()
		}
	}

	mnemonicTok, err := p.expect(TokIdent, "mnemonic")
	if err != nil {
		return Instruction{}, err
	}
	op, ok := operationNames[strings.ToLower(mnemonicTok.Text)]
	if !ok {
		return Instruction{}, errs.Newf(errs.ParseError, "unknown mnemonic %q", mnemonicTok.Text)
	}

	operands, err := p.parseOperands()
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{
		Span:      Span{Start: start, End: p.prev.Span.End},
		Operation: op,
		Repeat:    repeat,
		Operands:  operands,
	}, nil
}

func (p *Parser) parseOperands() (Operands, error) {
	start := p.tok.Span.Start
	if p.at(TokNewline) || p.at(TokEOF) {
		return Operands{Span: Span{Start: start, End: start}, Kind: OperandsNone}, nil
	}

	dst, err := p.parseOperand()
	if err != nil {
		return Operands{}, err
	}
	if !p.at(TokComma) {
		return Operands{Span: Span{Start: start, End: p.prev.Span.End}, Kind: OperandsDestination, Destination: dst}, nil
	}
	p.advance()
	src, err := p.parseOperand()
	if err != nil {
		return Operands{}, err
	}
	return Operands{
		Span: Span{Start: start, End: p.prev.Span.End}, Kind: OperandsDestinationAndSource,
		Destination: dst, Source: src,
	}, nil
}

// parseOperand dispatches in the order: register, segment register,
// size-prefixed or bracketed address, otherwise immediate.
func (p *Parser) parseOperand() (Operand, error) {
	start := p.tok.Span.Start

	if p.at(TokIdent) {
		lower := strings.ToLower(p.tok.Text)
		if seg, ok := segmentNames[lower]; ok {
			if p.lookaheadIsColonOrBracketFollow() {
				// "es:[bx]" etc: a segment override in front of a bracketed
				// address, consumed whole by parseAddress.
				return p.parseAddress(start, nil)
			}
			p.advance()
			return Operand{Span: Span{Start: start, End: p.prev.Span.End}, Kind: OperandSegment, Segment: seg}, nil
		}
		if reg, ok := registerNames[lower]; ok {
			p.advance()
			size := reg.Size
			return Operand{Span: Span{Start: start, End: p.prev.Span.End}, Kind: OperandRegister, Register: reg.Register, Size: &size}, nil
		}
		if lower == "byte" || lower == "word" {
			return p.parseSizedAddress(start)
		}
	}

	if p.at(TokLBracket) {
		return p.parseAddress(start, nil)
	}

	e, err := p.parseExpression()
	if err != nil {
		return Operand{}, err
	}
	return Operand{Span: Span{Start: start, End: p.prev.Span.End}, Kind: OperandImmediate, Expr: e}, nil
}

// lookaheadIsColonOrBracketFollow reports whether the token after the
// current segment-name identifier is a ':', distinguishing a bare segment
// register operand ("push es") from a segment override in front of a
// bracketed address ("mov ax, es:[bx]"). It does not consume any tokens.
func (p *Parser) lookaheadIsColonOrBracketFollow() bool {
	saved := *p.lex
	savedTok := p.tok
	savedPrev := p.prev
	p.advance()
	isColon := p.at(TokColon)
	*p.lex = saved
	p.tok = savedTok
	p.prev = savedPrev
	return isColon
}

func (p *Parser) parseSizedAddress(start int) (Operand, error) {
	lower := strings.ToLower(p.tok.Text)
	var size instruction.OperandSize
	if lower == "byte" {
		size = instruction.Byte
	} else {
		size = instruction.Word
	}
	p.advance()
	return p.parseAddress(start, &size)
}

func (p *Parser) parseAddress(start int, size *instruction.OperandSize) (Operand, error) {
	var segOvr *instruction.Segment
	if p.at(TokIdent) {
		if seg, ok := segmentNames[strings.ToLower(p.tok.Text)]; ok {
			segCopy := seg
			p.advance()
			if _, err := p.expect(TokColon, "':' after segment override"); err != nil {
				return Operand{}, err
			}
			segOvr = &segCopy
		}
	}

	if _, err := p.expect(TokLBracket, "'['"); err != nil {
		return Operand{}, err
	}
	e, err := p.parseExpression()
	if err != nil {
		return Operand{}, err
	}
	if _, err := p.expect(TokRBracket, "']'"); err != nil {
		return Operand{}, err
	}
	return Operand{Span: Span{Start: start, End: p.prev.Span.End}, Kind: OperandAddress, Expr: e, Size: size, SegmentOvr: segOvr}, nil
}

// Expression grammar: term := primary (('+' | '-' | '*' | '/') primary)*
// left-associative, single precedence level (matches the original's flat
// nom-based expression parser).
func (p *Parser) parseExpression() (*Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op Operator
		switch p.tok.Kind {
		case TokPlus:
			op = OpAdd
		case TokMinus:
			op = OpSubtract
		case TokStar:
			op = OpMultiply
		case TokSlash:
			op = OpDivide
		default:
			return left, nil
		}
		opStart := p.tok.Span.Start
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = InfixExpr(Span{Start: opStart, End: p.prev.Span.End}, op, left, right)
	}
}

func (p *Parser) parseUnary() (*Expression, error) {
	start := p.tok.Span.Start
	if p.at(TokMinus) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return PrefixExpr(Span{Start: start, End: p.prev.Span.End}, OpSubtract, operand), nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (*Expression, error) {
	start := p.tok.Span.Start
	switch {
	case p.at(TokLParen):
		p.advance()
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	case p.at(TokNumber):
		v := p.tok.Value
		p.advance()
		return TermExpr(Span{Start: start, End: p.prev.Span.End}, Value{Kind: ValueConstant, Constant: v}), nil
	case p.at(TokChar):
		v := p.tok.Value
		p.advance()
		return TermExpr(Span{Start: start, End: p.prev.Span.End}, Value{Kind: ValueConstant, Constant: v}), nil
	case p.at(TokIdent):
		if reg, ok := registerNames[strings.ToLower(p.tok.Text)]; ok {
			p.advance()
			return TermExpr(Span{Start: start, End: p.prev.Span.End}, Value{Kind: ValueRegister, Register: reg.Register}), nil
		}
		name := p.tok.Text
		p.advance()
		return TermExpr(Span{Start: start, End: p.prev.Span.End}, Value{Kind: ValueLabelRef, Label: name}), nil
	default:
		return nil, errs.Newf(errs.ParseError, "expected expression at offset %d", start)
	}
}
