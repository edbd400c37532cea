package assembler

import (
	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/instruction"
	"github.com/mrc-go/mrc/internal/parser"
)

// hasSymbolRef reports whether e references any label/equ identifier
// anywhere in its tree. Pass 1 uses this (never the symbol table itself) to
// decide whether an operand's size must be conservatively widened, which is
// what makes layout idempotent: the decision never depends on a value that
// could change between the two passes.
func hasSymbolRef(e *parser.Expression) bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case parser.ExprTerm:
		return e.Value.Kind == parser.ValueLabelRef
	case parser.ExprPrefix:
		return hasSymbolRef(e.Left)
	case parser.ExprInfix:
		return hasSymbolRef(e.Left) || hasSymbolRef(e.Right)
	default:
		return false
	}
}

// tryEvalConstNoSymbols evaluates e when it contains no label/equ
// reference at all, without consulting any symbol table. Pass 1 uses this
// to make the byte-vs-word immediate tie-break decision (spec.md §4.4) for
// expressions that are pure literals, and pass 2 reuses it so the decision
// never flips between the two passes.
func tryEvalConstNoSymbols(e *parser.Expression) (int32, bool) {
	if hasSymbolRef(e) {
		return 0, false
	}
	v, err := evalExpr(e, nil)
	if err != nil {
		return 0, false
	}
	return v, true
}

// evalExpr fully resolves e against symtab, failing with UnresolvedLabel if
// any referenced name is unbound. Pass 2 uses this for every expression
// whose value actually needs to reach the emitted bytes.
func evalExpr(e *parser.Expression, symtab *SymbolTable) (int32, error) {
	switch e.Kind {
	case parser.ExprTerm:
		switch e.Value.Kind {
		case parser.ValueConstant:
			return e.Value.Constant, nil
		case parser.ValueLabelRef:
			if symtab == nil {
				return 0, errs.Newf(errs.UnresolvedLabel, "%q", e.Value.Label)
			}
			v, ok := symtab.Lookup(e.Value.Label)
			if !ok {
				return 0, errs.Newf(errs.UnresolvedLabel, "%q", e.Value.Label)
			}
			return v, nil
		case parser.ValueRegister:
			return 0, errs.New(errs.ParseError, "register not valid in a value expression")
		}
	case parser.ExprPrefix:
		v, err := evalExpr(e.Left, symtab)
		if err != nil {
			return 0, err
		}
		if e.Operator == parser.OpSubtract {
			return -v, nil
		}
		return v, nil
	case parser.ExprInfix:
		l, err := evalExpr(e.Left, symtab)
		if err != nil {
			return 0, err
		}
		r, err := evalExpr(e.Right, symtab)
		if err != nil {
			return 0, err
		}
		switch e.Operator {
		case parser.OpAdd:
			return l + r, nil
		case parser.OpSubtract:
			return l - r, nil
		case parser.OpMultiply:
			return l * r, nil
		case parser.OpDivide:
			if r == 0 {
				return 0, errs.New(errs.ErrDivideByZero, "constant-expression division by zero")
			}
			return l / r, nil
		}
	}
	return 0, errs.New(errs.ParseError, "malformed expression")
}

// containsRegister reports whether e mentions any register leaf anywhere.
func containsRegister(e *parser.Expression) bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case parser.ExprTerm:
		return e.Value.Kind == parser.ValueRegister
	case parser.ExprPrefix:
		return containsRegister(e.Left)
	case parser.ExprInfix:
		return containsRegister(e.Left) || containsRegister(e.Right)
	}
	return false
}

// splitAddressExpr separates the register terms from the displacement
// terms of an address expression like `bx+si+4` or `some_label`. It
// returns the registers found (in source order, always in positive/additive
// position) and a rewritten expression with every register leaf replaced
// by the constant 0, so the remainder can be evaluated with evalExpr to
// get the pure displacement contribution. A register appearing negated
// (`-bx`, `x-bx`) or scaled (`bx*2`) is rejected: the 8086 addressing modes
// never combine registers that way.
func splitAddressExpr(e *parser.Expression) ([]instruction.Register, *parser.Expression, error) {
	var regs []instruction.Register
	rewritten, err := splitAddressExprRec(e, false, &regs)
	if err != nil {
		return nil, nil, err
	}
	return regs, rewritten, nil
}

func splitAddressExprRec(e *parser.Expression, negated bool, regs *[]instruction.Register) (*parser.Expression, error) {
	switch e.Kind {
	case parser.ExprTerm:
		if e.Value.Kind == parser.ValueRegister {
			if negated {
				return nil, errs.New(errs.InvalidAddressingMode, "register cannot be negated in an address expression")
			}
			*regs = append(*regs, e.Value.Register)
			return parser.TermExpr(e.Span, parser.Value{Kind: parser.ValueConstant, Constant: 0}), nil
		}
		return e, nil
	case parser.ExprPrefix:
		if e.Operator == parser.OpSubtract {
			inner, err := splitAddressExprRec(e.Left, !negated, regs)
			if err != nil {
				return nil, err
			}
			return parser.PrefixExpr(e.Span, parser.OpSubtract, inner), nil
		}
		return e, nil
	case parser.ExprInfix:
		switch e.Operator {
		case parser.OpAdd:
			l, err := splitAddressExprRec(e.Left, negated, regs)
			if err != nil {
				return nil, err
			}
			r, err := splitAddressExprRec(e.Right, negated, regs)
			if err != nil {
				return nil, err
			}
			return parser.InfixExpr(e.Span, parser.OpAdd, l, r), nil
		case parser.OpSubtract:
			l, err := splitAddressExprRec(e.Left, negated, regs)
			if err != nil {
				return nil, err
			}
			r, err := splitAddressExprRec(e.Right, !negated, regs)
			if err != nil {
				return nil, err
			}
			return parser.InfixExpr(e.Span, parser.OpSubtract, l, r), nil
		default: // Multiply, Divide: registers may never participate.
			if containsRegister(e.Left) || containsRegister(e.Right) {
				return nil, errs.New(errs.InvalidAddressingMode, "register cannot be scaled in an address expression")
			}
			return e, nil
		}
	}
	return e, nil
}

// addressingModeFor classifies a register combination collected by
// splitAddressExpr into one of the eight 8086 addressing modes, per
// spec.md §3.
func addressingModeFor(regs []instruction.Register) (instruction.AddressingMode, error) {
	has := func(r instruction.Register) bool {
		for _, x := range regs {
			if x == r {
				return true
			}
		}
		return false
	}
	switch len(regs) {
	case 0:
		return 0, errs.New(errs.InvalidAddressingMode, "no base register")
	case 1:
		switch regs[0] {
		case instruction.BlBx:
			return instruction.Bx, nil
		case instruction.DhSi:
			return instruction.Si, nil
		case instruction.BhDi:
			return instruction.Di, nil
		case instruction.ChBp:
			return instruction.Bp, nil
		default:
			return 0, errs.Newf(errs.InvalidAddressingMode, "register %s cannot address memory alone", regs[0].Name(instruction.Word))
		}
	case 2:
		switch {
		case has(instruction.BlBx) && has(instruction.DhSi):
			return instruction.BxSi, nil
		case has(instruction.BlBx) && has(instruction.BhDi):
			return instruction.BxDi, nil
		case has(instruction.ChBp) && has(instruction.DhSi):
			return instruction.BpSi, nil
		case has(instruction.ChBp) && has(instruction.BhDi):
			return instruction.BpDi, nil
		default:
			return 0, errs.New(errs.InvalidAddressingMode, "unsupported register combination")
		}
	default:
		return 0, errs.New(errs.InvalidAddressingMode, "too many registers in address expression")
	}
}
