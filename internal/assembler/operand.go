package assembler

import (
	"github.com/mrc-go/mrc/internal/bitcodec"
	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/instruction"
	"github.com/mrc-go/mrc/internal/parser"
)

// sizeExtends16 reports whether the low 16 bits of v are exactly the
// sign-extension of their own low byte, i.e. whether an immediate or
// displacement can be emitted as a single signed byte (0x83/0x6B-style
// forms) without changing its 16-bit value. Used identically by pass 1
// (for sizing) and pass 2 (for emission) so the two never disagree.
func sizeExtends16(v int32) bool {
	v16 := uint16(int16(v))
	return int16(int8(byte(v16))) == int16(v16)
}

// addressToRM classifies a parsed address operand into the r/m shape
// bitcodec.EncodeModRM needs. When symtab is nil (pass 1 sizing) any
// symbol-bearing displacement is resolved to the placeholder value 0 but
// still gets the same Kind a real value would receive, because that
// decision is driven by hasSymbolRef/tryEvalConstNoSymbols alone: a
// symbol-free displacement always picks the same Kind in both passes, and
// a symbol-bearing one is always forced to RMDisplacementWord in both.
func addressToRM(po parser.Operand, symtab *SymbolTable) (bitcodec.RegisterOrMemory, error) {
	regs, dispExpr, err := splitAddressExpr(po.Expr)
	if err != nil {
		return bitcodec.RegisterOrMemory{}, err
	}

	if len(regs) == 0 {
		var v int32
		if symtab != nil {
			if v, err = evalExpr(po.Expr, symtab); err != nil {
				return bitcodec.RegisterOrMemory{}, err
			}
		} else if cv, ok := tryEvalConstNoSymbols(po.Expr); ok {
			v = cv
		}
		return bitcodec.RegisterOrMemory{Kind: bitcodec.RMDirect, Direct: uint16(v)}, nil
	}

	mode, err := addressingModeFor(regs)
	if err != nil {
		return bitcodec.RegisterOrMemory{}, err
	}

	if constVal, ok := tryEvalConstNoSymbols(dispExpr); ok {
		switch {
		case constVal == 0 && mode == instruction.Bp:
			// mod=00,rm=110 is reserved for RMDirect; [bp] with no
			// displacement must be forced to the one-byte displacement
			// form (disp8=0) or it would decode back as a direct address.
			return bitcodec.RegisterOrMemory{Kind: bitcodec.RMDisplacementByte, Addressing: mode, Displacement: 0}, nil
		case constVal == 0:
			return bitcodec.RegisterOrMemory{Kind: bitcodec.RMIndirect, Addressing: mode}, nil
		case sizeExtends16(constVal):
			return bitcodec.RegisterOrMemory{Kind: bitcodec.RMDisplacementByte, Addressing: mode, Displacement: uint16(int16(constVal))}, nil
		default:
			return bitcodec.RegisterOrMemory{Kind: bitcodec.RMDisplacementWord, Addressing: mode, Displacement: uint16(constVal)}, nil
		}
	}

	var v int32
	if symtab != nil {
		if v, err = evalExpr(dispExpr, symtab); err != nil {
			return bitcodec.RegisterOrMemory{}, err
		}
	}
	return bitcodec.RegisterOrMemory{Kind: bitcodec.RMDisplacementWord, Addressing: mode, Displacement: uint16(v)}, nil
}

// resolveRM turns any operand valid in a ModR/M r/m position (a register or
// a memory address) into bitcodec's r/m shape.
func resolveRM(po parser.Operand, symtab *SymbolTable) (bitcodec.RegisterOrMemory, error) {
	switch po.Kind {
	case parser.OperandRegister:
		return bitcodec.RegisterOrMemory{Kind: bitcodec.RMRegister, Register: po.Register}, nil
	case parser.OperandAddress:
		return addressToRM(po, symtab)
	default:
		return bitcodec.RegisterOrMemory{}, errs.New(errs.InvalidOperandCombination, "operand is not a register or memory address")
	}
}

// resolveImmediate evaluates an immediate operand. In pass 1 (symtab nil)
// a symbol-bearing immediate resolves to the placeholder value 0; callers
// that need word-vs-byte sizing check symbolBearing, not the value.
func resolveImmediate(po parser.Operand, symtab *SymbolTable) (value int32, symbolBearing bool, err error) {
	if po.Kind != parser.OperandImmediate {
		return 0, false, errs.New(errs.InvalidOperandCombination, "operand is not an immediate")
	}
	symbolBearing = hasSymbolRef(po.Expr)
	if !symbolBearing {
		value, _ = tryEvalConstNoSymbols(po.Expr)
		return value, false, nil
	}
	if symtab != nil {
		value, err = evalExpr(po.Expr, symtab)
		if err != nil {
			return 0, true, err
		}
	}
	return value, true, nil
}

// operatingSize determines the byte/word width an instruction's opcode
// variant must select, scanning its operands for the first one that
// carries a definite size. Immediates never carry an intrinsic size.
func operatingSize(ops ...parser.Operand) (instruction.OperandSize, error) {
	for _, po := range ops {
		switch po.Kind {
		case parser.OperandRegister:
			if po.Size != nil {
				return *po.Size, nil
			}
		case parser.OperandAddress:
			if po.Size != nil {
				return *po.Size, nil
			}
		case parser.OperandSegment:
			return instruction.Word, nil
		}
	}
	return 0, errs.New(errs.SizeMismatch, "ambiguous operand size: add a byte/word qualifier")
}

// segmentOverrideOf returns the single segment override implied by an
// instruction's operands, erroring if destination and source name
// conflicting overrides.
func segmentOverrideOf(ops Operands) (*instruction.Segment, error) {
	var found *instruction.Segment
	consider := func(po parser.Operand) error {
		if po.Kind != parser.OperandAddress || po.SegmentOvr == nil {
			return nil
		}
		if found != nil && *found != *po.SegmentOvr {
			return errs.New(errs.InvalidOperandCombination, "conflicting segment overrides on one instruction")
		}
		found = po.SegmentOvr
		return nil
	}
	if err := consider(ops.Destination); err != nil {
		return nil, err
	}
	if ops.Kind == parser.OperandsDestinationAndSource {
		if err := consider(ops.Source); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// Operands is a local alias so operand.go need not import parser twice
// under two names; it is exactly parser.Operands.
type Operands = parser.Operands

func segmentOverridePrefixByte(seg instruction.Segment) byte {
	switch seg {
	case instruction.ES:
		return 0x26
	case instruction.CS:
		return 0x2E
	case instruction.SS:
		return 0x36
	default:
		return 0x3E
	}
}
