package assembler

import (
	"github.com/mrc-go/mrc/internal/bitcodec"
	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/instruction"
	"github.com/mrc-go/mrc/internal/parser"
)

// arithmeticGroupIndex mirrors decoder/arithmetic.go's arithmeticGroup
// ordering so 0x00-0x3F, 0x80-0x83 and the ALU reg-field selections agree
// with the decoder in both directions.
var arithmeticGroupIndex = map[instruction.Operation]byte{
	instruction.ADD: 0, instruction.OR: 1, instruction.ADC: 2, instruction.SBB: 3,
	instruction.AND: 4, instruction.SUB: 5, instruction.XOR: 6, instruction.CMP: 7,
}

// shiftGroupIndex mirrors decoder/logic.go's shiftGroup ordering.
var shiftGroupIndex = map[instruction.Operation]byte{
	instruction.ROL: 0, instruction.ROR: 1, instruction.RCL: 2, instruction.RCR: 3,
	instruction.SHL: 4, instruction.SHR: 5, instruction.SAR: 7,
}

// unaryGroupIndex mirrors decoder/logic.go's unaryGroup ordering (index 0/1
// are both TEST and are handled by a dedicated case, not through this map).
var unaryGroupIndex = map[instruction.Operation]byte{
	instruction.NOT: 2, instruction.NEG: 3, instruction.MUL: 4,
	instruction.IMUL: 5, instruction.DIV: 6, instruction.IDIV: 7,
}

var jccOpcode = map[instruction.Operation]byte{
	instruction.JO: 0x70, instruction.JNO: 0x71, instruction.JB: 0x72, instruction.JNB: 0x73,
	instruction.JE: 0x74, instruction.JNE: 0x75, instruction.JBE: 0x76, instruction.JNBE: 0x77,
	instruction.JS: 0x78, instruction.JNS: 0x79, instruction.JP: 0x7A, instruction.JNP: 0x7B,
	instruction.JL: 0x7C, instruction.JNL: 0x7D, instruction.JLE: 0x7E, instruction.JNLE: 0x7F,
}

var loopOpcode = map[instruction.Operation]byte{
	instruction.LOOPNZ: 0xE0, instruction.LOOPZ: 0xE1, instruction.LOOP: 0xE2, instruction.JCXZ: 0xE3,
}

var noOperandOpcode = map[instruction.Operation]byte{
	instruction.CLC: 0xF8, instruction.CMC: 0xF5, instruction.STC: 0xF9,
	instruction.CLD: 0xFC, instruction.STD: 0xFD, instruction.CLI: 0xFA, instruction.STI: 0xFB,
	instruction.HLT: 0xF4, instruction.WAIT: 0x9B, instruction.LOCK: 0xF0,
	instruction.CBW: 0x98, instruction.CWD: 0x99,
	instruction.PUSHF: 0x9C, instruction.POPF: 0x9D, instruction.SAHF: 0x9E, instruction.LAHF: 0x9F,
	instruction.MOVSB: 0xA4, instruction.MOVSW: 0xA5, instruction.CMPSB: 0xA6, instruction.CMPSW: 0xA7,
	instruction.STOSB: 0xAA, instruction.STOSW: 0xAB, instruction.LODSB: 0xAC, instruction.LODSW: 0xAD,
	instruction.SCASB: 0xAE, instruction.SCASW: 0xAF,
	instruction.INTO: 0xCE, instruction.IRET: 0xCF, instruction.XLAT: 0xD7,
	instruction.BAA: 0x27, instruction.DAS: 0x2F, instruction.AAA: 0x37, instruction.AAS: 0x3F,
}

// resolveBranchTarget evaluates a direct branch's target expression. In
// pass 1 an unbound label resolves to the placeholder 0: every branch
// family below has a size fixed independently of the target value, so the
// placeholder never affects layout.
func resolveBranchTarget(po parser.Operand, symtab *SymbolTable) (int32, error) {
	if po.Kind != parser.OperandImmediate {
		return 0, errs.New(errs.InvalidOperandCombination, "branch target must be a label or address expression")
	}
	if symtab == nil {
		if v, ok := tryEvalConstNoSymbols(po.Expr); ok {
			return v, nil
		}
		return 0, nil
	}
	return evalExpr(po.Expr, symtab)
}

func isAccumulator(po parser.Operand) bool {
	return po.Kind == parser.OperandRegister && po.Register == instruction.AlAx
}

// directAddressRegs reports whether an address operand names no base/index
// register at all (a bare displacement, i.e. a direct address).
func directAddressRegs(po parser.Operand) (bool, error) {
	if po.Kind != parser.OperandAddress {
		return false, nil
	}
	regs, _, err := splitAddressExpr(po.Expr)
	if err != nil {
		return false, err
	}
	return len(regs) == 0, nil
}

// buildInstruction emits the full byte sequence (prefixes, opcode, ModR/M,
// displacement, immediate) for one parsed instruction line. ipAfter is the
// offset one past the end of this instruction, needed to turn a branch
// target into the relative displacement the CPU engine expects (see
// internal/cpu/ops_control.go's branchTarget). When symtab is nil this
// still returns a correctly SIZED byte slice (pass 1 sizing call); the
// values inside it are meaningless until symtab is supplied in pass 2.
func buildInstruction(pi parser.Instruction, ipAfter uint16, symtab *SymbolTable) ([]byte, error) {
	var out []byte

	if pi.Repeat == instruction.RepeatEqual {
		out = append(out, 0xF3)
	} else if pi.Repeat == instruction.RepeatNotEqual {
		out = append(out, 0xF2)
	}
	seg, err := segmentOverrideOf(pi.Operands)
	if err != nil {
		return nil, err
	}
	if seg != nil {
		out = append(out, segmentOverridePrefixByte(*seg))
	}

	body, err := encodeBody(pi, ipAfter, symtab)
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

func encodeBody(pi parser.Instruction, ipAfter uint16, symtab *SymbolTable) ([]byte, error) {
	op := pi.Operation
	ops := pi.Operands

	if opcode, ok := noOperandOpcode[op]; ok {
		return []byte{opcode}, nil
	}

	switch op {
	case instruction.AAM, instruction.AAD:
		opcode := byte(0xD4)
		if op == instruction.AAD {
			opcode = 0xD5
		}
		return []byte{opcode, 0x0A}, nil

	case instruction.RET:
		if ops.Kind == parser.OperandsNone {
			return []byte{0xC3}, nil
		}
		imm, _, err := resolveImmediate(ops.Destination, symtab)
		if err != nil {
			return nil, err
		}
		return []byte{0xC2, byte(imm), byte(imm >> 8)}, nil

	case instruction.XCHG:
		if ops.Kind == parser.OperandsNone {
			return []byte{0x90}, nil
		}
		return encodeXchg(ops, symtab)

	case instruction.MOV:
		return encodeMov(ops, symtab)

	case instruction.LEA:
		dstReg := ops.Destination.Register
		rm, err := resolveRM(ops.Source, symtab)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x8D}, bitcodec.EncodeModRM(dstReg, rm)...), nil

	case instruction.LDS, instruction.LES:
		opcode := byte(0xC5)
		if op == instruction.LES {
			opcode = 0xC4
		}
		rm, err := resolveRM(ops.Source, symtab)
		if err != nil {
			return nil, err
		}
		return append([]byte{opcode}, bitcodec.EncodeModRM(ops.Destination.Register, rm)...), nil

	case instruction.PUSH:
		return encodePush(ops.Destination, symtab)
	case instruction.POP:
		return encodePop(ops.Destination, symtab)

	case instruction.INC, instruction.DEC:
		return encodeIncDec(op, ops.Destination, symtab)

	case instruction.ADD, instruction.OR, instruction.ADC, instruction.SBB,
		instruction.AND, instruction.SUB, instruction.XOR, instruction.CMP:
		return encodeArithmetic(op, ops, symtab)

	case instruction.TEST:
		return encodeTest(ops, symtab)

	case instruction.NOT, instruction.NEG, instruction.MUL, instruction.IMUL, instruction.DIV, instruction.IDIV:
		size, err := operatingSize(ops.Destination)
		if err != nil {
			return nil, err
		}
		rm, err := resolveRM(ops.Destination, symtab)
		if err != nil {
			return nil, err
		}
		opcode := byte(0xF6)
		if size == instruction.Word {
			opcode = 0xF7
		}
		modrm := bitcodec.EncodeModRM(instruction.Register(unaryGroupIndex[op]), rm)
		return append([]byte{opcode}, modrm...), nil

	case instruction.ROL, instruction.ROR, instruction.RCL, instruction.RCR,
		instruction.SHL, instruction.SHR, instruction.SAR:
		return encodeShift(op, ops, symtab)

	case instruction.CALL, instruction.JMP:
		return encodeCallJmp(op, ops.Destination, ipAfter, symtab)

	case instruction.JO, instruction.JNO, instruction.JB, instruction.JNB,
		instruction.JE, instruction.JNE, instruction.JBE, instruction.JNBE,
		instruction.JS, instruction.JNS, instruction.JP, instruction.JNP,
		instruction.JL, instruction.JNL, instruction.JLE, instruction.JNLE:
		return encodeShortBranch(jccOpcode[op], ops.Destination, ipAfter, symtab)

	case instruction.LOOP, instruction.LOOPZ, instruction.LOOPNZ, instruction.JCXZ:
		return encodeShortBranch(loopOpcode[op], ops.Destination, ipAfter, symtab)

	case instruction.INT:
		imm, _, err := resolveImmediate(ops.Destination, symtab)
		if err != nil {
			return nil, err
		}
		return []byte{0xCD, byte(imm)}, nil

	case instruction.IN:
		return encodeIn(ops, symtab)
	case instruction.OUT:
		return encodeOut(ops, symtab)

	default:
		return nil, errs.Newf(errs.InvalidOperandCombination, "operation %s is not supported by the assembler", op)
	}
}

func encodeXchg(ops Operands, symtab *SymbolTable) ([]byte, error) {
	dst, src := ops.Destination, ops.Source
	if isAccumulator(dst) && src.Kind == parser.OperandRegister && src.Size != nil && *src.Size == instruction.Word {
		return []byte{0x90 + src.Register.Encoding()}, nil
	}
	if isAccumulator(src) && dst.Kind == parser.OperandRegister && dst.Size != nil && *dst.Size == instruction.Word {
		return []byte{0x90 + dst.Register.Encoding()}, nil
	}
	size, err := operatingSize(dst, src)
	if err != nil {
		return nil, err
	}
	opcode := byte(0x86)
	if size == instruction.Word {
		opcode = 0x87
	}
	regOperand, rmOperand := dst, src
	if regOperand.Kind != parser.OperandRegister {
		regOperand, rmOperand = src, dst
	}
	rm, err := resolveRM(rmOperand, symtab)
	if err != nil {
		return nil, err
	}
	return append([]byte{opcode}, bitcodec.EncodeModRM(regOperand.Register, rm)...), nil
}

func encodeMov(ops Operands, symtab *SymbolTable) ([]byte, error) {
	dst, src := ops.Destination, ops.Source

	if dst.Kind == parser.OperandSegment {
		rm, err := resolveRM(src, symtab)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x8E}, bitcodec.EncodeModRM(instruction.Register(dst.Segment.Encoding()), rm)...), nil
	}
	if src.Kind == parser.OperandSegment {
		rm, err := resolveRM(dst, symtab)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x8C}, bitcodec.EncodeModRM(instruction.Register(src.Segment.Encoding()), rm)...), nil
	}

	if src.Kind == parser.OperandImmediate {
		if dst.Kind == parser.OperandRegister {
			size := *dst.Size
			imm, _, err := resolveImmediate(src, symtab)
			if err != nil {
				return nil, err
			}
			opcode := 0xB0 + dst.Register.Encoding()
			if size == instruction.Word {
				opcode = 0xB8 + dst.Register.Encoding()
				return []byte{opcode, byte(imm), byte(imm >> 8)}, nil
			}
			return []byte{opcode, byte(imm)}, nil
		}
		size, err := operatingSize(dst)
		if err != nil {
			return nil, err
		}
		rm, err := resolveRM(dst, symtab)
		if err != nil {
			return nil, err
		}
		imm, _, err := resolveImmediate(src, symtab)
		if err != nil {
			return nil, err
		}
		opcode := byte(0xC6)
		out := append([]byte{opcode}, bitcodec.EncodeModRM(instruction.Register(0), rm)...)
		if size == instruction.Word {
			out[0] = 0xC7
			return append(out, byte(imm), byte(imm>>8)), nil
		}
		return append(out, byte(imm)), nil
	}

	if isAccumulator(dst) {
		if direct, err := directAddressRegs(src); err != nil {
			return nil, err
		} else if direct {
			size := instruction.Word
			if dst.Size != nil {
				size = *dst.Size
			}
			rm, err := addressToRM(src, symtab)
			if err != nil {
				return nil, err
			}
			opcode := byte(0xA0)
			if size == instruction.Word {
				opcode = 0xA1
			}
			return []byte{opcode, byte(rm.Direct), byte(rm.Direct >> 8)}, nil
		}
	}
	if isAccumulator(src) {
		if direct, err := directAddressRegs(dst); err != nil {
			return nil, err
		} else if direct {
			size := instruction.Word
			if src.Size != nil {
				size = *src.Size
			}
			rm, err := addressToRM(dst, symtab)
			if err != nil {
				return nil, err
			}
			opcode := byte(0xA2)
			if size == instruction.Word {
				opcode = 0xA3
			}
			return []byte{opcode, byte(rm.Direct), byte(rm.Direct >> 8)}, nil
		}
	}

	size, err := operatingSize(dst, src)
	if err != nil {
		return nil, err
	}
	regOperand, rmOperand, dIsDest := dst, src, true
	if regOperand.Kind != parser.OperandRegister {
		regOperand, rmOperand, dIsDest = src, dst, false
	}
	rm, err := resolveRM(rmOperand, symtab)
	if err != nil {
		return nil, err
	}
	var opcode byte
	if size == instruction.Byte {
		opcode = 0x88
	} else {
		opcode = 0x89
	}
	if dIsDest {
		opcode |= 0b10
	}
	return append([]byte{opcode}, bitcodec.EncodeModRM(regOperand.Register, rm)...), nil
}

func encodePush(dst parser.Operand, symtab *SymbolTable) ([]byte, error) {
	switch dst.Kind {
	case parser.OperandRegister:
		return []byte{0x50 + dst.Register.Encoding()}, nil
	case parser.OperandSegment:
		switch dst.Segment {
		case instruction.ES:
			return []byte{0x06}, nil
		case instruction.CS:
			return []byte{0x0E}, nil
		case instruction.SS:
			return []byte{0x16}, nil
		default:
			return []byte{0x1E}, nil
		}
	case parser.OperandAddress:
		rm, err := resolveRM(dst, symtab)
		if err != nil {
			return nil, err
		}
		return append([]byte{0xFF}, bitcodec.EncodeModRM(instruction.Register(6), rm)...), nil
	default:
		return nil, errs.New(errs.InvalidOperandCombination, "PUSH requires a register, segment or memory operand")
	}
}

func encodePop(dst parser.Operand, symtab *SymbolTable) ([]byte, error) {
	switch dst.Kind {
	case parser.OperandRegister:
		return []byte{0x58 + dst.Register.Encoding()}, nil
	case parser.OperandSegment:
		switch dst.Segment {
		case instruction.ES:
			return []byte{0x07}, nil
		case instruction.SS:
			return []byte{0x17}, nil
		case instruction.DS:
			return []byte{0x1F}, nil
		default:
			return nil, errs.New(errs.InvalidOperandCombination, "POP CS is not a valid 8086 instruction")
		}
	case parser.OperandAddress:
		rm, err := resolveRM(dst, symtab)
		if err != nil {
			return nil, err
		}
		return append([]byte{0x8F}, bitcodec.EncodeModRM(instruction.Register(0), rm)...), nil
	default:
		return nil, errs.New(errs.InvalidOperandCombination, "POP requires a register, segment or memory operand")
	}
}

func encodeIncDec(op instruction.Operation, dst parser.Operand, symtab *SymbolTable) ([]byte, error) {
	if dst.Kind == parser.OperandRegister && dst.Size != nil && *dst.Size == instruction.Word {
		base := byte(0x40)
		if op == instruction.DEC {
			base = 0x48
		}
		return []byte{base + dst.Register.Encoding()}, nil
	}
	size, err := operatingSize(dst)
	if err != nil {
		return nil, err
	}
	rm, err := resolveRM(dst, symtab)
	if err != nil {
		return nil, err
	}
	regField := byte(0)
	if op == instruction.DEC {
		regField = 1
	}
	if size == instruction.Byte {
		return append([]byte{0xFE}, bitcodec.EncodeModRM(instruction.Register(regField), rm)...), nil
	}
	return append([]byte{0xFF}, bitcodec.EncodeModRM(instruction.Register(regField), rm)...), nil
}

func encodeArithmetic(op instruction.Operation, ops Operands, symtab *SymbolTable) ([]byte, error) {
	dst, src := ops.Destination, ops.Source
	group := arithmeticGroupIndex[op]

	if src.Kind == parser.OperandImmediate {
		size, err := operatingSize(dst)
		if err != nil {
			return nil, err
		}
		imm, symbolBearing, err := resolveImmediate(src, symtab)
		if err != nil {
			return nil, err
		}
		if isAccumulator(dst) {
			opcode := group<<3 | 0x04
			if size == instruction.Word {
				opcode = group<<3 | 0x05
				return []byte{opcode, byte(imm), byte(imm >> 8)}, nil
			}
			return []byte{opcode, byte(imm)}, nil
		}
		rm, err := resolveRM(dst, symtab)
		if err != nil {
			return nil, err
		}
		if size == instruction.Byte {
			modrm := bitcodec.EncodeModRM(instruction.Register(group), rm)
			return append(append([]byte{0x80}, modrm...), byte(imm)), nil
		}
		useByteForm := !symbolBearing && sizeExtends16(imm)
		if useByteForm {
			modrm := bitcodec.EncodeModRM(instruction.Register(group), rm)
			return append(append([]byte{0x83}, modrm...), byte(imm)), nil
		}
		modrm := bitcodec.EncodeModRM(instruction.Register(group), rm)
		return append(append([]byte{0x81}, modrm...), byte(imm), byte(imm>>8)), nil
	}

	size, err := operatingSize(dst, src)
	if err != nil {
		return nil, err
	}
	regOperand, rmOperand, dIsDest := dst, src, true
	if regOperand.Kind != parser.OperandRegister {
		regOperand, rmOperand, dIsDest = src, dst, false
	}
	rm, err := resolveRM(rmOperand, symtab)
	if err != nil {
		return nil, err
	}
	form := byte(0x00)
	if dIsDest {
		form = 0x02
	}
	if size == instruction.Word {
		form++
	}
	opcode := group<<3 | form
	return append([]byte{opcode}, bitcodec.EncodeModRM(regOperand.Register, rm)...), nil
}

func encodeTest(ops Operands, symtab *SymbolTable) ([]byte, error) {
	dst, src := ops.Destination, ops.Source
	if src.Kind == parser.OperandImmediate {
		size, err := operatingSize(dst)
		if err != nil {
			return nil, err
		}
		imm, _, err := resolveImmediate(src, symtab)
		if err != nil {
			return nil, err
		}
		if isAccumulator(dst) {
			if size == instruction.Word {
				return []byte{0xA9, byte(imm), byte(imm >> 8)}, nil
			}
			return []byte{0xA8, byte(imm)}, nil
		}
		rm, err := resolveRM(dst, symtab)
		if err != nil {
			return nil, err
		}
		modrm := bitcodec.EncodeModRM(instruction.Register(0), rm)
		opcode := byte(0xF6)
		if size == instruction.Word {
			opcode = 0xF7
			return append(append([]byte{opcode}, modrm...), byte(imm), byte(imm>>8)), nil
		}
		return append(append([]byte{opcode}, modrm...), byte(imm)), nil
	}

	size, err := operatingSize(dst, src)
	if err != nil {
		return nil, err
	}
	regOperand, rmOperand := dst, src
	if regOperand.Kind != parser.OperandRegister {
		regOperand, rmOperand = src, dst
	}
	rm, err := resolveRM(rmOperand, symtab)
	if err != nil {
		return nil, err
	}
	opcode := byte(0x84)
	if size == instruction.Word {
		opcode = 0x85
	}
	return append([]byte{opcode}, bitcodec.EncodeModRM(regOperand.Register, rm)...), nil
}

func encodeShift(op instruction.Operation, ops Operands, symtab *SymbolTable) ([]byte, error) {
	dst, src := ops.Destination, ops.Source
	size, err := operatingSize(dst)
	if err != nil {
		return nil, err
	}
	rm, err := resolveRM(dst, symtab)
	if err != nil {
		return nil, err
	}
	byCL := src.Kind == parser.OperandRegister && src.Register == instruction.ClCx
	if !byCL {
		imm, symbolBearing, err := resolveImmediate(src, symtab)
		if err != nil {
			return nil, err
		}
		if symbolBearing || imm != 1 {
			return nil, errs.New(errs.InvalidOperandCombination, "shift count must be 1 or CL")
		}
	}
	opcode := byte(0xD0)
	if byCL {
		opcode = 0xD2
	}
	if size == instruction.Word {
		opcode++
	}
	modrm := bitcodec.EncodeModRM(instruction.Register(shiftGroupIndex[op]), rm)
	return append([]byte{opcode}, modrm...), nil
}

func encodeCallJmp(op instruction.Operation, dst parser.Operand, ipAfter uint16, symtab *SymbolTable) ([]byte, error) {
	if dst.Kind == parser.OperandRegister || dst.Kind == parser.OperandAddress {
		rm, err := resolveRM(dst, symtab)
		if err != nil {
			return nil, err
		}
		reg := byte(2)
		if op == instruction.JMP {
			reg = 4
		}
		return append([]byte{0xFF}, bitcodec.EncodeModRM(instruction.Register(reg), rm)...), nil
	}

	target, err := resolveBranchTarget(dst, symtab)
	if err != nil {
		return nil, err
	}
	rel := int32(target) - int32(ipAfter)
	opcode := byte(0xE8)
	if op == instruction.JMP {
		opcode = 0xE9
	}
	rel16 := uint16(rel)
	return []byte{opcode, byte(rel16), byte(rel16 >> 8)}, nil
}

func encodeShortBranch(opcode byte, dst parser.Operand, ipAfter uint16, symtab *SymbolTable) ([]byte, error) {
	target, err := resolveBranchTarget(dst, symtab)
	if err != nil {
		return nil, err
	}
	rel := int32(target) - int32(ipAfter)
	if symtab != nil && !sizeExtends16(rel) {
		return nil, errs.Newf(errs.DisplacementOutOfRange, "branch displacement %d does not fit in 8 bits", rel)
	}
	return []byte{opcode, byte(int8(rel))}, nil
}

func encodeIn(ops Operands, symtab *SymbolTable) ([]byte, error) {
	dst, src := ops.Destination, ops.Source
	size, err := operatingSize(dst)
	if err != nil {
		return nil, err
	}
	if src.Kind == parser.OperandRegister && src.Register == instruction.DlDx {
		if size == instruction.Word {
			return []byte{0xED}, nil
		}
		return []byte{0xEC}, nil
	}
	port, _, err := resolveImmediate(src, symtab)
	if err != nil {
		return nil, err
	}
	if size == instruction.Word {
		return []byte{0xE5, byte(port)}, nil
	}
	return []byte{0xE4, byte(port)}, nil
}

func encodeOut(ops Operands, symtab *SymbolTable) ([]byte, error) {
	dst, src := ops.Destination, ops.Source
	size, err := operatingSize(src)
	if err != nil {
		return nil, err
	}
	if dst.Kind == parser.OperandRegister && dst.Register == instruction.DlDx {
		if size == instruction.Word {
			return []byte{0xEF}, nil
		}
		return []byte{0xEE}, nil
	}
	port, _, err := resolveImmediate(dst, symtab)
	if err != nil {
		return nil, err
	}
	if size == instruction.Word {
		return []byte{0xE7, byte(port)}, nil
	}
	return []byte{0xE6, byte(port)}, nil
}

// instructionSize computes the byte length buildInstruction would return,
// without requiring a symbol table: sizing decisions never depend on an
// actual bound value (see expr.go's hasSymbolRef), only on whether a value
// is symbol-free, so this is safe to call during pass 1 before any label
// past the current point has been bound.
func instructionSize(pi parser.Instruction) (int, error) {
	bytes, err := buildInstruction(pi, 0, nil)
	if err != nil {
		return 0, err
	}
	return len(bytes), nil
}
