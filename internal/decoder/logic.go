package decoder

import (
	"github.com/mrc-go/mrc/internal/bitcodec"
	"github.com/mrc-go/mrc/internal/instruction"
)

func decodeTestRegisterMemory(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	modrm, err := r.readModRM()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.TEST, instruction.DestinationAndSource(
		modrm.RegisterOrMemory.ToOperand(size), instruction.RegisterOperand(modrm.Register, size))), nil
}

func decodeTestAccumulatorImmediate(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	var imm uint16
	var err error
	if size == instruction.Byte {
		var b byte
		b, err = r.readU8()
		imm = uint16(b)
	} else {
		imm, err = r.readU16()
	}
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.TEST, instruction.DestinationAndSource(
		instruction.RegisterOperand(instruction.AlAx, size), instruction.ImmediateOperand(imm, size))), nil
}

// shiftGroup is the standard ordering of the eight shift/rotate operations
// selected by the ModR/M reg field of 0xD0-0xD3.
var shiftGroup = [8]instruction.Operation{
	instruction.ROL, instruction.ROR, instruction.RCL, instruction.RCR,
	instruction.SHL, instruction.SHR, instruction.SHL /* /6 undefined, aliases SHL */, instruction.SAR,
}

func decodeShiftGroup(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	byCL := opCode&0b10 != 0

	modrmByte, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	reg := bitcodec.RegisterFromBits(modrmByte >> 3)
	op := shiftGroup[reg.Encoding()]

	rm, err := readRMFromByte(modrmByte, r)
	if err != nil {
		return instruction.Instruction{}, err
	}
	dst := rm.ToOperand(size)

	var src instruction.Operand
	if byCL {
		src = instruction.RegisterOperand(instruction.ClCx, instruction.Byte)
	} else {
		src = instruction.ImmediateOperand(1, instruction.Byte)
	}
	return instruction.New(op, instruction.DestinationAndSource(dst, src)), nil
}

// unaryGroup is the ordering selected by the ModR/M reg field of 0xF6/0xF7.
var unaryGroup = [8]instruction.Operation{
	instruction.TEST, instruction.TEST, instruction.NOT, instruction.NEG,
	instruction.MUL, instruction.IMUL, instruction.DIV, instruction.IDIV,
}

func decodeUnaryGroup(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)

	modrmByte, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	reg := bitcodec.RegisterFromBits(modrmByte >> 3)
	op := unaryGroup[reg.Encoding()]

	rm, err := readRMFromByte(modrmByte, r)
	if err != nil {
		return instruction.Instruction{}, err
	}
	dst := rm.ToOperand(size)

	if op == instruction.TEST {
		var imm uint16
		if size == instruction.Byte {
			var b byte
			b, err = r.readU8()
			imm = uint16(b)
		} else {
			imm, err = r.readU16()
		}
		if err != nil {
			return instruction.Instruction{}, err
		}
		return instruction.New(instruction.TEST, instruction.DestinationAndSource(dst, instruction.ImmediateOperand(imm, size))), nil
	}
	return instruction.New(op, instruction.DestinationOnly(dst)), nil
}

func decodeIncDecRM(opCode byte, r streamReader) (instruction.Instruction, error) {
	modrmByte, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	reg := bitcodec.RegisterFromBits(modrmByte >> 3)
	rm, err := readRMFromByte(modrmByte, r)
	if err != nil {
		return instruction.Instruction{}, err
	}
	op := instruction.INC
	if reg.Encoding() == 1 {
		op = instruction.DEC
	}
	return instruction.New(op, instruction.DestinationOnly(rm.ToOperand(instruction.Byte))), nil
}

// decodeGroupFF handles 0xFF: INC/DEC/CALL/JMP/PUSH on a word-sized r/m,
// selected by the ModR/M reg field. This toolchain models only the INC/DEC
// and PUSH forms that reuse operations already in the model; indirect
// CALL/JMP through a group-FF operand are represented as CALL/JMP with a
// memory destination operand.
func decodeGroupFF(r streamReader) (instruction.Instruction, error) {
	modrmByte, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	reg := bitcodec.RegisterFromBits(modrmByte >> 3)
	rm, err := readRMFromByte(modrmByte, r)
	if err != nil {
		return instruction.Instruction{}, err
	}
	dst := rm.ToOperand(instruction.Word)

	switch reg.Encoding() {
	case 0:
		return instruction.New(instruction.INC, instruction.DestinationOnly(dst)), nil
	case 1:
		return instruction.New(instruction.DEC, instruction.DestinationOnly(dst)), nil
	case 2:
		return instruction.New(instruction.CALL, instruction.DestinationOnly(dst)), nil
	case 4:
		return instruction.New(instruction.JMP, instruction.DestinationOnly(dst)), nil
	case 6:
		return instruction.New(instruction.PUSH, instruction.DestinationOnly(dst)), nil
	default:
		return instruction.New(instruction.INC, instruction.DestinationOnly(dst)), nil
	}
}
