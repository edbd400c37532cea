package decoder

import (
	"github.com/mrc-go/mrc/internal/bitcodec"
	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/instruction"
)

// arithmeticGroup is the standard 8086 ordering of the eight ALU operations
// selected by the group field of 0x00-0x3F and the reg field of the
// 0x80-0x83 immediate group.
var arithmeticGroup = [8]instruction.Operation{
	instruction.ADD, instruction.OR, instruction.ADC, instruction.SBB,
	instruction.AND, instruction.SUB, instruction.XOR, instruction.CMP,
}

func isArithmeticBlock(opCode byte) bool {
	if opCode > 0x3F {
		return false
	}
	low := opCode & 0b111
	return low <= 0x05
}

// decodeArithmeticBlock handles the six wire forms repeated for each of the
// eight 0x00-0x3F blocks: Eb/Gb, Ev/Gv, Gb/Eb, Gv/Ev, AL/Ib, AX/Iv.
func decodeArithmeticBlock(opCode byte, r streamReader) (instruction.Instruction, error) {
	op := arithmeticGroup[(opCode>>3)&0b111]
	form := opCode & 0b111

	switch form {
	case 0x00, 0x01:
		size := sizeFromBit(form)
		modrm, err := r.readModRM()
		if err != nil {
			return instruction.Instruction{}, err
		}
		dst := modrm.RegisterOrMemory.ToOperand(size)
		src := instruction.RegisterOperand(modrm.Register, size)
		return instruction.New(op, instruction.DestinationAndSource(dst, src)), nil
	case 0x02, 0x03:
		size := sizeFromBit(form)
		modrm, err := r.readModRM()
		if err != nil {
			return instruction.Instruction{}, err
		}
		dst := instruction.RegisterOperand(modrm.Register, size)
		src := modrm.RegisterOrMemory.ToOperand(size)
		return instruction.New(op, instruction.DestinationAndSource(dst, src)), nil
	case 0x04:
		imm, err := r.readU8()
		if err != nil {
			return instruction.Instruction{}, err
		}
		return instruction.New(op, instruction.DestinationAndSource(
			instruction.RegisterOperand(instruction.AlAx, instruction.Byte),
			instruction.ImmediateOperand(uint16(imm), instruction.Byte))), nil
	case 0x05:
		imm, err := r.readU16()
		if err != nil {
			return instruction.Instruction{}, err
		}
		return instruction.New(op, instruction.DestinationAndSource(
			instruction.RegisterOperand(instruction.AlAx, instruction.Word),
			instruction.ImmediateOperand(imm, instruction.Word))), nil
	default:
		return instruction.Instruction{}, errs.Newf(errs.InvalidOpCode, "0x%02X", opCode)
	}
}

// decodeArithmeticImmediate handles 0x80-0x83: an immediate applied to a
// register or memory operand, with the ALU operation selected by the
// ModR/M reg field rather than the opcode byte.
func decodeArithmeticImmediate(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	signExtend := opCode == 0x83

	modrmByte, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	reg := bitcodec.RegisterFromBits(modrmByte >> 3)
	op := arithmeticGroup[reg.Encoding()]

	rm, err := readRMFromByte(modrmByte, r)
	if err != nil {
		return instruction.Instruction{}, err
	}
	dst := rm.ToOperand(size)

	var imm uint16
	if opCode == 0x81 {
		imm, err = r.readU16()
	} else {
		var b byte
		b, err = r.readU8()
		if signExtend {
			imm = uint16(int16(int8(b)))
		} else {
			imm = uint16(b)
		}
	}
	if err != nil {
		return instruction.Instruction{}, err
	}

	return instruction.New(op, instruction.DestinationAndSource(
		dst, instruction.ImmediateOperand(imm, size))), nil
}

// readRMFromByte decodes the r/m half of a ModR/M byte that has already
// been consumed from r.
func readRMFromByte(modrmByte byte, r streamReader) (bitcodec.RegisterOrMemory, error) {
	return bitcodec.DecodeRegisterOrMemory(modrmByte, r)
}
