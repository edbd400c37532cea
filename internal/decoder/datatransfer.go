package decoder

import (
	"github.com/mrc-go/mrc/internal/bitcodec"
	"github.com/mrc-go/mrc/internal/instruction"
)

func decodeMovRegisterMemory(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	modrm, err := r.readModRM()
	if err != nil {
		return instruction.Instruction{}, err
	}
	rm := modrm.RegisterOrMemory.ToOperand(size)
	reg := instruction.RegisterOperand(modrm.Register, size)

	// bit 1 (the 'd' bit) selects direction: 0 = reg is source, 1 = reg is dest.
	if opCode&0b10 == 0 {
		return instruction.New(instruction.MOV, instruction.DestinationAndSource(rm, reg)), nil
	}
	return instruction.New(instruction.MOV, instruction.DestinationAndSource(reg, rm)), nil
}

func decodeMovSegmentToRM(r streamReader) (instruction.Instruction, error) {
	modrm, err := r.readModRM()
	if err != nil {
		return instruction.Instruction{}, err
	}
	seg := bitcodec.SegmentFromBits(modrm.Register.Encoding())
	rm := modrm.RegisterOrMemory.ToOperand(instruction.Word)
	return instruction.New(instruction.MOV, instruction.DestinationAndSource(rm, instruction.SegmentOperand(seg))), nil
}

func decodeMovRMToSegment(r streamReader) (instruction.Instruction, error) {
	modrm, err := r.readModRM()
	if err != nil {
		return instruction.Instruction{}, err
	}
	seg := bitcodec.SegmentFromBits(modrm.Register.Encoding())
	rm := modrm.RegisterOrMemory.ToOperand(instruction.Word)
	return instruction.New(instruction.MOV, instruction.DestinationAndSource(instruction.SegmentOperand(seg), rm)), nil
}

func decodeMovImmediateToRM(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	modrm, err := r.readModRM()
	if err != nil {
		return instruction.Instruction{}, err
	}
	dst := modrm.RegisterOrMemory.ToOperand(size)

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
	return instruction.New(instruction.MOV, instruction.DestinationAndSource(dst, instruction.ImmediateOperand(imm, size))), nil
}

func decodeMovImmediateToRegister(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := instruction.Byte
	if opCode >= 0xB8 {
		size = instruction.Word
	}
	reg := bitcodec.RegisterFromBits(opCode & 0b111)

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
	return instruction.New(instruction.MOV, instruction.DestinationAndSource(
		instruction.RegisterOperand(reg, size), instruction.ImmediateOperand(imm, size))), nil
}

func decodeMovMemoryToAccumulator(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	addr, err := r.readU16()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.MOV, instruction.DestinationAndSource(
		instruction.RegisterOperand(instruction.AlAx, size),
		instruction.DirectOperand(addr, size))), nil
}

func decodeMovAccumulatorToMemory(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	addr, err := r.readU16()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.MOV, instruction.DestinationAndSource(
		instruction.DirectOperand(addr, size),
		instruction.RegisterOperand(instruction.AlAx, size))), nil
}

func decodeXchgRegisterMemory(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	modrm, err := r.readModRM()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.XCHG, instruction.DestinationAndSource(
		modrm.RegisterOrMemory.ToOperand(size), instruction.RegisterOperand(modrm.Register, size))), nil
}

func decodeXchgAccumulator(opCode byte) instruction.Instruction {
	reg := bitcodec.RegisterFromBits(opCode & 0b111)
	return instruction.New(instruction.XCHG, instruction.DestinationAndSource(
		instruction.RegisterOperand(instruction.AlAx, instruction.Word),
		instruction.RegisterOperand(reg, instruction.Word)))
}

func decodeLea(r streamReader) (instruction.Instruction, error) {
	modrm, err := r.readModRM()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.LEA, instruction.DestinationAndSource(
		instruction.RegisterOperand(modrm.Register, instruction.Word),
		modrm.RegisterOrMemory.ToOperand(instruction.Word))), nil
}

func decodeLxs(op instruction.Operation, r streamReader) (instruction.Instruction, error) {
	modrm, err := r.readModRM()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(op, instruction.DestinationAndSource(
		instruction.RegisterOperand(modrm.Register, instruction.Word),
		modrm.RegisterOrMemory.ToOperand(instruction.Word))), nil
}

func decodePopRM(r streamReader) (instruction.Instruction, error) {
	modrmByte, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	rm, err := readRMFromByte(modrmByte, r)
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.POP, instruction.DestinationOnly(rm.ToOperand(instruction.Word))), nil
}

func decodeInFixedPort(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	port, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.IN, instruction.DestinationAndSource(
		instruction.RegisterOperand(instruction.AlAx, size),
		instruction.ImmediateOperand(uint16(port), instruction.Byte))), nil
}

func decodeInVariablePort(opCode byte) instruction.Instruction {
	size := sizeFromBit(opCode)
	return instruction.New(instruction.IN, instruction.DestinationAndSource(
		instruction.RegisterOperand(instruction.AlAx, size),
		instruction.RegisterOperand(instruction.DlDx, instruction.Word)))
}

func decodeOutFixedPort(opCode byte, r streamReader) (instruction.Instruction, error) {
	size := sizeFromBit(opCode)
	port, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.OUT, instruction.DestinationAndSource(
		instruction.ImmediateOperand(uint16(port), instruction.Byte),
		instruction.RegisterOperand(instruction.AlAx, size))), nil
}

func decodeOutVariablePort(opCode byte) instruction.Instruction {
	size := sizeFromBit(opCode)
	return instruction.New(instruction.OUT, instruction.DestinationAndSource(
		instruction.RegisterOperand(instruction.DlDx, instruction.Word),
		instruction.RegisterOperand(instruction.AlAx, size)))
}
