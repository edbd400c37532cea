package decoder

import "github.com/mrc-go/mrc/internal/instruction"

// jccTable maps the low nibble of a 0x70-0x7F short-jump opcode to the
// condition it tests.
var jccTable = [16]instruction.Operation{
	instruction.JO, instruction.JNO, instruction.JB, instruction.JNB,
	instruction.JE, instruction.JNE, instruction.JBE, instruction.JNBE,
	instruction.JS, instruction.JNS, instruction.JP, instruction.JNP,
	instruction.JL, instruction.JNL, instruction.JLE, instruction.JNLE,
}

func decodeShortJump(opCode byte, r streamReader) (instruction.Instruction, error) {
	disp, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	op := jccTable[opCode&0xF]
	return instruction.New(op, instruction.OffsetOnly(uint16(int16(int8(disp))))), nil
}

// loopTable maps the low 2 bits of 0xE0-0xE3 to the loop/conditional-branch
// operation.
var loopTable = [4]instruction.Operation{
	instruction.LOOPNZ, instruction.LOOPZ, instruction.LOOP, instruction.JCXZ,
}

func decodeLoopFamily(opCode byte, r streamReader) (instruction.Instruction, error) {
	disp, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	op := loopTable[opCode&0b11]
	return instruction.New(op, instruction.OffsetOnly(uint16(int16(int8(disp))))), nil
}

func decodeRet(opCode byte, r streamReader) (instruction.Instruction, error) {
	if opCode == 0xC3 {
		return instruction.New(instruction.RET, instruction.NoOperands()), nil
	}
	imm, err := r.readU16()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(instruction.RET, instruction.DestinationOnly(
		instruction.ImmediateOperand(imm, instruction.Word))), nil
}

func decodeAamAad(op instruction.Operation, r streamReader) (instruction.Instruction, error) {
	// Both AAM and AAD carry a base operand byte, conventionally 0x0A, which
	// this model discards rather than exposing as an operand.
	if _, err := r.readU8(); err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.New(op, instruction.NoOperands()), nil
}
