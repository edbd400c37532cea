package decoder

import "github.com/mrc-go/mrc/internal/instruction"

// decodeEsc consumes the ModR/M byte that follows an ESC opcode (0xD8-0xDF)
// without interpreting it: this toolchain has no external coprocessor to
// hand the decoded operand to, so ESC is modeled as a fixed-size stub.
func decodeEsc(opCode byte, r streamReader) (instruction.Instruction, error) {
	modrmByte, err := r.readU8()
	if err != nil {
		return instruction.Instruction{}, err
	}
	if modrmByte>>6 != 0b11 {
		if _, err := readRMFromByte(modrmByte, r); err != nil {
			return instruction.Instruction{}, err
		}
	}
	return instruction.New(instruction.ESC, instruction.NoOperands()), nil
}
