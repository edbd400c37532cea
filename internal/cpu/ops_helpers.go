package cpu

import "github.com/mrc-go/mrc/internal/instruction"

func maskFor(size instruction.OperandSize) uint32 {
	if size == instruction.Byte {
		return 0xFF
	}
	return 0xFFFF
}

func signBitFor(size instruction.OperandSize) uint16 {
	if size == instruction.Byte {
		return 0x80
	}
	return 0x8000
}

// addWithCarry computes a + b + carryIn at the given width and returns the
// truncated result plus CF/AF/OF, each derived exactly as spec.md §4.5 and
// the resolved Open Question on ADC's carry-in boundary specify: AF/CF/OF
// are computed from the full three-operand sum, not patched after a
// two-operand add.
func addWithCarry(a, b uint16, size instruction.OperandSize, carryIn uint16) (result uint16, cf, af, of bool) {
	m := maskFor(size)
	full := uint32(a) + uint32(b) + uint32(carryIn)
	result = uint16(full) & uint16(m)
	cf = full > m
	af = (uint32(a&0xF) + uint32(b&0xF) + uint32(carryIn)) > 0xF
	sign := signBitFor(size)
	of = (a&sign) == (b&sign) && (result&sign) != (a&sign)
	return
}

// subWithBorrow computes a - b - borrowIn at the given width, the SBB/SUB/
// CMP/DEC shared primitive.
func subWithBorrow(a, b uint16, size instruction.OperandSize, borrowIn uint16) (result uint16, cf, af, of bool) {
	m := maskFor(size)
	full := int64(a) - int64(b) - int64(borrowIn)
	result = uint16(uint32(full)) & uint16(m)
	cf = full < 0
	af = (int64(a&0xF) - int64(b&0xF) - int64(borrowIn)) < 0
	sign := signBitFor(size)
	of = (a&sign) != (b&sign) && (result&sign) != (a&sign)
	return
}

func (c *CPU) destSize(ins instruction.Instruction) instruction.OperandSize {
	return ins.Operands.Destination.Size
}
