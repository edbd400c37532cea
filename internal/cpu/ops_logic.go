package cpu

import "github.com/mrc-go/mrc/internal/instruction"

// execLogic implements AND/OR/XOR/TEST: CF and OF are cleared, AF is left
// undefined (this toolchain leaves it unmodified rather than fabricating a
// value), and Z/S/P come from the result. TEST discards the result.
func (c *CPU) execLogic(ins instruction.Instruction, combine func(a, b uint16) uint16, discard bool) error {
	dstOp, srcOp := ins.Operands.Destination, ins.Operands.Source
	size := dstOp.Size
	dstVal, err := c.readOperand(ins, dstOp)
	if err != nil {
		return err
	}
	srcVal, err := c.readOperand(ins, srcOp)
	if err != nil {
		return err
	}
	result := combine(dstVal, srcVal) & uint16(maskFor(size))
	c.Flags.set(CARRY, false)
	c.Flags.set(OVERFLOW, false)
	flagsFromResult(&c.Flags, result, size == instruction.Word)
	if discard {
		return nil
	}
	return c.writeOperand(ins, dstOp, result)
}

func (c *CPU) execNot(ins instruction.Instruction) error {
	dstOp := ins.Operands.Destination
	dstVal, err := c.readOperand(ins, dstOp)
	if err != nil {
		return err
	}
	result := ^dstVal & uint16(maskFor(dstOp.Size))
	return c.writeOperand(ins, dstOp, result)
}

// execShiftRotate implements SHL/SHR/SAR/ROL/ROR/RCL/RCR. count is 1 for
// the single-bit form or CL's value for the by-register form (spec.md
// §4.2's D0-D3 table); OF is defined only when count==1, per spec.md §4.5.
func (c *CPU) execShiftRotate(ins instruction.Instruction, op instruction.Operation) error {
	dstOp, srcOp := ins.Operands.Destination, ins.Operands.Source
	size := dstOp.Size
	countVal, err := c.readOperand(ins, srcOp)
	if err != nil {
		return err
	}
	count := countVal & 0x1F
	dstVal, err := c.readOperand(ins, dstOp)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	width := uint(8)
	if size == instruction.Word {
		width = 16
	}
	sign := signBitFor(size)
	mask := uint16(maskFor(size))

	var result uint16
	var cf bool
	switch op {
	case instruction.SHL:
		result, cf = shlOnce(dstVal, count, sign, mask)
		c.setShiftOverflow(op, dstVal, result, sign, count)
	case instruction.SHR:
		result, cf = shrOnce(dstVal, count)
		if count == 1 {
			c.Flags.set(OVERFLOW, dstVal&sign != 0)
		}
	case instruction.SAR:
		result, cf = sarOnce(dstVal, count, size)
		if count == 1 {
			c.Flags.set(OVERFLOW, false)
		}
	case instruction.ROL:
		result, cf = rolOnce(dstVal, count, width, mask)
		if count == 1 {
			c.Flags.set(OVERFLOW, (result&sign != 0) != (result&1 != 0))
		}
	case instruction.ROR:
		result, cf = rorOnce(dstVal, count, width, mask)
		if count == 1 {
			top := result & sign
			second := (result << 1) & sign
			c.Flags.set(OVERFLOW, (top != 0) != (second != 0))
		}
	case instruction.RCL:
		result, cf = rclOnce(dstVal, count, width, mask, c.Flags.Carry())
		if count == 1 {
			c.Flags.set(OVERFLOW, (result&sign != 0) != cf)
		}
	case instruction.RCR:
		result, cf = rcrOnce(dstVal, count, width, mask, c.Flags.Carry())
		if count == 1 {
			c.Flags.set(OVERFLOW, (result&sign != 0) != cf)
		}
	}
	c.Flags.set(CARRY, cf)
	if op == instruction.SHL || op == instruction.SHR || op == instruction.SAR {
		flagsFromResult(&c.Flags, result, size == instruction.Word)
	}
	return c.writeOperand(ins, dstOp, result)
}

func (c *CPU) setShiftOverflow(op instruction.Operation, before, after, sign, count uint16) {
	if count == 1 {
		c.Flags.set(OVERFLOW, (after&sign != 0) != (before&sign != 0))
	}
}

func shlOnce(v, count, sign, mask uint16) (uint16, bool) {
	var cf bool
	result := v
	for i := uint16(0); i < count; i++ {
		cf = result&sign != 0
		result = (result << 1) & mask
	}
	return result, cf
}

func shrOnce(v, count uint16) (uint16, bool) {
	var cf bool
	result := v
	for i := uint16(0); i < count; i++ {
		cf = result&1 != 0
		result >>= 1
	}
	return result, cf
}

func sarOnce(v, count uint16, size instruction.OperandSize) (uint16, bool) {
	var cf bool
	result := v
	sign := signBitFor(size)
	for i := uint16(0); i < count; i++ {
		cf = result&1 != 0
		signed := result&sign != 0
		result >>= 1
		if signed {
			result |= sign
		}
	}
	return result, cf
}

func rolOnce(v, count uint16, width uint, mask uint16) (uint16, bool) {
	n := count % uint16(width)
	topBit := uint16(1) << (width - 1)
	result := v
	for i := uint16(0); i < n; i++ {
		top := result&topBit != 0
		result = ((result << 1) | boolBit(top)) & mask
	}
	cf := result&1 != 0
	if n == 0 {
		cf = v&1 != 0
	}
	return result, cf
}

func rorOnce(v, count uint16, width uint, mask uint16) (uint16, bool) {
	n := count % uint16(width)
	result := v
	for i := uint16(0); i < n; i++ {
		bottom := result&1 != 0
		result = (result >> 1) & mask
		if bottom {
			result |= 1 << (width - 1)
		}
	}
	cf := result&(1<<(width-1)) != 0
	if n == 0 {
		cf = v&(1<<(width-1)) != 0
	}
	return result, cf
}

func rclOnce(v, count uint16, width uint, mask uint16, carryIn bool) (uint16, bool) {
	n := count % uint16(width+1)
	result := v
	cf := carryIn
	for i := uint16(0); i < n; i++ {
		newCF := result&(1<<(width-1)) != 0
		result = ((result << 1) | boolBit(cf)) & mask
		cf = newCF
	}
	return result, cf
}

func rcrOnce(v, count uint16, width uint, mask uint16, carryIn bool) (uint16, bool) {
	n := count % uint16(width+1)
	result := v
	cf := carryIn
	for i := uint16(0); i < n; i++ {
		newCF := result&1 != 0
		result = (result >> 1) & mask
		if cf {
			result |= 1 << (width - 1)
		}
		cf = newCF
	}
	return result, cf
}

func boolBit(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
