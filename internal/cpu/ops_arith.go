package cpu

import "github.com/mrc-go/mrc/internal/instruction"

func (c *CPU) execAddLike(ins instruction.Instruction, withCarry bool) error {
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
	var carryIn uint16
	if withCarry && c.Flags.Carry() {
		carryIn = 1
	}
	result, cf, af, of := addWithCarry(dstVal, srcVal, size, carryIn)
	c.Flags.set(CARRY, cf)
	c.Flags.set(AUX_CARRY, af)
	c.Flags.set(OVERFLOW, of)
	flagsFromResult(&c.Flags, result, size == instruction.Word)
	return c.writeOperand(ins, dstOp, result)
}

func (c *CPU) execSubLike(ins instruction.Instruction, withBorrow, discardResult bool) error {
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
	var borrowIn uint16
	if withBorrow && c.Flags.Carry() {
		borrowIn = 1
	}
	result, cf, af, of := subWithBorrow(dstVal, srcVal, size, borrowIn)
	c.Flags.set(CARRY, cf)
	c.Flags.set(AUX_CARRY, af)
	c.Flags.set(OVERFLOW, of)
	flagsFromResult(&c.Flags, result, size == instruction.Word)
	if discardResult {
		return nil
	}
	return c.writeOperand(ins, dstOp, result)
}

// execIncDec implements INC/DEC: an ADD/SUB of 1 that leaves CF untouched,
// per spec.md §4.5.
func (c *CPU) execIncDec(ins instruction.Instruction, isInc bool) error {
	dstOp := ins.Operands.Destination
	size := dstOp.Size
	dstVal, err := c.readOperand(ins, dstOp)
	if err != nil {
		return err
	}
	savedCF := c.Flags.Carry()
	var result uint16
	var af, of bool
	if isInc {
		result, _, af, of = addWithCarry(dstVal, 1, size, 0)
	} else {
		result, _, af, of = subWithBorrow(dstVal, 1, size, 0)
	}
	c.Flags.set(AUX_CARRY, af)
	c.Flags.set(OVERFLOW, of)
	c.Flags.set(CARRY, savedCF)
	flagsFromResult(&c.Flags, result, size == instruction.Word)
	return c.writeOperand(ins, dstOp, result)
}

func (c *CPU) execNeg(ins instruction.Instruction) error {
	dstOp := ins.Operands.Destination
	size := dstOp.Size
	dstVal, err := c.readOperand(ins, dstOp)
	if err != nil {
		return err
	}
	result, cf, af, of := subWithBorrow(0, dstVal, size, 0)
	c.Flags.set(CARRY, cf)
	c.Flags.set(AUX_CARRY, af)
	c.Flags.set(OVERFLOW, of)
	flagsFromResult(&c.Flags, result, size == instruction.Word)
	return c.writeOperand(ins, dstOp, result)
}

// execMul/execDiv hold AX (byte op) or DX:AX (word op) per spec.md §4.5;
// division by zero is surfaced to the caller as errs.ErrDivideByZero via
// execute's INT-0 conversion.
func (c *CPU) execMul(ins instruction.Instruction, signed bool) error {
	src := ins.Operands.Destination
	size := src.Size
	srcVal, err := c.readOperand(ins, src)
	if err != nil {
		return err
	}
	if size == instruction.Byte {
		al := c.GetRegister(instruction.AlAx, instruction.Byte)
		var product uint16
		var overflow bool
		if signed {
			p := int16(int8(byte(al))) * int16(int8(byte(srcVal)))
			product = uint16(p)
			overflow = p != int16(int8(byte(p)))
		} else {
			p := uint16(al) * uint16(byte(srcVal))
			product = p
			overflow = byte(p>>8) != 0
		}
		c.SetRegister(instruction.AlAx, instruction.Word, product)
		c.Flags.set(CARRY, overflow)
		c.Flags.set(OVERFLOW, overflow)
		return nil
	}
	ax := c.GetRegister(instruction.AlAx, instruction.Word)
	var lo, hi uint16
	var overflow bool
	if signed {
		p := int32(int16(ax)) * int32(int16(srcVal))
		lo, hi = uint16(p), uint16(p>>16)
		overflow = p != int32(int16(lo))
	} else {
		p := uint32(ax) * uint32(srcVal)
		lo, hi = uint16(p), uint16(p>>16)
		overflow = hi != 0
	}
	c.SetRegister(instruction.AlAx, instruction.Word, lo)
	c.SetRegister(instruction.DlDx, instruction.Word, hi)
	c.Flags.set(CARRY, overflow)
	c.Flags.set(OVERFLOW, overflow)
	return nil
}

func (c *CPU) execDiv(ins instruction.Instruction, signed bool) error {
	src := ins.Operands.Destination
	size := src.Size
	srcVal, err := c.readOperand(ins, src)
	if err != nil {
		return err
	}
	if size == instruction.Byte {
		if byte(srcVal) == 0 {
			return divideByZero()
		}
		ax := c.GetRegister(instruction.AlAx, instruction.Word)
		var quotient, remainder int32
		if signed {
			n, d := int32(int16(ax)), int32(int8(byte(srcVal)))
			quotient, remainder = n/d, n%d
			if quotient > 127 || quotient < -128 {
				return divideByZero()
			}
		} else {
			n, d := uint32(ax), uint32(byte(srcVal))
			quotient, remainder = int32(n/d), int32(n%d)
			if quotient > 255 {
				return divideByZero()
			}
		}
		c.SetRegister(instruction.AlAx, instruction.Byte, uint16(byte(quotient)))
		c.SetRegister(instruction.AhSp, instruction.Byte, uint16(byte(remainder)))
		return nil
	}
	if srcVal == 0 {
		return divideByZero()
	}
	ax := c.GetRegister(instruction.AlAx, instruction.Word)
	dx := c.GetRegister(instruction.DlDx, instruction.Word)
	var quotient, remainder int64
	if signed {
		n, d := int64(int32(uint32(dx)<<16|uint32(ax))), int64(int16(srcVal))
		quotient, remainder = n/d, n%d
		if quotient > 32767 || quotient < -32768 {
			return divideByZero()
		}
	} else {
		n, d := uint64(uint32(dx)<<16|uint32(ax)), uint64(srcVal)
		quotient, remainder = int64(n/d), int64(n%d)
		if quotient > 65535 {
			return divideByZero()
		}
	}
	c.SetRegister(instruction.AlAx, instruction.Word, uint16(quotient))
	c.SetRegister(instruction.DlDx, instruction.Word, uint16(remainder))
	return nil
}

func divideByZero() error { return errDivideByZero }

func (c *CPU) execCBW() {
	al := byte(c.GetRegister(instruction.AlAx, instruction.Byte))
	if al&0x80 != 0 {
		c.SetRegister(instruction.AlAx, instruction.Word, uint16(al)|0xFF00)
	} else {
		c.SetRegister(instruction.AlAx, instruction.Word, uint16(al))
	}
}

func (c *CPU) execCWD() {
	ax := c.GetRegister(instruction.AlAx, instruction.Word)
	if ax&0x8000 != 0 {
		c.SetRegister(instruction.DlDx, instruction.Word, 0xFFFF)
	} else {
		c.SetRegister(instruction.DlDx, instruction.Word, 0)
	}
}

func (c *CPU) execAAA() {
	al := c.GetRegister(instruction.AlAx, instruction.Byte)
	ah := c.GetRegister(instruction.AhSp, instruction.Byte)
	if (al&0x0F) > 9 || c.Flags.AuxCarry() {
		al += 6
		ah += 1
		c.Flags.set(AUX_CARRY, true)
		c.Flags.set(CARRY, true)
	} else {
		c.Flags.set(AUX_CARRY, false)
		c.Flags.set(CARRY, false)
	}
	al &= 0x0F
	c.SetRegister(instruction.AlAx, instruction.Byte, al)
	c.SetRegister(instruction.AhSp, instruction.Byte, ah)
}

func (c *CPU) execAAS() {
	al := c.GetRegister(instruction.AlAx, instruction.Byte)
	ah := c.GetRegister(instruction.AhSp, instruction.Byte)
	if (al&0x0F) > 9 || c.Flags.AuxCarry() {
		al -= 6
		ah -= 1
		c.Flags.set(AUX_CARRY, true)
		c.Flags.set(CARRY, true)
	} else {
		c.Flags.set(AUX_CARRY, false)
		c.Flags.set(CARRY, false)
	}
	al &= 0x0F
	c.SetRegister(instruction.AlAx, instruction.Byte, al)
	c.SetRegister(instruction.AhSp, instruction.Byte, ah)
}

func (c *CPU) execAAM() {
	al := byte(c.GetRegister(instruction.AlAx, instruction.Byte))
	ah := al / 10
	al = al % 10
	c.SetRegister(instruction.AlAx, instruction.Byte, uint16(al))
	c.SetRegister(instruction.AhSp, instruction.Byte, uint16(ah))
	flagsFromResult(&c.Flags, uint16(al), false)
}

func (c *CPU) execAAD() {
	al := byte(c.GetRegister(instruction.AlAx, instruction.Byte))
	ah := byte(c.GetRegister(instruction.AhSp, instruction.Byte))
	result := ah*10 + al
	c.SetRegister(instruction.AlAx, instruction.Byte, uint16(result))
	c.SetRegister(instruction.AhSp, instruction.Byte, 0)
	flagsFromResult(&c.Flags, uint16(result), false)
}

// execBAA implements DAA (decimal adjust after addition); spec.md names it
// BAA to pair it visually with AAA the way the 8086 opcode map itself
// groups them (0x27 is BAA here, 0x2F is DAS).
func (c *CPU) execBAA() {
	al := byte(c.GetRegister(instruction.AlAx, instruction.Byte))
	oldAL, oldCF := al, c.Flags.Carry()
	cf := false
	if (al&0x0F) > 9 || c.Flags.AuxCarry() {
		al += 6
		c.Flags.set(AUX_CARRY, true)
		cf = oldCF || al < oldAL
	} else {
		c.Flags.set(AUX_CARRY, false)
	}
	if oldAL > 0x99 || oldCF {
		al += 0x60
		cf = true
	}
	c.Flags.set(CARRY, cf)
	c.SetRegister(instruction.AlAx, instruction.Byte, uint16(al))
	flagsFromResult(&c.Flags, uint16(al), false)
}

func (c *CPU) execDAS() {
	al := byte(c.GetRegister(instruction.AlAx, instruction.Byte))
	oldAL, oldCF := al, c.Flags.Carry()
	cf := false
	if (al&0x0F) > 9 || c.Flags.AuxCarry() {
		cf = oldCF || al < 6
		al -= 6
		c.Flags.set(AUX_CARRY, true)
	} else {
		c.Flags.set(AUX_CARRY, false)
	}
	if oldAL > 0x99 || oldCF {
		al -= 0x60
		cf = true
	}
	c.Flags.set(CARRY, cf)
	c.SetRegister(instruction.AlAx, instruction.Byte, uint16(al))
	flagsFromResult(&c.Flags, uint16(al), false)
}
