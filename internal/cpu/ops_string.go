package cpu

import "github.com/mrc-go/mrc/internal/instruction"

// stringDelta is the signed step (as its two's-complement uint16) SI and/or
// DI advance by after a string primitive: size (1 or 2) bytes, negated when
// DF selects the decrementing direction.
func (c *CPU) stringDelta(size instruction.OperandSize) uint16 {
	delta := uint16(1)
	if size == instruction.Word {
		delta = 2
	}
	if c.Flags.Direction() {
		return -delta
	}
	return delta
}

func (c *CPU) sourceSegment(ins instruction.Instruction) uint16 {
	if ins.SegmentOverride != nil {
		return c.GetSegment(*ins.SegmentOverride)
	}
	return c.DS
}

// execString runs one string primitive, or, when ins carries a REP/REPE/
// REPNE prefix, the whole repeated loop described in spec.md §4.5: repeat
// while CX != 0 (decrementing CX each iteration), with CMPS/SCAS
// additionally requiring ZF==1 (REPE) or ZF==0 (REPNE) to continue.
func (c *CPU) execString(ins instruction.Instruction, op instruction.Operation, size instruction.OperandSize) error {
	step := func() error { return c.stringPrimitive(ins, op, size) }

	if ins.Repeat == instruction.RepeatNone {
		return step()
	}

	isCompare := op == instruction.CMPSB || op == instruction.CMPSW ||
		op == instruction.SCASB || op == instruction.SCASW

	for {
		cx := c.reg(regCX)
		if cx == 0 {
			return nil
		}
		if err := step(); err != nil {
			return err
		}
		c.setReg(regCX, cx-1)
		if c.reg(regCX) == 0 {
			return nil
		}
		if isCompare {
			wantZF := ins.Repeat == instruction.RepeatEqual
			if c.Flags.Zero() != wantZF {
				return nil
			}
		}
	}
}

func (c *CPU) stringPrimitive(ins instruction.Instruction, op instruction.Operation, size instruction.OperandSize) error {
	delta := c.stringDelta(size)
	switch op {
	case instruction.MOVSB, instruction.MOVSW:
		v, err := c.readSized(c.sourceSegment(ins), c.reg(regSI), size)
		if err != nil {
			return err
		}
		if err := c.writeSized(c.ES, c.reg(regDI), size, v); err != nil {
			return err
		}
		c.setReg(regSI, c.reg(regSI)+delta)
		c.setReg(regDI, c.reg(regDI)+delta)
	case instruction.CMPSB, instruction.CMPSW:
		a, err := c.readSized(c.sourceSegment(ins), c.reg(regSI), size)
		if err != nil {
			return err
		}
		b, err := c.readSized(c.ES, c.reg(regDI), size)
		if err != nil {
			return err
		}
		result, cf, af, of := subWithBorrow(a, b, size, 0)
		c.Flags.set(CARRY, cf)
		c.Flags.set(AUX_CARRY, af)
		c.Flags.set(OVERFLOW, of)
		flagsFromResult(&c.Flags, result, size == instruction.Word)
		c.setReg(regSI, c.reg(regSI)+delta)
		c.setReg(regDI, c.reg(regDI)+delta)
	case instruction.SCASB, instruction.SCASW:
		acc := c.GetRegister(instruction.AlAx, size)
		b, err := c.readSized(c.ES, c.reg(regDI), size)
		if err != nil {
			return err
		}
		result, cf, af, of := subWithBorrow(acc, b, size, 0)
		c.Flags.set(CARRY, cf)
		c.Flags.set(AUX_CARRY, af)
		c.Flags.set(OVERFLOW, of)
		flagsFromResult(&c.Flags, result, size == instruction.Word)
		c.setReg(regDI, c.reg(regDI)+delta)
	case instruction.LODSB, instruction.LODSW:
		v, err := c.readSized(c.sourceSegment(ins), c.reg(regSI), size)
		if err != nil {
			return err
		}
		c.SetRegister(instruction.AlAx, size, v)
		c.setReg(regSI, c.reg(regSI)+delta)
	case instruction.STOSB, instruction.STOSW:
		acc := c.GetRegister(instruction.AlAx, size)
		if err := c.writeSized(c.ES, c.reg(regDI), size, acc); err != nil {
			return err
		}
		c.setReg(regDI, c.reg(regDI)+delta)
	}
	return nil
}

func (c *CPU) readSized(seg, off uint16, size instruction.OperandSize) (uint16, error) {
	if size == instruction.Byte {
		v, err := c.readByte(seg, off)
		return uint16(v), err
	}
	return c.readWord(seg, off)
}

func (c *CPU) writeSized(seg, off uint16, size instruction.OperandSize, v uint16) error {
	if size == instruction.Byte {
		return c.writeByte(seg, off, byte(v))
	}
	return c.writeWord(seg, off, v)
}
