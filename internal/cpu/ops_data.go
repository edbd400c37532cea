package cpu

import "github.com/mrc-go/mrc/internal/instruction"

func (c *CPU) execMov(ins instruction.Instruction) error {
	srcVal, err := c.readOperand(ins, ins.Operands.Source)
	if err != nil {
		return err
	}
	return c.writeOperand(ins, ins.Operands.Destination, srcVal)
}

func (c *CPU) execPush(ins instruction.Instruction) error {
	v, err := c.readOperand(ins, ins.Operands.Destination)
	if err != nil {
		return err
	}
	return c.push(v)
}

func (c *CPU) execPop(ins instruction.Instruction) error {
	v, err := c.pop()
	if err != nil {
		return err
	}
	return c.writeOperand(ins, ins.Operands.Destination, v)
}

func (c *CPU) execXchg(ins instruction.Instruction) error {
	dstOp, srcOp := ins.Operands.Destination, ins.Operands.Source
	dstVal, err := c.readOperand(ins, dstOp)
	if err != nil {
		return err
	}
	srcVal, err := c.readOperand(ins, srcOp)
	if err != nil {
		return err
	}
	if err := c.writeOperand(ins, dstOp, srcVal); err != nil {
		return err
	}
	return c.writeOperand(ins, srcOp, dstVal)
}

func (c *CPU) execLea(ins instruction.Instruction) error {
	offset := c.effectiveOffset(ins.Operands.Source)
	return c.writeOperand(ins, ins.Operands.Destination, offset)
}

// execLxs implements LDS/LES: load the destination register with the
// effective address's word, and the named segment with the word that
// follows it in memory.
func (c *CPU) execLxs(ins instruction.Instruction, seg instruction.Segment) error {
	src := ins.Operands.Source
	segVal, offset := c.resolveAddress(ins, src)
	lo, err := c.readWord(segVal, offset)
	if err != nil {
		return err
	}
	hi, err := c.readWord(segVal, offset+2)
	if err != nil {
		return err
	}
	if err := c.writeOperand(ins, ins.Operands.Destination, lo); err != nil {
		return err
	}
	c.SetSegment(seg, hi)
	return nil
}

func (c *CPU) execLahf() {
	ah := byte(c.Flags & 0xFF)
	c.SetRegister(instruction.AhSp, instruction.Byte, uint16(ah))
}

func (c *CPU) execSahf() {
	ah := byte(c.GetRegister(instruction.AhSp, instruction.Byte))
	c.Flags = (c.Flags &^ 0xFF) | Flags(ah)
}

func (c *CPU) execPushf() error { return c.push(uint16(c.Flags)) }

func (c *CPU) execPopf() error {
	v, err := c.pop()
	if err != nil {
		return err
	}
	c.Flags = Flags(v)
	return nil
}

func (c *CPU) execIn(ins instruction.Instruction) error {
	portVal, err := c.readOperand(ins, ins.Operands.Source)
	if err != nil {
		return err
	}
	dst := ins.Operands.Destination
	if dst.Size == instruction.Byte {
		v, err := c.portRead(portVal)
		if err != nil {
			return err
		}
		return c.writeOperand(ins, dst, uint16(v))
	}
	lo, err := c.portRead(portVal)
	if err != nil {
		return err
	}
	hi, err := c.portRead(portVal + 1)
	if err != nil {
		return err
	}
	return c.writeOperand(ins, dst, uint16(lo)|uint16(hi)<<8)
}

func (c *CPU) execOut(ins instruction.Instruction) error {
	portVal, err := c.readOperand(ins, ins.Operands.Destination)
	if err != nil {
		return err
	}
	src := ins.Operands.Source
	srcVal, err := c.readOperand(ins, src)
	if err != nil {
		return err
	}
	if src.Size == instruction.Byte {
		return c.portWrite(portVal, byte(srcVal))
	}
	if err := c.portWrite(portVal, byte(srcVal)); err != nil {
		return err
	}
	return c.portWrite(portVal+1, byte(srcVal>>8))
}

func (c *CPU) execXlat(ins instruction.Instruction) error {
	bx := c.reg(regBX)
	al := c.GetRegister(instruction.AlAx, instruction.Byte)
	seg := instruction.DS
	if ins.SegmentOverride != nil {
		seg = *ins.SegmentOverride
	}
	v, err := c.readByte(c.GetSegment(seg), bx+al)
	if err != nil {
		return err
	}
	c.SetRegister(instruction.AlAx, instruction.Byte, uint16(v))
	return nil
}
