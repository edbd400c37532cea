package cpu

import "github.com/mrc-go/mrc/internal/instruction"

// addressingBase sums the base/index registers an indirect addressing mode
// selects, per spec.md's eight-entry table.
func (c *CPU) addressingBase(mode instruction.AddressingMode) uint16 {
	switch mode {
	case instruction.BxSi:
		return c.reg(regBX) + c.reg(regSI)
	case instruction.BxDi:
		return c.reg(regBX) + c.reg(regDI)
	case instruction.BpSi:
		return c.reg(regBP) + c.reg(regSI)
	case instruction.BpDi:
		return c.reg(regBP) + c.reg(regDI)
	case instruction.Si:
		return c.reg(regSI)
	case instruction.Di:
		return c.reg(regDI)
	case instruction.Bp:
		return c.reg(regBP)
	default: // instruction.Bx
		return c.reg(regBX)
	}
}

// defaultSegment returns the segment a memory operand uses absent an
// override: SS for BP-based effective addresses, DS otherwise (spec.md
// §4.5's segment-override rule).
func defaultSegment(mode instruction.AddressingMode, isBPBased bool) instruction.Segment {
	if isBPBased {
		return instruction.SS
	}
	return instruction.DS
}

func isBPBased(mode instruction.AddressingMode) bool {
	return mode == instruction.BpSi || mode == instruction.BpDi || mode == instruction.Bp
}

// resolveAddress computes the (segment-value, offset) a memory Operand
// reads/writes through, honoring ins' segment override.
func (c *CPU) resolveAddress(ins instruction.Instruction, op instruction.Operand) (uint16, uint16) {
	var offset uint16
	var seg instruction.Segment
	switch op.Kind {
	case instruction.KindDirect:
		offset = op.Direct
		seg = instruction.DS
	default: // KindIndirect
		offset = c.addressingBase(op.Addressing) + op.Displacement
		seg = defaultSegment(op.Addressing, isBPBased(op.Addressing))
	}
	if ins.SegmentOverride != nil {
		seg = *ins.SegmentOverride
	}
	return c.GetSegment(seg), offset
}

// readOperand returns op's value, reading through memory for Direct/
// Indirect operands and resolving registers/segments/immediates directly.
func (c *CPU) readOperand(ins instruction.Instruction, op instruction.Operand) (uint16, error) {
	switch op.Kind {
	case instruction.KindRegister:
		return c.GetRegister(op.Register, op.Size), nil
	case instruction.KindSegment:
		return c.GetSegment(op.Segment), nil
	case instruction.KindImmediate:
		return op.Immediate, nil
	default: // Direct, Indirect
		segVal, offset := c.resolveAddress(ins, op)
		if op.Size == instruction.Byte {
			v, err := c.readByte(segVal, offset)
			return uint16(v), err
		}
		return c.readWord(segVal, offset)
	}
}

// writeOperand stores v into op, the inverse of readOperand. Immediate
// operands are never write targets; callers never construct one as a
// destination.
func (c *CPU) writeOperand(ins instruction.Instruction, op instruction.Operand, v uint16) error {
	switch op.Kind {
	case instruction.KindRegister:
		c.SetRegister(op.Register, op.Size, v)
		return nil
	case instruction.KindSegment:
		c.SetSegment(op.Segment, v)
		return nil
	default: // Direct, Indirect
		segVal, offset := c.resolveAddress(ins, op)
		if op.Size == instruction.Byte {
			return c.writeByte(segVal, offset, byte(v))
		}
		return c.writeWord(segVal, offset, v)
	}
}

// effectiveOffset returns the 16-bit offset part of a memory operand
// without reading through it, the value LEA loads into its destination.
func (c *CPU) effectiveOffset(op instruction.Operand) uint16 {
	if op.Kind == instruction.KindDirect {
		return op.Direct
	}
	return c.addressingBase(op.Addressing) + op.Displacement
}

// push/pop implement the 8086 stack convention: SP is decremented before a
// push and incremented after a pop, and the stack lives in the SS segment.
func (c *CPU) push(v uint16) error {
	sp := c.reg(regSP) - 2
	c.setReg(regSP, sp)
	return c.writeWord(c.SS, sp, v)
}

func (c *CPU) pop() (uint16, error) {
	sp := c.reg(regSP)
	v, err := c.readWord(c.SS, sp)
	if err != nil {
		return 0, err
	}
	c.setReg(regSP, sp+2)
	return v, nil
}
