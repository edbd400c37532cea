package cpu

import "github.com/mrc-go/mrc/internal/instruction"

// branchTarget resolves a CALL/JMP's operand to the near (same-segment) IP
// it should jump to: OffsetOnly carries a relative displacement already
// sign-extended by the decoder (spec.md §4.2's short/near-jump forms),
// DestinationOnly carries an indirect target read through the operand.
func (c *CPU) branchTarget(ins instruction.Instruction) (uint16, error) {
	switch ins.Operands.Kind {
	case instruction.SetOffset:
		return c.IP + ins.Operands.Offset, nil
	default: // SetDestination
		return c.readOperand(ins, ins.Operands.Destination)
	}
}

func (c *CPU) execCall(ins instruction.Instruction) error {
	target, err := c.branchTarget(ins)
	if err != nil {
		return err
	}
	if err := c.push(c.IP); err != nil {
		return err
	}
	c.IP = target
	return nil
}

func (c *CPU) execJmp(ins instruction.Instruction) error {
	if ins.Operands.Kind == instruction.SetSegmentAndOffset {
		c.CS = ins.Operands.SegmentVal
		c.IP = ins.Operands.Offset
		return nil
	}
	target, err := c.branchTarget(ins)
	if err != nil {
		return err
	}
	c.IP = target
	return nil
}

func (c *CPU) execRet(ins instruction.Instruction) error {
	ip, err := c.pop()
	if err != nil {
		return err
	}
	c.IP = ip
	if ins.Operands.Kind == instruction.SetDestination {
		extra, err := c.readOperand(ins, ins.Operands.Destination)
		if err != nil {
			return err
		}
		c.setReg(regSP, c.reg(regSP)+extra)
	}
	return nil
}

// conditionTrue evaluates the flag test a Jcc mnemonic names, per spec.md
// §3's condition table.
func (c *CPU) conditionTrue(op instruction.Operation) bool {
	switch op {
	case instruction.JE:
		return c.Flags.Zero()
	case instruction.JNE:
		return !c.Flags.Zero()
	case instruction.JL:
		return c.Flags.Sign() != c.Flags.Overflow()
	case instruction.JNL:
		return c.Flags.Sign() == c.Flags.Overflow()
	case instruction.JLE:
		return c.Flags.Zero() || c.Flags.Sign() != c.Flags.Overflow()
	case instruction.JNLE:
		return !c.Flags.Zero() && c.Flags.Sign() == c.Flags.Overflow()
	case instruction.JB:
		return c.Flags.Carry()
	case instruction.JNB:
		return !c.Flags.Carry()
	case instruction.JBE:
		return c.Flags.Carry() || c.Flags.Zero()
	case instruction.JNBE:
		return !c.Flags.Carry() && !c.Flags.Zero()
	case instruction.JP:
		return c.Flags.Parity()
	case instruction.JNP:
		return !c.Flags.Parity()
	case instruction.JO:
		return c.Flags.Overflow()
	case instruction.JNO:
		return !c.Flags.Overflow()
	case instruction.JS:
		return c.Flags.Sign()
	case instruction.JNS:
		return !c.Flags.Sign()
	default:
		return false
	}
}

func (c *CPU) execJcc(ins instruction.Instruction) {
	if c.conditionTrue(ins.Operation) {
		c.IP += ins.Operands.Offset
	}
}

// execLoop implements LOOP/LOOPZ/LOOPNZ/JCXZ: CX is decremented first (JCXZ
// excepted, which tests CX without touching it), then the branch fires per
// spec.md §4.2's loop table.
func (c *CPU) execLoop(ins instruction.Instruction) {
	if ins.Operation == instruction.JCXZ {
		if c.reg(regCX) == 0 {
			c.IP += ins.Operands.Offset
		}
		return
	}
	cx := c.reg(regCX) - 1
	c.setReg(regCX, cx)
	take := cx != 0
	switch ins.Operation {
	case instruction.LOOPZ:
		take = take && c.Flags.Zero()
	case instruction.LOOPNZ:
		take = take && !c.Flags.Zero()
	}
	if take {
		c.IP += ins.Operands.Offset
	}
}

// execInterrupt implements the shared CALL-through-vector-table machinery
// INT, INTO (when OF is set) and a DIV/IDIV divide error all funnel through:
// push FLAGS, CS, IP, clear IF and TF, then load CS:IP from the four-byte
// vector entry at 0000:vecNum*4. A zero-valued entry is treated as an
// uninitialized vector and halts rather than jumping to 0000:0000, per the
// resolved open question on INT 0's behavior.
func (c *CPU) execInterrupt(vecNum byte) error {
	newIP, err := c.readWord(0, uint16(vecNum)*4)
	if err != nil {
		return err
	}
	newCS, err := c.readWord(0, uint16(vecNum)*4+2)
	if err != nil {
		return err
	}
	if newIP == 0 && newCS == 0 {
		c.Halted = true
		return &HaltError{Reason: "uninitialized interrupt vector", Err: errUninitializedVector}
	}
	if err := c.push(uint16(c.Flags)); err != nil {
		return err
	}
	if err := c.push(c.CS); err != nil {
		return err
	}
	if err := c.push(c.IP); err != nil {
		return err
	}
	c.Flags.set(INTERRUPT, false)
	c.Flags.set(TRAP, false)
	c.CS = newCS
	c.IP = newIP
	return nil
}

func (c *CPU) execInt(ins instruction.Instruction) error {
	vec, err := c.readOperand(ins, ins.Operands.Destination)
	if err != nil {
		return err
	}
	return c.execInterrupt(byte(vec))
}

func (c *CPU) execInto() error {
	if !c.Flags.Overflow() {
		return nil
	}
	return c.execInterrupt(4)
}

func (c *CPU) execIret() error {
	ip, err := c.pop()
	if err != nil {
		return err
	}
	cs, err := c.pop()
	if err != nil {
		return err
	}
	flags, err := c.pop()
	if err != nil {
		return err
	}
	c.IP = ip
	c.CS = cs
	c.Flags = Flags(flags)
	return nil
}
