package cpu

import "github.com/mrc-go/mrc/internal/instruction"

// execute dispatches a decoded Instruction to its handler. It never mutates
// ins; all state changes land on the CPU's registers, flags and buses.
func (c *CPU) execute(ins instruction.Instruction) error {
	switch ins.Operation {
	case instruction.MOV:
		return c.execMov(ins)
	case instruction.PUSH:
		return c.execPush(ins)
	case instruction.POP:
		return c.execPop(ins)
	case instruction.XCHG:
		return c.execXchg(ins)
	case instruction.IN:
		return c.execIn(ins)
	case instruction.OUT:
		return c.execOut(ins)
	case instruction.XLAT:
		return c.execXlat(ins)
	case instruction.LEA:
		return c.execLea(ins)
	case instruction.LDS:
		return c.execLxs(ins, instruction.DS)
	case instruction.LES:
		return c.execLxs(ins, instruction.ES)
	case instruction.LAHF:
		c.execLahf()
		return nil
	case instruction.SAHF:
		c.execSahf()
		return nil
	case instruction.PUSHF:
		return c.execPushf()
	case instruction.POPF:
		return c.execPopf()

	case instruction.ADD:
		return c.execAddLike(ins, false)
	case instruction.ADC:
		return c.execAddLike(ins, true)
	case instruction.INC:
		return c.execIncDec(ins, true)
	case instruction.AAA:
		c.execAAA()
		return nil
	case instruction.BAA:
		c.execBAA()
		return nil
	case instruction.SUB:
		return c.execSubLike(ins, false, false)
	case instruction.SBB:
		return c.execSubLike(ins, true, false)
	case instruction.DEC:
		return c.execIncDec(ins, false)
	case instruction.NEG:
		return c.execNeg(ins)
	case instruction.CMP:
		return c.execSubLike(ins, false, true)
	case instruction.AAS:
		c.execAAS()
		return nil
	case instruction.DAS:
		c.execDAS()
		return nil
	case instruction.MUL:
		return c.execMul(ins, false)
	case instruction.IMUL:
		return c.execMul(ins, true)
	case instruction.AAM:
		c.execAAM()
		return nil
	case instruction.DIV:
		return c.execDivOrFault(ins, false)
	case instruction.IDIV:
		return c.execDivOrFault(ins, true)
	case instruction.AAD:
		c.execAAD()
		return nil
	case instruction.CBW:
		c.execCBW()
		return nil
	case instruction.CWD:
		c.execCWD()
		return nil

	case instruction.NOT:
		return c.execNot(ins)
	case instruction.SHL, instruction.SHR, instruction.SAR,
		instruction.ROL, instruction.ROR, instruction.RCL, instruction.RCR:
		return c.execShiftRotate(ins, ins.Operation)
	case instruction.AND:
		return c.execLogic(ins, func(a, b uint16) uint16 { return a & b }, false)
	case instruction.TEST:
		return c.execLogic(ins, func(a, b uint16) uint16 { return a & b }, true)
	case instruction.OR:
		return c.execLogic(ins, func(a, b uint16) uint16 { return a | b }, false)
	case instruction.XOR:
		return c.execLogic(ins, func(a, b uint16) uint16 { return a ^ b }, false)

	case instruction.CMPSB:
		return c.execString(ins, ins.Operation, instruction.Byte)
	case instruction.CMPSW:
		return c.execString(ins, ins.Operation, instruction.Word)
	case instruction.LODSB:
		return c.execString(ins, ins.Operation, instruction.Byte)
	case instruction.LODSW:
		return c.execString(ins, ins.Operation, instruction.Word)
	case instruction.MOVSB:
		return c.execString(ins, ins.Operation, instruction.Byte)
	case instruction.MOVSW:
		return c.execString(ins, ins.Operation, instruction.Word)
	case instruction.SCASB:
		return c.execString(ins, ins.Operation, instruction.Byte)
	case instruction.SCASW:
		return c.execString(ins, ins.Operation, instruction.Word)
	case instruction.STOSB:
		return c.execString(ins, ins.Operation, instruction.Byte)
	case instruction.STOSW:
		return c.execString(ins, ins.Operation, instruction.Word)

	case instruction.CALL:
		return c.execCall(ins)
	case instruction.JMP:
		return c.execJmp(ins)
	case instruction.RET:
		return c.execRet(ins)
	case instruction.JE, instruction.JL, instruction.JLE, instruction.JB, instruction.JBE,
		instruction.JP, instruction.JO, instruction.JS, instruction.JNE, instruction.JNL,
		instruction.JNLE, instruction.JNB, instruction.JNBE, instruction.JNP, instruction.JNO,
		instruction.JNS:
		c.execJcc(ins)
		return nil
	case instruction.LOOP, instruction.LOOPZ, instruction.LOOPNZ, instruction.JCXZ:
		c.execLoop(ins)
		return nil
	case instruction.INT:
		return c.execInt(ins)
	case instruction.INTO:
		return c.execInto()
	case instruction.IRET:
		return c.execIret()

	case instruction.CLC:
		c.execClc()
		return nil
	case instruction.CMC:
		c.execCmc()
		return nil
	case instruction.STC:
		c.execStc()
		return nil
	case instruction.CLD:
		c.execCld()
		return nil
	case instruction.STD:
		c.execStd()
		return nil
	case instruction.CLI:
		c.execCli()
		return nil
	case instruction.STI:
		c.execSti()
		return nil
	case instruction.HLT:
		c.execHlt()
		return nil
	case instruction.WAIT:
		c.execWait()
		return nil
	case instruction.ESC:
		c.execEsc()
		return nil

	default:
		return &HaltError{Reason: "unimplemented operation: " + ins.Operation.String()}
	}
}

// execDivOrFault runs DIV/IDIV and, on a divide error, converts it into an
// INT 0 through the vector table rather than surfacing a raw error, per
// spec.md §7's "the CPU engine converts DivideByZero into an INT 0" rule.
func (c *CPU) execDivOrFault(ins instruction.Instruction, signed bool) error {
	err := c.execDiv(ins, signed)
	if err == errDivideByZero {
		return c.execInterrupt(0)
	}
	return err
}
