package cpu

// execClc, execCmc, execStc, execCld, execStd, execCli, execSti flip a
// single flag bit each; CMC complements CARRY rather than forcing it.
func (c *CPU) execClc() { c.Flags.set(CARRY, false) }
func (c *CPU) execCmc() { c.Flags.set(CARRY, !c.Flags.Carry()) }
func (c *CPU) execStc() { c.Flags.set(CARRY, true) }
func (c *CPU) execCld() { c.Flags.set(DIRECTION, false) }
func (c *CPU) execStd() { c.Flags.set(DIRECTION, true) }
func (c *CPU) execCli() { c.Flags.set(INTERRUPT, false) }
func (c *CPU) execSti() { c.Flags.set(INTERRUPT, true) }

// execHlt suspends the fetch loop: Step's pre-check returns a clean
// "cpu halted" HaltError on the next call, and Wake clears Halted to let it
// resume at the following instruction, per spec.md §4.5's halt semantics.
func (c *CPU) execHlt() {
	c.Halted = true
}

// WAIT (coprocessor synchronization) and ESC (coprocessor opcode escape)
// have no coprocessor to synchronize with or hand an opcode to in this
// toolchain's scope; LOCK never reaches execute (it is consumed as a prefix
// during decode, per spec.md §4.2), so all three are no-ops here.
func (c *CPU) execWait() {}
func (c *CPU) execEsc()  {}
