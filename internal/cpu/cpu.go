// Package cpu implements the 8086 execution engine: register file, flags,
// segmented memory and port buses, and the fetch-decode-execute loop. It
// consumes internal/decoder to turn bytes at CS:IP into an
// instruction.Instruction and interprets it in place, per-operation, never
// mutating the Instruction itself.
package cpu

import (
	"context"

	"github.com/mrc-go/mrc/internal/decoder"
	"github.com/mrc-go/mrc/internal/instruction"
	"github.com/sirupsen/logrus"
)

// The reg* constants give the canonical order of the eight 16-bit general registers,
// matching the 3-bit encoding field: AX,CX,DX,BX,SP,BP,SI,DI.
const (
	regAX = iota
	regCX
	regDX
	regBX
	regSP
	regBP
	regSI
	regDI
)

// TickFunc is called once per executed instruction, mirroring the teacher's
// X86Bus.Tick(cycles int) hook. It has no cycle-accurate meaning here (see
// spec.md's non-goals); it exists so a host can drive a UI refresh or a
// rate limiter off real instruction counts.
type TickFunc func(steps uint64)

// Exception is a non-fatal CPU fault surfaced to the host: a bus error
// encountered during an instruction's execute phase (as opposed to its
// fetch phase, which halts instead per spec.md §7).
type Exception struct {
	Op  instruction.Operation
	Err error
}

func (e *Exception) Error() string { return e.Op.String() + ": " + e.Err.Error() }
func (e *Exception) Unwrap() error { return e.Err }

// HaltError tells the host why execution stopped. Step returns it when the
// CPU is already halted and on a fatal error (a decode failure, an
// uninitialized interrupt vector, an unimplemented operation). Run returns
// nil after a plain HLT and passes the fatal ones on.
type HaltError struct {
	Reason string
	Err    error
}

func (h *HaltError) Error() string {
	if h.Err != nil {
		return h.Reason + ": " + h.Err.Error()
	}
	return h.Reason
}
func (h *HaltError) Unwrap() error { return h.Err }

// CPU is the 8086 register file plus its attached buses. Memory is owned
// exclusively by the CPU's holder and passed in by reference; the port bus
// may be shared with a host-side observer goroutine, so all port access
// goes through the PortBus capability rather than a raw slice.
type CPU struct {
	regs [8]uint16

	ES, CS, SS, DS uint16
	IP             uint16
	Flags          Flags

	Halted bool
	Steps  uint64

	mem   MemoryBus
	ports PortBus

	Tick TickFunc
	Log  *logrus.Logger
}

// New builds a CPU over the given memory and port buses. CS:IP start at
// 0000:0000 and DS/ES/SS default to CS, matching the reference LED demo's
// reset state (a flat image loaded at segment 0).
func New(mem MemoryBus, ports PortBus) *CPU {
	c := &CPU{mem: mem, ports: ports, Log: logrus.New()}
	c.Reset()
	return c
}

// Reset returns every register, segment and flag to its power-on value.
func (c *CPU) Reset() {
	c.regs = [8]uint16{}
	c.ES, c.CS, c.SS, c.DS = 0, 0, 0, 0
	c.IP = 0
	c.Flags = 0
	c.Halted = false
	c.Steps = 0
}

// SetOrigin sets CS:IP to begin fetching at, the way the assembler's
// section-origin convention and cmd/mrc-emu's --origin flag do.
func (c *CPU) SetOrigin(cs, ip uint16) {
	c.CS = cs
	c.IP = ip
}

// Wake clears Halted, the host-signalled interrupt spec.md §4.5 describes.
// This toolchain takes the spec's explicitly sanctioned fallback for hosts
// that don't wire a real interrupt source: HLT simply halts Step/Run rather
// than blocking for a hardware interrupt, so Wake is idempotent and safe to
// call whether or not the CPU is currently halted.
func (c *CPU) Wake() {
	c.Halted = false
}

func (c *CPU) reg(idx int) uint16     { return c.regs[idx] }
func (c *CPU) setReg(idx int, v uint16) { c.regs[idx] = v }

// GetRegister reads r interpreted at size, the byte/word split described in
// spec.md §3 (the low four encodings split into Lo/Hi bytes; the high four
// are SP/BP/SI/DI as words but AH/CH/DH/BH as bytes).
func (c *CPU) GetRegister(r instruction.Register, size instruction.OperandSize) uint16 {
	idx := int(r)
	if size == instruction.Word {
		return c.regs[idx]
	}
	if idx < 4 {
		return c.regs[idx] & 0xFF
	}
	return (c.regs[idx-4] >> 8) & 0xFF
}

// SetRegister writes v (truncated to size) into r.
func (c *CPU) SetRegister(r instruction.Register, size instruction.OperandSize, v uint16) {
	idx := int(r)
	if size == instruction.Word {
		c.regs[idx] = v
		return
	}
	if idx < 4 {
		c.regs[idx] = (c.regs[idx] &^ 0xFF) | (v & 0xFF)
		return
	}
	base := idx - 4
	c.regs[base] = (c.regs[base] &^ 0xFF00) | ((v & 0xFF) << 8)
}

func (c *CPU) GetSegment(s instruction.Segment) uint16 {
	switch s {
	case instruction.ES:
		return c.ES
	case instruction.CS:
		return c.CS
	case instruction.SS:
		return c.SS
	default:
		return c.DS
	}
}

func (c *CPU) SetSegment(s instruction.Segment, v uint16) {
	switch s {
	case instruction.ES:
		c.ES = v
	case instruction.CS:
		c.CS = v
	case instruction.SS:
		c.SS = v
	default:
		c.DS = v
	}
}

// Linear resolves a segment:offset pair to its 20-bit linear address per
// spec.md §3: linear = (seg << 4 + off) & 0xFFFFF.
func Linear(seg, off uint16) uint32 {
	return (uint32(seg)<<4 + uint32(off)) & 0xFFFFF
}

func (c *CPU) readByte(seg, off uint16) (byte, error) {
	return c.mem.Read(Linear(seg, off))
}

func (c *CPU) writeByte(seg, off uint16, v byte) error {
	return c.mem.Write(Linear(seg, off), v)
}

func (c *CPU) readWord(seg, off uint16) (uint16, error) {
	lo, err := c.readByte(seg, off)
	if err != nil {
		return 0, err
	}
	hi, err := c.readByte(seg, off+1)
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (c *CPU) writeWord(seg, off uint16, v uint16) error {
	if err := c.writeByte(seg, off, byte(v)); err != nil {
		return err
	}
	return c.writeByte(seg, off+1, byte(v>>8))
}

// fetchStream adapts the CPU's CS:IP cursor to decoder.ByteStream, advancing
// IP as bytes are consumed so that IP ends pointing at the next instruction.
type fetchStream struct{ c *CPU }

func (f fetchStream) Peek() (byte, bool) {
	b, err := f.c.readByte(f.c.CS, f.c.IP)
	return b, err == nil
}

func (f fetchStream) Consume() (byte, bool) {
	b, err := f.c.readByte(f.c.CS, f.c.IP)
	if err != nil {
		return 0, false
	}
	f.c.IP++
	return b, true
}

func (f fetchStream) Advance() { f.c.IP++ }

// Step fetches, decodes and executes exactly one instruction. A fetch-path
// failure (decode error or bus error while reading the opcode stream) halts
// the CPU and is returned wrapped in *HaltError; an execute-path bus error
// is returned as a recoverable *Exception and the CPU keeps running.
func (c *CPU) Step() error {
	if c.Halted {
		return &HaltError{Reason: "cpu halted"}
	}
	ins, err := decoder.Decode(fetchStream{c})
	if err != nil {
		c.Halted = true
		return &HaltError{Reason: "decode failed", Err: err}
	}
	c.Steps++
	if c.Tick != nil {
		c.Tick(c.Steps)
	}
	execErr := c.execute(ins)
	if execErr != nil {
		if _, isHalt := execErr.(*HaltError); isHalt {
			return execErr
		}
		return &Exception{Op: ins.Operation, Err: execErr}
	}
	return nil
}

// Run steps the CPU until it halts, ctx is cancelled, or maxSteps (if
// nonzero) is reached. Cancellation is checked at the top of the fetch
// loop only: an in-flight instruction always completes, per spec.md §5.
func (c *CPU) Run(ctx context.Context, maxSteps uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if maxSteps != 0 && c.Steps >= maxSteps {
			return nil
		}
		err := c.Step()
		if err != nil {
			var halt *HaltError
			if asHalt(err, &halt) {
				if halt.Reason == "cpu halted" {
					return nil
				}
				return err
			}
			if c.Log != nil {
				c.Log.WithError(err).Warn("cpu exception")
			}
			continue
		}
	}
}

func asHalt(err error, out **HaltError) bool {
	h, ok := err.(*HaltError)
	if ok {
		*out = h
	}
	return ok
}

// portRead/portWrite are the single path to the port bus; they return the
// bus's own error unchanged.
func (c *CPU) portRead(port uint16) (byte, error) {
	v, err := c.ports.Read(port)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (c *CPU) portWrite(port uint16, v byte) error {
	return c.ports.Write(port, v)
}
