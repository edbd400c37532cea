package cpu

import (
	"context"
	"testing"

	"github.com/mrc-go/mrc/internal/instruction"
)

// codeOrigin keeps test programs clear of the interrupt vector table at
// 0000:0000-0000:03FF, so a program's own bytes never masquerade as vector
// entries.
const codeOrigin = 0x1000

func newTestCPU(code []byte) (*CPU, *RAM, *PortArray) {
	ram := NewRAM(1 << 16)
	ram.LoadAt(codeOrigin, code)
	ports := NewPortArray(8)
	c := New(ram, ports)
	c.SetOrigin(0, codeOrigin)
	return c, ram, ports
}

// TestRegisterByteWordSplit checks the AL/AH vs AX aliasing scheme described
// in spec.md §3: the low four Register encodings split a word into low/high
// bytes, the high four read/write the high byte of the *other* register.
func TestRegisterByteWordSplit(t *testing.T) {
	c, _, _ := newTestCPU(nil)
	c.SetRegister(instruction.AlAx, instruction.Word, 0x1234)
	if got := c.GetRegister(instruction.AlAx, instruction.Byte); got != 0x34 {
		t.Errorf("AL: got 0x%02X, want 0x34", got)
	}
	if got := c.GetRegister(instruction.AhSp, instruction.Byte); got != 0x12 {
		t.Errorf("AH: got 0x%02X, want 0x12", got)
	}
	c.SetRegister(instruction.AhSp, instruction.Byte, 0xFF)
	if got := c.GetRegister(instruction.AlAx, instruction.Word); got != 0xFF34 {
		t.Errorf("AX after SetAH: got 0x%04X, want 0xFF34", got)
	}
}

func TestLinearAddressWraps(t *testing.T) {
	if got := Linear(0xFFFF, 0xFFFF); got != 0x0FFEF {
		t.Errorf("Linear(0xFFFF,0xFFFF): got 0x%05X, want 0x0FFEF", got)
	}
	if got := Linear(0, 0); got != 0 {
		t.Errorf("Linear(0,0): got 0x%05X, want 0", got)
	}
}

// TestS1_OutAndHalt: B0 01 E6 00 F4 -> MOV AL,0x01; OUT 0x00,AL; HLT. Writes
// 0x01 to port 0 and halts; ports 1..7 remain 0.
func TestS1_OutAndHalt(t *testing.T) {
	c, _, ports := newTestCPU([]byte{0xB0, 0x01, 0xE6, 0x00, 0xF4})
	err := c.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !c.Halted {
		t.Fatalf("expected CPU halted")
	}
	snap := ports.Snapshot()
	if snap[0] != 0x01 {
		t.Errorf("port 0: got 0x%02X, want 0x01", snap[0])
	}
	for i := 1; i < 8; i++ {
		if snap[i] != 0 {
			t.Errorf("port %d: got 0x%02X, want 0", i, snap[i])
		}
	}
}

// TestS2_MovImmediate: B8 34 12 -> MOV AX, 0x1234. AX=0x1234, flags unchanged.
func TestS2_MovImmediate(t *testing.T) {
	c, _, _ := newTestCPU([]byte{0xB8, 0x34, 0x12})
	before := c.Flags
	if err := c.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if ax := c.GetRegister(instruction.AlAx, instruction.Word); ax != 0x1234 {
		t.Errorf("AX: got 0x%04X, want 0x1234", ax)
	}
	if c.Flags != before {
		t.Errorf("flags changed: got 0x%04X, want 0x%04X", c.Flags, before)
	}
}

// TestS3_AddOverflowFlags: 05 FF FF (ADD AX, 0xFFFF) with AX=0x0001 produces
// AX=0x0000, CF=1, ZF=1, SF=0, PF=1, OF=0, AF=1.
func TestS3_AddOverflowFlags(t *testing.T) {
	c, _, _ := newTestCPU([]byte{0x05, 0xFF, 0xFF})
	c.SetRegister(instruction.AlAx, instruction.Word, 0x0001)
	if err := c.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if ax := c.GetRegister(instruction.AlAx, instruction.Word); ax != 0x0000 {
		t.Errorf("AX: got 0x%04X, want 0x0000", ax)
	}
	checkFlags(t, c, true, true, false, true, false, true)
}

// TestS4_CmpFlags: 3C 80 (CMP AL, 0x80) with AL=0x7F: AL unchanged, CF=1,
// ZF=0, SF=1, OF=1.
func TestS4_CmpFlags(t *testing.T) {
	c, _, _ := newTestCPU([]byte{0x3C, 0x80})
	c.SetRegister(instruction.AlAx, instruction.Byte, 0x7F)
	if err := c.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if al := c.GetRegister(instruction.AlAx, instruction.Byte); al != 0x7F {
		t.Errorf("AL changed: got 0x%02X, want 0x7F", al)
	}
	if !c.Flags.Carry() {
		t.Error("CF: got false, want true")
	}
	if c.Flags.Zero() {
		t.Error("ZF: got true, want false")
	}
	if !c.Flags.Sign() {
		t.Error("SF: got false, want true")
	}
	if !c.Flags.Overflow() {
		t.Error("OF: got false, want true")
	}
}

// TestS6_RepneScasb: REPNE SCASB with CX=5, AL=0x00, DS:DI -> [01,02,03,00,05],
// DF=0: terminates after 4 iterations with ZF=1 and DI advanced by 4.
func TestS6_RepneScasb(t *testing.T) {
	c, ram, _ := newTestCPU([]byte{0xF2, 0xAE})
	ram.LoadAt(0x100, []byte{0x01, 0x02, 0x03, 0x00, 0x05})
	c.setReg(regCX, 5)
	c.setReg(regDI, 0x100)
	c.SetRegister(instruction.AlAx, instruction.Byte, 0x00)
	if err := c.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if cx := c.reg(regCX); cx != 1 {
		t.Errorf("CX: got %d, want 1 (5 - 4 iterations)", cx)
	}
	if di := c.reg(regDI); di != 0x104 {
		t.Errorf("DI: got 0x%04X, want 0x0104", di)
	}
	if !c.Flags.Zero() {
		t.Error("ZF: got false, want true")
	}
}

func checkFlags(t *testing.T, c *CPU, cf, zf, sf, pf, of, af bool) {
	t.Helper()
	if c.Flags.Carry() != cf {
		t.Errorf("CF: got %v, want %v", c.Flags.Carry(), cf)
	}
	if c.Flags.Zero() != zf {
		t.Errorf("ZF: got %v, want %v", c.Flags.Zero(), zf)
	}
	if c.Flags.Sign() != sf {
		t.Errorf("SF: got %v, want %v", c.Flags.Sign(), sf)
	}
	if c.Flags.Parity() != pf {
		t.Errorf("PF: got %v, want %v", c.Flags.Parity(), pf)
	}
	if c.Flags.Overflow() != of {
		t.Errorf("OF: got %v, want %v", c.Flags.Overflow(), of)
	}
	if c.Flags.AuxCarry() != af {
		t.Errorf("AF: got %v, want %v", c.Flags.AuxCarry(), af)
	}
}

// TestParityFlagMatchesLowByte is invariant 4 from spec.md §8: for any
// 16-bit result R, PF reflects the parity of R & 0xFF.
func TestParityFlagMatchesLowByte(t *testing.T) {
	for _, r := range []uint16{0x0000, 0x0001, 0x0003, 0xFF00, 0xABCD, 0x1234} {
		var f Flags
		flagsFromResult(&f, r, true)
		want := parityTable[byte(r)] == 1
		if f.Parity() != want {
			t.Errorf("R=0x%04X: PF got %v, want %v", r, f.Parity(), want)
		}
	}
}

func TestDivideByZeroRaisesInt0(t *testing.T) {
	// B8 00 00 (MOV AX,0) ; B9 00 00 (MOV CX,0) ; F7 F1 (DIV CX)
	c, _, _ := newTestCPU([]byte{0xB8, 0x00, 0x00, 0xB9, 0x00, 0x00, 0xF7, 0xF1})
	if err := c.Step(); err != nil {
		t.Fatalf("mov ax: %v", err)
	}
	if err := c.Step(); err != nil {
		t.Fatalf("mov cx: %v", err)
	}
	err := c.Step()
	if err == nil {
		t.Fatal("expected an error dividing by zero with an uninitialized vector table")
	}
	if !c.Halted {
		t.Error("expected CPU halted on uninitialized INT 0 vector")
	}
}

func TestHaltAndWakeResume(t *testing.T) {
	// F4 (HLT) ; B0 01 (MOV AL,1)
	c, _, _ := newTestCPU([]byte{0xF4, 0xB0, 0x01})
	if err := c.Step(); err != nil {
		t.Fatalf("hlt: %v", err)
	}
	if !c.Halted {
		t.Fatal("expected halted after HLT")
	}
	if err := c.Step(); err == nil {
		t.Fatal("expected halted CPU to refuse to step")
	}
	c.Wake()
	if c.Halted {
		t.Fatal("expected Wake to clear Halted")
	}
	if err := c.Step(); err != nil {
		t.Fatalf("resumed step: %v", err)
	}
	if al := c.GetRegister(instruction.AlAx, instruction.Byte); al != 0x01 {
		t.Errorf("AL: got 0x%02X, want 0x01", al)
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	c, _, _ := newTestCPU(nil)
	c.SetOrigin(0, 0)
	c.setReg(regSP, 0x100)
	if err := c.push(0xBEEF); err != nil {
		t.Fatalf("push: %v", err)
	}
	if sp := c.reg(regSP); sp != 0xFE {
		t.Errorf("SP after push: got 0x%04X, want 0x00FE", sp)
	}
	v, err := c.pop()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if v != 0xBEEF {
		t.Errorf("popped value: got 0x%04X, want 0xBEEF", v)
	}
	if sp := c.reg(regSP); sp != 0x100 {
		t.Errorf("SP after pop: got 0x%04X, want 0x0100", sp)
	}
}
