// Package bitcodec implements the byte-level encode/decode rules shared by
// the instruction decoder and the assembler's encoder: register/segment/
// addressing-mode field mappings and the ModR/M byte.
package bitcodec

import (
	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/instruction"
)

// ByteReader is the minimal input the codec needs: a byte-at-a-time stream
// with explicit EOF signalling (no lookahead), which the decoder's
// SliceStream and stream adapter satisfy.
type ByteReader interface {
	ReadByte() (byte, bool)
}

// RegisterFromBits maps a 3-bit register field to a Register value. The
// mapping never fails: all eight 3-bit patterns are valid register
// encodings, so this simply indexes the enum.
func RegisterFromBits(bits byte) instruction.Register {
	return instruction.Register(bits & 0b111)
}

// SegmentFromBits maps a 2-bit segment field to a Segment value.
func SegmentFromBits(bits byte) instruction.Segment {
	return instruction.Segment(bits & 0b011)
}

// AddressingModeFromBits maps a 3-bit r/m field (when mod != 11) to an
// AddressingMode. All eight patterns are valid.
func AddressingModeFromBits(bits byte) instruction.AddressingMode {
	return instruction.AddressingMode(bits & 0b111)
}

// RegisterOrMemoryKind discriminates the decoded r/m field of a ModR/M byte.
type RegisterOrMemoryKind int

const (
	RMDirect RegisterOrMemoryKind = iota
	RMIndirect
	RMDisplacementByte
	RMDisplacementWord
	RMRegister
)

// RegisterOrMemory is the decoded r/m half of a ModR/M byte.
type RegisterOrMemory struct {
	Kind         RegisterOrMemoryKind
	Direct       uint16
	Addressing   instruction.AddressingMode
	Displacement uint16
	Register     instruction.Register
}

// ToOperand converts a decoded r/m field into an instruction.Operand of the
// given size, mirroring the Rust original's `From<RegisterOrMemory> for
// OperandType` conversion.
func (rm RegisterOrMemory) ToOperand(size instruction.OperandSize) instruction.Operand {
	switch rm.Kind {
	case RMDirect:
		return instruction.DirectOperand(rm.Direct, size)
	case RMIndirect:
		return instruction.IndirectOperand(rm.Addressing, 0, size)
	case RMDisplacementByte, RMDisplacementWord:
		return instruction.IndirectOperand(rm.Addressing, rm.Displacement, size)
	case RMRegister:
		return instruction.RegisterOperand(rm.Register, size)
	default:
		return instruction.Operand{}
	}
}

// ModRM is the fully decoded ModR/M byte: a register field plus an r/m
// field that names either a second register or a memory operand.
type ModRM struct {
	Register         instruction.Register
	RegisterOrMemory RegisterOrMemory
}

func readU16LE(r ByteReader) (uint16, error) {
	lo, ok := r.ReadByte()
	if !ok {
		return 0, errs.New(errs.UnexpectedEOF, "expected low byte of 16-bit value")
	}
	hi, ok := r.ReadByte()
	if !ok {
		return 0, errs.New(errs.UnexpectedEOF, "expected high byte of 16-bit value")
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// DecodeRegisterOrMemory decodes the mod/rm portion of an already-consumed
// ModR/M byte, reading any trailing displacement bytes from r. Callers that
// need the reg field for something other than a register encoding (e.g. the
// 0x80-0x83 and 0xF6/0xF7 opcode groups, where it selects the operation)
// use this directly instead of ReadModRM.
func DecodeRegisterOrMemory(modRMByte byte, r ByteReader) (RegisterOrMemory, error) {
	mode := modRMByte >> 6
	rm := modRMByte & 0b111

	switch mode {
	case 0b00:
		if rm == 0b110 {
			offset, err := readU16LE(r)
			if err != nil {
				return RegisterOrMemory{}, err
			}
			return RegisterOrMemory{Kind: RMDirect, Direct: offset}, nil
		}
		return RegisterOrMemory{Kind: RMIndirect, Addressing: AddressingModeFromBits(rm)}, nil
	case 0b01:
		disp, ok := r.ReadByte()
		if !ok {
			return RegisterOrMemory{}, errs.New(errs.UnexpectedEOF, "expected 8-bit displacement")
		}
		return RegisterOrMemory{
			Kind:         RMDisplacementByte,
			Addressing:   AddressingModeFromBits(rm),
			Displacement: uint16(int16(int8(disp))),
		}, nil
	case 0b10:
		disp, err := readU16LE(r)
		if err != nil {
			return RegisterOrMemory{}, err
		}
		return RegisterOrMemory{Kind: RMDisplacementWord, Addressing: AddressingModeFromBits(rm), Displacement: disp}, nil
	case 0b11:
		return RegisterOrMemory{Kind: RMRegister, Register: RegisterFromBits(rm)}, nil
	default:
		return RegisterOrMemory{}, errs.Newf(errs.InvalidModRM, "impossible mod field 0x%02X", mode)
	}
}

// ReadModRM consumes a ModR/M byte (and any displacement bytes it implies)
// from r and returns the decoded fields.
func ReadModRM(r ByteReader) (ModRM, error) {
	b, ok := r.ReadByte()
	if !ok {
		return ModRM{}, errs.New(errs.UnexpectedEOF, "expected ModR/M byte")
	}
	reg := RegisterFromBits(b >> 3)
	rm, err := DecodeRegisterOrMemory(b, r)
	if err != nil {
		return ModRM{}, err
	}
	return ModRM{Register: reg, RegisterOrMemory: rm}, nil
}

// EncodeModRM produces the mod/reg/rm byte (and any trailing displacement
// bytes) for an assembler encoding register into rm. It is the inverse of
// ReadModRM.
func EncodeModRM(register instruction.Register, rm RegisterOrMemory) []byte {
	var modBits byte
	switch rm.Kind {
	case RMDirect, RMIndirect:
		modBits = 0b00
	case RMDisplacementByte:
		modBits = 0b01
	case RMDisplacementWord:
		modBits = 0b10
	case RMRegister:
		modBits = 0b11
	}

	var rmBits byte
	switch rm.Kind {
	case RMDirect:
		rmBits = 0b110
	case RMIndirect, RMDisplacementByte, RMDisplacementWord:
		rmBits = rm.Addressing.Encoding()
	case RMRegister:
		rmBits = rm.Register.Encoding()
	}

	out := []byte{(modBits << 6) | (register.Encoding() << 3) | rmBits}

	switch rm.Kind {
	case RMDirect:
		out = append(out, byte(rm.Direct), byte(rm.Direct>>8))
	case RMDisplacementByte:
		out = append(out, byte(rm.Displacement))
	case RMDisplacementWord:
		out = append(out, byte(rm.Displacement), byte(rm.Displacement>>8))
	}
	return out
}
