// Package decoder turns an 8086 byte stream into instruction.Instruction
// values. Decode is one large opcode-byte dispatch switch, per the "giant
// match is acceptable and readable" guidance this toolchain follows:
// per-opcode handler objects are not worth the indirection until a
// benchmark demands it.
package decoder

import (
	"github.com/mrc-go/mrc/internal/bitcodec"
	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/instruction"
)

// ByteStream is the minimal input contract the decoder needs.
type ByteStream interface {
	Peek() (byte, bool)
	Consume() (byte, bool)
	Advance()
}

// SliceStream is a ByteStream over an in-memory byte slice, the stream kind
// the decoder and assembler tests feed the decoder.
type SliceStream struct {
	buf []byte
	pos int
}

func NewSliceStream(buf []byte) *SliceStream { return &SliceStream{buf: buf} }

func (s *SliceStream) Peek() (byte, bool) {
	if s.pos >= len(s.buf) {
		return 0, false
	}
	return s.buf[s.pos], true
}

func (s *SliceStream) Consume() (byte, bool) {
	b, ok := s.Peek()
	if ok {
		s.pos++
	}
	return b, ok
}

func (s *SliceStream) Advance() {
	if s.pos < len(s.buf) {
		s.pos++
	}
}

// Pos reports the current read offset, used by callers that need to know
// how many bytes an instruction consumed.
func (s *SliceStream) Pos() int { return s.pos }

// ReadByte adapts SliceStream to bitcodec.ByteReader.
func (s *SliceStream) ReadByte() (byte, bool) { return s.Consume() }

const maxPrefixDepth = 4

// Decode consumes one opcode byte (plus any ModR/M, displacement or
// immediate bytes it implies) from stream and returns the decoded
// instruction.
func Decode(stream ByteStream) (instruction.Instruction, error) {
	return decode(stream, 0)
}

func decode(stream ByteStream, depth int) (instruction.Instruction, error) {
	if depth > maxPrefixDepth {
		return instruction.Instruction{}, errs.New(errs.InvalidOpCode, "too many prefix bytes")
	}

	opCode, ok := stream.Consume()
	if !ok {
		return instruction.Instruction{}, errs.New(errs.UnexpectedEOF, "expected opcode byte")
	}

	reader := streamReader{stream}

	switch {
	// Segment override prefixes: 00 1 ss 110 -> ES/CS/SS/DS
	case opCode == 0x26 || opCode == 0x2E || opCode == 0x36 || opCode == 0x3E:
		ins, err := decode(stream, depth+1)
		if err != nil {
			return instruction.Instruction{}, err
		}
		// A later override of the same class (decoded first, by the inner
		// call) wins, matching the hardware's last-prefix latching.
		if ins.SegmentOverride != nil {
			return ins, nil
		}
		seg := bitcodec.SegmentFromBits(opCode >> 3)
		return ins.WithSegmentOverride(seg), nil

	// REPNE / REPE prefixes.
	case opCode == 0xF2:
		ins, err := decode(stream, depth+1)
		if err != nil {
			return instruction.Instruction{}, err
		}
		if ins.Repeat != instruction.RepeatNone {
			return ins, nil
		}
		return ins.WithRepeat(instruction.RepeatNotEqual), nil
	case opCode == 0xF3:
		ins, err := decode(stream, depth+1)
		if err != nil {
			return instruction.Instruction{}, err
		}
		if ins.Repeat != instruction.RepeatNone {
			return ins, nil
		}
		return ins.WithRepeat(instruction.RepeatEqual), nil

	// LOCK prefix: no state of its own in this model, just recurse.
	case opCode == 0xF0:
		return decode(stream, depth+1)

	// Arithmetic group: ADD/OR/ADC/SBB/AND/SUB/XOR/CMP, six wire forms each.
	case isArithmeticBlock(opCode):
		return decodeArithmeticBlock(opCode, reader)

	case opCode == 0x80 || opCode == 0x81 || opCode == 0x82 || opCode == 0x83:
		return decodeArithmeticImmediate(opCode, reader)

	case opCode >= 0x40 && opCode <= 0x47:
		return decodeIncDecRegister(instruction.INC, opCode&0b111), nil
	case opCode >= 0x48 && opCode <= 0x4F:
		return decodeIncDecRegister(instruction.DEC, opCode&0b111), nil

	case opCode >= 0x50 && opCode <= 0x57:
		return instruction.New(instruction.PUSH, instruction.DestinationOnly(
			instruction.RegisterOperand(bitcodec.RegisterFromBits(opCode&0b111), instruction.Word))), nil
	case opCode >= 0x58 && opCode <= 0x5F:
		return instruction.New(instruction.POP, instruction.DestinationOnly(
			instruction.RegisterOperand(bitcodec.RegisterFromBits(opCode&0b111), instruction.Word))), nil

	case opCode == 0x06 || opCode == 0x0E || opCode == 0x16 || opCode == 0x1E:
		return instruction.New(instruction.PUSH, instruction.DestinationOnly(
			instruction.SegmentOperand(bitcodec.SegmentFromBits(opCode>>3)))), nil
	case opCode == 0x07 || opCode == 0x17 || opCode == 0x1F:
		return instruction.New(instruction.POP, instruction.DestinationOnly(
			instruction.SegmentOperand(bitcodec.SegmentFromBits(opCode>>3)))), nil

	case opCode == 0x27:
		return instruction.New(instruction.BAA, instruction.NoOperands()), nil
	case opCode == 0x2F:
		return instruction.New(instruction.DAS, instruction.NoOperands()), nil
	case opCode == 0x37:
		return instruction.New(instruction.AAA, instruction.NoOperands()), nil
	case opCode == 0x3F:
		return instruction.New(instruction.AAS, instruction.NoOperands()), nil

	case opCode >= 0x70 && opCode <= 0x7F:
		return decodeShortJump(opCode, reader)

	case opCode == 0x84 || opCode == 0x85:
		return decodeTestRegisterMemory(opCode, reader)
	case opCode == 0x86 || opCode == 0x87:
		return decodeXchgRegisterMemory(opCode, reader)

	case opCode >= 0x88 && opCode <= 0x8B:
		return decodeMovRegisterMemory(opCode, reader)
	case opCode == 0x8C:
		return decodeMovSegmentToRM(reader)
	case opCode == 0x8D:
		return decodeLea(reader)
	case opCode == 0x8E:
		return decodeMovRMToSegment(reader)
	case opCode == 0x8F:
		return decodePopRM(reader)

	case opCode == 0x90:
		return instruction.New(instruction.XCHG, instruction.NoOperands()), nil
	case opCode >= 0x91 && opCode <= 0x97:
		return decodeXchgAccumulator(opCode), nil

	case opCode == 0x98:
		return instruction.New(instruction.CBW, instruction.NoOperands()), nil
	case opCode == 0x99:
		return instruction.New(instruction.CWD, instruction.NoOperands()), nil
	case opCode == 0x9B:
		return instruction.New(instruction.WAIT, instruction.NoOperands()), nil
	case opCode == 0x9C:
		return instruction.New(instruction.PUSHF, instruction.NoOperands()), nil
	case opCode == 0x9D:
		return instruction.New(instruction.POPF, instruction.NoOperands()), nil
	case opCode == 0x9E:
		return instruction.New(instruction.SAHF, instruction.NoOperands()), nil
	case opCode == 0x9F:
		return instruction.New(instruction.LAHF, instruction.NoOperands()), nil

	case opCode == 0xA0 || opCode == 0xA1:
		return decodeMovMemoryToAccumulator(opCode, reader)
	case opCode == 0xA2 || opCode == 0xA3:
		return decodeMovAccumulatorToMemory(opCode, reader)

	case opCode == 0xA4:
		return instruction.New(instruction.MOVSB, instruction.NoOperands()), nil
	case opCode == 0xA5:
		return instruction.New(instruction.MOVSW, instruction.NoOperands()), nil
	case opCode == 0xA6:
		return instruction.New(instruction.CMPSB, instruction.NoOperands()), nil
	case opCode == 0xA7:
		return instruction.New(instruction.CMPSW, instruction.NoOperands()), nil
	case opCode == 0xA8 || opCode == 0xA9:
		return decodeTestAccumulatorImmediate(opCode, reader)
	case opCode == 0xAA:
		return instruction.New(instruction.STOSB, instruction.NoOperands()), nil
	case opCode == 0xAB:
		return instruction.New(instruction.STOSW, instruction.NoOperands()), nil
	case opCode == 0xAC:
		return instruction.New(instruction.LODSB, instruction.NoOperands()), nil
	case opCode == 0xAD:
		return instruction.New(instruction.LODSW, instruction.NoOperands()), nil
	case opCode == 0xAE:
		return instruction.New(instruction.SCASB, instruction.NoOperands()), nil
	case opCode == 0xAF:
		return instruction.New(instruction.SCASW, instruction.NoOperands()), nil

	case opCode >= 0xB0 && opCode <= 0xBF:
		return decodeMovImmediateToRegister(opCode, reader)

	case opCode == 0xC2 || opCode == 0xC3:
		return decodeRet(opCode, reader)
	case opCode == 0xC4:
		return decodeLxs(instruction.LES, reader)
	case opCode == 0xC5:
		return decodeLxs(instruction.LDS, reader)
	case opCode == 0xC6 || opCode == 0xC7:
		return decodeMovImmediateToRM(opCode, reader)

	case opCode == 0xCD:
		imm, ok := stream.Consume()
		if !ok {
			return instruction.Instruction{}, errs.New(errs.UnexpectedEOF, "expected INT vector byte")
		}
		return instruction.New(instruction.INT, instruction.DestinationOnly(
			instruction.ImmediateOperand(uint16(imm), instruction.Byte))), nil
	case opCode == 0xCE:
		return instruction.New(instruction.INTO, instruction.NoOperands()), nil
	case opCode == 0xCF:
		return instruction.New(instruction.IRET, instruction.NoOperands()), nil

	case opCode >= 0xD0 && opCode <= 0xD3:
		return decodeShiftGroup(opCode, reader)
	case opCode == 0xD4:
		return decodeAamAad(instruction.AAM, reader)
	case opCode == 0xD5:
		return decodeAamAad(instruction.AAD, reader)
	case opCode == 0xD7:
		return instruction.New(instruction.XLAT, instruction.NoOperands()), nil
	case opCode >= 0xD8 && opCode <= 0xDF:
		return decodeEsc(opCode, reader)

	case opCode >= 0xE0 && opCode <= 0xE3:
		return decodeLoopFamily(opCode, reader)

	case opCode == 0xE4 || opCode == 0xE5:
		return decodeInFixedPort(opCode, reader)
	case opCode == 0xE6 || opCode == 0xE7:
		return decodeOutFixedPort(opCode, reader)
	case opCode == 0xE8:
		off, err := reader.readU16()
		if err != nil {
			return instruction.Instruction{}, err
		}
		return instruction.New(instruction.CALL, instruction.OffsetOnly(off)), nil
	case opCode == 0xE9:
		off, err := reader.readU16()
		if err != nil {
			return instruction.Instruction{}, err
		}
		return instruction.New(instruction.JMP, instruction.OffsetOnly(off)), nil
	case opCode == 0xEA:
		off, err := reader.readU16()
		if err != nil {
			return instruction.Instruction{}, err
		}
		seg, err := reader.readU16()
		if err != nil {
			return instruction.Instruction{}, err
		}
		return instruction.New(instruction.JMP, instruction.SegmentAndOffset(seg, off)), nil
	case opCode == 0xEB:
		b, ok := stream.Consume()
		if !ok {
			return instruction.Instruction{}, errs.New(errs.UnexpectedEOF, "expected short jump displacement")
		}
		return instruction.New(instruction.JMP, instruction.OffsetOnly(uint16(int16(int8(b))))), nil
	case opCode == 0xEC || opCode == 0xED:
		return decodeInVariablePort(opCode), nil
	case opCode == 0xEE || opCode == 0xEF:
		return decodeOutVariablePort(opCode), nil

	case opCode == 0xF4:
		return instruction.New(instruction.HLT, instruction.NoOperands()), nil
	case opCode == 0xF5:
		return instruction.New(instruction.CMC, instruction.NoOperands()), nil
	case opCode == 0xF6 || opCode == 0xF7:
		return decodeUnaryGroup(opCode, reader)
	case opCode == 0xF8:
		return instruction.New(instruction.CLC, instruction.NoOperands()), nil
	case opCode == 0xF9:
		return instruction.New(instruction.STC, instruction.NoOperands()), nil
	case opCode == 0xFA:
		return instruction.New(instruction.CLI, instruction.NoOperands()), nil
	case opCode == 0xFB:
		return instruction.New(instruction.STI, instruction.NoOperands()), nil
	case opCode == 0xFC:
		return instruction.New(instruction.CLD, instruction.NoOperands()), nil
	case opCode == 0xFD:
		return instruction.New(instruction.STD, instruction.NoOperands()), nil
	case opCode == 0xFE:
		return decodeIncDecRM(opCode, reader)
	case opCode == 0xFF:
		return decodeGroupFF(reader)

	default:
		return instruction.Instruction{}, errs.Newf(errs.InvalidOpCode, "0x%02X", opCode)
	}
}

// streamReader adapts a ByteStream to bitcodec.ByteReader and adds the
// little-endian helpers the decoder's immediate/displacement fields need.
type streamReader struct {
	stream ByteStream
}

func (r streamReader) ReadByte() (byte, bool) { return r.stream.Consume() }

func (r streamReader) readU8() (byte, error) {
	b, ok := r.stream.Consume()
	if !ok {
		return 0, errs.New(errs.UnexpectedEOF, "expected byte")
	}
	return b, nil
}

func (r streamReader) readU16() (uint16, error) {
	lo, err := r.readU8()
	if err != nil {
		return 0, err
	}
	hi, err := r.readU8()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (r streamReader) readModRM() (bitcodec.ModRM, error) {
	return bitcodec.ReadModRM(r)
}

func sizeFromBit(w byte) instruction.OperandSize {
	if w&1 == 0 {
		return instruction.Byte
	}
	return instruction.Word
}

func decodeIncDecRegister(op instruction.Operation, regBits byte) instruction.Instruction {
	return instruction.New(op, instruction.DestinationOnly(
		instruction.RegisterOperand(bitcodec.RegisterFromBits(regBits), instruction.Word)))
}
