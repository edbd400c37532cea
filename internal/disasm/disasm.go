// Package disasm renders instruction.Instruction values as text and walks a
// byte Section printing one line per decoded instruction, falling back to a
// `db` directive on a decode failure so a corrupt or data-bearing region
// never stalls the whole listing.
package disasm

import (
	"fmt"
	"strings"

	"github.com/mrc-go/mrc/internal/decoder"
	"github.com/mrc-go/mrc/internal/instruction"
)

// Case selects how register names render; the mnemonic itself is always
// uppercase, per spec.md §4.6's "canonical" formatter rule.
type Case int

const (
	Lower Case = iota
	Upper
)

// Style configures the cosmetic choices Format makes; RegisterCase is the
// only one this toolchain currently exposes.
type Style struct {
	RegisterCase Case
}

// DefaultStyle lowercases register names, matching the Rust original's
// disassembler output.
var DefaultStyle = Style{RegisterCase: Lower}

func (s Style) applyCase(name string) string {
	if s.RegisterCase == Upper {
		return strings.ToUpper(name)
	}
	return strings.ToLower(name)
}

// Format renders ins the way cmd/mrc-dis and the S5 round-trip scenario
// expect: uppercase mnemonic, register names in style's case, and an
// explicit byte/word size prefix on a memory operand whenever its size
// can't be inferred from a register operand alongside it.
func Format(ins instruction.Instruction, style Style) string {
	prefix := ""
	switch ins.Repeat {
	case instruction.RepeatEqual:
		prefix = "REPE "
	case instruction.RepeatNotEqual:
		prefix = "REPNE "
	}
	if ins.SegmentOverride != nil {
		prefix += style.applyCase(ins.SegmentOverride.String()) + ": "
	}

	mnemonic := ins.Operation.String()
	operands := formatOperands(ins.Operands, style)
	if operands == "" {
		return prefix + mnemonic
	}
	return fmt.Sprintf("%s%s %s", prefix, mnemonic, operands)
}

func formatOperands(os instruction.OperandSet, style Style) string {
	switch os.Kind {
	case instruction.SetNone:
		return ""
	case instruction.SetDestination:
		return formatOperand(os.Destination, isMemory(os.Destination), style)
	case instruction.SetDestinationAndSource:
		dstMem, srcMem := isMemory(os.Destination), isMemory(os.Source)
		dstNeedsPrefix := dstMem && os.Source.Kind != instruction.KindRegister
		srcNeedsPrefix := srcMem && os.Destination.Kind != instruction.KindRegister
		return fmt.Sprintf("%s, %s",
			formatOperand(os.Destination, dstNeedsPrefix, style),
			formatOperand(os.Source, srcNeedsPrefix, style))
	case instruction.SetOffset:
		return fmt.Sprintf("0x%04X", os.Offset)
	case instruction.SetSegmentAndOffset:
		return fmt.Sprintf("0x%04X:0x%04X", os.SegmentVal, os.Offset)
	default:
		return "?"
	}
}

func isMemory(op instruction.Operand) bool {
	return op.Kind == instruction.KindDirect || op.Kind == instruction.KindIndirect
}

func formatOperand(op instruction.Operand, needsSizePrefix bool, style Style) string {
	switch op.Kind {
	case instruction.KindRegister:
		return style.applyCase(op.Register.Name(op.Size))
	case instruction.KindSegment:
		return style.applyCase(op.Segment.String())
	case instruction.KindImmediate:
		return fmt.Sprintf("0x%X", op.Immediate)
	case instruction.KindDirect:
		return sizePrefix(op.Size, needsSizePrefix) + fmt.Sprintf("[0x%04X]", op.Direct)
	default: // KindIndirect
		base := style.applyCase(op.Addressing.String())
		if op.Displacement == 0 {
			return sizePrefix(op.Size, needsSizePrefix) + fmt.Sprintf("[%s]", base)
		}
		return sizePrefix(op.Size, needsSizePrefix) + fmt.Sprintf("[%s+0x%04X]", base, op.Displacement)
	}
}

func sizePrefix(size instruction.OperandSize, needed bool) string {
	if !needed {
		return ""
	}
	if size == instruction.Byte {
		return "byte "
	}
	return "word "
}

// Section is a contiguous run of bytes anchored at a segment:offset origin,
// the unit cmd/mrc-dis and WalkSection operate on.
type Section struct {
	Segment uint16
	Offset  uint16
	Bytes   []byte
}

// Line is one emitted disassembly line: either a decoded instruction or a
// `db` fallback byte.
type Line struct {
	Segment uint16
	Offset  uint16
	Bytes   []byte
	Text    string
}

// sectionStream adapts a byte slice cursor to decoder.ByteStream.
type sectionStream struct {
	data []byte
	pos  int
}

func (s *sectionStream) Peek() (byte, bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	return s.data[s.pos], true
}

func (s *sectionStream) Consume() (byte, bool) {
	b, ok := s.Peek()
	if ok {
		s.pos++
	}
	return b, ok
}

func (s *sectionStream) Advance() { s.pos++ }

// WalkSection decodes sec end to end, one Line per instruction (or, on a
// decode failure, one Line per undecodable byte formatted as `db 0xBB`), the
// way the Rust original's print_section/print_instruction/print_data_byte
// trio does.
func WalkSection(sec Section, style Style) []Line {
	var lines []Line
	stream := &sectionStream{data: sec.Bytes}

	for stream.pos < len(sec.Bytes) {
		start := stream.pos
		ins, err := decoder.Decode(stream)
		off := sec.Offset + uint16(start)
		if err != nil {
			b := sec.Bytes[start]
			stream.pos = start + 1
			lines = append(lines, Line{
				Segment: sec.Segment,
				Offset:  off,
				Bytes:   []byte{b},
				Text:    fmt.Sprintf("db 0x%02X", b),
			})
			continue
		}
		used := sec.Bytes[start:stream.pos]
		lines = append(lines, Line{
			Segment: sec.Segment,
			Offset:  off,
			Bytes:   used,
			Text:    Format(ins, style),
		})
	}
	return lines
}

// Render formats a Line the way spec.md §4.6 specifies:
// `<seg>:<off>  <up-to-5 hex bytes, space-padded>  <mnemonic operands>`.
func (l Line) Render() string {
	const maxBytesShown = 5
	var b strings.Builder
	for i := 0; i < maxBytesShown; i++ {
		if i < len(l.Bytes) {
			fmt.Fprintf(&b, "%02X ", l.Bytes[i])
		} else {
			b.WriteString("   ")
		}
	}
	return fmt.Sprintf("%04X:%04X  %s  %s", l.Segment, l.Offset, b.String(), l.Text)
}
