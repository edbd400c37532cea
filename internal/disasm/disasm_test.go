package disasm

import (
	"strings"
	"testing"
)

func TestWalkSectionDecodesAndFallsBack(t *testing.T) {
	// B8 34 12 (MOV AX,0x1234) ; F4 (HLT) ; FF (undecodable on its own)
	sec := Section{Segment: 0x1000, Offset: 0x0100, Bytes: []byte{0xB8, 0x34, 0x12, 0xF4, 0xFF}}
	lines := WalkSection(sec, DefaultStyle)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if !strings.Contains(lines[0].Text, "MOV") || !strings.Contains(lines[0].Text, "0x1234") {
		t.Errorf("line 0: got %q, want a MOV AX, 0x1234", lines[0].Text)
	}
	if lines[0].Offset != 0x0100 {
		t.Errorf("line 0 offset: got 0x%04X, want 0x0100", lines[0].Offset)
	}
	if lines[1].Text != "HLT" {
		t.Errorf("line 1: got %q, want HLT", lines[1].Text)
	}
	if lines[1].Offset != 0x0103 {
		t.Errorf("line 1 offset: got 0x%04X, want 0x0103", lines[1].Offset)
	}
	if lines[2].Text != "db 0xFF" {
		t.Errorf("line 2: got %q, want db 0xFF", lines[2].Text)
	}
}

func TestRenderPadsBytesToFiveColumns(t *testing.T) {
	l := Line{Segment: 0, Offset: 0, Bytes: []byte{0xB4, 0x01}, Text: "MOV AH, 0x1"}
	rendered := l.Render()
	if !strings.Contains(rendered, "B4 01 ") {
		t.Errorf("rendered bytes missing: %q", rendered)
	}
	if !strings.HasSuffix(rendered, "MOV AH, 0x1") {
		t.Errorf("rendered text missing: %q", rendered)
	}
}

func TestSizePrefixOnlyWhenNotInferable(t *testing.T) {
	// INC WORD [BX] has no register operand to infer size from; needs a
	// prefix. ADD [BX], AX can infer word from AX and needs none.
	incWordBX := []byte{0xFF, 0x07} // FF /0 = INC r/m16, mod=00 rm=111 -> [BX]
	lines := WalkSection(Section{Bytes: incWordBX}, DefaultStyle)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if !strings.Contains(lines[0].Text, "word") {
		t.Errorf("expected an explicit word prefix: %q", lines[0].Text)
	}

	addBXAX := []byte{0x01, 0x07} // ADD [BX], AX
	lines = WalkSection(Section{Bytes: addBXAX}, DefaultStyle)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if strings.Contains(lines[0].Text, "word") || strings.Contains(lines[0].Text, "byte") {
		t.Errorf("unexpected size prefix: %q", lines[0].Text)
	}
}
