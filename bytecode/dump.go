package bytecode

import (
	"fmt"
	"strings"
)

func sprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }

// NoMark is the markAt value meaning "highlight nothing".
const NoMark = -1

// Dump renders a disassembly of p to sb, one instruction per line, with
// any comment recorded at an offset appended after a semicolon, and the
// instruction at byte offset markAt (the current interpreter PC or a
// fault site) prefixed with an arrow instead of its ordinary indent
// (spec §4.2 "Disassembly dump": "optionally highlighting one byte-code
// index"). Pass NoMark to highlight nothing.
func (p *Program) Dump(sb *strings.Builder, markAt int) {
	d := NewDecoder(p.Code)
	for d.Offset() < len(p.Code) {
		off := d.Offset()
		insn, err := d.Decode()
		if err != nil {
			fmt.Fprintf(sb, "%04x: <bad opcode>\n", off)
			return
		}
		marker := "  "
		if off == markAt {
			marker = "->"
		}
		fmt.Fprintf(sb, "%s%04x: %s", marker, off, insn)
		if c, ok := p.Comment(off); ok {
			fmt.Fprintf(sb, "\t; %s", c)
		}
		sb.WriteByte('\n')
	}
}

// String renders p's disassembly as a string with nothing highlighted,
// primarily for tests and the vcodejit-dump command.
func (p *Program) String() string {
	var sb strings.Builder
	p.Dump(&sb, NoMark)
	return sb.String()
}
