package bytecode

import "github.com/vcode-rt/corejit/machine"

// Program is the immutable result of Assembler.Finish: a byte-code
// buffer plus the frame size it needs and the Machine it targets (spec
// §3). It is produced once and then read-only.
type Program struct {
	Machine   machine.Machine
	Code      []byte
	FrameSize uint32

	// comments maps a byte offset to a diagnostic string attached there
	// by Assembler.Comment (spec §4.2).
	comments map[int]string
}

// Comment returns the debug comment attached at offset, if any.
func (p *Program) Comment(offset int) (string, bool) {
	s, ok := p.comments[offset]
	return s, ok
}

// Len returns the number of bytes in the program.
func (p *Program) Len() int { return len(p.Code) }
