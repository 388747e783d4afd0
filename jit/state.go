//go:build linux && amd64

package jit

import (
	"github.com/vcode-rt/corejit/codebuf"
	"github.com/vcode-rt/corejit/emit/asm"
	"github.com/vcode-rt/corejit/plan"
	"github.com/vcode-rt/corejit/vcode"
)

// State is one compiled unit's JIT state: the code buffer it exclusively
// owns, the storage plan that was used to emit it, and the entry offset
// within the buffer a caller invokes (spec §4.7, "Ownership: JIT state
// exclusively owns its code buffer and the working arrays").
type State struct {
	Unit  vcode.Unit
	Plan  *plan.Plan
	Buf   *codebuf.Buffer
	Entry int

	codeBase uintptr
	codeLen  int
}

// CodeBase is the address of the first byte of this unit's code buffer.
func (s *State) CodeBase() uintptr { return s.codeBase }

// CodeLen is the number of code bytes written into the buffer.
func (s *State) CodeLen() int { return s.codeLen }

// EntryAddr is the callable address of this unit's compiled code.
func (s *State) EntryAddr() uintptr { return s.codeBase + uintptr(s.Entry) }

// Call invokes the compiled unit as an ordinary System V AMD64 function
// via the emit/asm trampoline, and returns the value left in the
// machine's result register.
func (s *State) Call(args []int64) int64 {
	return asm.Call(s.EntryAddr(), args)
}
