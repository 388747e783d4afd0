package bytecode

import (
	"testing"

	"github.com/vcode-rt/corejit/machine"
)

func TestInterpStoreLoadRoundTrip(t *testing.T) {
	a := NewAssembler(machine.Interp32)
	a.MovImm(Reg(31), 0) // base
	a.MovImm(Reg(0), 42) // value
	a.Str(Reg(31), 0, Reg(0))
	a.MovImm(Reg(0), 0) // clobber
	a.Ldr(Reg(0), Reg(31), 0)
	a.Ret()
	p := a.Finish()

	ip := NewInterp(32, 64)
	got := ip.Run(p)
	if got != 42 {
		t.Fatalf("store/load round trip: got %d, want 42", got)
	}
}

func TestInterpConditionalBranchTakenAndNotTaken(t *testing.T) {
	build := func(cmpVal int64) int64 {
		a := NewAssembler(machine.Interp32)
		a.MovImm(Reg(0), 0)
		a.MovImm(Reg(1), cmpVal)
		a.MovImm(Reg(2), 5)
		a.Cmp(Reg(1), Reg(2))
		skip := NewLabel()
		a.JmpCond(skip, GE)
		a.MovImm(Reg(0), 99)
		a.Bind(skip)
		a.Ret()
		p := a.Finish()
		skip.Close()
		return NewInterp(32, 16).Run(p)
	}

	if got := build(10); got != 0 {
		t.Fatalf("branch should have been taken (10 >= 5): got r0=%d", got)
	}
	if got := build(1); got != 99 {
		t.Fatalf("branch should not have been taken (1 < 5): got r0=%d", got)
	}
}
