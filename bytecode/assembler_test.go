package bytecode

import (
	"testing"

	"github.com/vcode-rt/corejit/machine"
)

func expectFatal(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a fatal panic, got none")
		}
	}()
	f()
}

func TestAssemblerSimpleSequence(t *testing.T) {
	a := NewAssembler(machine.Interp32)
	a.MovImm(Reg(0), 5)
	a.MovImm(Reg(1), 10)
	a.Add(Reg(0), Reg(1))
	a.Ret()
	p := a.Finish()

	want := []byte{
		byte(OpMovB), 0, 5,
		byte(OpMovB), 1, 10,
		byte(OpAdd), 0, 1,
		byte(OpRet),
	}
	if len(p.Code) != len(want) {
		t.Fatalf("length mismatch: got %d want %d (%x vs %x)", len(p.Code), len(want), p.Code, want)
	}
	for i := range want {
		if p.Code[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, p.Code[i], want[i])
		}
	}
}

func TestAssemblerWideImmediateSelection(t *testing.T) {
	a := NewAssembler(machine.Interp32)
	a.MovImm(Reg(0), 300) // does not fit a signed byte
	p := a.Finish()

	if Op(p.Code[0]) != OpMovW {
		t.Fatalf("expected wide form for 300, got opcode %#x", p.Code[0])
	}
	if len(p.Code) != 1+1+4 {
		t.Fatalf("expected 6 bytes for movw, got %d", len(p.Code))
	}
}

func TestAssemblerForwardJump(t *testing.T) {
	a := NewAssembler(machine.Interp32)
	end := NewLabel()
	a.MovImm(Reg(0), 1)
	a.Jmp(end)
	a.MovImm(Reg(0), 2) // skipped
	a.Bind(end)
	a.Ret()
	p := a.Finish()
	end.Close()

	d := NewDecoder(p.Code)
	ip := NewInterp(int(machine.Interp32.NumRegs), 64)
	got := ip.Run(p)
	if got != 1 {
		t.Fatalf("forward jump did not skip: got r0=%d, want 1", got)
	}
	_ = d
}

func TestAssemblerBackwardJump(t *testing.T) {
	a := NewAssembler(machine.Interp32)
	a.MovImm(Reg(0), 0)
	loop := NewLabel()
	a.Bind(loop)
	a.AddImm(Reg(0), 1)
	a.MovImm(Reg(1), 3)
	a.Cmp(Reg(0), Reg(1))
	a.JmpCond(loop, LT)
	a.Ret()
	p := a.Finish()
	loop.Close()

	ip := NewInterp(int(machine.Interp32.NumRegs), 64)
	got := ip.Run(p)
	if got != 3 {
		t.Fatalf("backward jump loop: got r0=%d, want 3", got)
	}
}

func TestFinishWithUnboundLabelIsFatal(t *testing.T) {
	a := NewAssembler(machine.Interp32)
	dangling := NewLabel()
	a.Jmp(dangling)

	expectFatal(t, func() { a.Finish() })
}

func TestBindingTwiceIsFatal(t *testing.T) {
	a := NewAssembler(machine.Interp32)
	l := NewLabel()
	a.Bind(l)
	expectFatal(t, func() { a.Bind(l) })
}

func TestCloseUnboundLabelWithPendingPatchIsFatal(t *testing.T) {
	a := NewAssembler(machine.Interp32)
	l := NewLabel()
	a.Jmp(l)
	expectFatal(t, func() { l.Close() })
}

func TestCloseUnusedLabelIsFine(t *testing.T) {
	l := NewLabel()
	l.Close() // never referenced, never bound: nothing pending
}
