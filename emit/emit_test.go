package emit

import (
	"testing"

	"github.com/vcode-rt/corejit/codebuf"
	"github.com/vcode-rt/corejit/plan"
	"github.com/vcode-rt/corejit/regs"
	"github.com/vcode-rt/corejit/vcode"
)

func intType() vcode.VType { return vcode.VType{Kind: vcode.KindInt, Size: 8} }

func regInfos(n int) []vcode.RegInfo {
	out := make([]vcode.RegInfo, n)
	for i := range out {
		out[i] = vcode.RegInfo{Type: intType()}
	}
	return out
}

func newBuf(t *testing.T) *codebuf.Buffer {
	t.Helper()
	buf, err := codebuf.New(0)
	if err != nil {
		t.Fatalf("codebuf.New: %v", err)
	}
	t.Cleanup(func() { _ = buf.Release() })
	return buf
}

func TestEmitAddReturnEndsInRet(t *testing.T) {
	u := vcode.NewUnit(nil, regInfos(3), [][]vcode.Op{
		{
			{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 3},
			{Opcode: vcode.OpConst, Result: 1, Type: intType(), Value: 4},
			{Opcode: vcode.OpAdd, Args: []vcode.Reg{0, 1}, Result: 2, Type: intType()},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{2}},
		},
	})

	pl := plan.Analyze(u, int32(regs.Amd64.WordSize))
	f := regs.NewAmd64File()
	pl.Assign(u, f)

	buf := newBuf(t)
	e := New(buf, pl, f)
	entry := e.Emit(u)

	if entry != 0 {
		t.Fatalf("entry = %d, want 0 for a fresh buffer", entry)
	}
	bytes := buf.Bytes()
	if len(bytes) == 0 {
		t.Fatal("expected non-empty emitted code")
	}
	if last := bytes[len(bytes)-1]; last != 0xC3 {
		t.Fatalf("expected the unit to end in ret (0xC3), got 0x%02x", last)
	}
	if len(e.saved) != 0 {
		t.Fatalf("this program uses only scratch registers; expected no callee-save saves, got %v", e.saved)
	}
	if pl.FrameSize != 0 {
		t.Fatalf("no vars/allocas/spills expected; FrameSize = %d", pl.FrameSize)
	}
}

func TestEmitJumpPatchResolvesToBlockStart(t *testing.T) {
	// block 0: r0 = const 1; jump block 1
	// block 1: return r0
	u := vcode.NewUnit(nil, regInfos(1), [][]vcode.Op{
		{
			{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 1},
			{Opcode: vcode.OpJump, Value: 1},
		},
		{
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{0}},
		},
	})

	pl := plan.Analyze(u, int32(regs.Amd64.WordSize))
	f := regs.NewAmd64File()
	pl.Assign(u, f)

	buf := newBuf(t)
	e := New(buf, pl, f)
	e.Emit(u)

	if len(e.patches) != 1 {
		t.Fatalf("expected exactly one jump patch, got %d", len(e.patches))
	}
	p := e.patches[0]
	if p.target != 1 {
		t.Fatalf("patch target block = %d, want 1", p.target)
	}

	bytes := buf.Bytes()
	rel := int32(bytes[p.site]) | int32(bytes[p.site+1])<<8 | int32(bytes[p.site+2])<<16 | int32(bytes[p.site+3])<<24
	if got, want := p.instrEnd+int(rel), e.blockStart[1]; got != want {
		t.Fatalf("resolved jump target = %d, want block 1's start %d", got, want)
	}
}

func TestEmitBoundsCheckTrapsWithUd2(t *testing.T) {
	u := vcode.NewUnit(nil, regInfos(1), [][]vcode.Op{
		{
			{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 2},
			{Opcode: vcode.OpBounds, Args: []vcode.Reg{0}, Value: 10},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{0}},
		},
	})

	pl := plan.Analyze(u, int32(regs.Amd64.WordSize))
	f := regs.NewAmd64File()
	pl.Assign(u, f)

	buf := newBuf(t)
	e := New(buf, pl, f)
	e.Emit(u)

	bytes := buf.Bytes()
	found := false
	for i := 0; i+1 < len(bytes); i++ {
		if bytes[i] == 0x0F && bytes[i+1] == 0x0B {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected a ud2 (0x0F 0x0B) trap sequence in the emitted bounds check")
	}
}

func TestEmitParameterMovedIntoAssignedStorage(t *testing.T) {
	// r0 arrives as the sole parameter (its first reference, an add,
	// precedes any definition) and is returned unchanged via r1.
	u := vcode.NewUnit(nil, regInfos(2), [][]vcode.Op{
		{
			{Opcode: vcode.OpAddI, Args: []vcode.Reg{0}, Result: 1, Type: intType(), Value: 1},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{1}},
		},
	})

	pl := plan.Analyze(u, int32(regs.Amd64.WordSize))
	if !pl.Regs[0].Flags.Has(plan.Parameter) {
		t.Fatal("expected r0 to be recognized as a parameter")
	}

	f := regs.NewAmd64File()
	pl.Assign(u, f)

	buf := newBuf(t)
	e := New(buf, pl, f)
	e.Emit(u)

	if buf.Len() == 0 {
		t.Fatal("expected non-empty emitted code")
	}
}

func TestEmitSpillsIntoCalleeSaveAndSavesRestores(t *testing.T) {
	// Amd64Set has 7 Scratch-role registers (rax plus the six argument
	// registers) and 6 CalleeSave-role ones. Eight sums, all kept live
	// to a single trailing return, overlap simultaneously and so cannot
	// all fit in the Scratch registers alone — at least one must land
	// in a CalleeSave register, exercising the push/pop prologue and
	// epilogue machinery.
	const n = 8
	infos := make([]vcode.RegInfo, 3*n)
	for i := range infos {
		infos[i] = vcode.RegInfo{Type: intType()}
	}
	var ops []vcode.Op
	sums := make([]vcode.Reg, n)
	for i := 0; i < n; i++ {
		a, b, s := vcode.Reg(2*i), vcode.Reg(2*i+1), vcode.Reg(2*n+i)
		ops = append(ops,
			vcode.Op{Opcode: vcode.OpConst, Result: a, Type: intType(), Value: int64(2 * i)},
			vcode.Op{Opcode: vcode.OpConst, Result: b, Type: intType(), Value: int64(2*i + 1)},
			vcode.Op{Opcode: vcode.OpAdd, Args: []vcode.Reg{a, b}, Result: s, Type: intType()},
		)
		sums[i] = s
	}
	ops = append(ops, vcode.Op{Opcode: vcode.OpReturn, Args: sums})

	u := vcode.NewUnit(nil, infos, [][]vcode.Op{ops})

	pl := plan.Analyze(u, int32(regs.Amd64.WordSize))
	f := regs.NewAmd64File()
	pl.Assign(u, f)

	usedCalleeSave := false
	for _, s := range sums {
		st := pl.Regs[s].Storage
		if st.Kind == plan.MachineReg && f.Physical(st.Reg).Role.Has(regs.CalleeSave) {
			usedCalleeSave = true
		}
	}
	if !usedCalleeSave {
		t.Fatal("expected register pressure to force at least one CalleeSave-role allocation")
	}

	buf := newBuf(t)
	e := New(buf, pl, f)
	e.Emit(u)

	if len(e.saved) == 0 {
		t.Fatal("expected the prologue to save at least one callee-save register")
	}
	code := buf.Bytes()
	if code[len(code)-1] != 0xC3 {
		t.Fatalf("expected the unit to still end in ret, got 0x%02x", code[len(code)-1])
	}
}

func TestEmitAllocatesDistinctBlockStarts(t *testing.T) {
	u := vcode.NewUnit(nil, regInfos(1), [][]vcode.Op{
		{
			{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 7},
			{Opcode: vcode.OpJump, Value: 1},
		},
		{
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{0}},
		},
	})

	pl := plan.Analyze(u, int32(regs.Amd64.WordSize))
	f := regs.NewAmd64File()
	pl.Assign(u, f)

	buf := newBuf(t)
	e := New(buf, pl, f)
	e.Emit(u)

	if len(e.blockStart) != 2 {
		t.Fatalf("expected 2 block starts, got %d", len(e.blockStart))
	}
	if e.blockStart[1] <= e.blockStart[0] {
		t.Fatalf("block 1 should start after block 0: %v", e.blockStart)
	}
}
