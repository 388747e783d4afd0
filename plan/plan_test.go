package plan

import (
	"testing"

	"github.com/vcode-rt/corejit/regs"
	"github.com/vcode-rt/corejit/vcode"
)

func intType() vcode.VType { return vcode.VType{Kind: vcode.KindInt, Size: 8} }

func expectFatal(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("expected a fatal panic, got none")
		}
	}()
	f()
}

func TestAllBlockLocalStaysBlockLocal(t *testing.T) {
	// r0 = const 1; r1 = const 2; r2 = r0 + r1; return r2 -- everything
	// defined and consumed within block 0.
	u := vcode.NewUnit(nil, []vcode.RegInfo{{Type: intType()}, {Type: intType()}, {Type: intType()}}, [][]vcode.Op{
		{
			{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 1},
			{Opcode: vcode.OpConst, Result: 1, Type: intType(), Value: 2},
			{Opcode: vcode.OpAdd, Args: []vcode.Reg{0, 1}, Result: 2, Type: intType()},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{2}},
		},
	})

	pl := Analyze(u, int32(regs.Amd64.WordSize))
	for i, d := range pl.Regs {
		if !d.Flags.Has(BlockLocal) {
			t.Errorf("reg %d: expected BlockLocal to remain set", i)
		}
	}
	if !pl.Regs[2].Flags.Has(Returned) {
		t.Error("r2 should be marked Returned")
	}
}

func TestCrossBlockUseClearsBlockLocal(t *testing.T) {
	// block 0: r0 = const 5; jump block 1
	// block 1: r1 = r0 + r0; return r1
	u := vcode.NewUnit(nil, []vcode.RegInfo{{Type: intType()}, {Type: intType()}}, [][]vcode.Op{
		{
			{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 5},
			{Opcode: vcode.OpJump},
		},
		{
			{Opcode: vcode.OpAdd, Args: []vcode.Reg{0, 0}, Result: 1, Type: intType()},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{1}},
		},
	})

	pl := Analyze(u, int32(regs.Amd64.WordSize))
	if pl.Regs[0].Flags.Has(BlockLocal) {
		t.Error("r0 crosses a block boundary and should not be BlockLocal")
	}
	if !pl.Regs[1].Flags.Has(BlockLocal) {
		t.Error("r1 never leaves block 1 and should stay BlockLocal")
	}
}

func TestEphemeralCmpFeedsCondAsFlags(t *testing.T) {
	// r0 = const 1; r1 = const 2; r2 = cmp r0, r1; cond r2 -> ...
	u := vcode.NewUnit(nil, []vcode.RegInfo{{Type: intType()}, {Type: intType()}, {Type: intType()}}, [][]vcode.Op{
		{
			{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 1},
			{Opcode: vcode.OpConst, Result: 1, Type: intType(), Value: 2},
			{Opcode: vcode.OpCmp, Args: []vcode.Reg{0, 1}, Result: 2, Type: intType()},
			{Opcode: vcode.OpCond, Args: []vcode.Reg{2}},
		},
	})

	pl := Analyze(u, int32(regs.Amd64.WordSize))
	if !pl.Regs[2].Flags.Has(CondInput) {
		t.Fatal("expected r2 to be marked CondInput")
	}

	f := regs.NewAmd64File()
	pl.Assign(u, f)
	if pl.Regs[2].Storage.Kind != Flags {
		t.Fatalf("expected r2 storage to be Flags, got %s", pl.Regs[2].Storage.Kind)
	}
}

func TestCmpReusedElsewhereIsNotCondInput(t *testing.T) {
	// r2 = cmp r0, r1; cond r2 -> ...; store r2 (a second use disqualifies
	// the ephemeral fast path).
	u := vcode.NewUnit(nil, []vcode.RegInfo{{Type: intType()}, {Type: intType()}, {Type: intType()}}, [][]vcode.Op{
		{
			{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 1},
			{Opcode: vcode.OpConst, Result: 1, Type: intType(), Value: 2},
			{Opcode: vcode.OpCmp, Args: []vcode.Reg{0, 1}, Result: 2, Type: intType()},
			{Opcode: vcode.OpCond, Args: []vcode.Reg{2}},
			{Opcode: vcode.OpStore, Args: []vcode.Reg{2, 2}},
		},
	})

	pl := Analyze(u, int32(regs.Amd64.WordSize))
	if pl.Regs[2].Flags.Has(CondInput) {
		t.Fatal("r2 is used a second time and should not be CondInput")
	}
}

func uarrayType() vcode.VType {
	return vcode.VType{
		Kind: vcode.KindUarray,
		Size: 24,
		Uarray: &vcode.UarrayLayout{
			LeftOffset:  0,
			RightOffset: 8,
			DirOffset:   16,
		},
	}
}

func TestUarrayFieldAliasesOntoBaseStackOffset(t *testing.T) {
	// r0 is a stack-resident uarray (its storage is forced to a stack
	// slot below); r1 = uarray_left r0, used once, then returned.
	u := vcode.NewUnit(nil, []vcode.RegInfo{{Type: uarrayType()}, {Type: intType()}}, [][]vcode.Op{
		{
			{Opcode: vcode.OpUarrayLeft, Args: []vcode.Reg{0}, Result: 1, Type: intType()},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{1}},
		},
	})

	pl := Analyze(u, int32(regs.Amd64.WordSize))
	// r0 is never defined by an op, so analyzeLiveness marked it a
	// Parameter; clear that so Assign's parameter sweep leaves the
	// storage forced here alone instead of overwriting it.
	pl.Regs[0].Flags &^= Parameter
	pl.Regs[0].Storage = Storage{Kind: StackSlot, Offset: 40}

	f := regs.NewAmd64File()
	pl.Assign(u, f)

	got := pl.Regs[1].Storage
	if got.Kind != Alias {
		t.Fatalf("expected Alias, got %s", got.Kind)
	}
	if got.Offset != 40 {
		t.Fatalf("expected offset 40 (base 40 + left field 0), got %d", got.Offset)
	}
}

func TestUarrayFieldOnNonStackBaseIsFatal(t *testing.T) {
	u := vcode.NewUnit(nil, []vcode.RegInfo{{Type: uarrayType()}, {Type: intType()}}, [][]vcode.Op{
		{
			{Opcode: vcode.OpUarrayRight, Args: []vcode.Reg{0}, Result: 1, Type: intType()},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{1}},
		},
	})

	pl := Analyze(u, int32(regs.Amd64.WordSize))
	pl.Regs[0].Flags &^= Parameter
	pl.Regs[0].Storage = Storage{Kind: MachineReg, Reg: 0}

	f := regs.NewAmd64File()
	expectFatal(t, func() { pl.Assign(u, f) })
}

func TestCastAliasesSameSizeIntegerFromStack(t *testing.T) {
	u := vcode.NewUnit(nil, []vcode.RegInfo{{Type: intType()}, {Type: intType()}}, [][]vcode.Op{
		{
			{Opcode: vcode.OpCast, Args: []vcode.Reg{0}, Result: 1, Type: intType()},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{1}},
		},
	})

	pl := Analyze(u, int32(regs.Amd64.WordSize))
	pl.Regs[0].Flags &^= Parameter
	pl.Regs[0].Storage = Storage{Kind: StackSlot, Offset: 24}

	f := regs.NewAmd64File()
	pl.Assign(u, f)

	got := pl.Regs[1].Storage
	if got.Kind != Alias || got.Offset != 24 {
		t.Fatalf("expected Alias at offset 24, got %s offset %d", got.Kind, got.Offset)
	}
}

func TestCastFromConstDoesNotAlias(t *testing.T) {
	// r0 folds to Const, not a stack slot: the alias fast path must not
	// apply, and CAST needs its own storage.
	u := vcode.NewUnit(nil, []vcode.RegInfo{{Type: intType()}, {Type: intType()}}, [][]vcode.Op{
		{
			{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 7},
			{Opcode: vcode.OpCast, Args: []vcode.Reg{0}, Result: 1, Type: intType()},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{1}},
		},
	})

	pl := Analyze(u, int32(regs.Amd64.WordSize))
	f := regs.NewAmd64File()
	pl.Assign(u, f)

	if pl.Regs[1].Storage.Kind == Alias {
		t.Fatal("cast from a const-folded (non-stack) source should not alias")
	}
}

func TestAllocaIsADefiningOpNotAParameter(t *testing.T) {
	// r0 = alloca a uarray-sized local; r1 = uarray_right r0; return r1.
	// r0's first reference is as UARRAY_RIGHT's base, exactly the shape
	// that once got misdiagnosed as an incoming ABI argument.
	u := vcode.NewUnit(nil, []vcode.RegInfo{{Type: uarrayType()}, {Type: intType()}}, [][]vcode.Op{
		{
			{Opcode: vcode.OpAlloca, Result: 0, Type: uarrayType()},
			{Opcode: vcode.OpUarrayRight, Args: []vcode.Reg{0}, Result: 1, Type: intType()},
			{Opcode: vcode.OpReturn, Args: []vcode.Reg{1}},
		},
	})

	pl := Analyze(u, int32(regs.Amd64.WordSize))
	if pl.Regs[0].Flags.Has(Parameter) {
		t.Fatal("alloca's result must not be mistaken for an incoming parameter")
	}
	if pl.Regs[0].DefnBlock != 0 {
		t.Fatalf("expected alloca to define its result in block 0, got DefnBlock=%d", pl.Regs[0].DefnBlock)
	}

	f := regs.NewAmd64File()
	pl.Assign(u, f)

	allocaSt := pl.Regs[0].Storage
	if allocaSt.Kind != StackSlot {
		t.Fatalf("expected alloca's own storage to be a StackSlot, got %s", allocaSt.Kind)
	}

	fieldSt := pl.Regs[1].Storage
	if fieldSt.Kind != Alias {
		t.Fatalf("expected the uarray field to alias onto the alloca's slot, got %s", fieldSt.Kind)
	}
	if want := allocaSt.Offset + int32(uarrayType().Uarray.RightOffset); fieldSt.Offset != want {
		t.Fatalf("field offset = %d, want %d (alloca offset %d + right field %d)",
			fieldSt.Offset, want, allocaSt.Offset, uarrayType().Uarray.RightOffset)
	}
}

func TestFrameAlignmentCapsAtWordSize(t *testing.T) {
	// v0 is a 4-byte var, v1 is a 24-byte uarray aggregate. Aligning v1
	// to its own size would push it to offset 24; capping the alignment
	// quantum at the 8-byte word size (spec's jit_align_object) should
	// only push it to offset 8.
	u := vcode.NewUnit([]vcode.VType{
		{Kind: vcode.KindInt, Size: 4},
		uarrayType(),
	}, nil, [][]vcode.Op{{}})

	_, vars, _ := layoutFrame(u, int32(regs.Amd64.WordSize))
	if vars[0].Offset != 0 {
		t.Fatalf("v0 offset = %d, want 0", vars[0].Offset)
	}
	if vars[1].Offset != 8 {
		t.Fatalf("v1 offset = %d, want 8 (word-size-capped alignment, not its own 24-byte size)", vars[1].Offset)
	}
}

func TestRegisterPressureSpillsToStack(t *testing.T) {
	// Define more live-simultaneously registers than a tiny register file
	// can hold, forcing at least one StackSlot assignment.
	small := []regs.Physical{
		{Name: "a", Text: "a", Role: regs.Scratch},
		{Name: "b", Text: "b", Role: regs.Scratch},
	}

	ops2 := []vcode.Op{
		{Opcode: vcode.OpConst, Result: 0, Type: intType(), Value: 1},
		{Opcode: vcode.OpConst, Result: 1, Type: intType(), Value: 2},
		{Opcode: vcode.OpConst, Result: 2, Type: intType(), Value: 3},
		{Opcode: vcode.OpAdd, Args: []vcode.Reg{0, 1}, Result: 3, Type: intType()},
		{Opcode: vcode.OpAdd, Args: []vcode.Reg{1, 2}, Result: 4, Type: intType()},
		{Opcode: vcode.OpAdd, Args: []vcode.Reg{3, 4}, Result: 5, Type: intType()},
		{Opcode: vcode.OpReturn, Args: []vcode.Reg{3, 4, 5}},
	}
	regInfos2 := make([]vcode.RegInfo, 6)
	for i := range regInfos2 {
		regInfos2[i] = vcode.RegInfo{Type: intType()}
	}
	u2 := vcode.NewUnit(nil, regInfos2, [][]vcode.Op{ops2})
	pl2 := Analyze(u2, int32(regs.Amd64.WordSize))
	f2 := regs.NewFile(small)
	pl2.Assign(u2, f2)

	spilled := false
	for _, d := range pl2.Regs {
		if d.Storage.Kind == StackSlot {
			spilled = true
		}
	}
	if !spilled {
		t.Fatal("expected register pressure to force at least one stack spill")
	}
}
