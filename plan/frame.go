package plan

import "github.com/vcode-rt/corejit/vcode"

// align rounds n up to the nearest multiple of a when a is a power of
// two. For any other a (a spill slot aligned to a non-power-of-two value
// size) the result is still at least n but not necessarily a multiple
// of a.
func align(n, a int32) int32 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}

// alignQuantum caps a variable's own size at the target word size (spec
// §4.5 pass A, ground-truth jit_align_object's `MIN(size, sizeof(void*))`):
// nothing on this stack frame needs more than word alignment, no matter
// how large the value itself is (an aggregate like Uarray's VType.Size
// can exceed the word size).
func alignQuantum(sz, wordSize int32) int32 {
	if sz < wordSize {
		return sz
	}
	return wordSize
}

// layoutFrame is pass A: it walks the unit's declared stack variables
// and every OpAlloca site, in that order, assigning each a fixed,
// non-overlapping, alignment-respecting offset from the frame base
// (spec §4.5 pass A, "frame layout"). wordSize is the target machine's
// word width (regs.Amd64.WordSize for this module's only backend),
// threaded in rather than hard-coded so the layout logic itself stays
// independent of any one target.
//
// Alloca sites are pre-reserved here rather than during pass C's
// per-register assignment because their size is data the unit supplies
// directly (GetValue), not something storage assignment decides.
func layoutFrame(u vcode.Unit, wordSize int32) (frameSize int32, vars []VarDescriptor, allocaOffset map[Point]int32) {
	var wptr int32

	vars = make([]VarDescriptor, u.CountVars())
	for v := 0; v < u.CountVars(); v++ {
		t := u.VarType(vcode.Var(v))
		sz := int32(t.Size)
		wptr = align(wptr, alignQuantum(sz, wordSize))
		vars[v] = VarDescriptor{Type: t, Size: t.Size, Offset: wptr}
		wptr += sz
	}

	allocaOffset = make(map[Point]int32)
	for b := 0; b < u.CountBlocks(); b++ {
		u.SelectBlock(b)
		for op := 0; op < u.CountOps(); op++ {
			if u.GetOp(op) != vcode.OpAlloca {
				continue
			}
			sz := int32(u.GetValue(op))
			if sz <= 0 {
				sz = int32(u.GetType(op).Size)
			}
			wptr = align(wptr, wordSize)
			allocaOffset[Point{Block: b, Op: op}] = wptr
			wptr += sz
		}
	}

	return align(wptr, wordSize), vars, allocaOffset
}
