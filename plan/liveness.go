package plan

import (
	"github.com/vcode-rt/corejit/internal/diag"
	"github.com/vcode-rt/corejit/vcode"
)

// supportedOps is every opcode the planner and emitter know how to
// handle. It exists as an explicit allow list — rather than trusting
// that vcode.Opcode is exhaustive forever — because the spec is
// explicit that "ops not on the supported list are rejected" (spec
// §4.5 pass B): a future VCODE opcode arriving before this module
// learns about it must fail loudly, not silently mis-plan.
var supportedOps = map[vcode.Opcode]bool{
	vcode.OpConst: true, vcode.OpAdd: true, vcode.OpAddI: true,
	vcode.OpSub: true, vcode.OpMul: true, vcode.OpLoad: true,
	vcode.OpLoadIndirect: true, vcode.OpStore: true, vcode.OpStoreIndirect: true,
	vcode.OpCmp: true, vcode.OpJump: true, vcode.OpCond: true,
	vcode.OpReturn: true, vcode.OpSelect: true, vcode.OpUnwrap: true,
	vcode.OpRangeNull: true, vcode.OpUarrayLeft: true, vcode.OpUarrayRight: true,
	vcode.OpUarrayDir: true, vcode.OpCast: true, vcode.OpAlloca: true,
	vcode.OpBounds: true, vcode.OpDynamicBounds: true, vcode.OpComment: true,
	vcode.OpIndexCheck: true,
}

// analyzeLiveness is pass B: for every register, find where it's
// defined, every point it's used, whether it feeds a return, and
// whether it is the block-local ephemeral output of a CMP consumed by
// the following COND (spec §4.5 pass B).
func analyzeLiveness(u vcode.Unit) []RegDescriptor {
	regs := make([]RegDescriptor, u.CountRegs())
	for i := range regs {
		regs[i] = RegDescriptor{DefnBlock: -1}
	}

	touch := func(r vcode.Reg, at Point) {
		d := &regs[r]
		if d.UseCount == 0 && d.DefnBlock < 0 {
			d.LifetimeStart = at
		}
		d.UseCount++
		d.LifetimeEnd = at
	}

	for b := 0; b < u.CountBlocks(); b++ {
		u.SelectBlock(b)
		n := u.CountOps()
		for op := 0; op < n; op++ {
			opcode := u.GetOp(op)
			if !supportedOps[opcode] {
				diag.Fatalf("plan: unsupported op %s at block %d op %d", opcode, b, op)
			}
			at := Point{Block: b, Op: op}

			for k := 0; k < u.CountArgs(op); k++ {
				r := u.GetArg(op, k)
				if !r.Valid() {
					continue
				}
				before := regs[r].UseCount == 0 && regs[r].DefnBlock < 0
				touch(r, at)
				if before {
					// First reference precedes any definition: the value
					// arrives from outside the unit, i.e. an ABI parameter.
					regs[r].Flags |= Parameter
				}
				if regs[r].DefnBlock >= 0 && regs[r].DefnBlock != b {
					regs[r].Flags &^= BlockLocal
				}
			}

			if res := u.GetResult(op); opcode.HasResult() && res.Valid() {
				d := &regs[res]
				if d.DefnBlock < 0 {
					d.DefnBlock = b
					d.Size = u.GetType(op).Size
					d.Flags |= BlockLocal
					d.LifetimeStart = at
				}
				d.LifetimeEnd = at
			}

			if opcode == vcode.OpReturn {
				for k := 0; k < u.CountArgs(op); k++ {
					r := u.GetArg(op, k)
					if r.Valid() {
						regs[r].Flags |= Returned
					}
				}
			}

			if opcode == vcode.OpCmp {
				res := u.GetResult(op)
				if res.Valid() && op+1 < n && u.GetOp(op+1) == vcode.OpCond {
					feedsCond := false
					for k := 0; k < u.CountArgs(op+1); k++ {
						if u.GetArg(op+1, k) == res {
							feedsCond = true
						}
					}
					if feedsCond {
						regs[res].Flags |= CondInput
					}
				}
			}
		}
	}

	// CondInput only holds if the CMP's result is used nowhere else —
	// otherwise it must materialize as a real value too and can't be
	// folded purely into the flags register.
	for i := range regs {
		if regs[i].Flags.Has(CondInput) && regs[i].UseCount > 1 {
			regs[i].Flags &^= CondInput
		}
	}

	return regs
}
