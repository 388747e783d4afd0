package plan

import (
	"github.com/vcode-rt/corejit/internal/diag"
	"github.com/vcode-rt/corejit/regs"
	"github.com/vcode-rt/corejit/vcode"
)

// Analyze runs passes A and B over u: frame layout and per-register
// liveness. wordSize is the target machine's word width (regs.Amd64.
// WordSize for this module's only backend); it caps how far pass A ever
// aligns a stack slot, no matter how large the value stored there is.
// The result still needs Assign (pass C) before every register has a
// Storage decision.
func Analyze(u vcode.Unit, wordSize int32) *Plan {
	frameSize, vars, allocaOffset := layoutFrame(u, wordSize)
	regDescs := analyzeLiveness(u)
	p := &Plan{FrameSize: frameSize, Vars: vars, Regs: regDescs}
	p.allocaOffset = allocaOffset
	return p
}

// before returns whether point a precedes point b in program order
// (block-major, then op index within the block).
func before(a, b Point) bool {
	if a.Block != b.Block {
		return a.Block < b.Block
	}
	return a.Op < b.Op
}

// assignRegister picks a MachineReg for r, evicting a physical
// register whose current tenant's lifetime has already ended at point
// `at` if no register is free outright, and spilling to a fresh stack
// slot only if neither option exists. Eligibility is "any register in
// the pool" (spec §4.5's "non-SCRATCH registers" — the registers a
// backend reserves for its own operand staging are never admitted to
// the pool at all, see regs.Amd64Set); want only breaks ties among
// several free or evictable registers, via pickCandidate.
func (p *Plan) assignRegister(f *regs.File, r vcode.Reg, at Point, want regs.Role) Storage {
	if idx := f.FindOwning(int(r)); idx >= 0 {
		return Storage{Kind: MachineReg, Reg: idx}
	}

	if cands := f.Available(); len(cands) > 0 {
		idx := pickCandidate(f, cands, want)
		f.Bind(idx, int(r))
		return Storage{Kind: MachineReg, Reg: idx}
	}

	// Nothing free: look for a candidate whose current occupant is
	// already dead at this point and evict it.
	for i := 0; i < f.Len(); i++ {
		if f.IsFree(i) {
			continue
		}
		occupant := vcode.Reg(f.Owner(i))
		d := &p.Regs[occupant]
		if !before(d.LifetimeEnd, at) {
			continue
		}
		f.Unbind(i)
		f.Bind(i, int(r))
		return Storage{Kind: MachineReg, Reg: i}
	}

	// Truly out of registers: spill to a new stack slot.
	sz := int32(p.Regs[r].Size)
	if sz <= 0 {
		sz = 8
	}
	p.FrameSize = align(p.FrameSize, sz)
	off := p.FrameSize
	p.FrameSize += sz
	return Storage{Kind: StackSlot, Offset: off}
}

// pickCandidate applies spec §4.5's priority rule for choosing among
// several free physical registers: if the value being placed is itself
// Returned (want carries Result), a register flagged Result wins
// outright; otherwise any non-CalleeSave register beats a CalleeSave
// one (minimizing prologue saves); otherwise whichever candidate came
// first.
func pickCandidate(f *regs.File, cands []int, want regs.Role) int {
	best := cands[0]
	for _, c := range cands {
		p := f.Physical(c)
		if want.Has(regs.Result) && p.Role.Has(regs.Result) {
			return c
		}
		if !p.Role.Has(regs.CalleeSave) && f.Physical(best).Role.Has(regs.CalleeSave) {
			best = c
		}
	}
	return best
}

// Assign is pass C: it walks every register in the unit's program
// order and decides its Storage, dispatching on the shape of the op
// that defines it (spec §4.5 pass C). Parameters are resolved first —
// they are live at entry, before any op has run, and an op as early as
// the unit's first CAST or UARRAY_LEFT/RIGHT/DIR can already need a
// parameter's Storage to make its own decision.
func (p *Plan) Assign(u vcode.Unit, f *regs.File) {
	for r := range p.Regs {
		d := &p.Regs[r]
		if d.DefnBlock >= 0 || !d.Flags.Has(Parameter) {
			continue
		}
		var want regs.Role
		if d.Flags.Has(Returned) {
			want = regs.Result
		}
		d.Storage = p.assignRegister(f, vcode.Reg(r), d.LifetimeStart, want)
	}

	for b := 0; b < u.CountBlocks(); b++ {
		u.SelectBlock(b)
		for op := 0; op < u.CountOps(); op++ {
			opcode := u.GetOp(op)
			res := u.GetResult(op)
			if !opcode.HasResult() || !res.Valid() {
				continue
			}
			if p.Regs[res].DefnBlock != b {
				continue // this op is not res's defining site
			}
			at := Point{Block: b, Op: op}
			p.assignOne(u, f, opcode, op, res, at)
		}
	}
}

func (p *Plan) assignOne(u vcode.Unit, f *regs.File, opcode vcode.Opcode, op int, res vcode.Reg, at Point) {
	d := &p.Regs[res]

	switch opcode {
	case vcode.OpConst:
		d.Storage = Storage{Kind: Const, ConstVal: u.GetValue(op)}
		return

	case vcode.OpAlloca:
		off, ok := p.AllocaOffset(at)
		if !ok {
			diag.Fatalf("plan: alloca at block %d op %d has no pre-reserved frame offset", at.Block, at.Op)
		}
		d.Storage = Storage{Kind: StackSlot, Offset: off}
		return

	case vcode.OpCmp:
		if d.Flags.Has(CondInput) {
			d.Storage = Storage{Kind: Flags}
			return
		}

	case vcode.OpUarrayLeft, vcode.OpUarrayRight, vcode.OpUarrayDir:
		if p.assignUarrayField(u, f, opcode, op, res) {
			return
		}

	case vcode.OpCast:
		if p.assignCastAlias(u, op, res) {
			return
		}
	}

	want := regs.Role(0)
	if d.Flags.Has(Returned) {
		want = regs.Result
	}
	d.Storage = p.assignRegister(f, res, at, want)
}

// isIntegerOrOffset reports whether k is one of the scalar kinds a CAST
// alias fast path is allowed to fold across (spec §4.5, ground-truth
// jit_map_cast's integer_conversion check).
func isIntegerOrOffset(k vcode.TypeKind) bool {
	return k == vcode.KindInt || k == vcode.KindOffset
}

// assignUarrayField implements pass C's UARRAY_LEFT/RIGHT/DIR handling
// (spec §4.5, SPEC_FULL.md SUPPLEMENTED FEATURES #4, ground-truth
// jit_map_uarray_op): the source must already be on the stack — an
// unbounded-array aggregate is never itself given a machine register —
// so a projected field either gets a machine register of its own, when
// it is read more than once and one is free, or is addressed directly
// at the base's stack offset plus the field's offset within the
// aggregate. Returns false only when there is no base operand at all,
// leaving the caller to fall through to the ordinary assignment path.
func (p *Plan) assignUarrayField(u vcode.Unit, f *regs.File, opcode vcode.Opcode, op int, res vcode.Reg) bool {
	if u.CountArgs(op) == 0 {
		return false
	}
	base := u.GetArg(op, 0)
	if !base.Valid() {
		return false
	}
	baseSt := p.Regs[base].Storage
	if baseSt.Kind != StackSlot {
		diag.Fatalf("plan: uarray field op %d: base register %s is not stack-resident (%s)", op, base, baseSt.Kind)
	}

	d := &p.Regs[res]
	if d.UseCount >= 2 {
		if cands := f.Available(); len(cands) > 0 {
			idx := pickCandidate(f, cands, regs.Role(0))
			f.Bind(idx, int(res))
			d.Storage = Storage{Kind: MachineReg, Reg: idx}
			return true
		}
	}

	fieldOff := u.RegType(base).UarrayFieldOffset(opcode)
	d.Storage = Storage{Kind: Alias, Offset: baseSt.Offset + int32(fieldOff)}
	return true
}

// assignCastAlias implements pass C's CAST alias fast path (spec
// §4.5, ground-truth jit_map_cast): a conversion between integer/offset
// kinds (sizes are not compared), off a stack-resident source read at most
// twice, needs no code at all — the result simply reads the source's
// own stack slot. Anything else (a register-resident or const source,
// a float, a heavier use count) falls through so the emitter's cast
// handling does a real copy.
func (p *Plan) assignCastAlias(u vcode.Unit, op int, res vcode.Reg) bool {
	if u.CountArgs(op) == 0 {
		return false
	}
	src := u.GetArg(op, 0)
	if !src.Valid() {
		return false
	}
	if !isIntegerOrOffset(u.RegType(res).Kind) || !isIntegerOrOffset(u.RegType(src).Kind) {
		return false
	}
	srcSt := p.Regs[src].Storage
	if srcSt.Kind != StackSlot {
		return false
	}
	d := &p.Regs[res]
	if d.UseCount > 2 {
		return false
	}
	d.Storage = Storage{Kind: Alias, Offset: srcSt.Offset}
	return true
}
