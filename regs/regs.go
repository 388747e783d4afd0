// Package regs models the target native machine's physical register
// file: which registers exist, what role each plays in the calling
// convention, and which virtual register currently occupies each one
// during storage assignment (spec §4.4's "Native register file").
package regs

// Role is a bit set describing how a physical register participates in
// the calling convention and in storage assignment.
type Role uint8

const (
	// Scratch registers are free for the storage planner to assign to
	// any live value; they survive no call and need no save/restore.
	Scratch Role = 1 << iota
	// Result marks the register a unit's return value is expected in.
	Result
	// CalleeSave registers must be spilled to the frame in the prologue
	// and restored in the epilogue if the compiled unit uses them.
	CalleeSave
	// Argument registers hold a unit's incoming parameters, in ABI
	// order given by ArgIndex.
	Argument
)

func (r Role) Has(bit Role) bool { return r&bit != 0 }

// Physical describes one physical register.
type Physical struct {
	Name     string // e.g. "rax", used for lookup/debugging
	Text     string // assembly mnemonic, fed to machine.Machine.RegName
	Enc      byte   // x86-64 register encoding (0-15), used by the emitter's REX/ModRM helpers
	Role     Role
	ArgIndex int // meaningful only when Role.Has(Argument)
}

// noOwner marks a register slot with nothing currently assigned to it.
const noOwner = -1

// File is a pool of physical registers plus, for each one, which
// virtual register (if any) currently owns it. It backs the storage
// planner's MachineReg assignment and the emitter's prologue/epilogue
// callee-save bookkeeping (spec §4.5, §4.6).
type File struct {
	regs  []Physical
	usage []int // parallel to regs; noOwner or an owning vreg id
}

// NewFile creates a register file over the given physical register set.
// The rsp-equivalent register (the machine's SPReg) is expected to
// already be excluded from set by the caller — it is never a candidate
// for general allocation.
func NewFile(set []Physical) *File {
	usage := make([]int, len(set))
	for i := range usage {
		usage[i] = noOwner
	}
	return &File{regs: set, usage: usage}
}

// Len returns the number of physical registers in the pool.
func (f *File) Len() int { return len(f.regs) }

// Physical returns the i'th physical register's descriptor.
func (f *File) Physical(i int) Physical { return f.regs[i] }

// IsFree reports whether physical register i currently has no owner.
func (f *File) IsFree(i int) bool { return f.usage[i] == noOwner }

// Owner returns the virtual register id occupying physical register i,
// or noOwner if it's free.
func (f *File) Owner(i int) int { return f.usage[i] }

// Bind assigns virtual register vreg to physical register i, evicting
// whatever previously owned it.
func (f *File) Bind(i int, vreg int) { f.usage[i] = vreg }

// Unbind frees physical register i.
func (f *File) Unbind(i int) { f.usage[i] = noOwner }

// FindOwning returns the physical register index currently bound to
// vreg, or -1 if none is.
func (f *File) FindOwning(vreg int) int {
	for i, owner := range f.usage {
		if owner == vreg {
			return i
		}
	}
	return -1
}

// Candidates returns the indices of every free physical register whose
// Role has all of want set. It answers role-scoped queries (e.g. "which
// free registers can hold an incoming argument"); general storage
// assignment eligibility is Available, not this.
func (f *File) Candidates(want Role) []int {
	var out []int
	for i, r := range f.regs {
		if f.IsFree(i) && r.Role.Has(want) {
			out = append(out, i)
		}
	}
	return out
}

// Available returns the indices of every free physical register in the
// pool, regardless of role. Spec's "eligible candidates are non-SCRATCH
// registers" means eligible for anything the storage planner assigns,
// full stop — the registers a machine reserves for its own operand
// staging (this backend's r10/r11) are never part of a File's pool to
// begin with, so every register that is in the pool is a candidate.
// Role only breaks ties between several free registers (see
// plan.pickCandidate); it never narrows the candidate set itself.
func (f *File) Available() []int {
	var out []int
	for i := range f.regs {
		if f.IsFree(i) {
			out = append(out, i)
		}
	}
	return out
}

// Reset frees every register, e.g. between compiling independent units
// with the same File.
func (f *File) Reset() {
	for i := range f.usage {
		f.usage[i] = noOwner
	}
}
