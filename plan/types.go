// Package plan implements the storage planner: the three-pass analysis
// that decides, for every VCODE register and stack variable in a unit,
// where it lives during native execution — a machine register, a stack
// slot, the flags register, folded into a constant, or aliased onto
// another register's storage (spec §4.5).
package plan

import "github.com/vcode-rt/corejit/vcode"

// StorageKind tags which of the mutually exclusive ways a register's
// value can be held.
type StorageKind int

const (
	Unassigned StorageKind = iota
	MachineReg
	StackSlot
	Const
	Flags
	Alias
)

func (k StorageKind) String() string {
	switch k {
	case Unassigned:
		return "unassigned"
	case MachineReg:
		return "machine_reg"
	case StackSlot:
		return "stack_slot"
	case Const:
		return "const"
	case Flags:
		return "flags"
	case Alias:
		return "alias"
	default:
		return "?"
	}
}

// Storage is the tagged variant recording where one VCODE register's
// value lives (spec §4.5, "Storage: a tagged variant": {Unassigned,
// MachineReg(name), StackSlot(offset), Const(value), Flags,
// Alias(base-stack-offset+field-offset)}). Alias and StackSlot share
// the Offset field: an alias is a fully resolved absolute frame offset
// computed once at assignment time (a base register's own stack offset
// plus a field offset within the aggregate it holds), not a live
// reference to another register's storage — reads treat it exactly
// like an ordinary stack slot.
type Storage struct {
	Kind StorageKind

	Reg      int   // MachineReg: index into the regs.File pool
	Offset   int32 // StackSlot, Alias: byte offset from the frame base
	ConstVal int64 // Const: the folded value
}

// RegFlags classifies a register's role for storage-assignment
// purposes (spec §4.5 pass B).
type RegFlags uint8

const (
	// Parameter marks a register that receives an incoming argument.
	Parameter RegFlags = 1 << iota
	// Returned marks a register whose value flows into OpReturn.
	Returned
	// BlockLocal marks a register never referenced outside the block
	// that defines it; cleared the moment a cross-block use is found.
	BlockLocal
	// CondInput marks a register that is the ephemeral result of a CMP
	// consumed immediately by the following COND in the same block —
	// exactly the shape that can live in the flags register instead of
	// a general-purpose one.
	CondInput
)

func (f RegFlags) Has(bit RegFlags) bool { return f&bit != 0 }

// RegDescriptor is the per-VCODE-register analysis record the planner
// builds up across passes B and C.
type RegDescriptor struct {
	Flags RegFlags
	Size  int

	DefnBlock int // block the register's defining op lives in, -1 if never defined
	UseCount  int

	// LifetimeStart/LifetimeEnd bound the op index range across which the
	// register must be considered live, block-index-qualified: an op
	// index alone is ambiguous once a register's use spans more than one
	// block, so both ends carry the block they occurred in.
	LifetimeStart, LifetimeEnd Point

	Storage Storage
}

// Point identifies an op within a unit by block and in-block index.
type Point struct {
	Block int
	Op    int
}

// VarDescriptor is the per-stack-variable analysis record built in pass
// A.
type VarDescriptor struct {
	Type   vcode.VType
	Size   int
	Offset int32 // fixed non-negative byte offset from the frame base (rsp after the prologue)
}

// Plan is the completed result of all three passes: the frame layout
// plus a storage decision for every VCODE register.
type Plan struct {
	FrameSize int32
	Vars      []VarDescriptor
	Regs      []RegDescriptor

	allocaOffset map[Point]int32
}

// AllocaOffset returns the frame offset pass A pre-reserved for the
// OpAlloca at the given point, if any.
func (p *Plan) AllocaOffset(at Point) (int32, bool) {
	off, ok := p.allocaOffset[at]
	return off, ok
}
