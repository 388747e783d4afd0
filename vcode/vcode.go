// Package vcode declares the query surface this module consumes from its
// VCODE collaborator (spec §6). The IR itself — its construction, its type
// system, and the front end that lowers into it — is out of scope; this
// package only names the shape of the questions the storage planner and
// emitter need answered.
package vcode

import "fmt"

// Reg identifies a virtual (VCODE) register.
type Reg int

// InvalidReg marks the absence of a register, e.g. an unfilled argument
// slot or a "no result" op.
const InvalidReg Reg = -1

// Valid reports whether r names a real register.
func (r Reg) Valid() bool { return r >= 0 }

func (r Reg) String() string {
	if !r.Valid() {
		return "<invalid>"
	}
	return fmt.Sprintf("%%%d", int(r))
}

// Var identifies a VCODE stack variable.
type Var int

// TypeKind is the coarse classification of a VCODE type.
type TypeKind int

const (
	KindInt TypeKind = iota
	KindOffset
	KindPointer
	KindUarray
)

func (k TypeKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindOffset:
		return "offset"
	case KindPointer:
		return "pointer"
	case KindUarray:
		return "uarray"
	default:
		return "unknown"
	}
}

// VType is a VCODE type. The spec models this as an opaque handle
// resolved via vtype_kind/vtype_low/vtype_high queries on the Unit; this
// module has no separate type table to look handles up in; scalar types
// carry their own descriptor. Size is the type's byte width, used
// directly by the planner (spec §3, "size: byte width derived from the
// VCODE type").
type VType struct {
	Kind TypeKind
	Low  int64
	High int64
	Size int

	// Uarray is populated only when Kind == KindUarray: the per-dimension
	// {left, right, dir} field offsets within the aggregate (SPEC_FULL.md,
	// SUPPLEMENTED FEATURES #4).
	Uarray *UarrayLayout
}

// UarrayLayout names the byte offset of each field within one dimension
// of an unbounded-array aggregate.
type UarrayLayout struct {
	LeftOffset  int
	RightOffset int
	DirOffset   int
}

// UarrayFieldOffset returns the byte offset, within the aggregate t
// describes, of the field a uarray projection op reads. t.Kind must be
// KindUarray.
func (t VType) UarrayFieldOffset(opcode Opcode) int {
	switch opcode {
	case OpUarrayLeft:
		return t.Uarray.LeftOffset
	case OpUarrayRight:
		return t.Uarray.RightOffset
	case OpUarrayDir:
		return t.Uarray.DirOffset
	default:
		return 0
	}
}

// RegKind further classifies a register beyond its VType, mirroring the
// spec's reg_kind() query (spec §6). Most registers are Scalar; the three
// kinds below distinguish the pseudo-registers UARRAY_LEFT/RIGHT/DIR
// project out of an aggregate.
type RegKind int

const (
	KindScalar RegKind = iota
	KindUarrayLeft
	KindUarrayRight
	KindUarrayDir
)

func (k RegKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindUarrayLeft:
		return "uarray_left"
	case KindUarrayRight:
		return "uarray_right"
	case KindUarrayDir:
		return "uarray_dir"
	default:
		return "unknown"
	}
}

// Opcode enumerates every VCODE op the planner and emitter understand
// (spec §4.5, §4.6). Ops outside this set are rejected during analysis
// (spec §4.5 pass B: "ops not on the supported list are rejected").
type Opcode int

const (
	OpConst Opcode = iota
	OpAdd
	OpAddI
	OpSub
	OpMul
	OpLoad
	OpLoadIndirect
	OpStore
	OpStoreIndirect
	OpCmp
	OpJump
	OpCond
	OpReturn
	OpSelect
	OpUnwrap
	OpRangeNull
	OpUarrayLeft
	OpUarrayRight
	OpUarrayDir
	OpCast
	OpAlloca
	OpBounds
	OpDynamicBounds
	OpComment
	OpIndexCheck
)

var opcodeNames = map[Opcode]string{
	OpConst:         "const",
	OpAdd:           "add",
	OpAddI:          "addi",
	OpSub:           "sub",
	OpMul:           "mul",
	OpLoad:          "load",
	OpLoadIndirect:  "load_indirect",
	OpStore:         "store",
	OpStoreIndirect: "store_indirect",
	OpCmp:           "cmp",
	OpJump:          "jump",
	OpCond:          "cond",
	OpReturn:        "return",
	OpSelect:        "select",
	OpUnwrap:        "unwrap",
	OpRangeNull:     "range_null",
	OpUarrayLeft:    "uarray_left",
	OpUarrayRight:   "uarray_right",
	OpUarrayDir:     "uarray_dir",
	OpCast:          "cast",
	OpAlloca:        "alloca",
	OpBounds:        "bounds",
	OpDynamicBounds: "dynamic_bounds",
	OpComment:       "comment",
	OpIndexCheck:    "index_check",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// HasResult reports whether op produces a value. Ops absent from this set
// have no storage action in pass C (spec §4.5). OpAlloca does produce a
// result: the address of the space it reserves, which pass C must give
// real Storage so ops that consume it (UARRAY_LEFT/RIGHT/DIR,
// LOAD_INDIRECT/STORE_INDIRECT) find it already stack-resident rather
// than mistaking it for an incoming ABI argument.
func (op Opcode) HasResult() bool {
	switch op {
	case OpStore, OpStoreIndirect, OpJump, OpCond, OpReturn, OpBounds,
		OpDynamicBounds, OpComment, OpIndexCheck:
		return false
	default:
		return true
	}
}

// Materializes reports whether op's result, if any, must occupy a real
// storage location (register or stack slot) rather than being purely
// symbolic: false for CONST, LOAD and the UARRAY_* projections. The
// planner does not call it: pass B reserves no frame space per result,
// and spill slots are added to the frame only in pass C, as needed.
func (op Opcode) Materializes() bool {
	switch op {
	case OpConst, OpLoad, OpUarrayLeft, OpUarrayRight, OpUarrayDir:
		return false
	default:
		return op.HasResult()
	}
}

// UnitKind classifies a compilation unit.
type UnitKind int

const (
	UnitFunction UnitKind = iota
)

// DumpSink receives per-op and per-register annotations from a Unit's
// Dump method (spec §6, "a dump hook that invites the client to print a
// per-op and per-register annotation").
type DumpSink interface {
	Op(block, op int, text string)
	Reg(reg Reg, text string)
}

// Unit is the abstract query surface the storage planner and emitter
// consume (spec §6). Blocks are indexed 0..CountBlocks()-1; within a
// block, ops are indexed 0..CountOps()-1 relative to whichever block was
// last passed to SelectBlock — that is the block every other per-op
// method implicitly operates on, mirroring the source collaborator's
// "select then query" convention.
type Unit interface {
	CountBlocks() int
	CountOps() int
	CountVars() int
	CountRegs() int
	CountArgs(op int) int

	SelectBlock(block int)
	ActiveBlock() int

	GetOp(op int) Opcode
	GetArg(op, k int) Reg
	GetResult(op int) Reg

	GetType(op int) VType
	GetValue(op int) int64

	VarType(v Var) VType
	RegType(r Reg) VType
	RegKind(r Reg) RegKind

	UnitKind() UnitKind
	UnitRef()
	UnitUnref()

	Dump(sink DumpSink)
}
