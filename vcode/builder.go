package vcode

// Op is one instruction within a Block, written as a plain literal —
// the same style the teacher's own tests use for PVM programs
// ([]*ParsedInstruction{...}), generalized to VCODE's richer operand
// shape.
type Op struct {
	Opcode Opcode
	Args   []Reg
	Result Reg
	Type   VType
	Value  int64
}

// RegInfo is the static per-register metadata a real VCODE unit would
// answer RegType/RegKind queries from.
type RegInfo struct {
	Type VType
	Kind RegKind
}

// LiteralUnit is a minimal, literal-built implementation of Unit. It
// exists so the planner, emitter and JIT cache can be exercised by
// synthetic programs without a real VCODE front end, which is out of
// scope (spec §1).
type LiteralUnit struct {
	Vars   []VType
	Regs   []RegInfo
	Blocks [][]Op

	active int
	refs   int
}

// NewUnit builds a LiteralUnit from its blocks, register metadata and
// stack variable types.
func NewUnit(vars []VType, regs []RegInfo, blocks [][]Op) *LiteralUnit {
	return &LiteralUnit{Vars: vars, Regs: regs, Blocks: blocks}
}

func (u *LiteralUnit) CountBlocks() int     { return len(u.Blocks) }
func (u *LiteralUnit) CountOps() int        { return len(u.Blocks[u.active]) }
func (u *LiteralUnit) CountVars() int       { return len(u.Vars) }
func (u *LiteralUnit) CountRegs() int       { return len(u.Regs) }
func (u *LiteralUnit) CountArgs(op int) int { return len(u.Blocks[u.active][op].Args) }

func (u *LiteralUnit) SelectBlock(b int) { u.active = b }
func (u *LiteralUnit) ActiveBlock() int  { return u.active }

func (u *LiteralUnit) GetOp(op int) Opcode  { return u.Blocks[u.active][op].Opcode }
func (u *LiteralUnit) GetArg(op, k int) Reg { return u.Blocks[u.active][op].Args[k] }
func (u *LiteralUnit) GetResult(op int) Reg { return u.Blocks[u.active][op].Result }

func (u *LiteralUnit) GetType(op int) VType  { return u.Blocks[u.active][op].Type }
func (u *LiteralUnit) GetValue(op int) int64 { return u.Blocks[u.active][op].Value }

func (u *LiteralUnit) VarType(v Var) VType   { return u.Vars[v] }
func (u *LiteralUnit) RegType(r Reg) VType   { return u.Regs[r].Type }
func (u *LiteralUnit) RegKind(r Reg) RegKind { return u.Regs[r].Kind }

func (u *LiteralUnit) UnitKind() UnitKind { return UnitFunction }
func (u *LiteralUnit) UnitRef()           { u.refs++ }
func (u *LiteralUnit) UnitUnref()         { u.refs-- }

// Dump walks every op and register and hands the sink a short summary —
// enough for jit.Cache's NVC_JIT_VERBOSE dump to annotate each op and
// register.
func (u *LiteralUnit) Dump(sink DumpSink) {
	for b, ops := range u.Blocks {
		for i, op := range ops {
			sink.Op(b, i, op.Opcode.String())
		}
	}
	for r, ri := range u.Regs {
		sink.Reg(Reg(r), ri.Kind.String())
	}
}
