package bytecode

// Op is a bytecode opcode for the small register-machine IR (spec §4.2,
// wire format table in spec §6). Values are fixed by the wire format and
// must never be renumbered.
type Op byte

const (
	OpNop  Op = 0x00
	OpMovW Op = 0x01
	OpRet  Op = 0x02
	OpAdd  Op = 0x03
	OpMov  Op = 0x04
	OpAddW Op = 0x05
	OpStr  Op = 0x06
	OpLdr  Op = 0x07
	OpMul  Op = 0x08
	OpCmp  Op = 0x09
	OpCset Op = 0x0a
	OpJmp  Op = 0x0b
	// 0x0c and 0x0d are reserved by the wire format.
	OpMovB  Op = 0x0e
	OpAddB  Op = 0x0f
	OpJmpC  Op = 0x10
	OpSub   Op = 0x11
	OpAndB  Op = 0x12
	OpAndW  Op = 0x13
	OpTestB Op = 0x14
	OpTestW Op = 0x15
	OpMulB  Op = 0x16
	OpMulW  Op = 0x17
)

var opNames = map[Op]string{
	OpNop: "nop", OpMovW: "movw", OpRet: "ret", OpAdd: "add", OpMov: "mov",
	OpAddW: "addw", OpStr: "str", OpLdr: "ldr", OpMul: "mul", OpCmp: "cmp",
	OpCset: "cset", OpJmp: "jmp", OpMovB: "movb", OpAddB: "addb",
	OpJmpC: "jmpc", OpSub: "sub", OpAndB: "andb", OpAndW: "andw",
	OpTestB: "testb", OpTestW: "testw", OpMulB: "mulb", OpMulW: "mulw",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "???"
}

// Cond is a condition-code bit set, per spec §6. EQ/NE are aliases of
// Z/NZ, not distinct bits.
type Cond byte

const (
	Z  Cond = 0x01
	NZ Cond = 0x02
	GT Cond = 0x04
	LT Cond = 0x08
	GE Cond = 0x10
	LE Cond = 0x20

	EQ = Z
	NE = NZ
)

var condNames = map[Cond]string{
	Z: "eq", NZ: "ne", GT: "gt", LT: "lt", GE: "ge", LE: "le",
}

func (c Cond) String() string {
	if s, ok := condNames[c]; ok {
		return s
	}
	return "??"
}

// Holds reports whether the condition c is satisfied by a flags bit set
// produced by cmp/test (any overlap between the two bit sets counts, so
// a single comparison result can satisfy several condition codes at
// once — e.g. a positive difference sets Z=0, NZ, GT, GE together).
func (c Cond) Holds(flags Cond) bool {
	return flags&c != 0
}

// Reg is a bytecode register index, encoded as a single byte.
type Reg byte
