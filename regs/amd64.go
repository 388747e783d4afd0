package regs

import (
	"encoding/binary"
	"fmt"

	"github.com/vcode-rt/corejit/machine"
)

// AMD64 x86-64 register encodings (spec-independent ISA constants),
// carried over from the shape of ascrivener-jam's jit/x86asm.go Reg
// constants.
const (
	EncRAX byte = 0
	EncRCX byte = 1
	EncRDX byte = 2
	EncRBX byte = 3
	EncRSP byte = 4
	EncRBP byte = 5
	EncRSI byte = 6
	EncRDI byte = 7
	EncR8  byte = 8
	EncR9  byte = 9
	EncR10 byte = 10
	EncR11 byte = 11
	EncR12 byte = 12
	EncR13 byte = 13
	EncR14 byte = 14
	EncR15 byte = 15
)

// Amd64Set is the SysV-ABI-flavored register pool a storage plan for
// the amd64 backend draws from, grounded on ascrivener-jam's
// pvmRegToX86/pvmRegInHardware tables (jit/compiler.go): a handful of
// callee-save registers hold long-lived values across the whole unit,
// the argument registers double as scratch once a unit has read its
// parameters, and rax carries the result. r10 and r11 are deliberately
// absent from the pool: the emitter (package emit) reserves them as its
// own operand-staging scratch registers, so it can always materialize a
// stack slot or constant operand without risking a clobber of some
// other live vreg's assigned register.
var Amd64Set = []Physical{
	{Name: "rax", Text: "rax", Enc: EncRAX, Role: Scratch | Result},
	{Name: "rdi", Text: "rdi", Enc: EncRDI, Role: Scratch | Argument, ArgIndex: 0},
	{Name: "rsi", Text: "rsi", Enc: EncRSI, Role: Scratch | Argument, ArgIndex: 1},
	{Name: "rdx", Text: "rdx", Enc: EncRDX, Role: Scratch | Argument, ArgIndex: 2},
	{Name: "rcx", Text: "rcx", Enc: EncRCX, Role: Scratch | Argument, ArgIndex: 3},
	{Name: "r8", Text: "r8", Enc: EncR8, Role: Scratch | Argument, ArgIndex: 4},
	{Name: "r9", Text: "r9", Enc: EncR9, Role: Scratch | Argument, ArgIndex: 5},
	{Name: "rbx", Text: "rbx", Enc: EncRBX, Role: CalleeSave},
	{Name: "rbp", Text: "rbp", Enc: EncRBP, Role: CalleeSave},
	{Name: "r12", Text: "r12", Enc: EncR12, Role: CalleeSave},
	{Name: "r13", Text: "r13", Enc: EncR13, Role: CalleeSave},
	{Name: "r14", Text: "r14", Enc: EncR14, Role: CalleeSave},
	{Name: "r15", Text: "r15", Enc: EncR15, Role: CalleeSave},
}

// NewAmd64File returns a fresh File over Amd64Set.
func NewAmd64File() *File { return NewFile(Amd64Set) }

// regName looks up a physical register's assembly mnemonic by its
// position in Amd64Set, for wiring into machine.Machine.RegName. reg
// values outside Amd64Set render in the machine package's generic
// "R%d" form (the pool holds 13 of the 16 registers: rsp, r10 and r11
// are kept out of it).
func regName(reg int) string {
	if reg < 0 || reg >= len(Amd64Set) {
		return fmt.Sprintf("R%d", reg)
	}
	return Amd64Set[reg].Text
}

// Amd64 is the concrete Machine descriptor for the native x86-64
// backend (spec §4.1). It lives in this package, rather than machine,
// to avoid machine importing the register-name table it needs to fill
// RegName.
var Amd64 = machine.Machine{
	Name:      "amd64",
	NumRegs:   len(Amd64Set),
	ResultReg: 0,  // Amd64Set[0] is rax
	SPReg:     -1, // stack slots address off rsp directly; rsp was never part of the vreg pool to begin with
	WordSize:  8,
	Order:     binary.LittleEndian,
	RegName:   regName,
}
