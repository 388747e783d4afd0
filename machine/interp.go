package machine

import "encoding/binary"

// Interp32 is the canonical descriptor for the bytecode register machine
// (package bytecode): 32 registers, a 4-byte word, and the stack pointer
// in the last register slot. These constants are fixed by the wire
// format in spec §6 and by the worked examples in spec §8 — they are not
// configurable per-program.
var Interp32 = Machine{
	Name:      "interp32",
	NumRegs:   32,
	ResultReg: 0,
	SPReg:     31,
	WordSize:  4,
	Order:     binary.LittleEndian,
}

const (
	Interp32NumRegs  = 32
	Interp32WordSize = 4
	Interp32SPReg    = Interp32NumRegs - 1
)
