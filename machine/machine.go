// Package machine describes a code generation target: how many registers
// it has, which ones play special roles, its word size, and how to render
// a register index for humans.
package machine

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/cpuid/v2"
)

// Machine is an immutable descriptor for a target. All fields are plain
// data so a Machine is cheap to copy and safe to share across goroutines.
type Machine struct {
	Name string

	// NumRegs is the number of addressable registers, N.
	NumRegs int

	// ResultReg and SPReg are register indices with a fixed role: the
	// convention-mandated return-value register and the stack pointer.
	ResultReg int
	SPReg     int

	// WordSize is the machine word width in bytes.
	WordSize int

	// Order is used to decode multi-byte scalars from raw memory.
	Order binary.ByteOrder

	// RegName renders a register index as a human-readable name. If nil,
	// FormatReg falls back to "R<n>".
	RegName func(reg int) string
}

// FormatReg renders reg using m.RegName, or a generic fallback.
func (m Machine) FormatReg(reg int) string {
	if m.RegName != nil {
		return m.RegName(reg)
	}
	return fmt.Sprintf("R%d", reg)
}

// ReadI16 decodes a signed 16-bit scalar from p using the machine's byte
// order.
func (m Machine) ReadI16(p []byte) int16 {
	return int16(m.Order.Uint16(p))
}

// ReadI32 decodes a signed 32-bit scalar from p using the machine's byte
// order.
func (m Machine) ReadI32(p []byte) int32 {
	return int32(m.Order.Uint32(p))
}

// Diagnostic renders a one-line description of the target suitable for
// inclusion in a fatal-error dump: the target name plus the host CPU that
// is actually running the compiler, since a JIT fault is only ever
// reproducible together with the hardware that produced it.
func (m Machine) Diagnostic() string {
	return fmt.Sprintf("%s (num_regs=%d, word_size=%d, host_cpu=%s)",
		m.Name, m.NumRegs, m.WordSize, cpuid.CPU.BrandName)
}
