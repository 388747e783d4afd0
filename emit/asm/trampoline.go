//go:build linux && amd64

// Package asm holds the single hand-written assembly routine this
// module needs: a trampoline that calls into JIT-compiled native code
// as an ordinary function. It is kept separate from emit itself, the
// way ascrivener-jam keeps its own call trampoline in a dedicated
// jit/asm package, so that exactly one file in the whole tree needs
// Plan9 assembly instead of cgo.
package asm

// Call invokes the native code at entry as a System V AMD64 function:
// up to the first six elements of args are loaded into
// rdi/rsi/rdx/rcx/r8/r9 in order (matching the emitter's parameter
// registers, spec §4.6's prologue "ABI-argument-register-to-assigned-
// storage moves"), and the value left in rax at the callee's ret is
// returned. args may have more than six elements; only the first six
// are passed — the emitter's prologue rejects, fatally, a unit with
// more parameters than there are argument registers.
//
// The counterpart in the source pack (jit/asm/trampoline.go) declares
// a differently-shaped function with no body and no matching .s file in
// the retrieval set; Call and its .s implementation were authored
// directly against the System V AMD64 calling convention to fill that
// gap, generalized from a two-register (state, RAM) call to an
// arbitrary-arity one since a VCODE unit's parameter count isn't fixed
// the way ascrivener-jam's interpreter loop's is.
func Call(entry uintptr, args []int64) int64
