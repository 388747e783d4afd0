//go:build linux && amd64

// Package codebuf manages the executable memory a compiled unit's
// native code is written into (spec §4.3). A Buffer starts out
// read-write, is filled by a sequence of per-op EmitAt calls, and is
// then finalized to read-execute — never both writable and executable
// at once (spec §9's W^X design note; ascrivener-jam's jit/execmem.go
// instead maps RWX for the whole buffer's lifetime, which this module
// deliberately does not follow).
package codebuf

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/vcode-rt/corejit/internal/diag"
)

// DefaultCapacity is the size of a code buffer's backing page when the
// caller does not request one explicitly, overridable via
// VCODEJIT_MAX_CODE_BYTES (SPEC_FULL.md, Configuration).
const DefaultCapacity = 4096

// Buffer is a single fixed-capacity page of memory a unit's compiled
// code is written into.
type Buffer struct {
	mu       sync.Mutex
	mem      []byte
	used     int
	final    bool
}

// New mmaps a fresh read-write anonymous page of the given capacity (or
// DefaultCapacity if cap <= 0).
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	mem, err := unix.Mmap(-1, 0, capacity,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("codebuf: mmap %d bytes: %w", capacity, err)
	}
	return &Buffer{mem: mem}, nil
}

// Base returns the address of the first byte of the buffer.
func (b *Buffer) Base() uintptr {
	if len(b.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b.mem[0]))
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Cap returns the buffer's total capacity.
func (b *Buffer) Cap() int { return len(b.mem) }

// GetBounds returns the address range [start, end) the buffer occupies.
func (b *Buffer) GetBounds() (start, end uintptr) {
	if len(b.mem) == 0 {
		return 0, 0
	}
	start = b.Base()
	end = start + uintptr(len(b.mem))
	return
}

// EmitAt appends data to the buffer and returns the offset it was
// written at. Running out of capacity mid-compile is a programmer
// contract violation, not a recoverable condition — a caller sized the
// buffer for a unit and then wrote more code than it planned for — so
// it is fatal, and the diagnostic names the op index responsible (spec
// §4.3, §7).
func (b *Buffer) EmitAt(opIndex int, data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.final {
		diag.Fatalf("codebuf: EmitAt called on a finalized buffer (op %d)", opIndex)
	}
	if b.used+len(data) > len(b.mem) {
		diag.Fatalf("codebuf: out of code space emitting op %d: need %d more bytes, have %d",
			opIndex, len(data), len(b.mem)-b.used)
	}
	off := b.used
	copy(b.mem[off:], data)
	b.used += len(data)
	return off
}

// PatchAt overwrites previously-written bytes at off, used for jump
// fixup once branch targets are known (spec §4.6). It never grows the
// buffer.
func (b *Buffer) PatchAt(off int, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.final {
		diag.Fatalf("codebuf: PatchAt called on a finalized buffer (offset %d)", off)
	}
	if off < 0 || off+len(data) > b.used {
		diag.Fatalf("codebuf: PatchAt(%d, len=%d) out of the written range [0, %d)", off, len(data), b.used)
	}
	copy(b.mem[off:], data)
}

// Bytes returns the bytes written so far. The returned slice aliases
// the buffer; callers must not retain it past a Release.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mem[:b.used]
}

// Finalize switches the buffer from read-write to read-execute. After
// Finalize, EmitAt and PatchAt fail fatally: a unit's code, once made
// executable, is immutable (spec §9).
func (b *Buffer) Finalize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.final {
		return nil
	}
	if err := unix.Mprotect(b.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("codebuf: mprotect to RX: %w", err)
	}
	b.final = true
	return nil
}

// Release unmaps the buffer. It is a boundary/resource failure — not a
// programmer error — if the underlying munmap fails, so Release returns
// an error rather than aborting.
func (b *Buffer) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	b.used = 0
	if err != nil {
		return fmt.Errorf("codebuf: munmap: %w", err)
	}
	return nil
}
