package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/vcode-rt/corejit/machine"
)

// placeholderDisplacement is written into an unresolved branch's
// displacement field. It is never a value Bind can legitimately produce
// as a real relative offset at the moment it's written (every real
// pending branch is patched before Finish succeeds), so its presence
// after Finish would itself be a bug; property 1 in spec §8 checks
// exactly that no placeholder survives.
const placeholderDisplacement = int16(0x7eee)

// Assembler emits a program for the small register machine described in
// spec §4.2. Instructions are variable length; the assembler simply
// appends to a growing byte slice — unlike the native code buffer (spec
// §4.3) there is no fixed-capacity page to overflow here.
type Assembler struct {
	machine machine.Machine
	buf     []byte

	frameSize uint32
	comments  map[int]string

	// pending tracks every label this assembler has ever branched to
	// while unbound, so Finish can verify each one got bound.
	pending map[*Label]struct{}
}

// NewAssembler creates an assembler targeting m.
func NewAssembler(m machine.Machine) *Assembler {
	return &Assembler{
		machine:  m,
		comments: make(map[int]string),
		pending:  make(map[*Label]struct{}),
	}
}

// Offset returns the current write position.
func (a *Assembler) Offset() int { return len(a.buf) }

// Bytes returns the bytes assembled so far.
func (a *Assembler) Bytes() []byte { return a.buf }

// SetFrameSize records the frame size (in bytes) the compiled program
// requires; it is carried into the finished Program.
func (a *Assembler) SetFrameSize(bytes uint32) { a.frameSize = bytes }

func (a *Assembler) emit(bs ...byte) { a.buf = append(a.buf, bs...) }

func (a *Assembler) emitReg(r Reg) { a.buf = append(a.buf, byte(r)) }

func (a *Assembler) emitI8(v int8) { a.buf = append(a.buf, byte(v)) }

func (a *Assembler) emitI16(v int16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	a.buf = append(a.buf, b[:]...)
}

func (a *Assembler) emitI32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	a.buf = append(a.buf, b[:]...)
}

// fitsByte reports whether v is representable in the narrow (B) operand
// form: signed, [-128, 127] (spec §4.2, §8 property 2).
func fitsByte(v int64) bool { return v >= -128 && v <= 127 }

// Nop emits a no-op.
func (a *Assembler) Nop() { a.emit(byte(OpNop)) }

// Mov emits r <- r'.
func (a *Assembler) Mov(dst, src Reg) { a.emit(byte(OpMov)); a.emitReg(dst); a.emitReg(src) }

// MovImm emits r <- imm, selecting the narrow (MOVB) or wide (MOVW) form
// mechanically based on whether imm fits a signed byte.
func (a *Assembler) MovImm(dst Reg, imm int64) {
	if fitsByte(imm) {
		a.emit(byte(OpMovB))
		a.emitReg(dst)
		a.emitI8(int8(imm))
	} else {
		a.emit(byte(OpMovW))
		a.emitReg(dst)
		a.emitI32(int32(imm))
	}
}

// Add emits r <- r + r'; sets flags.
func (a *Assembler) Add(dst, src Reg) { a.emit(byte(OpAdd)); a.emitReg(dst); a.emitReg(src) }

// AddImm emits r <- r + imm; sets flags.
func (a *Assembler) AddImm(dst Reg, imm int64) {
	if fitsByte(imm) {
		a.emit(byte(OpAddB))
		a.emitReg(dst)
		a.emitI8(int8(imm))
	} else {
		a.emit(byte(OpAddW))
		a.emitReg(dst)
		a.emitI32(int32(imm))
	}
}

// Sub emits r <- r - r'; sets flags.
func (a *Assembler) Sub(dst, src Reg) { a.emit(byte(OpSub)); a.emitReg(dst); a.emitReg(src) }

// Mul emits r <- r * r'.
func (a *Assembler) Mul(dst, src Reg) { a.emit(byte(OpMul)); a.emitReg(dst); a.emitReg(src) }

// MulImm emits r <- r * imm.
func (a *Assembler) MulImm(dst Reg, imm int64) {
	if fitsByte(imm) {
		a.emit(byte(OpMulB))
		a.emitReg(dst)
		a.emitI8(int8(imm))
	} else {
		a.emit(byte(OpMulW))
		a.emitReg(dst)
		a.emitI32(int32(imm))
	}
}

// AndImm emits r <- r & imm (imm is sign-extended).
func (a *Assembler) AndImm(dst Reg, imm int64) {
	if fitsByte(imm) {
		a.emit(byte(OpAndB))
		a.emitReg(dst)
		a.emitI8(int8(imm))
	} else {
		a.emit(byte(OpAndW))
		a.emitReg(dst)
		a.emitI32(int32(imm))
	}
}

// TestImm sets flags from r & imm without writing r.
func (a *Assembler) TestImm(dst Reg, imm int64) {
	if fitsByte(imm) {
		a.emit(byte(OpTestB))
		a.emitReg(dst)
		a.emitI8(int8(imm))
	} else {
		a.emit(byte(OpTestW))
		a.emitReg(dst)
		a.emitI32(int32(imm))
	}
}

// Str emits a store of src to [base+off].
func (a *Assembler) Str(base Reg, off int16, src Reg) {
	a.emit(byte(OpStr))
	a.emitReg(base)
	a.emitI16(off)
	a.emitReg(src)
}

// Ldr emits a load of dst from [base+off].
func (a *Assembler) Ldr(dst, base Reg, off int16) {
	a.emit(byte(OpLdr))
	a.emitReg(dst)
	a.emitReg(base)
	a.emitI16(off)
}

// Cmp sets flags from lhs - rhs.
func (a *Assembler) Cmp(lhs, rhs Reg) { a.emit(byte(OpCmp)); a.emitReg(lhs); a.emitReg(rhs) }

// Cset emits dst <- (cond holds) ? 1 : 0.
func (a *Assembler) Cset(dst Reg, cond Cond) {
	a.emit(byte(OpCset))
	a.emitReg(dst)
	a.emit(byte(cond))
}

// Ret emits a return.
func (a *Assembler) Ret() { a.emit(byte(OpRet)) }

// Jmp emits an unconditional relative jump to label, resolving it
// immediately if label is already bound (a backward branch) or recording
// a patch to resolve once it is (a forward branch).
func (a *Assembler) Jmp(label *Label) {
	a.emit(byte(OpJmp))
	a.emitBranchTarget(label)
}

// JmpCond emits a conditional relative jump to label.
func (a *Assembler) JmpCond(label *Label, cond Cond) {
	a.emit(byte(OpJmpC))
	a.emit(byte(cond))
	a.emitBranchTarget(label)
}

// Comment associates a formatted diagnostic string with the current
// write offset; purely for Program.Dump, never affects encoding (spec
// §4.2). Unlike the C original this is not gated behind a debug build —
// see SPEC_FULL.md, SUPPLEMENTED FEATURES #3.
func (a *Assembler) Comment(format string, args ...any) {
	a.comments[a.Offset()] = sprintf(format, args...)
}

// emitBranchTarget writes the two-byte displacement for a branch to
// label, either resolved immediately (label already bound) or as a
// placeholder plus a recorded patch site (spec §4.2 "Labels and
// patching").
func (a *Assembler) emitBranchTarget(label *Label) {
	site := a.Offset()
	if label.Bound() {
		a.emitI16(displacement(label.Target(), site))
		return
	}
	label.patches = append(label.patches, site)
	a.pending[label] = struct{}{}
	a.emitI16(placeholderDisplacement)
}

// displacement computes the signed 16-bit relative offset from the byte
// after a two-byte displacement field starting at site to target, per
// spec §4.2: "target - (patch_site + sizeof(i16))".
func displacement(target, site int) int16 {
	rel := target - (site + 2)
	if rel < math.MinInt16 || rel > math.MaxInt16 {
		fatalf("bytecode: jump displacement %d exceeds 16 bits (site=%d target=%d)", rel, site, target)
	}
	return int16(rel)
}

// Bind sets label's target to the current write offset and resolves
// every patch recorded against it. A label may only be bound once (spec
// §3).
func (a *Assembler) Bind(label *Label) {
	if label.Bound() {
		fatalf("bytecode: label bound twice (already bound at %d)", label.bound)
	}
	label.bound = a.Offset()
	for _, site := range label.patches {
		binary.LittleEndian.PutUint16(a.buf[site:], uint16(displacement(label.bound, site)))
	}
	label.patches = nil
	delete(a.pending, label)
}

// Finish transfers ownership of the assembled bytes and frame size into
// a new Program. Every label ever branched to while unbound must have
// been bound by now (spec §4.2, §8 property 1); Finish aborts otherwise.
// The Assembler is left unusable after Finish.
func (a *Assembler) Finish() *Program {
	for label := range a.pending {
		if !label.Bound() {
			fatalf("bytecode: assembler finished with an unbound label (%d pending patch(es))", len(label.patches))
		}
	}
	p := &Program{
		Machine:   a.machine,
		Code:      a.buf,
		FrameSize: a.frameSize,
		comments:  a.comments,
	}
	a.buf = nil
	a.comments = nil
	a.pending = nil
	return p
}
