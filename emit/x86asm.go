package emit

import "encoding/binary"

// x86enc is a minimal x86-64 instruction encoder, generalized from the
// shape of ascrivener-jam's jit/x86asm.go: a byte-slice-returning
// builder rather than an in-place buffer writer, since this module's
// emitter writes each instruction's bytes into a codebuf.Buffer via
// EmitAt rather than into a private scratch slice.
type x86enc struct{}

var x86 x86enc

func rex(w, r, x, b bool) byte {
	var p byte = 0x40
	if w {
		p |= 0x08
	}
	if r {
		p |= 0x04
	}
	if x {
		p |= 0x02
	}
	if b {
		p |= 0x01
	}
	return p
}

func rexW(reg, rm byte) byte { return rex(true, reg >= 8, false, rm >= 8) }

func modRM(mod, reg, rm byte) byte { return mod | ((reg & 7) << 3) | (rm & 7) }

func le32(v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return b[:]
}

func le64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// MovRegReg: mov dst, src (64-bit).
func (x86enc) MovRegReg(dst, src byte) []byte {
	return []byte{rexW(src, dst), 0x89, modRM(0xC0, src, dst)}
}

// MovRegImm64: mov reg, imm64.
func (x86enc) MovRegImm64(reg byte, imm uint64) []byte {
	out := []byte{rex(true, false, false, reg >= 8), 0xB8 | (reg & 7)}
	return append(out, le64(imm)...)
}

// MovRegMem: mov reg, [base+disp32] (64-bit load). disp is always
// encoded as a 32-bit displacement to keep offset patching (a frame
// size discovered only after liveness runs) uniform.
func (x86enc) MovRegMem(reg, base byte, disp int32) []byte {
	out := []byte{rexW(reg, base), 0x8B}
	if base&7 == 4 { // RSP/R12 require a SIB byte
		out = append(out, modRM(0x80, reg, 4), 0x24)
	} else {
		out = append(out, modRM(0x80, reg, base))
	}
	return append(out, le32(disp)...)
}

// MovMemReg: mov [base+disp32], reg (64-bit store).
func (x86enc) MovMemReg(base byte, disp int32, reg byte) []byte {
	out := []byte{rexW(reg, base), 0x89}
	if base&7 == 4 {
		out = append(out, modRM(0x80, reg, 4), 0x24)
	} else {
		out = append(out, modRM(0x80, reg, base))
	}
	return append(out, le32(disp)...)
}

// AddRegReg: add dst, src (64-bit); sets flags.
func (x86enc) AddRegReg(dst, src byte) []byte {
	return []byte{rexW(src, dst), 0x01, modRM(0xC0, src, dst)}
}

// AddRegImm32: add reg, imm32 (sign-extended); sets flags.
func (x86enc) AddRegImm32(reg byte, imm int32) []byte {
	if imm >= -128 && imm <= 127 {
		return []byte{rexW(0, reg), 0x83, modRM(0xC0, 0, reg), byte(imm)}
	}
	return append([]byte{rexW(0, reg), 0x81, modRM(0xC0, 0, reg)}, le32(imm)...)
}

// SubRegReg: sub dst, src (64-bit); sets flags.
func (x86enc) SubRegReg(dst, src byte) []byte {
	return []byte{rexW(src, dst), 0x29, modRM(0xC0, src, dst)}
}

// SubRegImm32: sub reg, imm32 (sign-extended); sets flags.
func (x86enc) SubRegImm32(reg byte, imm int32) []byte {
	if imm >= -128 && imm <= 127 {
		return []byte{rexW(0, reg), 0x83, modRM(0xC0, 5, reg), byte(imm)}
	}
	return append([]byte{rexW(0, reg), 0x81, modRM(0xC0, 5, reg)}, le32(imm)...)
}

// IMulRegReg: imul dst, src (64-bit signed multiply).
func (x86enc) IMulRegReg(dst, src byte) []byte {
	return []byte{rexW(dst, src), 0x0F, 0xAF, modRM(0xC0, dst, src)}
}

// IMulRegRegImm32: imul dst, src, imm32.
func (x86enc) IMulRegRegImm32(dst, src byte, imm int32) []byte {
	if imm >= -128 && imm <= 127 {
		return []byte{rexW(dst, src), 0x6B, modRM(0xC0, dst, src), byte(imm)}
	}
	return append([]byte{rexW(dst, src), 0x69, modRM(0xC0, dst, src)}, le32(imm)...)
}

// AndRegReg: and dst, src (64-bit); sets flags.
func (x86enc) AndRegReg(dst, src byte) []byte {
	return []byte{rexW(src, dst), 0x21, modRM(0xC0, src, dst)}
}

// AndRegImm32: and reg, imm32 (sign-extended); sets flags.
func (x86enc) AndRegImm32(reg byte, imm int32) []byte {
	if imm >= -128 && imm <= 127 {
		return []byte{rexW(0, reg), 0x83, modRM(0xC0, 4, reg), byte(imm)}
	}
	return append([]byte{rexW(0, reg), 0x81, modRM(0xC0, 4, reg)}, le32(imm)...)
}

// CmpRegReg: cmp left, right (64-bit); sets flags.
func (x86enc) CmpRegReg(left, right byte) []byte {
	return []byte{rexW(right, left), 0x39, modRM(0xC0, right, left)}
}

// CmpRegImm32: cmp reg, imm32 (sign-extended); sets flags.
func (x86enc) CmpRegImm32(reg byte, imm int32) []byte {
	if imm >= -128 && imm <= 127 {
		return []byte{rexW(0, reg), 0x83, modRM(0xC0, 7, reg), byte(imm)}
	}
	return append([]byte{rexW(0, reg), 0x81, modRM(0xC0, 7, reg)}, le32(imm)...)
}

// setcc encodes `set<cc> reg` (byte write, zero-extended by callers
// that need a 64-bit boolean via a following MovzxReg8).
func setcc(op byte, reg byte) []byte {
	var p []byte
	if reg >= 8 {
		p = append(p, rex(false, false, false, true))
	} else if reg >= 4 {
		p = append(p, rex(false, false, false, false))
	}
	return append(p, 0x0F, op, modRM(0xC0, 0, reg))
}

func (x86enc) Sete(reg byte) []byte  { return setcc(0x94, reg) }
func (x86enc) Setne(reg byte) []byte { return setcc(0x95, reg) }
func (x86enc) Setl(reg byte) []byte  { return setcc(0x9C, reg) }
func (x86enc) Setge(reg byte) []byte { return setcc(0x9D, reg) }
func (x86enc) Setg(reg byte) []byte  { return setcc(0x9F, reg) }
func (x86enc) Setle(reg byte) []byte { return setcc(0x9E, reg) }

// MovzxReg8: movzx reg, reg (zero-extend the low byte set by setcc into
// a full 64-bit boolean).
func (x86enc) MovzxReg8(reg byte) []byte {
	return []byte{rexW(reg, reg), 0x0F, 0xB6, modRM(0xC0, reg, reg)}
}

// JmpRel32: jmp rel32 (near, unconditional). Always uses the 32-bit
// form regardless of how close the target turns out to be, since the
// emitter doesn't know block layout until every block has been sized.
func (x86enc) JmpRel32(rel int32) []byte {
	return append([]byte{0xE9}, le32(rel)...)
}

// jccRel32 encodes a near conditional jump (0F 8x rel32); tttn is the
// x86 condition nibble.
func jccRel32(tttn byte, rel int32) []byte {
	return append([]byte{0x0F, 0x80 | tttn}, le32(rel)...)
}

func (x86enc) Je(rel int32) []byte  { return jccRel32(0x4, rel) }
func (x86enc) Jne(rel int32) []byte { return jccRel32(0x5, rel) }
func (x86enc) Jl(rel int32) []byte  { return jccRel32(0xC, rel) }
func (x86enc) Jge(rel int32) []byte { return jccRel32(0xD, rel) }
func (x86enc) Jg(rel int32) []byte  { return jccRel32(0xF, rel) }
func (x86enc) Jle(rel int32) []byte { return jccRel32(0xE, rel) }

// Push: push reg (64-bit).
func (x86enc) Push(reg byte) []byte {
	if reg >= 8 {
		return []byte{rex(false, false, false, true), 0x50 | (reg & 7)}
	}
	return []byte{0x50 | reg}
}

// Pop: pop reg (64-bit).
func (x86enc) Pop(reg byte) []byte {
	if reg >= 8 {
		return []byte{rex(false, false, false, true), 0x58 | (reg & 7)}
	}
	return []byte{0x58 | reg}
}

// SubRspImm32: sub rsp, imm32 -- frame allocation.
func (x86enc) SubRspImm32(imm int32) []byte {
	return x86.SubRegImm32(4, imm) // encoding 4 == rsp
}

// AddRspImm32: add rsp, imm32 -- frame deallocation.
func (x86enc) AddRspImm32(imm int32) []byte {
	return x86.AddRegImm32(4, imm)
}

// Ret: ret.
func (x86enc) Ret() []byte { return []byte{0xC3} }

// Nop: nop.
func (x86enc) Nop() []byte { return []byte{0x90} }

// Ud2: ud2, the guaranteed-illegal instruction a failed bounds/index
// check traps into (spec §4.6, OpBounds/OpDynamicBounds/OpIndexCheck).
func (x86enc) Ud2() []byte { return []byte{0x0F, 0x0B} }
