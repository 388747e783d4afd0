package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Instruction is a single decoded instruction: enough of a structured
// form to re-encode it (used by the round-trip test, spec §8 property 3)
// or print it (Program.Dump).
type Instruction struct {
	Op   Op
	Regs []Reg // in wire order

	HasImm bool
	Imm    int64

	HasCond bool
	Cond    Cond

	HasDisp bool
	Disp    int16
}

func (in Instruction) String() string {
	switch in.Op {
	case OpNop, OpRet:
		return in.Op.String()
	case OpMov, OpAdd, OpSub, OpMul, OpCmp:
		return fmt.Sprintf("%s r%d, r%d", in.Op, in.Regs[0], in.Regs[1])
	case OpMovB, OpMovW, OpAddB, OpAddW, OpMulB, OpMulW, OpAndB, OpAndW, OpTestB, OpTestW:
		return fmt.Sprintf("%s r%d, #%d", in.Op, in.Regs[0], in.Imm)
	case OpCset:
		return fmt.Sprintf("cset r%d, %s", in.Regs[0], in.Cond)
	case OpStr:
		return fmt.Sprintf("str [r%d+%d], r%d", in.Regs[0], in.Disp, in.Regs[1])
	case OpLdr:
		return fmt.Sprintf("ldr r%d, [r%d+%d]", in.Regs[0], in.Regs[1], in.Disp)
	case OpJmp:
		return fmt.Sprintf("jmp %+d", in.Disp)
	case OpJmpC:
		return fmt.Sprintf("jmpc %s, %+d", in.Cond, in.Disp)
	default:
		return "???"
	}
}

// Decoder reads Instructions back out of an encoded byte stream. It
// exists chiefly to make the wire format's round-trip property testable
// (spec §8 property 3: decode(encode(insn)) == insn) and to back
// Program.Dump.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder positioned at the start of buf.
func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

// Offset returns the decoder's current byte position.
func (d *Decoder) Offset() int { return d.off }

func (d *Decoder) u8() byte {
	b := d.buf[d.off]
	d.off++
	return b
}

func (d *Decoder) i16() int16 {
	v := int16(binary.LittleEndian.Uint16(d.buf[d.off:]))
	d.off += 2
	return v
}

func (d *Decoder) i32() int32 {
	v := int32(binary.LittleEndian.Uint32(d.buf[d.off:]))
	d.off += 4
	return v
}

// Decode reads one instruction starting at the current offset. It
// returns an error for an opcode byte the decoder does not recognize —
// this is a boundary/data-integrity failure (corrupt or foreign input),
// not a programmer-contract violation, so it is a recoverable error
// rather than a fatal abort (spec §7).
func (d *Decoder) Decode() (Instruction, error) {
	op := Op(d.u8())
	switch op {
	case OpNop, OpRet:
		return Instruction{Op: op}, nil
	case OpMov, OpAdd, OpSub, OpMul, OpCmp:
		r0, r1 := Reg(d.u8()), Reg(d.u8())
		return Instruction{Op: op, Regs: []Reg{r0, r1}}, nil
	case OpMovB, OpAddB, OpMulB, OpAndB, OpTestB:
		r := Reg(d.u8())
		imm := int64(int8(d.u8()))
		return Instruction{Op: op, Regs: []Reg{r}, HasImm: true, Imm: imm}, nil
	case OpMovW, OpAddW, OpMulW, OpAndW, OpTestW:
		r := Reg(d.u8())
		imm := int64(d.i32())
		return Instruction{Op: op, Regs: []Reg{r}, HasImm: true, Imm: imm}, nil
	case OpCset:
		r := Reg(d.u8())
		cond := Cond(d.u8())
		return Instruction{Op: op, Regs: []Reg{r}, HasCond: true, Cond: cond}, nil
	case OpStr:
		base := Reg(d.u8())
		off := d.i16()
		src := Reg(d.u8())
		return Instruction{Op: op, Regs: []Reg{base, src}, HasDisp: true, Disp: off}, nil
	case OpLdr:
		dst := Reg(d.u8())
		base := Reg(d.u8())
		off := d.i16()
		return Instruction{Op: op, Regs: []Reg{dst, base}, HasDisp: true, Disp: off}, nil
	case OpJmp:
		disp := d.i16()
		return Instruction{Op: op, HasDisp: true, Disp: disp}, nil
	case OpJmpC:
		cond := Cond(d.u8())
		disp := d.i16()
		return Instruction{Op: op, HasCond: true, Cond: cond, HasDisp: true, Disp: disp}, nil
	default:
		return Instruction{}, fmt.Errorf("bytecode: unrecognized opcode 0x%02x at offset %d", byte(op), d.off-1)
	}
}
