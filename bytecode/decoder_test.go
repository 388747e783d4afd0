package bytecode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/vcode-rt/corejit/machine"
)

// TestDecodeRoundTrip checks spec §8 property 3: decoding every
// instruction the assembler can emit recovers the operands that were
// encoded, for a representative instruction of each shape.
func TestDecodeRoundTrip(t *testing.T) {
	a := NewAssembler(machine.Interp32)
	a.Nop()
	a.Mov(Reg(2), Reg(3))
	a.MovImm(Reg(0), 5)
	a.MovImm(Reg(0), 5000)
	a.Add(Reg(1), Reg(2))
	a.AddImm(Reg(1), -7)
	a.Sub(Reg(4), Reg(5))
	a.Mul(Reg(0), Reg(1))
	a.AndImm(Reg(0), 0x0f)
	a.TestImm(Reg(0), 0x0f)
	a.Cmp(Reg(0), Reg(1))
	a.Cset(Reg(2), GT)
	a.Str(Reg(31), 8, Reg(0))
	a.Ldr(Reg(0), Reg(31), 8)
	fwd := NewLabel()
	a.Jmp(fwd)
	a.Bind(fwd)
	a.JmpCond(fwd, LE)
	a.Ret()
	p := a.Finish()
	fwd.Close()

	want := []Instruction{
		{Op: OpNop},
		{Op: OpMov, Regs: []Reg{2, 3}},
		{Op: OpMovB, Regs: []Reg{0}, HasImm: true, Imm: 5},
		{Op: OpMovW, Regs: []Reg{0}, HasImm: true, Imm: 5000},
		{Op: OpAdd, Regs: []Reg{1, 2}},
		{Op: OpAddB, Regs: []Reg{1}, HasImm: true, Imm: -7},
		{Op: OpSub, Regs: []Reg{4, 5}},
		{Op: OpMul, Regs: []Reg{0, 1}},
		{Op: OpAndB, Regs: []Reg{0}, HasImm: true, Imm: 0x0f},
		{Op: OpTestB, Regs: []Reg{0}, HasImm: true, Imm: 0x0f},
		{Op: OpCmp, Regs: []Reg{0, 1}},
		{Op: OpCset, Regs: []Reg{2}, HasCond: true, Cond: GT},
		{Op: OpStr, Regs: []Reg{31, 0}, HasDisp: true, Disp: 8},
		{Op: OpLdr, Regs: []Reg{0, 31}, HasDisp: true, Disp: 8},
		{Op: OpJmp, HasDisp: true, Disp: 0},
		{Op: OpJmpC, HasCond: true, Cond: LE, HasDisp: true, Disp: -4},
		{Op: OpRet},
	}

	d := NewDecoder(p.Code)
	var got []Instruction
	for d.Offset() < len(p.Code) {
		insn, err := d.Decode()
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		got = append(got, insn)
	}

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("decoded instructions mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	d := NewDecoder([]byte{0xff})
	if _, err := d.Decode(); err == nil {
		t.Fatal("expected an error decoding an unrecognized opcode")
	}
}
