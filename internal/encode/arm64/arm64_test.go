package arm64

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/encode"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

func wd(name string, form isa.WordForm, op, aux uint32) *isa.Desc {
	return &isa.Desc{Name: name, Word: &isa.WordDesc{Form: form, Op: op, Aux: aux}}
}

func words(t *testing.T, in isa.Instr) []uint32 {
	t.Helper()
	b := encode.NewBuffer(t.Name())
	require.NoError(t, New().Encode(b, in))
	code, err := b.Finish()
	require.NoError(t, err)
	return encode.Words(code)
}

func instr(d *isa.Desc, op vop.VectorOp, ops vop.Operands) isa.Instr {
	return isa.Instr{Desc: d, Op: op, Ops: ops, Bytes: 16}
}

var (
	v0, v1, v2 = operand.PReg(0), operand.PReg(1), operand.PReg(2)
	x0, x1, x2 = operand.GPR(0), operand.GPR(1), operand.GPR(2)

	ldrQ = wd("ldr", isa.A64LoadStore,
		LoadStoreUImm.MustPack(encode.U("V", 1), encode.U("opc", 3)),
		LoadStoreUnscaled.MustPack(encode.U("V", 1), encode.U("opc", 3)))
	bsl = wd("bsl", isa.A64Merge, Op3(1, 1, 0x03), 0)
)

func TestVectorWords(t *testing.T) {
	tests := []struct {
		name string
		in   func() isa.Instr
		want []uint32
	}{
		{"add", func() isa.Instr {
			op, ops := vop.Add(vop.KindInt, 32, v0, v1, v2)
			return instr(wd("add", isa.A64ThreeSame, Op3(0, 2, 0x10), 0), op, ops)
		}, []uint32{0x4EA28420}},
		{"fadd", func() isa.Instr {
			op, ops := vop.Add(vop.KindFloat, 32, v0, v1, v2)
			return instr(wd("fadd", isa.A64ThreeSame, Op3(0, 0, 0x1A), 0), op, ops)
		}, []uint32{0x4E22D420}},
		{"cmlt via swapped cmgt", func() isa.Instr {
			op, ops := vop.CmpLT(vop.KindInt, 32, v0, v2, v1)
			d := wd("cmgt", isa.A64ThreeSame, Op3(0, 2, 0x06), 0)
			d.Swap = true
			return instr(d, op, ops)
		}, []uint32{0x4EA23420}},
		{"shl", func() isa.Instr {
			op, ops := vop.ShlImm(vop.KindInt, 32, v0, v1, 3)
			return instr(wd("shl", isa.A64ShiftLeft, OpShift(0, 0x0A), 0), op, ops)
		}, []uint32{0x4F235420}},
		{"ushr", func() isa.Instr {
			op, ops := vop.ShrImm(vop.KindUint, 32, v0, v1, 3)
			return instr(wd("ushr", isa.A64ShiftRight, OpShift(1, 0x00), 0), op, ops)
		}, []uint32{0x6F3D0420}},
		{"ushr by zero is a move", func() isa.Instr {
			op, ops := vop.ShrImm(vop.KindUint, 32, v0, v1, 0)
			return instr(wd("ushr", isa.A64ShiftRight, OpShift(1, 0x00), 0), op, ops)
		}, []uint32{0x4EA11C20}},
		{"dup", func() isa.Instr {
			op, ops := vop.Splat(vop.KindInt, 32, v0, x1)
			return instr(wd("dup", isa.A64Dup, OpDup(32), 0), op, ops)
		}, []uint32{0x4E040C20}},
		{"ldr scaled", func() isa.Instr {
			op, ops := vop.Load(vop.KindFloat, 32, v0, operand.Mem{Base: 1, Disp: 32})
			return instr(ldrQ, op, ops)
		}, []uint32{0x3DC00820}},
		{"ldur", func() isa.Instr {
			op, ops := vop.Load(vop.KindFloat, 32, v0, operand.Mem{Base: 1, Disp: -16})
			return instr(ldrQ, op, ops)
		}, []uint32{0x3CDF0020}},
		{"bsl when the destination is the mask", func() isa.Instr {
			op, ops := vop.Merge(vop.KindInt, 32, v0, v0, v2, v1)
			return instr(bsl, op, ops)
		}, []uint32{0x6E621C20}},
		{"bit when the destination is the zero source", func() isa.Instr {
			op, ops := vop.Merge(vop.KindInt, 32, v0, v2, v0, v1)
			return instr(bsl, op, ops)
		}, []uint32{0x6EA21C20}},
		{"bsl with a move", func() isa.Instr {
			op, ops := vop.Merge(vop.KindInt, 32, v0, v1, v2, operand.PReg(3))
			return instr(bsl, op, ops)
		}, []uint32{0x4EA11C20, 0x6E621C60}},
		{"fmla", func() isa.Instr {
			op, ops := vop.MulAdd(vop.KindFloat, 32, v0, v1, v2)
			return instr(wd("fmla", isa.A64Accumulate, Op3(0, 0, 0x19), 0), op, ops)
		}, []uint32{0x4E22CC20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, words(t, tt.in()))
		})
	}
}

func TestShiftRange(t *testing.T) {
	op, ops := vop.ShlImm(vop.KindInt, 8, v0, v1, 8)
	err := New().Encode(encode.NewBuffer("range"), instr(wd("shl", isa.A64ShiftLeft, OpShift(0, 0x0A), 0), op, ops))
	require.True(t, errors.Is(err, diag.ErrEncoding), "got %v", err)
}

func TestScalarWords(t *testing.T) {
	sd := func(name string) *isa.Desc { return wd(name, isa.A64Scalar, 0, 0) }
	type row struct {
		name string
		op   vop.VectorOp
		ops  vop.Operands
		want []uint32
	}
	var tests []row
	add := func(name string, want []uint32, op vop.VectorOp, ops vop.Operands) {
		tests = append(tests, row{name, op, ops, want})
	}
	op, ops := vop.SAdd(x0, x1, x2)
	add("add", []uint32{0x8B020020}, op, ops)
	op, ops = vop.SSub(x0, x1, x2)
	add("sub", []uint32{0xCB020020}, op, ops)
	op, ops = vop.SMul(x0, x1, x2)
	add("mul", []uint32{0x9B027C20}, op, ops)
	op, ops = vop.SShl(x0, x1, x2)
	add("lslv", []uint32{0x9AC22020}, op, ops)
	op, ops = vop.SMin(x0, x1, x2)
	add("min", []uint32{0xEB02003F, 0x9A82B020}, op, ops)
	op, ops = vop.SAddImm(x0, x1, 100)
	add("add imm", []uint32{0x91019020}, op, ops)
	op, ops = vop.SAddImm(x0, x1, -16)
	add("sub imm", []uint32{0xD1004020}, op, ops)
	op, ops = vop.SMovImm(x0, 5)
	add("movz", []uint32{0xD28000A0}, op, ops)
	op, ops = vop.SMovImm(x0, -1)
	add("movn", []uint32{0x92800000}, op, ops)
	op, ops = vop.SMovImm(x0, 0x12340000)
	add("movz lsl 16", []uint32{0xD2A24680}, op, ops)
	op, ops = vop.SMovImm(x0, 0x10002)
	add("movz movk", []uint32{0xD2800040, 0xF2A00020}, op, ops)
	op, ops = vop.SLoad(vop.KindUint, 8, x0, operand.Mem{Base: 1, Disp: 3})
	add("ldrb", []uint32{0x39400C20}, op, ops)
	op, ops = vop.SLoad(vop.KindInt, 32, x0, operand.Mem{Base: 1, Disp: 8})
	add("ldrsw", []uint32{0xB9800820}, op, ops)
	op, ops = vop.SStore(64, operand.Mem{Base: 1, Disp: 8}, x0)
	add("str", []uint32{0xF9000420}, op, ops)
	op, ops = vop.SZext(8, x0, x1)
	add("uxtb", []uint32{0xD3401C20}, op, ops)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, words(t, instr(sd(tt.name), tt.op, tt.ops)))
		})
	}
}

func TestControlWords(t *testing.T) {
	slot := operand.Mem{Base: 19, Disp: 4}
	temps := []operand.Operand{operand.GPR(9), operand.GPR(10)}

	op, ops := vop.CtlSave(slot)
	in := instr(wd("ctlsave", isa.A64Control, 0, 0), op, ops)
	in.Desc.GTemps, in.Temps = 1, temps[:1]
	require.Equal(t, []uint32{0xD53B4409, 0xB9000669}, words(t, in))

	op, ops = vop.CtlSetRound(vop.RoundZero, slot)
	in = instr(wd("ctlsetround", isa.A64Control, 0, 0), op, ops)
	in.Desc.GTemps, in.Temps = 2, temps
	require.Equal(t, []uint32{
		0xD53B4409, // mrs x9, fpcr
		0xD280006A, // movz x10, #3
		0xB36A0549, // bfi x9, x10, #22, #2
		0xD51B4409, // msr fpcr, x9
	}, words(t, in))

	op, ops = vop.CtlRestore(slot)
	in = instr(wd("ctlrestore", isa.A64Control, 0, 0), op, ops)
	in.Desc.GTemps, in.Temps = 1, temps[:1]
	require.Equal(t, []uint32{0xB9400669, 0xD51B4409}, words(t, in))
}

func TestMaskBranchWords(t *testing.T) {
	d := &isa.Desc{Name: "umaxv+cmp+b.cond", VTemps: 1, GTemps: 1, Word: &isa.WordDesc{
		Form: isa.A64MaskBranch, Op: OpAcross(1, 0, 0x0A), Aux: OpAcross(1, 0, 0x1A)}}
	l := operand.Label(1)
	op, ops := vop.MaskBranch(32, v1, vop.BranchNone, l)
	in := instr(d, op, ops)
	in.Temps = []operand.Operand{operand.PReg(28), operand.GPR(9)}

	b := encode.NewBuffer("branch")
	require.NoError(t, New().Encode(b, in))
	require.NoError(t, b.Bind(l))
	code, err := b.Finish()
	require.NoError(t, err)
	require.Equal(t, []uint32{
		0x6E30A83C, // umaxv b28, v1.16b
		0x0E013F89, // umov w9, v28.b[0]
		0x7100013F, // cmp w9, #0
		0x54000020, // b.eq +4
	}, encode.Words(code))

	// backward branch to the start
	op, ops = vop.MaskBranch(32, v1, vop.BranchFull, l)
	in = instr(d, op, ops)
	in.Temps = []operand.Operand{operand.PReg(28), operand.GPR(9)}
	b = encode.NewBuffer("loop")
	require.NoError(t, b.Bind(l))
	require.NoError(t, New().Encode(b, in))
	code, err = b.Finish()
	require.NoError(t, err)
	w := encode.Words(code)
	require.Equal(t, uint32(0x7103FD3F), w[2], "cmp w9, #0xff")
	f := CondBranch.Unpack(w[3])
	require.Equal(t, int64(-3), encode.SignExtend(f["imm19"], 19))
	require.Equal(t, uint32(CondEQ), f["cond"])
}

func TestDecodeFindsLayout(t *testing.T) {
	l, f, err := Decode(0x4EA28420)
	require.NoError(t, err)
	require.Equal(t, ThreeSame, l)
	require.Equal(t, uint32(2), f["Rm"])
	require.Equal(t, uint32(1), f["Rn"])

	l, _, err = Decode(0x6E30A83C)
	require.NoError(t, err)
	require.Equal(t, AcrossLanes, l)

	l, _, err = Decode(0x3CDF0020)
	require.NoError(t, err)
	require.Equal(t, LoadStoreUnscaled, l)
}
