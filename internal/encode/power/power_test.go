package power

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

func instr(d *isa.Desc, op vop.VectorOp, ops vop.Operands) isa.Instr {
	return isa.Instr{Desc: d, Op: op, Ops: ops, Bytes: 16}
}

func words(t *testing.T, in isa.Instr) []uint32 {
	t.Helper()
	b := encode.NewBuffer(t.Name())
	require.NoError(t, New().Encode(b, in))
	code, err := b.Finish()
	require.NoError(t, err)
	return encode.Words(code)
}

var (
	v2, v3, v4, v5 = operand.PReg(2), operand.PReg(3), operand.PReg(4), operand.PReg(5)
	r3, r4, r5     = operand.GPR(3), operand.GPR(4), operand.GPR(5)
)

func TestVectorWords(t *testing.T) {
	tests := []struct {
		name string
		in   func() isa.Instr
		want uint32
	}{
		{"vadduwm", func() isa.Instr {
			op, ops := vop.Add(vop.KindInt, 32, v2, v3, v4)
			return instr(wd("vadduwm", isa.PVX, OpVX(128), 0), op, ops)
		}, 0x10432080},
		{"vandc swaps its sources", func() isa.Instr {
			op, ops := vop.AndNot(vop.KindInt, 32, v2, v3, v4)
			d := wd("vandc", isa.PVX, OpVX(1092), 0)
			d.Swap = true
			return instr(d, op, ops)
		}, 0x10441C44},
		{"vnegw", func() isa.Instr {
			op, ops := vop.Neg(vop.KindInt, 32, v2, v3)
			return instr(wd("vnegw", isa.PVXUnary, OpVXUnary(1538, 6), 0), op, ops)
		}, 0x10461E02},
		{"xvaddsp", func() isa.Instr {
			op, ops := vop.Add(vop.KindFloat, 32, v2, v3, v4)
			return instr(wd("xvaddsp", isa.PXX3, OpXX3(64), 0), op, ops)
		}, 0xF0432207},
		{"xxsel", func() isa.Instr {
			op, ops := vop.Merge(vop.KindInt, 32, v2, v3, v4, v5)
			return instr(wd("xxsel", isa.PXX4, XX4.MustPack(), 0), op, ops)
		}, 0xF04428FF},
		{"lxv", func() isa.Instr {
			op, ops := vop.Load(vop.KindFloat, 32, v2, operand.Mem{Base: 3, Disp: 16})
			return instr(wd("lxv", isa.PDQ, OpDQ(false), 0), op, ops)
		}, 0xF4430019},
		{"stxv", func() isa.Instr {
			op, ops := vop.Store(vop.KindFloat, 32, operand.Mem{Base: 3, Disp: -32}, v2)
			return instr(wd("stxv", isa.PDQ, OpDQ(true), 0), op, ops)
		}, 0xF443FFED},
		{"mtvsrws", func() isa.Instr {
			op, ops := vop.Splat(vop.KindInt, 32, v2, r3)
			return instr(wd("mtvsrws", isa.PSplat, OpXX1(XOMtvsrws), 0), op, ops)
		}, 0x7C430327},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, []uint32{tt.want}, words(t, tt.in()))
		})
	}
}

func TestDQAlignment(t *testing.T) {
	op, ops := vop.Load(vop.KindFloat, 32, v2, operand.Mem{Base: 3, Disp: 8})
	err := New().Encode(encode.NewBuffer("dq"), instr(wd("lxv", isa.PDQ, OpDQ(false), 0), op, ops))
	require.True(t, errors.Is(err, diag.ErrEncoding), "got %v", err)

	op, ops = vop.Load(vop.KindFloat, 32, v2, operand.Mem{Base: 0, Disp: 0})
	err = New().Encode(encode.NewBuffer("r0"), instr(wd("lxv", isa.PDQ, OpDQ(false), 0), op, ops))
	require.True(t, errors.Is(err, diag.ErrEncoding), "got %v", err)
}

func TestScalarWords(t *testing.T) {
	sd := wd("scalar", isa.PScalar, 0, 0)
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
	op, ops := vop.SMovImm(r3, 5)
	add("li", []uint32{0x38600005}, op, ops)
	op, ops = vop.SMovImm(r3, -1)
	add("li negative", []uint32{0x3860FFFF}, op, ops)
	op, ops = vop.SMovImm(r3, 0x12345678)
	add("lis ori", []uint32{0x3C601234, 0x60635678}, op, ops)
	op, ops = vop.SMovImm(r3, 0x100000002)
	add("64-bit", []uint32{0x38600001, 0x786307C6, 0x60630002}, op, ops)
	op, ops = vop.SAddImm(r3, r4, 100)
	add("addi", []uint32{0x38640064}, op, ops)
	op, ops = vop.SAdd(r3, r4, r5)
	add("add", []uint32{0x7C642A14}, op, ops)
	op, ops = vop.SSub(r3, r4, r5)
	add("subf", []uint32{0x7C652050}, op, ops)
	op, ops = vop.SMul(r3, r4, r5)
	add("mulld", []uint32{0x7C6429D2}, op, ops)
	op, ops = vop.SShl(r3, r4, r5)
	add("sld", []uint32{0x7C832836}, op, ops)
	op, ops = vop.SSar(r3, r4, r5)
	add("srad", []uint32{0x7C832E34}, op, ops)
	op, ops = vop.SMin(r3, r4, r5)
	add("min", []uint32{0x7C242800, 0x7C64281E}, op, ops)
	op, ops = vop.SMax(r3, r4, r5)
	add("max", []uint32{0x7C242800, 0x7C64285E}, op, ops)
	op, ops = vop.SLoad(vop.KindUint, 8, r3, operand.Mem{Base: 4, Disp: 3})
	add("lbz", []uint32{0x88640003}, op, ops)
	op, ops = vop.SLoad(vop.KindInt, 8, r3, operand.Mem{Base: 4, Disp: 3})
	add("lbz extsb", []uint32{0x88640003, 0x7C630774}, op, ops)
	op, ops = vop.SLoad(vop.KindUint, 64, r3, operand.Mem{Base: 4, Disp: 8})
	add("ld", []uint32{0xE8640008}, op, ops)
	op, ops = vop.SStore(64, operand.Mem{Base: 4, Disp: 8}, r3)
	add("std", []uint32{0xF8640008}, op, ops)
	op, ops = vop.SStore(32, operand.Mem{Base: 4, Disp: 8}, r3)
	add("stw", []uint32{0x90640008}, op, ops)
	op, ops = vop.SZext(8, r3, r4)
	add("clrldi", []uint32{0x78830620}, op, ops)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, words(t, instr(sd, tt.op, tt.ops)))
		})
	}
}

func TestScalarRejects(t *testing.T) {
	sd := wd("scalar", isa.PScalar, 0, 0)
	op, ops := vop.SLoad(vop.KindUint, 64, r3, operand.Mem{Base: 4, Disp: 6})
	err := New().Encode(encode.NewBuffer("ds"), instr(sd, op, ops))
	require.True(t, errors.Is(err, diag.ErrEncoding), "got %v", err)

	op, ops = vop.SAddImm(r3, operand.GPR(0), 8)
	err = New().Encode(encode.NewBuffer("r0"), instr(sd, op, ops))
	require.True(t, errors.Is(err, diag.ErrEncoding), "got %v", err)

	op, ops = vop.SAddImm(r3, r4, 1<<20)
	err = New().Encode(encode.NewBuffer("range"), instr(sd, op, ops))
	require.True(t, errors.Is(err, diag.ErrEncoding), "got %v", err)
}

func TestControlWords(t *testing.T) {
	slot := operand.Mem{Base: 1}
	cd := wd("ctl", isa.PControl, 0, 0)

	op, ops := vop.CtlSave(slot)
	require.Equal(t, []uint32{
		0xD8010008, // stfd f0, 8(r1)
		0xFC00048E, // mffs f0
		0xD8010000, // stfd f0, 0(r1)
		0xC8010008, // lfd f0, 8(r1)
	}, words(t, instr(cd, op, ops)))

	op, ops = vop.CtlSetRound(vop.RoundDown, slot)
	require.Equal(t, []uint32{0xFF80310C}, words(t, instr(cd, op, ops)))
	op, ops = vop.CtlSetRound(vop.RoundZero, slot)
	require.Equal(t, []uint32{0xFF80110C}, words(t, instr(cd, op, ops)))

	op, ops = vop.CtlRestore(slot)
	require.Equal(t, []uint32{
		0xD8010008, // stfd f0, 8(r1)
		0xC8010000, // lfd f0, 0(r1)
		0xFDFE058E, // mtfsf 0xff, f0
		0xC8010008, // lfd f0, 8(r1)
	}, words(t, instr(cd, op, ops)))
}

func TestMaskBranchWords(t *testing.T) {
	d := &isa.Desc{Name: "vcmpequb.+bc", VTemps: 1, Word: &isa.WordDesc{
		Form: isa.PMaskBranch,
		Op:   VC.MustPack(encode.U("XO", 6), encode.U("Rc", 1)),
		Aux:  BForm.MustPack(encode.U("BO", BOTrue), encode.U("BI", CR6All)),
	}}
	l := operand.Label(1)
	temps := []operand.Operand{operand.PReg(28)}

	op, ops := vop.MaskBranch(32, operand.PReg(1), vop.BranchNone, l)
	in := instr(d, op, ops)
	in.Temps = temps
	b := encode.NewBuffer("forward")
	require.NoError(t, New().Encode(b, in))
	require.NoError(t, b.Bind(l))
	code, err := b.Finish()
	require.NoError(t, err)
	require.Equal(t, []uint32{
		0x139CE4C4, // vxor v28, v28, v28
		0x1381E406, // vcmpequb. v28, v1, v28
		0x41980004, // bc 12, 24, +4
	}, encode.Words(code))

	op, ops = vop.MaskBranch(32, operand.PReg(1), vop.BranchFull, l)
	in = instr(d, op, ops)
	in.Temps = temps
	b = encode.NewBuffer("backward")
	require.NoError(t, b.Bind(l))
	require.NoError(t, New().Encode(b, in))
	code, err = b.Finish()
	require.NoError(t, err)
	require.Equal(t, uint32(0x419AFFF8), encode.Words(code)[2], "bc 12, 26, -8")
}

func TestDecode(t *testing.T) {
	l, f, err := Decode(0xF4430019)
	require.NoError(t, err)
	require.Equal(t, DQ, l)
	require.Equal(t, uint32(2), f["T"])
	require.Equal(t, uint32(3), f["RA"])
	require.Equal(t, uint32(1), f["DQ"])

	l, _, err = Decode(0xF04428FF)
	require.NoError(t, err)
	require.Equal(t, XX4, l)

	_, _, err = Decode(0x7C642A14)
	require.Error(t, err)
}
