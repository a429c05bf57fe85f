package power

import (
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/encode"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// Encoder encodes Power ISA 3.0 VMX, VSX and fixed point instructions
type Encoder struct{}

// New returns an encoder
func New() *Encoder {
	return &Encoder{}
}

// LayoutOf returns the first vector layout whose fixed bits match w
func LayoutOf(w uint32) (*encode.Layout, bool) {
	for _, l := range Layouts {
		if l.Matches(w) {
			return l, true
		}
	}
	return nil, false
}

// Decode splits w into the fields of its layout
func Decode(w uint32) (*encode.Layout, map[string]uint32, error) {
	l, ok := LayoutOf(w)
	if !ok {
		return nil, nil, diag.Encoding("word %08x matches no known layout", w)
	}
	return l, l.Unpack(w), nil
}

// Encode appends the words of in to b
func (e *Encoder) Encode(b *encode.Buffer, in isa.Instr) error {
	if in.Desc == nil || in.Desc.Word == nil {
		return diag.Internal("no word descriptor for %s", in.Op)
	}
	start := b.Begin()
	var err error
	switch in.Desc.Word.Form {
	case isa.PScalar:
		err = e.scalar(b, in)
	case isa.PControl:
		err = e.control(b, in)
	default:
		err = e.vector(b, in)
	}
	if err != nil {
		return diag.WithContext(err, "", in.Op.String())
	}
	b.Trace(start, in.Format(isa.ArchPPC64LE))
	return nil
}

func put(b *encode.Buffer, l *encode.Layout, base uint32, vals ...encode.Val) error {
	w, err := l.Pack(base, vals...)
	if err != nil {
		return err
	}
	b.Word(w)
	return nil
}

func vreg(op operand.Operand) (uint32, error) {
	r, ok := op.(operand.PReg)
	if !ok {
		return 0, diag.Internal("operand %v is not a vector register", op)
	}
	if r > 31 {
		return 0, diag.Encoding("vector register %d out of range", r)
	}
	return uint32(r), nil
}

func vregs(ops ...operand.Operand) ([]uint32, error) {
	out := make([]uint32, len(ops))
	for i, op := range ops {
		r, err := vreg(op)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// The VMX registers are VSRs 32 to 63, so VSX forms set every register
// extension bit.
func (e *Encoder) vector(b *encode.Buffer, in isa.Instr) error {
	d := in.Desc.Word
	ops := in.Ops
	switch d.Form {
	case isa.PVX, isa.PVC:
		a, c := ops.Src1, ops.Src2
		if in.Op.Arity == 1 {
			c = a
		}
		if in.Desc.Swap {
			a, c = c, a
		}
		r, err := vregs(ops.Dst, a, c)
		if err != nil {
			return err
		}
		l := VX
		if d.Form == isa.PVC {
			l = VC
		}
		return put(b, l, d.Op, encode.U("VRT", r[0]), encode.U("VRA", r[1]), encode.U("VRB", r[2]))

	case isa.PVXUnary:
		r, err := vregs(ops.Dst, ops.Src1)
		if err != nil {
			return err
		}
		return put(b, VX, d.Op, encode.U("VRT", r[0]), encode.U("VRB", r[1]))

	case isa.PXX3:
		a, c := ops.Src1, ops.Src2
		if in.Op.Arity == 1 {
			c = a
		}
		if in.Desc.Swap {
			a, c = c, a
		}
		r, err := vregs(ops.Dst, a, c)
		if err != nil {
			return err
		}
		return put(b, XX3, d.Op, encode.U("T", r[0]), encode.U("A", r[1]), encode.U("B", r[2]),
			encode.U("TX", 1), encode.U("AX", 1), encode.U("BX", 1))

	case isa.PXX2:
		r, err := vregs(ops.Dst, ops.Src1)
		if err != nil {
			return err
		}
		return put(b, XX2, d.Op, encode.U("T", r[0]), encode.U("B", r[1]), encode.U("TX", 1), encode.U("BX", 1))

	case isa.PXX4:
		// xxsel XT, XA, XB, XC takes XB where XC is set
		r, err := vregs(ops.Dst, ops.Src1, ops.Src2, ops.Src3)
		if err != nil {
			return err
		}
		return put(b, XX4, d.Op, encode.U("T", r[0]), encode.U("C", r[1]), encode.U("A", r[2]), encode.U("B", r[3]),
			encode.U("TX", 1), encode.U("AX", 1), encode.U("BX", 1), encode.U("CX", 1))

	case isa.PDQ:
		rt, m := ops.Dst, ops.Src1
		if in.Op.Code == vop.OpStore {
			rt, m = ops.Src1, ops.Dst
		}
		mem, ok := m.(operand.Mem)
		if !ok {
			return diag.Internal("load/store without a memory operand")
		}
		if mem.Base == 0 {
			return diag.Encoding("r0 as a base register reads as zero")
		}
		if mem.Disp%16 != 0 || mem.Disp < -32768 || mem.Disp > 32752 {
			return diag.Encoding("displacement %d is not a DQ offset", mem.Disp)
		}
		t, err := vreg(rt)
		if err != nil {
			return err
		}
		return put(b, DQ, d.Op, encode.U("T", t), encode.U("TX", 1),
			encode.U("RA", uint32(mem.Base)), encode.S("DQ", mem.Disp/16))

	case isa.PSplat:
		t, err := vreg(ops.Dst)
		if err != nil {
			return err
		}
		g, ok := ops.Src1.(operand.GPR)
		if !ok {
			return diag.Internal("splat source %v is not a general purpose register", ops.Src1)
		}
		// mtvsrdd reads RA and RB, mtvsrws ignores RB
		vals := []encode.Val{encode.U("T", t), encode.U("TX", 1), encode.U("RA", uint32(g))}
		if in.Op.Width == 64 {
			vals = append(vals, encode.U("RB", uint32(g)))
		}
		return put(b, XX1, d.Op, vals...)

	case isa.PMaskBranch:
		return e.maskBranch(b, in)
	}
	return diag.Internal("power form %d not handled", d.Form)
}

// maskBranch compares every byte of the mask against zero with a recording
// vcmpequb. and branches on CR6. All bytes equal means no lane is set, no
// byte equal means every lane is set.
func (e *Encoder) maskBranch(b *encode.Buffer, in isa.Instr) error {
	l, ok := in.Ops.Src2.(operand.Label)
	if !ok {
		return diag.Internal("mask branch without a label")
	}
	var t operand.Operand
	for _, x := range in.Temps {
		if _, ok := x.(operand.PReg); ok {
			t = x
			break
		}
	}
	if t == nil {
		return diag.Internal("mask branch needs a vector temporary")
	}
	r, err := vregs(t, in.Ops.Src1)
	if err != nil {
		return err
	}
	if err := put(b, VX, OpVX(XOVxor), encode.U("VRT", r[0]), encode.U("VRA", r[0]), encode.U("VRB", r[0])); err != nil {
		return err
	}
	if err := put(b, VC, in.Desc.Word.Op, encode.U("VRT", r[0]), encode.U("VRA", r[1]), encode.U("VRB", r[0])); err != nil {
		return err
	}
	bi := uint32(CR6All)
	if in.Op.Cond == vop.BranchFull {
		bi = CR6None
	}
	b.Use(l, b.Len(), branch14)
	return put(b, BForm, in.Desc.Word.Aux, encode.U("BI", bi))
}

// branch14 patches the BD word offset of a conditional branch
func branch14(code []byte, at, target int) error {
	w, err := BForm.Pack(encode.WordAt(code, at), encode.S("BD", int64(target-at)/4))
	if err != nil {
		return err
	}
	encode.PutWord(code, at, w)
	return nil
}
