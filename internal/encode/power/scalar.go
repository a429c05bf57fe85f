package power

import (
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/encode"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

func dform(b *encode.Buffer, po, rt, ra uint32, d int64) error {
	return put(b, D, 0, encode.U("PO", po), encode.U("RT", rt), encode.U("RA", ra), encode.S("D", d))
}

// uform is a D form with an unsigned immediate, as ori and oris take
func uform(b *encode.Buffer, po, rs, ra, ui uint32) error {
	return put(b, D, 0, encode.U("PO", po), encode.U("RT", rs), encode.U("RA", ra), encode.U("D", ui&0xFFFF))
}

func xform(b *encode.Buffer, po, rt, ra, rb, xo uint32) error {
	return put(b, X, 0, encode.U("PO", po), encode.U("RT", rt), encode.U("RA", ra), encode.U("RB", rb), encode.U("XO", xo))
}

// mdField stores a 6-bit mb or me value with its high bit moved to the
// bottom, as MD forms expect
func mdField(v uint32) uint32 {
	return (v&0x1F)<<1 | v>>5
}

func rotate(b *encode.Buffer, xo, ra, rs, sh, m uint32) error {
	return put(b, MD, 0, encode.U("XO", xo), encode.U("RS", rs), encode.U("RA", ra),
		encode.U("sh", sh&0x1F), encode.U("sh5", sh>>5), encode.U("mb", mdField(m)))
}

// li32 loads a sign extended 32-bit value with li, or lis and ori
func li32(b *encode.Buffer, rd uint32, v int32) error {
	if v >= -32768 && v <= 32767 {
		return dform(b, OpAddi, rd, 0, int64(v))
	}
	if err := dform(b, OpAddis, rd, 0, int64(v>>16)); err != nil {
		return err
	}
	if lo := uint32(v) & 0xFFFF; lo != 0 {
		return uform(b, OpOri, rd, rd, lo)
	}
	return nil
}

// movImm loads any 64-bit value in at most five instructions
func movImm(b *encode.Buffer, rd uint32, v int64) error {
	if v == int64(int32(v)) {
		return li32(b, rd, int32(v))
	}
	if err := li32(b, rd, int32(v>>32)); err != nil {
		return err
	}
	// sldi rd, rd, 32
	if err := rotate(b, XORldicr, rd, rd, 32, 31); err != nil {
		return err
	}
	lo := uint32(v)
	if h := lo >> 16; h != 0 {
		if err := uform(b, OpOris, rd, rd, h); err != nil {
			return err
		}
	}
	if l := lo & 0xFFFF; l != 0 {
		return uform(b, OpOri, rd, rd, l)
	}
	return nil
}

type access struct {
	po, xo uint32
	ds     bool // DS form, the displacement must be a multiple of 4
	extend uint32
}

// accessOf picks the load or store instruction for one width and kind
func accessOf(code vop.Code, kind vop.Kind, width int) access {
	store := code == vop.OpSStore
	signed := kind == vop.KindInt
	switch width {
	case 8:
		if store {
			return access{po: OpStb}
		}
		if signed {
			return access{po: OpLbz, extend: XOExtsb}
		}
		return access{po: OpLbz}
	case 16:
		if store {
			return access{po: OpSth}
		}
		if signed {
			return access{po: OpLha}
		}
		return access{po: OpLhz}
	case 32:
		if store {
			return access{po: OpStw}
		}
		if signed {
			return access{po: OpLwz, extend: XOExtsw}
		}
		return access{po: OpLwz}
	}
	if store {
		return access{po: OpStdDS, ds: true}
	}
	return access{po: OpLdDS, ds: true}
}

func memAccess(b *encode.Buffer, in isa.Instr, rt operand.GPR, m operand.Mem) error {
	if m.Base == 0 {
		return diag.Encoding("r0 as a base register reads as zero")
	}
	a := accessOf(in.Op.Code, in.Op.Kind, in.Op.Width)
	if a.ds {
		if m.Disp%4 != 0 {
			return diag.Encoding("displacement %d is not a DS offset", m.Disp)
		}
		if err := put(b, DS, 0, encode.U("PO", a.po), encode.U("RT", uint32(rt)), encode.U("RA", uint32(m.Base)),
			encode.S("DS", m.Disp/4), encode.U("XO", a.xo)); err != nil {
			return err
		}
	} else if err := dform(b, a.po, uint32(rt), uint32(m.Base), m.Disp); err != nil {
		return err
	}
	if a.extend != 0 {
		return xform(b, OpX, uint32(rt), uint32(rt), 0, a.extend)
	}
	return nil
}

func gprs(ops ...operand.Operand) ([]uint32, error) {
	out := make([]uint32, len(ops))
	for i, op := range ops {
		r, ok := op.(operand.GPR)
		if !ok {
			return nil, diag.Internal("operand %v is not a general purpose register", op)
		}
		out[i] = uint32(r)
	}
	return out, nil
}

var shiftXO = map[vop.Code]uint32{
	vop.OpSShl: XOSld,
	vop.OpSShr: XOSrd,
	vop.OpSSar: XOSrad,
}

func (e *Encoder) scalar(b *encode.Buffer, in isa.Instr) error {
	ops := in.Ops
	switch in.Op.Code {
	case vop.OpSMovImm:
		dst, ok := ops.Dst.(operand.GPR)
		v, ok2 := ops.Src1.(operand.Imm)
		if !ok || !ok2 {
			return diag.Internal("smovimm operands %s", ops)
		}
		return movImm(b, uint32(dst), int64(v))

	case vop.OpSAddImm:
		dst, ok := ops.Dst.(operand.GPR)
		a, ok2 := ops.Src1.(operand.GPR)
		v, ok3 := ops.Src2.(operand.Imm)
		if !ok || !ok2 || !ok3 {
			return diag.Internal("saddimm operands %s", ops)
		}
		if a == 0 {
			return diag.Encoding("addi reads r0 as zero")
		}
		if v < -32768 || v > 32767 {
			return diag.Encoding("immediate %d does not fit addi", v)
		}
		return dform(b, OpAddi, uint32(dst), uint32(a), int64(v))

	case vop.OpSLoad:
		dst, ok := ops.Dst.(operand.GPR)
		m, ok2 := ops.Src1.(operand.Mem)
		if !ok || !ok2 {
			return diag.Internal("sload operands %s", ops)
		}
		return memAccess(b, in, dst, m)

	case vop.OpSStore:
		m, ok := ops.Dst.(operand.Mem)
		src, ok2 := ops.Src1.(operand.GPR)
		if !ok || !ok2 {
			return diag.Internal("sstore operands %s", ops)
		}
		return memAccess(b, in, src, m)

	case vop.OpSZext:
		r, err := gprs(ops.Dst, ops.Src1)
		if err != nil {
			return err
		}
		// clrldi dst, src, 64-width
		return rotate(b, XORldicl, r[0], r[1], 0, uint32(64-in.Op.Width))
	}

	r, err := gprs(ops.Dst, ops.Src1, ops.Src2)
	if err != nil {
		return err
	}
	d, a, c := r[0], r[1], r[2]
	xo := func(code uint32, rt, ra, rb uint32) error {
		return put(b, XO, 0, encode.U("RT", rt), encode.U("RA", ra), encode.U("RB", rb), encode.U("XO", code))
	}
	switch in.Op.Code {
	case vop.OpSAdd:
		return xo(XOAdd, d, a, c)
	case vop.OpSSub:
		// subf computes RB - RA
		return xo(XOSubf, d, c, a)
	case vop.OpSMul:
		return xo(XOMulld, d, a, c)
	case vop.OpSShl, vop.OpSShr, vop.OpSSar:
		return xform(b, OpX, a, d, c, shiftXO[in.Op.Code])
	case vop.OpSMin, vop.OpSMax:
		if a == 0 {
			return diag.Encoding("isel reads r0 as zero")
		}
		// cmpd a, c; isel d, a, c, lt|gt
		if err := xform(b, OpX, 1, a, c, XOCmp); err != nil {
			return err
		}
		bc := uint32(0)
		if in.Op.Code == vop.OpSMax {
			bc = 1
		}
		return put(b, A, 0, encode.U("RT", d), encode.U("RA", a), encode.U("RB", c), encode.U("BC", bc))
	}
	return diag.Internal("power scalar %s not handled", in.Op)
}

// FPSCR.RN values
var fpscrMode = map[vop.RoundMode]uint32{
	vop.RoundNearest: 0,
	vop.RoundZero:    1,
	vop.RoundUp:      2,
	vop.RoundDown:    3,
}

// control works through f0 alone. Save and restore spill f0 to the second
// doubleword of the 16-byte slot and keep the FPSCR image in the first.
func (e *Encoder) control(b *encode.Buffer, in isa.Instr) error {
	slotOf := func(m operand.Operand) (operand.Mem, error) {
		slot, ok := m.(operand.Mem)
		if !ok {
			return slot, diag.Internal("control register access without a slot")
		}
		if slot.Base == 0 {
			return slot, diag.Encoding("r0 as a base register reads as zero")
		}
		return slot, nil
	}
	fp := func(po uint32, m operand.Mem) error {
		return dform(b, po, 0, uint32(m.Base), m.Disp)
	}
	switch in.Op.Code {
	case vop.OpCtlSave:
		slot, err := slotOf(in.Ops.Dst)
		if err != nil {
			return err
		}
		if err := fp(OpStfd, slot.At(8)); err != nil {
			return err
		}
		if err := xform(b, OpFP, 0, 0, 0, XOMffs); err != nil {
			return err
		}
		if err := fp(OpStfd, slot); err != nil {
			return err
		}
		return fp(OpLfd, slot.At(8))

	case vop.OpCtlRestore:
		slot, err := slotOf(in.Ops.Src1)
		if err != nil {
			return err
		}
		if err := fp(OpStfd, slot.At(8)); err != nil {
			return err
		}
		if err := fp(OpLfd, slot); err != nil {
			return err
		}
		if err := put(b, XFL, 0, encode.U("FLM", 0xFF)); err != nil {
			return err
		}
		return fp(OpLfd, slot.At(8))

	case vop.OpCtlSetRound:
		mode, ok := fpscrMode[in.Op.Round]
		if !ok {
			return diag.Encoding("rounding mode %s has no FPSCR encoding", in.Op.Round)
		}
		// mtfsfi 7, mode
		return xform(b, OpFP, 7<<2, 0, mode<<1, XOMtfsfi)
	}
	return diag.Internal("power control %s not handled", in.Op)
}
