package arm64

import (
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/encode"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

const xzr = 31

// move-wide opc values
const (
	movn = 0
	movz = 2
	movk = 3
)

// movImm loads v with MOVZ or MOVN followed by MOVK for every remaining
// halfword. MOVN is used when more halfwords are 0xFFFF than zero.
func movImm(b *encode.Buffer, rd uint32, v int64) error {
	var hw [4]uint32
	zeros, ones := 0, 0
	for i := range hw {
		hw[i] = uint32(uint64(v) >> (16 * i) & 0xFFFF)
		switch hw[i] {
		case 0:
			zeros++
		case 0xFFFF:
			ones++
		}
	}
	fill, first := uint32(0), uint32(movz)
	if ones > zeros {
		fill, first = 0xFFFF, movn
	}
	lead := 0
	for lead < 3 && hw[lead] == fill {
		lead++
	}
	if hw[lead] == fill {
		lead = 0
	}
	imm := hw[lead]
	if first == movn {
		imm = ^imm & 0xFFFF
	}
	if err := put(b, MoveWide, encode.U("sf", 1), encode.U("opc", first),
		encode.U("hw", uint32(lead)), encode.U("imm16", imm), encode.U("Rd", rd)); err != nil {
		return err
	}
	for i := lead + 1; i < 4; i++ {
		if hw[i] == fill {
			continue
		}
		if err := put(b, MoveWide, encode.U("sf", 1), encode.U("opc", movk),
			encode.U("hw", uint32(i)), encode.U("imm16", hw[i]), encode.U("Rd", rd)); err != nil {
			return err
		}
	}
	return nil
}

// addSubImm is ADD or SUB with a 12-bit immediate
func addSubImm(b *encode.Buffer, rd, rn uint32, v int64) error {
	op := uint32(0)
	if v < 0 {
		op, v = 1, -v
	}
	if v > 4095 {
		return diag.Encoding("immediate %d does not fit add/sub", v)
	}
	return put(b, AddSubImm, encode.U("sf", 1), encode.U("op", op),
		encode.U("imm12", uint32(v)), encode.U("Rn", rn), encode.U("Rd", rd))
}

// shift opcodes of LSLV, LSRV and ASRV
var dpShift = map[vop.Code]uint32{
	vop.OpSShl: 8,
	vop.OpSShr: 9,
	vop.OpSSar: 10,
}

// ldst returns the size and opc fields of a general register load or store
func ldst(code vop.Code, kind vop.Kind, width int) (size, opc uint32) {
	size = SizeOf(width)
	switch {
	case code == vop.OpSStore:
		return size, 0
	case kind == vop.KindInt && width < 64:
		return size, 2 // sign extend to 64 bits
	}
	return size, 1
}

func memAccess(b *encode.Buffer, in isa.Instr, rt operand.GPR, m operand.Mem) error {
	size, opc := ldst(in.Op.Code, in.Op.Kind, in.Op.Width)
	bytes := int64(1) << size
	if m.Disp < 0 || m.Disp%bytes != 0 || m.Disp/bytes > 4095 {
		return diag.Encoding("displacement %d is not a scaled 12-bit offset", m.Disp)
	}
	return put(b, LoadStoreUImm, encode.U("size", size), encode.U("opc", opc),
		encode.U("imm12", uint32(m.Disp/bytes)), encode.U("Rn", uint32(m.Base)), encode.U("Rt", uint32(rt)))
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
		return addSubImm(b, uint32(dst), uint32(a), int64(v))

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
		r, err := regs(ops.Dst, ops.Src1)
		if err != nil {
			return err
		}
		// ubfm Xd, Xn, #0, #width-1
		return put(b, Bitfield, encode.U("sf", 1), encode.U("opc", 2), encode.U("N", 1),
			encode.U("imms", uint32(in.Op.Width-1)), encode.U("Rn", r[1]), encode.U("Rd", r[0]))
	}

	r, err := regs(ops.Dst, ops.Src1, ops.Src2)
	if err != nil {
		return err
	}
	d, a, c := encode.U("Rd", r[0]), encode.U("Rn", r[1]), encode.U("Rm", r[2])
	switch in.Op.Code {
	case vop.OpSAdd:
		return put(b, AddSubShifted, encode.U("sf", 1), d, a, c)
	case vop.OpSSub:
		return put(b, AddSubShifted, encode.U("sf", 1), encode.U("op", 1), d, a, c)
	case vop.OpSMul:
		// madd Xd, Xn, Xm, xzr
		return put(b, DataProc3, encode.U("sf", 1), encode.U("Ra", xzr), d, a, c)
	case vop.OpSShl, vop.OpSShr, vop.OpSSar:
		return put(b, DataProc2, encode.U("sf", 1), encode.U("opcode", dpShift[in.Op.Code]), d, a, c)
	case vop.OpSMin, vop.OpSMax:
		// cmp Xn, Xm; csel Xd, Xn, Xm, lt|gt
		if err := put(b, AddSubShifted, encode.U("sf", 1), encode.U("op", 1), encode.U("S", 1),
			encode.U("Rd", xzr), a, c); err != nil {
			return err
		}
		cond := uint32(CondLT)
		if in.Op.Code == vop.OpSMax {
			cond = CondGT
		}
		return put(b, CondSelect, encode.U("sf", 1), encode.U("cond", cond), d, a, c)
	}
	return diag.Internal("aarch64 scalar %s not handled", in.Op)
}

// FPCR.RMode, bits 22-23
var fpcrMode = map[vop.RoundMode]uint32{
	vop.RoundNearest: 0,
	vop.RoundUp:      1,
	vop.RoundDown:    2,
	vop.RoundZero:    3,
}

// sysreg moves between a general register and FPCR
func sysreg(b *encode.Buffer, read bool, rt uint32) error {
	l := uint32(0)
	if read {
		l = 1
	}
	return put(b, SysReg, encode.U("L", l), encode.U("sysreg", FPCR), encode.U("Rt", rt))
}

func (e *Encoder) control(b *encode.Buffer, in isa.Instr) error {
	var temps []uint32
	for _, x := range in.Temps {
		if g, ok := x.(operand.GPR); ok {
			temps = append(temps, uint32(g))
		}
	}
	if len(temps) < in.Desc.GTemps || len(temps) == 0 {
		return diag.Internal("%s needs %d scratch registers", in.Desc.Name, in.Desc.GTemps)
	}
	g := temps[0]
	word := func(store bool, m operand.Operand) error {
		slot, ok := m.(operand.Mem)
		if !ok {
			return diag.Internal("control register access without a slot")
		}
		opc := uint32(1)
		if store {
			opc = 0
		}
		if slot.Disp < 0 || slot.Disp%4 != 0 || slot.Disp/4 > 4095 {
			return diag.Encoding("control slot displacement %d", slot.Disp)
		}
		return put(b, LoadStoreUImm, encode.U("size", 2), encode.U("opc", opc),
			encode.U("imm12", uint32(slot.Disp/4)), encode.U("Rn", uint32(slot.Base)), encode.U("Rt", g))
	}
	switch in.Op.Code {
	case vop.OpCtlSave:
		// mrs xG, fpcr; str wG, [slot]
		if err := sysreg(b, true, g); err != nil {
			return err
		}
		return word(true, in.Ops.Dst)

	case vop.OpCtlRestore:
		// ldr wG, [slot]; msr fpcr, xG
		if err := word(false, in.Ops.Src1); err != nil {
			return err
		}
		return sysreg(b, false, g)

	case vop.OpCtlSetRound:
		mode, ok := fpcrMode[in.Op.Round]
		if !ok {
			return diag.Encoding("rounding mode %s has no FPCR encoding", in.Op.Round)
		}
		if len(temps) < 2 {
			return diag.Internal("ctlsetround needs two scratch registers")
		}
		h := temps[1]
		if err := sysreg(b, true, g); err != nil {
			return err
		}
		if err := put(b, MoveWide, encode.U("sf", 1), encode.U("opc", movz),
			encode.U("imm16", mode), encode.U("Rd", h)); err != nil {
			return err
		}
		// bfi xG, xH, #22, #2
		if err := put(b, Bitfield, encode.U("sf", 1), encode.U("opc", 1), encode.U("N", 1),
			encode.U("immr", 64-22), encode.U("imms", 1), encode.U("Rn", h), encode.U("Rd", g)); err != nil {
			return err
		}
		return sysreg(b, false, g)
	}
	return diag.Internal("aarch64 control %s not handled", in.Op)
}
