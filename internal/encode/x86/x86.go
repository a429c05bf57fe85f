// Package x86 encodes lowered instructions for x86-64: legacy SSE with
// REX, VEX and EVEX prefixed vector instructions, plus the general purpose
// and MXCSR instructions the recipes and the addressing resolver emit.
package x86

import (
	"encoding/binary"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/encode"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/mask"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// Options select optional instruction set extensions
type Options struct {
	BMI2 bool // shlx/shrx/sarx for scalar shifts
}

// Encoder encodes x86-64 instructions
type Encoder struct {
	opts Options
}

// New returns an encoder
func New(opts Options) *Encoder {
	return &Encoder{opts: opts}
}

// Encode appends the bytes of in to b
func (e *Encoder) Encode(b *encode.Buffer, in isa.Instr) error {
	if in.Desc == nil || in.Desc.X86 == nil {
		return diag.Internal("no x86 descriptor for %s", in.Op)
	}
	start := b.Begin()
	var err error
	switch in.Desc.X86.Form {
	case isa.X86Scalar:
		err = e.scalar(b, in)
	case isa.X86Control:
		err = e.control(b, in)
	default:
		err = e.vector(b, in)
	}
	if err != nil {
		return diag.WithContext(err, "", in.Op.String())
	}
	b.Trace(start, in.Format(isa.ArchX86_64))
	return nil
}

// vinst is one vector instruction ready for packing
type vinst struct {
	d     *isa.X86Desc
	reg   uint8
	vvvv  uint8
	rm    operand.Operand
	bytes int
	aaa   uint8
	z     bool
	rc    int // static rounding mode plus one, 0 when unused
	imm   []byte
}

func num(op operand.Operand) (uint8, error) {
	switch r := op.(type) {
	case operand.PReg:
		return uint8(r), nil
	case operand.GPR:
		return uint8(r), nil
	case operand.KReg:
		return uint8(r), nil
	}
	return 0, diag.Internal("operand %v is not a register", op)
}

func mapBytes(m isa.Map) []byte {
	switch m {
	case isa.Map0F:
		return []byte{0x0F}
	case isa.Map0F38:
		return []byte{0x0F, 0x38}
	case isa.Map0F3A:
		return []byte{0x0F, 0x3A}
	}
	return nil
}

// rmEnc is the ModRM, SIB and displacement of an rm operand, and the
// register extension bits it needs
type rmEnc struct {
	modrm ModRM
	sib   *SIB
	disp  []byte
	b, x  bool
}

func (a rmEnc) write(b *encode.Buffer) {
	b.Byte(a.modrm.Byte())
	if a.sib != nil {
		b.Byte(a.sib.Byte())
	}
	b.Byte(a.disp...)
}

// addressing encodes rm. scale is the EVEX disp8 compression factor, 1
// for legacy and VEX.
func addressing(reg uint8, rm operand.Operand, scale int) (rmEnc, error) {
	m, ok := rm.(operand.Mem)
	if !ok {
		n, err := num(rm)
		if err != nil {
			return rmEnc{}, err
		}
		return rmEnc{modrm: ModRM{Mod: 3, Reg: reg, RM: n}, b: n&8 != 0, x: n&16 != 0}, nil
	}
	if m.Disp < -1<<31 || m.Disp >= 1<<31 {
		return rmEnc{}, diag.Encoding("displacement %d does not fit in 32 bits", m.Disp)
	}
	base := uint8(m.Base)
	a := rmEnc{modrm: ModRM{Reg: reg, RM: base}, b: base&8 != 0}
	// rsp and r12 need a SIB byte, rbp and r13 have no disp-less form
	if base&7 == 4 {
		a.sib = &SIB{Index: 4, Base: base}
	}
	switch {
	case m.Disp == 0 && base&7 != 5:
	case m.Disp%int64(scale) == 0 && m.Disp/int64(scale) >= -128 && m.Disp/int64(scale) <= 127:
		a.modrm.Mod = 1
		a.disp = []byte{byte(int8(m.Disp / int64(scale)))}
	default:
		a.modrm.Mod = 2
		a.disp = binary.LittleEndian.AppendUint32(nil, uint32(int32(m.Disp)))
	}
	return a, nil
}

// legacy packs [prefix] [REX] opcode ModRM [SIB] [disp] [imm]
func legacy(b *encode.Buffer, pfx byte, w bool, opcode []byte, reg uint8, rm operand.Operand, imm []byte, forceREX bool) error {
	if reg > 15 {
		return diag.Encoding("register %d is not encodable without EVEX", reg)
	}
	a, err := addressing(reg, rm, 1)
	if err != nil {
		return err
	}
	if a.x {
		return diag.Encoding("register %v is not encodable without EVEX", rm)
	}
	rex := REX{W: w, R: reg&8 != 0, B: a.b}
	if pfx != 0 {
		b.Byte(pfx)
	}
	if rex.Needed() || forceREX {
		b.Byte(rex.Byte())
	}
	b.Byte(opcode...)
	a.write(b)
	b.Byte(imm...)
	return nil
}

// pack emits a vector instruction in the encoding its descriptor names.
// Legacy encodings have no vvvv; callers make the destination hold the
// first source before calling.
func pack(b *encode.Buffer, v vinst) error {
	d := v.d
	switch d.Enc {
	case isa.EncLegacy:
		return legacy(b, d.PP.Byte(), d.W, append(mapBytes(d.Map), d.Op), v.reg, v.rm, v.imm, false)
	case isa.EncVEX:
		if v.reg > 15 || v.vvvv > 15 {
			return diag.Encoding("register above 15 is not encodable with VEX")
		}
		a, err := addressing(v.reg, v.rm, 1)
		if err != nil {
			return err
		}
		if a.x {
			return diag.Encoding("register %v is not encodable with VEX", v.rm)
		}
		if v.bytes > 32 {
			return diag.Encoding("%d-byte vectors are not encodable with VEX", v.bytes)
		}
		vex := VEX{R: v.reg&8 != 0, B: a.b, Map: d.Map, W: d.W, VVVV: v.vvvv, L: v.bytes == 32, PP: d.PP}
		b.Byte(vex.Bytes()...)
		b.Byte(d.Op)
		a.write(b)
		b.Byte(v.imm...)
		return nil
	default:
		scale := 1
		if _, ok := v.rm.(operand.Mem); ok {
			scale = v.bytes
		}
		a, err := addressing(v.reg, v.rm, scale)
		if err != nil {
			return err
		}
		ev := EVEX{R: v.reg&8 != 0, R2: v.reg&16 != 0, B: a.b, X: a.x, Map: d.Map, W: d.W,
			VVVV: v.vvvv, PP: d.PP, Z: v.z, AAA: v.aaa}
		switch v.bytes {
		case 16:
			ev.LL = 0
		case 32:
			ev.LL = 1
		default:
			ev.LL = 2
		}
		if v.rc > 0 {
			if scale != 1 {
				return diag.Encoding("static rounding needs a register operand")
			}
			ev.Bcst, ev.LL = true, uint8(v.rc-1)
		}
		p := ev.Bytes()
		b.Byte(p[:]...)
		b.Byte(d.Op)
		a.write(b)
		b.Byte(v.imm...)
		return nil
	}
}

var movaps = &isa.X86Desc{Enc: isa.EncLegacy, Map: isa.Map0F, Op: 0x28}

// copyReg moves src to dst in the descriptor's encoding
func copyReg(b *encode.Buffer, enc isa.Encoding, bytes int, dst, src operand.Operand) error {
	if operand.Same(dst, src) {
		return nil
	}
	n, err := num(dst)
	if err != nil {
		return err
	}
	d := *movaps
	d.Enc = enc
	return pack(b, vinst{d: &d, reg: n, rm: src, bytes: bytes})
}

// rc returns the EVEX static rounding field plus one for op, or 0
func rc(d *isa.X86Desc, op vop.VectorOp) int {
	if !d.Rounding {
		return 0
	}
	switch op.Round {
	case vop.RoundNearest:
		return 1
	case vop.RoundDown:
		return 2
	case vop.RoundUp:
		return 3
	case vop.RoundZero:
		return 4
	}
	return 0
}

func (e *Encoder) vector(b *encode.Buffer, in isa.Instr) error {
	d := in.Desc.X86
	ops := in.Ops
	var imm []byte
	if d.HasImm {
		imm = []byte{d.Imm}
	}
	v := vinst{d: d, bytes: in.Bytes, rc: rc(d, in.Op), imm: imm}

	switch d.Form {
	case isa.X86RVM, isa.X86RVMI:
		a, c := ops.Src1, ops.Src2
		if in.Desc.Swap {
			a, c = c, a
		}
		dst, err := num(ops.Dst)
		if err != nil {
			return err
		}
		v.reg, v.rm = dst, c
		if d.Enc == isa.EncLegacy {
			if operand.Same(ops.Dst, c) && !operand.Same(ops.Dst, a) {
				if !in.Desc.Commutative {
					return diag.Aliasing("%s: destination %v is the second source of a destructive form", in.Desc.Name, ops.Dst)
				}
				a, c = c, a
				v.rm = c
			}
			if err := copyReg(b, d.Enc, in.Bytes, ops.Dst, a); err != nil {
				return err
			}
			return pack(b, v)
		}
		if v.vvvv, err = num(a); err != nil {
			return err
		}
		return pack(b, v)

	case isa.X86RM, isa.X86RMI:
		dst, err := num(ops.Dst)
		if err != nil {
			return err
		}
		v.reg, v.rm = dst, ops.Src1
		return pack(b, v)

	case isa.X86MR, isa.X86MRI:
		src, err := num(ops.Src1)
		if err != nil {
			return err
		}
		v.reg, v.rm = src, ops.Dst
		return pack(b, v)

	case isa.X86VMI:
		count, ok := ops.Src2.(operand.Imm)
		if !ok || count < 0 || count > 255 {
			return diag.Encoding("shift count %v does not fit in imm8", ops.Src2)
		}
		v.reg, v.imm = d.Digit, []byte{byte(count)}
		if d.Enc == isa.EncLegacy {
			if err := copyReg(b, d.Enc, in.Bytes, ops.Dst, ops.Src1); err != nil {
				return err
			}
			v.rm = ops.Dst
			return pack(b, v)
		}
		dst, err := num(ops.Dst)
		if err != nil {
			return err
		}
		v.vvvv, v.rm = dst, ops.Src1
		return pack(b, v)

	case isa.X86Not:
		dst, err := num(ops.Dst)
		if err != nil {
			return err
		}
		src, err := num(ops.Src1)
		if err != nil {
			return err
		}
		v.reg, v.vvvv, v.rm = dst, src, ops.Src1
		return pack(b, v)

	case isa.X86KCmp:
		return e.kcompare(b, in, v)

	case isa.X86Blend:
		dst, err := num(ops.Dst)
		if err != nil {
			return err
		}
		m, err := num(ops.Src1)
		if err != nil {
			return err
		}
		z, err := num(ops.Src2)
		if err != nil {
			return err
		}
		v.reg, v.vvvv, v.rm, v.imm = dst, z, ops.Src3, []byte{m << 4}
		return pack(b, v)

	case isa.X86TernMerge:
		t := mask.PlanTernary(ops.Dst, ops.Src1, ops.Src2, ops.Src3)
		if t.Move {
			if err := copyReg(b, d.Enc, in.Bytes, ops.Dst, ops.Src1); err != nil {
				return err
			}
		}
		dst, err := num(ops.Dst)
		if err != nil {
			return err
		}
		bb, err := num(t.B)
		if err != nil {
			return err
		}
		v.reg, v.vvvv, v.rm, v.imm = dst, bb, t.C, []byte{t.Imm}
		return pack(b, v)

	case isa.X86Splat:
		return e.splat(b, in, v)

	case isa.X86MaskBranch:
		return e.maskBranch(b, in, v)
	}
	return diag.Internal("x86 form %d not handled", d.Form)
}

// kcompare is an EVEX compare into the mask register, then the Aux
// instruction that expands the mask into all-ones lanes
func (e *Encoder) kcompare(b *encode.Buffer, in isa.Instr, v vinst) error {
	ops := in.Ops
	k, ok := in.Mask.(operand.KReg)
	if !ok {
		return diag.Internal("compare into mask without a mask register")
	}
	a, err := num(ops.Src1)
	if err != nil {
		return err
	}
	v.reg, v.vvvv, v.rm = uint8(k), a, ops.Src2
	if err := pack(b, v); err != nil {
		return err
	}
	aux := in.Desc.X86.Aux
	dst, err := num(ops.Dst)
	if err != nil {
		return err
	}
	x := vinst{d: aux, reg: dst, rm: k, bytes: in.Bytes}
	if aux.Form == isa.X86Not {
		// vpternlogd dst{k}{z}, dst, dst, 0xFF
		x.vvvv, x.rm, x.aaa, x.z, x.imm = dst, ops.Dst, uint8(k), true, []byte{aux.Imm}
	}
	return pack(b, x)
}

func (e *Encoder) splat(b *encode.Buffer, in isa.Instr, v vinst) error {
	d := in.Desc.X86
	dst, err := num(in.Ops.Dst)
	if err != nil {
		return err
	}
	g, ok := in.Ops.Src1.(operand.GPR)
	if !ok {
		return diag.Internal("splat source %v is not a general purpose register", in.Ops.Src1)
	}
	switch d.Enc {
	case isa.EncEVEX:
		v.reg, v.rm = dst, g
		return pack(b, v)
	case isa.EncVEX:
		// vmovd/vmovq xmm, r then vpbroadcast from xmm
		if err := pack(b, vinst{d: d, reg: dst, rm: g, bytes: 16}); err != nil {
			return err
		}
		return pack(b, vinst{d: d.Aux, reg: dst, rm: in.Ops.Dst, bytes: in.Bytes})
	default:
		// movd/movq xmm, r then pshufd
		if err := pack(b, vinst{d: d, reg: dst, rm: g, bytes: 16}); err != nil {
			return err
		}
		return pack(b, vinst{d: d.Aux, reg: dst, rm: in.Ops.Dst, bytes: 16, imm: []byte{d.Aux.Imm}})
	}
}

var (
	kortestw = &isa.X86Desc{Enc: isa.EncVEX, Map: isa.Map0F, Op: 0x98}
	jz       = []byte{0x0F, 0x84}
	jc       = []byte{0x0F, 0x82}
)

// maskBranch reduces the mask with ptest or vptestm+kortest and branches
func (e *Encoder) maskBranch(b *encode.Buffer, in isa.Instr, v vinst) error {
	d := in.Desc.X86
	m := in.Ops.Src1
	l, ok := in.Ops.Src2.(operand.Label)
	if !ok {
		return diag.Internal("mask branch without a label")
	}
	t, ok := vecTemp(in)
	if !ok {
		return diag.Internal("mask branch without a vector temporary")
	}
	mn, err := num(m)
	if err != nil {
		return err
	}
	cond := jz
	switch d.Enc {
	case isa.EncEVEX:
		k, ok := in.Mask.(operand.KReg)
		if !ok {
			return diag.Internal("mask branch without a mask register")
		}
		src, sn := m, mn
		if in.Op.Cond == vop.BranchFull {
			// t = ~m, which is zero exactly when every bit of m is set
			not := vinst{d: d.Aux, reg: uint8(t), vvvv: mn, rm: m, bytes: in.Bytes, imm: []byte{d.Aux.Imm}}
			if err := pack(b, not); err != nil {
				return err
			}
			src, sn = t, uint8(t)
		}
		// vptestmd k, src, src
		if err := pack(b, vinst{d: d, reg: uint8(k), vvvv: sn, rm: src, bytes: in.Bytes}); err != nil {
			return err
		}
		// kortestw k, k
		if err := pack(b, vinst{d: kortestw, reg: uint8(k), rm: k, bytes: 16}); err != nil {
			return err
		}
	default:
		other := m
		if in.Op.Cond == vop.BranchFull {
			// t = all ones; ptest m, t sets CF when m covers t
			ones := vinst{d: d.Aux, reg: uint8(t), vvvv: uint8(t), rm: t, bytes: in.Bytes}
			if err := pack(b, ones); err != nil {
				return err
			}
			other, cond = t, jc
		}
		if err := pack(b, vinst{d: d, reg: mn, rm: other, bytes: in.Bytes}); err != nil {
			return err
		}
	}
	b.Byte(cond...)
	b.Use(l, b.Len(), rel32)
	b.Uint32(0)
	return nil
}

func vecTemp(in isa.Instr) (operand.PReg, bool) {
	for _, x := range in.Temps {
		if r, ok := x.(operand.PReg); ok {
			return r, true
		}
	}
	return 0, false
}

func gprTemp(in isa.Instr) (operand.GPR, bool) {
	for _, x := range in.Temps {
		if r, ok := x.(operand.GPR); ok {
			return r, true
		}
	}
	return 0, false
}

// rel32 patches a branch displacement relative to the end of the field
func rel32(code []byte, at, target int) error {
	d := int64(target) - int64(at+4)
	if d < -1<<31 || d >= 1<<31 {
		return diag.Encoding("branch displacement %d does not fit in 32 bits", d)
	}
	encode.PutWord(code, at, uint32(int32(d)))
	return nil
}
