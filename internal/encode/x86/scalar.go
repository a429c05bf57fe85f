package x86

import (
	"encoding/binary"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/encode"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

const rcx = operand.GPR(1)

// gp emits a general purpose instruction with a ModRM operand
func gp(b *encode.Buffer, w bool, reg uint8, rm operand.Operand, opcode ...byte) error {
	return legacy(b, 0, w, opcode, reg, rm, nil, false)
}

// mov r/m64, r64
// REX.W 89 /r
func mov(b *encode.Buffer, dst, src operand.GPR) error {
	if dst == src {
		return nil
	}
	return gp(b, true, uint8(src), dst, 0x89)
}

func imm32(v int64) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(int32(v)))
}

func fitsInt32(v int64) bool {
	return v >= -1<<31 && v < 1<<31
}

func gprs(ops vop.Operands) (dst, a, c operand.GPR, err error) {
	var ok1, ok2, ok3 bool
	dst, ok1 = ops.Dst.(operand.GPR)
	a, ok2 = ops.Src1.(operand.GPR)
	c, ok3 = ops.Src2.(operand.GPR)
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, diag.Internal("scalar operands %s are not general purpose registers", ops)
	}
	return dst, a, c, nil
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
		if fitsInt32(int64(v)) {
			// REX.W C7 /0 id
			return legacy(b, 0, true, []byte{0xC7}, 0, dst, imm32(int64(v)), false)
		}
		// REX.W B8+rd io
		b.Byte(REX{W: true, B: dst&8 != 0}.Byte(), 0xB8+byte(dst&7))
		b.Uint64(uint64(v))
		return nil

	case vop.OpSLoad:
		dst, ok := ops.Dst.(operand.GPR)
		m, ok2 := ops.Src1.(operand.Mem)
		if !ok || !ok2 {
			return diag.Internal("sload operands %s", ops)
		}
		signed := in.Op.Kind == vop.KindInt
		switch in.Op.Width {
		case 8:
			if signed {
				return gp(b, true, uint8(dst), m, 0x0F, 0xBE) // movsx
			}
			return gp(b, false, uint8(dst), m, 0x0F, 0xB6) // movzx
		case 16:
			if signed {
				return gp(b, true, uint8(dst), m, 0x0F, 0xBF)
			}
			return gp(b, false, uint8(dst), m, 0x0F, 0xB7)
		case 32:
			if signed {
				return gp(b, true, uint8(dst), m, 0x63) // movsxd
			}
			return gp(b, false, uint8(dst), m, 0x8B)
		}
		return gp(b, true, uint8(dst), m, 0x8B)

	case vop.OpSStore:
		m, ok := ops.Dst.(operand.Mem)
		src, ok2 := ops.Src1.(operand.GPR)
		if !ok || !ok2 {
			return diag.Internal("sstore operands %s", ops)
		}
		switch in.Op.Width {
		case 8:
			// spl, bpl, sil and dil need an empty REX prefix
			return legacy(b, 0, false, []byte{0x88}, uint8(src), m, nil, src >= 4 && src <= 7)
		case 16:
			return legacy(b, 0x66, false, []byte{0x89}, uint8(src), m, nil, false)
		case 32:
			return gp(b, false, uint8(src), m, 0x89)
		}
		return gp(b, true, uint8(src), m, 0x89)

	case vop.OpSAddImm:
		dst, ok := ops.Dst.(operand.GPR)
		a, ok2 := ops.Src1.(operand.GPR)
		v, ok3 := ops.Src2.(operand.Imm)
		if !ok || !ok2 || !ok3 {
			return diag.Internal("saddimm operands %s", ops)
		}
		// lea dst, [a+imm]
		// REX.W 8D /r
		return gp(b, true, uint8(dst), operand.Mem{Base: a, Disp: int64(v)}, 0x8D)

	case vop.OpSZext:
		dst, ok := ops.Dst.(operand.GPR)
		src, ok2 := ops.Src1.(operand.GPR)
		if !ok || !ok2 {
			return diag.Internal("szext operands %s", ops)
		}
		switch in.Op.Width {
		case 8:
			return legacy(b, 0, false, []byte{0x0F, 0xB6}, uint8(dst), src, nil, src >= 4 && src <= 7)
		case 16:
			return gp(b, false, uint8(dst), src, 0x0F, 0xB7)
		}
		// a 32-bit mov clears the upper half
		return gp(b, false, uint8(dst), src, 0x8B)
	}

	dst, a, c, err := gprs(ops)
	if err != nil {
		return err
	}
	switch in.Op.Code {
	case vop.OpSAdd:
		// add r/m64, r64: REX.W 01 /r
		if dst == c {
			a, c = c, a
		}
		if err := mov(b, dst, a); err != nil {
			return err
		}
		return gp(b, true, uint8(c), dst, 0x01)

	case vop.OpSSub:
		if dst == c && dst != a {
			// neg dst; add dst, a
			if err := gp(b, true, 3, dst, 0xF7); err != nil {
				return err
			}
			return gp(b, true, uint8(a), dst, 0x01)
		}
		if err := mov(b, dst, a); err != nil {
			return err
		}
		// sub r/m64, r64: REX.W 29 /r
		return gp(b, true, uint8(c), dst, 0x29)

	case vop.OpSMul:
		if dst == c {
			a, c = c, a
		}
		if err := mov(b, dst, a); err != nil {
			return err
		}
		// imul r64, r/m64: REX.W 0F AF /r
		return gp(b, true, uint8(dst), c, 0x0F, 0xAF)

	case vop.OpSShl, vop.OpSShr, vop.OpSSar:
		return e.shift(b, in.Op.Code, dst, a, c)

	case vop.OpSMin, vop.OpSMax:
		if dst == c {
			a, c = c, a
		}
		if err := mov(b, dst, a); err != nil {
			return err
		}
		// cmp r/m64, r64: REX.W 39 /r
		if err := gp(b, true, uint8(c), dst, 0x39); err != nil {
			return err
		}
		// cmovg (min) or cmovl (max): REX.W 0F 4F|4C /r
		cc := byte(0x4F)
		if in.Op.Code == vop.OpSMax {
			cc = 0x4C
		}
		return gp(b, true, uint8(dst), c, 0x0F, cc)
	}
	return diag.Internal("x86 scalar %s not handled", in.Op)
}

var bmi2Shift = map[vop.Code]isa.Prefix{
	vop.OpSShl: isa.Prefix66, // shlx
	vop.OpSShr: isa.PrefixF2, // shrx
	vop.OpSSar: isa.PrefixF3, // sarx
}

var clShift = map[vop.Code]uint8{
	vop.OpSShl: 4,
	vop.OpSShr: 5,
	vop.OpSSar: 7,
}

// shift encodes a 64-bit shift by a register count. With BMI2 any
// registers work; otherwise the count has to pass through cl, which is
// swapped in and out around the shift.
func (e *Encoder) shift(b *encode.Buffer, code vop.Code, dst, a, count operand.GPR) error {
	if e.opts.BMI2 {
		// VEX.LZ.pp.0F38.W1 F7 /r: reg=dst rm=src vvvv=count
		d := &isa.X86Desc{Enc: isa.EncVEX, Map: isa.Map0F38, PP: bmi2Shift[code], Op: 0xF7, W: true}
		return pack(b, vinst{d: d, reg: uint8(dst), vvvv: uint8(count), rm: a, bytes: 16})
	}
	if dst == rcx || (dst == count && dst != a) {
		return diag.Aliasing("shift into %s with count in %s needs BMI2", isa.GPRName(isa.ArchX86_64, dst), isa.GPRName(isa.ArchX86_64, count))
	}
	if err := mov(b, dst, a); err != nil {
		return err
	}
	if count != rcx {
		// xchg rcx, count: REX.W 87 /r
		if err := gp(b, true, uint8(count), rcx, 0x87); err != nil {
			return err
		}
	}
	// REX.W D3 /digit: shift r/m64 by cl
	target := dst
	if dst == count {
		target = rcx
	}
	if err := gp(b, true, clShift[code], target, 0xD3); err != nil {
		return err
	}
	if count != rcx {
		return gp(b, true, uint8(count), rcx, 0x87)
	}
	return nil
}

// MXCSR rounding control, bits 13-14
var mxcsrRC = map[vop.RoundMode]uint32{
	vop.RoundNearest: 0,
	vop.RoundDown:    1,
	vop.RoundUp:      2,
	vop.RoundZero:    3,
}

func (e *Encoder) control(b *encode.Buffer, in isa.Instr) error {
	switch in.Op.Code {
	case vop.OpCtlSave:
		slot, ok := in.Ops.Dst.(operand.Mem)
		if !ok {
			return diag.Internal("ctlsave without a slot")
		}
		// stmxcsr m32: 0F AE /3
		return gp(b, false, 3, slot, 0x0F, 0xAE)

	case vop.OpCtlRestore:
		slot, ok := in.Ops.Src1.(operand.Mem)
		if !ok {
			return diag.Internal("ctlrestore without a slot")
		}
		// ldmxcsr m32: 0F AE /2
		return gp(b, false, 2, slot, 0x0F, 0xAE)

	case vop.OpCtlSetRound:
		slot, ok := in.Ops.Src1.(operand.Mem)
		if !ok {
			return diag.Internal("ctlsetround without a slot")
		}
		mode, ok := mxcsrRC[in.Op.Round]
		if !ok {
			return diag.Encoding("rounding mode %s has no MXCSR encoding", in.Op.Round)
		}
		g, ok := gprTemp(in)
		if !ok {
			return diag.Internal("ctlsetround without a scratch register")
		}
		next := slot.At(4)
		// mov g32, [slot]
		if err := gp(b, false, uint8(g), slot, 0x8B); err != nil {
			return err
		}
		// and g32, ~0x6000: 81 /4 id
		if err := legacy(b, 0, false, []byte{0x81}, 4, g, imm32(^0x6000), false); err != nil {
			return err
		}
		if mode != 0 {
			// or g32, mode<<13: 81 /1 id
			if err := legacy(b, 0, false, []byte{0x81}, 1, g, imm32(int64(mode<<13)), false); err != nil {
				return err
			}
		}
		// mov [slot+4], g32
		if err := gp(b, false, uint8(g), next, 0x89); err != nil {
			return err
		}
		// ldmxcsr [slot+4]
		return gp(b, false, 2, next, 0x0F, 0xAE)
	}
	return diag.Internal("x86 control %s not handled", in.Op)
}
