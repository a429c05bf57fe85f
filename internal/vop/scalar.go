package vop

import "github.com/xyproto/vlower/internal/operand"

// Scalar operations work on 64-bit general purpose registers. Only the
// loads, stores and SZext look at Width.

func scalar(c Code, dst, a, b operand.Operand) (VectorOp, Operands) {
	op := VectorOp{Code: c, Kind: KindInt, Width: 64, Arity: c.Arity(), Form: formOf(b)}
	return op, Operands{Dst: dst, Src1: a, Src2: b}
}

func SMovImm(dst operand.GPR, v int64) (VectorOp, Operands) {
	op := VectorOp{Code: OpSMovImm, Kind: KindInt, Width: 64, Arity: 1, Form: FormRegImm}
	return op, Operands{Dst: dst, Src1: operand.Imm(v)}
}

// SLoad loads bits from mem, sign extending for KindInt and zero extending
// otherwise.
func SLoad(k Kind, bits int, dst operand.GPR, mem operand.Mem) (VectorOp, Operands) {
	op := VectorOp{Code: OpSLoad, Kind: k, Width: bits, Arity: 1, Form: FormRegMem}
	return op, Operands{Dst: dst, Src1: mem.WithClass(operand.ElemClass(bits))}
}

// SStore stores the low bits of src
func SStore(bits int, mem operand.Mem, src operand.GPR) (VectorOp, Operands) {
	op := VectorOp{Code: OpSStore, Kind: KindUint, Width: bits, Arity: 1, Form: FormRegMem}
	return op, Operands{Dst: mem.WithClass(operand.ElemClass(bits)), Src1: src}
}

func SAdd(dst, a, b operand.GPR) (VectorOp, Operands) { return scalar(OpSAdd, dst, a, b) }
func SSub(dst, a, b operand.GPR) (VectorOp, Operands) { return scalar(OpSSub, dst, a, b) }
func SMul(dst, a, b operand.GPR) (VectorOp, Operands) { return scalar(OpSMul, dst, a, b) }
func SShl(dst, a, b operand.GPR) (VectorOp, Operands) { return scalar(OpSShl, dst, a, b) }
func SShr(dst, a, b operand.GPR) (VectorOp, Operands) { return scalar(OpSShr, dst, a, b) }
func SSar(dst, a, b operand.GPR) (VectorOp, Operands) { return scalar(OpSSar, dst, a, b) }

// SMin and SMax compare signed
func SMin(dst, a, b operand.GPR) (VectorOp, Operands) { return scalar(OpSMin, dst, a, b) }
func SMax(dst, a, b operand.GPR) (VectorOp, Operands) { return scalar(OpSMax, dst, a, b) }

func SAddImm(dst, a operand.GPR, imm int64) (VectorOp, Operands) {
	return scalar(OpSAddImm, dst, a, operand.Imm(imm))
}

// SZext zero extends the low bits of src into dst
func SZext(bits int, dst, src operand.GPR) (VectorOp, Operands) {
	op := VectorOp{Code: OpSZext, Kind: KindUint, Width: bits, Arity: 1}
	return op, Operands{Dst: dst, Src1: src}
}

// CtlSave saves the floating point control register
func CtlSave(slot operand.Mem) (VectorOp, Operands) {
	slot.Class = operand.ClassControl
	return VectorOp{Code: OpCtlSave}, Operands{Dst: slot}
}

// CtlSetRound sets the rounding mode field of the control register. slot
// is the control area CtlSave wrote; targets that can only change the
// register through memory use the bytes after the saved word.
func CtlSetRound(mode RoundMode, slot operand.Mem) (VectorOp, Operands) {
	slot.Class = operand.ClassControl
	return VectorOp{Code: OpCtlSetRound, Round: mode}, Operands{Src1: slot}
}

// CtlRestore restores the value saved by CtlSave
func CtlRestore(slot operand.Mem) (VectorOp, Operands) {
	slot.Class = operand.ClassControl
	return VectorOp{Code: OpCtlRestore}, Operands{Src1: slot}
}

// LabelOp binds l at the current position
func LabelOp(l operand.Label) (VectorOp, Operands) {
	return VectorOp{Code: OpLabel, Arity: 1}, Operands{Src1: l}
}
