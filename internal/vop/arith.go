package vop

import "github.com/xyproto/vlower/internal/operand"

func binary(c Code, k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return newOp(c, k, bits, b), Operands{Dst: dst, Src1: a, Src2: b}
}

func unary(c Code, k Kind, bits int, dst, a operand.Operand) (VectorOp, Operands) {
	return newOp(c, k, bits, a), Operands{Dst: dst, Src1: a}
}

// Add returns dst = a + b. The last source may be a memory operand.
func Add(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpAdd, k, bits, dst, a, b)
}

// Sub returns dst = a - b
func Sub(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpSub, k, bits, dst, a, b)
}

// Mul returns dst = a * b, keeping the low half of integer products
func Mul(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpMul, k, bits, dst, a, b)
}

func Div(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpDiv, k, bits, dst, a, b)
}

func Min(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpMin, k, bits, dst, a, b)
}

func Max(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpMax, k, bits, dst, a, b)
}

// AddSat clamps to the range of the element kind instead of wrapping
func AddSat(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpAddSat, k, bits, dst, a, b)
}

func SubSat(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpSubSat, k, bits, dst, a, b)
}

func Sqrt(k Kind, bits int, dst, a operand.Operand) (VectorOp, Operands) {
	return unary(OpSqrt, k, bits, dst, a)
}

func Neg(k Kind, bits int, dst, a operand.Operand) (VectorOp, Operands) {
	return unary(OpNeg, k, bits, dst, a)
}

// MulAdd returns dst = dst + a*b. Whether the product is rounded before the
// add depends on the fma compat level.
func MulAdd(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpMulAdd, k, bits, dst, a, b)
}

// Rcp returns dst = 1/a with the accuracy chosen by the rcp compat level
func Rcp(bits int, dst, a operand.Operand) (VectorOp, Operands) {
	return unary(OpRcp, KindFloat, bits, dst, a)
}

// Rsq returns dst = 1/sqrt(a) with the accuracy chosen by the rsq compat level
func Rsq(bits int, dst, a operand.Operand) (VectorOp, Operands) {
	return unary(OpRsq, KindFloat, bits, dst, a)
}

func RcpEst(bits int, dst, a operand.Operand) (VectorOp, Operands) {
	return unary(OpRcpEst, KindFloat, bits, dst, a)
}

func RsqEst(bits int, dst, a operand.Operand) (VectorOp, Operands) {
	return unary(OpRsqEst, KindFloat, bits, dst, a)
}

// RcpStep returns dst = 2 - a*b
func RcpStep(bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpRcpStep, KindFloat, bits, dst, a, b)
}

// RsqStep returns dst = (3 - a*b) / 2
func RsqStep(bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpRsqStep, KindFloat, bits, dst, a, b)
}
