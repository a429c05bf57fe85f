package vop

import "github.com/xyproto/vlower/internal/operand"

func And(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpAnd, k, bits, dst, a, b)
}

// AndNot returns dst = ^a & b
func AndNot(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpAndNot, k, bits, dst, a, b)
}

func Or(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpOr, k, bits, dst, a, b)
}

func Xor(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpXor, k, bits, dst, a, b)
}

func Not(k Kind, bits int, dst, a operand.Operand) (VectorOp, Operands) {
	return unary(OpNot, k, bits, dst, a)
}
