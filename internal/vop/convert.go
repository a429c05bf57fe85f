package vop

import "github.com/xyproto/vlower/internal/operand"

// CvtFToI converts float lanes to integer lanes of the same width. k is the
// integer kind of the result.
func CvtFToI(k Kind, bits int, mode RoundMode, dst, a operand.Operand) (VectorOp, Operands) {
	op, ops := unary(OpCvtFToI, k, bits, dst, a)
	op.Round = mode
	return op, ops
}

// CvtIToF converts integer lanes of kind k to float lanes of the same width
func CvtIToF(k Kind, bits int, dst, a operand.Operand) (VectorOp, Operands) {
	return unary(OpCvtIToF, k, bits, dst, a)
}

// Round rounds float lanes to integral values, keeping them float
func Round(bits int, mode RoundMode, dst, a operand.Operand) (VectorOp, Operands) {
	op, ops := unary(OpRound, KindFloat, bits, dst, a)
	op.Round = mode
	return op, ops
}
