package vop

import "github.com/xyproto/vlower/internal/operand"

// Immediate counts must lie in [0, bits). Per-lane counts at or past the
// lane width follow the target. x86 gives zero or sign fill and NEON reads
// the low byte as a signed count; Power takes the count modulo the width.

// ShlImm shifts every lane left by the same count
func ShlImm(k Kind, bits int, dst, a operand.Operand, count int) (VectorOp, Operands) {
	return binary(OpShlImm, k, bits, dst, a, operand.Imm(count))
}

// ShrImm is a logical right shift
func ShrImm(k Kind, bits int, dst, a operand.Operand, count int) (VectorOp, Operands) {
	return binary(OpShrImm, k, bits, dst, a, operand.Imm(count))
}

// SraImm is an arithmetic right shift
func SraImm(k Kind, bits int, dst, a operand.Operand, count int) (VectorOp, Operands) {
	return binary(OpSraImm, k, bits, dst, a, operand.Imm(count))
}

// ShlVar shifts each lane of a by the count in the same lane of counts
func ShlVar(k Kind, bits int, dst, a, counts operand.Operand) (VectorOp, Operands) {
	return binary(OpShlVar, k, bits, dst, a, counts)
}

func ShrVar(k Kind, bits int, dst, a, counts operand.Operand) (VectorOp, Operands) {
	return binary(OpShrVar, k, bits, dst, a, counts)
}

func SraVar(k Kind, bits int, dst, a, counts operand.Operand) (VectorOp, Operands) {
	return binary(OpSraVar, k, bits, dst, a, counts)
}
