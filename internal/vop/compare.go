package vop

import "github.com/xyproto/vlower/internal/operand"

// Compare returns dst lanes set to all ones where the predicate holds and
// zero elsewhere. c must be one of the OpCmp codes.
func Compare(c Code, k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(c, k, bits, dst, a, b)
}

func CmpEQ(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return Compare(OpCmpEQ, k, bits, dst, a, b)
}

func CmpNE(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return Compare(OpCmpNE, k, bits, dst, a, b)
}

func CmpGT(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return Compare(OpCmpGT, k, bits, dst, a, b)
}

func CmpGE(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return Compare(OpCmpGE, k, bits, dst, a, b)
}

func CmpLT(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return Compare(OpCmpLT, k, bits, dst, a, b)
}

func CmpLE(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return Compare(OpCmpLE, k, bits, dst, a, b)
}

// Swapped returns the compare that gives the same result with its two
// sources exchanged, e.g. a < b is b > a.
func (c Code) Swapped() Code {
	switch c {
	case OpCmpGT:
		return OpCmpLT
	case OpCmpLT:
		return OpCmpGT
	case OpCmpGE:
		return OpCmpLE
	case OpCmpLE:
		return OpCmpGE
	}
	return c
}

// Negated returns the compare whose result is the bitwise NOT of c for
// non-NaN inputs.
func (c Code) Negated() Code {
	switch c {
	case OpCmpEQ:
		return OpCmpNE
	case OpCmpNE:
		return OpCmpEQ
	case OpCmpGT:
		return OpCmpLE
	case OpCmpLE:
		return OpCmpGT
	case OpCmpGE:
		return OpCmpLT
	case OpCmpLT:
		return OpCmpGE
	}
	return c
}
