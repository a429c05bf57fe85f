package vop

import "github.com/xyproto/vlower/internal/operand"

func Move(k Kind, bits int, dst, src operand.Operand) (VectorOp, Operands) {
	return unary(OpMove, k, bits, dst, src)
}

// Load reads one vector from mem
func Load(k Kind, bits int, dst operand.Operand, mem operand.Mem) (VectorOp, Operands) {
	return unary(OpLoad, k, bits, dst, mem)
}

// Store writes src to mem
func Store(k Kind, bits int, mem operand.Mem, src operand.Operand) (VectorOp, Operands) {
	op := VectorOp{Code: OpStore, Kind: k, Width: bits, Arity: 1, Form: FormRegMem}
	return op, Operands{Dst: mem, Src1: src}
}

// Splat copies a scalar into every lane. src is a GPR or an immediate;
// float immediates are given as their bit pattern.
func Splat(k Kind, bits int, dst, src operand.Operand) (VectorOp, Operands) {
	return unary(OpSplat, k, bits, dst, src)
}

// SplatFloat splats the bit pattern of a float constant
func SplatFloat(bits int, dst operand.Operand, bitsOf uint64) (VectorOp, Operands) {
	return Splat(KindFloat, bits, dst, operand.Imm(int64(bitsOf)))
}

// Zero clears dst
func Zero(k Kind, bits int, dst operand.Operand) (VectorOp, Operands) {
	return binary(OpXor, k, bits, dst, dst, dst)
}

// Merge returns, per lane, ifZero where mask is 0 and ifNonZero where mask
// is all ones. Other mask values give undefined lanes.
func Merge(k Kind, bits int, dst, mask, ifZero, ifNonZero operand.Operand) (VectorOp, Operands) {
	op := VectorOp{Code: OpMerge, Kind: k, Width: bits, Arity: 3}
	return op, Operands{Dst: dst, Src1: mask, Src2: ifZero, Src3: ifNonZero}
}

// MaskBranch jumps to label when no lane (BranchNone) or every lane
// (BranchFull) of mask is set.
func MaskBranch(bits int, mask operand.Operand, cond BranchCond, label operand.Label) (VectorOp, Operands) {
	op := VectorOp{Code: OpMaskBranch, Kind: KindUint, Width: bits, Arity: 2, Cond: cond}
	return op, Operands{Src1: mask, Src2: label}
}

// ExtractHi moves the upper half of src into the lower half of dst
func ExtractHi(k Kind, bits int, dst, src operand.Operand) (VectorOp, Operands) {
	return unary(OpExtractHi, k, bits, dst, src)
}

// InsertHi returns dst = a with its upper half replaced by the lower half of b
func InsertHi(k Kind, bits int, dst, a, b operand.Operand) (VectorOp, Operands) {
	return binary(OpInsertHi, k, bits, dst, a, b)
}
