package vop

// Build constructs a vector operation from a code picked at run time, for
// front ends that read operations as data. ops holds Dst and the sources
// the code takes; for Store, Dst is the memory cell. mode applies to the
// rounding codes and cond to MaskBranch. Scalar and control codes are
// rejected.
func Build(c Code, k Kind, bits int, mode RoundMode, cond BranchCond, ops Operands) (VectorOp, bool) {
	if !c.Valid() || c.Class() != ClassVector || bits == 0 {
		return VectorOp{}, false
	}
	switch c {
	case OpStore:
		return VectorOp{Code: OpStore, Kind: k, Width: bits, Arity: 1, Form: FormRegMem}, true
	case OpMerge:
		return VectorOp{Code: OpMerge, Kind: k, Width: bits, Arity: 3}, true
	case OpMaskBranch:
		return VectorOp{Code: OpMaskBranch, Kind: KindUint, Width: bits, Arity: 2, Cond: cond}, true
	case OpRcp, OpRsq, OpRcpEst, OpRsqEst, OpRcpStep, OpRsqStep, OpRound:
		k = KindFloat
	}
	last := ops.Src1
	switch c.Arity() {
	case 2:
		last = ops.Src2
	case 3:
		last = ops.Src3
	}
	op := newOp(c, k, bits, last)
	if c.Rounds() {
		op.Round = mode
	}
	return op, true
}
