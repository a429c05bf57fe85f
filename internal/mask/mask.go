// Package mask maps per-lane merge and branch-on-mask semantics onto the
// targets: opmask registers and vptest/kortest on x86, BSL/BIT/BIF and
// across-lane reductions on NEON, xxsel and record-form compares on VSX,
// or AND/ANDN/OR sequences where nothing native exists.
//
// A mask lane is either 0 or all ones. Other values give undefined
// results, and nothing here normalizes them.
package mask

import (
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// Emitter is the part of a lowering session the mask helpers need
type Emitter interface {
	Emit(op vop.VectorOp, ops vop.Operands) error
	Vec() (operand.PReg, error)
	FreeVec(regs ...operand.PReg)
}

// MergeLogic is dst = (mask & ifNonZero) | (^mask & ifZero) with three
// bitwise operations, for targets without a blend.
func MergeLogic(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	m, z, nz := ops.Src1, ops.Src2, ops.Src3
	t1, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t1)
	t2, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t2)
	if err := e.Emit(vop.And(op.Kind, op.Width, t1, m, nz)); err != nil {
		return err
	}
	if err := e.Emit(vop.AndNot(op.Kind, op.Width, t2, m, z)); err != nil {
		return err
	}
	return e.Emit(vop.Or(op.Kind, op.Width, ops.Dst, t1, t2))
}

// Reducer returns the bitwise operation that folds the slices of a wide
// mask into one native mask with the same branch outcome
func Reducer(cond vop.BranchCond) vop.Code {
	if cond == vop.BranchFull {
		return vop.OpAnd
	}
	return vop.OpOr
}

// Combine folds the slices of a wide mask into a vector temporary. The
// caller frees the returned register.
func Combine(e Emitter, bits int, cond vop.BranchCond, slices []operand.Operand) (operand.PReg, error) {
	if len(slices) == 0 {
		return 0, diag.Internal("no mask slices to combine")
	}
	t, err := e.Vec()
	if err != nil {
		return 0, err
	}
	if len(slices) == 1 {
		if err := e.Emit(vop.Move(vop.KindUint, bits, t, slices[0])); err != nil {
			e.FreeVec(t)
			return 0, err
		}
		return t, nil
	}
	code := Reducer(cond)
	op := vop.VectorOp{Code: code, Kind: vop.KindUint, Width: bits, Arity: 2}
	if err := e.Emit(op, vop.Operands{Dst: t, Src1: slices[0], Src2: slices[1]}); err != nil {
		e.FreeVec(t)
		return 0, err
	}
	for _, s := range slices[2:] {
		if err := e.Emit(op, vop.Operands{Dst: t, Src1: t, Src2: s}); err != nil {
			e.FreeVec(t)
			return 0, err
		}
	}
	return t, nil
}

// Holds evaluates a branch condition over the bytes of a mask
func Holds(cond vop.BranchCond, m []byte) bool {
	want := byte(0)
	if cond == vop.BranchFull {
		want = 0xFF
	}
	for _, b := range m {
		if b != want {
			return false
		}
	}
	return true
}

// MergeBytes is the reference merge over raw bytes
func MergeBytes(dst, m, ifZero, ifNonZero []byte) {
	for i := range dst {
		dst[i] = m[i]&ifNonZero[i] | ^m[i]&ifZero[i]
	}
}
