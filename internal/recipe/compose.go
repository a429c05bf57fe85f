package recipe

import (
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/mask"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/vop"
)

func init() {
	for _, r := range []*Recipe{
		{ID: profile.RecipeMulAddUnfused, VTemps: 1, Expand: mulAddUnfused,
			Precision: "product rounded before the add"},
		{ID: profile.RecipeCompareNot, VTemps: 1, Expand: compareNot,
			Precision: "exact; unordered float lanes compare not-equal"},
		{ID: profile.RecipeCompareBias, VTemps: 2, Expand: compareBias},
		{ID: profile.RecipeCmpSelect, VTemps: 1, Expand: cmpSelect},
		{ID: profile.RecipeLoadOp, VTemps: 1, Expand: loadOp},
		{ID: profile.RecipeNotXor, VTemps: 1, Expand: notXor},
		{ID: profile.RecipeNegSub, VTemps: 1, Expand: negSub},
		{ID: profile.RecipeNegXor, VTemps: 1, Expand: negXor},
		{ID: profile.RecipeShiftViaVar, VTemps: 1, Expand: shiftViaVar},
		{ID: profile.RecipeShiftNegate, VTemps: 1, Expand: shiftNegate},
		{ID: profile.RecipeSplatImm, GTemps: 1, Expand: splatImm},
		{ID: profile.RecipeSplatNarrow, GTemps: 2, Expand: splatNarrow},
		{ID: profile.RecipeRoundConvert, VTemps: 1, Expand: roundConvert},
		{ID: profile.RecipeRoundControl, Expand: roundControl},
		{ID: profile.RecipeMergeLogic, VTemps: 2, Expand: mergeLogic},
		{ID: profile.RecipeSplitHalves, VTemps: 2, Expand: splitHalves},
	} {
		r.Family = Composition
		if r.Precision == "" {
			r.Precision = "exact"
		}
		register(r)
	}
}

// mergeLogic is a blend as AND/ANDN/OR, for targets without one
func mergeLogic(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	return mask.MergeLogic(e, op, ops)
}

// mulAddUnfused is dst = dst + a*b with the product rounded
func mulAddUnfused(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t)
	s := seq{e: e}
	s.emit(vop.Mul(op.Kind, op.Width, t, ops.Src1, ops.Src2))
	s.emit(vop.Add(op.Kind, op.Width, ops.Dst, ops.Dst, t))
	return s.err
}

// compareNot computes the negated compare and inverts it
func compareNot(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t)
	s := seq{e: e}
	s.emit(vop.Compare(op.Code.Negated(), op.Kind, op.Width, t, ops.Src1, ops.Src2))
	s.emit(vop.Not(op.Kind, op.Width, ops.Dst, t))
	return s.err
}

// compareBias flips the sign bit of both sources so that a signed compare
// orders them as unsigned values
func compareBias(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := vecs(e, 2)
	if err != nil {
		return err
	}
	defer e.FreeVec(t...)
	bias, a := t[0], t[1]
	w := op.Width
	s := seq{e: e}
	s.splat(vop.KindUint, w, bias, -1<<(w-1))
	s.emit(vop.Xor(vop.KindUint, w, a, ops.Src1, bias))
	s.emit(vop.Xor(vop.KindUint, w, bias, ops.Src2, bias))
	s.emit(vop.Compare(op.Code, vop.KindInt, w, ops.Dst, a, bias))
	return s.err
}

// cmpSelect builds min and max from a greater-than mask and a merge
func cmpSelect(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	m, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(m)
	a, b := ops.Src1, ops.Src2
	s := seq{e: e}
	s.emit(vop.CmpGT(op.Kind, op.Width, m, a, b))
	switch op.Code {
	case vop.OpMin:
		s.emit(vop.Merge(op.Kind, op.Width, ops.Dst, m, a, b))
	case vop.OpMax:
		s.emit(vop.Merge(op.Kind, op.Width, ops.Dst, m, b, a))
	default:
		return diag.Internal("cmp-select does not handle %s", op)
	}
	return s.err
}

// loadOp loads the memory operand into a temporary and applies the
// register form
func loadOp(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t)
	s := seq{e: e}
	switch m := ops.Src2.(type) {
	case operand.Mem:
		s.emit(vop.Load(op.Kind, op.Width, t, m.WithClass(operand.ClassVector)))
		ops.Src2 = t
	default:
		m1, ok := ops.Src1.(operand.Mem)
		if !ok {
			return diag.Internal("load-op without a memory operand: %s", op)
		}
		s.emit(vop.Load(op.Kind, op.Width, t, m1.WithClass(operand.ClassVector)))
		ops.Src1 = t
	}
	s.emit(op.WithForm(vop.FormRegReg), ops)
	return s.err
}

// notXor is dst = a ^ all-ones
func notXor(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t)
	s := seq{e: e}
	s.emit(vop.CmpEQ(vop.KindInt, 32, t, t, t))
	s.emit(vop.Xor(op.Kind, op.Width, ops.Dst, ops.Src1, t))
	return s.err
}

// negSub is dst = 0 - a
func negSub(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t)
	s := seq{e: e}
	s.emit(vop.Zero(op.Kind, op.Width, t))
	s.emit(vop.Sub(op.Kind, op.Width, t, t, ops.Src1))
	s.emit(vop.Move(op.Kind, op.Width, ops.Dst, t))
	return s.err
}

// negXor flips the sign bit of float lanes
func negXor(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t)
	s := seq{e: e}
	s.splat(op.Kind, op.Width, t, -1<<(op.Width-1))
	s.emit(vop.Xor(op.Kind, op.Width, ops.Dst, ops.Src1, t))
	return s.err
}

var varShift = map[vop.Code]vop.Code{
	vop.OpShlImm: vop.OpShlVar,
	vop.OpShrImm: vop.OpShrVar,
	vop.OpSraImm: vop.OpSraVar,
}

// shiftViaVar splats the immediate count and shifts per lane
func shiftViaVar(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	count, ok := ops.Src2.(operand.Imm)
	code, known := varShift[op.Code]
	if !ok || !known {
		return diag.Internal("shift-via-var needs an immediate shift, got %s", op)
	}
	t, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t)
	s := seq{e: e}
	s.splat(vop.KindUint, op.Width, t, int64(count))
	s.emit(vop.VectorOp{Code: code, Kind: op.Kind, Width: op.Width, Arity: 2},
		vop.Operands{Dst: ops.Dst, Src1: ops.Src1, Src2: t})
	return s.err
}

// shiftNegate shifts right by shifting left by negated counts. The sign
// of the lane kind picks a logical or arithmetic shift.
func shiftNegate(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	kind := vop.KindUint
	switch op.Code {
	case vop.OpSraVar:
		kind = vop.KindInt
	case vop.OpShrVar:
	default:
		return diag.Internal("shift-negate does not handle %s", op)
	}
	t, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t)
	s := seq{e: e}
	s.emit(vop.Neg(vop.KindInt, op.Width, t, ops.Src2))
	s.emit(vop.ShlVar(kind, op.Width, ops.Dst, ops.Src1, t))
	return s.err
}

// replicate repeats the low bits-wide pattern of v over 32 bits
func replicate(v int64, bits int) int64 {
	p := uint32(v) & (1<<bits - 1)
	for n := bits; n < 32; n *= 2 {
		p |= p << n
	}
	return int64(p)
}

// splatImm moves the immediate to a general purpose register and splats
// it. Lanes narrower than 32 bits are splatted as a replicated 32-bit
// pattern.
func splatImm(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	imm, ok := ops.Src1.(operand.Imm)
	if !ok {
		return diag.Internal("splat-imm without an immediate: %s", op)
	}
	g, err := e.GPR()
	if err != nil {
		return err
	}
	defer e.FreeGPR(g)
	kind, w, v := op.Kind, op.Width, int64(imm)
	if w < 32 {
		kind, w, v = vop.KindUint, 32, replicate(v, w)
	}
	s := seq{e: e}
	s.emit(vop.SMovImm(g, v))
	s.emit(vop.Splat(kind, w, ops.Dst, g))
	return s.err
}

// splatNarrow replicates an 8 or 16-bit register value over 32 bits by
// multiplication and splats that
func splatNarrow(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	src, ok := ops.Src1.(operand.GPR)
	if !ok {
		return diag.Internal("splat-narrow without a register source: %s", op)
	}
	g, err := gprs(e, 2)
	if err != nil {
		return err
	}
	defer e.FreeGPR(g...)
	s := seq{e: e}
	s.emit(vop.SZext(op.Width, g[0], src))
	s.emit(vop.SMovImm(g[1], replicate(1, op.Width)))
	s.emit(vop.SMul(g[0], g[0], g[1]))
	s.emit(vop.Splat(vop.KindUint, 32, ops.Dst, g[0]))
	return s.err
}

// roundConvert rounds to an integral float first, after which the
// truncating conversion is exact
func roundConvert(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(t)
	s := seq{e: e}
	s.emit(vop.Round(op.Width, op.Round, t, ops.Src1))
	s.emit(vop.CvtFToI(op.Kind, op.Width, vop.RoundZero, ops.Dst, t))
	return s.err
}

// roundControl brackets a current-mode operation with a save, modify and
// restore of the floating point control register
func roundControl(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	slot := e.Scratch().At(e.Profile().ControlSlot())
	s := seq{e: e}
	s.emit(vop.CtlSave(slot))
	s.emit(vop.CtlSetRound(op.Round, slot))
	s.emit(op.WithRound(vop.RoundCurrent), ops)
	s.emit(vop.CtlRestore(slot))
	return s.err
}

// splitHalves runs an operation the full-width encoding lacks as two
// half-width operations. The low half is done in place, which clears the
// upper half of dst, and the high half result is inserted back.
func splitHalves(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	h, err := e.Half()
	if err != nil {
		return err
	}
	t, err := vecs(e, 2)
	if err != nil {
		return err
	}
	defer e.FreeVec(t...)
	hiA, hiB := t[0], t[1]
	hi := vop.Operands{Dst: hiA, Src1: hiA, Src2: ops.Src2}

	s := seq{e: e}
	s.emit(vop.ExtractHi(op.Kind, op.Width, hiA, ops.Src1))
	if _, isImm := ops.Src2.(operand.Imm); !isImm && ops.Src2 != nil {
		s.emit(vop.ExtractHi(op.Kind, op.Width, hiB, ops.Src2))
		hi.Src2 = hiB
	}
	if s.err != nil {
		return s.err
	}
	if err := h.Emit(op, hi); err != nil {
		return err
	}
	if err := h.Emit(op, ops); err != nil {
		return err
	}
	s.emit(vop.InsertHi(op.Kind, op.Width, ops.Dst, ops.Dst, hiA))
	return s.err
}
