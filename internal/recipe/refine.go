package recipe

import (
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/vop"
)

func init() {
	register(&Recipe{
		ID:        profile.RecipeRcpNewton,
		Family:    Refinement,
		VTemps:    2,
		Refines:   true,
		Precision: "relative error at most 2^-22 (float32) or 2^-50 (float64) for finite non-zero inputs; not correctly rounded",
		Expand:    rcpNewton,
	})
	register(&Recipe{
		ID:        profile.RecipeRsqNewton,
		Family:    Refinement,
		VTemps:    2,
		Refines:   true,
		Precision: "relative error at most 2^-21 (float32) or 2^-49 (float64) for finite positive inputs; not correctly rounded",
		Expand:    rsqNewton,
	})
	register(&Recipe{
		ID:        profile.RecipeRcpDivide,
		Family:    Refinement,
		VTemps:    1,
		Precision: "correctly rounded (IEEE division)",
		Expand:    rcpDivide,
	})
	register(&Recipe{
		ID:        profile.RecipeRsqDivide,
		Family:    Refinement,
		VTemps:    2,
		Precision: "at most one rounding error each in sqrt and division",
		Expand:    rsqDivide,
	})
	register(&Recipe{
		ID:        profile.RecipeRcpStep,
		Family:    Refinement,
		VTemps:    2,
		Precision: "product rounded before the subtraction",
		Expand:    rcpStep,
	})
	register(&Recipe{
		ID:        profile.RecipeRsqStep,
		Family:    Refinement,
		VTemps:    2,
		Precision: "product rounded before the subtraction",
		Expand:    rsqStep,
	})
}

// rcpNewton refines x ~ 1/a with x = x * (2 - a*x)
func rcpNewton(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := vecs(e, 2)
	if err != nil {
		return err
	}
	defer e.FreeVec(t...)
	x, step := t[0], t[1]
	w := op.Width
	s := seq{e: e}
	s.emit(vop.RcpEst(w, x, ops.Src1))
	for i := e.Profile().RefineRounds(w); i > 0; i-- {
		s.emit(vop.RcpStep(w, step, ops.Src1, x))
		s.emit(vop.Mul(vop.KindFloat, w, x, x, step))
	}
	s.emit(vop.Move(vop.KindFloat, w, ops.Dst, x))
	return s.err
}

// rsqNewton refines x ~ 1/sqrt(a) with x = x * (3 - a*x*x) / 2
func rsqNewton(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := vecs(e, 2)
	if err != nil {
		return err
	}
	defer e.FreeVec(t...)
	x, step := t[0], t[1]
	w := op.Width
	s := seq{e: e}
	s.emit(vop.RsqEst(w, x, ops.Src1))
	for i := e.Profile().RefineRounds(w); i > 0; i-- {
		s.emit(vop.Mul(vop.KindFloat, w, step, x, x))
		s.emit(vop.RsqStep(w, step, ops.Src1, step))
		s.emit(vop.Mul(vop.KindFloat, w, x, x, step))
	}
	s.emit(vop.Move(vop.KindFloat, w, ops.Dst, x))
	return s.err
}

func rcpDivide(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	one, err := e.Vec()
	if err != nil {
		return err
	}
	defer e.FreeVec(one)
	w := op.Width
	s := seq{e: e}
	s.splatFloat(w, one, 1)
	s.emit(vop.Div(vop.KindFloat, w, one, one, ops.Src1))
	s.emit(vop.Move(vop.KindFloat, w, ops.Dst, one))
	return s.err
}

func rsqDivide(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := vecs(e, 2)
	if err != nil {
		return err
	}
	defer e.FreeVec(t...)
	root, one := t[0], t[1]
	w := op.Width
	s := seq{e: e}
	s.emit(vop.Sqrt(vop.KindFloat, w, root, ops.Src1))
	s.splatFloat(w, one, 1)
	s.emit(vop.Div(vop.KindFloat, w, one, one, root))
	s.emit(vop.Move(vop.KindFloat, w, ops.Dst, one))
	return s.err
}

// rcpStep is dst = 2 - a*b
func rcpStep(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := vecs(e, 2)
	if err != nil {
		return err
	}
	defer e.FreeVec(t...)
	prod, two := t[0], t[1]
	w := op.Width
	s := seq{e: e}
	s.emit(vop.Mul(vop.KindFloat, w, prod, ops.Src1, ops.Src2))
	s.splatFloat(w, two, 2)
	s.emit(vop.Sub(vop.KindFloat, w, ops.Dst, two, prod))
	return s.err
}

// rsqStep is dst = (3 - a*b) / 2
func rsqStep(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	t, err := vecs(e, 2)
	if err != nil {
		return err
	}
	defer e.FreeVec(t...)
	u, c := t[0], t[1]
	w := op.Width
	s := seq{e: e}
	s.emit(vop.Mul(vop.KindFloat, w, u, ops.Src1, ops.Src2))
	s.splatFloat(w, c, 3)
	s.emit(vop.Sub(vop.KindFloat, w, c, c, u))
	s.splatFloat(w, u, 0.5)
	s.emit(vop.Mul(vop.KindFloat, w, ops.Dst, c, u))
	return s.err
}
