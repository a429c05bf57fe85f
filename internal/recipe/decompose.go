package recipe

import (
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/vop"
)

func init() {
	register(&Recipe{
		ID:           profile.RecipeScalarLoop,
		Family:       Decomposition,
		GTemps:       3,
		ScratchSlots: 2,
		Precision:    "exact",
		Expand:       scalarLoop,
	})
}

// scalarLoop stores the sources to the two scratch slots, computes every
// lane with 64-bit scalar instructions into slot 0 and reloads it.
// Supports saturating add/sub, multiply and all shifts. Shift counts are
// unsigned; counts at or past the lane width give zero, or sign fill for
// arithmetic shifts.
func scalarLoop(e Emitter, op vop.VectorOp, ops vop.Operands) error {
	w := op.Width
	lanes := e.Bytes() * 8 / w
	step := int64(w / 8)
	slot0 := e.Scratch().WithClass(operand.ClassVector)
	slot1 := slot0.At(int64(e.Bytes()))

	g, err := gprs(e, 3)
	if err != nil {
		return err
	}
	defer e.FreeGPR(g...)
	x, y, c := g[0], g[1], g[2]

	// lanes are widened to 64 bits with the extension the operation needs
	ext, countExt := op.Kind, vop.KindUint
	switch op.Code {
	case vop.OpShrImm, vop.OpShrVar:
		ext = vop.KindUint
	case vop.OpSraImm, vop.OpSraVar:
		ext = vop.KindInt
	case vop.OpAddSat, vop.OpSubSat, vop.OpMul:
		countExt = op.Kind
	case vop.OpShlImm, vop.OpShlVar:
	default:
		return diag.Internal("scalar loop does not handle %s", op)
	}

	_, shifts := scalarShift[op.Code]
	s := seq{e: e}
	s.emit(vop.Store(op.Kind, w, slot0, ops.Src1))
	imm, isImm := ops.Src2.(operand.Imm)
	twice := false
	switch {
	case isImm && shifts:
		n := min(uint64(imm), uint64(w))
		if n == 64 {
			n, twice = 32, true
		}
		s.emit(vop.SMovImm(y, int64(n)))
	case isImm:
		s.emit(vop.SMovImm(y, int64(imm)))
	default:
		s.emit(vop.Store(op.Kind, w, slot1, ops.Src2))
	}
	lo, hi := laneRange(op.Kind, w)
	for i := 0; i < lanes; i++ {
		off := int64(i) * step
		if !isImm {
			s.emit(vop.SLoad(countExt, w, y, slot1.At(off)))
			if shifts {
				twice = clampCount(&s, w, x, y, c)
			}
		}
		s.emit(vop.SLoad(ext, w, x, slot0.At(off)))
		switch op.Code {
		case vop.OpAddSat:
			s.emit(vop.SAdd(x, x, y))
		case vop.OpSubSat:
			s.emit(vop.SSub(x, x, y))
		case vop.OpMul:
			s.emit(vop.SMul(x, x, y))
		default:
			sh := scalarShift[op.Code]
			if twice && !isImm {
				// y holds a count of at most 64, c half of it
				s.emit(sh(x, x, c))
				s.emit(vop.SSub(y, y, c))
			} else if twice {
				s.emit(sh(x, x, y))
			}
			s.emit(sh(x, x, y))
		}
		if op.Code == vop.OpAddSat || op.Code == vop.OpSubSat {
			s.emit(vop.SMovImm(c, hi))
			s.emit(vop.SMin(x, x, c))
			s.emit(vop.SMovImm(c, lo))
			s.emit(vop.SMax(x, x, c))
		}
		s.emit(vop.SStore(w, slot0.At(off), x))
	}
	s.emit(vop.Load(op.Kind, w, ops.Dst, slot0))
	return s.err
}

var scalarShift = map[vop.Code]func(dst, a, b operand.GPR) (vop.VectorOp, vop.Operands){
	vop.OpShlImm: vop.SShl, vop.OpShlVar: vop.SShl,
	vop.OpShrImm: vop.SShr, vop.OpShrVar: vop.SShr,
	vop.OpSraImm: vop.SSar, vop.OpSraVar: vop.SSar,
}

// clampCount limits the zero extended lane count in y to the lane width,
// so counts at or past it give zero or sign fill like the vector shifts
// do. Scalar shifts only see the low six bits of the count, so a 64-bit
// lane shifts in two halves: y gets min(count, 64) and c half of it, and
// the result reports whether the caller must shift twice. x is clobbered.
func clampCount(s *seq, w int, x, y, c operand.GPR) bool {
	if w < 64 {
		s.emit(vop.SMovImm(c, int64(w)))
		s.emit(vop.SMin(y, y, c))
		return false
	}
	// c = 1 when count >= 64, else 0
	s.emit(vop.SMovImm(x, 6))
	s.emit(vop.SShr(c, y, x))
	s.emit(vop.SMovImm(x, 1))
	s.emit(vop.SMin(c, c, x))
	// y += c * (64 - y)
	s.emit(vop.SMovImm(x, 64))
	s.emit(vop.SSub(x, x, y))
	s.emit(vop.SMul(x, x, c))
	s.emit(vop.SAdd(y, y, x))
	s.emit(vop.SMovImm(x, 1))
	s.emit(vop.SShr(c, y, x))
	return true
}

// laneRange returns the representable range of a lane
func laneRange(k vop.Kind, w int) (lo, hi int64) {
	if k == vop.KindInt {
		return -1 << (w - 1), 1<<(w-1) - 1
	}
	if w == 64 {
		return 0, -1
	}
	return 0, 1<<w - 1
}
