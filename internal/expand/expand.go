// Package expand splits an operation requested at a logical vector width
// into native-width operations, one per register slice, and selects each
// of them.
package expand

import (
	"slices"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/selector"
	"github.com/xyproto/vlower/internal/vop"
)

// Slice is the native-width part of a wide operation
type Slice struct {
	Index int
	Ops   vop.Operands
	Sel   selector.Selection
}

// Plan is a wide operation broken into slices, in lowering order
type Plan struct {
	Factor int
	Slices []Slice
}

// Factor returns the pairing factor of a request of bits on p
func Factor(p *profile.Profile, bits int) (int, error) {
	native := p.NativeBits
	if bits <= 0 || bits%native != 0 {
		return 0, diag.New(diag.CategoryConfig).Profile(p.Name).
			Detail("width %d is not a multiple of the native %d bits", bits, native).Build()
	}
	f := bits / native
	if !slices.Contains(p.PairingFactors(), f) {
		return 0, diag.New(diag.CategoryConfig).Profile(p.Name).
			Detail("pairing factor %d (%d bits) not supported", f, bits).Build()
	}
	return f, nil
}

// Split derives the operands of every slice. Logical registers go through
// the pairing table, vector memory operands advance by one native vector
// per slice, everything else is passed to every slice unchanged.
// Operations that do not work on vector registers are not split.
func Split(p *profile.Profile, factor int, op vop.VectorOp, ops vop.Operands) ([]vop.Operands, error) {
	if op.Code.Class() != vop.ClassVector {
		return []vop.Operands{ops}, nil
	}
	out := make([]vop.Operands, factor)
	for i := range out {
		var err error
		out[i] = ops.Map(func(x operand.Operand) operand.Operand {
			y, e := sliceOf(p, x, i, factor)
			if e != nil && err == nil {
				err = e
			}
			return y
		})
		if err != nil {
			return nil, diag.WithContext(err, p.Name, op.String())
		}
	}
	return out, nil
}

func sliceOf(p *profile.Profile, x operand.Operand, i, factor int) (operand.Operand, error) {
	switch v := x.(type) {
	case operand.VReg:
		return p.Slice(v, i, factor)
	case operand.PReg:
		if factor != 1 {
			return nil, diag.New(diag.CategoryConfig).
				Detail("physical register %s in an operation of pairing factor %d", v, factor).Build()
		}
		return v, nil
	case operand.Mem:
		if v.Class == operand.ClassVector {
			return v.At(int64(i * p.NativeBytes())), nil
		}
	}
	return x, nil
}

// Expand plans op at the given width. Every slice is selected on its own;
// native slices are checked against the aliasing constraint of their
// descriptor before the plan is returned, so a violation emits nothing.
func Expand(p *profile.Profile, c selector.Compat, op vop.VectorOp, bits int, ops vop.Operands) (Plan, error) {
	factor := 1
	if op.Code.Class() == vop.ClassVector {
		f, err := Factor(p, bits)
		if err != nil {
			return Plan{}, diag.WithContext(err, p.Name, op.String())
		}
		factor = f
	}
	parts, err := Split(p, factor, op, ops)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Factor: factor, Slices: make([]Slice, 0, len(parts))}
	for i, sops := range parts {
		sel, err := selector.Select(op, p, c)
		if err != nil {
			return Plan{}, err
		}
		if sel.Native() {
			if err := CheckAliasing(sel.Desc(), sops); err != nil {
				return Plan{}, diag.WithContext(err, p.Name, sel.Op.String())
			}
		}
		plan.Slices = append(plan.Slices, Slice{Index: i, Ops: sops, Sel: sel})
	}
	return plan, nil
}

// CheckAliasing rejects operands a destructive two-operand form cannot
// encode: the destination is written with the first source before the
// second is read, so it may only alias the second source when it also
// aliases the first.
func CheckAliasing(d *isa.Desc, ops vop.Operands) error {
	if d == nil || d.Constraint != isa.ConstraintDstNotSrc2 {
		return nil
	}
	first, second := ops.Src1, ops.Src2
	if d.Swap {
		first, second = second, first
	}
	if operand.Same(ops.Dst, second) && !operand.Same(ops.Dst, first) {
		return diag.Aliasing("%s: destination %s aliases source %s", d.Name, ops.Dst, second)
	}
	return nil
}
