// Package addr resolves memory operands against a profile's displacement
// fields. A displacement that does not fit is never reported to the caller:
// base+displacement is computed into the profile's temp base register and
// the operand is rewritten to use it with a zero displacement.
package addr

import (
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/vop"
)

// Step is one scalar instruction of an address materialization
type Step struct {
	Op  vop.VectorOp
	Ops vop.Operands
}

// Resolved is a memory operand whose displacement fits its field, plus
// the steps that must run before the instruction using it
type Resolved struct {
	Mem   operand.Mem
	Steps []Step
}

// Direct reports whether no materialization was needed
func (r Resolved) Direct() bool {
	return len(r.Steps) == 0
}

// Resolve rewrites m for p. The temp base register it may write is only
// valid until the next Resolve.
func Resolve(p *profile.Profile, m operand.Mem) (Resolved, error) {
	if p.DispFits(m.Class, m.Disp) {
		return Resolved{Mem: m}, nil
	}
	tb := p.TempBase
	out := operand.Mem{Base: tb, Class: m.Class}
	if AddImmFits(p.Arch, m.Disp) {
		return Resolved{Mem: out, Steps: []Step{step(vop.SAddImm(tb, m.Base, m.Disp))}}, nil
	}
	if m.Base == tb {
		return Resolved{}, diag.New(diag.CategoryAliasing).Profile(p.Name).
			Detail("memory operand %s uses the reserved temp base register", m).Build()
	}
	return Resolved{Mem: out, Steps: []Step{
		step(vop.SMovImm(tb, m.Disp)),
		step(vop.SAdd(tb, tb, m.Base)),
	}}, nil
}

// AddImmFits reports whether d fits the immediate of the architecture's
// add-immediate instruction
func AddImmFits(a isa.Arch, d int64) bool {
	switch a {
	case isa.ArchX86_64:
		return d >= -1<<31 && d < 1<<31
	case isa.ArchARM64:
		// ADD or SUB with a 12-bit unsigned immediate
		return d > -4096 && d < 4096
	case isa.ArchPPC64LE:
		return d >= -32768 && d <= 32767
	}
	return false
}

func step(op vop.VectorOp, ops vop.Operands) Step {
	return Step{Op: op, Ops: ops}
}
