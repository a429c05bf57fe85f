package recipe

import (
	"errors"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/vop"
)

// Need is one operation a recipe emits, with the temporaries the recipe
// holds while emitting it
type Need struct {
	Profile *profile.Profile // profile the operation is lowered on
	Key     profile.Key
	VHeld   int
	GHeld   int
}

// Usage is what one expansion of a recipe did
type Usage struct {
	Needs []Need
	VPeak int // vector temporaries held at once by the recipe itself
	GPeak int
}

// recorder is an Emitter that records instead of lowering
type recorder struct {
	p     *profile.Profile
	usage *Usage
	vHeld *int
	gHeld *int
	next  *int
}

func newRecorder(p *profile.Profile) *recorder {
	var v, g, n int
	return &recorder{p: p, usage: &Usage{}, vHeld: &v, gHeld: &g, next: &n}
}

func (r *recorder) Emit(op vop.VectorOp, ops vop.Operands) error {
	r.usage.Needs = append(r.usage.Needs, Need{
		Profile: r.p,
		Key:     profile.KeyOf(op, 0),
		VHeld:   *r.vHeld,
		GHeld:   *r.gHeld,
	})
	return nil
}

func (r *recorder) Vec() (operand.PReg, error) {
	*r.vHeld++
	if *r.vHeld > r.usage.VPeak {
		r.usage.VPeak = *r.vHeld
	}
	*r.next++
	return operand.PReg(100 + *r.next), nil
}

func (r *recorder) FreeVec(regs ...operand.PReg) { *r.vHeld -= len(regs) }

func (r *recorder) GPR() (operand.GPR, error) {
	*r.gHeld++
	if *r.gHeld > r.usage.GPeak {
		r.usage.GPeak = *r.gHeld
	}
	*r.next++
	return operand.GPR(100 + *r.next), nil
}

func (r *recorder) FreeGPR(regs ...operand.GPR) { *r.gHeld -= len(regs) }

func (r *recorder) Profile() *profile.Profile { return r.p }
func (r *recorder) Bytes() int                { return r.p.NativeBytes() }
func (r *recorder) Scratch() operand.Mem      { return operand.Mem{Base: 1} }

func (r *recorder) Half() (Emitter, error) {
	if r.p.Half == nil {
		return nil, diag.New(diag.CategoryConfig).Profile(r.p.Name).
			Detail("no half-width profile").Build()
	}
	h := *r
	h.p = r.p.Half
	return &h, nil
}

// Sample builds an operation and operands of the shape k describes
func Sample(k profile.Key) (vop.VectorOp, vop.Operands) {
	op := vop.VectorOp{Code: k.Code, Kind: k.Kind, Width: k.Width, Arity: k.Code.Arity(), Form: k.Form, Round: k.Round}
	var last operand.Operand = operand.PReg(2)
	switch k.Form {
	case vop.FormRegImm:
		last = operand.Imm(3)
	case vop.FormRegMem:
		last = operand.Mem{Base: 2, Disp: 64}
	}
	ops := vop.Operands{Dst: operand.PReg(0)}
	switch {
	case k.Code == vop.OpStore:
		ops = vop.Operands{Dst: last, Src1: operand.PReg(1)}
	case k.Code == vop.OpSplat && k.Form == vop.FormRegReg:
		ops.Src1 = operand.GPR(0)
	case k.Code == vop.OpMerge:
		ops.Src1, ops.Src2, ops.Src3 = operand.PReg(1), operand.PReg(2), operand.PReg(3)
	case k.Code == vop.OpMaskBranch:
		ops = vop.Operands{Src1: operand.PReg(1), Src2: operand.Label(0)}
	case op.Arity == 1:
		ops.Src1 = last
	default:
		ops.Src1, ops.Src2 = operand.PReg(1), last
	}
	return op, ops
}

// Record runs the recipe of a fallback entry against a recording emitter
func Record(p *profile.Profile, k profile.Key, id string) (*Usage, error) {
	r, ok := registry[id]
	if !ok {
		return nil, diag.New(diag.CategoryConfig).Profile(p.Name).Op(k.String()).
			Detail("unknown recipe %q", id).Build()
	}
	rec := newRecorder(p)
	op, ops := Sample(k)
	if err := r.Expand(rec, op, ops); err != nil {
		return nil, diag.WithContext(err, p.Name, k.String())
	}
	return rec.usage, nil
}

type visit uint8

const (
	unvisited visit = iota
	inProgress
	done
)

type node struct {
	p string
	k profile.Key
}

// cost is the total temporaries needed to lower one key, nested
// expansions included
type cost struct {
	v, g int
}

type validator struct {
	state  map[node]visit
	costs  map[node]cost
	failed map[node]error
	errs   []error
}

// Validate checks that every fallback of p can be expanded: its recipe
// exists, everything the recipe emits resolves on the profile natively or
// through further recipes without cycles, and the nested temporaries fit
// in the profile's reserved registers.
func Validate(p *profile.Profile) error {
	v := &validator{state: map[node]visit{}, costs: map[node]cost{}, failed: map[node]error{}}
	for _, e := range p.Entries() {
		if e.Cap.Kind != profile.CapFallback {
			continue
		}
		c, err := v.resolve(p, e.Key)
		if err != nil {
			v.errs = append(v.errs, err)
			continue
		}
		if c.v > len(p.VectorTemps) || c.g > len(p.ScalarTemps) {
			v.errs = append(v.errs, diag.New(diag.CategoryConfig).Profile(p.Name).Op(e.Key.String()).
				Detail("needs %d vector and %d scalar temporaries, profile reserves %d and %d",
					c.v, c.g, len(p.VectorTemps), len(p.ScalarTemps)).Build())
		}
	}
	return errors.Join(dedupe(v.errs)...)
}

func (v *validator) resolve(p *profile.Profile, k profile.Key) (cost, error) {
	n := node{p: p.Name, k: k}
	switch v.state[n] {
	case done:
		return v.costs[n], v.failed[n]
	case inProgress:
		return cost{}, diag.New(diag.CategoryConfig).Profile(p.Name).Op(k.String()).
			Detail("recipe cycle").Build()
	}
	c, err := p.Lookup(k)
	if err != nil {
		return cost{}, err
	}
	if c.Kind == profile.CapNative {
		v.state[n] = done
		v.costs[n] = cost{v: c.Desc.VTemps, g: c.Desc.GTemps}
		return v.costs[n], nil
	}
	v.state[n] = inProgress
	total, err := v.expand(p, k, c.Recipe)
	v.state[n] = done
	v.costs[n] = total
	v.failed[n] = err
	return total, err
}

func (v *validator) expand(p *profile.Profile, k profile.Key, id string) (cost, error) {
	u, err := Record(p, k, id)
	if err != nil {
		return cost{}, err
	}
	total := cost{v: u.VPeak, g: u.GPeak}
	for _, need := range u.Needs {
		sub, err := v.resolve(need.Profile, need.Key)
		if err != nil {
			return cost{}, diag.New(diag.CategoryConfig).Profile(p.Name).Op(k.String()).
				Detail("recipe %s needs %s on %s", id, need.Key, need.Profile.Name).Cause(err).Build()
		}
		total.v = max(total.v, need.VHeld+sub.v)
		total.g = max(total.g, need.GHeld+sub.g)
	}
	return total, nil
}

// dedupe drops repeated messages, which nested failures produce once per
// entry that reaches them
func dedupe(errs []error) []error {
	seen := make(map[string]bool, len(errs))
	out := errs[:0]
	for _, err := range errs {
		if s := err.Error(); !seen[s] {
			seen[s] = true
			out = append(out, err)
		}
	}
	return out
}
