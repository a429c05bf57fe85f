package lower

import (
	"github.com/samber/lo"

	"github.com/xyproto/vlower/internal/addr"
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/expand"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/recipe"
	"github.com/xyproto/vlower/internal/selector"
	"github.com/xyproto/vlower/internal/vop"
)

// frame lowers native-width operations on one profile. The session's top
// frame works on the session profile; Half returns a frame on the
// half-width profile sharing the session's temporaries and buffer.
type frame struct {
	s     *Session
	p     *profile.Profile
	bytes int
}

var _ recipe.Emitter = (*frame)(nil)

func (f *frame) Profile() *profile.Profile { return f.p }
func (f *frame) Bytes() int                { return f.bytes }
func (f *frame) Scratch() operand.Mem      { return f.s.cfg.Scratch }

func (f *frame) Half() (recipe.Emitter, error) {
	if f.p.Half == nil {
		return nil, diag.New(diag.CategoryConfig).Profile(f.p.Name).Detail("no half-width profile").Build()
	}
	return &frame{s: f.s, p: f.p.Half, bytes: f.p.Half.NativeBytes()}, nil
}

func (f *frame) Vec() (operand.PReg, error) {
	s := f.s
	if len(s.vfree) == 0 {
		return 0, diag.Internal("out of vector temporaries")
	}
	r := s.vfree[len(s.vfree)-1]
	s.vfree = s.vfree[:len(s.vfree)-1]
	return r, nil
}

func (f *frame) FreeVec(regs ...operand.PReg) {
	f.s.vfree = append(f.s.vfree, regs...)
}

func (f *frame) GPR() (operand.GPR, error) {
	s := f.s
	if len(s.gfree) == 0 {
		return 0, diag.Internal("out of scalar temporaries")
	}
	r := s.gfree[len(s.gfree)-1]
	s.gfree = s.gfree[:len(s.gfree)-1]
	return r, nil
}

func (f *frame) FreeGPR(regs ...operand.GPR) {
	f.s.gfree = append(f.s.gfree, regs...)
}

// Emit selects and lowers one native-width operation
func (f *frame) Emit(op vop.VectorOp, ops vop.Operands) error {
	sel, err := selector.Select(op, f.p, f.s.cfg.Compat)
	if err != nil {
		return err
	}
	return f.lower(sel, ops)
}

func (f *frame) lower(sel selector.Selection, ops vop.Operands) error {
	if !sel.Native() {
		return recipe.Expand(sel.Recipe(), f, sel.Op, ops)
	}
	return f.native(sel.Desc(), sel.Op, ops)
}

func (f *frame) native(d *isa.Desc, op vop.VectorOp, ops vop.Operands) error {
	if err := expand.CheckAliasing(d, ops); err != nil {
		return diag.WithContext(err, f.p.Name, op.String())
	}
	ops, err := f.resolve(ops)
	if err != nil {
		return diag.WithContext(err, f.p.Name, op.String())
	}
	temps, release, err := f.temps(d)
	if err != nil {
		return diag.WithContext(err, f.p.Name, op.String())
	}
	defer release()

	in := isa.Instr{Desc: d, Op: op, Ops: ops, Temps: temps, Bytes: f.bytes}
	assignMask(f.p, &in)
	if err := f.s.enc.Encode(f.s.buf, in); err != nil {
		return diag.WithContext(err, f.p.Name, op.String())
	}
	f.s.prog.Append(in)
	return nil
}

// assignMask threads the opmask register through instructions that need
// one. Encoders never pick a mask register on their own.
func assignMask(p *profile.Profile, in *isa.Instr) {
	if in.Desc == nil || in.Desc.X86 == nil || !p.HasMask {
		return
	}
	switch in.Desc.X86.Form {
	case isa.X86KCmp, isa.X86MaskBranch:
		in.Mask = p.MaskTemp
	}
}

// resolve rewrites memory operands whose displacement does not fit and
// emits the address materialization in front of the instruction. Only one
// operand can use the temp base register.
func (f *frame) resolve(ops vop.Operands) (vop.Operands, error) {
	materialized := false
	for _, x := range []*operand.Operand{&ops.Dst, &ops.Src1, &ops.Src2, &ops.Src3} {
		m, ok := (*x).(operand.Mem)
		if !ok {
			continue
		}
		r, err := addr.Resolve(f.p, m)
		if err != nil {
			return ops, err
		}
		if r.Direct() {
			continue
		}
		if materialized {
			return ops, diag.Aliasing("two memory operands need the temp base register")
		}
		materialized = true
		for _, st := range r.Steps {
			if err := f.Emit(st.Op, st.Ops); err != nil {
				return ops, err
			}
		}
		*x = r.Mem
	}
	return ops, nil
}

// temps reserves the scratch registers a composite encoding needs, vector
// registers first
func (f *frame) temps(d *isa.Desc) ([]operand.Operand, func(), error) {
	var vs []operand.PReg
	var gs []operand.GPR
	release := func() {
		f.FreeVec(vs...)
		f.FreeGPR(gs...)
	}
	for i := 0; i < d.VTemps; i++ {
		r, err := f.Vec()
		if err != nil {
			release()
			return nil, nil, err
		}
		vs = append(vs, r)
	}
	for i := 0; i < d.GTemps; i++ {
		r, err := f.GPR()
		if err != nil {
			release()
			return nil, nil, err
		}
		gs = append(gs, r)
	}
	if len(vs)+len(gs) == 0 {
		return nil, release, nil
	}
	temps := lo.Map(vs, func(r operand.PReg, _ int) operand.Operand { return r })
	temps = append(temps, lo.Map(gs, func(r operand.GPR, _ int) operand.Operand { return r })...)
	return temps, release, nil
}
