// Package lower runs lowering sessions. A session is bound to one profile,
// one set of compat levels and one output buffer. It expands wide vector
// operations into native slices, lowers every slice natively or through a
// fallback recipe and encodes the result.
//
// Sessions are not safe for concurrent use. Independent sessions may run
// in parallel, since profiles are never modified.
package lower

import (
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/encode"
	"github.com/xyproto/vlower/internal/encode/arm64"
	"github.com/xyproto/vlower/internal/encode/power"
	"github.com/xyproto/vlower/internal/encode/x86"
	"github.com/xyproto/vlower/internal/expand"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/mask"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/selector"
	"github.com/xyproto/vlower/internal/vop"
)

// Config is fixed for the lifetime of a session
type Config struct {
	Compat selector.Compat
	// VariableBits is the width vop.WidthVariable stands for. Zero means
	// the native width.
	VariableBits int
	// Scratch is the start of ScratchBytes(p) bytes of 16-byte aligned
	// memory the generated code may clobber
	Scratch operand.Mem
	Name    string // buffer name in traces, the profile name by default
	Logger  *zap.Logger
}

// ScratchBytes returns the scratch memory a session on p needs: the area
// the recipes use plus a control area of its own for WithRounding
func ScratchBytes(p *profile.Profile) int {
	return p.ScratchBytes() + 16
}

// Session lowers operations into one buffer
type Session struct {
	p        *profile.Profile
	cfg      Config
	log      *zap.Logger
	enc      encode.Encoder
	buf      *encode.Buffer
	prog     *isa.Program
	top      *frame
	vfree    []operand.PReg
	gfree    []operand.GPR
	next     operand.Label
	err      error
	rounding bool
	done     bool
}

// NewSession starts a session on p
func NewSession(p *profile.Profile, cfg Config) (*Session, error) {
	if p == nil {
		return nil, diag.Config("no profile")
	}
	if err := p.Err(); err != nil {
		return nil, diag.New(diag.CategoryConfig).Profile(p.Name).Detail("profile is invalid").Cause(err).Build()
	}
	if err := cfg.Compat.Validate(p); err != nil {
		return nil, err
	}
	if cfg.VariableBits == 0 {
		cfg.VariableBits = p.NativeBits
	}
	if _, err := expand.Factor(p, cfg.VariableBits); err != nil {
		return nil, err
	}
	if reservedGPR(p, cfg.Scratch.Base) {
		return nil, diag.New(diag.CategoryConfig).Profile(p.Name).
			Detail("scratch base %s is reserved by the profile", isa.GPRName(p.Arch, cfg.Scratch.Base)).Build()
	}
	if cfg.Scratch.Disp%16 != 0 {
		return nil, diag.New(diag.CategoryConfig).Profile(p.Name).
			Detail("scratch displacement %d is not 16-byte aligned", cfg.Scratch.Disp).Build()
	}
	cfg.Scratch.Class = operand.ClassVector
	enc, err := encoderFor(p)
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = p.Name
	}
	l := cfg.Logger
	if l == nil {
		l = diag.Logger()
	}
	s := &Session{
		p:     p,
		cfg:   cfg,
		log:   l.With(zap.String("session", cfg.Name), zap.String("profile", p.Name)),
		enc:   enc,
		buf:   encode.NewBuffer(cfg.Name),
		prog:  &isa.Program{Arch: p.Arch},
		vfree: slices.Clone(p.VectorTemps),
		gfree: slices.Clone(p.ScalarTemps),
	}
	s.top = &frame{s: s, p: p, bytes: p.NativeBytes()}
	s.log.Debug("session started",
		zap.Int("variable_bits", cfg.VariableBits),
		zap.Stringer("compat", cfg.Compat))
	return s, nil
}

func encoderFor(p *profile.Profile) (encode.Encoder, error) {
	switch p.Arch {
	case isa.ArchX86_64:
		return x86.New(x86.Options{BMI2: lo.Contains(p.Features, "bmi2")}), nil
	case isa.ArchARM64:
		return arm64.New(), nil
	case isa.ArchPPC64LE:
		return power.New(), nil
	}
	return nil, diag.New(diag.CategoryConfig).Profile(p.Name).Detail("no encoder for %s", p.Arch).Build()
}

func reservedGPR(p *profile.Profile, g operand.GPR) bool {
	return g == p.TempBase || lo.Contains(p.ScalarTemps, g)
}

// Profile returns the session's profile
func (s *Session) Profile() *profile.Profile {
	return s.p
}

// Program returns the instructions lowered so far
func (s *Session) Program() *isa.Program {
	return s.prog
}

// Err returns the error that poisoned the session, if any
func (s *Session) Err() error {
	return s.err
}

// fail poisons the session with the first error it sees
func (s *Session) fail(err error, op string) error {
	err = diag.WithContext(err, s.p.Name, op)
	if s.err == nil {
		s.err = err
		s.log.Error("session failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (s *Session) usable() error {
	if s.err != nil {
		return s.err
	}
	if s.done {
		return diag.New(diag.CategoryConfig).Profile(s.p.Name).Detail("session already finished").Build()
	}
	return nil
}

func (s *Session) bits(w vop.Width) int {
	if w == vop.WidthVariable {
		return s.cfg.VariableBits
	}
	return int(w)
}

// Emit lowers op at the requested width. Vector operands are logical
// registers; physical registers are accepted at the native width. Any
// error poisons the session.
func (s *Session) Emit(op vop.VectorOp, width vop.Width, ops vop.Operands) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.emit(op, s.bits(width), ops); err != nil {
		return s.fail(err, op.String())
	}
	return nil
}

func (s *Session) emit(op vop.VectorOp, bits int, ops vop.Operands) error {
	switch op.Code {
	case vop.OpLabel:
		return diag.Config("labels are placed with Bind")
	case vop.OpCtlSave, vop.OpCtlSetRound, vop.OpCtlRestore:
		return diag.Config("the control register is only changed by WithRounding")
	}
	if err := s.checkReserved(ops); err != nil {
		return err
	}
	if op.Code == vop.OpMaskBranch {
		return s.maskBranch(op, bits, ops)
	}
	plan, err := expand.Expand(s.p, s.cfg.Compat, op, bits, ops)
	if err != nil {
		return err
	}
	for _, sl := range plan.Slices {
		if err := s.top.lower(sl.Sel, sl.Ops); err != nil {
			return err
		}
	}
	if ce := s.log.Check(zap.DebugLevel, "lowered"); ce != nil {
		ce.Write(zap.Stringer("op", op), zap.Int("bits", bits), zap.Int("factor", plan.Factor),
			zap.Stringer("selection", plan.Slices[0].Sel))
	}
	return nil
}

// checkReserved rejects operands that name the profile's temporaries,
// which recipes and address materialization clobber
func (s *Session) checkReserved(ops vop.Operands) error {
	for _, x := range ops.All() {
		var bad bool
		switch v := x.(type) {
		case operand.GPR:
			bad = reservedGPR(s.p, v)
		case operand.Mem:
			bad = reservedGPR(s.p, v.Base)
		case operand.PReg:
			bad = lo.Contains(s.p.VectorTemps, v)
		case operand.KReg:
			bad = s.p.HasMask && v == s.p.MaskTemp
		}
		if bad {
			return diag.Aliasing("operand %s uses a register reserved by the profile", x)
		}
	}
	return nil
}

// maskBranch folds the slices of a wide mask into one native mask and
// branches on it
func (s *Session) maskBranch(op vop.VectorOp, bits int, ops vop.Operands) error {
	factor, err := expand.Factor(s.p, bits)
	if err != nil {
		return err
	}
	parts, err := expand.Split(s.p, factor, op, ops)
	if err != nil {
		return err
	}
	if factor == 1 {
		return s.top.Emit(op, parts[0])
	}
	masks := lo.Map(parts, func(o vop.Operands, _ int) operand.Operand { return o.Src1 })
	t, err := mask.Combine(s.top, op.Width, op.Cond, masks)
	if err != nil {
		return err
	}
	defer s.top.FreeVec(t)
	return s.top.Emit(op, vop.Operands{Src1: t, Src2: ops.Src2})
}

// NewLabel returns a label no earlier NewLabel call returned
func (s *Session) NewLabel() operand.Label {
	s.next++
	return s.next
}

// Bind places l at the current position
func (s *Session) Bind(l operand.Label) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.buf.Bind(l); err != nil {
		return s.fail(err, "bind "+l.String())
	}
	op, ops := vop.LabelOp(l)
	s.prog.Append(isa.Instr{Op: op, Ops: ops})
	return nil
}

// WithRounding runs fn with the control register's rounding mode set to
// mode and restores it afterwards. Operations in fn that use
// vop.RoundCurrent round with mode. Brackets do not nest.
func (s *Session) WithRounding(mode vop.RoundMode, fn func() error) error {
	if err := s.usable(); err != nil {
		return err
	}
	const what = "rounding bracket"
	if s.rounding {
		return s.fail(diag.Config("rounding brackets do not nest"), what)
	}
	switch mode {
	case vop.RoundCurrent:
		return s.fail(diag.Config("a rounding bracket needs a concrete mode"), what)
	case vop.RoundDefault:
		m, err := selector.DefaultRound(s.cfg.Compat.Round)
		if err != nil {
			return s.fail(err, what)
		}
		mode = m
	}
	slot := s.cfg.Scratch.At(int64(s.p.ScratchBytes()))
	s.rounding = true
	defer func() { s.rounding = false }()

	if err := s.top.Emit(vop.CtlSave(slot)); err != nil {
		return s.fail(err, what)
	}
	if err := s.top.Emit(vop.CtlSetRound(mode, slot)); err != nil {
		return s.fail(err, what)
	}
	if err := fn(); err != nil {
		return s.fail(err, what)
	}
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.top.Emit(vop.CtlRestore(slot)); err != nil {
		return s.fail(err, what)
	}
	return nil
}

// Finish resolves the label fixups and returns the code. A session that
// failed returns its error and no code.
func (s *Session) Finish() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.rounding {
		return nil, s.fail(diag.Config("finish inside a rounding bracket"), "finish")
	}
	code, err := s.buf.Finish()
	if err != nil {
		return nil, s.fail(err, "finish")
	}
	if !s.done {
		s.done = true
		s.log.Debug("session finished", zap.Int("bytes", len(code)), zap.Int("instructions", s.prog.Len()))
	}
	return code, nil
}
