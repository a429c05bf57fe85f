package lower

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/selector"
	"github.com/xyproto/vlower/internal/vop"
)

func byName(t testing.TB, name string) *profile.Profile {
	t.Helper()
	for _, p := range profile.Builtin() {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("no profile %s", name)
	return nil
}

// registers the tests use for data and scratch memory, and one free
// general purpose register
type regs struct {
	data, scratch, free operand.GPR
}

func regsOf(a isa.Arch) regs {
	switch a {
	case isa.ArchARM64:
		return regs{data: 20, scratch: 19, free: 21}
	case isa.ArchPPC64LE:
		return regs{data: 31, scratch: 30, free: 29}
	}
	return regs{data: 7, scratch: 6, free: 3}
}

func newSession(t testing.TB, p *profile.Profile, c selector.Compat) *Session {
	t.Helper()
	s, err := NewSession(p, Config{Compat: c, Scratch: operand.Mem{Base: regsOf(p.Arch).scratch}})
	require.NoError(t, err)
	return s
}

func TestNewSessionRejects(t *testing.T) {
	p := byName(t, profile.X86AVX2)
	scratch := operand.Mem{Base: 6}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown compat level", Config{Compat: selector.Compat{Rcp: 7}, Scratch: scratch}},
		{"unsupported variable width", Config{VariableBits: 384, Scratch: scratch}},
		{"scratch on the temp base", Config{Scratch: operand.Mem{Base: p.TempBase}}},
		{"scratch on a scalar temp", Config{Scratch: operand.Mem{Base: p.ScalarTemps[0]}}},
		{"unaligned scratch", Config{Scratch: operand.Mem{Base: 6, Disp: 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(p, tt.cfg)
			require.True(t, errors.Is(err, diag.ErrConfig), "got %v", err)
		})
	}
	_, err := NewSession(nil, Config{})
	require.Error(t, err)
}

func TestEmitExpandsWideOperations(t *testing.T) {
	p := byName(t, profile.X86SSE4)
	s, err := NewSession(p, Config{VariableBits: 256, Scratch: operand.Mem{Base: 6}})
	require.NoError(t, err)

	op, ops := vop.Add(vop.KindInt, 32, operand.VReg(0), operand.VReg(1), operand.VReg(2))
	require.NoError(t, s.Emit(op, vop.WidthVariable, ops))
	require.Equal(t, 2, s.Program().Count(vop.OpAdd))

	require.NoError(t, s.Emit(op, vop.Width512, ops))
	require.Equal(t, 6, s.Program().Count(vop.OpAdd))

	code, err := s.Finish()
	require.NoError(t, err)
	require.NotEmpty(t, code)
}

func TestFixedWordOutput(t *testing.T) {
	for _, name := range []string{profile.ARM64NEON, profile.PowerVSX3} {
		t.Run(name, func(t *testing.T) {
			p := byName(t, name)
			s := newSession(t, p, selector.DefaultCompat)
			op, ops := vop.Add(vop.KindFloat, 32, operand.VReg(0), operand.VReg(1), operand.VReg(2))
			require.NoError(t, s.Emit(op, vop.Width128, ops))
			op, ops = vop.Rcp(32, operand.VReg(3), operand.VReg(0))
			require.NoError(t, s.Emit(op, vop.Width256, ops))
			code, err := s.Finish()
			require.NoError(t, err)
			require.Zero(t, len(code)%4)
			require.Greater(t, len(code), 4)
		})
	}
}

func TestAliasingPoisonsSession(t *testing.T) {
	p := byName(t, profile.X86SSE4)
	core, logs := observer.New(zap.ErrorLevel)
	s, err := NewSession(p, Config{Scratch: operand.Mem{Base: 6}, Logger: zap.New(core)})
	require.NoError(t, err)

	op, ops := vop.Add(vop.KindInt, 32, operand.VReg(0), operand.VReg(1), operand.VReg(2))
	require.NoError(t, s.Emit(op, vop.Width256, ops))
	before := s.Program().Len()

	op, ops = vop.Sub(vop.KindInt, 32, operand.VReg(0), operand.VReg(1), operand.VReg(0))
	err = s.Emit(op, vop.Width256, ops)
	require.True(t, errors.Is(err, diag.ErrAliasing), "got %v", err)
	require.Equal(t, before, s.Program().Len(), "nothing emitted for the rejected op")
	require.Equal(t, 1, logs.Len())

	op, ops = vop.Add(vop.KindInt, 32, operand.VReg(0), operand.VReg(1), operand.VReg(2))
	require.Error(t, s.Emit(op, vop.Width256, ops))
	code, err := s.Finish()
	require.Nil(t, code)
	require.True(t, errors.Is(err, diag.ErrAliasing), "got %v", err)
	require.Equal(t, 1, logs.Len(), "only the first failure is logged")
}

func TestReservedOperands(t *testing.T) {
	p := byName(t, profile.ARM64NEON)
	tests := []struct {
		name string
		emit func() (vop.VectorOp, vop.Operands)
	}{
		{"temp base as memory base", func() (vop.VectorOp, vop.Operands) {
			return vop.Load(vop.KindInt, 32, operand.VReg(0), operand.Mem{Base: p.TempBase})
		}},
		{"scalar temp", func() (vop.VectorOp, vop.Operands) {
			return vop.SAdd(p.ScalarTemps[0], 20, 21)
		}},
		{"vector temp", func() (vop.VectorOp, vop.Operands) {
			return vop.Add(vop.KindInt, 32, p.VectorTemps[0], operand.PReg(1), operand.PReg(2))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, p, selector.DefaultCompat)
			op, ops := tt.emit()
			err := s.Emit(op, vop.Width128, ops)
			require.True(t, errors.Is(err, diag.ErrAliasing), "got %v", err)
		})
	}
}

func TestControlOpsAreNotEmittedDirectly(t *testing.T) {
	s := newSession(t, byName(t, profile.X86AVX2), selector.DefaultCompat)
	op, ops := vop.CtlSave(operand.Mem{Base: 6})
	require.True(t, errors.Is(s.Emit(op, vop.WidthVariable, ops), diag.ErrConfig))
}

func TestLabels(t *testing.T) {
	p := byName(t, profile.X86AVX2)
	s := newSession(t, p, selector.DefaultCompat)
	l := s.NewLabel()
	require.NotEqual(t, l, s.NewLabel())
	op, ops := vop.MaskBranch(32, operand.VReg(0), vop.BranchNone, l)
	require.NoError(t, s.Emit(op, vop.Width256, ops))
	_, err := s.Finish()
	require.True(t, errors.Is(err, diag.ErrConfig), "unbound label: %v", err)

	s = newSession(t, p, selector.DefaultCompat)
	require.NoError(t, s.Bind(l))
	require.True(t, errors.Is(s.Bind(l), diag.ErrConfig))
}

func TestFinishIsFinal(t *testing.T) {
	s := newSession(t, byName(t, profile.PowerVSX3), selector.DefaultCompat)
	op, ops := vop.Xor(vop.KindUint, 32, operand.VReg(0), operand.VReg(0), operand.VReg(1))
	require.NoError(t, s.Emit(op, vop.Width128, ops))
	code, err := s.Finish()
	require.NoError(t, err)
	again, err := s.Finish()
	require.NoError(t, err)
	require.Equal(t, code, again)
	require.True(t, errors.Is(s.Emit(op, vop.Width128, ops), diag.ErrConfig))
}

func TestRoundingBrackets(t *testing.T) {
	p := byName(t, profile.ARM64NEON)
	s := newSession(t, p, selector.DefaultCompat)
	err := s.WithRounding(vop.RoundDown, func() error {
		return s.WithRounding(vop.RoundUp, func() error { return nil })
	})
	require.True(t, errors.Is(err, diag.ErrConfig), "got %v", err)
	require.Error(t, s.Err())

	s = newSession(t, p, selector.DefaultCompat)
	require.True(t, errors.Is(s.WithRounding(vop.RoundCurrent, func() error { return nil }), diag.ErrConfig))

	s = newSession(t, p, selector.DefaultCompat)
	require.NoError(t, s.WithRounding(vop.RoundDefault, func() error { return nil }))
	require.Equal(t, 1, s.Program().Count(vop.OpCtlSave))
	require.Equal(t, 1, s.Program().Count(vop.OpCtlRestore))
}

// Sessions share nothing but the profile, so they may run in parallel and
// produce the same code.
func TestConcurrentSessions(t *testing.T) {
	p := byName(t, profile.X86AVX512F)
	build := func() ([]byte, error) {
		s, err := NewSession(p, Config{Compat: selector.DefaultCompat, Scratch: operand.Mem{Base: 6}})
		if err != nil {
			return nil, err
		}
		for _, f := range []func(dst, a, b operand.Operand) (vop.VectorOp, vop.Operands){
			func(d, a, b operand.Operand) (vop.VectorOp, vop.Operands) { return vop.AddSat(vop.KindUint, 8, d, a, b) },
			func(d, a, b operand.Operand) (vop.VectorOp, vop.Operands) { return vop.Mul(vop.KindInt, 64, d, a, b) },
			func(d, a, b operand.Operand) (vop.VectorOp, vop.Operands) { return vop.Max(vop.KindFloat, 32, d, a, b) },
		} {
			op, ops := f(operand.VReg(0), operand.VReg(1), operand.VReg(2))
			if err := s.Emit(op, vop.Width512, ops); err != nil {
				return nil, err
			}
		}
		return s.Finish()
	}
	want, err := build()
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = build()
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, want, results[i])
	}
}

func TestAssignMask(t *testing.T) {
	kcmp := &isa.Desc{X86: &isa.X86Desc{Form: isa.X86KCmp}}
	branch := &isa.Desc{X86: &isa.X86Desc{Form: isa.X86MaskBranch}}
	rm := &isa.Desc{X86: &isa.X86Desc{Form: isa.X86RM}}

	p := byName(t, profile.X86AVX512DQ)
	for _, d := range []*isa.Desc{kcmp, branch} {
		in := isa.Instr{Desc: d}
		assignMask(p, &in)
		require.Equal(t, operand.Operand(p.MaskTemp), in.Mask)
	}
	in := isa.Instr{Desc: rm}
	assignMask(p, &in)
	require.Nil(t, in.Mask)

	in = isa.Instr{Desc: branch}
	assignMask(byName(t, profile.X86AVX2), &in)
	require.Nil(t, in.Mask)
}
