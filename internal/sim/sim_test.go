package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/vop"
)

func byName(t *testing.T, name string) *profile.Profile {
	t.Helper()
	for _, p := range profile.Builtin() {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("no profile %s", name)
	return nil
}

// at128 builds a 16 byte instruction without an encoding
func at128(op vop.VectorOp, ops vop.Operands) isa.Instr {
	return isa.Instr{Op: op, Ops: ops, Bytes: 16}
}

func run(t *testing.T, m *Machine, ins ...isa.Instr) {
	t.Helper()
	require.NoError(t, m.Run(&isa.Program{Instrs: ins}))
}

func TestSaturate(t *testing.T) {
	tests := []struct {
		name string
		op   vop.VectorOp
		x, y uint64
		want uint64
	}{
		{"u8 add clamps", vop.VectorOp{Code: vop.OpAddSat, Kind: vop.KindUint, Width: 8}, 200, 100, 255},
		{"u8 sub floors", vop.VectorOp{Code: vop.OpSubSat, Kind: vop.KindUint, Width: 8}, 5, 10, 0},
		{"i8 add high", vop.VectorOp{Code: vop.OpAddSat, Kind: vop.KindInt, Width: 8}, 100, 50, 127},
		{"i8 sub low", vop.VectorOp{Code: vop.OpSubSat, Kind: vop.KindInt, Width: 8}, 0x80, 1, 0x80},
		{"i16 in range", vop.VectorOp{Code: vop.OpAddSat, Kind: vop.KindInt, Width: 16}, 0xFFFF, 2, 1},
		{"u64 carry", vop.VectorOp{Code: vop.OpAddSat, Kind: vop.KindUint, Width: 64}, math.MaxUint64 - 1, 5, math.MaxUint64},
		{"i64 overflow", vop.VectorOp{Code: vop.OpAddSat, Kind: vop.KindInt, Width: 64}, math.MaxInt64, 1, math.MaxInt64},
		{"i64 underflow", vop.VectorOp{Code: vop.OpSubSat, Kind: vop.KindInt, Width: 64}, 1 << 63, 1, 1 << 63},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, saturate(tt.op, tt.x, tt.y))
		})
	}
}

func TestVariableShiftCountsFollowTheArchitecture(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		x       uint64
		count   uint64
		want    uint64
	}{
		{"x86 count past width", profile.X86SSE4, 1, 33, 0},
		{"x86 in range", profile.X86SSE4, 1, 3, 8},
		{"power count modulo width", profile.PowerVSX3, 1, 33, 2},
		{"neon count past width", profile.ARM64NEON, 1, 33, 0},
		{"neon negative count shifts right", profile.ARM64NEON, 0x80000000, 0xFF, 0x40000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(byName(t, tt.profile))
			m.SetVec(0, Pack(32, tt.x, 7, 0, 0))
			m.SetVec(1, Pack(32, tt.count, 0, 0, 0))
			run(t, m, at128(vop.ShlVar(vop.KindUint, 32, operand.PReg(2), operand.PReg(0), operand.PReg(1))))
			got := Lanes(m.Vec(2, 16), 32)
			require.Equal(t, tt.want, got[0])
			require.Equal(t, uint64(7), got[1], "zero count")
		})
	}
}

func TestEstimatePrecision(t *testing.T) {
	for _, bits := range []int{8, 12, 14} {
		for _, v := range []float64{1.0 / 3, 0.7071, 123.456, 1e-5} {
			got := estimate(v, bits)
			require.LessOrEqual(t, math.Abs(got-v)/v, math.Ldexp(1, -bits), "%g at %d bits", v, bits)
		}
	}
	require.Equal(t, 0.0, estimate(0, 12))
	require.True(t, math.IsInf(estimate(math.Inf(1), 12), 1))
}

func TestRoundingModeSaveAndRestore(t *testing.T) {
	m := New(byName(t, profile.X86AVX2))
	m.SetGPR(6, 0x1000)
	slot := operand.Mem{Base: 6, Disp: 64}
	m.SetVec(0, Pack(32, vop.FloatBits(32, 1.25), vop.FloatBits(32, -1.25), vop.FloatBits(32, 2.5), 0))
	run(t, m,
		at128(vop.CtlSave(slot)),
		at128(vop.CtlSetRound(vop.RoundUp, slot)),
		at128(vop.Round(32, vop.RoundCurrent, operand.PReg(1), operand.PReg(0))),
	)
	require.Equal(t, vop.RoundUp, m.Mode())
	lanes := Lanes(m.Vec(1, 16), 32)
	require.Equal(t, 2.0, vop.FloatValue(32, lanes[0]))
	require.Equal(t, -1.0, vop.FloatValue(32, lanes[1]))
	require.Equal(t, 3.0, vop.FloatValue(32, lanes[2]))

	run(t, m, at128(vop.CtlRestore(slot)))
	require.Equal(t, vop.RoundNearest, m.Mode())
}

func TestScalarOps(t *testing.T) {
	m := New(byName(t, profile.ARM64NEON))
	m.SetGPR(1, uint64(math.MaxUint64)) // -1
	m.SetGPR(2, 5)
	m.SetGPR(20, 0x4000)
	mem := operand.Mem{Base: 20, Disp: 8, Class: operand.ClassElem16}
	run(t, m,
		at128(vop.SMin(3, 1, 2)),
		at128(vop.SMax(4, 1, 2)),
		at128(vop.SAddImm(5, 2, 100)),
		at128(vop.SStore(16, mem, 1)),
		at128(vop.SLoad(vop.KindInt, 16, 6, mem)),
		at128(vop.SLoad(vop.KindUint, 16, 7, mem)),
	)
	require.Equal(t, uint64(math.MaxUint64), m.GPR(3))
	require.Equal(t, uint64(5), m.GPR(4))
	require.Equal(t, uint64(105), m.GPR(5))
	require.Equal(t, uint64(math.MaxUint64), m.GPR(6))
	require.Equal(t, uint64(0xFFFF), m.GPR(7))
	require.Equal(t, []byte{0, 0, 0xFF, 0xFF, 0}, m.Read(0x4006, 5))
}

func TestBranches(t *testing.T) {
	m := New(byName(t, profile.X86SSE4))
	var l operand.Label = 1
	m.SetVec(0, Pack(32, 0, 0, 0, 0))
	run(t, m,
		at128(vop.SMovImm(3, 7)),
		at128(vop.MaskBranch(32, operand.PReg(0), vop.BranchNone, l)),
		at128(vop.SMovImm(3, 9)),
		at128(vop.LabelOp(l)),
	)
	require.Equal(t, uint64(7), m.GPR(3))
	require.Equal(t, 3, m.Steps())
}

func TestStepLimit(t *testing.T) {
	m := New(byName(t, profile.X86SSE4))
	m.MaxSteps = 100
	var l operand.Label = 1
	err := m.Run(&isa.Program{Instrs: []isa.Instr{
		at128(vop.LabelOp(l)),
		at128(vop.MaskBranch(32, operand.PReg(0), vop.BranchNone, l)),
	}})
	require.True(t, errors.Is(err, diag.ErrInternal), "got %v", err)
	require.Equal(t, 100, m.Steps())
}

func TestUnboundBranchTarget(t *testing.T) {
	m := New(byName(t, profile.X86SSE4))
	err := m.Run(&isa.Program{Instrs: []isa.Instr{
		at128(vop.MaskBranch(32, operand.PReg(0), vop.BranchNone, 4)),
	}})
	require.Error(t, err)
}

func TestSetVecClearsUpperBytes(t *testing.T) {
	m := New(byName(t, profile.X86AVX512DQ))
	m.SetVec(5, make([]byte, 64))
	m.SetVec(5, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	require.Equal(t, make([]byte, 48), m.Vec(5, 64)[16:])
	require.Equal(t, []byte{0, 0, 0}, m.Read(0xFFFF, 3), "unwritten memory reads as zero")
}

func TestConversionsSaturate(t *testing.T) {
	require.Equal(t, uint64(0x7FFFFFFF), cvtFToI(vop.KindInt, 32, 1e20))
	require.Equal(t, uint64(0x80000000), cvtFToI(vop.KindInt, 32, -1e20))
	require.Equal(t, uint64(0), cvtFToI(vop.KindInt, 32, math.NaN()))
	require.Equal(t, uint64(0), cvtFToI(vop.KindUint, 16, -3))
	require.Equal(t, uint64(0xFFFF), cvtFToI(vop.KindUint, 16, 1e6))
	require.Equal(t, uint64(0xFFFFFFFD), cvtFToI(vop.KindInt, 32, -3))
}
