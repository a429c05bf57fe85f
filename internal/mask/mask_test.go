package mask

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// ternEval evaluates an 8-bit truth table bitwise
func ternEval(imm, a, b, c byte) byte {
	var out byte
	for bit := 0; bit < 8; bit++ {
		i := (a>>bit&1)<<2 | (b>>bit&1)<<1 | c>>bit&1
		out |= (imm >> i & 1) << bit
	}
	return out
}

func TestPlanTernary(t *testing.T) {
	m, z, nz := byte(0xF0), byte(0x33), byte(0x5A)
	want := m&nz | ^m&z
	regs := map[operand.Operand]byte{operand.PReg(1): m, operand.PReg(2): z, operand.PReg(3): nz}
	for _, dst := range []operand.PReg{1, 2, 3, 4} {
		plan := PlanTernary(dst, operand.PReg(1), operand.PReg(2), operand.PReg(3))
		a, ok := regs[dst]
		if plan.Move {
			require.False(t, ok)
			a = m
		}
		got := ternEval(plan.Imm, a, regs[plan.B], regs[plan.C])
		require.Equal(t, want, got, "dst %v", dst)
	}
}

// a64Eval applies BSL, BIT or BIF to byte values
func a64Eval(v A64Variant, d, n, m byte) byte {
	switch v {
	case A64BIT:
		return d&^m | n&m
	case A64BIF:
		return d&m | n&^m
	}
	return d&n | ^d&m
}

func TestPlanA64(t *testing.T) {
	m, z, nz := byte(0x0F), byte(0xAA), byte(0x66)
	want := m&nz | ^m&z
	regs := map[operand.Operand]byte{operand.PReg(1): m, operand.PReg(2): z, operand.PReg(3): nz}
	for _, dst := range []operand.PReg{1, 2, 3, 7} {
		plan := PlanA64(dst, operand.PReg(1), operand.PReg(2), operand.PReg(3))
		d := regs[dst]
		if plan.Move {
			d = m
		}
		require.Equal(t, want, a64Eval(plan.Variant, d, regs[plan.N], regs[plan.M]), "dst %v via %s", dst, plan.Variant)
	}
}

func TestHolds(t *testing.T) {
	ones := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	mixed := []byte{0, 0xFF, 0, 0}
	zero := []byte{0, 0, 0, 0}
	require.True(t, Holds(vop.BranchFull, ones))
	require.False(t, Holds(vop.BranchFull, mixed))
	require.True(t, Holds(vop.BranchNone, zero))
	require.False(t, Holds(vop.BranchNone, mixed))
	require.Equal(t, vop.OpAnd, Reducer(vop.BranchFull))
	require.Equal(t, vop.OpOr, Reducer(vop.BranchNone))
}

func TestMergeBytes(t *testing.T) {
	dst := make([]byte, 4)
	MergeBytes(dst, []byte{0, 0xFF, 0, 0xFF}, []byte{1, 2, 3, 4}, []byte{10, 20, 30, 40})
	require.Equal(t, []byte{1, 20, 3, 40}, dst)
}
