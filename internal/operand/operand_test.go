package operand

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassBytes(t *testing.T) {
	tests := []struct {
		class Class
		want  int
	}{
		{ClassVector, 32},
		{ClassElem8, 1},
		{ClassElem16, 2},
		{ClassElem32, 4},
		{ClassElem64, 8},
		{ClassControl, 4},
	}
	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			require.Equal(t, tt.want, tt.class.Bytes(32))
		})
	}
}

func TestMemAt(t *testing.T) {
	m := Mem{Base: 3, Disp: 16, Class: ClassVector}
	n := m.At(32)
	require.Equal(t, int64(48), n.Disp)
	require.Equal(t, int64(16), m.Disp, "At must not modify the receiver")
	require.Equal(t, ClassElem8, m.WithClass(ClassElem8).Class)
	require.Equal(t, "[g3+16]:vector", m.String())
}

func TestSame(t *testing.T) {
	require.True(t, Same(PReg(3), PReg(3)))
	require.False(t, Same(PReg(3), VReg(3)))
	require.False(t, Same(nil, PReg(0)))
	require.True(t, Same(Mem{Base: 1, Disp: 8}, Mem{Base: 1, Disp: 8}))
	require.True(t, IsReg(GPR(1)))
	require.False(t, IsReg(Imm(1)))
}

func TestElemClass(t *testing.T) {
	require.Equal(t, ClassElem8, ElemClass(8))
	require.Equal(t, ClassElem16, ElemClass(16))
	require.Equal(t, ClassElem32, ElemClass(32))
	require.Equal(t, ClassElem64, ElemClass(64))
}
