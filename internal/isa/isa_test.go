package isa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

func TestParseArch(t *testing.T) {
	tests := []struct {
		in   string
		want Arch
	}{
		{"amd64", ArchX86_64},
		{"x86_64", ArchX86_64},
		{"arm64", ArchARM64},
		{"aarch64", ArchARM64},
		{"ppc64le", ArchPPC64LE},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseArch(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
	_, err := ParseArch("mips")
	require.Error(t, err)
}

func TestLayouts(t *testing.T) {
	require.Equal(t, LayoutVariable, ArchX86_64.Layout())
	require.Equal(t, LayoutFixed32, ArchARM64.Layout())
	require.Equal(t, LayoutFixed32, ArchPPC64LE.Layout())
}

func TestGetRegister(t *testing.T) {
	r, ok := GetRegister(ArchX86_64, "zmm17")
	require.True(t, ok)
	require.Equal(t, uint8(17), r.Encoding)
	require.Equal(t, 512, r.Size)

	r, ok = GetRegister(ArchX86_64, "r11")
	require.True(t, ok)
	require.Equal(t, RegGPR, r.Class)
	require.Equal(t, uint8(11), r.Encoding)

	r, ok = GetRegister(ArchARM64, "v29")
	require.True(t, ok)
	require.Equal(t, uint8(29), r.Encoding)

	r, ok = GetRegister(ArchPPC64LE, "vs35")
	require.True(t, ok)
	require.Equal(t, uint8(3), r.Encoding, "vs32-vs63 are the VMX registers")

	require.False(t, IsRegister(ArchARM64, "xmm0"))
}

func TestFormat(t *testing.T) {
	in := Instr{
		Desc:  &Desc{Name: "vpaddd"},
		Op:    vop.VectorOp{Code: vop.OpAdd, Kind: vop.KindInt, Width: 32},
		Ops:   vop.Operands{Dst: operand.PReg(0), Src1: operand.PReg(1), Src2: operand.Mem{Base: 3, Disp: -32}},
		Bytes: 32,
	}
	require.Equal(t, "vpaddd ymm0, ymm1, [rbx-32]", in.Format(ArchX86_64))

	in.Bytes = 16
	require.Equal(t, "vpaddd v0, v1, [x3-32]", in.Format(ArchARM64))

	p := Program{Arch: ArchX86_64}
	p.Append(in)
	p.Append(Instr{Op: vop.VectorOp{Code: vop.OpLabel}, Ops: vop.Operands{Src1: operand.Label(2)}})
	require.Equal(t, 2, p.Len())
	require.Equal(t, 1, p.Count(vop.OpAdd))
	require.Contains(t, p.String(), "L2:")
}
