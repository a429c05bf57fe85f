package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/profile"
)

func TestAllProfilesValidate(t *testing.T) {
	ps, err := All()
	require.NoError(t, err)
	require.Len(t, ps, 7)
	require.Equal(t, []string{
		profile.X86SSE4, profile.X86AVX2, profile.X86AVX512F, profile.X86AVX512DQ,
		profile.ARM64NEON, profile.ARM64NEONFP16, profile.PowerVSX3,
	}, Names())
}

func TestLookup(t *testing.T) {
	p, err := Lookup("X86-AVX2")
	require.NoError(t, err)
	require.Equal(t, profile.X86AVX2, p.Name)

	same, err := Lookup(profile.X86AVX2)
	require.NoError(t, err)
	require.Same(t, p, same, "profiles are shared")

	_, err = Lookup("x86-avx3")
	require.True(t, errors.Is(err, diag.ErrConfig), "got %v", err)
	require.Contains(t, err.Error(), "did you mean x86-avx2")

	_, err = Lookup("riscv")
	require.Error(t, err)
	require.NotContains(t, err.Error(), "did you mean")
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"x86-sse4", "x86-sse4", 0},
		{"arm64-neon", "arm64-neon-fp16", 5},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, editDistance(tt.a, tt.b), "%q %q", tt.a, tt.b)
	}
	require.Equal(t, []string{"arm64-neon"}, suggest("arm64-nen", Names(), 3))
}

func TestBest(t *testing.T) {
	tests := []struct {
		arch     isa.Arch
		features []string
		want     string
	}{
		{isa.ArchX86_64, []string{"sse2", "ssse3", "sse4.1", "sse4.2"}, profile.X86SSE4},
		{isa.ArchX86_64, []string{"sse2", "ssse3", "sse4.1", "sse4.2", "avx", "avx2", "fma", "bmi2"}, profile.X86AVX2},
		{isa.ArchX86_64, []string{"sse2", "ssse3", "sse4.1", "sse4.2", "avx", "avx2", "fma", "bmi2", "avx512f"}, profile.X86AVX512F},
		{isa.ArchX86_64, []string{"sse4.1", "sse4.2", "ssse3", "sse2", "avx", "avx2", "fma", "bmi2", "avx512f", "avx512bw", "avx512dq", "avx512vl"}, profile.X86AVX512DQ},
		{isa.ArchARM64, []string{"asimd"}, profile.ARM64NEON},
		{isa.ArchARM64, []string{"asimd", "asimdhp", "fphp"}, profile.ARM64NEONFP16},
		{isa.ArchPPC64LE, []string{"vsx", "isa300"}, profile.PowerVSX3},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			p, err := Best(tt.arch, tt.features)
			require.NoError(t, err)
			require.Equal(t, tt.want, p.Name)
		})
	}
	_, err := Best(isa.ArchX86_64, []string{"sse2"})
	require.True(t, errors.Is(err, diag.ErrConfig))
}

func TestHost(t *testing.T) {
	a, _ := HostFeatures()
	p, err := Host()
	if a == isa.ArchUnknown {
		require.Error(t, err)
		return
	}
	if err != nil {
		t.Skipf("host has no matching profile: %v", err)
	}
	require.Equal(t, a, p.Arch)
}
