package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/selector"
	"github.com/xyproto/vlower/internal/vop"
)

func TestParseOperand(t *testing.T) {
	tests := []struct {
		in   string
		want operand.Operand
	}{
		{"v3", operand.VReg(3)},
		{"p12", operand.PReg(12)},
		{"g7", operand.GPR(7)},
		{"r19", operand.GPR(19)},
		{"#-5", operand.Imm(-5)},
		{"#0x10", operand.Imm(16)},
		{"[g7+64]", operand.Mem{Base: 7, Disp: 64}},
		{"[r20-16]", operand.Mem{Base: 20, Disp: -16}},
		{"[g6]", operand.Mem{Base: 6}},
		{" [g6+0x1000] ", operand.Mem{Base: 6, Disp: 0x1000}},
	}
	for _, tt := range tests {
		got, err := parseOperand(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
	for _, bad := range []string{"", "x1", "v", "#", "[v1+2]", "[g1+z]", "[g1", "v999"} {
		_, err := parseOperand(bad)
		require.Error(t, err, bad)
	}
}

func TestParseType(t *testing.T) {
	k, bits, err := parseType("u16")
	require.NoError(t, err)
	require.Equal(t, vop.KindUint, k)
	require.Equal(t, 16, bits)
	for _, bad := range []string{"", "i", "q32", "f24", "i128"} {
		_, _, err := parseType(bad)
		require.Error(t, err, bad)
	}
}

const sampleJob = `
profile: arm64-neon
width: 256
compat: {rcp: 2}
ops:
  - {op: load.f32, dst: v0, src: ["[g7+0]"]}
  - {op: rcp.f32, dst: v1, src: [v0]}
  - rounding: rd
    ops:
      - {op: cvtf2i.i32, round: rc, dst: v2, src: [v1]}
  - {op: maskbr.u32, cond: none, src: [v2], label: 1}
  - {op: store.f32, dst: "[g7+64]", src: [v1]}
  - bind: 1
`

func TestParseJob(t *testing.T) {
	j, err := ParseJob([]byte(sampleJob))
	require.NoError(t, err)
	want := []JobOp{
		{Op: "load.f32", Dst: "v0", Src: []string{"[g7+0]"}},
		{Op: "rcp.f32", Dst: "v1", Src: []string{"v0"}},
		{Rounding: "rd", Ops: []JobOp{{Op: "cvtf2i.i32", Round: "rc", Dst: "v2", Src: []string{"v1"}}}},
		{Op: "maskbr.u32", Cond: "none", Src: []string{"v2"}, Label: 1},
		{Op: "store.f32", Dst: "[g7+64]", Src: []string{"v1"}},
		{Bind: 1},
	}
	if diff := cmp.Diff(want, j.Ops); diff != "" {
		t.Fatalf("ops (-want +got):\n%s", diff)
	}
	require.Equal(t, 2, *j.Compat.Rcp)
	require.Nil(t, j.Compat.Rsq)

	_, err = ParseJob([]byte("profile: x86-sse4\n"))
	require.Error(t, err)
	_, err = ParseJob([]byte("ops: ["))
	require.Error(t, err)
}

func TestJobCompatOverrides(t *testing.T) {
	j, err := ParseJob([]byte(sampleJob))
	require.NoError(t, err)
	got := j.compat(selector.Compat{Rcp: 1, Rsq: 1, Round: 3})
	require.Equal(t, selector.Compat{Rcp: 2, Rsq: 1, Round: 3}, got)
}

func TestJobRunsOnEveryArchitecture(t *testing.T) {
	j, err := ParseJob([]byte(sampleJob))
	require.NoError(t, err)
	for _, name := range []string{"arm64-neon", "power-vsx3", "x86-avx2"} {
		t.Run(name, func(t *testing.T) {
			j.Profile = name
			res, err := j.Run(Settings{Compat: selector.DefaultCompat})
			require.NoError(t, err)
			require.NotEmpty(t, res.Code)
			require.Equal(t, 1, res.Program.Count(vop.OpCtlSave))
			require.Equal(t, 1, res.Program.Count(vop.OpLabel))
		})
	}
}

func TestJobErrors(t *testing.T) {
	run := func(src string) error {
		j, err := ParseJob([]byte(src))
		require.NoError(t, err)
		_, err = j.Run(Settings{Compat: selector.DefaultCompat})
		return err
	}
	require.ErrorContains(t, run("ops: [{op: add.i32, dst: v0, src: [v1, v2]}]"), "no profile")
	require.ErrorContains(t, run("profile: x86-sse4\nops: [{op: frob.i32, dst: v0, src: [v1]}]"), "unknown operation")
	require.ErrorContains(t, run("profile: x86-sse4\nops: [{op: add.i32, dst: v0, src: [v1]}]"), "takes 2 sources")
	require.ErrorContains(t, run("profile: x86-sse4\nops: [{op: sadd.i64, dst: g1, src: [g2, g3]}]"), "not a vector operation")

	err := run("profile: x86-sse4\nops: [{op: sub.i32, width: 256, dst: v0, src: [v1, v0]}]")
	require.True(t, errors.Is(err, diag.ErrAliasing), "got %v", err)

	err = run("profile: x86-sse5\nops: [{op: add.i32, dst: v0, src: [v1, v2]}]")
	require.True(t, errors.Is(err, diag.ErrConfig), "got %v", err)
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("VLOWER_PROFILE", "power-vsx3")
	t.Setenv("VLOWER_WIDTH", "512")
	t.Setenv("VLOWER_COMPAT_RCP", "2")
	t.Setenv("VLOWER_VERBOSE", "1")
	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, Settings{
		Profile: "power-vsx3",
		Width:   vop.Width512,
		Compat:  selector.Compat{Rcp: 2, Rsq: selector.DefaultCompat.Rsq},
		Verbose: true,
	}, s)

	t.Setenv("VLOWER_WIDTH", "384")
	_, err = LoadSettings()
	require.Error(t, err)

	t.Setenv("VLOWER_WIDTH", "256")
	t.Setenv("VLOWER_PROFILE", "x86-avx2")
	s, err = LoadSettings()
	require.NoError(t, err)
	require.Equal(t, vop.Width256, s.Width)
	require.Equal(t, "x86-avx2", s.Profile)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestProfilesCommand(t *testing.T) {
	out, err := execute(t, "profiles")
	require.NoError(t, err)
	for _, name := range []string{"x86-sse4", "x86-avx512dq", "arm64-neon-fp16", "power-vsx3"} {
		require.Contains(t, out, name)
	}
	require.Contains(t, out, "fixed32")
}

func TestCapsCommand(t *testing.T) {
	out, err := execute(t, "caps", "x86-sse4")
	require.NoError(t, err)
	require.Contains(t, out, "native")
	require.Contains(t, out, "fallback")

	out, err = execute(t, "caps", "--fallbacks", "x86-sse4")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, l := range lines[:len(lines)-2] {
		require.Contains(t, l, "fallback")
	}

	_, err = execute(t, "caps", "arm64-neno")
	require.ErrorContains(t, err, "did you mean arm64-neon")
}

func TestLowerCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleJob), 0o644))

	out, err := execute(t, "lower", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Greater(t, len(lines), 4)
	for _, l := range lines {
		require.Regexp(t, `^[0-9a-f]{6}  [0-9a-f]{8}$`, l)
	}

	out, err = execute(t, "lower", "--list", "--profile", "x86-sse4", path)
	require.NoError(t, err)
	require.Contains(t, out, "L1:")
	require.Regexp(t, `(?m)^000000  ([0-9a-f]{2} ){15}[0-9a-f]{2}$`, out)
}

func TestDump(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, dump(&b, isa.ArchX86_64, []byte{0x0f, 0x58, 0xc1}))
	require.Equal(t, "000000  0f 58 c1\n", b.String())

	b.Reset()
	require.NoError(t, dump(&b, isa.ArchARM64, []byte{0x20, 0x84, 0xa2, 0x4e}))
	require.Equal(t, "000000  4ea28420\n", b.String())
}
