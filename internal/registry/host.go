package registry

import (
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/profile"
)

// HostFeatures reports the architecture and the profile feature names the
// running CPU supports
func HostFeatures() (isa.Arch, []string) {
	a, err := isa.ParseArch(runtime.GOARCH)
	if err != nil {
		return isa.ArchUnknown, nil
	}
	var fs []string
	add := func(ok bool, name string) {
		if ok {
			fs = append(fs, name)
		}
	}
	switch a {
	case isa.ArchX86_64:
		add(cpu.X86.HasSSE2, "sse2")
		add(cpu.X86.HasSSSE3, "ssse3")
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasSSE42, "sse4.2")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasBMI2, "bmi2")
		add(cpu.X86.HasAVX512F, "avx512f")
		add(cpu.X86.HasAVX512BW, "avx512bw")
		add(cpu.X86.HasAVX512DQ, "avx512dq")
		add(cpu.X86.HasAVX512VL, "avx512vl")
	case isa.ArchARM64:
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasASIMDHP, "asimdhp")
		add(cpu.ARM64.HasFPHP, "fphp")
	case isa.ArchPPC64LE:
		add(cpu.PPC64.IsPOWER9, "vsx")
		add(cpu.PPC64.IsPOWER9, "isa300")
	}
	return a, fs
}

// Host returns the most capable profile the running CPU can execute
func Host() (*profile.Profile, error) {
	a, fs := HostFeatures()
	return Best(a, fs)
}
