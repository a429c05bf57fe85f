package profile

import (
	"errors"

	"github.com/xyproto/vlower/internal/isa"
)

// Built-in profile names
const (
	X86SSE4       = "x86-sse4"
	X86AVX2       = "x86-avx2"
	X86AVX512F    = "x86-avx512f"
	X86AVX512DQ   = "x86-avx512dq"
	ARM64NEON     = "arm64-neon"
	ARM64NEONFP16 = "arm64-neon-fp16"
	PowerVSX3     = "power-vsx3"
)

// Builtin builds every built-in profile, in order of increasing
// capability within each architecture.
func Builtin() []*Profile {
	avx2 := x86Profile(x86Config{name: X86AVX2, enc: isa.EncVEX, bits: 256, has: xAVX, regs: 16,
		features: []string{"sse4.2", "avx", "avx2", "fma", "bmi2"}})
	avx512f := x86Profile(x86Config{name: X86AVX512F, enc: isa.EncEVEX, bits: 512, has: xF, regs: 16, vtemps: 5,
		features: []string{"avx2", "bmi2", "avx512f"}})
	avx512f.Half = avx2
	return []*Profile{
		x86Profile(x86Config{name: X86SSE4, enc: isa.EncLegacy, bits: 128, has: xSSE, regs: 16,
			features: []string{"sse2", "ssse3", "sse4.1", "sse4.2"}}),
		avx2,
		avx512f,
		x86Profile(x86Config{name: X86AVX512DQ, enc: isa.EncEVEX, bits: 512, has: xF | xBW | xDQ, regs: 32,
			features: []string{"bmi2", "avx512f", "avx512bw", "avx512dq", "avx512vl"}}),
		a64Profile(a64Config{name: ARM64NEON, features: []string{"asimd"}}),
		a64Profile(a64Config{name: ARM64NEONFP16, fp16: true, features: []string{"asimd", "asimdhp", "fphp"}}),
		powerProfile(powerConfig{name: PowerVSX3, features: []string{"vsx", "isa300"}}),
	}
}

// Err returns the table construction errors, if any
func (p *Profile) Err() error {
	return errors.Join(p.buildErrs...)
}
