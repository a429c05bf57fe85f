// Package isa describes the machine side of lowering: architectures,
// native opcode descriptors and lowered instructions.
package isa

import (
	"fmt"
	"strings"
)

// Arch is an instruction set architecture
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_64
	ArchARM64
	ArchPPC64LE
)

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	case ArchPPC64LE:
		return "ppc64le"
	default:
		return "unknown"
	}
}

// ParseArch parses an architecture string (like GOARCH values)
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "x86-64":
		return ArchX86_64, nil
	case "aarch64", "arm64":
		return ArchARM64, nil
	case "ppc64le", "power", "powerpc64le":
		return ArchPPC64LE, nil
	default:
		return 0, fmt.Errorf("unsupported architecture: %s (supported: amd64, arm64, ppc64le)", s)
	}
}

// Layout is the instruction word layout of an architecture
type Layout int

const (
	LayoutVariable Layout = iota // x86 prefixes and opcode bytes
	LayoutFixed32                // one little-endian 32-bit word per instruction
)

func (l Layout) String() string {
	if l == LayoutFixed32 {
		return "fixed32"
	}
	return "variable"
}

// Layout returns the instruction word layout of a
func (a Arch) Layout() Layout {
	if a == ArchX86_64 {
		return LayoutVariable
	}
	return LayoutFixed32
}
