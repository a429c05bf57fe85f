package mask

import (
	"github.com/xyproto/vlower/internal/operand"
)

// Ternary is a vpternlog merge: dst = f(dst, B, C) with f given by Imm.
// When Move is set, dst must first be loaded with the mask.
type Ternary struct {
	B, C operand.Operand
	Imm  byte
	Move bool
}

// Truth tables, indexed by A<<2 | B<<1 | C with A the destination
const (
	ternMaskFirst = 0xAC // A ? C : B
	ternZeroFirst = 0xB8 // B ? C : A
	ternOneFirst  = 0xE2 // B ? A : C
)

// PlanTernary picks the vpternlog operand order for a merge, based on
// which source the destination already holds
func PlanTernary(dst, m, z, nz operand.Operand) Ternary {
	switch {
	case operand.Same(dst, m):
		return Ternary{B: z, C: nz, Imm: ternMaskFirst}
	case operand.Same(dst, z):
		return Ternary{B: m, C: nz, Imm: ternZeroFirst}
	case operand.Same(dst, nz):
		return Ternary{B: m, C: z, Imm: ternOneFirst}
	}
	return Ternary{B: z, C: nz, Imm: ternMaskFirst, Move: true}
}

// A64Variant is one of the NEON bitwise select instructions, by the value
// of their size field
type A64Variant uint32

const (
	A64BSL A64Variant = 1 // Vd is the mask
	A64BIT A64Variant = 2 // insert Vn where Vm is set
	A64BIF A64Variant = 3 // insert Vn where Vm is clear
)

func (v A64Variant) String() string {
	switch v {
	case A64BIT:
		return "bit"
	case A64BIF:
		return "bif"
	}
	return "bsl"
}

// A64Select is the plan of a NEON merge
type A64Select struct {
	Variant A64Variant
	N, M    operand.Operand
	Move    bool // copy the mask into Vd first
}

// PlanA64 picks BSL, BIT or BIF so that the destination register is the
// one operand the instruction also reads
func PlanA64(dst, m, z, nz operand.Operand) A64Select {
	switch {
	case operand.Same(dst, z):
		return A64Select{Variant: A64BIT, N: nz, M: m}
	case operand.Same(dst, nz):
		return A64Select{Variant: A64BIF, N: z, M: m}
	case operand.Same(dst, m):
		return A64Select{Variant: A64BSL, N: nz, M: z}
	}
	return A64Select{Variant: A64BSL, N: nz, M: z, Move: true}
}
