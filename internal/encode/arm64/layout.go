package arm64

import (
	"github.com/xyproto/vlower/internal/encode"
)

// Word layouts used by the engine. Register fields are named Rd, Rn, Rm,
// Ra and Rt as in the architecture manual.
var (
	ThreeSame = &encode.Layout{Name: "simd-3same", Fixed: 0x0E200400, Mask: 0x9F200400, Fields: []encode.Field{
		encode.F("Q", 30, 1), encode.F("U", 29, 1), encode.F("size", 22, 2), encode.F("Rm", 16, 5), encode.F("opcode", 11, 5), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	ThreeSameFP16 = &encode.Layout{Name: "simd-3same-fp16", Fixed: 0x0E400400, Mask: 0x9F60C400, Fields: []encode.Field{
		encode.F("Q", 30, 1), encode.F("U", 29, 1), encode.F("a", 23, 1), encode.F("Rm", 16, 5), encode.F("opcode", 11, 3), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	TwoMisc = &encode.Layout{Name: "simd-2misc", Fixed: 0x0E200800, Mask: 0x9F3E0C00, Fields: []encode.Field{
		encode.F("Q", 30, 1), encode.F("U", 29, 1), encode.F("size", 22, 2), encode.F("opcode", 12, 5), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	TwoMiscFP16 = &encode.Layout{Name: "simd-2misc-fp16", Fixed: 0x0E780800, Mask: 0x9F7E0C00, Fields: []encode.Field{
		encode.F("Q", 30, 1), encode.F("U", 29, 1), encode.F("a", 23, 1), encode.F("opcode", 12, 5), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	ShiftImm = &encode.Layout{Name: "simd-shift-imm", Fixed: 0x0F000400, Mask: 0x9F800400, Fields: []encode.Field{
		encode.F("Q", 30, 1), encode.F("U", 29, 1), encode.F("immhb", 16, 7), encode.F("opcode", 11, 5), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	AcrossLanes = &encode.Layout{Name: "simd-across", Fixed: 0x0E300800, Mask: 0x9F3E0C00, Fields: []encode.Field{
		encode.F("Q", 30, 1), encode.F("U", 29, 1), encode.F("size", 22, 2), encode.F("opcode", 12, 5), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	Copy = &encode.Layout{Name: "simd-copy", Fixed: 0x0E000400, Mask: 0x9FE08400, Fields: []encode.Field{
		encode.F("Q", 30, 1), encode.F("op", 29, 1), encode.F("imm5", 16, 5), encode.F("imm4", 11, 4), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	LoadStoreUImm = &encode.Layout{Name: "ldst-uimm", Fixed: 0x39000000, Mask: 0x3B000000, Fields: []encode.Field{
		encode.F("size", 30, 2), encode.F("V", 26, 1), encode.F("opc", 22, 2), encode.F("imm12", 10, 12), encode.F("Rn", 5, 5), encode.F("Rt", 0, 5),
	}}
	LoadStoreUnscaled = &encode.Layout{Name: "ldst-unscaled", Fixed: 0x38000000, Mask: 0x3B200C00, Fields: []encode.Field{
		encode.F("size", 30, 2), encode.F("V", 26, 1), encode.F("opc", 22, 2), encode.F("imm9", 12, 9), encode.F("Rn", 5, 5), encode.F("Rt", 0, 5),
	}}
	AddSubShifted = &encode.Layout{Name: "addsub-shifted", Fixed: 0x0B000000, Mask: 0x1F200000, Fields: []encode.Field{
		encode.F("sf", 31, 1), encode.F("op", 30, 1), encode.F("S", 29, 1), encode.F("shift", 22, 2), encode.F("Rm", 16, 5), encode.F("imm6", 10, 6), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	AddSubImm = &encode.Layout{Name: "addsub-imm", Fixed: 0x11000000, Mask: 0x1F800000, Fields: []encode.Field{
		encode.F("sf", 31, 1), encode.F("op", 30, 1), encode.F("S", 29, 1), encode.F("sh", 22, 1), encode.F("imm12", 10, 12), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	DataProc2 = &encode.Layout{Name: "dp-2src", Fixed: 0x1AC00000, Mask: 0x7FE00000, Fields: []encode.Field{
		encode.F("sf", 31, 1), encode.F("Rm", 16, 5), encode.F("opcode", 10, 6), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	DataProc3 = &encode.Layout{Name: "dp-3src", Fixed: 0x1B000000, Mask: 0x7FE08000, Fields: []encode.Field{
		encode.F("sf", 31, 1), encode.F("Rm", 16, 5), encode.F("Ra", 10, 5), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	CondSelect = &encode.Layout{Name: "csel", Fixed: 0x1A800000, Mask: 0x7FE00C00, Fields: []encode.Field{
		encode.F("sf", 31, 1), encode.F("Rm", 16, 5), encode.F("cond", 12, 4), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	Logical = &encode.Layout{Name: "logical-shifted", Fixed: 0x0A000000, Mask: 0x1F000000, Fields: []encode.Field{
		encode.F("sf", 31, 1), encode.F("opc", 29, 2), encode.F("shift", 22, 2), encode.F("N", 21, 1), encode.F("Rm", 16, 5), encode.F("imm6", 10, 6), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	MoveWide = &encode.Layout{Name: "move-wide", Fixed: 0x12800000, Mask: 0x1F800000, Fields: []encode.Field{
		encode.F("sf", 31, 1), encode.F("opc", 29, 2), encode.F("hw", 21, 2), encode.F("imm16", 5, 16), encode.F("Rd", 0, 5),
	}}
	Bitfield = &encode.Layout{Name: "bitfield", Fixed: 0x13000000, Mask: 0x1F800000, Fields: []encode.Field{
		encode.F("sf", 31, 1), encode.F("opc", 29, 2), encode.F("N", 22, 1), encode.F("immr", 16, 6), encode.F("imms", 10, 6), encode.F("Rn", 5, 5), encode.F("Rd", 0, 5),
	}}
	CondBranch = &encode.Layout{Name: "b.cond", Fixed: 0x54000000, Mask: 0xFF000010, Fields: []encode.Field{
		encode.F("imm19", 5, 19), encode.F("cond", 0, 4),
	}}
	SysReg = &encode.Layout{Name: "sysreg", Fixed: 0xD5100000, Mask: 0xFFD00000, Fields: []encode.Field{
		encode.F("L", 21, 1), encode.F("sysreg", 5, 15), encode.F("Rt", 0, 5),
	}}
)

// Condition codes
const (
	CondEQ = 0x0
	CondNE = 0x1
	CondHS = 0x2
	CondLO = 0x3
	CondLT = 0xB
	CondGT = 0xC
)

// FPCR is the o0:op1:CRn:CRm:op2 system register number of FPCR
const FPCR = 0x5A20

// Layouts lists every layout, for decoding
var Layouts = []*encode.Layout{
	ThreeSameFP16, ThreeSame, TwoMiscFP16, AcrossLanes, TwoMisc, ShiftImm, Copy,
	LoadStoreUImm, LoadStoreUnscaled, AddSubShifted, AddSubImm, DataProc2, DataProc3,
	CondSelect, Logical, MoveWide, Bitfield, CondBranch, SysReg,
}

// Op3 returns the 128-bit three-same base word
func Op3(u, size, opcode uint32) uint32 {
	return ThreeSame.MustPack(encode.U("Q", 1), encode.U("U", u), encode.U("size", size), encode.U("opcode", opcode))
}

// Op3H returns the half precision three-same base word
func Op3H(u, a, opcode uint32) uint32 {
	return ThreeSameFP16.MustPack(encode.U("Q", 1), encode.U("U", u), encode.U("a", a), encode.U("opcode", opcode))
}

// Op2 returns the 128-bit two-register-misc base word
func Op2(u, size, opcode uint32) uint32 {
	return TwoMisc.MustPack(encode.U("Q", 1), encode.U("U", u), encode.U("size", size), encode.U("opcode", opcode))
}

// Op2H returns the half precision two-register-misc base word
func Op2H(u, a, opcode uint32) uint32 {
	return TwoMiscFP16.MustPack(encode.U("Q", 1), encode.U("U", u), encode.U("a", a), encode.U("opcode", opcode))
}

// OpShift returns the shift-by-immediate base word with immh:immb clear
func OpShift(u, opcode uint32) uint32 {
	return ShiftImm.MustPack(encode.U("Q", 1), encode.U("U", u), encode.U("opcode", opcode))
}

// OpAcross returns an across-lanes reduction base word
func OpAcross(u, size, opcode uint32) uint32 {
	return AcrossLanes.MustPack(encode.U("Q", 1), encode.U("U", u), encode.U("size", size), encode.U("opcode", opcode))
}

// OpDup returns DUP Vd.T, Wn/Xn for lanes of esize bits
func OpDup(esize int) uint32 {
	return Copy.MustPack(encode.U("Q", 1), encode.U("imm5", imm5(esize, 0)), encode.U("imm4", 1))
}

// imm5 encodes the element size and index of copy instructions
func imm5(esize, index int) uint32 {
	switch esize {
	case 8:
		return uint32(index)<<1 | 1
	case 16:
		return uint32(index)<<2 | 2
	case 32:
		return uint32(index)<<3 | 4
	}
	return uint32(index)<<4 | 8
}

// SizeOf is the size field value for lanes of esize bits
func SizeOf(esize int) uint32 {
	switch esize {
	case 8:
		return 0
	case 16:
		return 1
	case 32:
		return 2
	}
	return 3
}
