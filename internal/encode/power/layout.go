package power

import (
	"github.com/xyproto/vlower/internal/encode"
)

// Word layouts. Fields are counted from the least significant bit, so the
// primary opcode is at shift 26.
var (
	VX = &encode.Layout{Name: "VX", Fixed: 4 << 26, Mask: 0xFC000000, Fields: []encode.Field{
		encode.F("VRT", 21, 5), encode.F("VRA", 16, 5), encode.F("VRB", 11, 5), encode.F("XO", 0, 11),
	}}
	VC = &encode.Layout{Name: "VC", Fixed: 4 << 26, Mask: 0xFC000000, Fields: []encode.Field{
		encode.F("VRT", 21, 5), encode.F("VRA", 16, 5), encode.F("VRB", 11, 5), encode.F("Rc", 10, 1), encode.F("XO", 0, 10),
	}}
	XX2 = &encode.Layout{Name: "XX2", Fixed: 60 << 26, Mask: 0xFC000000, Fields: []encode.Field{
		encode.F("T", 21, 5), encode.F("A", 16, 5), encode.F("B", 11, 5), encode.F("XO", 2, 9), encode.F("BX", 1, 1), encode.F("TX", 0, 1),
	}}
	XX3 = &encode.Layout{Name: "XX3", Fixed: 60 << 26, Mask: 0xFC000000, Fields: []encode.Field{
		encode.F("T", 21, 5), encode.F("A", 16, 5), encode.F("B", 11, 5), encode.F("XO", 3, 8), encode.F("AX", 2, 1), encode.F("BX", 1, 1), encode.F("TX", 0, 1),
	}}
	XX4 = &encode.Layout{Name: "XX4", Fixed: 60<<26 | 3<<4, Mask: 0xFC000030, Fields: []encode.Field{
		encode.F("T", 21, 5), encode.F("A", 16, 5), encode.F("B", 11, 5), encode.F("C", 6, 5), encode.F("CX", 3, 1), encode.F("AX", 2, 1), encode.F("BX", 1, 1), encode.F("TX", 0, 1),
	}}
	DQ = &encode.Layout{Name: "DQ", Fixed: 61 << 26, Mask: 0xFC000000, Fields: []encode.Field{
		encode.F("T", 21, 5), encode.F("RA", 16, 5), encode.F("DQ", 4, 12), encode.F("TX", 3, 1), encode.F("XO", 0, 3),
	}}
	XX1 = &encode.Layout{Name: "XX1", Fixed: 31 << 26, Mask: 0xFC000000, Fields: []encode.Field{
		encode.F("T", 21, 5), encode.F("RA", 16, 5), encode.F("RB", 11, 5), encode.F("XO", 1, 10), encode.F("TX", 0, 1),
	}}
	D = &encode.Layout{Name: "D", Mask: 0, Fields: []encode.Field{
		encode.F("PO", 26, 6), encode.F("RT", 21, 5), encode.F("RA", 16, 5), encode.F("D", 0, 16),
	}}
	DS = &encode.Layout{Name: "DS", Mask: 0, Fields: []encode.Field{
		encode.F("PO", 26, 6), encode.F("RT", 21, 5), encode.F("RA", 16, 5), encode.F("DS", 2, 14), encode.F("XO", 0, 2),
	}}
	X = &encode.Layout{Name: "X", Mask: 0, Fields: []encode.Field{
		encode.F("PO", 26, 6), encode.F("RT", 21, 5), encode.F("RA", 16, 5), encode.F("RB", 11, 5), encode.F("XO", 1, 10), encode.F("Rc", 0, 1),
	}}
	XO = &encode.Layout{Name: "XO", Fixed: 31 << 26, Mask: 0xFC000000, Fields: []encode.Field{
		encode.F("RT", 21, 5), encode.F("RA", 16, 5), encode.F("RB", 11, 5), encode.F("OE", 10, 1), encode.F("XO", 1, 9), encode.F("Rc", 0, 1),
	}}
	A = &encode.Layout{Name: "A", Fixed: 31<<26 | 15<<1, Mask: 0xFC00003E, Fields: []encode.Field{
		encode.F("RT", 21, 5), encode.F("RA", 16, 5), encode.F("RB", 11, 5), encode.F("BC", 6, 5),
	}}
	MD = &encode.Layout{Name: "MD", Fixed: 30 << 26, Mask: 0xFC000000, Fields: []encode.Field{
		encode.F("RS", 21, 5), encode.F("RA", 16, 5), encode.F("sh", 11, 5), encode.F("mb", 5, 6), encode.F("XO", 2, 3), encode.F("sh5", 1, 1), encode.F("Rc", 0, 1),
	}}
	BForm = &encode.Layout{Name: "B", Fixed: 16 << 26, Mask: 0xFC000000, Fields: []encode.Field{
		encode.F("BO", 21, 5), encode.F("BI", 16, 5), encode.F("BD", 2, 14), encode.F("AA", 1, 1), encode.F("LK", 0, 1),
	}}
	XFL = &encode.Layout{Name: "XFL", Fixed: 63<<26 | 711<<1, Mask: 0xFC0007FE, Fields: []encode.Field{
		encode.F("L", 25, 1), encode.F("FLM", 17, 8), encode.F("W", 16, 1), encode.F("FRB", 11, 5), encode.F("Rc", 0, 1),
	}}
)

// Primary and extended opcodes of the scalar instructions
const (
	OpAddi  = 14
	OpAddis = 15
	OpOri   = 24
	OpOris  = 25
	OpLbz   = 34
	OpLhz   = 40
	OpLha   = 42
	OpLwz   = 32
	OpStb   = 38
	OpSth   = 44
	OpStw   = 36
	OpLdDS  = 58 // ld XO 0, lwa XO 2
	OpStdDS = 62
	OpLfd   = 50
	OpStfd  = 54
	OpX     = 31 // X and XO forms of the fixed point instructions
	OpFP    = 63 // X forms of the floating point status instructions

	XOAdd     = 266
	XOSubf    = 40
	XOMulld   = 233
	XOSld     = 27
	XOSrd     = 539
	XOSrad    = 794
	XOCmp     = 0
	XOMffs    = 583
	XOMtfsfi  = 134
	XOMtvsrws = 403
	XOMtvsrdd = 435
	XOOr      = 444
	XOExtsb   = 954
	XOExtsw   = 986
	XOVxor    = 1220

	XORldicl = 0 // MD form
	XORldicr = 1
)

// BO value of bc that branches when the condition bit is set
const BOTrue = 12

// CR6 bit numbers written by vector compares with Rc set
const (
	CR6All  = 24
	CR6None = 26
)

// Layouts lists every vector layout, for decoding
var Layouts = []*encode.Layout{XX4, XX3, XX2, DQ, VC, VX}

// OpVX returns a VX base word
func OpVX(xo uint32) uint32 {
	return VX.MustPack(encode.U("XO", xo))
}

// OpVXUnary returns a VX base word with a fixed VRA selector
func OpVXUnary(xo, vra uint32) uint32 {
	return VX.MustPack(encode.U("XO", xo), encode.U("VRA", vra))
}

// OpVC returns a vector compare base word with Rc clear
func OpVC(xo uint32) uint32 {
	return VC.MustPack(encode.U("XO", xo))
}

// OpXX3 returns an XX3 base word
func OpXX3(xo uint32) uint32 {
	return XX3.MustPack(encode.U("XO", xo))
}

// OpXX2 returns an XX2 base word
func OpXX2(xo uint32) uint32 {
	return XX2.MustPack(encode.U("XO", xo))
}

// OpDQ returns lxv (store false) or stxv (store true)
func OpDQ(store bool) uint32 {
	xo := uint32(1)
	if store {
		xo = 5
	}
	return DQ.MustPack(encode.U("XO", xo))
}

// OpXX1 returns a GPR to VSR move base word
func OpXX1(xo uint32) uint32 {
	return XX1.MustPack(encode.U("XO", xo))
}
