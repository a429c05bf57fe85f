package profile

import (
	"strings"

	"github.com/xyproto/vlower/internal/encode"
	a64 "github.com/xyproto/vlower/internal/encode/arm64"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

func aw(name string, form isa.WordForm, op uint32) *isa.Desc {
	return &isa.Desc{Name: name, Word: &isa.WordDesc{Form: form, Op: op}}
}

// a64Int is a three-same integer row. signed and unsigned forms may differ.
type a64Int struct {
	code    vop.Code
	name    string
	u       uint32
	opcode  uint32
	uname   string // unsigned variant, if any
	uu      uint32
	uopcode uint32
	widths  []int
	comm    bool
	swap    bool
	logical bool   // size field selects the operation, not the lane width
	size    uint32 // fixed size field of logical rows
}

var (
	w8to64 = []int{8, 16, 32, 64}
	w8to32 = []int{8, 16, 32}
)

var a64IntRows = []a64Int{
	{code: vop.OpAdd, name: "add", opcode: 0x10, widths: w8to64, comm: true},
	{code: vop.OpSub, name: "sub", u: 1, opcode: 0x10, widths: w8to64},
	{code: vop.OpMul, name: "mul", opcode: 0x13, widths: w8to32, comm: true},
	{code: vop.OpAddSat, name: "sqadd", opcode: 0x01, uname: "uqadd", uu: 1, uopcode: 0x01, widths: w8to64, comm: true},
	{code: vop.OpSubSat, name: "sqsub", opcode: 0x05, uname: "uqsub", uu: 1, uopcode: 0x05, widths: w8to64},
	{code: vop.OpMax, name: "smax", opcode: 0x0C, uname: "umax", uu: 1, uopcode: 0x0C, widths: w8to32, comm: true},
	{code: vop.OpMin, name: "smin", opcode: 0x0D, uname: "umin", uu: 1, uopcode: 0x0D, widths: w8to32, comm: true},
	{code: vop.OpCmpEQ, name: "cmeq", u: 1, opcode: 0x11, widths: w8to64, comm: true},
	{code: vop.OpCmpGT, name: "cmgt", opcode: 0x06, uname: "cmhi", uu: 1, uopcode: 0x06, widths: w8to64},
	{code: vop.OpCmpGE, name: "cmge", opcode: 0x07, uname: "cmhs", uu: 1, uopcode: 0x07, widths: w8to64},
	{code: vop.OpCmpLT, name: "cmgt", opcode: 0x06, uname: "cmhi", uu: 1, uopcode: 0x06, widths: w8to64, swap: true},
	{code: vop.OpCmpLE, name: "cmge", opcode: 0x07, uname: "cmhs", uu: 1, uopcode: 0x07, widths: w8to64, swap: true},
	{code: vop.OpShlVar, name: "sshl", opcode: 0x08, uname: "ushl", uu: 1, uopcode: 0x08, widths: w8to64},
	{code: vop.OpAnd, name: "and", opcode: 0x03, logical: true, size: 0, comm: true},
	{code: vop.OpAndNot, name: "bic", opcode: 0x03, logical: true, size: 1, swap: true},
	{code: vop.OpOr, name: "orr", opcode: 0x03, logical: true, size: 2, comm: true},
	{code: vop.OpXor, name: "eor", u: 1, opcode: 0x03, logical: true, size: 0, comm: true},
}

// a64Float is a float row: three-same when two is false, two-misc
// otherwise. hi is the high bit of the size field; the low bit selects
// double precision. Half precision rows use the same U, hi and the low
// three opcode bits (three-same) or the full opcode (two-misc).
type a64Float struct {
	code   vop.Code
	name   string
	u      uint32
	hi     uint32
	opcode uint32
	two    bool
	form   isa.WordForm
	comm   bool
	swap   bool
	est    int
}

var a64FloatRows = []a64Float{
	{code: vop.OpAdd, name: "fadd", opcode: 0x1A, comm: true},
	{code: vop.OpSub, name: "fsub", hi: 1, opcode: 0x1A},
	{code: vop.OpMul, name: "fmul", u: 1, opcode: 0x1B, comm: true},
	{code: vop.OpDiv, name: "fdiv", u: 1, opcode: 0x1F},
	{code: vop.OpMax, name: "fmax", opcode: 0x1E, comm: true},
	{code: vop.OpMin, name: "fmin", hi: 1, opcode: 0x1E, comm: true},
	{code: vop.OpCmpEQ, name: "fcmeq", opcode: 0x1C, comm: true},
	{code: vop.OpCmpGE, name: "fcmge", u: 1, opcode: 0x1C},
	{code: vop.OpCmpGT, name: "fcmgt", u: 1, hi: 1, opcode: 0x1C},
	{code: vop.OpCmpLE, name: "fcmge", u: 1, opcode: 0x1C, swap: true},
	{code: vop.OpCmpLT, name: "fcmgt", u: 1, hi: 1, opcode: 0x1C, swap: true},
	{code: vop.OpMulAdd, name: "fmla", opcode: 0x19, form: isa.A64Accumulate},
	{code: vop.OpRcpStep, name: "frecps", opcode: 0x1F, comm: true},
	{code: vop.OpRsqStep, name: "frsqrts", hi: 1, opcode: 0x1F, comm: true},

	{code: vop.OpSqrt, name: "fsqrt", u: 1, hi: 1, opcode: 0x1F, two: true},
	{code: vop.OpNeg, name: "fneg", u: 1, hi: 1, opcode: 0x0F, two: true},
	{code: vop.OpRcpEst, name: "frecpe", hi: 1, opcode: 0x1D, two: true, est: 8},
	{code: vop.OpRsqEst, name: "frsqrte", u: 1, hi: 1, opcode: 0x1D, two: true, est: 8},
}

// a64Modes are the per-mode rounding and conversion instructions. Round
// uses FRINT*, float to int uses FCVT*S with U set for unsigned results.
var a64Modes = map[vop.RoundMode]struct {
	frint, fcvt  string
	ru, rhi, rop uint32
	chi, cop     uint32
	convert      bool // FCVT exists for this mode
}{
	vop.RoundNearest: {"frintn", "fcvtns", 0, 0, 0x18, 0, 0x1A, true},
	vop.RoundDown:    {"frintm", "fcvtms", 0, 0, 0x19, 0, 0x1B, true},
	vop.RoundUp:      {"frintp", "fcvtps", 0, 1, 0x18, 1, 0x1A, true},
	vop.RoundZero:    {"frintz", "fcvtzs", 0, 1, 0x19, 1, 0x1B, true},
	vop.RoundCurrent: {"frinti", "", 1, 1, 0x19, 0, 0, false},
}

type a64Config struct {
	name     string
	fp16     bool
	features []string
}

func a64Profile(c a64Config) *Profile {
	p := &Profile{
		Name:         c.name,
		Arch:         isa.ArchARM64,
		NativeBits:   128,
		VectorRegs:   32,
		Features:     c.features,
		TempBase:     17, // x17
		ScalarTemps:  []operand.GPR{9, 10, 11},
		VectorTemps:  []operand.PReg{28, 29, 30, 31},
		EstimateBits: 8,
	}
	floatWidths := []int{32, 64}
	if c.fp16 {
		floatWidths = []int{16, 32, 64}
	}
	b := newBuilder(p)

	for _, r := range a64IntRows {
		a64IntRow(b, r, floatWidths)
	}
	for _, r := range a64FloatRows {
		for _, w := range floatWidths {
			d := a64FloatDesc(r, w)
			d.Commutative, d.Swap, d.EstimateBits = r.comm, r.swap, r.est
			b.native(r.code, onlyF, []int{w}, d)
		}
	}

	// unary integer and bitwise
	for _, w := range w8to64 {
		size := a64.SizeOf(w)
		b.native(vop.OpNeg, uintInt, []int{w}, aw("neg", isa.A64TwoMisc, a64.Op2(1, size, 0x0B)))
		shl := aw("shl", isa.A64ShiftLeft, a64.OpShift(0, 0x0A))
		ushr := aw("ushr", isa.A64ShiftRight, a64.OpShift(1, 0x00))
		sshr := aw("sshr", isa.A64ShiftRight, a64.OpShift(0, 0x00))
		b.nativeForm(vop.OpShlImm, uintInt, []int{w}, vop.FormRegImm, shl)
		b.nativeForm(vop.OpShrImm, uintInt, []int{w}, vop.FormRegImm, ushr)
		b.nativeForm(vop.OpSraImm, uintInt, []int{w}, vop.FormRegImm, sshr)
	}
	not := aw("not", isa.A64TwoMisc, a64.Op2(1, 0, 0x05))
	mov := aw("mov", isa.A64ThreeSame, a64.Op3(0, 2, 0x03))
	ldr := &isa.Desc{Name: "ldr", Word: &isa.WordDesc{Form: isa.A64LoadStore,
		Op:  a64.LoadStoreUImm.MustPack(encode.U("V", 1), encode.U("opc", 3)),
		Aux: a64.LoadStoreUnscaled.MustPack(encode.U("V", 1), encode.U("opc", 3))}}
	str := &isa.Desc{Name: "str", Word: &isa.WordDesc{Form: isa.A64LoadStore,
		Op:  a64.LoadStoreUImm.MustPack(encode.U("V", 1), encode.U("opc", 2)),
		Aux: a64.LoadStoreUnscaled.MustPack(encode.U("V", 1), encode.U("opc", 2))}}
	merge := &isa.Desc{Name: "bsl", Word: &isa.WordDesc{Form: isa.A64Merge, Op: a64.Op3(1, 1, 0x03)}}
	branch := &isa.Desc{Name: "umaxv+cmp+b.cond", VTemps: 1, GTemps: 1, Word: &isa.WordDesc{
		Form: isa.A64MaskBranch, Op: a64.OpAcross(1, 0, 0x0A), Aux: a64.OpAcross(1, 0, 0x1A)}}
	for _, w := range w8to64 {
		kinds := uintInt
		if contains(floatWidths, w) {
			kinds = allKinds
		}
		b.native(vop.OpNot, kinds, []int{w}, not)
		b.native(vop.OpMove, kinds, []int{w}, mov)
		b.nativeForm(vop.OpLoad, kinds, []int{w}, vop.FormRegMem, ldr)
		b.nativeForm(vop.OpStore, kinds, []int{w}, vop.FormRegMem, str)
		b.native(vop.OpSplat, kinds, []int{w}, aw("dup", isa.A64Dup, a64.OpDup(w)))
		b.native(vop.OpMerge, kinds, []int{w}, merge)
		b.set(Key{Code: vop.OpMaskBranch, Kind: vop.KindUint, Width: w}, Native(branch))
	}

	a64Conversions(b, floatWidths)

	// fallbacks
	b.fallback(vop.OpMul, uintInt, []int{64}, RecipeScalarLoop)
	b.fallback(vop.OpMin, uintInt, []int{64}, RecipeCmpSelect)
	b.fallback(vop.OpMax, uintInt, []int{64}, RecipeCmpSelect)
	b.fallback(vop.OpCmpNE, uintInt, w8to64, RecipeCompareNot)
	b.fallback(vop.OpCmpNE, onlyF, floatWidths, RecipeCompareNot)
	b.fallback(vop.OpShrVar, uintInt, w8to64, RecipeShiftNegate)
	b.fallback(vop.OpSraVar, uintInt, w8to64, RecipeShiftNegate)
	for _, w := range floatWidths {
		rcp, _ := p.Lookup(Key{Code: vop.OpRcpEst, Kind: vop.KindFloat, Width: w})
		rsq, _ := p.Lookup(Key{Code: vop.OpRsqEst, Kind: vop.KindFloat, Width: w})
		fma, _ := p.Lookup(Key{Code: vop.OpMulAdd, Kind: vop.KindFloat, Width: w})
		b.level(vop.OpRcp, w, 0, rcp)
		b.level(vop.OpRcp, w, 1, Fallback(RecipeRcpNewton))
		b.level(vop.OpRsq, w, 0, rsq)
		b.level(vop.OpRsq, w, 1, Fallback(RecipeRsqNewton))
		b.level(vop.OpMulAdd, w, 0, fma)
	}
	b.common(floatWidths)
	b.scalars(a64ScalarDesc)
	b.memoryForms(vop.OpAdd, vop.OpSub, vop.OpMul, vop.OpDiv, vop.OpMin, vop.OpMax,
		vop.OpAddSat, vop.OpSubSat, vop.OpAnd, vop.OpAndNot, vop.OpOr, vop.OpXor,
		vop.OpCmpEQ, vop.OpCmpGT, vop.OpCmpLT, vop.OpSqrt)
	return b.done()
}

func a64IntRow(b *builder, r a64Int, floatWidths []int) {
	widths := r.widths
	if r.logical {
		widths = w8to64
	}
	for _, w := range widths {
		size := a64.SizeOf(w)
		if r.logical {
			size = r.size
		}
		d := aw(r.name, isa.A64ThreeSame, a64.Op3(r.u, size, r.opcode))
		d.Commutative, d.Swap = r.comm, r.swap
		switch {
		case r.logical:
			kinds := uintInt
			if contains(floatWidths, w) {
				kinds = allKinds
			}
			b.native(r.code, kinds, []int{w}, d)
		case r.uname != "":
			ud := aw(r.uname, isa.A64ThreeSame, a64.Op3(r.uu, size, r.uopcode))
			ud.Commutative, ud.Swap = r.comm, r.swap
			b.native(r.code, onlyI, []int{w}, d)
			b.native(r.code, onlyU, []int{w}, ud)
		default:
			b.native(r.code, uintInt, []int{w}, d)
		}
	}
}

func a64FloatDesc(r a64Float, w int) *isa.Desc {
	form := r.form
	if r.two {
		form = isa.A64TwoMisc
	}
	var op uint32
	switch {
	case w == 16 && r.two:
		op = a64.Op2H(r.u, r.hi, r.opcode)
	case w == 16:
		op = a64.Op3H(r.u, r.hi, r.opcode&7)
	case r.two:
		op = a64.Op2(r.u, r.hi<<1|sz(w), r.opcode)
	default:
		op = a64.Op3(r.u, r.hi<<1|sz(w), r.opcode)
	}
	return aw(r.name, form, op)
}

func sz(w int) uint32 {
	if w == 64 {
		return 1
	}
	return 0
}

// twoMiscF builds a float two-misc word for any float width
func twoMiscF(uBit, hi, opcode uint32, w int) uint32 {
	if w == 16 {
		return a64.Op2H(uBit, hi, opcode)
	}
	return a64.Op2(uBit, hi<<1|sz(w), opcode)
}

func a64Conversions(b *builder, floatWidths []int) {
	for mode, m := range a64Modes {
		for _, w := range floatWidths {
			b.rounding(vop.OpRound, onlyF, w, mode, Native(aw(m.frint, isa.A64TwoMisc, twoMiscF(m.ru, m.rhi, m.rop, w))))
			if !m.convert {
				b.rounding(vop.OpCvtFToI, uintInt, w, mode, Fallback(RecipeRoundConvert))
				continue
			}
			b.rounding(vop.OpCvtFToI, onlyI, w, mode, Native(aw(m.fcvt, isa.A64TwoMisc, twoMiscF(0, m.chi, m.cop, w))))
			b.rounding(vop.OpCvtFToI, onlyU, w, mode, Native(aw(strings.TrimSuffix(m.fcvt, "s")+"u", isa.A64TwoMisc, twoMiscF(1, m.chi, m.cop, w))))
		}
	}
	for _, w := range floatWidths {
		b.native(vop.OpCvtIToF, onlyI, []int{w}, aw("scvtf", isa.A64TwoMisc, twoMiscF(0, 0, 0x1D, w)))
		b.native(vop.OpCvtIToF, onlyU, []int{w}, aw("ucvtf", isa.A64TwoMisc, twoMiscF(1, 0, 0x1D, w)))
	}
}

var a64Scalars = map[string]*isa.Desc{}

func a64ScalarDesc(name string) *isa.Desc {
	if d, ok := a64Scalars[name]; ok {
		return d
	}
	form, gtemps := isa.A64Scalar, 0
	switch {
	case name == "ctlsetround":
		form, gtemps = isa.A64Control, 2
	case strings.HasPrefix(name, "ctl"):
		form, gtemps = isa.A64Control, 1
	}
	d := &isa.Desc{Name: name, Word: &isa.WordDesc{Form: form}, GTemps: gtemps}
	a64Scalars[name] = d
	return d
}
