package profile

import (
	"strings"

	"github.com/xyproto/vlower/internal/encode"
	pw "github.com/xyproto/vlower/internal/encode/power"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// pRow is one Power vector instruction per lane width. Widths without a
// name have no native form.
type pRow struct {
	code  vop.Code
	kinds []vop.Kind
	form  isa.WordForm
	names [4]string // 8, 16, 32, 64
	xo    [4]uint32
	comm  bool
	swap  bool
}

func widthIndex(w int) int {
	switch w {
	case 8:
		return 0
	case 16:
		return 1
	case 32:
		return 2
	}
	return 3
}

var pIntRows = []pRow{
	{code: vop.OpAdd, kinds: uintInt, form: isa.PVX, names: [4]string{"vaddubm", "vadduhm", "vadduwm", "vaddudm"}, xo: [4]uint32{0, 64, 128, 192}, comm: true},
	{code: vop.OpSub, kinds: uintInt, form: isa.PVX, names: [4]string{"vsububm", "vsubuhm", "vsubuwm", "vsubudm"}, xo: [4]uint32{1024, 1088, 1152, 1216}},
	{code: vop.OpAddSat, kinds: onlyU, form: isa.PVX, names: [4]string{"vaddubs", "vadduhs", "vadduws"}, xo: [4]uint32{512, 576, 640}, comm: true},
	{code: vop.OpAddSat, kinds: onlyI, form: isa.PVX, names: [4]string{"vaddsbs", "vaddshs", "vaddsws"}, xo: [4]uint32{768, 832, 896}, comm: true},
	{code: vop.OpSubSat, kinds: onlyU, form: isa.PVX, names: [4]string{"vsububs", "vsubuhs", "vsubuws"}, xo: [4]uint32{1536, 1600, 1664}},
	{code: vop.OpSubSat, kinds: onlyI, form: isa.PVX, names: [4]string{"vsubsbs", "vsubshs", "vsubsws"}, xo: [4]uint32{1792, 1856, 1920}},
	{code: vop.OpMul, kinds: uintInt, form: isa.PVX, names: [4]string{2: "vmuluwm"}, xo: [4]uint32{2: 137}, comm: true},
	{code: vop.OpMax, kinds: onlyI, form: isa.PVX, names: [4]string{"vmaxsb", "vmaxsh", "vmaxsw", "vmaxsd"}, xo: [4]uint32{258, 322, 386, 450}, comm: true},
	{code: vop.OpMax, kinds: onlyU, form: isa.PVX, names: [4]string{"vmaxub", "vmaxuh", "vmaxuw", "vmaxud"}, xo: [4]uint32{2, 66, 130, 194}, comm: true},
	{code: vop.OpMin, kinds: onlyI, form: isa.PVX, names: [4]string{"vminsb", "vminsh", "vminsw", "vminsd"}, xo: [4]uint32{770, 834, 898, 962}, comm: true},
	{code: vop.OpMin, kinds: onlyU, form: isa.PVX, names: [4]string{"vminub", "vminuh", "vminuw", "vminud"}, xo: [4]uint32{514, 578, 642, 706}, comm: true},
	{code: vop.OpShlVar, kinds: uintInt, form: isa.PVX, names: [4]string{"vslb", "vslh", "vslw", "vsld"}, xo: [4]uint32{260, 324, 388, 1476}},
	{code: vop.OpShrVar, kinds: uintInt, form: isa.PVX, names: [4]string{"vsrb", "vsrh", "vsrw", "vsrd"}, xo: [4]uint32{516, 580, 644, 1732}},
	{code: vop.OpSraVar, kinds: uintInt, form: isa.PVX, names: [4]string{"vsrab", "vsrah", "vsraw", "vsrad"}, xo: [4]uint32{772, 836, 900, 964}},
	{code: vop.OpCmpEQ, kinds: uintInt, form: isa.PVC, names: [4]string{"vcmpequb", "vcmpequh", "vcmpequw", "vcmpequd"}, xo: [4]uint32{6, 70, 134, 199}, comm: true},
	{code: vop.OpCmpNE, kinds: uintInt, form: isa.PVC, names: [4]string{"vcmpneb", "vcmpneh", "vcmpnew"}, xo: [4]uint32{7, 71, 135}, comm: true},
	{code: vop.OpCmpGT, kinds: onlyI, form: isa.PVC, names: [4]string{"vcmpgtsb", "vcmpgtsh", "vcmpgtsw", "vcmpgtsd"}, xo: [4]uint32{774, 838, 902, 967}},
	{code: vop.OpCmpGT, kinds: onlyU, form: isa.PVC, names: [4]string{"vcmpgtub", "vcmpgtuh", "vcmpgtuw", "vcmpgtud"}, xo: [4]uint32{518, 582, 646, 711}},
	{code: vop.OpCmpLT, kinds: onlyI, form: isa.PVC, names: [4]string{"vcmpgtsb", "vcmpgtsh", "vcmpgtsw", "vcmpgtsd"}, xo: [4]uint32{774, 838, 902, 967}, swap: true},
	{code: vop.OpCmpLT, kinds: onlyU, form: isa.PVC, names: [4]string{"vcmpgtub", "vcmpgtuh", "vcmpgtuw", "vcmpgtud"}, xo: [4]uint32{518, 582, 646, 711}, swap: true},
}

// pFloatRows are the VSX rows, single precision first
var pFloatRows = []struct {
	code   vop.Code
	form   isa.WordForm
	sp, dp string
	xs, xd uint32
	comm   bool
	swap   bool
	est    int
}{
	{vop.OpAdd, isa.PXX3, "xvaddsp", "xvadddp", 64, 96, true, false, 0},
	{vop.OpSub, isa.PXX3, "xvsubsp", "xvsubdp", 72, 104, false, false, 0},
	{vop.OpMul, isa.PXX3, "xvmulsp", "xvmuldp", 80, 112, true, false, 0},
	{vop.OpDiv, isa.PXX3, "xvdivsp", "xvdivdp", 88, 120, false, false, 0},
	{vop.OpMax, isa.PXX3, "xvmaxsp", "xvmaxdp", 192, 224, true, false, 0},
	{vop.OpMin, isa.PXX3, "xvminsp", "xvmindp", 200, 232, true, false, 0},
	{vop.OpMulAdd, isa.PXX3, "xvmaddasp", "xvmaddadp", 65, 97, false, false, 0},
	{vop.OpCmpEQ, isa.PXX3, "xvcmpeqsp", "xvcmpeqdp", 67, 99, true, false, 0},
	{vop.OpCmpGT, isa.PXX3, "xvcmpgtsp", "xvcmpgtdp", 75, 107, false, false, 0},
	{vop.OpCmpGE, isa.PXX3, "xvcmpgesp", "xvcmpgedp", 83, 115, false, false, 0},
	{vop.OpCmpLT, isa.PXX3, "xvcmpgtsp", "xvcmpgtdp", 75, 107, false, true, 0},
	{vop.OpCmpLE, isa.PXX3, "xvcmpgesp", "xvcmpgedp", 83, 115, false, true, 0},
	{vop.OpSqrt, isa.PXX2, "xvsqrtsp", "xvsqrtdp", 139, 203, false, false, 0},
	{vop.OpNeg, isa.PXX2, "xvnegsp", "xvnegdp", 441, 505, false, false, 0},
	{vop.OpRcpEst, isa.PXX2, "xvresp", "xvredp", 154, 218, false, false, 14},
	{vop.OpRsqEst, isa.PXX2, "xvrsqrtesp", "xvrsqrtedp", 138, 202, false, false, 14},
}

// pRound are the round-to-integral instructions per mode. xvrspi rounds
// ties away from zero, so nearest-even goes through the control register.
var pRound = map[vop.RoundMode]struct {
	sp, dp string
	xs, xd uint32
}{
	vop.RoundDown:    {"xvrspim", "xvrdpim", 185, 249},
	vop.RoundUp:      {"xvrspip", "xvrdpip", 169, 233},
	vop.RoundZero:    {"xvrspiz", "xvrdpiz", 153, 217},
	vop.RoundCurrent: {"xvrspic", "xvrdpic", 171, 235},
}

func pDesc(name string, form isa.WordForm, op uint32) *isa.Desc {
	return &isa.Desc{Name: name, Word: &isa.WordDesc{Form: form, Op: op}}
}

func pWord(form isa.WordForm, xo uint32) uint32 {
	switch form {
	case isa.PVC:
		return pw.OpVC(xo)
	case isa.PXX3:
		return pw.OpXX3(xo)
	case isa.PXX2:
		return pw.OpXX2(xo)
	}
	return pw.OpVX(xo)
}

type powerConfig struct {
	name     string
	features []string
}

func powerProfile(c powerConfig) *Profile {
	p := &Profile{
		Name:         c.name,
		Arch:         isa.ArchPPC64LE,
		NativeBits:   128,
		VectorRegs:   32,
		Features:     c.features,
		TempBase:     11, // r11
		ScalarTemps:  []operand.GPR{8, 9, 10},
		VectorTemps:  []operand.PReg{28, 29, 30, 31},
		EstimateBits: 14,
	}
	floatWidths := []int{32, 64}
	b := newBuilder(p)

	for _, r := range pIntRows {
		for _, w := range vop.ElemWidths {
			i := widthIndex(w)
			if r.names[i] == "" {
				continue
			}
			d := pDesc(r.names[i], r.form, pWord(r.form, r.xo[i]))
			d.Commutative, d.Swap = r.comm, r.swap
			b.native(r.code, r.kinds, []int{w}, d)
		}
	}
	for _, r := range pFloatRows {
		for _, w := range floatWidths {
			name, xo := r.sp, r.xs
			if w == 64 {
				name, xo = r.dp, r.xd
			}
			d := pDesc(name, r.form, pWord(r.form, xo))
			d.Commutative, d.Swap, d.EstimateBits = r.comm, r.swap, r.est
			b.native(r.code, onlyF, []int{w}, d)
		}
	}
	b.native(vop.OpNeg, uintInt, []int{32}, pDesc("vnegw", isa.PVXUnary, pw.OpVXUnary(1538, 6)))
	b.native(vop.OpNeg, uintInt, []int{64}, pDesc("vnegd", isa.PVXUnary, pw.OpVXUnary(1538, 7)))

	// bitwise, moves and masks work on whole registers
	logic := []struct {
		code vop.Code
		name string
		xo   uint32
		comm bool
		swap bool
	}{
		{vop.OpAnd, "vand", 1028, true, false},
		{vop.OpAndNot, "vandc", 1092, false, true},
		{vop.OpOr, "vor", 1156, true, false},
		{vop.OpXor, "vxor", 1220, true, false},
		{vop.OpNot, "vnor", 1284, false, false},
		{vop.OpMove, "vor", 1156, false, false},
	}
	lxv := &isa.Desc{Name: "lxv", Word: &isa.WordDesc{Form: isa.PDQ, Op: pw.OpDQ(false)}}
	stxv := &isa.Desc{Name: "stxv", Word: &isa.WordDesc{Form: isa.PDQ, Op: pw.OpDQ(true)}}
	xxsel := &isa.Desc{Name: "xxsel", Word: &isa.WordDesc{Form: isa.PXX4, Op: pw.XX4.MustPack()}}
	branch := &isa.Desc{Name: "vcmpequb.+bc", VTemps: 1, Word: &isa.WordDesc{
		Form: isa.PMaskBranch,
		Op:   pw.VC.MustPack(encode.U("XO", 6), encode.U("Rc", 1)),
		Aux:  pw.BForm.MustPack(encode.U("BO", pw.BOTrue), encode.U("BI", pw.CR6All)),
	}}
	for _, w := range vop.ElemWidths {
		kinds := uintInt
		if contains(floatWidths, w) {
			kinds = allKinds
		}
		for _, l := range logic {
			d := pDesc(l.name, isa.PVX, pw.OpVX(l.xo))
			d.Commutative, d.Swap = l.comm, l.swap
			b.native(l.code, kinds, []int{w}, d)
		}
		b.nativeForm(vop.OpLoad, kinds, []int{w}, vop.FormRegMem, lxv)
		b.nativeForm(vop.OpStore, kinds, []int{w}, vop.FormRegMem, stxv)
		b.native(vop.OpMerge, kinds, []int{w}, xxsel)
		b.set(Key{Code: vop.OpMaskBranch, Kind: vop.KindUint, Width: w}, Native(branch))
	}
	for _, w := range []int{32, 64} {
		name, xo := "mtvsrws", uint32(pw.XOMtvsrws)
		if w == 64 {
			name, xo = "mtvsrdd", pw.XOMtvsrdd
		}
		b.native(vop.OpSplat, allKinds, []int{w}, pDesc(name, isa.PSplat, pw.OpXX1(xo)))
	}

	powerConversions(b, floatWidths)

	b.fallback(vop.OpSplat, uintInt, []int{8, 16}, RecipeSplatNarrow)
	b.fallback(vop.OpMul, uintInt, []int{8, 16, 64}, RecipeScalarLoop)
	b.fallback(vop.OpNeg, uintInt, []int{8, 16}, RecipeNegSub)
	b.fallback(vop.OpCmpNE, uintInt, []int{64}, RecipeCompareNot)
	b.fallback(vop.OpCmpNE, onlyF, floatWidths, RecipeCompareNot)
	b.fallback(vop.OpCmpGE, uintInt, vop.ElemWidths, RecipeCompareNot)
	b.fallback(vop.OpCmpLE, uintInt, vop.ElemWidths, RecipeCompareNot)
	b.fallback(vop.OpRcpStep, onlyF, floatWidths, RecipeRcpStep)
	b.fallback(vop.OpRsqStep, onlyF, floatWidths, RecipeRsqStep)
	for _, code := range []vop.Code{vop.OpShlImm, vop.OpShrImm, vop.OpSraImm} {
		b.fallbackForm(code, uintInt, vop.ElemWidths, vop.FormRegImm, RecipeShiftViaVar)
	}
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
	b.scalars(powerScalarDesc)
	b.memoryForms(vop.OpAdd, vop.OpSub, vop.OpMul, vop.OpDiv, vop.OpMin, vop.OpMax,
		vop.OpAddSat, vop.OpSubSat, vop.OpAnd, vop.OpAndNot, vop.OpOr, vop.OpXor,
		vop.OpCmpEQ, vop.OpCmpGT, vop.OpCmpLT, vop.OpSqrt)
	return b.done()
}

func powerConversions(b *builder, floatWidths []int) {
	cvt := map[vop.Kind][2]struct {
		name string
		xo   uint32
	}{
		vop.KindInt:  {{"xvcvspsxws", 152}, {"xvcvdpsxds", 216}},
		vop.KindUint: {{"xvcvspuxws", 136}, {"xvcvdpuxds", 200}},
	}
	toFloat := map[vop.Kind][2]struct {
		name string
		xo   uint32
	}{
		vop.KindInt:  {{"xvcvsxwsp", 184}, {"xvcvsxddp", 248}},
		vop.KindUint: {{"xvcvuxwsp", 168}, {"xvcvuxddp", 232}},
	}
	for _, w := range floatWidths {
		i := 0
		if w == 64 {
			i = 1
		}
		for _, mode := range roundModes {
			if r, ok := pRound[mode]; ok {
				name, xo := r.sp, r.xs
				if w == 64 {
					name, xo = r.dp, r.xd
				}
				b.rounding(vop.OpRound, onlyF, w, mode, Native(pDesc(name, isa.PXX2, pw.OpXX2(xo))))
			} else {
				b.rounding(vop.OpRound, onlyF, w, mode, Fallback(RecipeRoundControl))
			}
			for _, kind := range uintInt {
				if mode == vop.RoundZero {
					c := cvt[kind][i]
					b.rounding(vop.OpCvtFToI, []vop.Kind{kind}, w, mode, Native(pDesc(c.name, isa.PXX2, pw.OpXX2(c.xo))))
					continue
				}
				b.rounding(vop.OpCvtFToI, []vop.Kind{kind}, w, mode, Fallback(RecipeRoundConvert))
			}
		}
		for _, kind := range uintInt {
			c := toFloat[kind][i]
			b.native(vop.OpCvtIToF, []vop.Kind{kind}, []int{w}, pDesc(c.name, isa.PXX2, pw.OpXX2(c.xo)))
		}
	}
}

var powerScalars = map[string]*isa.Desc{}

func powerScalarDesc(name string) *isa.Desc {
	if d, ok := powerScalars[name]; ok {
		return d
	}
	form := isa.PScalar
	if strings.HasPrefix(name, "ctl") {
		form = isa.PControl
	}
	d := &isa.Desc{Name: name, Word: &isa.WordDesc{Form: form}}
	powerScalars[name] = d
	return d
}
