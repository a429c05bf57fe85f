package profile

import (
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// x86Level is the set of encodings a row exists in
type x86Level uint8

const (
	xSSE x86Level = 1 << iota // legacy SSE4.2
	xAVX                      // VEX, AVX2
	xF                        // EVEX, AVX-512F
	xBW                       // EVEX, AVX-512BW
	xDQ                       // EVEX, AVX-512DQ

	xAll   = xSSE | xAVX | xF
	xAllBW = xSSE | xAVX | xBW
	xVEXF  = xAVX | xF
)

// x86Row is one instruction of the x86 table. name is the legacy
// mnemonic; VEX and EVEX forms get a "v" prefix unless evex is set.
type x86Row struct {
	code   vop.Code
	kinds  []vop.Kind
	width  int
	name   string
	evex   string
	mp     isa.Map
	pp     isa.Prefix
	op     byte
	form   isa.X86Form
	digit  uint8
	imm    int
	lv     x86Level
	w      bool // REX.W / VEX.W
	ew     bool // EVEX.W
	comm   bool
	swap   bool
	est    int
	rounds bool
}

func xr(code vop.Code, kinds []vop.Kind, width int, name string, mp isa.Map, pp isa.Prefix, op byte, lv x86Level) x86Row {
	return x86Row{code: code, kinds: kinds, width: width, name: name, mp: mp, pp: pp, op: op, form: isa.X86RVM, imm: -1, lv: lv}
}

func (r x86Row) W() x86Row                  { r.w, r.ew = true, true; return r }
func (r x86Row) EW() x86Row                 { r.ew = true; return r }
func (r x86Row) Comm() x86Row               { r.comm = true; return r }
func (r x86Row) Swap() x86Row               { r.swap = true; return r }
func (r x86Row) Form(f isa.X86Form) x86Row  { r.form = f; return r }
func (r x86Row) Digit(d uint8) x86Row       { r.form, r.digit = isa.X86VMI, d; return r }
func (r x86Row) Imm(i int) x86Row           { r.imm = i; return r }
func (r x86Row) Evex(name string) x86Row    { r.evex = name; return r }
func (r x86Row) Est(bits int) x86Row        { r.est = bits; return r }
func (r x86Row) Rounds() x86Row             { r.rounds = true; return r }
func (r x86Row) Kinds(k ...vop.Kind) x86Row { r.kinds = k; return r }

func (r x86Row) in(enc isa.Encoding, has x86Level) bool {
	switch enc {
	case isa.EncLegacy:
		return r.lv&xSSE != 0
	case isa.EncVEX:
		return r.lv&xAVX != 0
	default:
		return r.lv&has&(xF|xBW|xDQ) != 0
	}
}

func (r x86Row) desc(enc isa.Encoding) *isa.Desc {
	name := r.name
	if enc != isa.EncLegacy {
		if r.evex != "" && enc == isa.EncEVEX {
			name = r.evex
		} else if name[0] != 'v' {
			name = "v" + name
		}
	}
	x := &isa.X86Desc{
		Enc:      enc,
		Map:      r.mp,
		PP:       r.pp,
		Op:       r.op,
		Form:     r.form,
		Digit:    r.digit,
		W:        r.w,
		Rounding: r.rounds && enc == isa.EncEVEX,
	}
	if enc == isa.EncEVEX {
		x.W = r.ew
	}
	if r.imm >= 0 {
		x.Imm, x.HasImm = uint8(r.imm), true
	}
	d := &isa.Desc{
		Name:         name,
		X86:          x,
		Commutative:  r.comm,
		Swap:         r.swap,
		EstimateBits: r.est,
	}
	if enc == isa.EncLegacy && !r.comm {
		switch r.form {
		case isa.X86RVM, isa.X86RVMI:
			d.Constraint = isa.ConstraintDstNotSrc2
		}
	}
	return d
}

var (
	m0F   = isa.Map0F
	m0F38 = isa.Map0F38
	m0F3A = isa.Map0F3A
	pNone = isa.PrefixNone
	p66   = isa.Prefix66
	pF3   = isa.PrefixF3
	pF2   = isa.PrefixF2
)

// x86Rows is the instruction table shared by all x86 profiles
var x86Rows = []x86Row{
	// integer add/sub
	xr(vop.OpAdd, uintInt, 8, "paddb", m0F, p66, 0xFC, xAllBW).Comm(),
	xr(vop.OpAdd, uintInt, 16, "paddw", m0F, p66, 0xFD, xAllBW).Comm(),
	xr(vop.OpAdd, uintInt, 32, "paddd", m0F, p66, 0xFE, xAll).Comm(),
	xr(vop.OpAdd, uintInt, 64, "paddq", m0F, p66, 0xD4, xAll).EW().Comm(),
	xr(vop.OpSub, uintInt, 8, "psubb", m0F, p66, 0xF8, xAllBW),
	xr(vop.OpSub, uintInt, 16, "psubw", m0F, p66, 0xF9, xAllBW),
	xr(vop.OpSub, uintInt, 32, "psubd", m0F, p66, 0xFA, xAll),
	xr(vop.OpSub, uintInt, 64, "psubq", m0F, p66, 0xFB, xAll).EW(),

	// saturating
	xr(vop.OpAddSat, onlyI, 8, "paddsb", m0F, p66, 0xEC, xAllBW).Comm(),
	xr(vop.OpAddSat, onlyI, 16, "paddsw", m0F, p66, 0xED, xAllBW).Comm(),
	xr(vop.OpAddSat, onlyU, 8, "paddusb", m0F, p66, 0xDC, xAllBW).Comm(),
	xr(vop.OpAddSat, onlyU, 16, "paddusw", m0F, p66, 0xDD, xAllBW).Comm(),
	xr(vop.OpSubSat, onlyI, 8, "psubsb", m0F, p66, 0xE8, xAllBW),
	xr(vop.OpSubSat, onlyI, 16, "psubsw", m0F, p66, 0xE9, xAllBW),
	xr(vop.OpSubSat, onlyU, 8, "psubusb", m0F, p66, 0xD8, xAllBW),
	xr(vop.OpSubSat, onlyU, 16, "psubusw", m0F, p66, 0xD9, xAllBW),

	// multiply, low half
	xr(vop.OpMul, uintInt, 16, "pmullw", m0F, p66, 0xD5, xAllBW).Comm(),
	xr(vop.OpMul, uintInt, 32, "pmulld", m0F38, p66, 0x40, xAll).Comm(),
	xr(vop.OpMul, uintInt, 64, "vpmullq", m0F38, p66, 0x40, xDQ).EW().Comm(),

	// integer min/max
	xr(vop.OpMin, onlyI, 8, "pminsb", m0F38, p66, 0x38, xAllBW).Comm(),
	xr(vop.OpMin, onlyI, 16, "pminsw", m0F, p66, 0xEA, xAllBW).Comm(),
	xr(vop.OpMin, onlyI, 32, "pminsd", m0F38, p66, 0x39, xAll).Comm(),
	xr(vop.OpMin, onlyI, 64, "vpminsq", m0F38, p66, 0x39, xF).EW().Comm(),
	xr(vop.OpMin, onlyU, 8, "pminub", m0F, p66, 0xDA, xAllBW).Comm(),
	xr(vop.OpMin, onlyU, 16, "pminuw", m0F38, p66, 0x3A, xAllBW).Comm(),
	xr(vop.OpMin, onlyU, 32, "pminud", m0F38, p66, 0x3B, xAll).Comm(),
	xr(vop.OpMin, onlyU, 64, "vpminuq", m0F38, p66, 0x3B, xF).EW().Comm(),
	xr(vop.OpMax, onlyI, 8, "pmaxsb", m0F38, p66, 0x3C, xAllBW).Comm(),
	xr(vop.OpMax, onlyI, 16, "pmaxsw", m0F, p66, 0xEE, xAllBW).Comm(),
	xr(vop.OpMax, onlyI, 32, "pmaxsd", m0F38, p66, 0x3D, xAll).Comm(),
	xr(vop.OpMax, onlyI, 64, "vpmaxsq", m0F38, p66, 0x3D, xF).EW().Comm(),
	xr(vop.OpMax, onlyU, 8, "pmaxub", m0F, p66, 0xDE, xAllBW).Comm(),
	xr(vop.OpMax, onlyU, 16, "pmaxuw", m0F38, p66, 0x3E, xAllBW).Comm(),
	xr(vop.OpMax, onlyU, 32, "pmaxud", m0F38, p66, 0x3F, xAll).Comm(),
	xr(vop.OpMax, onlyU, 64, "vpmaxuq", m0F38, p66, 0x3F, xF).EW().Comm(),

	// float arithmetic
	xr(vop.OpAdd, onlyF, 32, "addps", m0F, pNone, 0x58, xAll).Comm(),
	xr(vop.OpAdd, onlyF, 64, "addpd", m0F, p66, 0x58, xAll).EW().Comm(),
	xr(vop.OpSub, onlyF, 32, "subps", m0F, pNone, 0x5C, xAll),
	xr(vop.OpSub, onlyF, 64, "subpd", m0F, p66, 0x5C, xAll).EW(),
	xr(vop.OpMul, onlyF, 32, "mulps", m0F, pNone, 0x59, xAll).Comm(),
	xr(vop.OpMul, onlyF, 64, "mulpd", m0F, p66, 0x59, xAll).EW().Comm(),
	xr(vop.OpDiv, onlyF, 32, "divps", m0F, pNone, 0x5E, xAll),
	xr(vop.OpDiv, onlyF, 64, "divpd", m0F, p66, 0x5E, xAll).EW(),
	xr(vop.OpMin, onlyF, 32, "minps", m0F, pNone, 0x5D, xAll),
	xr(vop.OpMin, onlyF, 64, "minpd", m0F, p66, 0x5D, xAll).EW(),
	xr(vop.OpMax, onlyF, 32, "maxps", m0F, pNone, 0x5F, xAll),
	xr(vop.OpMax, onlyF, 64, "maxpd", m0F, p66, 0x5F, xAll).EW(),
	xr(vop.OpSqrt, onlyF, 32, "sqrtps", m0F, pNone, 0x51, xAll).Form(isa.X86RM),
	xr(vop.OpSqrt, onlyF, 64, "sqrtpd", m0F, p66, 0x51, xAll).EW().Form(isa.X86RM),
	xr(vop.OpMulAdd, onlyF, 32, "vfmadd231ps", m0F38, p66, 0xB8, xVEXF),
	xr(vop.OpMulAdd, onlyF, 64, "vfmadd231pd", m0F38, p66, 0xB8, xVEXF).W(),

	// estimates
	xr(vop.OpRcpEst, onlyF, 32, "rcpps", m0F, pNone, 0x53, xSSE|xAVX).Form(isa.X86RM).Est(12),
	xr(vop.OpRsqEst, onlyF, 32, "rsqrtps", m0F, pNone, 0x52, xSSE|xAVX).Form(isa.X86RM).Est(12),
	xr(vop.OpRcpEst, onlyF, 32, "vrcp14ps", m0F38, p66, 0x4C, xF).Form(isa.X86RM).Est(14),
	xr(vop.OpRcpEst, onlyF, 64, "vrcp14pd", m0F38, p66, 0x4C, xF).EW().Form(isa.X86RM).Est(14),
	xr(vop.OpRsqEst, onlyF, 32, "vrsqrt14ps", m0F38, p66, 0x4E, xF).Form(isa.X86RM).Est(14),
	xr(vop.OpRsqEst, onlyF, 64, "vrsqrt14pd", m0F38, p66, 0x4E, xF).EW().Form(isa.X86RM).Est(14),

	// vector-result compares
	xr(vop.OpCmpEQ, uintInt, 8, "pcmpeqb", m0F, p66, 0x74, xSSE|xAVX).Comm(),
	xr(vop.OpCmpEQ, uintInt, 16, "pcmpeqw", m0F, p66, 0x75, xSSE|xAVX).Comm(),
	xr(vop.OpCmpEQ, uintInt, 32, "pcmpeqd", m0F, p66, 0x76, xSSE|xAVX).Comm(),
	xr(vop.OpCmpEQ, uintInt, 64, "pcmpeqq", m0F38, p66, 0x29, xSSE|xAVX).Comm(),
	xr(vop.OpCmpGT, onlyI, 8, "pcmpgtb", m0F, p66, 0x64, xSSE|xAVX),
	xr(vop.OpCmpGT, onlyI, 16, "pcmpgtw", m0F, p66, 0x65, xSSE|xAVX),
	xr(vop.OpCmpGT, onlyI, 32, "pcmpgtd", m0F, p66, 0x66, xSSE|xAVX),
	xr(vop.OpCmpGT, onlyI, 64, "pcmpgtq", m0F38, p66, 0x37, xSSE|xAVX),
	xr(vop.OpCmpLT, onlyI, 8, "pcmpgtb", m0F, p66, 0x64, xSSE|xAVX).Swap(),
	xr(vop.OpCmpLT, onlyI, 16, "pcmpgtw", m0F, p66, 0x65, xSSE|xAVX).Swap(),
	xr(vop.OpCmpLT, onlyI, 32, "pcmpgtd", m0F, p66, 0x66, xSSE|xAVX).Swap(),
	xr(vop.OpCmpLT, onlyI, 64, "pcmpgtq", m0F38, p66, 0x37, xSSE|xAVX).Swap(),
	xr(vop.OpCmpEQ, onlyF, 32, "cmpeqps", m0F, pNone, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(0).Comm(),
	xr(vop.OpCmpEQ, onlyF, 64, "cmpeqpd", m0F, p66, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(0).Comm(),
	xr(vop.OpCmpLT, onlyF, 32, "cmpltps", m0F, pNone, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(1),
	xr(vop.OpCmpLT, onlyF, 64, "cmpltpd", m0F, p66, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(1),
	xr(vop.OpCmpLE, onlyF, 32, "cmpleps", m0F, pNone, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(2),
	xr(vop.OpCmpLE, onlyF, 64, "cmplepd", m0F, p66, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(2),
	xr(vop.OpCmpNE, onlyF, 32, "cmpneqps", m0F, pNone, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(4).Comm(),
	xr(vop.OpCmpNE, onlyF, 64, "cmpneqpd", m0F, p66, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(4).Comm(),
	xr(vop.OpCmpGT, onlyF, 32, "cmpltps", m0F, pNone, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(1).Swap(),
	xr(vop.OpCmpGT, onlyF, 64, "cmpltpd", m0F, p66, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(1).Swap(),
	xr(vop.OpCmpGE, onlyF, 32, "cmpleps", m0F, pNone, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(2).Swap(),
	xr(vop.OpCmpGE, onlyF, 64, "cmplepd", m0F, p66, 0xC2, xSSE|xAVX).Form(isa.X86RVMI).Imm(2).Swap(),

	// immediate shifts
	xr(vop.OpShlImm, uintInt, 16, "psllw", m0F, p66, 0x71, xAllBW).Digit(6),
	xr(vop.OpShlImm, uintInt, 32, "pslld", m0F, p66, 0x72, xAll).Digit(6),
	xr(vop.OpShlImm, uintInt, 64, "psllq", m0F, p66, 0x73, xAll).EW().Digit(6),
	xr(vop.OpShrImm, uintInt, 16, "psrlw", m0F, p66, 0x71, xAllBW).Digit(2),
	xr(vop.OpShrImm, uintInt, 32, "psrld", m0F, p66, 0x72, xAll).Digit(2),
	xr(vop.OpShrImm, uintInt, 64, "psrlq", m0F, p66, 0x73, xAll).EW().Digit(2),
	xr(vop.OpSraImm, uintInt, 16, "psraw", m0F, p66, 0x71, xAllBW).Digit(4),
	xr(vop.OpSraImm, uintInt, 32, "psrad", m0F, p66, 0x72, xAll).Digit(4),
	xr(vop.OpSraImm, uintInt, 64, "vpsraq", m0F, p66, 0x72, xF).EW().Digit(4),

	// per-lane shifts
	xr(vop.OpShlVar, uintInt, 16, "vpsllvw", m0F38, p66, 0x12, xBW).EW(),
	xr(vop.OpShlVar, uintInt, 32, "vpsllvd", m0F38, p66, 0x47, xVEXF),
	xr(vop.OpShlVar, uintInt, 64, "vpsllvq", m0F38, p66, 0x47, xVEXF).W(),
	xr(vop.OpShrVar, uintInt, 16, "vpsrlvw", m0F38, p66, 0x10, xBW).EW(),
	xr(vop.OpShrVar, uintInt, 32, "vpsrlvd", m0F38, p66, 0x45, xVEXF),
	xr(vop.OpShrVar, uintInt, 64, "vpsrlvq", m0F38, p66, 0x45, xVEXF).W(),
	xr(vop.OpSraVar, uintInt, 16, "vpsravw", m0F38, p66, 0x11, xBW).EW(),
	xr(vop.OpSraVar, uintInt, 32, "vpsravd", m0F38, p66, 0x46, xVEXF),
	xr(vop.OpSraVar, uintInt, 64, "vpsravq", m0F38, p66, 0x46, xF).EW(),

	// conversions
	xr(vop.OpCvtIToF, onlyI, 32, "cvtdq2ps", m0F, pNone, 0x5B, xAll).Form(isa.X86RM),
	xr(vop.OpCvtIToF, onlyI, 64, "vcvtqq2pd", m0F, pF3, 0xE6, xDQ).EW().Form(isa.X86RM),
	xr(vop.OpCvtIToF, onlyU, 32, "vcvtudq2ps", m0F, pF2, 0x7A, xF).Form(isa.X86RM),
	xr(vop.OpCvtIToF, onlyU, 64, "vcvtuqq2pd", m0F, pF3, 0x7A, xDQ).EW().Form(isa.X86RM),

	// moves
	xr(vop.OpMove, allKinds, 0, "movaps", m0F, pNone, 0x28, xAll).Form(isa.X86RM),
	xr(vop.OpLoad, allKinds, 0, "movups", m0F, pNone, 0x10, xAll).Form(isa.X86RM),
	xr(vop.OpStore, allKinds, 0, "movups", m0F, pNone, 0x11, xAll).Form(isa.X86MR),
	xr(vop.OpExtractHi, allKinds, 0, "vextracti64x4", m0F3A, p66, 0x3B, xF).EW().Form(isa.X86MRI).Imm(1),
	xr(vop.OpInsertHi, allKinds, 0, "vinserti64x4", m0F3A, p66, 0x3A, xF).EW().Form(isa.X86RVMI).Imm(1),
}

// x86Logic are the bitwise rows. EVEX splits them into d/q forms.
var x86Logic = []struct {
	code vop.Code
	name string
	op   byte
	comm bool
}{
	{vop.OpAnd, "pand", 0xDB, true},
	{vop.OpAndNot, "pandn", 0xDF, false},
	{vop.OpOr, "por", 0xEB, true},
	{vop.OpXor, "pxor", 0xEF, true},
}

// x86Config describes one x86 profile
type x86Config struct {
	name     string
	enc      isa.Encoding
	bits     int
	has      x86Level
	regs     int
	vtemps   int
	features []string
}

func x86Profile(c x86Config) *Profile {
	p := &Profile{
		Name:        c.name,
		Arch:        isa.ArchX86_64,
		NativeBits:  c.bits,
		VectorRegs:  c.regs,
		Features:    c.features,
		TempBase:    11, // r11
		ScalarTemps: []operand.GPR{8, 9, 10},
	}
	if c.vtemps == 0 {
		c.vtemps = 4
	}
	for r := c.regs - c.vtemps; r < c.regs; r++ {
		p.VectorTemps = append(p.VectorTemps, operand.PReg(r))
	}
	p.EstimateBits = 12
	if c.enc == isa.EncEVEX {
		p.EstimateBits = 14
		p.MaskTemp, p.HasMask = 1, true
	}
	b := newBuilder(p)

	for _, r := range x86Rows {
		if !r.in(c.enc, c.has) {
			continue
		}
		d := r.desc(c.enc)
		widths := []int{r.width}
		if r.width == 0 {
			widths = vop.ElemWidths
		}
		for _, w := range widths {
			for _, kind := range r.kinds {
				if kind == vop.KindFloat && w < 32 {
					continue
				}
				b.set(Key{Code: r.code, Kind: kind, Width: w, Form: defaultForm(r.code)}, Native(d))
			}
		}
	}
	x86LogicRows(b, c)
	x86Compares(b, c)
	x86Conversions(b, c)
	x86Splats(b, c)
	x86Masks(b, c)
	x86Fallbacks(b, c)
	b.scalars(x86ScalarDesc)
	b.memoryForms(vop.OpAdd, vop.OpSub, vop.OpMul, vop.OpDiv, vop.OpMin, vop.OpMax,
		vop.OpAddSat, vop.OpSubSat, vop.OpAnd, vop.OpAndNot, vop.OpOr, vop.OpXor,
		vop.OpCmpEQ, vop.OpCmpGT, vop.OpCmpLT, vop.OpSqrt)
	return b.done()
}

func x86LogicRows(b *builder, c x86Config) {
	for _, l := range x86Logic {
		for _, w := range vop.ElemWidths {
			var d *isa.Desc
			switch c.enc {
			case isa.EncEVEX:
				suffix, ew := "d", false
				if w == 64 {
					suffix, ew = "q", true
				}
				d = xr(l.code, allKinds, w, "v"+l.name+suffix, m0F, p66, l.op, xF).desc(isa.EncEVEX)
				d.X86.W = ew
			default:
				r := xr(l.code, allKinds, w, l.name, m0F, p66, l.op, xSSE|xAVX)
				r.comm = l.comm
				d = r.desc(c.enc)
			}
			d.Commutative = l.comm
			for _, kind := range allKinds {
				b.set(Key{Code: l.code, Kind: kind, Width: w}, Native(d))
			}
		}
	}
	if c.enc == isa.EncEVEX {
		for _, w := range vop.ElemWidths {
			name, ew := "vpternlogd", false
			if w == 64 {
				name, ew = "vpternlogq", true
			}
			r := xr(vop.OpNot, allKinds, w, name, m0F3A, p66, 0x25, xF).Form(isa.X86Not).Imm(0x55)
			r.ew = ew
			d := r.desc(isa.EncEVEX)
			for _, kind := range allKinds {
				b.set(Key{Code: vop.OpNot, Kind: kind, Width: w}, Native(d))
			}
		}
	}
}

// EVEX compare predicates for vpcmp[u] and vcmpps
var (
	evexIntPred   = map[vop.Code]uint8{vop.OpCmpEQ: 0, vop.OpCmpLT: 1, vop.OpCmpLE: 2, vop.OpCmpNE: 4, vop.OpCmpGE: 5, vop.OpCmpGT: 6}
	evexFloatPred = map[vop.Code]uint8{vop.OpCmpEQ: 0x00, vop.OpCmpLT: 0x01, vop.OpCmpLE: 0x02, vop.OpCmpNE: 0x04, vop.OpCmpGE: 0x0D, vop.OpCmpGT: 0x0E}
)

func x86Compares(b *builder, c x86Config) {
	codes := []vop.Code{vop.OpCmpEQ, vop.OpCmpNE, vop.OpCmpGT, vop.OpCmpGE, vop.OpCmpLT, vop.OpCmpLE}
	if c.enc != isa.EncEVEX {
		for _, code := range codes {
			for _, w := range vop.ElemWidths {
				for _, kind := range allKinds {
					k := Key{Code: code, Kind: kind, Width: w}
					if b.p.Has(k) || (kind == vop.KindFloat && w < 32) {
						continue
					}
					switch {
					case kind == vop.KindFloat:
						continue
					case code == vop.OpCmpNE || code == vop.OpCmpGE || code == vop.OpCmpLE:
						b.set(k, Fallback(RecipeCompareNot))
					case kind == vop.KindUint:
						b.set(k, Fallback(RecipeCompareBias))
					}
				}
			}
		}
		return
	}
	for _, code := range codes {
		for _, w := range vop.ElemWidths {
			if w < 32 && c.has&xBW == 0 {
				continue
			}
			for _, kind := range allKinds {
				if kind == vop.KindFloat && w < 32 {
					continue
				}
				var cmp x86Row
				switch {
				case kind == vop.KindFloat && w == 32:
					cmp = xr(code, onlyF, w, "vcmpps", m0F, pNone, 0xC2, xF).Imm(int(evexFloatPred[code]))
				case kind == vop.KindFloat:
					cmp = xr(code, onlyF, w, "vcmppd", m0F, p66, 0xC2, xF).EW().Imm(int(evexFloatPred[code]))
				default:
					op, name := evexIntCompare(kind, w)
					cmp = xr(code, uintInt, w, name, m0F3A, p66, op, xF).Imm(int(evexIntPred[code]))
					cmp.ew = w == 16 || w == 64
				}
				cmp.form = isa.X86KCmp
				cmp.comm = code == vop.OpCmpEQ || code == vop.OpCmpNE
				d := cmp.desc(isa.EncEVEX)
				d.X86.Aux = maskToLanes(c, w)
				b.set(Key{Code: code, Kind: kind, Width: w}, Native(d))
			}
		}
	}
}

func evexIntCompare(kind vop.Kind, w int) (byte, string) {
	suffix := map[int]string{8: "b", 16: "w", 32: "d", 64: "q"}[w]
	op := byte(0x1F)
	if w < 32 {
		op = 0x3F
	}
	name := "vpcmp"
	if kind == vop.KindUint {
		op--
		name = "vpcmpu"
	}
	return op, name + suffix
}

// maskToLanes is the instruction that expands a compare mask register
// into all-ones/zero lanes
func maskToLanes(c x86Config, w int) *isa.X86Desc {
	if c.has&xDQ != 0 {
		op := byte(0x38)
		if w < 32 {
			op = 0x28
		}
		return &isa.X86Desc{Enc: isa.EncEVEX, Map: m0F38, PP: pF3, Op: op, W: w == 16 || w == 64, Form: isa.X86RM}
	}
	return &isa.X86Desc{Enc: isa.EncEVEX, Map: m0F3A, PP: p66, Op: 0x25, W: w == 64, Form: isa.X86Not, Imm: 0xFF, HasImm: true}
}

// roundImm is the roundps/vrndscaleps immediate: mode plus the
// precision-exception suppression bit
var roundImm = map[vop.RoundMode]int{
	vop.RoundNearest: 0x08,
	vop.RoundDown:    0x09,
	vop.RoundUp:      0x0A,
	vop.RoundZero:    0x0B,
	vop.RoundCurrent: 0x0C,
}

func x86Conversions(b *builder, c x86Config) {
	evex := c.enc == isa.EncEVEX
	for _, mode := range roundModes {
		// Round
		for _, w := range []int{32, 64} {
			var r x86Row
			op := byte(0x08)
			if w == 64 {
				op = 0x09
			}
			if evex {
				name := "vrndscaleps"
				if w == 64 {
					name = "vrndscalepd"
				}
				r = xr(vop.OpRound, onlyF, w, name, m0F3A, p66, op, xF)
				r.ew = w == 64
			} else {
				name := "roundps"
				if w == 64 {
					name = "roundpd"
				}
				r = xr(vop.OpRound, onlyF, w, name, m0F3A, p66, op, xSSE|xAVX)
			}
			r = r.Form(isa.X86RMI).Imm(roundImm[mode])
			b.rounding(vop.OpRound, onlyF, w, mode, Native(r.desc(c.enc)))
		}

		// float to signed int32
		switch {
		case mode == vop.RoundZero:
			r := xr(vop.OpCvtFToI, onlyI, 32, "cvttps2dq", m0F, pF3, 0x5B, xAll).Form(isa.X86RM)
			b.rounding(vop.OpCvtFToI, onlyI, 32, mode, Native(r.desc(c.enc)))
		case mode == vop.RoundCurrent:
			r := xr(vop.OpCvtFToI, onlyI, 32, "cvtps2dq", m0F, p66, 0x5B, xAll).Form(isa.X86RM)
			b.rounding(vop.OpCvtFToI, onlyI, 32, mode, Native(r.desc(c.enc)))
		case evex:
			r := xr(vop.OpCvtFToI, onlyI, 32, "vcvtps2dq", m0F, p66, 0x5B, xF).Form(isa.X86RM).Rounds()
			b.rounding(vop.OpCvtFToI, onlyI, 32, mode, Native(r.desc(c.enc)))
		default:
			b.rounding(vop.OpCvtFToI, onlyI, 32, mode, Fallback(RecipeRoundConvert))
		}
		if !evex {
			continue
		}

		// AVX-512 unsigned and 64-bit forms
		type cvt struct {
			kind      vop.Kind
			w         int
			trunc     string
			round     string
			pp        isa.Prefix
			truncOp   byte
			roundOp   byte
			ew        bool
			needLevel x86Level
		}
		for _, v := range []cvt{
			{vop.KindUint, 32, "vcvttps2udq", "vcvtps2udq", pNone, 0x78, 0x79, false, xF},
			{vop.KindInt, 64, "vcvttpd2qq", "vcvtpd2qq", p66, 0x7A, 0x7B, true, xDQ},
			{vop.KindUint, 64, "vcvttpd2uqq", "vcvtpd2uqq", p66, 0x78, 0x79, true, xDQ},
		} {
			if c.has&v.needLevel == 0 {
				continue
			}
			var r x86Row
			switch mode {
			case vop.RoundZero:
				r = xr(vop.OpCvtFToI, []vop.Kind{v.kind}, v.w, v.trunc, m0F, v.pp, v.truncOp, v.needLevel)
			case vop.RoundCurrent:
				r = xr(vop.OpCvtFToI, []vop.Kind{v.kind}, v.w, v.round, m0F, v.pp, v.roundOp, v.needLevel)
			default:
				r = xr(vop.OpCvtFToI, []vop.Kind{v.kind}, v.w, v.round, m0F, v.pp, v.roundOp, v.needLevel).Rounds()
			}
			r.ew = v.ew
			r = r.Form(isa.X86RM)
			b.rounding(vop.OpCvtFToI, []vop.Kind{v.kind}, v.w, mode, Native(r.desc(isa.EncEVEX)))
		}
	}
}

func x86Splats(b *builder, c x86Config) {
	widths := map[int]struct {
		bcast byte // VEX broadcast from xmm
		evex  byte // EVEX broadcast from gpr
		lv    x86Level
	}{
		8:  {0x78, 0x7A, xBW},
		16: {0x79, 0x7B, xBW},
		32: {0x58, 0x7C, xF},
		64: {0x59, 0x7C, xF},
	}
	for _, w := range vop.ElemWidths {
		info := widths[w]
		var d *isa.Desc
		switch c.enc {
		case isa.EncLegacy:
			if w < 32 {
				continue
			}
			shuf := 0x00
			if w == 64 {
				shuf = 0x44
			}
			d = &isa.Desc{Name: "movd+pshufd", X86: &isa.X86Desc{
				Enc: isa.EncLegacy, Map: m0F, PP: p66, Op: 0x6E, W: w == 64, Form: isa.X86Splat,
				Aux: &isa.X86Desc{Enc: isa.EncLegacy, Map: m0F, PP: p66, Op: 0x70, Form: isa.X86RMI, Imm: uint8(shuf), HasImm: true},
			}}
		case isa.EncVEX:
			d = &isa.Desc{Name: "vmovd+vpbroadcast", X86: &isa.X86Desc{
				Enc: isa.EncVEX, Map: m0F, PP: p66, Op: 0x6E, W: w == 64, Form: isa.X86Splat,
				Aux: &isa.X86Desc{Enc: isa.EncVEX, Map: m0F38, PP: p66, Op: info.bcast, Form: isa.X86RM},
			}}
		default:
			if c.has&info.lv == 0 {
				continue
			}
			d = &isa.Desc{Name: "vpbroadcast", X86: &isa.X86Desc{
				Enc: isa.EncEVEX, Map: m0F38, PP: p66, Op: info.evex, W: w == 64, Form: isa.X86Splat,
			}}
		}
		for _, kind := range allKinds {
			if kind == vop.KindFloat && w < 32 {
				continue
			}
			b.set(Key{Code: vop.OpSplat, Kind: kind, Width: w}, Native(d))
		}
	}
	for _, w := range []int{8, 16} {
		for _, kind := range uintInt {
			k := Key{Code: vop.OpSplat, Kind: kind, Width: w}
			if !b.p.Has(k) {
				b.set(k, Fallback(RecipeSplatNarrow))
			}
		}
	}
}

func x86Masks(b *builder, c x86Config) {
	var merge, branch *isa.Desc
	switch c.enc {
	case isa.EncLegacy:
		branch = &isa.Desc{Name: "ptest+jcc", VTemps: 1, X86: &isa.X86Desc{
			Enc: isa.EncLegacy, Map: m0F38, PP: p66, Op: 0x17, Form: isa.X86MaskBranch,
			Aux: &isa.X86Desc{Enc: isa.EncLegacy, Map: m0F, PP: p66, Op: 0x76, Form: isa.X86RVM},
		}}
	case isa.EncVEX:
		merge = &isa.Desc{Name: "vpblendvb", X86: &isa.X86Desc{Enc: isa.EncVEX, Map: m0F3A, PP: p66, Op: 0x4C, Form: isa.X86Blend}}
		branch = &isa.Desc{Name: "vptest+jcc", VTemps: 1, X86: &isa.X86Desc{
			Enc: isa.EncVEX, Map: m0F38, PP: p66, Op: 0x17, Form: isa.X86MaskBranch,
			Aux: &isa.X86Desc{Enc: isa.EncVEX, Map: m0F, PP: p66, Op: 0x76, Form: isa.X86RVM},
		}}
	default:
		merge = &isa.Desc{Name: "vpternlogd", X86: &isa.X86Desc{Enc: isa.EncEVEX, Map: m0F3A, PP: p66, Op: 0x25, Form: isa.X86TernMerge, HasImm: true}}
		branch = &isa.Desc{Name: "vptestmd+kortestw+jcc", VTemps: 1, X86: &isa.X86Desc{
			Enc: isa.EncEVEX, Map: m0F38, PP: p66, Op: 0x27, Form: isa.X86MaskBranch,
			Aux: &isa.X86Desc{Enc: isa.EncEVEX, Map: m0F3A, PP: p66, Op: 0x25, Form: isa.X86Not, Imm: 0x55, HasImm: true},
		}}
	}
	for _, w := range vop.ElemWidths {
		for _, kind := range allKinds {
			if kind == vop.KindFloat && w < 32 {
				continue
			}
			k := Key{Code: vop.OpMerge, Kind: kind, Width: w}
			if merge != nil {
				b.set(k, Native(merge))
			} else {
				b.set(k, Fallback(RecipeMergeLogic))
			}
			b.set(Key{Code: vop.OpMaskBranch, Kind: vop.KindUint, Width: w}, Native(branch))
		}
	}
}

// x86Fallbacks lists what the tables above leave to recipes
func x86Fallbacks(b *builder, c x86Config) {
	evex := c.enc == isa.EncEVEX
	bw := c.has&xBW != 0
	fill := func(k Key, recipe string) {
		if !b.p.Has(k) {
			b.set(k, Fallback(recipe))
		}
	}
	each := func(codes []vop.Code, kinds []vop.Kind, widths []int, recipe string) {
		for _, code := range codes {
			for _, kind := range kinds {
				for _, w := range widths {
					fill(Key{Code: code, Kind: kind, Width: w, Form: defaultForm(code)}, recipe)
				}
			}
		}
	}

	// 8/16-bit integer work on AVX-512F without BW runs as two 256-bit halves
	if evex && !bw {
		each([]vop.Code{vop.OpAdd, vop.OpSub, vop.OpAddSat, vop.OpSubSat, vop.OpMin, vop.OpMax,
			vop.OpCmpEQ, vop.OpCmpNE, vop.OpCmpGT, vop.OpCmpGE, vop.OpCmpLT, vop.OpCmpLE},
			uintInt, []int{8, 16}, RecipeSplitHalves)
		each([]vop.Code{vop.OpMul, vop.OpShlImm, vop.OpShrImm, vop.OpSraImm}, uintInt, []int{16}, RecipeSplitHalves)
	}

	each([]vop.Code{vop.OpAddSat, vop.OpSubSat}, uintInt, []int{8, 16, 32}, RecipeScalarLoop)
	each([]vop.Code{vop.OpMul}, uintInt, []int{8, 16, 32, 64}, RecipeScalarLoop)
	each([]vop.Code{vop.OpShlImm, vop.OpShrImm, vop.OpSraImm}, uintInt, []int{8, 16, 32, 64}, RecipeScalarLoop)
	each([]vop.Code{vop.OpShlVar, vop.OpShrVar, vop.OpSraVar}, uintInt, []int{8, 16, 32, 64}, RecipeScalarLoop)
	each([]vop.Code{vop.OpMin, vop.OpMax}, uintInt, []int{64}, RecipeCmpSelect)
	each([]vop.Code{vop.OpNeg}, uintInt, vop.ElemWidths, RecipeNegSub)
	each([]vop.Code{vop.OpNeg}, onlyF, []int{32, 64}, RecipeNegXor)
	each([]vop.Code{vop.OpNot}, allKinds, vop.ElemWidths, RecipeNotXor)
	each([]vop.Code{vop.OpRcpStep}, onlyF, []int{32, 64}, RecipeRcpStep)
	each([]vop.Code{vop.OpRsqStep}, onlyF, []int{32, 64}, RecipeRsqStep)
	if !evex {
		each([]vop.Code{vop.OpMulAdd}, onlyF, []int{32, 64}, RecipeMulAddUnfused)
	}

	for _, w := range []int{32, 64} {
		est := b.p.Has(Key{Code: vop.OpRcpEst, Kind: vop.KindFloat, Width: w})
		for _, f := range []struct {
			code, est      vop.Code
			newton, divide string
		}{
			{vop.OpRcp, vop.OpRcpEst, RecipeRcpNewton, RecipeRcpDivide},
			{vop.OpRsq, vop.OpRsqEst, RecipeRsqNewton, RecipeRsqDivide},
		} {
			if est {
				c, _ := b.p.Lookup(Key{Code: f.est, Kind: vop.KindFloat, Width: w})
				b.level(f.code, w, 0, c)
				b.level(f.code, w, 1, Fallback(f.newton))
			} else {
				b.level(f.code, w, 0, Fallback(f.divide))
				b.level(f.code, w, 1, Fallback(f.divide))
			}
		}
		if c.enc == isa.EncLegacy {
			b.level(vop.OpMulAdd, w, 0, Fallback(RecipeMulAddUnfused))
		} else {
			fma, _ := b.p.Lookup(Key{Code: vop.OpMulAdd, Kind: vop.KindFloat, Width: w})
			b.level(vop.OpMulAdd, w, 0, fma)
		}
	}
	b.common([]int{32, 64})
}

var x86Scalars = map[string]*isa.Desc{}

// x86ScalarDesc returns the descriptor of a general purpose or control
// register primitive. Their encodings are chosen per code by the encoder.
func x86ScalarDesc(name string) *isa.Desc {
	if d, ok := x86Scalars[name]; ok {
		return d
	}
	form := isa.X86Scalar
	gtemps := 0
	switch name {
	case "ctlsave", "ctlrestore":
		form = isa.X86Control
	case "ctlsetround":
		form, gtemps = isa.X86Control, 1
	}
	d := &isa.Desc{Name: name, X86: &isa.X86Desc{Form: form}, GTemps: gtemps}
	x86Scalars[name] = d
	return d
}
