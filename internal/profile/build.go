package profile

import (
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// Recipe identifiers referenced by the capability tables. The recipe
// package registers one implementation per identifier.
const (
	RecipeRcpNewton     = "rcp-newton"
	RecipeRsqNewton     = "rsq-newton"
	RecipeRcpDivide     = "rcp-divide"
	RecipeRsqDivide     = "rsq-divide"
	RecipeRcpStep       = "rcpstep-compose"
	RecipeRsqStep       = "rsqstep-compose"
	RecipeMulAddUnfused = "muladd-unfused"
	RecipeScalarLoop    = "scalar-loop"
	RecipeCompareNot    = "compare-not"
	RecipeCompareBias   = "compare-bias"
	RecipeCmpSelect     = "cmp-select"
	RecipeLoadOp        = "load-op"
	RecipeNotXor        = "not-xor"
	RecipeNegSub        = "neg-sub"
	RecipeNegXor        = "neg-xor"
	RecipeShiftViaVar   = "shift-via-var"
	RecipeShiftNegate   = "shift-negate"
	RecipeSplatImm      = "splat-imm"
	RecipeSplatNarrow   = "splat-narrow"
	RecipeRoundConvert  = "round-convert"
	RecipeRoundControl  = "round-control"
	RecipeMergeLogic    = "merge-logic"
	RecipeSplitHalves   = "split-halves"
)

var (
	uintInt  = []vop.Kind{vop.KindUint, vop.KindInt}
	allKinds = []vop.Kind{vop.KindUint, vop.KindInt, vop.KindFloat}
	onlyU    = []vop.Kind{vop.KindUint}
	onlyI    = []vop.Kind{vop.KindInt}
	onlyF    = []vop.Kind{vop.KindFloat}

	roundModes = []vop.RoundMode{vop.RoundNearest, vop.RoundDown, vop.RoundUp, vop.RoundZero, vop.RoundCurrent}
)

// builder fills a profile's capability table
type builder struct {
	p *Profile
}

func newBuilder(p *Profile) *builder {
	p.table = make(map[Key]Capability)
	p.levels = map[vop.Family][]int{
		vop.FamilyRcp:   {0, 1, 2},
		vop.FamilyRsq:   {0, 1, 2},
		vop.FamilyFMA:   {0, 1},
		vop.FamilyRound: {0, 1, 2, 3},
	}
	p.pairing = buildPairing(p.VectorRegs - len(p.VectorTemps))
	return &builder{p: p}
}

// set adds one entry. Two different entries for one key are a table bug.
func (b *builder) set(k Key, c Capability) {
	if old, ok := b.p.table[k]; ok && old != c {
		b.p.buildErrs = append(b.p.buildErrs, diag.New(diag.CategoryConfig).
			Profile(b.p.Name).Op(k.String()).
			Detail("duplicate capability: %s and %s", old, c).Build())
		return
	}
	b.p.table[k] = c
}

// replace overwrites an entry on purpose, e.g. when an extension level
// adds a native form for something the base level composes.
func (b *builder) replace(k Key, c Capability) {
	b.p.table[k] = c
}

func (b *builder) each(code vop.Code, kinds []vop.Kind, widths []int, f func(Key)) {
	for _, kind := range kinds {
		for _, w := range widths {
			f(Key{Code: code, Kind: kind, Width: w, Form: defaultForm(code)})
		}
	}
}

// defaultForm is the form of codes whose last operand kind is fixed
func defaultForm(c vop.Code) vop.Form {
	switch c {
	case vop.OpShlImm, vop.OpShrImm, vop.OpSraImm, vop.OpSMovImm, vop.OpSAddImm:
		return vop.FormRegImm
	case vop.OpLoad, vop.OpStore, vop.OpSLoad, vop.OpSStore:
		return vop.FormRegMem
	}
	return vop.FormRegReg
}

func (b *builder) native(code vop.Code, kinds []vop.Kind, widths []int, d *isa.Desc) {
	b.each(code, kinds, widths, func(k Key) { b.set(k, Native(d)) })
}

func (b *builder) fallback(code vop.Code, kinds []vop.Kind, widths []int, recipe string) {
	b.each(code, kinds, widths, func(k Key) { b.set(k, Fallback(recipe)) })
}

func (b *builder) nativeForm(code vop.Code, kinds []vop.Kind, widths []int, form vop.Form, d *isa.Desc) {
	b.each(code, kinds, widths, func(k Key) {
		k.Form = form
		b.set(k, Native(d))
	})
}

func (b *builder) fallbackForm(code vop.Code, kinds []vop.Kind, widths []int, form vop.Form, recipe string) {
	b.each(code, kinds, widths, func(k Key) {
		k.Form = form
		b.set(k, Fallback(recipe))
	})
}

func (b *builder) level(code vop.Code, width, level int, c Capability) {
	b.set(Key{Code: code, Kind: vop.KindFloat, Width: width, Level: level}, c)
}

func (b *builder) rounding(code vop.Code, kinds []vop.Kind, width int, mode vop.RoundMode, c Capability) {
	for _, kind := range kinds {
		b.set(Key{Code: code, Kind: kind, Width: width, Round: mode}, c)
	}
}

// memoryForms adds a reg-mem entry next to every reg-reg entry of the
// listed codes. Variable-length targets fold the load into the
// instruction unless the sources are encoded swapped, which would put the
// memory operand in a register-only slot; everything else goes through a
// load-then-op recipe.
func (b *builder) memoryForms(codes ...vop.Code) {
	want := make(map[vop.Code]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var add []Entry
	for k, c := range b.p.table {
		if !want[k.Code] || k.Form != vop.FormRegReg {
			continue
		}
		m := k
		m.Form = vop.FormRegMem
		if b.p.Arch == isa.ArchX86_64 && c.Kind == CapNative && c.Desc.X86 != nil && !c.Desc.Swap && foldsMemory(c.Desc.X86) {
			add = append(add, Entry{Key: m, Cap: c})
			continue
		}
		add = append(add, Entry{Key: m, Cap: Fallback(RecipeLoadOp)})
	}
	for _, e := range add {
		b.set(e.Key, e.Cap)
	}
}

func foldsMemory(d *isa.X86Desc) bool {
	switch d.Form {
	case isa.X86RVM, isa.X86RM, isa.X86RVMI, isa.X86RMI:
		return true
	}
	return false
}

// common adds the entries every profile shares: full precision rcp/rsq,
// unfused multiply-add, immediate splats and mask merges that the tables
// below do not list natively.
func (b *builder) common(floatWidths []int) {
	for _, w := range floatWidths {
		b.level(vop.OpRcp, w, 2, Fallback(RecipeRcpDivide))
		b.level(vop.OpRsq, w, 2, Fallback(RecipeRsqDivide))
		b.level(vop.OpMulAdd, w, 1, Fallback(RecipeMulAddUnfused))
	}
	for _, kind := range allKinds {
		for _, w := range vop.ElemWidths {
			k := Key{Code: vop.OpSplat, Kind: kind, Width: w, Form: vop.FormRegImm}
			if kind == vop.KindFloat && !contains(floatWidths, w) {
				continue
			}
			b.set(k, Fallback(RecipeSplatImm))
		}
	}
}

// scalars adds the general purpose register primitives
func (b *builder) scalars(d func(name string) *isa.Desc) {
	for _, w := range vop.ElemWidths {
		for _, kind := range uintInt {
			b.set(Key{Code: vop.OpSLoad, Kind: kind, Width: w, Form: vop.FormRegMem}, Native(d("sload")))
			b.set(Key{Code: vop.OpSStore, Kind: kind, Width: w, Form: vop.FormRegMem}, Native(d("sstore")))
		}
	}
	for _, w := range []int{8, 16, 32} {
		b.native(vop.OpSZext, uintInt, []int{w}, d("szext"))
	}
	b.nativeForm(vop.OpSMovImm, uintInt, []int{64}, vop.FormRegImm, d("smovimm"))
	b.nativeForm(vop.OpSAddImm, uintInt, []int{64}, vop.FormRegImm, d("saddimm"))
	for _, c := range []vop.Code{vop.OpSAdd, vop.OpSSub, vop.OpSMul, vop.OpSShl, vop.OpSShr, vop.OpSSar, vop.OpSMin, vop.OpSMax} {
		b.native(c, uintInt, []int{64}, d(c.String()))
	}
	ctl := func(c vop.Code) {
		b.set(Key{Code: c}, Native(d(c.String())))
	}
	ctl(vop.OpCtlSave)
	ctl(vop.OpCtlRestore)
	ctl(vop.OpCtlSetRound)
}

func (b *builder) done() *Profile {
	return b.p
}

// buildPairing lays out logical registers so that slice i of logical
// register L is physical register L + i*n, n being the number of logical
// registers at that factor.
func buildPairing(usable int) map[int][][]operand.PReg {
	pairing := make(map[int][][]operand.PReg)
	for _, f := range []int{1, 2, 4} {
		n := usable / f
		rows := make([][]operand.PReg, f)
		for i := range rows {
			rows[i] = make([]operand.PReg, n)
			for l := 0; l < n; l++ {
				rows[i][l] = operand.PReg(l + i*n)
			}
		}
		pairing[f] = rows
	}
	return pairing
}

func contains(xs []int, x int) bool {
	for _, y := range xs {
		if y == x {
			return true
		}
	}
	return false
}
