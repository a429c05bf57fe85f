// Package profile holds target profiles: the per-extension description of
// native vector width, word layout, reserved registers and the capability
// table that maps every supported (operation, kind, width) to either a
// native opcode descriptor or a fallback recipe.
//
// Profiles are built once and never mutated, so they can be shared between
// concurrent sessions.
package profile

import (
	"fmt"
	"sort"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// CapKind tells native capabilities from fallbacks
type CapKind uint8

const (
	CapNative CapKind = iota
	CapFallback
)

// Capability is the table entry for one key
type Capability struct {
	Desc   *isa.Desc // set for CapNative
	Recipe string    // set for CapFallback
	Kind   CapKind
}

// Native returns a native capability
func Native(d *isa.Desc) Capability {
	return Capability{Kind: CapNative, Desc: d}
}

// Fallback returns a capability served by the named recipe
func Fallback(recipe string) Capability {
	return Capability{Kind: CapFallback, Recipe: recipe}
}

func (c Capability) String() string {
	if c.Kind == CapNative {
		return "native " + c.Desc.Name
	}
	return "fallback " + c.Recipe
}

// Key indexes the capability table. Level is only set for codes of the
// rcp, rsq and fma families; Round only for codes that round.
type Key struct {
	Code  vop.Code
	Kind  vop.Kind
	Width int
	Form  vop.Form
	Level int
	Round vop.RoundMode
}

func (k Key) String() string {
	op := vop.VectorOp{Code: k.Code, Kind: k.Kind, Width: k.Width, Form: k.Form, Round: k.Round}
	s := op.String()
	switch k.Code.Family() {
	case vop.FamilyRcp, vop.FamilyRsq, vop.FamilyFMA:
		s += fmt.Sprintf(".l%d", k.Level)
	}
	return s
}

// KeyOf builds the lookup key of op at the given compat level
func KeyOf(op vop.VectorOp, level int) Key {
	k := Key{Code: op.Code, Kind: op.Kind, Width: op.Width, Form: op.Form}
	switch op.Code.Family() {
	case vop.FamilyRcp, vop.FamilyRsq, vop.FamilyFMA:
		k.Level = level
	}
	if op.Code.Rounds() {
		k.Round = op.Round
	}
	return k
}

// Entry is one row of the capability table
type Entry struct {
	Key Key
	Cap Capability
}

// Profile describes one target extension level
type Profile struct {
	table        map[Key]Capability
	levels       map[vop.Family][]int
	pairing      map[int][][]operand.PReg
	Half         *Profile // profile used for half-width sub-operations, if any
	Name         string
	Features     []string
	ScalarTemps  []operand.GPR
	VectorTemps  []operand.PReg
	buildErrs    []error
	Arch         isa.Arch
	NativeBits   int
	VectorRegs   int // physical vector registers usable by the engine
	EstimateBits int // precision of the rcp/rsq estimate instructions
	TempBase     operand.GPR
	MaskTemp     operand.KReg
	HasMask      bool
}

// NativeBytes returns the native vector size in bytes
func (p *Profile) NativeBytes() int {
	return p.NativeBits / 8
}

// Layout returns the instruction word layout
func (p *Profile) Layout() isa.Layout {
	return p.Arch.Layout()
}

// Lookup returns the capability for k. An unlisted key is a
// configuration error.
func (p *Profile) Lookup(k Key) (Capability, error) {
	c, ok := p.table[k]
	if !ok {
		return Capability{}, diag.New(diag.CategoryConfig).
			Profile(p.Name).
			Op(k.String()).
			Detail("no capability entry").
			Build()
	}
	return c, nil
}

// Has reports whether k has an entry
func (p *Profile) Has(k Key) bool {
	_, ok := p.table[k]
	return ok
}

// Entries returns the capability table sorted by key
func (p *Profile) Entries() []Entry {
	entries := make([]Entry, 0, len(p.table))
	for k, c := range p.table {
		entries = append(entries, Entry{Key: k, Cap: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Key, entries[j].Key
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Width != b.Width {
			return a.Width < b.Width
		}
		if a.Form != b.Form {
			return a.Form < b.Form
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		return a.Round < b.Round
	})
	return entries
}

// Levels returns the legal compat levels of a family
func (p *Profile) Levels(f vop.Family) []int {
	return p.levels[f]
}

// LegalLevel reports whether level is legal for family f
func (p *Profile) LegalLevel(f vop.Family, level int) bool {
	for _, l := range p.levels[f] {
		if l == level {
			return true
		}
	}
	return false
}

// RefineRounds returns the fixed number of Newton-Raphson rounds the
// refinement recipes use for float lanes of the given width.
func (p *Profile) RefineRounds(width int) int {
	target := 24 // float32 mantissa plus one
	switch width {
	case 16:
		target = 11
	case 64:
		target = 53
	}
	est := p.EstimateBits
	if est <= 0 {
		return 0
	}
	n := 0
	for est < target {
		est *= 2
		n++
	}
	return n
}

// PairingFactors returns the pairing factors the profile supports
func (p *Profile) PairingFactors() []int {
	factors := make([]int, 0, len(p.pairing))
	for f := range p.pairing {
		factors = append(factors, f)
	}
	sort.Ints(factors)
	return factors
}

// LogicalRegs returns how many logical registers exist at factor
func (p *Profile) LogicalRegs(factor int) int {
	rows := p.pairing[factor]
	if len(rows) == 0 {
		return 0
	}
	return len(rows[0])
}

// Slice returns the physical register of slice index of logical register
// r at the given pairing factor. It is a table lookup.
func (p *Profile) Slice(r operand.VReg, index, factor int) (operand.PReg, error) {
	rows, ok := p.pairing[factor]
	if !ok {
		return 0, diag.New(diag.CategoryConfig).Profile(p.Name).
			Detail("pairing factor %d not supported", factor).Build()
	}
	if index < 0 || index >= len(rows) {
		return 0, diag.Internal("slice index %d out of range for factor %d", index, factor)
	}
	if int(r) >= len(rows[index]) {
		return 0, diag.New(diag.CategoryConfig).Profile(p.Name).
			Detail("logical register V%d out of range (%d available at pairing factor %d)", r, len(rows[index]), factor).Build()
	}
	return rows[index][r], nil
}

// ScratchBytes returns the scratch memory footprint sessions must supply:
// two native vector slots plus a 16-byte control area. The control area
// holds the saved control word and whatever the target needs to modify
// it (a second MXCSR image on x86, a spilled f0 on Power).
func (p *Profile) ScratchBytes() int {
	return 2*p.NativeBytes() + 16
}

// ControlSlot returns the scratch offset of the control area
func (p *Profile) ControlSlot() int64 {
	return int64(2 * p.NativeBytes())
}

func (p *Profile) String() string {
	return fmt.Sprintf("%s (%s, %d-bit)", p.Name, p.Arch, p.NativeBits)
}
