// Package recipe implements the fallback recipes the capability tables
// refer to. A recipe reproduces the contract of one operation out of
// primitives the profile does support, emitting them through an Emitter.
//
// Recipes come in three families:
//
//   - refinement: an estimate instruction followed by a fixed number of
//     Newton-Raphson correction steps
//   - decomposition: operands stored to scratch memory, processed lane by
//     lane with scalar instructions, and reloaded
//   - composition: short sequences of other vector operations
//
// Every recipe declares the temporaries and scratch memory it uses and
// its precision. The primitives a recipe needs are found by running it
// against a recording emitter, so what Validate checks is exactly what
// Expand emits.
package recipe

import (
	"sort"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/mask"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/vop"
)

// Emitter is what a recipe emits through. Emit lowers one native-width
// operation, natively or through another recipe.
type Emitter interface {
	mask.Emitter
	Profile() *profile.Profile
	Bytes() int // vector size of the operations being lowered
	GPR() (operand.GPR, error)
	FreeGPR(regs ...operand.GPR)
	Scratch() operand.Mem // start of the scratch area
	Half() (Emitter, error)
}

// Family groups recipes by how they work
type Family uint8

const (
	Refinement Family = iota
	Decomposition
	Composition
)

func (f Family) String() string {
	switch f {
	case Refinement:
		return "refinement"
	case Decomposition:
		return "decomposition"
	}
	return "composition"
}

// Recipe is one registered fallback
type Recipe struct {
	Expand       func(e Emitter, op vop.VectorOp, ops vop.Operands) error
	ID           string
	Precision    string
	Family       Family
	VTemps       int  // vector temporaries held at once
	GTemps       int  // general purpose temporaries held at once
	ScratchSlots int  // native vector slots of scratch memory
	Refines      bool // uses the profile's fixed refinement round count
}

var registry = map[string]*Recipe{}

func register(r *Recipe) {
	if _, dup := registry[r.ID]; dup {
		panic("recipe registered twice: " + r.ID)
	}
	registry[r.ID] = r
}

// Lookup returns the recipe with the given id
func Lookup(id string) (*Recipe, bool) {
	r, ok := registry[id]
	return r, ok
}

// IDs returns the registered recipe ids, sorted
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rounds returns the number of correction steps r uses for lanes of the
// given width on p
func (r *Recipe) Rounds(p *profile.Profile, width int) int {
	if !r.Refines {
		return 0
	}
	return p.RefineRounds(width)
}

// Expand emits the recipe's sequence for op. Scratch memory is only
// valid for the duration of one expansion.
func Expand(id string, e Emitter, op vop.VectorOp, ops vop.Operands) error {
	r, ok := registry[id]
	if !ok {
		return diag.New(diag.CategoryConfig).Profile(e.Profile().Name).Op(op.String()).
			Detail("unknown recipe %q", id).Build()
	}
	if err := r.Expand(e, op, ops); err != nil {
		return diag.WithContext(err, e.Profile().Name, op.String())
	}
	return nil
}

// helpers shared by the recipes

// vecs acquires n vector temporaries
func vecs(e Emitter, n int) ([]operand.PReg, error) {
	regs := make([]operand.PReg, 0, n)
	for i := 0; i < n; i++ {
		r, err := e.Vec()
		if err != nil {
			e.FreeVec(regs...)
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}

// gprs acquires n general purpose temporaries
func gprs(e Emitter, n int) ([]operand.GPR, error) {
	regs := make([]operand.GPR, 0, n)
	for i := 0; i < n; i++ {
		r, err := e.GPR()
		if err != nil {
			e.FreeGPR(regs...)
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}

// seq emits operations until one fails
type seq struct {
	e   Emitter
	err error
}

func (s *seq) emit(op vop.VectorOp, ops vop.Operands) {
	if s.err == nil {
		s.err = s.e.Emit(op, ops)
	}
}

// splat emits a splat of an immediate lane pattern
func (s *seq) splat(k vop.Kind, bits int, dst operand.Operand, v int64) {
	s.emit(vop.Splat(k, bits, dst, operand.Imm(v)))
}

// splatFloat splats a float constant
func (s *seq) splatFloat(bits int, dst operand.Operand, v float64) {
	s.splat(vop.KindFloat, bits, dst, int64(vop.FloatBits(bits, v)))
}
