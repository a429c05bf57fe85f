// Package selector picks the lowering of one native-width operation: a
// native opcode descriptor or a fallback recipe, as listed in the
// profile's capability table for the session's compat levels.
package selector

import (
	"fmt"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/vop"
)

// Compat holds the compat level of every family
type Compat struct {
	Rcp   int // 0 estimate, 1 refined estimate, 2 full precision
	Rsq   int
	FMA   int // 0 fused where available, 1 always unfused
	Round int // default rounding: 0 nearest, 1 down, 2 up, 3 toward zero
}

// DefaultCompat refines estimates and keeps fused multiply-add
var DefaultCompat = Compat{Rcp: 1, Rsq: 1}

// Level returns the level of family f
func (c Compat) Level(f vop.Family) int {
	switch f {
	case vop.FamilyRcp:
		return c.Rcp
	case vop.FamilyRsq:
		return c.Rsq
	case vop.FamilyFMA:
		return c.FMA
	case vop.FamilyRound:
		return c.Round
	}
	return 0
}

// Validate fails with a configuration error on any level the profile
// does not list
func (c Compat) Validate(p *profile.Profile) error {
	for _, f := range []vop.Family{vop.FamilyRcp, vop.FamilyRsq, vop.FamilyFMA, vop.FamilyRound} {
		if level := c.Level(f); !p.LegalLevel(f, level) {
			return diag.New(diag.CategoryConfig).
				Profile(p.Name).
				Detail("unknown %s compat level %d (legal: %v)", f, level, p.Levels(f)).
				Build()
		}
	}
	return nil
}

func (c Compat) String() string {
	return fmt.Sprintf("rcp=%d rsq=%d fma=%d round=%d", c.Rcp, c.Rsq, c.FMA, c.Round)
}

var defaultModes = [...]vop.RoundMode{vop.RoundNearest, vop.RoundDown, vop.RoundUp, vop.RoundZero}

// DefaultRound returns the rounding mode a round compat level stands for
func DefaultRound(level int) (vop.RoundMode, error) {
	if level < 0 || level >= len(defaultModes) {
		return 0, diag.Config("unknown round compat level %d", level)
	}
	return defaultModes[level], nil
}

// Selection is the outcome of Select
type Selection struct {
	Cap profile.Capability
	Key profile.Key
	Op  vop.VectorOp // op with RoundDefault resolved
}

// Native reports whether the selection is a single native descriptor
func (s Selection) Native() bool {
	return s.Cap.Kind == profile.CapNative
}

// Desc returns the native descriptor, or nil for fallbacks
func (s Selection) Desc() *isa.Desc {
	return s.Cap.Desc
}

// Recipe returns the recipe id, or "" for native selections
func (s Selection) Recipe() string {
	return s.Cap.Recipe
}

func (s Selection) String() string {
	return s.Op.String() + " -> " + s.Cap.String()
}

// Select looks up op in the profile's capability table. It is a pure
// function of its arguments.
func Select(op vop.VectorOp, p *profile.Profile, c Compat) (Selection, error) {
	if !op.Code.Valid() {
		return Selection{}, diag.Internal("invalid operation code %d", op.Code)
	}
	f := op.Family()
	level := c.Level(f)
	if f != vop.FamilyNone && !p.LegalLevel(f, level) {
		return Selection{}, diag.New(diag.CategoryConfig).
			Profile(p.Name).
			Op(op.String()).
			Detail("unknown %s compat level %d", f, level).
			Build()
	}
	if op.Code.Rounds() && op.Round == vop.RoundDefault {
		mode, err := DefaultRound(c.Round)
		if err != nil {
			return Selection{}, diag.WithContext(err, p.Name, op.String())
		}
		op = op.WithRound(mode)
	}
	k := profile.KeyOf(op, level)
	cp, err := p.Lookup(k)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Cap: cp, Key: k, Op: op}, nil
}
