package encode

import (
	"github.com/xyproto/vlower/internal/diag"
)

// Field is a bit field of a fixed-width instruction word, counted from the
// least significant bit.
type Field struct {
	Name  string
	Shift uint8
	Width uint8
}

func (f Field) mask() uint32 {
	return (1<<f.Width - 1) << f.Shift
}

// Get extracts the field from w
func (f Field) Get(w uint32) uint32 {
	return (w & f.mask()) >> f.Shift
}

// Layout is the field layout of one instruction word format. Fixed holds
// the bits the format itself defines, Mask says which bits those are.
type Layout struct {
	Name   string
	Fixed  uint32
	Mask   uint32
	Fields []Field
}

// Val assigns a value to a named field
type Val struct {
	Name   string
	V      int64
	Signed bool
}

// U is an unsigned field value
func U(name string, v uint32) Val {
	return Val{Name: name, V: int64(v)}
}

// S is a signed field value, stored in two's complement
func S(name string, v int64) Val {
	return Val{Name: name, V: v, Signed: true}
}

func (l *Layout) field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Pack is the single packing function for fixed-width words: it starts
// from base (an opcode with empty operand fields), ORs in the layout's
// fixed bits and stores every value into its field, failing with an
// encoding error when a value does not fit.
func (l *Layout) Pack(base uint32, vals ...Val) (uint32, error) {
	w := base | l.Fixed
	for _, v := range vals {
		f, ok := l.field(v.Name)
		if !ok {
			return 0, diag.Internal("layout %s has no field %s", l.Name, v.Name)
		}
		var bits uint32
		if v.Signed {
			lo, hi := -int64(1)<<(f.Width-1), int64(1)<<(f.Width-1)-1
			if v.V < lo || v.V > hi {
				return 0, diag.Encoding("%s field %s: %d out of range [%d, %d]", l.Name, f.Name, v.V, lo, hi)
			}
			bits = uint32(v.V) & (1<<f.Width - 1)
		} else {
			if v.V < 0 || v.V >= int64(1)<<f.Width {
				return 0, diag.Encoding("%s field %s: %d does not fit in %d bits", l.Name, f.Name, v.V, f.Width)
			}
			bits = uint32(v.V)
		}
		w = w&^f.mask() | bits<<f.Shift
	}
	return w, nil
}

// MustPack is Pack for table constants
func (l *Layout) MustPack(vals ...Val) uint32 {
	w, err := l.Pack(0, vals...)
	if err != nil {
		panic(err)
	}
	return w
}

// Matches reports whether w has the layout's fixed bits
func (l *Layout) Matches(w uint32) bool {
	return w&l.Mask == l.Fixed
}

// Unpack returns every field of w by name
func (l *Layout) Unpack(w uint32) map[string]uint32 {
	m := make(map[string]uint32, len(l.Fields))
	for _, f := range l.Fields {
		m[f.Name] = f.Get(w)
	}
	return m
}

// SignExtend interprets the low width bits of v as a signed number
func SignExtend(v uint32, width uint8) int64 {
	shift := 64 - width
	return int64(uint64(v)<<shift) >> shift
}

// F declares a field
func F(name string, shift, width uint8) Field {
	return Field{Name: name, Shift: shift, Width: width}
}
