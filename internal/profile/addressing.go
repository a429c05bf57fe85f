package profile

import (
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
)

// Range is one encodable displacement range
type Range struct {
	Min, Max int64
	Align    int64
}

// Fits reports whether d is inside the range and suitably aligned
func (r Range) Fits(d int64) bool {
	return d >= r.Min && d <= r.Max && d%r.Align == 0
}

var (
	x86Disp32  = []Range{{Min: -1 << 31, Max: 1<<31 - 1, Align: 1}}
	a64Vector  = []Range{{Min: 0, Max: 4095 * 16, Align: 16}, {Min: -256, Max: 255, Align: 1}}
	powerDQ    = []Range{{Min: -32768, Max: 32752, Align: 16}}
	powerD     = []Range{{Min: -32768, Max: 32767, Align: 1}}
	powerDS    = []Range{{Min: -32768, Max: 32764, Align: 4}}
	scaledA64  = func(size int64) []Range { return []Range{{Min: 0, Max: 4095 * size, Align: size}} }
	a64Control = []Range{{Min: 0, Max: 4095 * 4, Align: 4}}
)

// DispRanges returns the displacement ranges encodable for the class
func (p *Profile) DispRanges(c operand.Class) []Range {
	switch p.Arch {
	case isa.ArchX86_64:
		return x86Disp32
	case isa.ArchARM64:
		switch c {
		case operand.ClassVector:
			return a64Vector
		case operand.ClassControl:
			return a64Control
		default:
			return scaledA64(int64(c.Bytes(16)))
		}
	case isa.ArchPPC64LE:
		switch c {
		case operand.ClassVector:
			return powerDQ
		case operand.ClassElem64:
			return powerDS
		default:
			return powerD
		}
	}
	return nil
}

// DispFits reports whether d can be encoded directly for the class
func (p *Profile) DispFits(c operand.Class, d int64) bool {
	for _, r := range p.DispRanges(c) {
		if r.Fits(d) {
			return true
		}
	}
	return false
}
