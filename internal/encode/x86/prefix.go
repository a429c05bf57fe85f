package x86

import (
	"encoding/binary"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
)

// REX prefix: 0100WRXB
type REX struct {
	W, R, X, B bool
}

// Byte packs the prefix
func (r REX) Byte() byte {
	b := byte(0x40)
	if r.W {
		b |= 0x08
	}
	if r.R {
		b |= 0x04
	}
	if r.X {
		b |= 0x02
	}
	if r.B {
		b |= 0x01
	}
	return b
}

// Needed reports whether any bit is set
func (r REX) Needed() bool {
	return r.W || r.R || r.X || r.B
}

// VEX prefix. R, X and B are stored inverted on the wire; here they are
// the plain register extension bits, as is VVVV.
type VEX struct {
	R, X, B bool
	Map     isa.Map
	W       bool
	VVVV    uint8
	L       bool
	PP      isa.Prefix
}

// Bytes packs the prefix, using the two-byte C5 form when it can
func (v VEX) Bytes() []byte {
	// [W vvvv L pp] / [R vvvv L pp] share the low seven bits
	low := (^v.VVVV&0x0F)<<3 | byte(v.PP)
	if v.L {
		low |= 0x04
	}
	if !v.X && !v.B && !v.W && v.Map == isa.Map0F {
		b1 := low
		if !v.R {
			b1 |= 0x80
		}
		return []byte{0xC5, b1}
	}
	// C4 [RXB m-mmmm] [W vvvv L pp]
	b1 := byte(v.Map) & 0x1F
	if !v.R {
		b1 |= 0x80
	}
	if !v.X {
		b1 |= 0x40
	}
	if !v.B {
		b1 |= 0x20
	}
	b2 := low
	if v.W {
		b2 |= 0x80
	}
	return []byte{0xC4, b1, b2}
}

// EVEX prefix, again with plain (not inverted) extension bits.
// R2 is R', the fifth bit of ModRM.reg; VVVV holds five bits with V' on top.
type EVEX struct {
	R, X, B, R2 bool
	Map         isa.Map
	W           bool
	VVVV        uint8
	PP          isa.Prefix
	Z           bool
	LL          uint8
	Bcst        bool // broadcast, or static rounding for register forms
	AAA         uint8
}

// Bytes packs the four prefix bytes
func (e EVEX) Bytes() [4]byte {
	// P0: [R X B R' 0 0 m m]
	p0 := byte(e.Map) & 0x03
	if !e.R {
		p0 |= 0x80
	}
	if !e.X {
		p0 |= 0x40
	}
	if !e.B {
		p0 |= 0x20
	}
	if !e.R2 {
		p0 |= 0x10
	}
	// P1: [W vvvv 1 pp]
	p1 := (^e.VVVV&0x0F)<<3 | 0x04 | byte(e.PP)
	if e.W {
		p1 |= 0x80
	}
	// P2: [z L'L b V' aaa]
	p2 := (e.LL&3)<<5 | e.AAA&7
	if e.Z {
		p2 |= 0x80
	}
	if e.Bcst {
		p2 |= 0x10
	}
	if e.VVVV&0x10 == 0 {
		p2 |= 0x08
	}
	return [4]byte{0x62, p0, p1, p2}
}

// ModRM byte: mod(2) reg(3) rm(3)
type ModRM struct {
	Mod, Reg, RM uint8
}

func (m ModRM) Byte() byte {
	return m.Mod<<6 | (m.Reg&7)<<3 | m.RM&7
}

// SIB byte: scale(2) index(3) base(3)
type SIB struct {
	Scale, Index, Base uint8
}

func (s SIB) Byte() byte {
	return s.Scale<<6 | (s.Index&7)<<3 | s.Base&7
}

// Inst is a decoded instruction, used to check encodings
type Inst struct {
	Prefix byte // 66, F2 or F3 legacy prefix, or 0
	REX    *REX
	VEX    *VEX
	EVEX   *EVEX
	Map    isa.Map // 0 for one-byte opcodes
	Op     byte
	ModRM  *ModRM
	SIB    *SIB
	Disp   int32
	Imm    []byte
	Len    int
}

// Reg returns the full ModRM.reg register number
func (in Inst) Reg() uint8 {
	if in.ModRM == nil {
		return 0
	}
	r := in.ModRM.Reg
	switch {
	case in.REX != nil && in.REX.R, in.VEX != nil && in.VEX.R, in.EVEX != nil && in.EVEX.R:
		r |= 8
	}
	if in.EVEX != nil && in.EVEX.R2 {
		r |= 16
	}
	return r
}

// RM returns the full register number in ModRM.rm, or the base register
// of a memory operand
func (in Inst) RM() uint8 {
	if in.ModRM == nil {
		return 0
	}
	r := in.ModRM.RM
	if in.SIB != nil {
		r = in.SIB.Base
	}
	switch {
	case in.REX != nil && in.REX.B, in.VEX != nil && in.VEX.B, in.EVEX != nil && in.EVEX.B:
		r |= 8
	}
	if in.EVEX != nil && in.EVEX.X && in.ModRM.Mod == 3 {
		r |= 16
	}
	return r
}

// VVVV returns the register number in VEX.vvvv or EVEX.vvvv
func (in Inst) VVVV() uint8 {
	switch {
	case in.VEX != nil:
		return in.VEX.VVVV
	case in.EVEX != nil:
		return in.EVEX.VVVV
	}
	return 0
}

// Decode decodes the instruction at the start of code. immBytes is the
// size of the trailing immediate (4 for a jcc rel32).
func Decode(code []byte, immBytes int) (Inst, error) {
	var in Inst
	i := 0
	need := func(n int) error {
		if i+n > len(code) {
			return diag.Encoding("truncated instruction at byte %d", i)
		}
		return nil
	}
	if err := need(1); err != nil {
		return in, err
	}
	switch code[i] {
	case 0x66, 0xF2, 0xF3:
		in.Prefix = code[i]
		i++
	}
	if err := need(1); err != nil {
		return in, err
	}
	switch c := code[i]; {
	case c&0xF0 == 0x40:
		in.REX = &REX{W: c&8 != 0, R: c&4 != 0, X: c&2 != 0, B: c&1 != 0}
		i++
	case c == 0xC5:
		if err := need(2); err != nil {
			return in, err
		}
		b1 := code[i+1]
		in.VEX = &VEX{R: b1&0x80 == 0, Map: isa.Map0F, VVVV: ^b1 >> 3 & 0x0F, L: b1&4 != 0, PP: isa.Prefix(b1 & 3)}
		in.Map = isa.Map0F
		i += 2
	case c == 0xC4:
		if err := need(3); err != nil {
			return in, err
		}
		b1, b2 := code[i+1], code[i+2]
		in.VEX = &VEX{R: b1&0x80 == 0, X: b1&0x40 == 0, B: b1&0x20 == 0, Map: isa.Map(b1 & 0x1F),
			W: b2&0x80 != 0, VVVV: ^b2 >> 3 & 0x0F, L: b2&4 != 0, PP: isa.Prefix(b2 & 3)}
		in.Map = in.VEX.Map
		i += 3
	case c == 0x62:
		if err := need(4); err != nil {
			return in, err
		}
		p0, p1, p2 := code[i+1], code[i+2], code[i+3]
		e := &EVEX{R: p0&0x80 == 0, X: p0&0x40 == 0, B: p0&0x20 == 0, R2: p0&0x10 == 0, Map: isa.Map(p0 & 3),
			W: p1&0x80 != 0, VVVV: ^p1 >> 3 & 0x0F, PP: isa.Prefix(p1 & 3),
			Z: p2&0x80 != 0, LL: p2 >> 5 & 3, Bcst: p2&0x10 != 0, AAA: p2 & 7}
		if p2&0x08 == 0 {
			e.VVVV |= 0x10
		}
		in.EVEX = e
		in.Map = e.Map
		i += 4
	}
	if in.VEX == nil && in.EVEX == nil {
		if err := need(1); err != nil {
			return in, err
		}
		if code[i] == 0x0F {
			in.Map = isa.Map0F
			i++
			if err := need(1); err != nil {
				return in, err
			}
			switch code[i] {
			case 0x38:
				in.Map = isa.Map0F38
				i++
			case 0x3A:
				in.Map = isa.Map0F3A
				i++
			}
		}
	}
	if err := need(1); err != nil {
		return in, err
	}
	in.Op = code[i]
	i++
	if hasModRM(in.Map, in.Op) {
		if err := need(1); err != nil {
			return in, err
		}
		m := code[i]
		in.ModRM = &ModRM{Mod: m >> 6, Reg: m >> 3 & 7, RM: m & 7}
		i++
		if in.ModRM.Mod != 3 && in.ModRM.RM == 4 {
			if err := need(1); err != nil {
				return in, err
			}
			s := code[i]
			in.SIB = &SIB{Scale: s >> 6, Index: s >> 3 & 7, Base: s & 7}
			i++
		}
		switch {
		case in.ModRM.Mod == 1:
			if err := need(1); err != nil {
				return in, err
			}
			in.Disp = int32(int8(code[i]))
			i++
		case in.ModRM.Mod == 2, in.ModRM.Mod == 0 && in.ModRM.RM == 5:
			if err := need(4); err != nil {
				return in, err
			}
			in.Disp = int32(binary.LittleEndian.Uint32(code[i:]))
			i += 4
		}
	}
	if err := need(immBytes); err != nil {
		return in, err
	}
	in.Imm = code[i : i+immBytes]
	in.Len = i + immBytes
	return in, nil
}

// hasModRM is false for the few opcodes the engine emits without one
func hasModRM(m isa.Map, op byte) bool {
	switch {
	case m == 0 && op >= 0xB8 && op <= 0xBF: // mov r64, imm64
		return false
	case m == isa.Map0F && op >= 0x80 && op <= 0x8F: // jcc rel32
		return false
	}
	return true
}
