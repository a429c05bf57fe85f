// Package operand holds the target-independent operand model: logical and
// physical vector registers, general purpose and opmask registers, memory
// operands with an addressing class, immediates and branch labels.
package operand

import (
	"fmt"
	"strconv"
)

// Operand is implemented by every operand kind
type Operand interface {
	fmt.Stringer
	isOperand()
}

// VReg is a logical vector register as seen by the caller. At a pairing
// factor above one it names a group of physical registers.
type VReg uint8

// PReg is a physical vector register, by encoding number
type PReg uint8

// GPR is a general purpose register, by encoding number
type GPR uint8

// KReg is an x86 opmask register k0-k7
type KReg uint8

// Imm is an immediate value
type Imm int64

// Label identifies a branch target supplied by the caller
type Label uint32

// Class is the addressing class of a memory operand. It decides which
// displacement field the resolver has to fit.
type Class uint8

const (
	ClassVector  Class = iota // one full native vector
	ClassElem8                // scalar element accesses
	ClassElem16
	ClassElem32
	ClassElem64
	ClassControl // 32-bit control register slot
)

// Bytes returns the access size of the class, given the native vector size
func (c Class) Bytes(native int) int {
	switch c {
	case ClassElem8:
		return 1
	case ClassElem16:
		return 2
	case ClassElem32, ClassControl:
		return 4
	case ClassElem64:
		return 8
	default:
		return native
	}
}

func (c Class) String() string {
	switch c {
	case ClassVector:
		return "vector"
	case ClassElem8:
		return "elem8"
	case ClassElem16:
		return "elem16"
	case ClassElem32:
		return "elem32"
	case ClassElem64:
		return "elem64"
	case ClassControl:
		return "control"
	default:
		return "class(" + strconv.Itoa(int(c)) + ")"
	}
}

// ElemClass returns the scalar class for an element width in bits
func ElemClass(bits int) Class {
	switch bits {
	case 8:
		return ClassElem8
	case 16:
		return ClassElem16
	case 32:
		return ClassElem32
	default:
		return ClassElem64
	}
}

// Mem is base + displacement. The displacement may be out of range for the
// target; the addressing resolver rewrites it before encoding.
type Mem struct {
	Base  GPR
	Disp  int64
	Class Class
}

// At returns the memory operand shifted by off bytes
func (m Mem) At(off int64) Mem {
	m.Disp += off
	return m
}

// WithClass returns the memory operand with another addressing class
func (m Mem) WithClass(c Class) Mem {
	m.Class = c
	return m
}

func (VReg) isOperand()  {}
func (PReg) isOperand()  {}
func (GPR) isOperand()   {}
func (KReg) isOperand()  {}
func (Imm) isOperand()   {}
func (Label) isOperand() {}
func (Mem) isOperand()   {}

func (r VReg) String() string  { return "V" + strconv.Itoa(int(r)) }
func (r PReg) String() string  { return "p" + strconv.Itoa(int(r)) }
func (r GPR) String() string   { return "g" + strconv.Itoa(int(r)) }
func (r KReg) String() string  { return "k" + strconv.Itoa(int(r)) }
func (i Imm) String() string   { return "#" + strconv.FormatInt(int64(i), 10) }
func (l Label) String() string { return "L" + strconv.FormatUint(uint64(l), 10) }

func (m Mem) String() string {
	return fmt.Sprintf("[g%d%+d]:%s", m.Base, m.Disp, m.Class)
}

// IsReg reports whether op is any kind of register
func IsReg(op Operand) bool {
	switch op.(type) {
	case VReg, PReg, GPR, KReg:
		return true
	}
	return false
}

// Same reports whether a and b name the same register or memory cell
func Same(a, b Operand) bool {
	if a == nil || b == nil {
		return false
	}
	return a == b
}

// Slice names the index-th native register of a logical vector register.
// The physical register it denotes is a pure function of (Reg, Index) and
// the profile's pairing table.
type Slice struct {
	Reg   VReg
	Index int
}

func (s Slice) String() string {
	return fmt.Sprintf("V%d.%d", s.Reg, s.Index)
}
