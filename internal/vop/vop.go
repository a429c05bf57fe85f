// Package vop defines the architecture-neutral vector operation model:
// operation codes, element kinds, operand forms and the VectorOp value the
// rest of the engine consumes.
package vop

import (
	"strconv"
	"strings"

	"github.com/xyproto/vlower/internal/operand"
)

// Kind is the element kind of a lane
type Kind uint8

const (
	KindUint Kind = iota
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "u"
	case KindInt:
		return "i"
	case KindFloat:
		return "f"
	default:
		return "?"
	}
}

// ParseKind parses "u", "i" or "f" (or the long names)
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "u", "uint", "unsigned":
		return KindUint, true
	case "i", "int", "signed":
		return KindInt, true
	case "f", "float":
		return KindFloat, true
	}
	return 0, false
}

// Kinds lists all element kinds
var Kinds = []Kind{KindUint, KindInt, KindFloat}

// ElemWidths lists the element widths in bits
var ElemWidths = []int{8, 16, 32, 64}

// Form is the shape of the last source operand
type Form uint8

const (
	FormRegReg Form = iota
	FormRegImm
	FormRegMem
)

func (f Form) String() string {
	switch f {
	case FormRegReg:
		return "rr"
	case FormRegImm:
		return "ri"
	case FormRegMem:
		return "rm"
	default:
		return "?"
	}
}

// Width is a requested vector width in bits. WidthVariable is resolved to
// the session's configured width when the session starts.
type Width int

const (
	WidthVariable Width = 0
	Width128      Width = 128
	Width256      Width = 256
	Width512      Width = 512
)

func (w Width) String() string {
	if w == WidthVariable {
		return "variable"
	}
	return strconv.Itoa(int(w))
}

// ParseWidth parses "128", "256", "512" or "variable"
func ParseWidth(s string) (Width, bool) {
	switch strings.ToLower(s) {
	case "128":
		return Width128, true
	case "256":
		return Width256, true
	case "512":
		return Width512, true
	case "variable", "var", "":
		return WidthVariable, true
	}
	return 0, false
}

// RoundMode is the rounding applied by conversions and Round
type RoundMode uint8

const (
	RoundDefault RoundMode = iota // resolved through the session's round compat level
	RoundNearest                  // to nearest, ties to even
	RoundDown
	RoundUp
	RoundZero
	RoundCurrent // whatever the control register says
)

var roundNames = [...]string{"default", "rn", "rd", "ru", "rz", "rc"}

func (m RoundMode) String() string {
	if int(m) < len(roundNames) {
		return roundNames[m]
	}
	return "round(" + strconv.Itoa(int(m)) + ")"
}

// ParseRoundMode accepts the short names and the long ones
func ParseRoundMode(s string) (RoundMode, bool) {
	switch strings.ToLower(s) {
	case "", "default":
		return RoundDefault, true
	case "rn", "nearest":
		return RoundNearest, true
	case "rd", "down", "floor":
		return RoundDown, true
	case "ru", "up", "ceil":
		return RoundUp, true
	case "rz", "zero", "trunc":
		return RoundZero, true
	case "rc", "current":
		return RoundCurrent, true
	}
	return 0, false
}

// BranchCond selects the mask reduction of a masked branch
type BranchCond uint8

const (
	BranchNone BranchCond = iota // no lane set
	BranchFull                   // every lane set
)

func (c BranchCond) String() string {
	if c == BranchFull {
		return "full"
	}
	return "none"
}

// Family is a compatibility family: a group of operations whose lowering
// is chosen by one named compat level.
type Family uint8

const (
	FamilyNone Family = iota
	FamilyRcp
	FamilyRsq
	FamilyFMA
	FamilyRound
)

func (f Family) String() string {
	switch f {
	case FamilyRcp:
		return "rcp"
	case FamilyRsq:
		return "rsq"
	case FamilyFMA:
		return "fma"
	case FamilyRound:
		return "round"
	default:
		return "none"
	}
}

// VectorOp is an immutable operation description. Width is the element
// width in bits; for scalar loads/stores it is the access width.
type VectorOp struct {
	Code  Code
	Kind  Kind
	Width int
	Arity int
	Form  Form
	Round RoundMode
	Cond  BranchCond
}

// String returns names like "addsat.u8", "cvtf2i.i32.rz" or "load.f32.rm"
func (op VectorOp) String() string {
	var b strings.Builder
	b.WriteString(op.Code.String())
	if op.Code.Class() != ClassControl || op.Code == OpCtlSetRound {
		if op.Width != 0 {
			b.WriteByte('.')
			b.WriteString(op.Kind.String())
			b.WriteString(strconv.Itoa(op.Width))
		}
	}
	if op.Form != FormRegReg {
		b.WriteByte('.')
		b.WriteString(op.Form.String())
	}
	if op.Code.Rounds() || op.Code == OpCtlSetRound {
		b.WriteByte('.')
		b.WriteString(op.Round.String())
	}
	if op.Code == OpMaskBranch {
		b.WriteByte('.')
		b.WriteString(op.Cond.String())
	}
	return b.String()
}

// Family returns the compat family that selects the lowering of op
func (op VectorOp) Family() Family {
	return op.Code.Family()
}

// Lanes returns the number of lanes of op in a vector of the given bytes
func (op VectorOp) Lanes(bytes int) int {
	if op.Width == 0 {
		return 0
	}
	return bytes * 8 / op.Width
}

// WithCode returns a copy of op with another code
func (op VectorOp) WithCode(c Code) VectorOp {
	op.Code = c
	op.Arity = c.Arity()
	return op
}

// WithForm returns a copy of op with another form
func (op VectorOp) WithForm(f Form) VectorOp {
	op.Form = f
	return op
}

// WithRound returns a copy of op with another rounding mode
func (op VectorOp) WithRound(m RoundMode) VectorOp {
	op.Round = m
	return op
}

// WithKind returns a copy of op with another element kind
func (op VectorOp) WithKind(k Kind) VectorOp {
	op.Kind = k
	return op
}

// Operands holds the operand roles of one operation. Dst is also read by
// MulAdd (dst = dst + src1*src2) and by Store, where it is the memory cell.
type Operands struct {
	Dst  operand.Operand
	Src1 operand.Operand
	Src2 operand.Operand
	Src3 operand.Operand
}

// All returns the non-nil operands in role order
func (o Operands) All() []operand.Operand {
	all := make([]operand.Operand, 0, 4)
	for _, x := range []operand.Operand{o.Dst, o.Src1, o.Src2, o.Src3} {
		if x != nil {
			all = append(all, x)
		}
	}
	return all
}

// Sources returns the source operands in role order, nil ones included
func (o Operands) Sources() []operand.Operand {
	return []operand.Operand{o.Src1, o.Src2, o.Src3}
}

// Map applies f to every non-nil operand
func (o Operands) Map(f func(operand.Operand) operand.Operand) Operands {
	g := func(x operand.Operand) operand.Operand {
		if x == nil {
			return nil
		}
		return f(x)
	}
	return Operands{Dst: g(o.Dst), Src1: g(o.Src1), Src2: g(o.Src2), Src3: g(o.Src3)}
}

func (o Operands) String() string {
	parts := make([]string, 0, 4)
	for _, x := range o.All() {
		parts = append(parts, x.String())
	}
	return strings.Join(parts, ", ")
}

// formOf derives the operand form from the last source operand
func formOf(last operand.Operand) Form {
	switch last.(type) {
	case operand.Mem:
		return FormRegMem
	case operand.Imm:
		return FormRegImm
	}
	return FormRegReg
}

func newOp(c Code, k Kind, bits int, last operand.Operand) VectorOp {
	return VectorOp{Code: c, Kind: k, Width: bits, Arity: c.Arity(), Form: formOf(last)}
}
