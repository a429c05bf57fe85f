package isa

import (
	"strings"

	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// Instr is one lowered instruction: a native descriptor applied to
// physical operands at the profile's native vector size. Memory operands
// are already resolved, so their displacement fits the target field.
type Instr struct {
	Desc  *Desc
	Temps []operand.Operand // scratch registers reserved for composite encodings
	Mask  operand.Operand   // opmask register for EVEX compare/branch forms, or nil
	Ops   vop.Operands
	Op    vop.VectorOp
	Bytes int // vector size the instruction operates on
}

// Format renders the instruction with the machine's register names
func (in Instr) Format(machine Arch) string {
	if in.Op.Code == vop.OpLabel {
		return in.Ops.Src1.String() + ":"
	}
	name := in.Op.String()
	if in.Desc != nil {
		name = in.Desc.Name
	}
	var args []string
	for _, x := range in.Ops.All() {
		args = append(args, OperandName(machine, in.Bytes, x))
	}
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, ", ")
}

// Program is the list of instructions a session produced
type Program struct {
	Instrs []Instr
	Arch   Arch
}

// Append adds an instruction
func (p *Program) Append(in Instr) {
	p.Instrs = append(p.Instrs, in)
}

// Len returns the number of instructions
func (p *Program) Len() int {
	return len(p.Instrs)
}

// String lists the program, one instruction per line
func (p *Program) String() string {
	var b strings.Builder
	for _, in := range p.Instrs {
		if in.Op.Code != vop.OpLabel {
			b.WriteString("\t")
		}
		b.WriteString(in.Format(p.Arch))
		b.WriteByte('\n')
	}
	return b.String()
}

// Count returns how many instructions have the given code
func (p *Program) Count(c vop.Code) int {
	n := 0
	for _, in := range p.Instrs {
		if in.Op.Code == c {
			n++
		}
	}
	return n
}
