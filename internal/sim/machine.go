// Package sim runs lowered programs on a model machine. Every instruction
// is executed by the meaning of its operation, lane by lane, over a
// register file and a sparse byte memory. The byte encoding is not
// decoded; the model checks what a lowering computes.
//
// Target-defined corners follow the profile's architecture: estimate
// precision, out-of-range variable shift counts and the vector size each
// instruction works on.
package sim

import (
	"encoding/binary"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/vop"
)

// MaxVectorBytes is the size of every model vector register
const MaxVectorBytes = 64

// DefaultMaxSteps bounds Run, so a lowering that loops forever fails
const DefaultMaxSteps = 1 << 20

// Machine is the model machine state
type Machine struct {
	p        *profile.Profile
	vec      [32][MaxVectorBytes]byte
	gpr      [32]uint64
	mem      map[uint64]byte
	mode     vop.RoundMode
	steps    int
	MaxSteps int
}

// New returns a machine for p with zeroed registers and memory and the
// rounding mode set to nearest
func New(p *profile.Profile) *Machine {
	return &Machine{p: p, mem: make(map[uint64]byte), mode: vop.RoundNearest, MaxSteps: DefaultMaxSteps}
}

// Mode returns the current rounding mode
func (m *Machine) Mode() vop.RoundMode {
	return m.mode
}

// Steps returns the number of instructions the last Run executed
func (m *Machine) Steps() int {
	return m.steps
}

func (m *Machine) GPR(r operand.GPR) uint64 {
	return m.gpr[r]
}

func (m *Machine) SetGPR(r operand.GPR, v uint64) {
	m.gpr[r] = v
}

// Vec returns a copy of the first n bytes of r
func (m *Machine) Vec(r operand.PReg, n int) []byte {
	out := make([]byte, n)
	copy(out, m.vec[r][:n])
	return out
}

// SetVec writes b to the low bytes of r and clears the rest
func (m *Machine) SetVec(r operand.PReg, b []byte) {
	m.vec[r] = [MaxVectorBytes]byte{}
	copy(m.vec[r][:], b)
}

// Read returns n bytes of memory at addr. Unwritten bytes read as zero.
func (m *Machine) Read(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = m.mem[addr+uint64(i)]
	}
	return out
}

func (m *Machine) Write(addr uint64, b []byte) {
	for i, x := range b {
		m.mem[addr+uint64(i)] = x
	}
}

// Addr returns the address a memory operand refers to
func (m *Machine) Addr(x operand.Mem) uint64 {
	return uint64(int64(m.gpr[x.Base]) + x.Disp)
}

// Run executes prog from its first instruction to its end
func (m *Machine) Run(prog *isa.Program) error {
	labels := make(map[operand.Label]int)
	for i, in := range prog.Instrs {
		if in.Op.Code != vop.OpLabel {
			continue
		}
		l, ok := in.Ops.Src1.(operand.Label)
		if !ok {
			return diag.Internal("sim: label instruction without a label")
		}
		labels[l] = i
	}
	m.steps = 0
	for pc := 0; pc < len(prog.Instrs); {
		if m.steps >= m.MaxSteps {
			return diag.Internal("sim: step limit %d reached", m.MaxSteps)
		}
		m.steps++
		in := prog.Instrs[pc]
		target, jump, err := m.exec(in)
		if err != nil {
			return diag.WithContext(err, m.p.Name, in.Op.String())
		}
		if !jump {
			pc++
			continue
		}
		next, ok := labels[target]
		if !ok {
			return diag.Internal("sim: branch to unbound label %s", target)
		}
		pc = next
	}
	return nil
}

func lane(b []byte, i, w int) uint64 {
	switch w {
	case 8:
		return uint64(b[i])
	case 16:
		return uint64(binary.LittleEndian.Uint16(b[2*i:]))
	case 32:
		return uint64(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return binary.LittleEndian.Uint64(b[8*i:])
}

func setLane(b []byte, i, w int, v uint64) {
	switch w {
	case 8:
		b[i] = byte(v)
	case 16:
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	case 32:
		binary.LittleEndian.PutUint32(b[4*i:], uint32(v))
	default:
		binary.LittleEndian.PutUint64(b[8*i:], v)
	}
}

func maskOf(w int) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return 1<<w - 1
}

// sext sign extends the low w bits of v
func sext(v uint64, w int) int64 {
	s := 64 - w
	return int64(v<<s) >> s
}

// Lanes splits b into lanes of w bits
func Lanes(b []byte, w int) []uint64 {
	out := make([]uint64, len(b)*8/w)
	for i := range out {
		out[i] = lane(b, i, w)
	}
	return out
}

// Pack is the inverse of Lanes
func Pack(w int, lanes ...uint64) []byte {
	b := make([]byte, len(lanes)*w/8)
	for i, v := range lanes {
		setLane(b, i, w, v)
	}
	return b
}
