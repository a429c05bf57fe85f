package sim

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/mask"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// exec runs one instruction and reports a taken branch
func (m *Machine) exec(in isa.Instr) (operand.Label, bool, error) {
	switch in.Op.Code.Class() {
	case vop.ClassScalar:
		return 0, false, m.scalar(in)
	case vop.ClassControl:
		return 0, false, m.control(in)
	}
	if in.Op.Code == vop.OpMaskBranch {
		l, ok := in.Ops.Src2.(operand.Label)
		if !ok {
			return 0, false, diag.Internal("mask branch without a label")
		}
		src, err := m.source(in.Ops.Src1, in.Bytes)
		if err != nil {
			return 0, false, err
		}
		return l, mask.Holds(in.Op.Cond, src), nil
	}
	return 0, false, m.vector(in)
}

// source reads a vector operand
func (m *Machine) source(x operand.Operand, n int) ([]byte, error) {
	switch v := x.(type) {
	case operand.PReg:
		return m.Vec(v, n), nil
	case operand.Mem:
		return m.Read(m.Addr(v), n), nil
	}
	return nil, diag.Internal("operand %v is not a vector source", x)
}

// store writes a vector result, clearing the bytes above it
func (m *Machine) store(x operand.Operand, b []byte) error {
	switch v := x.(type) {
	case operand.PReg:
		m.SetVec(v, b)
		return nil
	case operand.Mem:
		m.Write(m.Addr(v), b)
		return nil
	}
	return diag.Internal("operand %v is not a vector destination", x)
}

func (m *Machine) vector(in isa.Instr) error {
	op, ops, n := in.Op, in.Ops, in.Bytes
	if n <= 0 || n > MaxVectorBytes {
		return diag.Internal("vector size %d", n)
	}
	switch op.Code {
	case vop.OpLoad, vop.OpMove:
		src, err := m.source(ops.Src1, n)
		if err != nil {
			return err
		}
		return m.store(ops.Dst, src)
	case vop.OpStore:
		src, err := m.source(ops.Src1, n)
		if err != nil {
			return err
		}
		return m.store(ops.Dst, src)
	case vop.OpSplat:
		var v uint64
		switch s := ops.Src1.(type) {
		case operand.Imm:
			v = uint64(s)
		case operand.GPR:
			v = m.gpr[s]
		default:
			return diag.Internal("splat source %v", ops.Src1)
		}
		out := make([]byte, n)
		for i := 0; i < n*8/op.Width; i++ {
			setLane(out, i, op.Width, v)
		}
		return m.store(ops.Dst, out)
	case vop.OpMerge:
		srcs, err := m.sources(n, ops.Src1, ops.Src2, ops.Src3)
		if err != nil {
			return err
		}
		out := make([]byte, n)
		mask.MergeBytes(out, srcs[0], srcs[1], srcs[2])
		return m.store(ops.Dst, out)
	case vop.OpExtractHi:
		src, err := m.source(ops.Src1, n)
		if err != nil {
			return err
		}
		out := make([]byte, n)
		copy(out, src[n/2:])
		return m.store(ops.Dst, out)
	case vop.OpInsertHi:
		srcs, err := m.sources(n, ops.Src1, ops.Src2)
		if err != nil {
			return err
		}
		out := make([]byte, n)
		copy(out, srcs[0][:n/2])
		copy(out[n/2:], srcs[1][:n/2])
		return m.store(ops.Dst, out)
	case vop.OpAnd, vop.OpAndNot, vop.OpOr, vop.OpXor, vop.OpNot:
		return m.logic(in)
	}
	return m.lanes(in)
}

func (m *Machine) sources(n int, xs ...operand.Operand) ([][]byte, error) {
	out := make([][]byte, len(xs))
	for i, x := range xs {
		b, err := m.source(x, n)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func (m *Machine) logic(in isa.Instr) error {
	n, ops := in.Bytes, in.Ops
	a, err := m.source(ops.Src1, n)
	if err != nil {
		return err
	}
	var b []byte
	if in.Op.Code != vop.OpNot {
		if b, err = m.source(ops.Src2, n); err != nil {
			return err
		}
	}
	out := make([]byte, n)
	for i := range out {
		switch in.Op.Code {
		case vop.OpAnd:
			out[i] = a[i] & b[i]
		case vop.OpAndNot:
			out[i] = ^a[i] & b[i]
		case vop.OpOr:
			out[i] = a[i] | b[i]
		case vop.OpXor:
			out[i] = a[i] ^ b[i]
		case vop.OpNot:
			out[i] = ^a[i]
		}
	}
	return m.store(ops.Dst, out)
}

// lanes runs the lane-wise operations
func (m *Machine) lanes(in isa.Instr) error {
	op, ops, n := in.Op, in.Ops, in.Bytes
	w := op.Width
	a, err := m.source(ops.Src1, n)
	if err != nil {
		return err
	}
	var b []byte
	var imm int64
	switch s := ops.Src2.(type) {
	case nil:
	case operand.Imm:
		imm = int64(s)
	default:
		if b, err = m.source(s, n); err != nil {
			return err
		}
	}
	var d []byte
	if op.Code == vop.OpMulAdd {
		if d, err = m.source(ops.Dst, n); err != nil {
			return err
		}
	}
	out := make([]byte, n)
	for i := 0; i < n*8/w; i++ {
		x := lane(a, i, w)
		var y, z uint64
		if b != nil {
			y = lane(b, i, w)
		}
		if d != nil {
			z = lane(d, i, w)
		}
		r, err := m.laneOp(in, x, y, z, imm)
		if err != nil {
			return err
		}
		setLane(out, i, w, r)
	}
	return m.store(ops.Dst, out)
}

func allOnes(c bool, w int) uint64 {
	if c {
		return maskOf(w)
	}
	return 0
}

func (m *Machine) laneOp(in isa.Instr, x, y, z uint64, imm int64) (uint64, error) {
	op := in.Op
	w := op.Width
	switch op.Code {
	case vop.OpShlImm, vop.OpShrImm, vop.OpSraImm:
		return shift(op.Code, op.Kind, w, x, imm), nil
	case vop.OpShlVar, vop.OpShrVar, vop.OpSraVar:
		return m.varShift(op, x, y), nil
	case vop.OpCvtFToI:
		return cvtFToI(op.Kind, w, m.round(op.Round, vop.FloatValue(w, x))), nil
	case vop.OpCvtIToF:
		v := float64(x & maskOf(w))
		if op.Kind == vop.KindInt {
			v = float64(sext(x, w))
		}
		return vop.FloatBits(w, v), nil
	case vop.OpRound:
		return vop.FloatBits(w, m.round(op.Round, vop.FloatValue(w, x))), nil
	}
	if op.Kind == vop.KindFloat {
		return m.floatOp(in, x, y, z)
	}
	return intOp(op, x, y, z)
}

func intOp(op vop.VectorOp, x, y, z uint64) (uint64, error) {
	w, mk := op.Width, maskOf(op.Width)
	signed := op.Kind == vop.KindInt
	less := func(a, b uint64) bool {
		if signed {
			return sext(a, w) < sext(b, w)
		}
		return a&mk < b&mk
	}
	switch op.Code {
	case vop.OpAdd:
		return (x + y) & mk, nil
	case vop.OpSub:
		return (x - y) & mk, nil
	case vop.OpMul:
		return (x * y) & mk, nil
	case vop.OpMulAdd:
		return (z + x*y) & mk, nil
	case vop.OpNeg:
		return -x & mk, nil
	case vop.OpMin:
		if less(y, x) {
			return y, nil
		}
		return x, nil
	case vop.OpMax:
		if less(x, y) {
			return y, nil
		}
		return x, nil
	case vop.OpAddSat, vop.OpSubSat:
		return saturate(op, x, y), nil
	case vop.OpCmpEQ:
		return allOnes(x&mk == y&mk, w), nil
	case vop.OpCmpNE:
		return allOnes(x&mk != y&mk, w), nil
	case vop.OpCmpGT:
		return allOnes(less(y, x), w), nil
	case vop.OpCmpGE:
		return allOnes(!less(x, y), w), nil
	case vop.OpCmpLT:
		return allOnes(less(x, y), w), nil
	case vop.OpCmpLE:
		return allOnes(!less(y, x), w), nil
	}
	return 0, diag.Internal("sim: %s not modeled", op)
}

// saturate clamps a lane add or subtract to the lane range
func saturate(op vop.VectorOp, x, y uint64) uint64 {
	w, mk := op.Width, maskOf(op.Width)
	sub := op.Code == vop.OpSubSat
	if op.Kind != vop.KindInt {
		x, y = x&mk, y&mk
		if sub {
			if y > x {
				return 0
			}
			return x - y
		}
		s, carry := bits.Add64(x, y, 0)
		if carry != 0 || s > mk {
			return mk
		}
		return s
	}
	a, b := sext(x, w), sext(y, w)
	lo, hi := -int64(1)<<(w-1), int64(mk>>1)
	if w == 64 {
		lo, hi = math.MinInt64, math.MaxInt64
	}
	var r int64
	var over bool
	if sub {
		r = a - b
		over = w == 64 && (a >= 0) != (b >= 0) && (r >= 0) != (a >= 0)
	} else {
		r = a + b
		over = w == 64 && (a >= 0) == (b >= 0) && (r >= 0) != (a >= 0)
	}
	switch {
	case over && a >= 0, !over && r > hi:
		r = hi
	case over, r < lo:
		r = lo
	}
	return uint64(r) & mk
}

func shift(c vop.Code, k vop.Kind, w int, x uint64, count int64) uint64 {
	mk := maskOf(w)
	switch c {
	case vop.OpShlImm, vop.OpShlVar:
		if count >= int64(w) {
			return 0
		}
		return x << count & mk
	case vop.OpShrImm, vop.OpShrVar:
		if count >= int64(w) {
			return 0
		}
		return (x & mk) >> count
	}
	if count >= int64(w) {
		count = int64(w) - 1
	}
	return uint64(sext(x, w)>>count) & mk
}

// varShift applies the architecture's rule for per-lane counts. NEON
// reads the low byte as a signed count and shifts right when it is
// negative, Power takes the count modulo the lane width, x86 fills with
// zeros or sign bits when the count reaches the lane width.
func (m *Machine) varShift(op vop.VectorOp, x, y uint64) uint64 {
	w := op.Width
	switch m.p.Arch {
	case isa.ArchARM64:
		c := int64(int8(y))
		if c >= 0 {
			return shift(vop.OpShlVar, op.Kind, w, x, c)
		}
		if op.Kind == vop.KindInt {
			return shift(vop.OpSraVar, op.Kind, w, x, -c)
		}
		return shift(vop.OpShrVar, op.Kind, w, x, -c)
	case isa.ArchPPC64LE:
		return shift(op.Code, op.Kind, w, x, int64(y%uint64(w)))
	}
	c := int64(y & maskOf(w))
	if y&maskOf(w) >= uint64(w) {
		c = int64(w)
	}
	return shift(op.Code, op.Kind, w, x, c)
}

func (m *Machine) round(mode vop.RoundMode, v float64) float64 {
	if mode == vop.RoundCurrent {
		mode = m.mode
	}
	switch mode {
	case vop.RoundDown:
		return math.Floor(v)
	case vop.RoundUp:
		return math.Ceil(v)
	case vop.RoundZero:
		return math.Trunc(v)
	}
	return math.RoundToEven(v)
}

// cvtFToI saturates to the lane range; NaN converts to zero
func cvtFToI(k vop.Kind, w int, v float64) uint64 {
	if math.IsNaN(v) {
		return 0
	}
	if k == vop.KindInt {
		lo, hi := math.Ldexp(-1, w-1), math.Ldexp(1, w-1)
		switch {
		case v < lo:
			return uint64(int64(-1)<<(w-1)) & maskOf(w)
		case v >= hi:
			return maskOf(w) >> 1
		}
		return uint64(int64(v)) & maskOf(w)
	}
	switch {
	case v <= 0:
		return 0
	case v >= math.Ldexp(1, w):
		return maskOf(w)
	}
	return uint64(v)
}

// estimate rounds v to bits significant bits, the precision of a hardware
// estimate instruction
func estimate(v float64, bits int) float64 {
	if v == 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	fr, exp := math.Frexp(v)
	scale := math.Ldexp(1, bits)
	return math.Ldexp(math.Round(fr*scale)/scale, exp)
}

func (m *Machine) floatOp(in isa.Instr, x, y, z uint64) (uint64, error) {
	op := in.Op
	w := op.Width
	a, b, c := vop.FloatValue(w, x), vop.FloatValue(w, y), vop.FloatValue(w, z)
	res := func(v float64) (uint64, error) { return vop.FloatBits(w, v), nil }
	est := m.p.EstimateBits
	if in.Desc != nil && in.Desc.EstimateBits > 0 {
		est = in.Desc.EstimateBits
	}
	switch op.Code {
	case vop.OpAdd:
		return res(a + b)
	case vop.OpSub:
		return res(a - b)
	case vop.OpMul:
		return res(a * b)
	case vop.OpDiv:
		return res(a / b)
	case vop.OpSqrt:
		return res(math.Sqrt(a))
	case vop.OpMin:
		return res(math.Min(a, b))
	case vop.OpMax:
		return res(math.Max(a, b))
	case vop.OpNeg:
		return x ^ 1<<(w-1), nil
	case vop.OpMulAdd:
		return res(math.FMA(a, b, c))
	case vop.OpRcp:
		return res(1 / a)
	case vop.OpRsq:
		return res(1 / math.Sqrt(a))
	case vop.OpRcpEst:
		return res(estimate(1/a, est))
	case vop.OpRsqEst:
		return res(estimate(1/math.Sqrt(a), est))
	case vop.OpRcpStep:
		return res(math.FMA(-a, b, 2))
	case vop.OpRsqStep:
		return res(math.FMA(-a, b, 3) / 2)
	case vop.OpCmpEQ:
		return allOnes(a == b, w), nil
	case vop.OpCmpNE:
		return allOnes(a != b, w), nil
	case vop.OpCmpGT:
		return allOnes(a > b, w), nil
	case vop.OpCmpGE:
		return allOnes(a >= b, w), nil
	case vop.OpCmpLT:
		return allOnes(a < b, w), nil
	case vop.OpCmpLE:
		return allOnes(a <= b, w), nil
	}
	return 0, diag.Internal("sim: %s not modeled", op)
}

func (m *Machine) scalar(in isa.Instr) error {
	op, ops := in.Op, in.Ops
	dst := func(v uint64) error {
		g, ok := ops.Dst.(operand.GPR)
		if !ok {
			return diag.Internal("scalar destination %v", ops.Dst)
		}
		m.gpr[g] = v
		return nil
	}
	val := func(x operand.Operand) (uint64, error) {
		switch v := x.(type) {
		case operand.GPR:
			return m.gpr[v], nil
		case operand.Imm:
			return uint64(v), nil
		}
		return 0, diag.Internal("scalar source %v", x)
	}
	switch op.Code {
	case vop.OpSMovImm:
		v, err := val(ops.Src1)
		if err != nil {
			return err
		}
		return dst(v)
	case vop.OpSLoad:
		mem, ok := ops.Src1.(operand.Mem)
		if !ok {
			return diag.Internal("sload source %v", ops.Src1)
		}
		v := lane(m.Read(m.Addr(mem), op.Width/8), 0, op.Width)
		if op.Kind == vop.KindInt {
			v = uint64(sext(v, op.Width))
		}
		return dst(v)
	case vop.OpSStore:
		mem, ok := ops.Dst.(operand.Mem)
		if !ok {
			return diag.Internal("sstore destination %v", ops.Dst)
		}
		v, err := val(ops.Src1)
		if err != nil {
			return err
		}
		b := make([]byte, op.Width/8)
		setLane(b, 0, op.Width, v)
		m.Write(m.Addr(mem), b)
		return nil
	case vop.OpSZext:
		v, err := val(ops.Src1)
		if err != nil {
			return err
		}
		return dst(v & maskOf(op.Width))
	}
	a, err := val(ops.Src1)
	if err != nil {
		return err
	}
	b, err := val(ops.Src2)
	if err != nil {
		return err
	}
	switch op.Code {
	case vop.OpSAdd, vop.OpSAddImm:
		return dst(a + b)
	case vop.OpSSub:
		return dst(a - b)
	case vop.OpSMul:
		return dst(a * b)
	case vop.OpSShl:
		return dst(a << (b & 63))
	case vop.OpSShr:
		return dst(a >> (b & 63))
	case vop.OpSSar:
		return dst(uint64(int64(a) >> (b & 63)))
	case vop.OpSMin:
		return dst(uint64(min(int64(a), int64(b))))
	case vop.OpSMax:
		return dst(uint64(max(int64(a), int64(b))))
	}
	return diag.Internal("sim: %s not modeled", op)
}

// control keeps the saved rounding mode in the first word of the slot
func (m *Machine) control(in isa.Instr) error {
	if in.Op.Code == vop.OpLabel {
		return nil
	}
	slot := in.Ops.Src1
	if in.Op.Code == vop.OpCtlSave {
		slot = in.Ops.Dst
	}
	mem, ok := slot.(operand.Mem)
	if !ok {
		return diag.Internal("control access without a slot")
	}
	at := m.Addr(mem)
	switch in.Op.Code {
	case vop.OpCtlSave:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(m.mode))
		m.Write(at, b[:])
	case vop.OpCtlSetRound:
		m.mode = in.Op.Round
	case vop.OpCtlRestore:
		m.mode = vop.RoundMode(binary.LittleEndian.Uint32(m.Read(at, 4)))
	}
	return nil
}
