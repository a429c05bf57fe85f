package lower

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/selector"
	"github.com/xyproto/vlower/internal/sim"
	"github.com/xyproto/vlower/internal/vop"
)

const (
	dataAddr    = 0x100000
	scratchAddr = 0x200000
)

// rig is a session plus the model machine its program runs on
type rig struct {
	t *testing.T
	s *Session
	m *sim.Machine
	r regs
}

func newRig(t *testing.T, p *profile.Profile, c selector.Compat) *rig {
	t.Helper()
	g := &rig{t: t, s: newSession(t, p, c), m: sim.New(p), r: regsOf(p.Arch)}
	g.m.SetGPR(g.r.data, dataAddr)
	g.m.SetGPR(g.r.scratch, scratchAddr)
	return g
}

func (g *rig) mem(off int64) operand.Mem {
	return operand.Mem{Base: g.r.data, Disp: off}
}

// at returns an emitter for operations at width w
func (g *rig) at(w vop.Width) func(vop.VectorOp, vop.Operands) {
	return func(op vop.VectorOp, ops vop.Operands) {
		g.t.Helper()
		require.NoError(g.t, g.s.Emit(op, w, ops), "%s", op)
	}
}

func (g *rig) run() {
	g.t.Helper()
	_, err := g.s.Finish()
	require.NoError(g.t, err)
	require.NoError(g.t, g.m.Run(g.s.Program()))
}

func (g *rig) read(off int64, n int) []byte {
	return g.m.Read(uint64(dataAddr+off), n)
}

func (g *rig) write(off int64, b []byte) {
	g.m.Write(uint64(dataAddr+off), b)
}

type builder func(k vop.Kind, bits int, dst, a, b operand.Operand) (vop.VectorOp, vop.Operands)

type binCase struct {
	name   string
	kind   vop.Kind
	w      int
	f      builder
	counts bool // second operand holds shift counts below the lane width
}

var binCases = []binCase{
	{name: "add.i32", kind: vop.KindInt, w: 32, f: vop.Add},
	{name: "addsat.u8", kind: vop.KindUint, w: 8, f: vop.AddSat},
	{name: "addsat.u32", kind: vop.KindUint, w: 32, f: vop.AddSat},
	{name: "subsat.i16", kind: vop.KindInt, w: 16, f: vop.SubSat},
	{name: "mul.i32", kind: vop.KindInt, w: 32, f: vop.Mul},
	{name: "mul.i64", kind: vop.KindInt, w: 64, f: vop.Mul},
	{name: "min.u16", kind: vop.KindUint, w: 16, f: vop.Min},
	{name: "max.i8", kind: vop.KindInt, w: 8, f: vop.Max},
	{name: "sub.f32", kind: vop.KindFloat, w: 32, f: vop.Sub},
	{name: "mul.f64", kind: vop.KindFloat, w: 64, f: vop.Mul},
	{name: "xor.u64", kind: vop.KindUint, w: 64, f: vop.Xor},
	{name: "cmpgt.i32", kind: vop.KindInt, w: 32, f: vop.CmpGT},
	{name: "shlv.u32", kind: vop.KindUint, w: 32, f: vop.ShlVar, counts: true},
	{name: "shrv.u64", kind: vop.KindUint, w: 64, f: vop.ShrVar, counts: true},
	{name: "srav.i64", kind: vop.KindInt, w: 64, f: vop.SraVar, counts: true},
}

func gen(r *rand.Rand, k vop.Kind, w, n int, counts bool) []byte {
	lanes := make([]uint64, n*8/w)
	for i := range lanes {
		switch {
		case counts:
			lanes[i] = uint64(r.IntN(w))
		case k == vop.KindFloat:
			lanes[i] = vop.FloatBits(w, float64(r.IntN(1024)-512)/8)
		default:
			lanes[i] = r.Uint64()
		}
	}
	return sim.Pack(w, lanes...)
}

// binop lowers c at width bits with both operands and the result in
// memory and returns the result
func binop(t *testing.T, p *profile.Profile, c binCase, bits int, a, b []byte) []byte {
	t.Helper()
	g := newRig(t, p, selector.DefaultCompat)
	n := int64(bits / 8)
	g.write(0, a)
	g.write(n, b)
	emit := g.at(vop.Width(bits))
	v0, v1, v2 := operand.VReg(0), operand.VReg(1), operand.VReg(2)
	emit(vop.Load(vop.KindUint, 32, v0, g.mem(0)))
	emit(vop.Load(vop.KindUint, 32, v1, g.mem(n)))
	emit(c.f(c.kind, c.w, v2, v0, v1))
	emit(vop.Store(vop.KindUint, 32, g.mem(2*n), v2))
	g.run()
	return g.read(2*n, int(n))
}

var requestWidths = []int{128, 256, 512}

func TestWidthExpansionEquivalence(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, p := range profile.Builtin() {
		native := p.NativeBits
		for _, bits := range requestWidths {
			if bits <= native {
				continue
			}
			for _, c := range binCases {
				t.Run(p.Name+"/"+c.name+"/"+vop.Width(bits).String(), func(t *testing.T) {
					n := bits / 8
					a, b := gen(r, c.kind, c.w, n, false), gen(r, c.kind, c.w, n, c.counts)
					wide := binop(t, p, c, bits, a, b)

					nb := native / 8
					var groups []byte
					for i := 0; i < n; i += nb {
						groups = append(groups, binop(t, p, c, native, a[i:i+nb], b[i:i+nb])...)
					}
					require.Equal(t, groups, wide)
				})
			}
		}
	}
}

func TestPairingFactorInvariance(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for _, name := range []string{profile.X86SSE4, profile.ARM64NEON, profile.PowerVSX3} {
		p := byName(t, name)
		for _, c := range binCases {
			t.Run(name+"/"+c.name, func(t *testing.T) {
				a, b := gen(r, c.kind, c.w, 32, false), gen(r, c.kind, c.w, 32, c.counts)
				r256 := binop(t, p, c, 256, a, b)
				r512 := binop(t, p, c, 512, bytes.Repeat(a, 2), bytes.Repeat(b, 2))
				require.Equal(t, bytes.Repeat(r256, 2), r512)
			})
		}
	}
}

// laneShift is a shift by a per-lane count under the rule of the target
// architecture, for counts below 128
func laneShift(a isa.Arch, code vop.Code, w int, x, n uint64) uint64 {
	mk := uint64(math.MaxUint64) >> (64 - w)
	if a == isa.ArchPPC64LE {
		n %= uint64(w)
	}
	if n >= uint64(w) {
		if code != vop.OpSraVar {
			return 0
		}
		n = uint64(w - 1)
	}
	switch code {
	case vop.OpShlVar:
		return x << n & mk
	case vop.OpShrVar:
		return (x & mk) >> n
	}
	sx := int64(x<<(64-w)) >> (64 - w)
	return uint64(sx>>n) & mk
}

func TestShiftCountsPastLaneWidth(t *testing.T) {
	cases := []binCase{
		{name: "shlv.u32", kind: vop.KindUint, w: 32, f: vop.ShlVar},
		{name: "shrv.u32", kind: vop.KindUint, w: 32, f: vop.ShrVar},
		{name: "srav.i32", kind: vop.KindInt, w: 32, f: vop.SraVar},
		{name: "shlv.u64", kind: vop.KindUint, w: 64, f: vop.ShlVar},
		{name: "shrv.u64", kind: vop.KindUint, w: 64, f: vop.ShrVar},
		{name: "srav.i64", kind: vop.KindInt, w: 64, f: vop.SraVar},
	}
	const x uint64 = 0xF0F1F2F3F4F5F6F7
	for _, p := range profile.Builtin() {
		for _, c := range cases {
			t.Run(p.Name+"/"+c.name, func(t *testing.T) {
				counts := []uint64{3, uint64(c.w), uint64(c.w + 1), 64, 65, 127}
				lanes := 512 / c.w
				xs := repeat(x>>(64-c.w), lanes)
				ns := cycle(lanes, counts...)
				got := sim.Lanes(binop(t, p, c, 512, sim.Pack(c.w, xs...), sim.Pack(c.w, ns...)), c.w)
				op, _ := c.f(c.kind, c.w, nil, nil, nil)
				for i := range got {
					require.Equal(t, laneShift(p.Arch, op.Code, c.w, xs[i], ns[i]), got[i],
						"lane %d, count %d", i, ns[i])
				}
			})
		}
	}
}

// unop lowers dst = f(src) on float32 lanes at the native width
func unop(t *testing.T, p *profile.Profile, c selector.Compat, w int, xs []float64,
	f func(dst, a operand.Operand) (vop.VectorOp, vop.Operands)) []float64 {
	t.Helper()
	g := newRig(t, p, c)
	n := p.NativeBytes()
	lanes := make([]uint64, n*8/w)
	for i := range lanes {
		lanes[i] = vop.FloatBits(w, xs[i%len(xs)])
	}
	g.write(0, sim.Pack(w, lanes...))
	emit := g.at(vop.Width(p.NativeBits))
	emit(vop.Load(vop.KindFloat, w, operand.VReg(0), g.mem(0)))
	emit(f(operand.VReg(1), operand.VReg(0)))
	emit(vop.Store(vop.KindFloat, w, g.mem(int64(n)), operand.VReg(1)))
	g.run()
	out := sim.Lanes(g.read(int64(n), n), w)
	res := make([]float64, len(out))
	for i, v := range out {
		res[i] = vop.FloatValue(w, v)
	}
	return res
}

func relErr(got, want float64) float64 {
	return math.Abs(got-want) / math.Abs(want)
}

var samples = []float64{4, 3, 0.3, 123.456, 1.99, 7e-3, 65537, 0.7071}

func TestRefinementConvergence(t *testing.T) {
	for _, p := range profile.Builtin() {
		t.Run(p.Name, func(t *testing.T) {
			c := selector.Compat{Rcp: 1, Rsq: 1}
			got := unop(t, p, c, 32, samples, func(d, a operand.Operand) (vop.VectorOp, vop.Operands) {
				return vop.Rcp(32, d, a)
			})
			for i, v := range got {
				x := samples[i%len(samples)]
				require.LessOrEqual(t, relErr(v, 1/x), math.Ldexp(1, -22), "rcp(%g) = %g", x, v)
			}
			got = unop(t, p, c, 32, samples, func(d, a operand.Operand) (vop.VectorOp, vop.Operands) {
				return vop.Rsq(32, d, a)
			})
			for i, v := range got {
				x := samples[i%len(samples)]
				require.LessOrEqual(t, relErr(v, 1/math.Sqrt(x)), math.Ldexp(1, -21), "rsq(%g) = %g", x, v)
			}
		})
	}
}

func TestRcpLevels(t *testing.T) {
	for _, p := range profile.Builtin() {
		t.Run(p.Name, func(t *testing.T) {
			rcp := func(d, a operand.Operand) (vop.VectorOp, vop.Operands) { return vop.Rcp(32, d, a) }
			est := unop(t, p, selector.Compat{Rcp: 0}, 32, samples, rcp)
			exact := unop(t, p, selector.Compat{Rcp: 2}, 32, samples, rcp)
			for i := range est {
				x := samples[i%len(samples)]
				require.LessOrEqual(t, relErr(est[i], 1/x), math.Ldexp(1, 1-p.EstimateBits), "estimate of 1/%g", x)
				require.LessOrEqual(t, relErr(exact[i], 1/x), math.Ldexp(1, -23), "1/%g", x)
			}
		})
	}
}

func TestSaturation(t *testing.T) {
	tests := []struct {
		kind vop.Kind
		w    int
		sub  bool
		a, b uint64
		want uint64
	}{
		{vop.KindUint, 8, false, 200, 100, 255},
		{vop.KindInt, 8, false, 100, 50, 127},
		{vop.KindInt, 8, false, uint64(0x9C), uint64(0xCE), 0x80}, // -100 + -50
		{vop.KindUint, 16, true, 5, 10, 0},
		{vop.KindInt, 16, true, 0x8000, 1, 0x8000},
		{vop.KindUint, 32, false, 0xFFFFFFF0, 0x20, 0xFFFFFFFF},
		{vop.KindInt, 32, false, 0x7FFFFFFF, 2, 0x7FFFFFFF},
	}
	for _, p := range profile.Builtin() {
		for _, tt := range tests {
			c := binCase{kind: tt.kind, w: tt.w, f: vop.AddSat}
			if tt.sub {
				c.f = vop.SubSat
			}
			op, _ := c.f(tt.kind, tt.w, nil, nil, nil)
			t.Run(p.Name+"/"+op.String(), func(t *testing.T) {
				n := p.NativeBytes()
				lanes := n * 8 / tt.w
				a := sim.Pack(tt.w, repeat(tt.a, lanes)...)
				b := sim.Pack(tt.w, repeat(tt.b, lanes)...)
				got := sim.Lanes(binop(t, p, c, p.NativeBits, a, b), tt.w)
				require.Equal(t, repeat(tt.want, lanes), got)
			})
		}
	}
}

func repeat(v uint64, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func cycle(n int, vs ...uint64) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = vs[i%len(vs)]
	}
	return out
}

func TestMaskMerge(t *testing.T) {
	const ones = 0xFFFFFFFF
	// dst, mask, ifZero, ifNonZero
	shapes := []struct {
		name          string
		dst, m, z, nz operand.VReg
	}{
		{"distinct", 3, 0, 1, 2},
		{"dst is mask", 0, 0, 1, 2},
		{"dst is ifZero", 1, 0, 1, 2},
		{"dst is ifNonZero", 2, 0, 1, 2},
	}
	for _, p := range profile.Builtin() {
		for _, bits := range []int{p.NativeBits, 2 * p.NativeBits} {
			if bits > 512 {
				continue
			}
			for _, sh := range shapes {
				t.Run(p.Name+"/"+vop.Width(bits).String()+"/"+sh.name, func(t *testing.T) {
					g := newRig(t, p, selector.DefaultCompat)
					n := bits / 8
					lanes := n / 4
					g.write(0, sim.Pack(32, cycle(lanes, 0, ones, 0, ones)...))
					g.write(int64(n), sim.Pack(32, cycle(lanes, 1, 2, 3, 4)...))
					g.write(int64(2*n), sim.Pack(32, cycle(lanes, 10, 20, 30, 40)...))
					emit := g.at(vop.Width(bits))
					emit(vop.Load(vop.KindUint, 32, operand.VReg(0), g.mem(0)))
					emit(vop.Load(vop.KindUint, 32, operand.VReg(1), g.mem(int64(n))))
					emit(vop.Load(vop.KindUint, 32, operand.VReg(2), g.mem(int64(2*n))))
					emit(vop.Merge(vop.KindInt, 32, sh.dst, sh.m, sh.z, sh.nz))
					emit(vop.Store(vop.KindUint, 32, g.mem(int64(3*n)), sh.dst))
					g.run()
					require.Equal(t, cycle(lanes, 1, 20, 3, 40), sim.Lanes(g.read(int64(3*n), n), 32))
				})
			}
		}
	}
}

func TestMaskBranch(t *testing.T) {
	const ones = 0xFFFFFFFF
	tests := []struct {
		name  string
		mask  []uint64
		cond  vop.BranchCond
		taken bool
	}{
		{"full on all ones", []uint64{ones, ones, ones, ones}, vop.BranchFull, true},
		{"full on one lane", []uint64{0, ones, 0, 0}, vop.BranchFull, false},
		{"none on zeros", []uint64{0, 0, 0, 0}, vop.BranchNone, true},
		{"none on one lane", []uint64{0, 0, ones, 0}, vop.BranchNone, false},
	}
	for _, p := range profile.Builtin() {
		widths := []int{p.NativeBits}
		if p.NativeBits == 128 {
			widths = append(widths, 512)
		}
		for _, bits := range widths {
			for _, tt := range tests {
				t.Run(p.Name+"/"+vop.Width(bits).String()+"/"+tt.name, func(t *testing.T) {
					g := newRig(t, p, selector.DefaultCompat)
					n := bits / 8
					g.write(0, sim.Pack(32, cycle(n/4, tt.mask...)...))
					flag := g.r.free
					emit := g.at(vop.Width(bits))
					l := g.s.NewLabel()
					emit(vop.SMovImm(flag, 0))
					emit(vop.Load(vop.KindUint, 32, operand.VReg(0), g.mem(0)))
					emit(vop.MaskBranch(32, operand.VReg(0), tt.cond, l))
					emit(vop.SMovImm(flag, 1))
					require.NoError(t, g.s.Bind(l))
					g.run()
					require.Equal(t, tt.taken, g.m.GPR(flag) == 0)
				})
			}
		}
	}
}

// A single set lane in the last slice of a wide mask decides the branch
func TestWideMaskBranchSeesEverySlice(t *testing.T) {
	p := byName(t, profile.X86SSE4)
	g := newRig(t, p, selector.DefaultCompat)
	mask := make([]uint64, 16)
	mask[15] = 0xFFFFFFFF
	g.write(0, sim.Pack(32, mask...))
	flag := g.r.free
	emit := g.at(vop.Width512)
	l := g.s.NewLabel()
	emit(vop.SMovImm(flag, 0))
	emit(vop.Load(vop.KindUint, 32, operand.VReg(0), g.mem(0)))
	emit(vop.MaskBranch(32, operand.VReg(0), vop.BranchNone, l))
	emit(vop.SMovImm(flag, 1))
	require.NoError(t, g.s.Bind(l))
	g.run()
	require.Equal(t, uint64(1), g.m.GPR(flag))
}

// farDisp returns a displacement no vector load of the architecture can
// encode directly
func farDisp(a isa.Arch) int64 {
	if a == isa.ArchX86_64 {
		return 1<<32 + 16
	}
	return 1<<20 + 16
}

func TestAddressingOverflow(t *testing.T) {
	sentinel := sim.Pack(32, 0xDEADBEEF, 0x01234567, 0x89ABCDEF, 0xCAFEF00D)
	for _, p := range profile.Builtin() {
		t.Run(p.Name, func(t *testing.T) {
			n := p.NativeBytes()
			far := farDisp(p.Arch)
			g := newRig(t, p, selector.DefaultCompat)
			g.write(far, bytes.Repeat(sentinel, n/16))
			emit := g.at(vop.Width(p.NativeBits))
			emit(vop.Load(vop.KindUint, 32, operand.VReg(0), g.mem(far)))
			emit(vop.Store(vop.KindUint, 32, g.mem(0), operand.VReg(0)))
			emit(vop.Store(vop.KindUint, 32, g.mem(far+int64(n)), operand.VReg(0)))
			g.run()

			prog := g.s.Program()
			require.Positive(t, prog.Count(vop.OpSMovImm)+prog.Count(vop.OpSAddImm), "address materialized")
			require.Equal(t, bytes.Repeat(sentinel, n/16), g.read(0, n))
			require.Equal(t, bytes.Repeat(sentinel, n/16), g.read(far+int64(n), n))
		})
	}
}

// Power vector loads need a multiple of 16; other displacements go
// through the temp base
func TestMisalignedDQDisplacement(t *testing.T) {
	p := byName(t, profile.PowerVSX3)
	g := newRig(t, p, selector.DefaultCompat)
	sentinel := sim.Pack(32, 1, 2, 3, 4)
	g.write(8, sentinel)
	emit := g.at(vop.Width128)
	emit(vop.Load(vop.KindUint, 32, operand.VReg(0), g.mem(8)))
	emit(vop.Store(vop.KindUint, 32, g.mem(32), operand.VReg(0)))
	g.run()
	require.Equal(t, 1, g.s.Program().Count(vop.OpSAddImm))
	require.Equal(t, sentinel, g.read(32, 16))
}

func floats(w int, b []byte) []float64 {
	lanes := sim.Lanes(b, w)
	out := make([]float64, len(lanes))
	for i, v := range lanes {
		out[i] = vop.FloatValue(w, v)
	}
	return out
}

func TestRoundingControl(t *testing.T) {
	in := []uint64{
		vop.FloatBits(32, 1.5), vop.FloatBits(32, -1.5),
		vop.FloatBits(32, 2.5), vop.FloatBits(32, -0.5),
	}
	for _, p := range profile.Builtin() {
		t.Run(p.Name, func(t *testing.T) {
			n := p.NativeBytes()
			lanes := n / 4
			g := newRig(t, p, selector.DefaultCompat)
			g.write(0, sim.Pack(32, cycle(lanes, in...)...))
			emit := g.at(vop.Width(p.NativeBits))
			v0, v1 := operand.VReg(0), operand.VReg(1)
			emit(vop.Load(vop.KindFloat, 32, v0, g.mem(0)))
			require.NoError(t, g.s.WithRounding(vop.RoundDown, func() error {
				op, ops := vop.Round(32, vop.RoundCurrent, v1, v0)
				return g.s.Emit(op, vop.Width(p.NativeBits), ops)
			}))
			emit(vop.Store(vop.KindFloat, 32, g.mem(int64(n)), v1))
			emit(vop.CvtFToI(vop.KindInt, 32, vop.RoundUp, v1, v0))
			emit(vop.Store(vop.KindInt, 32, g.mem(int64(2*n)), v1))
			emit(vop.Round(32, vop.RoundCurrent, v1, v0))
			emit(vop.Store(vop.KindFloat, 32, g.mem(int64(3*n)), v1))
			g.run()

			require.Equal(t, vop.RoundNearest, g.m.Mode(), "mode restored")
			want := []float64{1, -2, 2, -1}
			got := floats(32, g.read(int64(n), n))
			for i := range got {
				require.Equal(t, want[i%4], got[i], "floor lane %d", i)
			}
			up := cycle(lanes, 2, uint64(0xFFFFFFFF), 3, 0)
			require.Equal(t, up, sim.Lanes(g.read(int64(2*n), n), 32))
			nearest := []float64{2, -2, 2, 0}
			got = floats(32, g.read(int64(3*n), n))
			for i := range got {
				require.Equal(t, nearest[i%4], got[i], "nearest lane %d", i)
			}
		})
	}
}

func TestDefaultRoundingLevel(t *testing.T) {
	p := byName(t, profile.ARM64NEON)
	g := newRig(t, p, selector.Compat{Rcp: 1, Rsq: 1, Round: 3})
	g.write(0, sim.Pack(32, vop.FloatBits(32, 1.5), vop.FloatBits(32, -1.5), vop.FloatBits(32, 2.5), vop.FloatBits(32, -0.5)))
	emit := g.at(vop.Width128)
	emit(vop.Load(vop.KindFloat, 32, operand.VReg(0), g.mem(0)))
	emit(vop.CvtFToI(vop.KindInt, 32, vop.RoundDefault, operand.VReg(1), operand.VReg(0)))
	emit(vop.Store(vop.KindInt, 32, g.mem(16), operand.VReg(1)))
	g.run()
	require.Equal(t, []uint64{1, 0xFFFFFFFF, 2, 0}, sim.Lanes(g.read(16, 16), 32))
}

func TestHalfPrecisionLanes(t *testing.T) {
	p := byName(t, profile.ARM64NEONFP16)
	g := newRig(t, p, selector.DefaultCompat)
	a := make([]uint64, 8)
	b := make([]uint64, 8)
	for i := range a {
		a[i] = vop.FloatBits(16, float64(i+1))
		b[i] = vop.FloatBits(16, 0.5)
	}
	g.write(0, sim.Pack(16, a...))
	g.write(16, sim.Pack(16, b...))
	emit := g.at(vop.Width128)
	emit(vop.Load(vop.KindFloat, 16, operand.VReg(0), g.mem(0)))
	emit(vop.Load(vop.KindFloat, 16, operand.VReg(1), g.mem(16)))
	emit(vop.Add(vop.KindFloat, 16, operand.VReg(2), operand.VReg(0), operand.VReg(1)))
	emit(vop.Store(vop.KindFloat, 16, g.mem(32), operand.VReg(2)))
	g.run()
	got := floats(16, g.read(32, 16))
	for i, v := range got {
		require.Equal(t, float64(i)+1.5, v)
	}
}
