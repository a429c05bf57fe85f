package arm64

import (
	"github.com/xyproto/vlower/internal/diag"
	"github.com/xyproto/vlower/internal/encode"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/mask"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/vop"
)

// Encoder encodes aarch64 NEON and general purpose instructions
type Encoder struct{}

// New returns an encoder
func New() *Encoder {
	return &Encoder{}
}

// LayoutOf returns the first layout whose fixed bits match w
func LayoutOf(w uint32) (*encode.Layout, bool) {
	for _, l := range Layouts {
		if l.Matches(w) {
			return l, true
		}
	}
	return nil, false
}

// Decode splits w into the fields of its layout
func Decode(w uint32) (*encode.Layout, map[string]uint32, error) {
	l, ok := LayoutOf(w)
	if !ok {
		return nil, nil, diag.Encoding("word %08x matches no known layout", w)
	}
	return l, l.Unpack(w), nil
}

// repack stores vals into the fields of the layout base belongs to
func repack(base uint32, vals ...encode.Val) (uint32, error) {
	l, ok := LayoutOf(base)
	if !ok {
		return 0, diag.Internal("base word %08x matches no known layout", base)
	}
	return l.Pack(base, vals...)
}

func reg(op operand.Operand) (uint32, error) {
	switch r := op.(type) {
	case operand.PReg:
		return uint32(r), nil
	case operand.GPR:
		return uint32(r), nil
	}
	return 0, diag.Internal("operand %v is not a register", op)
}

// regs resolves every operand to its register number
func regs(ops ...operand.Operand) ([]uint32, error) {
	out := make([]uint32, len(ops))
	for i, op := range ops {
		r, err := reg(op)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// Encode appends the words of in to b
func (e *Encoder) Encode(b *encode.Buffer, in isa.Instr) error {
	if in.Desc == nil || in.Desc.Word == nil {
		return diag.Internal("no word descriptor for %s", in.Op)
	}
	start := b.Begin()
	var err error
	switch in.Desc.Word.Form {
	case isa.A64Scalar:
		err = e.scalar(b, in)
	case isa.A64Control:
		err = e.control(b, in)
	default:
		err = e.vector(b, in)
	}
	if err != nil {
		return diag.WithContext(err, "", in.Op.String())
	}
	b.Trace(start, in.Format(isa.ArchARM64))
	return nil
}

// emit packs one word and appends it
func emit(b *encode.Buffer, base uint32, vals ...encode.Val) error {
	w, err := repack(base, vals...)
	if err != nil {
		return err
	}
	b.Word(w)
	return nil
}

// put packs a word of a known layout and appends it
func put(b *encode.Buffer, l *encode.Layout, vals ...encode.Val) error {
	w, err := l.Pack(0, vals...)
	if err != nil {
		return err
	}
	b.Word(w)
	return nil
}

var movVec = Op3(0, 2, 0x03) // orr Vd, Vn, Vn

func moveVec(b *encode.Buffer, dst, src operand.Operand) error {
	if operand.Same(dst, src) {
		return nil
	}
	r, err := regs(dst, src)
	if err != nil {
		return err
	}
	return emit(b, movVec, encode.U("Rd", r[0]), encode.U("Rn", r[1]), encode.U("Rm", r[1]))
}

func (e *Encoder) vector(b *encode.Buffer, in isa.Instr) error {
	d := in.Desc.Word
	ops := in.Ops
	switch d.Form {
	case isa.A64ThreeSame:
		a, c := ops.Src1, ops.Src2
		if in.Op.Arity == 1 {
			c = a
		}
		if in.Desc.Swap {
			a, c = c, a
		}
		r, err := regs(ops.Dst, a, c)
		if err != nil {
			return err
		}
		return emit(b, d.Op, encode.U("Rd", r[0]), encode.U("Rn", r[1]), encode.U("Rm", r[2]))

	case isa.A64TwoMisc:
		r, err := regs(ops.Dst, ops.Src1)
		if err != nil {
			return err
		}
		return emit(b, d.Op, encode.U("Rd", r[0]), encode.U("Rn", r[1]))

	case isa.A64ShiftLeft, isa.A64ShiftRight:
		count, ok := ops.Src2.(operand.Imm)
		if !ok {
			return diag.Internal("shift count %v is not an immediate", ops.Src2)
		}
		esize := int64(in.Op.Width)
		if d.Form == isa.A64ShiftRight && count == 0 {
			return moveVec(b, ops.Dst, ops.Src1)
		}
		var immhb int64
		if d.Form == isa.A64ShiftLeft {
			if count < 0 || int64(count) >= esize {
				return diag.Encoding("left shift by %d of %d-bit lanes", count, esize)
			}
			immhb = esize + int64(count)
		} else {
			if count < 1 || int64(count) > esize {
				return diag.Encoding("right shift by %d of %d-bit lanes", count, esize)
			}
			immhb = 2*esize - int64(count)
		}
		r, err := regs(ops.Dst, ops.Src1)
		if err != nil {
			return err
		}
		return emit(b, d.Op, encode.U("Rd", r[0]), encode.U("Rn", r[1]), encode.U("immhb", uint32(immhb)))

	case isa.A64Dup:
		r, err := regs(ops.Dst, ops.Src1)
		if err != nil {
			return err
		}
		if _, ok := ops.Src1.(operand.GPR); !ok {
			return diag.Internal("dup source %v is not a general purpose register", ops.Src1)
		}
		return emit(b, d.Op, encode.U("Rd", r[0]), encode.U("Rn", r[1]))

	case isa.A64LoadStore:
		rt, m := ops.Dst, ops.Src1
		if in.Op.Code == vop.OpStore {
			rt, m = ops.Src1, ops.Dst
		}
		mem, ok := m.(operand.Mem)
		if !ok {
			return diag.Internal("load/store without a memory operand")
		}
		t, err := reg(rt)
		if err != nil {
			return err
		}
		base := encode.U("Rn", uint32(mem.Base))
		switch {
		case mem.Disp >= 0 && mem.Disp%16 == 0 && mem.Disp/16 <= 4095:
			return emit(b, d.Op, encode.U("Rt", t), base, encode.U("imm12", uint32(mem.Disp/16)))
		case mem.Disp >= -256 && mem.Disp <= 255:
			return emit(b, d.Aux, encode.U("Rt", t), base, encode.S("imm9", mem.Disp))
		}
		return diag.Encoding("displacement %d fits neither ldr nor ldur", mem.Disp)

	case isa.A64Merge:
		plan := mask.PlanA64(ops.Dst, ops.Src1, ops.Src2, ops.Src3)
		if plan.Move {
			if err := moveVec(b, ops.Dst, ops.Src1); err != nil {
				return err
			}
		}
		r, err := regs(ops.Dst, plan.N, plan.M)
		if err != nil {
			return err
		}
		return emit(b, d.Op, encode.U("size", uint32(plan.Variant)),
			encode.U("Rd", r[0]), encode.U("Rn", r[1]), encode.U("Rm", r[2]))

	case isa.A64Accumulate:
		r, err := regs(ops.Dst, ops.Src1, ops.Src2)
		if err != nil {
			return err
		}
		return emit(b, d.Op, encode.U("Rd", r[0]), encode.U("Rn", r[1]), encode.U("Rm", r[2]))

	case isa.A64MaskBranch:
		return e.maskBranch(b, in)
	}
	return diag.Internal("aarch64 form %d not handled", d.Form)
}

// umov Wd, Vn.B[0]
const umovB0 = 0x0E013C00

// maskBranch reduces the mask to one byte with UMAXV (no lane set) or
// UMINV (every lane set), moves it to a general register, compares and
// branches with B.EQ
func (e *Encoder) maskBranch(b *encode.Buffer, in isa.Instr) error {
	l, ok := in.Ops.Src2.(operand.Label)
	if !ok {
		return diag.Internal("mask branch without a label")
	}
	var t operand.Operand
	var g operand.Operand
	for _, x := range in.Temps {
		switch x.(type) {
		case operand.PReg:
			if t == nil {
				t = x
			}
		case operand.GPR:
			if g == nil {
				g = x
			}
		}
	}
	if t == nil || g == nil {
		return diag.Internal("mask branch needs a vector and a general purpose temporary")
	}
	r, err := regs(t, in.Ops.Src1, g)
	if err != nil {
		return err
	}
	reduce, want := in.Desc.Word.Op, uint32(0)
	if in.Op.Cond == vop.BranchFull {
		reduce, want = in.Desc.Word.Aux, 0xFF
	}
	if err := emit(b, reduce, encode.U("Rd", r[0]), encode.U("Rn", r[1])); err != nil {
		return err
	}
	b.Word(umovB0 | r[0]<<5 | r[2])
	// cmp wG, #want
	if err := put(b, AddSubImm, encode.U("op", 1), encode.U("S", 1),
		encode.U("imm12", want), encode.U("Rn", r[2]), encode.U("Rd", 31)); err != nil {
		return err
	}
	at := b.Len()
	b.Use(l, at, branch19)
	return put(b, CondBranch, encode.U("cond", CondEQ))
}

// branch19 patches the imm19 word offset of a conditional branch
func branch19(code []byte, at, target int) error {
	w, err := CondBranch.Pack(encode.WordAt(code, at), encode.S("imm19", int64(target-at)/4))
	if err != nil {
		return err
	}
	encode.PutWord(code, at, w)
	return nil
}
