package isa

// Encoding is the x86 encoding family of a descriptor
type Encoding uint8

const (
	EncLegacy Encoding = iota // SSE with optional REX
	EncVEX
	EncEVEX
)

func (e Encoding) String() string {
	switch e {
	case EncVEX:
		return "vex"
	case EncEVEX:
		return "evex"
	default:
		return "legacy"
	}
}

// Map is the x86 opcode map
type Map uint8

const (
	Map0F   Map = 1
	Map0F38 Map = 2
	Map0F3A Map = 3
)

// Prefix is the implied SIMD prefix, numbered as the VEX/EVEX pp field
type Prefix uint8

const (
	PrefixNone Prefix = 0
	Prefix66   Prefix = 1
	PrefixF3   Prefix = 2
	PrefixF2   Prefix = 3
)

// Byte returns the legacy prefix byte, or 0 for PrefixNone
func (p Prefix) Byte() byte {
	switch p {
	case Prefix66:
		return 0x66
	case PrefixF3:
		return 0xF3
	case PrefixF2:
		return 0xF2
	}
	return 0
}

// X86Form says how operand roles map onto ModRM.reg, VEX.vvvv and ModRM.rm
type X86Form uint8

const (
	X86RVM       X86Form = iota // reg=dst vvvv=src1 rm=src2
	X86RM                       // reg=dst rm=src1
	X86MR                       // rm=dst reg=src1
	X86VMI                      // vvvv=dst rm=src1 reg=Digit imm8=src2
	X86RVMI                     // X86RVM plus the descriptor's imm8
	X86RMI                      // X86RM plus the descriptor's imm8
	X86MRI                      // X86MR plus the descriptor's imm8
	X86Not                      // ternary logic with all three sources equal
	X86KCmp                     // compare into the mask register, then expand to lanes via Aux
	X86Blend                    // vpblendvb, mask in imm8[7:4]
	X86TernMerge                // vpternlog merge, role order picked by aliasing
	X86Splat                    // gpr to every lane, Aux is the broadcast step
	X86MaskBranch               // ptest/vptestm reduction and jcc
	X86Scalar                   // general purpose register instructions
	X86Control                  // MXCSR save/modify/restore
)

// X86Desc is the encoding recipe of one x86 instruction
type X86Desc struct {
	Aux      *X86Desc // second instruction of composite forms
	Enc      Encoding
	Map      Map
	PP       Prefix
	Op       byte
	W        bool // REX.W, VEX.W or EVEX.W
	Form     X86Form
	Digit    uint8 // ModRM.reg opcode extension
	Imm      uint8
	HasImm   bool
	Rounding bool // EVEX static rounding is allowed (register forms only)
}

// WordForm is the field layout of a fixed 32-bit instruction word
type WordForm uint8

const (
	// aarch64
	A64ThreeSame  WordForm = iota // Rd, Rn, Rm
	A64TwoMisc                    // Rd, Rn
	A64ShiftLeft                  // Rd, Rn, immh:immb = esize + shift
	A64ShiftRight                 // Rd, Rn, immh:immb = 2*esize - shift
	A64Dup                        // Rd, general register Rn
	A64LoadStore                  // Rt, [Xn, #imm12*16] or LDUR/STUR simm9
	A64Merge                      // BSL/BIT/BIF chosen by aliasing
	A64Accumulate                 // Rd += Rn*Rm
	A64MaskBranch                 // UMAXV/UMINV, UMOV, CMP, B.cond
	A64Scalar                     // general purpose register instructions
	A64Control                    // FPCR save/modify/restore

	// Power ISA
	PVX         // VRT, VRA, VRB
	PVXUnary    // VRT, VRB with a fixed VRA field
	PVC         // vector compare, Rc clear
	PXX3        // XT, XA, XB
	PXX2        // XT, XB
	PXX4        // xxsel XT, XA, XB, XC
	PDQ         // lxv/stxv XT, DQ(RA)
	PSplat      // mtvsrws / mtvsrdd from a GPR
	PMaskBranch // vcmpequb. and bc on CR6
	PScalar     // general purpose register instructions
	PControl    // FPSCR save/modify/restore
)

// WordDesc is the encoding recipe of one fixed-width instruction
type WordDesc struct {
	Form WordForm
	Op   uint32 // opcode bits with every operand field zero
	Aux  uint32 // second word of composite forms
}

// Constraint is an aliasing restriction on a descriptor's operands
type Constraint uint8

const (
	ConstraintNone Constraint = iota
	// Two-operand destructive forms: dst is copied from src1 first, so
	// dst may not alias src2 unless it also aliases src1.
	ConstraintDstNotSrc2
)

// Desc is a native opcode descriptor: what the selector returns for a
// natively supported (code, kind, width).
type Desc struct {
	X86          *X86Desc
	Word         *WordDesc
	Name         string
	Constraint   Constraint
	Swap         bool // sources are encoded in the opposite order
	Commutative  bool
	EstimateBits int // precision of estimate instructions
	VTemps       int // vector temporaries the encoding needs
	GTemps       int // general purpose temporaries the encoding needs
}

func (d *Desc) String() string {
	if d == nil {
		return "<nil>"
	}
	return d.Name
}
