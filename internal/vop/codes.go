package vop

import "strconv"

// Code identifies an operation
type Code uint16

const (
	OpInvalid Code = iota

	// arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpSqrt
	OpMin
	OpMax
	OpNeg
	OpAddSat
	OpSubSat
	OpMulAdd
	OpRcp
	OpRsq
	OpRcpEst
	OpRsqEst
	OpRcpStep // 2 - a*b
	OpRsqStep // (3 - a*b) / 2

	// compare, lanes become 0 or all ones
	OpCmpEQ
	OpCmpNE
	OpCmpGT
	OpCmpGE
	OpCmpLT
	OpCmpLE

	// convert with rounding
	OpCvtFToI
	OpCvtIToF
	OpRound

	// shifts
	OpShlImm
	OpShrImm
	OpSraImm
	OpShlVar
	OpShrVar
	OpSraVar

	// logic
	OpAnd
	OpAndNot // ~src1 & src2
	OpOr
	OpXor
	OpNot

	// move and merge
	OpMove
	OpLoad
	OpStore
	OpSplat
	OpMerge
	OpMaskBranch
	OpExtractHi // upper half of a register into the low half of another
	OpInsertHi  // dst = src1 with its upper half replaced by the low half of src2

	// scalar
	OpSMovImm
	OpSLoad
	OpSStore
	OpSAdd
	OpSAddImm
	OpSSub
	OpSMul
	OpSShl
	OpSShr
	OpSSar
	OpSMin
	OpSMax
	OpSZext

	// control
	OpCtlSave
	OpCtlSetRound
	OpCtlRestore
	OpLabel

	opCount
)

// CodeClass groups codes by the register file they work on
type CodeClass uint8

const (
	ClassVector CodeClass = iota
	ClassScalar
	ClassControl
)

type codeInfo struct {
	name        string
	arity       int
	class       CodeClass
	commutative bool
	family      Family
	rounds      bool
}

var codeTable = [opCount]codeInfo{
	OpInvalid: {name: "invalid"},

	OpAdd:     {name: "add", arity: 2, commutative: true},
	OpSub:     {name: "sub", arity: 2},
	OpMul:     {name: "mul", arity: 2, commutative: true},
	OpDiv:     {name: "div", arity: 2},
	OpSqrt:    {name: "sqrt", arity: 1},
	OpMin:     {name: "min", arity: 2, commutative: true},
	OpMax:     {name: "max", arity: 2, commutative: true},
	OpNeg:     {name: "neg", arity: 1},
	OpAddSat:  {name: "addsat", arity: 2, commutative: true},
	OpSubSat:  {name: "subsat", arity: 2},
	OpMulAdd:  {name: "muladd", arity: 3, family: FamilyFMA},
	OpRcp:     {name: "rcp", arity: 1, family: FamilyRcp},
	OpRsq:     {name: "rsq", arity: 1, family: FamilyRsq},
	OpRcpEst:  {name: "rcpest", arity: 1},
	OpRsqEst:  {name: "rsqest", arity: 1},
	OpRcpStep: {name: "rcpstep", arity: 2, commutative: true},
	OpRsqStep: {name: "rsqstep", arity: 2, commutative: true},

	OpCmpEQ: {name: "cmpeq", arity: 2, commutative: true},
	OpCmpNE: {name: "cmpne", arity: 2, commutative: true},
	OpCmpGT: {name: "cmpgt", arity: 2},
	OpCmpGE: {name: "cmpge", arity: 2},
	OpCmpLT: {name: "cmplt", arity: 2},
	OpCmpLE: {name: "cmple", arity: 2},

	OpCvtFToI: {name: "cvtf2i", arity: 1, rounds: true, family: FamilyRound},
	OpCvtIToF: {name: "cvti2f", arity: 1},
	OpRound:   {name: "round", arity: 1, rounds: true, family: FamilyRound},

	OpShlImm: {name: "shl", arity: 2},
	OpShrImm: {name: "shr", arity: 2},
	OpSraImm: {name: "sra", arity: 2},
	OpShlVar: {name: "shlv", arity: 2},
	OpShrVar: {name: "shrv", arity: 2},
	OpSraVar: {name: "srav", arity: 2},

	OpAnd:    {name: "and", arity: 2, commutative: true},
	OpAndNot: {name: "andnot", arity: 2},
	OpOr:     {name: "or", arity: 2, commutative: true},
	OpXor:    {name: "xor", arity: 2, commutative: true},
	OpNot:    {name: "not", arity: 1},

	OpMove:       {name: "move", arity: 1},
	OpLoad:       {name: "load", arity: 1},
	OpStore:      {name: "store", arity: 1},
	OpSplat:      {name: "splat", arity: 1},
	OpMerge:      {name: "merge", arity: 3},
	OpMaskBranch: {name: "maskbr", arity: 2},
	OpExtractHi:  {name: "extracthi", arity: 1},
	OpInsertHi:   {name: "inserthi", arity: 2},

	OpSMovImm: {name: "smovimm", arity: 1, class: ClassScalar},
	OpSLoad:   {name: "sload", arity: 1, class: ClassScalar},
	OpSStore:  {name: "sstore", arity: 1, class: ClassScalar},
	OpSAdd:    {name: "sadd", arity: 2, class: ClassScalar, commutative: true},
	OpSAddImm: {name: "saddimm", arity: 2, class: ClassScalar},
	OpSSub:    {name: "ssub", arity: 2, class: ClassScalar},
	OpSMul:    {name: "smul", arity: 2, class: ClassScalar, commutative: true},
	OpSShl:    {name: "sshl", arity: 2, class: ClassScalar},
	OpSShr:    {name: "sshr", arity: 2, class: ClassScalar},
	OpSSar:    {name: "ssar", arity: 2, class: ClassScalar},
	OpSMin:    {name: "smin", arity: 2, class: ClassScalar, commutative: true},
	OpSMax:    {name: "smax", arity: 2, class: ClassScalar, commutative: true},
	OpSZext:   {name: "szext", arity: 1, class: ClassScalar},

	OpCtlSave:     {name: "ctlsave", class: ClassControl},
	OpCtlSetRound: {name: "ctlsetround", class: ClassControl},
	OpCtlRestore:  {name: "ctlrestore", class: ClassControl},
	OpLabel:       {name: "label", arity: 1, class: ClassControl},
}

func (c Code) info() codeInfo {
	if c >= opCount {
		return codeInfo{name: "op(" + strconv.Itoa(int(c)) + ")"}
	}
	return codeTable[c]
}

func (c Code) String() string { return c.info().name }

// Arity is the number of source operands
func (c Code) Arity() int { return c.info().arity }

// Class returns the register file the code works on
func (c Code) Class() CodeClass { return c.info().class }

// Commutative reports whether src1 and src2 may be swapped
func (c Code) Commutative() bool { return c.info().commutative }

// Family returns the compat family of the code
func (c Code) Family() Family { return c.info().family }

// Rounds reports whether the code takes a rounding mode
func (c Code) Rounds() bool { return c.info().rounds }

// Valid reports whether c is a known code
func (c Code) Valid() bool { return c > OpInvalid && c < opCount }

// IsCompare reports whether c is one of the vector compares
func (c Code) IsCompare() bool { return c >= OpCmpEQ && c <= OpCmpLE }

// Codes returns every valid code in declaration order
func Codes() []Code {
	codes := make([]Code, 0, int(opCount)-1)
	for c := OpInvalid + 1; c < opCount; c++ {
		codes = append(codes, c)
	}
	return codes
}

var codeByName = func() map[string]Code {
	m := make(map[string]Code, opCount)
	for c := OpInvalid + 1; c < opCount; c++ {
		m[codeTable[c].name] = c
	}
	return m
}()

// ParseCode looks up a code by its name, as printed by String
func ParseCode(name string) (Code, bool) {
	c, ok := codeByName[name]
	return c, ok
}
