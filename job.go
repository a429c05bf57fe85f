package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/lower"
	"github.com/xyproto/vlower/internal/operand"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/registry"
	"github.com/xyproto/vlower/internal/selector"
	"github.com/xyproto/vlower/internal/vop"
)

// Job is a lowering request read from YAML:
//
//	profile: arm64-neon
//	width: 256
//	compat: {rcp: 1, rsq: 1}
//	scratch: "[g19+0]"
//	ops:
//	  - {op: load.f32, dst: v0, src: ["[g7+0]"]}
//	  - {op: rcp.f32, width: 256, dst: v1, src: [v0]}
//	  - rounding: rd
//	    ops:
//	      - {op: cvtf2i.i32, round: rc, dst: v2, src: [v1]}
//	  - {op: maskbr.u32, cond: none, src: [v2], label: 1}
//	  - bind: 1
type Job struct {
	Profile string     `yaml:"profile"`
	Width   string     `yaml:"width"`
	Compat  *JobCompat `yaml:"compat"`
	Scratch string     `yaml:"scratch"`
	Ops     []JobOp    `yaml:"ops"`
}

// JobCompat overrides single compat levels
type JobCompat struct {
	Rcp   *int `yaml:"rcp"`
	Rsq   *int `yaml:"rsq"`
	FMA   *int `yaml:"fma"`
	Round *int `yaml:"round"`
}

// JobOp is one operation, a label binding or a rounding bracket
type JobOp struct {
	Op       string   `yaml:"op"`
	Width    string   `yaml:"width"`
	Dst      string   `yaml:"dst"`
	Src      []string `yaml:"src"`
	Round    string   `yaml:"round"`
	Cond     string   `yaml:"cond"`
	Label    int      `yaml:"label"`
	Bind     int      `yaml:"bind"`
	Rounding string   `yaml:"rounding"`
	Ops      []JobOp  `yaml:"ops"`
}

// ReadJob parses a job file
func ReadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJob(data)
}

// ParseJob parses a job from YAML
func ParseJob(data []byte) (*Job, error) {
	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}
	if len(j.Ops) == 0 {
		return nil, fmt.Errorf("job: no ops")
	}
	return &j, nil
}

// Result is a lowered job
type Result struct {
	Profile *profile.Profile
	Program *isa.Program
	Code    []byte
}

// defaultScratch is a scratch base register outside every reserved set
func defaultScratch(a isa.Arch) operand.Mem {
	switch a {
	case isa.ArchARM64:
		return operand.Mem{Base: 19}
	case isa.ArchPPC64LE:
		return operand.Mem{Base: 30}
	}
	return operand.Mem{Base: 6}
}

// Run lowers the job. Fields the job leaves out come from s.
func (j *Job) Run(s Settings) (*Result, error) {
	name := lo.Ternary(j.Profile != "", j.Profile, s.Profile)
	if name == "" {
		return nil, fmt.Errorf("job: no profile (set profile or VLOWER_PROFILE)")
	}
	p, err := registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	cfg := lower.Config{Compat: j.compat(s.Compat), Scratch: defaultScratch(p.Arch), Name: name}
	if j.Width != "" {
		w, ok := vop.ParseWidth(j.Width)
		if !ok {
			return nil, fmt.Errorf("job: bad width %q", j.Width)
		}
		cfg.VariableBits = int(w)
	} else {
		cfg.VariableBits = int(s.Width)
	}
	if j.Scratch != "" {
		m, err := parseMem(j.Scratch)
		if err != nil {
			return nil, err
		}
		cfg.Scratch = m
	}
	sess, err := lower.NewSession(p, cfg)
	if err != nil {
		return nil, err
	}
	r := &runner{s: sess, labels: make(map[int]operand.Label)}
	if err := r.ops(j.Ops); err != nil {
		return nil, err
	}
	code, err := sess.Finish()
	if err != nil {
		return nil, err
	}
	return &Result{Profile: p, Program: sess.Program(), Code: code}, nil
}

func (j *Job) compat(c selector.Compat) selector.Compat {
	if j.Compat == nil {
		return c
	}
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Rcp, j.Compat.Rcp)
	set(&c.Rsq, j.Compat.Rsq)
	set(&c.FMA, j.Compat.FMA)
	set(&c.Round, j.Compat.Round)
	return c
}

type runner struct {
	s      *lower.Session
	labels map[int]operand.Label
}

func (r *runner) label(n int) operand.Label {
	l, ok := r.labels[n]
	if !ok {
		l = r.s.NewLabel()
		r.labels[n] = l
	}
	return l
}

func (r *runner) ops(list []JobOp) error {
	for i, o := range list {
		if err := r.op(o); err != nil {
			return fmt.Errorf("op %d (%s): %w", i+1, o.describe(), err)
		}
	}
	return nil
}

func (o JobOp) describe() string {
	switch {
	case o.Bind != 0:
		return "bind " + strconv.Itoa(o.Bind)
	case o.Rounding != "":
		return "rounding " + o.Rounding
	}
	return o.Op
}

func (r *runner) op(o JobOp) error {
	switch {
	case o.Bind != 0:
		return r.s.Bind(r.label(o.Bind))
	case o.Rounding != "":
		mode, ok := vop.ParseRoundMode(o.Rounding)
		if !ok {
			return fmt.Errorf("bad rounding mode %q", o.Rounding)
		}
		return r.s.WithRounding(mode, func() error { return r.ops(o.Ops) })
	}
	op, ops, err := r.build(o)
	if err != nil {
		return err
	}
	w := vop.WidthVariable
	if o.Width != "" {
		var ok bool
		if w, ok = vop.ParseWidth(o.Width); !ok {
			return fmt.Errorf("bad width %q", o.Width)
		}
	}
	return r.s.Emit(op, w, ops)
}

// build turns "add.i32" and its operand strings into an operation
func (r *runner) build(o JobOp) (vop.VectorOp, vop.Operands, error) {
	name, typ, _ := strings.Cut(o.Op, ".")
	c, ok := vop.ParseCode(name)
	if !ok {
		return vop.VectorOp{}, vop.Operands{}, fmt.Errorf("unknown operation %q", name)
	}
	k, bits, err := parseType(typ)
	if err != nil {
		return vop.VectorOp{}, vop.Operands{}, err
	}
	mode, ok := vop.ParseRoundMode(o.Round)
	if !ok {
		return vop.VectorOp{}, vop.Operands{}, fmt.Errorf("bad round mode %q", o.Round)
	}
	cond := vop.BranchNone
	switch strings.ToLower(o.Cond) {
	case "", "none":
	case "full", "all":
		cond = vop.BranchFull
	default:
		return vop.VectorOp{}, vop.Operands{}, fmt.Errorf("bad branch condition %q", o.Cond)
	}

	var ops vop.Operands
	if o.Dst != "" {
		if ops.Dst, err = parseOperand(o.Dst); err != nil {
			return vop.VectorOp{}, vop.Operands{}, err
		}
	}
	srcs := make([]operand.Operand, 0, 3)
	for _, s := range o.Src {
		x, err := parseOperand(s)
		if err != nil {
			return vop.VectorOp{}, vop.Operands{}, err
		}
		srcs = append(srcs, x)
	}
	if c == vop.OpMaskBranch {
		srcs = append(srcs, r.label(o.Label))
	}
	if len(srcs) != c.Arity() {
		return vop.VectorOp{}, vop.Operands{}, fmt.Errorf("%s takes %d sources, got %d", name, c.Arity(), len(srcs))
	}
	roles := []*operand.Operand{&ops.Src1, &ops.Src2, &ops.Src3}
	for i, x := range srcs {
		*roles[i] = x
	}
	op, ok := vop.Build(c, k, bits, mode, cond, ops)
	if !ok {
		return vop.VectorOp{}, vop.Operands{}, fmt.Errorf("%s is not a vector operation", name)
	}
	return op, ops, nil
}

// parseType parses lane types like "i32", "u8" or "f64"
func parseType(s string) (vop.Kind, int, error) {
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("bad lane type %q", s)
	}
	k, ok := vop.ParseKind(s[:1])
	if !ok {
		return 0, 0, fmt.Errorf("bad lane kind in %q", s)
	}
	bits, err := strconv.Atoi(s[1:])
	if err != nil || !lo.Contains(vop.ElemWidths, bits) {
		return 0, 0, fmt.Errorf("bad lane width in %q", s)
	}
	return k, bits, nil
}

// parseOperand parses v3 (logical vector), p3 (physical vector), g3 or r3
// (general purpose), #-5 (immediate) and [g7+64] (memory)
func parseOperand(s string) (operand.Operand, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		return parseMem(s)
	}
	if s == "" {
		return nil, fmt.Errorf("empty operand")
	}
	if s[0] == '#' {
		v, err := strconv.ParseInt(s[1:], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad immediate %q", s)
		}
		return operand.Imm(v), nil
	}
	n, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("bad operand %q", s)
	}
	switch s[0] {
	case 'v', 'V':
		return operand.VReg(n), nil
	case 'p', 'P':
		return operand.PReg(n), nil
	case 'g', 'G', 'r', 'R':
		return operand.GPR(n), nil
	}
	return nil, fmt.Errorf("bad operand %q", s)
}

func parseMem(s string) (operand.Mem, error) {
	inner, open := strings.CutPrefix(strings.TrimSpace(s), "[")
	inner, closed := strings.CutSuffix(inner, "]")
	if !open || !closed {
		return operand.Mem{}, fmt.Errorf("bad memory operand %q", s)
	}
	base, disp := inner, "0"
	if i := strings.IndexAny(inner, "+-"); i > 0 {
		base, disp = inner[:i], inner[i:]
	}
	b, err := parseOperand(base)
	if err != nil {
		return operand.Mem{}, err
	}
	g, ok := b.(operand.GPR)
	if !ok {
		return operand.Mem{}, fmt.Errorf("memory base %q is not a general purpose register", base)
	}
	d, err := strconv.ParseInt(strings.TrimPrefix(disp, "+"), 0, 64)
	if err != nil {
		return operand.Mem{}, fmt.Errorf("bad displacement in %q", s)
	}
	return operand.Mem{Base: g, Disp: d}, nil
}
