// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ptx

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/target"
)

// regClass is a PTX register declaration class.
type regClass uint8

const (
	clsPred regClass = iota
	cls16
	cls32
	cls64
	clsF32
	clsF64
	numClasses
)

var classes = [numClasses]struct{ decl, prefix string }{
	clsPred: {".pred", "%p"},
	cls16:   {".b16", "%rs"},
	cls32:   {".b32", "%r"},
	cls64:   {".b64", "%rd"},
	clsF32:  {".f32", "%f"},
	clsF64:  {".f64", "%fd"},
}

func classOf(p graph.Prim) regClass {
	switch {
	case p == graph.Bool:
		return clsPred
	case p == graph.F32:
		return clsF32
	case p == graph.F64:
		return clsF64
	}
	switch p.Bits() {
	case 16:
		return cls16
	case 64:
		return cls64
	}
	return cls32
}

type frame struct {
	id      int
	loop    bool
	hasElse bool
}

type emitter struct {
	k    *lir.Kernel
	t    *target.Target
	opts Options

	body   bytes.Buffer
	counts [numClasses]int
	regs   [][]string // lane registers of each virtual register
	params []string   // global pointer or value register of each parameter
	labels int
	frames []frame
}

// Emit prints k as a PTX module with a single entry point.
func Emit(k *lir.Kernel, t *target.Target, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	e := &emitter{k: k, t: t, opts: opts, regs: make([][]string, len(k.Regs)), params: make([]string, len(k.Params))}
	for r, info := range k.Regs {
		if !t.SupportsType(info.Type) {
			return nil, fmt.Errorf("%s: register r%d: no encoding for %s", Name, r, info.Type)
		}
		lanes := make([]string, info.Type.NumLanes())
		for i := range lanes {
			lanes[i] = e.alloc(classOf(info.Type.Prim))
		}
		e.regs[r] = lanes
	}
	sig, err := e.prologue()
	if err != nil {
		return nil, err
	}
	for i := range k.Body {
		if err := e.inst(&k.Body[i]); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", Name, k.Body[i].Op, err)
		}
	}
	if len(e.frames) > 0 {
		return nil, fmt.Errorf("%s: %d control regions left open", Name, len(e.frames))
	}
	if n := len(k.Body); n == 0 || k.Body[n-1].Op != lir.OpReturn {
		e.line("ret;")
	}

	var out bytes.Buffer
	out.WriteString("//\n// Generated by kernelc\n//\n\n")
	fmt.Fprintf(&out, ".version %s\n.target sm_%d\n.address_size 64\n\n", opts.version(), opts.SM)
	fmt.Fprintf(&out, "\t// .globl\t%s\n", k.Name)
	fmt.Fprintf(&out, ".visible .entry %s(", k.Name)
	if len(sig) > 0 {
		fmt.Fprintf(&out, "\n\t%s\n", strings.Join(sig, ",\n\t"))
	}
	out.WriteString(")\n")
	if k.LocalSize > 0 {
		fmt.Fprintf(&out, ".reqntid %d, 1, 1\n", k.LocalSize)
	}
	out.WriteString("{\n")
	for c, n := range e.counts {
		if n > 0 {
			fmt.Fprintf(&out, "\t.reg %s %s<%d>;\n", classes[c].decl, classes[c].prefix, n+1)
		}
	}
	for _, a := range k.Arrays {
		space, ok := t.Spaces[a.Space]
		if !ok {
			return nil, fmt.Errorf("%s: array %s: no %s memory", Name, a.Name, a.Space)
		}
		size := a.Elem.Prim.Bytes()
		fmt.Fprintf(&out, "\t%s .align %d .b8 %s[%d];\n", space, size, a.Name, a.Len*size)
	}
	out.WriteByte('\n')
	out.Write(e.body.Bytes())
	out.WriteString("}\n")
	return out.Bytes(), nil
}

func (e *emitter) alloc(c regClass) string {
	e.counts[c]++
	return fmt.Sprintf("%s%d", classes[c].prefix, e.counts[c])
}

func (e *emitter) line(format string, args ...any) {
	e.body.WriteByte('\t')
	fmt.Fprintf(&e.body, format, args...)
	e.body.WriteByte('\n')
}

func (e *emitter) label(name string) { fmt.Fprintf(&e.body, "%s:\n", name) }

func labelName(kind string, id int) string { return fmt.Sprintf("$L__%s%d", kind, id) }

// prologue loads every parameter. Array pointers are converted to global
// addresses once.
func (e *emitter) prologue() ([]string, error) {
	sig := make([]string, len(e.k.Params))
	for i, p := range e.k.Params {
		name := fmt.Sprintf("%s_param_%d", e.k.Name, i)
		if p.Type.Array {
			sig[i] = ".param .u64 " + name
			ptr, g := e.alloc(cls64), e.alloc(cls64)
			e.line("ld.param.u64 %s, [%s];", ptr, name)
			e.line("cvta.to.global.u64 %s, %s;", g, ptr)
			e.params[i] = g
			continue
		}
		if p.Type.Prim == graph.Bool || p.Type.IsVector() {
			return nil, fmt.Errorf("%s: parameter %s: %s parameters are not supported", Name, p.Name, p.Type)
		}
		ty, ok := e.t.TypeMap[p.Type.Prim]
		if !ok {
			return nil, fmt.Errorf("%s: parameter %s: no encoding for %s", Name, p.Name, p.Type)
		}
		sig[i] = fmt.Sprintf(".param .%s %s", ty, name)
		r := e.alloc(classOf(p.Type.Prim))
		e.line("ld.param.%s %s, [%s];", ty, r, name)
		e.params[i] = r
	}
	return sig, nil
}

// suffix returns the arithmetic type suffix of p.
func (e *emitter) suffix(p graph.Prim) string { return e.t.TypeMap[p] }

// bits returns the untyped suffix of p ("b32").
func bits(p graph.Prim) string { return fmt.Sprintf("b%d", p.Bits()) }

func movType(p graph.Prim) string {
	switch {
	case p == graph.Bool:
		return "pred"
	case p.IsFloat():
		return p.String()
	}
	return bits(p)
}

func imm(t graph.Type, l graph.Lit) string {
	switch t.Prim {
	case graph.F32:
		return fmt.Sprintf("0f%08X", math.Float32bits(float32(l.F)))
	case graph.F64:
		return fmt.Sprintf("0d%016X", math.Float64bits(l.F))
	case graph.U64:
		return fmt.Sprintf("%d", uint64(l.I))
	}
	return fmt.Sprintf("%d", l.I)
}

// val returns lane of o as an instruction source. Scalars ignore lane.
func (e *emitter) val(o lir.Operand, lane int) string {
	switch o.Kind {
	case lir.OperandReg:
		regs := e.regs[o.Reg]
		if len(regs) == 1 {
			return regs[0]
		}
		return regs[lane]
	case lir.OperandImm:
		if o.Type.Prim == graph.Bool {
			return e.pred(o)
		}
		return imm(o.Type, o.Imm)
	case lir.OperandParam:
		return e.params[o.Index]
	}
	panic(fmt.Sprintf("%s: operand %s has no value", Name, o))
}

// reg returns lane of o in a register, moving an immediate into a fresh one.
func (e *emitter) reg(o lir.Operand, lane int) string {
	if !o.IsImm() || o.Type.Prim == graph.Bool {
		return e.val(o, lane)
	}
	r := e.alloc(classOf(o.Type.Prim))
	e.line("mov.%s %s, %s;", movType(o.Type.Prim), r, imm(o.Type, o.Imm))
	return r
}

// pred returns a predicate register holding o.
func (e *emitter) pred(o lir.Operand) string {
	if !o.IsImm() {
		return e.val(o, 0)
	}
	r, p := e.alloc(cls32), e.alloc(clsPred)
	e.line("mov.u32 %s, %d;", r, o.Imm.I)
	e.line("setp.ne.u32 %s, %s, 0;", p, r)
	return p
}

func (e *emitter) dst(inst *lir.Inst, lane int) string { return e.regs[inst.Dst][lane] }

func (e *emitter) inst(inst *lir.Inst) error {
	switch inst.Op {
	case lir.OpAssign:
		for l := range inst.Type.NumLanes() {
			e.mov(inst.Type.Prim, e.dst(inst, l), inst.Args[0], l)
		}
	case lir.OpBinary:
		for l := range inst.Type.NumLanes() {
			if err := e.binary(inst, l); err != nil {
				return err
			}
		}
	case lir.OpUnary:
		for l := range inst.Type.NumLanes() {
			e.unary(inst, l)
		}
	case lir.OpCompare:
		return e.compare(inst)
	case lir.OpConvert:
		for l := range inst.Type.NumLanes() {
			e.convert(inst.Args[0].Type.Prim, inst.Type.Prim, e.dst(inst, l), inst.Args[0], l)
		}
	case lir.OpLoad:
		return e.load(inst)
	case lir.OpStore:
		return e.store(inst)
	case lir.OpIntrinsic:
		for l := range inst.Type.NumLanes() {
			if err := e.intrinsic(inst, l); err != nil {
				return err
			}
		}
	case lir.OpBuiltin:
		return e.builtin(inst)
	case lir.OpAtomic:
		return e.atomic(inst)
	case lir.OpBarrier:
		b, ok := e.t.Barriers[inst.Addr.Space]
		if !ok {
			return fmt.Errorf("no %s barrier", inst.Addr.Space)
		}
		e.line("%s;", b)
		if inst.Addr.Space == lir.SpaceGlobal {
			e.line("bar.sync 0;")
		}
	case lir.OpSplat:
		for l := range inst.Type.NumLanes() {
			e.mov(inst.Type.Prim, e.dst(inst, l), inst.Args[0], 0)
		}
	case lir.OpInsert:
		src := inst.Args[0]
		if src.Kind != lir.OperandReg || src.Reg != inst.Dst {
			for l := range inst.Type.NumLanes() {
				if l != inst.Lane {
					e.mov(inst.Type.Prim, e.dst(inst, l), src, l)
				}
			}
		}
		e.mov(inst.Type.Prim, e.dst(inst, inst.Lane), inst.Args[1], 0)
	case lir.OpExtract:
		e.mov(inst.Type.Prim, e.dst(inst, 0), inst.Args[0], inst.Lane)
	case lir.OpIfBegin:
		f := frame{id: e.labels}
		e.labels++
		e.frames = append(e.frames, f)
		e.line("@!%s bra %s;", e.pred(inst.Args[0]), labelName("else", f.id))
	case lir.OpElse:
		f := &e.frames[len(e.frames)-1]
		f.hasElse = true
		e.line("bra.uni %s;", labelName("end", f.id))
		e.label(labelName("else", f.id))
	case lir.OpIfEnd:
		f := e.frames[len(e.frames)-1]
		e.frames = e.frames[:len(e.frames)-1]
		if f.hasElse {
			e.label(labelName("end", f.id))
		} else {
			e.label(labelName("else", f.id))
		}
	case lir.OpLoopBegin:
		f := frame{id: e.labels, loop: true}
		e.labels++
		e.frames = append(e.frames, f)
		e.label(labelName("loop", f.id))
	case lir.OpBreakUnless:
		for i := len(e.frames) - 1; i >= 0; i-- {
			if e.frames[i].loop {
				e.line("@!%s bra %s;", e.pred(inst.Args[0]), labelName("exit", e.frames[i].id))
				return nil
			}
		}
		return fmt.Errorf("break outside a loop")
	case lir.OpLoopEnd:
		f := e.frames[len(e.frames)-1]
		e.frames = e.frames[:len(e.frames)-1]
		e.line("bra.uni %s;", labelName("loop", f.id))
		e.label(labelName("exit", f.id))
	case lir.OpReturn:
		e.line("ret;")
	default:
		return fmt.Errorf("unknown instruction")
	}
	return nil
}

func (e *emitter) mov(p graph.Prim, dst string, src lir.Operand, lane int) {
	if p == graph.Bool && src.IsImm() {
		e.line("mov.pred %s, %s;", dst, e.pred(src))
		return
	}
	e.line("mov.%s %s, %s;", movType(p), dst, e.val(src, lane))
}

func (e *emitter) binary(inst *lir.Inst, lane int) error {
	p := inst.Type.Prim
	x, y := e.reg(inst.Args[0], lane), e.val(inst.Args[1], lane)
	var op string
	switch inst.Kind {
	case graph.KindAdd:
		op = "add." + e.suffix(p)
	case graph.KindSub:
		op = "sub." + e.suffix(p)
	case graph.KindMul:
		op = "mul.lo." + e.suffix(p)
		if p.IsFloat() {
			op = "mul." + e.suffix(p)
		}
	case graph.KindDiv:
		op = "div." + e.suffix(p)
		if p.IsFloat() {
			op = "div.rn." + e.suffix(p)
		}
	case graph.KindRem:
		if p.IsFloat() {
			return fmt.Errorf("rem on %s", p)
		}
		op = "rem." + e.suffix(p)
	case graph.KindAnd, graph.KindOr, graph.KindXor:
		op = strings.ToLower(inst.Kind.String()) + "." + movType(p)
	case graph.KindShl, graph.KindShr, graph.KindUShr:
		op = map[graph.Kind]string{graph.KindShl: "shl.b", graph.KindShr: "shr.s", graph.KindUShr: "shr.u"}[inst.Kind]
		op += fmt.Sprint(p.Bits())
		if amt := inst.Args[1]; amt.Kind == lir.OperandReg && amt.Type.Prim.Bits() != 32 {
			y = e.alloc(cls32)
			e.line("cvt.u32.%s %s, %s;", e.suffix(amt.Type.Prim), y, e.val(amt, lane))
		}
	default:
		return fmt.Errorf("binary %s", inst.Kind)
	}
	e.line("%s %s, %s, %s;", op, e.dst(inst, lane), x, y)
	return nil
}

func (e *emitter) unary(inst *lir.Inst, lane int) {
	p := inst.Type.Prim
	x := e.reg(inst.Args[0], lane)
	switch {
	case inst.Kind == graph.KindNot && p == graph.Bool:
		e.line("not.pred %s, %s;", e.dst(inst, lane), x)
	case inst.Kind == graph.KindNot:
		e.line("not.%s %s, %s;", bits(p), e.dst(inst, lane), x)
	case p.IsFloat():
		e.line("neg.%s %s, %s;", e.suffix(p), e.dst(inst, lane), x)
	default:
		e.line("neg.s%d %s, %s;", p.Bits(), e.dst(inst, lane), x)
	}
}

var unsignedConds = map[graph.Cond]string{
	graph.CondLT: "lo",
	graph.CondLE: "ls",
	graph.CondGT: "hi",
	graph.CondGE: "hs",
}

func (e *emitter) compare(inst *lir.Inst) error {
	a, b := inst.Args[0], inst.Args[1]
	p := a.Type.Prim
	d := e.dst(inst, 0)
	if p == graph.Bool {
		if inst.Cond != graph.CondEQ && inst.Cond != graph.CondNE {
			return fmt.Errorf("ordered comparison of bool")
		}
		e.line("xor.pred %s, %s, %s;", d, e.pred(a), e.pred(b))
		if inst.Cond == graph.CondEQ {
			e.line("not.pred %s, %s;", d, d)
		}
		return nil
	}
	cond := inst.Cond.String()
	switch {
	case p.IsFloat() && inst.Cond == graph.CondNE:
		// Unordered so that NaN != x holds.
		cond = "neu"
	case p.IsInt() && !p.IsSigned():
		if c, ok := unsignedConds[inst.Cond]; ok {
			cond = c
		}
	}
	e.line("setp.%s.%s %s, %s, %s;", cond, e.suffix(p), d, e.reg(a, 0), e.val(b, 0))
	return nil
}

func (e *emitter) convert(from, to graph.Prim, dst string, src lir.Operand, lane int) {
	switch {
	case from == to:
		e.mov(to, dst, src, lane)
	case to == graph.Bool:
		zero := imm(graph.Scalar(from), graph.Zero())
		e.line("setp.ne.%s %s, %s, %s;", e.suffix(from), dst, e.reg(src, lane), zero)
	case from == graph.Bool:
		one := imm(graph.Scalar(to), graph.IntLit(1))
		if to.IsFloat() {
			one = imm(graph.Scalar(to), graph.FloatLit(1))
		}
		e.line("selp.%s %s, %s, %s, %s;", e.suffix(to), dst, one, imm(graph.Scalar(to), graph.Zero()), e.pred(src))
	case from.IsInt() && to.IsInt() && from.Bits() == to.Bits():
		e.line("mov.%s %s, %s;", bits(to), dst, e.val(src, lane))
	case from.IsInt() && to.IsInt():
		e.line("cvt.%s.%s %s, %s;", e.suffix(to), e.suffix(from), dst, e.reg(src, lane))
	case from.IsInt():
		e.line("cvt.rn.%s.%s %s, %s;", e.suffix(to), e.suffix(from), dst, e.reg(src, lane))
	case to.IsInt():
		e.line("cvt.rzi.%s.%s %s, %s;", e.suffix(to), e.suffix(from), dst, e.reg(src, lane))
	case to.Bits() > from.Bits():
		e.line("cvt.%s.%s %s, %s;", e.suffix(to), e.suffix(from), dst, e.reg(src, lane))
	default:
		e.line("cvt.rn.%s.%s %s, %s;", e.suffix(to), e.suffix(from), dst, e.reg(src, lane))
	}
}

// address computes the byte address of a in a 64-bit register and returns
// it as a memory operand.
func (e *emitter) address(a lir.Address) (string, error) {
	var base string
	switch a.Base.Kind {
	case lir.OperandParam:
		base = e.params[a.Base.Index]
	case lir.OperandArray:
		base = e.alloc(cls64)
		e.line("mov.u64 %s, %s;", base, e.k.Arrays[a.Base.Index].Name)
	default:
		return "", fmt.Errorf("address base %s", a.Base)
	}
	size := a.Elem.Prim.Bytes()
	idx := a.Index
	if idx.IsImm() {
		if idx.Imm.I == 0 {
			return "[" + base + "]", nil
		}
		return fmt.Sprintf("[%s+%d]", base, idx.Imm.I*int64(size)), nil
	}
	p := idx.Type.Prim
	ix := e.val(idx, 0)
	off := e.alloc(cls64)
	sign := "s"
	if !p.IsSigned() {
		sign = "u"
	}
	switch p.Bits() {
	case 64:
		e.line("mul.lo.s64 %s, %s, %d;", off, ix, size)
	case 16:
		wide := e.alloc(cls32)
		e.line("cvt.%s32.%s16 %s, %s;", sign, sign, wide, ix)
		ix = wide
		fallthrough
	default:
		e.line("mul.wide.%s32 %s, %s, %d;", sign, off, ix, size)
	}
	addr := e.alloc(cls64)
	e.line("add.s64 %s, %s, %s;", addr, base, off)
	return "[" + addr + "]", nil
}

func (e *emitter) space(s lir.Space) (string, error) {
	name, ok := e.t.Spaces[s]
	if !ok {
		return "", fmt.Errorf("no %s memory", s)
	}
	return name, nil
}

func (e *emitter) load(inst *lir.Inst) error {
	p := inst.Addr.Elem.Prim
	if p == graph.Bool {
		return fmt.Errorf("load of bool")
	}
	sp, err := e.space(inst.Addr.Space)
	if err != nil {
		return err
	}
	a, err := e.address(inst.Addr)
	if err != nil {
		return err
	}
	e.line("ld%s.%s %s, %s;", sp, e.suffix(p), e.dst(inst, 0), a)
	return nil
}

func (e *emitter) store(inst *lir.Inst) error {
	p := inst.Addr.Elem.Prim
	if p == graph.Bool {
		return fmt.Errorf("store of bool")
	}
	if inst.Addr.Space == lir.SpaceConstant {
		return fmt.Errorf("store to constant memory")
	}
	sp, err := e.space(inst.Addr.Space)
	if err != nil {
		return err
	}
	a, err := e.address(inst.Addr)
	if err != nil {
		return err
	}
	e.line("st%s.%s %s, %s;", sp, e.suffix(p), a, e.reg(inst.Args[0], 0))
	return nil
}

func (e *emitter) intrinsic(inst *lir.Inst, lane int) error {
	p := inst.Type.Prim
	if len(inst.Args) > 0 {
		p = inst.Args[0].Type.Prim
	}
	info, ok := e.t.Intrinsic(inst.Intrinsic, p)
	if !ok {
		return fmt.Errorf("no %s encoding for %s", inst.Intrinsic, p)
	}
	args := make([]string, len(inst.Args))
	for i, a := range inst.Args {
		args[i] = e.val(a, lane)
	}
	if len(args) > 0 {
		args[0] = e.reg(inst.Args[0], lane)
	}
	d := e.dst(inst, lane)
	switch {
	case strings.HasPrefix(info.Name, "cvt."):
		e.line("%s.%s.%s %s, %s;", info.Name, e.suffix(p), e.suffix(p), d, args[0])
	case info.Name == "popc" || info.Name == "clz":
		// The count is always a 32-bit value.
		if p.Bits() == 32 {
			e.line("%s.%s %s, %s;", info.Name, bits(p), d, args[0])
			break
		}
		n := e.alloc(cls32)
		e.line("%s.%s %s, %s;", info.Name, bits(p), n, args[0])
		e.line("cvt.u64.u32 %s, %s;", d, n)
	default:
		e.line("%s.%s %s, %s;", info.Name, e.suffix(p), d, strings.Join(args, ", "))
	}
	return nil
}

var dims = [...]string{"x", "y", "z"}

func (e *emitter) builtin(inst *lir.Inst) error {
	sreg, ok := e.t.Builtins[inst.Builtin]
	if !ok {
		return fmt.Errorf("no %s register", inst.Builtin)
	}
	if inst.Dim >= len(dims) {
		return fmt.Errorf("dimension %d", inst.Dim)
	}
	src := sreg + "." + dims[inst.Dim]
	d := e.dst(inst, 0)
	switch classOf(inst.Type.Prim) {
	case cls32:
		e.line("mov.u32 %s, %s;", d, src)
	case cls64, cls16:
		r := e.alloc(cls32)
		e.line("mov.u32 %s, %s;", r, src)
		e.line("cvt.u%d.u32 %s, %s;", inst.Type.Prim.Bits(), d, r)
	default:
		return fmt.Errorf("%s read as %s", inst.Builtin, inst.Type)
	}
	return nil
}

// atomType is the atom.add operand type for p; 64-bit signed addition
// is the same operation as unsigned.
func (e *emitter) atomType(p graph.Prim) string {
	if p == graph.I64 {
		return "u64"
	}
	return e.suffix(p)
}

func (e *emitter) atomic(inst *lir.Inst) error {
	p := inst.Type.Prim
	info, ok := e.t.Atomic(inst.Atomic, p)
	if !ok {
		return fmt.Errorf("no atomic %s for %s", inst.Atomic, p)
	}
	if inst.Addr.Space != lir.SpaceGlobal && inst.Addr.Space != lir.SpaceLocal {
		return fmt.Errorf("atomic %s on %s memory", inst.Atomic, inst.Addr.Space)
	}
	if p == graph.F64 && e.opts.SM < 60 {
		return fmt.Errorf("atomic %s on f64 needs sm_60, got sm_%d", inst.Atomic, e.opts.SM)
	}
	sp, err := e.space(inst.Addr.Space)
	if err != nil {
		return err
	}
	a, err := e.address(inst.Addr)
	if err != nil {
		return err
	}
	v := e.reg(inst.Args[0], 0)
	if info.Name == "cas" {
		e.cas(inst, sp, a, v)
		return nil
	}
	if info.Name == "add.neg" {
		n := e.alloc(classOf(p))
		if p.IsFloat() {
			e.line("neg.%s %s, %s;", e.suffix(p), n, v)
		} else {
			e.line("neg.s%d %s, %s;", p.Bits(), n, v)
		}
		v = n
	}
	if inst.Dst == lir.NoReg {
		e.line("red%s.add.%s %s, %s;", sp, e.atomType(p), a, v)
		return nil
	}
	e.line("atom%s.add.%s %s, %s, %s;", sp, e.atomType(p), e.dst(inst, 0), a, v)
	return nil
}

// cas applies a multiplication with a compare-and-swap loop on the bit
// pattern of the element.
func (e *emitter) cas(inst *lir.Inst, sp, a, v string) {
	p := inst.Type.Prim
	b := bits(p)
	bc := cls32
	if p.Bits() == 64 {
		bc = cls64
	}
	old, next := e.alloc(classOf(p)), e.alloc(classOf(p))
	ob, nb, cur := e.alloc(bc), e.alloc(bc), e.alloc(bc)
	again := e.alloc(clsPred)
	loop := labelName("cas", e.labels)
	e.labels++

	mul := "mul.lo." + e.suffix(p)
	if p.IsFloat() {
		mul = "mul." + e.suffix(p)
	}
	e.line("ld%s.%s %s, %s;", sp, e.suffix(p), old, a)
	e.label(loop)
	e.line("%s %s, %s, %s;", mul, next, old, v)
	e.line("mov.%s %s, %s;", b, ob, old)
	e.line("mov.%s %s, %s;", b, nb, next)
	e.line("atom%s.cas.%s %s, %s, %s, %s;", sp, b, cur, a, ob, nb)
	e.line("setp.ne.%s %s, %s, %s;", b, again, cur, ob)
	e.line("mov.%s %s, %s;", b, old, cur)
	e.line("@%s bra %s;", again, loop)
	if inst.Dst != lir.NoReg {
		e.line("mov.%s %s, %s;", movType(p), e.dst(inst, 0), old)
	}
}
