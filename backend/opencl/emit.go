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

package opencl

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/target"
)

type emitter struct {
	k       *lir.Kernel
	t       *target.Target
	out     bytes.Buffer
	depth   int
	helpers []string
}

// Emit prints k as OpenCL C source.
func Emit(k *lir.Kernel, t *target.Target) ([]byte, error) {
	e := &emitter{k: k, t: t}
	var body bytes.Buffer
	if err := e.body(&body); err != nil {
		return nil, err
	}
	params, err := e.params()
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(&e.out, "// %s: generated by kernelc\n", k.Name)
	if k.UsesPrim(graph.F64) {
		e.out.WriteString("#pragma OPENCL EXTENSION cl_khr_fp64 : enable\n")
	}
	if k.Uses(func(inst *lir.Inst) bool { return inst.Op == lir.OpAtomic && inst.Type.Prim.Bits() == 64 }) {
		e.out.WriteString("#pragma OPENCL EXTENSION cl_khr_int64_base_atomics : enable\n")
	}
	e.out.WriteByte('\n')
	for _, h := range e.helpers {
		e.out.WriteString(h)
		e.out.WriteByte('\n')
	}

	e.out.WriteString("__kernel ")
	if k.LocalSize > 0 {
		fmt.Fprintf(&e.out, "__attribute__((reqd_work_group_size(%d, 1, 1))) ", k.LocalSize)
	}
	fmt.Fprintf(&e.out, "void %s(%s)\n{\n", k.Name, strings.Join(params, ", "))
	for _, a := range k.Arrays {
		fmt.Fprintf(&e.out, "\t%s %s %s[%d];\n", e.t.Spaces[a.Space], e.typeName(a.Elem), a.Name, a.Len)
	}
	for r, info := range k.Regs {
		fmt.Fprintf(&e.out, "\t%s %s;\n", e.typeName(info.Type), e.reg(lir.Reg(r)))
	}
	if len(k.Arrays)+len(k.Regs) > 0 {
		e.out.WriteByte('\n')
	}
	e.out.Write(body.Bytes())
	e.out.WriteString("}\n")
	return e.out.Bytes(), nil
}

func (e *emitter) params() ([]string, error) {
	out := make([]string, len(e.k.Params))
	for i, p := range e.k.Params {
		if p.Type.Prim == graph.Bool {
			return nil, fmt.Errorf("%s: parameter %s: bool parameters are not allowed in OpenCL kernels", Name, p.Name)
		}
		if !p.Type.Array {
			out[i] = fmt.Sprintf("const %s %s", e.typeName(p.Type), p.Name)
			continue
		}
		elem := e.typeName(p.Type.Elem().LaneType())
		switch {
		case p.Space == lir.SpaceConstant:
			out[i] = fmt.Sprintf("__constant %s *%s", elem, p.Name)
		case p.Access == graph.AccessRead:
			out[i] = fmt.Sprintf("__global const %s *%s", elem, p.Name)
		default:
			out[i] = fmt.Sprintf("__global %s *%s", elem, p.Name)
		}
	}
	return out, nil
}

func (e *emitter) typeName(t graph.Type) string {
	if t.Prim == graph.Bool {
		return "bool"
	}
	name := e.t.TypeMap[t.Prim]
	if t.IsVector() {
		return name + strconv.Itoa(t.NumLanes())
	}
	return name
}

var regPrefix = map[graph.Prim]string{
	graph.Bool: "b",
	graph.I8:   "c",
	graph.I16:  "s",
	graph.I32:  "i",
	graph.I64:  "l",
	graph.U8:   "uc",
	graph.U16:  "us",
	graph.U32:  "ui",
	graph.U64:  "ul",
	graph.F16:  "h",
	graph.F32:  "f",
	graph.F64:  "d",
}

func (e *emitter) reg(r lir.Reg) string {
	t := e.k.Regs[r].Type
	prefix := regPrefix[t.Prim]
	if t.IsVector() {
		prefix += strconv.Itoa(t.NumLanes())
	}
	return fmt.Sprintf("%s_%d", prefix, r)
}

func (e *emitter) operand(o lir.Operand) string {
	switch o.Kind {
	case lir.OperandReg:
		return e.reg(o.Reg)
	case lir.OperandImm:
		return literal(o.Type, o.Imm)
	case lir.OperandParam:
		return e.k.Params[o.Index].Name
	case lir.OperandArray:
		return e.k.Arrays[o.Index].Name
	}
	return "/* none */"
}

// literal spells an immediate as an OpenCL C constant.
func literal(t graph.Type, l graph.Lit) string {
	switch {
	case t.Prim == graph.Bool:
		return strconv.FormatBool(l.I != 0)
	case t.Prim.IsFloat():
		switch {
		case math.IsNaN(l.F):
			return "NAN"
		case math.IsInf(l.F, 1):
			return "INFINITY"
		case math.IsInf(l.F, -1):
			return "(-INFINITY)"
		}
		bitSize := 64
		if t.Prim == graph.F32 {
			bitSize = 32
		}
		s := strconv.FormatFloat(l.F, 'g', -1, bitSize)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		if t.Prim == graph.F32 {
			s += "F"
		}
		if l.F < 0 || (l.F == 0 && math.Signbit(l.F)) {
			return "(" + s + ")"
		}
		return s
	}
	var s string
	if t.Prim.IsSigned() {
		s = strconv.FormatInt(l.I, 10)
	} else {
		s = strconv.FormatUint(uint64(l.I), 10)
	}
	switch t.Prim {
	case graph.I64:
		s += "L"
	case graph.U32:
		s += "U"
	case graph.U64:
		s += "UL"
	}
	if l.I < 0 && t.Prim.IsSigned() {
		return "(" + s + ")"
	}
	return s
}

func (e *emitter) line(w *bytes.Buffer, format string, args ...any) {
	w.WriteString(strings.Repeat("\t", e.depth+1))
	fmt.Fprintf(w, format, args...)
	w.WriteByte('\n')
}

var binarySymbols = map[graph.Kind]string{
	graph.KindAdd: "+",
	graph.KindSub: "-",
	graph.KindMul: "*",
	graph.KindDiv: "/",
	graph.KindRem: "%",
	graph.KindAnd: "&",
	graph.KindOr:  "|",
	graph.KindXor: "^",
	graph.KindShl: "<<",
}

var condSymbols = map[graph.Cond]string{
	graph.CondEQ: "==",
	graph.CondNE: "!=",
	graph.CondLT: "<",
	graph.CondLE: "<=",
	graph.CondGT: ">",
	graph.CondGE: ">=",
}

var (
	signedOf   = map[graph.Prim]graph.Prim{graph.U8: graph.I8, graph.U16: graph.I16, graph.U32: graph.I32, graph.U64: graph.I64}
	unsignedOf = lo.Invert(signedOf)
)

func (e *emitter) body(w *bytes.Buffer) error {
	for pc := range e.k.Body {
		if err := e.inst(w, &e.k.Body[pc]); err != nil {
			return fmt.Errorf("%s: inst %d (%s): %w", Name, pc, e.k.Body[pc].Op, err)
		}
	}
	return nil
}

func (e *emitter) binary(inst *lir.Inst) string {
	x, y := e.operand(inst.Args[0]), e.operand(inst.Args[1])
	t := inst.Type
	switch inst.Kind {
	case graph.KindRem:
		if t.Prim.IsFloat() {
			return fmt.Sprintf("fmod(%s, %s)", x, y)
		}
	case graph.KindShr:
		if s, ok := signedOf[t.Prim]; ok {
			return fmt.Sprintf("(%s)((%s)%s >> %s)", e.typeName(t), e.typeName(graph.Type{Prim: s, Lanes: t.Lanes}), x, y)
		}
		return fmt.Sprintf("%s >> %s", x, y)
	case graph.KindUShr:
		if u, ok := unsignedOf[t.Prim]; ok {
			return fmt.Sprintf("(%s)((%s)%s >> %s)", e.typeName(t), e.typeName(graph.Type{Prim: u, Lanes: t.Lanes}), x, y)
		}
		return fmt.Sprintf("%s >> %s", x, y)
	}
	return fmt.Sprintf("%s %s %s", x, binarySymbols[inst.Kind], y)
}

func (e *emitter) intrinsic(inst *lir.Inst) (string, error) {
	prim := inst.Type.Prim
	if len(inst.Args) > 0 {
		prim = inst.Args[0].Type.Prim
	}
	info, ok := e.t.Intrinsic(inst.Intrinsic, prim)
	if !ok {
		return "", fmt.Errorf("no %s encoding for %s", inst.Intrinsic, prim)
	}
	name := info.Name
	if prim.IsFloat() {
		switch inst.Intrinsic {
		case graph.IntrinsicMin:
			name = "fmin"
		case graph.IntrinsicMax:
			name = "fmax"
		}
	}
	args := lo.Map(inst.Args, func(a lir.Operand, _ int) string { return e.operand(a) })
	call := fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
	switch inst.Intrinsic {
	case graph.IntrinsicAbs, graph.IntrinsicPopCount, graph.IntrinsicClz:
		// abs returns the unsigned type of its argument.
		call = fmt.Sprintf("(%s)%s", e.typeName(inst.Type), call)
	}
	return call, nil
}

func (e *emitter) address(a lir.Address) string {
	return fmt.Sprintf("%s[%s]", e.operand(a.Base), e.operand(a.Index))
}

func lane(i int) string { return fmt.Sprintf("s%x", i) }

func (e *emitter) inst(w *bytes.Buffer, inst *lir.Inst) error {
	dst := ""
	if inst.Dst != lir.NoReg {
		dst = e.reg(inst.Dst)
	}
	switch inst.Op {
	case lir.OpAssign:
		e.line(w, "%s = %s;", dst, e.operand(inst.Args[0]))
	case lir.OpBinary:
		e.line(w, "%s = %s;", dst, e.binary(inst))
	case lir.OpUnary:
		x := e.operand(inst.Args[0])
		switch {
		case inst.Kind == graph.KindNeg:
			e.line(w, "%s = -%s;", dst, x)
		case inst.Type.Prim == graph.Bool:
			e.line(w, "%s = !%s;", dst, x)
		default:
			e.line(w, "%s = ~%s;", dst, x)
		}
	case lir.OpCompare:
		e.line(w, "%s = %s %s %s;", dst, e.operand(inst.Args[0]), condSymbols[inst.Cond], e.operand(inst.Args[1]))
	case lir.OpConvert:
		if inst.Type.IsVector() {
			e.line(w, "%s = convert_%s(%s);", dst, e.typeName(inst.Type), e.operand(inst.Args[0]))
		} else {
			e.line(w, "%s = (%s)%s;", dst, e.typeName(inst.Type), e.operand(inst.Args[0]))
		}
	case lir.OpLoad:
		e.line(w, "%s = %s;", dst, e.address(inst.Addr))
	case lir.OpStore:
		e.line(w, "%s = %s;", e.address(inst.Addr), e.operand(inst.Args[0]))
	case lir.OpIntrinsic:
		call, err := e.intrinsic(inst)
		if err != nil {
			return err
		}
		if dst == "" {
			e.line(w, "%s;", call)
		} else {
			e.line(w, "%s = %s;", dst, call)
		}
	case lir.OpBuiltin:
		name, ok := e.t.Builtins[inst.Builtin]
		if !ok {
			return fmt.Errorf("no %s built-in", inst.Builtin)
		}
		e.line(w, "%s = (%s)%s(%d);", dst, e.typeName(inst.Type), name, inst.Dim)
	case lir.OpAtomic:
		call, err := e.atomic(inst)
		if err != nil {
			return err
		}
		if dst == "" {
			e.line(w, "%s;", call)
		} else {
			e.line(w, "%s = %s;", dst, call)
		}
	case lir.OpBarrier:
		b, ok := e.t.Barriers[inst.Addr.Space]
		if !ok {
			return fmt.Errorf("no %s barrier", inst.Addr.Space)
		}
		e.line(w, "%s;", b)
	case lir.OpSplat:
		e.line(w, "%s = (%s)(%s);", dst, e.typeName(inst.Type), e.operand(inst.Args[0]))
	case lir.OpInsert:
		if src := inst.Args[0]; src.Kind != lir.OperandReg || src.Reg != inst.Dst {
			e.line(w, "%s = %s;", dst, e.operand(src))
		}
		e.line(w, "%s.%s = %s;", dst, lane(inst.Lane), e.operand(inst.Args[1]))
	case lir.OpExtract:
		e.line(w, "%s = %s.%s;", dst, e.operand(inst.Args[0]), lane(inst.Lane))
	case lir.OpIfBegin:
		e.line(w, "if (%s) {", e.operand(inst.Args[0]))
		e.depth++
	case lir.OpElse:
		e.depth--
		e.line(w, "} else {")
		e.depth++
	case lir.OpIfEnd, lir.OpLoopEnd:
		e.depth--
		e.line(w, "}")
	case lir.OpLoopBegin:
		e.line(w, "for (;;) {")
		e.depth++
	case lir.OpBreakUnless:
		e.line(w, "if (!%s) break;", e.operand(inst.Args[0]))
	case lir.OpReturn:
		e.line(w, "return;")
	default:
		return fmt.Errorf("unknown op %s", inst.Op)
	}
	return nil
}
