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

package sim

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/ajroetker/go-kernelc/graph"
)

// value holds one lit per lane. Integer lanes are kept sign- or
// zero-extended from their width, f32 lanes rounded to single precision.
type value []graph.Lit

func norm(p graph.Prim, l graph.Lit) graph.Lit {
	switch p {
	case graph.Bool:
		if l.I != 0 {
			return graph.IntLit(1)
		}
		return graph.IntLit(0)
	case graph.I8:
		return graph.IntLit(int64(int8(l.I)))
	case graph.I16:
		return graph.IntLit(int64(int16(l.I)))
	case graph.I32:
		return graph.IntLit(int64(int32(l.I)))
	case graph.U8:
		return graph.IntLit(int64(uint8(l.I)))
	case graph.U16:
		return graph.IntLit(int64(uint16(l.I)))
	case graph.U32:
		return graph.IntLit(int64(uint32(l.I)))
	case graph.F16, graph.F32:
		return graph.FloatLit(float64(float32(l.F)))
	}
	return l
}

func lane(v value, i int) graph.Lit {
	if len(v) == 1 {
		return v[0]
	}
	return v[i]
}

func mask(p graph.Prim) uint64 {
	if p.Bits() >= 64 {
		return math.MaxUint64
	}
	return 1<<p.Bits() - 1
}

func binary(kind graph.Kind, p graph.Prim, a, b graph.Lit) (graph.Lit, error) {
	if p.IsFloat() {
		var r float64
		switch kind {
		case graph.KindAdd:
			r = a.F + b.F
		case graph.KindSub:
			r = a.F - b.F
		case graph.KindMul:
			r = a.F * b.F
		case graph.KindDiv:
			r = a.F / b.F
		case graph.KindRem:
			r = math.Mod(a.F, b.F)
		default:
			return graph.Lit{}, fmt.Errorf("%s on %s", kind, p)
		}
		return norm(p, graph.FloatLit(r)), nil
	}

	x, y := a.I, b.I
	ux, uy := uint64(x)&mask(p), uint64(y)&mask(p)
	shift := uint(y) & uint(p.Bits()-1)
	var r int64
	switch kind {
	case graph.KindAdd:
		r = x + y
	case graph.KindSub:
		r = x - y
	case graph.KindMul:
		r = x * y
	case graph.KindDiv, graph.KindRem:
		if y == 0 {
			return graph.Lit{}, ErrDivideByZero
		}
		switch {
		case !p.IsSigned() && kind == graph.KindDiv:
			r = int64(ux / uy)
		case !p.IsSigned():
			r = int64(ux % uy)
		case kind == graph.KindDiv:
			r = x / y
		default:
			r = x % y
		}
	case graph.KindAnd:
		r = x & y
	case graph.KindOr:
		r = x | y
	case graph.KindXor:
		r = x ^ y
	case graph.KindShl:
		r = x << shift
	case graph.KindShr:
		if p.IsSigned() {
			r = x >> shift
		} else {
			r = int64(ux >> shift)
		}
	case graph.KindUShr:
		r = int64(ux >> shift)
	default:
		return graph.Lit{}, fmt.Errorf("%s on %s", kind, p)
	}
	return norm(p, graph.IntLit(r)), nil
}

func unary(kind graph.Kind, p graph.Prim, a graph.Lit) (graph.Lit, error) {
	switch {
	case kind == graph.KindNeg && p.IsFloat():
		return norm(p, graph.FloatLit(-a.F)), nil
	case kind == graph.KindNeg:
		return norm(p, graph.IntLit(-a.I)), nil
	case kind == graph.KindNot && p == graph.Bool:
		return graph.IntLit(1 - a.I), nil
	case kind == graph.KindNot && p.IsInt():
		return norm(p, graph.IntLit(^a.I)), nil
	}
	return graph.Lit{}, fmt.Errorf("%s on %s", kind, p)
}

func compare(c graph.Cond, p graph.Prim, a, b graph.Lit) bool {
	var cmp int
	switch {
	case p.IsFloat():
		if c == graph.CondNE {
			return a.F != b.F
		}
		if math.IsNaN(a.F) || math.IsNaN(b.F) {
			return false
		}
		cmp = cmpOf(a.F < b.F, a.F > b.F)
	case p.IsSigned():
		cmp = cmpOf(a.I < b.I, a.I > b.I)
	default:
		ua, ub := uint64(a.I)&mask(p), uint64(b.I)&mask(p)
		cmp = cmpOf(ua < ub, ua > ub)
	}
	switch c {
	case graph.CondEQ:
		return cmp == 0
	case graph.CondNE:
		return cmp != 0
	case graph.CondLT:
		return cmp < 0
	case graph.CondLE:
		return cmp <= 0
	case graph.CondGT:
		return cmp > 0
	}
	return cmp >= 0
}

func cmpOf(lt, gt bool) int {
	switch {
	case lt:
		return -1
	case gt:
		return 1
	}
	return 0
}

// convert follows C conversion rules: floats truncate toward zero, integers
// wrap to the destination width.
func convert(from, to graph.Prim, a graph.Lit) graph.Lit {
	switch {
	case from.IsFloat() && to.IsFloat():
		return norm(to, a)
	case from.IsFloat() && to == graph.Bool:
		return norm(to, graph.IntLit(b2i(a.F != 0)))
	case from.IsFloat():
		if math.IsNaN(a.F) {
			return graph.IntLit(0)
		}
		if to.IsSigned() {
			return norm(to, graph.IntLit(int64(a.F)))
		}
		return norm(to, graph.IntLit(int64(uint64(a.F))))
	case to.IsFloat() && from.IsSigned():
		return norm(to, graph.FloatLit(float64(a.I)))
	case to.IsFloat():
		return norm(to, graph.FloatLit(float64(uint64(a.I)&mask(from))))
	}
	return norm(to, a)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func intrinsic(fn graph.Intrinsic, p graph.Prim, args []graph.Lit) (graph.Lit, error) {
	if p.IsFloat() {
		f := func(i int) float64 { return args[i].F }
		var r float64
		switch fn {
		case graph.IntrinsicSqrt:
			r = math.Sqrt(f(0))
		case graph.IntrinsicExp:
			r = math.Exp(f(0))
		case graph.IntrinsicExp2:
			r = math.Exp2(f(0))
		case graph.IntrinsicLog:
			r = math.Log(f(0))
		case graph.IntrinsicLog2:
			r = math.Log2(f(0))
		case graph.IntrinsicSin:
			r = math.Sin(f(0))
		case graph.IntrinsicCos:
			r = math.Cos(f(0))
		case graph.IntrinsicTan:
			r = math.Tan(f(0))
		case graph.IntrinsicPow:
			r = math.Pow(f(0), f(1))
		case graph.IntrinsicFabs, graph.IntrinsicAbs:
			r = math.Abs(f(0))
		case graph.IntrinsicFloor:
			r = math.Floor(f(0))
		case graph.IntrinsicCeil:
			r = math.Ceil(f(0))
		case graph.IntrinsicRint:
			r = math.RoundToEven(f(0))
		case graph.IntrinsicFma:
			r = math.FMA(f(0), f(1), f(2))
		case graph.IntrinsicMin:
			r = math.Min(f(0), f(1))
		case graph.IntrinsicMax:
			r = math.Max(f(0), f(1))
		case graph.IntrinsicClamp:
			r = math.Min(math.Max(f(0), f(1)), f(2))
		default:
			return graph.Lit{}, fmt.Errorf("%s on %s", fn, p)
		}
		return norm(p, graph.FloatLit(r)), nil
	}

	less := func(a, b graph.Lit) bool { return compare(graph.CondLT, p, a, b) }
	switch fn {
	case graph.IntrinsicMin:
		if less(args[1], args[0]) {
			return args[1], nil
		}
		return args[0], nil
	case graph.IntrinsicMax:
		if less(args[0], args[1]) {
			return args[1], nil
		}
		return args[0], nil
	case graph.IntrinsicClamp:
		x := args[0]
		if less(x, args[1]) {
			x = args[1]
		}
		if less(args[2], x) {
			x = args[2]
		}
		return x, nil
	case graph.IntrinsicAbs:
		if p.IsSigned() && args[0].I < 0 {
			return norm(p, graph.IntLit(-args[0].I)), nil
		}
		return args[0], nil
	case graph.IntrinsicPopCount:
		return graph.IntLit(int64(bits.OnesCount64(uint64(args[0].I) & mask(p)))), nil
	case graph.IntrinsicClz:
		return graph.IntLit(int64(bits.LeadingZeros64(uint64(args[0].I)&mask(p)) - (64 - p.Bits()))), nil
	}
	return graph.Lit{}, fmt.Errorf("%s on %s", fn, p)
}

// fromGo converts a Go scalar argument to a lit of type p.
func fromGo(p graph.Prim, v any) (graph.Lit, error) {
	var l graph.Lit
	var from graph.Prim
	switch v := v.(type) {
	case bool:
		l, from = graph.IntLit(b2i(v)), graph.Bool
	case int:
		l, from = graph.IntLit(int64(v)), graph.I64
	case int32:
		l, from = graph.IntLit(int64(v)), graph.I32
	case int64:
		l, from = graph.IntLit(v), graph.I64
	case uint32:
		l, from = graph.IntLit(int64(v)), graph.U32
	case uint64:
		l, from = graph.IntLit(int64(v)), graph.U64
	case float32:
		l, from = graph.FloatLit(float64(v)), graph.F32
	case float64:
		l, from = graph.FloatLit(v), graph.F64
	default:
		return graph.Lit{}, fmt.Errorf("unsupported argument type %T", v)
	}
	return convert(from, p, l), nil
}
