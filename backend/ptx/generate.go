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
	"math"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
)

// genIntrinsic expands exp and log onto the base-2 approximations:
// exp(x) = ex2(x * log2(e)) and log(x) = lg2(x) * ln(2).
func genIntrinsic(base lower.GenFunc) lower.GenFunc {
	return func(ctx *lower.Context, n *graph.Node) error {
		var (
			fn    graph.Intrinsic
			scale float64
		)
		switch n.Intrinsic {
		case graph.IntrinsicExp:
			fn, scale = graph.IntrinsicExp2, math.Log2E
		case graph.IntrinsicLog:
			fn, scale = graph.IntrinsicLog2, math.Ln2
		default:
			return base(ctx, n)
		}
		if n.NumInputs() != 1 {
			return base(ctx, n)
		}
		x, err := ctx.Value(n.Input(0))
		if err != nil {
			return err
		}
		if x.Type.Prim != graph.F32 {
			return ctx.Unsupported(n, "no %s encoding for %s", n.Intrinsic, x.Type.Prim)
		}
		k := lir.Imm(graph.TF32, graph.FloatLit(scale))
		ctx.Define(n.ID(), ctx.LaneWise(n.Type, []lir.Operand{x}, func(lt graph.Type, a []lir.Operand) lir.Operand {
			if fn == graph.IntrinsicExp2 {
				return ctx.B.Intrinsic(fn, lt, ctx.B.Binary(graph.KindMul, lt, a[0], k))
			}
			return ctx.B.Binary(graph.KindMul, lt, ctx.B.Intrinsic(fn, lt, a[0]), k)
		}))
		return nil
	}
}

// genRem rejects floating-point remainders; PTX has rem for integers only.
func genRem(base lower.GenFunc) lower.GenFunc {
	return func(ctx *lower.Context, n *graph.Node) error {
		if n.Type.Prim.IsFloat() {
			return ctx.Unsupported(n, "Rem on %s", n.Type)
		}
		return base(ctx, n)
	}
}
