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

package lower

import (
	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
)

// Defaults returns the target-neutral generator table.
func Defaults() Table {
	var t Table
	for k := graph.KindAdd; k <= graph.KindUShr; k++ {
		t[k] = genBinary
	}
	t[graph.KindNeg] = genUnary
	t[graph.KindNot] = genUnary
	t[graph.KindConvert] = genConvert
	t[graph.KindCompare] = genCompare
	t[graph.KindLoadIndexed] = genLoadIndexed
	t[graph.KindStoreIndexed] = genStoreIndexed
	t[graph.KindLoadField] = genLoadField
	t[graph.KindStoreField] = genStoreField
	t[graph.KindNewVector] = genNewVector
	t[graph.KindNewArray] = genNewArray
	t[graph.KindNewLocalArray] = genNewArray
	t[graph.KindIntrinsic] = genIntrinsic
	t[graph.KindCall] = genCall
	t[graph.KindIf] = genIf
	t[graph.KindLoop] = genLoop
	t[graph.KindReturn] = genReturn
	t[graph.KindParallelRange] = genRange
	t[graph.KindReduction] = genReduction
	return t
}

// LaneWise applies op to args, lane by lane when t is a vector the target
// has no native registers for. Scalar and immediate arguments are broadcast.
func (ctx *Context) LaneWise(t graph.Type, args []lir.Operand, op func(lt graph.Type, args []lir.Operand) lir.Operand) lir.Operand {
	if !t.IsVector() {
		return op(t, args)
	}
	if ctx.Target.Caps.NativeLanes(t.NumLanes()) {
		for i, a := range args {
			if !a.Type.IsVector() {
				args[i] = ctx.B.Splat(graph.Vector(a.Type.Prim, t.NumLanes()), a)
			}
		}
		return op(t, args)
	}
	lt := t.LaneType()
	var vec lir.Operand
	for lane := range t.NumLanes() {
		lanes := make([]lir.Operand, len(args))
		for i, a := range args {
			lanes[i] = a
			if a.Type.IsVector() {
				lanes[i] = ctx.B.Extract(a, lane)
			}
		}
		r := op(lt, lanes)
		if lane == 0 {
			vec = ctx.B.Splat(t, r)
		} else {
			vec = ctx.B.Insert(vec, lane, r)
		}
	}
	return vec
}

func genBinary(ctx *Context, n *graph.Node) error {
	args, err := ctx.Values(n.Inputs()...)
	if err != nil {
		return err
	}
	if n.Type.Prim.IsFloat() {
		switch n.Kind {
		case graph.KindAnd, graph.KindOr, graph.KindXor, graph.KindShl, graph.KindShr, graph.KindUShr:
			return ctx.Unsupported(n, "%s on %s", n.Kind, n.Type)
		}
	}
	if n.Type.Prim == graph.Bool && n.Kind != graph.KindAnd && n.Kind != graph.KindOr && n.Kind != graph.KindXor {
		return ctx.Unsupported(n, "%s on bool", n.Kind)
	}
	want := n.Type.LaneType()
	for i, a := range args {
		got := a.Type.LaneType()
		if i == 1 && isShift(n.Kind) {
			// Shift counts may have any integer width.
			if !got.Prim.IsInt() {
				return ctx.Unsupported(n, "shift count is %s", got)
			}
			continue
		}
		if got != want {
			return ctx.Unsupported(n, "operand %d is %s, want %s", i, got, want)
		}
	}
	ctx.Define(n.ID(), ctx.LaneWise(n.Type, args, func(lt graph.Type, a []lir.Operand) lir.Operand {
		return ctx.B.Binary(n.Kind, lt, a[0], a[1])
	}))
	return nil
}

func isShift(k graph.Kind) bool {
	return k == graph.KindShl || k == graph.KindShr || k == graph.KindUShr
}

func genUnary(ctx *Context, n *graph.Node) error {
	x, err := ctx.Value(n.Input(0))
	if err != nil {
		return err
	}
	if n.Kind == graph.KindNot && n.Type.Prim.IsFloat() {
		return ctx.Unsupported(n, "not on %s", n.Type)
	}
	ctx.Define(n.ID(), ctx.LaneWise(n.Type, []lir.Operand{x}, func(lt graph.Type, a []lir.Operand) lir.Operand {
		return ctx.B.Unary(n.Kind, lt, a[0])
	}))
	return nil
}

func genConvert(ctx *Context, n *graph.Node) error {
	x, err := ctx.Value(n.Input(0))
	if err != nil {
		return err
	}
	if x.Type.NumLanes() != n.Type.NumLanes() {
		return ctx.Unsupported(n, "conversion from %s to %s changes the lane count", x.Type, n.Type)
	}
	ctx.Define(n.ID(), ctx.LaneWise(n.Type, []lir.Operand{x}, func(lt graph.Type, a []lir.Operand) lir.Operand {
		return ctx.B.Convert(lt, a[0])
	}))
	return nil
}

func genCompare(ctx *Context, n *graph.Node) error {
	args, err := ctx.Values(n.Inputs()...)
	if err != nil {
		return err
	}
	if args[0].Type.IsVector() {
		return ctx.Unsupported(n, "comparison of %s vectors", args[0].Type)
	}
	if args[0].Type != args[1].Type {
		return ctx.Unsupported(n, "comparison of %s with %s", args[0].Type, args[1].Type)
	}
	ctx.Define(n.ID(), ctx.B.Compare(n.Cond, args[0], args[1]))
	return nil
}

func genCall(ctx *Context, n *graph.Node) error {
	return ctx.Unsupported(n, "unresolved call %q: the call site is not in the %s registry", n.Name, ctx.Target.Name)
}

func genReturn(ctx *Context, n *graph.Node) error {
	if n.NumInputs() > 0 {
		return ctx.Unsupported(n, "kernels cannot return a value")
	}
	if ctx.tree != nil && n.Block() == ctx.Graph.Entry() {
		if err := ctx.tree.epilogue(ctx); err != nil {
			return err
		}
	}
	ctx.B.Return()
	return nil
}
