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

func genIntrinsic(ctx *Context, n *graph.Node) error {
	fn := n.Intrinsic
	if n.NumInputs() != fn.Arity() {
		return ctx.Unsupported(n, "%s takes %d arguments, got %d", fn, fn.Arity(), n.NumInputs())
	}
	switch fn {
	case graph.IntrinsicLocalBarrier:
		return ctx.barrier(n, lir.SpaceLocal)
	case graph.IntrinsicGlobalBarrier:
		return ctx.barrier(n, lir.SpaceGlobal)
	case graph.IntrinsicAtomicFetchAdd:
		return genFetchAdd(ctx, n)
	}

	args, err := ctx.Values(n.Inputs()...)
	if err != nil {
		return err
	}
	prim := n.Type.Prim
	if len(args) > 0 {
		prim = args[0].Type.Prim
	}
	if fn == graph.IntrinsicAbs && prim.IsFloat() {
		fn = graph.IntrinsicFabs
	}
	if fn == graph.IntrinsicDot {
		return ctx.dot(n, args)
	}
	if _, ok := ctx.Target.Intrinsic(fn, prim); !ok {
		return ctx.Unsupported(n, "no %s encoding for %s", fn, prim)
	}
	ctx.Define(n.ID(), ctx.LaneWise(n.Type, args, func(lt graph.Type, a []lir.Operand) lir.Operand {
		return ctx.B.Intrinsic(fn, lt, a...)
	}))
	return nil
}

func (ctx *Context) barrier(n *graph.Node, space lir.Space) error {
	if _, ok := ctx.Target.Barriers[space]; !ok {
		return ctx.Unsupported(n, "no %s barrier", space)
	}
	ctx.B.Barrier(space)
	return nil
}

func genFetchAdd(ctx *Context, n *graph.Node) error {
	v, err := ctx.Value(n.Input(2))
	if err != nil {
		return err
	}
	addr, err := ctx.address(n, v.Type)
	if err != nil {
		return err
	}
	if _, ok := ctx.Target.Atomic(graph.ReduceAdd, v.Type.Prim); !ok {
		return ctx.Unsupported(n, "no atomic add for %s", v.Type)
	}
	ctx.Define(n.ID(), ctx.B.Atomic(graph.ReduceAdd, addr, v, true))
	return nil
}

// dot uses the native dot product when the target has one for the operand
// type, otherwise a multiply-add chain over the lanes.
func (ctx *Context) dot(n *graph.Node, args []lir.Operand) error {
	x, y := args[0], args[1]
	if !x.Type.IsVector() || x.Type != y.Type {
		return ctx.Unsupported(n, "dot of %s and %s", x.Type, y.Type)
	}
	if _, ok := ctx.Target.Intrinsic(graph.IntrinsicDot, x.Type.Prim); ok && ctx.Target.Caps.NativeLanes(x.Type.NumLanes()) {
		ctx.Define(n.ID(), ctx.B.Intrinsic(graph.IntrinsicDot, n.Type, x, y))
		return nil
	}
	lt := x.Type.LaneType()
	var sum lir.Operand
	for lane := range x.Type.NumLanes() {
		p := ctx.B.Binary(graph.KindMul, lt, ctx.B.Extract(x, lane), ctx.B.Extract(y, lane))
		if lane == 0 {
			sum = p
		} else {
			sum = ctx.B.Binary(graph.KindAdd, lt, sum, p)
		}
	}
	ctx.Define(n.ID(), sum)
	return nil
}
