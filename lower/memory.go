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

// address resolves the array and index inputs of an indexed access.
func (ctx *Context) address(n *graph.Node, elem graph.Type) (lir.Address, error) {
	ops, err := ctx.Values(n.Input(0), n.Input(1))
	if err != nil {
		return lir.Address{}, err
	}
	base, idx := ops[0], ops[1]
	if base.Kind != lir.OperandParam && base.Kind != lir.OperandArray {
		return lir.Address{}, ctx.Unsupported(n, "indexed access into a %s value", base.Type)
	}
	return lir.Address{Space: ctx.SpaceOf(base), Base: base, Index: idx, Elem: elem}, nil
}

// laneAddress addresses lane of the vector element at addr. Vector arrays are
// stored as packed scalars.
func (ctx *Context) laneAddress(addr lir.Address, lanes, lane int) lir.Address {
	it := addr.Index.Type
	var idx lir.Operand
	if addr.Index.IsImm() {
		idx = lir.IntImm(it, addr.Index.Imm.I*int64(lanes)+int64(lane))
	} else {
		idx = ctx.B.Binary(graph.KindMul, it, addr.Index, lir.IntImm(it, int64(lanes)))
		if lane != 0 {
			idx = ctx.B.Binary(graph.KindAdd, it, idx, lir.IntImm(it, int64(lane)))
		}
	}
	return lir.Address{Space: addr.Space, Base: addr.Base, Index: idx, Elem: addr.Elem.LaneType()}
}

func genLoadIndexed(ctx *Context, n *graph.Node) error {
	addr, err := ctx.address(n, n.Type)
	if err != nil {
		return err
	}
	if !n.Type.IsVector() {
		ctx.Define(n.ID(), ctx.B.Load(addr))
		return nil
	}
	var vec lir.Operand
	for lane := range n.Type.NumLanes() {
		x := ctx.B.Load(ctx.laneAddress(addr, n.Type.NumLanes(), lane))
		if lane == 0 {
			vec = ctx.B.Splat(n.Type, x)
		} else {
			vec = ctx.B.Insert(vec, lane, x)
		}
	}
	ctx.Define(n.ID(), vec)
	return nil
}

func genStoreIndexed(ctx *Context, n *graph.Node) error {
	v, err := ctx.Value(n.Input(2))
	if err != nil {
		return err
	}
	addr, err := ctx.address(n, v.Type)
	if err != nil {
		return err
	}
	if addr.Space == lir.SpaceConstant {
		return ctx.Unsupported(n, "store into constant memory")
	}
	if !v.Type.IsVector() {
		ctx.B.Store(addr, v)
		return nil
	}
	for lane := range v.Type.NumLanes() {
		ctx.B.Store(ctx.laneAddress(addr, v.Type.NumLanes(), lane), ctx.B.Extract(v, lane))
	}
	return nil
}

// vectorReg returns the register holding an escaped aggregate.
func (ctx *Context) vectorReg(n *graph.Node) (lir.Operand, error) {
	v, err := ctx.Value(n.Input(0))
	if err != nil {
		return lir.Operand{}, err
	}
	if v.Kind != lir.OperandReg || !v.Type.IsVector() {
		return lir.Operand{}, ctx.Unsupported(n, "field access on a %s value", v.Type)
	}
	if n.Index < 0 || n.Index >= v.Type.NumLanes() {
		return lir.Operand{}, ctx.Unsupported(n, "lane %d out of range for %s", n.Index, v.Type)
	}
	return v, nil
}

func genLoadField(ctx *Context, n *graph.Node) error {
	v, err := ctx.vectorReg(n)
	if err != nil {
		return err
	}
	ctx.Define(n.ID(), ctx.B.Extract(v, n.Index))
	return nil
}

func genStoreField(ctx *Context, n *graph.Node) error {
	v, err := ctx.vectorReg(n)
	if err != nil {
		return err
	}
	x, err := ctx.Value(n.Input(1))
	if err != nil {
		return err
	}
	ctx.B.InsertInto(v.Reg, n.Index, x)
	return nil
}

// genNewVector lowers an aggregate that survived normalization to a mutable
// vector register, zero-filled unless lane values were given.
func genNewVector(ctx *Context, n *graph.Node) error {
	t := n.Type
	lanes, err := ctx.Values(n.Inputs()...)
	if err != nil {
		return err
	}
	r := ctx.B.NewReg(t)
	if len(lanes) == 0 {
		ctx.B.SplatInto(r, lir.Imm(t.LaneType(), graph.Zero()))
	} else {
		ctx.B.SplatInto(r, lanes[0])
		for i := 1; i < len(lanes) && i < t.NumLanes(); i++ {
			ctx.B.InsertInto(r, i, lanes[i])
		}
	}
	ctx.Define(n.ID(), lir.R(r, t))
	return nil
}

func genNewArray(ctx *Context, n *graph.Node) error {
	if n.Index <= 0 {
		return ctx.Unsupported(n, "array length must be a positive constant")
	}
	space := lir.SpacePrivate
	if n.Kind == graph.KindNewLocalArray {
		space = lir.SpaceLocal
	}
	if _, ok := ctx.Target.Spaces[space]; !ok {
		return ctx.Unsupported(n, "no %s memory", space)
	}
	name := n.Name
	if name == "" {
		name = "arr"
	}
	elem := n.Type.Elem()
	if elem.IsVector() {
		return ctx.Unsupported(n, "array of %s vectors", elem)
	}
	ctx.Define(n.ID(), ctx.addArray(lir.Array{Name: name, Space: space, Elem: elem, Len: n.Index}))
	return nil
}
