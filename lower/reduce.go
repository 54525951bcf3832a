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
	"fmt"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/target"
)

// tree is the state of the LocalTree template: one private accumulator and
// one local scratch array per reduction, combined after the kernel body.
type tree struct {
	size int
	lid  lir.Operand
	reds map[graph.NodeID]*treeReduction
	// order keeps the epilogue deterministic.
	order []graph.NodeID
	done  bool
}

type treeReduction struct {
	marker *graph.Node
	elem   graph.Type
	acc    lir.Reg
	local  lir.Operand
}

// chooseTemplates picks the reduction template. LocalTree is used when the
// target prefers it and every reduction fits it; otherwise every reduction
// uses GlobalAtomic.
func (ctx *Context) chooseTemplates() ([]target.Template, error) {
	reds := ctx.Pass.Reductions
	for _, r := range reds {
		m := ctx.Graph.Node(r.Marker)
		if !m.Type.IsScalar() {
			return nil, ctx.Unsupported(m, "reduction of %s values", m.Type)
		}
		if _, ok := ctx.Target.Atomic(m.Op, m.Type.Prim); !ok {
			return nil, ctx.Unsupported(m, "no atomic %s for %s", m.Op, m.Type)
		}
	}
	tmpl := ctx.Target.Caps.Reduction
	if ctx.Opts.ForceGlobalAtomics {
		tmpl = target.GlobalAtomic
	}
	if tmpl == target.LocalTree && len(reds) > 0 {
		if node, reason := ctx.treeFits(); reason != "" {
			ctx.mismatch(node, "local tree reduction degraded to global atomics: %s", reason)
			tmpl = target.GlobalAtomic
		}
	}
	out := make([]target.Template, len(reds))
	for i := range out {
		out[i] = tmpl
	}
	if tmpl != target.LocalTree || len(reds) == 0 {
		return out, nil
	}

	size := ctx.Opts.LocalSize
	if size == 0 {
		size = ctx.Target.Caps.DefaultLocalSize
	}
	if !isPow2(size) {
		return nil, fmt.Errorf("%s: local tree reduction needs a power-of-two work-group size, got %d", PassName, size)
	}
	ctx.tree = &tree{size: size, reds: make(map[graph.NodeID]*treeReduction)}
	for _, r := range reds {
		ctx.tree.reds[r.Marker] = &treeReduction{marker: ctx.Graph.Node(r.Marker), elem: ctx.Graph.Node(r.Marker).Type}
		ctx.tree.order = append(ctx.tree.order, r.Marker)
	}
	return out, nil
}

// treeFits reports why the LocalTree template cannot serve this kernel, or
// "" when it can.
func (ctx *Context) treeFits() (graph.NodeID, string) {
	if n := len(ctx.Pass.Ranges); n != 1 {
		return 0, fmt.Sprintf("needs exactly one parallel dimension, kernel has %d", n)
	}
	for _, r := range ctx.Pass.Reductions {
		idx := ctx.Graph.Node(ctx.Graph.Strip(r.Index))
		if idx.Kind != graph.KindConst && idx.Kind != graph.KindParam {
			return r.Marker, "index is not a constant or parameter"
		}
	}
	for _, id := range ctx.Graph.OfKind(graph.KindReturn) {
		if ctx.Graph.Node(id).Block() != ctx.Graph.Entry() {
			return id, "early return would skip the work-group barrier"
		}
	}
	return 0, ""
}

func (t *tree) prologue(ctx *Context) error {
	t.lid = ctx.B.Builtin(lir.ThreadID, 0, graph.TI32)
	for _, id := range t.order {
		r := t.reds[id]
		r.acc = ctx.B.NewReg(r.elem)
		ctx.B.Assign(r.acc, lir.Imm(r.elem, graph.Identity(r.marker.Op, r.elem)))
		r.local = ctx.addArray(lir.Array{
			Name:  "partial_" + r.marker.Name,
			Space: lir.SpaceLocal,
			Elem:  r.elem,
			Len:   t.size,
		})
	}
	return nil
}

// epilogue folds the private accumulators: store to local memory, halve the
// active range with a barrier after every step, then lane 0 applies the
// group partial to the target with one atomic.
func (t *tree) epilogue(ctx *Context) error {
	if t.done {
		return nil
	}
	t.done = true
	b := ctx.B
	b.At(0)
	at := func(r *treeReduction, idx lir.Operand) lir.Address {
		return lir.Address{Space: lir.SpaceLocal, Base: r.local, Index: idx, Elem: r.elem}
	}
	for _, id := range t.order {
		r := t.reds[id]
		b.Store(at(r, t.lid), lir.R(r.acc, r.elem))
	}
	b.Barrier(lir.SpaceLocal)
	for s := t.size / 2; s > 0; s /= 2 {
		b.IfBegin(b.Compare(graph.CondLT, t.lid, lir.IntImm(graph.TI32, int64(s))))
		other := b.Binary(graph.KindAdd, graph.TI32, t.lid, lir.IntImm(graph.TI32, int64(s)))
		for _, id := range t.order {
			r := t.reds[id]
			x := b.Load(at(r, t.lid))
			y := b.Load(at(r, other))
			b.Store(at(r, t.lid), b.Binary(r.marker.Op.Combine(), r.elem, x, y))
		}
		b.IfEnd()
		b.Barrier(lir.SpaceLocal)
	}
	b.IfBegin(b.Compare(graph.CondEQ, t.lid, lir.IntImm(graph.TI32, 0)))
	for _, id := range t.order {
		r := t.reds[id]
		b.At(id)
		addr, err := ctx.address(r.marker, r.elem)
		if err != nil {
			return err
		}
		b.Atomic(r.marker.Op, addr, b.Load(at(r, lir.IntImm(graph.TI32, 0))), false)
	}
	b.IfEnd()
	return nil
}

// genReduction lowers a Reduction marker: an atomic on the target element
// for GlobalAtomic, a private accumulation for LocalTree.
func genReduction(ctx *Context, n *graph.Node) error {
	v, err := ctx.Value(n.Input(3))
	if err != nil {
		return err
	}
	if ctx.tree != nil {
		r := ctx.tree.reds[n.ID()]
		if r == nil {
			return fmt.Errorf("%s: node %d: reduction marker was not recognized", PassName, n.ID())
		}
		ctx.B.BinaryInto(r.acc, n.Op.Combine(), lir.R(r.acc, r.elem), v)
		return nil
	}
	addr, err := ctx.address(n, n.Type)
	if err != nil {
		return err
	}
	ctx.B.Atomic(n.Op, addr, v, false)
	return nil
}
