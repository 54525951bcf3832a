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

package phases

import (
	"cmp"
	"slices"

	"github.com/ajroetker/go-kernelc/graph"
)

// DefaultMaxDims is the number of hardware index dimensions every backend
// exposes.
const DefaultMaxDims = 3

// Range describes one recognized parallel dimension.
type Range struct {
	Dim int

	// Loop is the rewritten loop, now flagged parallel.
	Loop graph.NodeID
	// Marker is the ParallelRange node scheduled before the loop.
	Marker graph.NodeID
	// Index is the floating ParallelIndex that replaced the induction phi.
	Index graph.NodeID

	Offset graph.NodeID
	Stride graph.NodeID
	Bound  graph.NodeID
	// TripCount is clamped at zero only when the bound is constant. A
	// symbolic count goes negative when the bound falls below the offset;
	// launches are sized through kernel.Mapping.Trips, which resolves the
	// offset and bound and yields zero for an empty span.
	TripCount graph.NodeID
	Cond      graph.Cond
}

type counted struct {
	loop, phi, cmp graph.NodeID
	init, next     graph.NodeID
	bound          graph.NodeID
	stride         int64
}

func runParallel(ctx *Context) error {
	g := ctx.Graph
	order := scheduleOrder(g)

	var cands []counted
	for _, phi := range g.OfKind(graph.KindPhi) {
		if !g.Node(phi).Has(graph.FlagParallel) {
			continue
		}
		c, reason := matchCounted(g, phi)
		if reason != "" {
			ctx.mismatch(PassParallel, phi, "unable to parallelize: %s", reason)
			continue
		}
		cands = append(cands, c)
	}

	// Innermost first, then schedule order.
	slices.SortStableFunc(cands, func(a, b counted) int {
		if d := cmp.Compare(g.LoopDepth(b.loop), g.LoopDepth(a.loop)); d != 0 {
			return d
		}
		return cmp.Compare(order[a.loop], order[b.loop])
	})

	var accepted []counted
	for _, c := range cands {
		var nested []graph.NodeID
		for _, a := range accepted {
			if g.Inside(a.loop, c.loop) {
				nested = append(nested, a.loop)
			}
		}
		if !chain(g, nested) {
			ctx.mismatch(PassParallel, c.loop, "unable to parallelize: sibling loop")
			continue
		}
		if len(nested)+1 > ctx.MaxDims {
			ctx.mismatch(PassParallel, c.loop, "unable to parallelize: more than %d dimensions", ctx.MaxDims)
			continue
		}
		accepted = append(accepted, c)
	}

	accepted = keepFirstNest(ctx, accepted, order)

	// Dimension 0 is the outermost loop of the nest.
	slices.SortStableFunc(accepted, func(a, b counted) int {
		return cmp.Compare(g.LoopDepth(a.loop), g.LoopDepth(b.loop))
	})
	claimed := make(map[int]bool)
	for _, id := range g.OfKind(graph.KindParallelRange) {
		claimed[g.Node(id).Index] = true
	}
	for dim, c := range accepted {
		if claimed[dim] {
			panic(&graph.InvariantError{Node: c.loop, Pass: PassParallel, Msg: "dimension index collision"})
		}
		claimed[dim] = true
		ctx.Result.Ranges = append(ctx.Result.Ranges, rewriteCounted(g, c, dim))
	}
	ctx.Log.V(2).Info("pass complete", "pass", PassParallel, "dims", len(accepted))
	return nil
}

func scheduleOrder(g *graph.Graph) map[graph.NodeID]int {
	order := make(map[graph.NodeID]int)
	for i, id := range g.Schedule() {
		order[id] = i
	}
	return order
}

// chain reports whether loops form a single nest, each inside the next.
func chain(g *graph.Graph, loops []graph.NodeID) bool {
	for i, a := range loops {
		for _, b := range loops[i+1:] {
			if !g.Inside(a, b) && !g.Inside(b, a) {
				return false
			}
		}
	}
	return true
}

// keepFirstNest drops every accepted loop that is not part of the first
// outermost nest in schedule order, since two nests would claim the same
// dimensions.
func keepFirstNest(ctx *Context, accepted []counted, order map[graph.NodeID]int) []counted {
	g := ctx.Graph
	var roots []graph.NodeID
	for _, c := range accepted {
		outer := false
		for _, o := range accepted {
			if o.loop != c.loop && g.Inside(c.loop, o.loop) {
				outer = true
				break
			}
		}
		if !outer {
			roots = append(roots, c.loop)
		}
	}
	if len(roots) <= 1 {
		return accepted
	}
	first := slices.MinFunc(roots, func(a, b graph.NodeID) int { return cmp.Compare(order[a], order[b]) })
	return slices.DeleteFunc(accepted, func(c counted) bool {
		if c.loop == first || g.Inside(c.loop, first) {
			return false
		}
		ctx.mismatch(PassParallel, c.loop, "unable to parallelize: sibling loop")
		return true
	})
}

// matchCounted checks that phi is the induction variable of a counted loop
// `for i := c0; i < bound; i += c1` and returns an empty reason on success.
func matchCounted(g *graph.Graph, phi graph.NodeID) (counted, string) {
	p := g.Node(phi)
	c := counted{phi: phi}
	loop := g.Node(p.Input(0))
	if loop.Kind != graph.KindLoop {
		return c, "induction variable is not owned by a loop"
	}
	c.loop = loop.ID()
	if p.NumInputs() != 3 || loop.NumInputs() != 1 {
		return c, "loop is incomplete"
	}
	if !p.Type.IsScalar() || !p.Type.Prim.IsInt() {
		return c, "induction variable is not an integer"
	}
	if len(g.Phis(c.loop)) > 1 {
		return c, "loop-carried value"
	}

	c.init = p.Input(1)
	if g.Node(c.init).Kind != graph.KindConst {
		return c, "non-constant initial value"
	}
	c.next = p.Input(2)
	stride, ok := constStep(g, c.next, phi)
	if !ok {
		return c, "non-constant stride"
	}
	if stride <= 0 {
		return c, "stride is not positive"
	}
	c.stride = stride

	compares := 0
	for _, u := range p.Usages() {
		if g.Node(u).Kind == graph.KindCompare {
			compares++
		}
	}
	if compares > 1 {
		return c, "multiple uses"
	}
	c.cmp = loop.Input(0)
	cmpNode := g.Node(c.cmp)
	if cmpNode.Kind != graph.KindCompare || cmpNode.Input(0) != phi ||
		(cmpNode.Cond != graph.CondLT && cmpNode.Cond != graph.CondLE) {
		return c, "unsupported exit condition"
	}
	if cmpNode.Block() != g.Header(c.loop) {
		return c, "exit condition is not computed in the loop header"
	}
	if len(cmpNode.Usages()) != 1 {
		return c, "multiple uses"
	}
	c.bound = cmpNode.Input(1)
	if !g.Uniform(c.bound) {
		return c, "bound is not uniform across work items"
	}
	if usedOutside(g, phi, c.loop) {
		return c, "induction variable is used after the loop"
	}
	return c, ""
}

// constStep returns s when next computes phi + s for a constant s.
func constStep(g *graph.Graph, next, phi graph.NodeID) (int64, bool) {
	n := g.Node(next)
	if n.Kind != graph.KindAdd {
		return 0, false
	}
	var other graph.NodeID
	switch {
	case n.Input(0) == phi:
		other = n.Input(1)
	case n.Input(1) == phi:
		other = n.Input(0)
	default:
		return 0, false
	}
	o := g.Node(other)
	if o.Kind != graph.KindConst {
		return 0, false
	}
	return o.Lit.I, true
}

func usedOutside(g *graph.Graph, id, loop graph.NodeID) bool {
	for _, u := range g.Node(id).Usages() {
		n := g.Node(u)
		switch {
		case u == loop:
		case n.Kind == graph.KindPhi && n.Input(0) == loop:
		case n.Kind.IsFloating():
			if usedOutside(g, u, loop) {
				return true
			}
		case !g.Inside(u, loop):
			return true
		}
	}
	return false
}

func rewriteCounted(g *graph.Graph, c counted, dim int) Range {
	p := g.Node(c.phi)
	t := p.Type
	cond := g.Node(c.cmp).Cond
	step := g.ConstInt(t, c.stride)
	trip := tripCount(g, c, t, step, cond)

	marker := g.Add(graph.KindParallelRange, t, c.init, step, c.bound, trip)
	g.PlaceBefore(c.loop, marker)
	m := g.Node(marker)
	m.Index = dim
	m.Cond = cond

	idx := g.Add(graph.KindParallelIndex, t, marker)
	g.SetInput(c.cmp, 0, marker)
	g.ReplaceAtUsages(c.phi, idx)
	g.Remove(c.phi)
	if len(g.Node(c.next).Usages()) == 0 {
		g.Remove(c.next)
	}

	loop := g.Node(c.loop)
	loop.Flags |= graph.FlagParallel
	loop.Index = dim
	return Range{
		Dim:       dim,
		Loop:      c.loop,
		Marker:    marker,
		Index:     idx,
		Offset:    c.init,
		Stride:    step,
		Bound:     c.bound,
		TripCount: trip,
		Cond:      cond,
	}
}

// tripCount returns the number of iterations as a constant when the bound is
// constant, otherwise as arithmetic scheduled before the loop.
func tripCount(g *graph.Graph, c counted, t graph.Type, step graph.NodeID, cond graph.Cond) graph.NodeID {
	off := g.Node(c.init).Lit.I
	s := c.stride
	if b := g.Node(c.bound); b.Kind == graph.KindConst {
		var n int64
		span := b.Lit.I - off
		switch {
		case cond == graph.CondLT && span > 0:
			n = (span + s - 1) / s
		case cond == graph.CondLE && span >= 0:
			n = span/s + 1
		}
		return g.ConstInt(t, n)
	}

	emit := func(kind graph.Kind, x, y graph.NodeID) graph.NodeID {
		id := g.Add(kind, t, x, y)
		g.PlaceBefore(c.loop, id)
		return id
	}
	span := c.bound
	if off != 0 {
		span = emit(graph.KindSub, c.bound, c.init)
	}
	round := s - 1
	if cond == graph.CondLE {
		round = s
	}
	if round != 0 {
		span = emit(graph.KindAdd, span, g.ConstInt(t, round))
	}
	if s != 1 {
		span = emit(graph.KindDiv, span, step)
	}
	return span
}
