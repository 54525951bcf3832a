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
	"slices"

	"github.com/ajroetker/go-kernelc/graph"
)

// Reduction describes one recognized accumulation.
type Reduction struct {
	// Marker is the Reduction node that replaced the store.
	Marker graph.NodeID
	Target graph.NodeID
	Index  graph.NodeID
	Op     graph.ReduceOp

	Accumulator graph.NodeID
	Contributed graph.NodeID

	// Input is the parameter array feeding the contributed value, or 0.
	Input graph.NodeID
}

func runReductions(ctx *Context) error {
	g := ctx.Graph
	for _, p := range g.Params() {
		pn := g.Node(p)
		if !pn.Has(graph.FlagReduce) {
			continue
		}
		if !pn.Type.Array {
			ctx.mismatch(PassReduce, p, "reduction target %q is not an array", pn.Name)
			continue
		}
		for _, st := range storesTo(g, p) {
			r, reason, err := matchAccumulation(g, st, ctx.Result.Ranges)
			if err != nil {
				return err
			}
			if reason != "" {
				ctx.mismatch(PassReduce, st, "%s", reason)
				continue
			}
			r.Target = p
			ctx.Result.Reductions = append(ctx.Result.Reductions, rewriteAccumulation(g, st, r))
		}
	}
	ctx.Log.V(2).Info("pass complete", "pass", PassReduce, "reductions", len(ctx.Result.Reductions))
	return nil
}

// storesTo returns the indexed stores into p, seen through proxies.
func storesTo(g *graph.Graph, p graph.NodeID) []graph.NodeID {
	var out []graph.NodeID
	queue := []graph.NodeID{p}
	seen := map[graph.NodeID]bool{p: true}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, u := range g.Node(id).Usages() {
			n := g.Node(u)
			switch {
			case seen[u]:
			case n.Kind == graph.KindPi:
				seen[u] = true
				queue = append(queue, u)
			case n.Kind == graph.KindStoreIndexed && n.Input(0) == id:
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}

// matchAccumulation checks for arr[idx] = arr[idx] op v. A store that is not
// an accumulation yields a reason; an accumulation with an operator that has
// no reduction template yields an error.
func matchAccumulation(g *graph.Graph, st graph.NodeID, ranges []Range) (Reduction, string, error) {
	s := g.Node(st)
	arr, idx, val := s.Input(0), s.Input(1), s.Input(2)
	v := g.Node(val)

	var operands []graph.NodeID
	switch {
	case v.Kind.IsBinary():
		operands = v.Inputs()
	case v.Kind == graph.KindIntrinsic && (v.Intrinsic == graph.IntrinsicMin || v.Intrinsic == graph.IntrinsicMax):
		operands = v.Inputs()
	default:
		return Reduction{}, "stored value is not a binary expression", nil
	}

	accPos := -1
	for i, o := range operands {
		if isLoadOf(g, o, arr, idx) {
			accPos = i
			break
		}
	}
	if accPos < 0 {
		return Reduction{}, "stored value does not read the target element", nil
	}

	var op graph.ReduceOp
	switch v.Kind {
	case graph.KindAdd:
		op = graph.ReduceAdd
	case graph.KindMul:
		op = graph.ReduceMul
	case graph.KindSub:
		if accPos != 0 {
			return Reduction{}, "", graph.Unsupported(v, PassReduce, "", "accumulator must be the left operand of a subtraction")
		}
		op = graph.ReduceSub
	case graph.KindIntrinsic:
		return Reduction{}, "", graph.Unsupported(v, PassReduce, "", "unsupported reduction operator %s", v.Intrinsic)
	default:
		return Reduction{}, "", graph.Unsupported(v, PassReduce, "", "unsupported reduction operator %s", v.Kind)
	}

	acc := g.Strip(operands[accPos])
	contrib := operands[1-accPos]
	if len(g.Node(acc).Usages()) != 1 || len(v.Usages()) != 1 {
		return Reduction{}, "accumulator value is reused", nil
	}
	if g.EnclosingLoop(st) == 0 {
		return Reduction{}, "store is not inside a loop", nil
	}
	// Outside the parallel nest every work item runs the store.
	if !insideRange(g, st, ranges) {
		return Reduction{}, "store is not inside a parallel loop", nil
	}
	if conditional(g, st) {
		return Reduction{}, "store is conditional", nil
	}
	if !g.Uniform(idx) {
		return Reduction{}, "index is not loop-invariant", nil
	}
	return Reduction{
		Index:       idx,
		Op:          op,
		Accumulator: acc,
		Contributed: contrib,
		Input:       inputArray(g, contrib),
	}, "", nil
}

func insideRange(g *graph.Graph, st graph.NodeID, ranges []Range) bool {
	owners := g.Owners(st)
	return slices.ContainsFunc(ranges, func(r Range) bool { return slices.Contains(owners, r.Loop) })
}

func isLoadOf(g *graph.Graph, id, arr, idx graph.NodeID) bool {
	n := g.Node(g.Strip(id))
	return n.Kind == graph.KindLoadIndexed &&
		g.SameValue(n.Input(0), arr) && g.SameValue(n.Input(1), idx)
}

// conditional reports whether an If sits between st and the outermost loop
// enclosing it.
func conditional(g *graph.Graph, st graph.NodeID) bool {
	sawIf := false
	for _, o := range g.Owners(st) {
		switch g.Node(o).Kind {
		case graph.KindIf:
			sawIf = true
		case graph.KindLoop:
			if sawIf {
				return true
			}
		}
	}
	return false
}

// inputArray finds the parameter array whose element feeds v.
func inputArray(g *graph.Graph, v graph.NodeID) graph.NodeID {
	seen := make(map[graph.NodeID]bool)
	var walk func(id graph.NodeID) graph.NodeID
	walk = func(id graph.NodeID) graph.NodeID {
		if seen[id] {
			return 0
		}
		seen[id] = true
		n := g.Node(id)
		if n.Kind == graph.KindLoadIndexed {
			if base := g.Node(g.Strip(n.Input(0))); base.Kind == graph.KindParam {
				return base.ID()
			}
		}
		if n.Kind == graph.KindPhi {
			return 0
		}
		for _, in := range n.Inputs() {
			if found := walk(in); found != 0 {
				return found
			}
		}
		return 0
	}
	return walk(v)
}

func rewriteAccumulation(g *graph.Graph, st graph.NodeID, r Reduction) Reduction {
	s := g.Node(st)
	val := s.Input(2)
	elem := g.Node(r.Target).Type.Elem()

	m := g.Add(graph.KindReduction, elem, s.Input(0), r.Index, r.Accumulator, r.Contributed)
	g.PlaceBefore(st, m)
	mn := g.Node(m)
	mn.Op = r.Op
	mn.Name = g.Node(r.Target).Name

	g.Remove(st)
	g.Remove(val)
	for _, u := range slices.Clone(g.Node(r.Accumulator).Usages()) {
		if n := g.Node(u); n.Kind == graph.KindPi && len(n.Usages()) == 0 {
			g.Remove(u)
		}
	}
	g.Unplace(r.Accumulator)
	r.Marker = m
	return r
}
