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

// Composite records the fate of one aggregate allocation.
type Composite struct {
	Node graph.NodeID
	Type graph.Type

	// Scalarized aggregates were removed from the graph; the others lower to
	// native vector values.
	Scalarized bool
	ZeroInit   bool
}

func runComposites(ctx *Context) error {
	g := ctx.Graph
	for _, id := range g.OfKind(graph.KindStoreField) {
		n := g.Node(id)
		if g.Node(g.Strip(n.Input(0))).Kind != graph.KindNewVector {
			return graph.Unsupported(n, PassComposite, "", "field store into a %s that is not a recognized aggregate", g.Node(n.Input(0)).Kind)
		}
	}

	for _, id := range g.OfKind(graph.KindNewVector) {
		n := g.Node(id)
		if !n.Scheduled() {
			continue
		}
		reason := scalarizable(g, id)
		if reason == "" {
			if err := scalarize(g, id); err != nil {
				return err
			}
			ctx.Result.Composites = append(ctx.Result.Composites, Composite{Node: id, Type: n.Type, Scalarized: true})
			continue
		}
		ctx.mismatch(PassComposite, id, "kept as a native vector: %s", reason)
		stored := slices.ContainsFunc(n.Usages(), func(u graph.NodeID) bool {
			return g.Node(u).Kind == graph.KindStoreField
		})
		if !stored && n.NumInputs() == 0 {
			n.Flags |= graph.FlagZeroInit
		}
		ctx.Result.Composites = append(ctx.Result.Composites, Composite{Node: id, Type: n.Type, ZeroInit: n.Has(graph.FlagZeroInit)})
	}
	ctx.Log.V(2).Info("pass complete", "pass", PassComposite, "aggregates", len(ctx.Result.Composites))
	return nil
}

// scalarizable returns an empty reason when every use of the allocation is a
// lane access in its own block, after the allocation.
func scalarizable(g *graph.Graph, id graph.NodeID) string {
	n := g.Node(id)
	pos := position(g, id)
	for _, u := range n.Usages() {
		un := g.Node(u)
		if (un.Kind != graph.KindLoadField && un.Kind != graph.KindStoreField) || un.Input(0) != id {
			return "escapes through " + un.Kind.String()
		}
		if un.Block() != n.Block() || position(g, u) < pos {
			return "lane access outside the allocating block"
		}
	}
	return ""
}

func position(g *graph.Graph, id graph.NodeID) int {
	n := g.Node(id)
	return slices.Index(g.Block(n.Block()).Nodes(), id)
}

func scalarize(g *graph.Graph, id graph.NodeID) error {
	n := g.Node(id)
	lanes := make([]graph.NodeID, n.Type.NumLanes())
	copy(lanes, n.Inputs())

	var dead []graph.NodeID
	sched := slices.Clone(g.Block(n.Block()).Nodes())
	for _, u := range sched[position(g, id)+1:] {
		un := g.Node(u)
		if un.NumInputs() == 0 || un.Input(0) != id {
			continue
		}
		if un.Index < 0 || un.Index >= len(lanes) {
			return graph.Unsupported(un, PassComposite, "", "lane %d out of range for %s", un.Index, n.Type)
		}
		switch un.Kind {
		case graph.KindStoreField:
			lanes[un.Index] = un.Input(1)
		case graph.KindLoadField:
			v := lanes[un.Index]
			if v == 0 {
				v = g.Const(n.Type.LaneType(), graph.Zero())
			}
			g.ReplaceAtUsages(u, v)
		default:
			continue
		}
		dead = append(dead, u)
	}
	for _, u := range dead {
		g.Remove(u)
	}
	g.Remove(id)
	return nil
}
