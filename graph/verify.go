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

package graph

import (
	"errors"
	"fmt"
	"slices"
)

// Verify checks edge symmetry, schedule consistency and the structural
// shape of control nodes. It returns every problem found joined into one
// error, or nil.
func (g *Graph) Verify() error {
	var errs []error
	report := func(id NodeID, format string, args ...any) {
		errs = append(errs, &InvariantError{Node: id, Pass: "verify", Msg: fmt.Sprintf(format, args...)})
	}

	for _, n := range g.nodes[1:] {
		if n.dead {
			if len(n.inputs) > 0 || len(n.usages) > 0 {
				report(n.id, "removed node still has edges")
			}
			continue
		}
		for _, in := range n.inputs {
			if !g.Live(in) {
				report(n.id, "input %%%d is dangling", in)
				continue
			}
			if count(g.nodes[in].usages, n.id) != count(n.inputs, in) {
				report(n.id, "edge to input %%%d is not mirrored by a usage", in)
			}
		}
		for _, u := range n.usages {
			if !g.Live(u) {
				report(n.id, "usage %%%d is dangling", u)
				continue
			}
			if !slices.Contains(g.nodes[u].inputs, n.id) {
				report(n.id, "usage %%%d does not hold the node as input", u)
			}
		}
		g.verifyShape(n, report)
	}

	seen := make(map[NodeID]BlockID)
	for _, blk := range g.blocks {
		if blk.Owner != 0 && !g.Live(blk.Owner) && len(blk.nodes) > 0 {
			report(blk.Owner, "block %d of a removed node is not empty", blk.id)
		}
		for _, id := range blk.nodes {
			if !g.Live(id) {
				report(id, "block %d schedules a removed node", blk.id)
				continue
			}
			if prev, dup := seen[id]; dup {
				report(id, "scheduled in blocks %d and %d", prev, blk.id)
			}
			seen[id] = blk.id
			if g.nodes[id].block != blk.id {
				report(id, "node believes it is in block %d, found in %d", g.nodes[id].block, blk.id)
			}
		}
	}
	for _, n := range g.nodes[1:] {
		if n.dead || n.Kind.IsFloating() || n.Scheduled() {
			continue
		}
		// Accumulator loads are kept unscheduled on their reduction marker.
		if len(n.usages) > 0 && allUsersOf(g, n, KindReduction) {
			continue
		}
		report(n.id, "%s is neither floating nor scheduled", n.Kind)
	}

	dims := make(map[int]NodeID)
	for _, id := range g.OfKind(KindParallelRange) {
		d := g.nodes[id].Index
		if prev, dup := dims[d]; dup {
			report(id, "dimension %d already claimed by %%%d", d, prev)
		}
		dims[d] = id
	}
	return errors.Join(errs...)
}

func (g *Graph) verifyShape(n *Node, report func(NodeID, string, ...any)) {
	switch n.Kind {
	case KindPhi:
		if len(n.inputs) != 3 {
			report(n.id, "phi has %d inputs, want owner plus two values", len(n.inputs))
			return
		}
		if g.Live(n.inputs[0]) && !g.nodes[n.inputs[0]].Kind.IsControl() {
			report(n.id, "phi owner %%%d is a %s", n.inputs[0], g.nodes[n.inputs[0]].Kind)
		}
	case KindIf, KindLoop:
		if len(n.inputs) != 1 {
			report(n.id, "%s has %d inputs, want the condition", n.Kind, len(n.inputs))
		}
		for i, b := range n.Blocks {
			if b <= 0 || int(b) >= len(g.blocks) || g.blocks[b].Owner != n.id {
				report(n.id, "%s block %d is not owned by the node", n.Kind, i)
			}
		}
	case KindLoadIndexed:
		wantInputs(n, 2, report)
	case KindStoreIndexed:
		wantInputs(n, 3, report)
	case KindReduction:
		wantInputs(n, 4, report)
	case KindParallelRange:
		wantInputs(n, 4, report)
	case KindParallelIndex, KindPi, KindLoadField, KindConvert, KindNeg, KindNot:
		wantInputs(n, 1, report)
	case KindStoreField, KindCompare:
		wantInputs(n, 2, report)
	default:
		if n.Kind.IsBinary() {
			wantInputs(n, 2, report)
		}
	}
}

func wantInputs(n *Node, want int, report func(NodeID, string, ...any)) {
	if len(n.inputs) != want {
		report(n.id, "%s has %d inputs, want %d", n.Kind, len(n.inputs), want)
	}
}

func count(ids []NodeID, id NodeID) int {
	c := 0
	for _, x := range ids {
		if x == id {
			c++
		}
	}
	return c
}

func allUsersOf(g *Graph, n *Node, k Kind) bool {
	for _, u := range n.usages {
		if g.nodes[u].Kind != k {
			return false
		}
	}
	return true
}
