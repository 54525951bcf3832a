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
	"github.com/ajroetker/go-kernelc/graph"
)

func runAccess(ctx *Context) error {
	ctx.Result.Access = AccessModes(ctx.Graph)
	ctx.Log.V(2).Info("pass complete", "pass", PassAccess, "params", len(ctx.Result.Access))
	return nil
}

// AccessModes classifies every parameter of g, in declaration order. Array
// parameters are classified by a breadth-first walk of their uses; scalar
// parameters are READ when used at all. The graph is not modified.
func AccessModes(g *graph.Graph) []graph.Access {
	params := g.Params()
	out := make([]graph.Access, len(params))
	for i, p := range params {
		n := g.Node(p)
		if !n.Type.Array {
			if len(n.Usages()) > 0 {
				out[i] = graph.AccessRead
			}
			continue
		}
		out[i] = arrayAccess(g, p)
	}
	return out
}

func arrayAccess(g *graph.Graph, p graph.NodeID) graph.Access {
	var (
		mode   graph.Access
		writes []graph.NodeID
	)
	queue := []graph.NodeID{p}
	seen := map[graph.NodeID]bool{p: true}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, u := range g.Node(id).Usages() {
			if seen[u] {
				continue
			}
			n := g.Node(u)
			direct := n.Input(0) == id
			switch {
			case n.Kind == graph.KindPi:
				seen[u] = true
				queue = append(queue, u)
			case (n.Kind == graph.KindLoadIndexed || n.Kind == graph.KindLoadField) && direct:
				mode |= graph.AccessRead
			case (n.Kind == graph.KindStoreIndexed || n.Kind == graph.KindStoreField) && direct:
				mode |= graph.AccessWrite
				writes = append(writes, u)
			case n.Kind == graph.KindReduction && direct:
				mode |= graph.AccessReadWrite
			case n.Kind == graph.KindIntrinsic && n.Intrinsic == graph.IntrinsicAtomicFetchAdd && direct:
				mode |= graph.AccessReadWrite
			case n.Kind == graph.KindCall:
				// Unknown callee: assume it reads and writes.
				mode |= graph.AccessReadWrite
			}
			seen[u] = true
		}
	}
	if mode.Writes() && impliesRead(g, writes) {
		mode |= graph.AccessRead
	}
	return mode
}

// impliesRead reports whether every write is conditional and no single
// branch writes in both arms: the other path keeps the prior contents, so
// they must reach the device.
func impliesRead(g *graph.Graph, writes []graph.NodeID) bool {
	if len(writes) == 0 {
		return false
	}
	arms := make(map[graph.NodeID]map[graph.Arm]bool)
	for _, w := range writes {
		ifn, arm := g.EnclosingIf(w)
		if ifn == 0 {
			return false
		}
		if arms[ifn] == nil {
			arms[ifn] = make(map[graph.Arm]bool)
		}
		arms[ifn][arm] = true
	}
	for _, a := range arms {
		if a[graph.ArmThen] && a[graph.ArmElse] {
			return false
		}
	}
	return true
}
