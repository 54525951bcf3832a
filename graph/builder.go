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

// CountedLoop appends `for iv := init; iv <cond> bound; iv += step` to block
// b. The induction phi, its increment and the exit comparison are created;
// the caller fills the body block of the returned loop.
func (g *Graph) CountedLoop(b BlockID, t Type, init, bound, step NodeID, cond Cond) (loop, iv NodeID) {
	loop = g.NewLoop(b)
	n := g.Node(loop)
	iv = g.NewPhi(loop, t, init)
	cmp := g.Emit(n.Blocks[0], KindCompare, TBool, iv, bound)
	g.Node(cmp).Cond = cond
	g.SetLoopCondition(loop, cmp)
	next := g.Emit(n.Blocks[1], KindAdd, t, iv, step)
	g.AddInput(iv, next)
	return loop, iv
}

// Header returns the header block of a loop.
func (g *Graph) Header(loop NodeID) BlockID { return g.Node(loop).Blocks[0] }

// Body returns the body block of a loop.
func (g *Graph) Body(loop NodeID) BlockID { return g.Node(loop).Blocks[1] }

// Then returns the then block of an If.
func (g *Graph) Then(ifn NodeID) BlockID { return g.Node(ifn).Blocks[0] }

// Else returns the else block of an If.
func (g *Graph) Else(ifn NodeID) BlockID { return g.Node(ifn).Blocks[1] }

// Compare appends a comparison to b.
func (g *Graph) Compare(b BlockID, cond Cond, x, y NodeID) NodeID {
	id := g.Emit(b, KindCompare, TBool, x, y)
	g.Node(id).Cond = cond
	return id
}

// Load appends arr[idx] to b.
func (g *Graph) Load(b BlockID, arr, idx NodeID) NodeID {
	return g.Emit(b, KindLoadIndexed, g.Node(arr).Type.Elem(), arr, idx)
}

// Store appends arr[idx] = v to b.
func (g *Graph) Store(b BlockID, arr, idx, v NodeID) NodeID {
	return g.Emit(b, KindStoreIndexed, TVoid, arr, idx, v)
}

// Binary appends a two-input arithmetic node typed like x.
func (g *Graph) Binary(b BlockID, kind Kind, x, y NodeID) NodeID {
	return g.Emit(b, kind, g.Node(x).Type, x, y)
}

// Call appends an intrinsic call.
func (g *Graph) Call(b BlockID, fn Intrinsic, t Type, args ...NodeID) NodeID {
	id := g.Emit(b, KindIntrinsic, t, args...)
	g.Node(id).Intrinsic = fn
	return id
}
