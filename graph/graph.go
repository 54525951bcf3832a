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

// Package graph is the kernel intermediate representation shared by every
// pass: an arena of typed nodes connected by symmetric input/usage edges,
// scheduled into structured blocks owned by If and Loop nodes.
//
// Value nodes (arithmetic, loads, intrinsics) are scheduled into exactly one
// block. Constants, parameters, phis, type-narrowing proxies and parallel
// indices float: they belong to no block and are materialized by whoever
// uses them. A phi takes its owning control node as input 0, followed by
// (init, backedge) for a Loop or (then, else) for an If.
//
// Passes own a Graph exclusively while they run; a Graph must not be shared
// between goroutines.
package graph

import (
	"math"
	"slices"
)

// Graph owns a set of nodes and blocks.
type Graph struct {
	Name string

	nodes  []*Node
	blocks []*Block
	params []NodeID
	consts map[constKey]NodeID
}

type constKey struct {
	t Type
	i int64
	f uint64
}

// New returns an empty graph with its entry block.
func New(name string) *Graph {
	g := &Graph{
		Name:   name,
		nodes:  []*Node{nil},
		consts: make(map[constKey]NodeID),
	}
	g.newBlock(0, ArmEntry)
	return g
}

// Entry returns the entry block.
func (g *Graph) Entry() BlockID { return 0 }

// Node returns the live node id. It panics with an InvariantError for the
// zero handle, an unknown handle or a removed node.
func (g *Graph) Node(id NodeID) *Node {
	if id <= 0 || int(id) >= len(g.nodes) {
		invariant(id, "dangling node handle")
	}
	n := g.nodes[id]
	if n.dead {
		invariant(id, "%s used after removal", n.Kind)
	}
	return n
}

// Live reports whether id names a node that has not been removed.
func (g *Graph) Live(id NodeID) bool {
	return id > 0 && int(id) < len(g.nodes) && !g.nodes[id].dead
}

// NodeIDs returns every live node in creation order.
func (g *Graph) NodeIDs() []NodeID {
	out := make([]NodeID, 0, len(g.nodes))
	for _, n := range g.nodes[1:] {
		if !n.dead {
			out = append(out, n.id)
		}
	}
	return out
}

// NumNodes returns the number of live nodes.
func (g *Graph) NumNodes() int {
	count := 0
	for _, n := range g.nodes[1:] {
		if !n.dead {
			count++
		}
	}
	return count
}

// Block returns block b.
func (g *Graph) Block(b BlockID) *Block {
	if b < 0 || int(b) >= len(g.blocks) {
		invariant(0, "dangling block handle %d", b)
	}
	return g.blocks[b]
}

// NumBlocks returns the number of blocks, including emptied ones.
func (g *Graph) NumBlocks() int { return len(g.blocks) }

// Params returns the parameters in declaration order.
func (g *Graph) Params() []NodeID { return slices.Clone(g.params) }

func (g *Graph) newNode(kind Kind, t Type) *Node {
	n := &Node{id: NodeID(len(g.nodes)), Kind: kind, Type: t, block: NoBlock}
	g.nodes = append(g.nodes, n)
	return n
}

func (g *Graph) newBlock(owner NodeID, arm Arm) BlockID {
	id := BlockID(len(g.blocks))
	g.blocks = append(g.blocks, &Block{id: id, Owner: owner, Arm: arm})
	return id
}

// AddParam declares the next kernel parameter.
func (g *Graph) AddParam(name string, t Type) NodeID {
	n := g.newNode(KindParam, t)
	n.Name = name
	n.Index = len(g.params)
	g.params = append(g.params, n.id)
	return n.id
}

// Const returns the unique constant node of type t and value l.
func (g *Graph) Const(t Type, l Lit) NodeID {
	key := constKey{t: t, i: l.I, f: math.Float64bits(l.F)}
	if id, ok := g.consts[key]; ok {
		return id
	}
	n := g.newNode(KindConst, t)
	n.Lit = l
	g.consts[key] = n.id
	return n.id
}

// ConstInt returns the integer constant v of type t.
func (g *Graph) ConstInt(t Type, v int64) NodeID { return g.Const(t, IntLit(v)) }

// ConstFloat returns the floating-point constant v of type t.
func (g *Graph) ConstFloat(t Type, v float64) NodeID { return g.Const(t, FloatLit(v)) }

// Add creates an unscheduled node. Floating kinds stay unscheduled; fixed
// kinds must be placed with Place or PlaceBefore.
func (g *Graph) Add(kind Kind, t Type, inputs ...NodeID) NodeID {
	n := g.newNode(kind, t)
	for _, in := range inputs {
		g.addEdge(n, in)
	}
	return n.id
}

// Emit creates a node and appends it to block b.
func (g *Graph) Emit(b BlockID, kind Kind, t Type, inputs ...NodeID) NodeID {
	id := g.Add(kind, t, inputs...)
	g.Place(b, id)
	return id
}

func (g *Graph) addEdge(n *Node, in NodeID) {
	src := g.Node(in)
	n.inputs = append(n.inputs, in)
	src.usages = append(src.usages, n.id)
}

func (g *Graph) dropUsage(in NodeID, user NodeID) {
	src := g.Node(in)
	i := slices.Index(src.usages, user)
	if i < 0 {
		invariant(in, "missing usage back-reference from node %d", user)
	}
	src.usages = slices.Delete(src.usages, i, i+1)
}

// AddInput appends in to the inputs of id.
func (g *Graph) AddInput(id, in NodeID) { g.addEdge(g.Node(id), in) }

// SetInput replaces input i of id with in.
func (g *Graph) SetInput(id NodeID, i int, in NodeID) {
	n := g.Node(id)
	old := n.Input(i)
	if old == in {
		return
	}
	g.dropUsage(old, id)
	n.inputs[i] = in
	g.Node(in).usages = append(g.Node(in).usages, id)
}

// ReplaceAtUsages redirects every use of old to repl.
func (g *Graph) ReplaceAtUsages(old, repl NodeID) {
	g.ReplaceAtUsagesIf(old, repl, func(*Node) bool { return true })
}

// ReplaceAtUsagesIf redirects the uses of old held by users accepted by keep.
func (g *Graph) ReplaceAtUsagesIf(old, repl NodeID, keep func(user *Node) bool) {
	if old == repl {
		return
	}
	for _, user := range slices.Clone(g.Node(old).usages) {
		u := g.Node(user)
		if !keep(u) {
			continue
		}
		for i, in := range u.inputs {
			if in == old {
				g.SetInput(user, i, repl)
			}
		}
	}
}

// Remove deletes id. The node must have no usages and, for control nodes,
// empty blocks. Its inputs are cleared first, which also removes the
// matching usage back-references.
func (g *Graph) Remove(id NodeID) {
	n := g.Node(id)
	if n.Kind == KindParam {
		invariant(id, "parameters cannot be removed")
	}
	if len(n.usages) > 0 {
		invariant(id, "removing %s with %d usages", n.Kind, len(n.usages))
	}
	if n.Kind.IsControl() {
		for _, b := range n.Blocks {
			if g.Block(b).Len() > 0 {
				invariant(id, "removing %s with a non-empty %s block", n.Kind, g.Block(b).Arm)
			}
		}
	}
	for _, in := range n.inputs {
		g.dropUsage(in, id)
	}
	n.inputs = nil
	if n.Scheduled() {
		g.Unplace(id)
	}
	if n.Kind == KindConst {
		delete(g.consts, constKey{t: n.Type, i: n.Lit.I, f: math.Float64bits(n.Lit.F)})
	}
	n.dead = true
}

// Place appends id to the end of block b.
func (g *Graph) Place(b BlockID, id NodeID) {
	n := g.checkPlaceable(id)
	blk := g.Block(b)
	blk.nodes = append(blk.nodes, id)
	n.block = b
}

// PlaceBefore schedules id immediately before anchor.
func (g *Graph) PlaceBefore(anchor, id NodeID) {
	n := g.checkPlaceable(id)
	a := g.Node(anchor)
	if !a.Scheduled() {
		invariant(anchor, "anchor %s is not scheduled", a.Kind)
	}
	blk := g.Block(a.block)
	i := slices.Index(blk.nodes, anchor)
	blk.nodes = slices.Insert(blk.nodes, i, id)
	n.block = a.block
}

func (g *Graph) checkPlaceable(id NodeID) *Node {
	n := g.Node(id)
	if n.Kind.IsFloating() {
		invariant(id, "%s nodes float and cannot be scheduled", n.Kind)
	}
	if n.Scheduled() {
		invariant(id, "%s is already scheduled in block %d", n.Kind, n.block)
	}
	return n
}

// Unplace removes id from its block. The node stays alive.
func (g *Graph) Unplace(id NodeID) {
	n := g.Node(id)
	if !n.Scheduled() {
		return
	}
	blk := g.Block(n.block)
	i := slices.Index(blk.nodes, id)
	if i < 0 {
		invariant(id, "schedule of block %d lost the node", n.block)
	}
	blk.nodes = slices.Delete(blk.nodes, i, i+1)
	n.block = NoBlock
}

// NewIf schedules a two-way branch on cond at the end of b and creates its
// then and else blocks.
func (g *Graph) NewIf(b BlockID, cond NodeID) NodeID {
	id := g.Emit(b, KindIf, TVoid, cond)
	n := g.Node(id)
	n.Blocks = [2]BlockID{g.newBlock(id, ArmThen), g.newBlock(id, ArmElse)}
	return id
}

// NewLoop schedules a loop at the end of b and creates its header and body
// blocks. The exit condition is attached with SetLoopCondition once the
// header has been filled.
func (g *Graph) NewLoop(b BlockID) NodeID {
	id := g.Emit(b, KindLoop, TVoid)
	n := g.Node(id)
	n.Blocks = [2]BlockID{g.newBlock(id, ArmHeader), g.newBlock(id, ArmBody)}
	return id
}

// SetLoopCondition sets the value computed in the header that keeps the loop
// running while true.
func (g *Graph) SetLoopCondition(loop, cond NodeID) {
	n := g.Node(loop)
	if n.Kind != KindLoop {
		invariant(loop, "%s is not a loop", n.Kind)
	}
	if len(n.inputs) == 0 {
		g.AddInput(loop, cond)
		return
	}
	g.SetInput(loop, 0, cond)
}

// NewPhi creates a merge value owned by the If or Loop owner. Loop phis are
// usually created with their initial value only and receive the backedge
// value through AddInput once the body exists.
func (g *Graph) NewPhi(owner NodeID, t Type, values ...NodeID) NodeID {
	if k := g.Node(owner).Kind; !k.IsControl() {
		invariant(owner, "phi owner must be an If or Loop, got %s", k)
	}
	return g.Add(KindPhi, t, append([]NodeID{owner}, values...)...)
}

// Phis returns the phis owned by the control node owner, in creation order.
func (g *Graph) Phis(owner NodeID) []NodeID {
	var out []NodeID
	for _, u := range g.Node(owner).usages {
		n := g.Node(u)
		if n.Kind == KindPhi && n.inputs[0] == owner && !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	slices.Sort(out)
	return out
}

// Owners returns the control nodes enclosing id, innermost first. A phi is
// enclosed by its owner. Other floating nodes have no owners.
func (g *Graph) Owners(id NodeID) []NodeID {
	n := g.Node(id)
	var out []NodeID
	b := n.block
	if n.Kind == KindPhi {
		owner := g.Node(n.inputs[0])
		out = append(out, owner.id)
		b = owner.block
	}
	for b != NoBlock {
		owner := g.Block(b).Owner
		if owner == 0 {
			break
		}
		out = append(out, owner)
		b = g.Node(owner).block
	}
	return out
}

// EnclosingLoop returns the innermost loop around id, or 0.
func (g *Graph) EnclosingLoop(id NodeID) NodeID {
	for _, o := range g.Owners(id) {
		if g.Node(o).Kind == KindLoop {
			return o
		}
	}
	return 0
}

// EnclosingIf returns the innermost If around id and the arm id sits in, or
// (0, ArmEntry). Loops are looked through.
func (g *Graph) EnclosingIf(id NodeID) (NodeID, Arm) {
	n := g.Node(id)
	b := n.block
	if n.Kind == KindPhi {
		b = g.Node(n.inputs[0]).block
	}
	for b != NoBlock {
		blk := g.Block(b)
		if blk.Owner == 0 {
			break
		}
		if blk.Arm == ArmThen || blk.Arm == ArmElse {
			return blk.Owner, blk.Arm
		}
		b = g.Node(blk.Owner).block
	}
	return 0, ArmEntry
}

// Inside reports whether id is nested, at any depth, in a block of ctrl.
func (g *Graph) Inside(id, ctrl NodeID) bool {
	return slices.Contains(g.Owners(id), ctrl)
}

// LoopDepth returns the number of loops enclosing id.
func (g *Graph) LoopDepth(id NodeID) int {
	depth := 0
	for _, o := range g.Owners(id) {
		if g.Node(o).Kind == KindLoop {
			depth++
		}
	}
	return depth
}

// Walk visits every node scheduled under block b in schedule order. A
// control node is visited before the contents of its blocks.
func (g *Graph) Walk(b BlockID, fn func(n *Node)) {
	for _, id := range slices.Clone(g.Block(b).nodes) {
		if !g.Live(id) {
			continue
		}
		n := g.nodes[id]
		fn(n)
		if n.Kind.IsControl() {
			g.Walk(n.Blocks[0], fn)
			g.Walk(n.Blocks[1], fn)
		}
	}
}

// Schedule returns every scheduled node in Walk order.
func (g *Graph) Schedule() []NodeID {
	var out []NodeID
	g.Walk(g.Entry(), func(n *Node) { out = append(out, n.id) })
	return out
}

// OfKind returns the live nodes of kind k in creation order.
func (g *Graph) OfKind(k Kind) []NodeID {
	var out []NodeID
	for _, n := range g.nodes[1:] {
		if !n.dead && n.Kind == k {
			out = append(out, n.id)
		}
	}
	return out
}

// Strip follows type-narrowing proxies back to the value they refine.
func (g *Graph) Strip(id NodeID) NodeID {
	for {
		n := g.Node(id)
		if n.Kind != KindPi {
			return id
		}
		id = n.inputs[0]
	}
}

// Uniform reports whether id is computed only from constants and
// parameters, so every work item observes the same value.
func (g *Graph) Uniform(id NodeID) bool {
	n := g.Node(id)
	switch {
	case n.Kind == KindConst, n.Kind == KindParam:
		return true
	case n.Kind == KindPi, n.Kind == KindConvert, n.Kind == KindNeg, n.Kind == KindNot:
		return g.Uniform(n.inputs[0])
	case n.Kind.IsBinary():
		return g.Uniform(n.inputs[0]) && g.Uniform(n.inputs[1])
	}
	return false
}

// SameValue reports whether a and b are the same value: the same node after
// stripping proxies, or equal constants.
func (g *Graph) SameValue(a, b NodeID) bool {
	a, b = g.Strip(a), g.Strip(b)
	if a == b {
		return true
	}
	na, nb := g.Node(a), g.Node(b)
	return na.Kind == KindConst && nb.Kind == KindConst &&
		na.Type == nb.Type && na.Lit == nb.Lit
}
