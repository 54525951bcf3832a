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

// NodeID is a stable handle into a Graph's node arena. The zero value is
// never a valid node.
type NodeID int32

// BlockID is a handle into a Graph's block table. The entry block is 0.
type BlockID int32

// NoBlock is the block of floating and unscheduled nodes.
const NoBlock BlockID = -1

// Node is one vertex of the graph. The exported payload fields are plain
// data owned by the passes; edges and scheduling are only changed through
// Graph methods so input and usage lists stay symmetric.
type Node struct {
	id     NodeID
	inputs []NodeID
	usages []NodeID
	block  BlockID
	dead   bool

	Kind Kind
	Type Type
	Name string

	// Index is the parameter position of a Param, the lane of a
	// LoadField/StoreField, the dimension of a ParallelRange and the element
	// count of NewArray/NewLocalArray.
	Index int

	Lit       Lit
	Cond      Cond
	Intrinsic Intrinsic
	Op        ReduceOp
	Flags     Flags

	// Blocks are (then, else) for If and (header, body) for Loop.
	Blocks [2]BlockID

	// Platform is the backend kind name assigned once lowering starts.
	Platform string
}

func (n *Node) ID() NodeID { return n.id }

// Inputs returns the data inputs in order. The slice must not be modified.
func (n *Node) Inputs() []NodeID { return n.inputs }

// Input returns input i.
func (n *Node) Input(i int) NodeID {
	if i < 0 || i >= len(n.inputs) {
		invariant(n.id, "%s has no input %d", n.Kind, i)
	}
	return n.inputs[i]
}

func (n *Node) NumInputs() int { return len(n.inputs) }

// Usages returns the users of n, one entry per input edge. The slice must
// not be modified.
func (n *Node) Usages() []NodeID { return n.usages }

// Block returns the block n is scheduled in, or NoBlock.
func (n *Node) Block() BlockID { return n.block }

// Scheduled reports whether n sits in a block.
func (n *Node) Scheduled() bool { return n.block != NoBlock }

// Has reports whether all of f are set on n.
func (n *Node) Has(f Flags) bool { return n.Flags&f == f }

// Block is an ordered schedule of fixed nodes, owned by a control node.
type Block struct {
	id    BlockID
	nodes []NodeID

	// Owner is the If or Loop owning this block, 0 for the entry block.
	Owner NodeID
	Arm   Arm
}

func (b *Block) ID() BlockID { return b.id }

// Nodes returns the schedule. The slice must not be modified.
func (b *Block) Nodes() []NodeID { return b.nodes }

func (b *Block) Len() int { return len(b.nodes) }
