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

// phiRegs allocates one register per phi of owner and binds the phis to
// them.
func (ctx *Context) phiRegs(owner graph.NodeID) ([]graph.NodeID, []lir.Reg) {
	phis := ctx.Graph.Phis(owner)
	regs := make([]lir.Reg, len(phis))
	for i, p := range phis {
		t := ctx.Graph.Node(p).Type
		regs[i] = ctx.B.NewReg(t)
		ctx.Define(p, lir.R(regs[i], t))
	}
	return phis, regs
}

// assignPhis copies input `in` of every phi into its register. With more
// than one phi the values are read into temporaries first so a phi reading
// another phi sees the old value.
func (ctx *Context) assignPhis(phis []graph.NodeID, regs []lir.Reg, in int) error {
	vals := make([]lir.Operand, len(phis))
	for i, p := range phis {
		v, err := ctx.Value(ctx.Graph.Node(p).Input(in))
		if err != nil {
			return err
		}
		vals[i] = v
	}
	if len(phis) > 1 {
		for i, v := range vals {
			if v.Kind == lir.OperandReg {
				tmp := ctx.B.NewReg(v.Type)
				ctx.B.Assign(tmp, v)
				vals[i] = lir.R(tmp, v.Type)
			}
		}
	}
	for i, v := range vals {
		ctx.B.Assign(regs[i], v)
	}
	return nil
}

func genIf(ctx *Context, n *graph.Node) error {
	cond, err := ctx.Value(n.Input(0))
	if err != nil {
		return err
	}
	phis, regs := ctx.phiRegs(n.ID())
	ctx.B.IfBegin(cond)
	if err := ctx.LowerBlock(n.Blocks[0]); err != nil {
		return err
	}
	if err := ctx.assignPhis(phis, regs, 1); err != nil {
		return err
	}
	if ctx.Graph.Block(n.Blocks[1]).Len() > 0 || len(phis) > 0 {
		ctx.B.At(n.ID())
		ctx.B.Else()
		if err := ctx.LowerBlock(n.Blocks[1]); err != nil {
			return err
		}
		if err := ctx.assignPhis(phis, regs, 2); err != nil {
			return err
		}
	}
	ctx.B.At(n.ID())
	ctx.B.IfEnd()
	return nil
}

// genLoop lowers a sequential loop to LoopBegin/BreakUnless/LoopEnd. A loop
// flagged parallel has already had its iteration space mapped to the range
// marker in front of it, so only the exit comparison survives, as a guard
// around the body for work items past the trip count.
func genLoop(ctx *Context, n *graph.Node) error {
	header, body := n.Blocks[0], n.Blocks[1]
	if n.Has(graph.FlagParallel) {
		if err := ctx.LowerBlock(header); err != nil {
			return err
		}
		cond, err := ctx.Value(n.Input(0))
		if err != nil {
			return err
		}
		ctx.B.At(n.ID())
		ctx.B.IfBegin(cond)
		if err := ctx.LowerBlock(body); err != nil {
			return err
		}
		ctx.B.At(n.ID())
		ctx.B.IfEnd()
		return nil
	}

	phis, regs := ctx.phiRegs(n.ID())
	if err := ctx.assignPhis(phis, regs, 1); err != nil {
		return err
	}
	ctx.B.LoopBegin()
	if err := ctx.LowerBlock(header); err != nil {
		return err
	}
	cond, err := ctx.Value(n.Input(0))
	if err != nil {
		return err
	}
	ctx.B.At(n.ID())
	ctx.B.BreakUnless(cond)
	if err := ctx.LowerBlock(body); err != nil {
		return err
	}
	ctx.B.At(n.ID())
	if err := ctx.assignPhis(phis, regs, 2); err != nil {
		return err
	}
	ctx.B.LoopEnd()
	return nil
}

// genRange computes the index of a parallel dimension:
// offset + stride * global id.
func genRange(ctx *Context, n *graph.Node) error {
	dim, t := n.Index, n.Type
	if dim >= ctx.Target.Caps.MaxDims {
		return ctx.Unsupported(n, "dimension %d exceeds the %d dimensions of %s", dim, ctx.Target.Caps.MaxDims, ctx.Target.Name)
	}
	offset, err := ctx.Value(n.Input(0))
	if err != nil {
		return err
	}
	stride, err := ctx.Value(n.Input(1))
	if err != nil {
		return err
	}

	var gid lir.Operand
	if ctx.Target.Caps.GlobalIDBuiltin {
		gid = ctx.B.Builtin(lir.GlobalID, dim, t)
	} else {
		tid := ctx.B.Builtin(lir.ThreadID, dim, t)
		bid := ctx.B.Builtin(lir.BlockID, dim, t)
		bdim := ctx.B.Builtin(lir.BlockDim, dim, t)
		gid = ctx.B.Binary(graph.KindAdd, t, ctx.B.Binary(graph.KindMul, t, bid, bdim), tid)
	}
	idx := gid
	if !(stride.IsImm() && stride.Imm.I == 1) {
		idx = ctx.B.Binary(graph.KindMul, t, stride, idx)
	}
	if !(offset.IsImm() && offset.Imm.I == 0) {
		idx = ctx.B.Binary(graph.KindAdd, t, offset, idx)
	}
	ctx.Define(n.ID(), idx)
	return nil
}
