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

package lir

import (
	"github.com/ajroetker/go-kernelc/graph"
)

// Builder appends instructions to a Kernel.
type Builder struct {
	k    *Kernel
	node graph.NodeID
}

// NewBuilder starts a kernel named name.
func NewBuilder(name string) *Builder {
	return &Builder{k: &Kernel{Name: name}}
}

// Kernel returns the kernel built so far, with Mutable set on every
// register that has more than one definition.
func (b *Builder) Kernel() *Kernel {
	defs := make([]int, len(b.k.Regs))
	for _, inst := range b.k.Body {
		if inst.Dst != NoReg {
			defs[inst.Dst]++
		}
	}
	for r, n := range defs {
		b.k.Regs[r].Mutable = n > 1
	}
	return b.k
}

// At tags subsequently emitted instructions with node.
func (b *Builder) At(node graph.NodeID) { b.node = node }

// AddParam declares the next parameter and returns its operand.
func (b *Builder) AddParam(p Param) Operand {
	b.k.Params = append(b.k.Params, p)
	return P(len(b.k.Params)-1, p.Type)
}

// AddArray declares a local or private array and returns its operand.
func (b *Builder) AddArray(a Array) Operand {
	b.k.Arrays = append(b.k.Arrays, a)
	return A(len(b.k.Arrays)-1, a.Elem)
}

// NewReg allocates a register of type t.
func (b *Builder) NewReg(t graph.Type) Reg {
	b.k.Regs = append(b.k.Regs, RegInfo{Type: t})
	return Reg(len(b.k.Regs) - 1)
}

// Emit appends inst, tagging it with the current node, and returns the
// result register as an operand when there is one.
func (b *Builder) Emit(inst Inst) Operand {
	if inst.Node == 0 {
		inst.Node = b.node
	}
	b.k.Body = append(b.k.Body, inst)
	if inst.Dst == NoReg {
		return Operand{}
	}
	return R(inst.Dst, b.k.Regs[inst.Dst].Type)
}

func (b *Builder) def(op Op, t graph.Type, inst Inst) Operand {
	inst.Op = op
	inst.Type = t
	inst.Dst = b.NewReg(t)
	return b.Emit(inst)
}

// Assign copies src into the existing register dst.
func (b *Builder) Assign(dst Reg, src Operand) {
	b.Emit(Inst{Op: OpAssign, Dst: dst, Type: b.k.Regs[dst].Type, Args: []Operand{src}})
}

// Binary emits x <kind> y.
func (b *Builder) Binary(kind graph.Kind, t graph.Type, x, y Operand) Operand {
	return b.def(OpBinary, t, Inst{Kind: kind, Args: []Operand{x, y}})
}

// BinaryInto emits dst = x <kind> y for an existing register.
func (b *Builder) BinaryInto(dst Reg, kind graph.Kind, x, y Operand) {
	b.Emit(Inst{Op: OpBinary, Dst: dst, Type: b.k.Regs[dst].Type, Kind: kind, Args: []Operand{x, y}})
}

// Unary emits <kind> x.
func (b *Builder) Unary(kind graph.Kind, t graph.Type, x Operand) Operand {
	return b.def(OpUnary, t, Inst{Kind: kind, Args: []Operand{x}})
}

// Compare emits x <cond> y.
func (b *Builder) Compare(cond graph.Cond, x, y Operand) Operand {
	return b.def(OpCompare, graph.TBool, Inst{Cond: cond, Args: []Operand{x, y}})
}

// Convert emits (t) x.
func (b *Builder) Convert(t graph.Type, x Operand) Operand {
	return b.def(OpConvert, t, Inst{Args: []Operand{x}})
}

// Load emits a read of addr.
func (b *Builder) Load(addr Address) Operand {
	return b.def(OpLoad, addr.Elem, Inst{Addr: addr})
}

// Store emits a write of v to addr.
func (b *Builder) Store(addr Address, v Operand) {
	b.Emit(Inst{Op: OpStore, Dst: NoReg, Type: addr.Elem, Addr: addr, Args: []Operand{v}})
}

// Intrinsic emits fn(args...). A void result type emits no destination.
func (b *Builder) Intrinsic(fn graph.Intrinsic, t graph.Type, args ...Operand) Operand {
	if t.Prim == graph.Void && t.Lanes <= 1 {
		b.Emit(Inst{Op: OpIntrinsic, Dst: NoReg, Type: t, Intrinsic: fn, Args: args})
		return Operand{}
	}
	return b.def(OpIntrinsic, t, Inst{Intrinsic: fn, Args: args})
}

// Builtin reads a thread-index register for dimension dim.
func (b *Builder) Builtin(which Builtin, dim int, t graph.Type) Operand {
	return b.def(OpBuiltin, t, Inst{Builtin: which, Dim: dim})
}

// Atomic emits an atomic update of addr with v. When result is true the old
// value is returned in a fresh register.
func (b *Builder) Atomic(op graph.ReduceOp, addr Address, v Operand, result bool) Operand {
	inst := Inst{Op: OpAtomic, Dst: NoReg, Type: addr.Elem, Atomic: op, Addr: addr, Args: []Operand{v}}
	if result {
		inst.Dst = b.NewReg(addr.Elem)
	}
	return b.Emit(inst)
}

// Barrier synchronizes the work-group on space.
func (b *Builder) Barrier(space Space) {
	b.Emit(Inst{Op: OpBarrier, Dst: NoReg, Addr: Address{Space: space}})
}

// Splat broadcasts x to every lane of t.
func (b *Builder) Splat(t graph.Type, x Operand) Operand {
	return b.def(OpSplat, t, Inst{Args: []Operand{x}})
}

// SplatInto broadcasts x into the existing register dst.
func (b *Builder) SplatInto(dst Reg, x Operand) {
	b.Emit(Inst{Op: OpSplat, Dst: dst, Type: b.k.Regs[dst].Type, Args: []Operand{x}})
}

// Insert returns vec with lane replaced by x.
func (b *Builder) Insert(vec Operand, lane int, x Operand) Operand {
	return b.def(OpInsert, vec.Type, Inst{Lane: lane, Args: []Operand{vec, x}})
}

// InsertInto sets lane of the existing vector register dst to x.
func (b *Builder) InsertInto(dst Reg, lane int, x Operand) {
	t := b.k.Regs[dst].Type
	b.Emit(Inst{Op: OpInsert, Dst: dst, Type: t, Lane: lane, Args: []Operand{R(dst, t), x}})
}

// Extract reads lane of vec.
func (b *Builder) Extract(vec Operand, lane int) Operand {
	return b.def(OpExtract, vec.Type.LaneType(), Inst{Lane: lane, Args: []Operand{vec}})
}

// IfBegin opens a conditional region.
func (b *Builder) IfBegin(cond Operand) {
	b.Emit(Inst{Op: OpIfBegin, Dst: NoReg, Args: []Operand{cond}})
}

// Else switches to the alternative of the innermost conditional.
func (b *Builder) Else() { b.Emit(Inst{Op: OpElse, Dst: NoReg}) }

// IfEnd closes the innermost conditional.
func (b *Builder) IfEnd() { b.Emit(Inst{Op: OpIfEnd, Dst: NoReg}) }

// LoopBegin opens an unconditional loop.
func (b *Builder) LoopBegin() { b.Emit(Inst{Op: OpLoopBegin, Dst: NoReg}) }

// BreakUnless leaves the innermost loop when cond is false.
func (b *Builder) BreakUnless(cond Operand) {
	b.Emit(Inst{Op: OpBreakUnless, Dst: NoReg, Args: []Operand{cond}})
}

// LoopEnd closes the innermost loop.
func (b *Builder) LoopEnd() { b.Emit(Inst{Op: OpLoopEnd, Dst: NoReg}) }

// Return ends the kernel for this work item.
func (b *Builder) Return() { b.Emit(Inst{Op: OpReturn, Dst: NoReg}) }
