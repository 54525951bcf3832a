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

// Package lir is the flat low-level instruction form every backend emits
// from. A Kernel is an ordered list of instructions over virtual registers,
// immediates, parameters and memory addresses tagged with a memory space.
// Structured control flow is expressed with bracketing instructions
// (IfBegin/Else/IfEnd, LoopBegin/BreakUnless/LoopEnd).
package lir

import (
	"fmt"

	"github.com/ajroetker/go-kernelc/graph"
)

// Space is a memory space qualifier.
type Space uint8

const (
	SpaceNone Space = iota
	SpaceGlobal
	SpaceLocal
	SpacePrivate
	SpaceConstant
)

func (s Space) String() string {
	switch s {
	case SpaceNone:
		return "none"
	case SpaceGlobal:
		return "global"
	case SpaceLocal:
		return "local"
	case SpacePrivate:
		return "private"
	case SpaceConstant:
		return "constant"
	}
	return fmt.Sprintf("space(%d)", s)
}

// Builtin is a hardware thread-index register.
type Builtin uint8

const (
	ThreadID   Builtin = iota // id within the work-group
	BlockID                   // work-group id
	BlockDim                  // work-group size
	GridDim                   // number of work-groups
	GlobalID                  // BlockID*BlockDim + ThreadID
	GlobalSize                // BlockDim*GridDim
)

func (b Builtin) String() string {
	switch b {
	case ThreadID:
		return "thread_id"
	case BlockID:
		return "block_id"
	case BlockDim:
		return "block_dim"
	case GridDim:
		return "grid_dim"
	case GlobalID:
		return "global_id"
	case GlobalSize:
		return "global_size"
	}
	return fmt.Sprintf("builtin(%d)", b)
}

// Reg is a virtual register, an index into Kernel.Regs.
type Reg int32

// NoReg marks an instruction without a result.
const NoReg Reg = -1

// OperandKind tags an Operand.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandReg
	OperandImm
	OperandParam
	OperandArray
)

// Operand is an instruction input.
type Operand struct {
	Kind  OperandKind
	Type  graph.Type
	Reg   Reg
	Imm   graph.Lit
	Index int // parameter or array index
}

// R returns a register operand.
func R(r Reg, t graph.Type) Operand { return Operand{Kind: OperandReg, Reg: r, Type: t} }

// Imm returns an immediate operand.
func Imm(t graph.Type, l graph.Lit) Operand { return Operand{Kind: OperandImm, Type: t, Imm: l} }

// IntImm returns an integer immediate.
func IntImm(t graph.Type, v int64) Operand { return Imm(t, graph.IntLit(v)) }

// P returns a parameter operand.
func P(i int, t graph.Type) Operand { return Operand{Kind: OperandParam, Index: i, Type: t} }

// A returns a local or private array operand.
func A(i int, t graph.Type) Operand { return Operand{Kind: OperandArray, Index: i, Type: t} }

func (o Operand) IsImm() bool { return o.Kind == OperandImm }

func (o Operand) String() string {
	switch o.Kind {
	case OperandReg:
		return fmt.Sprintf("r%d", o.Reg)
	case OperandImm:
		return o.Imm.Format(o.Type)
	case OperandParam:
		return fmt.Sprintf("param%d", o.Index)
	case OperandArray:
		return fmt.Sprintf("array%d", o.Index)
	}
	return "_"
}

// Address is an element of an array in a memory space.
type Address struct {
	Space Space
	Base  Operand // OperandParam or OperandArray
	Index Operand
	Elem  graph.Type
}

func (a Address) String() string {
	return fmt.Sprintf("%s %s[%s]", a.Space, a.Base, a.Index)
}

// Op is an instruction opcode.
type Op uint8

const (
	OpAssign      Op = iota // Dst = Args[0]
	OpBinary                // Dst = Args[0] <Kind> Args[1]
	OpUnary                 // Dst = <Kind> Args[0]
	OpCompare               // Dst = Args[0] <Cond> Args[1]
	OpConvert               // Dst = (Type) Args[0]
	OpLoad                  // Dst = *Addr
	OpStore                 // *Addr = Args[0]
	OpIntrinsic             // Dst = Intrinsic(Args...)
	OpBuiltin               // Dst = Builtin(Dim)
	OpAtomic                // [Dst =] atomic Atomic(Addr, Args[0]); Dst receives the old value
	OpBarrier               // barrier on Addr.Space
	OpSplat                 // Dst = vector of Args[0]
	OpInsert                // Dst = Args[0] with lane Lane set to Args[1]
	OpExtract               // Dst = lane Lane of Args[0]
	OpIfBegin               // if Args[0] {
	OpElse                  // } else {
	OpIfEnd                 // }
	OpLoopBegin             // for {
	OpBreakUnless           // if !Args[0] { break }
	OpLoopEnd               // }
	OpReturn
)

var opNames = [...]string{
	OpAssign:      "assign",
	OpBinary:      "binary",
	OpUnary:       "unary",
	OpCompare:     "compare",
	OpConvert:     "convert",
	OpLoad:        "load",
	OpStore:       "store",
	OpIntrinsic:   "intrinsic",
	OpBuiltin:     "builtin",
	OpAtomic:      "atomic",
	OpBarrier:     "barrier",
	OpSplat:       "splat",
	OpInsert:      "insert",
	OpExtract:     "extract",
	OpIfBegin:     "if",
	OpElse:        "else",
	OpIfEnd:       "endif",
	OpLoopBegin:   "loop",
	OpBreakUnless: "breakunless",
	OpLoopEnd:     "endloop",
	OpReturn:      "return",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// Inst is one low-level instruction. Only the fields relevant to Op are set.
type Inst struct {
	Op  Op
	Dst Reg

	// Type is the result type, or the operation type when Dst is NoReg.
	Type graph.Type

	Kind      graph.Kind // OpBinary, OpUnary
	Cond      graph.Cond
	Intrinsic graph.Intrinsic
	Builtin   Builtin
	Atomic    graph.ReduceOp
	Dim       int
	Lane      int

	Args []Operand
	Addr Address

	// Node is the graph node the instruction was generated from, for
	// diagnostics.
	Node graph.NodeID
}

// Param is a kernel parameter declaration.
type Param struct {
	Name   string
	Type   graph.Type
	Space  Space
	Access graph.Access
}

// Array is a work-group local or work-item private array.
type Array struct {
	Name  string
	Space Space
	Elem  graph.Type
	Len   int
}

// RegInfo describes a virtual register.
type RegInfo struct {
	Type graph.Type
	// Mutable registers are assigned more than once.
	Mutable bool
}

// Kernel is a lowered kernel ready for emission.
type Kernel struct {
	Name   string
	Params []Param
	Regs   []RegInfo
	Arrays []Array
	Body   []Inst

	// Dims is the number of parallel dimensions.
	Dims int
	// LocalSize is the required work-group size, or 0 when the host may
	// choose.
	LocalSize int
}

// RegType returns the type of r.
func (k *Kernel) RegType(r Reg) graph.Type { return k.Regs[r].Type }

// Uses reports whether any instruction satisfies pred.
func (k *Kernel) Uses(pred func(*Inst) bool) bool {
	for i := range k.Body {
		if pred(&k.Body[i]) {
			return true
		}
	}
	return false
}

// UsesPrim reports whether any register, parameter or array has element
// primitive p.
func (k *Kernel) UsesPrim(p graph.Prim) bool {
	for _, r := range k.Regs {
		if r.Type.Prim == p {
			return true
		}
	}
	for _, prm := range k.Params {
		if prm.Type.Prim == p {
			return true
		}
	}
	for _, a := range k.Arrays {
		if a.Elem.Prim == p {
			return true
		}
	}
	return false
}
