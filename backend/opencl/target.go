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

// Package opencl is the OpenCL C backend: it prints a lir.Kernel as a
// __kernel function in OpenCL C 1.2.
package opencl

import (
	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/target"
)

// Name is the backend selector.
const Name = "opencl"

var (
	ints   = []graph.Prim{graph.I8, graph.I16, graph.I32, graph.I64, graph.U8, graph.U16, graph.U32, graph.U64}
	floats = []graph.Prim{graph.F32, graph.F64}
)

// Target returns the OpenCL C vocabulary.
func Target() *target.Target {
	t := &target.Target{
		Name:   Name,
		Format: target.Text,
		Caps: target.Caps{
			Reduction:        target.LocalTree,
			GlobalIDBuiltin:  true,
			MaxDims:          3,
			VectorLanes:      []int{2, 3, 4, 8, 16},
			Prims:            append(append([]graph.Prim{}, ints...), floats...),
			DefaultLocalSize: 64,
		},
		TypeMap: map[graph.Prim]string{
			graph.I8:  "char",
			graph.I16: "short",
			graph.I32: "int",
			graph.I64: "long",
			graph.U8:  "uchar",
			graph.U16: "ushort",
			graph.U32: "uint",
			graph.U64: "ulong",
			graph.F32: "float",
			graph.F64: "double",
		},
		IntrinsicMap: map[graph.Intrinsic]target.OpInfo{
			graph.IntrinsicSqrt:          {Name: "sqrt", Prims: floats},
			graph.IntrinsicExp:           {Name: "exp", Prims: floats},
			graph.IntrinsicExp2:          {Name: "exp2", Prims: floats},
			graph.IntrinsicLog:           {Name: "log", Prims: floats},
			graph.IntrinsicLog2:          {Name: "log2", Prims: floats},
			graph.IntrinsicSin:           {Name: "sin", Prims: floats},
			graph.IntrinsicCos:           {Name: "cos", Prims: floats},
			graph.IntrinsicTan:           {Name: "tan", Prims: floats},
			graph.IntrinsicPow:           {Name: "pow", Prims: floats},
			graph.IntrinsicFabs:          {Name: "fabs", Prims: floats},
			graph.IntrinsicFloor:         {Name: "floor", Prims: floats},
			graph.IntrinsicCeil:          {Name: "ceil", Prims: floats},
			graph.IntrinsicRint:          {Name: "rint", Prims: floats},
			graph.IntrinsicFma:           {Name: "fma", Prims: floats},
			graph.IntrinsicMin:           {Name: "min"},
			graph.IntrinsicMax:           {Name: "max"},
			graph.IntrinsicClamp:         {Name: "clamp"},
			graph.IntrinsicAbs:           {Name: "abs", Prims: ints},
			graph.IntrinsicPopCount:      {Name: "popcount", Prims: ints},
			graph.IntrinsicClz:           {Name: "clz", Prims: ints},
			graph.IntrinsicDot:           {Name: "dot", Prims: floats},
			graph.IntrinsicLocalBarrier:  {Name: "barrier"},
			graph.IntrinsicGlobalBarrier: {Name: "barrier"},
		},
		AtomicMap: atomics(),
		Spaces: map[lir.Space]string{
			lir.SpaceGlobal:   "__global",
			lir.SpaceLocal:    "__local",
			lir.SpacePrivate:  "__private",
			lir.SpaceConstant: "__constant",
		},
		Barriers: map[lir.Space]string{
			lir.SpaceLocal:  "barrier(CLK_LOCAL_MEM_FENCE)",
			lir.SpaceGlobal: "barrier(CLK_GLOBAL_MEM_FENCE)",
		},
		Builtins: map[lir.Builtin]string{
			lir.GlobalID:   "get_global_id",
			lir.ThreadID:   "get_local_id",
			lir.BlockID:    "get_group_id",
			lir.BlockDim:   "get_local_size",
			lir.GridDim:    "get_num_groups",
			lir.GlobalSize: "get_global_size",
		},
	}
	t.IntrinsicMap[graph.IntrinsicAtomicFetchAdd] = target.OpInfo{Name: "atomic_add"}
	t.Registry = target.NewRegistryFor(t)
	return t
}

// atomics lists the atomic encodings: native functions for integer add and
// sub, compare-and-swap helpers for everything else.
func atomics() map[target.AtomicKey]target.OpInfo {
	m := make(map[target.AtomicKey]target.OpInfo)
	for _, p := range []graph.Prim{graph.I32, graph.U32} {
		m[target.AtomicKey{Op: graph.ReduceAdd, Prim: p}] = target.OpInfo{Name: "atomic_add"}
		m[target.AtomicKey{Op: graph.ReduceSub, Prim: p}] = target.OpInfo{Name: "atomic_sub"}
	}
	for _, p := range []graph.Prim{graph.I64, graph.U64} {
		m[target.AtomicKey{Op: graph.ReduceAdd, Prim: p}] = target.OpInfo{Name: "atom_add"}
		m[target.AtomicKey{Op: graph.ReduceSub, Prim: p}] = target.OpInfo{Name: "atom_sub"}
	}
	for _, p := range floats {
		for _, op := range []graph.ReduceOp{graph.ReduceAdd, graph.ReduceSub} {
			m[target.AtomicKey{Op: op, Prim: p}] = target.OpInfo{Name: helperName(op, p)}
		}
	}
	for _, p := range []graph.Prim{graph.I32, graph.U32, graph.I64, graph.U64, graph.F32, graph.F64} {
		m[target.AtomicKey{Op: graph.ReduceMul, Prim: p}] = target.OpInfo{Name: helperName(graph.ReduceMul, p)}
	}
	return m
}

// Backend implements the compiler backend contract for OpenCL C.
type Backend struct {
	target *target.Target
}

// New returns the OpenCL C backend.
func New() *Backend { return &Backend{target: Target()} }

func (b *Backend) Name() string { return Name }

func (b *Backend) Target() *target.Target { return b.target }

// Generators returns base unchanged: OpenCL C spells every default lowering
// directly, including native vectors of every width.
func (b *Backend) Generators(base lower.Table) lower.Table { return base }

func (b *Backend) Emit(k *lir.Kernel) ([]byte, error) { return Emit(k, b.target) }
