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

package spirv

import (
	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/target"
)

// Name is the backend selector.
const Name = "spirv"

var (
	ints   = []graph.Prim{graph.I8, graph.I16, graph.I32, graph.I64, graph.U8, graph.U16, graph.U32, graph.U64}
	floats = []graph.Prim{graph.F32, graph.F64}
)

// Target returns the SPIR-V vocabulary.
func Target() *target.Target {
	t := &target.Target{
		Name:   Name,
		Format: target.Binary,
		Caps: target.Caps{
			Reduction:        target.LocalTree,
			GlobalIDBuiltin:  true,
			MaxDims:          3,
			VectorLanes:      []int{2, 3, 4, 8, 16},
			Prims:            append(append([]graph.Prim{}, ints...), floats...),
			DefaultLocalSize: 64,
		},
		TypeMap: map[graph.Prim]string{
			graph.I8:  "OpTypeInt 8 0",
			graph.I16: "OpTypeInt 16 0",
			graph.I32: "OpTypeInt 32 0",
			graph.I64: "OpTypeInt 64 0",
			graph.U8:  "OpTypeInt 8 0",
			graph.U16: "OpTypeInt 16 0",
			graph.U32: "OpTypeInt 32 0",
			graph.U64: "OpTypeInt 64 0",
			graph.F32: "OpTypeFloat 32",
			graph.F64: "OpTypeFloat 64",
		},
		IntrinsicMap: map[graph.Intrinsic]target.OpInfo{
			graph.IntrinsicSqrt:           {Name: "sqrt", Prims: floats},
			graph.IntrinsicExp:            {Name: "exp", Prims: floats},
			graph.IntrinsicExp2:           {Name: "exp2", Prims: floats},
			graph.IntrinsicLog:            {Name: "log", Prims: floats},
			graph.IntrinsicLog2:           {Name: "log2", Prims: floats},
			graph.IntrinsicSin:            {Name: "sin", Prims: floats},
			graph.IntrinsicCos:            {Name: "cos", Prims: floats},
			graph.IntrinsicTan:            {Name: "tan", Prims: floats},
			graph.IntrinsicPow:            {Name: "pow", Prims: floats},
			graph.IntrinsicFabs:           {Name: "fabs", Prims: floats},
			graph.IntrinsicFloor:          {Name: "floor", Prims: floats},
			graph.IntrinsicCeil:           {Name: "ceil", Prims: floats},
			graph.IntrinsicRint:           {Name: "rint", Prims: floats},
			graph.IntrinsicFma:            {Name: "fma", Prims: floats},
			graph.IntrinsicMin:            {Name: "min"},
			graph.IntrinsicMax:            {Name: "max"},
			graph.IntrinsicClamp:          {Name: "clamp"},
			graph.IntrinsicAbs:            {Name: "abs", Prims: ints},
			graph.IntrinsicPopCount:       {Name: "popcount", Prims: ints},
			graph.IntrinsicClz:            {Name: "clz", Prims: ints},
			graph.IntrinsicDot:            {Name: "OpDot", Prims: floats},
			graph.IntrinsicLocalBarrier:   {Name: "OpControlBarrier"},
			graph.IntrinsicGlobalBarrier:  {Name: "OpControlBarrier"},
			graph.IntrinsicAtomicFetchAdd: {Name: "OpAtomicIAdd"},
		},
		AtomicMap: atomics(),
		Spaces: map[lir.Space]string{
			lir.SpaceGlobal:   "CrossWorkgroup",
			lir.SpaceLocal:    "Workgroup",
			lir.SpacePrivate:  "Function",
			lir.SpaceConstant: "UniformConstant",
		},
		Barriers: map[lir.Space]string{
			lir.SpaceLocal:  "OpControlBarrier Workgroup WorkgroupMemory",
			lir.SpaceGlobal: "OpControlBarrier Workgroup CrossWorkgroupMemory",
		},
		Builtins: map[lir.Builtin]string{
			lir.GlobalID:   "GlobalInvocationId",
			lir.ThreadID:   "LocalInvocationId",
			lir.BlockID:    "WorkgroupId",
			lir.BlockDim:   "WorkgroupSize",
			lir.GridDim:    "NumWorkgroups",
			lir.GlobalSize: "GlobalSize",
		},
	}
	t.Registry = target.NewRegistryFor(t)
	return t
}

// atomics lists the atomic encodings: OpAtomicIAdd and OpAtomicISub for
// 32- and 64-bit integers, OpAtomicFAddEXT for floats. Float subtraction
// adds the negated value. There is no multiply encoding.
func atomics() map[target.AtomicKey]target.OpInfo {
	m := make(map[target.AtomicKey]target.OpInfo)
	for _, p := range []graph.Prim{graph.I32, graph.U32, graph.I64, graph.U64} {
		m[target.AtomicKey{Op: graph.ReduceAdd, Prim: p}] = target.OpInfo{Name: "OpAtomicIAdd"}
		m[target.AtomicKey{Op: graph.ReduceSub, Prim: p}] = target.OpInfo{Name: "OpAtomicISub"}
	}
	for _, p := range floats {
		m[target.AtomicKey{Op: graph.ReduceAdd, Prim: p}] = target.OpInfo{Name: "OpAtomicFAddEXT"}
		m[target.AtomicKey{Op: graph.ReduceSub, Prim: p}] = target.OpInfo{Name: "OpAtomicFAddEXT.neg"}
	}
	return m
}

// Backend implements the compiler backend contract for SPIR-V.
type Backend struct {
	target *target.Target
}

// New returns the SPIR-V backend.
func New() *Backend { return &Backend{target: Target()} }

func (b *Backend) Name() string { return Name }

func (b *Backend) Target() *target.Target { return b.target }

// Generators returns base unchanged.
func (b *Backend) Generators(base lower.Table) lower.Table { return base }

func (b *Backend) Emit(k *lir.Kernel) ([]byte, error) { return Emit(k, b.target) }
