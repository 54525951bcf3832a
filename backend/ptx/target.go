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

// Package ptx is the NVIDIA PTX backend: it prints a lir.Kernel as a
// .visible .entry function in the PTX virtual ISA.
package ptx

import (
	"fmt"

	"golang.org/x/mod/semver"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/target"
)

// Name is the backend selector.
const Name = "ptx"

var (
	ints   = []graph.Prim{graph.I16, graph.I32, graph.I64, graph.U16, graph.U32, graph.U64}
	signed = []graph.Prim{graph.I16, graph.I32, graph.I64}
	words  = []graph.Prim{graph.I32, graph.I64, graph.U32, graph.U64}
	floats = []graph.Prim{graph.F32, graph.F64}
	single = []graph.Prim{graph.F32}
)

// Target returns the PTX vocabulary.
func Target() *target.Target {
	t := &target.Target{
		Name:   Name,
		Format: target.Text,
		Caps: target.Caps{
			Reduction:        target.GlobalAtomic,
			MaxDims:          3,
			Prims:            append(append([]graph.Prim{}, ints...), floats...),
			DefaultLocalSize: 128,
		},
		TypeMap: map[graph.Prim]string{
			graph.I16: "s16",
			graph.I32: "s32",
			graph.I64: "s64",
			graph.U16: "u16",
			graph.U32: "u32",
			graph.U64: "u64",
			graph.F32: "f32",
			graph.F64: "f64",
		},
		IntrinsicMap: map[graph.Intrinsic]target.OpInfo{
			graph.IntrinsicSqrt:           {Name: "sqrt.rn", Prims: floats},
			graph.IntrinsicExp:            {Name: "ex2.approx", Prims: single},
			graph.IntrinsicExp2:           {Name: "ex2.approx", Prims: single},
			graph.IntrinsicLog:            {Name: "lg2.approx", Prims: single},
			graph.IntrinsicLog2:           {Name: "lg2.approx", Prims: single},
			graph.IntrinsicSin:            {Name: "sin.approx", Prims: single},
			graph.IntrinsicCos:            {Name: "cos.approx", Prims: single},
			graph.IntrinsicFabs:           {Name: "abs", Prims: floats},
			graph.IntrinsicFloor:          {Name: "cvt.rmi", Prims: floats},
			graph.IntrinsicCeil:           {Name: "cvt.rpi", Prims: floats},
			graph.IntrinsicRint:           {Name: "cvt.rni", Prims: floats},
			graph.IntrinsicFma:            {Name: "fma.rn", Prims: floats},
			graph.IntrinsicMin:            {Name: "min"},
			graph.IntrinsicMax:            {Name: "max"},
			graph.IntrinsicAbs:            {Name: "abs", Prims: signed},
			graph.IntrinsicPopCount:       {Name: "popc", Prims: words},
			graph.IntrinsicClz:            {Name: "clz", Prims: words},
			graph.IntrinsicLocalBarrier:   {Name: "bar.sync"},
			graph.IntrinsicGlobalBarrier:  {Name: "bar.sync"},
			graph.IntrinsicAtomicFetchAdd: {Name: "atom.add"},
		},
		AtomicMap: atomics(),
		Spaces: map[lir.Space]string{
			lir.SpaceGlobal:   ".global",
			lir.SpaceLocal:    ".shared",
			lir.SpacePrivate:  ".local",
			lir.SpaceConstant: ".global.nc",
		},
		Barriers: map[lir.Space]string{
			lir.SpaceLocal:  "bar.sync 0",
			lir.SpaceGlobal: "membar.gl",
		},
		Builtins: map[lir.Builtin]string{
			lir.ThreadID: "%tid",
			lir.BlockID:  "%ctaid",
			lir.BlockDim: "%ntid",
			lir.GridDim:  "%nctaid",
		},
	}
	t.Registry = target.NewRegistryFor(t)
	return t
}

// atomics lists the atomic encodings. atom.add covers s32, u32, u64, f32
// and f64; signed and float subtraction adds the negated value;
// multiplication is a compare-and-swap loop.
func atomics() map[target.AtomicKey]target.OpInfo {
	m := make(map[target.AtomicKey]target.OpInfo)
	for _, p := range []graph.Prim{graph.I32, graph.U32, graph.I64, graph.U64, graph.F32, graph.F64} {
		m[target.AtomicKey{Op: graph.ReduceAdd, Prim: p}] = target.OpInfo{Name: "add"}
		m[target.AtomicKey{Op: graph.ReduceMul, Prim: p}] = target.OpInfo{Name: "cas"}
	}
	for _, p := range []graph.Prim{graph.I32, graph.I64, graph.F32, graph.F64} {
		m[target.AtomicKey{Op: graph.ReduceSub, Prim: p}] = target.OpInfo{Name: "add.neg"}
	}
	return m
}

// Options select the PTX ISA version and the SM architecture.
type Options struct {
	// ISA is the PTX ISA version as a semantic version, "v7.0" by default.
	ISA string
	// SM is the compute capability times ten, 60 by default.
	SM int
}

func (o Options) withDefaults() Options {
	if o.ISA == "" {
		o.ISA = "v7.0"
	}
	if o.SM == 0 {
		o.SM = 60
	}
	return o
}

// Validate checks that the ISA version can target the SM architecture.
func (o Options) Validate() error {
	o = o.withDefaults()
	if !semver.IsValid(o.ISA) {
		return fmt.Errorf("%s: invalid ISA version %q", Name, o.ISA)
	}
	if semver.Compare(o.ISA, "v6.0") < 0 {
		return fmt.Errorf("%s: ISA %s is older than the minimum v6.0", Name, o.ISA)
	}
	if o.SM < 30 {
		return fmt.Errorf("%s: sm_%d is not supported", Name, o.SM)
	}
	for _, req := range []struct {
		sm  int
		isa string
	}{{90, "v7.8"}, {80, "v7.0"}} {
		if o.SM >= req.sm && semver.Compare(o.ISA, req.isa) < 0 {
			return fmt.Errorf("%s: sm_%d needs ISA %s or newer, got %s", Name, o.SM, req.isa, o.ISA)
		}
	}
	return nil
}

// version returns the .version directive operand, "7.0" for "v7.0.1".
func (o Options) version() string { return semver.MajorMinor(o.ISA)[1:] }

// Backend implements the compiler backend contract for PTX.
type Backend struct {
	target *target.Target
	opts   Options
}

// New returns the PTX backend. It fails when opts do not validate.
func New(opts Options) (*Backend, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Backend{target: Target(), opts: opts.withDefaults()}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Target() *target.Target { return b.target }

func (b *Backend) Options() Options { return b.opts }

func (b *Backend) Emit(k *lir.Kernel) ([]byte, error) { return Emit(k, b.target, b.opts) }

// Generators overrides the defaults where PTX has no direct instruction.
func (b *Backend) Generators(base lower.Table) lower.Table {
	t := base
	t[graph.KindIntrinsic] = genIntrinsic(base[graph.KindIntrinsic])
	t[graph.KindRem] = genRem(base[graph.KindRem])
	return t
}
