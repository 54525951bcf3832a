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

package sim_test

import (
	"context"
	"math"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/ajroetker/go-kernelc/backend/ptx"
	"github.com/ajroetker/go-kernelc/compiler"
	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/internal/graphtest"
	"github.com/ajroetker/go-kernelc/internal/sim"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/phases"
)

func lowered(t *testing.T, backend string, g *graph.Graph, opts lower.Options) *lir.Kernel {
	t.Helper()
	b, err := compiler.NewBackend(backend, ptx.Options{})
	require.NoError(t, err)
	pctx := phases.NewContext(g, testr.New(t))
	require.NoError(t, phases.Run(pctx))
	res, err := lower.Lower(g, &pctx.Result, b.Target(), b.Generators(lower.Defaults()), opts, testr.New(t))
	require.NoError(t, err)
	return res.Kernel
}

func testContext(t *testing.T) context.Context {
	return logr.NewContext(context.Background(), testr.New(t))
}

func ramp(n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)*scale - 3
	}
	return out
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func TestVectorAdd(t *testing.T) {
	const n = 37
	for _, backend := range compiler.BackendNames() {
		t.Run(backend, func(t *testing.T) {
			k := lowered(t, backend, graphtest.VectorAdd(graph.TF32), lower.Options{})
			a, b := ramp(n, 0.5), ramp(n, 1.25)
			c := sim.NewBuffer(graph.F32, n)
			err := sim.Run(testContext(t), k, sim.Launch{Global: []int{n}, Local: []int{8}},
				sim.Float32s(a...), sim.Float32s(b...), c, int32(n))
			require.NoError(t, err)
			want := make([]float32, n)
			for i := range want {
				want[i] = a[i] + b[i]
			}
			assert.Equal(t, want, c.Float32s())
		})
	}
}

func TestCopy2D(t *testing.T) {
	const n, m = 3, 5
	k := lowered(t, "opencl", graphtest.Copy2D(), lower.Options{})
	a := ramp(n*m, 1)
	b := sim.NewBuffer(graph.F32, n*m)
	// Both dimensions cover max(n, m); the guards drop the excess.
	err := sim.Run(testContext(t), k, sim.Launch{Global: []int{m, m}, Local: []int{2, 2}},
		sim.Float32s(a...), b, int32(n), int32(m))
	require.NoError(t, err)
	assert.Equal(t, a, b.Float32s())
}

func TestReductionTemplatesAgree(t *testing.T) {
	const n = 1000
	input := ramp(n, 0.01)
	want := floats.Sum(widen(input))

	tests := []struct {
		name    string
		backend string
		opts    lower.Options
	}{
		{"opencl local tree", "opencl", lower.Options{}},
		{"opencl small groups", "opencl", lower.Options{LocalSize: 16}},
		{"opencl global atomics", "opencl", lower.Options{ForceGlobalAtomics: true}},
		{"spirv local tree", "spirv", lower.Options{}},
		{"ptx global atomics", "ptx", lower.Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := lowered(t, tt.backend, graphtest.Reduce(graph.KindAdd, graph.TF32), tt.opts)
			result := sim.Float32s(0)
			err := sim.Run(testContext(t), k, sim.Launch{Global: []int{n}, Local: []int{1}},
				sim.Float32s(input...), result, int32(n))
			if k.LocalSize > 0 {
				// The launch must match the required work-group size.
				require.Error(t, err)
				err = sim.Run(testContext(t), k, sim.Launch{Global: []int{n}},
					sim.Float32s(input...), result, int32(n))
			}
			require.NoError(t, err)
			got := result.Float64s()[0]
			assert.True(t, scalar.EqualWithinRel(got, want, 1e-4), "sum %v, want %v", got, want)
		})
	}
}

func TestIntegerReductionExact(t *testing.T) {
	const n = 300
	input := make([]int32, n)
	var want int32
	for i := range input {
		input[i] = int32(i*7 - 500)
		want -= input[i]
	}
	for _, backend := range compiler.BackendNames() {
		t.Run(backend, func(t *testing.T) {
			k := lowered(t, backend, graphtest.Reduce(graph.KindSub, graph.TI32), lower.Options{})
			result := sim.Int32s(0)
			err := sim.Run(testContext(t), k, sim.Launch{Global: []int{n}}, sim.Int32s(input...), result, int32(n))
			require.NoError(t, err)
			assert.Equal(t, want, result.Int32s()[0])
		})
	}
}

func TestMatMul(t *testing.T) {
	const n = 6
	k := lowered(t, "opencl", graphtest.MatMul(), lower.Options{})
	a, b := ramp(n*n, 0.25), ramp(n*n, -0.5)
	c := sim.NewBuffer(graph.F32, n*n)
	err := sim.Run(testContext(t), k, sim.Launch{Global: []int{n, n}, Local: []int{4, 4}},
		sim.Float32s(a...), sim.Float32s(b...), c, int32(n))
	require.NoError(t, err)

	want := make([]float64, n*n)
	for i := range n {
		for j := range n {
			for kk := range n {
				want[i*n+j] += float64(a[i*n+kk]) * float64(b[kk*n+j])
			}
		}
	}
	assert.True(t, floats.EqualApprox(want, c.Float64s(), 1e-4))
}

func TestAbs(t *testing.T) {
	const n = 11
	k := lowered(t, "spirv", graphtest.Abs(), lower.Options{})
	a := ramp(n, 0.75)
	b := sim.NewBuffer(graph.F32, n)
	require.NoError(t, sim.Run(testContext(t), k, sim.Launch{Global: []int{n}, Local: []int{4}}, sim.Float32s(a...), b, int32(n)))
	for i, x := range b.Float32s() {
		assert.Equal(t, float32(math.Abs(float64(a[i]))), x)
	}
}

func TestMath(t *testing.T) {
	const n = 9
	a := ramp(n, 0.5)
	for i := range a {
		a[i] = float32(math.Abs(float64(a[i])))
	}
	want := make([]float64, n)
	for i, x := range a {
		want[i] = math.Sqrt(float64(x)) + math.Exp(float64(x))
	}
	for _, backend := range compiler.BackendNames() {
		t.Run(backend, func(t *testing.T) {
			k := lowered(t, backend, graphtest.Math(), lower.Options{})
			b := sim.NewBuffer(graph.F32, n)
			require.NoError(t, sim.Run(testContext(t), k, sim.Launch{Global: []int{n}}, sim.Float32s(a...), b, int32(n)))
			got := b.Float64s()
			for i := range want {
				assert.True(t, scalar.EqualWithinRel(got[i], want[i], 1e-5), "lane %d: %v, want %v", i, got[i], want[i])
			}
		})
	}
}

func TestScale4(t *testing.T) {
	const n = 5
	k := lowered(t, "opencl", graphtest.Scale4(), lower.Options{})
	in := ramp(4*n, 0.5)
	out := sim.NewBuffer(graph.F32, 4*n)
	const s = float32(1.5)
	require.NoError(t, sim.Run(testContext(t), k, sim.Launch{Global: []int{n}}, sim.Float32s(in...), out, s, int32(n)))
	want := make([]float32, 4*n)
	for i, x := range in {
		want[i] = x * s * 2
	}
	assert.Equal(t, want, out.Float32s())
}

// rotate stores each thread id in local memory and, after a barrier, reads
// its neighbour's slot.
func rotate(size int, early bool) *lir.Kernel {
	b := lir.NewBuilder("rotate")
	out := b.AddParam(lir.Param{Name: "out", Type: graph.ArrayOf(graph.TI32), Space: lir.SpaceGlobal})
	tmp := b.AddArray(lir.Array{Name: "tmp", Space: lir.SpaceLocal, Elem: graph.TI32, Len: size})
	tid := b.Builtin(lir.ThreadID, 0, graph.TI32)
	gid := b.Builtin(lir.GlobalID, 0, graph.TI32)
	local := func(idx lir.Operand) lir.Address {
		return lir.Address{Space: lir.SpaceLocal, Base: tmp, Index: idx, Elem: graph.TI32}
	}
	if early {
		b.IfBegin(b.Compare(graph.CondGE, tid, lir.IntImm(graph.TI32, int64(size/2))))
		b.Return()
		b.IfEnd()
	}
	b.Store(local(tid), tid)
	b.Barrier(lir.SpaceLocal)
	next := b.Binary(graph.KindAdd, graph.TI32, tid, lir.IntImm(graph.TI32, 1))
	if early {
		next = b.Binary(graph.KindRem, graph.TI32, next, lir.IntImm(graph.TI32, int64(size/2)))
	} else {
		next = b.Binary(graph.KindRem, graph.TI32, next, lir.IntImm(graph.TI32, int64(size)))
	}
	b.Store(lir.Address{Space: lir.SpaceGlobal, Base: out, Index: gid, Elem: graph.TI32}, b.Load(local(next)))
	b.Return()
	k := b.Kernel()
	k.Dims = 1
	return k
}

func TestBarrier(t *testing.T) {
	const size, groups = 8, 3
	out := sim.NewBuffer(graph.I32, size*groups)
	require.NoError(t, sim.Run(testContext(t), rotate(size, false), sim.Launch{Global: []int{size * groups}, Local: []int{size}}, out))
	for g, v := range out.Int32s() {
		assert.Equal(t, int32((g%size+1)%size), v, "item %d", g)
	}
}

func TestBarrierAfterEarlyExit(t *testing.T) {
	const size = 8
	out := sim.NewBuffer(graph.I32, size)
	require.NoError(t, sim.Run(testContext(t), rotate(size, true), sim.Launch{Global: []int{size}, Local: []int{size}}, out))
	assert.Equal(t, []int32{1, 2, 3, 0, 0, 0, 0, 0}, out.Int32s())
}

func spin() *lir.Kernel {
	b := lir.NewBuilder("spin")
	b.LoopBegin()
	b.LoopEnd()
	b.Return()
	return b.Kernel()
}

func TestFailures(t *testing.T) {
	oob := func() *lir.Kernel {
		b := lir.NewBuilder("oob")
		a := b.AddParam(lir.Param{Name: "a", Type: graph.ArrayOf(graph.TI32), Space: lir.SpaceGlobal})
		b.Store(lir.Address{Space: lir.SpaceGlobal, Base: a, Index: lir.IntImm(graph.TI32, 4), Elem: graph.TI32}, lir.IntImm(graph.TI32, 1))
		return b.Kernel()
	}
	div := func() *lir.Kernel {
		b := lir.NewBuilder("div")
		n := b.AddParam(lir.Param{Name: "n", Type: graph.TI32})
		b.Binary(graph.KindDiv, graph.TI32, lir.IntImm(graph.TI32, 1), n)
		return b.Kernel()
	}

	tests := []struct {
		name   string
		k      *lir.Kernel
		launch sim.Launch
		args   []any
		is     error
		msg    string
	}{
		{name: "out of bounds", k: oob(), args: []any{sim.Int32s(0, 0)}, is: sim.ErrOutOfBounds},
		{name: "divide by zero", k: div(), args: []any{int32(0)}, is: sim.ErrDivideByZero},
		{name: "step limit", k: spin(), launch: sim.Launch{MaxSteps: 50}, is: sim.ErrStepLimit},
		{name: "arity", k: div(), msg: "takes 1 arguments"},
		{name: "buffer type", k: oob(), args: []any{sim.Float32s(0)}, msg: "buffer of f32"},
		{name: "scalar type", k: div(), args: []any{"x"}, msg: "unsupported argument type"},
		{name: "launch", k: div(), launch: sim.Launch{Local: []int{0}}, args: []any{int32(1)}, msg: "bad launch size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sim.Run(testContext(t), tt.k, tt.launch, tt.args...)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	err := sim.Run(ctx, spin(), sim.Launch{Global: []int{4}, Local: []int{2}})
	assert.ErrorIs(t, err, context.Canceled)
}
