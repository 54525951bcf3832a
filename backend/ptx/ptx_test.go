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

package ptx

import (
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/internal/graphtest"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/phases"
	"github.com/ajroetker/go-kernelc/target"
)

func lowerFor(t *testing.T, b *Backend, g *graph.Graph, opts lower.Options) (*lower.Result, error) {
	t.Helper()
	pctx := phases.NewContext(g, testr.New(t))
	require.NoError(t, phases.Run(pctx))
	return lower.Lower(g, &pctx.Result, b.Target(), b.Generators(lower.Defaults()), opts, testr.New(t))
}

func emit(t *testing.T, g *graph.Graph, opts lower.Options) string {
	t.Helper()
	b, err := New(Options{})
	require.NoError(t, err)
	res, err := lowerFor(t, b, g, opts)
	require.NoError(t, err)
	require.NoError(t, lir.Verify(res.Kernel))
	src, err := b.Emit(res.Kernel)
	require.NoError(t, err)
	return string(src)
}

func TestVectorAdd(t *testing.T) {
	src := emit(t, graphtest.VectorAdd(graph.TF32), lower.Options{})
	for _, want := range []string{
		".version 7.0\n.target sm_60\n.address_size 64\n",
		".visible .entry vectorAdd(\n\t.param .u64 vectorAdd_param_0,\n\t.param .u64 vectorAdd_param_1,\n\t.param .u64 vectorAdd_param_2,\n\t.param .s32 vectorAdd_param_3\n)\n{\n",
		"\t.reg .pred %p<2>;\n",
		"\t.reg .f32 %f<4>;\n",
		"\tld.param.u64 %rd1, [vectorAdd_param_0];\n\tcvta.to.global.u64 %rd2, %rd1;\n",
		"\tld.param.s32 %r6, [vectorAdd_param_3];\n",
		"\tmov.u32 %r1, %tid.x;\n\tmov.u32 %r2, %ctaid.x;\n\tmov.u32 %r3, %ntid.x;\n",
		"\tmul.lo.s32 %r4, %r2, %r3;\n\tadd.s32 %r5, %r4, %r1;\n",
		"\tsetp.lt.s32 %p1, %r5, %r6;\n\t@!%p1 bra $L__else0;\n",
		"\tmul.wide.s32 %rd7, %r5, 4;\n\tadd.s64 %rd8, %rd2, %rd7;\n\tld.global.f32 %f1, [%rd8];\n",
		"\tadd.f32 %f3, %f1, %f2;\n",
		"\tst.global.f32 [%rd12], %f3;\n$L__else0:\n\tret;\n}\n",
	} {
		assert.Contains(t, src, want)
	}
	assert.NotContains(t, src, ".reqntid")
}

func TestConstantParams(t *testing.T) {
	src := emit(t, graphtest.VectorAdd(graph.TF64), lower.Options{ConstantParams: true})
	assert.Equal(t, 2, strings.Count(src, "ld.global.nc.f64"))
	assert.Contains(t, src, "st.global.f64 [")
}

func TestReductions(t *testing.T) {
	tests := []struct {
		name string
		op   graph.Kind
		elem graph.Type
		want []string
	}{
		{name: "float add", op: graph.KindAdd, elem: graph.TF32, want: []string{"red.global.add.f32 [%rd"}},
		{name: "long add", op: graph.KindAdd, elem: graph.TI64, want: []string{"red.global.add.u64 [%rd"}},
		{name: "int sub", op: graph.KindSub, elem: graph.TI32, want: []string{"neg.s32 %r", "red.global.add.s32 [%rd"}},
		{name: "double sub", op: graph.KindSub, elem: graph.TF64, want: []string{"neg.f64 %fd", "red.global.add.f64 [%rd"}},
		{name: "float mul", op: graph.KindMul, elem: graph.TF32, want: []string{
			"ld.global.f32 %f",
			"$L__cas1:\n",
			"mul.f32 %f",
			"atom.global.cas.b32 %r",
			"@%p",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := emit(t, graphtest.Reduce(tt.op, tt.elem), lower.Options{})
			for _, w := range tt.want {
				assert.Contains(t, src, w)
			}
			assert.NotContains(t, src, "bar.sync")
			assert.NotContains(t, src, ".shared")
		})
	}
}

func TestForcedLocalTree(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)
	tgt := b.Target()
	tgt.Caps.Reduction = target.LocalTree
	g := graphtest.Reduce(graph.KindAdd, graph.TF32)
	pctx := phases.NewContext(g, testr.New(t))
	require.NoError(t, phases.Run(pctx))
	res, err := lower.Lower(g, &pctx.Result, tgt, b.Generators(lower.Defaults()), lower.Options{LocalSize: 32}, testr.New(t))
	require.NoError(t, err)
	src, err := Emit(res.Kernel, tgt, b.Options())
	require.NoError(t, err)
	assert.Contains(t, string(src), ".reqntid 32, 1, 1\n")
	assert.Contains(t, string(src), "\t.shared .align 4 .b8 partial_result[128];\n")
	assert.Contains(t, string(src), "mov.u64 %rd")
	assert.Contains(t, string(src), ", partial_result;")
	assert.Contains(t, string(src), "st.shared.f32 [")
	assert.Equal(t, 6, strings.Count(string(src), "bar.sync 0;"))
}

func TestExpLogExpansion(t *testing.T) {
	src := emit(t, graphtest.Math(), lower.Options{})
	assert.Contains(t, src, "sqrt.rn.f32 %f")
	assert.Contains(t, src, ", 0f3FB8AA3B;\n")
	assert.Contains(t, src, "ex2.approx.f32 %f")
}

func TestUnsupported(t *testing.T) {
	b, err := New(Options{})
	require.NoError(t, err)

	rem := graph.New("rem")
	a := rem.AddParam("a", graph.ArrayOf(graph.TF32))
	n := rem.AddParam("n", graph.TI32)
	loop, i := graphtest.ParLoop(rem, rem.Entry(), n)
	body := rem.Body(loop)
	x := rem.Load(body, a, i)
	rem.Store(body, a, i, rem.Binary(body, graph.KindRem, x, x))
	rem.Emit(rem.Entry(), graph.KindReturn, graph.TVoid)

	exp := graph.New("exp64")
	d := exp.AddParam("d", graph.ArrayOf(graph.TF64))
	m := exp.AddParam("n", graph.TI32)
	loop, j := graphtest.ParLoop(exp, exp.Entry(), m)
	body = exp.Body(loop)
	exp.Store(body, d, j, exp.Call(body, graph.IntrinsicExp, graph.TF64, exp.Load(body, d, j)))
	exp.Emit(exp.Entry(), graph.KindReturn, graph.TVoid)

	for name, g := range map[string]*graph.Graph{"float rem": rem, "double exp": exp} {
		t.Run(name, func(t *testing.T) {
			_, err := lowerFor(t, b, g, lower.Options{})
			require.ErrorIs(t, err, graph.ErrUnsupported)
			var ue *graph.UnsupportedError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, Name, ue.Backend)
		})
	}
}

func TestVectorsArePerLane(t *testing.T) {
	src := emit(t, graphtest.Scale4(), lower.Options{})
	assert.Contains(t, src, "\t.reg .f32 %f<")
	assert.NotContains(t, src, ".v4")
	assert.Contains(t, src, "ld.param.f32 %f")
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		err  string
	}{
		{name: "defaults"},
		{name: "hopper", opts: Options{ISA: "v7.8", SM: 90}},
		{name: "patch version", opts: Options{ISA: "v7.0.1", SM: 70}},
		{name: "not semver", opts: Options{ISA: "7.0"}, err: `invalid ISA version "7.0"`},
		{name: "too old", opts: Options{ISA: "v5.0"}, err: "older than the minimum"},
		{name: "ampere on old isa", opts: Options{ISA: "v6.5", SM: 80}, err: "sm_80 needs ISA v7.0"},
		{name: "hopper on old isa", opts: Options{ISA: "v7.0", SM: 90}, err: "sm_90 needs ISA v7.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if tt.err == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestHeaderVersion(t *testing.T) {
	b, err := New(Options{ISA: "v7.8.0", SM: 90})
	require.NoError(t, err)
	k := lir.NewBuilder("empty")
	k.Return()
	src, err := b.Emit(k.Kernel())
	require.NoError(t, err)
	assert.Contains(t, string(src), ".version 7.8\n.target sm_90\n")
	assert.Contains(t, string(src), ".visible .entry empty()\n{\n\n\tret;\n}\n")
}

func TestF64AtomicsNeedSM60(t *testing.T) {
	k := lir.NewBuilder("acc")
	p := k.AddParam(lir.Param{Name: "p", Type: graph.ArrayOf(graph.TF64), Space: lir.SpaceGlobal})
	k.Atomic(graph.ReduceAdd, lir.Address{Space: lir.SpaceGlobal, Base: p, Index: lir.IntImm(graph.TI32, 0), Elem: graph.TF64},
		lir.Imm(graph.TF64, graph.FloatLit(1)), false)
	_, err := Emit(k.Kernel(), Target(), Options{ISA: "v6.0", SM: 50})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs sm_60")

	src, err := Emit(k.Kernel(), Target(), Options{})
	require.NoError(t, err)
	assert.Contains(t, string(src), "mov.f64 %fd1, 0d3FF0000000000000;\n\tred.global.add.f64 [%rd2], %fd1;\n")
}

func TestRegistry(t *testing.T) {
	r := Target().Registry
	for site, want := range map[string]bool{
		"Math.sqrt":                  true,
		"Math.exp":                   true,
		"Math.tan":                   false,
		"Math.pow":                   false,
		"Vector.dot":                 false,
		"KernelContext.atomicAdd":    true,
		"KernelContext.localBarrier": true,
	} {
		_, ok := r.Lookup(site)
		assert.Equal(t, want, ok, site)
	}
}
