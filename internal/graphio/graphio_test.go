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

package graphio_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/internal/graphio"
	"github.com/ajroetker/go-kernelc/internal/graphtest"
	"github.com/ajroetker/go-kernelc/target"
)

func fixtures(t *testing.T) map[string][]byte {
	t.Helper()
	ar, err := txtar.ParseFile("testdata/kernels.txtar")
	require.NoError(t, err)
	out := make(map[string][]byte, len(ar.Files))
	for _, f := range ar.Files {
		out[strings.TrimSuffix(f.Name, ".yaml")] = f.Data
	}
	return out
}

func registry() *target.Registry {
	return target.NewRegistry(target.DefaultBindings(), nil)
}

func TestDecodeMatchesBuilders(t *testing.T) {
	files := fixtures(t)
	tests := []struct {
		name string
		want *graph.Graph
	}{
		{"vectorAdd", graphtest.VectorAdd(graph.TF32)},
		{"reduce", graphtest.Reduce(graph.KindAdd, graph.TF32)},
		{"matmul", graphtest.MatMul()},
		{"abs", graphtest.Abs()},
		{"math", graphtest.Math()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, ok := files[tt.name]
			require.True(t, ok, "missing fixture")
			g, err := graphio.Decode(data, registry())
			require.NoError(t, err)
			assert.Equal(t, tt.want.Dump(), g.Dump())
			assert.NoError(t, g.Verify())
		})
	}
}

func TestAnnotationsCarried(t *testing.T) {
	g, err := graphio.Decode(fixtures(t)["reduce"], registry())
	require.NoError(t, err)
	parallel, reduce := graphtest.Annotate(g)
	require.Len(t, parallel, 1)
	require.Len(t, reduce, 1)
	assert.Equal(t, "result", g.Node(reduce[0]).Name)
}

func TestCallSites(t *testing.T) {
	src := `
name: tiled
params:
- {name: out, type: "f32[]"}
body:
- {let: tile, call: KernelContext.allocateFloatLocalArray, size: 64}
- {call: KernelContext.localBarrier}
- {let: v, op: load, args: [tile, 3]}
- {let: w, call: Acme.magic, args: [v]}
- {op: store, args: [out, 0, w]}
- {op: return}
`
	g, err := graphio.Decode([]byte(src), registry())
	require.NoError(t, err)

	arrays := g.OfKind(graph.KindNewLocalArray)
	require.Len(t, arrays, 1)
	arr := g.Node(arrays[0])
	assert.Equal(t, 64, arr.Index)
	assert.Equal(t, graph.ArrayOf(graph.TF32), arr.Type)

	barriers := g.OfKind(graph.KindIntrinsic)
	require.Len(t, barriers, 1)
	assert.Equal(t, graph.IntrinsicLocalBarrier, g.Node(barriers[0]).Intrinsic)
	assert.Equal(t, graph.TVoid, g.Node(barriers[0]).Type)

	calls := g.OfKind(graph.KindCall)
	require.Len(t, calls, 1)
	assert.Equal(t, "Acme.magic", g.Node(calls[0]).Name)
	assert.Equal(t, graph.TF32, g.Node(calls[0]).Type)

	assert.Len(t, g.OfKind(graph.KindReturn), 1, "an explicit return is not doubled")
}

func TestRegistryScopesCallSites(t *testing.T) {
	src := `
name: roots
params:
- {name: a, type: "f64[]"}
body:
- {let: x, op: load, args: [a, 0]}
- {let: r, call: Math.sqrt, args: [x]}
- {op: store, args: [a, 0, r]}
`
	none := target.NewRegistry(target.DefaultBindings(), func(site string, _ target.Binding) bool {
		return site != "Math.sqrt"
	})
	g, err := graphio.Decode([]byte(src), none)
	require.NoError(t, err)
	assert.Empty(t, g.OfKind(graph.KindIntrinsic))
	assert.Len(t, g.OfKind(graph.KindCall), 1)
}

func TestVectorOps(t *testing.T) {
	src := `
name: lanes
params:
- {name: in, type: "f32x4[]"}
- {name: out, type: "f32[]"}
body:
- {let: v, op: load, args: [in, 0]}
- {let: y, op: field, lane: 2, args: [v]}
- {let: w, op: vector, type: f32x4}
- {op: setfield, lane: 0, args: [w, y]}
- {let: d, call: Math.dot, args: [v, w]}
- {op: store, args: [out, 0, d]}
`
	reg := target.NewRegistry(map[string]target.Binding{
		"Math.dot": {Kind: graph.KindIntrinsic, Intrinsic: graph.IntrinsicDot},
	}, nil)
	g, err := graphio.Decode([]byte(src), reg)
	require.NoError(t, err)

	fields := g.OfKind(graph.KindLoadField)
	require.Len(t, fields, 1)
	assert.Equal(t, 2, g.Node(fields[0]).Index)
	assert.Equal(t, graph.TF32, g.Node(fields[0]).Type)

	dots := g.OfKind(graph.KindIntrinsic)
	require.Len(t, dots, 1)
	assert.Equal(t, graph.TF32, g.Node(dots[0]).Type)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown field",
			src:  "name: k\nbogus: 1\n",
			want: "bogus",
		},
		{
			name: "missing name",
			src:  "params: []\n",
			want: "missing name",
		},
		{
			name: "bad type",
			src:  "name: k\nparams:\n- {name: a, type: q7}\n",
			want: "params[0]",
		},
		{
			name: "undefined name",
			src:  "name: k\nbody:\n- {let: x, op: add, args: [y, 1]}\n",
			want: `body[0]: invalid kernel description: undefined name "y"`,
		},
		{
			name: "nested position",
			src:  "name: k\nparams:\n- {name: n, type: i32}\nbody:\n- loop: {var: i, to: n, body: [{op: frob}]}\n",
			want: `body[0].body[0]`,
		},
		{
			name: "literal only",
			src:  "name: k\nbody:\n- {let: x, op: add, args: [1, 2]}\n",
			want: "cannot infer the type",
		},
		{
			name: "fractional int",
			src:  "name: k\nparams:\n- {name: a, type: \"i32[]\"}\nbody:\n- {op: store, args: [a, 0, 1.5]}\n",
			want: "not a valid i32",
		},
		{
			name: "two kinds",
			src:  "name: k\nbody:\n- {op: return, call: Math.sqrt}\n",
			want: "exactly one of",
		},
		{
			name: "redefined",
			src:  "name: k\nparams:\n- {name: a, type: i32}\nbody:\n- {let: a, op: neg, args: [a]}\n",
			want: `"a" is already defined`,
		},
		{
			name: "scalar reduce",
			src:  "name: k\nparams:\n- {name: a, type: f32, reduce: true}\n",
			want: "not an array",
		},
		{
			name: "non-bool condition",
			src:  "name: k\nparams:\n- {name: a, type: f32}\nbody:\n- if: {cond: a}\n",
			want: "not bool",
		},
		{
			name: "arity",
			src:  "name: k\nparams:\n- {name: a, type: f32}\nbody:\n- {let: x, call: Math.sqrt, args: [a, a]}\n",
			want: "takes 1 arguments",
		},
		{
			name: "store binds nothing",
			src:  "name: k\nparams:\n- {name: a, type: \"f32[]\"}\nbody:\n- {let: x, op: store, args: [a, 0, 1]}\n",
			want: "no value",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := graphio.Decode([]byte(tt.src), registry())
			require.Error(t, err)
			assert.ErrorIs(t, err, graphio.ErrDescription)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestYAMLBooleanWords(t *testing.T) {
	src := `
name: words
params:
- {name: n, type: i32}
- {name: y, type: i32}
- {name: out, type: "i32[]"}
body:
- {let: on, op: add, args: [n, y]}
- {let: no, op: mul, args: [on, 2]}
- {op: store, args: [out, 0, no]}
`
	g, err := graphio.Decode([]byte(src), registry())
	require.NoError(t, err)
	params := g.Params()
	require.Len(t, params, 3)
	assert.Equal(t, "n", g.Node(params[0]).Name)
	assert.Equal(t, "y", g.Node(params[1]).Name)

	adds := g.OfKind(graph.KindAdd)
	require.Len(t, adds, 1)
	assert.Equal(t, []graph.NodeID{params[0], params[1]}, g.Node(adds[0]).Inputs())
	for _, c := range g.OfKind(graph.KindConst) {
		assert.NotEqual(t, graph.TBool, g.Node(c).Type, "no name decodes as a boolean")
	}
}

func TestBooleanLiterals(t *testing.T) {
	src := `
name: k
params:
- {name: a, type: f32}
body:
- {let: x, op: add, args: [a, true]}
`
	_, err := graphio.Decode([]byte(src), registry())
	require.Error(t, err)
	assert.ErrorIs(t, err, graphio.ErrDescription)
	assert.Contains(t, err.Error(), "boolean literal true is not a valid f32")

	src = `
name: k
params:
- {name: a, type: i32}
body:
- {let: c, op: compare, cond: lt, args: [a, 0]}
- {let: d, op: and, args: [c, true]}
`
	_, err = graphio.Decode([]byte(src), registry())
	require.NoError(t, err)
}

func TestArmScopes(t *testing.T) {
	src := `
name: k
params:
- {name: a, type: f32}
body:
- {let: c, op: compare, cond: lt, args: [a, 0]}
- if:
    cond: c
    then:
    - {let: t, op: neg, args: [a]}
- {let: u, op: add, args: [t, 1]}
`
	_, err := graphio.Decode([]byte(src), registry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undefined name "t"`)
}
