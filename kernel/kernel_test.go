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

package kernel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-kernelc/graph"
)

func sample() Metadata {
	return Metadata{
		Backend:   "opencl",
		Entry:     "copy2d",
		Format:    "text",
		LocalSize: 64,
		Params: []Param{
			{Name: "a", Type: "f32[]", Space: "global", Access: graph.AccessRead},
			{Name: "b", Type: "f32[]", Space: "global", Access: graph.AccessWrite},
			{Name: "acc", Type: "f32[]", Space: "global", Access: graph.AccessReadWrite},
			{Name: "unused", Type: "f32[]", Space: "global", Access: graph.AccessNone},
			{Name: "n", Type: "i32", Access: graph.AccessRead},
		},
		Mappings: []Mapping{
			{Dim: 0, Offset: Const(0), Stride: 1, Bound: ParamExtent("n"), TripCount: ParamExtent("n")},
			{Dim: 1, Offset: ParamExtent("lo"), Stride: 2, Bound: ParamExtent("n"), Inclusive: true, TripCount: Expr()},
		},
		Reductions: []Reduction{{Target: "acc", Op: "add", Type: "f32", Template: "local-tree", Input: "a"}},
	}
}

func TestArtifactIsImmutable(t *testing.T) {
	meta := sample()
	code := []byte("kernel")
	a := New(meta, code)

	code[0] = 'X'
	meta.Params[0].Name = "changed"
	assert.Equal(t, "kernel", string(a.Code()))
	assert.Equal(t, "a", a.Params()[0].Name)

	a.Code()[0] = 'Y'
	a.Params()[1].Name = "changed"
	a.Metadata().Mappings[0].Stride = 9
	assert.Equal(t, "kernel", string(a.Code()))
	assert.Equal(t, "b", a.Params()[1].Name)
	assert.Equal(t, int64(1), a.Mappings()[0].Stride)
	assert.False(t, a.Binary())
}

func TestMetadataRoundTrip(t *testing.T) {
	a := New(sample(), nil)
	out, err := a.MarshalYAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "access: READ_WRITE")
	assert.Contains(t, string(out), "kind: param")

	got, err := ParseMetadata(out)
	require.NoError(t, err)
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	_, err = ParseMetadata([]byte("backend: ptx\nbogus: 1\n"))
	assert.Error(t, err)
}

func TestTransfers(t *testing.T) {
	in, out := sample().Transfers()
	assert.Equal(t, []string{"a", "acc"}, in)
	assert.Equal(t, []string{"b", "acc"}, out)
}

func TestTrips(t *testing.T) {
	tests := []struct {
		name    string
		m       Mapping
		args    map[string]int64
		want    int64
		wantErr string
	}{
		{name: "constant", m: Mapping{TripCount: Const(7)}, want: 7},
		{name: "bound param", m: Mapping{Offset: Const(0), Stride: 1, Bound: ParamExtent("n"), TripCount: ParamExtent("n")}, args: map[string]int64{"n": 10}, want: 10},
		{name: "offset and stride", m: Mapping{Offset: ParamExtent("lo"), Stride: 3, Bound: ParamExtent("n"), TripCount: Expr()}, args: map[string]int64{"lo": 2, "n": 10}, want: 3},
		{name: "inclusive", m: Mapping{Offset: Const(1), Stride: 1, Bound: Const(5), Inclusive: true, TripCount: Expr()}, want: 5},
		{name: "empty", m: Mapping{Offset: Const(8), Stride: 1, Bound: Const(5), TripCount: Expr()}, want: 0},
		{name: "symbolic negative span", m: Mapping{Offset: Const(7), Stride: 2, Bound: ParamExtent("n"), TripCount: Expr()}, args: map[string]int64{"n": 3}, want: 0},
		{name: "missing arg", m: Mapping{Offset: Const(0), Stride: 1, Bound: ParamExtent("n"), TripCount: Expr()}, wantErr: `missing argument "n"`},
		{name: "computed bound", m: Mapping{Offset: Const(0), Stride: 1, Bound: Expr(), TripCount: Expr()}, wantErr: "cannot be resolved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.m.Trips(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGlobalSizeAndAccess(t *testing.T) {
	a := New(sample(), nil)
	size, err := a.Metadata().GlobalSize(map[string]int64{"n": 9, "lo": 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 5}, size)

	acc, ok := a.Access("acc")
	require.True(t, ok)
	assert.Equal(t, graph.AccessReadWrite, acc)
	_, ok = a.Access("missing")
	assert.False(t, ok)
}
