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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-kernelc/graph"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		err   string
	}{
		{
			name: "well formed",
			build: func(b *Builder) {
				a := b.AddParam(Param{Name: "a", Type: graph.ArrayOf(graph.TF32), Space: SpaceGlobal})
				gid := b.Builtin(GlobalID, 0, graph.TI32)
				x := b.Load(Address{Space: SpaceGlobal, Base: a, Index: gid, Elem: graph.TF32})
				c := b.Compare(graph.CondGT, x, Imm(graph.TF32, graph.FloatLit(0)))
				b.IfBegin(c)
				b.Store(Address{Space: SpaceGlobal, Base: a, Index: gid, Elem: graph.TF32}, b.Unary(graph.KindNeg, graph.TF32, x))
				b.IfEnd()
				b.Return()
			},
		},
		{
			name: "use before definition",
			build: func(b *Builder) {
				r := b.NewReg(graph.TI32)
				b.Binary(graph.KindAdd, graph.TI32, R(r, graph.TI32), IntImm(graph.TI32, 1))
			},
			err: "r0 used before definition",
		},
		{
			name: "unknown parameter",
			build: func(b *Builder) {
				b.Load(Address{Space: SpaceGlobal, Base: P(3, graph.ArrayOf(graph.TI32)), Index: IntImm(graph.TI32, 0), Elem: graph.TI32})
			},
			err: "unknown parameter 3",
		},
		{
			name: "unbalanced regions",
			build: func(b *Builder) {
				b.LoopBegin()
				b.IfEnd()
			},
			err: "unbalanced endif",
		},
		{
			name: "break outside loop",
			build: func(b *Builder) {
				b.BreakUnless(Imm(graph.TBool, graph.IntLit(1)))
			},
			err: "break outside a loop",
		},
		{
			name: "open region",
			build: func(b *Builder) {
				b.IfBegin(Imm(graph.TBool, graph.IntLit(1)))
				b.Else()
			},
			err: "1 control regions left open",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("k")
			tt.build(b)
			err := Verify(b.Kernel())
			if tt.err == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestMutableRegisters(t *testing.T) {
	b := NewBuilder("k")
	acc := b.NewReg(graph.TI32)
	once := b.NewReg(graph.TI32)
	b.Assign(acc, IntImm(graph.TI32, 0))
	b.Assign(once, IntImm(graph.TI32, 2))
	b.LoopBegin()
	b.BinaryInto(acc, graph.KindAdd, R(acc, graph.TI32), R(once, graph.TI32))
	b.BreakUnless(b.Compare(graph.CondLT, R(acc, graph.TI32), IntImm(graph.TI32, 10)))
	b.LoopEnd()

	k := b.Kernel()
	require.NoError(t, Verify(k))
	assert.True(t, k.Regs[acc].Mutable)
	assert.False(t, k.Regs[once].Mutable)
}

func TestString(t *testing.T) {
	b := NewBuilder("k")
	v := b.Splat(graph.Vector(graph.F32, 4), Imm(graph.TF32, graph.FloatLit(1)))
	b.Extract(v, 2)
	b.Barrier(SpaceLocal)
	want := "kernel k\n" +
		"  r0:f32x4 = splat 1\n" +
		"  r1:f32 = extract.2 r0\n" +
		"  barrier.local\n"
	assert.Equal(t, want, b.Kernel().String())
}
