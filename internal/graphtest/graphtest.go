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

// Package graphtest builds the small kernels the test suites of the
// lowering, backend, compiler and simulator packages share.
package graphtest

import (
	"github.com/ajroetker/go-kernelc/graph"
)

// ParLoop appends a parallel-annotated `for i := 0; i < bound; i++` to b.
func ParLoop(g *graph.Graph, b graph.BlockID, bound graph.NodeID) (loop, iv graph.NodeID) {
	t := g.Node(bound).Type
	loop, iv = g.CountedLoop(b, t, g.ConstInt(t, 0), bound, g.ConstInt(t, 1), graph.CondLT)
	g.Node(iv).Flags |= graph.FlagParallel
	return loop, iv
}

// VectorAdd builds c[i] = a[i] + b[i] for i in 0..n over elements of type
// elem.
func VectorAdd(elem graph.Type) *graph.Graph {
	g := graph.New("vectorAdd")
	a := g.AddParam("a", graph.ArrayOf(elem))
	b := g.AddParam("b", graph.ArrayOf(elem))
	c := g.AddParam("c", graph.ArrayOf(elem))
	n := g.AddParam("n", graph.TI32)
	loop, i := ParLoop(g, g.Entry(), n)
	body := g.Body(loop)
	g.Store(body, c, i, g.Binary(body, graph.KindAdd, g.Load(body, a, i), g.Load(body, b, i)))
	g.Emit(g.Entry(), graph.KindReturn, graph.TVoid)
	return g
}

// Copy2D builds for i in 0..n, for j in 0..m: b[i*m+j] = a[i*m+j].
func Copy2D() *graph.Graph {
	g := graph.New("copy2d")
	a := g.AddParam("a", graph.ArrayOf(graph.TF32))
	b := g.AddParam("b", graph.ArrayOf(graph.TF32))
	n := g.AddParam("n", graph.TI32)
	m := g.AddParam("m", graph.TI32)
	outer, i := ParLoop(g, g.Entry(), n)
	inner, j := ParLoop(g, g.Body(outer), m)
	body := g.Body(inner)
	idx := g.Binary(body, graph.KindAdd, g.Binary(body, graph.KindMul, i, m), j)
	g.Store(body, b, idx, g.Load(body, a, idx))
	g.Emit(g.Entry(), graph.KindReturn, graph.TVoid)
	return g
}

// Reduce builds result[0] = result[0] <op> input[i] for i in 0..n.
func Reduce(op graph.Kind, elem graph.Type) *graph.Graph {
	g := graph.New("reduce")
	in := g.AddParam("input", graph.ArrayOf(elem))
	res := g.AddParam("result", graph.ArrayOf(elem))
	g.Node(res).Flags |= graph.FlagReduce
	n := g.AddParam("n", graph.TI32)
	loop, i := ParLoop(g, g.Entry(), n)
	body := g.Body(loop)
	zero := g.ConstInt(graph.TI32, 0)
	x := g.Load(body, in, i)
	acc := g.Load(body, res, zero)
	g.Store(body, res, zero, g.Binary(body, op, acc, x))
	g.Emit(g.Entry(), graph.KindReturn, graph.TVoid)
	return g
}

// MatMul builds c[i*n+j] = sum over k of a[i*n+k] * b[k*n+j] with i and j
// parallel and k a sequential loop carrying the sum.
func MatMul() *graph.Graph {
	g := graph.New("matmul")
	a := g.AddParam("a", graph.ArrayOf(graph.TF32))
	b := g.AddParam("b", graph.ArrayOf(graph.TF32))
	c := g.AddParam("c", graph.ArrayOf(graph.TF32))
	n := g.AddParam("n", graph.TI32)
	outer, i := ParLoop(g, g.Entry(), n)
	inner, j := ParLoop(g, g.Body(outer), n)
	body := g.Body(inner)

	zero, one := g.ConstInt(graph.TI32, 0), g.ConstInt(graph.TI32, 1)
	kloop, k := g.CountedLoop(body, graph.TI32, zero, n, one, graph.CondLT)
	sum := g.NewPhi(kloop, graph.TF32, g.ConstFloat(graph.TF32, 0))
	kb := g.Body(kloop)
	x := g.Load(kb, a, g.Binary(kb, graph.KindAdd, g.Binary(kb, graph.KindMul, i, n), k))
	y := g.Load(kb, b, g.Binary(kb, graph.KindAdd, g.Binary(kb, graph.KindMul, k, n), j))
	g.AddInput(sum, g.Binary(kb, graph.KindAdd, sum, g.Binary(kb, graph.KindMul, x, y)))

	g.Store(body, c, g.Binary(body, graph.KindAdd, g.Binary(body, graph.KindMul, i, n), j), sum)
	g.Emit(g.Entry(), graph.KindReturn, graph.TVoid)
	return g
}

// Abs builds b[i] = a[i] > 0 ? a[i] : -a[i] with an If and a phi.
func Abs() *graph.Graph {
	g := graph.New("abs")
	a := g.AddParam("a", graph.ArrayOf(graph.TF32))
	b := g.AddParam("b", graph.ArrayOf(graph.TF32))
	n := g.AddParam("n", graph.TI32)
	loop, i := ParLoop(g, g.Entry(), n)
	body := g.Body(loop)
	x := g.Load(body, a, i)
	ifn := g.NewIf(body, g.Compare(body, graph.CondGT, x, g.ConstFloat(graph.TF32, 0)))
	neg := g.Emit(g.Else(ifn), graph.KindNeg, graph.TF32, x)
	v := g.NewPhi(ifn, graph.TF32, x, neg)
	g.Store(body, b, i, v)
	g.Emit(g.Entry(), graph.KindReturn, graph.TVoid)
	return g
}

// Scale4 builds a kernel over float4 elements: the aggregate is filled lane
// by lane and escapes through a store, so it stays a native vector.
//
//	v := float4{}; v.x..v.w = in[i].x..w * s; out[i] = v + v
func Scale4() *graph.Graph {
	g := graph.New("scale4")
	v4 := graph.Vector(graph.F32, 4)
	in := g.AddParam("in", graph.ArrayOf(v4))
	out := g.AddParam("out", graph.ArrayOf(v4))
	s := g.AddParam("s", graph.TF32)
	n := g.AddParam("n", graph.TI32)
	loop, i := ParLoop(g, g.Entry(), n)
	body := g.Body(loop)
	src := g.Load(body, in, i)
	v := g.Emit(body, graph.KindNewVector, v4)
	for lane := range 4 {
		x := g.Emit(body, graph.KindLoadField, graph.TF32, src)
		g.Node(x).Index = lane
		st := g.Emit(body, graph.KindStoreField, graph.TVoid, v, g.Binary(body, graph.KindMul, x, s))
		g.Node(st).Index = lane
	}
	g.Store(body, out, i, g.Binary(body, graph.KindAdd, v, v))
	g.Emit(g.Entry(), graph.KindReturn, graph.TVoid)
	return g
}

// Math builds b[i] = sqrt(a[i]) + exp(a[i]) using intrinsics.
func Math() *graph.Graph {
	g := graph.New("math")
	a := g.AddParam("a", graph.ArrayOf(graph.TF32))
	b := g.AddParam("b", graph.ArrayOf(graph.TF32))
	n := g.AddParam("n", graph.TI32)
	loop, i := ParLoop(g, g.Entry(), n)
	body := g.Body(loop)
	x := g.Load(body, a, i)
	s := g.Call(body, graph.IntrinsicSqrt, graph.TF32, x)
	e := g.Call(body, graph.IntrinsicExp, graph.TF32, x)
	g.Store(body, b, i, g.Binary(body, graph.KindAdd, s, e))
	g.Emit(g.Entry(), graph.KindReturn, graph.TVoid)
	return g
}

// Annotate returns the phis flagged parallel and the parameters flagged
// reduce, in id order.
func Annotate(g *graph.Graph) (parallel, reduce []graph.NodeID) {
	for _, id := range g.NodeIDs() {
		n := g.Node(id)
		switch {
		case n.Kind == graph.KindPhi && n.Has(graph.FlagParallel):
			parallel = append(parallel, id)
		case n.Kind == graph.KindParam && n.Has(graph.FlagReduce):
			reduce = append(reduce, id)
		}
	}
	return parallel, reduce
}
