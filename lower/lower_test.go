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

package lower

import (
	"errors"
	"slices"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/internal/graphtest"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/phases"
	"github.com/ajroetker/go-kernelc/target"
)

func testTarget(tmpl target.Template, globalID bool, lanes ...int) *target.Target {
	prims := []graph.Prim{graph.I32, graph.I64, graph.U32, graph.F32, graph.F64}
	t := &target.Target{
		Name: "testgpu",
		Caps: target.Caps{
			Reduction:        tmpl,
			GlobalIDBuiltin:  globalID,
			MaxDims:          3,
			VectorLanes:      lanes,
			Prims:            prims,
			DefaultLocalSize: 8,
		},
		TypeMap: map[graph.Prim]string{graph.I32: "i", graph.I64: "l", graph.U32: "u", graph.F32: "f", graph.F64: "d"},
		IntrinsicMap: map[graph.Intrinsic]target.OpInfo{
			graph.IntrinsicSqrt: {Name: "sqrt", Prims: []graph.Prim{graph.F32, graph.F64}},
			graph.IntrinsicFabs: {Name: "fabs", Prims: []graph.Prim{graph.F32, graph.F64}},
		},
		AtomicMap: map[target.AtomicKey]target.OpInfo{
			{Op: graph.ReduceAdd, Prim: graph.F32}: {Name: "add"},
			{Op: graph.ReduceAdd, Prim: graph.I32}: {Name: "add"},
			{Op: graph.ReduceSub, Prim: graph.I32}: {Name: "sub"},
		},
		Spaces:   map[lir.Space]string{lir.SpaceGlobal: "g", lir.SpaceLocal: "l", lir.SpacePrivate: "p"},
		Barriers: map[lir.Space]string{lir.SpaceLocal: "bar"},
	}
	t.Registry = target.NewRegistryFor(t)
	return t
}

func lowerGraph(t *testing.T, g *graph.Graph, tgt *target.Target, opts Options) (*Result, *phases.Result, error) {
	t.Helper()
	pctx := phases.NewContext(g, testr.New(t))
	require.NoError(t, phases.Run(pctx))
	res, err := Lower(g, &pctx.Result, tgt, Defaults(), opts, testr.New(t))
	if err == nil {
		require.NoError(t, lir.Verify(res.Kernel))
	}
	return res, &pctx.Result, err
}

func count(k *lir.Kernel, pred func(*lir.Inst) bool) int {
	n := 0
	for i := range k.Body {
		if pred(&k.Body[i]) {
			n++
		}
	}
	return n
}

func op(o lir.Op) func(*lir.Inst) bool {
	return func(inst *lir.Inst) bool { return inst.Op == o }
}

func builtin(b lir.Builtin) func(*lir.Inst) bool {
	return func(inst *lir.Inst) bool { return inst.Op == lir.OpBuiltin && inst.Builtin == b }
}

func TestVectorAdd(t *testing.T) {
	g := graphtest.VectorAdd(graph.TF32)
	res, _, err := lowerGraph(t, g, testTarget(target.GlobalAtomic, true), Options{})
	require.NoError(t, err)
	k := res.Kernel

	assert.Equal(t, "vectorAdd", k.Name)
	assert.Equal(t, 1, k.Dims)
	require.Len(t, k.Params, 4)
	assert.Equal(t, lir.Param{Name: "a", Type: graph.ArrayOf(graph.TF32), Space: lir.SpaceGlobal, Access: graph.AccessRead}, k.Params[0])
	assert.Equal(t, graph.AccessWrite, k.Params[2].Access)
	assert.Equal(t, lir.SpaceNone, k.Params[3].Space)

	ops := make([]lir.Op, len(k.Body))
	for i, inst := range k.Body {
		ops[i] = inst.Op
	}
	assert.Equal(t, []lir.Op{
		lir.OpBuiltin, lir.OpCompare, lir.OpIfBegin,
		lir.OpLoad, lir.OpLoad, lir.OpBinary, lir.OpStore,
		lir.OpIfEnd, lir.OpReturn,
	}, ops)
	for _, id := range g.Schedule() {
		assert.Equal(t, "testgpu", g.Node(id).Platform)
	}
}

func TestComposedGlobalID(t *testing.T) {
	res, _, err := lowerGraph(t, graphtest.Copy2D(), testTarget(target.GlobalAtomic, false), Options{})
	require.NoError(t, err)
	k := res.Kernel
	assert.Equal(t, 2, k.Dims)
	assert.Equal(t, 0, count(k, builtin(lir.GlobalID)))
	assert.Equal(t, 2, count(k, builtin(lir.ThreadID)))
	assert.Equal(t, 2, count(k, builtin(lir.BlockID)))
	assert.Equal(t, 2, count(k, builtin(lir.BlockDim)))
	assert.Equal(t, 2, count(k, op(lir.OpIfBegin)), "one bounds guard per dimension")
}

func TestRangeOffsetAndStride(t *testing.T) {
	g := graph.New("strided")
	a := g.AddParam("a", graph.ArrayOf(graph.TI32))
	n := g.AddParam("n", graph.TI32)
	loop, i := g.CountedLoop(g.Entry(), graph.TI32, g.ConstInt(graph.TI32, 3), n, g.ConstInt(graph.TI32, 2), graph.CondLT)
	g.Node(i).Flags |= graph.FlagParallel
	g.Store(g.Body(loop), a, i, i)

	res, _, err := lowerGraph(t, g, testTarget(target.GlobalAtomic, true), Options{})
	require.NoError(t, err)
	body := res.Kernel.Body
	p := slices.IndexFunc(body, func(inst lir.Inst) bool { return inst.Op == lir.OpBuiltin })
	require.GreaterOrEqual(t, p, 0)
	require.Greater(t, len(body), p+2)
	// The symbolic trip count is computed first, then index = 3 + 2*gid.
	assert.Equal(t, graph.KindSub, body[0].Kind)
	assert.Equal(t, graph.KindMul, body[p+1].Kind)
	assert.Equal(t, int64(2), body[p+1].Args[0].Imm.I)
	assert.Equal(t, graph.KindAdd, body[p+2].Kind)
	assert.Equal(t, int64(3), body[p+2].Args[0].Imm.I)
}

func TestGlobalAtomicReduction(t *testing.T) {
	res, _, err := lowerGraph(t, graphtest.Reduce(graph.KindAdd, graph.TF32), testTarget(target.GlobalAtomic, true), Options{})
	require.NoError(t, err)
	assert.Equal(t, []target.Template{target.GlobalAtomic}, res.Templates)
	k := res.Kernel
	require.Equal(t, 1, count(k, op(lir.OpAtomic)))
	for _, inst := range k.Body {
		if inst.Op == lir.OpAtomic {
			assert.Equal(t, graph.ReduceAdd, inst.Atomic)
			assert.Equal(t, lir.NoReg, inst.Dst)
			assert.Equal(t, 1, inst.Addr.Base.Index)
		}
	}
	assert.Zero(t, count(k, op(lir.OpBarrier)))
	assert.Equal(t, graph.AccessReadWrite, k.Params[1].Access)
}

func TestLocalTreeReduction(t *testing.T) {
	res, _, err := lowerGraph(t, graphtest.Reduce(graph.KindAdd, graph.TF32), testTarget(target.LocalTree, true), Options{})
	require.NoError(t, err)
	assert.Equal(t, []target.Template{target.LocalTree}, res.Templates)
	k := res.Kernel

	assert.Equal(t, 8, k.LocalSize)
	require.Len(t, k.Arrays, 1)
	assert.Equal(t, lir.Array{Name: "partial_result", Space: lir.SpaceLocal, Elem: graph.TF32, Len: 8}, k.Arrays[0])
	// One barrier after the store and one after each of the log2(8) steps.
	assert.Equal(t, 4, count(k, op(lir.OpBarrier)))
	assert.Equal(t, 1, count(k, op(lir.OpAtomic)))
	assert.Equal(t, lir.OpReturn, k.Body[len(k.Body)-1].Op, "the epilogue runs before the return")
	assert.Equal(t, lir.OpIfEnd, k.Body[len(k.Body)-2].Op)
}

func TestLocalTreeNeedsPowerOfTwo(t *testing.T) {
	_, _, err := lowerGraph(t, graphtest.Reduce(graph.KindAdd, graph.TF32), testTarget(target.LocalTree, true), Options{LocalSize: 12})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power-of-two")
}

func TestForceGlobalAtomics(t *testing.T) {
	res, _, err := lowerGraph(t, graphtest.Reduce(graph.KindSub, graph.TI32), testTarget(target.LocalTree, true), Options{ForceGlobalAtomics: true, LocalSize: 64})
	require.NoError(t, err)
	assert.Equal(t, []target.Template{target.GlobalAtomic}, res.Templates)
	assert.Equal(t, 64, res.Kernel.LocalSize)
	assert.Empty(t, res.Kernel.Arrays)
}

func TestLocalTreeDegrades(t *testing.T) {
	g := graph.New("reduce2d")
	in := g.AddParam("input", graph.ArrayOf(graph.TF32))
	out := g.AddParam("result", graph.ArrayOf(graph.TF32))
	g.Node(out).Flags |= graph.FlagReduce
	n := g.AddParam("n", graph.TI32)
	outer, i := graphtest.ParLoop(g, g.Entry(), n)
	inner, j := graphtest.ParLoop(g, g.Body(outer), n)
	body := g.Body(inner)
	zero := g.ConstInt(graph.TI32, 0)
	x := g.Load(body, in, g.Binary(body, graph.KindAdd, g.Binary(body, graph.KindMul, i, n), j))
	g.Store(body, out, zero, g.Binary(body, graph.KindAdd, g.Load(body, out, zero), x))

	res, pres, err := lowerGraph(t, g, testTarget(target.LocalTree, true), Options{})
	require.NoError(t, err)
	require.Len(t, pres.Reductions, 1)
	assert.Equal(t, []target.Template{target.GlobalAtomic}, res.Templates)
	require.Len(t, res.Mismatches, 1)
	assert.Contains(t, res.Mismatches[0].Reason, "needs exactly one parallel dimension")
}

func TestMissingAtomicIsUnsupported(t *testing.T) {
	_, _, err := lowerGraph(t, graphtest.Reduce(graph.KindMul, graph.TF32), testTarget(target.GlobalAtomic, true), Options{})
	require.Error(t, err)
	var ue *graph.UnsupportedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "testgpu", ue.Backend)
	assert.Equal(t, PassName, ue.Pass)
	assert.Equal(t, graph.KindReduction, ue.Kind)
	assert.Contains(t, ue.Reason, "no atomic mul for f32")
}

func TestSequentialLoop(t *testing.T) {
	res, _, err := lowerGraph(t, graphtest.MatMul(), testTarget(target.GlobalAtomic, true), Options{})
	require.NoError(t, err)
	k := res.Kernel
	assert.Equal(t, 1, count(k, op(lir.OpLoopBegin)))
	assert.Equal(t, 1, count(k, op(lir.OpBreakUnless)))
	var mutable int
	for _, r := range k.Regs {
		if r.Mutable {
			mutable++
		}
	}
	assert.Equal(t, 2, mutable, "induction variable and running sum")
}

func TestIfPhi(t *testing.T) {
	res, _, err := lowerGraph(t, graphtest.Abs(), testTarget(target.GlobalAtomic, true), Options{})
	require.NoError(t, err)
	k := res.Kernel
	assert.Equal(t, 1, count(k, op(lir.OpElse)))
	assert.Equal(t, 2, count(k, op(lir.OpAssign)))
	assert.Equal(t, 1, count(k, func(inst *lir.Inst) bool { return inst.Op == lir.OpUnary && inst.Kind == graph.KindNeg }))
}

func TestVectorLanes(t *testing.T) {
	tests := []struct {
		name     string
		lanes    []int
		binaries int
	}{
		{name: "native", lanes: []int{2, 4}, binaries: 1},
		{name: "per lane", lanes: nil, binaries: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, pres, err := lowerGraph(t, graphtest.Scale4(), testTarget(target.GlobalAtomic, true, tt.lanes...), Options{})
			require.NoError(t, err)
			require.Len(t, pres.Composites, 1)
			assert.False(t, pres.Composites[0].Scalarized)

			k := res.Kernel
			adds := 0
			for _, inst := range k.Body {
				if inst.Op == lir.OpBinary && inst.Kind == graph.KindAdd && inst.Type.Prim == graph.F32 {
					adds++
				}
			}
			assert.Equal(t, tt.binaries, adds)
			// Four lane loads and four lane stores on the packed arrays.
			assert.Equal(t, 4, count(k, op(lir.OpLoad)))
			assert.Equal(t, 4, count(k, op(lir.OpStore)))
			assert.Equal(t, 4, count(k, func(inst *lir.Inst) bool {
				return inst.Op == lir.OpInsert && inst.Type.IsVector() && inst.Args[0].Kind == lir.OperandReg &&
					k.Regs[inst.Dst].Mutable
			}), "lane stores into the escaped aggregate")
		})
	}
}

func TestUnsupportedConstructs(t *testing.T) {
	tests := []struct {
		name   string
		build  func(g *graph.Graph, body graph.BlockID, a, i graph.NodeID)
		kind   graph.Kind
		reason string
	}{
		{
			name: "unresolved call",
			build: func(g *graph.Graph, body graph.BlockID, a, i graph.NodeID) {
				c := g.Emit(body, graph.KindCall, graph.TF32, g.Load(body, a, i))
				g.Node(c).Name = "Math.cbrt"
				g.Store(body, a, i, c)
			},
			kind:   graph.KindCall,
			reason: `unresolved call "Math.cbrt"`,
		},
		{
			name: "intrinsic without encoding",
			build: func(g *graph.Graph, body graph.BlockID, a, i graph.NodeID) {
				g.Store(body, a, i, g.Call(body, graph.IntrinsicTan, graph.TF32, g.Load(body, a, i)))
			},
			kind:   graph.KindIntrinsic,
			reason: "no tan encoding for f32",
		},
		{
			name: "bitwise float",
			build: func(g *graph.Graph, body graph.BlockID, a, i graph.NodeID) {
				x := g.Load(body, a, i)
				g.Store(body, a, i, g.Binary(body, graph.KindXor, x, x))
			},
			kind:   graph.KindXor,
			reason: "Xor on f32",
		},
		{
			name: "mixed operand types",
			build: func(g *graph.Graph, body graph.BlockID, a, i graph.NodeID) {
				x := g.Load(body, a, i)
				g.Store(body, a, i, g.Emit(body, graph.KindAdd, graph.TF32, x, g.ConstInt(graph.TBool, 1)))
			},
			kind:   graph.KindAdd,
			reason: "operand 1 is bool, want f32",
		},
		{
			name: "comparison of mixed types",
			build: func(g *graph.Graph, body graph.BlockID, a, i graph.NodeID) {
				c := g.Emit(body, graph.KindCompare, graph.TBool, g.Load(body, a, i), i)
				g.Store(body, a, i, g.Emit(body, graph.KindConvert, graph.TF32, c))
			},
			kind:   graph.KindCompare,
			reason: "comparison of f32 with i32",
		},
		{
			name: "unencodable type",
			build: func(g *graph.Graph, body graph.BlockID, a, i graph.NodeID) {
				g.Store(body, a, i, g.Emit(body, graph.KindConvert, graph.TF32, g.Emit(body, graph.KindConvert, graph.Scalar(graph.F16), g.Load(body, a, i))))
			},
			kind:   graph.KindConvert,
			reason: "no encoding for f16",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New("bad")
			a := g.AddParam("a", graph.ArrayOf(graph.TF32))
			n := g.AddParam("n", graph.TI32)
			loop, i := graphtest.ParLoop(g, g.Entry(), n)
			tt.build(g, g.Body(loop), a, i)

			_, _, err := lowerGraph(t, g, testTarget(target.GlobalAtomic, true), Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, graph.ErrUnsupported))
			var ue *graph.UnsupportedError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.kind, ue.Kind)
			assert.Contains(t, ue.Reason, tt.reason)
		})
	}
}

func TestBackendOverride(t *testing.T) {
	table := Defaults()
	var seen []graph.Intrinsic
	base := table[graph.KindIntrinsic]
	table[graph.KindIntrinsic] = func(ctx *Context, n *graph.Node) error {
		seen = append(seen, n.Intrinsic)
		if n.Intrinsic == graph.IntrinsicExp {
			x, err := ctx.Value(n.Input(0))
			if err != nil {
				return err
			}
			ctx.Define(n.ID(), ctx.B.Binary(graph.KindMul, n.Type, x, x))
			return nil
		}
		return base(ctx, n)
	}

	g := graphtest.Math()
	pctx := phases.NewContext(g, testr.New(t))
	require.NoError(t, phases.Run(pctx))
	res, err := Lower(g, &pctx.Result, testTarget(target.GlobalAtomic, true), table, Options{Entry: "Math_run"}, testr.New(t))
	require.NoError(t, err)
	assert.Equal(t, []graph.Intrinsic{graph.IntrinsicSqrt, graph.IntrinsicExp}, seen)
	assert.Equal(t, "Math_run", res.Kernel.Name)
	assert.Equal(t, 1, count(res.Kernel, op(lir.OpIntrinsic)))
}

func TestTableKinds(t *testing.T) {
	table := Defaults()
	kinds := table.Kinds()
	assert.Contains(t, kinds, graph.KindReduction)
	assert.Contains(t, kinds, graph.KindParallelRange)
	assert.NotContains(t, kinds, graph.KindPhi, "phis are materialized by their owner")
	assert.NotContains(t, kinds, graph.KindConst)
}
