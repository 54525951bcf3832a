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
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/internal/graphtest"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/phases"
)

func lowerGraph(t *testing.T, g *graph.Graph, opts lower.Options) (*lir.Kernel, error) {
	t.Helper()
	b := New()
	pctx := phases.NewContext(g, testr.New(t))
	require.NoError(t, phases.Run(pctx))
	res, err := lower.Lower(g, &pctx.Result, b.Target(), b.Generators(lower.Defaults()), opts, testr.New(t))
	if err != nil {
		return nil, err
	}
	require.NoError(t, lir.Verify(res.Kernel))
	return res.Kernel, nil
}

func emit(t *testing.T, g *graph.Graph, opts lower.Options) *Module {
	t.Helper()
	k, err := lowerGraph(t, g, opts)
	require.NoError(t, err)
	bin, err := New().Emit(k)
	require.NoError(t, err)
	m, err := Decode(bin)
	require.NoError(t, err)
	return m
}

// storageClasses returns the storage class of every OpVariable.
func storageClasses(m *Module) []StorageClass {
	var out []StorageClass
	for _, in := range m.Find(OpVariable) {
		out = append(out, StorageClass(in.Operands[2]))
	}
	return out
}

func countClass(m *Module, sc StorageClass) int {
	n := 0
	for _, c := range storageClasses(m) {
		if c == sc {
			n++
		}
	}
	return n
}

func TestVectorAdd(t *testing.T) {
	m := emit(t, graphtest.VectorAdd(graph.TF32), lower.Options{})
	assert.Equal(t, Version, m.Version)
	assert.Equal(t, []Capability{CapabilityAddresses, CapabilityKernel, CapabilityInt64}, m.Capabilities())

	eps := m.Find(OpEntryPoint)
	require.Len(t, eps, 1)
	assert.Equal(t, uint32(executionModelKernel), eps[0].Operands[0])
	assert.Equal(t, "vectorAdd", eps[0].String(2))

	imports := m.Find(OpExtInstImport)
	require.Len(t, imports, 1)
	assert.Equal(t, "OpenCL.std", imports[0].String(1))

	var builtins []uint32
	for _, d := range m.Find(OpDecorate) {
		if d.Operands[1] == decorationBuiltIn {
			builtins = append(builtins, d.Operands[2])
		}
	}
	assert.Equal(t, []uint32{uint32(BuiltInGlobalInvocationID)}, builtins)
	assert.Equal(t, 1, countClass(m, StorageClassInput))

	assert.Equal(t, 4, m.Count(OpFunctionParameter))
	assert.Equal(t, 3, m.Count(OpInBoundsPtrAccessChain))
	assert.Equal(t, 1, m.Count(OpSelectionMerge))
	assert.Equal(t, 1, m.Count(OpSLessThan))
	assert.Equal(t, 1, m.Count(OpFAdd))
	assert.Equal(t, 1, m.Count(OpUConvert), "size_t id narrowed to int")
	assert.Zero(t, m.Count(OpExecutionMode))
	assert.Equal(t, 1, m.Count(OpVariable), "only the built-in is a variable")

	last := m.Instructions[len(m.Instructions)-2:]
	assert.Equal(t, OpReturn, last[0].Op)
	assert.Equal(t, OpFunctionEnd, last[1].Op)
	assert.Equal(t, 1, m.Count(OpReturn))
}

func TestConstantParams(t *testing.T) {
	m := emit(t, graphtest.VectorAdd(graph.TF64), lower.Options{ConstantParams: true})
	assert.Contains(t, m.Capabilities(), CapabilityFloat64)
	var classes []StorageClass
	for _, p := range m.Find(OpTypePointer) {
		classes = append(classes, StorageClass(p.Operands[1]))
	}
	assert.Contains(t, classes, StorageClassUniformConstant)
	assert.Contains(t, classes, StorageClassCrossWorkgroup)
}

func TestLocalTreeReduction(t *testing.T) {
	m := emit(t, graphtest.Reduce(graph.KindAdd, graph.TF32), lower.Options{})

	exts := m.Find(OpExtension)
	require.Len(t, exts, 1)
	assert.Equal(t, atomicFloatExtension, exts[0].String(0))
	assert.Contains(t, m.Capabilities(), CapabilityAtomicFloat32AddEXT)
	assert.Equal(t, 1, m.Count(OpAtomicFAddEXT))

	// log2(64) halving steps plus the barrier after the initial store.
	assert.Equal(t, 7, m.Count(OpControlBarrier))
	assert.Equal(t, 1, countClass(m, StorageClassWorkgroup))

	modes := m.Find(OpExecutionMode)
	require.Len(t, modes, 1)
	assert.Equal(t, []uint32{executionModeLocalSize, 64, 1, 1}, modes[0].Operands[1:])

	var builtins []uint32
	for _, d := range m.Find(OpDecorate) {
		if d.Operands[1] == decorationBuiltIn {
			builtins = append(builtins, d.Operands[2])
		}
	}
	assert.Contains(t, builtins, uint32(BuiltInLocalInvocationID))
}

func TestGlobalAtomics(t *testing.T) {
	tests := []struct {
		name string
		op   graph.Kind
		elem graph.Type
		want []OpCode
		caps []Capability
	}{
		{name: "int sub", op: graph.KindSub, elem: graph.TI32, want: []OpCode{OpAtomicISub}},
		{name: "long add", op: graph.KindAdd, elem: graph.TI64, want: []OpCode{OpAtomicIAdd}, caps: []Capability{CapabilityInt64Atomics}},
		{name: "double sub", op: graph.KindSub, elem: graph.TF64, want: []OpCode{OpFNegate, OpAtomicFAddEXT}, caps: []Capability{CapabilityFloat64, CapabilityAtomicFloat64AddEXT}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := emit(t, graphtest.Reduce(tt.op, tt.elem), lower.Options{ForceGlobalAtomics: true})
			for _, op := range tt.want {
				assert.Equal(t, 1, m.Count(op), op.String())
			}
			for _, c := range tt.caps {
				assert.Contains(t, m.Capabilities(), c)
			}
			assert.Zero(t, m.Count(OpControlBarrier))
			assert.Zero(t, countClass(m, StorageClassWorkgroup))
		})
	}
}

func TestMulReductionUnsupported(t *testing.T) {
	_, err := lowerGraph(t, graphtest.Reduce(graph.KindMul, graph.TF32), lower.Options{})
	require.ErrorIs(t, err, graph.ErrUnsupported)
	var ue *graph.UnsupportedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, Name, ue.Backend)
	assert.Contains(t, ue.Reason, "no atomic mul for f32")
}

func TestSequentialLoop(t *testing.T) {
	m := emit(t, graphtest.MatMul(), lower.Options{})
	assert.Equal(t, 1, m.Count(OpLoopMerge))
	assert.GreaterOrEqual(t, countClass(m, StorageClassFunction), 2, "induction variable and running sum")

	var dims []uint32
	for _, in := range m.Find(OpCompositeExtract) {
		dims = append(dims, in.Operands[3])
	}
	assert.Contains(t, dims, uint32(0))
	assert.Contains(t, dims, uint32(1))
}

func TestIfElse(t *testing.T) {
	m := emit(t, graphtest.Abs(), lower.Options{})
	assert.Equal(t, 2, m.Count(OpSelectionMerge))
	assert.Equal(t, 1, m.Count(OpFOrdGreaterThan))
	assert.Equal(t, 1, m.Count(OpFNegate))
}

func TestMath(t *testing.T) {
	m := emit(t, graphtest.Math(), lower.Options{})
	var fns []uint32
	for _, in := range m.Find(OpExtInst) {
		fns = append(fns, in.Operands[3])
	}
	assert.ElementsMatch(t, []uint32{openclStd["sqrt"], openclStd["exp"]}, fns)
}

func TestVectors(t *testing.T) {
	m := emit(t, graphtest.Scale4(), lower.Options{})
	var lanes []uint32
	for _, in := range m.Find(OpTypeVector) {
		lanes = append(lanes, in.Operands[2])
	}
	assert.Contains(t, lanes, uint32(4))
	assert.NotZero(t, m.Count(OpCompositeInsert))
}

func TestSpilled(t *testing.T) {
	b := lir.NewBuilder("spill")
	c := b.AddParam(lir.Param{Name: "c", Type: graph.TBool})
	x := b.AddParam(lir.Param{Name: "x", Type: graph.TI32})

	outer := b.Binary(graph.KindAdd, graph.TI32, x, x)
	b.IfBegin(c)
	inner := b.Binary(graph.KindMul, graph.TI32, outer, x)
	local := b.Binary(graph.KindAdd, graph.TI32, inner, x)
	b.IfEnd()
	escape := b.Binary(graph.KindSub, graph.TI32, inner, outer)
	b.Return()

	got := spilled(b.Kernel())
	assert.False(t, got[outer.Reg], "used in a nested region")
	assert.True(t, got[inner.Reg], "used after its region closes")
	assert.False(t, got[local.Reg])
	assert.False(t, got[escape.Reg])
}

func TestStraightLineKernel(t *testing.T) {
	b := lir.NewBuilder("store")
	out := b.AddParam(lir.Param{Name: "out", Type: graph.ArrayOf(graph.Scalar(graph.U8)), Space: lir.SpaceGlobal})
	v := b.Convert(graph.Scalar(graph.U8), lir.IntImm(graph.TI32, 300))
	b.Store(lir.Address{Space: lir.SpaceGlobal, Base: out, Index: lir.IntImm(graph.TI32, 1), Elem: graph.Scalar(graph.U8)}, v)

	bin, err := Emit(b.Kernel(), Target())
	require.NoError(t, err)
	m, err := Decode(bin)
	require.NoError(t, err)
	assert.Contains(t, m.Capabilities(), CapabilityInt8)
	assert.Equal(t, 1, m.Count(OpUConvert))
	assert.Equal(t, 1, m.Count(OpReturn), "closing return added")

	stores := m.Find(OpStore)
	require.Len(t, stores, 1)
	assert.Equal(t, []uint32{memoryAccessAligned, 1}, stores[0].Operands[2:])
}

func TestBoolParamRejected(t *testing.T) {
	b := lir.NewBuilder("flag")
	b.AddParam(lir.Param{Name: "f", Type: graph.TBool})
	_, err := Emit(b.Kernel(), Target())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bool parameters")
}

func TestDecodeErrors(t *testing.T) {
	valid := NewModuleBuilder().Bytes()
	truncated := NewModuleBuilder()
	truncated.AddCapability(CapabilityKernel)
	bad := truncated.Bytes()
	bad[20+2] = 9 // word count of the capability

	tests := []struct {
		name string
		in   []byte
	}{
		{name: "empty", in: nil},
		{name: "unaligned", in: valid[:len(valid)-1]},
		{name: "bad magic", in: append([]byte{0, 0, 0, 0}, valid[4:]...)},
		{name: "bad word count", in: bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}

	m, err := Decode(valid)
	require.NoError(t, err)
	assert.Empty(t, m.Instructions)
	assert.Equal(t, uint32(1), m.Bound)
}

func TestRegistry(t *testing.T) {
	r := Target().Registry
	for _, site := range []string{"Math.tan", "Math.pow", "Vector.dot", "KernelContext.atomicAdd", "KernelContext.localBarrier"} {
		_, ok := r.Lookup(site)
		assert.True(t, ok, site)
	}
}
