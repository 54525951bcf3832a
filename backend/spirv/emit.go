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
	"fmt"
	"slices"
	"strings"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/target"
)

const atomicFloatExtension = "SPV_EXT_shader_atomic_float_add"

var builtinDecorations = map[lir.Builtin]BuiltIn{
	lir.GlobalID:   BuiltInGlobalInvocationID,
	lir.ThreadID:   BuiltInLocalInvocationID,
	lir.BlockID:    BuiltInWorkgroupID,
	lir.BlockDim:   BuiltInWorkgroupSize,
	lir.GridDim:    BuiltInNumWorkgroups,
	lir.GlobalSize: BuiltInGlobalSize,
}

type frame struct {
	merge, cont, header, els uint32
	loop, hasElse            bool
}

type emitter struct {
	k *lir.Kernel
	t *target.Target
	m *ModuleBuilder

	ext      uint32
	params   []uint32
	arrays   []uint32
	values   []uint32 // SSA id of each register
	vars     []uint32 // Function variable of each spilled register, or 0
	builtins map[lir.Builtin]uint32
	frames   []frame

	terminated bool
}

// Emit assembles k into a SPIR-V module for the OpenCL execution
// environment.
func Emit(k *lir.Kernel, t *target.Target) ([]byte, error) {
	m := NewModuleBuilder()
	e := &emitter{
		k:        k,
		t:        t,
		m:        m,
		params:   make([]uint32, len(k.Params)),
		arrays:   make([]uint32, len(k.Arrays)),
		values:   make([]uint32, len(k.Regs)),
		vars:     make([]uint32, len(k.Regs)),
		builtins: make(map[lir.Builtin]uint32),
	}
	for _, c := range []Capability{CapabilityAddresses, CapabilityKernel, CapabilityInt64} {
		m.AddCapability(c)
	}
	e.ext = m.AddExtInstImport("OpenCL.std")
	m.SetMemoryModel(addressingPhysical64, memoryModelOpenCL)
	m.AddSource(sourceLanguageOpenCLC, 102000)

	fn, err := e.function()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}

	var interfaces []uint32
	for _, b := range []lir.Builtin{lir.GlobalID, lir.ThreadID, lir.BlockID, lir.BlockDim, lir.GridDim, lir.GlobalSize} {
		if id, ok := e.builtins[b]; ok {
			interfaces = append(interfaces, id)
		}
	}
	m.AddEntryPoint(executionModelKernel, fn, k.Name, interfaces...)
	if k.LocalSize > 0 {
		m.AddExecutionMode(fn, executionModeLocalSize, uint32(k.LocalSize), 1, 1)
	}
	m.AddName(fn, k.Name)
	return m.Bytes(), nil
}

func (e *emitter) function() (uint32, error) {
	m := e.m
	void := m.TypeVoid()
	ptypes := make([]uint32, len(e.k.Params))
	for i, p := range e.k.Params {
		ty, err := e.paramType(p)
		if err != nil {
			return 0, err
		}
		ptypes[i] = ty
	}
	for i, a := range e.k.Arrays {
		if a.Space == lir.SpaceLocal {
			ptr := m.TypePointer(StorageClassWorkgroup, e.arrayType(a))
			e.arrays[i] = m.GlobalVariable(ptr, StorageClassWorkgroup)
			m.AddName(e.arrays[i], a.Name)
		}
	}

	fnType := m.TypeFunction(void, ptypes...)
	fn := m.AllocID()
	m.Func(OpFunction, void, fn, 0, fnType)
	for i, p := range e.k.Params {
		e.params[i] = m.AllocID()
		m.Func(OpFunctionParameter, ptypes[i], e.params[i])
		m.AddName(e.params[i], p.Name)
	}
	m.Func(OpLabel, m.AllocID())

	// Function variables come first in the entry block.
	for i, a := range e.k.Arrays {
		if a.Space != lir.SpaceLocal {
			e.arrays[i] = e.variable(e.arrayType(a))
			m.AddName(e.arrays[i], a.Name)
		}
	}
	for r, spill := range spilled(e.k) {
		if spill {
			ty, err := e.typ(e.k.Regs[r].Type)
			if err != nil {
				return 0, err
			}
			e.vars[r] = e.variable(ty)
		}
	}

	for i := range e.k.Body {
		inst := &e.k.Body[i]
		if err := e.inst(inst); err != nil {
			return 0, fmt.Errorf("%s: %w", inst.Op, err)
		}
	}
	if len(e.frames) > 0 {
		return 0, fmt.Errorf("%d control regions left open", len(e.frames))
	}
	if !e.terminated {
		m.Func(OpReturn)
	}
	m.Func(OpFunctionEnd)
	return fn, nil
}

func (e *emitter) variable(ty uint32) uint32 {
	id := e.m.AllocID()
	e.m.Func(OpVariable, e.m.TypePointer(StorageClassFunction, ty), id, uint32(StorageClassFunction))
	return id
}

// spilled reports the registers that live in Function variables: those
// assigned more than once and those read outside the structured region that
// defines them.
func spilled(k *lir.Kernel) []bool {
	out := make([]bool, len(k.Regs))
	for r, info := range k.Regs {
		out[r] = info.Mutable
	}
	var (
		stack  []int
		loops  []int
		next   int
		defAt  = make([][]int, len(k.Regs))
		define = make([]bool, len(k.Regs))
	)
	push := func() {
		next++
		stack = append(stack, next)
	}
	use := func(o lir.Operand) {
		if o.Kind != lir.OperandReg || !define[o.Reg] {
			return
		}
		def := defAt[o.Reg]
		if len(def) > len(stack) || !slices.Equal(stack[:len(def)], def) {
			out[o.Reg] = true
		}
	}
	for _, inst := range k.Body {
		for _, a := range inst.Args {
			use(a)
		}
		use(inst.Addr.Index)
		switch inst.Op {
		case lir.OpIfBegin:
			push()
		case lir.OpElse:
			stack = stack[:len(stack)-1]
			push()
		case lir.OpIfEnd:
			stack = stack[:len(stack)-1]
		case lir.OpLoopBegin:
			push()
			loops = append(loops, 0)
		case lir.OpBreakUnless:
			push()
			loops[len(loops)-1]++
		case lir.OpLoopEnd:
			stack = stack[:len(stack)-1-loops[len(loops)-1]]
			loops = loops[:len(loops)-1]
		}
		if inst.Dst != lir.NoReg && !define[inst.Dst] {
			define[inst.Dst] = true
			defAt[inst.Dst] = slices.Clone(stack)
		}
	}
	return out
}

func (e *emitter) scalarType(p graph.Prim) (uint32, error) {
	m := e.m
	switch {
	case p == graph.Bool:
		return m.TypeBool(), nil
	case !e.t.SupportsType(graph.Scalar(p)):
		return 0, fmt.Errorf("no encoding for %s", p)
	case p.IsFloat():
		if p == graph.F64 {
			m.AddCapability(CapabilityFloat64)
		}
		return m.TypeFloat(uint32(p.Bits())), nil
	}
	switch p.Bits() {
	case 8:
		m.AddCapability(CapabilityInt8)
	case 16:
		m.AddCapability(CapabilityInt16)
	}
	return m.TypeInt(uint32(p.Bits())), nil
}

func (e *emitter) typ(t graph.Type) (uint32, error) {
	elem, err := e.scalarType(t.Prim)
	if err != nil || !t.IsVector() {
		return elem, err
	}
	if t.NumLanes() >= 8 {
		e.m.AddCapability(CapabilityVector16)
	}
	return e.m.TypeVector(elem, uint32(t.NumLanes())), nil
}

func (e *emitter) mustType(t graph.Type) uint32 {
	id, err := e.typ(t)
	if err != nil {
		panic(err)
	}
	return id
}

func (e *emitter) storageClass(s lir.Space) StorageClass {
	switch s {
	case lir.SpaceLocal:
		return StorageClassWorkgroup
	case lir.SpacePrivate:
		return StorageClassFunction
	case lir.SpaceConstant:
		return StorageClassUniformConstant
	}
	return StorageClassCrossWorkgroup
}

func (e *emitter) paramType(p lir.Param) (uint32, error) {
	if !p.Type.Array {
		if p.Type.Prim == graph.Bool {
			return 0, fmt.Errorf("parameter %s: bool parameters are not allowed in kernels", p.Name)
		}
		return e.typ(p.Type)
	}
	elem, err := e.typ(p.Type.Elem())
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	return e.m.TypePointer(e.storageClass(p.Space), elem), nil
}

func (e *emitter) arrayType(a lir.Array) uint32 {
	elem := e.mustType(a.Elem)
	n := e.m.Constant(e.m.TypeInt(32), 32, uint64(a.Len))
	return e.m.TypeArray(elem, n)
}

func (e *emitter) constant(t graph.Type, l graph.Lit) uint32 {
	ty := e.mustType(t)
	switch {
	case t.Prim == graph.Bool:
		return e.m.ConstantBool(ty, l.I != 0)
	case t.Prim.IsFloat():
		return e.m.ConstantFloat(ty, t.Prim.Bits(), l.F)
	}
	bits := uint64(l.I)
	if t.Prim.Bits() < 64 {
		bits &= 1<<t.Prim.Bits() - 1
	}
	return e.m.Constant(ty, t.Prim.Bits(), bits)
}

func (e *emitter) i32(v uint32) uint32 {
	return e.m.Constant(e.m.TypeInt(32), 32, uint64(v))
}

// val returns the id holding o, loading spilled registers.
func (e *emitter) val(o lir.Operand) uint32 {
	switch o.Kind {
	case lir.OperandReg:
		if v := e.vars[o.Reg]; v != 0 {
			id := e.m.AllocID()
			e.m.Func(OpLoad, e.mustType(e.k.Regs[o.Reg].Type), id, v)
			return id
		}
		return e.values[o.Reg]
	case lir.OperandImm:
		return e.constant(o.Type, o.Imm)
	case lir.OperandParam:
		return e.params[o.Index]
	}
	panic(fmt.Sprintf("operand %s has no value", o))
}

func (e *emitter) vals(ops []lir.Operand) []uint32 {
	out := make([]uint32, len(ops))
	for i, o := range ops {
		out[i] = e.val(o)
	}
	return out
}

// def binds the result id of inst.
func (e *emitter) def(inst *lir.Inst, id uint32) {
	if v := e.vars[inst.Dst]; v != 0 {
		e.m.Func(OpStore, v, id)
		return
	}
	e.values[inst.Dst] = id
}

// op emits a value instruction of the register type of inst and binds its
// result.
func (e *emitter) op(inst *lir.Inst, op OpCode, operands ...uint32) uint32 {
	id := e.m.AllocID()
	e.m.Func(op, append([]uint32{e.mustType(inst.Type), id}, operands...)...)
	if inst.Dst != lir.NoReg {
		e.def(inst, id)
	}
	return id
}

func (e *emitter) inst(inst *lir.Inst) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok {
				panic(r)
			}
			err = perr
		}
	}()
	if e.terminated && inst.Op != lir.OpElse && inst.Op != lir.OpIfEnd && inst.Op != lir.OpLoopEnd {
		e.m.Func(OpLabel, e.m.AllocID())
		e.terminated = false
	}
	m := e.m
	switch inst.Op {
	case lir.OpAssign:
		e.def(inst, e.val(inst.Args[0]))
	case lir.OpBinary:
		op, err := binaryOp(inst.Kind, inst.Type.Prim)
		if err != nil {
			return err
		}
		e.op(inst, op, e.vals(inst.Args)...)
	case lir.OpUnary:
		op := OpSNegate
		switch {
		case inst.Kind == graph.KindNot && inst.Type.Prim == graph.Bool:
			op = OpLogicalNot
		case inst.Kind == graph.KindNot:
			op = OpNot
		case inst.Type.Prim.IsFloat():
			op = OpFNegate
		}
		e.op(inst, op, e.val(inst.Args[0]))
	case lir.OpCompare:
		op, err := compareOp(inst.Cond, inst.Args[0].Type.Prim)
		if err != nil {
			return err
		}
		e.op(inst, op, e.vals(inst.Args)...)
	case lir.OpConvert:
		return e.convert(inst)
	case lir.OpLoad:
		ptr, err := e.pointer(inst.Addr)
		if err != nil {
			return err
		}
		e.op(inst, OpLoad, ptr, memoryAccessAligned, alignment(inst.Addr.Elem))
	case lir.OpStore:
		if inst.Addr.Space == lir.SpaceConstant {
			return fmt.Errorf("store to constant memory")
		}
		ptr, err := e.pointer(inst.Addr)
		if err != nil {
			return err
		}
		m.Func(OpStore, ptr, e.val(inst.Args[0]), memoryAccessAligned, alignment(inst.Addr.Elem))
	case lir.OpIntrinsic:
		return e.intrinsic(inst)
	case lir.OpBuiltin:
		return e.builtin(inst)
	case lir.OpAtomic:
		return e.atomic(inst)
	case lir.OpBarrier:
		sem := uint32(semanticsAcquireRelease | semanticsWorkgroupMemory)
		if inst.Addr.Space == lir.SpaceGlobal {
			sem = semanticsAcquireRelease | semanticsCrossWorkgroupMemory
		}
		m.Func(OpControlBarrier, e.i32(scopeWorkgroup), e.i32(scopeWorkgroup), e.i32(sem))
	case lir.OpSplat:
		x := e.val(inst.Args[0])
		e.op(inst, OpCompositeConstruct, slices.Repeat([]uint32{x}, inst.Type.NumLanes())...)
	case lir.OpInsert:
		vec := e.val(inst.Args[0])
		e.op(inst, OpCompositeInsert, e.val(inst.Args[1]), vec, uint32(inst.Lane))
	case lir.OpExtract:
		e.op(inst, OpCompositeExtract, e.val(inst.Args[0]), uint32(inst.Lane))

	case lir.OpIfBegin:
		c := e.val(inst.Args[0])
		f := frame{merge: m.AllocID(), els: m.AllocID()}
		then := m.AllocID()
		m.Func(OpSelectionMerge, f.merge, 0)
		m.Func(OpBranchConditional, c, then, f.els)
		m.Func(OpLabel, then)
		e.frames = append(e.frames, f)
	case lir.OpElse:
		f := &e.frames[len(e.frames)-1]
		e.branch(f.merge)
		m.Func(OpLabel, f.els)
		f.hasElse = true
	case lir.OpIfEnd:
		f := e.frames[len(e.frames)-1]
		e.frames = e.frames[:len(e.frames)-1]
		e.branch(f.merge)
		if !f.hasElse {
			m.Func(OpLabel, f.els)
			m.Func(OpBranch, f.merge)
		}
		m.Func(OpLabel, f.merge)
	case lir.OpLoopBegin:
		f := frame{loop: true, header: m.AllocID(), merge: m.AllocID(), cont: m.AllocID()}
		first := m.AllocID()
		m.Func(OpBranch, f.header)
		m.Func(OpLabel, f.header)
		m.Func(OpLoopMerge, f.merge, f.cont, 0)
		m.Func(OpBranch, first)
		m.Func(OpLabel, first)
		e.frames = append(e.frames, f)
	case lir.OpBreakUnless:
		f, ok := e.innermostLoop()
		if !ok {
			return fmt.Errorf("break outside a loop")
		}
		c := e.val(inst.Args[0])
		next := m.AllocID()
		m.Func(OpBranchConditional, c, next, f.merge)
		m.Func(OpLabel, next)
	case lir.OpLoopEnd:
		f := e.frames[len(e.frames)-1]
		e.frames = e.frames[:len(e.frames)-1]
		e.branch(f.cont)
		m.Func(OpLabel, f.cont)
		m.Func(OpBranch, f.header)
		m.Func(OpLabel, f.merge)
	case lir.OpReturn:
		m.Func(OpReturn)
		e.terminated = true
	default:
		return fmt.Errorf("unknown instruction")
	}
	return nil
}

// alignment returns the OpenCL alignment of t: its size, with three-lane
// vectors aligned like four.
func alignment(t graph.Type) uint32 {
	n := t.NumLanes()
	if n == 3 {
		n = 4
	}
	return uint32(n * t.Prim.Bytes())
}

// branch closes the current block with a branch to target unless it has
// already returned.
func (e *emitter) branch(target uint32) {
	if !e.terminated {
		e.m.Func(OpBranch, target)
	}
	e.terminated = false
}

func (e *emitter) innermostLoop() (frame, bool) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if e.frames[i].loop {
			return e.frames[i], true
		}
	}
	return frame{}, false
}

func binaryOp(k graph.Kind, p graph.Prim) (OpCode, error) {
	float, signed := p.IsFloat(), p.IsSigned()
	switch k {
	case graph.KindAdd:
		return pick(float, OpFAdd, OpIAdd), nil
	case graph.KindSub:
		return pick(float, OpFSub, OpISub), nil
	case graph.KindMul:
		return pick(float, OpFMul, OpIMul), nil
	case graph.KindDiv:
		if float {
			return OpFDiv, nil
		}
		return pick(signed, OpSDiv, OpUDiv), nil
	case graph.KindRem:
		if float {
			return OpFRem, nil
		}
		return pick(signed, OpSRem, OpUMod), nil
	case graph.KindAnd:
		return pick(p == graph.Bool, OpLogicalAnd, OpBitwiseAnd), nil
	case graph.KindOr:
		return pick(p == graph.Bool, OpLogicalOr, OpBitwiseOr), nil
	case graph.KindXor:
		return pick(p == graph.Bool, OpLogicalNotEqual, OpBitwiseXor), nil
	case graph.KindShl:
		return OpShiftLeftLogical, nil
	case graph.KindShr:
		return OpShiftRightArithmetic, nil
	case graph.KindUShr:
		return OpShiftRightLogical, nil
	}
	return 0, fmt.Errorf("binary %s on %s", k, p)
}

func pick(cond bool, a, b OpCode) OpCode {
	if cond {
		return a
	}
	return b
}

var (
	signedConds   = [...]OpCode{OpIEqual, OpINotEqual, OpSLessThan, OpSLessThanEqual, OpSGreaterThan, OpSGreaterThanEqual}
	unsignedConds = [...]OpCode{OpIEqual, OpINotEqual, OpULessThan, OpULessThanEqual, OpUGreaterThan, OpUGreaterThanEqual}
	// Inequality is unordered so that NaN != x holds.
	floatConds = [...]OpCode{OpFOrdEqual, OpFUnordNotEqual, OpFOrdLessThan, OpFOrdLessThanEqual, OpFOrdGreaterThan, OpFOrdGreaterThanEqual}
)

func compareOp(c graph.Cond, p graph.Prim) (OpCode, error) {
	if int(c) >= len(signedConds) {
		return 0, fmt.Errorf("condition %s", c)
	}
	switch {
	case p == graph.Bool && c == graph.CondEQ:
		return OpLogicalEqual, nil
	case p == graph.Bool && c == graph.CondNE:
		return OpLogicalNotEqual, nil
	case p == graph.Bool:
		return 0, fmt.Errorf("ordered comparison of bool")
	case p.IsFloat():
		return floatConds[c], nil
	case p.IsSigned():
		return signedConds[c], nil
	}
	return unsignedConds[c], nil
}

func (e *emitter) convert(inst *lir.Inst) error {
	src := inst.Args[0]
	from, to := src.Type.Prim, inst.Type.Prim
	x := e.val(src)
	switch {
	case from == to, from.IsInt() && to.IsInt() && from.Bits() == to.Bits():
		e.def(inst, x)
	case to == graph.Bool:
		zero := e.constant(src.Type, graph.Zero())
		e.op(inst, pick(from.IsFloat(), OpFUnordNotEqual, OpINotEqual), x, zero)
	case from == graph.Bool:
		one, zero := graph.IntLit(1), graph.Zero()
		if to.IsFloat() {
			one = graph.FloatLit(1)
		}
		e.op(inst, OpSelect, x, e.constant(inst.Type, one), e.constant(inst.Type, zero))
	case from.IsInt() && to.IsInt():
		e.op(inst, pick(from.IsSigned() && to.Bits() > from.Bits(), OpSConvert, OpUConvert), x)
	case from.IsInt():
		e.op(inst, pick(from.IsSigned(), OpConvertSToF, OpConvertUToF), x)
	case to.IsInt():
		e.op(inst, pick(to.IsSigned(), OpConvertFToS, OpConvertFToU), x)
	default:
		e.op(inst, OpFConvert, x)
	}
	return nil
}

// pointer returns an id pointing at the element a addresses.
func (e *emitter) pointer(a lir.Address) (uint32, error) {
	elem, err := e.typ(a.Elem)
	if err != nil {
		return 0, err
	}
	ptrType := e.m.TypePointer(e.storageClass(a.Space), elem)
	idx := e.val(a.Index)
	id := e.m.AllocID()
	switch a.Base.Kind {
	case lir.OperandParam:
		e.m.Func(OpInBoundsPtrAccessChain, ptrType, id, e.params[a.Base.Index], idx)
	case lir.OperandArray:
		e.m.Func(OpInBoundsAccessChain, ptrType, id, e.arrays[a.Base.Index], idx)
	default:
		return 0, fmt.Errorf("address base %s", a.Base)
	}
	return id, nil
}

// extName resolves the OpenCL.std instruction name of an intrinsic whose
// encoding depends on the operand kind.
func extName(name string, p graph.Prim) string {
	switch name {
	case "min", "max":
		if p.IsFloat() {
			return "f" + name
		}
	case "clamp":
		if p.IsFloat() {
			return "fclamp"
		}
	case "abs":
	default:
		return name
	}
	if p.IsSigned() {
		return "s_" + name
	}
	return "u_" + name
}

func (e *emitter) intrinsic(inst *lir.Inst) error {
	p := inst.Type.Prim
	if len(inst.Args) > 0 {
		p = inst.Args[0].Type.Prim
	}
	info, ok := e.t.Intrinsic(inst.Intrinsic, p)
	if !ok {
		return fmt.Errorf("no %s encoding for %s", inst.Intrinsic, p)
	}
	args := e.vals(inst.Args)
	if info.Name == "OpDot" {
		e.op(inst, OpDot, args...)
		return nil
	}
	num, ok := openclStd[extName(info.Name, p)]
	if !ok {
		return fmt.Errorf("no OpenCL.std instruction %s", extName(info.Name, p))
	}
	e.op(inst, OpExtInst, append([]uint32{e.ext, num}, args...)...)
	return nil
}

func (e *emitter) builtin(inst *lir.Inst) error {
	dec, ok := builtinDecorations[inst.Builtin]
	if !ok {
		return fmt.Errorf("no %s built-in", inst.Builtin)
	}
	m := e.m
	u64 := m.TypeInt(64)
	v3 := m.TypeVector(u64, 3)
	v, ok := e.builtins[inst.Builtin]
	if !ok {
		v = m.GlobalVariable(m.TypePointer(StorageClassInput, v3), StorageClassInput)
		m.AddDecorate(v, decorationBuiltIn, uint32(dec))
		m.AddDecorate(v, decorationConstant)
		m.AddName(v, "__spirv_BuiltIn"+e.t.Builtins[inst.Builtin])
		e.builtins[inst.Builtin] = v
	}
	vec, comp := m.AllocID(), m.AllocID()
	m.Func(OpLoad, v3, vec, v, memoryAccessAligned, 32)
	m.Func(OpCompositeExtract, u64, comp, vec, uint32(inst.Dim))
	if inst.Type.Prim.Bits() == 64 {
		e.def(inst, comp)
		return nil
	}
	e.op(inst, OpUConvert, comp)
	return nil
}

func (e *emitter) atomic(inst *lir.Inst) error {
	p := inst.Type.Prim
	info, ok := e.t.Atomic(inst.Atomic, p)
	if !ok {
		return fmt.Errorf("no atomic %s for %s", inst.Atomic, p)
	}
	scope := uint32(scopeDevice)
	switch inst.Addr.Space {
	case lir.SpaceGlobal:
	case lir.SpaceLocal:
		scope = scopeWorkgroup
	default:
		return fmt.Errorf("atomic %s on %s memory", inst.Atomic, inst.Addr.Space)
	}
	ptr, err := e.pointer(inst.Addr)
	if err != nil {
		return err
	}
	v := e.val(inst.Args[0])
	name, neg := strings.CutSuffix(info.Name, ".neg")
	if neg {
		n := e.m.AllocID()
		e.m.Func(OpFNegate, e.mustType(inst.Type), n, v)
		v = n
	}
	var op OpCode
	switch name {
	case "OpAtomicIAdd":
		op = OpAtomicIAdd
	case "OpAtomicISub":
		op = OpAtomicISub
	case "OpAtomicFAddEXT":
		op = OpAtomicFAddEXT
		e.m.AddExtension(atomicFloatExtension)
		if p == graph.F64 {
			e.m.AddCapability(CapabilityAtomicFloat64AddEXT)
		} else {
			e.m.AddCapability(CapabilityAtomicFloat32AddEXT)
		}
	default:
		return fmt.Errorf("atomic encoding %s", info.Name)
	}
	if p.Bits() == 64 && p.IsInt() {
		e.m.AddCapability(CapabilityInt64Atomics)
	}
	e.op(inst, op, ptr, e.i32(scope), e.i32(semanticsRelaxed), v)
	return nil
}
