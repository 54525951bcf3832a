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
	"encoding/binary"
	"fmt"
	"math"
)

// InstructionBuilder accumulates the operand words of one instruction.
type InstructionBuilder struct {
	words []uint32
}

// NewInstructionBuilder returns an empty builder.
func NewInstructionBuilder() *InstructionBuilder { return &InstructionBuilder{} }

// AddWord appends operand words.
func (ib *InstructionBuilder) AddWord(words ...uint32) *InstructionBuilder {
	ib.words = append(ib.words, words...)
	return ib
}

// AddString appends a literal string: UTF-8, nul terminated, padded to a
// word boundary.
func (ib *InstructionBuilder) AddString(s string) *InstructionBuilder {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	for i := 0; i < len(b); i += 4 {
		ib.words = append(ib.words, binary.LittleEndian.Uint32(b[i:]))
	}
	return ib
}

// Build returns the encoded instruction: word count and opcode, then the
// operands.
func (ib *InstructionBuilder) Build(op OpCode) []uint32 {
	out := make([]uint32, 0, len(ib.words)+1)
	out = append(out, uint32(len(ib.words)+1)<<16|uint32(op))
	return append(out, ib.words...)
}

// ModuleBuilder assembles a module in the section order the SPIR-V logical
// layout requires. Types and constants are deduplicated.
type ModuleBuilder struct {
	nextID uint32

	capabilities []uint32
	extensions   []uint32
	imports      []uint32
	memoryModel  []uint32
	entryPoints  []uint32
	execModes    []uint32
	debug        []uint32
	annotations  []uint32
	types        []uint32
	functions    []uint32

	usedCaps map[Capability]bool
	usedExts map[string]bool
	typeIDs  map[string]uint32
	constIDs map[string]uint32
}

// NewModuleBuilder returns an empty module. IDs start at 1.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{
		nextID:   1,
		usedCaps: make(map[Capability]bool),
		usedExts: make(map[string]bool),
		typeIDs:  make(map[string]uint32),
		constIDs: make(map[string]uint32),
	}
}

// AllocID reserves a fresh result id.
func (m *ModuleBuilder) AllocID() uint32 {
	id := m.nextID
	m.nextID++
	return id
}

// Bound returns one more than the largest id in use.
func (m *ModuleBuilder) Bound() uint32 { return m.nextID }

func (m *ModuleBuilder) AddCapability(c Capability) {
	if m.usedCaps[c] {
		return
	}
	m.usedCaps[c] = true
	m.capabilities = append(m.capabilities, NewInstructionBuilder().AddWord(uint32(c)).Build(OpCapability)...)
}

func (m *ModuleBuilder) AddExtension(name string) {
	if m.usedExts[name] {
		return
	}
	m.usedExts[name] = true
	m.extensions = append(m.extensions, NewInstructionBuilder().AddString(name).Build(OpExtension)...)
}

func (m *ModuleBuilder) AddExtInstImport(name string) uint32 {
	id := m.AllocID()
	m.imports = append(m.imports, NewInstructionBuilder().AddWord(id).AddString(name).Build(OpExtInstImport)...)
	return id
}

func (m *ModuleBuilder) SetMemoryModel(addressing, memory uint32) {
	m.memoryModel = NewInstructionBuilder().AddWord(addressing, memory).Build(OpMemoryModel)
}

func (m *ModuleBuilder) AddEntryPoint(model, fn uint32, name string, interfaces ...uint32) {
	ib := NewInstructionBuilder().AddWord(model, fn).AddString(name).AddWord(interfaces...)
	m.entryPoints = append(m.entryPoints, ib.Build(OpEntryPoint)...)
}

func (m *ModuleBuilder) AddExecutionMode(fn, mode uint32, literals ...uint32) {
	m.execModes = append(m.execModes, NewInstructionBuilder().AddWord(fn, mode).AddWord(literals...).Build(OpExecutionMode)...)
}

func (m *ModuleBuilder) AddSource(language, version uint32) {
	m.debug = append(m.debug, NewInstructionBuilder().AddWord(language, version).Build(OpSource)...)
}

func (m *ModuleBuilder) AddName(id uint32, name string) {
	m.debug = append(m.debug, NewInstructionBuilder().AddWord(id).AddString(name).Build(OpName)...)
}

func (m *ModuleBuilder) AddDecorate(id, decoration uint32, literals ...uint32) {
	m.annotations = append(m.annotations, NewInstructionBuilder().AddWord(id, decoration).AddWord(literals...).Build(OpDecorate)...)
}

// typeID returns the cached id of a type keyed by key, declaring it with op
// and operands on first use.
func (m *ModuleBuilder) typeID(key string, op OpCode, operands ...uint32) uint32 {
	if id, ok := m.typeIDs[key]; ok {
		return id
	}
	id := m.AllocID()
	m.types = append(m.types, NewInstructionBuilder().AddWord(id).AddWord(operands...).Build(op)...)
	m.typeIDs[key] = id
	return id
}

func (m *ModuleBuilder) TypeVoid() uint32 { return m.typeID("void", OpTypeVoid) }

func (m *ModuleBuilder) TypeBool() uint32 { return m.typeID("bool", OpTypeBool) }

// TypeInt declares an integer type. Kernel modules only use signedness 0;
// signed arithmetic is selected by opcode.
func (m *ModuleBuilder) TypeInt(width uint32) uint32 {
	return m.typeID(fmt.Sprintf("i%d", width), OpTypeInt, width, 0)
}

func (m *ModuleBuilder) TypeFloat(width uint32) uint32 {
	return m.typeID(fmt.Sprintf("f%d", width), OpTypeFloat, width)
}

func (m *ModuleBuilder) TypeVector(elem, n uint32) uint32 {
	return m.typeID(fmt.Sprintf("v%d.%d", elem, n), OpTypeVector, elem, n)
}

func (m *ModuleBuilder) TypeArray(elem, length uint32) uint32 {
	return m.typeID(fmt.Sprintf("a%d.%d", elem, length), OpTypeArray, elem, length)
}

func (m *ModuleBuilder) TypePointer(sc StorageClass, elem uint32) uint32 {
	return m.typeID(fmt.Sprintf("p%d.%d", sc, elem), OpTypePointer, uint32(sc), elem)
}

func (m *ModuleBuilder) TypeFunction(ret uint32, params ...uint32) uint32 {
	return m.typeID(fmt.Sprintf("fn%d%v", ret, params), OpTypeFunction, append([]uint32{ret}, params...)...)
}

// Constant returns the id of a scalar constant of type ty whose bit pattern
// is bits; 64-bit types take two words, low word first.
func (m *ModuleBuilder) Constant(ty uint32, width int, bits uint64) uint32 {
	key := fmt.Sprintf("%d:%d", ty, bits)
	if id, ok := m.constIDs[key]; ok {
		return id
	}
	id := m.AllocID()
	ib := NewInstructionBuilder().AddWord(ty, id)
	if width == 64 {
		ib.AddWord(uint32(bits), uint32(bits>>32))
	} else {
		ib.AddWord(uint32(bits))
	}
	m.types = append(m.types, ib.Build(OpConstant)...)
	m.constIDs[key] = id
	return id
}

// ConstantFloat returns a float constant of the given width.
func (m *ModuleBuilder) ConstantFloat(ty uint32, width int, v float64) uint32 {
	if width == 64 {
		return m.Constant(ty, 64, math.Float64bits(v))
	}
	return m.Constant(ty, 32, uint64(math.Float32bits(float32(v))))
}

func (m *ModuleBuilder) ConstantBool(ty uint32, v bool) uint32 {
	op, key := OpConstantFalse, "false"
	if v {
		op, key = OpConstantTrue, "true"
	}
	if id, ok := m.constIDs[key]; ok {
		return id
	}
	id := m.AllocID()
	m.types = append(m.types, NewInstructionBuilder().AddWord(ty, id).Build(op)...)
	m.constIDs[key] = id
	return id
}

// GlobalVariable declares a module-scope variable of pointer type ptr.
func (m *ModuleBuilder) GlobalVariable(ptr uint32, sc StorageClass) uint32 {
	id := m.AllocID()
	m.types = append(m.types, NewInstructionBuilder().AddWord(ptr, id, uint32(sc)).Build(OpVariable)...)
	return id
}

// Func appends an instruction to the function section.
func (m *ModuleBuilder) Func(op OpCode, operands ...uint32) {
	m.functions = append(m.functions, NewInstructionBuilder().AddWord(operands...).Build(op)...)
}

// Words returns the module: header followed by the sections in layout
// order.
func (m *ModuleBuilder) Words() []uint32 {
	out := []uint32{Magic, Version, 0, m.Bound(), 0}
	for _, s := range [][]uint32{
		m.capabilities, m.extensions, m.imports, m.memoryModel, m.entryPoints,
		m.execModes, m.debug, m.annotations, m.types, m.functions,
	} {
		out = append(out, s...)
	}
	return out
}

// Bytes returns Words in little-endian byte order.
func (m *ModuleBuilder) Bytes() []byte {
	words := m.Words()
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}
