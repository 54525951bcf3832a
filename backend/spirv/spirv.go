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

// Package spirv is the SPIR-V backend: it assembles a lir.Kernel into a
// binary module for the OpenCL (Kernel) execution environment, and decodes
// such modules back into instructions.
package spirv

import "fmt"

// Magic is the first word of every module.
const Magic uint32 = 0x07230203

// Version is the SPIR-V version word the emitter writes (1.0).
const Version uint32 = 0x00010000

// OpCode is a SPIR-V instruction opcode.
type OpCode uint16

const (
	OpNop                    OpCode = 0
	OpSource                 OpCode = 3
	OpName                   OpCode = 5
	OpExtension              OpCode = 10
	OpExtInstImport          OpCode = 11
	OpExtInst                OpCode = 12
	OpMemoryModel            OpCode = 14
	OpEntryPoint             OpCode = 15
	OpExecutionMode          OpCode = 16
	OpCapability             OpCode = 17
	OpTypeVoid               OpCode = 19
	OpTypeBool               OpCode = 20
	OpTypeInt                OpCode = 21
	OpTypeFloat              OpCode = 22
	OpTypeVector             OpCode = 23
	OpTypeArray              OpCode = 28
	OpTypePointer            OpCode = 32
	OpTypeFunction           OpCode = 33
	OpConstantTrue           OpCode = 41
	OpConstantFalse          OpCode = 42
	OpConstant               OpCode = 43
	OpFunction               OpCode = 54
	OpFunctionParameter      OpCode = 55
	OpFunctionEnd            OpCode = 56
	OpVariable               OpCode = 59
	OpLoad                   OpCode = 61
	OpStore                  OpCode = 62
	OpInBoundsAccessChain    OpCode = 66
	OpInBoundsPtrAccessChain OpCode = 70
	OpDecorate               OpCode = 71
	OpCompositeConstruct     OpCode = 80
	OpCompositeExtract       OpCode = 81
	OpCompositeInsert        OpCode = 82
	OpConvertFToU            OpCode = 109
	OpConvertFToS            OpCode = 110
	OpConvertSToF            OpCode = 111
	OpConvertUToF            OpCode = 112
	OpUConvert               OpCode = 113
	OpSConvert               OpCode = 114
	OpFConvert               OpCode = 115
	OpSNegate                OpCode = 126
	OpFNegate                OpCode = 127
	OpIAdd                   OpCode = 128
	OpFAdd                   OpCode = 129
	OpISub                   OpCode = 130
	OpFSub                   OpCode = 131
	OpIMul                   OpCode = 132
	OpFMul                   OpCode = 133
	OpUDiv                   OpCode = 134
	OpSDiv                   OpCode = 135
	OpFDiv                   OpCode = 136
	OpUMod                   OpCode = 137
	OpSRem                   OpCode = 138
	OpFRem                   OpCode = 140
	OpDot                    OpCode = 148
	OpLogicalEqual           OpCode = 164
	OpLogicalNotEqual        OpCode = 165
	OpLogicalOr              OpCode = 166
	OpLogicalAnd             OpCode = 167
	OpLogicalNot             OpCode = 168
	OpSelect                 OpCode = 169
	OpIEqual                 OpCode = 170
	OpINotEqual              OpCode = 171
	OpUGreaterThan           OpCode = 172
	OpSGreaterThan           OpCode = 173
	OpUGreaterThanEqual      OpCode = 174
	OpSGreaterThanEqual      OpCode = 175
	OpULessThan              OpCode = 176
	OpSLessThan              OpCode = 177
	OpULessThanEqual         OpCode = 178
	OpSLessThanEqual         OpCode = 179
	OpFOrdEqual              OpCode = 180
	OpFUnordNotEqual         OpCode = 183
	OpFOrdLessThan           OpCode = 184
	OpFOrdGreaterThan        OpCode = 186
	OpFOrdLessThanEqual      OpCode = 188
	OpFOrdGreaterThanEqual   OpCode = 190
	OpShiftRightLogical      OpCode = 194
	OpShiftRightArithmetic   OpCode = 195
	OpShiftLeftLogical       OpCode = 196
	OpBitwiseOr              OpCode = 197
	OpBitwiseXor             OpCode = 198
	OpBitwiseAnd             OpCode = 199
	OpNot                    OpCode = 200
	OpControlBarrier         OpCode = 224
	OpAtomicIAdd             OpCode = 234
	OpAtomicISub             OpCode = 235
	OpLoopMerge              OpCode = 246
	OpSelectionMerge         OpCode = 247
	OpLabel                  OpCode = 248
	OpBranch                 OpCode = 249
	OpBranchConditional      OpCode = 250
	OpReturn                 OpCode = 253
	OpAtomicFAddEXT          OpCode = 6035
)

var opNames = map[OpCode]string{
	OpNop: "OpNop", OpSource: "OpSource", OpName: "OpName", OpExtension: "OpExtension",
	OpExtInstImport: "OpExtInstImport", OpExtInst: "OpExtInst", OpMemoryModel: "OpMemoryModel",
	OpEntryPoint: "OpEntryPoint", OpExecutionMode: "OpExecutionMode", OpCapability: "OpCapability",
	OpTypeVoid: "OpTypeVoid", OpTypeBool: "OpTypeBool", OpTypeInt: "OpTypeInt", OpTypeFloat: "OpTypeFloat",
	OpTypeVector: "OpTypeVector", OpTypeArray: "OpTypeArray", OpTypePointer: "OpTypePointer",
	OpTypeFunction: "OpTypeFunction", OpConstantTrue: "OpConstantTrue", OpConstantFalse: "OpConstantFalse",
	OpConstant: "OpConstant", OpFunction: "OpFunction", OpFunctionParameter: "OpFunctionParameter",
	OpFunctionEnd: "OpFunctionEnd", OpVariable: "OpVariable", OpLoad: "OpLoad", OpStore: "OpStore",
	OpInBoundsAccessChain: "OpInBoundsAccessChain", OpInBoundsPtrAccessChain: "OpInBoundsPtrAccessChain",
	OpDecorate: "OpDecorate", OpCompositeConstruct: "OpCompositeConstruct",
	OpCompositeExtract: "OpCompositeExtract", OpCompositeInsert: "OpCompositeInsert",
	OpConvertFToU: "OpConvertFToU", OpConvertFToS: "OpConvertFToS", OpConvertSToF: "OpConvertSToF",
	OpConvertUToF: "OpConvertUToF", OpUConvert: "OpUConvert", OpSConvert: "OpSConvert",
	OpFConvert: "OpFConvert", OpSNegate: "OpSNegate", OpFNegate: "OpFNegate", OpIAdd: "OpIAdd",
	OpFAdd: "OpFAdd", OpISub: "OpISub", OpFSub: "OpFSub", OpIMul: "OpIMul", OpFMul: "OpFMul",
	OpUDiv: "OpUDiv", OpSDiv: "OpSDiv", OpFDiv: "OpFDiv", OpUMod: "OpUMod", OpSRem: "OpSRem",
	OpFRem: "OpFRem", OpDot: "OpDot", OpLogicalEqual: "OpLogicalEqual",
	OpLogicalNotEqual: "OpLogicalNotEqual", OpLogicalOr: "OpLogicalOr", OpLogicalAnd: "OpLogicalAnd",
	OpLogicalNot: "OpLogicalNot", OpSelect: "OpSelect", OpIEqual: "OpIEqual", OpINotEqual: "OpINotEqual",
	OpUGreaterThan: "OpUGreaterThan", OpSGreaterThan: "OpSGreaterThan",
	OpUGreaterThanEqual: "OpUGreaterThanEqual", OpSGreaterThanEqual: "OpSGreaterThanEqual",
	OpULessThan: "OpULessThan", OpSLessThan: "OpSLessThan", OpULessThanEqual: "OpULessThanEqual",
	OpSLessThanEqual: "OpSLessThanEqual", OpFOrdEqual: "OpFOrdEqual", OpFUnordNotEqual: "OpFUnordNotEqual",
	OpFOrdLessThan: "OpFOrdLessThan", OpFOrdGreaterThan: "OpFOrdGreaterThan",
	OpFOrdLessThanEqual: "OpFOrdLessThanEqual", OpFOrdGreaterThanEqual: "OpFOrdGreaterThanEqual",
	OpShiftRightLogical: "OpShiftRightLogical", OpShiftRightArithmetic: "OpShiftRightArithmetic",
	OpShiftLeftLogical: "OpShiftLeftLogical", OpBitwiseOr: "OpBitwiseOr", OpBitwiseXor: "OpBitwiseXor",
	OpBitwiseAnd: "OpBitwiseAnd", OpNot: "OpNot", OpControlBarrier: "OpControlBarrier",
	OpAtomicIAdd: "OpAtomicIAdd", OpAtomicISub: "OpAtomicISub", OpLoopMerge: "OpLoopMerge",
	OpSelectionMerge: "OpSelectionMerge", OpLabel: "OpLabel", OpBranch: "OpBranch",
	OpBranchConditional: "OpBranchConditional", OpReturn: "OpReturn", OpAtomicFAddEXT: "OpAtomicFAddEXT",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", uint16(op))
}

// Capability is a module capability operand.
type Capability uint32

const (
	CapabilityAddresses           Capability = 4
	CapabilityKernel              Capability = 6
	CapabilityVector16            Capability = 7
	CapabilityFloat64             Capability = 10
	CapabilityInt64               Capability = 11
	CapabilityInt64Atomics        Capability = 12
	CapabilityInt16               Capability = 22
	CapabilityInt8                Capability = 39
	CapabilityAtomicFloat32AddEXT Capability = 6033
	CapabilityAtomicFloat64AddEXT Capability = 6034
)

// StorageClass is a pointer storage class.
type StorageClass uint32

const (
	StorageClassUniformConstant StorageClass = 0
	StorageClassInput           StorageClass = 1
	StorageClassWorkgroup       StorageClass = 4
	StorageClassCrossWorkgroup  StorageClass = 5
	StorageClassFunction        StorageClass = 7
)

// BuiltIn is a BuiltIn decoration operand.
type BuiltIn uint32

const (
	BuiltInNumWorkgroups      BuiltIn = 24
	BuiltInWorkgroupSize      BuiltIn = 25
	BuiltInWorkgroupID        BuiltIn = 26
	BuiltInLocalInvocationID  BuiltIn = 27
	BuiltInGlobalInvocationID BuiltIn = 28
	BuiltInGlobalSize         BuiltIn = 31
)

const (
	addressingPhysical64   = 2
	memoryModelOpenCL      = 2
	executionModelKernel   = 6
	executionModeLocalSize = 17
	sourceLanguageOpenCLC  = 3

	decorationBuiltIn  = 11
	decorationConstant = 22

	scopeDevice    = 1
	scopeWorkgroup = 2

	semanticsRelaxed              = 0x0
	semanticsAcquireRelease       = 0x8
	semanticsWorkgroupMemory      = 0x100
	semanticsCrossWorkgroupMemory = 0x200

	memoryAccessAligned = 0x2
)

// Extended instruction numbers of the OpenCL.std set.
var openclStd = map[string]uint32{
	"ceil":     12,
	"cos":      14,
	"exp":      19,
	"exp2":     20,
	"fabs":     23,
	"floor":    25,
	"fma":      26,
	"fmax":     27,
	"fmin":     28,
	"log":      37,
	"log2":     38,
	"pow":      48,
	"rint":     53,
	"sin":      57,
	"sqrt":     61,
	"tan":      62,
	"fclamp":   95,
	"s_abs":    141,
	"s_clamp":  149,
	"u_clamp":  150,
	"clz":      151,
	"s_max":    156,
	"u_max":    157,
	"s_min":    158,
	"u_min":    159,
	"popcount": 166,
	"u_abs":    201,
}
