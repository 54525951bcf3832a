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

package graph

import "fmt"

// Kind tags the variant of a Node.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Values.
	KindParam
	KindConst
	KindAdd
	KindSub
	KindMul
	KindDiv
	KindRem
	KindAnd
	KindOr
	KindXor
	KindShl
	KindShr  // arithmetic
	KindUShr // logical
	KindNeg
	KindNot
	KindConvert
	KindCompare
	KindPi
	KindPhi

	// Memory.
	KindLoadIndexed
	KindStoreIndexed
	KindLoadField
	KindStoreField
	KindNewVector
	KindNewArray
	KindNewLocalArray

	// Calls.
	KindIntrinsic
	KindCall

	// Control.
	KindIf
	KindLoop
	KindReturn

	// Markers introduced by the recognizers.
	KindParallelRange
	KindParallelIndex
	KindReduction

	numKinds
)

// NumKinds is the number of node kinds, for dispatch tables indexed by Kind.
const NumKinds = int(numKinds)

var kindNames = [...]string{
	KindInvalid:       "Invalid",
	KindParam:         "Param",
	KindConst:         "Const",
	KindAdd:           "Add",
	KindSub:           "Sub",
	KindMul:           "Mul",
	KindDiv:           "Div",
	KindRem:           "Rem",
	KindAnd:           "And",
	KindOr:            "Or",
	KindXor:           "Xor",
	KindShl:           "Shl",
	KindShr:           "Shr",
	KindUShr:          "UShr",
	KindNeg:           "Neg",
	KindNot:           "Not",
	KindConvert:       "Convert",
	KindCompare:       "Compare",
	KindPi:            "Pi",
	KindPhi:           "Phi",
	KindLoadIndexed:   "LoadIndexed",
	KindStoreIndexed:  "StoreIndexed",
	KindLoadField:     "LoadField",
	KindStoreField:    "StoreField",
	KindNewVector:     "NewVector",
	KindNewArray:      "NewArray",
	KindNewLocalArray: "NewLocalArray",
	KindIntrinsic:     "Intrinsic",
	KindCall:          "Call",
	KindIf:            "If",
	KindLoop:          "Loop",
	KindReturn:        "Return",
	KindParallelRange: "ParallelRange",
	KindParallelIndex: "ParallelIndex",
	KindReduction:     "Reduction",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind maps a kind name (case-sensitive, as printed) back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s && i != int(KindInvalid) {
			return Kind(i), true
		}
	}
	return KindInvalid, false
}

// IsBinary reports whether k is a two-input arithmetic or bitwise kind.
func (k Kind) IsBinary() bool { return k >= KindAdd && k <= KindUShr }

// IsControl reports whether k owns blocks.
func (k Kind) IsControl() bool { return k == KindIf || k == KindLoop }

// IsFloating reports whether nodes of kind k live outside any block and are
// materialized on demand by their users.
func (k Kind) IsFloating() bool {
	switch k {
	case KindParam, KindConst, KindPi, KindPhi, KindParallelIndex:
		return true
	}
	return false
}

// Cond is the predicate of a Compare node.
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
)

var condNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond(%d)", c)
}

// ParseCond returns the condition named s.
func ParseCond(s string) (Cond, bool) {
	for i, name := range condNames {
		if name == s {
			return Cond(i), true
		}
	}
	return 0, false
}

// ReduceOp is the associative operator of a Reduction marker.
type ReduceOp uint8

const (
	ReduceAdd ReduceOp = iota + 1
	ReduceSub
	ReduceMul
)

func (op ReduceOp) String() string {
	switch op {
	case ReduceAdd:
		return "add"
	case ReduceSub:
		return "sub"
	case ReduceMul:
		return "mul"
	}
	return fmt.Sprintf("reduce(%d)", op)
}

// Combine returns the kind used to fold two partial results of op. A
// subtraction reduction accumulates its contributions with addition.
func (op ReduceOp) Combine() Kind {
	if op == ReduceMul {
		return KindMul
	}
	return KindAdd
}

// Intrinsic identifies a backend-provided operation produced by call-site
// interception in the front-end.
type Intrinsic uint8

const (
	IntrinsicNone Intrinsic = iota
	IntrinsicSqrt
	IntrinsicExp
	IntrinsicExp2
	IntrinsicLog
	IntrinsicLog2
	IntrinsicSin
	IntrinsicCos
	IntrinsicTan
	IntrinsicPow
	IntrinsicFabs
	IntrinsicFloor
	IntrinsicCeil
	IntrinsicRint
	IntrinsicFma
	IntrinsicMin
	IntrinsicMax
	IntrinsicClamp
	IntrinsicAbs
	IntrinsicPopCount
	IntrinsicClz
	IntrinsicDot
	IntrinsicLocalBarrier
	IntrinsicGlobalBarrier
	IntrinsicAtomicFetchAdd

	numIntrinsics
)

var intrinsicNames = [...]string{
	IntrinsicNone:           "none",
	IntrinsicSqrt:           "sqrt",
	IntrinsicExp:            "exp",
	IntrinsicExp2:           "exp2",
	IntrinsicLog:            "log",
	IntrinsicLog2:           "log2",
	IntrinsicSin:            "sin",
	IntrinsicCos:            "cos",
	IntrinsicTan:            "tan",
	IntrinsicPow:            "pow",
	IntrinsicFabs:           "fabs",
	IntrinsicFloor:          "floor",
	IntrinsicCeil:           "ceil",
	IntrinsicRint:           "rint",
	IntrinsicFma:            "fma",
	IntrinsicMin:            "min",
	IntrinsicMax:            "max",
	IntrinsicClamp:          "clamp",
	IntrinsicAbs:            "abs",
	IntrinsicPopCount:       "popcount",
	IntrinsicClz:            "clz",
	IntrinsicDot:            "dot",
	IntrinsicLocalBarrier:   "localBarrier",
	IntrinsicGlobalBarrier:  "globalBarrier",
	IntrinsicAtomicFetchAdd: "atomicFetchAdd",
}

func (i Intrinsic) String() string {
	if int(i) < len(intrinsicNames) {
		return intrinsicNames[i]
	}
	return fmt.Sprintf("intrinsic(%d)", i)
}

// Arity returns the number of value inputs the intrinsic takes.
func (i Intrinsic) Arity() int {
	switch i {
	case IntrinsicLocalBarrier, IntrinsicGlobalBarrier:
		return 0
	case IntrinsicPow, IntrinsicMin, IntrinsicMax, IntrinsicDot:
		return 2
	case IntrinsicFma, IntrinsicClamp, IntrinsicAtomicFetchAdd:
		return 3
	}
	return 1
}

// HasSideEffects reports whether the intrinsic must stay in the schedule
// even when its result is unused.
func (i Intrinsic) HasSideEffects() bool {
	switch i {
	case IntrinsicLocalBarrier, IntrinsicGlobalBarrier, IntrinsicAtomicFetchAdd:
		return true
	}
	return false
}

// Intrinsics returns every defined intrinsic, in declaration order.
func Intrinsics() []Intrinsic {
	out := make([]Intrinsic, 0, int(numIntrinsics)-1)
	for i := IntrinsicSqrt; i < numIntrinsics; i++ {
		out = append(out, i)
	}
	return out
}

// Flags are caller annotations carried by nodes.
type Flags uint8

const (
	// FlagParallel marks an induction-variable phi, or a loop once its
	// induction variable has been mapped onto a parallel dimension.
	FlagParallel Flags = 1 << iota
	// FlagReduce marks a parameter as an accumulation target.
	FlagReduce
	// FlagZeroInit marks an aggregate allocation that must be filled with
	// zeroes at its allocation site.
	FlagZeroInit
)

// Arm identifies the role of a block inside its owning control node.
type Arm uint8

const (
	ArmEntry Arm = iota
	ArmThen
	ArmElse
	ArmHeader
	ArmBody
)

func (a Arm) String() string {
	switch a {
	case ArmEntry:
		return "entry"
	case ArmThen:
		return "then"
	case ArmElse:
		return "else"
	case ArmHeader:
		return "header"
	case ArmBody:
		return "body"
	}
	return fmt.Sprintf("arm(%d)", a)
}
