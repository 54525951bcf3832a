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

import (
	"fmt"
	"math"
	"strings"
)

// Prim is the primitive element kind of a type descriptor.
type Prim uint8

const (
	Void Prim = iota
	Bool
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F16
	F32
	F64
)

var primNames = [...]string{
	Void: "void",
	Bool: "bool",
	I8:   "i8",
	I16:  "i16",
	I32:  "i32",
	I64:  "i64",
	U8:   "u8",
	U16:  "u16",
	U32:  "u32",
	U64:  "u64",
	F16:  "f16",
	F32:  "f32",
	F64:  "f64",
}

func (p Prim) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return fmt.Sprintf("prim(%d)", p)
}

// ParsePrim returns the primitive named s ("i32", "f64", ...).
func ParsePrim(s string) (Prim, bool) {
	for i, name := range primNames {
		if name == s {
			return Prim(i), true
		}
	}
	return Void, false
}

// IsFloat reports whether p is a floating-point kind.
func (p Prim) IsFloat() bool { return p == F16 || p == F32 || p == F64 }

// IsInt reports whether p is an integer kind (signed or unsigned).
func (p Prim) IsInt() bool { return p >= I8 && p <= U64 }

// IsSigned reports whether p is a signed integer kind.
func (p Prim) IsSigned() bool { return p >= I8 && p <= I64 }

// Bits returns the storage width of p in bits. Bool reports 8.
func (p Prim) Bits() int {
	switch p {
	case Bool, I8, U8:
		return 8
	case I16, U16, F16:
		return 16
	case I32, U32, F32:
		return 32
	case I64, U64, F64:
		return 64
	}
	return 0
}

// Bytes returns the storage width of p in bytes.
func (p Prim) Bytes() int { return p.Bits() / 8 }

// Type is a node's type descriptor: a primitive, an optional fixed lane count
// for small vectors, and whether the value is an array (buffer) of elements.
type Type struct {
	Prim  Prim
	Lanes uint8 // 0 or 1 for scalars; 2, 3, 4, 8 or 16 for vectors
	Array bool
}

// Common scalar types.
var (
	TVoid = Type{Prim: Void}
	TBool = Type{Prim: Bool}
	TI32  = Type{Prim: I32}
	TI64  = Type{Prim: I64}
	TU32  = Type{Prim: U32}
	TF32  = Type{Prim: F32}
	TF64  = Type{Prim: F64}
)

// Scalar returns the scalar type of p.
func Scalar(p Prim) Type { return Type{Prim: p} }

// Vector returns the lanes-wide vector type of p.
func Vector(p Prim, lanes int) Type { return Type{Prim: p, Lanes: uint8(lanes)} }

// ArrayOf returns the array type whose elements are t.
func ArrayOf(t Type) Type {
	t.Array = true
	return t
}

// Elem returns the element type of an array type.
func (t Type) Elem() Type {
	t.Array = false
	return t
}

// LaneType returns the scalar type of one lane.
func (t Type) LaneType() Type { return Type{Prim: t.Prim} }

// NumLanes returns the lane count, 1 for scalars.
func (t Type) NumLanes() int {
	if t.Lanes <= 1 {
		return 1
	}
	return int(t.Lanes)
}

// IsVector reports whether t is a non-array vector value.
func (t Type) IsVector() bool { return !t.Array && t.Lanes > 1 }

// IsScalar reports whether t is a non-array, non-vector value.
func (t Type) IsScalar() bool { return !t.Array && t.Lanes <= 1 && t.Prim != Void }

func (t Type) String() string {
	var sb strings.Builder
	sb.WriteString(t.Prim.String())
	if t.Lanes > 1 {
		fmt.Fprintf(&sb, "x%d", t.Lanes)
	}
	if t.Array {
		sb.WriteString("[]")
	}
	return sb.String()
}

// ParseType parses the textual form produced by Type.String ("f32",
// "i32x4", "f64[]", "f32x4[]").
func ParseType(s string) (Type, error) {
	var t Type
	if rest, ok := strings.CutSuffix(s, "[]"); ok {
		t.Array = true
		s = rest
	}
	name, lanes, hasLanes := strings.Cut(s, "x")
	p, ok := ParsePrim(name)
	if !ok {
		return Type{}, fmt.Errorf("unknown primitive %q", name)
	}
	t.Prim = p
	if hasLanes {
		var n int
		if _, err := fmt.Sscanf(lanes, "%d", &n); err != nil {
			return Type{}, fmt.Errorf("bad lane count in %q: %w", s, err)
		}
		switch n {
		case 2, 3, 4, 8, 16:
		default:
			return Type{}, fmt.Errorf("unsupported lane count %d", n)
		}
		t.Lanes = uint8(n)
	}
	return t, nil
}

// Lit is a constant payload. Integer kinds use I, floating kinds use F,
// booleans use I (0 or 1).
type Lit struct {
	I int64
	F float64
}

// IntLit returns an integer literal.
func IntLit(v int64) Lit { return Lit{I: v} }

// FloatLit returns a floating-point literal.
func FloatLit(v float64) Lit { return Lit{F: v} }

// Zero returns the zero literal.
func Zero() Lit { return Lit{} }

// Format renders l as it would be written for type t.
func (l Lit) Format(t Type) string {
	if t.Prim.IsFloat() {
		if math.IsInf(l.F, 0) || math.IsNaN(l.F) {
			return fmt.Sprintf("%v", l.F)
		}
		return fmt.Sprintf("%g", l.F)
	}
	if t.Prim == Bool {
		if l.I != 0 {
			return "true"
		}
		return "false"
	}
	return fmt.Sprintf("%d", l.I)
}

// Identity returns the identity element of op for type t.
func Identity(op ReduceOp, t Type) Lit {
	if op == ReduceMul {
		if t.Prim.IsFloat() {
			return FloatLit(1)
		}
		return IntLit(1)
	}
	return Zero()
}
