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

package sim

import (
	"github.com/samber/lo"

	"github.com/ajroetker/go-kernelc/graph"
)

// Buffer is device memory bound to an array parameter. Vector elements are
// stored as packed scalars, lane after lane.
type Buffer struct {
	prim graph.Prim
	data []graph.Lit
}

// NewBuffer returns a zeroed buffer of n scalars of primitive p.
func NewBuffer(p graph.Prim, n int) *Buffer {
	return &Buffer{prim: p, data: make([]graph.Lit, n)}
}

func Float32s(v ...float32) *Buffer {
	return &Buffer{prim: graph.F32, data: lo.Map(v, func(x float32, _ int) graph.Lit { return graph.FloatLit(float64(x)) })}
}

func Float64s(v ...float64) *Buffer {
	return &Buffer{prim: graph.F64, data: lo.Map(v, func(x float64, _ int) graph.Lit { return graph.FloatLit(x) })}
}

func Int32s(v ...int32) *Buffer {
	return &Buffer{prim: graph.I32, data: lo.Map(v, func(x int32, _ int) graph.Lit { return graph.IntLit(int64(x)) })}
}

func Int64s(v ...int64) *Buffer {
	return &Buffer{prim: graph.I64, data: lo.Map(v, func(x int64, _ int) graph.Lit { return graph.IntLit(x) })}
}

// Prim returns the scalar primitive of the buffer.
func (b *Buffer) Prim() graph.Prim { return b.prim }

// Len returns the number of scalars.
func (b *Buffer) Len() int { return len(b.data) }

// Float64s returns the contents converted to float64.
func (b *Buffer) Float64s() []float64 {
	return lo.Map(b.data, func(l graph.Lit, _ int) float64 { return convert(b.prim, graph.F64, l).F })
}

// Float32s returns the contents converted to float32.
func (b *Buffer) Float32s() []float32 {
	return lo.Map(b.data, func(l graph.Lit, _ int) float32 { return float32(convert(b.prim, graph.F32, l).F) })
}

// Int64s returns the contents converted to int64.
func (b *Buffer) Int64s() []int64 {
	return lo.Map(b.data, func(l graph.Lit, _ int) int64 { return convert(b.prim, graph.I64, l).I })
}

// Int32s returns the contents converted to int32.
func (b *Buffer) Int32s() []int32 {
	return lo.Map(b.data, func(l graph.Lit, _ int) int32 { return int32(convert(b.prim, graph.I32, l).I) })
}
