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

package compiler

import (
	"github.com/samber/lo"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/kernel"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/phases"
)

func extentOf(g *graph.Graph, id graph.NodeID) kernel.Extent {
	if id == 0 || !g.Live(id) {
		return kernel.Expr()
	}
	n := g.Node(g.Strip(id))
	switch n.Kind {
	case graph.KindConst:
		return kernel.Const(n.Lit.I)
	case graph.KindParam:
		return kernel.ParamExtent(n.Name)
	}
	return kernel.Expr()
}

func mappingsOf(g *graph.Graph, ranges []phases.Range) []kernel.Mapping {
	return lo.Map(ranges, func(r phases.Range, _ int) kernel.Mapping {
		m := kernel.Mapping{
			Dim:       r.Dim,
			Offset:    extentOf(g, r.Offset),
			Stride:    1,
			Bound:     extentOf(g, r.Bound),
			Inclusive: r.Cond == graph.CondLE,
			TripCount: extentOf(g, r.TripCount),
		}
		if s := extentOf(g, r.Stride); s.Kind == kernel.ExtentConst {
			m.Stride = s.Value
		}
		return m
	})
}

func metadataOf(g *graph.Graph, pres *phases.Result, res *lower.Result, format, backend string) kernel.Metadata {
	k := res.Kernel
	meta := kernel.Metadata{
		Backend:   backend,
		Entry:     k.Name,
		Format:    format,
		LocalSize: k.LocalSize,
		Params: lo.Map(k.Params, func(p lir.Param, _ int) kernel.Param {
			kp := kernel.Param{Name: p.Name, Type: p.Type.String(), Access: p.Access}
			if p.Space != lir.SpaceNone {
				kp.Space = p.Space.String()
			}
			return kp
		}),
	}
	for i, r := range pres.Reductions {
		red := kernel.Reduction{
			Target: g.Node(r.Target).Name,
			Op:     r.Op.String(),
			Type:   g.Node(r.Target).Type.Elem().String(),
		}
		if i < len(res.Templates) {
			red.Template = res.Templates[i].String()
		}
		if r.Input != 0 {
			red.Input = g.Node(r.Input).Name
		}
		meta.Reductions = append(meta.Reductions, red)
	}
	for _, m := range pres.Mismatches {
		meta.Mismatches = append(meta.Mismatches, m.String())
	}
	for _, m := range res.Mismatches {
		meta.Mismatches = append(meta.Mismatches, m.String())
	}
	return meta
}
