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
	"strings"
)

// Dump renders g as a deterministic listing: parameters, floating values and
// then the structured schedule. Two graphs with equal dumps are equal for
// every pass in this module.
func (g *Graph) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "graph %s\n", g.Name)
	for _, id := range g.params {
		sb.WriteString("  ")
		sb.WriteString(g.format(g.nodes[id]))
		sb.WriteByte('\n')
	}
	for _, n := range g.nodes[1:] {
		if n.dead || n.Kind == KindParam || n.Scheduled() {
			continue
		}
		sb.WriteString("  ")
		if !n.Kind.IsFloating() {
			sb.WriteString("unscheduled ")
		}
		sb.WriteString(g.format(n))
		sb.WriteByte('\n')
	}
	sb.WriteString("entry:\n")
	g.dumpBlock(&sb, g.Entry(), 1)
	return sb.String()
}

func (g *Graph) dumpBlock(sb *strings.Builder, b BlockID, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, id := range g.Block(b).nodes {
		n := g.nodes[id]
		sb.WriteString(indent)
		sb.WriteString(g.format(n))
		sb.WriteByte('\n')
		if !n.Kind.IsControl() {
			continue
		}
		for _, child := range n.Blocks {
			fmt.Fprintf(sb, "%s%s:\n", indent, g.blocks[child].Arm)
			g.dumpBlock(sb, child, depth+1)
		}
	}
}

func (g *Graph) format(n *Node) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%%%d = %s", n.id, n.Kind)
	if n.Type.Prim != Void || n.Type.Lanes > 1 {
		fmt.Fprintf(&sb, " %s", n.Type)
	}
	if len(n.inputs) > 0 {
		sb.WriteString(" (")
		for i, in := range n.inputs {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%%%d", in)
		}
		sb.WriteByte(')')
	}
	var attrs []string
	if n.Name != "" {
		attrs = append(attrs, "name="+n.Name)
	}
	switch n.Kind {
	case KindConst:
		attrs = append(attrs, "value="+n.Lit.Format(n.Type))
	case KindParam:
		attrs = append(attrs, fmt.Sprintf("index=%d", n.Index))
	case KindLoadField, KindStoreField:
		attrs = append(attrs, fmt.Sprintf("lane=%d", n.Index))
	case KindNewArray, KindNewLocalArray:
		attrs = append(attrs, fmt.Sprintf("len=%d", n.Index))
	case KindParallelRange:
		attrs = append(attrs, fmt.Sprintf("dim=%d", n.Index), "cond="+n.Cond.String())
	case KindCompare:
		attrs = append(attrs, "cond="+n.Cond.String())
	case KindIntrinsic:
		attrs = append(attrs, "fn="+n.Intrinsic.String())
	case KindReduction:
		attrs = append(attrs, "op="+n.Op.String())
	case KindLoop:
		if n.Has(FlagParallel) {
			attrs = append(attrs, fmt.Sprintf("dim=%d", n.Index))
		}
	}
	if n.Has(FlagParallel) {
		attrs = append(attrs, "parallel")
	}
	if n.Has(FlagReduce) {
		attrs = append(attrs, "reduce")
	}
	if n.Has(FlagZeroInit) {
		attrs = append(attrs, "zeroinit")
	}
	if n.Platform != "" {
		attrs = append(attrs, "platform="+n.Platform)
	}
	if len(attrs) > 0 {
		sb.WriteString(" {")
		sb.WriteString(strings.Join(attrs, " "))
		sb.WriteByte('}')
	}
	return sb.String()
}
