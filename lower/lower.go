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

// Package lower translates a graph that has been through the kernel passes
// into a lir.Kernel for one target.
//
// Every node kind has a GenFunc in a Table. Lowering walks the schedule once,
// in order, calling the generator of each fixed node; floating nodes
// (constants, parameters, proxies, phis and range indices) are materialized
// on demand by Context.Value. Backends start from Defaults and replace the
// entries whose lowering differs on their hardware.
package lower

import (
	"fmt"
	"math/bits"

	"github.com/go-logr/logr"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/phases"
	"github.com/ajroetker/go-kernelc/target"
)

// PassName tags errors raised while lowering.
const PassName = "lower"

// GenFunc appends the instructions for n and registers its result operand
// with ctx.Define when n produces a value.
type GenFunc func(ctx *Context, n *graph.Node) error

// Table holds one generator per node kind. A nil entry means the kind has no
// lowering on the target.
type Table [graph.NumKinds]GenFunc

// Kinds returns the kinds with a generator.
func (t *Table) Kinds() []graph.Kind {
	var out []graph.Kind
	for k, fn := range t {
		if fn != nil {
			out = append(out, graph.Kind(k))
		}
	}
	return out
}

// Options tune lowering.
type Options struct {
	// Entry is the kernel symbol.
	Entry string
	// LocalSize fixes the work-group size. Zero lets the host choose,
	// except for LocalTree reductions which fall back to the target default.
	LocalSize int
	// ForceGlobalAtomics lowers every reduction with the GlobalAtomic
	// template regardless of target capabilities.
	ForceGlobalAtomics bool
	// ConstantParams places read-only array parameters in constant memory.
	ConstantParams bool
}

// Result is a lowered kernel plus what lowering decided on the way.
type Result struct {
	Kernel *lir.Kernel
	// Templates holds the template used for each recognized reduction, in
	// the order of phases.Result.Reductions.
	Templates []target.Template
	// Mismatches are template downgrades, recorded like pass mismatches.
	Mismatches []phases.Mismatch
}

// Context is the state of one lowering. It is never shared.
type Context struct {
	Graph  *graph.Graph
	B      *lir.Builder
	Target *target.Target
	Log    logr.Logger
	Pass   *phases.Result
	Opts   Options

	table  Table
	values map[graph.NodeID]lir.Operand
	spaces map[baseKey]lir.Space

	tree       *tree
	mismatches []phases.Mismatch
}

// Lower translates g. res must come from running the kernel passes over g.
func Lower(g *graph.Graph, res *phases.Result, t *target.Target, table Table, opts Options, log logr.Logger) (out *Result, err error) {
	defer graph.Recover(PassName, &err)

	name := opts.Entry
	if name == "" {
		name = g.Name
	}
	ctx := &Context{
		Graph:  g,
		B:      lir.NewBuilder(name),
		Target: t,
		Log:    log,
		Pass:   res,
		Opts:   opts,
		table:  table,
		values: make(map[graph.NodeID]lir.Operand),
		spaces: make(map[baseKey]lir.Space),
	}
	if err := ctx.declareParams(); err != nil {
		return nil, err
	}
	templates, err := ctx.chooseTemplates()
	if err != nil {
		return nil, err
	}
	if ctx.tree != nil {
		if err := ctx.tree.prologue(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.LowerBlock(g.Entry()); err != nil {
		return nil, err
	}
	if ctx.tree != nil && !ctx.tree.done {
		if err := ctx.tree.epilogue(ctx); err != nil {
			return nil, err
		}
	}

	k := ctx.B.Kernel()
	k.Dims = len(res.Ranges)
	k.LocalSize = opts.LocalSize
	if ctx.tree != nil {
		k.LocalSize = ctx.tree.size
	}
	return &Result{Kernel: k, Templates: templates, Mismatches: ctx.mismatches}, nil
}

func (ctx *Context) declareParams() error {
	for i, id := range ctx.Graph.Params() {
		n := ctx.Graph.Node(id)
		acc := graph.AccessNone
		if i < len(ctx.Pass.Access) {
			acc = ctx.Pass.Access[i]
		}
		if !ctx.Target.SupportsType(n.Type) {
			return ctx.Unsupported(n, "no encoding for parameter type %s", n.Type)
		}
		space := lir.SpaceNone
		if n.Type.Array {
			space = lir.SpaceGlobal
			if ctx.Opts.ConstantParams && acc == graph.AccessRead {
				space = lir.SpaceConstant
			}
		}
		op := ctx.B.AddParam(lir.Param{Name: n.Name, Type: n.Type, Space: space, Access: acc})
		ctx.values[id] = op
		ctx.spaces[keyOf(op)] = space
	}
	return nil
}

// Unsupported returns an UnsupportedError for n on the current target.
func (ctx *Context) Unsupported(n *graph.Node, format string, args ...any) error {
	return graph.Unsupported(n, PassName, ctx.Target.Name, format, args...)
}

// Define registers op as the value of id.
func (ctx *Context) Define(id graph.NodeID, op lir.Operand) { ctx.values[id] = op }

// Value returns the operand holding the value of id, materializing floating
// nodes on first use.
func (ctx *Context) Value(id graph.NodeID) (lir.Operand, error) {
	if op, ok := ctx.values[id]; ok {
		return op, nil
	}
	n := ctx.Graph.Node(id)
	switch n.Kind {
	case graph.KindConst:
		op := lir.Imm(n.Type, n.Lit)
		ctx.values[id] = op
		return op, nil
	case graph.KindPi:
		return ctx.Value(n.Input(0))
	case graph.KindParallelIndex:
		op, ok := ctx.values[n.Input(0)]
		if !ok {
			return lir.Operand{}, fmt.Errorf("%s: node %d: range index read before its marker %d", PassName, id, n.Input(0))
		}
		return op, nil
	}
	return lir.Operand{}, fmt.Errorf("%s: node %d (%s) read before it was lowered", PassName, id, n.Kind)
}

// Values returns the operands of the given inputs.
func (ctx *Context) Values(ids ...graph.NodeID) ([]lir.Operand, error) {
	out := make([]lir.Operand, len(ids))
	for i, id := range ids {
		op, err := ctx.Value(id)
		if err != nil {
			return nil, err
		}
		out[i] = op
	}
	return out, nil
}

// SpaceOf returns the memory space of a parameter or array operand.
func (ctx *Context) SpaceOf(base lir.Operand) lir.Space {
	return ctx.spaces[keyOf(base)]
}

type baseKey struct {
	kind  lir.OperandKind
	index int
}

func keyOf(op lir.Operand) baseKey { return baseKey{kind: op.Kind, index: op.Index} }

func (ctx *Context) addArray(a lir.Array) lir.Operand {
	op := ctx.B.AddArray(a)
	ctx.spaces[keyOf(op)] = a.Space
	return op
}

// LowerBlock lowers the schedule of b in order.
func (ctx *Context) LowerBlock(b graph.BlockID) error {
	for _, id := range ctx.Graph.Block(b).Nodes() {
		n := ctx.Graph.Node(id)
		gen := ctx.table[n.Kind]
		if gen == nil {
			return ctx.Unsupported(n, "%s has no lowering", n.Kind)
		}
		if !ctx.Target.SupportsType(n.Type) {
			return ctx.Unsupported(n, "no encoding for %s", n.Type)
		}
		n.Platform = ctx.Target.Name
		ctx.B.At(id)
		if err := gen(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *Context) mismatch(node graph.NodeID, format string, args ...any) {
	m := phases.Mismatch{Pass: PassName, Node: node, Reason: fmt.Sprintf(format, args...)}
	ctx.mismatches = append(ctx.mismatches, m)
	ctx.Log.V(1).Info("recognition mismatch", "pass", PassName, "node", int(node), "reason", m.Reason)
}

func isPow2(n int) bool { return n > 0 && bits.OnesCount(uint(n)) == 1 }
