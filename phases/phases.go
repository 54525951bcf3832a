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

// Package phases holds the kernel-specific graph passes: parallel-range
// recognition, reduction recognition, composite-value normalization and
// access-mode analysis.
//
// A pass that cannot match its idiom records a Mismatch and leaves the graph
// alone, so the kernel falls back to a sequential loop, a plain store or a
// native vector. Only constructs that no lowering can express are reported
// as errors.
package phases

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/ajroetker/go-kernelc/graph"
)

// Pass is one step of the kernel pipeline.
type Pass struct {
	// Name identifies the pass in logs, errors and metrics.
	Name string

	// Run rewrites or analyzes ctx.Graph, recording into ctx.Result.
	Run func(ctx *Context) error
}

// Pass names.
const (
	PassParallel  = "parallel"
	PassReduce    = "reduce"
	PassComposite = "composite"
	PassAccess    = "access"
)

// Pipeline returns the passes in the order the compiler runs them. Reduction
// recognition runs after range recognition so accumulator stores already sit
// inside the loops that will become parallel dimensions; access analysis
// runs last so it observes reduction markers.
func Pipeline() []Pass {
	return []Pass{
		{Name: PassParallel, Run: runParallel},
		{Name: PassReduce, Run: runReductions},
		{Name: PassComposite, Run: runComposites},
		{Name: PassAccess, Run: runAccess},
	}
}

// Context carries one compilation's pass state. It is never shared between
// compilations.
type Context struct {
	Graph *graph.Graph
	Log   logr.Logger

	// MaxDims bounds the number of parallel dimensions.
	MaxDims int

	Result Result
}

// NewContext returns a context for g with default limits.
func NewContext(g *graph.Graph, log logr.Logger) *Context {
	return &Context{Graph: g, Log: log, MaxDims: DefaultMaxDims}
}

// Result collects what the passes found.
type Result struct {
	Ranges     []Range
	Reductions []Reduction
	Composites []Composite

	// Access holds one descriptor per parameter, in declaration order.
	Access []graph.Access

	Mismatches []Mismatch
}

// Mismatch records a recognition precondition that did not hold. It is
// informational: the graph is left in a correct, less parallel form.
type Mismatch struct {
	Pass   string
	Node   graph.NodeID
	Reason string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: node %d: %s", m.Pass, m.Node, m.Reason)
}

func (ctx *Context) mismatch(pass string, node graph.NodeID, format string, args ...any) {
	m := Mismatch{Pass: pass, Node: node, Reason: fmt.Sprintf(format, args...)}
	ctx.Result.Mismatches = append(ctx.Result.Mismatches, m)
	ctx.Log.V(1).Info("recognition mismatch", "pass", pass, "node", int(node), "reason", m.Reason)
}

// Run applies every pass of the pipeline to ctx.Graph. Invariant violations
// raised inside a pass are returned as errors tagged with the pass name.
func Run(ctx *Context) error {
	for _, p := range Pipeline() {
		if err := RunPass(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RunPass applies a single pass.
func RunPass(ctx *Context, p Pass) (err error) {
	defer graph.Recover(p.Name, &err)
	return p.Run(ctx)
}
