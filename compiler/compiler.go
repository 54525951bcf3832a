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

// Package compiler runs the kernel pipeline: caller annotations, the
// recognition passes, target lowering, LIR verification and emission. It
// turns a graph into a kernel.Artifact or a terminal error.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/kernel"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/phases"
)

// ErrAnnotation is matched by errors about invalid caller annotations.
var ErrAnnotation = errors.New("invalid annotation")

// Annotations are the caller's per-node hints.
type Annotations struct {
	// Parallel lists induction-variable phis whose loops should become
	// parallel dimensions.
	Parallel []graph.NodeID
	// Reduce lists array parameters that accumulate reductions.
	Reduce []graph.NodeID
}

// AnnotationsOf returns the annotations already carried by g's node flags.
func AnnotationsOf(g *graph.Graph) Annotations {
	var a Annotations
	for _, id := range g.NodeIDs() {
		n := g.Node(id)
		switch {
		case n.Kind == graph.KindPhi && n.Has(graph.FlagParallel):
			a.Parallel = append(a.Parallel, id)
		case n.Kind == graph.KindParam && n.Has(graph.FlagReduce):
			a.Reduce = append(a.Reduce, id)
		}
	}
	return a
}

func annotate(g *graph.Graph, a Annotations) error {
	for _, id := range a.Parallel {
		if !g.Live(id) || g.Node(id).Kind != graph.KindPhi {
			return fmt.Errorf("%w: parallel node %d is not a phi", ErrAnnotation, id)
		}
	}
	for _, id := range a.Reduce {
		if !g.Live(id) || g.Node(id).Kind != graph.KindParam {
			return fmt.Errorf("%w: reduce node %d is not a parameter", ErrAnnotation, id)
		}
	}
	for _, id := range a.Parallel {
		g.Node(id).Flags |= graph.FlagParallel
	}
	for _, id := range a.Reduce {
		g.Node(id).Flags |= graph.FlagReduce
	}
	return nil
}

// Compiler compiles graphs for one backend. It holds no per-compilation
// state and may be used from several goroutines on distinct graphs.
type Compiler struct {
	backend Backend
	opts    Options
}

// New returns a compiler for b.
func New(b Backend, opts ...Option) (*Compiler, error) {
	c := &Compiler{backend: b}
	for _, o := range opts {
		o(&c.opts)
	}
	if err := c.opts.Validate(); err != nil {
		return nil, fmt.Errorf("compiler options: %w", err)
	}
	return c, nil
}

func (c *Compiler) Backend() Backend { return c.backend }

// Compile rewrites g in place and emits it. On failure no artifact is
// returned.
func (c *Compiler) Compile(ctx context.Context, g *graph.Graph, a Annotations) (*kernel.Artifact, error) {
	return c.compile(ctx, g, a, c.opts.Entry)
}

func (c *Compiler) logger(ctx context.Context) logr.Logger {
	if c.opts.logSet {
		return c.opts.Log
	}
	return logr.FromContextOrDiscard(ctx)
}

func (c *Compiler) compile(ctx context.Context, g *graph.Graph, a Annotations, entry string) (art *kernel.Artifact, err error) {
	name := c.backend.Name()
	log := c.logger(ctx).WithValues("kernel", g.Name, "backend", name)
	start := time.Now()
	defer func() {
		c.opts.Metrics.ObserveCompilation(name, time.Since(start).Seconds(), err)
		if err != nil {
			log.Error(err, "compilation failed")
		}
	}()

	if entry == "" {
		entry = EntryName(g.Name)
	}
	if err := annotate(g, a); err != nil {
		return nil, err
	}

	tgt := c.backend.Target()
	pctx := phases.NewContext(g, log)
	pctx.MaxDims = tgt.Caps.MaxDims
	for _, p := range phases.Pipeline() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t0 := time.Now()
		if err := phases.RunPass(pctx, p); err != nil {
			return nil, err
		}
		c.opts.Metrics.ObservePass(p.Name, time.Since(t0).Seconds())
	}
	for _, m := range pctx.Result.Mismatches {
		c.opts.Metrics.Mismatch(m.Pass)
	}
	log.V(2).Info("passes done",
		"ranges", len(pctx.Result.Ranges),
		"reductions", len(pctx.Result.Reductions),
		"composites", len(pctx.Result.Composites),
		"mismatches", len(pctx.Result.Mismatches))

	// Range extents are read before lowering rewrites the graph.
	mappings := mappingsOf(g, pctx.Result.Ranges)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t0 := time.Now()
	res, err := lower.Lower(g, &pctx.Result, tgt, c.backend.Generators(lower.Defaults()), lower.Options{
		Entry:              entry,
		LocalSize:          c.opts.LocalSize,
		ForceGlobalAtomics: c.opts.ForceGlobalAtomics,
		ConstantParams:     c.opts.ConstantParams,
	}, log)
	if err != nil {
		return nil, err
	}
	c.opts.Metrics.ObservePass(lower.PassName, time.Since(t0).Seconds())
	for _, m := range res.Mismatches {
		c.opts.Metrics.Mismatch(m.Pass)
	}
	for _, tmpl := range res.Templates {
		c.opts.Metrics.Reduction(name, tmpl.String())
	}

	if err := lir.Verify(res.Kernel); err != nil {
		return nil, fmt.Errorf("verify %s: %w", entry, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code, err := c.backend.Emit(res.Kernel)
	if err != nil {
		return nil, err
	}
	log.V(2).Info("kernel emitted", "entry", entry, "bytes", len(code), "instructions", len(res.Kernel.Body))

	meta := metadataOf(g, &pctx.Result, res, tgt.Format.String(), name)
	meta.Mappings = mappings
	return kernel.New(meta, code), nil
}
