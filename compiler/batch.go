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
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/kernel"
)

// Job is one independent compilation of a batch.
type Job struct {
	Graph       *graph.Graph
	Annotations Annotations
	// Entry overrides the compiler's entry name for this job.
	Entry string
}

// CompileAll compiles jobs concurrently and returns the artifacts in job
// order. Jobs must not share graphs. The first failure cancels the jobs
// still running and is returned.
func (c *Compiler) CompileAll(ctx context.Context, jobs []Job) ([]*kernel.Artifact, error) {
	seen := make(map[*graph.Graph]int, len(jobs))
	for i, j := range jobs {
		if j.Graph == nil {
			return nil, fmt.Errorf("job %d: no graph", i)
		}
		if prev, ok := seen[j.Graph]; ok {
			return nil, fmt.Errorf("jobs %d and %d share graph %q", prev, i, j.Graph.Name)
		}
		seen[j.Graph] = i
	}

	out := make([]*kernel.Artifact, len(jobs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, j := range jobs {
		eg.Go(func() error {
			entry := j.Entry
			if entry == "" {
				entry = c.opts.Entry
			}
			art, err := c.compile(ctx, j.Graph, j.Annotations, entry)
			if err != nil {
				return fmt.Errorf("job %d (%s): %w", i, j.Graph.Name, err)
			}
			out[i] = art
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
