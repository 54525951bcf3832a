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

package command

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ajroetker/go-kernelc/backend/ptx"
	"github.com/ajroetker/go-kernelc/compiler"
	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/target"
)

func NewTargetsCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "targets [backend...]",
		Short: "List backends and their capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunTargets(cli, args)
		},
	}
}

// RunTargets describes the named backends, or all of them.
func RunTargets(cli *CLI, names []string) error {
	if len(names) == 0 {
		names = compiler.BackendNames()
	}
	for i, name := range names {
		b, err := compiler.NewBackend(name, ptx.Options{})
		if err != nil {
			return err
		}
		if i > 0 {
			cli.Println()
		}
		describe(cli, b.Target())
	}
	return nil
}

func describe(cli *CLI, t *target.Target) {
	cli.Println(Highlight("%s", t.Name))
	w := tabwriter.NewWriter(cli.Out, 0, 4, 2, ' ', 0)
	row := func(key, value string) { fmt.Fprintf(w, "  %s:\t%s\n", key, value) }

	row("format", t.Format.String())
	row("reduction", fmt.Sprintf("%s (local size %d)", t.Caps.Reduction, t.Caps.DefaultLocalSize))
	row("dimensions", fmt.Sprint(t.Caps.MaxDims))
	if t.Caps.GlobalIDBuiltin {
		row("global id", "builtin")
	} else {
		row("global id", "block id * block size + thread id")
	}
	row("vector lanes", join(t.Caps.VectorLanes))
	row("types", join(lo.Filter(t.Caps.Prims, func(p graph.Prim, _ int) bool { return t.SupportsType(graph.Scalar(p)) })))
	row("intrinsics", join(t.Intrinsics()))
	row("atomics", strings.Join(lo.Map(t.Atomics(), func(k target.AtomicKey, _ int) string {
		return fmt.Sprintf("%s.%s", k.Op, k.Prim)
	}), " "))
	if t.Registry != nil {
		row("call sites", fmt.Sprint(t.Registry.Len()))
	}
	_ = w.Flush()
}

func join[T any](v []T) string {
	if len(v) == 0 {
		return "none"
	}
	return strings.Join(lo.Map(v, func(x T, _ int) string { return fmt.Sprint(x) }), " ")
}
