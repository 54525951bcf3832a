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
	"context"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/ajroetker/go-kernelc/backend/opencl"
	"github.com/ajroetker/go-kernelc/backend/ptx"
	"github.com/ajroetker/go-kernelc/compiler"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/phases"
)

type DumpOptions struct {
	Backend     string
	AfterPasses bool
	// LIR prints the lowered kernel instead of the graph.
	LIR       bool
	LocalSize int
}

func NewDumpCommand(cli *CLI) *cobra.Command {
	var opts DumpOptions

	cmd := &cobra.Command{
		Use:   "dump graph.yaml",
		Short: "Print the graph of a kernel description",
		Long: Highlight("kernelc dump graph.yaml [--after-passes] [--lir]") + "\n\n" +
			"Print the node listing of a kernel graph, optionally after the\n" +
			"recognition passes have rewritten it, or the lowered instruction\n" +
			"stream for a backend.\n",
		Args: ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunDump(cmd.Context(), cli, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Backend, "backend", "b", env.Str(EnvBackend, opencl.Name), "Backend whose call sites and lowering are used")
	f.BoolVar(&opts.AfterPasses, "after-passes", false, "Run the recognition passes first and list their mismatches")
	f.BoolVar(&opts.LIR, "lir", false, "Print the lowered kernel")
	f.IntVar(&opts.LocalSize, "local-size", env.Int(EnvLocalSize, 0), "Work-group size used with --lir")

	return cmd
}

func RunDump(ctx context.Context, cli *CLI, opts DumpOptions, path string) error {
	b, err := compiler.NewBackend(opts.Backend, ptx.Options{})
	if err != nil {
		return err
	}
	g, err := readGraph(path, b)
	if err != nil {
		return err
	}
	if !opts.AfterPasses && !opts.LIR {
		cli.Printf("%s", g.Dump())
		return nil
	}

	log := logr.FromContextOrDiscard(ctx)
	tgt := b.Target()
	pctx := phases.NewContext(g, log)
	pctx.MaxDims = tgt.Caps.MaxDims
	if err := phases.Run(pctx); err != nil {
		return err
	}
	mismatches := pctx.Result.Mismatches

	if opts.LIR {
		res, err := lower.Lower(g, &pctx.Result, tgt, b.Generators(lower.Defaults()), lower.Options{
			Entry:     compiler.EntryName(g.Name),
			LocalSize: opts.LocalSize,
		}, log)
		if err != nil {
			return err
		}
		mismatches = append(mismatches, res.Mismatches...)
		cli.Printf("%s", res.Kernel.String())
	} else {
		cli.Printf("%s", g.Dump())
		cli.Printf("%s %d ranges, %d reductions, %d composites\n", Highlight("recognized:"),
			len(pctx.Result.Ranges), len(pctx.Result.Reductions), len(pctx.Result.Composites))
	}
	for _, m := range mismatches {
		cli.Printf("%s %s\n", color.YellowString("mismatch:"), m)
	}
	return nil
}
