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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/ajroetker/go-kernelc/backend/opencl"
	"github.com/ajroetker/go-kernelc/backend/ptx"
	"github.com/ajroetker/go-kernelc/backend/spirv"
	"github.com/ajroetker/go-kernelc/compiler"
	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/internal/graphio"
	"github.com/ajroetker/go-kernelc/internal/metrics"
	"github.com/ajroetker/go-kernelc/kernel"
)

// Environment variables overriding flag defaults.
const (
	EnvBackend   = "KERNELC_BACKEND"
	EnvLocalSize = "KERNELC_LOCAL_SIZE"
)

// Stdout as an output path writes the kernel to standard output.
const Stdout = "-"

var extensions = map[string]string{
	opencl.Name: ".cl",
	ptx.Name:    ".ptx",
	spirv.Name:  ".spv",
}

type CompileOptions struct {
	Backend string
	// Output is the kernel file for a single graph and the output
	// directory for several.
	Output string
	Meta   string
	Entry  string

	LocalSize          int
	ForceGlobalAtomics bool
	ConstantParams     bool
	PTX                ptx.Options

	// Metrics names a file receiving the compiler metrics in the
	// Prometheus text format.
	Metrics string
	Job     string
}

// unit is one graph to compile and where its results go.
type unit struct {
	graph  string
	entry  string
	output string
	meta   string
}

func NewCompileCommand(cli *CLI) *cobra.Command {
	var opts CompileOptions

	cmd := &cobra.Command{
		Use:   "compile [graph.yaml...]",
		Short: "Compile kernel graphs for a backend",
		Long: Highlight("kernelc compile graph.yaml --backend opencl|ptx|spirv") + "\n\n" +
			"Compile one or more kernel graph descriptions. Each graph produces a\n" +
			"kernel file and, when requested, a YAML metadata file describing the\n" +
			"parameters, launch dimensions and reductions.\n\n" +
			"Examples:\n" +
			"  kernelc compile vector_add.yaml --backend ptx -o vector_add.ptx --meta vector_add.meta.yaml\n" +
			"  kernelc compile --job kernels.yaml\n",
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := opts.units(args, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			return RunCompile(cmd.Context(), cli, opts, units)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Backend, "backend", "b", env.Str(EnvBackend, opencl.Name), "Backend: "+strings.Join(compiler.BackendNames(), ", "))
	f.StringVarP(&opts.Output, "output", "o", "", `Kernel file, or directory when compiling several graphs; "-" writes to stdout`)
	f.StringVar(&opts.Meta, "meta", "", "Metadata file for a single graph")
	f.StringVar(&opts.Entry, "entry", "", "Kernel entry symbol for a single graph")
	f.IntVar(&opts.LocalSize, "local-size", env.Int(EnvLocalSize, 0), "Work-group size; 0 lets the backend choose")
	f.BoolVar(&opts.ForceGlobalAtomics, "atomics", false, "Lower every reduction with global atomics")
	f.BoolVar(&opts.ConstantParams, "constant", false, "Place read-only arrays in constant memory")
	f.StringVar(&opts.PTX.ISA, "ptx-isa", "", "PTX ISA version, for example v7.0")
	f.IntVar(&opts.PTX.SM, "ptx-sm", 0, "PTX target architecture, for example 60 for sm_60")
	f.StringVar(&opts.Metrics, "metrics", "", "Write compiler metrics to this file")
	f.StringVar(&opts.Job, "job", "", "YAML job file listing the graphs to compile")

	return cmd
}

// units resolves the graphs to compile from args or the job file. Flags set
// on the command line take precedence over job file settings.
func (o *CompileOptions) units(args []string, changed func(string) bool) ([]unit, error) {
	if o.Job == "" {
		return o.argUnits(args)
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("graph arguments cannot be combined with --job")
	}
	if o.Meta != "" || o.Entry != "" {
		return nil, fmt.Errorf("--meta and --entry are set per kernel in the job file")
	}
	job, err := LoadJobFile(o.Job)
	if err != nil {
		return nil, err
	}
	if job.Backend != "" && !changed("backend") {
		o.Backend = job.Backend
	}
	if job.LocalSize != 0 && !changed("local-size") {
		o.LocalSize = job.LocalSize
	}
	o.ForceGlobalAtomics = o.ForceGlobalAtomics || job.ForceGlobalAtomics
	o.ConstantParams = o.ConstantParams || job.ConstantParams

	dir := job.OutputDir
	if changed("output") {
		dir = o.Output
	}
	units := make([]unit, len(job.Kernels))
	for i, k := range job.Kernels {
		units[i] = unit{graph: k.Graph, entry: k.Entry, output: k.Output, meta: k.Meta}
		if units[i].output == "" {
			units[i].output = o.derived(dir, k.Graph)
			units[i].meta = metaPath(units[i].output, k.Meta)
		}
	}
	return units, nil
}

func (o *CompileOptions) argUnits(args []string) ([]unit, error) {
	switch len(args) {
	case 0:
		return nil, fmt.Errorf("no graphs to compile")
	case 1:
		out := o.Output
		if out == "" {
			out = o.derived("", args[0])
		}
		return []unit{{graph: args[0], entry: o.Entry, output: out, meta: o.Meta}}, nil
	}
	if o.Meta != "" || o.Entry != "" {
		return nil, fmt.Errorf("--meta and --entry need a single graph")
	}
	if o.Output == Stdout {
		return nil, fmt.Errorf("several graphs cannot be written to stdout")
	}
	units := make([]unit, len(args))
	for i, a := range args {
		out := o.derived(o.Output, a)
		units[i] = unit{graph: a, output: out, meta: metaPath(out, "")}
	}
	return units, nil
}

// derived names the kernel file of graphPath in dir.
func (o *CompileOptions) derived(dir, graphPath string) string {
	stem := strings.TrimSuffix(filepath.Base(graphPath), filepath.Ext(graphPath))
	return filepath.Join(dir, stem+extensions[o.Backend])
}

func metaPath(output, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".meta.yaml"
}

// RunCompile compiles every unit concurrently and writes the results.
func RunCompile(ctx context.Context, cli *CLI, opts CompileOptions, units []unit) error {
	b, err := compiler.NewBackend(opts.Backend, opts.PTX)
	if err != nil {
		return err
	}
	rec := metrics.New()
	c, err := compiler.New(b,
		compiler.WithLocalSize(opts.LocalSize),
		compiler.WithForceGlobalAtomics(opts.ForceGlobalAtomics),
		compiler.WithConstantParams(opts.ConstantParams),
		compiler.WithMetrics(rec),
	)
	if err != nil {
		return err
	}

	jobs := make([]compiler.Job, len(units))
	for i, u := range units {
		g, err := readGraph(u.graph, b)
		if err != nil {
			return err
		}
		jobs[i] = compiler.Job{Graph: g, Annotations: compiler.AnnotationsOf(g), Entry: u.entry}
	}
	arts, err := c.CompileAll(ctx, jobs)
	if err != nil {
		return err
	}

	for i, u := range units {
		if err := write(cli, u, arts[i]); err != nil {
			return err
		}
		report(cli, u, arts[i])
	}

	if opts.Metrics != "" {
		reg := prometheus.NewRegistry()
		rec.MustRegister(reg)
		if err := prometheus.WriteToTextfile(opts.Metrics, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func readGraph(path string, b compiler.Backend) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := graphio.Decode(data, b.Target().Registry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func write(cli *CLI, u unit, art *kernel.Artifact) error {
	if u.output == Stdout {
		if art.Binary() {
			return fmt.Errorf("%s: refusing to write a binary kernel to stdout", u.graph)
		}
		if _, err := cli.Out.Write(art.Code()); err != nil {
			return err
		}
	} else if err := writeFile(u.output, art.Code()); err != nil {
		return err
	}

	if u.meta == "" {
		return nil
	}
	meta, err := art.MarshalYAML()
	if err != nil {
		return err
	}
	return writeFile(u.meta, meta)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func report(cli *CLI, u unit, art *kernel.Artifact) {
	if u.output == Stdout {
		return
	}
	meta := art.Metadata()
	cli.Printf("%s %s -> %s (entry %s, %d dims, %d reductions)\n",
		color.GreenString("compiled"), u.graph, u.output,
		Highlight("%s", meta.Entry), len(meta.Mappings), len(meta.Reductions))
	for _, m := range meta.Mismatches {
		cli.Printf("  %s %s\n", color.YellowString("note:"), m)
	}
}
