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

package command_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	"github.com/ajroetker/go-kernelc/cmd/kernelc/internal/command"
	"github.com/ajroetker/go-kernelc/internal/sim"
	"github.com/ajroetker/go-kernelc/kernel"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// fixtures extracts testdata/kernels.txtar into a fresh directory.
func fixtures(t *testing.T) string {
	t.Helper()
	ar, err := txtar.ParseFile("testdata/kernels.txtar")
	require.NoError(t, err)
	dir := t.TempDir()
	for _, f := range ar.Files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644))
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := command.NewRootCommand(command.NewCLI(&out, &errOut))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func readMeta(t *testing.T, path string) kernel.Metadata {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	meta, err := kernel.ParseMetadata(data)
	require.NoError(t, err)
	return meta
}

func TestExactArgs(t *testing.T) {
	fn := command.ExactArgs(2)
	assert.NoError(t, fn(nil, []string{"a", "b"}))
	err := fn(nil, []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 arguments, got 1")
}

func TestMaxArgs(t *testing.T) {
	fn := command.MaxArgs(1)
	assert.NoError(t, fn(nil, nil))
	assert.NoError(t, fn(nil, []string{"a"}))
	err := fn(nil, []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 1")
}

func TestCompile(t *testing.T) {
	dir := fixtures(t)
	code := filepath.Join(dir, "vadd.cl")
	metaFile := filepath.Join(dir, "vadd.meta.yaml")

	out, err := run(t, "compile", filepath.Join(dir, "vector_add.yaml"),
		"--backend", "opencl", "-o", code, "--meta", metaFile)
	require.NoError(t, err)
	assert.Contains(t, out, "compiled")
	assert.Contains(t, out, "vectorOpsAdd")

	src, err := os.ReadFile(code)
	require.NoError(t, err)
	assert.Contains(t, string(src), "__kernel void vectorOpsAdd(")

	meta := readMeta(t, metaFile)
	assert.Equal(t, "opencl", meta.Backend)
	assert.Equal(t, "vectorOpsAdd", meta.Entry)
	assert.Len(t, meta.Params, 4)
	assert.Len(t, meta.Mappings, 1)
}

func TestCompileWithoutMeta(t *testing.T) {
	dir := fixtures(t)
	code := filepath.Join(dir, "k.ptx")
	_, err := run(t, "compile", filepath.Join(dir, "vector_add.yaml"), "--backend", "ptx", "-o", code)
	require.NoError(t, err)
	assert.FileExists(t, code)
	assert.NoFileExists(t, filepath.Join(dir, "k.meta.yaml"))
}

func TestCompileStdout(t *testing.T) {
	dir := fixtures(t)
	graphFile := filepath.Join(dir, "vector_add.yaml")

	out, err := run(t, "compile", graphFile, "--backend", "ptx", "-o", "-")
	require.NoError(t, err)
	assert.Contains(t, out, ".visible .entry vectorOpsAdd(")
	assert.NotContains(t, out, "compiled")

	out, err = run(t, "compile", graphFile, "--backend", "opencl", "-o", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "int n)")
	assert.NotContains(t, out, "false")
	assert.NotContains(t, out, "true")

	_, err = run(t, "compile", graphFile, "--backend", "spirv", "-o", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binary")
}

func TestCompileSeveral(t *testing.T) {
	dir := fixtures(t)
	outDir := filepath.Join(dir, "build")

	_, err := run(t, "compile",
		filepath.Join(dir, "vector_add.yaml"), filepath.Join(dir, "sum.yaml"),
		"--backend", "opencl", "--local-size", "32", "-o", outDir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(outDir, "vector_add.cl"))
	meta := readMeta(t, filepath.Join(outDir, "sum.meta.yaml"))
	assert.Equal(t, "reductionsSum", meta.Entry)
	assert.Equal(t, 32, meta.LocalSize)
	require.Len(t, meta.Reductions, 1)
	assert.Equal(t, "result", meta.Reductions[0].Target)
}

func TestCompileJob(t *testing.T) {
	dir := fixtures(t)
	job := filepath.Join(dir, "job.yaml")

	_, err := run(t, "compile", "--job", job)
	require.NoError(t, err)
	src, err := os.ReadFile(filepath.Join(dir, "out", "vector_add.ptx"))
	require.NoError(t, err)
	assert.Contains(t, string(src), ".entry vadd(")
	meta := readMeta(t, filepath.Join(dir, "out", "sum.meta.yaml"))
	assert.Equal(t, "ptx", meta.Backend)

	// Command line flags win over the job file.
	_, err = run(t, "compile", "--job", job, "--backend", "opencl")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "out", "vector_add.cl"))
}

func TestCompileMetrics(t *testing.T) {
	dir := fixtures(t)
	file := filepath.Join(dir, "metrics.prom")
	_, err := run(t, "compile", filepath.Join(dir, "sum.yaml"),
		"-o", filepath.Join(dir, "sum.cl"), "--metrics", file)
	require.NoError(t, err)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kernelc_compiler_compilation_duration_seconds")
	assert.Contains(t, string(data), "kernelc_compiler_reductions_total")
}

func TestCompileErrors(t *testing.T) {
	dir := fixtures(t)
	vadd := filepath.Join(dir, "vector_add.yaml")
	sum := filepath.Join(dir, "sum.yaml")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no graphs", nil, "no graphs"},
		{"unknown backend", []string{vadd, "--backend", "metal"}, "unknown backend"},
		{"broken graph", []string{filepath.Join(dir, "broken.yaml")}, `undefined name "y"`},
		{"missing file", []string{filepath.Join(dir, "nope.yaml")}, "nope.yaml"},
		{"meta for several", []string{vadd, sum, "--meta", "m.yaml"}, "single graph"},
		{"several to stdout", []string{vadd, sum, "-o", "-"}, "stdout"},
		{"job and args", []string{vadd, "--job", filepath.Join(dir, "job.yaml")}, "--job"},
		{"local size", []string{vadd, "--local-size", "5000", "-o", filepath.Join(dir, "x.cl")}, "out of range"},
		{"ptx isa", []string{vadd, "--backend", "ptx", "--ptx-isa", "seven"}, "seven"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"compile"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadJobFile(t *testing.T) {
	dir := fixtures(t)
	job, err := command.LoadJobFile(filepath.Join(dir, "job.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ptx", job.Backend)
	assert.Equal(t, filepath.Join(dir, "out"), job.OutputDir)
	require.Len(t, job.Kernels, 2)
	assert.Equal(t, filepath.Join(dir, "vector_add.yaml"), job.Kernels[0].Graph)
	assert.Equal(t, "vadd", job.Kernels[0].Entry)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("backend: ptx\n"), 0o644))
	_, err = command.LoadJobFile(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kernels")

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("kernels: [{graph: a.yaml}]\nthreads: 4\n"), 0o644))
	_, err = command.LoadJobFile(unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threads")
}

func TestDump(t *testing.T) {
	dir := fixtures(t)
	sum := filepath.Join(dir, "sum.yaml")

	out, err := run(t, "dump", sum)
	require.NoError(t, err)
	assert.Contains(t, out, "graph Reductions.sum")
	assert.NotContains(t, out, "recognized:")

	out, err = run(t, "dump", sum, "--after-passes")
	require.NoError(t, err)
	assert.Contains(t, out, "recognized: 1 ranges, 1 reductions")

	out, err = run(t, "dump", sum, "--lir", "--backend", "opencl")
	require.NoError(t, err)
	assert.Contains(t, out, "kernel reductionsSum dims=1 local=64")

	_, err = run(t, "dump")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 1 arguments")
}

func TestTargets(t *testing.T) {
	out, err := run(t, "targets")
	require.NoError(t, err)
	for _, want := range []string{"opencl", "ptx", "spirv", "local-tree", "global-atomic", "intrinsics:", "call sites:"} {
		assert.Contains(t, out, want)
	}

	out, err = run(t, "targets", "ptx")
	require.NoError(t, err)
	assert.Contains(t, out, "global-atomic (local size 128)")
	assert.NotContains(t, out, "local-tree")

	_, err = run(t, "targets", "metal")
	require.Error(t, err)
}

func TestHost(t *testing.T) {
	out, err := run(t, "host")
	require.NoError(t, err)
	assert.Contains(t, out, "GOARCH: "+runtime.GOARCH)
	assert.Contains(t, out, "simulator work groups in parallel: "+strconv.Itoa(sim.GroupParallelism()))

	assert.NotEmpty(t, command.HostFeatures("amd64"))
	assert.NotEmpty(t, command.HostFeatures("arm64"))
	assert.Nil(t, command.HostFeatures("riscv64"))

	names := make([]string, 0)
	for _, f := range command.HostFeatures("amd64") {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "AVX2")
}

func TestVerbosity(t *testing.T) {
	_, err := run(t, "-v", "-1", "targets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative")
}
