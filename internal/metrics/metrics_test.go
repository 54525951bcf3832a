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

package metrics

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-kernelc/graph"
)

func TestRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := New()
	r.MustRegister(registry)

	t.Run("ObserveCompilation", func(t *testing.T) {
		r.ObserveCompilation("ptx", 0.001, nil)
		r.ObserveCompilation("ptx", 0.002, errors.New("boom"))
		assert.Equal(t, 2, testutil.CollectAndCount(r.compileTime))
	})

	t.Run("ObservePass", func(t *testing.T) {
		r.ObservePass("parallel", 0.0001)
		r.ObservePass("reduce", 0.0001)
		assert.Equal(t, 2, testutil.CollectAndCount(r.passTime))
	})

	t.Run("Mismatch", func(t *testing.T) {
		r.Mismatch("parallel")
		r.Mismatch("parallel")
		r.Mismatch("lower")
		assert.Equal(t, 2.0, testutil.ToFloat64(r.mismatches.WithLabelValues("parallel")))
		assert.Equal(t, 1.0, testutil.ToFloat64(r.mismatches.WithLabelValues("lower")))
	})

	t.Run("Reduction", func(t *testing.T) {
		r.Reduction("opencl", "local-tree")
		want := `
# HELP kernelc_compiler_reductions_total Lowered reductions by backend and template.
# TYPE kernelc_compiler_reductions_total counter
kernelc_compiler_reductions_total{backend="opencl",template="local-tree"} 1
`
		require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(want), "kernelc_compiler_reductions_total"))
	})
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveCompilation("spirv", 1, nil)
		r.ObservePass("access", 1)
		r.Mismatch("reduce")
		r.Reduction("spirv", "global-atomic")
	})
}

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultSuccess},
		{fmt.Errorf("lower: %w", &graph.UnsupportedError{Reason: "x"}), ResultUnsupported},
		{fmt.Errorf("pass: %w", &graph.InvariantError{Msg: "y"}), ResultInvariant},
		{errors.New("other"), ResultError},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Result(tt.err))
		})
	}
}
