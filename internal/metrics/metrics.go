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

// Package metrics instruments kernel compilations with Prometheus
// collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajroetker/go-kernelc/graph"
)

const (
	namespace = "kernelc"
	subsystem = "compiler"
)

// Result label values.
const (
	ResultSuccess     = "success"
	ResultUnsupported = "unsupported"
	ResultInvariant   = "invariant"
	ResultError       = "error"
)

// Recorder holds the compiler collectors. A nil *Recorder records nothing.
type Recorder struct {
	compileTime *prometheus.HistogramVec
	passTime    *prometheus.HistogramVec
	mismatches  *prometheus.CounterVec
	reductions  *prometheus.CounterVec
}

// New returns unregistered collectors.
func New() *Recorder {
	return &Recorder{
		compileTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "compilation_duration_seconds",
				Help:      "Kernel compilation time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12), // 50µs to ~100ms
			},
			[]string{"backend", "result"},
		),
		passTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pass_duration_seconds",
				Help:      "Time spent in each compilation pass in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 12),
			},
			[]string{"pass"},
		),
		mismatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "recognition_mismatches_total",
				Help:      "Recognition preconditions that did not hold, by pass.",
			},
			[]string{"pass"},
		),
		reductions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reductions_total",
				Help:      "Lowered reductions by backend and template.",
			},
			[]string{"backend", "template"},
		),
	}
}

// MustRegister registers the collectors with registry.
func (r *Recorder) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(r.compileTime, r.passTime, r.mismatches, r.reductions)
}

// Result classifies a compilation error for the result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, graph.ErrUnsupported):
		return ResultUnsupported
	case errors.Is(err, graph.ErrInvariant):
		return ResultInvariant
	}
	return ResultError
}

// ObserveCompilation records one compilation.
func (r *Recorder) ObserveCompilation(backend string, seconds float64, err error) {
	if r == nil {
		return
	}
	r.compileTime.WithLabelValues(backend, Result(err)).Observe(seconds)
}

// ObservePass records the duration of one pass.
func (r *Recorder) ObservePass(pass string, seconds float64) {
	if r == nil {
		return
	}
	r.passTime.WithLabelValues(pass).Observe(seconds)
}

// Mismatch counts a recognition mismatch.
func (r *Recorder) Mismatch(pass string) {
	if r == nil {
		return
	}
	r.mismatches.WithLabelValues(pass).Inc()
}

// Reduction counts a lowered reduction.
func (r *Recorder) Reduction(backend, template string) {
	if r == nil {
		return
	}
	r.reductions.WithLabelValues(backend, template).Inc()
}
