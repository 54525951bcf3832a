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
	"fmt"
	"regexp"

	"github.com/go-logr/logr"

	"github.com/ajroetker/go-kernelc/internal/metrics"
)

// MaxLocalSize bounds WithLocalSize.
const MaxLocalSize = 1024

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configure a Compiler.
type Options struct {
	// Log receives pass summaries and mismatches. When unset the logger of
	// the compilation context is used.
	Log    logr.Logger
	logSet bool

	// LocalSize fixes the work-group size; 0 lets the backend decide.
	LocalSize int
	// Entry overrides the kernel symbol derived from the graph name.
	Entry string

	ForceGlobalAtomics bool
	ConstantParams     bool

	Metrics *metrics.Recorder
}

// Option mutates Options.
type Option func(*Options)

func WithLogger(log logr.Logger) Option {
	return func(o *Options) {
		o.Log = log
		o.logSet = true
	}
}

func WithLocalSize(n int) Option { return func(o *Options) { o.LocalSize = n } }

func WithEntryName(name string) Option { return func(o *Options) { o.Entry = name } }

func WithMetrics(r *metrics.Recorder) Option { return func(o *Options) { o.Metrics = r } }

// WithForceGlobalAtomics lowers every reduction with one atomic per
// contribution.
func WithForceGlobalAtomics(on bool) Option {
	return func(o *Options) { o.ForceGlobalAtomics = on }
}

// WithConstantParams places read-only array parameters in constant memory.
func WithConstantParams(on bool) Option {
	return func(o *Options) { o.ConstantParams = on }
}

// Validate reports the first invalid option.
func (o *Options) Validate() error {
	if o.LocalSize < 0 || o.LocalSize > MaxLocalSize {
		return fmt.Errorf("local size %d out of range [0, %d]", o.LocalSize, MaxLocalSize)
	}
	if o.Entry != "" && !identifier.MatchString(o.Entry) {
		return fmt.Errorf("entry name %q is not an identifier", o.Entry)
	}
	return nil
}
