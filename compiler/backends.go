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
	"slices"

	"github.com/ajroetker/go-kernelc/backend/opencl"
	"github.com/ajroetker/go-kernelc/backend/ptx"
	"github.com/ajroetker/go-kernelc/backend/spirv"
	"github.com/ajroetker/go-kernelc/lir"
	"github.com/ajroetker/go-kernelc/lower"
	"github.com/ajroetker/go-kernelc/target"
)

// Backend is one target vocabulary plus its emitter.
type Backend interface {
	Name() string
	Target() *target.Target
	// Generators returns the per-kind generate table, starting from the
	// target-neutral defaults in base.
	Generators(base lower.Table) lower.Table
	Emit(k *lir.Kernel) ([]byte, error)
}

var (
	_ Backend = (*opencl.Backend)(nil)
	_ Backend = (*ptx.Backend)(nil)
	_ Backend = (*spirv.Backend)(nil)
)

// BackendNames lists the selectors NewBackend accepts.
func BackendNames() []string {
	names := []string{opencl.Name, ptx.Name, spirv.Name}
	slices.Sort(names)
	return names
}

// NewBackend returns the backend named name. ptxOpts only applies to PTX.
func NewBackend(name string, ptxOpts ptx.Options) (Backend, error) {
	switch name {
	case opencl.Name:
		return opencl.New(), nil
	case ptx.Name:
		b, err := ptx.New(ptxOpts)
		if err != nil {
			return nil, err
		}
		return b, nil
	case spirv.Name:
		return spirv.New(), nil
	}
	return nil, fmt.Errorf("unknown backend %q (want one of %v)", name, BackendNames())
}
