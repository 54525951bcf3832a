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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// JobFile describes a batch of graphs compiled with one backend. Relative
// paths are resolved against the directory of the job file.
type JobFile struct {
	Backend            string      `json:"backend,omitempty"`
	LocalSize          int         `json:"localSize,omitempty"`
	ForceGlobalAtomics bool        `json:"forceGlobalAtomics,omitempty"`
	ConstantParams     bool        `json:"constantParams,omitempty"`
	OutputDir          string      `json:"outputDir,omitempty"`
	Kernels            []JobKernel `json:"kernels"`
}

// JobKernel is one graph of a job file.
type JobKernel struct {
	Graph  string `json:"graph"`
	Entry  string `json:"entry,omitempty"`
	Output string `json:"output,omitempty"`
	Meta   string `json:"meta,omitempty"`
}

var errJob = errors.New("invalid job file")

// LoadJobFile reads and validates the job file at path.
func LoadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job JobFile
	if err := yaml.UnmarshalStrict(data, &job); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, errJob, err)
	}
	if len(job.Kernels) == 0 {
		return nil, fmt.Errorf("%s: %w: no kernels", path, errJob)
	}

	dir := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || p == "-" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	job.OutputDir = resolve(job.OutputDir)
	for i := range job.Kernels {
		k := &job.Kernels[i]
		if k.Graph == "" {
			return nil, fmt.Errorf("%s: %w: kernels[%d] has no graph", path, errJob, i)
		}
		k.Graph = resolve(k.Graph)
		k.Output = resolve(k.Output)
		k.Meta = resolve(k.Meta)
	}
	return &job, nil
}
