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

// Package kernel holds the compiled kernel artifact: the emitted code plus
// the metadata the host scheduler needs to plan buffer transfers and launch
// geometry.
package kernel

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"sigs.k8s.io/yaml"

	"github.com/ajroetker/go-kernelc/graph"
)

// ExtentKind says how an Extent is known.
type ExtentKind string

const (
	// ExtentConst is a compile-time constant.
	ExtentConst ExtentKind = "const"
	// ExtentParam is the value of a scalar kernel argument.
	ExtentParam ExtentKind = "param"
	// ExtentExpr is computed inside the kernel from other values.
	ExtentExpr ExtentKind = "expr"
)

// Extent is a launch-geometry quantity.
type Extent struct {
	Kind  ExtentKind `json:"kind"`
	Value int64      `json:"value,omitempty"`
	Param string     `json:"param,omitempty"`
}

// Const returns a constant extent.
func Const(v int64) Extent { return Extent{Kind: ExtentConst, Value: v} }

// ParamExtent returns an extent read from the named argument.
func ParamExtent(name string) Extent { return Extent{Kind: ExtentParam, Param: name} }

// Expr returns an extent computed in the kernel.
func Expr() Extent { return Extent{Kind: ExtentExpr} }

func (e Extent) String() string {
	switch e.Kind {
	case ExtentConst:
		return fmt.Sprint(e.Value)
	case ExtentParam:
		return e.Param
	}
	return string(e.Kind)
}

// Resolve returns the value of e given the scalar kernel arguments.
func (e Extent) Resolve(args map[string]int64) (int64, error) {
	switch e.Kind {
	case ExtentConst:
		return e.Value, nil
	case ExtentParam:
		v, ok := args[e.Param]
		if !ok {
			return 0, fmt.Errorf("missing argument %q", e.Param)
		}
		return v, nil
	}
	return 0, fmt.Errorf("extent of kind %q cannot be resolved on the host", e.Kind)
}

// Param describes one kernel parameter, in declaration order.
type Param struct {
	Name   string       `json:"name"`
	Type   string       `json:"type"`
	Space  string       `json:"space,omitempty"`
	Access graph.Access `json:"access"`
}

// IsBuffer reports whether the parameter is an array the host must
// transfer.
func (p Param) IsBuffer() bool { return p.Space != "" && p.Space != "none" }

// Mapping maps a parallel dimension onto the thread index space:
// index = Offset + Stride * id for id in [0, trip count).
type Mapping struct {
	Dim       int    `json:"dim"`
	Offset    Extent `json:"offset"`
	Stride    int64  `json:"stride"`
	Bound     Extent `json:"bound"`
	Inclusive bool   `json:"inclusive,omitempty"`
	TripCount Extent `json:"tripCount"`
}

// Trips returns the trip count of the dimension given the scalar kernel
// arguments.
func (m Mapping) Trips(args map[string]int64) (int64, error) {
	if m.TripCount.Kind == ExtentConst {
		return m.TripCount.Value, nil
	}
	start, err := m.Offset.Resolve(args)
	if err != nil {
		return 0, fmt.Errorf("dimension %d offset: %w", m.Dim, err)
	}
	hi, err := m.Bound.Resolve(args)
	if err != nil {
		return 0, fmt.Errorf("dimension %d bound: %w", m.Dim, err)
	}
	if m.Inclusive {
		hi++
	}
	if m.Stride <= 0 {
		return 0, fmt.Errorf("dimension %d: stride %d", m.Dim, m.Stride)
	}
	if hi <= start {
		return 0, nil
	}
	return (hi - start + m.Stride - 1) / m.Stride, nil
}

// Reduction summarizes a recognized reduction and how it was lowered.
type Reduction struct {
	Target   string `json:"target"`
	Op       string `json:"op"`
	Type     string `json:"type"`
	Template string `json:"template"`
	Input    string `json:"input,omitempty"`
}

// Metadata is the host-facing description of a kernel.
type Metadata struct {
	Backend    string      `json:"backend"`
	Entry      string      `json:"entry"`
	Format     string      `json:"format"`
	LocalSize  int         `json:"localSize,omitempty"`
	Params     []Param     `json:"params"`
	Mappings   []Mapping   `json:"mappings,omitempty"`
	Reductions []Reduction `json:"reductions,omitempty"`
	// Mismatches lists the recognition preconditions that did not hold and
	// made the kernel less parallel than requested.
	Mismatches []string `json:"mismatches,omitempty"`
}

func (m Metadata) clone() Metadata {
	m.Params = slices.Clone(m.Params)
	m.Mappings = slices.Clone(m.Mappings)
	m.Reductions = slices.Clone(m.Reductions)
	m.Mismatches = slices.Clone(m.Mismatches)
	return m
}

// Transfers returns the buffers the host copies to the device before the
// launch and back from it afterwards.
func (m Metadata) Transfers() (toDevice, fromDevice []string) {
	buffers := lo.Filter(m.Params, func(p Param, _ int) bool { return p.IsBuffer() })
	toDevice = lo.FilterMap(buffers, func(p Param, _ int) (string, bool) { return p.Name, p.Access.Reads() })
	fromDevice = lo.FilterMap(buffers, func(p Param, _ int) (string, bool) { return p.Name, p.Access.Writes() })
	return toDevice, fromDevice
}

// GlobalSize returns the number of work items per dimension.
func (m Metadata) GlobalSize(args map[string]int64) ([]int64, error) {
	out := make([]int64, len(m.Mappings))
	for i, mp := range m.Mappings {
		n, err := mp.Trips(args)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// ParseMetadata decodes metadata written by Artifact.MarshalYAML.
func ParseMetadata(b []byte) (Metadata, error) {
	var m Metadata
	if err := yaml.UnmarshalStrict(b, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse kernel metadata: %w", err)
	}
	return m, nil
}

// Artifact is an emitted kernel. It is immutable: accessors return copies.
type Artifact struct {
	meta Metadata
	code []byte
}

// New returns an artifact owning copies of meta and code.
func New(meta Metadata, code []byte) *Artifact {
	return &Artifact{meta: meta.clone(), code: slices.Clone(code)}
}

func (a *Artifact) Backend() string { return a.meta.Backend }

func (a *Artifact) Entry() string { return a.meta.Entry }

// Binary reports whether Code is a binary module rather than text.
func (a *Artifact) Binary() bool { return a.meta.Format == "binary" }

// Code returns the emitted kernel.
func (a *Artifact) Code() []byte { return slices.Clone(a.code) }

func (a *Artifact) Params() []Param { return slices.Clone(a.meta.Params) }

func (a *Artifact) Mappings() []Mapping { return slices.Clone(a.meta.Mappings) }

func (a *Artifact) Reductions() []Reduction { return slices.Clone(a.meta.Reductions) }

func (a *Artifact) Metadata() Metadata { return a.meta.clone() }

// Access returns the access descriptor of the named parameter.
func (a *Artifact) Access(name string) (graph.Access, bool) {
	p, ok := lo.Find(a.meta.Params, func(p Param) bool { return p.Name == name })
	return p.Access, ok
}

// MarshalYAML renders the metadata (not the code) as YAML.
func (a *Artifact) MarshalYAML() ([]byte, error) { return yaml.Marshal(a.meta) }
