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

// Package graphio reads kernel descriptions written in YAML and builds the
// corresponding graph. It stands in for a language front-end: call sites are
// resolved through a target.Registry exactly as a front-end would resolve
// them, and the parallel and reduce annotations are carried as node flags.
//
// A description looks like
//
//	name: vectorAdd
//	params:
//	- {name: a, type: "f32[]"}
//	- {name: b, type: "f32[]"}
//	- {name: c, type: "f32[]"}
//	- {name: n, type: i32}
//	body:
//	- loop:
//	    var: i
//	    to: n
//	    parallel: true
//	    body:
//	    - {let: x, op: load, args: [a, i]}
//	    - {let: y, op: load, args: [b, i]}
//	    - {let: s, op: add, args: [x, y]}
//	    - {op: store, args: [c, i, s]}
//
// Arguments are either names bound by params, let, loop variables and phis,
// or numeric literals typed from their context.
package graphio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/target"
)

// ErrDescription is matched by every error about a malformed description.
var ErrDescription = errors.New("invalid kernel description")

// Kernel is the top level of a description.
type Kernel struct {
	Name   string  `yaml:"name"`
	Params []Param `yaml:"params"`
	Body   []Stmt  `yaml:"body"`
}

// Param declares one kernel parameter.
type Param struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Reduce marks an array parameter as a reduction target.
	Reduce bool `yaml:"reduce,omitempty"`
}

// Stmt is one statement. Exactly one of Op, Call, If and Loop is set.
type Stmt struct {
	Let  string `yaml:"let,omitempty"`
	Op   string `yaml:"op,omitempty"`
	Args []any  `yaml:"args,omitempty"`
	Type string `yaml:"type,omitempty"`
	Cond string `yaml:"cond,omitempty"`
	// Call is a call site such as "Math.sqrt", resolved through the
	// registry.
	Call string `yaml:"call,omitempty"`
	// Lane is the lane of field and setfield.
	Lane int `yaml:"lane,omitempty"`
	// Size is the element count of array and of local array allocations.
	Size int `yaml:"size,omitempty"`

	If   *If   `yaml:"if,omitempty"`
	Loop *Loop `yaml:"loop,omitempty"`
}

// If is a two-way branch. Phis merge one value from each arm.
type If struct {
	Cond string `yaml:"cond"`
	Then []Stmt `yaml:"then,omitempty"`
	Else []Stmt `yaml:"else,omitempty"`
	Phis []Phi  `yaml:"phis,omitempty"`
}

// Phi merges the values named Then and Else into Let.
type Phi struct {
	Let  string `yaml:"let"`
	Type string `yaml:"type,omitempty"`
	Then any    `yaml:"then"`
	Else any    `yaml:"else"`
}

// Loop is a counted loop `for var := from; var <cond> to; var += step`.
type Loop struct {
	Var      string `yaml:"var"`
	Type     string `yaml:"type,omitempty"`
	From     any    `yaml:"from,omitempty"`
	To       any    `yaml:"to"`
	Step     any    `yaml:"step,omitempty"`
	Cond     string `yaml:"cond,omitempty"`
	Parallel bool   `yaml:"parallel,omitempty"`
	Body     []Stmt `yaml:"body,omitempty"`
	// Carry lists loop-carried values, bound in the body and after the
	// loop.
	Carry []Carry `yaml:"carry,omitempty"`
}

// Carry is a loop-carried value: Init on entry, Next after every iteration.
type Carry struct {
	Let  string `yaml:"let"`
	Type string `yaml:"type,omitempty"`
	Init any    `yaml:"init"`
	Next any    `yaml:"next"`
}

var opKinds = map[string]graph.Kind{
	"add":      graph.KindAdd,
	"sub":      graph.KindSub,
	"mul":      graph.KindMul,
	"div":      graph.KindDiv,
	"rem":      graph.KindRem,
	"and":      graph.KindAnd,
	"or":       graph.KindOr,
	"xor":      graph.KindXor,
	"shl":      graph.KindShl,
	"shr":      graph.KindShr,
	"ushr":     graph.KindUShr,
	"neg":      graph.KindNeg,
	"not":      graph.KindNot,
	"convert":  graph.KindConvert,
	"compare":  graph.KindCompare,
	"load":     graph.KindLoadIndexed,
	"store":    graph.KindStoreIndexed,
	"field":    graph.KindLoadField,
	"setfield": graph.KindStoreField,
	"vector":   graph.KindNewVector,
	"array":    graph.KindNewArray,
	"return":   graph.KindReturn,
}

// Parse decodes a description without building it.
func Parse(data []byte) (*Kernel, error) {
	var k Kernel
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&k); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrDescription, err)
	}
	if k.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrDescription)
	}
	return &k, nil
}

// Decode parses data and builds its graph, resolving call sites through reg.
func Decode(data []byte, reg *target.Registry) (*graph.Graph, error) {
	k, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return k.Build(reg)
}

// Build constructs the graph of k. Call sites reg does not know become
// unresolved Call nodes, which lowering reports as unsupported.
func (k *Kernel) Build(reg *target.Registry) (g *graph.Graph, err error) {
	defer graph.Recover("graphio", &err)

	b := &builder{g: graph.New(k.Name), reg: reg}
	b.push()
	for i, p := range k.Params {
		t, err := graph.ParseType(p.Type)
		if err != nil {
			return nil, b.errorf("params[%d]: %v", i, err)
		}
		if p.Reduce && !t.Array {
			return nil, b.errorf("params[%d]: reduce target %q is not an array", i, p.Name)
		}
		id := b.g.AddParam(p.Name, t)
		if p.Reduce {
			b.g.Node(id).Flags |= graph.FlagReduce
		}
		if err := b.bind(p.Name, id); err != nil {
			return nil, err
		}
	}
	if err := b.block(b.g.Entry(), "body", k.Body); err != nil {
		return nil, err
	}
	if !b.returned {
		b.g.Emit(b.g.Entry(), graph.KindReturn, graph.TVoid)
	}
	if err := b.g.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescription, err)
	}
	return b.g, nil
}

// posError locates an error at the innermost statement that caused it.
type posError struct {
	path string
	err  error
}

func (e *posError) Error() string { return e.path + ": " + e.err.Error() }
func (e *posError) Unwrap() error { return e.err }

type builder struct {
	g        *graph.Graph
	reg      *target.Registry
	scopes   []map[string]graph.NodeID
	returned bool
}

func (b *builder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDescription, fmt.Sprintf(format, args...))
}

func (b *builder) push() { b.scopes = append(b.scopes, map[string]graph.NodeID{}) }
func (b *builder) pop()  { b.scopes = b.scopes[:len(b.scopes)-1] }

func (b *builder) bind(name string, id graph.NodeID) error {
	top := b.scopes[len(b.scopes)-1]
	if _, dup := top[name]; dup {
		return b.errorf("%q is already defined", name)
	}
	top[name] = id
	return nil
}

func (b *builder) lookup(name string) (graph.NodeID, bool) {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if id, ok := b.scopes[i][name]; ok {
			return id, true
		}
	}
	return 0, false
}

// value resolves a name or builds a literal of type t. t is the zero Type
// when the context gives none.
func (b *builder) value(v any, t graph.Type) (graph.NodeID, error) {
	switch v := v.(type) {
	case string:
		id, ok := b.lookup(v)
		if !ok {
			return 0, b.errorf("undefined name %q", v)
		}
		return id, nil
	case int:
		return b.intLiteral(int64(v), t)
	case int64:
		return b.intLiteral(v, t)
	case uint64:
		return b.intLiteral(int64(v), t)
	case float64:
		if t.Prim == graph.Void {
			return 0, b.errorf("cannot infer the type of literal %v", v)
		}
		return b.literal(v, t)
	case bool:
		if t.Prim != graph.Void && t.LaneType() != graph.TBool {
			return 0, b.errorf("boolean literal %v is not a valid %s", v, t.LaneType())
		}
		if v {
			return b.g.ConstInt(graph.TBool, 1), nil
		}
		return b.g.ConstInt(graph.TBool, 0), nil
	case nil:
		return 0, b.errorf("missing value")
	}
	return 0, b.errorf("unexpected value %v (%T)", v, v)
}

func (b *builder) intLiteral(v int64, t graph.Type) (graph.NodeID, error) {
	if t.Prim == graph.Void {
		return 0, b.errorf("cannot infer the type of literal %v", v)
	}
	t = t.LaneType()
	if t.Prim.IsFloat() {
		return b.g.ConstFloat(t, float64(v)), nil
	}
	return b.g.ConstInt(t, v), nil
}

func (b *builder) literal(v float64, t graph.Type) (graph.NodeID, error) {
	t = t.LaneType()
	if t.Prim.IsFloat() {
		return b.g.ConstFloat(t, v), nil
	}
	if v != math.Trunc(v) {
		return 0, b.errorf("literal %v is not a valid %s", v, t)
	}
	return b.g.ConstInt(t, int64(v)), nil
}

// operands resolves args, typing literals after t or, when t is zero, after
// the first named argument.
func (b *builder) operands(args []any, t graph.Type) ([]graph.NodeID, error) {
	if t.Prim == graph.Void {
		for _, a := range args {
			if name, ok := a.(string); ok {
				if id, ok := b.lookup(name); ok {
					t = b.g.Node(id).Type
					break
				}
			}
		}
	}
	out := make([]graph.NodeID, len(args))
	for i, a := range args {
		id, err := b.value(a, t)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func optType(s string) (graph.Type, error) {
	if s == "" {
		return graph.Type{}, nil
	}
	return graph.ParseType(s)
}

func (b *builder) block(blk graph.BlockID, path string, stmts []Stmt) error {
	for i, s := range stmts {
		p := fmt.Sprintf("%s[%d]", path, i)
		if err := b.stmt(blk, p, &s); err != nil {
			var pe *posError
			if errors.As(err, &pe) {
				return err
			}
			return &posError{path: p, err: err}
		}
	}
	return nil
}

func (b *builder) stmt(blk graph.BlockID, path string, s *Stmt) error {
	set := 0
	for _, ok := range []bool{s.Op != "", s.Call != "", s.If != nil, s.Loop != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return b.errorf("want exactly one of op, call, if and loop")
	}
	switch {
	case s.If != nil:
		return b.ifStmt(blk, path, s.If)
	case s.Loop != nil:
		return b.loopStmt(blk, path, s.Loop)
	case s.Call != "":
		return b.callStmt(blk, s)
	}
	id, err := b.opStmt(blk, s)
	if err != nil {
		return err
	}
	if s.Let == "" {
		return nil
	}
	if id == 0 || b.g.Node(id).Type.Prim == graph.Void && !b.g.Node(id).Type.Array {
		return b.errorf("%s produces no value to bind to %q", s.Op, s.Let)
	}
	return b.bind(s.Let, id)
}

func (b *builder) opStmt(blk graph.BlockID, s *Stmt) (graph.NodeID, error) {
	kind, ok := opKinds[strings.ToLower(s.Op)]
	if !ok {
		return 0, b.errorf("unknown op %q", s.Op)
	}
	t, err := optType(s.Type)
	if err != nil {
		return 0, b.errorf("%v", err)
	}
	g := b.g
	switch kind {
	case graph.KindReturn:
		if len(s.Args) > 0 {
			return 0, b.errorf("return takes no arguments")
		}
		if blk == g.Entry() {
			b.returned = true
		}
		return g.Emit(blk, kind, graph.TVoid), nil

	case graph.KindLoadIndexed, graph.KindStoreIndexed:
		want := 2
		if kind == graph.KindStoreIndexed {
			want = 3
		}
		if len(s.Args) != want {
			return 0, b.errorf("%s takes %d arguments", s.Op, want)
		}
		arr, err := b.value(s.Args[0], graph.Type{})
		if err != nil {
			return 0, err
		}
		at := g.Node(arr).Type
		if !at.Array {
			return 0, b.errorf("%s of non-array %s", s.Op, at)
		}
		idx, err := b.value(s.Args[1], graph.TI32)
		if err != nil {
			return 0, err
		}
		if kind == graph.KindLoadIndexed {
			return g.Load(blk, arr, idx), nil
		}
		v, err := b.value(s.Args[2], at.Elem())
		if err != nil {
			return 0, err
		}
		return g.Store(blk, arr, idx, v), nil

	case graph.KindLoadField, graph.KindStoreField:
		want := 1
		if kind == graph.KindStoreField {
			want = 2
		}
		if len(s.Args) != want {
			return 0, b.errorf("%s takes %d arguments", s.Op, want)
		}
		vec, err := b.value(s.Args[0], graph.Type{})
		if err != nil {
			return 0, err
		}
		vt := g.Node(vec).Type
		if !vt.IsVector() || s.Lane < 0 || s.Lane >= vt.NumLanes() {
			return 0, b.errorf("lane %d of %s", s.Lane, vt)
		}
		var id graph.NodeID
		if kind == graph.KindLoadField {
			id = g.Emit(blk, kind, vt.LaneType(), vec)
		} else {
			v, err := b.value(s.Args[1], vt.LaneType())
			if err != nil {
				return 0, err
			}
			id = g.Emit(blk, kind, graph.TVoid, vec, v)
		}
		g.Node(id).Index = s.Lane
		return id, nil

	case graph.KindNewVector:
		if !t.IsVector() {
			return 0, b.errorf("vector needs a vector type, got %q", s.Type)
		}
		return g.Emit(blk, kind, t), nil

	case graph.KindNewArray:
		if t.Prim == graph.Void || s.Size <= 0 {
			return 0, b.errorf("array needs an element type and a positive size")
		}
		id := g.Emit(blk, kind, graph.ArrayOf(t.Elem()))
		g.Node(id).Index = s.Size
		return id, nil

	case graph.KindConvert:
		if len(s.Args) != 1 || t.Prim == graph.Void {
			return 0, b.errorf("convert takes one argument and a type")
		}
		x, err := b.value(s.Args[0], graph.Type{})
		if err != nil {
			return 0, err
		}
		return g.Emit(blk, kind, t, x), nil

	case graph.KindCompare:
		c, ok := graph.ParseCond(s.Cond)
		if !ok {
			return 0, b.errorf("unknown condition %q", s.Cond)
		}
		if len(s.Args) != 2 {
			return 0, b.errorf("compare takes 2 arguments")
		}
		ops, err := b.operands(s.Args, t)
		if err != nil {
			return 0, err
		}
		return g.Compare(blk, c, ops[0], ops[1]), nil
	}

	// Arithmetic.
	want := 2
	if kind == graph.KindNeg || kind == graph.KindNot {
		want = 1
	}
	if len(s.Args) != want {
		return 0, b.errorf("%s takes %d arguments", s.Op, want)
	}
	ops, err := b.operands(s.Args, t)
	if err != nil {
		return 0, err
	}
	rt := t
	if rt.Prim == graph.Void {
		rt = g.Node(ops[0]).Type
	}
	return g.Emit(blk, kind, rt, ops...), nil
}

func (b *builder) callStmt(blk graph.BlockID, s *Stmt) error {
	t, err := optType(s.Type)
	if err != nil {
		return b.errorf("%v", err)
	}
	g := b.g
	bind, ok := b.reg.Lookup(s.Call)
	var id graph.NodeID
	switch {
	case !ok:
		args, err := b.operands(s.Args, t)
		if err != nil {
			return err
		}
		if t.Prim == graph.Void && len(args) > 0 {
			t = g.Node(args[0]).Type
		}
		id = g.Emit(blk, graph.KindCall, t, args...)
		g.Node(id).Name = s.Call

	case bind.Kind == graph.KindNewLocalArray:
		if s.Size <= 0 {
			return b.errorf("%s needs a positive size", s.Call)
		}
		id = g.Emit(blk, graph.KindNewLocalArray, graph.ArrayOf(bind.Elem))
		g.Node(id).Index = s.Size

	default:
		fn := bind.Intrinsic
		if len(s.Args) != fn.Arity() {
			return b.errorf("%s takes %d arguments", s.Call, fn.Arity())
		}
		var args []graph.NodeID
		if fn == graph.IntrinsicAtomicFetchAdd {
			args, err = b.atomicArgs(s.Args)
			if t.Prim == graph.Void && err == nil {
				t = g.Node(args[0]).Type.Elem()
			}
		} else {
			args, err = b.operands(s.Args, t)
			if t.Prim == graph.Void && len(args) > 0 {
				t = g.Node(args[0]).Type
				if fn == graph.IntrinsicDot {
					t = t.LaneType()
				}
			}
		}
		if err != nil {
			return err
		}
		if fn.Arity() == 0 {
			t = graph.TVoid
		}
		id = g.Call(blk, fn, t, args...)
	}
	if s.Let == "" {
		return nil
	}
	return b.bind(s.Let, id)
}

func (b *builder) atomicArgs(args []any) ([]graph.NodeID, error) {
	arr, err := b.value(args[0], graph.Type{})
	if err != nil {
		return nil, err
	}
	at := b.g.Node(arr).Type
	if !at.Array {
		return nil, b.errorf("atomic on non-array %s", at)
	}
	idx, err := b.value(args[1], graph.TI32)
	if err != nil {
		return nil, err
	}
	v, err := b.value(args[2], at.Elem())
	if err != nil {
		return nil, err
	}
	return []graph.NodeID{arr, idx, v}, nil
}

func (b *builder) ifStmt(blk graph.BlockID, path string, s *If) error {
	g := b.g
	cond, ok := b.lookup(s.Cond)
	if !ok {
		return b.errorf("undefined condition %q", s.Cond)
	}
	if g.Node(cond).Type != graph.TBool {
		return b.errorf("condition %q is %s, not bool", s.Cond, g.Node(cond).Type)
	}
	ifn := g.NewIf(blk, cond)

	// Each arm sees its own bindings; phis read them before they go out of
	// scope.
	arm := func(armBlk graph.BlockID, name string, stmts []Stmt, pick func(Phi) any) ([]graph.NodeID, error) {
		b.push()
		defer b.pop()
		if err := b.block(armBlk, path+"."+name, stmts); err != nil {
			return nil, err
		}
		out := make([]graph.NodeID, len(s.Phis))
		for i, p := range s.Phis {
			t, err := optType(p.Type)
			if err != nil {
				return nil, b.errorf("%v", err)
			}
			v, err := b.value(pick(p), t)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	thens, err := arm(g.Then(ifn), "then", s.Then, func(p Phi) any { return p.Then })
	if err != nil {
		return err
	}
	elses, err := arm(g.Else(ifn), "else", s.Else, func(p Phi) any { return p.Else })
	if err != nil {
		return err
	}
	for i, p := range s.Phis {
		t := g.Node(thens[i]).Type
		if t != g.Node(elses[i]).Type {
			return b.errorf("phi %q merges %s and %s", p.Let, t, g.Node(elses[i]).Type)
		}
		if err := b.bind(p.Let, g.NewPhi(ifn, t, thens[i], elses[i])); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) loopStmt(blk graph.BlockID, path string, s *Loop) error {
	g := b.g
	t := graph.TI32
	if s.Type != "" {
		var err error
		if t, err = graph.ParseType(s.Type); err != nil {
			return b.errorf("%v", err)
		}
	}
	from, step := s.From, s.Step
	if from == nil {
		from = 0
	}
	if step == nil {
		step = 1
	}
	cond := graph.CondLT
	if s.Cond != "" {
		c, ok := graph.ParseCond(s.Cond)
		if !ok {
			return b.errorf("unknown condition %q", s.Cond)
		}
		cond = c
	}
	init, err := b.value(from, t)
	if err != nil {
		return err
	}
	bound, err := b.value(s.To, t)
	if err != nil {
		return err
	}
	inc, err := b.value(step, t)
	if err != nil {
		return err
	}
	loop, iv := g.CountedLoop(blk, t, init, bound, inc, cond)
	if s.Parallel {
		g.Node(iv).Flags |= graph.FlagParallel
	}

	carried := make([]graph.NodeID, len(s.Carry))
	b.push()
	for i, c := range s.Carry {
		ct, err := optType(c.Type)
		if err != nil {
			b.pop()
			return b.errorf("%v", err)
		}
		v, err := b.value(c.Init, ct)
		if err != nil {
			b.pop()
			return err
		}
		carried[i] = g.NewPhi(loop, g.Node(v).Type, v)
		if err := b.bind(c.Let, carried[i]); err != nil {
			b.pop()
			return err
		}
	}
	b.push()
	err = b.bind(s.Var, iv)
	if err == nil {
		err = b.block(g.Body(loop), path+".body", s.Body)
	}
	if err == nil {
		for i, c := range s.Carry {
			var next graph.NodeID
			if next, err = b.value(c.Next, g.Node(carried[i]).Type); err != nil {
				break
			}
			if g.Node(next).Type != g.Node(carried[i]).Type {
				err = b.errorf("carry %q changes type from %s to %s", c.Let, g.Node(carried[i]).Type, g.Node(next).Type)
				break
			}
			g.AddInput(carried[i], next)
		}
	}
	b.pop()
	b.pop()
	if err != nil {
		return err
	}
	for i, c := range s.Carry {
		if err := b.bind(c.Let, carried[i]); err != nil {
			return err
		}
	}
	return nil
}
