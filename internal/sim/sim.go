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

// Package sim executes lowered kernels on the host. Every work item runs in
// its own goroutine; the items of a work-group share local memory and
// synchronize on barriers, and atomics are serialized. It is a reference for
// what a device would compute, used to check lowering end to end.
package sim

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
)

var (
	ErrDivideByZero = errors.New("integer division by zero")
	ErrOutOfBounds  = errors.New("index out of bounds")
	ErrStepLimit    = errors.New("step limit exceeded")
)

// DefaultMaxSteps bounds the instructions one work item may execute.
const DefaultMaxSteps = 1 << 22

// Launch is the geometry of one kernel execution.
type Launch struct {
	// Global is the number of work items per dimension. It is rounded up to
	// a multiple of Local; missing dimensions are 1.
	Global []int
	// Local is the work-group size per dimension. The kernel's required
	// local size, when it has one, overrides dimension 0.
	Local []int
	// MaxSteps is DefaultMaxSteps when zero.
	MaxSteps int
}

type geometry struct {
	local, groups [3]int
}

func (l Launch) geometry(k *lir.Kernel) (geometry, error) {
	var g geometry
	for d := range 3 {
		global, local := 1, 1
		if d < len(l.Global) {
			global = l.Global[d]
		}
		if d < len(l.Local) {
			local = l.Local[d]
		}
		if d == 0 && k.LocalSize > 0 {
			if d < len(l.Local) && local != k.LocalSize {
				return g, fmt.Errorf("kernel %s requires a work-group size of %d, launch asks for %d", k.Name, k.LocalSize, local)
			}
			local = k.LocalSize
		}
		if global < 0 || local <= 0 {
			return g, fmt.Errorf("bad launch size in dimension %d: global %d, local %d", d, global, local)
		}
		g.local[d] = local
		g.groups[d] = (global + local - 1) / local
	}
	return g, nil
}

func (g geometry) groupSize() int { return g.local[0] * g.local[1] * g.local[2] }

// GroupParallelism returns how many work groups Run executes at once.
func GroupParallelism() int { return runtime.GOMAXPROCS(0) }

// Run executes k over the launch geometry. args holds one *Buffer per array
// parameter and a Go scalar per scalar parameter. Buffers are updated in
// place.
func Run(ctx context.Context, k *lir.Kernel, launch Launch, args ...any) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("kernel", k.Name)
	if err := lir.Verify(k); err != nil {
		return fmt.Errorf("sim %s: %w", k.Name, err)
	}
	geo, err := launch.geometry(k)
	if err != nil {
		return err
	}
	r := &run{k: k, geo: geo, maxSteps: launch.MaxSteps, jumps: jumps(k)}
	if r.maxSteps == 0 {
		r.maxSteps = DefaultMaxSteps
	}
	if err := r.bind(args); err != nil {
		return err
	}
	log.V(1).Info("launch", "groups", geo.groups, "local", geo.local)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(GroupParallelism())
	for z := range geo.groups[2] {
		for y := range geo.groups[1] {
			for x := range geo.groups[0] {
				eg.Go(func() error { return r.group(ctx, [3]int{x, y, z}) })
			}
		}
	}
	return eg.Wait()
}

type run struct {
	k        *lir.Kernel
	geo      geometry
	maxSteps int
	jumps    []int

	// params holds a buffer or a scalar per parameter.
	params  []*Buffer
	scalars []graph.Lit

	// mu orders every global memory access.
	mu sync.Mutex
}

func (r *run) bind(args []any) error {
	if len(args) != len(r.k.Params) {
		return fmt.Errorf("kernel %s takes %d arguments, got %d", r.k.Name, len(r.k.Params), len(args))
	}
	r.params = make([]*Buffer, len(args))
	r.scalars = make([]graph.Lit, len(args))
	for i, p := range r.k.Params {
		if p.Type.Array {
			buf, ok := args[i].(*Buffer)
			if !ok || buf == nil {
				return fmt.Errorf("argument %d (%s): want a buffer of %s, got %T", i, p.Name, p.Type.Prim, args[i])
			}
			if buf.prim != p.Type.Prim {
				return fmt.Errorf("argument %d (%s): buffer of %s bound to %s", i, p.Name, buf.prim, p.Type)
			}
			r.params[i] = buf
			continue
		}
		l, err := fromGo(p.Type.Prim, args[i])
		if err != nil {
			return fmt.Errorf("argument %d (%s): %w", i, p.Name, err)
		}
		r.scalars[i] = l
	}
	return nil
}

// jumps pairs the structured control instructions: IfBegin to its Else or
// IfEnd, Else to its IfEnd, LoopBegin and LoopEnd to each other and
// BreakUnless to the LoopEnd of its loop.
func jumps(k *lir.Kernel) []int {
	out := make([]int, len(k.Body))
	var stack, breaks []int
	for pc, inst := range k.Body {
		switch inst.Op {
		case lir.OpIfBegin, lir.OpLoopBegin:
			stack = append(stack, pc)
		case lir.OpElse:
			open := stack[len(stack)-1]
			out[open] = pc
			stack[len(stack)-1] = pc
		case lir.OpIfEnd:
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			out[open] = pc
		case lir.OpBreakUnless:
			breaks = append(breaks, pc)
		case lir.OpLoopEnd:
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			out[open], out[pc] = pc, open
			for len(breaks) > 0 && breaks[len(breaks)-1] > open {
				out[breaks[len(breaks)-1]] = pc
				breaks = breaks[:len(breaks)-1]
			}
		}
	}
	return out
}

type group struct {
	id    [3]int
	local [][]graph.Lit
	mu    sync.Mutex
	bar   *barrier
}

func (r *run) group(ctx context.Context, id [3]int) error {
	g := &group{id: id, bar: newBarrier(r.geo.groupSize())}
	g.local = make([][]graph.Lit, len(r.k.Arrays))
	for i, a := range r.k.Arrays {
		if a.Space == lir.SpaceLocal {
			g.local[i] = make([]graph.Lit, a.Len*a.Elem.NumLanes())
		}
	}
	stop := context.AfterFunc(ctx, func() { g.bar.abort(ctx.Err()) })
	defer stop()

	var eg errgroup.Group
	for z := range r.geo.local[2] {
		for y := range r.geo.local[1] {
			for x := range r.geo.local[0] {
				w := r.item(g, [3]int{x, y, z})
				eg.Go(func() error {
					err := w.exec(ctx)
					if err != nil {
						err = fmt.Errorf("group %v item %v: %w", g.id, w.tid, err)
						g.bar.abort(err)
						return err
					}
					g.bar.leave()
					return nil
				})
			}
		}
	}
	return eg.Wait()
}

type item struct {
	r       *run
	g       *group
	tid     [3]int
	regs    []value
	private [][]graph.Lit
}

func (r *run) item(g *group, tid [3]int) *item {
	w := &item{r: r, g: g, tid: tid, regs: make([]value, len(r.k.Regs))}
	w.private = make([][]graph.Lit, len(r.k.Arrays))
	for i, a := range r.k.Arrays {
		if a.Space != lir.SpaceLocal {
			w.private[i] = make([]graph.Lit, a.Len*a.Elem.NumLanes())
		}
	}
	return w
}

func (w *item) builtin(which lir.Builtin, dim int) int64 {
	geo := w.r.geo
	switch which {
	case lir.ThreadID:
		return int64(w.tid[dim])
	case lir.BlockID:
		return int64(w.g.id[dim])
	case lir.BlockDim:
		return int64(geo.local[dim])
	case lir.GridDim:
		return int64(geo.groups[dim])
	case lir.GlobalID:
		return int64(w.g.id[dim]*geo.local[dim] + w.tid[dim])
	}
	return int64(geo.groups[dim] * geo.local[dim])
}

func (w *item) operand(o lir.Operand) (value, error) {
	switch o.Kind {
	case lir.OperandReg:
		v := w.regs[o.Reg]
		if v == nil {
			return nil, fmt.Errorf("r%d read before it is written", o.Reg)
		}
		return v, nil
	case lir.OperandImm:
		return value{norm(o.Type.Prim, o.Imm)}, nil
	case lir.OperandParam:
		if w.r.params[o.Index] != nil {
			return nil, fmt.Errorf("buffer parameter %d used as a value", o.Index)
		}
		return value{w.r.scalars[o.Index]}, nil
	}
	return nil, fmt.Errorf("operand %s has no value", o)
}

func (w *item) operands(os []lir.Operand) ([]value, error) {
	out := make([]value, len(os))
	for i, o := range os {
		v, err := w.operand(o)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// memory returns the storage addressed by a, the lock guarding it (nil for
// private memory) and the scalar offset of the element.
func (w *item) memory(a lir.Address) ([]graph.Lit, sync.Locker, int, error) {
	idx, err := w.operand(a.Index)
	if err != nil {
		return nil, nil, 0, err
	}
	var (
		mem  []graph.Lit
		lock sync.Locker
	)
	switch a.Base.Kind {
	case lir.OperandParam:
		buf := w.r.params[a.Base.Index]
		if buf == nil {
			return nil, nil, 0, fmt.Errorf("scalar parameter %d used as memory", a.Base.Index)
		}
		mem, lock = buf.data, &w.r.mu
	case lir.OperandArray:
		if w.r.k.Arrays[a.Base.Index].Space == lir.SpaceLocal {
			mem, lock = w.g.local[a.Base.Index], &w.g.mu
		} else {
			mem = w.private[a.Base.Index]
		}
	default:
		return nil, nil, 0, fmt.Errorf("address base %s is not memory", a.Base)
	}
	lanes := a.Elem.NumLanes()
	off := int(idx[0].I) * lanes
	if idx[0].I < 0 || off+lanes > len(mem) {
		return nil, nil, 0, fmt.Errorf("%w: %s[%d] of %d elements", ErrOutOfBounds, a.Base, idx[0].I, len(mem)/lanes)
	}
	return mem, lock, off, nil
}

func (w *item) set(inst *lir.Inst, v value) {
	p := inst.Type.Prim
	if inst.Dst == lir.NoReg {
		return
	}
	n := inst.Type.NumLanes()
	out := make(value, n)
	for i := range n {
		out[i] = norm(p, lane(v, i))
	}
	w.regs[inst.Dst] = out
}

func (w *item) exec(ctx context.Context) error {
	body := w.r.k.Body
	steps := 0
	for pc := 0; pc < len(body); {
		if steps++; steps > w.r.maxSteps {
			return ErrStepLimit
		}
		inst := &body[pc]
		next, err := w.step(ctx, pc, inst)
		if err != nil {
			return fmt.Errorf("inst %d (%s): %w", pc, inst.Op, err)
		}
		if next < 0 {
			return nil
		}
		pc = next
	}
	return nil
}

// step executes one instruction and returns the next pc, or -1 when the
// work item is done.
func (w *item) step(ctx context.Context, pc int, inst *lir.Inst) (int, error) {
	jump := w.r.jumps[pc]
	switch inst.Op {
	case lir.OpIfBegin, lir.OpBreakUnless:
		c, err := w.operand(inst.Args[0])
		if err != nil {
			return 0, err
		}
		if c[0].I != 0 {
			return pc + 1, nil
		}
		return jump + 1, nil
	case lir.OpElse:
		return jump + 1, nil
	case lir.OpIfEnd, lir.OpLoopBegin:
		return pc + 1, nil
	case lir.OpLoopEnd:
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return jump + 1, nil
	case lir.OpReturn:
		return -1, nil
	case lir.OpBarrier:
		return pc + 1, w.g.bar.wait()
	}

	args, err := w.operands(inst.Args)
	if err != nil {
		return 0, err
	}
	t := inst.Type
	p := t.Prim
	lanes := t.NumLanes()
	out := make(value, lanes)

	switch inst.Op {
	case lir.OpAssign, lir.OpSplat:
		for i := range out {
			out[i] = lane(args[0], i)
		}
	case lir.OpBinary:
		for i := range out {
			if out[i], err = binary(inst.Kind, p, lane(args[0], i), lane(args[1], i)); err != nil {
				return 0, err
			}
		}
	case lir.OpUnary:
		for i := range out {
			if out[i], err = unary(inst.Kind, p, lane(args[0], i)); err != nil {
				return 0, err
			}
		}
	case lir.OpCompare:
		op := inst.Args[0].Type.Prim
		out[0] = graph.IntLit(b2i(compare(inst.Cond, op, args[0][0], args[1][0])))
	case lir.OpConvert:
		from := inst.Args[0].Type.Prim
		for i := range out {
			out[i] = convert(from, p, lane(args[0], i))
		}
	case lir.OpInsert:
		copy(out, args[0])
		out[inst.Lane] = args[1][0]
	case lir.OpExtract:
		out[0] = args[0][inst.Lane]
	case lir.OpBuiltin:
		out[0] = graph.IntLit(w.builtin(inst.Builtin, inst.Dim))
	case lir.OpIntrinsic:
		if err := w.intrinsic(inst, args, out); err != nil {
			return 0, err
		}
	case lir.OpLoad:
		mem, lock, off, err := w.memory(inst.Addr)
		if err != nil {
			return 0, err
		}
		withLock(lock, func() { copy(out, mem[off:off+lanes]) })
	case lir.OpStore:
		mem, lock, off, err := w.memory(inst.Addr)
		if err != nil {
			return 0, err
		}
		withLock(lock, func() {
			for i := range lanes {
				mem[off+i] = norm(p, lane(args[0], i))
			}
		})
		return pc + 1, nil
	case lir.OpAtomic:
		mem, lock, off, err := w.memory(inst.Addr)
		if err != nil {
			return 0, err
		}
		withLock(lock, func() {
			old := mem[off]
			out[0] = old
			var nv graph.Lit
			switch inst.Atomic {
			case graph.ReduceSub:
				nv, err = binary(graph.KindSub, p, old, args[0][0])
			case graph.ReduceMul:
				nv, err = binary(graph.KindMul, p, old, args[0][0])
			default:
				nv, err = binary(graph.KindAdd, p, old, args[0][0])
			}
			if err == nil {
				mem[off] = nv
			}
		})
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unknown op %s", inst.Op)
	}
	w.set(inst, out)
	return pc + 1, nil
}

func (w *item) intrinsic(inst *lir.Inst, args []value, out value) error {
	p := inst.Type.Prim
	if inst.Intrinsic == graph.IntrinsicDot {
		x, y := args[0], args[1]
		sum := graph.Zero()
		for i := range x {
			prod, err := binary(graph.KindMul, p, x[i], lane(y, i))
			if err != nil {
				return err
			}
			if sum, err = binary(graph.KindAdd, p, sum, prod); err != nil {
				return err
			}
		}
		out[0] = sum
		return nil
	}
	if len(args) > 0 {
		p = inst.Args[0].Type.Prim
	}
	for i := range out {
		lits := make([]graph.Lit, len(args))
		for j, a := range args {
			lits[j] = lane(a, i)
		}
		r, err := intrinsic(inst.Intrinsic, p, lits)
		if err != nil {
			return err
		}
		out[i] = r
	}
	return nil
}

func withLock(l sync.Locker, fn func()) {
	if l != nil {
		l.Lock()
		defer l.Unlock()
	}
	fn()
}

// barrier is a reusable work-group barrier. Work items that finish leave it,
// so the remaining items are not blocked by items that took an early exit.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     uint64
	err     error
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) wait() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.release()
		return nil
	}
	for gen == b.gen && b.err == nil {
		b.cond.Wait()
	}
	if gen == b.gen {
		return b.err
	}
	return nil
}

func (b *barrier) release() {
	b.waiting = 0
	b.gen++
	b.cond.Broadcast()
}

func (b *barrier) leave() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parties--
	if b.waiting > 0 && b.waiting == b.parties {
		b.release()
	}
}

func (b *barrier) abort(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil && err != nil {
		b.err = err
		b.cond.Broadcast()
	}
}
