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

package lir

import (
	"fmt"
	"strings"
)

// String renders k as a readable listing, one instruction per line.
func (k *Kernel) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "kernel %s", k.Name)
	if k.Dims > 0 {
		fmt.Fprintf(&sb, " dims=%d", k.Dims)
	}
	if k.LocalSize > 0 {
		fmt.Fprintf(&sb, " local=%d", k.LocalSize)
	}
	sb.WriteByte('\n')
	for i, p := range k.Params {
		fmt.Fprintf(&sb, "  param%d %s %s %s %s\n", i, p.Name, p.Space, p.Type, p.Access)
	}
	for i, a := range k.Arrays {
		fmt.Fprintf(&sb, "  array%d %s %s %s[%d]\n", i, a.Name, a.Space, a.Elem, a.Len)
	}
	depth := 1
	for _, inst := range k.Body {
		switch inst.Op {
		case OpElse, OpIfEnd, OpLoopEnd:
			depth--
		}
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(inst.String())
		sb.WriteByte('\n')
		switch inst.Op {
		case OpIfBegin, OpElse, OpLoopBegin:
			depth++
		}
	}
	return sb.String()
}

func (inst Inst) String() string {
	var sb strings.Builder
	if inst.Dst != NoReg {
		fmt.Fprintf(&sb, "r%d:%s = ", inst.Dst, inst.Type)
	}
	sb.WriteString(inst.Op.String())
	switch inst.Op {
	case OpBinary, OpUnary:
		fmt.Fprintf(&sb, ".%s", strings.ToLower(inst.Kind.String()))
	case OpCompare:
		fmt.Fprintf(&sb, ".%s", inst.Cond)
	case OpIntrinsic:
		fmt.Fprintf(&sb, ".%s", inst.Intrinsic)
	case OpBuiltin:
		fmt.Fprintf(&sb, ".%s.%d", inst.Builtin, inst.Dim)
	case OpAtomic:
		fmt.Fprintf(&sb, ".%s", inst.Atomic)
	case OpInsert, OpExtract:
		fmt.Fprintf(&sb, ".%d", inst.Lane)
	case OpBarrier:
		fmt.Fprintf(&sb, ".%s", inst.Addr.Space)
	}
	switch inst.Op {
	case OpLoad, OpStore, OpAtomic:
		fmt.Fprintf(&sb, " %s", inst.Addr)
	}
	for _, a := range inst.Args {
		fmt.Fprintf(&sb, " %s", a)
	}
	return sb.String()
}
