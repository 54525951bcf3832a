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

package opencl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
)

const helperPrefix = "kc_atomic_"

func helperName(op graph.ReduceOp, p graph.Prim) string {
	return fmt.Sprintf("%s%s_%s", helperPrefix, op, p)
}

var opSymbols = map[graph.ReduceOp]string{
	graph.ReduceAdd: "+",
	graph.ReduceSub: "-",
	graph.ReduceMul: "*",
}

// helper returns the source of a compare-and-swap loop applying op to a
// global element of kind p and returning the previous value.
func (e *emitter) helper(op graph.ReduceOp, p graph.Prim) string {
	ty := e.t.TypeMap[p]
	bitsType, cas := "uint", "atomic_cmpxchg"
	if p.Bits() == 64 {
		bitsType, cas = "ulong", "atom_cmpxchg"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "inline %s %s(volatile __global %s *p, %s v)\n{\n", ty, helperName(op, p), ty, ty)
	fmt.Fprintf(&sb, "\tunion { %s bits; %s val; } prev, next;\n", bitsType, ty)
	sb.WriteString("\tdo {\n")
	sb.WriteString("\t\tprev.val = *p;\n")
	fmt.Fprintf(&sb, "\t\tnext.val = prev.val %s v;\n", opSymbols[op])
	fmt.Fprintf(&sb, "\t} while (%s((volatile __global %s *)p, prev.bits, next.bits) != prev.bits);\n", cas, bitsType)
	sb.WriteString("\treturn prev.val;\n}\n")
	return sb.String()
}

func (e *emitter) atomic(inst *lir.Inst) (string, error) {
	p := inst.Type.Prim
	info, ok := e.t.Atomic(inst.Atomic, p)
	if !ok {
		return "", fmt.Errorf("no atomic %s for %s", inst.Atomic, p)
	}
	if strings.HasPrefix(info.Name, helperPrefix) {
		if inst.Addr.Space != lir.SpaceGlobal {
			return "", fmt.Errorf("atomic %s on %s memory", inst.Atomic, inst.Addr.Space)
		}
		if h := e.helper(inst.Atomic, p); !slices.Contains(e.helpers, h) {
			e.helpers = append(e.helpers, h)
		}
	}
	return fmt.Sprintf("%s(&%s, %s)", info.Name, e.address(inst.Addr), e.operand(inst.Args[0])), nil
}
