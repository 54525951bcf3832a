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
	"errors"
	"fmt"
)

// Verify checks that every register operand is defined by an earlier
// instruction, that parameter and array operands exist and that the
// structured control instructions nest.
func Verify(k *Kernel) error {
	var errs []error
	defined := make([]bool, len(k.Regs))
	var stack []Op

	checkOperand := func(pc int, o Operand) {
		switch o.Kind {
		case OperandReg:
			if o.Reg < 0 || int(o.Reg) >= len(k.Regs) {
				errs = append(errs, fmt.Errorf("inst %d: unknown register r%d", pc, o.Reg))
			} else if !defined[o.Reg] {
				errs = append(errs, fmt.Errorf("inst %d: r%d used before definition", pc, o.Reg))
			}
		case OperandParam:
			if o.Index < 0 || o.Index >= len(k.Params) {
				errs = append(errs, fmt.Errorf("inst %d: unknown parameter %d", pc, o.Index))
			}
		case OperandArray:
			if o.Index < 0 || o.Index >= len(k.Arrays) {
				errs = append(errs, fmt.Errorf("inst %d: unknown array %d", pc, o.Index))
			}
		}
	}

	for pc, inst := range k.Body {
		for _, a := range inst.Args {
			checkOperand(pc, a)
		}
		switch inst.Op {
		case OpLoad, OpStore, OpAtomic:
			checkOperand(pc, inst.Addr.Base)
			checkOperand(pc, inst.Addr.Index)
		}

		switch inst.Op {
		case OpIfBegin, OpLoopBegin:
			stack = append(stack, inst.Op)
		case OpElse:
			if len(stack) == 0 || stack[len(stack)-1] != OpIfBegin {
				errs = append(errs, fmt.Errorf("inst %d: else outside a conditional", pc))
			} else {
				stack[len(stack)-1] = OpElse
			}
		case OpIfEnd:
			if len(stack) == 0 || (stack[len(stack)-1] != OpIfBegin && stack[len(stack)-1] != OpElse) {
				errs = append(errs, fmt.Errorf("inst %d: unbalanced endif", pc))
			} else {
				stack = stack[:len(stack)-1]
			}
		case OpLoopEnd:
			if len(stack) == 0 || stack[len(stack)-1] != OpLoopBegin {
				errs = append(errs, fmt.Errorf("inst %d: unbalanced endloop", pc))
			} else {
				stack = stack[:len(stack)-1]
			}
		case OpBreakUnless:
			if !inLoop(stack) {
				errs = append(errs, fmt.Errorf("inst %d: break outside a loop", pc))
			}
		}

		if inst.Dst != NoReg {
			if inst.Dst < 0 || int(inst.Dst) >= len(k.Regs) {
				errs = append(errs, fmt.Errorf("inst %d: unknown destination r%d", pc, inst.Dst))
				continue
			}
			defined[inst.Dst] = true
		}
	}
	if len(stack) > 0 {
		errs = append(errs, fmt.Errorf("%d control regions left open", len(stack)))
	}
	return errors.Join(errs...)
}

func inLoop(stack []Op) bool {
	for _, op := range stack {
		if op == OpLoopBegin {
			return true
		}
	}
	return false
}
