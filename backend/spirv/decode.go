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

package spirv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned by Decode for input that is not a SPIR-V module.
var ErrMalformed = errors.New("malformed SPIR-V module")

// Instruction is one decoded instruction.
type Instruction struct {
	Op       OpCode
	Operands []uint32
}

// String decodes a literal string operand starting at operand i.
func (in Instruction) String(i int) string {
	var sb strings.Builder
	for _, w := range in.Operands[i:] {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], w)
		for _, c := range b {
			if c == 0 {
				return sb.String()
			}
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// Module is a decoded SPIR-V binary.
type Module struct {
	Version      uint32
	Generator    uint32
	Bound        uint32
	Instructions []Instruction
}

// Decode parses a little-endian SPIR-V binary.
func Decode(b []byte) (*Module, error) {
	if len(b)%4 != 0 || len(b) < 20 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	if words[0] != Magic {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrMalformed, words[0])
	}
	m := &Module{Version: words[1], Generator: words[2], Bound: words[3]}
	for i := 5; i < len(words); {
		n := int(words[i] >> 16)
		if n == 0 || i+n > len(words) {
			return nil, fmt.Errorf("%w: bad word count %d at word %d", ErrMalformed, n, i)
		}
		m.Instructions = append(m.Instructions, Instruction{
			Op:       OpCode(words[i] & 0xffff),
			Operands: words[i+1 : i+n],
		})
		i += n
	}
	return m, nil
}

// Find returns the instructions with opcode op.
func (m *Module) Find(op OpCode) []Instruction {
	var out []Instruction
	for _, in := range m.Instructions {
		if in.Op == op {
			out = append(out, in)
		}
	}
	return out
}

// Count returns the number of instructions with opcode op.
func (m *Module) Count(op OpCode) int { return len(m.Find(op)) }

// Capabilities returns the declared capabilities in order.
func (m *Module) Capabilities() []Capability {
	var out []Capability
	for _, in := range m.Find(OpCapability) {
		out = append(out, Capability(in.Operands[0]))
	}
	return out
}

// Dump renders the module one instruction per line, for debugging.
func (m *Module) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; SPIR-V %d.%d bound %d\n", m.Version>>16, m.Version>>8&0xff, m.Bound)
	for _, in := range m.Instructions {
		sb.WriteString(in.Op.String())
		for _, w := range in.Operands {
			fmt.Fprintf(&sb, " %d", w)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
