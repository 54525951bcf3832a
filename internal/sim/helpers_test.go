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

package sim

import (
	"github.com/ajroetker/go-kernelc/graph"
	"github.com/ajroetker/go-kernelc/lir"
)

func newTestKernel() *lir.Kernel {
	b := lir.NewBuilder("shape")
	t := lir.IntImm(graph.TBool, 1)
	b.LoopBegin()
	b.BreakUnless(t)
	b.IfBegin(t)
	b.Else()
	b.IfEnd()
	b.LoopEnd()
	b.Return()
	return b.Kernel()
}
