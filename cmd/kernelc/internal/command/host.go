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
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sys/cpu"

	"github.com/ajroetker/go-kernelc/internal/sim"
)

// Feature is one CPU capability reported by golang.org/x/sys/cpu.
type Feature struct {
	Name string
	Has  bool
	Note string
}

func NewHostCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Print the simulator's host execution profile",
		Long: Highlight("kernelc host") + "\n\n" +
			"Print how the work-group simulator executes on this machine: the\n" +
			"number of work groups it runs concurrently (bounded by GOMAXPROCS)\n" +
			"and the CPU features that determine host float and atomic behavior.\n",
		Args: ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			RunHost(cli)
			return nil
		},
	}
}

func RunHost(cli *CLI) {
	cli.Printf("GOOS: %s\n", runtime.GOOS)
	cli.Printf("GOARCH: %s\n", runtime.GOARCH)
	cli.Printf("NumCPU: %d\n", runtime.NumCPU())
	cli.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
	cli.Printf("simulator work groups in parallel: %d\n", sim.GroupParallelism())

	features := HostFeatures(runtime.GOARCH)
	if len(features) == 0 {
		return
	}
	cli.Println()
	cli.Println(Highlight("=== golang.org/x/sys/cpu (%s) ===", runtime.GOARCH))
	for _, f := range features {
		mark := color.RedString("no ")
		if f.Has {
			mark = color.GreenString("yes")
		}
		if f.Note != "" {
			cli.Printf("  %-12s %s  %s\n", f.Name, mark, f.Note)
		} else {
			cli.Printf("  %-12s %s\n", f.Name, mark)
		}
	}
}

// HostFeatures returns the features worth reporting for goarch. It is
// empty for architectures without a feature table.
func HostFeatures(goarch string) []Feature {
	switch goarch {
	case "arm64":
		return []Feature{
			{"ASIMD", cpu.ARM64.HasASIMD, "NEON baseline"},
			{"FP", cpu.ARM64.HasFP, "floating point"},
			{"FPHP", cpu.ARM64.HasFPHP, "FP16 scalar"},
			{"ASIMDHP", cpu.ARM64.HasASIMDHP, "FP16 NEON"},
			{"ASIMDFHM", cpu.ARM64.HasASIMDFHM, "FP16 FMA"},
			{"SVE", cpu.ARM64.HasSVE, ""},
			{"SVE2", cpu.ARM64.HasSVE2, ""},
			{"ATOMICS", cpu.ARM64.HasATOMICS, "large system extensions"},
			{"CRC32", cpu.ARM64.HasCRC32, ""},
		}
	case "amd64":
		return []Feature{
			{"SSE2", cpu.X86.HasSSE2, ""},
			{"SSE41", cpu.X86.HasSSE41, ""},
			{"SSE42", cpu.X86.HasSSE42, ""},
			{"AVX", cpu.X86.HasAVX, ""},
			{"AVX2", cpu.X86.HasAVX2, ""},
			{"FMA", cpu.X86.HasFMA, ""},
			{"AVX512F", cpu.X86.HasAVX512F, ""},
			{"AVX512BW", cpu.X86.HasAVX512BW, ""},
			{"AVX512VL", cpu.X86.HasAVX512VL, ""},
		}
	}
	return nil
}
