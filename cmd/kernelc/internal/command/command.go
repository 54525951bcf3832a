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
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI is the state shared by every subcommand.
type CLI struct {
	Out io.Writer
	Err io.Writer
}

func NewCLI(out, errOut io.Writer) *CLI {
	return &CLI{Out: out, Err: errOut}
}

func (c *CLI) Printf(format string, a ...any) {
	fmt.Fprintf(c.Out, format, a...)
}

func (c *CLI) Println(a ...any) {
	fmt.Fprintln(c.Out, a...)
}

var heading = color.RGB(50, 108, 229)

// Highlight applies the heading color to the given format and arguments.
func Highlight(format string, a ...any) string {
	return heading.Sprintf(format, a...)
}

// ExactArgs returns an error if there is not the exact number of args.
func ExactArgs(number int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == number {
			return nil
		}
		return fmt.Errorf("expected %d arguments, got %d", number, len(args))
	}
}

// MaxArgs returns an error if there are more than number args.
func MaxArgs(number int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) <= number {
			return nil
		}
		return fmt.Errorf("expected at most %d arguments, got %d", number, len(args))
	}
}
