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
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRootCommand returns the kernelc command tree writing to cli.
func NewRootCommand(cli *CLI) *cobra.Command {
	var verbosity int

	cmd := &cobra.Command{
		Use:   "kernelc",
		Short: "Compile kernel graphs to OpenCL C, PTX and SPIR-V",
		Long: Highlight("Usage: kernelc [global options] <subcommand> [args]") + "\n\n" +
			"kernelc reads kernel graph descriptions, recognizes parallel loops and\n" +
			"reductions, and emits device kernels with host launch metadata.\n",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(verbosity)
			if err != nil {
				return err
			}
			cmd.SetContext(logr.NewContext(cmd.Context(), log))
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetOut(cli.Out)
	cmd.SetErr(cli.Err)
	cmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "Log verbosity; 1 logs recognition mismatches, 2 pass summaries")

	cobra.AddTemplateFunc("StyleHeading", heading.SprintFunc())
	cmd.SetUsageTemplate(strings.NewReplacer(
		`Usage:`, `{{StyleHeading "Usage:"}}`,
		`Available Commands:`, `{{StyleHeading "Available Commands:"}}`,
		`Flags:`, `{{StyleHeading "Options:"}}`,
		`Global Flags:`, `{{StyleHeading "Global Options:"}}`,
	).Replace(cmd.UsageTemplate()))

	AddCommands(cmd, cli)
	return cmd
}

// AddCommands registers all subcommands to the root command.
func AddCommands(root *cobra.Command, cli *CLI) {
	root.AddCommand(
		NewCompileCommand(cli),
		NewDumpCommand(cli),
		NewTargetsCommand(cli),
		NewHostCommand(cli),
	)
}

func newLogger(verbosity int) (logr.Logger, error) {
	if verbosity < 0 {
		return logr.Logger{}, fmt.Errorf("verbosity %d is negative", verbosity)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	cfg.DisableStacktrace = true
	if verbosity == 0 {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, fmt.Errorf("build logger: %w", err)
	}
	return zapr.NewLogger(zl), nil
}

func Execute() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		color.NoColor = true
	}

	cli := NewCLI(os.Stdout, os.Stderr)
	root := NewRootCommand(cli)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(cli.Err, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
