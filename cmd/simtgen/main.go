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

// Command simtgen plans matrix-core layouts for dot operations and emits
// the SIMT primitives that lowering them needs.
//
// Usage:
//
//	simtgen plan -f program.json --gen 3
//	simtgen plan --m 128 --n 128 --k 64 --elem f16 --gen 2 --warps 8
//	simtgen sweep --elems f16,bf16,i8 --gens 1,2,3 --sizes 16,32,64,128
//	simtgen emit shuffle --backend amdgcn --type f16 --delta 4
//	simtgen backends
//
// SIMTGEN_MATRIX_CORE_VERSION and SIMTGEN_MATRIX_INSTR_SIZE provide defaults
// for --gen and --instr-size.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbose bool
	logger  *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "simtgen",
		Short:         "Plan matrix-core layouts and emit SIMT lowering primitives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if g.verbose {
				level = slog.LevelDebug
			}
			g.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log planning decisions at debug level")
	root.AddCommand(
		newPlanCmd(g),
		newSweepCmd(g),
		newEmitCmd(g),
		newBackendsCmd(),
	)
	return root
}
