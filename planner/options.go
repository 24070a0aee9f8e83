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

// Package planner assigns matrix-core layouts to dot operations: it picks
// the native instruction shape for the element type and hardware
// generation, distributes warps over the output tile and rewrites each
// dot so that its operands and result use the matrix-core layouts.
package planner

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/ajroetker/simtgen/ir"
)

const (
	// EnvMatrixCoreVersion overrides Options.MatrixCoreVersion.
	EnvMatrixCoreVersion = "SIMTGEN_MATRIX_CORE_VERSION"

	// EnvMatrixInstrSize overrides Options.MatrixInstrSize.
	EnvMatrixInstrSize = "SIMTGEN_MATRIX_INSTR_SIZE"
)

// Options configures AccelerateMatmul.
type Options struct {
	// MatrixCoreVersion is the matrix-core hardware generation. Only
	// generations 1 to 3 have matrix-core instructions; any other value
	// turns the pass into a no-op.
	MatrixCoreVersion int

	// MatrixInstrSize forces the non-k dimension of the instruction (16 or
	// 32). Zero lets the planner choose.
	MatrixInstrSize int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Validate checks the option values.
func (o Options) Validate() error {
	switch o.MatrixInstrSize {
	case 0, 16, 32:
	default:
		return ir.Fatalf("options", ir.InvalidConfig, "matrix instruction size must be 0, 16 or 32, got %d", o.MatrixInstrSize)
	}
	if o.MatrixCoreVersion < 0 {
		return ir.Fatalf("options", ir.InvalidConfig, "negative matrix-core version %d", o.MatrixCoreVersion)
	}
	return nil
}

// Enabled reports whether the configured generation has matrix cores.
func (o Options) Enabled() bool {
	return o.MatrixCoreVersion >= 1 && o.MatrixCoreVersion <= 3
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// OptionsFromEnv overlays the SIMTGEN_* environment variables on base.
func OptionsFromEnv(base Options) (Options, error) {
	opts := base
	for _, env := range []struct {
		name string
		dst  *int
	}{
		{EnvMatrixCoreVersion, &opts.MatrixCoreVersion},
		{EnvMatrixInstrSize, &opts.MatrixInstrSize},
	} {
		val := os.Getenv(env.name)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return base, ir.WrapFatal("options", ir.InvalidConfig, errors.Wrapf(err, "%s=%q", env.name, val))
		}
		*env.dst = n
	}
	return opts, opts.Validate()
}
