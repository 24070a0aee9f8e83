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

package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/simtgen/ir"
)

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, Options{MatrixCoreVersion: 3}.Validate())
	assert.NoError(t, Options{MatrixCoreVersion: 2, MatrixInstrSize: 16}.Validate())
	assert.ErrorIs(t, Options{MatrixInstrSize: 8}.Validate(), &ir.FatalError{Invariant: ir.InvalidConfig})
	assert.Error(t, Options{MatrixCoreVersion: -1}.Validate())
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv(EnvMatrixCoreVersion, "3")
	t.Setenv(EnvMatrixInstrSize, "16")
	opts, err := OptionsFromEnv(Options{MatrixCoreVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.MatrixCoreVersion)
	assert.Equal(t, 16, opts.MatrixInstrSize)
	assert.True(t, opts.Enabled())
}

func TestOptionsFromEnvUnset(t *testing.T) {
	t.Setenv(EnvMatrixCoreVersion, "")
	t.Setenv(EnvMatrixInstrSize, "")
	opts, err := OptionsFromEnv(Options{MatrixCoreVersion: 2, MatrixInstrSize: 32})
	require.NoError(t, err)
	assert.Equal(t, Options{MatrixCoreVersion: 2, MatrixInstrSize: 32}, opts)
}

func TestOptionsFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv(EnvMatrixCoreVersion, "gfx90a")
	_, err := OptionsFromEnv(Options{})
	assert.ErrorIs(t, err, &ir.FatalError{Invariant: ir.InvalidConfig})

	t.Setenv(EnvMatrixCoreVersion, "3")
	t.Setenv(EnvMatrixInstrSize, "64")
	_, err = OptionsFromEnv(Options{})
	assert.ErrorIs(t, err, &ir.FatalError{Invariant: ir.InvalidConfig})
}
