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

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
	"github.com/ajroetker/simtgen/planner"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeReport(t *testing.T, out string) planner.Report {
	t.Helper()
	var report planner.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	return report
}

func TestPlanSingleDot(t *testing.T) {
	out, _, err := execute(t, "plan", "--m", "128", "--n", "128", "--k", "64", "--elem", "f16", "--gen", "2", "--warps", "4")
	require.NoError(t, err)
	report := decodeReport(t, out)
	require.Len(t, report.Dots, 1)
	dot := report.Dots[0]
	assert.Equal(t, layout.InstrShape{NonKDim: 32, KDim: 8}, dot.Instr)
	assert.Equal(t, layout.WarpTile{M: 2, N: 2}, dot.Warps)
	assert.Equal(t, 4, dot.KWidth)
	assert.False(t, dot.Transposed)
	assert.Equal(t, 2, report.Version)
}

func TestPlanProgramFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "planned.json")
	out, stderr, err := execute(t, "plan", "-f", "testdata/chain.json", "-o", outFile, "-v")
	require.NoError(t, err)
	report := decodeReport(t, out)
	assert.Equal(t, "attention", report.Module)
	assert.Equal(t, 2, report.Rewrites)
	require.Len(t, report.Dots, 2)
	for _, dot := range report.Dots {
		assert.Equal(t, layout.WarpTile{M: 8, N: 1}, dot.Warps)
		assert.True(t, dot.Transposed)
	}
	assert.Contains(t, stderr, "level=DEBUG")

	m, err := ir.ReadProgram(outFile)
	require.NoError(t, err)
	for _, dot := range m.Ops(ir.OpKindDot) {
		assert.Equal(t, layout.KindMatrixCoreAccumulator, dot.Results[0].Type.Encoding.Kind())
	}
}

func TestPlanEnvironment(t *testing.T) {
	t.Setenv(planner.EnvMatrixCoreVersion, "0")
	out, _, err := execute(t, "plan")
	require.NoError(t, err)
	assert.Empty(t, decodeReport(t, out).Dots)

	// Flags win over the environment.
	out, _, err = execute(t, "plan", "--gen", "3")
	require.NoError(t, err)
	assert.Len(t, decodeReport(t, out).Dots, 1)

	t.Setenv(planner.EnvMatrixCoreVersion, "three")
	_, _, err = execute(t, "plan")
	assert.ErrorIs(t, err, &ir.FatalError{Invariant: ir.InvalidConfig})
}

func TestPlanErrors(t *testing.T) {
	_, _, err := execute(t, "plan", "--m", "48", "--n", "48", "--k", "32")
	assert.ErrorIs(t, err, &ir.FatalError{Invariant: ir.Divisibility})
	_, _, err = execute(t, "plan", "--instr-size", "8")
	assert.ErrorIs(t, err, &ir.FatalError{Invariant: ir.InvalidConfig})
	_, _, err = execute(t, "plan", "--elem", "f7")
	assert.Error(t, err)
	_, _, err = execute(t, "plan", "-f", "testdata/chain.json", "--m", "64")
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	out, _, err := execute(t, "sweep", "--elems", "f16,f64", "--gens", "2", "--sizes", "32,48", "--ks", "32", "--json")
	require.NoError(t, err)
	var results []sweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 4)

	byKey := map[string]sweepResult{}
	for _, r := range results {
		byKey[fmt.Sprintf("%s/%d", r.Elem, r.M)] = r
	}
	ok := byKey["f16/32"]
	assert.Equal(t, "ok", ok.Status)
	require.NotNil(t, ok.Plan)
	assert.Equal(t, layout.InstrShape{NonKDim: 32, KDim: 8}, ok.Plan.Instr)
	assert.Equal(t, string(ir.Divisibility), byKey["f16/48"].Status)
	assert.Equal(t, "declined", byKey["f64/32"].Status)
}

func TestSweepTable(t *testing.T) {
	out, _, err := execute(t, "sweep", "--elems", "i8", "--gens", "3", "--sizes", "64", "--ks", "64")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"GEN", "ELEM", "SHAPE", "INSTR", "WARPS", "KWIDTH", "STATUS"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"3", "i8", "64x64x64", "32x32x16", "{2,2}", "8", "ok"}, strings.Fields(lines[1]))
}

func TestEmit(t *testing.T) {
	tests := []struct {
		args []string
		want []string
		not  []string
	}{
		{[]string{"emit", "shuffle", "--delta", "4"}, []string{"shfl.sync.bfly.b32 $0, $1, 4, 0x1f, 0xffffffff;", "bitcast float"}, nil},
		{[]string{"emit", "shuffle", "-b", "amdgcn", "--delta", "16", "--type", "f16"}, []string{"ds_swizzle_b32", "offset:0x401F", "sext i16"}, nil},
		{[]string{"emit", "shuffle", "-b", "amdgcn", "--mode", "up", "--delta", "2"}, []string{"ds_bpermute_b32", "v_mbcnt_lo_u32_b32"}, nil},
		{[]string{"emit", "index", "--shape", "4x8x2", "--order", "2,0,1"}, []string{"urem i32", "udiv i32"}, nil},
		{[]string{"emit", "index", "--shape", "4x8", "--linear", "13"}, []string{"define void @index()"}, []string{"urem"}},
		{[]string{"emit", "dsmem", "--type", "f16", "--vec", "2"}, []string{"mapa.shared::cluster.u32", "ld.shared::cluster.v2.u16", "st.shared::cluster.v2.u16"}, nil},
		{[]string{"emit", "store-shared", "-b", "amdgcn", "--type", "i16"}, []string{"@llvm.masked.store.v1i16.p3v1i16"}, nil},
		{[]string{"emit", "store-shared", "--type", "i8"}, []string{"st.shared.b8", "zext i8"}, nil},
		{[]string{"emit", "laneid"}, []string{"mov.u32 $0, %laneid;"}, nil},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, _, err := execute(t, tt.args...)
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
			for _, not := range tt.not {
				assert.NotContains(t, out, not)
			}
		})
	}
}

func TestEmitErrors(t *testing.T) {
	_, _, err := execute(t, "emit", "dsmem", "-b", "amdgcn")
	assert.ErrorIs(t, err, &ir.FatalError{Invariant: ir.UnsupportedBackendFeature})
	_, _, err = execute(t, "emit", "shuffle", "--delta", "32")
	assert.ErrorIs(t, err, &ir.FatalError{Invariant: ir.InvalidConfig})
	_, _, err = execute(t, "emit", "shuffle", "--mode", "down")
	assert.Error(t, err)
	_, _, err = execute(t, "emit", "laneid", "-b", "spirv")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestBackends(t *testing.T) {
	out, _, err := execute(t, "backends")
	require.NoError(t, err)
	assert.Contains(t, out, "amdgcn  GCN")
	assert.Contains(t, out, "nvptx   PTX")
}

func TestMain(m *testing.M) {
	os.Unsetenv("SIMTGEN_MATRIX_CORE_VERSION")
	os.Unsetenv("SIMTGEN_MATRIX_INSTR_SIZE")
	os.Exit(m.Run())
}
