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

package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajroetker/simtgen/layout"
)

func TestBackwardSlice(t *testing.T) {
	m, d1, d2, inner := chainModule(t)
	assert.Equal(t, []*Op{d1}, m.BackwardSlice(d2, nil))
	assert.Empty(t, m.BackwardSlice(d1, nil))

	// Unfiltered, the loop body dot reaches both producers.
	assert.ElementsMatch(t, []*Op{d1, d2}, m.BackwardSlice(inner, nil))
	assert.Empty(t, m.BackwardSlice(inner, SameRegion(inner.Parent)))
}

func TestForwardSlice(t *testing.T) {
	m, d1, d2, inner := chainModule(t)
	assert.Equal(t, []*Op{d2}, m.ForwardSlice(d1, SameRegion(m.Body)))

	unfiltered := m.ForwardSlice(d1, nil)
	assert.Contains(t, unfiltered, d2)
	assert.Contains(t, unfiltered, inner)
}

func TestDependencySlice(t *testing.T) {
	m, d1, d2, _ := chainModule(t)
	assert.Equal(t, []*Op{d2}, m.DependencySlice(d1, SameRegion(m.Body)))
	assert.Equal(t, []*Op{d1}, m.DependencySlice(d2, SameRegion(m.Body)))
}

func TestSliceThroughElementwise(t *testing.T) {
	m := NewModule("ew", 4, 64)
	a := m.AddArg(m.Body, "a", tensor(layout.Float16, 64, 64))
	c := m.AddArg(m.Body, "c", tensor(layout.Float32, 64, 64))
	d1 := m.Append(m.Body, OpKindDot, []*Value{a, a, c}, Attrs{}, tensor(layout.Float32, 64, 64))
	cvt := m.Append(m.Body, OpKindElementwise, []*Value{d1.Result(0)}, Attrs{}, tensor(layout.Float16, 64, 64))
	d2 := m.Append(m.Body, OpKindDot, []*Value{cvt.Result(0), a, c}, Attrs{}, tensor(layout.Float32, 64, 64))
	assert.Equal(t, []*Op{cvt, d2}, m.ForwardSlice(d1, SameRegion(m.Body)))
}
