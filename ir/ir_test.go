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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/simtgen/layout"
)

func tensor(elem layout.ElemType, shape ...int) TensorType {
	return TensorType{Shape: shape, Elem: elem}
}

// chainModule builds  d1 = dot(a, b, c); d2 = dot(d1, b, c)  plus an
// unrelated dot inside a loop body.
func chainModule(t *testing.T) (*Module, *Op, *Op, *Op) {
	t.Helper()
	m := NewModule("chain", 8, 64)
	a := m.AddArg(m.Body, "a", tensor(layout.Float32, 128, 128))
	b := m.AddArg(m.Body, "b", tensor(layout.Float32, 128, 128))
	c := m.AddArg(m.Body, "c", tensor(layout.Float32, 128, 128))
	d1 := m.Append(m.Body, OpKindDot, []*Value{a, b, c}, Attrs{}, tensor(layout.Float32, 128, 128))
	d2 := m.Append(m.Body, OpKindDot, []*Value{d1.Result(0), b, c}, Attrs{}, tensor(layout.Float32, 128, 128))
	loop := m.Append(m.Body, OpKindFor, nil, Attrs{})
	body := m.NewRegion(loop)
	inner := m.Append(body, OpKindDot, []*Value{a, b, d2.Result(0)}, Attrs{}, tensor(layout.Float32, 128, 128))
	m.Append(body, OpKindYield, []*Value{inner.Result(0)}, Attrs{})
	return m, d1, d2, inner
}

func TestOpKindNames(t *testing.T) {
	for k := OpKindDot; k <= OpKindYield; k++ {
		parsed, ok := ParseOpKind(k.String())
		require.True(t, ok, k.String())
		assert.Equal(t, k, parsed)
	}
	_, ok := ParseOpKind("matmul")
	assert.False(t, ok)
	assert.Equal(t, "OpKind(42)", OpKind(42).String())
}

func TestModuleWalk(t *testing.T) {
	m, d1, d2, inner := chainModule(t)
	dots := m.Ops(OpKindDot)
	assert.Equal(t, []*Op{d1, d2, inner}, dots)
	assert.Len(t, m.AllOps, 5)
	assert.Equal(t, m.Body, d1.Parent)
	assert.NotEqual(t, m.Body, inner.Parent)
	assert.Equal(t, inner.Parent, inner.Result(0).Region())
}

func TestUsers(t *testing.T) {
	m, d1, d2, _ := chainModule(t)
	assert.Equal(t, []*Op{d2}, m.Users(d1.Result(0)))
}

func TestSymbolTableReserveUnique(t *testing.T) {
	st := NewSymbolTable("printfFormat0", "other")
	assert.Equal(t, "printfFormat1", st.ReserveUnique("printfFormat"))
	assert.Equal(t, "printfFormat2", st.ReserveUnique("printfFormat"))
	assert.Equal(t, "assert0", st.ReserveUnique("assert"))
	assert.True(t, st.Contains("other"))
	assert.False(t, st.Reserve("other"))
	assert.True(t, st.Reserve("fresh"))
}

func TestSymbolTableConcurrentReservations(t *testing.T) {
	st := NewSymbolTable()
	const n = 64
	names := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			names[i] = st.ReserveUnique("str")
		}()
	}
	wg.Wait()
	seen := make(map[string]bool)
	for _, name := range names {
		require.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	for i := range n {
		assert.True(t, seen[fmt.Sprintf("str%d", i)])
	}
}

func TestFatalErrorMatching(t *testing.T) {
	err := Fatalf("dot#3", Divisibility, "48 is not divisible by %d", 32)
	assert.ErrorIs(t, err, &FatalError{Invariant: Divisibility})
	assert.NotErrorIs(t, err, &FatalError{Invariant: MissingInstrShape})
	inv, ok := InvariantOf(err)
	require.True(t, ok)
	assert.Equal(t, Divisibility, inv)
	assert.Contains(t, err.Error(), "dot#3")
	assert.Contains(t, err.Error(), "Divisibility")

	wrapped := WrapFatal("dot#9", InvalidConfig, &FatalError{Invariant: MissingInstrShape, Err: fmt.Errorf("no entry")})
	var fe *FatalError
	require.ErrorAs(t, wrapped, &fe)
	assert.Equal(t, "dot#9", fe.Op)
	assert.Equal(t, MissingInstrShape, fe.Invariant)

	assert.True(t, IsDecline(Declinef("wrong layout %s", "blocked")))
	assert.False(t, IsDecline(err))
}
