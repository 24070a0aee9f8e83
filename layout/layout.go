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

package layout

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Kind identifies the variant of a Layout.
type Kind int

const (
	// KindBlocked is the generic, hardware-agnostic layout.
	KindBlocked Kind = iota

	// KindMatrixCoreAccumulator lays out the result of a matrix-core dot.
	KindMatrixCoreAccumulator

	// KindMatrixCoreOperand lays out an A or B operand of a matrix-core dot.
	KindMatrixCoreOperand
)

// String returns a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindBlocked:
		return "blocked"
	case KindMatrixCoreAccumulator:
		return "matrix_core"
	case KindMatrixCoreOperand:
		return "dot_operand"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Layout maps the logical elements of a tensor onto lanes, warps and
// per-lane registers. The set of variants is closed: *Blocked,
// *MatrixCoreAccumulator and *MatrixCoreOperand.
type Layout interface {
	Kind() Kind
	// Order is the traversal order of the distributed dimensions, fastest first.
	Order() Order
	String() string
}

// CTALayout describes how a tensor is split across the cooperative thread
// arrays of a cluster.
type CTALayout struct {
	CTAsPerCGA  []int
	CTASplitNum []int
	CTAOrder    Order
}

// DefaultCTALayout is the single-CTA layout for the given rank.
func DefaultCTALayout(rank int) CTALayout {
	ones := lo.Times(rank, func(int) int { return 1 })
	return CTALayout{
		CTAsPerCGA:  ones,
		CTASplitNum: append([]int(nil), ones...),
		CTAOrder:    DefaultOrder(rank),
	}
}

// Equal reports whether both CTA layouts are identical.
func (c CTALayout) Equal(other CTALayout) bool {
	return slices.Equal(c.CTAsPerCGA, other.CTAsPerCGA) &&
		slices.Equal(c.CTASplitNum, other.CTASplitNum) &&
		slices.Equal(c.CTAOrder, other.CTAOrder)
}

// Blocked is the generic distribution used before any hardware-specific
// layout is chosen.
type Blocked struct {
	SizePerThread  []int
	ThreadsPerWarp []int
	WarpsPerCTA    []int
	Ord            Order
	CTA            CTALayout
}

// NewBlocked builds a default blocked layout for a tensor of the given
// shape: one element per thread, lanes spread along the fastest dimension
// first and warps along the slowest.
func NewBlocked(shape Shape, warpSize, numWarps int) *Blocked {
	rank := len(shape)
	order := DefaultOrder(rank)
	threads := lo.Times(rank, func(int) int { return 1 })
	warps := lo.Times(rank, func(int) int { return 1 })
	remaining := warpSize
	for _, d := range order {
		if remaining <= 1 {
			break
		}
		n := min(remaining, shape[d])
		threads[d] = n
		remaining /= n
	}
	threads[order[0]] *= remaining
	warps[order[len(order)-1]] = numWarps
	return &Blocked{
		SizePerThread:  lo.Times(rank, func(int) int { return 1 }),
		ThreadsPerWarp: threads,
		WarpsPerCTA:    warps,
		Ord:            order,
		CTA:            DefaultCTALayout(rank),
	}
}

func (b *Blocked) Kind() Kind   { return KindBlocked }
func (b *Blocked) Order() Order { return b.Ord }

func (b *Blocked) String() string {
	return fmt.Sprintf("#blocked<{sizePerThread = %s, threadsPerWarp = %s, warpsPerCTA = %s, order = %s}>",
		formatInts(b.SizePerThread), formatInts(b.ThreadsPerWarp), formatInts(b.WarpsPerCTA), formatInts(b.Ord))
}

// MatrixCoreAccumulator is the layout of a matrix-core dot result.
type MatrixCoreAccumulator struct {
	// Version is the matrix-core hardware generation (1..3).
	Version int
	Instr   InstrShape
	Warps   WarpTile

	// IsTransposed is set for dots feeding another dot in the same region.
	IsTransposed bool
	CTA          CTALayout
}

func (a *MatrixCoreAccumulator) Kind() Kind   { return KindMatrixCoreAccumulator }
func (a *MatrixCoreAccumulator) Order() Order { return Order{1, 0} }

func (a *MatrixCoreAccumulator) String() string {
	return fmt.Sprintf("#matrix_core<{version = %d, nonKDim = %d, kDim = %d, warpsPerCTA = [%d, %d], isTransposed = %t}>",
		a.Version, a.Instr.NonKDim, a.Instr.KDim, a.Warps.M, a.Warps.N, a.IsTransposed)
}

// MatrixCoreOperand is the layout of operand OpIdx (0 for A, 1 for B) of a
// dot whose result uses Parent.
type MatrixCoreOperand struct {
	OpIdx  int
	Parent *MatrixCoreAccumulator

	// KWidth is the number of contiguous k elements each lane holds per
	// instruction.
	KWidth int
}

func (o *MatrixCoreOperand) Kind() Kind { return KindMatrixCoreOperand }

// Order keeps k contiguous: dimension 1 of A and dimension 0 of B.
func (o *MatrixCoreOperand) Order() Order {
	if o.OpIdx == 0 {
		return Order{1, 0}
	}
	return Order{0, 1}
}

func (o *MatrixCoreOperand) String() string {
	return fmt.Sprintf("#dot_operand<{opIdx = %d, parent = %s, kWidth = %d}>", o.OpIdx, o.Parent, o.KWidth)
}

// Equal reports whether two layouts are structurally identical. Nil layouts
// compare equal only to nil.
func Equal(a, b Layout) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *Blocked:
		y := b.(*Blocked)
		return slices.Equal(x.SizePerThread, y.SizePerThread) &&
			slices.Equal(x.ThreadsPerWarp, y.ThreadsPerWarp) &&
			slices.Equal(x.WarpsPerCTA, y.WarpsPerCTA) &&
			slices.Equal(x.Ord, y.Ord) && x.CTA.Equal(y.CTA)
	case *MatrixCoreAccumulator:
		y := b.(*MatrixCoreAccumulator)
		return x.Version == y.Version && x.Instr == y.Instr && x.Warps == y.Warps &&
			x.IsTransposed == y.IsTransposed && x.CTA.Equal(y.CTA)
	case *MatrixCoreOperand:
		y := b.(*MatrixCoreOperand)
		if x.OpIdx != y.OpIdx || x.KWidth != y.KWidth {
			return false
		}
		if x.Parent == nil || y.Parent == nil {
			return x.Parent == y.Parent
		}
		return Equal(x.Parent, y.Parent)
	}
	return false
}

// InstrShape is the native tile of one matrix-core instruction: the output
// tile is NonKDim x NonKDim and each instruction contracts KDim elements.
type InstrShape struct {
	NonKDim int `json:"nonKDim"`
	KDim    int `json:"kDim"`
}

func (s InstrShape) String() string { return fmt.Sprintf("%dx%dx%d", s.NonKDim, s.NonKDim, s.KDim) }

// WarpTile is the number of warps assigned to each output dimension.
type WarpTile struct {
	M int `json:"m"`
	N int `json:"n"`
}

// Warps returns M*N.
func (w WarpTile) Warps() int { return w.M * w.N }

func (w WarpTile) String() string { return fmt.Sprintf("{%d,%d}", w.M, w.N) }

func formatInts[T ~[]int](v T) string {
	return "[" + strings.Join(lo.Map(v, func(d int, _ int) string { return strconv.Itoa(d) }), ", ") + "]"
}
