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
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Shape is an ordered sequence of positive dimension extents.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// NumElements returns the product of all extents. A rank-0 shape has one
// element.
func (s Shape) NumElements() int {
	return lo.Reduce(s, func(acc, d int, _ int) int { return acc * d }, 1)
}

// Validate checks that every extent is positive.
func (s Shape) Validate() error {
	for i, d := range s {
		if d <= 0 {
			return errors.Errorf("shape %v: dimension %d has non-positive extent %d", []int(s), i, d)
		}
	}
	return nil
}

// Equal reports whether both shapes have the same extents.
func (s Shape) Equal(other Shape) bool { return slices.Equal(s, other) }

// String formats the shape as "128x64".
func (s Shape) String() string {
	return strings.Join(lo.Map(s, func(d int, _ int) string { return strconv.Itoa(d) }), "x")
}

// ParseShape parses "128x64" (or "128,64").
func ParseShape(text string) (Shape, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty shape")
	}
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == 'x' || r == ',' })
	shape := make(Shape, 0, len(fields))
	for _, f := range fields {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errors.Wrapf(err, "shape %q", text)
		}
		shape = append(shape, d)
	}
	return shape, shape.Validate()
}

// Order is a permutation of [0, rank) listing dimensions from the fastest
// varying to the slowest varying.
type Order []int

// DefaultOrder returns the row-major order {rank-1, ..., 1, 0}.
func DefaultOrder(rank int) Order {
	order := make(Order, rank)
	for i := range order {
		order[i] = rank - 1 - i
	}
	return order
}

// Validate checks that the order is a bijection over [0, rank).
func (o Order) Validate(rank int) error {
	if len(o) != rank {
		return errors.Errorf("order %v has %d entries, want %d", []int(o), len(o), rank)
	}
	for _, d := range o {
		if d < 0 || d >= rank {
			return errors.Errorf("order %v: dimension %d out of range [0,%d)", []int(o), d, rank)
		}
	}
	if len(lo.Uniq(o)) != len(o) {
		return errors.Errorf("order %v repeats a dimension", []int(o))
	}
	return nil
}

// Reorder returns values permuted into order-space: out[i] = values[order[i]].
func Reorder[T any](values []T, order Order) []T {
	return lo.Map(order, func(d int, _ int) T { return values[d] })
}

func checkShapeOrder(shape Shape, order Order) error {
	if err := shape.Validate(); err != nil {
		return err
	}
	return order.Validate(len(shape))
}

// DelinearizeInt converts a linear index into a coordinate. order[0] is the
// fastest varying dimension. The last visited dimension absorbs any
// remainder, which keeps the digit of the slowest dimension unbounded the
// same way the symbolic form does.
func DelinearizeInt(linear int, shape Shape, order Order) ([]int, error) {
	if err := checkShapeOrder(shape, order); err != nil {
		return nil, err
	}
	if linear < 0 {
		return nil, errors.Errorf("negative linear index %d", linear)
	}
	coord := make([]int, len(shape))
	if len(shape) == 0 {
		return coord, nil
	}
	remaining := linear
	for i, d := range order {
		if i == len(order)-1 {
			coord[d] = remaining
			break
		}
		coord[d] = remaining % shape[d]
		remaining /= shape[d]
	}
	return coord, nil
}

// LinearizeInt folds a coordinate back into a linear index. It is the
// inverse of DelinearizeInt for every index in [0, shape.NumElements()).
func LinearizeInt(coord []int, shape Shape, order Order) (int, error) {
	if err := checkShapeOrder(shape, order); err != nil {
		return 0, err
	}
	if len(coord) != len(shape) {
		return 0, errors.Errorf("coordinate %v has rank %d, shape %v has rank %d", coord, len(coord), shape, len(shape))
	}
	if len(shape) == 0 {
		return 0, nil
	}
	rank := len(order)
	acc := coord[order[rank-1]]
	for i := rank - 2; i >= 0; i-- {
		acc = acc*shape[order[i]] + coord[order[i]]
	}
	return acc, nil
}

// StridesInt returns the mixed-radix strides consistent with order:
// stride[order[0]] = 1 and stride[order[i]] = stride[order[i-1]] * shape[order[i-1]].
func StridesInt(shape Shape, order Order) ([]int, error) {
	if err := checkShapeOrder(shape, order); err != nil {
		return nil, err
	}
	strides := make([]int, len(shape))
	if len(shape) == 0 {
		return strides, nil
	}
	strides[order[0]] = 1
	for i := 1; i < len(order); i++ {
		strides[order[i]] = strides[order[i-1]] * shape[order[i-1]]
	}
	return strides, nil
}
