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

package lower

import (
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
)

func indexIntType(op string, v value.Value) (*types.IntType, error) {
	t, ok := v.Type().(*types.IntType)
	if !ok {
		return nil, ir.Fatalf(op, ir.InvalidShape, "index %s is not an integer", v.Ident())
	}
	return t, nil
}

// Delinearize converts a linear index into a coordinate of shape, with
// order[0] the fastest varying dimension. Constant inputs fold to constant
// coordinates; otherwise urem/udiv instructions are emitted.
func (b *Builder) Delinearize(linear value.Value, shape layout.Shape, order layout.Order) ([]value.Value, error) {
	if err := checkShapeOrder("delinearize", shape, order); err != nil {
		return nil, err
	}
	t, err := indexIntType("delinearize", linear)
	if err != nil {
		return nil, err
	}
	coord := make([]value.Value, len(shape))
	if len(shape) == 0 {
		return coord, nil
	}
	remaining := linear
	for i, d := range order {
		if i == len(order)-1 {
			coord[d] = remaining
			break
		}
		extent := intConst(t, uint64(shape[d]))
		coord[d] = b.URem(remaining, extent)
		remaining = b.UDiv(remaining, extent)
	}
	return coord, nil
}

// Linearize folds a coordinate back into a linear index; it inverts
// Delinearize for every index inside the shape.
func (b *Builder) Linearize(coord []value.Value, shape layout.Shape, order layout.Order) (value.Value, error) {
	if err := checkShapeOrder("linearize", shape, order); err != nil {
		return nil, err
	}
	if len(coord) != len(shape) {
		return nil, ir.Fatalf("linearize", ir.InvalidShape, "coordinate has rank %d, shape %s has rank %d", len(coord), shape, len(shape))
	}
	if len(shape) == 0 {
		return b.Unit.IndexConstant(0), nil
	}
	rank := len(order)
	acc := coord[order[rank-1]]
	t, err := indexIntType("linearize", acc)
	if err != nil {
		return nil, err
	}
	for i := rank - 2; i >= 0; i-- {
		d := order[i]
		acc = b.Add(b.Mul(acc, intConst(t, uint64(shape[d]))), coord[d])
	}
	return acc, nil
}

func checkShapeOrder(op string, shape layout.Shape, order layout.Order) error {
	if err := shape.Validate(); err != nil {
		return ir.WrapFatal(op, ir.InvalidShape, err)
	}
	if err := order.Validate(len(shape)); err != nil {
		return ir.WrapFatal(op, ir.InvalidShape, err)
	}
	return nil
}
