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
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ajroetker/simtgen/ir"
)

// Shuffle exchanges v across the lanes of a warp. Values of 8, 16, 32 and
// 64 bits are supported and move as raw bits: narrow values are widened to
// 32 bits and truncated back, 64-bit values travel as two 32-bit halves.
func (b *Builder) Shuffle(v value.Value, delta int, mode ShuffleMode) (value.Value, error) {
	be := b.Unit.Backend
	if delta < 0 || delta >= be.WarpSize() {
		return nil, ir.Fatalf("shuffle", ir.InvalidConfig, "delta %d outside a warp of %d lanes", delta, be.WarpSize())
	}
	t := v.Type()
	bits, ok := bitWidth(t)
	if !ok {
		return nil, ir.Fatalf("shuffle", ir.UnsupportedWidth, "cannot shuffle %s", t)
	}
	switch bits {
	case 64:
		pair := types.NewVector(2, types.I32)
		vec := b.Bitcast(v, pair)
		var out value.Value = constant.NewUndef(pair)
		for i := int64(0); i < 2; i++ {
			half := b.Block.NewExtractElement(vec, ConstI32(int32(i)))
			shuffled, err := be.Shuffle32(b, half, delta, mode)
			if err != nil {
				return nil, err
			}
			out = b.Block.NewInsertElement(out, shuffled, ConstI32(int32(i)))
		}
		return b.Bitcast(out, t), nil

	case 32:
		shuffled, err := be.Shuffle32(b, b.Bitcast(v, types.I32), delta, mode)
		if err != nil {
			return nil, err
		}
		return b.Bitcast(shuffled, t), nil

	case 8, 16:
		raw, _ := intType(bits)
		wide := b.Block.NewSExt(b.Bitcast(v, raw), types.I32)
		shuffled, err := be.Shuffle32(b, wide, delta, mode)
		if err != nil {
			return nil, err
		}
		return b.Bitcast(b.Block.NewTrunc(shuffled, raw), t), nil
	}
	return nil, ir.Fatalf("shuffle", ir.UnsupportedWidth, "cannot shuffle %d-bit values", bits)
}

// ShflSync is the butterfly shuffle: lane i receives the value of lane
// i ^ delta.
func (b *Builder) ShflSync(v value.Value, delta int) (value.Value, error) {
	return b.Shuffle(v, delta, Butterfly)
}

// ShflUpSync is the shift-up shuffle: lane i receives the value of lane
// i - delta, and lanes below delta keep their own value.
func (b *Builder) ShflUpSync(v value.Value, delta int) (value.Value, error) {
	return b.Shuffle(v, delta, ShiftUp)
}

// LaneID returns the calling lane's index within its warp as an i32.
func (b *Builder) LaneID() (value.Value, error) {
	return b.Unit.Backend.LaneID(b)
}
