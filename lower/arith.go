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
	"math/big"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ajroetker/simtgen/ir"
)

type binOp int

const (
	opAdd binOp = iota
	opSub
	opMul
	opUDiv
	opURem
	opShl
	opXor
)

// unsignedBits returns the value of c as an unsigned integer of its width.
func unsignedBits(c *constant.Int) uint64 {
	mask := new(big.Int).Lsh(big.NewInt(1), uint(c.Typ.BitSize))
	mask.Sub(mask, big.NewInt(1))
	return new(big.Int).And(c.X, mask).Uint64()
}

// intConst builds a constant of typ from the low bits of v, sign-normalized
// so that it prints the way LLVM parses it back. i1 stays 0 or 1.
func intConst(typ *types.IntType, v uint64) *constant.Int {
	w := typ.BitSize
	if w == 1 {
		return constant.NewInt(typ, int64(v&1))
	}
	if w < 64 {
		v &= 1<<w - 1
		if v&(1<<(w-1)) != 0 {
			return constant.NewInt(typ, int64(v)-int64(1)<<w)
		}
	}
	return constant.NewInt(typ, int64(v))
}

func fold(op binOp, x, y *constant.Int) (*constant.Int, bool) {
	a, b := unsignedBits(x), unsignedBits(y)
	var r uint64
	switch op {
	case opAdd:
		r = a + b
	case opSub:
		r = a - b
	case opMul:
		r = a * b
	case opUDiv:
		if b == 0 {
			return nil, false
		}
		r = a / b
	case opURem:
		if b == 0 {
			return nil, false
		}
		r = a % b
	case opShl:
		r = a << b
	case opXor:
		r = a ^ b
	}
	return intConst(x.Typ, r), true
}

func (b *Builder) binary(op binOp, x, y value.Value) value.Value {
	if cx, ok := x.(*constant.Int); ok {
		if cy, ok := y.(*constant.Int); ok {
			if c, ok := fold(op, cx, cy); ok {
				return c
			}
		}
	}
	switch op {
	case opAdd:
		return b.Block.NewAdd(x, y)
	case opSub:
		return b.Block.NewSub(x, y)
	case opMul:
		return b.Block.NewMul(x, y)
	case opUDiv:
		return b.Block.NewUDiv(x, y)
	case opURem:
		return b.Block.NewURem(x, y)
	case opShl:
		return b.Block.NewShl(x, y)
	default:
		return b.Block.NewXor(x, y)
	}
}

// Add returns x + y, folded when both are constants.
func (b *Builder) Add(x, y value.Value) value.Value { return b.binary(opAdd, x, y) }

// Sub returns x - y.
func (b *Builder) Sub(x, y value.Value) value.Value { return b.binary(opSub, x, y) }

// Mul returns x * y.
func (b *Builder) Mul(x, y value.Value) value.Value { return b.binary(opMul, x, y) }

// UDiv returns x / y, unsigned.
func (b *Builder) UDiv(x, y value.Value) value.Value { return b.binary(opUDiv, x, y) }

// URem returns x % y, unsigned.
func (b *Builder) URem(x, y value.Value) value.Value { return b.binary(opURem, x, y) }

// Shl returns x << y.
func (b *Builder) Shl(x, y value.Value) value.Value { return b.binary(opShl, x, y) }

// Xor returns x ^ y.
func (b *Builder) Xor(x, y value.Value) value.Value { return b.binary(opXor, x, y) }

// ULT returns x < y, unsigned.
func (b *Builder) ULT(x, y value.Value) value.Value {
	return b.Block.NewICmp(enum.IPredULT, x, y)
}

// Select returns cond ? x : y.
func (b *Builder) Select(cond, x, y value.Value) value.Value {
	return b.Block.NewSelect(cond, x, y)
}

// Bitcast reinterprets v as t. It is a no-op when the types already match.
func (b *Builder) Bitcast(v value.Value, t types.Type) value.Value {
	if v.Type().Equal(t) {
		return v
	}
	return b.Block.NewBitCast(v, t)
}

// ConstI32 returns an i32 constant.
func ConstI32(v int32) *constant.Int {
	return constant.NewInt(types.I32, int64(v))
}

// ConstF32 returns a float constant.
func ConstF32(v float32) *constant.Float {
	return constant.NewFloat(types.Float, float64(v))
}

// ConstF64 returns a double constant at full double precision.
func ConstF64(v float64) *constant.Float {
	return constant.NewFloat(types.Double, v)
}

// IntConstant returns an integer constant of the given bit width.
func IntConstant(width int, v int64) (*constant.Int, error) {
	t, ok := intType(width)
	if !ok {
		return nil, ir.Fatalf("int constant", ir.UnsupportedWidth, "unsupported integer width %d", width)
	}
	return intConst(t, uint64(v)), nil
}

// IndexConstant returns a constant of the unit's index type.
func (u *Unit) IndexConstant(v int64) *constant.Int {
	return intConst(u.IndexType, uint64(v))
}
