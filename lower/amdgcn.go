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
	"fmt"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ajroetker/simtgen/asm"
	"github.com/ajroetker/simtgen/ir"
)

// AMDGCN lowers cross-lane and shared-memory primitives to GCN inline
// assembly and LLVM intrinsics.
type AMDGCN struct {
	// WaveSize is the number of lanes per wavefront (64 on CDNA).
	WaveSize int
}

func (AMDGCN) Name() string         { return "amdgcn" }
func (AMDGCN) Dialect() asm.Dialect { return asm.GCN }
func (a AMDGCN) WarpSize() int      { return a.WaveSize }

// swizzleOffsets are ds_swizzle bitmask-mode offsets (and=0x1f, xor=delta)
// for the butterfly deltas that stay inside a 32-lane half.
var swizzleOffsets = map[int]int{
	16: 0x401F,
	8:  0x201F,
	4:  0x101F,
	2:  0x081F,
	1:  0x041F,
}

func waitLDS(gb *asm.Builder) {
	gb.Create("s_waitcnt").Modifier("lgkmcnt(0)")
}

func (a AMDGCN) Shuffle32(b *Builder, v value.Value, delta int, mode ShuffleMode) (value.Value, error) {
	if mode == Butterfly {
		if off, ok := swizzleOffsets[delta]; ok {
			gb := asm.NewBuilder(asm.GCN)
			out := gb.NewOutput("v")
			gb.Create("ds_swizzle_b32").Call(out, gb.NewOperand(v, "v")).Modifier(fmt.Sprintf("offset:0x%04X", off))
			waitLDS(gb)
			return gb.Launch(b.Block, types.I32, true)
		}
	}

	lane, err := a.LaneID(b)
	if err != nil {
		return nil, err
	}
	d := ConstI32(int32(delta))
	mnemonic := "ds_bpermute_b32"
	var src value.Value
	switch {
	case mode == ShiftUp:
		src = b.Select(b.ULT(lane, d), lane, b.Sub(lane, d))
	case delta == a.WaveSize/2:
		// Pushing to lane+half is the same exchange as pulling from
		// lane^half.
		mnemonic = "ds_permute_b32"
		src = b.URem(b.Add(lane, d), ConstI32(int32(a.WaveSize)))
	default:
		src = b.Xor(lane, d)
	}
	addr := b.Shl(src, ConstI32(2))

	gb := asm.NewBuilder(asm.GCN)
	out := gb.NewOutput("v")
	gb.Create(mnemonic).Call(out, gb.NewOperand(addr, "v"), gb.NewOperand(v, "v"))
	waitLDS(gb)
	return gb.Launch(b.Block, types.I32, true)
}

func (AMDGCN) LaneID(b *Builder) (value.Value, error) {
	gb := asm.NewBuilder(asm.GCN)
	out := gb.NewOutput("v")
	gb.Create("v_mbcnt_lo_u32_b32").Call(out, gb.NewImm("-1"), gb.NewImm("0"))
	gb.Create("v_mbcnt_hi_u32_b32").Call(out, gb.NewImm("-1"), out)
	return gb.Launch(b.Block, types.I32, false)
}

// StoreShared emits a single-lane llvm.masked.store so that the predicate
// masks the write without control flow.
func (AMDGCN) StoreShared(b *Builder, ptr *GroupSharedPtr, val, pred value.Value) error {
	raw, ok := val.Type().(*types.IntType)
	if !ok {
		return ir.Fatalf("shared store", ir.UnsupportedWidth, "raw value %s is not an integer", val.Type())
	}
	vecType := types.NewVector(1, raw)
	vecPtr := types.NewPointer(vecType)
	vecPtr.AddrSpace = groupSharedAddrSpace
	maskType := types.NewVector(1, types.I1)
	name := fmt.Sprintf("llvm.masked.store.v1i%d.p3v1i%d", raw.BitSize, raw.BitSize)
	fn := b.Unit.declare(name, types.Void, vecType, vecPtr, types.I32, maskType)

	zero := ConstI32(0)
	vec := b.Block.NewInsertElement(constant.NewUndef(vecType), val, zero)
	mask := b.Block.NewInsertElement(constant.NewUndef(maskType), pred, zero)
	align := ConstI32(int32(raw.BitSize / 8))
	b.Block.NewCall(fn, vec, b.Bitcast(ptr.Value(), vecPtr), align, mask)
	return nil
}

func (a AMDGCN) LoadDSmem(*Builder, *GroupSharedPtr, value.Value, *types.IntType, int) ([]value.Value, error) {
	return nil, ir.Fatalf("dsmem load", ir.UnsupportedBackendFeature, "%s has no distributed shared memory", a.Name())
}

func (a AMDGCN) StoreDSmem(*Builder, *GroupSharedPtr, value.Value, []value.Value, value.Value) error {
	return ir.Fatalf("dsmem store", ir.UnsupportedBackendFeature, "%s has no distributed shared memory", a.Name())
}
