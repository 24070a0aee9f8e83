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
	"strconv"

	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ajroetker/simtgen/asm"
	"github.com/ajroetker/simtgen/ir"
)

// NVPTX lowers cross-lane and shared-memory primitives to PTX inline
// assembly for 32-lane warps.
type NVPTX struct{}

func (NVPTX) Name() string         { return "nvptx" }
func (NVPTX) Dialect() asm.Dialect { return asm.PTX }
func (NVPTX) WarpSize() int        { return 32 }

// ptxReg returns the register constraint letter and the integer type the
// register holds for a value of the given width. 8-bit values travel in
// 16-bit registers.
func ptxReg(bits int) (string, *types.IntType) {
	switch bits {
	case 8, 16:
		return "h", types.I16
	case 32:
		return "r", types.I32
	default:
		return "l", types.I64
	}
}

func (NVPTX) Shuffle32(b *Builder, v value.Value, delta int, mode ShuffleMode) (value.Value, error) {
	pb := asm.NewBuilder(asm.PTX)
	out := pb.NewOutput("r")
	in := pb.NewOperand(v, "r")
	clamp := "0x1f"
	if mode == ShiftUp {
		clamp = "0x0"
	}
	pb.Create("shfl.sync").O(mode.String()).O("b32").
		Call(out, in, pb.NewImmInt(int64(delta)), pb.NewImm(clamp), pb.NewImm("0xffffffff"))
	return pb.Launch(b.Block, types.I32, true)
}

func (NVPTX) LaneID(b *Builder) (value.Value, error) {
	pb := asm.NewBuilder(asm.PTX)
	out := pb.NewOutput("r")
	pb.Create("mov").O("u32").Call(out, pb.NewImm("%laneid"))
	return pb.Launch(b.Block, types.I32, false)
}

func (NVPTX) StoreShared(b *Builder, ptr *GroupSharedPtr, val, pred value.Value) error {
	bits, _ := bitWidth(val.Type())
	c, reg := ptxReg(bits)
	if bits == 8 {
		val = b.Block.NewZExt(val, reg)
	}
	pb := asm.NewBuilder(asm.PTX)
	addr := pb.NewOperand(ptr.Value(), "r")
	data := pb.NewOperand(val, c)
	p := pb.NewOperand(pred, "b")
	pb.Create("st").O("shared").O("b"+strconv.Itoa(bits)).
		Predicate(p).
		Call(pb.NewAddr(addr), data)
	_, err := pb.Launch(b.Block, types.Void, true)
	return err
}

// mapa translates the local shared address ptr into the address of the
// same location in group ctaID of the cluster, held in remAddr.
func mapa(pb *asm.Builder, ptr, ctaID *asm.Operand) *asm.Operand {
	remAddr := pb.NewImm("remAddr")
	pb.Raw("{")
	pb.Raw(".reg .u32 remAddr;")
	pb.Create("mapa").O("shared::cluster").O("u32").Call(remAddr, ptr, ctaID)
	return remAddr
}

func (NVPTX) LoadDSmem(b *Builder, ptr *GroupSharedPtr, ctaID value.Value, raw *types.IntType, vec int) ([]value.Value, error) {
	bits := int(raw.BitSize)
	c, reg := ptxReg(bits)
	pb := asm.NewBuilder(asm.PTX)
	outs := make([]*asm.Operand, vec)
	for i := range outs {
		outs[i] = pb.NewOutput(c)
	}
	remAddr := mapa(pb, pb.NewOperand(ptr.Value(), "r"), pb.NewOperand(ctaID, "r"))
	dst := outs[0]
	if vec > 1 {
		dst = pb.NewList(outs...)
	}
	pb.Create("ld").O("shared::cluster").O(fmt.Sprintf("v%d", vec), vec > 1).O("u"+strconv.Itoa(bits)).
		Call(dst, pb.NewAddr(remAddr))
	pb.Raw("}")

	var retType types.Type = reg
	if vec > 1 {
		fields := make([]types.Type, vec)
		for i := range fields {
			fields[i] = reg
		}
		retType = types.NewStruct(fields...)
	}
	call, err := pb.Launch(b.Block, retType, true)
	if err != nil {
		return nil, ir.WrapFatal("dsmem load", ir.MalformedRewrite, err)
	}
	vals := make([]value.Value, vec)
	for i := range vals {
		var v value.Value = call
		if vec > 1 {
			v = b.Block.NewExtractValue(call, uint64(i))
		}
		if !reg.Equal(raw) {
			v = b.Block.NewTrunc(v, raw)
		}
		vals[i] = v
	}
	return vals, nil
}

func (NVPTX) StoreDSmem(b *Builder, ptr *GroupSharedPtr, ctaID value.Value, vals []value.Value, pred value.Value) error {
	bits, _ := bitWidth(vals[0].Type())
	c, reg := ptxReg(bits)
	pb := asm.NewBuilder(asm.PTX)
	remAddr := mapa(pb, pb.NewOperand(ptr.Value(), "r"), pb.NewOperand(ctaID, "r"))
	p := pb.NewOperand(pred, "b")
	data := make([]*asm.Operand, len(vals))
	for i, v := range vals {
		if bits == 8 {
			v = b.Block.NewZExt(v, reg)
		}
		data[i] = pb.NewOperand(v, c)
	}
	src := data[0]
	if len(data) > 1 {
		src = pb.NewList(data...)
	}
	pb.Create("st").O("shared::cluster").O(fmt.Sprintf("v%d", len(vals)), len(vals) > 1).O("u"+strconv.Itoa(bits)).
		Predicate(p).
		Call(pb.NewAddr(remAddr), src)
	pb.Raw("}")
	_, err := pb.Launch(b.Block, types.Void, true)
	return err
}
