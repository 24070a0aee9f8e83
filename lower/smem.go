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
	"github.com/ajroetker/simtgen/layout"
)

// SharedMemoryObject describes a region of group-shared memory: a base
// pointer plus one stride and one offset per dimension. It is a view
// rebuilt from an aggregate at each use.
type SharedMemoryObject struct {
	Base    value.Value
	Strides []value.Value
	Offsets []value.Value
}

// Rank returns the number of dimensions.
func (s *SharedMemoryObject) Rank() int { return len(s.Strides) }

// Elems returns base, strides and offsets in aggregate field order.
func (s *SharedMemoryObject) Elems() []value.Value {
	elems := make([]value.Value, 0, 1+2*len(s.Strides))
	elems = append(elems, s.Base)
	elems = append(elems, s.Strides...)
	return append(elems, s.Offsets...)
}

// Type returns the aggregate type holding the object.
func (s *SharedMemoryObject) Type() *types.StructType {
	elems := s.Elems()
	fields := make([]types.Type, len(elems))
	for i, e := range elems {
		fields[i] = e.Type()
	}
	return types.NewStruct(fields...)
}

// StridesFromShapeAndOrder returns i32 constants for the strides of a
// tensor of shape laid out in order: stride[order[0]] is 1 and each next
// dimension in order multiplies by the extent of the previous one.
func (b *Builder) StridesFromShapeAndOrder(shape layout.Shape, order layout.Order) ([]value.Value, error) {
	ints, err := layout.StridesInt(shape, order)
	if err != nil {
		return nil, ir.WrapFatal("strides", ir.InvalidShape, err)
	}
	strides := make([]value.Value, len(ints))
	for i, s := range ints {
		strides[i] = ConstI32(int32(s))
	}
	return strides, nil
}

// NewSharedMemoryObject describes a tensor of shape stored at base in
// order, with zero offsets.
func (b *Builder) NewSharedMemoryObject(base value.Value, shape layout.Shape, order layout.Order) (*SharedMemoryObject, error) {
	strides, err := b.StridesFromShapeAndOrder(shape, order)
	if err != nil {
		return nil, err
	}
	offsets := make([]value.Value, len(shape))
	for i := range offsets {
		offsets[i] = ConstI32(0)
	}
	return &SharedMemoryObject{Base: base, Strides: strides, Offsets: offsets}, nil
}

// Aggregate packs s into a struct value {base, strides..., offsets...}.
func (b *Builder) Aggregate(s *SharedMemoryObject) value.Value {
	var agg value.Value = constant.NewUndef(s.Type())
	for i, e := range s.Elems() {
		agg = b.Block.NewInsertValue(agg, e, uint64(i))
	}
	return agg
}

// DecomposeAggregate reads a SharedMemoryObject back from a struct of
// 2*rank+1 fields: the base, then rank strides, then rank offsets.
func (b *Builder) DecomposeAggregate(agg value.Value) (*SharedMemoryObject, error) {
	st, ok := agg.Type().(*types.StructType)
	if !ok {
		return nil, ir.Fatalf("decompose aggregate", ir.MalformedAggregate, "%s is not a struct", agg.Type())
	}
	n := len(st.Fields)
	if n < 3 || n%2 == 0 {
		return nil, ir.Fatalf("decompose aggregate", ir.MalformedAggregate,
			"shared memory aggregate needs 2*rank+1 fields, got %d", n)
	}
	fields := make([]value.Value, n)
	for i := range fields {
		fields[i] = b.Block.NewExtractValue(agg, uint64(i))
	}
	rank := (n - 1) / 2
	return &SharedMemoryObject{
		Base:    fields[0],
		Strides: fields[1 : 1+rank],
		Offsets: fields[1+rank:],
	}, nil
}

// ElemPtr returns a pointer to the element at coord:
// base + sum((coord[i] + offsets[i]) * strides[i]).
func (b *Builder) ElemPtr(s *SharedMemoryObject, coord []value.Value) (value.Value, error) {
	ptrType, ok := s.Base.Type().(*types.PointerType)
	if !ok {
		return nil, ir.Fatalf("shared memory address", ir.NotGroupShared, "base %s is not a pointer", s.Base.Type())
	}
	if len(coord) != s.Rank() {
		return nil, ir.Fatalf("shared memory address", ir.InvalidShape, "coordinate has rank %d, object has rank %d", len(coord), s.Rank())
	}
	var offset value.Value = ConstI32(0)
	for i, c := range coord {
		offset = b.Add(offset, b.Mul(b.Add(c, s.Offsets[i]), s.Strides[i]))
	}
	return b.Block.NewGetElementPtr(ptrType.ElemType, s.Base, offset), nil
}
