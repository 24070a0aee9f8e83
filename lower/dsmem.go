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

// GroupSharedPtr is a pointer into group-shared memory (address space 3).
// The address space is checked once, by NewGroupSharedPtr.
type GroupSharedPtr struct {
	value value.Value
	elem  types.Type
}

// NewGroupSharedPtr wraps v, which must be a pointer in address space 3.
func NewGroupSharedPtr(v value.Value) (*GroupSharedPtr, error) {
	pt, ok := v.Type().(*types.PointerType)
	if !ok {
		return nil, ir.Fatalf("group-shared pointer", ir.NotGroupShared, "%s is not a pointer", v.Type())
	}
	if pt.AddrSpace != groupSharedAddrSpace {
		return nil, ir.Fatalf("group-shared pointer", ir.NotGroupShared,
			"pointer %s is in address space %d, want %d", v.Type(), pt.AddrSpace, groupSharedAddrSpace)
	}
	return &GroupSharedPtr{value: v, elem: pt.ElemType}, nil
}

// Value returns the underlying pointer.
func (p *GroupSharedPtr) Value() value.Value { return p.value }

// Elem returns the pointee type.
func (p *GroupSharedPtr) Elem() types.Type { return p.elem }

// rawType returns the integer type moving the pointee's bits.
func (p *GroupSharedPtr) rawType(op string) (*types.IntType, error) {
	bits, ok := bitWidth(p.elem)
	if ok {
		if t, ok := intType(bits); ok && bits >= 8 {
			return t, nil
		}
	}
	return nil, ir.Fatalf(op, ir.UnsupportedWidth, "cannot move %s through shared memory", p.elem)
}

func checkVec(op string, raw *types.IntType, vec int) error {
	switch vec {
	case 1, 2, 4:
	default:
		return ir.Fatalf(op, ir.UnsupportedWidth, "vector width %d, want 1, 2 or 4", vec)
	}
	if int(raw.BitSize)*vec > 128 {
		return ir.Fatalf(op, ir.UnsupportedWidth, "%d x i%d exceeds a 128-bit access", vec, raw.BitSize)
	}
	return nil
}

// LoadDSmem loads one element from ptr in the group ctaID of the cluster.
func (b *Builder) LoadDSmem(ptr *GroupSharedPtr, ctaID value.Value) (value.Value, error) {
	vals, err := b.LoadDSmemVec(ptr, ctaID, 1)
	if err != nil {
		return nil, err
	}
	return vals[0], nil
}

// LoadDSmemVec loads vec consecutive elements from ptr in the group ctaID.
// The bits move as integers and are reinterpreted as the pointee type.
func (b *Builder) LoadDSmemVec(ptr *GroupSharedPtr, ctaID value.Value, vec int) ([]value.Value, error) {
	raw, err := ptr.rawType("dsmem load")
	if err != nil {
		return nil, err
	}
	if err := checkVec("dsmem load", raw, vec); err != nil {
		return nil, err
	}
	vals, err := b.Unit.Backend.LoadDSmem(b, ptr, ctaID, raw, vec)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		vals[i] = b.Bitcast(v, ptr.elem)
	}
	return vals, nil
}

// StoreDSmem stores val to ptr in the group ctaID. A nil pred stores
// unconditionally.
func (b *Builder) StoreDSmem(ptr *GroupSharedPtr, ctaID, val, pred value.Value) error {
	return b.StoreDSmemVec(ptr, ctaID, []value.Value{val}, pred)
}

// StoreDSmemVec stores vals to consecutive elements at ptr in the group
// ctaID when pred holds. No branch is emitted: a false predicate masks the
// store.
func (b *Builder) StoreDSmemVec(ptr *GroupSharedPtr, ctaID value.Value, vals []value.Value, pred value.Value) error {
	raw, err := ptr.rawType("dsmem store")
	if err != nil {
		return err
	}
	if err := checkVec("dsmem store", raw, len(vals)); err != nil {
		return err
	}
	if pred == nil {
		pred = constant.True
	}
	rawVals := make([]value.Value, len(vals))
	for i, v := range vals {
		if !v.Type().Equal(ptr.elem) {
			return ir.Fatalf("dsmem store", ir.UnsupportedWidth, "storing %s through a pointer to %s", v.Type(), ptr.elem)
		}
		rawVals[i] = b.Bitcast(v, raw)
	}
	return b.Unit.Backend.StoreDSmem(b, ptr, ctaID, rawVals, pred)
}

// StoreShared stores val to ptr in the calling group's shared memory when
// pred holds. A nil pred stores unconditionally.
func (b *Builder) StoreShared(ptr *GroupSharedPtr, val, pred value.Value) error {
	raw, err := ptr.rawType("shared store")
	if err != nil {
		return err
	}
	if !val.Type().Equal(ptr.elem) {
		return ir.Fatalf("shared store", ir.UnsupportedWidth, "storing %s through a pointer to %s", val.Type(), ptr.elem)
	}
	if pred == nil {
		pred = constant.True
	}
	return b.Unit.Backend.StoreShared(b, ptr, b.Bitcast(val, raw), pred)
}
