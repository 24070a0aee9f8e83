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

package lanesim

import (
	"github.com/llir/llvm/ir/types"
	"github.com/pkg/errors"
)

// scalarBits returns the width of a scalar type. Pointers are 32-bit
// shared-memory addresses.
func scalarBits(t types.Type) int {
	switch t := t.(type) {
	case *types.IntType:
		return int(t.BitSize)
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindHalf:
			return 16
		case types.FloatKindDouble:
			return 64
		}
		return 32
	case *types.PointerType:
		return 32
	}
	return 64
}

// elemTypes returns the scalar types of the flattened elements of t.
func elemTypes(t types.Type) []types.Type {
	switch t := t.(type) {
	case *types.VectorType:
		out := make([]types.Type, t.Len)
		for i := range out {
			out[i] = t.ElemType
		}
		return out
	case *types.ArrayType:
		out := make([]types.Type, t.Len)
		for i := range out {
			out[i] = t.ElemType
		}
		return out
	case *types.StructType:
		return t.Fields
	}
	return []types.Type{t}
}

func flatLen(t types.Type) int { return len(elemTypes(t)) }

func truncBits(v uint64, w int) uint64 {
	if w >= 64 {
		return v
	}
	return v & (1<<w - 1)
}

func signExtend(v uint64, w int) uint64 {
	if w >= 64 || w == 0 {
		return v
	}
	if v&(1<<(w-1)) != 0 {
		return v | ^uint64(0)<<w
	}
	return v
}

// sizeOf returns the storage size of t in bytes.
func sizeOf(t types.Type) (int, error) {
	total := 0
	for _, e := range elemTypes(t) {
		switch e.(type) {
		case *types.IntType, *types.FloatType, *types.PointerType:
			total += (scalarBits(e) + 7) / 8
		default:
			return 0, errors.Errorf("no storage size for %s", t)
		}
	}
	return total, nil
}

// reinterpret reads the bits of elems laid out as from as a value of type
// to. Element 0 holds the least significant bits.
func reinterpret(elems []uint64, from, to types.Type) ([]uint64, error) {
	if _, ok := from.(*types.PointerType); ok {
		if _, ok := to.(*types.PointerType); ok {
			return elems, nil
		}
	}
	fromTypes, toTypes := elemTypes(from), elemTypes(to)
	var bits uint64
	shift := 0
	for i, t := range fromTypes {
		w := scalarBits(t)
		bits |= truncBits(elems[i], w) << shift
		shift += w
	}
	if shift > 64 {
		return nil, errors.Errorf("bitcast of %d bits from %s is not supported", shift, from)
	}
	out := make([]uint64, len(toTypes))
	toShift := 0
	for i, t := range toTypes {
		w := scalarBits(t)
		out[i] = truncBits(bits>>toShift, w)
		toShift += w
	}
	if toShift != shift {
		return nil, errors.Errorf("bitcast from %s (%d bits) to %s (%d bits)", from, shift, to, toShift)
	}
	return out, nil
}

func (m *Machine) memory(group int) ([]byte, error) {
	if group < 0 || group >= len(m.Shared) {
		return nil, errors.Errorf("group %d outside a cluster of %d", group, len(m.Shared))
	}
	return m.Shared[group], nil
}

// write stores the low size bytes of v little-endian at addr of group.
func (m *Machine) write(group int, addr uint64, size int, v uint64) error {
	mem, err := m.memory(group)
	if err != nil {
		return err
	}
	if addr+uint64(size) > uint64(len(mem)) {
		return errors.Errorf("store of %d bytes at %#x outside %d bytes of shared memory", size, addr, len(mem))
	}
	for i := 0; i < size; i++ {
		mem[addr+uint64(i)] = byte(v >> (8 * i))
	}
	return nil
}

func (m *Machine) read(group int, addr uint64, size int) (uint64, error) {
	mem, err := m.memory(group)
	if err != nil {
		return 0, err
	}
	if addr+uint64(size) > uint64(len(mem)) {
		return 0, errors.Errorf("load of %d bytes at %#x outside %d bytes of shared memory", size, addr, len(mem))
	}
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(mem[addr+uint64(i)]) << (8 * i)
	}
	return v, nil
}

func (m *Machine) loadFlat(group int, addr uint64, t types.Type) ([]uint64, error) {
	ts := elemTypes(t)
	out := make([]uint64, len(ts))
	for i, e := range ts {
		size, err := sizeOf(e)
		if err != nil {
			return nil, err
		}
		v, err := m.read(group, addr, size)
		if err != nil {
			return nil, err
		}
		out[i] = truncBits(v, scalarBits(e))
		addr += uint64(size)
	}
	return out, nil
}

func (m *Machine) storeFlat(group int, addr uint64, t types.Type, elems []uint64) error {
	for i, e := range elemTypes(t) {
		size, err := sizeOf(e)
		if err != nil {
			return err
		}
		if err := m.write(group, addr, size, elems[i]); err != nil {
			return err
		}
		addr += uint64(size)
	}
	return nil
}

// Load reads a value of type t at addr of group's shared memory.
func (m *Machine) Load(group int, addr uint64, t types.Type) ([]uint64, error) {
	return m.loadFlat(group, addr, t)
}

// Store writes the flattened elems of type t at addr of group's shared
// memory.
func (m *Machine) Store(group int, addr uint64, t types.Type, elems []uint64) error {
	return m.storeFlat(group, addr, t, elems)
}
