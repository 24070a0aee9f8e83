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

// Package lower emits the LLVM IR that realizes distributed layouts on a
// SIMT target: index arithmetic, shared-memory descriptors, cross-lane
// shuffles, distributed shared-memory access and lane identity. Emission
// targets one backend family at a time through the Backend interface.
package lower

import (
	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/ajroetker/simtgen/ir"
)

// Unit is one LLVM module being emitted for a backend.
type Unit struct {
	Module  *llir.Module
	Symbols *ir.SymbolTable
	Backend Backend

	// IndexType is the integer type of index constants (i32 unless the
	// target uses 64-bit indices).
	IndexType *types.IntType

	decls map[string]*llir.Func
}

// NewUnit creates an empty module for backend.
func NewUnit(backend Backend) *Unit {
	return NewUnitForModule(llir.NewModule(), backend)
}

// NewUnitForModule wraps an existing module. Every global and function
// name already in m is reserved in the unit's symbol table.
func NewUnitForModule(m *llir.Module, backend Backend) *Unit {
	var names []string
	for _, g := range m.Globals {
		names = append(names, g.Name())
	}
	decls := make(map[string]*llir.Func)
	for _, f := range m.Funcs {
		names = append(names, f.Name())
		decls[f.Name()] = f
	}
	return &Unit{
		Module:    m,
		Symbols:   ir.NewSymbolTable(names...),
		Backend:   backend,
		IndexType: types.I32,
		decls:     decls,
	}
}

// declare returns the function declaration name, creating it on first use.
func (u *Unit) declare(name string, ret types.Type, params ...types.Type) *llir.Func {
	if f, ok := u.decls[name]; ok {
		return f
	}
	ps := make([]*llir.Param, len(params))
	for i, t := range params {
		ps[i] = llir.NewParam("", t)
	}
	f := u.Module.NewFunc(name, ret, ps...)
	u.decls[name] = f
	u.Symbols.Reserve(name)
	return f
}

// Builder appends instructions to a block of a unit.
type Builder struct {
	Unit  *Unit
	Block *llir.Block
}

// NewBuilder returns a builder appending to block.
func (u *Unit) NewBuilder(block *llir.Block) *Builder {
	return &Builder{Unit: u, Block: block}
}
