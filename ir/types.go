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

// Package ir is the operation graph rewritten by the matmul layout planner.
// Operations live in regions, produce typed tensor values and are indexed
// by ID in their Module so that analyses and the rewrite driver can refer
// to them without walking the tree.
package ir

import (
	"fmt"
	"slices"

	"github.com/ajroetker/simtgen/layout"
)

// OpKind is the closed set of operation kinds the planner distinguishes.
type OpKind int

const (
	// OpKindDot is a matrix multiply-accumulate: D = A*B + C.
	OpKindDot OpKind = iota

	// OpKindConvertLayout changes the layout of a tensor without changing
	// its shape or element type.
	OpKindConvertLayout

	// OpKindLoad reads a tensor from memory.
	OpKindLoad

	// OpKindStore writes a tensor to memory. It produces no results.
	OpKindStore

	// OpKindElementwise is any element-by-element computation.
	OpKindElementwise

	// OpKindConstant materializes a splat or dense constant.
	OpKindConstant

	// OpKindFor is a structured loop. Its body is its single region.
	OpKindFor

	// OpKindYield terminates a region and forwards values to the parent.
	OpKindYield
)

var opKindNames = []string{
	OpKindDot:           "dot",
	OpKindConvertLayout: "convert_layout",
	OpKindLoad:          "load",
	OpKindStore:         "store",
	OpKindElementwise:   "elementwise",
	OpKindConstant:      "constant",
	OpKindFor:           "for",
	OpKindYield:         "yield",
}

// String returns the textual name of the OpKind.
func (k OpKind) String() string {
	if int(k) >= 0 && int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// ParseOpKind is the inverse of OpKind.String.
func ParseOpKind(s string) (OpKind, bool) {
	i := slices.Index(opKindNames, s)
	return OpKind(i), i >= 0
}

// TensorType is the type of a tensor value.
type TensorType struct {
	Shape layout.Shape
	Elem  layout.ElemType

	// Encoding is the distribution of the tensor over lanes; nil for
	// values that are not distributed (scalars, pointers).
	Encoding layout.Layout
}

// WithEncoding returns a copy of t with a different layout.
func (t TensorType) WithEncoding(l layout.Layout) TensorType {
	t.Encoding = l
	return t
}

// Equal reports whether both types have the same shape, element type and
// layout.
func (t TensorType) Equal(other TensorType) bool {
	return t.Elem == other.Elem && t.Shape.Equal(other.Shape) && layout.Equal(t.Encoding, other.Encoding)
}

func (t TensorType) String() string {
	s := fmt.Sprintf("tensor<%sx%s", t.Shape, t.Elem)
	if t.Encoding != nil {
		s += ", " + t.Encoding.String()
	}
	return s + ">"
}

// Value is an SSA value: either the result of an Op or an argument of a
// Region.
type Value struct {
	// ID is unique within the Module.
	ID int

	// Name is an optional label carried over from the source program.
	Name string
	Type TensorType

	// Def is the defining operation, nil for region arguments.
	Def *Op

	// Index is the result number in Def, or the argument number in Owner.
	Index int

	// Owner is the region declaring this value as an argument.
	Owner *Region
}

// Region returns the region in which the value becomes visible.
func (v *Value) Region() *Region {
	if v.Def != nil {
		return v.Def.Parent
	}
	return v.Owner
}

func (v *Value) String() string {
	if v.Name != "" {
		return "%" + v.Name
	}
	return fmt.Sprintf("%%%d", v.ID)
}

// Attrs are the attributes the planner reads or carries over.
type Attrs struct {
	// AllowTF32 permits reduced-precision accumulation on a dot.
	AllowTF32 bool

	// InstrSize overrides the pass-level matrix instruction size (16 or 32)
	// for this dot. Zero means no override.
	InstrSize int
}

// Op is a single operation.
type Op struct {
	// ID is unique within the Module and stable across rewrites.
	ID       int
	Kind     OpKind
	Operands []*Value
	Results  []*Value
	Attrs    Attrs

	// Parent is the region containing this op.
	Parent *Region

	// Regions are nested bodies (the body of OpKindFor).
	Regions []*Region

	erased bool
}

// Result returns result i.
func (op *Op) Result(i int) *Value { return op.Results[i] }

// Erased reports whether the op has been removed from its module.
func (op *Op) Erased() bool { return op.erased }

func (op *Op) String() string {
	return fmt.Sprintf("%s#%d", op.Kind, op.ID)
}

// Region is an ordered list of operations with optional arguments.
type Region struct {
	ID       int
	ParentOp *Op
	Args     []*Value
	Ops      []*Op
}

// Module is a compilation unit: the top-level region plus the facts the
// planner needs about the target.
type Module struct {
	Name string

	// NumWarps is the compile-time warp count of every kernel in the module.
	NumWarps int

	// WarpSize is the number of lanes per warp (32 or 64).
	WarpSize int

	Symbols *SymbolTable
	Body    *Region

	// AllOps indexes every live op by ID.
	AllOps map[int]*Op

	nextOpID     int
	nextValueID  int
	nextRegionID int
}

// NewModule creates an empty module.
func NewModule(name string, numWarps, warpSize int) *Module {
	m := &Module{
		Name:     name,
		NumWarps: numWarps,
		WarpSize: warpSize,
		Symbols:  NewSymbolTable(),
		AllOps:   make(map[int]*Op),
	}
	m.Body = m.NewRegion(nil)
	return m
}

// NewRegion allocates a region owned by parent (nil for the module body).
func (m *Module) NewRegion(parent *Op) *Region {
	r := &Region{ID: m.nextRegionID, ParentOp: parent}
	m.nextRegionID++
	if parent != nil {
		parent.Regions = append(parent.Regions, r)
	}
	return r
}

// AddArg declares a new argument of region r.
func (m *Module) AddArg(r *Region, name string, t TensorType) *Value {
	v := m.newValue(name, t)
	v.Owner = r
	v.Index = len(r.Args)
	r.Args = append(r.Args, v)
	return v
}

// Append creates an op at the end of region r.
func (m *Module) Append(r *Region, kind OpKind, operands []*Value, attrs Attrs, resultTypes ...TensorType) *Op {
	op := m.newOp(kind, operands, attrs, resultTypes)
	op.Parent = r
	r.Ops = append(r.Ops, op)
	m.AllOps[op.ID] = op
	return op
}

func (m *Module) newOp(kind OpKind, operands []*Value, attrs Attrs, resultTypes []TensorType) *Op {
	op := &Op{
		ID:       m.nextOpID,
		Kind:     kind,
		Operands: slices.Clone(operands),
		Attrs:    attrs,
	}
	m.nextOpID++
	for i, t := range resultTypes {
		v := m.newValue("", t)
		v.Def = op
		v.Index = i
		op.Results = append(op.Results, v)
	}
	return op
}

func (m *Module) newValue(name string, t TensorType) *Value {
	v := &Value{ID: m.nextValueID, Name: name, Type: t}
	m.nextValueID++
	return v
}

// Walk visits every live op in pre-order, nested regions after their
// parent op. Returning false from fn stops the walk.
func (m *Module) Walk(fn func(op *Op) bool) {
	walkRegion(m.Body, fn)
}

func walkRegion(r *Region, fn func(op *Op) bool) bool {
	for _, op := range r.Ops {
		if !fn(op) {
			return false
		}
		for _, sub := range op.Regions {
			if !walkRegion(sub, fn) {
				return false
			}
		}
	}
	return true
}

// Ops returns every live op of the given kind in walk order.
func (m *Module) Ops(kind OpKind) []*Op {
	var ops []*Op
	m.Walk(func(op *Op) bool {
		if op.Kind == kind {
			ops = append(ops, op)
		}
		return true
	})
	return ops
}
