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

package ir

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/ajroetker/simtgen/layout"
)

// ProgramJSON is the on-disk form of a Module.
type ProgramJSON struct {
	Name     string      `json:"name"`
	NumWarps int         `json:"numWarps"`
	WarpSize int         `json:"warpSize,omitempty"`
	Args     []ValueJSON `json:"args,omitempty"`
	Ops      []OpJSON    `json:"ops"`
}

// ValueJSON names a value and gives its type.
type ValueJSON struct {
	Name string   `json:"name"`
	Type TypeJSON `json:"type"`
}

// TypeJSON is a tensor type. A layout of {"kind": "blocked"} with no other
// fields stands for the default blocked layout of the shape.
type TypeJSON struct {
	Shape  []int           `json:"shape"`
	Elem   layout.ElemType `json:"elem"`
	Layout *layout.Encoded `json:"layout,omitempty"`
}

// OpJSON is one operation. Operands refer to values by name.
type OpJSON struct {
	Kind      string       `json:"kind"`
	Operands  []string     `json:"operands,omitempty"`
	Results   []ValueJSON  `json:"results,omitempty"`
	AllowTF32 bool         `json:"allowTF32,omitempty"`
	InstrSize int          `json:"instrSize,omitempty"`
	Regions   []RegionJSON `json:"regions,omitempty"`
}

// RegionJSON is a nested region.
type RegionJSON struct {
	Args []ValueJSON `json:"args,omitempty"`
	Ops  []OpJSON    `json:"ops"`
}

// ReadProgram loads a module from a JSON file.
func ReadProgram(filename string) (*Module, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading program file")
	}
	return ParseProgram(data)
}

// ParseProgram builds a module from its JSON form.
func ParseProgram(data []byte) (*Module, error) {
	var pj ProgramJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, errors.Wrap(err, "parsing program JSON")
	}
	return pj.Build()
}

// Build converts the JSON form into a Module.
func (pj *ProgramJSON) Build() (*Module, error) {
	if pj.NumWarps <= 0 {
		return nil, errors.Errorf("program %q: numWarps must be positive, got %d", pj.Name, pj.NumWarps)
	}
	warpSize := pj.WarpSize
	if warpSize == 0 {
		warpSize = 64
	}
	m := NewModule(pj.Name, pj.NumWarps, warpSize)
	l := &loader{m: m, values: make(map[string]*Value)}
	if err := l.region(m.Body, RegionJSON{Args: pj.Args, Ops: pj.Ops}); err != nil {
		return nil, errors.Wrapf(err, "program %q", pj.Name)
	}
	return m, nil
}

type loader struct {
	m      *Module
	values map[string]*Value
}

func (l *loader) region(r *Region, rj RegionJSON) error {
	for _, a := range rj.Args {
		t, err := l.tensorType(a.Type)
		if err != nil {
			return errors.Wrapf(err, "argument %q", a.Name)
		}
		if err := l.define(a.Name, l.m.AddArg(r, a.Name, t)); err != nil {
			return err
		}
	}
	for i, oj := range rj.Ops {
		if err := l.op(r, oj); err != nil {
			return errors.Wrapf(err, "op %d (%s)", i, oj.Kind)
		}
	}
	return nil
}

func (l *loader) op(r *Region, oj OpJSON) error {
	kind, ok := ParseOpKind(oj.Kind)
	if !ok {
		return errors.Errorf("unknown op kind %q", oj.Kind)
	}
	operands := make([]*Value, len(oj.Operands))
	for i, name := range oj.Operands {
		v, ok := l.values[name]
		if !ok {
			return errors.Errorf("operand %q is not defined", name)
		}
		operands[i] = v
	}
	types := make([]TensorType, len(oj.Results))
	for i, res := range oj.Results {
		t, err := l.tensorType(res.Type)
		if err != nil {
			return errors.Wrapf(err, "result %q", res.Name)
		}
		types[i] = t
	}
	if kind == OpKindDot && (len(operands) != 3 || len(types) != 1) {
		return errors.Errorf("dot takes 3 operands and 1 result, got %d and %d", len(operands), len(types))
	}
	op := l.m.Append(r, kind, operands, Attrs{AllowTF32: oj.AllowTF32, InstrSize: oj.InstrSize}, types...)
	for i, res := range oj.Results {
		op.Results[i].Name = res.Name
		if err := l.define(res.Name, op.Results[i]); err != nil {
			return err
		}
	}
	for _, rj := range oj.Regions {
		if err := l.region(l.m.NewRegion(op), rj); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) define(name string, v *Value) error {
	if name == "" {
		return nil
	}
	if _, dup := l.values[name]; dup {
		return errors.Errorf("value %q defined twice", name)
	}
	l.values[name] = v
	return nil
}

func (l *loader) tensorType(tj TypeJSON) (TensorType, error) {
	shape := layout.Shape(tj.Shape)
	if err := shape.Validate(); err != nil {
		return TensorType{}, err
	}
	if tj.Elem == layout.Invalid {
		return TensorType{}, errors.New("missing element type")
	}
	t := TensorType{Shape: shape, Elem: tj.Elem}
	if tj.Layout == nil {
		return t, nil
	}
	if tj.Layout.Kind == layout.KindBlocked.String() && tj.Layout.SizePerThread == nil {
		t.Encoding = layout.NewBlocked(shape, l.m.WarpSize, l.m.NumWarps)
		return t, nil
	}
	enc, err := tj.Layout.Decode(shape.Rank())
	if err != nil {
		return TensorType{}, err
	}
	t.Encoding = enc
	return t, nil
}

// WriteProgram writes m as indented JSON.
func WriteProgram(w io.Writer, m *Module) error {
	data, err := json.MarshalIndent(Export(m), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling program")
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// Export converts m into its JSON form. Unnamed values get the name
// "v<ID>".
func Export(m *Module) *ProgramJSON {
	rj := exportRegion(m.Body)
	return &ProgramJSON{
		Name:     m.Name,
		NumWarps: m.NumWarps,
		WarpSize: m.WarpSize,
		Args:     rj.Args,
		Ops:      rj.Ops,
	}
}

func exportRegion(r *Region) RegionJSON {
	rj := RegionJSON{Ops: []OpJSON{}}
	for _, a := range r.Args {
		rj.Args = append(rj.Args, exportValue(a))
	}
	for _, op := range r.Ops {
		oj := OpJSON{
			Kind:      op.Kind.String(),
			AllowTF32: op.Attrs.AllowTF32,
			InstrSize: op.Attrs.InstrSize,
		}
		for _, v := range op.Operands {
			oj.Operands = append(oj.Operands, valueName(v))
		}
		for _, v := range op.Results {
			oj.Results = append(oj.Results, exportValue(v))
		}
		for _, sub := range op.Regions {
			oj.Regions = append(oj.Regions, exportRegion(sub))
		}
		rj.Ops = append(rj.Ops, oj)
	}
	return rj
}

func exportValue(v *Value) ValueJSON {
	return ValueJSON{
		Name: valueName(v),
		Type: TypeJSON{Shape: v.Type.Shape, Elem: v.Type.Elem, Layout: layout.Encode(v.Type.Encoding)},
	}
}

func valueName(v *Value) string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("v%d", v.ID)
}
