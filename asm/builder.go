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

// Package asm builds inline-assembly snippets and launches them into LLVM
// IR. A Builder collects instructions over numbered operands: outputs are
// numbered first ($0, $1, ...), then register inputs, in creation order.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
)

// Dialect selects the textual conventions of the target assembler.
type Dialect int

const (
	// PTX terminates instructions with ';' and joins modifiers with '.'.
	PTX Dialect = iota

	// GCN has no terminator and appends modifiers after the operands.
	GCN
)

func (d Dialect) String() string {
	switch d {
	case PTX:
		return "ptx"
	case GCN:
		return "gcn"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

type operandKind int

const (
	operandOutput operandKind = iota
	operandInput
	operandImm
	operandAddr
	operandList
)

// Operand is one operand of an instruction.
type Operand struct {
	kind       operandKind
	constraint string
	value      value.Value
	text       string
	inner      []*Operand
}

// Builder accumulates the instructions of one inline-assembly snippet.
type Builder struct {
	dialect Dialect
	outputs []*Operand
	inputs  []*Operand
	lines   []*Instr
}

// NewBuilder returns an empty builder for the dialect.
func NewBuilder(d Dialect) *Builder {
	return &Builder{dialect: d}
}

// Dialect returns the builder's dialect.
func (b *Builder) Dialect() Dialect { return b.dialect }

// NewOutput declares an output register with a constraint such as "=r".
func (b *Builder) NewOutput(constraint string) *Operand {
	if !strings.HasPrefix(constraint, "=") {
		constraint = "=" + constraint
	}
	op := &Operand{kind: operandOutput, constraint: constraint}
	b.outputs = append(b.outputs, op)
	return op
}

// NewOperand declares a register input bound to v.
func (b *Builder) NewOperand(v value.Value, constraint string) *Operand {
	op := &Operand{kind: operandInput, constraint: constraint, value: v}
	b.inputs = append(b.inputs, op)
	return op
}

// NewImm returns an immediate rendered verbatim.
func (b *Builder) NewImm(text string) *Operand {
	return &Operand{kind: operandImm, text: text}
}

// NewImmInt returns a decimal immediate.
func (b *Builder) NewImmInt(v int64) *Operand {
	return b.NewImm(strconv.FormatInt(v, 10))
}

// NewAddr wraps op in an address expression "[op]".
func (b *Builder) NewAddr(op *Operand) *Operand {
	return &Operand{kind: operandAddr, inner: []*Operand{op}}
}

// NewList groups operands as "{a, b, ...}", as used by vector loads and
// stores.
func (b *Builder) NewList(ops ...*Operand) *Operand {
	return &Operand{kind: operandList, inner: ops}
}

// Instr is a single instruction of a snippet.
type Instr struct {
	b         *Builder
	raw       string
	mnemonic  string
	mods      []string
	operands  []*Operand
	pred      *Operand
	modifiers []string
}

// Create appends an instruction with the given mnemonic. Operands are
// attached with Call.
func (b *Builder) Create(mnemonic string) *Instr {
	in := &Instr{b: b, mnemonic: mnemonic}
	b.lines = append(b.lines, in)
	return in
}

// Raw appends a line emitted verbatim, e.g. a scope brace or a register
// declaration.
func (b *Builder) Raw(line string) {
	b.lines = append(b.lines, &Instr{b: b, raw: line})
}

// O appends a ".mod" suffix to the mnemonic when every cond holds.
func (in *Instr) O(mod string, cond ...bool) *Instr {
	for _, c := range cond {
		if !c {
			return in
		}
	}
	in.mods = append(in.mods, mod)
	return in
}

// Call sets the operands of the instruction.
func (in *Instr) Call(ops ...*Operand) *Instr {
	in.operands = ops
	return in
}

// Predicate guards the instruction with "@p" (PTX only).
func (in *Instr) Predicate(p *Operand) *Instr {
	in.pred = p
	return in
}

// Modifier appends a trailing modifier such as "offset:0x401F" (GCN).
func (in *Instr) Modifier(text string) *Instr {
	in.modifiers = append(in.modifiers, text)
	return in
}

func (b *Builder) index(op *Operand) int {
	switch op.kind {
	case operandOutput:
		for i, o := range b.outputs {
			if o == op {
				return i
			}
		}
	case operandInput:
		for i, o := range b.inputs {
			if o == op {
				return len(b.outputs) + i
			}
		}
	}
	return -1
}

func (b *Builder) render(op *Operand) string {
	switch op.kind {
	case operandOutput, operandInput:
		return "$" + strconv.Itoa(b.index(op))
	case operandImm:
		return op.text
	case operandAddr:
		return "[" + b.render(op.inner[0]) + "]"
	case operandList:
		parts := make([]string, len(op.inner))
		for i, o := range op.inner {
			parts[i] = b.render(o)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "?"
}

func (in *Instr) String() string {
	if in.raw != "" {
		return in.raw
	}
	var sb strings.Builder
	if in.pred != nil {
		sb.WriteString("@" + in.b.render(in.pred) + " ")
	}
	sb.WriteString(in.mnemonic)
	for _, m := range in.mods {
		sb.WriteString("." + m)
	}
	if len(in.operands) > 0 {
		sb.WriteByte(' ')
		for i, op := range in.operands {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(in.b.render(op))
		}
	}
	for _, m := range in.modifiers {
		sb.WriteString(" " + m)
	}
	if in.b.dialect == PTX {
		sb.WriteByte(';')
	}
	return sb.String()
}

// Dump returns the assembly text, one instruction per line.
func (b *Builder) Dump() string {
	lines := make([]string, len(b.lines))
	for i, in := range b.lines {
		lines[i] = in.String()
	}
	return strings.Join(lines, "\n")
}

// Constraints returns the comma-separated constraint string: outputs
// first, then register inputs.
func (b *Builder) Constraints() string {
	var cs []string
	for _, o := range b.outputs {
		cs = append(cs, o.constraint)
	}
	for _, o := range b.inputs {
		cs = append(cs, o.constraint)
	}
	return strings.Join(cs, ",")
}

// NumOutputs returns the number of declared outputs.
func (b *Builder) NumOutputs() int { return len(b.outputs) }

// Launch emits the snippet as an inline-assembly call at the end of block.
// retType is the type of the single output, a struct of all outputs, or
// void when there are none.
func (b *Builder) Launch(block *ir.Block, retType types.Type, sideEffect bool) (*ir.InstCall, error) {
	if len(b.lines) == 0 {
		return nil, errors.New("launching an empty inline-assembly snippet")
	}
	switch {
	case len(b.outputs) == 0 && !retType.Equal(types.Void):
		return nil, errors.Errorf("snippet without outputs must return void, got %s", retType)
	case len(b.outputs) > 1:
		st, ok := retType.(*types.StructType)
		if !ok || len(st.Fields) != len(b.outputs) {
			return nil, errors.Errorf("snippet with %d outputs must return a struct of %d fields, got %s",
				len(b.outputs), len(b.outputs), retType)
		}
	}
	params := make([]types.Type, len(b.inputs))
	args := make([]value.Value, len(b.inputs))
	for i, in := range b.inputs {
		params[i] = in.value.Type()
		args[i] = in.value
	}
	sig := types.NewFunc(retType, params...)
	inline := ir.NewInlineAsm(types.NewPointer(sig), b.Dump(), b.Constraints())
	inline.SideEffect = sideEffect
	return block.NewCall(inline, args...), nil
}
