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

package layout

import (
	"github.com/pkg/errors"
)

// Encoded is the serialized form of a Layout, shared by every variant and
// discriminated by Kind.
type Encoded struct {
	Kind string `json:"kind"`

	SizePerThread  []int `json:"sizePerThread,omitempty"`
	ThreadsPerWarp []int `json:"threadsPerWarp,omitempty"`
	WarpsPerCTA    []int `json:"warpsPerCTA,omitempty"`
	Order          []int `json:"order,omitempty"`
	CTAsPerCGA     []int `json:"CTAsPerCGA,omitempty"`
	CTASplitNum    []int `json:"CTASplitNum,omitempty"`
	CTAOrder       []int `json:"CTAOrder,omitempty"`

	Version      int  `json:"version,omitempty"`
	NonKDim      int  `json:"nonKDim,omitempty"`
	KDim         int  `json:"kDim,omitempty"`
	IsTransposed bool `json:"isTransposed,omitempty"`

	OpIdx  int      `json:"opIdx,omitempty"`
	KWidth int      `json:"kWidth,omitempty"`
	Parent *Encoded `json:"parent,omitempty"`
}

// Encode converts a layout into its serialized form. A nil layout encodes
// to nil.
func Encode(l Layout) *Encoded {
	switch l := l.(type) {
	case *Blocked:
		return &Encoded{
			Kind:           KindBlocked.String(),
			SizePerThread:  l.SizePerThread,
			ThreadsPerWarp: l.ThreadsPerWarp,
			WarpsPerCTA:    l.WarpsPerCTA,
			Order:          l.Ord,
			CTAsPerCGA:     l.CTA.CTAsPerCGA,
			CTASplitNum:    l.CTA.CTASplitNum,
			CTAOrder:       l.CTA.CTAOrder,
		}
	case *MatrixCoreAccumulator:
		return &Encoded{
			Kind:         KindMatrixCoreAccumulator.String(),
			Version:      l.Version,
			NonKDim:      l.Instr.NonKDim,
			KDim:         l.Instr.KDim,
			WarpsPerCTA:  []int{l.Warps.M, l.Warps.N},
			IsTransposed: l.IsTransposed,
			CTAsPerCGA:   l.CTA.CTAsPerCGA,
			CTASplitNum:  l.CTA.CTASplitNum,
			CTAOrder:     l.CTA.CTAOrder,
		}
	case *MatrixCoreOperand:
		e := &Encoded{
			Kind:   KindMatrixCoreOperand.String(),
			OpIdx:  l.OpIdx,
			KWidth: l.KWidth,
		}
		if l.Parent != nil {
			e.Parent = Encode(l.Parent)
		}
		return e
	}
	return nil
}

// Decode rebuilds the layout of a tensor of the given rank. Missing CTA
// fields default to a single CTA.
func (e *Encoded) Decode(rank int) (Layout, error) {
	if e == nil {
		return nil, nil
	}
	cta, err := e.decodeCTA(rank)
	if err != nil {
		return nil, err
	}
	switch e.Kind {
	case KindBlocked.String():
		b := &Blocked{
			SizePerThread:  e.SizePerThread,
			ThreadsPerWarp: e.ThreadsPerWarp,
			WarpsPerCTA:    e.WarpsPerCTA,
			Ord:            e.Order,
			CTA:            cta,
		}
		if b.Ord == nil {
			b.Ord = DefaultOrder(rank)
		}
		for name, field := range map[string][]int{
			"sizePerThread":  b.SizePerThread,
			"threadsPerWarp": b.ThreadsPerWarp,
			"warpsPerCTA":    b.WarpsPerCTA,
		} {
			if len(field) != rank {
				return nil, errors.Errorf("blocked layout: %s has %d entries, want %d", name, len(field), rank)
			}
		}
		if err := b.Ord.Validate(rank); err != nil {
			return nil, errors.Wrap(err, "blocked layout")
		}
		return b, nil

	case KindMatrixCoreAccumulator.String():
		if len(e.WarpsPerCTA) != 2 {
			return nil, errors.Errorf("matrix_core layout: warpsPerCTA must have 2 entries, got %d", len(e.WarpsPerCTA))
		}
		return &MatrixCoreAccumulator{
			Version:      e.Version,
			Instr:        InstrShape{NonKDim: e.NonKDim, KDim: e.KDim},
			Warps:        WarpTile{M: e.WarpsPerCTA[0], N: e.WarpsPerCTA[1]},
			IsTransposed: e.IsTransposed,
			CTA:          cta,
		}, nil

	case KindMatrixCoreOperand.String():
		if e.Parent == nil {
			return nil, errors.New("dot_operand layout: missing parent")
		}
		parent, err := e.Parent.Decode(rank)
		if err != nil {
			return nil, errors.Wrap(err, "dot_operand parent")
		}
		acc, ok := parent.(*MatrixCoreAccumulator)
		if !ok {
			return nil, errors.Errorf("dot_operand layout: parent must be matrix_core, got %s", parent.Kind())
		}
		if e.OpIdx != 0 && e.OpIdx != 1 {
			return nil, errors.Errorf("dot_operand layout: opIdx %d out of range", e.OpIdx)
		}
		return &MatrixCoreOperand{OpIdx: e.OpIdx, Parent: acc, KWidth: e.KWidth}, nil
	}
	return nil, errors.Errorf("unknown layout kind %q", e.Kind)
}

func (e *Encoded) decodeCTA(rank int) (CTALayout, error) {
	cta := DefaultCTALayout(rank)
	if e.CTAsPerCGA != nil {
		cta.CTAsPerCGA = e.CTAsPerCGA
	}
	if e.CTASplitNum != nil {
		cta.CTASplitNum = e.CTASplitNum
	}
	if e.CTAOrder != nil {
		cta.CTAOrder = e.CTAOrder
	}
	if len(cta.CTAsPerCGA) != rank || len(cta.CTASplitNum) != rank {
		return CTALayout{}, errors.Errorf("CTA layout does not match rank %d", rank)
	}
	if err := cta.CTAOrder.Validate(rank); err != nil {
		return CTALayout{}, errors.Wrap(err, "CTA order")
	}
	return cta, nil
}
