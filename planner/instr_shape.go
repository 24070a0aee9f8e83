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

package planner

import (
	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
)

// instrKey identifies one matrix-core instruction family.
type instrKey struct {
	nonKDim int
	elem    layout.ElemType
	version int
}

// generationProfile lists the k dimension of every instruction of one
// hardware generation as {nonKDim=32, nonKDim=16}.
type generationProfile struct {
	version int
	kDims   map[layout.ElemType][2]int
}

// kDimRegistry maps (nonKDim, operand type, generation) to kDim.
var kDimRegistry map[instrKey]int

func init() {
	kDimRegistry = make(map[instrKey]int)
	for _, p := range []generationProfile{
		gen1Profile(),
		gen2Profile(),
		gen3Profile(),
	} {
		for elem, k := range p.kDims {
			kDimRegistry[instrKey{32, elem, p.version}] = k[0]
			kDimRegistry[instrKey{16, elem, p.version}] = k[1]
		}
	}
}

func gen1Profile() generationProfile {
	return generationProfile{version: 1, kDims: map[layout.ElemType][2]int{
		layout.Float32:  {2, 4},
		layout.Float16:  {8, 16},
		layout.BFloat16: {4, 8},
		layout.Int8:     {8, 16},
	}}
}

// gen2Profile doubles the bfloat16 k dimension.
func gen2Profile() generationProfile {
	return generationProfile{version: 2, kDims: map[layout.ElemType][2]int{
		layout.Float32:  {2, 4},
		layout.Float16:  {8, 16},
		layout.BFloat16: {8, 16},
		layout.Int8:     {8, 16},
	}}
}

// gen3Profile adds the 8-bit float instructions and doubles the int8 k
// dimension.
func gen3Profile() generationProfile {
	return generationProfile{version: 3, kDims: map[layout.ElemType][2]int{
		layout.Float32:        {2, 4},
		layout.Float16:        {8, 16},
		layout.BFloat16:       {8, 16},
		layout.Int8:           {16, 32},
		layout.Float8E4M3FNUZ: {16, 32},
		layout.Float8E5M2FNUZ: {16, 32},
	}}
}

// LookupKDim returns the k dimension of the instruction, if any.
func LookupKDim(nonKDim int, elem layout.ElemType, version int) (int, bool) {
	k, ok := kDimRegistry[instrKey{nonKDim, elem, version}]
	return k, ok
}

// SupportsElemType reports whether generation version has matrix-core
// instructions for operands of type elem.
func SupportsElemType(elem layout.ElemType, version int) bool {
	_, ok := LookupKDim(32, elem, version)
	return ok
}

// ChooseNonKDim returns enforced when non-zero, otherwise 16 if either
// output dimension is below 32 and 32 if not.
func ChooseNonKDim(resultShape layout.Shape, enforced int) int {
	if enforced != 0 {
		return enforced
	}
	if resultShape[0] < 32 || resultShape[1] < 32 {
		return 16
	}
	return 32
}

// ChooseInstructionShape picks the matrix-core instruction for a dot with
// operand type elem, a 2-D result of resultShape and a contraction of
// kSize elements. The result shape must be divisible by nonKDim and kSize
// by kDim.
func ChooseInstructionShape(elem layout.ElemType, resultShape layout.Shape, kSize, version, enforcedNonKDim int) (layout.InstrShape, error) {
	if resultShape.Rank() != 2 {
		return layout.InstrShape{}, ir.Fatalf("", ir.InvalidShape, "dot result must be 2-D, got %v", []int(resultShape))
	}
	nonKDim := ChooseNonKDim(resultShape, enforcedNonKDim)
	if nonKDim != 16 && nonKDim != 32 {
		return layout.InstrShape{}, ir.Fatalf("", ir.InvalidConfig, "unsupported matrix instruction size %d", nonKDim)
	}
	kDim, ok := LookupKDim(nonKDim, elem, version)
	if !ok {
		return layout.InstrShape{}, ir.Fatalf("", ir.MissingInstrShape,
			"no %dx%d matrix-core instruction for %s on generation %d", nonKDim, nonKDim, elem, version)
	}
	if resultShape[0]%nonKDim != 0 || resultShape[1]%nonKDim != 0 {
		return layout.InstrShape{}, ir.Fatalf("", ir.Divisibility,
			"result shape %s is not divisible by instruction size %d", resultShape, nonKDim)
	}
	if kSize%kDim != 0 {
		return layout.InstrShape{}, ir.Fatalf("", ir.Divisibility,
			"contraction size %d is not divisible by kDim %d", kSize, kDim)
	}
	return layout.InstrShape{NonKDim: nonKDim, KDim: kDim}, nil
}

// KWidth is the number of contiguous k elements each lane holds per
// instruction: kDim/2 for 32x32 instructions and kDim/4 for 16x16.
func KWidth(instr layout.InstrShape) (int, error) {
	switch instr.NonKDim {
	case 32:
		return instr.KDim / 2, nil
	case 16:
		return instr.KDim / 4, nil
	}
	return 0, ir.Fatalf("", ir.InvalidConfig, "unsupported matrix instruction size %d", instr.NonKDim)
}
