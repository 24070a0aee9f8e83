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
	"github.com/llir/llvm/ir/types"

	"github.com/ajroetker/simtgen/layout"
)

// groupSharedAddrSpace is the LLVM address space of group-shared memory.
const groupSharedAddrSpace = types.AddrSpace(3)

func intType(width int) (*types.IntType, bool) {
	switch width {
	case 1:
		return types.I1, true
	case 8:
		return types.I8, true
	case 16:
		return types.I16, true
	case 32:
		return types.I32, true
	case 64:
		return types.I64, true
	}
	return nil, false
}

// bitWidth returns the width of a scalar or vector type in bits.
func bitWidth(t types.Type) (int, bool) {
	switch t := t.(type) {
	case *types.IntType:
		return int(t.BitSize), true
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindHalf:
			return 16, true
		case types.FloatKindFloat:
			return 32, true
		case types.FloatKindDouble:
			return 64, true
		}
	case *types.VectorType:
		if w, ok := bitWidth(t.ElemType); ok {
			return w * int(t.Len), true
		}
	}
	return 0, false
}

// ElemLLVMType returns the LLVM type holding one element of e. Formats
// without a native LLVM type (bfloat16, 8-bit floats) are stored as
// integers of the same width.
func ElemLLVMType(e layout.ElemType) (types.Type, bool) {
	switch e {
	case layout.Float16:
		return types.Half, true
	case layout.Float32:
		return types.Float, true
	case layout.Float64:
		return types.Double, true
	case layout.Invalid:
		return nil, false
	}
	t, ok := intType(e.BitWidth())
	return t, ok
}
