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
	"github.com/samber/lo"

	"github.com/ajroetker/simtgen/ir"
	"github.com/ajroetker/simtgen/layout"
)

// WarpTileGrowth returns every tile visited while growing {1,1} until it
// covers numWarps warps, first tile included. Dimension 0 is compared
// against a 64-row reference tile and dimension 1 against 32 columns; ties
// grow dimension 0.
func WarpTileGrowth(resultShape layout.Shape, numWarps int) []layout.WarpTile {
	tile := layout.WarpTile{M: 1, N: 1}
	steps := []layout.WarpTile{tile}
	for tile.Warps() < numWarps {
		if resultShape[0]/(64*tile.M) >= resultShape[1]/(32*tile.N) {
			if tile.M < resultShape[0]/32 {
				tile.M *= 2
			} else {
				tile.N *= 2
			}
		} else {
			tile.N *= 2
		}
		steps = append(steps, tile)
	}
	return steps
}

// ChooseWarpTile distributes numWarps over the output tile. A chained dot
// puts every warp on dimension 0. Otherwise the last tile of
// WarpTileGrowth is used, swapped when its dimension-1 extent overshoots
// the result.
func ChooseWarpTile(resultShape layout.Shape, numWarps int, isChained bool) layout.WarpTile {
	if isChained {
		return layout.WarpTile{M: numWarps, N: 1}
	}
	steps := WarpTileGrowth(resultShape, numWarps)
	tile := steps[len(steps)-1]
	if tile.N*32 > resultShape[1] {
		tile.M, tile.N = tile.N, tile.M
	}
	return tile
}

// IsChainDot reports whether dot feeds, or is fed by, another dot through
// ops of its own region.
func IsChainDot(m *ir.Module, dot *ir.Op) bool {
	slice := m.DependencySlice(dot, ir.SameRegion(dot.Parent))
	return lo.ContainsBy(slice, func(op *ir.Op) bool { return op.Kind == ir.OpKindDot })
}
