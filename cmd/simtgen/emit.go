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

package main

import (
	"fmt"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ajroetker/simtgen/layout"
	"github.com/ajroetker/simtgen/lower"
)

type emitFlags struct {
	backend string
	elem    string
	delta   int
	mode    string
	vec     int
	shape   string
	order   []int
	linear  int
}

func newEmitCmd(g *globalFlags) *cobra.Command {
	f := &emitFlags{}
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Print the LLVM IR of one lowering primitive for a backend",
	}
	cmd.PersistentFlags().StringVarP(&f.backend, "backend", "b", "nvptx", "target backend (see 'simtgen backends')")

	shuffle := &cobra.Command{
		Use:   "shuffle",
		Short: "Exchange a value across the lanes of a warp",
		Args:  cobra.NoArgs,
		RunE: f.kernel(g, func(b *lower.Builder, fn *llir.Func) error {
			t, err := f.elemType()
			if err != nil {
				return err
			}
			mode := lower.Butterfly
			switch f.mode {
			case "bfly":
			case "up":
				mode = lower.ShiftUp
			default:
				return errors.Errorf("unknown shuffle mode %q, want bfly or up", f.mode)
			}
			x := addParam(fn, "x", t)
			_, err = b.Shuffle(x, f.delta, mode)
			return err
		}),
	}
	shuffle.Flags().StringVar(&f.elem, "type", "f32", "element type of the shuffled value")
	shuffle.Flags().IntVar(&f.delta, "delta", 1, "lane distance")
	shuffle.Flags().StringVar(&f.mode, "mode", "bfly", "bfly (lane ^ delta) or up (lane - delta)")

	index := &cobra.Command{
		Use:   "index",
		Short: "Convert a linear index to a coordinate and back",
		Args:  cobra.NoArgs,
		RunE: f.kernel(g, func(b *lower.Builder, fn *llir.Func) error {
			shape, err := layout.ParseShape(f.shape)
			if err != nil {
				return err
			}
			order := layout.Order(f.order)
			if len(order) == 0 {
				order = layout.DefaultOrder(shape.Rank())
			}
			var linear value.Value = b.Unit.IndexConstant(int64(f.linear))
			if f.linear < 0 {
				linear = addParam(fn, "linear", b.Unit.IndexType)
			}
			coord, err := b.Delinearize(linear, shape, order)
			if err != nil {
				return err
			}
			_, err = b.Linearize(coord, shape, order)
			return err
		}),
	}
	index.Flags().StringVar(&f.shape, "shape", "4x8", "tensor shape, e.g. 4x8x2")
	index.Flags().IntSliceVar(&f.order, "order", nil, "dimension order, fastest first (default: last dimension fastest)")
	index.Flags().IntVar(&f.linear, "linear", -1, "constant linear index; negative for a runtime parameter")

	dsmem := &cobra.Command{
		Use:   "dsmem",
		Short: "Store to and load from the shared memory of another group in the cluster",
		Args:  cobra.NoArgs,
		RunE: f.kernel(g, func(b *lower.Builder, fn *llir.Func) error {
			t, err := f.elemType()
			if err != nil {
				return err
			}
			ptr, err := sharedParam(fn, t)
			if err != nil {
				return err
			}
			cta := addParam(fn, "cta", types.I32)
			pred := addParam(fn, "pred", types.I1)
			vals := make([]value.Value, f.vec)
			for i := range vals {
				vals[i] = addParam(fn, fmt.Sprintf("v%d", i), t)
			}
			if err := b.StoreDSmemVec(ptr, cta, vals, pred); err != nil {
				return err
			}
			_, err = b.LoadDSmemVec(ptr, cta, f.vec)
			return err
		}),
	}
	dsmem.Flags().StringVar(&f.elem, "type", "f32", "element type")
	dsmem.Flags().IntVar(&f.vec, "vec", 1, "elements per access (1, 2 or 4)")

	storeShared := &cobra.Command{
		Use:   "store-shared",
		Short: "Store to the calling group's shared memory under a predicate",
		Args:  cobra.NoArgs,
		RunE: f.kernel(g, func(b *lower.Builder, fn *llir.Func) error {
			t, err := f.elemType()
			if err != nil {
				return err
			}
			ptr, err := sharedParam(fn, t)
			if err != nil {
				return err
			}
			return b.StoreShared(ptr, addParam(fn, "val", t), addParam(fn, "pred", types.I1))
		}),
	}
	storeShared.Flags().StringVar(&f.elem, "type", "f32", "element type")

	laneID := &cobra.Command{
		Use:   "laneid",
		Short: "Read the index of the calling lane",
		Args:  cobra.NoArgs,
		RunE: f.kernel(g, func(b *lower.Builder, fn *llir.Func) error {
			_, err := b.LaneID()
			return err
		}),
	}

	cmd.AddCommand(shuffle, index, dsmem, storeShared, laneID)
	return cmd
}

// kernel returns a RunE that builds body into a fresh void function and
// prints the module.
func (f *emitFlags) kernel(g *globalFlags, body func(b *lower.Builder, fn *llir.Func) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		be, err := lower.GetBackend(f.backend)
		if err != nil {
			return err
		}
		u := lower.NewUnit(be)
		fn := u.Module.NewFunc(cmd.Name(), types.Void)
		b := u.NewBuilder(fn.NewBlock("entry"))
		if err := body(b, fn); err != nil {
			return err
		}
		b.Block.NewRet(nil)
		g.logger.Debug("emitted", "primitive", cmd.Name(), "backend", be.Name(), "instructions", len(b.Block.Insts))
		_, err = fmt.Fprintln(cmd.OutOrStdout(), u.Module.String())
		return err
	}
}

func (f *emitFlags) elemType() (types.Type, error) {
	e, err := layout.ParseElemType(f.elem)
	if err != nil {
		return nil, err
	}
	t, ok := lower.ElemLLVMType(e)
	if !ok {
		return nil, errors.Errorf("no LLVM type for %s", e)
	}
	return t, nil
}

func addParam(fn *llir.Func, name string, t types.Type) *llir.Param {
	p := llir.NewParam(name, t)
	fn.Params = append(fn.Params, p)
	fn.Sig.Params = append(fn.Sig.Params, t)
	return p
}

func sharedParam(fn *llir.Func, elem types.Type) (*lower.GroupSharedPtr, error) {
	pt := types.NewPointer(elem)
	pt.AddrSpace = 3
	return lower.NewGroupSharedPtr(addParam(fn, "ptr", pt))
}
