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

// Package lanesim interprets the straight-line LLVM IR emitted by package
// lower, one warp at a time, with every lane executing each instruction in
// lockstep. Inline assembly is interpreted for the snippets the nvptx and
// amdgcn backends produce, so cross-lane exchanges and predicated stores can
// be checked by their effect rather than by their text.
package lanesim

import (
	"math"
	"math/big"
	"slices"
	"strings"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Machine is one warp of a group inside a cluster of groups, each with its
// own shared memory.
type Machine struct {
	WarpSize int

	// Group is the index of the group the warp runs in.
	Group int

	// Shared holds the shared memory of every group in the cluster.
	Shared [][]byte

	// vals holds, per value, the flattened elements seen by each lane.
	vals map[value.Value][][]uint64
}

// New returns a machine with groups groups of sharedBytes bytes each. The
// simulated warp runs in group 0.
func New(warpSize, groups, sharedBytes int) *Machine {
	shared := make([][]byte, groups)
	for i := range shared {
		shared[i] = make([]byte, sharedBytes)
	}
	return &Machine{
		WarpSize: warpSize,
		Shared:   shared,
		vals:     make(map[value.Value][][]uint64),
	}
}

// Bind sets the value of a parameter in every lane to f(lane).
func (m *Machine) Bind(p *llir.Param, f func(lane int) uint64) {
	per := make([][]uint64, m.WarpSize)
	w := scalarBits(p.Typ)
	for lane := range per {
		per[lane] = []uint64{truncBits(f(lane), w)}
	}
	m.vals[p] = per
}

// BindUniform sets the value of a parameter to v in every lane.
func (m *Machine) BindUniform(p *llir.Param, v uint64) {
	m.Bind(p, func(int) uint64 { return v })
}

// Run executes the entry block of fn. Terminators are ignored; branching
// code is rejected.
func (m *Machine) Run(fn *llir.Func) error {
	if len(fn.Blocks) == 0 {
		return errors.Errorf("function %s has no body", fn.Name())
	}
	if len(fn.Blocks) > 1 {
		return errors.Errorf("function %s has %d blocks, only straight-line code is supported", fn.Name(), len(fn.Blocks))
	}
	for _, inst := range fn.Blocks[0].Insts {
		if err := m.exec(inst); err != nil {
			return errors.WithMessagef(err, "executing %s", inst.LLString())
		}
	}
	return nil
}

// Value returns the scalar value of v seen by lane.
func (m *Machine) Value(v value.Value, lane int) (uint64, error) {
	elems, err := m.Elems(v, lane)
	if err != nil {
		return 0, err
	}
	if len(elems) != 1 {
		return 0, errors.Errorf("%s is not a scalar", v.Type())
	}
	return elems[0], nil
}

// Elems returns the flattened elements of v (vector lanes or struct
// fields) seen by lane.
func (m *Machine) Elems(v value.Value, lane int) ([]uint64, error) {
	if lane < 0 || lane >= m.WarpSize {
		return nil, errors.Errorf("lane %d outside a warp of %d", lane, m.WarpSize)
	}
	return m.eval(v, lane)
}

func (m *Machine) eval(v value.Value, lane int) ([]uint64, error) {
	switch c := v.(type) {
	case *constant.Int:
		return []uint64{intBits(c.X, c.Typ.BitSize)}, nil
	case *constant.Float:
		bits, err := floatBits(c)
		return []uint64{bits}, err
	case *constant.Undef:
		return make([]uint64, flatLen(c.Typ)), nil
	case *constant.ZeroInitializer:
		return make([]uint64, flatLen(c.Typ)), nil
	}
	per, ok := m.vals[v]
	if !ok {
		return nil, errors.Errorf("value %s has not been computed", v.Ident())
	}
	return per[lane], nil
}

func (m *Machine) scalar(v value.Value, lane int) (uint64, error) {
	elems, err := m.eval(v, lane)
	if err != nil {
		return 0, err
	}
	if len(elems) == 0 {
		return 0, errors.Errorf("%s has no elements", v.Ident())
	}
	return elems[0], nil
}

// perLane evaluates f for each lane and records the result as inst.
func (m *Machine) perLane(inst value.Value, f func(lane int) ([]uint64, error)) error {
	per := make([][]uint64, m.WarpSize)
	for lane := range per {
		r, err := f(lane)
		if err != nil {
			return errors.WithMessagef(err, "lane %d", lane)
		}
		per[lane] = r
	}
	m.vals[inst] = per
	return nil
}

// binary records an integer binary instruction.
func (m *Machine) binary(inst value.Value, x, y value.Value, op func(a, b uint64) (uint64, error)) error {
	w := scalarBits(inst.Type())
	return m.perLane(inst, func(lane int) ([]uint64, error) {
		a, err := m.scalar(x, lane)
		if err != nil {
			return nil, err
		}
		b, err := m.scalar(y, lane)
		if err != nil {
			return nil, err
		}
		r, err := op(a, b)
		return []uint64{truncBits(r, w)}, err
	})
}

// unary records an instruction computing one flattened value from another.
func (m *Machine) unary(inst value.Value, x value.Value, op func(elems []uint64) ([]uint64, error)) error {
	return m.perLane(inst, func(lane int) ([]uint64, error) {
		elems, err := m.eval(x, lane)
		if err != nil {
			return nil, err
		}
		return op(slices.Clone(elems))
	})
}

func (m *Machine) exec(inst llir.Instruction) error {
	switch in := inst.(type) {
	case *llir.InstAdd:
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) { return a + b, nil })
	case *llir.InstSub:
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) { return a - b, nil })
	case *llir.InstMul:
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) { return a * b, nil })
	case *llir.InstUDiv:
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, errors.New("division by zero")
			}
			return a / b, nil
		})
	case *llir.InstURem:
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, errors.New("division by zero")
			}
			return a % b, nil
		})
	case *llir.InstShl:
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) { return a << b, nil })
	case *llir.InstXor:
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) { return a ^ b, nil })
	case *llir.InstAnd:
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) { return a & b, nil })
	case *llir.InstOr:
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) { return a | b, nil })
	case *llir.InstICmp:
		w := scalarBits(in.X.Type())
		return m.binary(in, in.X, in.Y, func(a, b uint64) (uint64, error) {
			return icmp(in.Pred, a, b, w)
		})

	case *llir.InstSelect:
		return m.perLane(in, func(lane int) ([]uint64, error) {
			c, err := m.scalar(in.Cond, lane)
			if err != nil {
				return nil, err
			}
			if c&1 != 0 {
				return m.eval(in.ValueTrue, lane)
			}
			return m.eval(in.ValueFalse, lane)
		})

	case *llir.InstBitCast:
		from, to := in.From.Type(), in.To
		return m.unary(in, in.From, func(elems []uint64) ([]uint64, error) {
			return reinterpret(elems, from, to)
		})
	case *llir.InstTrunc:
		w := scalarBits(in.To)
		return m.unary(in, in.From, func(e []uint64) ([]uint64, error) {
			return []uint64{truncBits(e[0], w)}, nil
		})
	case *llir.InstZExt:
		return m.unary(in, in.From, func(e []uint64) ([]uint64, error) { return e, nil })
	case *llir.InstSExt:
		from, to := scalarBits(in.From.Type()), scalarBits(in.To)
		return m.unary(in, in.From, func(e []uint64) ([]uint64, error) {
			return []uint64{truncBits(signExtend(e[0], from), to)}, nil
		})

	case *llir.InstExtractElement:
		return m.perLane(in, func(lane int) ([]uint64, error) {
			vec, err := m.eval(in.X, lane)
			if err != nil {
				return nil, err
			}
			i, err := m.index(in.Index, lane, len(vec))
			if err != nil {
				return nil, err
			}
			return []uint64{vec[i]}, nil
		})
	case *llir.InstInsertElement:
		return m.perLane(in, func(lane int) ([]uint64, error) {
			vec, err := m.eval(in.X, lane)
			if err != nil {
				return nil, err
			}
			elem, err := m.scalar(in.Elem, lane)
			if err != nil {
				return nil, err
			}
			i, err := m.index(in.Index, lane, len(vec))
			if err != nil {
				return nil, err
			}
			vec = slices.Clone(vec)
			vec[i] = elem
			return vec, nil
		})
	case *llir.InstExtractValue:
		if len(in.Indices) != 1 {
			return errors.Errorf("nested extractvalue is not supported")
		}
		i := int(in.Indices[0])
		return m.unary(in, in.X, func(e []uint64) ([]uint64, error) {
			if i >= len(e) {
				return nil, errors.Errorf("field %d of %d", i, len(e))
			}
			return []uint64{e[i]}, nil
		})
	case *llir.InstInsertValue:
		if len(in.Indices) != 1 {
			return errors.Errorf("nested insertvalue is not supported")
		}
		i := int(in.Indices[0])
		return m.perLane(in, func(lane int) ([]uint64, error) {
			agg, err := m.eval(in.X, lane)
			if err != nil {
				return nil, err
			}
			elem, err := m.scalar(in.Elem, lane)
			if err != nil {
				return nil, err
			}
			if i >= len(agg) {
				return nil, errors.Errorf("field %d of %d", i, len(agg))
			}
			agg = slices.Clone(agg)
			agg[i] = elem
			return agg, nil
		})

	case *llir.InstGetElementPtr:
		return m.perLane(in, func(lane int) ([]uint64, error) {
			return m.gep(in.ElemType, in.Src, in.Indices, lane)
		})
	case *llir.InstLoad:
		return m.perLane(in, func(lane int) ([]uint64, error) {
			addr, err := m.sharedAddr(in.Src, lane)
			if err != nil {
				return nil, err
			}
			return m.loadFlat(m.Group, addr, in.ElemType)
		})
	case *llir.InstStore:
		for lane := 0; lane < m.WarpSize; lane++ {
			addr, err := m.sharedAddr(in.Dst, lane)
			if err != nil {
				return err
			}
			elems, err := m.eval(in.Src, lane)
			if err != nil {
				return err
			}
			if err := m.storeFlat(m.Group, addr, in.Src.Type(), elems); err != nil {
				return err
			}
		}
		return nil

	case *llir.InstCall:
		return m.call(in)
	}
	return errors.Errorf("unsupported instruction %T", inst)
}

func (m *Machine) index(v value.Value, lane, n int) (int, error) {
	i, err := m.scalar(v, lane)
	if err != nil {
		return 0, err
	}
	if i >= uint64(n) {
		return 0, errors.Errorf("index %d out of %d", i, n)
	}
	return int(i), nil
}

func (m *Machine) gep(elemType types.Type, src value.Value, indices []value.Value, lane int) ([]uint64, error) {
	addr, err := m.scalar(src, lane)
	if err != nil {
		return nil, err
	}
	t := elemType
	for i, idx := range indices {
		if i > 0 {
			switch at := t.(type) {
			case *types.ArrayType:
				t = at.ElemType
			case *types.VectorType:
				t = at.ElemType
			default:
				return nil, errors.Errorf("cannot index into %s", t)
			}
		}
		raw, err := m.scalar(idx, lane)
		if err != nil {
			return nil, err
		}
		size, err := sizeOf(t)
		if err != nil {
			return nil, err
		}
		off := int64(signExtend(raw, scalarBits(idx.Type()))) * int64(size)
		addr = uint64(int64(addr) + off)
	}
	return []uint64{truncBits(addr, 32)}, nil
}

// sharedAddr returns the address held by a pointer into the calling
// group's shared memory.
func (m *Machine) sharedAddr(ptr value.Value, lane int) (uint64, error) {
	pt, ok := ptr.Type().(*types.PointerType)
	if !ok || pt.AddrSpace != 3 {
		return 0, errors.Errorf("only group-shared pointers can be dereferenced, got %s", ptr.Type())
	}
	return m.scalar(ptr, lane)
}

func (m *Machine) call(in *llir.InstCall) error {
	switch callee := in.Callee.(type) {
	case *llir.InlineAsm:
		return m.inlineAsm(in, callee)
	case *llir.Func:
		if strings.HasPrefix(callee.Name(), "llvm.masked.store.") {
			return m.maskedStore(in)
		}
		return errors.Errorf("call to unknown function %s", callee.Name())
	}
	return errors.Errorf("unsupported callee %T", in.Callee)
}

func (m *Machine) maskedStore(in *llir.InstCall) error {
	if len(in.Args) != 4 {
		return errors.Errorf("llvm.masked.store takes 4 arguments, got %d", len(in.Args))
	}
	val, ptr, mask := in.Args[0], in.Args[1], in.Args[3]
	for lane := 0; lane < m.WarpSize; lane++ {
		masks, err := m.eval(mask, lane)
		if err != nil {
			return err
		}
		elems, err := m.eval(val, lane)
		if err != nil {
			return err
		}
		addr, err := m.sharedAddr(ptr, lane)
		if err != nil {
			return err
		}
		vt, ok := val.Type().(*types.VectorType)
		if !ok {
			return errors.Errorf("masked store of non-vector %s", val.Type())
		}
		size, err := sizeOf(vt.ElemType)
		if err != nil {
			return err
		}
		for i, e := range elems {
			if masks[i]&1 == 0 {
				continue
			}
			if err := m.write(m.Group, addr+uint64(i*size), size, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func icmp(pred enum.IPred, a, b uint64, w int) (uint64, error) {
	sa, sb := int64(signExtend(a, w)), int64(signExtend(b, w))
	var r bool
	switch pred {
	case enum.IPredEQ:
		r = a == b
	case enum.IPredNE:
		r = a != b
	case enum.IPredULT:
		r = a < b
	case enum.IPredULE:
		r = a <= b
	case enum.IPredUGT:
		r = a > b
	case enum.IPredUGE:
		r = a >= b
	case enum.IPredSLT:
		r = sa < sb
	case enum.IPredSLE:
		r = sa <= sb
	case enum.IPredSGT:
		r = sa > sb
	case enum.IPredSGE:
		r = sa >= sb
	default:
		return 0, errors.Errorf("unsupported predicate %v", pred)
	}
	if r {
		return 1, nil
	}
	return 0, nil
}

func intBits(x *big.Int, w uint64) uint64 {
	mask := new(big.Int).Lsh(big.NewInt(1), uint(w))
	mask.Sub(mask, big.NewInt(1))
	return new(big.Int).And(x, mask).Uint64()
}

func floatBits(c *constant.Float) (uint64, error) {
	f, _ := c.X.Float64()
	switch c.Typ.Kind {
	case types.FloatKindHalf:
		return uint64(float16.Fromfloat32(float32(f)).Bits()), nil
	case types.FloatKindFloat:
		return uint64(math.Float32bits(float32(f))), nil
	case types.FloatKindDouble:
		return math.Float64bits(f), nil
	}
	return 0, errors.Errorf("unsupported float kind %s", c.Typ)
}
