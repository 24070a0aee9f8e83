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

package lanesim

import (
	"math/bits"
	"strconv"
	"strings"

	llir "github.com/llir/llvm/ir"
	"github.com/pkg/errors"
)

// asmState is the register file of one inline-assembly snippet, per lane.
type asmState struct {
	m    *Machine
	regs []map[string]uint64
}

func (m *Machine) inlineAsm(call *llir.InstCall, ia *llir.InlineAsm) error {
	constraints := strings.Split(ia.Constraint, ",")
	nOut := 0
	for _, c := range constraints {
		if strings.HasPrefix(c, "=") {
			nOut++
		}
	}
	if len(constraints)-nOut != len(call.Args) {
		return errors.Errorf("constraints %q bind %d inputs, call passes %d", ia.Constraint, len(constraints)-nOut, len(call.Args))
	}
	s := &asmState{m: m, regs: make([]map[string]uint64, m.WarpSize)}
	for lane := range s.regs {
		s.regs[lane] = make(map[string]uint64)
		for i, arg := range call.Args {
			v, err := m.scalar(arg, lane)
			if err != nil {
				return err
			}
			s.regs[lane]["$"+strconv.Itoa(nOut+i)] = v
		}
	}
	for _, line := range strings.Split(ia.Asm, "\n") {
		if err := s.exec(line); err != nil {
			return errors.WithMessagef(err, "asm %q", strings.TrimSpace(line))
		}
	}
	if nOut == 0 {
		return nil
	}
	outTypes := elemTypes(call.Type())
	if len(outTypes) != nOut {
		return errors.Errorf("call type %s does not hold %d outputs", call.Type(), nOut)
	}
	return m.perLane(call, func(lane int) ([]uint64, error) {
		out := make([]uint64, nOut)
		for i := range out {
			v, ok := s.regs[lane]["$"+strconv.Itoa(i)]
			if !ok {
				return nil, errors.Errorf("output $%d was never written", i)
			}
			out[i] = truncBits(v, scalarBits(outTypes[i]))
		}
		return out, nil
	})
}

// parseLine splits an assembly line into its predicate register, mnemonic
// and operands. Scope braces and register declarations yield an empty
// mnemonic.
func parseLine(line string) (pred, mnemonic string, ops []string) {
	line = strings.TrimSuffix(strings.TrimSpace(line), ";")
	if line == "" || line == "{" || line == "}" || strings.HasPrefix(line, ".reg") {
		return "", "", nil
	}
	if strings.HasPrefix(line, "@") {
		p, rest, _ := strings.Cut(line, " ")
		pred, line = p[1:], rest
	}
	line = strings.NewReplacer("{", " ", "}", " ", "[", " ", "]", " ", ",", " ").Replace(line)
	fields := strings.Fields(line)
	return pred, fields[0], fields[1:]
}

func (s *asmState) operand(lane int, tok string) (uint64, error) {
	if tok == "%laneid" {
		return uint64(lane), nil
	}
	if v, ok := s.regs[lane][tok]; ok {
		return v, nil
	}
	if strings.HasPrefix(tok, "$") {
		return 0, errors.Errorf("register %s read before it is written", tok)
	}
	v, err := strconv.ParseInt(tok, 0, 64)
	if err != nil {
		return 0, errors.Errorf("unknown operand %q", tok)
	}
	return uint64(v), nil
}

func (s *asmState) active(lane int, pred string) (bool, error) {
	if pred == "" {
		return true, nil
	}
	p, err := s.operand(lane, pred)
	return p&1 != 0, err
}

// assign computes f for every active lane against the current register
// file, then writes all results to dst.
func (s *asmState) assign(pred, dst string, f func(lane int) (uint64, error)) error {
	results := make([]uint64, len(s.regs))
	act := make([]bool, len(s.regs))
	for lane := range s.regs {
		ok, err := s.active(lane, pred)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if results[lane], err = f(lane); err != nil {
			return errors.WithMessagef(err, "lane %d", lane)
		}
		act[lane] = true
	}
	for lane, r := range results {
		if act[lane] {
			s.regs[lane][dst] = r
		}
	}
	return nil
}

// forLanes runs f in lane order for every active lane.
func (s *asmState) forLanes(pred string, f func(lane int) error) error {
	for lane := range s.regs {
		ok, err := s.active(lane, pred)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := f(lane); err != nil {
			return errors.WithMessagef(err, "lane %d", lane)
		}
	}
	return nil
}

// accessShape returns the vector count and element width of a PTX memory
// mnemonic such as "ld.shared::cluster.v2.u16".
func accessShape(parts []string) (vec, width int, err error) {
	vec = 1
	for _, p := range parts[2:] {
		if len(p) > 1 && p[0] == 'v' {
			if vec, err = strconv.Atoi(p[1:]); err != nil {
				return 0, 0, errors.Errorf("bad vector modifier %q", p)
			}
		}
	}
	last := parts[len(parts)-1]
	if width, err = strconv.Atoi(last[1:]); err != nil {
		return 0, 0, errors.Errorf("bad width modifier %q", last)
	}
	return vec, width, nil
}

func needOps(mnemonic string, ops []string, n int) error {
	if len(ops) < n {
		return errors.Errorf("%s needs %d operands, got %d", mnemonic, n, len(ops))
	}
	return nil
}

func (s *asmState) exec(line string) error {
	pred, mnemonic, ops := parseLine(line)
	if mnemonic == "" {
		return nil
	}
	warp := uint64(len(s.regs))
	parts := strings.Split(mnemonic, ".")
	switch {
	case mnemonic == "shfl.sync.bfly.b32" || mnemonic == "shfl.sync.up.b32":
		if err := needOps(mnemonic, ops, 3); err != nil {
			return err
		}
		up := parts[2] == "up"
		return s.assign(pred, ops[0], func(lane int) (uint64, error) {
			delta, err := s.operand(lane, ops[2])
			if err != nil {
				return 0, err
			}
			src := uint64(lane) ^ delta
			if up {
				src = uint64(lane) - delta
				if uint64(lane) < delta {
					src = uint64(lane)
				}
			}
			if src >= warp {
				src = uint64(lane)
			}
			return s.operand(int(src), ops[1])
		})

	case parts[0] == "mov":
		if err := needOps(mnemonic, ops, 2); err != nil {
			return err
		}
		return s.assign(pred, ops[0], func(lane int) (uint64, error) {
			return s.operand(lane, ops[1])
		})

	case parts[0] == "mapa":
		if err := needOps(mnemonic, ops, 3); err != nil {
			return err
		}
		return s.assign(pred, ops[0], func(lane int) (uint64, error) {
			addr, err := s.operand(lane, ops[1])
			if err != nil {
				return 0, err
			}
			cta, err := s.operand(lane, ops[2])
			return cta<<32 | truncBits(addr, 32), err
		})

	case parts[0] == "st" && len(parts) > 2 && (parts[1] == "shared" || parts[1] == "shared::cluster"):
		vec, width, err := accessShape(parts)
		if err != nil {
			return err
		}
		if err := needOps(mnemonic, ops, 1+vec); err != nil {
			return err
		}
		size := width / 8
		return s.forLanes(pred, func(lane int) error {
			addr, err := s.operand(lane, ops[0])
			if err != nil {
				return err
			}
			group := s.m.Group
			if parts[1] == "shared::cluster" {
				group = int(addr >> 32)
			}
			addr = truncBits(addr, 32)
			for i := 0; i < vec; i++ {
				v, err := s.operand(lane, ops[1+i])
				if err != nil {
					return err
				}
				if err := s.m.write(group, addr+uint64(i*size), size, v); err != nil {
					return err
				}
			}
			return nil
		})

	case parts[0] == "ld" && len(parts) > 2 && parts[1] == "shared::cluster":
		vec, width, err := accessShape(parts)
		if err != nil {
			return err
		}
		if err := needOps(mnemonic, ops, vec+1); err != nil {
			return err
		}
		size := width / 8
		for i := 0; i < vec; i++ {
			err := s.assign(pred, ops[i], func(lane int) (uint64, error) {
				remote, err := s.operand(lane, ops[vec])
				if err != nil {
					return 0, err
				}
				return s.m.read(int(remote>>32), truncBits(remote, 32)+uint64(i*size), size)
			})
			if err != nil {
				return err
			}
		}
		return nil

	case mnemonic == "ds_swizzle_b32":
		if err := needOps(mnemonic, ops, 3); err != nil {
			return err
		}
		off, err := strconv.ParseUint(strings.TrimPrefix(ops[2], "offset:"), 0, 16)
		if err != nil {
			return errors.Errorf("bad swizzle offset %q", ops[2])
		}
		if off&0x8000 != 0 {
			return errors.Errorf("swizzle offset %#x is not in bit-mask mode", off)
		}
		and, or, xor := off&0x1f, (off>>5)&0x1f, (off>>10)&0x1f
		return s.assign(pred, ops[0], func(lane int) (uint64, error) {
			l := uint64(lane)
			src := l&^31 | ((l&and|or)^xor)&31
			return s.operand(int(src), ops[1])
		})

	case mnemonic == "ds_bpermute_b32":
		if err := needOps(mnemonic, ops, 3); err != nil {
			return err
		}
		return s.assign(pred, ops[0], func(lane int) (uint64, error) {
			addr, err := s.operand(lane, ops[1])
			if err != nil {
				return 0, err
			}
			return s.operand(int((truncBits(addr, 32)>>2)%warp), ops[2])
		})

	case mnemonic == "ds_permute_b32":
		if err := needOps(mnemonic, ops, 3); err != nil {
			return err
		}
		pushed := make([]uint64, warp)
		err := s.forLanes(pred, func(lane int) error {
			addr, err := s.operand(lane, ops[1])
			if err != nil {
				return err
			}
			v, err := s.operand(lane, ops[2])
			pushed[(truncBits(addr, 32)>>2)%warp] = v
			return err
		})
		if err != nil {
			return err
		}
		return s.assign(pred, ops[0], func(lane int) (uint64, error) { return pushed[lane], nil })

	case mnemonic == "v_mbcnt_lo_u32_b32" || mnemonic == "v_mbcnt_hi_u32_b32":
		if err := needOps(mnemonic, ops, 3); err != nil {
			return err
		}
		hi := mnemonic == "v_mbcnt_hi_u32_b32"
		return s.assign(pred, ops[0], func(lane int) (uint64, error) {
			mask, err := s.operand(lane, ops[1])
			if err != nil {
				return 0, err
			}
			acc, err := s.operand(lane, ops[2])
			if err != nil {
				return 0, err
			}
			below := lane
			if hi {
				below -= 32
			}
			below = min(max(below, 0), 32)
			n := bits.OnesCount64(truncBits(mask, 32) & (1<<below - 1))
			return truncBits(acc+uint64(n), 32), nil
		})

	case mnemonic == "s_waitcnt":
		return nil
	}
	return errors.Errorf("unsupported instruction %q", mnemonic)
}
