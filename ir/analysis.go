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

// Users returns the live ops that take v as an operand, in walk order.
func (m *Module) Users(v *Value) []*Op {
	var users []*Op
	m.Walk(func(op *Op) bool {
		for _, operand := range op.Operands {
			if operand == v {
				users = append(users, op)
				break
			}
		}
		return true
	})
	return users
}

// SliceFilter decides whether an op may be entered during a slice walk.
type SliceFilter func(op *Op) bool

// SameRegion admits only ops whose parent region is r.
func SameRegion(r *Region) SliceFilter {
	return func(op *Op) bool { return op.Parent == r }
}

// BackwardSlice returns the ops that root transitively depends on through
// its operands, restricted by filter. Root itself is not included.
func (m *Module) BackwardSlice(root *Op, filter SliceFilter) []*Op {
	var slice []*Op
	visited := map[int]bool{root.ID: true}
	worklist := []*Op{root}
	for len(worklist) > 0 {
		op := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, operand := range op.Operands {
			def := operand.Def
			if def == nil || visited[def.ID] || def.erased {
				continue
			}
			visited[def.ID] = true
			if filter != nil && !filter(def) {
				continue
			}
			slice = append(slice, def)
			worklist = append(worklist, def)
		}
	}
	return slice
}

// ForwardSlice returns the ops that transitively use a result of root,
// restricted by filter. Root itself is not included.
func (m *Module) ForwardSlice(root *Op, filter SliceFilter) []*Op {
	users := m.userIndex()
	var slice []*Op
	visited := map[int]bool{root.ID: true}
	worklist := []*Op{root}
	for len(worklist) > 0 {
		op := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, res := range op.Results {
			for _, user := range users[res] {
				if visited[user.ID] {
					continue
				}
				visited[user.ID] = true
				if filter != nil && !filter(user) {
					continue
				}
				slice = append(slice, user)
				worklist = append(worklist, user)
			}
		}
	}
	return slice
}

// DependencySlice is the union of the backward and forward slices of root.
func (m *Module) DependencySlice(root *Op, filter SliceFilter) []*Op {
	return append(m.BackwardSlice(root, filter), m.ForwardSlice(root, filter)...)
}

// userIndex maps every value to the live ops using it.
func (m *Module) userIndex() map[*Value][]*Op {
	users := make(map[*Value][]*Op)
	m.Walk(func(op *Op) bool {
		for _, operand := range op.Operands {
			if n := len(users[operand]); n > 0 && users[operand][n-1] == op {
				continue
			}
			users[operand] = append(users[operand], op)
		}
		return true
	})
	return users
}
