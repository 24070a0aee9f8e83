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
	"strconv"
	"sync"
)

// SymbolTable tracks the global names used by a compilation unit.
// It is safe for concurrent use.
type SymbolTable struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewSymbolTable returns a table holding the given names.
func NewSymbolTable(existing ...string) *SymbolTable {
	st := &SymbolTable{names: make(map[string]struct{}, len(existing))}
	for _, name := range existing {
		st.names[name] = struct{}{}
	}
	return st
}

// Contains reports whether name is taken.
func (st *SymbolTable) Contains(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.names[name]
	return ok
}

// Reserve claims name and reports whether it was free.
func (st *SymbolTable) Reserve(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.names[name]; ok {
		return false
	}
	st.names[name] = struct{}{}
	return true
}

// ReserveUnique claims the first free name among key0, key1, ... and
// returns it.
func (st *SymbolTable) ReserveUnique(key string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := 0; ; i++ {
		name := key + strconv.Itoa(i)
		if _, ok := st.names[name]; !ok {
			st.names[name] = struct{}{}
			return name
		}
	}
}

// Len returns the number of reserved names.
func (st *SymbolTable) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.names)
}
