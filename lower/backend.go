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
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/pkg/errors"

	"github.com/ajroetker/simtgen/asm"
)

// Backend emits the target-specific instructions of one hardware family.
// Values passed to Shuffle32 are i32; width handling happens in Builder.
type Backend interface {
	// Name is the registry key, e.g. "nvptx".
	Name() string
	Dialect() asm.Dialect

	// WarpSize is the number of lanes exchanging data in a shuffle.
	WarpSize() int

	Shuffle32(b *Builder, v value.Value, delta int, mode ShuffleMode) (value.Value, error)
	LaneID(b *Builder) (value.Value, error)

	// StoreShared writes val (an integer of its storage width) to ptr when
	// pred holds, without branching.
	StoreShared(b *Builder, ptr *GroupSharedPtr, val, pred value.Value) error

	// LoadDSmem loads vec raw integers of type raw from ptr in the group
	// ctaID.
	LoadDSmem(b *Builder, ptr *GroupSharedPtr, ctaID value.Value, raw *types.IntType, vec int) ([]value.Value, error)

	// StoreDSmem stores raw integers to ptr in the group ctaID when pred
	// holds.
	StoreDSmem(b *Builder, ptr *GroupSharedPtr, ctaID value.Value, vals []value.Value, pred value.Value) error
}

var (
	backendMu       sync.RWMutex
	backendRegistry = map[string]Backend{}
)

func init() {
	RegisterBackend(NVPTX{})
	RegisterBackend(AMDGCN{WaveSize: 64})
}

// RegisterBackend makes b available to GetBackend under b.Name(),
// replacing any previous registration.
func RegisterBackend(b Backend) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendRegistry[b.Name()] = b
}

// GetBackend returns the backend registered under name.
func GetBackend(name string) (Backend, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if b, ok := backendRegistry[strings.ToLower(name)]; ok {
		return b, nil
	}
	return nil, errors.Errorf("unknown backend: %s (valid: %s)", name, strings.Join(backendNamesLocked(), ", "))
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendNamesLocked()
}

func backendNamesLocked() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ShuffleMode selects the lane each lane reads from.
type ShuffleMode int

const (
	// Butterfly reads from lane ^ delta.
	Butterfly ShuffleMode = iota

	// ShiftUp reads from lane - delta; lanes below delta keep their value.
	ShiftUp
)

func (m ShuffleMode) String() string {
	switch m {
	case Butterfly:
		return "bfly"
	case ShiftUp:
		return "up"
	default:
		return fmt.Sprintf("ShuffleMode(%d)", int(m))
	}
}
