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
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/ajroetker/simtgen/ir"
)

// AddString adds a NUL-terminated constant global holding content, named
// after key. If key is taken the first free name among key0, key1, ... is
// used. It returns an i8* to the first character and the chosen name.
func (u *Unit) AddString(key, content string) (value.Value, string, error) {
	if key == "" {
		return nil, "", ir.Fatalf("add string", ir.InvalidConfig, "empty symbol key")
	}
	name := u.Symbols.ReserveUnique(key)
	init := constant.NewCharArrayFromString(content + "\x00")
	g := u.Module.NewGlobalDef(name, init)
	g.Immutable = true
	g.Linkage = enum.LinkageInternal
	zero := constant.NewInt(types.I64, 0)
	ptr := constant.NewGetElementPtr(g.ContentType, g, zero, zero)
	return ptr, name, nil
}
