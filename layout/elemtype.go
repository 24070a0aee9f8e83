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

// Package layout describes how tensors are distributed over the lanes and
// warps of a SIMT accelerator: element types, shapes, traversal orders, the
// generic blocked layout and the matrix-core layouts the planner assigns.
package layout

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ElemType is the scalar element type of a tensor.
type ElemType int

const (
	// Invalid is the zero value and never names a real type.
	Invalid ElemType = iota
	Int1
	Int8
	Int16
	Int32
	Int64
	Float16
	BFloat16
	Float32
	Float64

	// Float8E4M3FNUZ and Float8E5M2FNUZ are the 8-bit float formats with no
	// negative zero and a single NaN encoding.
	Float8E4M3FNUZ
	Float8E5M2FNUZ

	// Float8E4M3FN and Float8E5M2 are the OCP 8-bit float formats.
	Float8E4M3FN
	Float8E5M2
)

var elemTypeNames = map[ElemType]string{
	Int1:           "i1",
	Int8:           "i8",
	Int16:          "i16",
	Int32:          "i32",
	Int64:          "i64",
	Float16:        "f16",
	BFloat16:       "bf16",
	Float32:        "f32",
	Float64:        "f64",
	Float8E4M3FNUZ: "f8E4M3FNUZ",
	Float8E5M2FNUZ: "f8E5M2FNUZ",
	Float8E4M3FN:   "f8E4M3FN",
	Float8E5M2:     "f8E5M2",
}

// elemTypeAliases accepts the Go spellings in addition to the short names.
var elemTypeAliases = map[string]ElemType{
	"bool":     Int1,
	"int8":     Int8,
	"int16":    Int16,
	"int32":    Int32,
	"int64":    Int64,
	"float16":  Float16,
	"bfloat16": BFloat16,
	"float32":  Float32,
	"float64":  Float64,
}

// String returns the short name of the type ("f16", "bf16", "i8", ...).
func (t ElemType) String() string {
	if name, ok := elemTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ElemType(%d)", int(t))
}

// ParseElemType parses a short name or a Go spelling of an element type.
// Matching is case-insensitive.
func ParseElemType(s string) (ElemType, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	for t, name := range elemTypeNames {
		if strings.ToLower(name) == lower {
			return t, nil
		}
	}
	if t, ok := elemTypeAliases[lower]; ok {
		return t, nil
	}
	return Invalid, errors.Errorf("unknown element type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t ElemType) MarshalText() ([]byte, error) {
	if _, ok := elemTypeNames[t]; !ok {
		return nil, errors.Errorf("cannot marshal element type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ElemType) UnmarshalText(text []byte) error {
	parsed, err := ParseElemType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// BitWidth returns the storage width of one element in bits.
func (t ElemType) BitWidth() int {
	switch t {
	case Int1:
		return 1
	case Int8, Float8E4M3FNUZ, Float8E5M2FNUZ, Float8E4M3FN, Float8E5M2:
		return 8
	case Int16, Float16, BFloat16:
		return 16
	case Int32, Float32:
		return 32
	case Int64, Float64:
		return 64
	default:
		return 0
	}
}

// IsFloat reports whether t is a floating-point type, 8-bit formats included.
func (t ElemType) IsFloat() bool {
	switch t {
	case Float16, BFloat16, Float32, Float64:
		return true
	}
	return IsF8(t)
}

// IsInt reports whether t is an integer type.
func (t ElemType) IsInt() bool {
	switch t {
	case Int1, Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

// IsF8 reports whether t is one of the four 8-bit float formats.
func IsF8(t ElemType) bool {
	switch t {
	case Float8E4M3FNUZ, Float8E5M2FNUZ, Float8E4M3FN, Float8E5M2:
		return true
	}
	return false
}
