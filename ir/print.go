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
	"fmt"
	"io"
	"strings"
)

// Print writes a textual dump of m, one op per line.
func Print(w io.Writer, m *Module) error {
	p := &printer{w: w}
	p.printf("module @%s attributes {numWarps = %d, warpSize = %d} {\n", m.Name, m.NumWarps, m.WarpSize)
	p.region(m.Body, 1)
	p.printf("}\n")
	return p.err
}

// String returns the textual dump of m.
func (m *Module) String() string {
	var sb strings.Builder
	_ = Print(&sb, m)
	return sb.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) region(r *Region, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, a := range r.Args {
		p.printf("%s^arg %s : %s\n", indent, a, a.Type)
	}
	for _, op := range r.Ops {
		p.printf("%s", indent)
		if len(op.Results) > 0 {
			names := make([]string, len(op.Results))
			for i, res := range op.Results {
				names[i] = res.String()
			}
			p.printf("%s = ", strings.Join(names, ", "))
		}
		operands := make([]string, len(op.Operands))
		for i, v := range op.Operands {
			operands[i] = v.String()
		}
		p.printf("%s %s", op.Kind, strings.Join(operands, ", "))
		var attrs []string
		if op.Attrs.AllowTF32 {
			attrs = append(attrs, "allowTF32")
		}
		if op.Attrs.InstrSize != 0 {
			attrs = append(attrs, fmt.Sprintf("instrSize = %d", op.Attrs.InstrSize))
		}
		if len(attrs) > 0 {
			p.printf(" {%s}", strings.Join(attrs, ", "))
		}
		if len(op.Results) > 0 {
			p.printf(" : %s", op.Results[0].Type)
		}
		if len(op.Regions) == 0 {
			p.printf("\n")
			continue
		}
		p.printf(" {\n")
		for _, sub := range op.Regions {
			p.region(sub, depth+1)
		}
		p.printf("%s}\n", indent)
	}
}
