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
	"log/slog"
	"slices"
	"sort"

	"github.com/pkg/errors"
)

// Pattern rewrites a single op. Patterns are applied in Benefit order
// (higher first).
type Pattern struct {
	// Name identifies this pattern in logs.
	Name string

	// Benefit determines application order (higher = tried first).
	Benefit int

	// Root is the only op kind this pattern is offered.
	Root OpKind

	// MatchAndRewrite stages edits on rw. It returns ErrDecline (possibly
	// wrapped) when the op does not match; any other error is fatal. Edits
	// staged before an error are discarded.
	MatchAndRewrite func(op *Op, rw *Rewriter) error
}

// Rewriter stages the edits of one pattern application. Nothing touches
// the module until the driver commits the rewriter, which only happens
// when MatchAndRewrite returns nil.
type Rewriter struct {
	module *Module
	anchor *Op

	created      []*Op
	replacements map[*Value]*Value
	erased       []*Op
}

func newRewriter(m *Module, anchor *Op) *Rewriter {
	return &Rewriter{module: m, anchor: anchor, replacements: make(map[*Value]*Value)}
}

// Module returns the module being rewritten.
func (rw *Rewriter) Module() *Module { return rw.module }

// Create stages a new op, inserted right before the op being rewritten.
func (rw *Rewriter) Create(kind OpKind, operands []*Value, attrs Attrs, resultTypes ...TensorType) *Op {
	op := &Op{Kind: kind, Operands: slices.Clone(operands), Attrs: attrs, ID: -1}
	for i, t := range resultTypes {
		op.Results = append(op.Results, &Value{ID: -1, Type: t, Def: op, Index: i})
	}
	rw.created = append(rw.created, op)
	return op
}

// ConvertLayout stages a layout conversion of v to type t and returns the
// converted value.
func (rw *Rewriter) ConvertLayout(v *Value, t TensorType) *Value {
	return rw.Create(OpKindConvertLayout, []*Value{v}, Attrs{}, t).Result(0)
}

// ReplaceAllUses redirects every use of from to to.
func (rw *Rewriter) ReplaceAllUses(from, to *Value) {
	rw.replacements[from] = to
}

// Erase removes op. Its results must have been replaced or be unused.
func (rw *Rewriter) Erase(op *Op) {
	rw.erased = append(rw.erased, op)
}

// ReplaceOp replaces every result of op with the matching value and erases op.
func (rw *Rewriter) ReplaceOp(op *Op, values ...*Value) {
	for i, res := range op.Results {
		if i < len(values) {
			rw.ReplaceAllUses(res, values[i])
		}
	}
	rw.Erase(op)
}

// validate checks the staged edits without applying them.
func (rw *Rewriter) validate() error {
	if len(rw.created) == 0 && len(rw.replacements) == 0 && len(rw.erased) == 0 {
		return errors.New("pattern succeeded without staging any edit")
	}
	for from, to := range rw.replacements {
		if !from.Type.Shape.Equal(to.Type.Shape) || from.Type.Elem != to.Type.Elem {
			return errors.Errorf("replacing %s of type %s with %s of type %s", from, from.Type, to, to.Type)
		}
	}
	erased := make(map[*Op]bool, len(rw.erased))
	for _, op := range rw.erased {
		erased[op] = true
	}
	var dangling error
	rw.module.Walk(func(user *Op) bool {
		if erased[user] {
			return true
		}
		for _, operand := range user.Operands {
			if operand.Def != nil && erased[operand.Def] && rw.replacements[operand] == nil {
				dangling = errors.Errorf("%s still uses %s of erased %s", user, operand, operand.Def)
				return false
			}
		}
		return true
	})
	return dangling
}

// commit applies the staged edits. validate must have succeeded.
func (rw *Rewriter) commit() {
	m := rw.module
	region := rw.anchor.Parent
	for _, op := range rw.created {
		op.ID = m.nextOpID
		m.nextOpID++
		for _, res := range op.Results {
			res.ID = m.nextValueID
			m.nextValueID++
		}
		op.Parent = region
		m.AllOps[op.ID] = op
	}
	at := slices.Index(region.Ops, rw.anchor)
	region.Ops = slices.Insert(region.Ops, at, rw.created...)

	if len(rw.replacements) > 0 {
		m.Walk(func(op *Op) bool {
			for i, operand := range op.Operands {
				if to, ok := rw.replacements[operand]; ok {
					op.Operands[i] = to
				}
			}
			return true
		})
	}

	for _, op := range rw.erased {
		parent := op.Parent
		parent.Ops = slices.DeleteFunc(parent.Ops, func(o *Op) bool { return o == op })
		delete(m.AllOps, op.ID)
		op.erased = true
	}
}

// DriverOptions configures ApplyPatterns.
type DriverOptions struct {
	// MaxIterations bounds the number of sweeps over the module. Zero
	// means 10.
	MaxIterations int

	// Logger receives pattern applications and declines at debug level.
	// Nil means slog.Default().
	Logger *slog.Logger
}

// ApplyPatterns applies patterns greedily until no pattern matches any op.
// It returns the number of successful rewrites. If a pattern fails with a
// non-decline error, that error is returned and the failing application
// leaves the module untouched; earlier applications stay committed.
func ApplyPatterns(m *Module, patterns []Pattern, opts DriverOptions) (int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}

	sorted := slices.Clone(patterns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Benefit > sorted[j].Benefit
	})

	applied := 0
	for iter := 0; iter < maxIter; iter++ {
		var worklist []*Op
		m.Walk(func(op *Op) bool {
			worklist = append(worklist, op)
			return true
		})

		changed := false
		for _, op := range worklist {
			if op.erased {
				continue
			}
			for _, p := range sorted {
				if p.Root != op.Kind {
					continue
				}
				rw := newRewriter(m, op)
				err := p.MatchAndRewrite(op, rw)
				if IsDecline(err) {
					logger.Debug("pattern declined", "pattern", p.Name, "op", op.String(), "reason", err.Error())
					continue
				}
				if err != nil {
					return applied, WrapFatal(op.String(), MalformedRewrite, err)
				}
				if err := rw.validate(); err != nil {
					return applied, Fatalf(op.String(), MalformedRewrite, "pattern %s: %v", p.Name, err)
				}
				rw.commit()
				logger.Debug("pattern applied", "pattern", p.Name, "op", op.String(),
					"created", len(rw.created), "erased", len(rw.erased))
				applied++
				changed = true
				break
			}
		}
		if !changed {
			return applied, nil
		}
	}
	return applied, errors.Errorf("pattern application did not converge after %d iterations", maxIter)
}
