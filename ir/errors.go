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
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// ErrDecline is returned by a pattern that does not apply to an op. It is
// not a failure: the driver moves on to the next pattern or op.
var ErrDecline = stderrors.New("pattern declined")

// Declinef returns an ErrDecline carrying a reason for debug logs.
func Declinef(format string, args ...any) error {
	return errors.Wrapf(ErrDecline, format, args...)
}

// IsDecline reports whether err is (or wraps) ErrDecline.
func IsDecline(err error) bool {
	return stderrors.Is(err, ErrDecline)
}

// Invariant names the rule a fatal error violates.
type Invariant string

const (
	MalformedAggregate        Invariant = "MalformedAggregate"
	Divisibility              Invariant = "Divisibility"
	MissingInstrShape         Invariant = "MissingInstrShape"
	NotGroupShared            Invariant = "NotGroupShared"
	UnsupportedWidth          Invariant = "UnsupportedWidth"
	UnsupportedBackendFeature Invariant = "UnsupportedBackendFeature"
	InvalidConfig             Invariant = "InvalidConfig"
	InvalidShape              Invariant = "InvalidShape"
	MalformedRewrite          Invariant = "MalformedRewrite"
)

// FatalError aborts compilation of the enclosing unit.
type FatalError struct {
	// Op names the operation or primitive that failed, e.g. "dot#4".
	Op        string
	Invariant Invariant
	Err       error
}

func (e *FatalError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Invariant, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Invariant, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Is matches another *FatalError with the same invariant, so callers can
// test errors.Is(err, &ir.FatalError{Invariant: ir.Divisibility}).
func (e *FatalError) Is(target error) bool {
	t, ok := target.(*FatalError)
	return ok && t.Invariant == e.Invariant && (t.Op == "" || t.Op == e.Op)
}

// Fatalf builds a FatalError. An empty op is filled in by WrapFatal
// further up the call chain. The message is formatted with pkg/errors so
// that it records a stack trace.
func Fatalf(op string, inv Invariant, format string, args ...any) error {
	return &FatalError{Op: op, Invariant: inv, Err: errors.Errorf(format, args...)}
}

// WrapFatal attaches op and inv to err. A *FatalError that already names an
// op is returned as is.
func WrapFatal(op string, inv Invariant, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if stderrors.As(err, &fe) {
		if fe.Op == "" {
			return &FatalError{Op: op, Invariant: fe.Invariant, Err: fe.Err}
		}
		return err
	}
	return &FatalError{Op: op, Invariant: inv, Err: errors.WithStack(err)}
}

// InvariantOf returns the invariant of the first FatalError in err's chain.
func InvariantOf(err error) (Invariant, bool) {
	var fe *FatalError
	if stderrors.As(err, &fe) {
		return fe.Invariant, true
	}
	return "", false
}
