// Copyright 2026 fanjia1024
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

package errors

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil, msg) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrap(err, "context")
	if wrapped == nil {
		t.Fatal("Wrap(err, msg) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
	if wrapped.Error() != "context: base" {
		t.Errorf("message: got %q", wrapped.Error())
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "format %s", "x") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
	wrapped := Wrapf(ErrNotFound, "instruction %q", "foo")
	if !Is(wrapped, ErrNotFound) {
		t.Error("wrapped error should unwrap to ErrNotFound")
	}
}

func TestInvalidf(t *testing.T) {
	err := Invalidf("unknown tool call: %s", "call_1")
	if !errors.Is(err, ErrInvalidArg) {
		t.Error("Invalidf should wrap ErrInvalidArg")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("Invalidf should not match ErrNotFound")
	}
	if err.Error() != "unknown tool call: call_1: invalid argument" {
		t.Errorf("message: got %q", err.Error())
	}
}

func TestSentinelsDistinct(t *testing.T) {
	all := []error{ErrNotFound, ErrInvalidArg, ErrProtected, ErrBusy, ErrInactive}
	for i, a := range all {
		for j, b := range all {
			if (i == j) != errors.Is(a, b) {
				t.Errorf("errors.Is(%v, %v) = %v", a, b, errors.Is(a, b))
			}
		}
	}
}
