// Copyright 2025 Patrick J. Scruggs
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

package gelfstream

import (
	"strings"
	"testing"
)

func captureHere() (string, string) {
	stack, frame := CaptureStack(func(fn string) bool {
		return strings.HasPrefix(fn, "runtime.")
	})
	return stack, frame.Function
}

// TestCaptureStackStartsAtCaller keeps the caller as the first frame.
func TestCaptureStackStartsAtCaller(t *testing.T) {
	stack, fn := captureHere()
	if !strings.HasSuffix(fn, ".captureHere") {
		t.Fatalf("first frame = %q, want captureHere", fn)
	}
	if !strings.HasPrefix(stack, fn+"\n\t") {
		t.Fatalf("stack does not start with first frame:\n%s", stack)
	}
	if !strings.Contains(stack, "stack_test.go:") {
		t.Fatalf("stack missing file:line entries:\n%s", stack)
	}
	if strings.HasSuffix(stack, "\n") {
		t.Fatalf("stack has trailing newline")
	}
}

// TestCaptureStackFallsBackWhenAllSkipped returns the full stack.
func TestCaptureStackFallsBackWhenAllSkipped(t *testing.T) {
	stack, frame := CaptureStack(func(string) bool { return true })
	if stack == "" || frame.Function == "" {
		t.Fatalf("CaptureStack() = %q, %+v, want untrimmed stack", stack, frame)
	}
}

// TestSkipInternalStackFrame lists the hidden packages.
func TestSkipInternalStackFrame(t *testing.T) {
	testCases := []struct {
		fn   string
		want bool
	}{
		{"runtime.Callers", true},
		{"log/slog.(*Logger).log", true},
		{"github.com/pjscruggs/gelfstream.(*recordHandler).Handle", true},
		{"github.com/pjscruggs/gelfstream/gelfasync.(*Handler).Handle", true},
		{"github.com/pjscruggs/gelfstream_test.TestSomething", false},
		{"main.main", false},
		{"", false},
	}
	for _, tc := range testCases {
		if got := SkipInternalStackFrame(tc.fn); got != tc.want {
			t.Errorf("SkipInternalStackFrame(%q) = %v, want %v", tc.fn, got, tc.want)
		}
	}
}

// TestOriginStackWithoutTracer ignores plain errors.
func TestOriginStackWithoutTracer(t *testing.T) {
	if stack, frame := originStack(&tracedError{msg: "empty"}); stack != "" || frame.Function != "" {
		t.Fatalf("originStack(empty tracer) = %q, %+v", stack, frame)
	}
}
