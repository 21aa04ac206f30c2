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
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const maxStackFrames = 64

// stackFramePattern matches the first "at <frame> (<file>:<line>" line of a
// text stack. The file may not contain a colon and the line is one or more
// digits; anything after the line number (column, closing paren) is ignored.
var stackFramePattern = regexp.MustCompile(`\n\s+at .+ \(([^:]+):([0-9]+)`)

var stackPCPool = sync.Pool{
	New: func() any {
		buf := make([]uintptr, maxStackFrames)
		return &buf
	},
}

// ParseStackLocation returns the file and line of the first frame in a text
// stack trace. ok is false when no frame line matches.
func ParseStackLocation(stack string) (file, line string, ok bool) {
	m := stackFramePattern.FindStringSubmatch(stack)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// stackTracer defines an interface errors can implement to provide their own
// stack trace as program counters.
type stackTracer interface {
	StackTrace() []uintptr
}

// originStack looks for a stackTracer in err's chain and formats its frames.
// The first printable frame is returned alongside the text.
func originStack(err error) (string, runtime.Frame) {
	var st stackTracer
	if !errors.As(err, &st) {
		return "", runtime.Frame{}
	}
	frames := collectFrames(st.StackTrace(), nil)
	if len(frames) == 0 {
		return "", runtime.Frame{}
	}
	return formatFrames(frames), frames[0]
}

// NewErrorDetail describes err for a record's "err" field. When err or a
// wrapped error exposes StackTrace() []uintptr, the stack and its first
// frame are resolved immediately. It returns nil for a nil error.
func NewErrorDetail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	detail := &ErrorDetail{Message: err.Error(), Type: fmt.Sprintf("%T", err)}
	stack, frame := originStack(err)
	detail.Stack, detail.File, detail.Line = stack, frame.File, frame.Line
	return detail
}

// collectFrames expands pcs into printable frames, dropping runtime exit
// frames and any leading frames matched by skipFn.
func collectFrames(pcs []uintptr, skipFn func(string) bool) []runtime.Frame {
	if len(pcs) == 0 {
		return nil
	}
	out := make([]runtime.Frame, 0, min(len(pcs), maxStackFrames))
	frames := runtime.CallersFrames(pcs)
	leading := skipFn != nil
	for {
		frame, more := frames.Next()
		if frame.PC == 0 && frame.Function == "" {
			break
		}
		switch {
		case frame.Function == "" || frame.Function == "runtime.goexit":
		case leading && skipFn(frame.Function):
		default:
			leading = false
			out = append(out, frame)
		}
		if !more || len(out) >= maxStackFrames {
			break
		}
	}
	return out
}

// formatFrames renders frames in the Go runtime's "function\n\tfile:line"
// layout.
func formatFrames(frames []runtime.Frame) string {
	var sb strings.Builder
	sb.Grow(len(frames) * 64)

	var intBuf [20]byte
	for i, frame := range frames {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(frame.Function)
		sb.WriteString("\n\t")
		sb.WriteString(frame.File)
		sb.WriteByte(':')
		sb.Write(strconv.AppendInt(intBuf[:0], int64(frame.Line), 10))
	}
	return sb.String()
}

// SkipInternalStackFrame reports whether a frame belongs to gelfstream,
// log/slog or the runtime and should be hidden from captured stacks.
func SkipInternalStackFrame(funcName string) bool {
	if funcName == "" {
		return false
	}
	return strings.HasPrefix(funcName, "runtime.") ||
		strings.HasPrefix(funcName, "github.com/pjscruggs/gelfstream.") ||
		strings.HasPrefix(funcName, "github.com/pjscruggs/gelfstream/") ||
		strings.HasPrefix(funcName, "log/slog.")
}

// CaptureStack captures the calling goroutine's stack, trimming leading
// frames matched by skipFn (SkipInternalStackFrame when nil). When every
// frame matches, the untrimmed stack is used. It returns the formatted
// stack and its first remaining frame.
func CaptureStack(skipFn func(string) bool) (string, runtime.Frame) {
	bufPtr := stackPCPool.Get().(*[]uintptr)
	defer stackPCPool.Put(bufPtr)
	pcs := (*bufPtr)[:cap(*bufPtr)]

	n := runtime.Callers(2, pcs)
	if n == 0 {
		return "", runtime.Frame{}
	}
	pcs = pcs[:n]

	if skipFn == nil {
		skipFn = SkipInternalStackFrame
	}
	frames := collectFrames(pcs, skipFn)
	if len(frames) == 0 {
		frames = collectFrames(pcs, nil)
	}
	if len(frames) == 0 {
		return "", runtime.Frame{}
	}
	return formatFrames(frames), frames[0]
}
