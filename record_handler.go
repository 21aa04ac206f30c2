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
	"bytes"
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Keys of the trace correlation fields added when ctx carries a span.
const (
	TraceIDKey      = "trace_id"
	SpanIDKey       = "span_id"
	TraceSampledKey = "trace_sampled"
)

// SourceKey holds the caller location when source location is enabled,
// laid out like bunyan's src field.
const SourceKey = "src"

// pidKey matches the process id field bunyan writes.
const pidKey = "pid"

type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

var lineBufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// recordHandler shapes slog records like bunyan records and writes them as
// GELF JSON lines.
type recordHandler struct {
	mu *sync.Mutex

	cfg            *handlerConfig
	writer         io.Writer
	leveler        slog.Leveler
	internalLogger *slog.Logger

	groupedAttrs []groupedAttr
	groups       []string
}

func newRecordHandler(cfg *handlerConfig, w io.Writer, leveler slog.Leveler, internalLogger *slog.Logger) *recordHandler {
	return &recordHandler{
		mu:             &sync.Mutex{},
		cfg:            cfg,
		writer:         w,
		leveler:        leveler,
		internalLogger: internalLogger,
	}
}

// Enabled reports whether level is at or above the handler minimum.
func (h *recordHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.leveler != nil {
		min = h.leveler.Level()
	}
	return level >= min
}

// Handle converts r and writes it as a single line.
func (h *recordHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := h.buildRecord(ctx, r)

	msg, err := h.cfg.transformer.Transform(rec)
	if err != nil {
		h.internalLogger.Error("failed to transform log record", slog.Any("error", err))
		return err
	}

	buf := lineBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer lineBufferPool.Put(buf)

	text, err := msg.MarshalJSON()
	if err != nil {
		h.internalLogger.Error("failed to render GELF message", slog.Any("error", err))
		return err
	}
	buf.Write(text)
	buf.WriteByte('\n')

	h.mu.Lock()
	_, err = buf.WriteTo(h.writer)
	h.mu.Unlock()
	if err != nil {
		h.internalLogger.Error("failed to write GELF message", slog.Any("error", err))
		return err
	}
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *recordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	grouped := append([]groupedAttr(nil), h.groupedAttrs...)
	for _, a := range attrs {
		grouped = append(grouped, groupedAttr{
			groups: append([]string(nil), h.groups...),
			attr:   a,
		})
	}
	clone := *h
	clone.groupedAttrs = grouped
	return &clone
}

// WithGroup nests subsequent attributes under name.
func (h *recordHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// buildRecord lays out r in the bunyan record shape.
func (h *recordHandler) buildRecord(ctx context.Context, r slog.Record) Record {
	rec := make(Record, 8+len(h.groupedAttrs)+r.NumAttrs())
	var firstErr error

	addAttr := func(dst map[string]any, a slog.Attr) {
		if e := h.walkAttr(dst, a); e != nil && firstErr == nil {
			firstErr = e
		}
	}

	for _, a := range FieldsFromContext(ctx) {
		addAttr(rec, a)
	}
	for _, ga := range h.groupedAttrs {
		addAttr(ensureGroupPath(rec, ga.groups), ga.attr)
	}
	base := ensureGroupPath(rec, h.groups)
	r.Attrs(func(a slog.Attr) bool {
		addAttr(base, a)
		return true
	})
	pruneEmptyMaps(rec)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		rec[TraceIDKey] = sc.TraceID().String()
		rec[SpanIDKey] = sc.SpanID().String()
		rec[TraceSampledKey] = sc.IsSampled()
	}

	if h.cfg.SourceLocationEnabled && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		rec[SourceKey] = map[string]any{
			"file": frame.File,
			"line": frame.Line,
			"func": frame.Function,
		}
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	rec[RecordHostname] = h.cfg.Host
	rec[pidKey] = h.cfg.PID
	rec[RecordTime] = ts
	rec[RecordMsg] = r.Message
	rec[RecordName] = h.cfg.Name
	rec[RecordLevel] = int(bunyanLevelForSlog(r.Level))
	rec[RecordVersion] = 0

	if detail := h.errorDetail(r, firstErr); detail != nil {
		rec[RecordErr] = detail
	} else {
		delete(rec, RecordErr)
	}
	return rec
}

// walkAttr stores a into dst, expanding groups into nested maps. It returns
// the first error value found.
func (h *recordHandler) walkAttr(dst map[string]any, a slog.Attr) error {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		children := a.Value.Group()
		if len(children) == 0 {
			return nil
		}
		target := dst
		if a.Key != "" {
			target = ensureGroupPath(dst, []string{a.Key})
		}
		var firstErr error
		for _, child := range children {
			if e := h.walkAttr(target, child); e != nil && firstErr == nil {
				firstErr = e
			}
		}
		return firstErr
	}
	if a.Key == "" {
		return nil
	}
	if a.Value.Kind() == slog.KindAny {
		if e, ok := a.Value.Any().(error); ok && e != nil {
			dst[a.Key] = e.Error()
			return e
		}
	}
	if v := resolveSlogValue(a.Value); v != nil {
		dst[a.Key] = v
	}
	return nil
}

// errorDetail builds the "err" value: the first logged error with its own
// stack, or a captured stack when stack traces are enabled for the level.
func (h *recordHandler) errorDetail(r slog.Record, err error) *ErrorDetail {
	wantStack := h.cfg.StackTraceEnabled && r.Level >= h.cfg.StackTraceLevel
	if err == nil && !wantStack {
		return nil
	}

	detail := NewErrorDetail(err)
	if detail == nil {
		detail = &ErrorDetail{Message: r.Message}
	}
	if detail.Stack == "" && wantStack {
		stack, frame := CaptureStack(nil)
		detail.Stack, detail.File, detail.Line = stack, frame.File, frame.Line
	}
	return detail
}

// ensureGroupPath walks or creates the nested maps named by path.
func ensureGroupPath(root map[string]any, path []string) map[string]any {
	curr := root
	for _, key := range path {
		if existing, ok := curr[key].(map[string]any); ok {
			curr = existing
			continue
		}
		child := make(map[string]any, 4)
		curr[key] = child
		curr = child
	}
	return curr
}

// resolveSlogValue converts a resolved non-group slog.Value into a plain Go
// value. Times are kept as time.Time so the flattener treats them as
// opaque scalars.
func resolveSlogValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindAny:
		return v.Any()
	default:
		return nil
	}
}

// pruneEmptyMaps removes group maps left empty, so WithGroup handlers do
// not emit empty containers.
func pruneEmptyMaps(m map[string]any) bool {
	for k, v := range m {
		if typed, ok := v.(map[string]any); ok && pruneEmptyMaps(typed) {
			delete(m, k)
		}
	}
	return len(m) == 0
}
