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
	"context"
	"log/slog"
	"slices"
)

type contextKey int

const (
	fieldsContextKey contextKey = iota
)

// ContextWithFields returns a child context carrying attrs. Handlers built
// by [NewHandler] add them as top-level record fields to every record
// logged with the context, much like a bunyan child logger. Fields already
// in ctx are kept and attrs are appended after them.
func ContextWithFields(ctx context.Context, attrs ...slog.Attr) context.Context {
	if ctx == nil || len(attrs) == 0 {
		return ctx
	}
	existing := FieldsFromContext(ctx)
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, fieldsContextKey, merged)
}

// FieldsFromContext returns a copy of the fields stored by
// ContextWithFields, or nil.
func FieldsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(fieldsContextKey).([]slog.Attr)
	return slices.Clone(attrs)
}
