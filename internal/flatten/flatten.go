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

// Package flatten turns nested key/value structures into a single-level
// mapping keyed by separator-joined paths.
//
// The package knows nothing about log formats. Callers decide the key
// prefix, the separator and which top-level fields to skip.
package flatten

import (
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultSeparator joins path segments when Options.Separator is empty.
const DefaultSeparator = "."

// Options controls how a structure is flattened.
type Options struct {
	// Prefix is prepended to every emitted key.
	Prefix string
	// Separator joins a container key to its children. Defaults to ".".
	Separator string
	// Ignore lists field names skipped at depth 0 only. Nested fields with
	// the same names are kept.
	Ignore map[string]struct{}
}

// IgnoreSet builds an Options.Ignore value from names.
func IgnoreSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Flatten returns a new map holding every scalar reachable from v under its
// flattened key. Keys that collide after flattening keep the value visited
// last; siblings are visited in sorted key order so the outcome is stable.
func Flatten(v map[string]any, opts Options) map[string]any {
	out := make(map[string]any, len(v))
	Walk(v, opts, func(key string, value any) {
		out[key] = value
	})
	return out
}

// Walk visits every scalar reachable from v in deterministic order, calling
// fn with its flattened key. The input is never modified.
func Walk(v map[string]any, opts Options, fn func(key string, value any)) {
	if fn == nil || len(v) == 0 {
		return
	}
	sep := opts.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	w := walker{sep: sep, ignore: opts.Ignore, fn: fn}
	w.mapping(v, opts.Prefix, 0)
}

type walker struct {
	sep    string
	ignore map[string]struct{}
	fn     func(string, any)
}

func (w *walker) mapping(m map[string]any, prefix string, depth int) {
	for _, key := range sortedKeys(m) {
		if depth == 0 && w.ignored(key) {
			continue
		}
		w.value(prefix, key, m[key], depth)
	}
}

func (w *walker) ignored(key string) bool {
	if w.ignore == nil {
		return false
	}
	_, ok := w.ignore[key]
	return ok
}

// value dispatches on the kind of v: containers recurse, everything else is
// emitted as a scalar.
func (w *walker) value(prefix, key string, v any, depth int) {
	switch typed := v.(type) {
	case map[string]any:
		w.mapping(typed, prefix+key+w.sep, depth+1)
	case map[string]string:
		next := prefix + key + w.sep
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			w.fn(next+k, typed[k])
		}
	case []any:
		next := prefix + key + w.sep
		for i, item := range typed {
			w.value(next, strconv.Itoa(i), item, depth+1)
		}
	case []string:
		next := prefix + key + w.sep
		for i, item := range typed {
			w.fn(next+strconv.Itoa(i), item)
		}
	case time.Time, *regexp.Regexp, error, nil:
		w.fn(prefix+key, scalar(v))
	default:
		if !w.container(prefix+key+w.sep, reflect.ValueOf(v), depth) {
			w.fn(prefix+key, scalar(v))
		}
	}
}

// container walks named and typed maps with string keys and any slice or
// array other than raw bytes. It reports false for every other kind.
func (w *walker) container(next string, rv reflect.Value, depth int) bool {
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return false
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(a.String(), b.String())
		})
		for _, k := range keys {
			w.value(next, k.String(), rv.MapIndex(k).Interface(), depth+1)
		}
		return true
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return false
		}
		for i := range rv.Len() {
			w.value(next, strconv.Itoa(i), rv.Index(i).Interface(), depth+1)
		}
		return true
	default:
		return false
	}
}

// scalar normalizes leaf values. Dates and patterns stay opaque; errors are
// reduced to their message so they survive JSON encoding.
func scalar(v any) any {
	switch typed := v.(type) {
	case time.Time, *regexp.Regexp, nil:
		return v
	case error:
		return typed.Error()
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
