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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pjscruggs/gelfstream/internal/flatten"
)

// Recognized top-level record fields.
const (
	RecordHostname = "hostname"
	RecordTime     = "time"
	RecordMsg      = "msg"
	RecordName     = "name"
	RecordLevel    = "level"
	RecordVersion  = "v"
	RecordErr      = "err"
)

// DefaultFieldPrefix marks additional fields as GELF 1.1 requires.
const DefaultFieldPrefix = "_"

// ErrInvalidRecord reports a record that cannot be converted at all.
var ErrInvalidRecord = errors.New("gelfstream: invalid record")

// TransformOption configures a Transformer.
type TransformOption func(*transformConfig)

type transformConfig struct {
	prefix          string
	separator       string
	keepErrorFields bool
	extraIgnored    []string
}

// WithFieldPrefix sets the prefix used for facility, file, line and every
// flattened field. An empty prefix produces unprefixed keys.
func WithFieldPrefix(prefix string) TransformOption {
	return func(c *transformConfig) {
		c.prefix = prefix
	}
}

// WithSeparator sets the separator joining nested field names. Empty keeps
// the "." default.
func WithSeparator(sep string) TransformOption {
	return func(c *transformConfig) {
		if sep != "" {
			c.separator = sep
		}
	}
}

// WithKeepErrorFields also flattens the "err" object into additional fields
// when enabled. By default it only feeds full_message, file and line.
func WithKeepErrorFields(enabled bool) TransformOption {
	return func(c *transformConfig) {
		c.keepErrorFields = enabled
	}
}

// WithIgnoredFields skips more top-level record fields when collecting
// additional fields.
func WithIgnoredFields(names ...string) TransformOption {
	return func(c *transformConfig) {
		c.extraIgnored = append(c.extraIgnored, names...)
	}
}

// Transformer converts records into GELF messages. Its configuration is
// fixed at construction, so one value may be shared between goroutines.
type Transformer struct {
	prefix    string
	separator string
	ignore    map[string]struct{}

	facilityKey string
	fileKey     string
	lineKey     string
}

// NewTransformer builds a Transformer from opts.
func NewTransformer(opts ...TransformOption) *Transformer {
	cfg := transformConfig{
		prefix:    DefaultFieldPrefix,
		separator: flatten.DefaultSeparator,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	ignored := []string{RecordHostname, RecordTime, RecordMsg, RecordName, RecordLevel, RecordVersion}
	if !cfg.keepErrorFields {
		ignored = append(ignored, RecordErr)
	}
	ignored = append(ignored, cfg.extraIgnored...)

	return &Transformer{
		prefix:      cfg.prefix,
		separator:   cfg.separator,
		ignore:      flatten.IgnoreSet(ignored...),
		facilityKey: cfg.prefix + FacilityField,
		fileKey:     cfg.prefix + FileField,
		lineKey:     cfg.prefix + LineField,
	}
}

var defaultTransformer = NewTransformer()

// ToGELF converts rec with the default configuration. A nil record yields a
// message carrying only the fixed fields.
func ToGELF(rec Record) *Message {
	if rec == nil {
		rec = Record{}
	}
	msg, _ := defaultTransformer.Transform(rec)
	return msg
}

// Transform converts one record into a GELF message. It returns
// ErrInvalidRecord for a nil record and never fails otherwise.
func (t *Transformer) Transform(rec Record) (*Message, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}

	msg := &Message{
		Version:      GELFVersion,
		Host:         stringField(rec[RecordHostname]),
		ShortMessage: stringField(rec[RecordMsg]),
		Timestamp:    ParseTimestamp(rec[RecordTime]),
		Level:        MapSeverity(rec[RecordLevel]),
		Extra:        make(map[string]any, len(rec)),
	}
	if name := stringField(rec[RecordName]); name != "" {
		msg.Extra[t.facilityKey] = name
	}

	if stack, file, line := errorLocation(rec[RecordErr]); stack != "" {
		msg.FullMessage = stack
		if file != "" {
			msg.Extra[t.fileKey] = file
			msg.Extra[t.lineKey] = line
		}
	}

	flatten.Walk(rec, flatten.Options{
		Prefix:    t.prefix,
		Separator: t.separator,
		Ignore:    t.ignore,
	}, func(key string, value any) {
		if isReservedKey(key) || key == t.facilityKey || key == t.fileKey || key == t.lineKey {
			return
		}
		msg.Extra[key] = value
	})

	return msg, nil
}

// errorLocation resolves the full stack text and first-frame location of a
// record's "err" value. An empty stack means no error fields are written.
func errorLocation(v any) (stack, file, line string) {
	switch e := v.(type) {
	case nil:
		return "", "", ""
	case map[string]any:
		stack, _ = e["stack"].(string)
	case *ErrorDetail:
		if e == nil {
			return "", "", ""
		}
		stack = e.Stack
		if stack != "" && e.File != "" {
			return stack, e.File, strconv.Itoa(e.Line)
		}
	case error:
		s, frame := originStack(e)
		if s == "" {
			return "", "", ""
		}
		if frame.File != "" {
			return s, frame.File, strconv.Itoa(frame.Line)
		}
		return s, "", ""
	}
	if stack == "" {
		return "", "", ""
	}
	file, line, _ = ParseStackLocation(stack)
	return stack, file, line
}

// stringField renders a recognized text field. Absent values become "".
func stringField(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// timestampLayouts lists the textual time formats accepted for "time".
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp converts a record time into seconds since the Unix epoch
// with millisecond precision. Strings are parsed as ISO-8601/RFC 3339 (UTC
// when no offset is given), numbers are epoch milliseconds and time.Time is
// used directly. Anything else yields NaN.
func ParseTimestamp(v any) float64 {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return math.NaN()
		}
		return millisToSeconds(t.UnixMilli())
	case *time.Time:
		if t == nil {
			return math.NaN()
		}
		return ParseTimestamp(*t)
	case string:
		return parseTimestampString(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return millisToSeconds(i)
		}
		f, err := t.Float64()
		if err != nil {
			return math.NaN()
		}
		return floatMillisToSeconds(f)
	case int:
		return millisToSeconds(int64(t))
	case int64:
		return millisToSeconds(t)
	case float64:
		return floatMillisToSeconds(t)
	default:
		return math.NaN()
	}
}

func parseTimestampString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return millisToSeconds(parsed.UnixMilli())
		}
	}
	return math.NaN()
}

func millisToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}

func floatMillisToSeconds(ms float64) float64 {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return math.NaN()
	}
	return math.Trunc(ms) / 1000
}
