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
	"encoding/json"
	"fmt"
	"math"
)

// Keys of the fixed GELF fields.
const (
	VersionKey      = "version"
	HostKey         = "host"
	ShortMessageKey = "short_message"
	FullMessageKey  = "full_message"
	TimestampKey    = "timestamp"
	LevelKey        = "level"
)

// Names of the optional GELF fields kept in Message.Extra. They are written
// with the transformer's field prefix.
const (
	FacilityField = "facility"
	FileField     = "file"
	LineField     = "line"
)

// isReservedKey reports whether key is one of the fixed GELF fields.
func isReservedKey(key string) bool {
	switch key {
	case VersionKey, HostKey, ShortMessageKey, FullMessageKey, TimestampKey, LevelKey:
		return true
	}
	return false
}

// Record is one structured log record in the bunyan shape: recognized
// top-level fields plus arbitrary user data.
type Record map[string]any

// Message is a GELF 1.1 message. Facility, source location and every
// flattened additional field live in Extra under their final keys.
type Message struct {
	Version      string
	Host         string
	ShortMessage string
	FullMessage  string
	// Timestamp is seconds since the Unix epoch. It is NaN when the record
	// time could not be parsed.
	Timestamp float64
	Level     Level
	Extra     map[string]any
}

// Map returns the message as a single flat map, the shape written on the
// wire. A NaN or infinite timestamp becomes nil, as does any non-finite
// float in Extra, since JSON has no encoding for them.
func (m *Message) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+6)
	for key, val := range m.Extra {
		out[key] = finiteOrNil(val)
	}
	out[VersionKey] = m.Version
	out[HostKey] = m.Host
	out[ShortMessageKey] = m.ShortMessage
	if m.FullMessage != "" {
		out[FullMessageKey] = m.FullMessage
	}
	if math.IsNaN(m.Timestamp) || math.IsInf(m.Timestamp, 0) {
		out[TimestampKey] = nil
	} else {
		out[TimestampKey] = m.Timestamp
	}
	out[LevelKey] = int(m.Level)
	return out
}

func finiteOrNil(v any) any {
	switch f := v.(type) {
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil
		}
	}
	return v
}

// MarshalJSON renders the message as one flat JSON object without HTML
// escaping.
func (m *Message) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m.Map()); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// UnmarshalJSON parses a flat GELF object. Unknown keys land in Extra; a
// null or missing timestamp becomes NaN.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message{Timestamp: math.NaN()}
	for key, val := range raw {
		switch key {
		case VersionKey:
			m.Version, _ = val.(string)
		case HostKey:
			m.Host, _ = val.(string)
		case ShortMessageKey:
			m.ShortMessage, _ = val.(string)
		case FullMessageKey:
			m.FullMessage, _ = val.(string)
		case TimestampKey:
			if f, ok := val.(float64); ok {
				m.Timestamp = f
			}
		case LevelKey:
			f, ok := val.(float64)
			if !ok {
				return fmt.Errorf("gelfstream: level is %T, want number", val)
			}
			m.Level = Level(f)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[key] = val
		}
	}
	return nil
}

// ErrorDetail is the error shape Go producers place under a record's "err"
// key. It carries an already-resolved location so no text parsing is needed.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"name,omitempty"`
	Stack   string `json:"stack,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Error implements error so details can travel through error-typed values.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return "<nil error>"
	}
	return e.Message
}
