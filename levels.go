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
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// Level is a GELF severity as written to the "level" field of a message.
type Level int

// GELF severities produced by the transformer. Trace and Debug share a value
// because GELF has no separate trace severity.
const (
	LevelTrace   Level = 0
	LevelDebug   Level = 0
	LevelInfo    Level = 1
	LevelWarn    Level = 2
	LevelError   Level = 3
	LevelFatal   Level = 4
	LevelUnknown Level = 5
)

// String returns the name of the GELF severity.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	case LevelUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// BunyanLevel is a severity in the source record domain.
type BunyanLevel int

// Source severities recognized by the severity table.
const (
	BunyanTrace BunyanLevel = 10
	BunyanDebug BunyanLevel = 20
	BunyanInfo  BunyanLevel = 30
	BunyanWarn  BunyanLevel = 40
	BunyanError BunyanLevel = 50
	BunyanFatal BunyanLevel = 60
)

// bunyanToGELF is the closed severity table. It is never mutated.
var bunyanToGELF = map[BunyanLevel]Level{
	BunyanFatal: LevelFatal,
	BunyanError: LevelError,
	BunyanWarn:  LevelWarn,
	BunyanInfo:  LevelInfo,
	BunyanDebug: LevelDebug,
	BunyanTrace: LevelTrace,
}

// GELF maps the source severity onto the GELF scale. Values outside the
// table map to LevelWarn.
func (b BunyanLevel) GELF() Level {
	if lvl, ok := bunyanToGELF[b]; ok {
		return lvl
	}
	return LevelWarn
}

// MapSeverity looks up the record "level" value in the severity table.
// Any numeric type and numeric strings are accepted; values that are not
// integral or not in the table map to LevelWarn.
func MapSeverity(v any) Level {
	b, ok := bunyanLevelOf(v)
	if !ok {
		return LevelWarn
	}
	return b.GELF()
}

// bunyanLevelOf extracts an integral severity from a decoded record value.
func bunyanLevelOf(v any) (BunyanLevel, bool) {
	switch n := v.(type) {
	case BunyanLevel:
		return n, true
	case int:
		return BunyanLevel(n), true
	case int32:
		return BunyanLevel(n), true
	case int64:
		return BunyanLevel(n), true
	case uint32:
		return BunyanLevel(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return BunyanLevel(n), true
	case float64:
		return bunyanLevelFromFloat(n)
	case float32:
		return bunyanLevelFromFloat(float64(n))
	case json.Number:
		return bunyanLevelFromString(n.String())
	case string:
		return bunyanLevelFromString(n)
	default:
		return 0, false
	}
}

func bunyanLevelFromFloat(f float64) (BunyanLevel, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return BunyanLevel(f), true
}

func bunyanLevelFromString(s string) (BunyanLevel, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return BunyanLevel(n), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return bunyanLevelFromFloat(f)
	}
	return 0, false
}

// bunyanLevelForSlog maps slog levels onto the source severity scale so
// records logged through Handler flow through the same table.
func bunyanLevelForSlog(level slog.Level) BunyanLevel {
	switch {
	case level < slog.LevelDebug:
		return BunyanTrace
	case level < slog.LevelInfo:
		return BunyanDebug
	case level < slog.LevelWarn:
		return BunyanInfo
	case level < slog.LevelError:
		return BunyanWarn
	case level < slog.LevelError+4:
		return BunyanError
	default:
		return BunyanFatal
	}
}
