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

// Package gelflogrus provides a logrus.Formatter that writes every entry as
// one line of GELF 1.1 JSON.
//
// Entries are laid out as bunyan records and converted by a
// gelfstream.Transformer, so logrus output and slog output from the same
// process share one field layout:
//
//	log := logrus.New()
//	log.Formatter = &gelflogrus.Formatter{Name: "billing"}
//	log.WithField("order", 42).Info("charged")
package gelflogrus

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pjscruggs/gelfstream"
)

// Bunyan source location field set when the logger reports callers.
const srcField = "src"

var defaultTransformer = gelfstream.NewTransformer()

// Formatter formats logrus entries as GELF lines.
type Formatter struct {
	// Name is written as the GELF facility.
	Name string
	// Host overrides os.Hostname.
	Host string
	// Transformer converts the record. Nil uses gelfstream defaults.
	Transformer *gelfstream.Transformer

	hostOnce sync.Once
	host     string
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	t := f.Transformer
	if t == nil {
		t = defaultTransformer
	}
	msg, err := t.Transform(f.record(entry))
	if err != nil {
		return nil, err
	}
	text, err := msg.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return append(text, '\n'), nil
}

// record lays entry out as a bunyan record. Recognized fields replace
// entry data with the same names.
func (f *Formatter) record(entry *logrus.Entry) gelfstream.Record {
	rec := make(gelfstream.Record, len(entry.Data)+8)
	for key, value := range entry.Data {
		if e, ok := value.(error); ok {
			rec[key] = e.Error()
			if key == logrus.ErrorKey {
				rec[gelfstream.RecordErr] = gelfstream.NewErrorDetail(e)
			}
			continue
		}
		rec[key] = value
	}

	if entry.HasCaller() {
		rec[srcField] = map[string]any{
			"file": entry.Caller.File,
			"line": entry.Caller.Line,
			"func": entry.Caller.Function,
		}
	}

	rec[gelfstream.RecordHostname] = f.hostname()
	rec[gelfstream.RecordTime] = entry.Time
	rec[gelfstream.RecordMsg] = entry.Message
	rec[gelfstream.RecordName] = f.Name
	rec[gelfstream.RecordLevel] = int(BunyanLevel(entry.Level))
	rec[gelfstream.RecordVersion] = 0
	return rec
}

func (f *Formatter) hostname() string {
	if f.Host != "" {
		return f.Host
	}
	f.hostOnce.Do(func() {
		f.host, _ = os.Hostname()
	})
	return f.host
}

// BunyanLevel maps a logrus level onto the bunyan scale. Panic and fatal
// both become fatal.
func BunyanLevel(level logrus.Level) gelfstream.BunyanLevel {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return gelfstream.BunyanFatal
	case logrus.ErrorLevel:
		return gelfstream.BunyanError
	case logrus.WarnLevel:
		return gelfstream.BunyanWarn
	case logrus.InfoLevel:
		return gelfstream.BunyanInfo
	case logrus.DebugLevel:
		return gelfstream.BunyanDebug
	default:
		return gelfstream.BunyanTrace
	}
}
