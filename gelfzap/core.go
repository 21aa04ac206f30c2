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

// Package gelfzap provides a zapcore.Core that writes every entry as one
// line of GELF 1.1 JSON.
//
//	core := gelfzap.NewCore(zapcore.InfoLevel, zapcore.AddSync(os.Stdout), gelfzap.WithName("billing"))
//	logger := zap.New(core, zap.AddCaller())
//	logger.Info("charged", zap.Int("order", 42))
package gelfzap

import (
	"os"

	"go.uber.org/zap/zapcore"

	"github.com/pjscruggs/gelfstream"
)

const srcField = "src"

// Option configures a Core.
type Option func(*Core)

// WithName sets the facility used when an entry has no logger name.
func WithName(name string) Option {
	return func(c *Core) { c.name = name }
}

// WithHost overrides os.Hostname.
func WithHost(host string) Option {
	return func(c *Core) { c.host = host }
}

// WithTransformer replaces the default gelfstream.Transformer.
func WithTransformer(t *gelfstream.Transformer) Option {
	return func(c *Core) {
		if t != nil {
			c.transformer = t
		}
	}
}

// Core is a zapcore.Core emitting GELF lines.
type Core struct {
	zapcore.LevelEnabler

	name        string
	host        string
	transformer *gelfstream.Transformer
	out         zapcore.WriteSyncer
	fields      []zapcore.Field
}

var _ zapcore.Core = (*Core)(nil)

// NewCore returns a Core writing entries at or above enab to ws. Writes are
// serialized with zapcore.Lock.
func NewCore(enab zapcore.LevelEnabler, ws zapcore.WriteSyncer, opts ...Option) *Core {
	c := &Core{
		LevelEnabler: enab,
		transformer:  gelfstream.NewTransformer(),
		out:          zapcore.Lock(ws),
	}
	c.host, _ = os.Hostname()
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// With returns a Core that adds fields to every entry.
func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

// Check adds c to ce when ent's level is enabled.
func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write converts ent and fields and writes one line.
func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	msg, err := c.transformer.Transform(c.record(ent, fields))
	if err != nil {
		return err
	}
	text, err := msg.MarshalJSON()
	if err != nil {
		return err
	}
	if _, err := c.out.Write(append(text, '\n')); err != nil {
		return err
	}
	if ent.Level > zapcore.ErrorLevel {
		return c.out.Sync()
	}
	return nil
}

// Sync flushes the underlying writer.
func (c *Core) Sync() error {
	return c.out.Sync()
}

// record lays ent out as a bunyan record. The first error field becomes
// the err detail; otherwise a stack attached by zap.AddStacktrace is used.
func (c *Core) record(ent zapcore.Entry, fields []zapcore.Field) gelfstream.Record {
	enc := zapcore.NewMapObjectEncoder()
	var detail *gelfstream.ErrorDetail
	for _, set := range [][]zapcore.Field{c.fields, fields} {
		for _, f := range set {
			f.AddTo(enc)
			if detail != nil || f.Type != zapcore.ErrorType {
				continue
			}
			if e, ok := f.Interface.(error); ok {
				detail = gelfstream.NewErrorDetail(e)
			}
		}
	}

	rec := gelfstream.Record(enc.Fields)
	if ent.Stack != "" {
		if detail == nil {
			detail = &gelfstream.ErrorDetail{Message: ent.Message}
		}
		if detail.Stack == "" {
			detail.Stack = ent.Stack
			if ent.Caller.Defined {
				detail.File, detail.Line = ent.Caller.File, ent.Caller.Line
			}
		}
	}
	if ent.Caller.Defined {
		rec[srcField] = map[string]any{
			"file": ent.Caller.File,
			"line": ent.Caller.Line,
			"func": ent.Caller.Function,
		}
	}

	name := ent.LoggerName
	if name == "" {
		name = c.name
	}
	rec[gelfstream.RecordHostname] = c.host
	rec[gelfstream.RecordTime] = ent.Time
	rec[gelfstream.RecordMsg] = ent.Message
	rec[gelfstream.RecordName] = name
	rec[gelfstream.RecordLevel] = int(BunyanLevel(ent.Level))
	rec[gelfstream.RecordVersion] = 0
	if detail != nil {
		rec[gelfstream.RecordErr] = detail
	}
	return rec
}

// BunyanLevel maps a zap level onto the bunyan scale. DPanic, panic and
// fatal all become fatal; levels below debug become trace.
func BunyanLevel(level zapcore.Level) gelfstream.BunyanLevel {
	switch {
	case level < zapcore.DebugLevel:
		return gelfstream.BunyanTrace
	case level == zapcore.DebugLevel:
		return gelfstream.BunyanDebug
	case level == zapcore.InfoLevel:
		return gelfstream.BunyanInfo
	case level == zapcore.WarnLevel:
		return gelfstream.BunyanWarn
	case level == zapcore.ErrorLevel:
		return gelfstream.BunyanError
	default:
		return gelfstream.BunyanFatal
	}
}
