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
	"os"
	"strconv"
	"strings"

	"github.com/pjscruggs/gelfstream/gelfasync"
)

const (
	envLevel           = "GELF_LEVEL"
	envName            = "GELF_NAME"
	envHost            = "GELF_HOST"
	envFieldPrefix     = "GELF_FIELD_PREFIX"
	envStackEnabled    = "GELF_STACK_TRACE_ENABLED"
	envStackTraceLevel = "GELF_STACK_TRACE_LEVEL"
	envSourceLocation  = "GELF_SOURCE_LOCATION_ENABLED"
)

// Option mutates Handler construction behaviour when supplied to
// [NewHandler]. Options are applied in order after environment overrides.
type Option func(*options)

type options struct {
	level             *slog.Level
	levelVar          *slog.LevelVar
	name              *string
	host              *string
	stackTraceEnabled *bool
	stackTraceLevel   *slog.Level
	sourceLocation    *bool
	transformOpts     []TransformOption
	attrs             []slog.Attr
	groups            []string
	internalLogger    *slog.Logger
	asyncEnabled      bool
	asyncOpts         []gelfasync.Option
}

// handlerConfig is the resolved configuration shared by a Handler and all
// handlers derived from it.
type handlerConfig struct {
	Level                 slog.Level
	Name                  string
	Host                  string
	PID                   int
	FieldPrefix           *string
	StackTraceEnabled     bool
	StackTraceLevel       slog.Level
	SourceLocationEnabled bool

	transformer *Transformer
}

// WithLevel sets the minimum slog level accepted by the handler.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = &level
	}
}

// WithLevelVar shares levelVar with the handler so the minimum level can be
// changed at runtime. The handler sets it to the resolved level on
// construction.
func WithLevelVar(levelVar *slog.LevelVar) Option {
	return func(o *options) {
		if levelVar != nil {
			o.levelVar = levelVar
		}
	}
}

// WithName sets the record name, emitted as the GELF facility.
func WithName(name string) Option {
	return func(o *options) {
		o.name = &name
	}
}

// WithHost overrides the host written to every message. The default is
// os.Hostname.
func WithHost(host string) Option {
	trimmed := strings.TrimSpace(host)
	return func(o *options) {
		o.host = &trimmed
	}
}

// WithStackTraceEnabled toggles stack capture for records at or above the
// stack trace level when the logged error carries no stack of its own.
func WithStackTraceEnabled(enabled bool) Option {
	return func(o *options) {
		o.stackTraceEnabled = &enabled
	}
}

// WithStackTraceLevel captures stack traces for records at or above level.
// The handler defaults to [slog.LevelError].
func WithStackTraceLevel(level slog.Level) Option {
	return func(o *options) {
		o.stackTraceLevel = &level
	}
}

// WithSourceLocationEnabled adds the calling file, line and function to
// every record as a src field.
func WithSourceLocationEnabled(enabled bool) Option {
	return func(o *options) {
		o.sourceLocation = &enabled
	}
}

// WithTransformOptions configures the Transformer used by the handler, for
// example to change the additional field prefix.
func WithTransformOptions(opts ...TransformOption) Option {
	return func(o *options) {
		o.transformOpts = append(o.transformOpts, opts...)
	}
}

// WithAttrs adds attributes to every record, as slog.Logger.With would.
func WithAttrs(attrs ...slog.Attr) Option {
	return func(o *options) {
		o.attrs = append(o.attrs, attrs...)
	}
}

// WithGroup nests attributes logged after construction under name.
func WithGroup(name string) Option {
	return func(o *options) {
		if name != "" {
			o.groups = append(o.groups, name)
		}
	}
}

// WithInternalLogger injects a logger for handler diagnostics such as write
// failures. Diagnostics are discarded by default.
func WithInternalLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.internalLogger = logger
	}
}

// WithAsync wraps the handler with [gelfasync] so records are encoded and
// written by background workers.
func WithAsync(opts ...gelfasync.Option) Option {
	return func(o *options) {
		o.asyncEnabled = true
		o.asyncOpts = append(o.asyncOpts, opts...)
	}
}

// loadConfigFromEnv reads handler defaults and environment overrides.
func loadConfigFromEnv(logger *slog.Logger) handlerConfig {
	cfg := handlerConfig{
		Level:           slog.LevelInfo,
		StackTraceLevel: slog.LevelError,
		PID:             os.Getpid(),
	}
	if host, err := os.Hostname(); err == nil {
		cfg.Host = host
	} else {
		logDiagnostic(logger, slog.LevelWarn, "unable to determine hostname", slog.Any("error", err))
	}

	cfg.Level = parseLevelEnv(os.Getenv(envLevel), cfg.Level, logger)
	cfg.StackTraceEnabled = parseBoolEnv(os.Getenv(envStackEnabled), cfg.StackTraceEnabled, logger)
	cfg.StackTraceLevel = parseLevelEnv(os.Getenv(envStackTraceLevel), cfg.StackTraceLevel, logger)
	cfg.SourceLocationEnabled = parseBoolEnv(os.Getenv(envSourceLocation), cfg.SourceLocationEnabled, logger)
	if name := strings.TrimSpace(os.Getenv(envName)); name != "" {
		cfg.Name = name
	}
	if host := strings.TrimSpace(os.Getenv(envHost)); host != "" {
		cfg.Host = host
	}
	if prefix, ok := os.LookupEnv(envFieldPrefix); ok {
		trimmed := strings.TrimSpace(prefix)
		cfg.FieldPrefix = &trimmed
	}
	return cfg
}

// applyOptions merges explicit options over the environment-derived config.
func applyOptions(cfg *handlerConfig, o *options) {
	if o.level != nil {
		cfg.Level = *o.level
	}
	if o.name != nil {
		cfg.Name = *o.name
	}
	if o.host != nil {
		cfg.Host = *o.host
	}
	if o.stackTraceEnabled != nil {
		cfg.StackTraceEnabled = *o.stackTraceEnabled
	}
	if o.stackTraceLevel != nil {
		cfg.StackTraceLevel = *o.stackTraceLevel
	}
	if o.sourceLocation != nil {
		cfg.SourceLocationEnabled = *o.sourceLocation
	}

	var topts []TransformOption
	if cfg.FieldPrefix != nil {
		topts = append(topts, WithFieldPrefix(*cfg.FieldPrefix))
	}
	topts = append(topts, o.transformOpts...)
	cfg.transformer = NewTransformer(topts...)
}

// parseBoolEnv parses boolean environment values, retaining current on
// failure.
func parseBoolEnv(value string, current bool, logger *slog.Logger) bool {
	if strings.TrimSpace(value) == "" {
		return current
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		logDiagnostic(logger, slog.LevelWarn, "invalid boolean environment variable", slog.String("value", value), slog.Any("error", err))
		return current
	}
	return b
}

// parseLevelEnv parses slog level names, bunyan level names and integers,
// retaining current on failure.
func parseLevelEnv(value string, current slog.Level, logger *slog.Logger) slog.Level {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return current
	}

	switch trimmed {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "fatal":
		return slog.LevelError + 4
	}
	if lv, err := strconv.Atoi(trimmed); err == nil {
		return slog.Level(lv)
	}
	logDiagnostic(logger, slog.LevelWarn, "invalid level environment variable", slog.String("value", value))
	return current
}

func logDiagnostic(logger *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}
