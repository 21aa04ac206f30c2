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
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/pjscruggs/gelfstream/gelfasync"
)

// Handler is a slog.Handler that writes every record as one line of GELF
// JSON. Records are first shaped like bunyan records and then run through
// the same Transformer used for streams.
type Handler struct {
	slog.Handler

	cfg            *handlerConfig
	internalLogger *slog.Logger
	levelVar       *slog.LevelVar

	closeOnce sync.Once
	closeErr  error
}

// NewHandler builds a Handler writing to w (os.Stdout when nil). It reads
// GELF_* environment overrides first and then applies opts.
//
// Example:
//
//	h, err := gelfstream.NewHandler(os.Stdout, gelfstream.WithName("billing"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := slog.New(h)
//	logger.Info("ready", slog.Int("port", 8080))
func NewHandler(w io.Writer, opts ...Option) (*Handler, error) {
	builder := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(builder)
		}
	}

	internalLogger := builder.internalLogger
	if internalLogger == nil {
		internalLogger = slog.New(slog.DiscardHandler)
	}

	cfg := loadConfigFromEnv(internalLogger)
	applyOptions(&cfg, builder)

	if w == nil {
		w = os.Stdout
	}
	if cfg.transformer == nil {
		return nil, errors.New("gelfstream: handler has no transformer")
	}

	levelVar := builder.levelVar
	if levelVar == nil {
		levelVar = new(slog.LevelVar)
	}
	levelVar.Set(cfg.Level)

	cfgPtr := &cfg
	var handler slog.Handler = newRecordHandler(cfgPtr, w, levelVar, internalLogger)
	if len(builder.attrs) > 0 {
		handler = handler.WithAttrs(builder.attrs)
	}
	for _, g := range builder.groups {
		handler = handler.WithGroup(g)
	}
	if builder.asyncEnabled {
		handler = gelfasync.Wrap(handler, builder.asyncOpts...)
	}

	return &Handler{
		Handler:        handler,
		cfg:            cfgPtr,
		internalLogger: internalLogger,
		levelVar:       levelVar,
	}, nil
}

// Close flushes asynchronous workers when the handler was built with
// [WithAsync]. The writer passed to NewHandler is never closed. Close is
// safe to call more than once.
func (h *Handler) Close() error {
	h.closeOnce.Do(func() {
		if c, ok := h.Handler.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				h.closeErr = err
				h.internalLogger.Error("failed to flush async handler", slog.Any("error", err))
			}
		}
	})
	return h.closeErr
}

// SetLevel updates the minimum slog level accepted by the handler.
func (h *Handler) SetLevel(level slog.Level) {
	if h == nil || h.levelVar == nil {
		return
	}
	h.levelVar.Set(level)
}

// Level reports the handler's current minimum slog level.
func (h *Handler) Level() slog.Level {
	if h == nil || h.levelVar == nil {
		return slog.LevelInfo
	}
	return h.levelVar.Level()
}

// LevelVar returns the slog.LevelVar gating records.
func (h *Handler) LevelVar() *slog.LevelVar {
	if h == nil {
		return nil
	}
	return h.levelVar
}

// Transformer returns the Transformer the handler feeds records through.
func (h *Handler) Transformer() *Transformer {
	if h == nil || h.cfg == nil {
		return nil
	}
	return h.cfg.transformer
}
