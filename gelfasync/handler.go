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

package gelfasync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize = 1024

	envEnabled      = "GELF_ASYNC_ENABLED"
	envQueueSize    = "GELF_ASYNC_QUEUE_SIZE"
	envDropMode     = "GELF_ASYNC_DROP_MODE"
	envWorkers      = "GELF_ASYNC_WORKERS"
	envFlushTimeout = "GELF_ASYNC_FLUSH_TIMEOUT"
)

// DropMode controls what happens when the queue is full.
type DropMode int

const (
	// DropModeBlock blocks the caller until the queue has room.
	DropModeBlock DropMode = iota
	// DropModeDropNewest discards the incoming record.
	DropModeDropNewest
	// DropModeDropOldest discards the oldest queued record.
	DropModeDropOldest
)

// String returns the env spelling of the mode.
func (m DropMode) String() string {
	switch m {
	case DropModeBlock:
		return "block"
	case DropModeDropNewest:
		return "drop_newest"
	case DropModeDropOldest:
		return "drop_oldest"
	default:
		return fmt.Sprintf("DropMode(%d)", int(m))
	}
}

// ErrFlushTimeout indicates Close returned before the queue was drained.
var ErrFlushTimeout = errors.New("gelfasync: flush timeout")

// DropHandler observes dropped records.
type DropHandler func(ctx context.Context, rec slog.Record)

// Config controls the async wrapper.
type Config struct {
	Enabled      bool
	QueueSize    int
	WorkerCount  int
	DropMode     DropMode
	OnDrop       DropHandler
	ErrorWriter  io.Writer
	FlushTimeout time.Duration
}

// Option customizes Config.
type Option func(*Config)

// WithEnabled toggles the wrapper.
func WithEnabled(enabled bool) Option {
	return func(cfg *Config) { cfg.Enabled = enabled }
}

// WithQueueSize sets the queue capacity. Zero yields an unbuffered queue.
func WithQueueSize(size int) Option {
	return func(cfg *Config) { cfg.QueueSize = size }
}

// WithWorkerCount sets the number of worker goroutines. More than one
// worker gives up ordering between records.
func WithWorkerCount(count int) Option {
	return func(cfg *Config) { cfg.WorkerCount = count }
}

// WithDropMode sets the overflow strategy.
func WithDropMode(mode DropMode) Option {
	return func(cfg *Config) { cfg.DropMode = mode }
}

// WithOnDrop registers a callback for dropped records.
func WithOnDrop(fn DropHandler) Option {
	return func(cfg *Config) { cfg.OnDrop = fn }
}

// WithErrorWriter directs worker errors and recovered panics to w. Nil
// silences them.
func WithErrorWriter(w io.Writer) Option {
	return func(cfg *Config) { cfg.ErrorWriter = w }
}

// WithFlushTimeout bounds how long Close waits for the queue to drain.
func WithFlushTimeout(timeout time.Duration) Option {
	return func(cfg *Config) { cfg.FlushTimeout = timeout }
}

// WithEnv overlays GELF_ASYNC_* environment variables.
func WithEnv() Option {
	return applyEnv
}

// Handler queues records for an inner slog.Handler.
type Handler struct {
	inner    slog.Handler
	dropMode DropMode
	onDrop   DropHandler
	state    *queueState
}

type queueState struct {
	queue        chan queuedRecord
	wg           sync.WaitGroup
	closed       atomic.Bool
	flushTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
	errWriter    io.Writer
}

type queuedRecord struct {
	ctx     context.Context
	rec     slog.Record
	handler slog.Handler
}

// Wrap returns inner wrapped with an async queue, or inner itself when the
// resolved config is disabled.
func Wrap(inner slog.Handler, opts ...Option) slog.Handler {
	cfg := buildConfig(opts)
	if !cfg.Enabled {
		return inner
	}
	return New(inner, cfg)
}

// New starts workers for cfg and returns the wrapper.
func New(inner slog.Handler, cfg Config) *Handler {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = defaultQueueSize
	}
	state := &queueState{
		queue:        make(chan queuedRecord, cfg.QueueSize),
		flushTimeout: cfg.FlushTimeout,
		errWriter:    cfg.ErrorWriter,
	}
	state.wg.Add(cfg.WorkerCount)
	for range cfg.WorkerCount {
		go state.work()
	}
	return &Handler{
		inner:    inner,
		dropMode: cfg.DropMode,
		onDrop:   cfg.OnDrop,
		state:    state,
	}
}

func (s *queueState) work() {
	defer s.wg.Done()
	for item := range s.queue {
		s.handle(item)
	}
}

func (s *queueState) handle(item queuedRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.logError("gelfasync: recovered panic from handler: %v\n", r)
		}
	}()
	if err := item.handler.Handle(item.ctx, item.rec); err != nil {
		s.logError("gelfasync: handler error: %v\n", err)
	}
}

func (s *queueState) logError(format string, args ...any) {
	if s.errWriter == nil {
		return
	}
	_, _ = fmt.Fprintf(s.errWriter, format, args...)
}

// Enabled defers to the inner handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle queues a copy of rec. Records arriving after Close are dropped.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	item := queuedRecord{ctx: ctx, rec: rec.Clone(), handler: h.inner}
	if h.state.closed.Load() {
		h.drop(item)
		return nil
	}
	h.enqueue(item)
	return nil
}

// WithAttrs returns a handler sharing this queue.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithAttrs(attrs)
	return &clone
}

// WithGroup returns a handler sharing this queue.
func (h *Handler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithGroup(name)
	return &clone
}

// enqueue applies the drop mode. A send racing with Close panics on the
// closed channel; that record is treated as dropped.
func (h *Handler) enqueue(item queuedRecord) {
	defer func() {
		if recover() != nil {
			h.drop(item)
		}
	}()

	queue := h.state.queue
	switch h.dropMode {
	case DropModeDropNewest:
		select {
		case queue <- item:
		default:
			h.drop(item)
		}
	case DropModeDropOldest:
		for {
			select {
			case queue <- item:
				return
			default:
			}
			select {
			case oldest := <-queue:
				h.drop(oldest)
			default:
			}
			if cap(queue) == 0 {
				h.drop(item)
				return
			}
		}
	default:
		queue <- item
	}
}

func (h *Handler) drop(item queuedRecord) {
	if h.onDrop != nil {
		h.onDrop(item.ctx, item.rec)
	}
}

// Close stops accepting records, waits for queued ones to be handled (up
// to the flush timeout) and then closes the inner handler when it has a
// Close method.
func (h *Handler) Close() error {
	s := h.state
	s.closeOnce.Do(func() {
		if s.closed.CompareAndSwap(false, true) {
			close(s.queue)
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		if s.flushTimeout > 0 {
			select {
			case <-done:
			case <-time.After(s.flushTimeout):
				s.closeErr = ErrFlushTimeout
			}
		} else {
			<-done
		}

		if c, ok := h.inner.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// buildConfig applies opts over the defaults and clamps invalid values.
func buildConfig(opts []Option) Config {
	cfg := Config{
		Enabled:     true,
		QueueSize:   defaultQueueSize,
		WorkerCount: 1,
		DropMode:    DropModeBlock,
		ErrorWriter: os.Stderr,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return cfg
}

// applyEnv overlays GELF_ASYNC_* variables; malformed values are ignored.
func applyEnv(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv(envEnabled)); raw != "" {
		if enabled, err := strconv.ParseBool(raw); err == nil {
			cfg.Enabled = enabled
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envQueueSize)); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			cfg.QueueSize = size
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envWorkers)); raw != "" {
		if workers, err := strconv.Atoi(raw); err == nil {
			cfg.WorkerCount = workers
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envDropMode)); raw != "" {
		if mode, ok := ParseDropMode(raw); ok {
			cfg.DropMode = mode
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envFlushTimeout)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.FlushTimeout = d
		}
	}
}

// ParseDropMode parses block, drop_newest or drop_oldest (dashes allowed).
func ParseDropMode(raw string) (DropMode, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_") {
	case "block":
		return DropModeBlock, true
	case "drop_newest":
		return DropModeDropNewest, true
	case "drop_oldest":
		return DropModeDropOldest, true
	default:
		return DropModeBlock, false
	}
}
