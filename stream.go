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
	"fmt"
	"log/slog"
)

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// ErrorHandler observes records dropped by a Stream.
type ErrorHandler func(err error)

// WithRaw selects structured output (*Message) when true and single-line
// JSON text ([]byte) when false.
func WithRaw(raw bool) StreamOption {
	return func(s *Stream) {
		s.raw = raw
	}
}

// WithTransformer replaces the default Transformer.
func WithTransformer(t *Transformer) StreamOption {
	return func(s *Stream) {
		if t != nil {
			s.transformer = t
		}
	}
}

// WithErrorHandler registers fn for records that fail conversion. Such
// records are dropped and the stream continues.
func WithErrorHandler(fn ErrorHandler) StreamOption {
	return func(s *Stream) {
		s.onError = fn
	}
}

// WithStreamLogger sets the logger used for stream diagnostics.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Stream converts records one at a time, in order, without buffering
// anything beyond the record in flight.
type Stream struct {
	transformer *Transformer
	raw         bool
	onError     ErrorHandler
	logger      *slog.Logger
}

// NewStream builds a Stream. Without options it emits JSON text using the
// default Transformer.
func NewStream(opts ...StreamOption) *Stream {
	s := &Stream{
		transformer: defaultTransformer,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Raw reports whether the stream emits structured messages.
func (s *Stream) Raw() bool { return s.raw }

// Convert transforms a single record into the stream's output value: a
// *Message in raw mode, otherwise the message's JSON text without a
// trailing newline.
func (s *Stream) Convert(rec Record) (any, error) {
	msg, err := s.transformer.Transform(rec)
	if err != nil {
		return nil, err
	}
	if s.raw {
		return msg, nil
	}
	text, err := msg.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("gelfstream: encode message: %w", err)
	}
	return text, nil
}

// Run reads records from in, converting and sending each one to out before
// reading the next. Records that fail conversion are reported to the error
// handler and skipped. Run returns nil when in is closed and ctx.Err() when
// ctx is cancelled.
func (s *Stream) Run(ctx context.Context, in <-chan Record, out chan<- any) error {
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-in:
			if !ok {
				return nil
			}
			seq++
			val, err := s.Convert(rec)
			if err != nil {
				s.reportError(fmt.Errorf("record %d: %w", seq, err))
				continue
			}
			select {
			case out <- val:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Pipe runs the stream in a goroutine and returns its unbuffered output
// channel, which is closed once in is drained or ctx is cancelled.
func (s *Stream) Pipe(ctx context.Context, in <-chan Record) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		if err := s.Run(ctx, in, out); err != nil {
			s.logger.Debug("stream stopped", slog.Any("error", err))
		}
	}()
	return out
}

func (s *Stream) reportError(err error) {
	s.logger.Warn("dropping record", slog.Any("error", err))
	if s.onError != nil {
		s.onError(err)
	}
}
