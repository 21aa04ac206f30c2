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
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

func feed(records ...Record) <-chan Record {
	in := make(chan Record, len(records))
	for _, rec := range records {
		in <- rec
	}
	close(in)
	return in
}

func numbered(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			"hostname": "web-1",
			"time":     "2024-01-01T00:00:00.000Z",
			"msg":      fmt.Sprintf("message %d", i),
			"name":     "svc",
			"level":    int64(30),
			"v":        int64(0),
			"seq":      int64(i),
		}
	}
	return records
}

// TestPipePreservesOrder checks one output per input, in input order.
func TestPipePreservesOrder(t *testing.T) {
	records := numbered(50)
	s := NewStream(WithRaw(true))

	var got []string
	for v := range s.Pipe(context.Background(), feed(records...)) {
		msg, ok := v.(*Message)
		if !ok {
			t.Fatalf("raw output = %T, want *Message", v)
		}
		got = append(got, msg.ShortMessage)
	}

	if len(got) != len(records) {
		t.Fatalf("got %d outputs, want %d", len(got), len(records))
	}
	for i, short := range got {
		if want := fmt.Sprintf("message %d", i); short != want {
			t.Fatalf("output %d = %q, want %q", i, short, want)
		}
	}
}

// TestRawAndTextAgree verifies the text form parses back to the raw form.
func TestRawAndTextAgree(t *testing.T) {
	rec := numbered(1)[0]
	rec["err"] = map[string]any{"stack": sampleStack}
	rec["ctx"] = map[string]any{"user": "ada", "tags": []any{"a", "b"}}

	rawVal, err := NewStream(WithRaw(true)).Convert(rec)
	if err != nil {
		t.Fatalf("Convert(raw) returned %v", err)
	}
	textVal, err := NewStream().Convert(rec)
	if err != nil {
		t.Fatalf("Convert(text) returned %v", err)
	}
	text, ok := textVal.([]byte)
	if !ok {
		t.Fatalf("text output = %T, want []byte", textVal)
	}
	for _, b := range text {
		if b == '\n' {
			t.Fatalf("text output contains a newline: %q", text)
		}
	}

	var parsed Message
	if err := parsed.UnmarshalJSON(text); err != nil {
		t.Fatalf("UnmarshalJSON() returned %v", err)
	}
	raw := rawVal.(*Message)
	if parsed.Version != raw.Version || parsed.Host != raw.Host ||
		parsed.ShortMessage != raw.ShortMessage || parsed.FullMessage != raw.FullMessage ||
		parsed.Timestamp != raw.Timestamp || parsed.Level != raw.Level {
		t.Fatalf("parsed = %+v, raw = %+v", parsed, *raw)
	}
	wantExtra := map[string]any{
		"_facility":   "svc",
		"_file":       "/tmp/app.js",
		"_line":       "42",
		"_seq":        float64(0),
		"_ctx.user":   "ada",
		"_ctx.tags.0": "a",
		"_ctx.tags.1": "b",
	}
	if !reflect.DeepEqual(parsed.Extra, wantExtra) {
		t.Fatalf("parsed.Extra = %v, want %v", parsed.Extra, wantExtra)
	}
}

// TestRunSkipsFailedRecords reports bad records and keeps going.
func TestRunSkipsFailedRecords(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	s := NewStream(WithRaw(true), WithErrorHandler(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}))

	records := numbered(2)
	in := feed(records[0], nil, records[1])
	out := make(chan any, 3)
	if err := s.Run(context.Background(), in, out); err != nil {
		t.Fatalf("Run() returned %v", err)
	}
	close(out)

	var got []string
	for v := range out {
		got = append(got, v.(*Message).ShortMessage)
	}
	if !reflect.DeepEqual(got, []string{"message 0", "message 1"}) {
		t.Fatalf("outputs = %v", got)
	}
	if len(reported) != 1 || !errors.Is(reported[0], ErrInvalidRecord) {
		t.Fatalf("reported = %v, want one ErrInvalidRecord", reported)
	}
}

// TestRunStopsOnCancel returns ctx.Err() when the consumer is gone.
func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan Record)
	out := make(chan any)

	done := make(chan error, 1)
	go func() { done <- NewStream().Run(ctx, in, out) }()

	in <- numbered(1)[0]
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

// TestStreamDefaults checks the zero-option stream.
func TestStreamDefaults(t *testing.T) {
	s := NewStream()
	if s.Raw() {
		t.Fatal("Raw() = true, want false by default")
	}
	v, err := s.Convert(Record{"msg": "hi"})
	if err != nil {
		t.Fatalf("Convert() returned %v", err)
	}
	if _, ok := v.([]byte); !ok {
		t.Fatalf("Convert() = %T, want []byte", v)
	}
	if _, err := s.Convert(nil); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("Convert(nil) = %v, want ErrInvalidRecord", err)
	}
}
