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
	"bufio"
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

// TestDecoderRecords covers numbers, nesting, blank and bad lines.
func TestDecoderRecords(t *testing.T) {
	input := strings.Join([]string{
		`{"msg":"first","level":30,"ratio":0.5,"big":12345678901234,"tags":["a",1],"ctx":{"ok":true,"none":null}}`,
		``,
		`not json`,
		`[1,2,3]`,
		`{"msg":"second"}`,
	}, "\n")

	dec := NewDecoder(strings.NewReader(input))

	rec, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode() #1 returned %v", err)
	}
	want := Record{
		"msg":   "first",
		"level": int64(30),
		"ratio": 0.5,
		"big":   int64(12345678901234),
		"tags":  []any{"a", int64(1)},
		"ctx":   map[string]any{"ok": true, "none": nil},
	}
	if !reflect.DeepEqual(rec, want) {
		t.Fatalf("Decode() #1 = %#v, want %#v", rec, want)
	}

	for _, wantLine := range []int{3, 4} {
		_, err = dec.Decode()
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("Decode() = %v, want *DecodeError", err)
		}
		if decErr.Line != wantLine {
			t.Errorf("DecodeError.Line = %d, want %d", decErr.Line, wantLine)
		}
		if !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("DecodeError does not match ErrInvalidRecord")
		}
	}

	rec, err = dec.Decode()
	if err != nil || rec["msg"] != "second" {
		t.Fatalf("Decode() #2 = %v, %v", rec, err)
	}
	if _, err = dec.Decode(); err != io.EOF {
		t.Fatalf("Decode() at end = %v, want io.EOF", err)
	}
}

// TestParseRecordRejectsNonObjects wraps failures in ErrInvalidRecord.
func TestParseRecordRejectsNonObjects(t *testing.T) {
	for _, in := range []string{`"text"`, `42`, `{"a":`, ``} {
		if _, err := ParseRecord([]byte(in)); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("ParseRecord(%q) = %v, want ErrInvalidRecord", in, err)
		}
	}
}

// TestDecoderSkipsOversizedLines ensures a line over the limit is reported
// once and the lines after it still decode.
func TestDecoderSkipsOversizedLines(t *testing.T) {
	long := `{"msg":"` + strings.Repeat("x", 100) + `"}`
	input := strings.Join([]string{
		`{"msg":"a"}`,
		long,
		`{"msg":"b"}`,
		`{"msg":"c"}`,
	}, "\n")

	testCases := []struct {
		name string
		dec  *Decoder
	}{
		{name: "DefaultBuffer", dec: NewDecoder(strings.NewReader(input))},
		{name: "SmallBuffer", dec: &Decoder{r: bufio.NewReaderSize(strings.NewReader(input), 16), maxLine: 64}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dec := tc.dec
			dec.maxLine = 64

			var msgs []any
			var decodeErrs []*DecodeError
			for {
				rec, err := dec.Decode()
				if err == io.EOF {
					break
				}
				var decErr *DecodeError
				if errors.As(err, &decErr) {
					decodeErrs = append(decodeErrs, decErr)
					continue
				}
				if err != nil {
					t.Fatalf("Decode() returned %v", err)
				}
				msgs = append(msgs, rec["msg"])
			}

			if want := []any{"a", "b", "c"}; !reflect.DeepEqual(msgs, want) {
				t.Errorf("decoded msgs = %v, want %v", msgs, want)
			}
			if len(decodeErrs) != 1 {
				t.Fatalf("got %d decode errors, want 1", len(decodeErrs))
			}
			if decodeErrs[0].Line != 2 {
				t.Errorf("DecodeError.Line = %d, want 2", decodeErrs[0].Line)
			}
			if !errors.Is(decodeErrs[0], ErrLineTooLong) || !errors.Is(decodeErrs[0], ErrInvalidRecord) {
				t.Errorf("DecodeError = %v, want ErrLineTooLong and ErrInvalidRecord", decodeErrs[0])
			}
		})
	}
}

// TestDecoderOversizedFinalLine covers an oversized line with no newline.
func TestDecoderOversizedFinalLine(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"msg":"a"}` + "\n" + strings.Repeat("y", 50)))
	dec.maxLine = 20

	if rec, err := dec.Decode(); err != nil || rec["msg"] != "a" {
		t.Fatalf("Decode() #1 = %v, %v", rec, err)
	}
	if _, err := dec.Decode(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("Decode() #2 error = %v, want ErrLineTooLong", err)
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Fatalf("Decode() #3 error = %v, want io.EOF", err)
	}
}

// TestEncoderWritesLines accepts text and structured values.
func TestEncoderWritesLines(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	msg := ToGELF(Record{"msg": "<b>&</b>", "time": "2024-01-01T00:00:00.000Z", "level": 30})
	for _, v := range []any{[]byte(`{"a":1}`), `{"b":2}`, msg} {
		if err := enc.Encode(v); err != nil {
			t.Fatalf("Encode(%T) returned %v", v, err)
		}
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3: %q", len(lines), buf.String())
	}
	if lines[0] != `{"a":1}` || lines[1] != `{"b":2}` {
		t.Errorf("text lines = %q, %q", lines[0], lines[1])
	}
	if !strings.Contains(lines[2], `"short_message":"<b>&</b>"`) {
		t.Errorf("message line = %s, want unescaped short_message", lines[2])
	}
}
