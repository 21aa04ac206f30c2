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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/valyala/fastjson"
)

const maxLineBytes = 16 << 20

var recordParserPool fastjson.ParserPool

// ErrLineTooLong marks an input line longer than the decoder accepts. The
// line is skipped and decoding continues with the next one.
var ErrLineTooLong = errors.New("gelfstream: line too long")

// DecodeError describes an input line that is not a JSON object. Decoding
// may continue after it.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gelfstream: line %d: %v", e.Line, e.Err)
}

// Unwrap exposes both ErrInvalidRecord and the parse failure.
func (e *DecodeError) Unwrap() []error {
	return []error{ErrInvalidRecord, e.Err}
}

// Decoder reads newline-delimited JSON records, as written by bunyan.
type Decoder struct {
	r       *bufio.Reader
	buf     []byte
	maxLine int
	line    int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024), maxLine: maxLineBytes}
}

// Decode returns the next record. Blank lines are skipped. A line that is
// not a JSON object, or is longer than 16 MiB, yields a *DecodeError and the
// next call moves on to the following line. io.EOF marks the end of input.
func (d *Decoder) Decode() (Record, error) {
	for {
		line, tooLong, err := d.readLine()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("gelfstream: read input: %w", err)
		}
		d.line++
		if tooLong {
			return nil, &DecodeError{Line: d.line, Err: fmt.Errorf("%w: limit is %d bytes", ErrLineTooLong, d.maxLine)}
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			return nil, &DecodeError{Line: d.line, Err: err}
		}
		return rec, nil
	}
}

// readLine returns the next line including its newline. Once a line grows
// past maxLine the rest of it is read and discarded, and tooLong is set. A
// final line without a newline is returned as is.
func (d *Decoder) readLine() (line []byte, tooLong bool, err error) {
	d.buf = d.buf[:0]
	for {
		chunk, readErr := d.r.ReadSlice('\n')
		if !tooLong {
			if len(d.buf)+len(chunk) > d.maxLine {
				tooLong = true
				d.buf = d.buf[:0]
			} else {
				d.buf = append(d.buf, chunk...)
			}
		}
		switch {
		case readErr == nil:
			return d.buf, tooLong, nil
		case errors.Is(readErr, bufio.ErrBufferFull):
			continue
		case readErr == io.EOF:
			if len(chunk) == 0 && len(d.buf) == 0 && !tooLong {
				return nil, false, io.EOF
			}
			return d.buf, tooLong, nil
		default:
			return nil, false, readErr
		}
	}
}

// ParseRecord parses one JSON object into a Record. Integers that fit in
// int64 stay integral; other numbers become float64.
func ParseRecord(data []byte) (Record, error) {
	rec, err := parseRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return rec, nil
}

func parseRecord(data []byte) (Record, error) {
	p := recordParserPool.Get()
	defer recordParserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("expected JSON object, got %s", v.Type())
	}
	m, _ := fromFastJSON(v).(map[string]any)
	return Record(m), nil
}

// fromFastJSON copies a parsed value into plain Go values so nothing points
// into parser-owned memory once the parser is returned to the pool.
func fromFastJSON(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		m := make(map[string]any, o.Len())
		o.Visit(func(key []byte, child *fastjson.Value) {
			m[string(key)] = fromFastJSON(child)
		})
		return m
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = fromFastJSON(item)
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}

// Encoder writes Stream output values as newline-delimited JSON.
type Encoder struct {
	mu  sync.Mutex
	w   io.Writer
	buf bytes.Buffer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes v followed by a newline. v may be a *Message, JSON text as
// []byte or string, or any JSON-encodable value.
func (e *Encoder) Encode(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf.Reset()
	switch typed := v.(type) {
	case []byte:
		e.buf.Write(typed)
		e.buf.WriteByte('\n')
	case string:
		e.buf.WriteString(typed)
		e.buf.WriteByte('\n')
	default:
		enc := json.NewEncoder(&e.buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("gelfstream: encode output: %w", err)
		}
	}
	if _, err := e.buf.WriteTo(e.w); err != nil {
		return fmt.Errorf("gelfstream: write output: %w", err)
	}
	return nil
}
