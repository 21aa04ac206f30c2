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

// Package gelfstream converts bunyan-style structured log records into GELF
// 1.1 messages, one record at a time, and provides a [log/slog] handler that
// writes GELF lines directly.
//
// A record is a [Record]: the recognized top-level fields hostname, time,
// msg, name, level, v and err plus arbitrary user data. A [Transformer]
// maps it to a [Message]:
//   - host, short_message and timestamp come from hostname, msg and time.
//   - level goes through the bunyan severity table (60 to 4, 50 to 3, 40 to
//     2, 30 to 1, 20 and 10 to 0). Anything else becomes WARN.
//   - name becomes the facility field.
//   - an error stack under err becomes full_message, and its first frame
//     supplies the file and line fields.
//   - every other field is flattened into a dotted key and written as an
//     additional field with the configured prefix ("_" by default).
//
// Fixed GELF fields always win over flattened fields with the same key.
//
// # Streams
//
// [Stream] consumes records from a channel and emits converted values in
// input order. In raw mode values are *[Message]; otherwise they are the
// single-line JSON text of each message. [Decoder] and [Encoder] connect a
// stream to newline-delimited JSON input and output.
//
//	dec := gelfstream.NewDecoder(os.Stdin)
//	enc := gelfstream.NewEncoder(os.Stdout)
//	s := gelfstream.NewStream()
//	for {
//		rec, err := dec.Decode()
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			continue
//		}
//		out, err := s.Convert(rec)
//		if err == nil {
//			_ = enc.Encode(out)
//		}
//	}
//
// # Handler
//
// [NewHandler] returns a [slog.Handler] that shapes each slog record like a
// bunyan record and runs it through the same Transformer. Attributes and
// groups become flattened additional fields, logged errors feed the err
// field, and an OpenTelemetry span in the context adds trace_id, span_id
// and trace_sampled. GELF_LEVEL, GELF_NAME, GELF_HOST, GELF_FIELD_PREFIX,
// GELF_STACK_TRACE_ENABLED and GELF_STACK_TRACE_LEVEL override the defaults
// before options are applied.
//
//	handler, err := gelfstream.NewHandler(os.Stdout, gelfstream.WithName("billing"))
//	if err != nil {
//	    log.Fatalf("create gelfstream handler: %v", err)
//	}
//	defer handler.Close()
//
//	logger := slog.New(handler)
//	logger.Info("application started")
//
// # Subpackages
//
//   - [github.com/pjscruggs/gelfstream/gelfasync] queues records for a
//     handler on background workers.
//   - [github.com/pjscruggs/gelfstream/gelflogrus] is a logrus formatter
//     emitting GELF lines.
//   - [github.com/pjscruggs/gelfstream/gelfzap] is a zap core emitting GELF
//     lines.
package gelfstream
