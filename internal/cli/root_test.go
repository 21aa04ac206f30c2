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

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const sampleInput = `{"hostname":"web-1","time":"2024-01-01T00:00:00.000Z","msg":"started","name":"api","level":30,"v":0,"port":8080}
not json

{"hostname":"web-1","time":"2024-01-01T00:00:01.000Z","msg":"failed","name":"api","level":50,"v":0,"err":{"message":"boom","stack":"Error: boom\n    at handler (/srv/app.js:42:7)"}}
`

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("output line %q is not JSON: %v", line, err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestRootConvertsStdin(t *testing.T) {
	out, errOut, err := execute(t, sampleInput)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	lines := decodeLines(t, out)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if lines[0]["short_message"] != "started" || lines[0]["_port"] != float64(8080) || lines[0]["level"] != float64(1) {
		t.Errorf("first line = %v", lines[0])
	}
	if lines[1]["_file"] != "/srv/app.js" || lines[1]["_line"] != "42" || lines[1]["level"] != float64(3) {
		t.Errorf("second line = %v", lines[1])
	}
	if !strings.Contains(errOut, "skipping line") || !strings.Contains(errOut, "line=2") {
		t.Errorf("stderr = %q, want skipped line diagnostic", errOut)
	}
}

func TestRootSkipsOversizedLine(t *testing.T) {
	huge := `{"msg":"` + strings.Repeat("x", 17<<20) + `"}`
	input := `{"msg":"a"}` + "\n" + huge + "\n" + `{"msg":"b"}` + "\n" + `{"msg":"c"}` + "\n"

	out, errOut, err := execute(t, input)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := decodeLines(t, out)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, want := range []string{"a", "b", "c"} {
		if lines[i]["short_message"] != want {
			t.Errorf("line %d short_message = %v, want %s", i, lines[i]["short_message"], want)
		}
	}
	if !strings.Contains(errOut, "line=2") || !strings.Contains(errOut, "line too long") {
		t.Errorf("stderr = %q, want oversized line diagnostic", errOut)
	}
}

func TestRootFlags(t *testing.T) {
	out, _, err := execute(t, sampleInput, "--prefix", "", "--separator", "/", "--keep-err", "--log-level", "error")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := decodeLines(t, out)
	if lines[0]["facility"] != "api" || lines[0]["port"] != float64(8080) {
		t.Errorf("first line = %v", lines[0])
	}
	if lines[1]["err/message"] != "boom" {
		t.Errorf("second line = %v, want err/message", lines[1])
	}
}

func TestRootEnvDefaults(t *testing.T) {
	t.Setenv(envPrefix, "x_")
	t.Setenv(envStrict, "true")

	out, _, err := execute(t, sampleInput)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("execute error = %v, want ErrInvalidInput", err)
	}
	lines := decodeLines(t, out)
	if lines[0]["x_facility"] != "api" {
		t.Errorf("first line = %v, want x_facility", lines[0])
	}
}

func TestRootCompressedFiles(t *testing.T) {
	dir := t.TempDir()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	if _, err := gw.Write([]byte(sampleInput)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	gzPath := filepath.Join(dir, "app.log.gz")
	if err := os.WriteFile(gzPath, gz.Bytes(), 0o600); err != nil {
		t.Fatalf("write gz: %v", err)
	}

	zw, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	zstPath := filepath.Join(dir, "app.log.zst")
	if err := os.WriteFile(zstPath, zw.EncodeAll([]byte(sampleInput), nil), 0o600); err != nil {
		t.Fatalf("write zst: %v", err)
	}
	_ = zw.Close()

	plainPath := filepath.Join(dir, "app.log")
	if err := os.WriteFile(plainPath, []byte(sampleInput), 0o600); err != nil {
		t.Fatalf("write plain: %v", err)
	}

	out, _, err := execute(t, "", gzPath, zstPath, plainPath)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := decodeLines(t, out)
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6", len(lines))
	}
	for i, line := range lines {
		want := "started"
		if i%2 == 1 {
			want = "failed"
		}
		if line["short_message"] != want {
			t.Errorf("line %d short_message = %v, want %s", i, line["short_message"], want)
		}
	}
}

func TestRootMissingFile(t *testing.T) {
	_, _, err := execute(t, "", filepath.Join(t.TempDir(), "missing.log"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("execute error = %v, want os.ErrNotExist", err)
	}
}

func TestRootBadLogLevel(t *testing.T) {
	if _, _, err := execute(t, "", "--log-level", "loud"); err == nil {
		t.Fatal("execute succeeded with invalid --log-level")
	}
}
