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

// Package cli contains the cobra command behind the gelfstream binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pjscruggs/gelfstream"
)

const (
	envPrefix    = "GELFSTREAM_PREFIX"
	envSeparator = "GELFSTREAM_SEPARATOR"
	envKeepErr   = "GELFSTREAM_KEEP_ERR"
	envStrict    = "GELFSTREAM_STRICT"
	envLogLevel  = "GELFSTREAM_LOG_LEVEL"
)

// ErrInvalidInput is returned in strict mode when any input line could not
// be converted.
var ErrInvalidInput = errors.New("invalid input lines")

type runOptions struct {
	prefix    string
	separator string
	keepErr   bool
	strict    bool
	logLevel  string
}

// NewRootCommand constructs the gelfstream command. Flag defaults come from
// GELFSTREAM_* environment variables.
func NewRootCommand() *cobra.Command {
	opts := runOptions{
		prefix:    envString(envPrefix, gelfstream.DefaultFieldPrefix),
		separator: envString(envSeparator, "."),
		keepErr:   envBool(envKeepErr, false),
		strict:    envBool(envStrict, false),
		logLevel:  envString(envLogLevel, "warn"),
	}

	cmd := &cobra.Command{
		Use:   "gelfstream [file...]",
		Short: "Convert bunyan JSON logs to GELF",
		Long: "gelfstream reads newline-delimited bunyan JSON records from files or stdin\n" +
			"and writes one GELF 1.1 JSON message per line to stdout. gzip and zstd\n" +
			"input is decompressed automatically. Use - for stdin.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}
	cmd.Version = gelfstream.GetVersion()

	flags := cmd.Flags()
	flags.StringVar(&opts.prefix, "prefix", opts.prefix, "prefix for additional fields")
	flags.StringVar(&opts.separator, "separator", opts.separator, "separator joining nested field names")
	flags.BoolVar(&opts.keepErr, "keep-err", opts.keepErr, "also flatten the err object into additional fields")
	flags.BoolVar(&opts.strict, "strict", opts.strict, "exit non-zero when any line could not be converted")
	flags.StringVar(&opts.logLevel, "log-level", opts.logLevel, "diagnostic log level on stderr (debug, info, warn, error)")
	return cmd
}

func run(cmd *cobra.Command, args []string, opts runOptions) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", opts.logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if len(args) == 0 {
		args = []string{stdinName}
	}

	var invalid int
	stream := gelfstream.NewStream(
		gelfstream.WithTransformer(gelfstream.NewTransformer(
			gelfstream.WithFieldPrefix(opts.prefix),
			gelfstream.WithSeparator(opts.separator),
			gelfstream.WithKeepErrorFields(opts.keepErr),
		)),
		gelfstream.WithStreamLogger(logger),
		gelfstream.WithErrorHandler(func(error) { invalid++ }),
	)
	enc := gelfstream.NewEncoder(cmd.OutOrStdout())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, path := range args {
		n, err := convertInput(ctx, path, cmd.InOrStdin(), stream, enc, logger)
		invalid += n
		if err != nil {
			return err
		}
	}

	if invalid > 0 {
		logger.Warn("skipped invalid records", slog.Int("count", invalid))
		if opts.strict {
			return fmt.Errorf("%w: %d", ErrInvalidInput, invalid)
		}
	}
	return nil
}

// convertInput streams one source through the converter. It returns the
// number of undecodable lines.
func convertInput(ctx context.Context, path string, stdin io.Reader, stream *gelfstream.Stream, enc *gelfstream.Encoder, logger *slog.Logger) (int, error) {
	src, err := openInput(path, stdin)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan gelfstream.Record)
	readErr := make(chan error, 1)
	var invalid int
	go func() {
		defer close(in)
		readErr <- decodeAll(ctx, gelfstream.NewDecoder(src), in, path, logger, &invalid)
	}()

	for out := range stream.Pipe(ctx, in) {
		if err := enc.Encode(out); err != nil {
			cancel()
			<-readErr
			return invalid, err
		}
	}
	if err := <-readErr; err != nil {
		return invalid, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("converted input", slog.String("source", path))
	return invalid, nil
}

func decodeAll(ctx context.Context, dec *gelfstream.Decoder, in chan<- gelfstream.Record, path string, logger *slog.Logger, invalid *int) error {
	for {
		rec, err := dec.Decode()
		if err == io.EOF {
			return nil
		}
		var decErr *gelfstream.DecodeError
		if errors.As(err, &decErr) {
			*invalid++
			logger.Warn("skipping line", slog.String("source", path), slog.Int("line", decErr.Line), slog.Any("error", decErr.Err))
			continue
		}
		if err != nil {
			return err
		}
		select {
		case in <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
