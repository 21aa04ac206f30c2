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

// Package gelfasync moves GELF encoding and writing off the logging
// goroutine. Records are queued on a bounded channel and handed to worker
// goroutines; the wrapped handler stays synchronous for callers that never
// import this package.
//
// Basic usage:
//
//	h, _ := gelfstream.NewHandler(os.Stdout,
//		gelfstream.WithAsync(
//			gelfasync.WithQueueSize(4096),
//			gelfasync.WithDropMode(gelfasync.DropModeDropNewest),
//		),
//	)
//	defer h.Close()
//
// With one worker (the default) records reach the inner handler in the
// order they were logged. The following environment variables are read
// when [WithEnv] is supplied:
//   - GELF_ASYNC_ENABLED: true/false to toggle the wrapper
//   - GELF_ASYNC_QUEUE_SIZE: channel capacity (0 makes the queue unbuffered)
//   - GELF_ASYNC_DROP_MODE: block | drop_newest | drop_oldest
//   - GELF_ASYNC_WORKERS: number of worker goroutines
//   - GELF_ASYNC_FLUSH_TIMEOUT: duration string used by Close
package gelfasync
