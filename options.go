// Copyright 2025 Ian Lewis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package yomidict

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/ianlewis/go-yomidict/blobstore"
	"github.com/ianlewis/go-yomidict/phf"
	"github.com/ianlewis/go-yomidict/resolver"
)

// DefaultMaxConcurrentImports is the default number of imports that may run
// at the same time.
const DefaultMaxConcurrentImports = 2

type config struct {
	codec          blobstore.Codec
	busyTimeout    time.Duration
	cacheSize      int
	importWorkers  int
	lookupWorkers  int
	maxImports     int64
	logger         *slog.Logger
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	phfOpts        []phf.Option
}

func defaultConfig() config {
	return config{
		codec:         blobstore.CodecZstd,
		busyTimeout:   blobstore.DefaultOptions.BusyTimeout,
		cacheSize:     resolver.DefaultCacheSize,
		importWorkers: runtime.GOMAXPROCS(0),
		maxImports:    DefaultMaxConcurrentImports,
		logger:        slog.New(slog.DiscardHandler),
	}
}

// Option configures an Engine.
type Option func(*config)

// WithCodec sets the compression codec used for newly imported
// dictionaries. Dictionaries keep the codec they were imported with.
func WithCodec(c blobstore.Codec) Option {
	return func(cfg *config) {
		cfg.codec = c
	}
}

// WithBusyTimeout sets how long the store waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.busyTimeout = d
	}
}

// WithCacheSize sets the number of decoded buckets kept in memory.
func WithCacheSize(n int) Option {
	return func(cfg *config) {
		cfg.cacheSize = n
	}
}

// WithImportWorkers sets how many goroutines one import uses to decode
// banks and compress buckets.
func WithImportWorkers(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.importWorkers = n
		}
	}
}

// WithLookupWorkers bounds how many dictionaries one lookup probes at the
// same time. Zero, the default, probes all of them at once.
func WithLookupWorkers(n int) Option {
	return func(cfg *config) {
		cfg.lookupWorkers = n
	}
}

// WithMaxConcurrentImports sets how many imports may run at the same time.
// Further imports wait for a running one to finish.
func WithMaxConcurrentImports(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxImports = int64(n)
		}
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithRegisterer registers the engine's metrics with r. Metrics are
// unregistered when the engine is closed.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(cfg *config) {
		cfg.registerer = r
	}
}

// WithTracerProvider sets the provider of the tracer used for import and
// lookup spans. The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithPHFSeed sets the base seed of the perfect hash builder.
func WithPHFSeed(seed uint64) Option {
	return func(cfg *config) {
		cfg.phfOpts = append(cfg.phfOpts, phf.WithSeed(seed))
	}
}

// WithHash selects the key hash of the perfect hash builder.
func WithHash(kind phf.HashKind) Option {
	return func(cfg *config) {
		cfg.phfOpts = append(cfg.phfOpts, phf.WithHash(kind))
	}
}
