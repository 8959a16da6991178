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
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ianlewis/go-yomidict/blobstore"
	"github.com/ianlewis/go-yomidict/registry"
	"github.com/ianlewis/go-yomidict/resolver"
	"github.com/ianlewis/go-yomidict/termbank"
)

const tracerName = "github.com/ianlewis/go-yomidict"

// Manifest is the metadata of an imported dictionary.
type Manifest = termbank.Manifest

// TermRecord is one term entry of a dictionary.
type TermRecord = termbank.TermRecord

// Tag describes a tag referenced by a term entry.
type Tag = termbank.Tag

// DictionaryInfo describes an installed dictionary.
type DictionaryInfo = registry.Info

// LookupOptions configure a lookup.
type LookupOptions = resolver.LookupOptions

// Result is the merged result of a lookup.
type Result = resolver.Result

// Entry is one record matched by a lookup.
type Entry = resolver.Entry

// Warning reports a dictionary that could not be consulted by a lookup.
type Warning = resolver.Warning

// Frequency is a frequency value and its display form.
type Frequency = termbank.Frequency

// Pitch is a pitch accent pattern.
type Pitch = termbank.Pitch

// DictionaryFrequency is the frequency data one dictionary holds for an
// entry.
type DictionaryFrequency = resolver.DictionaryFrequency

// DictionaryPitch is the pitch accent data one dictionary holds for an
// entry.
type DictionaryPitch = resolver.DictionaryPitch

// Engine imports dictionaries into a store and serves lookups over the
// loaded ones. It is safe for concurrent use.
type Engine struct {
	cfg      config
	store    *blobstore.Store
	registry *registry.Registry
	resolver *resolver.Resolver
	imports  *semaphore.Weighted
	metrics  *metrics
	tracer   trace.Tracer

	// phaseHook is called as each import phase begins.
	phaseHook func(ctx context.Context, phase string)

	closeOnce sync.Once
	closeErr  error
}

// Open opens the store at path, creating it if needed, and loads every
// dictionary that was loaded when the store was last closed. Dictionaries
// that fail to load are logged and left unloaded.
func Open(path string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx := context.Background()

	store, err := blobstore.Open(ctx, path, &blobstore.Options{
		Codec:       cfg.codec,
		BusyTimeout: cfg.busyTimeout,
		Logger:      cfg.logger.With("component", "blobstore"),
	})
	if err != nil {
		return nil, err
	}

	reg := registry.New(store, cfg.logger.With("component", "registry"))
	res, err := resolver.New(reg, &resolver.Options{
		CacheSize: cfg.cacheSize,
		Workers:   cfg.lookupWorkers,
		Logger:    cfg.logger.With("component", "resolver"),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	m, err := newMetrics(cfg.registerer, res.CacheStats)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	tp := cfg.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	e := &Engine{
		cfg:      cfg,
		store:    store,
		registry: reg,
		resolver: res,
		imports:  semaphore.NewWeighted(cfg.maxImports),
		metrics:  m,
		tracer:   tp.Tracer(tracerName),
	}

	warnings, err := reg.Restore(ctx)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	for _, w := range warnings {
		cfg.logger.Warn("dictionary not restored", "error", w)
	}
	return e, nil
}

// Path returns the path of the store.
func (e *Engine) Path() string {
	return e.store.Path()
}

// Load loads an installed dictionary that was unloaded. Loading a loaded
// dictionary does nothing.
func (e *Engine) Load(ctx context.Context, id string) (Manifest, error) {
	h, err := e.registry.Load(ctx, id)
	if err != nil {
		return Manifest{}, err
	}
	return h.Manifest(), nil
}

// Unload stops consulting a dictionary. Its data is kept and it stays
// unloaded when the store is reopened.
func (e *Engine) Unload(id string) error {
	return e.registry.Unload(context.Background(), id)
}

// Remove unloads a dictionary and deletes its data.
func (e *Engine) Remove(ctx context.Context, id string) error {
	return e.registry.Remove(ctx, id)
}

// SetPriority moves a dictionary to rank in the lookup order, where 0 is
// consulted first.
func (e *Engine) SetPriority(ctx context.Context, id string, rank int) error {
	return e.registry.SetPriority(ctx, id, rank)
}

// ListDictionaries returns the manifests of the loaded dictionaries in
// priority order.
func (e *Engine) ListDictionaries() []Manifest {
	return e.registry.List()
}

// Installed describes every installed dictionary, loaded or not, in
// priority order.
func (e *Engine) Installed(ctx context.Context) ([]DictionaryInfo, error) {
	return e.registry.Installed(ctx)
}

// Lookup returns the entries of every loaded dictionary matching term. A
// term that matches nothing gives an empty result and no error.
func (e *Engine) Lookup(ctx context.Context, term string, opts *LookupOptions) (*Result, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "yomidict.Lookup", trace.WithAttributes(
		attribute.String("yomidict.term", term),
	))
	defer span.End()

	res, err := e.resolver.Lookup(ctx, term, opts)
	if res != nil {
		span.SetAttributes(
			attribute.Int("yomidict.entries", len(res.Entries)),
			attribute.Int("yomidict.warnings", len(res.Warnings)),
		)
		e.metrics.observeLookup(len(res.Warnings), time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// DiskUsage returns the compressed size in bytes of a dictionary's stored
// buckets.
func (e *Engine) DiskUsage(ctx context.Context, id string) (int64, error) {
	_, n, err := e.store.Size(ctx, id)
	return n, err
}

// CacheStats returns the bucket cache hits and misses so far.
func (e *Engine) CacheStats() (hits, misses uint64) {
	return e.resolver.CacheStats()
}

// Close unloads every dictionary and closes the store. Running imports
// must finish before Close is called.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.metrics.unregister()
		rerr := e.registry.Close()
		serr := e.store.Close()
		if rerr != nil {
			e.closeErr = rerr
		} else {
			e.closeErr = serr
		}
	})
	return e.closeErr
}

func (e *Engine) phase(ctx context.Context, name string) error {
	if e.phaseHook != nil {
		e.phaseHook(ctx, name)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("import cancelled before %s: %w", name, err)
	}
	return nil
}
