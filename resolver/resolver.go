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

// Package resolver answers exact-term lookups across every loaded
// dictionary and merges the results in priority order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ianlewis/go-yomidict/blobstore"
	dicterrors "github.com/ianlewis/go-yomidict/errors"
	"github.com/ianlewis/go-yomidict/internal/folding"
	"github.com/ianlewis/go-yomidict/registry"
	"github.com/ianlewis/go-yomidict/termbank"
)

// DefaultCacheSize is the default number of buckets kept in memory.
const DefaultCacheSize = 4096

// Options configure a Resolver.
type Options struct {
	// CacheSize is the number of decoded buckets cached across all
	// dictionaries.
	CacheSize int

	// Workers bounds how many dictionaries are probed concurrently by one
	// lookup. Zero means no limit.
	Workers int

	Logger *slog.Logger
}

// LookupOptions configure a single lookup.
type LookupOptions struct {
	// MatchReadings also matches records whose reading equals the query.
	MatchReadings bool

	// MaxResultsPerDictionary limits the records returned from each
	// dictionary. Zero means no limit.
	MaxResultsPerDictionary int

	// Timeout bounds the whole lookup. Zero means no timeout.
	Timeout time.Duration
}

// Entry is one matching record.
type Entry struct {
	DictionaryID    string
	DictionaryTitle string
	Priority        int
	Record          termbank.TermRecord

	// Tags are the definitions of the record's definition and term tags
	// that the dictionary provides.
	Tags []termbank.Tag

	// Frequencies and Pitches hold what the loaded dictionaries know about
	// the record's term and reading, in priority order. Dictionaries with
	// nothing to add are left out.
	Frequencies []DictionaryFrequency
	Pitches     []DictionaryPitch
}

// DictionaryFrequency is the frequency data one dictionary holds for an
// entry.
type DictionaryFrequency struct {
	DictionaryID    string
	DictionaryTitle string
	Frequencies     []termbank.Frequency
}

// DictionaryPitch is the pitch accent data one dictionary holds for an
// entry.
type DictionaryPitch struct {
	DictionaryID    string
	DictionaryTitle string
	Pitches         []termbank.Pitch
}

// Warning reports a dictionary that could not be consulted.
type Warning struct {
	DictionaryID string
	Err          error

	// Unloaded is true if the dictionary was unloaded because its data is
	// inconsistent with its index.
	Unloaded bool
}

// Error implements error.
func (w Warning) Error() string {
	return fmt.Sprintf("dictionary %s: %v", w.DictionaryID, w.Err)
}

// Unwrap returns the underlying error.
func (w Warning) Unwrap() error {
	return w.Err
}

// Result is the merged result of a lookup.
type Result struct {
	// Key is the normalized form of the query.
	Key      string
	Entries  []Entry
	Warnings []Warning
}

type cacheKey struct {
	id   string
	slot uint32
}

// Resolver serves lookups over a registry. It is safe for concurrent use.
type Resolver struct {
	registry *registry.Registry
	cache    *lru.Cache[cacheKey, *blobstore.Bucket]
	group    singleflight.Group
	workers  int
	logger   *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns a Resolver over reg. Cached buckets of a dictionary are
// dropped when the registry unloads it.
func New(reg *registry.Registry, opts *Options) (*Resolver, error) {
	if opts == nil {
		opts = &Options{}
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, *blobstore.Bucket](size)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Resolver{
		registry: reg,
		cache:    cache,
		workers:  opts.Workers,
		logger:   logger,
	}
	reg.OnUnload(r.Invalidate)
	return r, nil
}

// Invalidate drops the cached buckets of dictionary id.
func (r *Resolver) Invalidate(id string) {
	for _, k := range r.cache.Keys() {
		if k.id == id {
			r.cache.Remove(k)
		}
	}
}

// Purge drops every cached bucket.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

// CacheStats returns the number of bucket cache hits and misses so far.
func (r *Resolver) CacheStats() (hits, misses uint64) {
	return r.hits.Load(), r.misses.Load()
}

// Lookup returns the records of every loaded dictionary whose normalized
// term, or reading if opts.MatchReadings is set, equals the normalized query.
// Entries are ordered by dictionary priority and then by their position in
// the dictionary.
//
// A dictionary that fails is reported in Result.Warnings and does not fail
// the lookup. If the lookup times out or ctx is cancelled, the entries found
// so far are returned together with an error wrapping the context error.
func (r *Resolver) Lookup(ctx context.Context, query string, opts *LookupOptions) (*Result, error) {
	if opts == nil {
		opts = &LookupOptions{}
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	res := &Result{Key: folding.Normalize(query)}
	if res.Key == "" {
		return res, nil
	}

	handles := r.registry.Snapshot()
	entries := make([][]Entry, len(handles))
	errs := make([]error, len(handles))

	var g errgroup.Group
	if r.workers > 0 {
		g.SetLimit(r.workers)
	}
	for i, h := range handles {
		g.Go(func() error {
			entries[i], errs[i] = r.probe(ctx, h, res.Key, opts)
			return nil
		})
	}
	_ = g.Wait()

	for i := range handles {
		res.Entries = append(res.Entries, entries[i]...)
	}
	metaErrs := r.attachMeta(ctx, handles, res.Entries)

	ctxErr := ctx.Err()
	for i, h := range handles {
		err := errs[i]
		if err == nil {
			continue
		}
		if ctxErr != nil {
			// Failures after the deadline are reported by the returned
			// error rather than blamed on the dictionary.
			continue
		}
		w := Warning{DictionaryID: h.ID(), Err: err}
		if errors.Is(err, dicterrors.ErrSlotNotFound) || errors.Is(err, dicterrors.ErrMissingEntry) {
			// The index points at data that does not exist, so every later
			// lookup would fail the same way.
			if uerr := r.registry.Unload(context.WithoutCancel(ctx), h.ID()); uerr == nil {
				w.Unloaded = true
			}
		}
		r.logger.Warn("lookup failed", "id", h.ID(), "key", res.Key, "unloaded", w.Unloaded, "error", err)
		res.Warnings = append(res.Warnings, w)
	}
	for i, h := range handles {
		if metaErrs[i] == nil || ctxErr != nil {
			continue
		}
		r.logger.Warn("reading meta failed", "id", h.ID(), "key", res.Key, "error", metaErrs[i])
		res.Warnings = append(res.Warnings, Warning{DictionaryID: h.ID(), Err: metaErrs[i]})
	}

	if ctxErr != nil {
		return res, fmt.Errorf("lookup %q: %w", query, ctxErr)
	}
	return res, nil
}

func (r *Resolver) probe(ctx context.Context, h *registry.Handle, key string, opts *LookupOptions) ([]Entry, error) {
	release, ok := h.Acquire()
	if !ok {
		// Unloaded since the snapshot was taken.
		return nil, nil
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.Index() == nil {
		return nil, nil
	}

	slot := h.Index().Slot(key)
	b, err := r.fetch(ctx, h, slot)
	if err != nil {
		return nil, err
	}
	if b.Key != key {
		return nil, nil
	}

	manifest := h.Manifest()
	var entries []Entry
	for _, rec := range b.Records {
		if !matches(rec, key, opts.MatchReadings) {
			continue
		}
		entries = append(entries, Entry{
			DictionaryID:    manifest.ID,
			DictionaryTitle: manifest.Title,
			Priority:        h.Priority(),
			Record:          rec,
			Tags:            resolveTags(h, rec),
		})
		if opts.MaxResultsPerDictionary > 0 && len(entries) >= opts.MaxResultsPerDictionary {
			break
		}
	}
	return entries, nil
}

// attachMeta adds to entries the frequency and pitch rows every loaded
// dictionary holds for them. A row applies to an entry if its term matches
// and its reading is empty or matches. The returned errors are indexed like
// handles.
func (r *Resolver) attachMeta(ctx context.Context, handles []*registry.Handle, entries []Entry) []error {
	errs := make([]error, len(handles))
	if len(entries) == 0 {
		return errs
	}

	var keys []string
	for _, e := range entries {
		if k := folding.Normalize(e.Record.Term); !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}

	metas := make([]map[string][]blobstore.Meta, len(handles))
	var g errgroup.Group
	if r.workers > 0 {
		g.SetLimit(r.workers)
	}
	for i, h := range handles {
		if h.MetaCount() == 0 {
			continue
		}
		g.Go(func() error {
			metas[i], errs[i] = readMeta(ctx, h, keys)
			return nil
		})
	}
	_ = g.Wait()

	for i := range entries {
		e := &entries[i]
		key := folding.Normalize(e.Record.Term)
		reading := e.Record.Reading
		if reading == "" {
			reading = e.Record.Term
		}
		reading = folding.Normalize(reading)

		for j, h := range handles {
			var freqs []termbank.Frequency
			var pitches []termbank.Pitch
			for _, m := range metas[j][key] {
				if m.Reading != "" && folding.Normalize(m.Reading) != reading {
					continue
				}
				if m.Frequency != nil {
					freqs = append(freqs, *m.Frequency)
				}
				pitches = append(pitches, m.Pitches...)
			}
			manifest := h.Manifest()
			if len(freqs) > 0 {
				e.Frequencies = append(e.Frequencies, DictionaryFrequency{
					DictionaryID:    manifest.ID,
					DictionaryTitle: manifest.Title,
					Frequencies:     freqs,
				})
			}
			if len(pitches) > 0 {
				e.Pitches = append(e.Pitches, DictionaryPitch{
					DictionaryID:    manifest.ID,
					DictionaryTitle: manifest.Title,
					Pitches:         pitches,
				})
			}
		}
	}
	return errs
}

func readMeta(ctx context.Context, h *registry.Handle, keys []string) (map[string][]blobstore.Meta, error) {
	release, ok := h.Acquire()
	if !ok {
		return nil, nil
	}
	defer release()

	metas := make(map[string][]blobstore.Meta, len(keys))
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return metas, err
		}
		m, err := h.Meta(ctx, k)
		if err != nil {
			return metas, err
		}
		metas[k] = m
	}
	return metas, nil
}

func matches(rec termbank.TermRecord, key string, matchReadings bool) bool {
	if folding.Normalize(rec.Term) == key {
		return true
	}
	return matchReadings && rec.Reading != "" && folding.Normalize(rec.Reading) == key
}

func resolveTags(h *registry.Handle, rec termbank.TermRecord) []termbank.Tag {
	var tags []termbank.Tag
	seen := make(map[string]bool)
	for _, names := range [][]string{rec.DefinitionTags, rec.TermTags} {
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			tags = append(tags, h.Tags(name)...)
		}
	}
	return tags
}

// fetch returns the bucket of a slot from the cache or the store. Concurrent
// fetches of the same slot share one read.
func (r *Resolver) fetch(ctx context.Context, h *registry.Handle, slot uint32) (*blobstore.Bucket, error) {
	k := cacheKey{id: h.ID(), slot: slot}
	if b, ok := r.cache.Get(k); ok {
		r.hits.Add(1)
		return b, nil
	}
	r.misses.Add(1)

	v, err, _ := r.group.Do(k.id+"\x00"+strconv.FormatUint(uint64(slot), 10), func() (any, error) {
		b, err := h.Get(ctx, slot)
		if err != nil {
			return nil, err
		}
		r.cache.Add(k, b)
		return b, nil
	})
	if err != nil {
		//nolint:wrapcheck // errors carry dictionary and slot context already.
		return nil, err
	}
	return v.(*blobstore.Bucket), nil
}
