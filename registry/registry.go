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

// Package registry tracks the dictionaries loaded by an engine. It owns one
// handle per loaded dictionary, keeps the priority order, and serializes
// imports of the same dictionary.
package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ianlewis/go-yomidict/blobstore"
	dicterrors "github.com/ianlewis/go-yomidict/errors"
	"github.com/ianlewis/go-yomidict/termbank"
)

// Info describes an installed dictionary.
type Info struct {
	Manifest    termbank.Manifest
	Priority    int
	Loaded      bool
	KeyCount    int
	RecordCount int
	MetaCount   int
	Codec       blobstore.Codec
	ImportedAt  time.Time
}

// Registry is the table of loaded dictionaries. Reads take a shared lock
// and every mutation is serialized.
type Registry struct {
	store  *blobstore.Store
	logger *slog.Logger

	// mu guards handles and closed. It is never held during blob reads.
	mu      sync.RWMutex
	handles map[string]*Handle
	closed  bool

	// priorityMu serializes priority changes. The store is read and
	// written without holding mu.
	priorityMu sync.Mutex

	importMu  sync.Mutex
	importing map[string]struct{}

	hookMu   sync.RWMutex
	onUnload []func(id string)
}

// New returns an empty registry over store.
func New(store *blobstore.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		store:     store,
		logger:    logger,
		handles:   make(map[string]*Handle),
		importing: make(map[string]struct{}),
	}
}

// OnUnload registers fn to be called with the id of every dictionary that is
// unloaded or removed.
func (r *Registry) OnUnload(fn func(id string)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onUnload = append(r.onUnload, fn)
}

func (r *Registry) notifyUnload(id string) {
	r.hookMu.RLock()
	defer r.hookMu.RUnlock()
	for _, fn := range r.onUnload {
		fn(id)
	}
}

// BeginImport reserves id for an import. It fails with ErrAlreadyImporting
// if another import of id is in progress. The returned release function
// must be called when the import finishes.
func (r *Registry) BeginImport(id string) (release func(), err error) {
	r.importMu.Lock()
	defer r.importMu.Unlock()
	if _, ok := r.importing[id]; ok {
		return nil, fmt.Errorf("%w: %s", dicterrors.ErrAlreadyImporting, id)
	}
	r.importing[id] = struct{}{}
	return func() {
		r.importMu.Lock()
		defer r.importMu.Unlock()
		delete(r.importing, id)
	}, nil
}

// Restore loads every enabled dictionary in the store. Dictionaries that
// cannot be opened are skipped and reported.
func (r *Registry) Restore(ctx context.Context) ([]error, error) {
	dicts, err := r.store.Dictionaries(ctx)
	if err != nil {
		return nil, err
	}

	var warnings []error
	for _, d := range dicts {
		if !d.Enabled {
			continue
		}
		h, err := openHandle(ctx, r.store, d)
		if err != nil {
			r.logger.Warn("skipping dictionary", "id", d.Manifest.ID, "title", d.Manifest.Title, "error", err)
			warnings = append(warnings, err)
			continue
		}
		if _, err := r.register(h); err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

// Load opens the persisted dictionary id and makes it available to lookups.
// Loading an already loaded dictionary returns its handle.
func (r *Registry) Load(ctx context.Context, id string) (*Handle, error) {
	if h, ok := r.Get(id); ok {
		return h, nil
	}
	d, err := r.store.Dictionary(ctx, id)
	if err != nil {
		return nil, err
	}
	h, err := openHandle(ctx, r.store, d)
	if err != nil {
		return nil, err
	}
	h, err = r.register(h)
	if err != nil {
		return nil, err
	}
	if !d.Enabled {
		if err := r.store.SetEnabled(ctx, id, true); err != nil {
			return nil, err
		}
	}
	r.logger.Info("dictionary loaded", "id", id, "title", d.Manifest.Title)
	return h, nil
}

// register publishes h. If a handle for the same id is already published,
// h is closed and the existing handle is returned.
func (r *Registry) register(h *Handle) (*Handle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = h.close()
		return nil, dicterrors.ErrClosed
	}
	if existing, ok := r.handles[h.ID()]; ok {
		r.mu.Unlock()
		_ = h.close()
		return existing, nil
	}
	r.handles[h.ID()] = h
	r.mu.Unlock()
	return h, nil
}

// Get returns the handle of a loaded dictionary.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Snapshot returns the loaded handles in priority order. The snapshot is
// unaffected by later mutations.
func (r *Registry) Snapshot() []*Handle {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	slices.SortFunc(handles, func(a, b *Handle) int {
		return cmp.Or(cmp.Compare(a.Priority(), b.Priority()), cmp.Compare(a.ID(), b.ID()))
	})
	return handles
}

// List returns the manifests of loaded dictionaries in priority order.
func (r *Registry) List() []termbank.Manifest {
	handles := r.Snapshot()
	manifests := make([]termbank.Manifest, len(handles))
	for i, h := range handles {
		manifests[i] = h.Manifest()
	}
	return manifests
}

// Installed returns every dictionary in the store, loaded or not, in
// priority order.
func (r *Registry) Installed(ctx context.Context) ([]Info, error) {
	dicts, err := r.store.Dictionaries(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, len(dicts))
	for i, d := range dicts {
		_, loaded := r.Get(d.Manifest.ID)
		infos[i] = Info{
			Manifest:    d.Manifest,
			Priority:    d.Priority,
			Loaded:      loaded,
			KeyCount:    d.KeyCount,
			RecordCount: d.RecordCount,
			MetaCount:   d.MetaCount,
			Codec:       d.Codec,
			ImportedAt:  d.ImportedAt,
		}
	}
	return infos, nil
}

// Unload removes a dictionary from lookups. Its data stays in the store and
// it stays unloaded when the store is reopened. Unload waits for lookups
// holding the handle to finish.
func (r *Registry) Unload(ctx context.Context, id string) error {
	if err := r.unload(id); err != nil {
		return err
	}
	if err := r.store.SetEnabled(ctx, id, false); err != nil && !errors.Is(err, dicterrors.ErrNotFound) {
		return err
	}
	return nil
}

func (r *Registry) unload(id string) error {
	r.mu.Lock()
	h, ok := r.handles[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is not loaded", dicterrors.ErrNotFound, id)
	}
	delete(r.handles, id)
	r.mu.Unlock()

	r.notifyUnload(id)
	if err := h.close(); err != nil {
		r.logger.Warn("closing dictionary", "id", id, "error", err)
	}
	r.logger.Info("dictionary unloaded", "id", id)
	return nil
}

// Remove unloads a dictionary and deletes its data.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.unload(id); err != nil && !errors.Is(err, dicterrors.ErrNotFound) {
		return err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.notifyUnload(id)
	r.logger.Info("dictionary removed", "id", id)
	return nil
}

// SetPriority moves a dictionary to position rank in the priority order,
// where 0 is consulted first. Ranks past the end move it last. The other
// dictionaries keep their relative order.
func (r *Registry) SetPriority(ctx context.Context, id string, rank int) error {
	r.priorityMu.Lock()
	defer r.priorityMu.Unlock()

	dicts, err := r.store.Dictionaries(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(dicts, func(d *blobstore.Dictionary) bool {
		return d.Manifest.ID == id
	})
	if i < 0 {
		return fmt.Errorf("%w: %s", dicterrors.ErrNotFound, id)
	}
	d := dicts[i]
	dicts = slices.Delete(dicts, i, i+1)
	rank = min(max(rank, 0), len(dicts))
	dicts = slices.Insert(dicts, rank, d)

	priorities := make(map[string]int, len(dicts))
	for p, d := range dicts {
		priorities[d.Manifest.ID] = p
	}
	if err := r.store.SetPriorities(ctx, priorities); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range priorities {
		if h, ok := r.handles[id]; ok {
			h.priority.Store(int64(p))
		}
	}
	return nil
}

// Close unloads every dictionary without changing what is restored on the
// next open.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for id, h := range handles {
		r.notifyUnload(id)
		if err := h.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish opens and registers a dictionary that has just been committed to
// the store.
func (r *Registry) Publish(ctx context.Context, d *blobstore.Dictionary) (*Handle, error) {
	h, err := openHandle(ctx, r.store, d)
	if err != nil {
		return nil, err
	}
	return r.register(h)
}
