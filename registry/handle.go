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

package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ianlewis/go-yomidict/blobstore"
	dicterrors "github.com/ianlewis/go-yomidict/errors"
	"github.com/ianlewis/go-yomidict/internal/index"
	"github.com/ianlewis/go-yomidict/phf"
	"github.com/ianlewis/go-yomidict/termbank"
)

// Handle is a loaded dictionary. Handles are owned by the registry; callers
// borrow them through Acquire so that an unload never closes a handle that
// is still being read.
type Handle struct {
	manifest    termbank.Manifest
	keyCount    int
	recordCount int
	metaCount   int
	importedAt  time.Time
	codec       blobstore.Codec
	priority    atomic.Int64

	index *phf.Index
	tags  *index.Index[termbank.Tag]

	mu     sync.RWMutex
	part   *blobstore.Partition
	closed bool
}

// openHandle prepares a handle for a persisted dictionary. A dictionary
// holding only frequency and pitch rows has no index.
func openHandle(ctx context.Context, store *blobstore.Store, d *blobstore.Dictionary) (*Handle, error) {
	var idx *phf.Index
	switch {
	case len(d.Index) > 0:
		var err error
		idx, err = phf.Unmarshal(d.Index)
		if err != nil {
			return nil, fmt.Errorf("dictionary %s: %w", d.Manifest.ID, err)
		}
		if idx.Len() != d.KeyCount {
			return nil, fmt.Errorf("%w: dictionary %s: index has %d keys, want %d",
				dicterrors.ErrCorruptIndex, d.Manifest.ID, idx.Len(), d.KeyCount)
		}
	case d.KeyCount != 0 || d.MetaCount == 0:
		return nil, fmt.Errorf("%w: dictionary %s has no index", dicterrors.ErrCorruptIndex, d.Manifest.ID)
	}
	tags, err := store.Tags(ctx, d.Manifest.ID)
	if err != nil {
		return nil, err
	}
	part, err := store.Partition(ctx, d.Manifest.ID)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		manifest:    d.Manifest,
		keyCount:    d.KeyCount,
		recordCount: d.RecordCount,
		metaCount:   d.MetaCount,
		importedAt:  d.ImportedAt,
		codec:       d.Codec,
		index:       idx,
		tags:        index.NewIndex(tags, strings.Compare),
		part:        part,
	}
	h.priority.Store(int64(d.Priority))
	return h, nil
}

// ID returns the dictionary id.
func (h *Handle) ID() string {
	return h.manifest.ID
}

// Manifest returns the dictionary manifest.
func (h *Handle) Manifest() termbank.Manifest {
	return h.manifest
}

// Priority returns the dictionary rank. Lower ranks are consulted first.
func (h *Handle) Priority() int {
	return int(h.priority.Load())
}

// Index returns the dictionary's perfect hash. It is nil if the dictionary
// has no term records.
func (h *Handle) Index() *phf.Index {
	return h.index
}

// KeyCount returns the number of distinct lookup keys.
func (h *Handle) KeyCount() int {
	return h.keyCount
}

// RecordCount returns the number of term records.
func (h *Handle) RecordCount() int {
	return h.recordCount
}

// MetaCount returns the number of frequency and pitch rows.
func (h *Handle) MetaCount() int {
	return h.metaCount
}

// Tags returns the tag definitions with the given name.
func (h *Handle) Tags(name string) []termbank.Tag {
	return h.tags.Search(name)
}

// Acquire borrows the handle for reading. It returns false if the handle
// has been closed. release must be called once the caller is done.
func (h *Handle) Acquire() (release func(), ok bool) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, false
	}
	return h.mu.RUnlock, true
}

// Get reads the bucket of slot. The handle must be acquired.
func (h *Handle) Get(ctx context.Context, slot uint32) (*blobstore.Bucket, error) {
	return h.part.Get(ctx, slot)
}

// Meta reads the frequency and pitch rows of a normalized term. The handle
// must be acquired.
func (h *Handle) Meta(ctx context.Context, key string) ([]blobstore.Meta, error) {
	return h.part.Meta(ctx, key)
}

// close waits for borrowers to finish and releases the handle's resources.
func (h *Handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.part.Close()
}
