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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ianlewis/go-yomidict/blobstore"
	dicterrors "github.com/ianlewis/go-yomidict/errors"
	"github.com/ianlewis/go-yomidict/phf"
	"github.com/ianlewis/go-yomidict/termbank"
)

func openStore(t *testing.T) *blobstore.Store {
	t.Helper()
	s, err := blobstore.Open(context.Background(), filepath.Join(t.TempDir(), "dict.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seed commits a dictionary whose buckets each hold one key.
func seed(t *testing.T, s *blobstore.Store, id string, keys ...string) {
	t.Helper()
	ctx := context.Background()

	b := phf.NewBuilder()
	for _, k := range keys {
		b.Add(k)
	}
	idx, err := b.Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	tx, err := s.Begin(ctx, &blobstore.Dictionary{
		Manifest:    termbank.Manifest{ID: id, Title: "Dict " + id, Revision: "1", Format: 3},
		Index:       data,
		KeyCount:    idx.Len(),
		RecordCount: len(keys),
	})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback()
	for _, k := range keys {
		bucket := &blobstore.Bucket{Key: k, Records: []termbank.TermRecord{{Term: k}}}
		if err := tx.Put(ctx, idx.Slot(k), bucket); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := tx.PutTags(ctx, []termbank.Tag{{Name: "n", Notes: "noun"}}); err != nil {
		t.Fatalf("PutTags: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func ids(handles []*Handle) []string {
	var ids []string
	for _, h := range handles {
		ids = append(ids, h.ID())
	}
	return ids
}

func TestRegistry_restoreAndUnload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)
	seed(t, s, "a", "猫", "ねこ")
	seed(t, s, "b", "犬")

	r := New(s, nil)
	warnings, err := r.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("Restore warnings: %v", warnings)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids(r.Snapshot())); diff != "" {
		t.Fatalf("Snapshot (-want, +got):\n%s", diff)
	}

	h, ok := r.Get("a")
	if !ok {
		t.Fatalf("Get(a): not loaded")
	}
	release, ok := h.Acquire()
	if !ok {
		t.Fatalf("Acquire: handle closed")
	}
	bucket, err := h.Get(ctx, h.Index().Slot("ねこ"))
	release()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff("ねこ", bucket.Key); diff != "" {
		t.Fatalf("bucket key (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]termbank.Tag{{Name: "n", Notes: "noun"}}, h.Tags("n")); diff != "" {
		t.Fatalf("Tags (-want, +got):\n%s", diff)
	}

	var unloaded []string
	r.OnUnload(func(id string) { unloaded = append(unloaded, id) })
	if err := r.Unload(ctx, "a"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, unloaded); diff != "" {
		t.Fatalf("OnUnload (-want, +got):\n%s", diff)
	}
	if _, ok := h.Acquire(); ok {
		t.Fatalf("Acquire after Unload succeeded")
	}
	err = r.Unload(ctx, "a")
	if diff := cmp.Diff(dicterrors.ErrNotFound, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("second Unload (-want, +got):\n%s", diff)
	}

	// Unloaded dictionaries stay unloaded on restore.
	r2 := New(s, nil)
	if _, err := r2.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, ids(r2.Snapshot())); diff != "" {
		t.Fatalf("Snapshot after restore (-want, +got):\n%s", diff)
	}

	if _, err := r2.Load(ctx, "a"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids(r2.Snapshot())); diff != "" {
		t.Fatalf("Snapshot after Load (-want, +got):\n%s", diff)
	}
	infos, err := r2.Installed(ctx)
	if err != nil {
		t.Fatalf("Installed: %v", err)
	}
	for _, info := range infos {
		if !info.Loaded {
			t.Fatalf("Installed: %s not loaded", info.Manifest.ID)
		}
	}
}

func TestRegistry_unloadWaitsForBorrowers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)
	seed(t, s, "a", "x")
	r := New(s, nil)
	h, err := r.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	release, ok := h.Acquire()
	if !ok {
		t.Fatalf("Acquire: handle closed")
	}

	done := make(chan error, 1)
	go func() { done <- r.Unload(ctx, "a") }()

	select {
	case err := <-done:
		t.Fatalf("Unload returned while handle was borrowed: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// The borrowed handle is still readable.
	if _, err := h.Get(ctx, h.Index().Slot("x")); err != nil {
		t.Fatalf("Get on borrowed handle: %v", err)
	}
	release()

	if err := <-done; err != nil {
		t.Fatalf("Unload: %v", err)
	}
}

func TestRegistry_BeginImport(t *testing.T) {
	t.Parallel()

	r := New(openStore(t), nil)

	release, err := r.BeginImport("a")
	if err != nil {
		t.Fatalf("BeginImport: %v", err)
	}
	_, err = r.BeginImport("a")
	if diff := cmp.Diff(dicterrors.ErrAlreadyImporting, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("second BeginImport (-want, +got):\n%s", diff)
	}
	releaseB, err := r.BeginImport("b")
	if err != nil {
		t.Fatalf("BeginImport(b): %v", err)
	}
	releaseB()
	release()

	release, err = r.BeginImport("a")
	if err != nil {
		t.Fatalf("BeginImport after release: %v", err)
	}
	release()
}

func TestRegistry_SetPriority(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)
	for _, id := range []string{"a", "b", "c"} {
		seed(t, s, id, id)
	}
	r := New(s, nil)
	if _, err := r.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	tests := []struct {
		id       string
		rank     int
		expected []string
	}{
		{id: "c", rank: 0, expected: []string{"c", "a", "b"}},
		{id: "c", rank: 99, expected: []string{"a", "b", "c"}},
		{id: "a", rank: 1, expected: []string{"b", "a", "c"}},
		{id: "b", rank: -1, expected: []string{"b", "a", "c"}},
	}
	for _, test := range tests {
		if err := r.SetPriority(ctx, test.id, test.rank); err != nil {
			t.Fatalf("SetPriority(%s, %d): %v", test.id, test.rank, err)
		}
		if diff := cmp.Diff(test.expected, ids(r.Snapshot())); diff != "" {
			t.Fatalf("SetPriority(%s, %d) (-want, +got):\n%s", test.id, test.rank, diff)
		}
	}

	// The order is persisted.
	r2 := New(s, nil)
	if _, err := r2.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, ids(r2.Snapshot())); diff != "" {
		t.Fatalf("restored order (-want, +got):\n%s", diff)
	}

	err := r.SetPriority(ctx, "zzz", 0)
	if diff := cmp.Diff(dicterrors.ErrNotFound, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("SetPriority(unknown) (-want, +got):\n%s", diff)
	}
}

func TestRegistry_SetPriority_storeBusy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)
	seed(t, s, "a", "a")
	seed(t, s, "b", "b")
	r := New(s, nil)
	if _, err := r.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// An open import holds the store's write lock.
	tx, err := s.Begin(ctx, &blobstore.Dictionary{
		Manifest: termbank.Manifest{ID: "c", Title: "Dict c", Revision: "1", Format: 3},
	})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.SetPriority(ctx, "b", 0) }()
	// Give SetPriority time to reach the store.
	time.Sleep(200 * time.Millisecond)

	got := make(chan []string, 1)
	go func() { got <- ids(r.Snapshot()) }()
	select {
	case order := <-got:
		if diff := cmp.Diff([]string{"a", "b"}, order); diff != "" {
			t.Errorf("Snapshot during SetPriority (-want, +got):\n%s", diff)
		}
	case <-time.After(time.Second):
		t.Errorf("Snapshot blocked while SetPriority waited on the store")
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SetPriority: %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, ids(r.Snapshot())); diff != "" {
		t.Fatalf("Snapshot after SetPriority (-want, +got):\n%s", diff)
	}
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)
	seed(t, s, "a", "x")
	r := New(s, nil)
	if _, err := r.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	var mu sync.Mutex
	var removed []string
	r.OnUnload(func(id string) {
		mu.Lock()
		defer mu.Unlock()
		removed = append(removed, id)
	})

	if err := r.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(r.Snapshot()) != 0 {
		t.Fatalf("Snapshot after Remove: %v", ids(r.Snapshot()))
	}
	if len(removed) == 0 {
		t.Fatalf("OnUnload not called")
	}
	_, err := s.Dictionary(ctx, "a")
	if diff := cmp.Diff(dicterrors.ErrNotFound, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Dictionary after Remove (-want, +got):\n%s", diff)
	}
	err = r.Remove(ctx, "a")
	if diff := cmp.Diff(dicterrors.ErrNotFound, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("second Remove (-want, +got):\n%s", diff)
	}
}
