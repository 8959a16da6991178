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

package resolver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ianlewis/go-yomidict/blobstore"
	dicterrors "github.com/ianlewis/go-yomidict/errors"
	"github.com/ianlewis/go-yomidict/internal/folding"
	"github.com/ianlewis/go-yomidict/phf"
	"github.com/ianlewis/go-yomidict/registry"
	"github.com/ianlewis/go-yomidict/termbank"
)

func recordKeys(rec termbank.TermRecord) []string {
	keys := []string{folding.Normalize(rec.Term)}
	if r := folding.Normalize(rec.Reading); r != "" && r != keys[0] {
		keys = append(keys, r)
	}
	return keys
}

// seed commits a dictionary holding recs, grouped by term and reading keys.
func seed(t *testing.T, s *blobstore.Store, id string, recs []termbank.TermRecord, tags []termbank.Tag) {
	t.Helper()
	ctx := context.Background()

	b := phf.NewBuilder()
	for _, rec := range recs {
		for _, k := range recordKeys(rec) {
			b.Add(k)
		}
	}
	keys := b.Keys()
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
		RecordCount: len(recs),
	})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback()

	groups := phf.Group(idx, recs, recordKeys)
	for _, k := range keys {
		slot := idx.Slot(k)
		bucket := &blobstore.Bucket{Key: k}
		for _, i := range groups[slot] {
			bucket.Records = append(bucket.Records, recs[i])
		}
		if err := tx.Put(ctx, slot, bucket); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := tx.PutTags(ctx, tags); err != nil {
		t.Fatalf("PutTags: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

var (
	recNihongo   = termbank.TermRecord{Term: "日本語", Reading: "にほんご", Definitions: []termbank.Definition{{Text: "Japanese language"}}, Shard: 0, Position: 0}
	recNeko      = termbank.TermRecord{Term: "猫", Reading: "ねこ", DefinitionTags: []string{"n"}, Definitions: []termbank.Definition{{Text: "cat"}}, Shard: 0, Position: 1}
	recByou      = termbank.TermRecord{Term: "猫", Reading: "びょう", Definitions: []termbank.Definition{{Text: "cat (literary)"}}, Shard: 1, Position: 0}
	recNekoB     = termbank.TermRecord{Term: "猫", Reading: "ねこ", Definitions: []termbank.Definition{{Text: "feline"}}, Shard: 0, Position: 0}
	recDog       = termbank.TermRecord{Term: "dog", Definitions: []termbank.Definition{{Text: "canine"}}, Shard: 0, Position: 1}
	tagNoun      = termbank.Tag{Name: "n", Category: "partOfSpeech", Notes: "noun"}
	dictARecs    = []termbank.TermRecord{recNihongo, recNeko, recByou}
	dictBRecs    = []termbank.TermRecord{recNekoB, recDog}
	entryNeko    = Entry{DictionaryID: "a", DictionaryTitle: "Dict a", Priority: 0, Record: recNeko, Tags: []termbank.Tag{tagNoun}}
	entryByou    = Entry{DictionaryID: "a", DictionaryTitle: "Dict a", Priority: 0, Record: recByou}
	entryNekoB   = Entry{DictionaryID: "b", DictionaryTitle: "Dict b", Priority: 1, Record: recNekoB}
	entryDog     = Entry{DictionaryID: "b", DictionaryTitle: "Dict b", Priority: 1, Record: recDog}
	entryNihongo = Entry{DictionaryID: "a", DictionaryTitle: "Dict a", Priority: 0, Record: recNihongo}
)

func setup(t *testing.T) (*blobstore.Store, *registry.Registry, *Resolver) {
	t.Helper()

	s, err := blobstore.Open(context.Background(), filepath.Join(t.TempDir(), "dict.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	seed(t, s, "a", dictARecs, []termbank.Tag{tagNoun})
	seed(t, s, "b", dictBRecs, nil)

	reg := registry.New(s, nil)
	t.Cleanup(func() { reg.Close() })
	if _, err := reg.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	r, err := New(reg, &Options{CacheSize: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, reg, r
}

func TestLookup(t *testing.T) {
	t.Parallel()

	_, _, r := setup(t)

	tests := []struct {
		name     string
		query    string
		opts     *LookupOptions
		expected []Entry
	}{
		{
			name:     "homographs across dictionaries",
			query:    "猫",
			expected: []Entry{entryNeko, entryByou, entryNekoB},
		},
		{
			name:     "reading without match readings",
			query:    "ねこ",
			expected: nil,
		},
		{
			name:     "reading with match readings",
			query:    "ねこ",
			opts:     &LookupOptions{MatchReadings: true},
			expected: []Entry{entryNeko, entryNekoB},
		},
		{
			name:     "max results per dictionary",
			query:    "猫",
			opts:     &LookupOptions{MaxResultsPerDictionary: 1},
			expected: []Entry{entryNeko, entryNekoB},
		},
		{
			name:     "normalized query",
			query:    " ＤＯＧ ",
			expected: []Entry{entryDog},
		},
		{
			name:     "single dictionary",
			query:    "日本語",
			expected: []Entry{entryNihongo},
		},
		{
			name:     "unknown term",
			query:    "xyz",
			expected: nil,
		},
		{
			name:     "empty query",
			query:    "  ",
			expected: nil,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			res, err := r.Lookup(context.Background(), test.query, test.opts)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if diff := cmp.Diff(test.expected, res.Entries, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("Lookup(%q) (-want, +got):\n%s", test.query, diff)
			}
			if len(res.Warnings) != 0 {
				t.Fatalf("Lookup(%q) warnings: %v", test.query, res.Warnings)
			}
		})
	}
}

func TestLookup_priority(t *testing.T) {
	t.Parallel()

	_, reg, r := setup(t)
	if err := reg.SetPriority(context.Background(), "b", 0); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}

	res, err := r.Lookup(context.Background(), "猫", nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	var got []string
	for _, e := range res.Entries {
		got = append(got, e.DictionaryID+":"+e.Record.Reading)
	}
	if diff := cmp.Diff([]string{"b:ねこ", "a:ねこ", "a:びょう"}, got); diff != "" {
		t.Fatalf("Lookup order (-want, +got):\n%s", diff)
	}
}

func TestLookup_cache(t *testing.T) {
	t.Parallel()

	_, reg, r := setup(t)
	ctx := context.Background()

	for range 3 {
		if _, err := r.Lookup(ctx, "猫", nil); err != nil {
			t.Fatalf("Lookup: %v", err)
		}
	}
	hits, misses := r.CacheStats()
	if diff := cmp.Diff(uint64(2), misses); diff != "" {
		t.Fatalf("misses (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff(uint64(4), hits); diff != "" {
		t.Fatalf("hits (-want, +got):\n%s", diff)
	}

	// Unloading drops the dictionary's cached buckets.
	if err := reg.Unload(ctx, "a"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	for _, k := range r.cache.Keys() {
		if k.id == "a" {
			t.Fatalf("cache still holds %v after unload", k)
		}
	}
	res, err := r.Lookup(ctx, "猫", nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if diff := cmp.Diff([]Entry{entryNekoB}, res.Entries); diff != "" {
		t.Fatalf("Lookup after unload (-want, +got):\n%s", diff)
	}
}

func TestLookup_missingSlot(t *testing.T) {
	t.Parallel()

	s, reg, r := setup(t)
	ctx := context.Background()

	// Delete b's rows while its handle is still loaded.
	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	res, err := r.Lookup(ctx, "猫", nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if diff := cmp.Diff([]Entry{entryNeko, entryByou}, res.Entries); diff != "" {
		t.Fatalf("Lookup entries (-want, +got):\n%s", diff)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Lookup warnings: got %v, want one", res.Warnings)
	}
	w := res.Warnings[0]
	if w.DictionaryID != "b" || !w.Unloaded || !errors.Is(w, dicterrors.ErrSlotNotFound) {
		t.Fatalf("Lookup warning: got %+v", w)
	}
	if _, ok := reg.Get("b"); ok {
		t.Fatalf("dictionary b still loaded")
	}
}

func TestLookup_cancelled(t *testing.T) {
	t.Parallel()

	_, _, r := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Lookup(ctx, "猫", nil)
	if diff := cmp.Diff(context.Canceled, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("Lookup error (-want, +got):\n%s", diff)
	}
	if res == nil {
		t.Fatalf("Lookup returned nil result")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("Lookup warnings: %v", res.Warnings)
	}
}

func TestLookup_meta(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, reg, r := setup(t)

	rows := []blobstore.Meta{
		{Key: "猫", Frequency: &termbank.Frequency{Value: 5, Display: "5"}},
		{Key: "猫", Reading: "ねこ", Pitches: []termbank.Pitch{{Position: 0}}},
		{Key: "dog", Frequency: &termbank.Frequency{Value: 3, Display: "3"}},
	}
	tx, err := s.Begin(ctx, &blobstore.Dictionary{
		Manifest:  termbank.Manifest{ID: "f", Title: "Dict f", Revision: "1", Format: 3},
		MetaCount: len(rows),
	})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback()
	if err := tx.PutMeta(ctx, rows); err != nil {
		t.Fatalf("PutMeta: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := reg.Load(ctx, "f"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	freq := []DictionaryFrequency{{DictionaryID: "f", DictionaryTitle: "Dict f", Frequencies: []termbank.Frequency{{Value: 5, Display: "5"}}}}
	pitch := []DictionaryPitch{{DictionaryID: "f", DictionaryTitle: "Dict f", Pitches: []termbank.Pitch{{Position: 0}}}}
	neko, byou, nekoB := entryNeko, entryByou, entryNekoB
	neko.Frequencies, neko.Pitches = freq, pitch
	byou.Frequencies = freq
	nekoB.Frequencies, nekoB.Pitches = freq, pitch

	res, err := r.Lookup(ctx, "猫", nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if diff := cmp.Diff([]Entry{neko, byou, nekoB}, res.Entries, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("Lookup (-want, +got):\n%s", diff)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("Warnings: %v", res.Warnings)
	}

	// Meta rows alone do not make entries.
	res, err = r.Lookup(ctx, "鳥", nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Fatalf("Lookup(鳥) = %v, want no entries", res.Entries)
	}
}
