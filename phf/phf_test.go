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

package phf

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	dicterrors "github.com/ianlewis/go-yomidict/errors"
)

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	return keys
}

func build(t *testing.T, keys []string, opts ...Option) *Index {
	t.Helper()
	b := NewBuilder(opts...)
	for _, k := range keys {
		b.Add(k)
	}
	idx, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func TestBuild_bijection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		keys []string
		opts []Option
	}{
		{name: "one key", keys: []string{"猫"}},
		{name: "two keys", keys: []string{"猫", "ねこ"}},
		{name: "three keys", keys: makeKeys(3)},
		{name: "hundred keys", keys: makeKeys(100)},
		{name: "many keys", keys: makeKeys(20000)},
		{name: "murmur3", keys: makeKeys(5000), opts: []Option{WithHash(HashMurmur3)}},
		{name: "seeded", keys: makeKeys(777), opts: []Option{WithSeed(42)}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			idx := build(t, test.keys, test.opts...)
			if diff := cmp.Diff(len(test.keys), idx.Len()); diff != "" {
				t.Fatalf("Len (-want, +got):\n%s", diff)
			}

			seen := make(map[uint32]string, len(test.keys))
			for _, k := range test.keys {
				s := idx.Slot(k)
				if s >= uint32(len(test.keys)) {
					t.Fatalf("Slot(%q) = %d, out of range [0, %d)", k, s, len(test.keys))
				}
				if other, ok := seen[s]; ok {
					t.Fatalf("Slot(%q) = Slot(%q) = %d", k, other, s)
				}
				seen[s] = k
			}
		})
	}
}

func TestBuild_large(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping large index build in short mode")
	}

	keys := makeKeys(300000)
	idx := build(t, keys)
	if diff := cmp.Diff(len(keys), idx.Len()); diff != "" {
		t.Fatalf("Len (-want, +got):\n%s", diff)
	}
	if err := idx.Verify(keys); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	data, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	loaded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, k := range keys[:1000] {
		if got, want := loaded.Slot(k), idx.Slot(k); got != want {
			t.Fatalf("Slot(%q) after Unmarshal = %d, want %d", k, got, want)
		}
	}
}

func TestBuild_deterministic(t *testing.T) {
	t.Parallel()

	keys := makeKeys(3000)
	b1, err := build(t, keys).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	b2, err := build(t, keys).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if diff := cmp.Diff(b1, b2); diff != "" {
		t.Fatalf("index bytes (-first, +second):\n%s", diff)
	}
}

func TestBuild_errors(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		_, err := NewBuilder().Build(context.Background())
		if !errors.Is(err, dicterrors.ErrEmptyKeySet) || !errors.Is(err, dicterrors.ErrIndexBuildFailed) {
			t.Fatalf("Build: got %v, want ErrEmptyKeySet and ErrIndexBuildFailed", err)
		}
	})

	t.Run("consumed", func(t *testing.T) {
		t.Parallel()

		b := NewBuilder()
		b.Add("a")
		if _, err := b.Build(context.Background()); err != nil {
			t.Fatalf("Build: %v", err)
		}
		_, err := b.Build(context.Background())
		if diff := cmp.Diff(dicterrors.ErrBuilderConsumed, err, cmpopts.EquateErrors()); diff != "" {
			t.Fatalf("second Build (-want, +got):\n%s", diff)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		b := NewBuilder()
		for _, k := range makeKeys(100) {
			b.Add(k)
		}
		_, err := b.Build(ctx)
		if diff := cmp.Diff(context.Canceled, err, cmpopts.EquateErrors()); diff != "" {
			t.Fatalf("Build (-want, +got):\n%s", diff)
		}
	})
}

func TestBuilder_Add(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	added := []bool{b.Add("b"), b.Add("a"), b.Add("b"), b.Add("c")}
	if diff := cmp.Diff([]bool{true, true, false, true}, added); diff != "" {
		t.Fatalf("Add (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, b.Keys()); diff != "" {
		t.Fatalf("Keys (-want, +got):\n%s", diff)
	}
}

func TestIndex_MarshalBinary(t *testing.T) {
	t.Parallel()

	keys := makeKeys(1000)
	idx := build(t, keys, WithHash(HashMurmur3))
	data, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(HashMurmur3, got.Hash()); diff != "" {
		t.Fatalf("Hash (-want, +got):\n%s", diff)
	}
	for _, k := range keys {
		if want, got := idx.Slot(k), got.Slot(k); want != got {
			t.Fatalf("Slot(%q): want %d, got %d", k, want, got)
		}
	}
	if err := got.Verify(keys); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestUnmarshal_corrupt(t *testing.T) {
	t.Parallel()

	data, err := build(t, makeKeys(200)).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	badVersion := append([]byte(nil), data...)
	badVersion[4] = 99
	badHash := append([]byte(nil), data...)
	badHash[5] = 7

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "bad magic", data: append([]byte("NOPE"), data[4:]...)},
		{name: "bad version", data: badVersion},
		{name: "bad hash", data: badHash},
		{name: "truncated header", data: data[:headerSize+1]},
		{name: "truncated pilots", data: data[:len(data)/2]},
		{name: "trailing bytes", data: append(append([]byte(nil), data...), 0)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := Unmarshal(test.data)
			if diff := cmp.Diff(dicterrors.ErrCorruptIndex, err, cmpopts.EquateErrors()); diff != "" {
				t.Fatalf("Unmarshal (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	keys := makeKeys(50)
	idx := build(t, keys)

	if err := idx.Verify(keys[:49]); !errors.Is(err, dicterrors.ErrIndexBuildFailed) {
		t.Fatalf("Verify(short): got %v", err)
	}
	dup := append(append([]string(nil), keys[:49]...), keys[0])
	if err := idx.Verify(dup); !errors.Is(err, dicterrors.ErrIndexBuildFailed) {
		t.Fatalf("Verify(duplicate): got %v", err)
	}
}

func TestGroup(t *testing.T) {
	t.Parallel()

	type rec struct {
		term, reading string
	}
	recs := []rec{
		{"日本語", "にほんご"},
		{"猫", "ねこ"},
		{"ねこ", ""},
		{"猫", "ねこ"},
	}
	keys := []string{"日本語", "にほんご", "猫", "ねこ"}
	idx := build(t, keys)

	groups := Group(idx, recs, func(r rec) []string {
		if r.reading == "" {
			return []string{r.term}
		}
		return []string{r.term, r.reading}
	})

	want := map[string][]int{
		"日本語":  {0},
		"にほんご": {0},
		"猫":    {1, 3},
		"ねこ":   {1, 2, 3},
	}
	for key, items := range want {
		if diff := cmp.Diff(items, groups[idx.Slot(key)]); diff != "" {
			t.Fatalf("Group[%q] (-want, +got):\n%s", key, diff)
		}
	}
}
