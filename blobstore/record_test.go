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

package blobstore

import (
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	dicterrors "github.com/ianlewis/go-yomidict/errors"
	"github.com/ianlewis/go-yomidict/termbank"
)

func testBucket() *Bucket {
	return &Bucket{
		Key: "ねこ",
		Records: []termbank.TermRecord{
			{
				Term:           "猫",
				Reading:        "ねこ",
				DefinitionTags: []string{"n"},
				Score:          -5,
				Definitions: []termbank.Definition{
					{Kind: termbank.DefinitionText, Text: "cat"},
					{Kind: termbank.DefinitionStructured, Raw: []byte(`{"type":"structured-content","content":"neko"}`)},
				},
				Sequence:  1467640,
				TermTags:  []string{"P", "ichi1"},
				Frequency: &termbank.Frequency{Value: 120, Display: "120"},
				Shard:     1,
				Position:  42,
			},
			{
				Term:    "ねこ",
				Reading: "",
				Rules:   []string{"v5"},
			},
		},
	}
}

func TestBucket_roundTrip(t *testing.T) {
	t.Parallel()

	want := testBucket()
	got, err := unmarshalBucket(marshalBucket(want))
	if err != nil {
		t.Fatalf("unmarshalBucket: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bucket (-want, +got):\n%s", diff)
	}
}

func TestBucket_roundTripDecoded(t *testing.T) {
	t.Parallel()

	// A row with no tags, rules or glossary, as read from a term bank.
	bank := `[["猫", "", "", "", 0, [], 0, ""]]`
	s := termbank.NewScanner(io.NopCloser(strings.NewReader(bank)), nil)
	defer s.Close()
	want := &Bucket{Key: "猫"}
	for s.Scan() {
		want.Records = append(want.Records, s.Record())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got, err := unmarshalBucket(marshalBucket(want))
	if err != nil {
		t.Fatalf("unmarshalBucket: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bucket (-want, +got):\n%s", diff)
	}
}

func TestMeta_roundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		meta *Meta
	}{
		{
			name: "frequency",
			meta: &Meta{Frequency: &termbank.Frequency{Value: -3, Display: "rare"}},
		},
		{
			name: "pitch",
			meta: &Meta{Pitches: []termbank.Pitch{
				{Position: 0},
				{Position: 2, Nasal: []int{1}, Devoice: []int{2, 3}, Tags: []string{"P", "archaic"}},
			}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			data := marshalMeta(test.meta)
			got, err := unmarshalMeta(data)
			if err != nil {
				t.Fatalf("unmarshalMeta: %v", err)
			}
			if diff := cmp.Diff(test.meta, got); diff != "" {
				t.Fatalf("meta (-want, +got):\n%s", diff)
			}

			for _, bad := range [][]byte{nil, data[:len(data)-1], append(append([]byte(nil), data...), 0)} {
				_, err := unmarshalMeta(bad)
				if diff := cmp.Diff(dicterrors.ErrBlobCorrupt, err, cmpopts.EquateErrors()); diff != "" {
					t.Fatalf("unmarshalMeta(%x) (-want, +got):\n%s", bad, diff)
				}
			}
		})
	}
}

func TestUnmarshalBucket_corrupt(t *testing.T) {
	t.Parallel()

	data := marshalBucket(testBucket())

	badVersion := append([]byte(nil), data...)
	badVersion[0] = 9

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "bad version", data: badVersion},
		{name: "truncated", data: data[:len(data)-3]},
		{name: "trailing", data: append(append([]byte(nil), data...), 0, 0)},
		// version, key length 1, key, count far beyond the input.
		{name: "huge count", data: []byte{recordVersion, 1, 'a', 0xff, 0xff, 0xff, 0xff, 0x0f}},
		// version, key length beyond the input.
		{name: "huge length", data: []byte{recordVersion, 0xff, 0x01, 'a'}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := unmarshalBucket(test.data)
			if diff := cmp.Diff(dicterrors.ErrBlobCorrupt, err, cmpopts.EquateErrors()); diff != "" {
				t.Fatalf("unmarshalBucket (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestCodec(t *testing.T) {
	t.Parallel()

	data := marshalBucket(testBucket())

	for _, codec := range []Codec{CodecZstd, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			t.Parallel()

			frame, err := compress(codec, data)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			if diff := cmp.Diff(byte(codec), frame[0]); diff != "" {
				t.Fatalf("codec byte (-want, +got):\n%s", diff)
			}

			got, err := decompress(frame, int64(len(data)))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if diff := cmp.Diff(data, got); diff != "" {
				t.Fatalf("decompress (-want, +got):\n%s", diff)
			}

			for name, length := range map[string]int64{
				"short": int64(len(data)) - 1,
				"long":  int64(len(data)) + 1,
			} {
				if _, err := decompress(frame, length); !cmp.Equal(dicterrors.ErrBlobCorrupt, err, cmpopts.EquateErrors()) {
					t.Fatalf("decompress(%s length): got %v, want ErrBlobCorrupt", name, err)
				}
			}

			garbage := append([]byte{byte(codec)}, []byte("definitely not compressed")...)
			if _, err := decompress(garbage, int64(len(data))); !cmp.Equal(dicterrors.ErrBlobCorrupt, err, cmpopts.EquateErrors()) {
				t.Fatalf("decompress(garbage): got %v, want ErrBlobCorrupt", err)
			}
		})
	}

	t.Run("unknown codec", func(t *testing.T) {
		t.Parallel()

		_, err := decompress([]byte{0x7f, 1, 2, 3}, 3)
		if diff := cmp.Diff(dicterrors.ErrBlobCorrupt, err, cmpopts.EquateErrors()); diff != "" {
			t.Fatalf("decompress (-want, +got):\n%s", diff)
		}
	})
}

func TestParseCodec(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]Codec{"": CodecZstd, "zstd": CodecZstd, "lz4": CodecLZ4} {
		got, err := ParseCodec(name)
		if err != nil {
			t.Fatalf("ParseCodec(%q): %v", name, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("ParseCodec(%q) (-want, +got):\n%s", name, diff)
		}
	}
	if _, err := ParseCodec("brotli"); err == nil {
		t.Fatalf("ParseCodec(brotli): expected error")
	}
}
