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
	"encoding/binary"
	"fmt"

	dicterrors "github.com/ianlewis/go-yomidict/errors"
	"github.com/ianlewis/go-yomidict/termbank"
)

// Bucket is the content of one index slot: the normalized key the slot was
// built for and every record reachable from that key, in origin order.
type Bucket struct {
	Key     string
	Records []termbank.TermRecord
}

// recordVersion is the version byte leading every serialized bucket.
const recordVersion = 1

// marshalBucket serializes a bucket. Strings and byte slices are uvarint
// length-prefixed and integers are varint encoded.
//
//	version  1 byte
//	key      string
//	count    uvarint
//	records  count x record
//
// A record is term, reading, definition tags, rules, score, definitions,
// sequence, term tags, optional frequency, shard and position.
func marshalBucket(b *Bucket) []byte {
	w := writer{buf: make([]byte, 0, 256)}
	w.byte(recordVersion)
	w.str(b.Key)
	w.uvarint(uint64(len(b.Records)))
	for i := range b.Records {
		r := &b.Records[i]
		w.str(r.Term)
		w.str(r.Reading)
		w.strs(r.DefinitionTags)
		w.strs(r.Rules)
		w.varint(r.Score)
		w.uvarint(uint64(len(r.Definitions)))
		for _, d := range r.Definitions {
			w.byte(byte(d.Kind))
			w.str(d.Text)
			w.bytes(d.Raw)
		}
		w.varint(r.Sequence)
		w.strs(r.TermTags)
		if r.Frequency != nil {
			w.byte(1)
			w.varint(r.Frequency.Value)
			w.str(r.Frequency.Display)
		} else {
			w.byte(0)
		}
		w.uvarint(uint64(r.Shard))
		w.uvarint(uint64(r.Position))
	}
	return w.buf
}

// unmarshalBucket decodes a serialized bucket. Every length is checked
// against the remaining input before it is used.
func unmarshalBucket(data []byte) (*Bucket, error) {
	r := reader{buf: data}
	if v := r.byte(); r.err == nil && v != recordVersion {
		return nil, fmt.Errorf("%w: record version %d", dicterrors.ErrBlobCorrupt, v)
	}

	b := &Bucket{Key: r.str()}
	n := r.count()
	if n > 0 {
		b.Records = make([]termbank.TermRecord, 0, n)
	}
	for range n {
		var rec termbank.TermRecord
		rec.Term = r.str()
		rec.Reading = r.str()
		rec.DefinitionTags = r.strs()
		rec.Rules = r.strs()
		rec.Score = r.varint()
		if nd := r.count(); nd > 0 {
			rec.Definitions = make([]termbank.Definition, 0, nd)
			for range nd {
				rec.Definitions = append(rec.Definitions, termbank.Definition{
					Kind: termbank.DefinitionKind(r.byte()),
					Text: r.str(),
					Raw:  r.bytes(),
				})
			}
		}
		rec.Sequence = r.varint()
		rec.TermTags = r.strs()
		switch r.byte() {
		case 0:
		case 1:
			rec.Frequency = &termbank.Frequency{Value: r.varint(), Display: r.str()}
		default:
			r.fail("bad frequency flag")
		}
		rec.Shard = int(r.uvarint())
		rec.Position = int(r.uvarint())
		if r.err != nil {
			break
		}
		b.Records = append(b.Records, rec)
	}

	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", dicterrors.ErrBlobCorrupt, len(r.buf))
	}
	return b, nil
}

// Meta is a frequency or pitch row of a dictionary. Exactly one of
// Frequency and Pitches is set.
type Meta struct {
	// Key is the normalized term the row applies to.
	Key string

	// Reading is the reading the row applies to. Empty means every reading.
	Reading string

	Frequency *termbank.Frequency
	Pitches   []termbank.Pitch
}

const (
	metaFrequency = 1
	metaPitch     = 2
)

// marshalMeta serializes the payload of a meta row. Key and reading are
// stored as columns.
//
//	version  1 byte
//	kind     1 byte
//	freq     value varint, display string
//	pitch    count uvarint, count x (position varint, nasal, devoice, tags)
func marshalMeta(m *Meta) []byte {
	w := writer{buf: make([]byte, 0, 32)}
	w.byte(recordVersion)
	if m.Frequency != nil {
		w.byte(metaFrequency)
		w.varint(m.Frequency.Value)
		w.str(m.Frequency.Display)
		return w.buf
	}
	w.byte(metaPitch)
	w.uvarint(uint64(len(m.Pitches)))
	for _, p := range m.Pitches {
		w.varint(int64(p.Position))
		w.ints(p.Nasal)
		w.ints(p.Devoice)
		w.strs(p.Tags)
	}
	return w.buf
}

func unmarshalMeta(data []byte) (*Meta, error) {
	r := reader{buf: data}
	if v := r.byte(); r.err == nil && v != recordVersion {
		return nil, fmt.Errorf("%w: meta version %d", dicterrors.ErrBlobCorrupt, v)
	}

	var m Meta
	switch r.byte() {
	case metaFrequency:
		m.Frequency = &termbank.Frequency{Value: r.varint(), Display: r.str()}
	case metaPitch:
		n := r.count()
		if n > 0 {
			m.Pitches = make([]termbank.Pitch, 0, n)
		}
		for range n {
			p := termbank.Pitch{Position: int(r.varint())}
			p.Nasal = r.ints()
			p.Devoice = r.ints()
			p.Tags = r.strs()
			if r.err != nil {
				break
			}
			m.Pitches = append(m.Pitches, p)
		}
	default:
		r.fail("bad meta kind")
	}

	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", dicterrors.ErrBlobCorrupt, len(r.buf))
	}
	return &m, nil
}

type writer struct {
	buf []byte
}

func (w *writer) byte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) uvarint(v uint64) { w.buf = binary.AppendUvarint(w.buf, v) }

func (w *writer) varint(v int64) { w.buf = binary.AppendVarint(w.buf, v) }

func (w *writer) str(s string) {
	w.uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) strs(ss []string) {
	w.uvarint(uint64(len(ss)))
	for _, s := range ss {
		w.str(s)
	}
}

func (w *writer) ints(ns []int) {
	w.uvarint(uint64(len(ns)))
	for _, n := range ns {
		w.varint(int64(n))
	}
}

// reader decodes the serialization written by writer. After the first error
// every method returns a zero value.
type reader struct {
	buf []byte
	err error
}

func (r *reader) fail(msg string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", dicterrors.ErrBlobCorrupt, msg)
	}
	r.buf = nil
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 1 {
		r.fail("truncated")
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail("bad uvarint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.fail("bad varint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

// count reads an element count. Every element occupies at least one byte so
// a count larger than the remaining input is corrupt.
func (r *reader) count() int {
	n := r.uvarint()
	if n > uint64(len(r.buf)) {
		r.fail("count exceeds input")
		return 0
	}
	return int(n)
}

func (r *reader) raw() []byte {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.buf)) {
		r.fail("length exceeds input")
		return nil
	}
	b := r.buf[:n:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) str() string {
	return string(r.raw())
}

func (r *reader) bytes() []byte {
	b := r.raw()
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *reader) strs() []string {
	n := r.count()
	if n == 0 {
		return nil
	}
	ss := make([]string, 0, n)
	for range n {
		ss = append(ss, r.str())
	}
	return ss
}

func (r *reader) ints() []int {
	n := r.count()
	if n == 0 {
		return nil
	}
	ns := make([]int, 0, n)
	for range n {
		ns = append(ns, int(r.varint()))
	}
	return ns
}
