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

// Package archive reads dictionary archives.
//
// An archive is a zip container mapped read-only into memory. The container
// is validated when it is opened and entries are decompressed lazily as they
// are read, so several entries may be streamed concurrently.
package archive

import (
	"archive/zip"
	"bytes"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"

	dicterrors "github.com/ianlewis/go-yomidict/errors"
)

// ManifestName is the entry every archive must contain.
const ManifestName = "index.json"

// zipMagic is the signature of a zip local file header.
var zipMagic = []byte("PK\x03\x04")

// Entry describes an archive entry.
type Entry struct {
	Name  string
	Size  uint64
	CRC32 uint32
}

// Archive is an open dictionary archive.
type Archive struct {
	path string

	mu     sync.Mutex
	m      mmap.MMap
	closed bool

	zr      *zip.Reader
	entries []Entry
	files   map[string]*zip.File
}

// Open maps the archive at path and validates its container structure. The
// archive must contain a manifest entry.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %q: %v", dicterrors.ErrCorruptArchive, path, err)
	}
	// The mapping stays valid after the file is closed.
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %q: %v", dicterrors.ErrCorruptArchive, path, err)
	}
	if fi.Size() < int64(len(zipMagic)) {
		return nil, fmt.Errorf("%w: %q is too small to be an archive", dicterrors.ErrCorruptArchive, path)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: mapping %q: %v", dicterrors.ErrCorruptArchive, path, err)
	}

	a, err := newArchive(path, m)
	if err != nil {
		_ = m.Unmap()
		return nil, err
	}
	return a, nil
}

func newArchive(path string, m mmap.MMap) (*Archive, error) {
	if !bytes.HasPrefix(m, zipMagic) {
		return nil, fmt.Errorf("%w: %q is not a zip archive", dicterrors.ErrCorruptArchive, path)
	}

	zr, err := zip.NewReader(bytes.NewReader(m), int64(len(m)))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", dicterrors.ErrCorruptArchive, path, err)
	}

	files := make([]*zip.File, 0, len(zr.File))
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		files = append(files, zf)
	}

	// Order entries by their position in the container.
	offsets := make(map[*zip.File]int64, len(files))
	for _, zf := range files {
		off, err := zf.DataOffset()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", dicterrors.ErrCorruptArchive, zf.Name, err)
		}
		offsets[zf] = off
	}
	slices.SortStableFunc(files, func(x, y *zip.File) int {
		return cmp.Compare(offsets[x], offsets[y])
	})

	a := &Archive{
		path:    path,
		m:       m,
		zr:      zr,
		entries: make([]Entry, 0, len(files)),
		files:   make(map[string]*zip.File, len(files)),
	}
	for _, zf := range files {
		if _, dup := a.files[zf.Name]; dup {
			continue
		}
		a.files[zf.Name] = zf
		a.entries = append(a.entries, Entry{
			Name:  zf.Name,
			Size:  zf.UncompressedSize64,
			CRC32: zf.CRC32,
		})
	}

	if _, ok := a.files[ManifestName]; !ok {
		return nil, fmt.Errorf("%w: %q has no %s", dicterrors.ErrCorruptArchive, path, ManifestName)
	}
	return a, nil
}

// Path returns the path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Entries returns the archive entries in the order they are stored.
func (a *Archive) Entries() []Entry {
	return slices.Clone(a.entries)
}

// Names returns the entry names in the order they are stored.
func (a *Archive) Names() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.Name
	}
	return names
}

// Has reports whether the archive contains the named entry.
func (a *Archive) Has(name string) bool {
	_, ok := a.files[name]
	return ok
}

// Open returns a stream of the decompressed content of the named entry. A
// checksum mismatch is reported as a read error when the stream is drained.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: archive %q", dicterrors.ErrClosed, a.path)
	}

	zf, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", dicterrors.ErrMissingEntry, name)
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening entry %q: %v", dicterrors.ErrCorruptArchive, name, err)
	}
	return rc, nil
}

// Digest returns a content digest of the archive computed from the manifest
// bytes and the name, checksum and size of every entry. Two archives with the
// same content have the same digest regardless of file name or timestamps.
func (a *Archive) Digest() (string, error) {
	d := xxhash.New()

	rc, err := a.Open(ManifestName)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(d, rc)
	rc.Close()
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", dicterrors.ErrCorruptArchive, ManifestName, err)
	}

	names := a.Names()
	slices.Sort(names)
	var buf []byte
	for _, name := range names {
		e := a.files[name]
		buf = buf[:0]
		buf = append(buf, name...)
		buf = append(buf, 0)
		buf = strconv.AppendUint(buf, uint64(e.CRC32), 16)
		buf = append(buf, 0)
		buf = strconv.AppendUint(buf, e.UncompressedSize64, 10)
		buf = append(buf, '\n')
		_, _ = d.Write(buf)
	}
	return fmt.Sprintf("%016x", d.Sum64()), nil
}

// Close releases the archive mapping. Streams returned by Open must not be
// read after Close.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.m.Unmap(); err != nil {
		return fmt.Errorf("unmapping %q: %w", a.path, err)
	}
	return nil
}
