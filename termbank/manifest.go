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

package termbank

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	dicterrors "github.com/ianlewis/go-yomidict/errors"
)

// ManifestName is the archive entry holding the manifest.
const ManifestName = "index.json"

// StylesName is the optional archive entry holding dictionary CSS.
const StylesName = "styles.css"

// maxManifestSize bounds how much of index.json is read.
const maxManifestSize = 1 << 20

// DefaultFormat is assumed for manifests that carry neither "format" nor
// the legacy "version" field.
const DefaultFormat = 3

var validate = validator.New()

// Manifest is the dictionary identity and metadata read from index.json.
type Manifest struct {
	// ID is the content-derived dictionary identifier. It is not part of
	// the archive and is assigned on import.
	ID string `json:"-"`

	Title          string `json:"title" validate:"required"`
	Revision       string `json:"revision" validate:"required"`
	Format         int    `json:"format" validate:"min=1,max=3"`
	Version        int    `json:"version,omitempty"`
	Sequenced      bool   `json:"sequenced,omitempty"`
	Author         string `json:"author,omitempty"`
	URL            string `json:"url,omitempty"`
	Description    string `json:"description,omitempty"`
	Attribution    string `json:"attribution,omitempty"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	IsUpdatable    bool   `json:"isUpdatable,omitempty"`
	IndexURL       string `json:"indexUrl,omitempty"`
	DownloadURL    string `json:"downloadUrl,omitempty"`

	// Styles holds the contents of styles.css if the archive has one.
	Styles string `json:"-"`
}

// DecodeManifest reads and validates a manifest.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	b, err := readLimited(r, maxManifestSize)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", dicterrors.ErrCorruptArchive, ManifestName, err)
	}

	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", dicterrors.ErrCorruptArchive, ManifestName, err)
	}
	if m.Format == 0 {
		m.Format = m.Version
	}
	if m.Format == 0 {
		m.Format = DefaultFormat
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %v", dicterrors.ErrCorruptArchive, ManifestName, err)
	}

	return &m, nil
}

const utf8BOM = "\xef\xbb\xbf"

// limitedReader reads at most n bytes from r and fails, rather than
// reporting EOF, if r holds more.
type limitedReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		var b [1]byte
		if n, _ := l.r.Read(b[:]); n > 0 {
			return 0, fmt.Errorf("entry exceeds %d bytes", l.limit)
		}
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	return n, err
}

// readLimited reads all of r, failing if it holds more than limit bytes. A
// leading UTF-8 byte order mark is removed.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("entry exceeds %d bytes", limit)
	}
	return bytes.TrimPrefix(b, []byte(utf8BOM)), nil
}
