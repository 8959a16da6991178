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
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// DefinitionKind identifies how a definition's content is encoded.
type DefinitionKind uint8

const (
	// DefinitionText is a plain text gloss.
	DefinitionText DefinitionKind = iota

	// DefinitionStructured is a structured-content JSON tree.
	DefinitionStructured

	// DefinitionImage is an image reference. The image itself is not stored.
	DefinitionImage

	// DefinitionDeinflection is a [uninflected, [rules]] pair.
	DefinitionDeinflection
)

// String implements [fmt.Stringer].
func (k DefinitionKind) String() string {
	switch k {
	case DefinitionText:
		return "text"
	case DefinitionStructured:
		return "structured-content"
	case DefinitionImage:
		return "image"
	case DefinitionDeinflection:
		return "deinflection"
	default:
		return fmt.Sprintf("DefinitionKind(%d)", k)
	}
}

// Definition is one gloss of a term.
type Definition struct {
	Kind DefinitionKind

	// Text is the gloss for DefinitionText and the image path or
	// uninflected form for other kinds when one is present.
	Text string

	// Raw is the original JSON value for non-text definitions.
	Raw []byte
}

// Frequency is the frequency metadata attached to a term.
type Frequency struct {
	Value   int64
	Display string
}

// TermRecord is one decoded term bank row.
type TermRecord struct {
	Term           string
	Reading        string
	DefinitionTags []string
	Rules          []string
	Score          int64
	Definitions    []Definition
	Sequence       int64
	TermTags       []string
	Frequency      *Frequency

	// Shard is the 0-based order of the term bank the record came from and
	// Position is the record's row index within that bank. Together they
	// are the record's origin sequence.
	Shard    int
	Position int
}

// ErrInvalidRow indicates a row that could not be used as a term record.
var ErrInvalidRow = errors.New("invalid term row")

// DefaultMaxShardSize is the default limit on the size of a single bank.
const DefaultMaxShardSize = 256 << 20

// ScannerOptions are options for scanning a term bank.
type ScannerOptions struct {
	// Shard is the 0-based shard order recorded on every record.
	Shard int

	// Format is the archive format. Format 1 stores glossary items inline.
	Format int

	// MaxShardSize is the maximum number of bytes read from the bank.
	MaxShardSize int64
}

// DefaultScannerOptions is the default options for a Scanner.
var DefaultScannerOptions = &ScannerOptions{
	Format:       DefaultFormat,
	MaxShardSize: DefaultMaxShardSize,
}

// Scanner scans the rows of a term bank from start to end. Rows are decoded
// one at a time as the bank is read. A Scanner is finite and not
// restartable.
type Scanner struct {
	r    io.ReadCloser
	dec  *json.Decoder
	opts ScannerOptions

	rows    int
	done    bool
	rec     TermRecord
	skipped int
	err     error
}

// NewScanner returns a Scanner over the term bank read from r. The Scanner
// assumes ownership of the reader and should be closed with the Close
// method.
func NewScanner(r io.ReadCloser, options *ScannerOptions) *Scanner {
	if options == nil {
		options = DefaultScannerOptions
	}
	s := &Scanner{
		r:    r,
		opts: *options,
	}
	if s.opts.MaxShardSize <= 0 {
		s.opts.MaxShardSize = DefaultMaxShardSize
	}

	br := bufio.NewReader(&limitedReader{r: r, n: s.opts.MaxShardSize, limit: s.opts.MaxShardSize})
	if bom, err := br.Peek(len(utf8BOM)); err == nil && string(bom) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	s.dec = json.NewDecoder(br)

	tok, err := s.dec.Token()
	if err != nil {
		s.err = fmt.Errorf("decoding term bank: %w", err)
		return s
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		s.err = fmt.Errorf("decoding term bank: expected array, got %v", tok)
	}
	return s
}

// Scan advances to the next usable record. Rows that are not usable, such
// as rows without a term, are skipped and counted. It returns false when the
// bank is exhausted or could not be decoded; records returned before a
// decoding error are still valid.
func (s *Scanner) Scan() bool {
	for s.err == nil && !s.done {
		if !s.dec.More() {
			if _, err := s.dec.Token(); err != nil {
				s.err = fmt.Errorf("decoding term bank: %w", err)
			}
			s.done = true
			return false
		}

		var raw json.RawMessage
		if err := s.dec.Decode(&raw); err != nil {
			s.err = fmt.Errorf("decoding term bank: %w", err)
			return false
		}
		pos := s.rows
		s.rows++

		rec, err := decodeTermRow(raw, s.opts.Format)
		if err != nil {
			s.skipped++
			continue
		}
		rec.Shard = s.opts.Shard
		rec.Position = pos
		s.rec = rec
		return true
	}
	return false
}

// Record returns the record most recently produced by Scan.
func (s *Scanner) Record() TermRecord {
	return s.rec
}

// Skipped returns the number of rows skipped so far.
func (s *Scanner) Skipped() int {
	return s.skipped
}

// Len returns the number of rows read so far.
func (s *Scanner) Len() int {
	return s.rows
}

// Err returns the error that stopped the scan, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Close closes the underlying reader.
func (s *Scanner) Close() error {
	if err := s.r.Close(); err != nil {
		return fmt.Errorf("closing term bank: %w", err)
	}
	return nil
}

func decodeTermRow(raw json.RawMessage, format int) (TermRecord, error) {
	var rec TermRecord

	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	if len(row) == 0 {
		return rec, fmt.Errorf("%w: empty row", ErrInvalidRow)
	}
	if err := json.Unmarshal(row[0], &rec.Term); err != nil || rec.Term == "" {
		return rec, fmt.Errorf("%w: missing term", ErrInvalidRow)
	}

	// Remaining fields are optional and decoded leniently.
	rec.Reading = optString(row, 1)
	rec.DefinitionTags = fields(optString(row, 2))
	rec.Rules = fields(optString(row, 3))
	rec.Score = optInt(row, 4)

	if format == 1 {
		if len(row) > 5 {
			rec.Definitions = decodeDefinitions(row[5:])
		}
		return rec, nil
	}

	if len(row) > 5 {
		var glossary []json.RawMessage
		if err := json.Unmarshal(row[5], &glossary); err == nil {
			rec.Definitions = decodeDefinitions(glossary)
		}
	}
	rec.Sequence = optInt(row, 6)
	rec.TermTags = fields(optString(row, 7))
	return rec, nil
}

// fields splits a space separated tag list. An empty list is nil.
func fields(s string) []string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return nil
	}
	return f
}

// decodeDefinitions decodes the usable glossary items. It returns nil if
// there are none.
func decodeDefinitions(items []json.RawMessage) []Definition {
	var defs []Definition
	for _, item := range items {
		if d, ok := decodeDefinition(item); ok {
			defs = append(defs, d)
		}
	}
	return defs
}

func decodeDefinition(item json.RawMessage) (Definition, bool) {
	var text string
	if err := json.Unmarshal(item, &text); err == nil {
		return Definition{Kind: DefinitionText, Text: text}, true
	}

	var obj struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(item, &obj); err == nil {
		raw := append([]byte(nil), item...)
		switch obj.Type {
		case "text":
			return Definition{Kind: DefinitionText, Text: obj.Text}, true
		case "image":
			return Definition{Kind: DefinitionImage, Text: obj.Path, Raw: raw}, true
		case "structured-content":
			return Definition{Kind: DefinitionStructured, Raw: raw}, true
		}
		return Definition{}, false
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(item, &pair); err == nil && len(pair) == 2 {
		var uninflected string
		if err := json.Unmarshal(pair[0], &uninflected); err == nil {
			return Definition{
				Kind: DefinitionDeinflection,
				Text: uninflected,
				Raw:  append([]byte(nil), item...),
			}, true
		}
	}
	return Definition{}, false
}

func optString(row []json.RawMessage, i int) string {
	if i >= len(row) {
		return ""
	}
	var s string
	if err := json.Unmarshal(row[i], &s); err != nil {
		return ""
	}
	return s
}

func optInt(row []json.RawMessage, i int) int64 {
	if i >= len(row) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(row[i], &f); err != nil {
		return 0
	}
	return int64(f)
}
