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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	// Registers the pure Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	dicterrors "github.com/ianlewis/go-yomidict/errors"
	"github.com/ianlewis/go-yomidict/termbank"
)

// Dictionary is the persisted metadata of an imported dictionary.
type Dictionary struct {
	Manifest    termbank.Manifest
	Index       []byte
	Codec       Codec
	KeyCount    int
	RecordCount int
	ImportedAt  time.Time

	// MetaCount is the number of frequency and pitch rows. A dictionary
	// with no records holds only these and has an empty Index.
	MetaCount int

	// Priority is the dictionary's rank; lower values are consulted first.
	Priority int
	Enabled  bool
}

// Options configure a Store.
type Options struct {
	// Codec is used for blobs written by imports. Defaults to CodecZstd.
	Codec Codec

	// BusyTimeout is how long sqlite waits on a locked database before
	// reporting a conflict.
	BusyTimeout time.Duration

	Logger *slog.Logger
}

// DefaultOptions are the default options for a Store.
var DefaultOptions = &Options{
	Codec:       CodecZstd,
	BusyTimeout: 5 * time.Second,
}

// Store is the embedded relational store holding every imported
// dictionary. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	path   string
	codec  Codec
	logger *slog.Logger
}

// Open opens or creates the store at path.
func Open(ctx context.Context, path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = DefaultOptions
	}
	codec := opts.Codec
	if codec == 0 {
		codec = CodecZstd
	}
	if !codec.valid() {
		return nil, fmt.Errorf("unknown codec %v", codec)
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = DefaultOptions.BusyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: q.Encode()}).String()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store %q: %w", path, err)
	}
	if err := retryExec(ctx, func() error { return migrate(ctx, db) }); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("store opened", "path", path, "codec", codec.String())
	return &Store{
		db:     db,
		path:   path,
		codec:  codec,
		logger: logger,
	}, nil
}

// Path returns the path of the store file.
func (s *Store) Path() string {
	return s.path
}

// Codec returns the codec used for new imports.
func (s *Store) Codec() Codec {
	return s.codec
}

// Close closes the store.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

const selectDictionary = `
	SELECT d.id, d.title, d.revision, d.format, d.sequenced, d.author, d.url,
	       d.description, d.attribution, d.source_language, d.target_language,
	       d.styles, d.phf, d.codec, d.key_count, d.record_count, d.meta_count, d.imported_at,
	       COALESCE(r.priority, 0), COALESCE(r.enabled, 0)
	FROM dictionaries d LEFT JOIN registry r ON r.dict_id = d.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDictionary(row rowScanner) (*Dictionary, error) {
	var d Dictionary
	var importedAt int64
	m := &d.Manifest
	if err := row.Scan(&m.ID, &m.Title, &m.Revision, &m.Format, &m.Sequenced, &m.Author, &m.URL,
		&m.Description, &m.Attribution, &m.SourceLanguage, &m.TargetLanguage,
		&m.Styles, &d.Index, &d.Codec, &d.KeyCount, &d.RecordCount, &d.MetaCount, &importedAt,
		&d.Priority, &d.Enabled); err != nil {
		return nil, err
	}
	d.ImportedAt = time.Unix(0, importedAt).UTC()
	return &d, nil
}

// Dictionary returns the metadata of one dictionary.
func (s *Store) Dictionary(ctx context.Context, id string) (*Dictionary, error) {
	return retry(ctx, func() (*Dictionary, error) {
		d, err := scanDictionary(s.db.QueryRowContext(ctx, selectDictionary+` WHERE d.id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", dicterrors.ErrNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("reading dictionary %s: %w", id, err)
		}
		return d, nil
	})
}

// Dictionaries returns every imported dictionary ordered by priority.
func (s *Store) Dictionaries(ctx context.Context) ([]*Dictionary, error) {
	return retry(ctx, func() ([]*Dictionary, error) {
		rows, err := s.db.QueryContext(ctx, selectDictionary+` ORDER BY COALESCE(r.priority, 0), d.imported_at, d.id`)
		if err != nil {
			return nil, fmt.Errorf("listing dictionaries: %w", err)
		}
		defer rows.Close()

		var dicts []*Dictionary
		for rows.Next() {
			d, err := scanDictionary(rows)
			if err != nil {
				return nil, fmt.Errorf("listing dictionaries: %w", err)
			}
			dicts = append(dicts, d)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("listing dictionaries: %w", err)
		}
		return dicts, nil
	})
}

// Tags returns the tags of a dictionary ordered by name.
func (s *Store) Tags(ctx context.Context, id string) ([]termbank.Tag, error) {
	return retry(ctx, func() ([]termbank.Tag, error) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT name, category, sort_order, notes, score FROM tags WHERE dict_id = ? ORDER BY name`, id)
		if err != nil {
			return nil, fmt.Errorf("reading tags of %s: %w", id, err)
		}
		defer rows.Close()

		var tags []termbank.Tag
		for rows.Next() {
			var t termbank.Tag
			if err := rows.Scan(&t.Name, &t.Category, &t.Order, &t.Notes, &t.Score); err != nil {
				return nil, fmt.Errorf("reading tags of %s: %w", id, err)
			}
			tags = append(tags, t)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("reading tags of %s: %w", id, err)
		}
		return tags, nil
	})
}

// Get returns the bucket stored for a slot of a dictionary.
func (s *Store) Get(ctx context.Context, id string, slot uint32) (*Bucket, error) {
	return retry(ctx, func() (*Bucket, error) {
		return getBucket(s.db.QueryRowContext(ctx,
			`SELECT blob, byte_length FROM slots WHERE dict_id = ? AND slot = ?`, id, int64(slot)), id, slot)
	})
}

func getBucket(row *sql.Row, id string, slot uint32) (*Bucket, error) {
	var frame []byte
	var length int64
	err := row.Scan(&frame, &length)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: dictionary %s slot %d", dicterrors.ErrSlotNotFound, id, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("reading dictionary %s slot %d: %w", id, slot, err)
	}
	data, err := decompress(frame, length)
	if err != nil {
		return nil, fmt.Errorf("dictionary %s slot %d: %w", id, slot, err)
	}
	b, err := unmarshalBucket(data)
	if err != nil {
		return nil, fmt.Errorf("dictionary %s slot %d: %w", id, slot, err)
	}
	return b, nil
}

// SetPriorities updates the priority of several dictionaries at once.
func (s *Store) SetPriorities(ctx context.Context, priorities map[string]int) error {
	return retryExec(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for id, p := range priorities {
			if _, err := tx.ExecContext(ctx,
				`UPDATE registry SET priority = ? WHERE dict_id = ?`, p, id); err != nil {
				return fmt.Errorf("setting priority of %s: %w", id, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

// SetEnabled records whether a dictionary is loaded when the store opens.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return retryExec(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE registry SET enabled = ? WHERE dict_id = ?`, enabled, id)
		if err != nil {
			return fmt.Errorf("updating %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", dicterrors.ErrNotFound, id)
		}
		return nil
	})
}

// Delete removes every row belonging to a dictionary.
func (s *Store) Delete(ctx context.Context, id string) error {
	return retryExec(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var deleted int64
		for _, stmt := range []string{
			`DELETE FROM slots WHERE dict_id = ?`,
			`DELETE FROM tags WHERE dict_id = ?`,
			`DELETE FROM term_meta WHERE dict_id = ?`,
			`DELETE FROM registry WHERE dict_id = ?`,
			`DELETE FROM dictionaries WHERE id = ?`,
		} {
			res, err := tx.ExecContext(ctx, stmt, id)
			if err != nil {
				return fmt.Errorf("deleting %s: %w", id, err)
			}
			deleted, _ = res.RowsAffected()
		}
		if deleted == 0 {
			return fmt.Errorf("%w: %s", dicterrors.ErrNotFound, id)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		s.logger.Debug("dictionary deleted", "id", id)
		return nil
	})
}

// Size returns the number of slots and the total compressed blob bytes of a
// dictionary.
func (s *Store) Size(ctx context.Context, id string) (slots int, bytes int64, err error) {
	type size struct {
		slots int
		bytes int64
	}
	sz, err := retry(ctx, func() (size, error) {
		var sz size
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(LENGTH(blob)), 0) FROM slots WHERE dict_id = ?`, id).Scan(&sz.slots, &sz.bytes)
		if err != nil {
			return sz, fmt.Errorf("sizing %s: %w", id, err)
		}
		return sz, nil
	})
	return sz.slots, sz.bytes, err
}
