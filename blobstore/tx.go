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
	"time"

	"github.com/ianlewis/go-yomidict/termbank"
)

// Frame is an encoded bucket ready to be written.
type Frame struct {
	Slot   uint32
	Data   []byte
	Length int64
}

// EncodeBucket serializes and compresses a bucket for slot. It does not
// touch the database and may be called concurrently.
func EncodeBucket(codec Codec, slot uint32, b *Bucket) (Frame, error) {
	data := marshalBucket(b)
	frame, err := compress(codec, data)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding slot %d: %w", slot, err)
	}
	return Frame{Slot: slot, Data: frame, Length: int64(len(data))}, nil
}

// ImportTx writes one dictionary. Nothing it writes is visible to readers
// until Commit, and Rollback discards all of it.
type ImportTx struct {
	store *Store
	tx    *sql.Tx
	id    string
	put   *sql.Stmt
	slots int
}

// Begin starts writing the dictionary d. The dictionary is appended at the
// lowest priority and enabled.
func (s *Store) Begin(ctx context.Context, d *Dictionary) (*ImportTx, error) {
	tx, err := retry(ctx, func() (*sql.Tx, error) {
		return s.db.BeginTx(ctx, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	itx := &ImportTx{store: s, tx: tx, id: d.Manifest.ID}
	if err := itx.begin(ctx, d); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return itx, nil
}

func (t *ImportTx) begin(ctx context.Context, d *Dictionary) error {
	m := &d.Manifest
	codec := d.Codec
	if codec == 0 {
		codec = t.store.codec
	}
	importedAt := d.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now()
	}
	index := d.Index
	if index == nil {
		index = []byte{}
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO dictionaries (
			id, title, revision, format, sequenced, author, url, description,
			attribution, source_language, target_language, styles, phf, codec,
			key_count, record_count, meta_count, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, m.Revision, m.Format, m.Sequenced, m.Author, m.URL, m.Description,
		m.Attribution, m.SourceLanguage, m.TargetLanguage, m.Styles, index, int64(codec),
		d.KeyCount, d.RecordCount, d.MetaCount, importedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("recording dictionary %s: %w", m.ID, err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO registry (dict_id, priority, enabled)
		SELECT ?, COALESCE(MAX(priority) + 1, 0), 1 FROM registry`, m.ID); err != nil {
		return fmt.Errorf("registering dictionary %s: %w", m.ID, err)
	}

	put, err := t.tx.PrepareContext(ctx,
		`INSERT INTO slots (dict_id, slot, blob, byte_length) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing slot insert: %w", err)
	}
	t.put = put
	return nil
}

// Put encodes and writes the bucket of one slot.
func (t *ImportTx) Put(ctx context.Context, slot uint32, b *Bucket) error {
	f, err := EncodeBucket(t.store.codec, slot, b)
	if err != nil {
		return err
	}
	return t.PutFrame(ctx, f)
}

// PutFrame writes a bucket encoded by EncodeBucket.
func (t *ImportTx) PutFrame(ctx context.Context, f Frame) error {
	if _, err := t.put.ExecContext(ctx, t.id, int64(f.Slot), f.Data, f.Length); err != nil {
		return fmt.Errorf("writing slot %d of %s: %w", f.Slot, t.id, err)
	}
	t.slots++
	return nil
}

// PutTags writes the dictionary's tags. A later tag replaces an earlier one
// with the same name.
func (t *ImportTx) PutTags(ctx context.Context, tags []termbank.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO tags (dict_id, name, category, sort_order, notes, score)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing tag insert: %w", err)
	}
	defer stmt.Close()

	for _, tag := range tags {
		if _, err := stmt.ExecContext(ctx, t.id, tag.Name, tag.Category, tag.Order, tag.Notes, tag.Score); err != nil {
			return fmt.Errorf("writing tag %q of %s: %w", tag.Name, t.id, err)
		}
	}
	return nil
}

// PutMeta writes the dictionary's frequency and pitch rows. Rows sharing a
// key are read back in the order given.
func (t *ImportTx) PutMeta(ctx context.Context, rows []Meta) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO term_meta (dict_id, key, seq, reading, data) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing meta insert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		m := &rows[i]
		if _, err := stmt.ExecContext(ctx, t.id, m.Key, i, m.Reading, marshalMeta(m)); err != nil {
			return fmt.Errorf("writing meta %q of %s: %w", m.Key, t.id, err)
		}
	}
	return nil
}

// Commit makes the dictionary visible.
func (t *ImportTx) Commit() error {
	if t.put != nil {
		_ = t.put.Close()
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit import of %s: %w", t.id, err)
	}
	t.store.logger.Debug("import committed", "id", t.id, "slots", t.slots)
	return nil
}

// Rollback discards everything written. It is a no-op after Commit.
func (t *ImportTx) Rollback() error {
	if t.put != nil {
		_ = t.put.Close()
	}
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback import of %s: %w", t.id, err)
	}
	return nil
}

// Partition reads the slots and meta rows of one dictionary through
// prepared statements. It is safe for concurrent use.
type Partition struct {
	id   string
	stmt *sql.Stmt
	meta *sql.Stmt
}

// Partition prepares a reader for dictionary id.
func (s *Store) Partition(ctx context.Context, id string) (*Partition, error) {
	stmt, err := retry(ctx, func() (*sql.Stmt, error) {
		return s.db.PrepareContext(ctx, `SELECT blob, byte_length FROM slots WHERE dict_id = ? AND slot = ?`)
	})
	if err != nil {
		return nil, fmt.Errorf("preparing partition %s: %w", id, err)
	}
	meta, err := retry(ctx, func() (*sql.Stmt, error) {
		return s.db.PrepareContext(ctx, `SELECT reading, data FROM term_meta WHERE dict_id = ? AND key = ? ORDER BY seq`)
	})
	if err != nil {
		_ = stmt.Close()
		return nil, fmt.Errorf("preparing partition %s: %w", id, err)
	}
	return &Partition{id: id, stmt: stmt, meta: meta}, nil
}

// Meta returns the frequency and pitch rows stored for key.
func (p *Partition) Meta(ctx context.Context, key string) ([]Meta, error) {
	return retry(ctx, func() ([]Meta, error) {
		rows, err := p.meta.QueryContext(ctx, p.id, key)
		if err != nil {
			return nil, fmt.Errorf("reading meta of %s: %w", p.id, err)
		}
		defer rows.Close()

		var metas []Meta
		for rows.Next() {
			var reading string
			var data []byte
			if err := rows.Scan(&reading, &data); err != nil {
				return nil, fmt.Errorf("reading meta of %s: %w", p.id, err)
			}
			m, err := unmarshalMeta(data)
			if err != nil {
				return nil, fmt.Errorf("dictionary %s meta %q: %w", p.id, key, err)
			}
			m.Key = key
			m.Reading = reading
			metas = append(metas, *m)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("reading meta of %s: %w", p.id, err)
		}
		return metas, nil
	})
}

// Get returns the bucket of slot.
func (p *Partition) Get(ctx context.Context, slot uint32) (*Bucket, error) {
	return retry(ctx, func() (*Bucket, error) {
		return getBucket(p.stmt.QueryRowContext(ctx, p.id, int64(slot)), p.id, slot)
	})
}

// Close releases the prepared statements.
func (p *Partition) Close() error {
	if err := errors.Join(p.stmt.Close(), p.meta.Close()); err != nil {
		return fmt.Errorf("closing partition %s: %w", p.id, err)
	}
	return nil
}
