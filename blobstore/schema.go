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

	dicterrors "github.com/ianlewis/go-yomidict/errors"
)

// SchemaVersion is the storage schema this package reads and writes.
const SchemaVersion = "1"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS schema_info (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dictionaries (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		revision        TEXT NOT NULL,
		format          INTEGER NOT NULL,
		sequenced       INTEGER NOT NULL DEFAULT 0,
		author          TEXT NOT NULL DEFAULT '',
		url             TEXT NOT NULL DEFAULT '',
		description     TEXT NOT NULL DEFAULT '',
		attribution     TEXT NOT NULL DEFAULT '',
		source_language TEXT NOT NULL DEFAULT '',
		target_language TEXT NOT NULL DEFAULT '',
		styles          TEXT NOT NULL DEFAULT '',
		phf             BLOB NOT NULL,
		codec           INTEGER NOT NULL,
		key_count       INTEGER NOT NULL,
		record_count    INTEGER NOT NULL,
		meta_count      INTEGER NOT NULL DEFAULT 0,
		imported_at     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS slots (
		dict_id     TEXT NOT NULL,
		slot        INTEGER NOT NULL,
		blob        BLOB NOT NULL,
		byte_length INTEGER NOT NULL,
		PRIMARY KEY (dict_id, slot)
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS registry (
		dict_id  TEXT PRIMARY KEY,
		priority INTEGER NOT NULL,
		enabled  INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		dict_id    TEXT NOT NULL,
		name       TEXT NOT NULL,
		category   TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		notes      TEXT NOT NULL DEFAULT '',
		score      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (dict_id, name)
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS term_meta (
		dict_id TEXT NOT NULL,
		key     TEXT NOT NULL,
		seq     INTEGER NOT NULL,
		reading TEXT NOT NULL DEFAULT '',
		data    BLOB NOT NULL,
		PRIMARY KEY (dict_id, key, seq)
	) WITHOUT ROWID`,
}

// migrate creates missing tables and checks the recorded schema version.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	var version string
	err = tx.QueryRowContext(ctx, `SELECT value FROM schema_info WHERE key = 'version'`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_info (key, value) VALUES ('version', ?)`, SchemaVersion); err != nil {
			return fmt.Errorf("recording schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	case version != SchemaVersion:
		return fmt.Errorf("%w: found version %q, want %q", dicterrors.ErrUnsupportedSchema, version, SchemaVersion)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
