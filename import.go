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

package yomidict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ianlewis/go-yomidict/archive"
	"github.com/ianlewis/go-yomidict/blobstore"
	dicterrors "github.com/ianlewis/go-yomidict/errors"
	"github.com/ianlewis/go-yomidict/internal/folding"
	"github.com/ianlewis/go-yomidict/phf"
	"github.com/ianlewis/go-yomidict/termbank"
)

// idNamespace is the UUID namespace of dictionary ids. An id is the SHA-1
// UUID of the archive digest in this namespace.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ianlewis/go-yomidict"))

// Import phases.
const (
	phaseDecode = "decode"
	phaseMeta   = "meta"
	phaseIndex  = "index"
	phaseEncode = "encode"
	phaseWrite  = "write"
	phaseCommit = "commit"
)

// frameCheckInterval is the number of buckets written between checks for
// cancellation.
const frameCheckInterval = 512

// ImportWarning reports a bank that was skipped during an import.
type ImportWarning struct {
	// Entry is the archive entry name.
	Entry string
	Err   error
}

// Error implements error.
func (w ImportWarning) Error() string {
	return fmt.Sprintf("%s: %v", w.Entry, w.Err)
}

// Unwrap returns the underlying error.
func (w ImportWarning) Unwrap() error {
	return w.Err
}

// ImportResult describes a finished import.
type ImportResult struct {
	ID       string
	Manifest Manifest

	// Terms is the number of records stored and Keys the number of distinct
	// lookup keys.
	Terms int
	Keys  int

	// Meta is the number of frequency and pitch rows stored.
	Meta int

	// Skipped counts rows that could not be used.
	Skipped int

	// Warnings lists the banks that could not be decoded.
	Warnings []ImportWarning

	// AlreadyImported is true if the archive was imported before. Nothing
	// was written.
	AlreadyImported bool
}

// Import imports the dictionary archive at path and loads it. Importing an
// archive that is already installed does nothing and reports
// AlreadyImported. The dictionary becomes visible to lookups only once all
// of its data is committed; if the import fails or ctx is cancelled nothing
// is stored.
func (e *Engine) Import(ctx context.Context, path string) (res *ImportResult, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "yomidict.Import", trace.WithAttributes(
		attribute.String("yomidict.path", path),
	))
	defer func() {
		e.metrics.observeImport(importOutcome(res, err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.String("yomidict.id", res.ID),
				attribute.Bool("yomidict.already_imported", res.AlreadyImported),
			)
		}
		span.End()
	}()

	if err := e.imports.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting to import %s: %w", path, err)
	}
	defer e.imports.Release(1)

	a, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	digest, err := a.Digest()
	if err != nil {
		return nil, err
	}
	id := uuid.NewSHA1(idNamespace, []byte(digest)).String()

	release, err := e.registry.BeginImport(id)
	if err != nil {
		return nil, err
	}
	defer release()

	d, err := e.store.Dictionary(ctx, id)
	switch {
	case err == nil:
		e.cfg.logger.Info("dictionary already imported", "id", id, "title", d.Manifest.Title)
		return &ImportResult{
			ID:              id,
			Manifest:        d.Manifest,
			Terms:           d.RecordCount,
			Keys:            d.KeyCount,
			Meta:            d.MetaCount,
			AlreadyImported: true,
		}, nil
	case !errors.Is(err, dicterrors.ErrNotFound):
		return nil, err
	}

	imp := &importer{
		engine:  e,
		archive: a,
		res:     &ImportResult{ID: id},
	}
	if err := imp.run(ctx); err != nil {
		return nil, err
	}
	e.cfg.logger.Info("dictionary imported",
		"id", id,
		"title", imp.res.Manifest.Title,
		"terms", imp.res.Terms,
		"keys", imp.res.Keys,
		"meta", imp.res.Meta,
		"skipped", imp.res.Skipped,
		"warnings", len(imp.res.Warnings),
		"duration", time.Since(start),
	)
	return imp.res, nil
}

// importer holds the state of one import between phases.
type importer struct {
	engine  *Engine
	archive *archive.Archive
	res     *ImportResult

	manifest *termbank.Manifest
	records  []termbank.TermRecord
	tags     []termbank.Tag
	meta     []blobstore.Meta
	keys     []string
	index    *phf.Index
	frames   []blobstore.Frame
}

func (imp *importer) run(ctx context.Context) error {
	e := imp.engine

	m, err := imp.decodeManifest()
	if err != nil {
		return err
	}
	m.ID = imp.res.ID
	imp.manifest = m

	steps := []struct {
		phase string
		run   func(context.Context) error
	}{
		{phaseDecode, imp.decodeTerms},
		{phaseMeta, imp.decodeMeta},
		{phaseIndex, imp.buildIndex},
		{phaseEncode, imp.encode},
		{phaseWrite, imp.write},
	}
	for _, step := range steps {
		if err := e.phase(ctx, step.phase); err != nil {
			return err
		}
		sctx, span := e.tracer.Start(ctx, "yomidict.import."+step.phase)
		err := step.run(sctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			return err
		}
	}

	// The dictionary is committed. Publishing must not be abandoned half
	// way because the caller gave up.
	pctx := context.WithoutCancel(ctx)
	d, err := e.store.Dictionary(pctx, imp.res.ID)
	if err != nil {
		return err
	}
	if _, err := e.registry.Publish(pctx, d); err != nil {
		return err
	}
	imp.res.Manifest = d.Manifest
	return nil
}

func (imp *importer) decodeManifest() (*termbank.Manifest, error) {
	r, err := imp.archive.Open(termbank.ManifestName)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	m, err := termbank.DecodeManifest(r)
	if err != nil {
		return nil, err
	}

	if imp.archive.Has(termbank.StylesName) {
		sr, err := imp.archive.Open(termbank.StylesName)
		if err != nil {
			return nil, err
		}
		defer sr.Close()
		b, err := io.ReadAll(sr)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", dicterrors.ErrCorruptArchive, termbank.StylesName, err)
		}
		m.Styles = string(b)
	}
	return m, nil
}

type shardResult struct {
	records []termbank.TermRecord
	skipped int
	err     error
}

// decodeTerms decodes every term bank. A bank that cannot be decoded is
// reported as a warning; the import fails only if no bank can be. An
// archive without term banks is accepted if it has term meta banks, as
// frequency and pitch dictionaries do.
func (imp *importer) decodeTerms(ctx context.Context) error {
	names := termbank.SortBanks(imp.archive.Names(), termbank.TermBankPrefix)
	if len(names) == 0 {
		if len(termbank.SortBanks(imp.archive.Names(), termbank.TermMetaBankPrefix)) == 0 {
			return fmt.Errorf("%w: archive has no term or term meta banks", dicterrors.ErrImportFailed)
		}
		return nil
	}

	shards := make([]shardResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imp.engine.cfg.importWorkers)
	for i, name := range names {
		g.Go(func() error {
			// Checked between banks so a cancelled import stops decoding.
			if err := gctx.Err(); err != nil {
				return err
			}
			shards[i] = imp.decodeShard(i, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("decoding term banks: %w", err)
	}

	decoded := 0
	for i, s := range shards {
		if s.err != nil {
			imp.warn(names[i], s.err)
			continue
		}
		decoded++
		imp.res.Skipped += s.skipped
		for _, rec := range s.records {
			if folding.Normalize(rec.Term) == "" {
				imp.res.Skipped++
				continue
			}
			imp.records = append(imp.records, rec)
		}
	}
	if decoded == 0 {
		return fmt.Errorf("%w: none of %d term banks could be decoded", dicterrors.ErrImportFailed, len(names))
	}
	return nil
}

func (imp *importer) decodeShard(shard int, name string) shardResult {
	r, err := imp.archive.Open(name)
	if err != nil {
		return shardResult{err: err}
	}
	s := termbank.NewScanner(r, &termbank.ScannerOptions{
		Shard:  shard,
		Format: imp.manifest.Format,
	})
	defer s.Close()

	var res shardResult
	for s.Scan() {
		res.records = append(res.records, s.Record())
	}
	if err := s.Err(); err != nil {
		return shardResult{err: err}
	}
	res.skipped = s.Skipped()
	return res
}

// decodeMeta reads the term meta and tag banks. Both are optional and a
// bank that cannot be decoded is reported as a warning.
func (imp *importer) decodeMeta(ctx context.Context) error {
	var freqs []termbank.FrequencyMeta
	var pitches []termbank.PitchMeta
	for _, name := range termbank.SortBanks(imp.archive.Names(), termbank.TermMetaBankPrefix) {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := imp.archive.Open(name)
		if err != nil {
			imp.warn(name, err)
			continue
		}
		bank, err := termbank.DecodeMeta(r, 0)
		_ = r.Close()
		if err != nil {
			imp.warn(name, err)
			continue
		}
		freqs = append(freqs, bank.Frequencies...)
		pitches = append(pitches, bank.Pitches...)
		imp.res.Skipped += bank.Skipped
	}
	applyFrequencies(imp.records, freqs)
	imp.meta = imp.metaRows(freqs, pitches)

	for _, name := range termbank.SortBanks(imp.archive.Names(), termbank.TagBankPrefix) {
		r, err := imp.archive.Open(name)
		if err != nil {
			imp.warn(name, err)
			continue
		}
		tags, err := termbank.DecodeTags(r, 0)
		_ = r.Close()
		if err != nil {
			imp.warn(name, err)
			continue
		}
		imp.tags = append(imp.tags, tags...)
	}
	return nil
}

// metaRows keys frequency and pitch rows by normalized term. Rows whose
// term normalizes to nothing are skipped.
func (imp *importer) metaRows(freqs []termbank.FrequencyMeta, pitches []termbank.PitchMeta) []blobstore.Meta {
	rows := make([]blobstore.Meta, 0, len(freqs)+len(pitches))
	for _, f := range freqs {
		key := folding.Normalize(f.Term)
		if key == "" {
			imp.res.Skipped++
			continue
		}
		rows = append(rows, blobstore.Meta{Key: key, Reading: f.Reading, Frequency: &f.Frequency})
	}
	for _, p := range pitches {
		key := folding.Normalize(p.Term)
		if key == "" {
			imp.res.Skipped++
			continue
		}
		rows = append(rows, blobstore.Meta{Key: key, Reading: p.Reading, Pitches: p.Pitches})
	}
	return rows
}

// applyFrequencies attaches to each record the first frequency naming its
// term and reading, or failing that the first naming only its term.
func applyFrequencies(records []termbank.TermRecord, freqs []termbank.FrequencyMeta) {
	if len(freqs) == 0 {
		return
	}
	type key struct{ term, reading string }
	byKey := make(map[key]termbank.Frequency, len(freqs))
	for _, f := range freqs {
		k := key{f.Term, f.Reading}
		if _, ok := byKey[k]; !ok {
			byKey[k] = f.Frequency
		}
	}
	for i := range records {
		rec := &records[i]
		f, ok := byKey[key{rec.Term, rec.Reading}]
		if !ok {
			f, ok = byKey[key{rec.Term, ""}]
		}
		if ok {
			rec.Frequency = &f
		}
	}
}

// recordKeys returns the lookup keys of a record: its normalized term and,
// if different and not empty, its normalized reading.
func recordKeys(rec termbank.TermRecord) []string {
	term := folding.Normalize(rec.Term)
	keys := []string{term}
	if r := folding.Normalize(rec.Reading); r != "" && r != term {
		keys = append(keys, r)
	}
	return keys
}

func (imp *importer) buildIndex(ctx context.Context) error {
	imp.res.Meta = len(imp.meta)
	if len(imp.records) == 0 && len(imp.meta) > 0 {
		// Nothing to index; the dictionary only annotates others.
		return nil
	}

	b := phf.NewBuilder(imp.engine.cfg.phfOpts...)
	for _, rec := range imp.records {
		for _, k := range recordKeys(rec) {
			b.Add(k)
		}
	}
	imp.keys = b.Keys()
	idx, err := b.Build(ctx)
	if err != nil {
		return err
	}
	imp.index = idx
	imp.res.Keys = idx.Len()
	imp.res.Terms = len(imp.records)
	return nil
}

// encode groups the records by slot and compresses every bucket.
func (imp *importer) encode(ctx context.Context) error {
	idx := imp.index
	if idx == nil {
		return nil
	}
	groups := phf.Group(idx, imp.records, recordKeys)
	slotKeys := make([]string, idx.Len())
	for _, k := range imp.keys {
		slotKeys[idx.Slot(k)] = k
	}

	codec := imp.engine.cfg.codec
	imp.frames = make([]blobstore.Frame, idx.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imp.engine.cfg.importWorkers)
	for slot := range imp.frames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b := &blobstore.Bucket{
				Key:     slotKeys[slot],
				Records: make([]termbank.TermRecord, 0, len(groups[slot])),
			}
			for _, i := range groups[slot] {
				b.Records = append(b.Records, imp.records[i])
			}
			f, err := blobstore.EncodeBucket(codec, uint32(slot), b)
			if err != nil {
				return err
			}
			imp.frames[slot] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("encoding buckets: %w", err)
	}
	return nil
}

// write stores the dictionary in one transaction.
func (imp *importer) write(ctx context.Context) error {
	var data []byte
	var keys int
	if imp.index != nil {
		var err error
		data, err = imp.index.MarshalBinary()
		if err != nil {
			return fmt.Errorf("%w: %v", dicterrors.ErrIndexBuildFailed, err)
		}
		keys = imp.index.Len()
	}

	tx, err := imp.engine.store.Begin(ctx, &blobstore.Dictionary{
		Manifest:    *imp.manifest,
		Index:       data,
		Codec:       imp.engine.cfg.codec,
		KeyCount:    keys,
		RecordCount: len(imp.records),
		MetaCount:   len(imp.meta),
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i, f := range imp.frames {
		if i%frameCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("writing buckets: %w", err)
			}
		}
		if err := tx.PutFrame(ctx, f); err != nil {
			return err
		}
	}
	if err := tx.PutTags(ctx, imp.tags); err != nil {
		return err
	}
	if err := tx.PutMeta(ctx, imp.meta); err != nil {
		return err
	}

	if err := imp.engine.phase(ctx, phaseCommit); err != nil {
		return err
	}
	return tx.Commit()
}

func (imp *importer) warn(entry string, err error) {
	imp.engine.cfg.logger.Warn("skipping bank", "id", imp.res.ID, "entry", entry, "error", err)
	imp.res.Warnings = append(imp.res.Warnings, ImportWarning{Entry: entry, Err: err})
}
