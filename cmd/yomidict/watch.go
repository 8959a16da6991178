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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"
)

var watchCommand = &cli.Command{
	Name:      "watch",
	Usage:     "Import archives as they appear in a directory",
	ArgsUsage: "[DIR]",
	Action: func(c *cli.Context) error {
		e, cfg, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		dir := cfg.Watch.Dir
		if c.NArg() > 0 {
			dir = c.Args().First()
		}
		if dir == "" {
			return fmt.Errorf("%w: no directory to watch", ErrFlagParse)
		}

		w := &dirWatcher{
			dir:      dir,
			debounce: cfg.Watch.Debounce,
			logger:   cfg.Logging.NewLogger(errWriter(c)),
			importFn: func(ctx context.Context, path string) error {
				res, err := e.Import(ctx, path)
				if err != nil {
					return err
				}
				printImport(c, path, res)
				return nil
			},
		}
		err = w.run(c.Context)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// dirWatcher imports every archive in a directory and then each archive
// written there, once it has not changed for the debounce interval.
type dirWatcher struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger
	importFn func(ctx context.Context, path string) error

	// ready, if not nil, is closed once the directory is being watched.
	ready chan struct{}
}

func isArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}

func (w *dirWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	pending := make(map[string]time.Time)
	for _, entry := range entries {
		if !entry.IsDir() && isArchive(entry.Name()) {
			pending[filepath.Join(w.dir, entry.Name())] = time.Time{}
		}
	}
	if w.ready != nil {
		close(w.ready)
	}

	ticker := time.NewTicker(max(w.debounce/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		w.flush(ctx, pending)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isArchive(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				pending[event.Name] = time.Now()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(pending, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		case <-ticker.C:
		}
	}
}

// flush imports the pending archives that have settled.
func (w *dirWatcher) flush(ctx context.Context, pending map[string]time.Time) {
	var ready []string
	for path, changed := range pending {
		if time.Since(changed) >= w.debounce {
			ready = append(ready, path)
		}
	}
	slices.Sort(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		delete(pending, path)
		if err := w.importFn(ctx, path); err != nil {
			w.logger.Error("import failed", "path", path, "error", err)
		}
	}
}
