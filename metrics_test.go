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
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEngine_metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	e := openEngine(t, "", WithRegisterer(reg))
	path := nihongoArchive(t)

	mustImport(t, e, path)
	mustImport(t, e, path)
	for range 2 {
		lookup(t, e, "猫", nil)
	}

	tests := []struct {
		name     string
		c        prometheus.Collector
		expected float64
	}{
		{"imported", e.metrics.imports.WithLabelValues(outcomeImported), 1},
		{"already imported", e.metrics.imports.WithLabelValues(outcomeAlreadyImported), 1},
		{"lookups", e.metrics.lookups, 2},
		{"lookup warnings", e.metrics.lookupWarnings, 0},
	}
	for _, test := range tests {
		if diff := cmp.Diff(test.expected, testutil.ToFloat64(test.c)); diff != "" {
			t.Errorf("%s (-want, +got):\n%s", test.name, diff)
		}
	}

	hits, misses := e.CacheStats()
	if diff := cmp.Diff([]uint64{1, 1}, []uint64{hits, misses}); diff != "" {
		t.Errorf("CacheStats (-want, +got):\n%s", diff)
	}

	for _, name := range []string{
		"yomidict_imports_total",
		"yomidict_import_duration_seconds",
		"yomidict_lookups_total",
		"yomidict_lookup_duration_seconds",
		"yomidict_cache_hits_total",
		"yomidict_cache_misses_total",
	} {
		n, err := testutil.GatherAndCount(reg, name)
		if err != nil {
			t.Fatalf("GatherAndCount(%q): %v", name, err)
		}
		if n == 0 {
			t.Errorf("metric %q not registered", name)
		}
	}

	// Closing unregisters so another engine can use the same registerer.
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	openEngine(t, "", WithRegisterer(reg))
}

func TestEngine_Open_duplicateRegisterer(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	openEngine(t, "", WithRegisterer(reg))

	e, err := Open(t.TempDir()+"/other.db", WithRegisterer(reg))
	if err == nil {
		e.Close()
		t.Fatalf("Open: expected error registering metrics twice")
	}
}

func TestEngine_tracing(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e := openEngine(t, "", WithTracerProvider(tp))
	mustImport(t, e, nihongoArchive(t))
	lookup(t, e, "猫", nil)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	for _, want := range []string{
		"yomidict.Import",
		"yomidict.import.decode",
		"yomidict.import.meta",
		"yomidict.import.index",
		"yomidict.import.encode",
		"yomidict.import.write",
		"yomidict.Lookup",
	} {
		if !slices.Contains(names, want) {
			t.Errorf("span %q not recorded; got %v", want, names)
		}
	}
}
