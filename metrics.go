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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "yomidict"

// Import outcomes recorded by the imports_total counter.
const (
	outcomeImported        = "imported"
	outcomeAlreadyImported = "already_imported"
	outcomeCancelled       = "cancelled"
	outcomeFailed          = "failed"
)

type metrics struct {
	registerer prometheus.Registerer
	collectors []prometheus.Collector

	imports        *prometheus.CounterVec
	importDuration prometheus.Histogram
	lookups        prometheus.Counter
	lookupDuration prometheus.Histogram
	lookupWarnings prometheus.Counter
}

// newMetrics creates the engine's collectors and registers them with reg if
// it is not nil. cacheStats reports the resolver's cache hits and misses.
func newMetrics(reg prometheus.Registerer, cacheStats func() (uint64, uint64)) (*metrics, error) {
	m := &metrics{
		registerer: reg,
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "imports_total",
			Help:      "Dictionary imports by outcome.",
		}, []string{"outcome"}),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "import_duration_seconds",
			Help:      "Time taken by dictionary imports.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		lookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lookups_total",
			Help:      "Term lookups served.",
		}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "lookup_duration_seconds",
			Help:      "Time taken by term lookups.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		lookupWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lookup_warnings_total",
			Help:      "Dictionaries that failed during a lookup.",
		}),
	}
	m.collectors = []prometheus.Collector{
		m.imports,
		m.importDuration,
		m.lookups,
		m.lookupDuration,
		m.lookupWarnings,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_hits_total",
			Help:      "Bucket cache hits.",
		}, func() float64 {
			hits, _ := cacheStats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_misses_total",
			Help:      "Bucket cache misses.",
		}, func() float64 {
			_, misses := cacheStats()
			return float64(misses)
		}),
	}

	if reg == nil {
		return m, nil
	}
	for i, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			for _, r := range m.collectors[:i] {
				reg.Unregister(r)
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeImport(outcome string, d time.Duration) {
	m.imports.WithLabelValues(outcome).Inc()
	m.importDuration.Observe(d.Seconds())
}

func (m *metrics) observeLookup(warnings int, d time.Duration) {
	m.lookups.Inc()
	m.lookupWarnings.Add(float64(warnings))
	m.lookupDuration.Observe(d.Seconds())
}

func (m *metrics) unregister() {
	if m.registerer == nil {
		return
	}
	for _, c := range m.collectors {
		m.registerer.Unregister(c)
	}
}

func importOutcome(res *ImportResult, err error) string {
	switch {
	case err == nil && res != nil && res.AlreadyImported:
		return outcomeAlreadyImported
	case err == nil:
		return outcomeImported
	case isContextErr(err):
		return outcomeCancelled
	default:
		return outcomeFailed
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
