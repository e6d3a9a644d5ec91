// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package ingest

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngest holds Prometheus metrics for parsing and promotion.
type metricsIngest struct {
	once sync.Once

	// Parsing
	documents   prometheus.Counter
	sections    prometheus.Counter
	assets      prometheus.Counter
	unsupported prometheus.Counter

	// Code skeletons
	skeletons         prometheus.Counter
	skeletonFallbacks prometheus.Counter

	// Promotion
	promotes         prometheus.Counter
	promoteRollbacks prometheus.Counter

	// Durations
	parseDuration prometheus.Histogram
}

var ingMetrics metricsIngest

func (m *metricsIngest) init() {
	m.once.Do(func() {
		m.documents = prometheus.NewCounter(prometheus.CounterOpts{Name: "viking_ingest_documents_total", Help: "Documents parsed into scratch trees"})
		m.sections = prometheus.NewCounter(prometheus.CounterOpts{Name: "viking_ingest_sections_total", Help: "Section files produced by splitting"})
		m.assets = prometheus.NewCounter(prometheus.CounterOpts{Name: "viking_ingest_assets_total", Help: "Referenced assets copied alongside sections"})
		m.unsupported = prometheus.NewCounter(prometheus.CounterOpts{Name: "viking_ingest_unsupported_total", Help: "Inputs rejected because no parser matched"})

		m.skeletons = prometheus.NewCounter(prometheus.CounterOpts{Name: "viking_ingest_skeletons_total", Help: "Code skeletons extracted"})
		m.skeletonFallbacks = prometheus.NewCounter(prometheus.CounterOpts{Name: "viking_ingest_skeleton_fallbacks_total", Help: "Skeleton extractions that fell back to summarisation"})

		m.promotes = prometheus.NewCounter(prometheus.CounterOpts{Name: "viking_ingest_promotes_total", Help: "Scratch trees promoted into content scopes"})
		m.promoteRollbacks = prometheus.NewCounter(prometheus.CounterOpts{Name: "viking_ingest_promote_rollbacks_total", Help: "Promotions rolled back after a move failure"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "viking_ingest_parse_seconds", Help: "Time spent parsing one input", Buckets: buckets})

		prometheus.MustRegister(
			m.documents, m.sections, m.assets, m.unsupported,
			m.skeletons, m.skeletonFallbacks,
			m.promotes, m.promoteRollbacks,
			m.parseDuration,
		)
	})
}

// record helpers - used by the skeleton extractor
func recordSkeleton()         { ingMetrics.init(); ingMetrics.skeletons.Inc() }
func recordSkeletonFallback() { ingMetrics.init(); ingMetrics.skeletonFallbacks.Inc() }
