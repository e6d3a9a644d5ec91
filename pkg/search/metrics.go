// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSearch aggregates Prometheus metrics for the read side.
type metricsSearch struct {
	once sync.Once

	finds        prometheus.Counter
	findDuration prometheus.Histogram
	routes       prometheus.Counter
	greps        prometheus.Counter
	globs        prometheus.Counter
}

var sMetrics metricsSearch

func (m *metricsSearch) init() {
	m.once.Do(func() {
		m.finds = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_find_total",
			Help: "Semantic find queries served",
		})
		m.findDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "viking_find_seconds",
			Help:    "Wall time from query embed to ranked results",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})
		m.routes = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_find_routed_total",
			Help: "Scoped sub-searches issued while routing a find",
		})
		m.greps = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_grep_total",
			Help: "Streamed grep scans served",
		})
		m.globs = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_glob_total",
			Help: "Glob enumerations served",
		})
		prometheus.MustRegister(m.finds, m.findDuration, m.routes, m.greps, m.globs)
	})
}
