// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsQueue aggregates Prometheus metrics for both queue workers.
type metricsQueue struct {
	once sync.Once

	semanticClaims   prometheus.Counter
	semanticDone     prometheus.Counter
	semanticFailed   prometheus.Counter
	semanticReleased prometheus.Counter
	semanticDuration prometheus.Histogram

	embeddingBatches  prometheus.Counter
	embeddingPoints   prometheus.Counter
	embeddingFailed   prometheus.Counter
	embeddingDuration prometheus.Histogram

	leaseReverts prometheus.Counter
	retries      prometheus.Counter
}

var qMetrics metricsQueue

func (m *metricsQueue) init() {
	m.once.Do(func() {
		m.semanticClaims = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_semantic_claims_total",
			Help: "Semantic jobs claimed by a worker",
		})
		m.semanticDone = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_semantic_done_total",
			Help: "Semantic jobs completed successfully",
		})
		m.semanticFailed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_semantic_failed_total",
			Help: "Semantic jobs that exhausted their retries",
		})
		m.semanticReleased = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_semantic_released_total",
			Help: "Semantic jobs handed back to pending before completion",
		})
		m.semanticDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "viking_semantic_process_seconds",
			Help:    "Wall time spent processing one directory",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		})
		m.embeddingBatches = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_embedding_batches_total",
			Help: "Embedding batches sent to the provider",
		})
		m.embeddingPoints = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_embedding_points_total",
			Help: "Vectors upserted into the index",
		})
		m.embeddingFailed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_embedding_failed_total",
			Help: "Embedding jobs that exhausted their retries",
		})
		m.embeddingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "viking_embedding_batch_seconds",
			Help:    "Wall time from claiming a batch to upserting its vectors",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})
		m.leaseReverts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_queue_lease_reverts_total",
			Help: "Jobs returned to pending after their lease expired",
		})
		m.retries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viking_queue_retries_total",
			Help: "Transient provider failures retried with backoff",
		})

		prometheus.MustRegister(
			m.semanticClaims, m.semanticDone, m.semanticFailed, m.semanticReleased,
			m.semanticDuration,
			m.embeddingBatches, m.embeddingPoints, m.embeddingFailed, m.embeddingDuration,
			m.leaseReverts, m.retries,
		)
	})
}

// record helpers - used by the store and the retry loop, which run without a
// worker in tools and tests
func recordRetry()       { qMetrics.init(); qMetrics.retries.Inc() }
func recordLeaseRevert() { qMetrics.init(); qMetrics.leaseReverts.Inc() }
