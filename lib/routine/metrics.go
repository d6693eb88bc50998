// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package routine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "yatfs"

// metrics are registered on the Registerer given to New. A nil
// Registerer leaves them unregistered.
type metrics struct {
	fetches       *prometheus.CounterVec
	retries       prometheus.Counter
	cacheRequests *prometheus.CounterVec
	inFlight      prometheus.Gauge
	pending       prometheus.Gauge
	cacheBytes    prometheus.Gauge
	fetchDuration prometheus.Histogram
	readBytes     prometheus.Counter
	readFailures  prometheus.Counter
	torrentsAdded prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)
	return &metrics{
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "piece_fetches_total",
			Help:      "Completed piece fetches by result (ok, error, cancelled).",
		}, []string{"result"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "piece_fetch_retries_total",
			Help:      "Failed piece fetch attempts that were retried.",
		}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "piece_cache_requests_total",
			Help:      "Piece lookups in the in-memory cache by result (hit, miss).",
		}, []string{"result"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "piece_fetches_in_flight",
			Help:      "Piece fetches currently running.",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "piece_fetches_pending",
			Help:      "Pieces queued or running.",
		}),
		cacheBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "piece_cache_bytes",
			Help:      "Bytes held in the piece cache.",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "piece_fetch_duration_seconds",
			Help:      "Time from starting a piece fetch to its final result, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		readBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "read_bytes_total",
			Help:      "Bytes returned to filesystem reads.",
		}),
		readFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "read_failures_total",
			Help:      "Filesystem reads that failed.",
		}),
		torrentsAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "torrents_added_total",
			Help:      "Torrents registered through the controller.",
		}),
	}
}
