// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the engine's Prometheus collectors: one crank
// pass emits a bounded, fixed set of counters/gauges/histograms, never
// per-tracker label cardinality (tracker ids are unbounded over the
// lifetime of a process).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	trackersCranked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swm_trackers_cranked_total",
			Help: "Total trackers cranked, by outcome",
		},
		[]string{"outcome"}, // changed, unchanged, error, invalid
	)

	taskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swm_task_transitions_total",
			Help: "Total task status transitions, by task name and resulting status",
		},
		[]string{"task", "status"},
	)

	crankDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swm_crank_duration_seconds",
			Help:    "Wall-clock duration of one tracker's crank, including lock wait",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	crankIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swm_crank_iterations",
			Help:    "Fixed-point iterations taken to settle one tracker's crank",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13, 21},
		},
	)

	liveTrackers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swm_live_trackers",
			Help: "Trackers observed live in the most recent full scan",
		},
	)

	lockWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swm_lock_wait_seconds",
			Help:    "Time spent blocked acquiring a tracker's byte-range lock",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordCrank records one tracker crank's outcome and duration.
func RecordCrank(outcome string, seconds float64, iterations int) {
	trackersCranked.WithLabelValues(outcome).Inc()
	crankDuration.WithLabelValues(outcome).Observe(seconds)
	crankIterations.Observe(float64(iterations))
}

// RecordTransition records one task reaching status after a handler runs.
func RecordTransition(task, status string) {
	taskTransitions.WithLabelValues(task, status).Inc()
}

// SetLiveTrackers sets the live-tracker gauge after a full scan.
func SetLiveTrackers(n int) {
	liveTrackers.Set(float64(n))
}

// RecordLockWait records time spent blocked on Manager.Acquire.
func RecordLockWait(seconds float64) {
	lockWaitSeconds.Observe(seconds)
}

// Handler returns the /metrics HTTP handler for swmd's exporter listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
