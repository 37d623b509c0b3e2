// Package stats keeps lifetime conversion outcome counters and mirrors them
// into Prometheus metrics.
package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversion metrics.
var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidmorph_jobs_total",
			Help: "Total number of conversion jobs reaching a terminal phase",
		},
		[]string{"outcome"},
	)

	jobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidmorph_jobs_in_flight",
			Help: "Number of conversion jobs currently queued or running",
		},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidmorph_job_duration_seconds",
			Help:    "Wall time from job submission to terminal phase",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"outcome"},
	)
)

// Snapshot is a point-in-time copy of the counters. Total always equals
// Succeeded plus Failed.
type Snapshot struct {
	Total     uint64 `json:"total"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// Aggregate accumulates terminal job outcomes for the lifetime of the
// process. The zero value is ready to use.
type Aggregate struct {
	mu        sync.Mutex
	succeeded uint64
	failed    uint64
}

// NewAggregate creates an empty outcome aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{}
}

// JobStarted records a job entering the queue.
func (a *Aggregate) JobStarted() {
	jobsInFlight.Inc()
}

// RecordSuccess counts one successfully completed job.
func (a *Aggregate) RecordSuccess(elapsed time.Duration) {
	a.mu.Lock()
	a.succeeded++
	a.mu.Unlock()

	jobsInFlight.Dec()
	jobsTotal.WithLabelValues("succeeded").Inc()
	jobDuration.WithLabelValues("succeeded").Observe(elapsed.Seconds())
}

// RecordFailure counts one failed job.
func (a *Aggregate) RecordFailure(elapsed time.Duration) {
	a.mu.Lock()
	a.failed++
	a.mu.Unlock()

	jobsInFlight.Dec()
	jobsTotal.WithLabelValues("failed").Inc()
	jobDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
}

// Snapshot returns a consistent copy of the counters.
func (a *Aggregate) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Total:     a.succeeded + a.failed,
		Succeeded: a.succeeded,
		Failed:    a.failed,
	}
}
