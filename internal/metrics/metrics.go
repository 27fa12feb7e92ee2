// Package metrics provides Prometheus metrics for the version store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	// Commit and branch metrics
	CommitsTotal        *prometheus.CounterVec
	BranchesCreatedTotal prometheus.Counter
	BranchesDeletedTotal prometheus.Counter

	// Merge metrics
	MergesTotal      *prometheus.CounterVec
	MergeDuration    prometheus.Histogram
	ConflictsTotal   prometheus.Counter
	MergeRetriesTotal prometheus.Counter

	// Diff metrics
	DiffsTotal   prometheus.Counter
	DiffDuration prometheus.Histogram

	// Archive metrics
	ArchiveUploadsTotal   *prometheus.CounterVec
	ArchiveDownloadsTotal *prometheus.CounterVec

	ServerStartTime time.Time
}

// NewMetrics creates and registers all metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.CommitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "versionstore_commits_total",
			Help: "Total number of versions committed",
		},
		[]string{"branch"},
	)

	m.BranchesCreatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "versionstore_branches_created_total",
			Help: "Total number of branches created",
		},
	)

	m.BranchesDeletedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "versionstore_branches_deleted_total",
			Help: "Total number of branches deleted",
		},
	)

	m.MergesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "versionstore_merges_total",
			Help: "Total number of merge attempts by outcome",
		},
		[]string{"status"},
	)

	m.MergeDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "versionstore_merge_duration_seconds",
			Help:    "Duration of merge operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	m.ConflictsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "versionstore_conflicts_total",
			Help: "Total number of conflicting line ranges detected",
		},
	)

	m.MergeRetriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "versionstore_merge_retries_total",
			Help: "Total number of merge transaction retries",
		},
	)

	m.DiffsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "versionstore_diffs_total",
			Help: "Total number of diffs computed",
		},
	)

	m.DiffDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "versionstore_diff_duration_seconds",
			Help:    "Duration of diff computations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.ArchiveUploadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "versionstore_archive_uploads_total",
			Help: "Total number of snapshot archive uploads",
		},
		[]string{"status"},
	)

	m.ArchiveDownloadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "versionstore_archive_downloads_total",
			Help: "Total number of snapshot archive downloads",
		},
		[]string{"status"},
	)

	return m
}

// RecordMerge records a merge attempt with its outcome.
func (m *Metrics) RecordMerge(status string, duration time.Duration) {
	m.MergesTotal.WithLabelValues(status).Inc()
	m.MergeDuration.Observe(duration.Seconds())
}

// RecordDiff records a computed diff.
func (m *Metrics) RecordDiff(duration time.Duration) {
	m.DiffsTotal.Inc()
	m.DiffDuration.Observe(duration.Seconds())
}
