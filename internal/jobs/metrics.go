package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs           *prometheus.CounterVec
	failures       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	rankingBatches *prometheus.CounterVec
	rankingMembers prometheus.Counter
	warmedReports  prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// RankingBatch records one committed or failed ranking batch of size members.
func (m *Metrics) RankingBatch(committed bool, size int) {
	if m == nil {
		return
	}
	status := "committed"
	if !committed {
		status = "failed"
	}
	m.rankingBatches.WithLabelValues(status).Inc()
	if committed && size > 0 {
		m.rankingMembers.Add(float64(size))
	}
}

// ReportsWarmed counts statistics reports written to the cache by the warmup job.
func (m *Metrics) ReportsWarmed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.warmedReports.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymops_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymops_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gymops_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymops_ranking_batches_total",
		Help: "Ranking cache write batches by outcome.",
	}, []string{"status"})
	written := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gymops_ranking_members_written_total",
		Help: "Member ranking caches committed by the ranking job.",
	})
	warmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gymops_stats_reports_warmed_total",
		Help: "Statistics reports precomputed into the cache.",
	})
	registerer.MustRegister(runs, failures, duration, batches, written, warmed)
	return &Metrics{
		runs:           runs,
		failures:       failures,
		duration:       duration,
		rankingBatches: batches,
		rankingMembers: written,
		warmedReports:  warmed,
	}
}
