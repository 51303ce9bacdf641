package perf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/gymops/gymops/internal/jobs"
	"github.com/gymops/gymops/internal/members"
	"github.com/gymops/gymops/internal/ranking"
	"github.com/gymops/gymops/jobs"
)

type computedRankings map[string]members.RankingCache

func (c computedRankings) Rankings(ctx context.Context) (map[string]members.RankingCache, error) {
	return c, nil
}

type countingWriter struct {
	members atomic.Int64
	failOn  int64
	calls   atomic.Int64
}

func (w *countingWriter) WriteRankingBatch(ctx context.Context, batch []ranking.Update) error {
	if n := w.calls.Add(1); w.failOn > 0 && n == w.failOn {
		return errors.New("deadlock detected")
	}
	w.members.Add(int64(len(batch)))
	return nil
}

func TestRankingJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	roster, catalog, resolver := syntheticWorld(5000, 20)
	now := time.Date(2024, 11, 30, 3, 0, 0, 0, time.UTC)
	_, caches := runPipeline(roster, catalog, resolver, now)

	for i := 0; i < 3; i++ {
		writer := &countingWriter{}
		job := jobs.NewRankingRecomputeJob(computedRankings(caches), writer, nil, ranking.DefaultBatchSize, logger, metrics)
		out, err := job.Run(context.Background(), jobs.RankingRecomputePayload{Trigger: jobs.TriggerCron})
		if err != nil {
			t.Fatalf("ranking run %d: %v", i, err)
		}
		if out.Batches != 10 || writer.members.Load() != 5000 {
			t.Fatalf("unexpected outcome %+v written=%d", out, writer.members.Load())
		}
	}

	failing := &countingWriter{failOn: 4}
	job := jobs.NewRankingRecomputeJob(computedRankings(caches), failing, nil, ranking.DefaultBatchSize, logger, metrics)
	if _, err := job.Run(context.Background(), jobs.RankingRecomputePayload{Trigger: jobs.TriggerManual}); err == nil {
		t.Fatal("expected failing batch to abort the run")
	}
	if failing.members.Load() != 1500 {
		t.Fatalf("expected the first three batches to stay committed, got %d members", failing.members.Load())
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "gymops_jobs_total", map[string]string{"job": jobs.TaskRankingRecompute, "status": "success"})
	failure := metricValue(t, families, "gymops_jobs_total", map[string]string{"job": jobs.TaskRankingRecompute, "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.7 {
		t.Fatalf("ranking job success ratio too low: %f", ratio)
	}
	if committed := metricValue(t, families, "gymops_ranking_batches_total", map[string]string{"status": "committed"}); committed != 33 {
		t.Fatalf("expected 33 committed batches, got %f", committed)
	}
	if written := metricValue(t, families, "gymops_ranking_members_written_total", nil); written != 16500 {
		t.Fatalf("expected 16500 members written, got %f", written)
	}
	if mean := histogramMean(t, families, "gymops_job_duration_seconds", map[string]string{"job": jobs.TaskRankingRecompute}); mean > 2.0 {
		t.Fatalf("ranking job duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}
