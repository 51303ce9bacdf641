package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRankingRecompute rewrites the ranking cache of every member.
	TaskRankingRecompute = "ranking:recompute"
	// TaskStatsWarmup precomputes the statistics reports into the dashboard cache.
	TaskStatsWarmup = "stats:warmup"
)

// Triggers recorded on ranking payloads.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// RankingRecomputePayload describes who asked for a ranking run.
type RankingRecomputePayload struct {
	Trigger     string    `json:"trigger"`
	RequestedBy string    `json:"requestedBy,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// NewRankingRecomputeTask constructs an Asynq task for the ranking job.
func NewRankingRecomputeTask(payload RankingRecomputePayload) (*asynq.Task, error) {
	if payload.Trigger == "" {
		payload.Trigger = TriggerCron
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRankingRecompute, data, asynq.MaxRetry(3), asynq.Timeout(30*time.Minute)), nil
}

// StatsWarmupPayload optionally restricts the warmup to one center.
type StatsWarmupPayload struct {
	Center string `json:"center,omitempty"`
}

// NewStatsWarmupTask constructs an Asynq task for the statistics warmup.
func NewStatsWarmupTask(payload StatsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsWarmup, data, asynq.MaxRetry(1)), nil
}

func decodePayload(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
