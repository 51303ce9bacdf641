package cli

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymops/gymops/jobs"
)

type stubEnqueuer struct {
	tasks  []*asynq.Task
	closed bool
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error {
	s.closed = true
	return nil
}

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	closeErr  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, nil
}

func (s stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func (s stubInspector) Close() error { return s.closeErr }

func TestTriggerSupportedJobs(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq, now: func() time.Time { return time.Date(2024, 3, 12, 3, 0, 0, 0, time.UTC) }}

	info, err := c.Trigger(context.Background(), jobs.TaskRankingRecompute, "ops")
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskRankingRecompute, info.Type)

	var payload jobs.RankingRecomputePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, jobs.TriggerManual, payload.Trigger)
	assert.Equal(t, "ops", payload.RequestedBy)

	_, err = c.Trigger(context.Background(), jobs.TaskStatsWarmup, "A")
	require.NoError(t, err)
	var warm jobs.StatsWarmupPayload
	require.NoError(t, json.Unmarshal(enq.tasks[1].Payload(), &warm))
	assert.Equal(t, "A", warm.Center)

	_, err = c.Trigger(context.Background(), "mail:send", "")
	assert.Error(t, err)
}

func TestInspectQueue(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}}}
	stats, err := c.InspectQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}, stats)

	var empty *JobsCLI
	_, err = empty.InspectQueue(context.Background())
	assert.Error(t, err)
}

func TestCloseJoinsErrors(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq, inspector: stubInspector{closeErr: errors.New("inspector")}}
	err := c.Close()
	require.Error(t, err)
	assert.True(t, enq.closed)
}
