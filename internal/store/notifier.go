package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChangesChannel is the pub/sub channel carrying change notifications.
const ChangesChannel = "gymops:changes"

// Source names an upstream input of the derived computation chain.
type Source string

const (
	SourceCenters    Source = "centers"
	SourceSchedules  Source = "schedules"
	SourceExceptions Source = "exceptions"
	SourceOverrides  Source = "overrides"
	SourceMembers    Source = "members"
)

// Change is the notification published after a write.
type Change struct {
	Source Source    `json:"source"`
	Date   string    `json:"date,omitempty"`
	At     time.Time `json:"at"`
}

// Notifier publishes and consumes change notifications over Redis pub/sub.
type Notifier struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewNotifier constructs a Notifier; logger may be nil.
func NewNotifier(client *redis.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, logger: logger, now: time.Now}
}

// Publish broadcasts change. Failures are logged only: the write already happened and a missed
// notification is recovered by the cache TTL.
func (n *Notifier) Publish(ctx context.Context, change Change) {
	if n == nil || n.client == nil {
		return
	}
	if change.At.IsZero() {
		change.At = n.now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return
	}
	if err := n.client.Publish(ctx, ChangesChannel, payload).Err(); err != nil {
		n.logger.Warn("publish change", slog.String("source", string(change.Source)), slog.Any("error", err))
	}
}

// Subscribe delivers every change to fn until ctx is cancelled. It is the single subscription
// boundary of a process; fn runs on the subscriber goroutine.
func (n *Notifier) Subscribe(ctx context.Context, fn func(Change)) error {
	if n == nil || n.client == nil || fn == nil {
		return nil
	}
	sub := n.client.Subscribe(ctx, ChangesChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					n.logger.Warn("decode change", slog.Any("error", err))
					continue
				}
				fn(change)
			}
		}
	}()
	return nil
}
