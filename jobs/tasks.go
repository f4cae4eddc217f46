package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockpilot/stockpilot/internal/outbox"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup sweeps stale idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// KeySweeper removes idempotency keys older than the retention window.
type KeySweeper interface {
	Cleanup(ctx context.Context, retention time.Duration) error
}

// NewIdempotencyCleanupHandler builds the handler for TaskIdempotencyCleanup.
func NewIdempotencyCleanupHandler(store KeySweeper, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := store.Cleanup(ctx, retention); err != nil {
			logger.Error("idempotency cleanup failed", slog.Any("error", err))
			return err
		}
		logger.Info("idempotency cleanup completed", slog.Duration("retention", retention))
		return nil
	}
}

// EventConsumer handles one relayed domain event. Events arrive at least
// once; consumers must deduplicate on the envelope id.
type EventConsumer interface {
	Consume(ctx context.Context, env outbox.Envelope) error
}

// NewDomainEventHandler builds the handler for relayed outbox events.
func NewDomainEventHandler(consumer EventConsumer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var env outbox.Envelope
		if err := json.Unmarshal(t.Payload(), &env); err != nil {
			logger.Error("malformed domain event payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err := consumer.Consume(ctx, env); err != nil {
			logger.Error("consume domain event failed",
				slog.String("event_id", env.ID),
				slog.String("type", env.Type),
				slog.Any("error", err))
			return err
		}
		return nil
	}
}

// LogConsumer is the default downstream: it records the event. Real
// deployments replace it with a bus or webhook integration.
type LogConsumer struct {
	Logger *slog.Logger
}

// Consume logs the event.
func (c LogConsumer) Consume(ctx context.Context, env outbox.Envelope) error {
	c.Logger.Info("domain event received",
		slog.String("event_id", env.ID),
		slog.String("type", env.Type),
		slog.Time("created_at", env.CreatedAt))
	return nil
}
