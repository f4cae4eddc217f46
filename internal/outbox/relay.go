package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockpilot/stockpilot/internal/observability"
)

// Publisher delivers one event to the message bus.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// StorePort abstracts the store for the relay.
type StorePort interface {
	ListPending(ctx context.Context, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, attempt int, nextAttempt time.Time, cause string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempt int, cause string) error
}

// RelayConfig groups the relay tuning knobs.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// Relay polls the outbox and dispatches pending events. One relay instance
// runs per deployment; polls never overlap because the loop waits for the
// previous batch to finish.
type Relay struct {
	store     StorePort
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	cfg       RelayConfig
}

// NewRelay constructs Relay.
func NewRelay(store StorePort, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 10 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Minute
	}
	return &Relay{store: store, publisher: publisher, logger: logger, metrics: metrics, cfg: cfg}
}

// Run polls at a fixed interval until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("outbox relay poll failed", slog.Any("error", err))
			}
		}
	}
}

// RunOnce processes a single batch. A delivery failure is isolated to its
// event: the rest of the batch is still attempted.
func (r *Relay) RunOnce(ctx context.Context) error {
	events, err := r.store.ListPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, evt := range events {
		if err := r.publisher.Publish(ctx, evt); err != nil {
			r.recordFailure(ctx, evt, err)
			continue
		}
		if err := r.store.MarkProcessed(ctx, evt.ID); err != nil {
			// The event was delivered; a redelivery on the next poll is the
			// at-least-once contract, so only log.
			r.logger.Error("mark outbox event processed failed", slog.String("event_id", evt.ID.String()), slog.Any("error", err))
			continue
		}
		r.metrics.ObserveOutbox("processed")
	}
	return nil
}

func (r *Relay) recordFailure(ctx context.Context, evt Event, cause error) {
	attempt := evt.AttemptCount + 1
	if attempt >= r.cfg.MaxAttempts {
		if err := r.store.MarkFailed(ctx, evt.ID, attempt, cause.Error()); err != nil {
			r.logger.Error("mark outbox event failed errored", slog.String("event_id", evt.ID.String()), slog.Any("error", err))
			return
		}
		r.metrics.ObserveOutbox("failed")
		r.logger.Error("outbox event exhausted delivery attempts",
			slog.String("event_id", evt.ID.String()),
			slog.String("type", evt.Type),
			slog.Int("attempts", attempt),
			slog.Any("error", cause))
		return
	}
	next := time.Now().UTC().Add(r.backoff(attempt))
	if err := r.store.Reschedule(ctx, evt.ID, attempt, next, cause.Error()); err != nil {
		r.logger.Error("reschedule outbox event failed", slog.String("event_id", evt.ID.String()), slog.Any("error", err))
		return
	}
	r.metrics.ObserveOutbox("retried")
	r.logger.Warn("outbox event delivery failed, will retry",
		slog.String("event_id", evt.ID.String()),
		slog.String("type", evt.Type),
		slog.Int("attempt", attempt),
		slog.Time("next_attempt", next),
		slog.Any("error", cause))
}

func (r *Relay) backoff(attempt int) time.Duration {
	d := r.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= r.cfg.MaxBackoff {
			return r.cfg.MaxBackoff
		}
	}
	return d
}
