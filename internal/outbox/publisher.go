package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeDomainEvent is the asynq task type carrying relayed domain events.
const TaskTypeDomainEvent = "outbox:event"

// QueueEvents is the asynq queue domain events are published onto.
const QueueEvents = "events"

// Envelope is the wire form of a relayed event.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AsynqPublisher publishes events onto the Redis-backed bus as asynq tasks.
// The task id is the event id, so a redelivery after a crash between publish
// and status update deduplicates at the bus instead of reaching consumers
// twice.
type AsynqPublisher struct {
	client *asynq.Client
}

// NewAsynqPublisher constructs AsynqPublisher.
func NewAsynqPublisher(opt asynq.RedisClientOpt) *AsynqPublisher {
	return &AsynqPublisher{client: asynq.NewClient(opt)}
}

// Publish enqueues the event for the worker.
func (p *AsynqPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(Envelope{
		ID:        evt.ID.String(),
		Type:      evt.Type,
		Payload:   evt.Payload,
		CreatedAt: evt.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("outbox: marshal envelope: %w", err)
	}
	task := asynq.NewTask(TaskTypeDomainEvent, data)
	_, err = p.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueEvents),
		asynq.TaskID(evt.ID.String()),
		asynq.MaxRetry(5),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// Already published on a previous attempt.
			return nil
		}
		return fmt.Errorf("outbox: publish event %s: %w", evt.ID, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}
