// Package outbox implements the transactional outbox: domain events are
// written in the same database transaction as the facts they describe and
// relayed to the message bus afterwards, at least once.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status enumerates the delivery state of an event.
type Status string

const (
	// StatusPending marks an event awaiting delivery.
	StatusPending Status = "PENDING"
	// StatusProcessed marks a delivered event.
	StatusProcessed Status = "PROCESSED"
	// StatusFailed marks an event that exhausted its delivery attempts.
	StatusFailed Status = "FAILED"
)

// Event is one domain fact queued for asynchronous delivery.
type Event struct {
	ID            uuid.UUID
	Type          string
	Payload       json.RawMessage
	Status        Status
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
