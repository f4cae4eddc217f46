package inventory

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Outbox event types emitted by the engine.
const (
	EventInventoryInbound     = "InventoryInbound"
	EventInventoryTransferred = "InventoryTransferred"
)

// InboundEvent is the payload of an EventInventoryInbound outbox event.
type InboundEvent struct {
	TransactionGroupID uuid.UUID       `json:"transactionGroupId"`
	LocationID         uuid.UUID       `json:"locationId"`
	ItemID             uuid.UUID       `json:"itemId"`
	Quantity           int64           `json:"quantity"`
	OperatorID         string          `json:"operatorId"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
}

// TransferredEvent is the payload of an EventInventoryTransferred outbox event.
type TransferredEvent struct {
	TransactionGroupID uuid.UUID       `json:"transactionGroupId"`
	FromLocationID     uuid.UUID       `json:"fromLocationId"`
	ToLocationID       uuid.UUID       `json:"toLocationId"`
	ItemID             uuid.UUID       `json:"itemId"`
	Quantity           int64           `json:"quantity"`
	OperatorID         string          `json:"operatorId"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
}
