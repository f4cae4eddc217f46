package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReferenceType enumerates the origin of a ledger entry.
type ReferenceType string

const (
	// ReferenceInbound marks stock received into a location.
	ReferenceInbound ReferenceType = "INBOUND"
	// ReferenceTransfer marks stock moved between locations.
	ReferenceTransfer ReferenceType = "TRANSFER"
)

// DefaultOperator is recorded when the caller does not identify itself.
const DefaultOperator = "system"

// Balance is the current quantity of one item at one location.
type Balance struct {
	LocationID  uuid.UUID
	ItemID      uuid.UUID
	Quantity    int64
	LastUpdated time.Time
}

// LedgerEntry is one immutable signed quantity change. Entries produced by a
// single logical operation share a transaction group id: a receive writes one
// entry, a transfer writes two with opposite signs.
type LedgerEntry struct {
	ID                 uuid.UUID
	TransactionGroupID uuid.UUID
	LocationID         uuid.UUID
	ItemID             uuid.UUID
	QuantityChange     int64
	ReferenceType      ReferenceType
	OperatorID         string
	Timestamp          time.Time
	Metadata           json.RawMessage
}

// ReceiveInput describes an inbound posting.
type ReceiveInput struct {
	LocationID uuid.UUID
	ItemID     uuid.UUID
	Quantity   int64
	OperatorID string
	Metadata   json.RawMessage
}

// TransferInput describes a stock movement between two locations.
type TransferInput struct {
	FromLocationID uuid.UUID
	ToLocationID   uuid.UUID
	ItemID         uuid.UUID
	Quantity       int64
	OperatorID     string
	Metadata       json.RawMessage
}

// Receipt identifies the committed operation.
type Receipt struct {
	TransactionGroupID uuid.UUID `json:"transactionGroupId"`
}

// LedgerFilter narrows ledger history queries. Zero ids match everything.
type LedgerFilter struct {
	LocationID uuid.UUID
	ItemID     uuid.UUID
	Limit      int
}

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrSameLocation indicates a transfer onto itself.
var ErrSameLocation = errors.New("inventory: source and target locations must differ")

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("inventory: balance not found")

// InsufficientStockError reports available versus requested quantity for a
// rejected transfer.
type InsufficientStockError struct {
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock at source: available %d, requested %d", e.Available, e.Requested)
}
