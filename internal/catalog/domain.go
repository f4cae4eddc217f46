// Package catalog manages the location and item master data referenced by
// inventory balances and ledger entries.
package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Location is a physical place stock can sit in.
type Location struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Capacity  *int32    `json:"capacity,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Item is one stock-keeping unit.
type Item struct {
	ID          uuid.UUID `json:"id"`
	SKU         string    `json:"sku"`
	Description string    `json:"description,omitempty"`
	UOM         string    `json:"uom"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateLocationInput describes a new location.
type CreateLocationInput struct {
	Name     string
	Type     string
	Capacity *int32
}

// CreateItemInput describes a new item.
type CreateItemInput struct {
	SKU         string
	Description string
	UOM         string
}

var (
	// ErrNotFound indicates a missing catalog row.
	ErrNotFound = errors.New("catalog: not found")
	// ErrDuplicateName indicates a location name collision.
	ErrDuplicateName = errors.New("catalog: location name already exists")
	// ErrDuplicateSKU indicates an item SKU collision.
	ErrDuplicateSKU = errors.New("catalog: item sku already exists")
)
