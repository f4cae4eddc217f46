package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBalances(ctx context.Context, locationID uuid.UUID) ([]Balance, error)
	LedgerHistory(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error)
}

// TxRepository exposes the writes that must share one transaction. The
// outbox enqueue rides the same transaction so an event exists exactly when
// the business fact committed.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, locationID, itemID uuid.UUID) (Balance, error)
	UpsertBalanceAdd(ctx context.Context, locationID, itemID uuid.UUID, delta int64) error
	InsertLedgerEntries(ctx context.Context, entries []LedgerEntry) error
	EnqueueEvent(ctx context.Context, eventType string, payload any) error
}

// Service executes the inventory write operations.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Receive posts inbound stock: balance upsert-and-add, one ledger entry and
// one outbox event, all in a single transaction.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Receipt, error) {
	if input.Quantity <= 0 {
		return Receipt{}, ErrInvalidQuantity
	}
	operator := input.OperatorID
	if operator == "" {
		operator = DefaultOperator
	}
	groupID := uuid.New()
	now := time.Now().UTC()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpsertBalanceAdd(ctx, input.LocationID, input.ItemID, input.Quantity); err != nil {
			return err
		}
		entry := LedgerEntry{
			ID:                 uuid.New(),
			TransactionGroupID: groupID,
			LocationID:         input.LocationID,
			ItemID:             input.ItemID,
			QuantityChange:     input.Quantity,
			ReferenceType:      ReferenceInbound,
			OperatorID:         operator,
			Timestamp:          now,
			Metadata:           input.Metadata,
		}
		if err := tx.InsertLedgerEntries(ctx, []LedgerEntry{entry}); err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, EventInventoryInbound, InboundEvent{
			TransactionGroupID: groupID,
			LocationID:         input.LocationID,
			ItemID:             input.ItemID,
			Quantity:           input.Quantity,
			OperatorID:         operator,
			Metadata:           input.Metadata,
		})
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{TransactionGroupID: groupID}, nil
}

// Transfer moves stock between locations. The source balance row is read
// under an exclusive row lock; that lock serialises concurrent transfers
// draining the same (location, item) pair. Destination credits commute and
// rely on the upsert's own atomic add.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Receipt, error) {
	if input.FromLocationID == input.ToLocationID {
		return Receipt{}, ErrSameLocation
	}
	if input.Quantity <= 0 {
		return Receipt{}, ErrInvalidQuantity
	}
	operator := input.OperatorID
	if operator == "" {
		operator = DefaultOperator
	}
	groupID := uuid.New()
	now := time.Now().UTC()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.GetBalanceForUpdate(ctx, input.FromLocationID, input.ItemID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if source.Quantity < input.Quantity {
			return &InsufficientStockError{Available: source.Quantity, Requested: input.Quantity}
		}
		if err := tx.UpsertBalanceAdd(ctx, input.FromLocationID, input.ItemID, -input.Quantity); err != nil {
			return err
		}
		if err := tx.UpsertBalanceAdd(ctx, input.ToLocationID, input.ItemID, input.Quantity); err != nil {
			return err
		}
		entries := []LedgerEntry{
			{
				ID:                 uuid.New(),
				TransactionGroupID: groupID,
				LocationID:         input.FromLocationID,
				ItemID:             input.ItemID,
				QuantityChange:     -input.Quantity,
				ReferenceType:      ReferenceTransfer,
				OperatorID:         operator,
				Timestamp:          now,
				Metadata:           input.Metadata,
			},
			{
				ID:                 uuid.New(),
				TransactionGroupID: groupID,
				LocationID:         input.ToLocationID,
				ItemID:             input.ItemID,
				QuantityChange:     input.Quantity,
				ReferenceType:      ReferenceTransfer,
				OperatorID:         operator,
				Timestamp:          now,
				Metadata:           input.Metadata,
			},
		}
		if err := tx.InsertLedgerEntries(ctx, entries); err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, EventInventoryTransferred, TransferredEvent{
			TransactionGroupID: groupID,
			FromLocationID:     input.FromLocationID,
			ToLocationID:       input.ToLocationID,
			ItemID:             input.ItemID,
			Quantity:           input.Quantity,
			OperatorID:         operator,
			Metadata:           input.Metadata,
		})
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{TransactionGroupID: groupID}, nil
}

// ListBalances returns current balances, optionally scoped to one location.
func (s *Service) ListBalances(ctx context.Context, locationID uuid.UUID) ([]Balance, error) {
	return s.repo.ListBalances(ctx, locationID)
}

// LedgerHistory lists ledger entries, newest first.
func (s *Service) LedgerHistory(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	return s.repo.LedgerHistory(ctx, filter)
}
