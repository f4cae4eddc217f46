package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type capturedEvent struct {
	Type    string
	Payload any
}

type memoryRepo struct {
	mu          sync.Mutex
	balances    map[string]Balance
	ledger      []LedgerEntry
	events      []capturedEvent
	failEnqueue bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[string]Balance)}
}

func key(locationID, itemID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", locationID, itemID)
}

type memoryTx struct {
	repo     *memoryRepo
	balances map[string]Balance
	ledger   []LedgerEntry
	events   []capturedEvent
}

// WithTx serialises callers the way the row lock does in PostgreSQL and
// stages writes so a failing callback leaves nothing behind.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, balances: make(map[string]Balance, len(r.balances))}
	for k, v := range r.balances {
		tx.balances[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.balances = tx.balances
	r.ledger = append(r.ledger, tx.ledger...)
	r.events = append(r.events, tx.events...)
	return nil
}

func (r *memoryRepo) ListBalances(ctx context.Context, locationID uuid.UUID) ([]Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []Balance{}
	for _, bal := range r.balances {
		if locationID == uuid.Nil || bal.LocationID == locationID {
			result = append(result, bal)
		}
	}
	return result, nil
}

func (r *memoryRepo) LedgerHistory(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []LedgerEntry{}
	for _, entry := range r.ledger {
		if filter.LocationID != uuid.Nil && entry.LocationID != filter.LocationID {
			continue
		}
		if filter.ItemID != uuid.Nil && entry.ItemID != filter.ItemID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, locationID, itemID uuid.UUID) (Balance, error) {
	if bal, ok := tx.balances[key(locationID, itemID)]; ok {
		return bal, nil
	}
	return Balance{LocationID: locationID, ItemID: itemID}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalanceAdd(ctx context.Context, locationID, itemID uuid.UUID, delta int64) error {
	k := key(locationID, itemID)
	bal, ok := tx.balances[k]
	if !ok {
		bal = Balance{LocationID: locationID, ItemID: itemID}
	}
	bal.Quantity += delta
	if bal.Quantity < 0 {
		return errors.New("positive_stock_check violated")
	}
	tx.balances[k] = bal
	return nil
}

func (tx *memoryTx) InsertLedgerEntries(ctx context.Context, entries []LedgerEntry) error {
	tx.ledger = append(tx.ledger, entries...)
	return nil
}

func (tx *memoryTx) EnqueueEvent(ctx context.Context, eventType string, payload any) error {
	if tx.repo.failEnqueue {
		return errors.New("outbox unavailable")
	}
	tx.events = append(tx.events, capturedEvent{Type: eventType, Payload: payload})
	return nil
}

func (r *memoryRepo) balance(t *testing.T, locationID, itemID uuid.UUID) int64 {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[key(locationID, itemID)].Quantity
}

func TestReceive(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	locA, itemX := uuid.New(), uuid.New()

	receipt, err := svc.Receive(ctx, ReceiveInput{LocationID: locA, ItemID: itemX, Quantity: 100})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, receipt.TransactionGroupID)

	require.EqualValues(t, 100, repo.balance(t, locA, itemX))
	require.Len(t, repo.ledger, 1)
	entry := repo.ledger[0]
	require.EqualValues(t, 100, entry.QuantityChange)
	require.Equal(t, ReferenceInbound, entry.ReferenceType)
	require.Equal(t, DefaultOperator, entry.OperatorID)
	require.Equal(t, receipt.TransactionGroupID, entry.TransactionGroupID)

	require.Len(t, repo.events, 1)
	require.Equal(t, EventInventoryInbound, repo.events[0].Type)
	payload, ok := repo.events[0].Payload.(InboundEvent)
	require.True(t, ok)
	require.EqualValues(t, 100, payload.Quantity)
}

func TestReceiveInvalidQuantity(t *testing.T) {
	svc := NewService(newMemoryRepo())
	for _, qty := range []int64{0, -5} {
		_, err := svc.Receive(context.Background(), ReceiveInput{LocationID: uuid.New(), ItemID: uuid.New(), Quantity: qty})
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestTransfer(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	locA, locB, itemX := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Receive(ctx, ReceiveInput{LocationID: locA, ItemID: itemX, Quantity: 100})
	require.NoError(t, err)

	receipt, err := svc.Transfer(ctx, TransferInput{FromLocationID: locA, ToLocationID: locB, ItemID: itemX, Quantity: 50, OperatorID: "alice"})
	require.NoError(t, err)

	require.EqualValues(t, 50, repo.balance(t, locA, itemX))
	require.EqualValues(t, 50, repo.balance(t, locB, itemX))

	require.Len(t, repo.ledger, 3)
	out, in := repo.ledger[1], repo.ledger[2]
	require.Equal(t, receipt.TransactionGroupID, out.TransactionGroupID)
	require.Equal(t, receipt.TransactionGroupID, in.TransactionGroupID)
	require.EqualValues(t, -50, out.QuantityChange)
	require.EqualValues(t, 50, in.QuantityChange)
	require.Equal(t, ReferenceTransfer, out.ReferenceType)
	require.Equal(t, ReferenceTransfer, in.ReferenceType)
	require.Equal(t, locA, out.LocationID)
	require.Equal(t, locB, in.LocationID)
	require.Equal(t, "alice", out.OperatorID)

	require.Len(t, repo.events, 2)
	require.Equal(t, EventInventoryTransferred, repo.events[1].Type)
}

func TestTransferInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	locA, locB, itemX := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Receive(ctx, ReceiveInput{LocationID: locA, ItemID: itemX, Quantity: 50})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, TransferInput{FromLocationID: locA, ToLocationID: locB, ItemID: itemX, Quantity: 9999})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 50, insufficient.Available)
	require.EqualValues(t, 9999, insufficient.Requested)

	require.EqualValues(t, 50, repo.balance(t, locA, itemX))
	require.EqualValues(t, 0, repo.balance(t, locB, itemX))
	require.Len(t, repo.ledger, 1)
	require.Len(t, repo.events, 1)
}

func TestTransferFromEmptySource(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	_, err := svc.Transfer(context.Background(), TransferInput{FromLocationID: uuid.New(), ToLocationID: uuid.New(), ItemID: uuid.New(), Quantity: 1})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 0, insufficient.Available)
	require.EqualValues(t, 1, insufficient.Requested)
}

func TestTransferSameLocation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	loc := uuid.New()

	_, err := svc.Transfer(context.Background(), TransferInput{FromLocationID: loc, ToLocationID: loc, ItemID: uuid.New(), Quantity: 1})
	require.ErrorIs(t, err, ErrSameLocation)
	require.Empty(t, repo.ledger)
	require.Empty(t, repo.events)
}

func TestTransferAtomicity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	locA, locB, itemX := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Receive(ctx, ReceiveInput{LocationID: locA, ItemID: itemX, Quantity: 100})
	require.NoError(t, err)

	repo.failEnqueue = true
	_, err = svc.Transfer(ctx, TransferInput{FromLocationID: locA, ToLocationID: locB, ItemID: itemX, Quantity: 10})
	require.Error(t, err)

	// The failed enqueue rolls back the balance and ledger writes too.
	require.EqualValues(t, 100, repo.balance(t, locA, itemX))
	require.EqualValues(t, 0, repo.balance(t, locB, itemX))
	require.Len(t, repo.ledger, 1)
	require.Len(t, repo.events, 1)
}

func TestLedgerSumMatchesBalances(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	locA, locB, locC := uuid.New(), uuid.New(), uuid.New()
	itemX, itemY := uuid.New(), uuid.New()

	_, err := svc.Receive(ctx, ReceiveInput{LocationID: locA, ItemID: itemX, Quantity: 120})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{LocationID: locA, ItemID: itemY, Quantity: 30})
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, TransferInput{FromLocationID: locA, ToLocationID: locB, ItemID: itemX, Quantity: 45})
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, TransferInput{FromLocationID: locB, ToLocationID: locC, ItemID: itemX, Quantity: 5})
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, TransferInput{FromLocationID: locA, ToLocationID: locC, ItemID: itemX, Quantity: 9999})
	require.Error(t, err)

	sums := map[string]int64{}
	for _, entry := range repo.ledger {
		sums[key(entry.LocationID, entry.ItemID)] += entry.QuantityChange
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for k, bal := range repo.balances {
		require.Equal(t, sums[k], bal.Quantity, "ledger sum mismatch for %s", k)
	}
	for k, sum := range sums {
		require.Equal(t, repo.balances[k].Quantity, sum, "balance missing for %s", k)
	}
}

func TestConcurrentTransfersNeverOversell(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	locA, locB, itemX := uuid.New(), uuid.New(), uuid.New()

	const start, per, workers = 100, 10, 25
	_, err := svc.Receive(ctx, ReceiveInput{LocationID: locA, ItemID: itemX, Quantity: start})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Transfer(ctx, TransferInput{FromLocationID: locA, ToLocationID: locB, ItemID: itemX, Quantity: per})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
	}
	require.Equal(t, start/per, succeeded)
	require.EqualValues(t, 0, repo.balance(t, locA, itemX))
	require.EqualValues(t, start, repo.balance(t, locB, itemX))
}

func TestMetadataRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	meta := json.RawMessage(`{"po":"PO-1138"}`)

	_, err := svc.Receive(context.Background(), ReceiveInput{LocationID: uuid.New(), ItemID: uuid.New(), Quantity: 1, Metadata: meta})
	require.NoError(t, err)
	require.JSONEq(t, string(meta), string(repo.ledger[0].Metadata))
	payload := repo.events[0].Payload.(InboundEvent)
	require.JSONEq(t, string(meta), string(payload.Metadata))
}
