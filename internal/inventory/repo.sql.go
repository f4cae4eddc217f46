package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockpilot/stockpilot/internal/outbox"
	"github.com/stockpilot/stockpilot/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	outbox *outbox.Store
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, outboxStore *outbox.Store) *Repository {
	return &Repository{pool: pool, outbox: outboxStore}
}

type txRepository struct {
	tx     pgx.Tx
	outbox *outbox.Store
}

// WithTx executes the callback inside one transaction; the wrapper routes
// balance, ledger and outbox writes through the same pgx.Tx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, outbox: r.outbox})
	})
}

// ListBalances returns balances for one location, or every location when the
// id is zero.
func (r *Repository) ListBalances(ctx context.Context, locationID uuid.UUID) ([]Balance, error) {
	const base = `SELECT location_id, item_id, quantity, last_updated FROM inventory_balance`
	var (
		rows pgx.Rows
		err  error
	)
	if locationID == uuid.Nil {
		rows, err = r.pool.Query(ctx, base+` ORDER BY location_id, item_id`)
	} else {
		rows, err = r.pool.Query(ctx, base+` WHERE location_id=$1 ORDER BY item_id`, locationID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []Balance{}
	for rows.Next() {
		var bal Balance
		if err := rows.Scan(&bal.LocationID, &bal.ItemID, &bal.Quantity, &bal.LastUpdated); err != nil {
			return nil, err
		}
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}

// LedgerHistory lists ledger entries filtered by location and item.
func (r *Repository) LedgerHistory(ctx context.Context, filter LedgerFilter) ([]LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_group_id, location_id, item_id, quantity_change, reference_type, operator_id, timestamp, metadata
FROM inventory_ledger
WHERE ($1::uuid IS NULL OR location_id=$1) AND ($2::uuid IS NULL OR item_id=$2)
ORDER BY timestamp DESC, id DESC
LIMIT $3`, nullUUID(filter.LocationID), nullUUID(filter.ItemID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []LedgerEntry{}
	for rows.Next() {
		var entry LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.TransactionGroupID, &entry.LocationID, &entry.ItemID, &entry.QuantityChange, &entry.ReferenceType, &entry.OperatorID, &entry.Timestamp, &entry.Metadata); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, locationID, itemID uuid.UUID) (Balance, error) {
	var bal Balance
	err := r.tx.QueryRow(ctx, `SELECT location_id, item_id, quantity, last_updated FROM inventory_balance WHERE location_id=$1 AND item_id=$2 FOR UPDATE`, locationID, itemID).
		Scan(&bal.LocationID, &bal.ItemID, &bal.Quantity, &bal.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{LocationID: locationID, ItemID: itemID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertBalanceAdd(ctx context.Context, locationID, itemID uuid.UUID, delta int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balance (location_id, item_id, quantity, last_updated)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (location_id, item_id) DO UPDATE SET quantity=inventory_balance.quantity+EXCLUDED.quantity, last_updated=NOW()`, locationID, itemID, delta)
	return err
}

func (r *txRepository) InsertLedgerEntries(ctx context.Context, entries []LedgerEntry) error {
	for _, entry := range entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_ledger (id, transaction_group_id, location_id, item_id, quantity_change, reference_type, operator_id, timestamp, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, entry.ID, entry.TransactionGroupID, entry.LocationID, entry.ItemID, entry.QuantityChange, string(entry.ReferenceType), entry.OperatorID, entry.Timestamp, entry.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) EnqueueEvent(ctx context.Context, eventType string, payload any) error {
	return r.outbox.Enqueue(ctx, r.tx, eventType, payload)
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
