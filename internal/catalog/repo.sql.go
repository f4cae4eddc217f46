package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const pgUniqueViolation = "23505"

func (r *Repository) CreateLocation(ctx context.Context, input CreateLocationInput) (Location, error) {
	loc := Location{ID: uuid.New(), Name: input.Name, Type: input.Type, Capacity: input.Capacity}
	err := r.pool.QueryRow(ctx, `INSERT INTO locations (id, name, type, capacity, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING created_at`, loc.ID, loc.Name, loc.Type, loc.Capacity).Scan(&loc.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Location{}, ErrDuplicateName
		}
		return Location{}, err
	}
	return loc, nil
}

func (r *Repository) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, type, capacity, created_at FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	locations := []Location{}
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Type, &loc.Capacity, &loc.CreatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func (r *Repository) GetLocation(ctx context.Context, id uuid.UUID) (Location, error) {
	var loc Location
	err := r.pool.QueryRow(ctx, `SELECT id, name, type, capacity, created_at FROM locations WHERE id=$1`, id).
		Scan(&loc.ID, &loc.Name, &loc.Type, &loc.Capacity, &loc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrNotFound
		}
		return Location{}, err
	}
	return loc, nil
}

func (r *Repository) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	item := Item{ID: uuid.New(), SKU: input.SKU, Description: input.Description, UOM: input.UOM}
	err := r.pool.QueryRow(ctx, `INSERT INTO items (id, sku, description, uom, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING created_at`, item.ID, item.SKU, item.Description, item.UOM).Scan(&item.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Item{}, ErrDuplicateSKU
		}
		return Item{}, err
	}
	return item, nil
}

func (r *Repository) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sku, description, uom, created_at FROM items ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.SKU, &item.Description, &item.UOM, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT id, sku, description, uom, created_at FROM items WHERE id=$1`, id).
		Scan(&item.ID, &item.SKU, &item.Description, &item.UOM, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}
