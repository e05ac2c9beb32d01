package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-ledger/internal/domain/order"
)

const (
	orderColumns = `id, external_client, total_price, closed_at, created_at, updated_at, deleted_at`

	createOrderSQL = `INSERT INTO orders (id, external_client, total_price, created_at)
		VALUES ($1, $2, $3, $4)`

	updateOrderClientSQL = `UPDATE orders SET external_client = $2, updated_at = $3 WHERE id = $1`

	setOrderTotalSQL = `UPDATE orders SET total_price = $2 WHERE id = $1`

	closeOrderSQL = `UPDATE orders SET closed_at = $2, updated_at = $3 WHERE id = $1`

	deleteOrderSQL = `UPDATE orders SET deleted_at = $2 WHERE id = $1`
)

var (
	getOrderByIDSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE id = $1 AND ` + active("")

	getOrderForUpdateSQL = getOrderByIDSQL + ` FOR UPDATE`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order row. Line items are written separately.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := conn(ctx, r.db).Exec(ctx, createOrderSQL,
		o.ID, o.ExternalClient, o.TotalPrice, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an active order with its active line items.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	db := conn(ctx, r.db)
	o, err := r.getOne(ctx, db, getOrderByIDSQL, id)
	if err != nil {
		return nil, err
	}
	if o.Items, err = listLineItems(ctx, db, id); err != nil {
		return nil, err
	}
	return o, nil
}

// GetForUpdate returns an active order row locked until the surrounding
// transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.getOne(ctx, conn(ctx, r.db), getOrderForUpdateSQL, id)
}

func (r *OrderRepository) getOne(ctx context.Context, db DB, sql string, id uuid.UUID) (*order.Order, error) {
	rows, err := db.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	return &o, nil
}

// UpdateExternalClient writes the client label and updated_at.
func (r *OrderRepository) UpdateExternalClient(ctx context.Context, o *order.Order) error {
	if _, err := conn(ctx, r.db).Exec(ctx, updateOrderClientSQL, o.ID, o.ExternalClient, o.UpdatedAt); err != nil {
		return fmt.Errorf("updating order %s: %w", o.ID, err)
	}
	return nil
}

// SetTotalPrice writes the reconciled total.
func (r *OrderRepository) SetTotalPrice(ctx context.Context, id uuid.UUID, total int64) error {
	if _, err := conn(ctx, r.db).Exec(ctx, setOrderTotalSQL, id, total); err != nil {
		return fmt.Errorf("setting total of order %s: %w", id, err)
	}
	return nil
}

// Close writes closed_at.
func (r *OrderRepository) Close(ctx context.Context, o *order.Order) error {
	if _, err := conn(ctx, r.db).Exec(ctx, closeOrderSQL, o.ID, o.ClosedAt, o.UpdatedAt); err != nil {
		return fmt.Errorf("closing order %s: %w", o.ID, err)
	}
	return nil
}

// Delete writes deleted_at on the order row only.
func (r *OrderRepository) Delete(ctx context.Context, o *order.Order) error {
	if _, err := conn(ctx, r.db).Exec(ctx, deleteOrderSQL, o.ID, o.DeletedAt); err != nil {
		return fmt.Errorf("deleting order %s: %w", o.ID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.ExternalClient, &o.TotalPrice, &o.ClosedAt,
		&o.CreatedAt, &o.UpdatedAt, &o.DeletedAt,
	)
	return o, err
}
