package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/order"
	"github.com/xenking/order-ledger/internal/domain/report"
)

const (
	lineItemOrderProductKey = "product_quantities_order_product_active_key"

	createLineItemSQL = `INSERT INTO product_quantities (id, order_id, product_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	updateLineItemQuantitySQL = `UPDATE product_quantities SET quantity = $2, updated_at = $3 WHERE id = $1`

	deleteLineItemSQL = `UPDATE product_quantities SET deleted_at = $2 WHERE id = $1`
)

// Line items are always read joined with the current product row. The
// product side is not filtered: an item keeps showing its product after the
// product is deleted.
const lineItemSelect = `SELECT pq.id, pq.order_id, pq.product_id, pq.quantity,
		pq.created_at, pq.updated_at, pq.deleted_at,
		p.id, p.name, p.description, p.price, p.created_at, p.updated_at, p.deleted_at
	FROM product_quantities pq
	JOIN products p ON p.id = pq.product_id`

var (
	listLineItemsByOrderSQL = lineItemSelect + `
	WHERE pq.order_id = $1 AND ` + active("pq") + `
	ORDER BY pq.created_at, pq.id`

	getLineItemSQL = lineItemSelect + `
	WHERE pq.order_id = $1 AND pq.id = $2 AND ` + active("pq")

	getLineItemByProductSQL = lineItemSelect + `
	WHERE pq.order_id = $1 AND pq.product_id = $2 AND ` + active("pq")

	deleteLineItemsByOrderSQL = `UPDATE product_quantities SET deleted_at = $2
	WHERE order_id = $1 AND ` + active("")

	findByClosureWindowSQL = lineItemSelect + `
	JOIN orders o ON o.id = pq.order_id
	WHERE o.closed_at BETWEEN $1 AND $2 AND ` + active("o") + ` AND ` + active("pq") + `
	ORDER BY pq.product_id`
)

var (
	_ order.LineItemRepository = (*LineItemRepository)(nil)
	_ report.Source            = (*LineItemRepository)(nil)
)

// LineItemRepository implements order.LineItemRepository and report.Source
// backed by PostgreSQL.
type LineItemRepository struct {
	db DB
}

// NewLineItemRepository returns a LineItemRepository that uses the given pool.
func NewLineItemRepository(db DB) *LineItemRepository {
	return &LineItemRepository{db: db}
}

// Create inserts a line item. A second active item for the same product in
// the same order is reported as a duplicate line.
func (r *LineItemRepository) Create(ctx context.Context, li *order.LineItem) error {
	_, err := conn(ctx, r.db).Exec(ctx, createLineItemSQL,
		li.ID, li.OrderID, li.ProductID, li.Quantity, li.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, lineItemOrderProductKey) {
			return apperr.Conflict(apperr.EntityLineItem, li.ProductID.String(), apperr.ReasonDuplicateLine)
		}
		return fmt.Errorf("creating line item for order %s: %w", li.OrderID, err)
	}
	return nil
}

// GetByID returns an active line item of the order.
func (r *LineItemRepository) GetByID(ctx context.Context, orderID, id uuid.UUID) (*order.LineItem, error) {
	return r.getOne(ctx, getLineItemSQL, orderID, id)
}

// GetByOrderAndProduct returns the active line item for a product in an order.
func (r *LineItemRepository) GetByOrderAndProduct(ctx context.Context, orderID, productID uuid.UUID) (*order.LineItem, error) {
	return r.getOne(ctx, getLineItemByProductSQL, orderID, productID)
}

func (r *LineItemRepository) getOne(ctx context.Context, sql string, orderID, id uuid.UUID) (*order.LineItem, error) {
	rows, err := conn(ctx, r.db).Query(ctx, sql, orderID, id)
	if err != nil {
		return nil, fmt.Errorf("getting line item %s: %w", id, err)
	}

	li, err := pgx.CollectExactlyOneRow(rows, scanLineItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrLineItemNotFound
		}
		return nil, fmt.Errorf("getting line item %s: %w", id, err)
	}
	return &li, nil
}

// UpdateQuantity writes quantity and updated_at.
func (r *LineItemRepository) UpdateQuantity(ctx context.Context, li *order.LineItem) error {
	if _, err := conn(ctx, r.db).Exec(ctx, updateLineItemQuantitySQL, li.ID, li.Quantity, li.UpdatedAt); err != nil {
		return fmt.Errorf("updating line item %s: %w", li.ID, err)
	}
	return nil
}

// Delete writes deleted_at on one line item.
func (r *LineItemRepository) Delete(ctx context.Context, li *order.LineItem) error {
	if _, err := conn(ctx, r.db).Exec(ctx, deleteLineItemSQL, li.ID, li.DeletedAt); err != nil {
		return fmt.Errorf("deleting line item %s: %w", li.ID, err)
	}
	return nil
}

// DeleteByOrder soft-deletes every active line item of an order.
func (r *LineItemRepository) DeleteByOrder(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	if _, err := conn(ctx, r.db).Exec(ctx, deleteLineItemsByOrderSQL, orderID, at); err != nil {
		return fmt.Errorf("deleting line items of order %s: %w", orderID, err)
	}
	return nil
}

// FindByClosureWindow returns active line items of active orders closed
// within [start, end], inclusive on both ends.
func (r *LineItemRepository) FindByClosureWindow(ctx context.Context, start, end time.Time) ([]order.LineItem, error) {
	rows, err := conn(ctx, r.db).Query(ctx, findByClosureWindowSQL, start, end)
	if err != nil {
		return nil, fmt.Errorf("finding line items closed between %s and %s: %w", start, end, err)
	}
	return pgx.CollectRows(rows, scanLineItem)
}

func listLineItems(ctx context.Context, db DB, orderID uuid.UUID) ([]order.LineItem, error) {
	rows, err := db.Query(ctx, listLineItemsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing line items of order %s: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanLineItem)
}

func scanLineItem(row pgx.CollectableRow) (order.LineItem, error) {
	var li order.LineItem
	p := &li.Product
	err := row.Scan(
		&li.ID, &li.OrderID, &li.ProductID, &li.Quantity,
		&li.CreatedAt, &li.UpdatedAt, &li.DeletedAt,
		&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	return li, err
}
