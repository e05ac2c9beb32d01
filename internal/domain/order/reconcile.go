package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/order-ledger/internal/domain/amount"
	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/product"
)

// PriceSource resolves the current unit price of an active product.
type PriceSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error)
}

// Reconciler keeps Order.TotalPrice equal to the sum over active line items.
// Every quantity change goes through ApplyDelta.
type Reconciler struct {
	prices PriceSource
	orders Repository
}

// NewReconciler creates a Reconciler.
func NewReconciler(prices PriceSource, orders Repository) *Reconciler {
	return &Reconciler{prices: prices, orders: orders}
}

// ApplyDelta adds delta * current unit price of productID to the order total
// and persists it. delta is positive for additions and increases, negative
// for removals and decreases.
func (r *Reconciler) ApplyDelta(ctx context.Context, o *Order, productID uuid.UUID, delta int64) error {
	if o == nil {
		return apperr.Internal(apperr.EntityOrder, errors.New("reconcile: order is nil"))
	}

	p, err := r.prices.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return apperr.Conflict(apperr.EntityProduct, productID.String(), apperr.ReasonProductUnavailable)
		}
		return fmt.Errorf("reconcile: get product %s: %w", productID, err)
	}

	change, ok := amount.Mul(delta, p.Price)
	if !ok {
		return apperr.Validation(apperr.EntityOrder, "total_price", apperr.ReasonTooLarge)
	}
	total, ok := amount.Add(o.TotalPrice, change)
	if !ok {
		return apperr.Validation(apperr.EntityOrder, "total_price", apperr.ReasonTooLarge)
	}
	if err := r.orders.SetTotalPrice(ctx, o.ID, total); err != nil {
		return fmt.Errorf("reconcile: set total for order %s: %w", o.ID, err)
	}
	o.TotalPrice = total
	return nil
}

// Line is a requested (product, quantity) pair.
type Line struct {
	ProductID uuid.UUID
	Quantity  int64
}

// MergeLines folds lines referencing the same product into one, summing
// quantities. Output keeps the first-seen product order. A merged quantity
// above amount.MaxQuantity is rejected.
func MergeLines(lines []Line) ([]Line, error) {
	merged := make([]Line, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			q, ok := amount.Add(merged[i].Quantity, l.Quantity)
			if !ok || q > amount.MaxQuantity {
				return nil, apperr.Validation(apperr.EntityLineItem, "quantity", apperr.ReasonTooLarge)
			}
			merged[i].Quantity = q
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}
