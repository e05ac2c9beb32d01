package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/auth"
	"github.com/xenking/order-ledger/internal/domain/order"
	"github.com/xenking/order-ledger/internal/domain/product"
	"github.com/xenking/order-ledger/internal/domain/report"
)

var (
	_ product.Repository       = (*ProductRepository)(nil)
	_ order.Repository         = (*OrderRepository)(nil)
	_ order.LineItemRepository = (*LineItemRepository)(nil)
	_ report.Source            = (*LineItemRepository)(nil)
	_ auth.KeyStore            = (*APIKeyRepository)(nil)
)

// ProductRepository implements product.Repository.
type ProductRepository struct{ s *Store }

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.activeProductByName(p.Name); ok {
		return apperr.NameTaken(p.Name)
	}
	put(ctx, r.s.products, p.ID, *p)
	return nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	defer r.s.lock(ctx)()

	p, ok := r.s.products[id]
	if !ok || !p.Active() {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *ProductRepository) GetByName(ctx context.Context, name string) (*product.Product, error) {
	defer r.s.lock(ctx)()

	p, ok := r.s.activeProductByName(name)
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	defer r.s.lock(ctx)()

	if other, ok := r.s.activeProductByName(p.Name); ok && other.ID != p.ID {
		return apperr.NameTaken(p.Name)
	}
	cur := r.s.products[p.ID]
	cur.Name, cur.Description, cur.UpdatedAt = p.Name, p.Description, p.UpdatedAt
	put(ctx, r.s.products, p.ID, cur)
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, p *product.Product) error {
	defer r.s.lock(ctx)()

	cur := r.s.products[p.ID]
	cur.DeletedAt = p.DeletedAt
	put(ctx, r.s.products, p.ID, cur)
	return nil
}

// ForEachName calls fn with the name of every active product.
func (r *ProductRepository) ForEachName(ctx context.Context, fn func(name string) error) error {
	unlock := r.s.lock(ctx)
	names := make([]string, 0, len(r.s.products))
	for _, p := range r.s.products {
		if p.Active() {
			names = append(names, p.Name)
		}
	}
	unlock()

	for _, name := range names {
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) activeProductByName(name string) (product.Product, bool) {
	for _, p := range s.products {
		if p.Name == name && p.Active() {
			return p, true
		}
	}
	return product.Product{}, false
}

// OrderRepository implements order.Repository.
type OrderRepository struct{ s *Store }

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	defer r.s.lock(ctx)()

	row := *o
	row.Items = nil
	put(ctx, r.s.orders, o.ID, row)
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	defer r.s.lock(ctx)()

	o, ok := r.s.orders[id]
	if !ok || o.DeletedAt != nil {
		return nil, order.ErrNotFound
	}
	o.Items = r.s.activeItems(func(li order.LineItem) bool { return li.OrderID == id })
	return &o, nil
}

// GetForUpdate needs no row lock: transactions are already serialized.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	defer r.s.lock(ctx)()

	o, ok := r.s.orders[id]
	if !ok || o.DeletedAt != nil {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (r *OrderRepository) UpdateExternalClient(ctx context.Context, o *order.Order) error {
	return r.modify(ctx, o.ID, func(cur *order.Order) {
		cur.ExternalClient, cur.UpdatedAt = o.ExternalClient, o.UpdatedAt
	})
}

func (r *OrderRepository) SetTotalPrice(ctx context.Context, id uuid.UUID, total int64) error {
	return r.modify(ctx, id, func(cur *order.Order) { cur.TotalPrice = total })
}

func (r *OrderRepository) Close(ctx context.Context, o *order.Order) error {
	return r.modify(ctx, o.ID, func(cur *order.Order) {
		cur.ClosedAt, cur.UpdatedAt = o.ClosedAt, o.UpdatedAt
	})
}

func (r *OrderRepository) Delete(ctx context.Context, o *order.Order) error {
	return r.modify(ctx, o.ID, func(cur *order.Order) { cur.DeletedAt = o.DeletedAt })
}

func (r *OrderRepository) modify(ctx context.Context, id uuid.UUID, fn func(*order.Order)) error {
	defer r.s.lock(ctx)()

	cur, ok := r.s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	fn(&cur)
	put(ctx, r.s.orders, id, cur)
	return nil
}

// LineItemRepository implements order.LineItemRepository and report.Source.
type LineItemRepository struct{ s *Store }

func (r *LineItemRepository) Create(ctx context.Context, li *order.LineItem) error {
	defer r.s.lock(ctx)()

	for _, cur := range r.s.items {
		if cur.OrderID == li.OrderID && cur.ProductID == li.ProductID && cur.DeletedAt == nil {
			return apperr.Conflict(apperr.EntityLineItem, li.ProductID.String(), apperr.ReasonDuplicateLine)
		}
	}
	row := *li
	row.Product = product.Product{}
	put(ctx, r.s.items, li.ID, row)
	return nil
}

func (r *LineItemRepository) GetByID(ctx context.Context, orderID, id uuid.UUID) (*order.LineItem, error) {
	return r.first(ctx, func(li order.LineItem) bool { return li.OrderID == orderID && li.ID == id })
}

func (r *LineItemRepository) GetByOrderAndProduct(ctx context.Context, orderID, productID uuid.UUID) (*order.LineItem, error) {
	return r.first(ctx, func(li order.LineItem) bool { return li.OrderID == orderID && li.ProductID == productID })
}

func (r *LineItemRepository) first(ctx context.Context, match func(order.LineItem) bool) (*order.LineItem, error) {
	defer r.s.lock(ctx)()

	found := r.s.activeItems(match)
	if len(found) == 0 {
		return nil, order.ErrLineItemNotFound
	}
	return &found[0], nil
}

func (r *LineItemRepository) UpdateQuantity(ctx context.Context, li *order.LineItem) error {
	defer r.s.lock(ctx)()

	cur := r.s.items[li.ID]
	cur.Quantity, cur.UpdatedAt = li.Quantity, li.UpdatedAt
	put(ctx, r.s.items, li.ID, cur)
	return nil
}

func (r *LineItemRepository) Delete(ctx context.Context, li *order.LineItem) error {
	defer r.s.lock(ctx)()

	cur := r.s.items[li.ID]
	cur.DeletedAt = li.DeletedAt
	put(ctx, r.s.items, li.ID, cur)
	return nil
}

func (r *LineItemRepository) DeleteByOrder(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	defer r.s.lock(ctx)()

	for id, cur := range r.s.items {
		if cur.OrderID == orderID && cur.DeletedAt == nil {
			cur.DeletedAt = &at
			put(ctx, r.s.items, id, cur)
		}
	}
	return nil
}

func (r *LineItemRepository) FindByClosureWindow(ctx context.Context, start, end time.Time) ([]order.LineItem, error) {
	defer r.s.lock(ctx)()

	return r.s.activeItems(func(li order.LineItem) bool {
		o, ok := r.s.orders[li.OrderID]
		if !ok || o.DeletedAt != nil || o.ClosedAt == nil {
			return false
		}
		return !o.ClosedAt.Before(start) && !o.ClosedAt.After(end)
	}), nil
}

// activeItems returns matching active line items with their product joined,
// ordered by creation time. Callers hold s.mu.
func (s *Store) activeItems(match func(order.LineItem) bool) []order.LineItem {
	var out []order.LineItem
	for _, li := range s.items {
		if li.DeletedAt != nil || !match(li) {
			continue
		}
		li.Product = s.products[li.ProductID]
		out = append(out, li)
	}
	slices.SortFunc(out, func(a, b order.LineItem) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// APIKeyRepository implements auth.Repository.
type APIKeyRepository struct{ s *Store }

func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	defer r.s.lock(ctx)()

	k, ok := r.s.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}

// Upsert stores an API key under its hash.
func (r *APIKeyRepository) Upsert(ctx context.Context, k *auth.APIKeyInfo) error {
	defer r.s.lock(ctx)()

	put(ctx, r.s.keys, k.KeyHash, *k)
	return nil
}
