package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no active product matches a lookup.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item. Price is an integer amount in minor units.
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       int64
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
}

// Active reports whether the product has not been soft-deleted.
func (p *Product) Active() bool { return p.DeletedAt == nil }

// Repository persists products. Lookups only see active products.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByName(ctx context.Context, name string) (*Product, error)
	// Update writes name, description and updated_at.
	Update(ctx context.Context, p *Product) error
	// Delete writes deleted_at.
	Delete(ctx context.Context, p *Product) error
}
