package product

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/order-ledger/internal/domain/amount"
	"github.com/xenking/order-ledger/internal/domain/apperr"
)

// Descriptor identifies a product by name inside an order payload.
type Descriptor struct {
	Name        string
	Description string
	Price       int64
}

// Resolution is the outcome of ResolveOrCreate.
type Resolution struct {
	ProductID uuid.UUID
	// UnitPrice is the price the order is charged per unit.
	UnitPrice int64
	Created   bool
}

// UpdateInput holds the mutable product attributes. Price is accepted for
// validation only and never written.
type UpdateInput struct {
	Name        string
	Description string
	Price       *int64
}

// Catalog owns product lifecycle rules.
type Catalog struct {
	products Repository
	now      func() time.Time
}

// NewCatalog creates a Catalog backed by the given repository.
func NewCatalog(products Repository) *Catalog {
	return &Catalog{products: products, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

const (
	MaxNameLen        = 32
	MaxDescriptionLen = 128
)

// TextPattern is the character set accepted for names, descriptions and
// client labels.
var TextPattern = regexp.MustCompile(`^[A-Za-z Ññ.'_]+$`)

// ValidateText checks an optional free-text attribute against maxLen runes
// and TextPattern.
func ValidateText(entity apperr.Entity, field, s string, maxLen int) error {
	if s == "" {
		return nil
	}
	if utf8.RuneCountInString(s) > maxLen {
		return apperr.Validation(entity, field, apperr.ReasonTooLong)
	}
	if !TextPattern.MatchString(s) {
		return apperr.Validation(entity, field, apperr.ReasonCharset)
	}
	return nil
}

// ValidateName rejects empty, overlong and out-of-charset names.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation(apperr.EntityProduct, "name", apperr.ReasonRequired)
	}
	return ValidateText(apperr.EntityProduct, "name", name, MaxNameLen)
}

// ValidateDescription accepts an empty description.
func ValidateDescription(desc string) error {
	return ValidateText(apperr.EntityProduct, "description", desc, MaxDescriptionLen)
}

// ValidatePrice rejects non-positive prices and prices above amount.MaxPrice.
func ValidatePrice(price int64) error {
	switch {
	case price <= 0:
		return apperr.Validation(apperr.EntityProduct, "price", apperr.ReasonNotPositive)
	case price > amount.MaxPrice:
		return apperr.Validation(apperr.EntityProduct, "price", apperr.ReasonTooLarge)
	}
	return nil
}

// Create adds a product after checking that no active product uses the name.
func (c *Catalog) Create(ctx context.Context, d Descriptor) (*Product, error) {
	if err := ValidateName(d.Name); err != nil {
		return nil, err
	}
	if err := ValidateDescription(d.Description); err != nil {
		return nil, err
	}
	if err := ValidatePrice(d.Price); err != nil {
		return nil, err
	}

	switch _, err := c.products.GetByName(ctx, d.Name); {
	case err == nil:
		return nil, apperr.NameTaken(d.Name)
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("lookup product %q: %w", d.Name, err)
	}

	p := &Product{
		ID:          uuid.New(),
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		CreatedAt:   c.now().UTC(),
	}
	if err := c.products.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// Get returns an active product.
func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := c.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(apperr.EntityProduct, id.String())
		}
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// Update changes name and description. The stored price never changes, but a
// supplied price must still be positive.
func (c *Catalog) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Product, error) {
	p, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateName(in.Name); err != nil {
		return nil, err
	}
	if err := ValidateDescription(in.Description); err != nil {
		return nil, err
	}
	if in.Price != nil {
		if err := ValidatePrice(*in.Price); err != nil {
			return nil, err
		}
	}

	if in.Name != p.Name {
		switch other, err := c.products.GetByName(ctx, in.Name); {
		case err == nil && other.ID != p.ID:
			return nil, apperr.NameTaken(in.Name)
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("lookup product %q: %w", in.Name, err)
		}
	}

	now := c.now().UTC()
	p.Name = in.Name
	p.Description = in.Description
	p.UpdatedAt = &now
	if err := c.products.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}
	return p, nil
}

// Delete soft-deletes an active product and returns its final state.
func (c *Catalog) Delete(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	p.DeletedAt = &now
	if err := c.products.Delete(ctx, p); err != nil {
		return nil, fmt.Errorf("delete product %s: %w", id, err)
	}
	return p, nil
}

// ResolveOrCreate maps an order payload descriptor to a product id.
//
// Price policy "catalog price wins": when an active product with the
// descriptor's name exists, its stored price is charged and the descriptor
// price is ignored. Otherwise the descriptor is validated and a new product is
// created at the descriptor price.
func (c *Catalog) ResolveOrCreate(ctx context.Context, d Descriptor) (Resolution, error) {
	if err := ValidateName(d.Name); err != nil {
		return Resolution{}, err
	}

	existing, err := c.products.GetByName(ctx, d.Name)
	switch {
	case err == nil:
		return Resolution{ProductID: existing.ID, UnitPrice: existing.Price}, nil
	case !errors.Is(err, ErrNotFound):
		return Resolution{}, fmt.Errorf("lookup product %q: %w", d.Name, err)
	}

	p, err := c.Create(ctx, d)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{ProductID: p.ID, UnitPrice: p.Price, Created: true}, nil
}
