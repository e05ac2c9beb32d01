package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, created_at, updated_at, deleted_at`

	productsNameKey = "products_name_active_key"

	createProductSQL = `INSERT INTO products (id, name, description, price, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	updateProductSQL = `UPDATE products SET name = $2, description = $3, updated_at = $4
		WHERE id = $1`

	deleteProductSQL = `UPDATE products SET deleted_at = $2 WHERE id = $1`
)

var (
	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1 AND ` + active("")

	getProductByNameSQL = `SELECT ` + productColumns + `
		FROM products WHERE name = $1 AND ` + active("")

	listProductNamesSQL = `SELECT name FROM products WHERE ` + active("")
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a product. A concurrent insert of the same active name is
// reported as a name conflict.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := conn(ctx, r.db).Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, productsNameKey) {
			return apperr.NameTaken(p.Name)
		}
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

// GetByID returns an active product.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetByName returns the active product with the given name.
func (r *ProductRepository) GetByName(ctx context.Context, name string) (*product.Product, error) {
	return r.getOne(ctx, getProductByNameSQL, name)
}

func (r *ProductRepository) getOne(ctx context.Context, sql string, arg any) (*product.Product, error) {
	rows, err := conn(ctx, r.db).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting product %v: %w", arg, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %v: %w", arg, err)
	}
	return &p, nil
}

// Update writes name, description and updated_at.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	_, err := conn(ctx, r.db).Exec(ctx, updateProductSQL, p.ID, p.Name, p.Description, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, productsNameKey) {
			return apperr.NameTaken(p.Name)
		}
		return fmt.Errorf("updating product %s: %w", p.ID, err)
	}
	return nil
}

// Delete writes deleted_at.
func (r *ProductRepository) Delete(ctx context.Context, p *product.Product) error {
	if _, err := conn(ctx, r.db).Exec(ctx, deleteProductSQL, p.ID, p.DeletedAt); err != nil {
		return fmt.Errorf("deleting product %s: %w", p.ID, err)
	}
	return nil
}

// ForEachName streams the names of all active products.
func (r *ProductRepository) ForEachName(ctx context.Context, fn func(name string) error) error {
	rows, err := conn(ctx, r.db).Query(ctx, listProductNamesSQL)
	if err != nil {
		return fmt.Errorf("listing product names: %w", err)
	}
	var name string
	_, err = pgx.ForEachRow(rows, []any{&name}, func() error {
		return fn(name)
	})
	if err != nil {
		return fmt.Errorf("listing product names: %w", err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	return p, err
}
