package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/order-ledger/internal/domain/product"
)

var (
	// ErrNotFound is returned when no active order matches a lookup.
	ErrNotFound = errors.New("order not found")
	// ErrLineItemNotFound is returned when no active line item matches a lookup.
	ErrLineItemNotFound = errors.New("line item not found")
)

// State is the lifecycle state of an order.
type State uint8

const (
	StateOpen State = iota
	StateClosed
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "deleted"
	}
}

// Order is a customer purchase. TotalPrice always equals the sum of
// quantity times current unit price over its active line items.
type Order struct {
	ID             uuid.UUID
	ExternalClient string
	TotalPrice     int64
	ClosedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	DeletedAt      *time.Time
	Items          []LineItem
}

// State derives the lifecycle state from the timestamps.
func (o *Order) State() State {
	switch {
	case o.DeletedAt != nil:
		return StateDeleted
	case o.ClosedAt != nil:
		return StateClosed
	default:
		return StateOpen
	}
}

// LineItem records a quantity of one product within an order. At most one
// active line item exists per (order, product) pair.
type LineItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int64
	// Product is the product row as currently stored, joined on read.
	Product   product.Product
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
}

// Repository persists orders. Lookups only see active orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// GetByID returns the order with its active line items attached.
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetForUpdate returns the order row locked for the current transaction,
	// without line items.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateExternalClient(ctx context.Context, o *Order) error
	SetTotalPrice(ctx context.Context, id uuid.UUID, total int64) error
	Close(ctx context.Context, o *Order) error
	Delete(ctx context.Context, o *Order) error
}

// LineItemRepository persists line items. Lookups only see active line items.
type LineItemRepository interface {
	Create(ctx context.Context, li *LineItem) error
	GetByID(ctx context.Context, orderID, id uuid.UUID) (*LineItem, error)
	GetByOrderAndProduct(ctx context.Context, orderID, productID uuid.UUID) (*LineItem, error)
	UpdateQuantity(ctx context.Context, li *LineItem) error
	Delete(ctx context.Context, li *LineItem) error
	DeleteByOrder(ctx context.Context, orderID uuid.UUID, at time.Time) error
}

// Transactor runs fn inside a single storage transaction carried by ctx.
// Nested calls join the outer transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
