package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/order-ledger/internal/domain/amount"
	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/product"
)

const (
	instrumentationName = "github.com/xenking/order-ledger/internal/domain/order"
	maxClientLen        = 128
)

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	ExternalClient string
	Lines          []LineRequest
}

// LineRequest is one entry of an order payload. Products are referenced by
// descriptor and resolved through the catalog.
type LineRequest struct {
	Product  product.Descriptor
	Quantity int64
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider used for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider used for service counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service encapsulates the order lifecycle: creation, client updates,
// closing, deletion and line item changes. Every mutation runs in one
// transaction and locks the order row first.
type Service struct {
	tx         Transactor
	orders     Repository
	items      LineItemRepository
	catalog    *product.Catalog
	reconciler *Reconciler
	now        func() time.Time

	tracer trace.Tracer
	meter  metric.Meter

	ordersCreated metric.Int64Counter
	ordersClosed  metric.Int64Counter
	ordersDeleted metric.Int64Counter
	itemMutations metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	tx Transactor,
	catalog *product.Catalog,
	products product.Repository,
	orders Repository,
	items LineItemRepository,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		tx:         tx,
		orders:     orders,
		items:      items,
		catalog:    catalog,
		reconciler: NewReconciler(products, orders),
		now:        time.Now,
		tracer:     tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:      metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.ordersCreated, err = s.meter.Int64Counter("ledger.orders.created",
		metric.WithDescription("Orders created")); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.ordersClosed, err = s.meter.Int64Counter("ledger.orders.closed",
		metric.WithDescription("Orders closed")); err != nil {
		return nil, errors.Wrap(err, "orders.closed counter")
	}
	if s.ordersDeleted, err = s.meter.Int64Counter("ledger.orders.deleted",
		metric.WithDescription("Orders deleted")); err != nil {
		return nil, errors.Wrap(err, "orders.deleted counter")
	}
	if s.itemMutations, err = s.meter.Int64Counter("ledger.line_items.mutations",
		metric.WithDescription("Line item additions, updates and removals")); err != nil {
		return nil, errors.Wrap(err, "line_items.mutations counter")
	}
	return s, nil
}

// Create validates the payload, resolves every product descriptor, merges
// lines that reference the same product and persists the order with its
// line items atomically.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() { endSpan(span, err) }()

	if err := validateClient(req.ExternalClient); err != nil {
		return nil, err
	}
	for _, l := range req.Lines {
		if err := validateQuantity(l.Quantity); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	o := &Order{
		ID:             uuid.New(),
		ExternalClient: req.ExternalClient,
		CreatedAt:      now,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		lines := make([]Line, 0, len(req.Lines))
		for _, l := range req.Lines {
			res, err := s.catalog.ResolveOrCreate(ctx, l.Product)
			if err != nil {
				return err
			}
			lines = append(lines, Line{ProductID: res.ProductID, Quantity: l.Quantity})
		}

		merged, err := MergeLines(lines)
		if err != nil {
			return err
		}
		for _, l := range merged {
			li := &LineItem{
				ID:        uuid.New(),
				OrderID:   o.ID,
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				CreatedAt: now,
			}
			if err := s.items.Create(ctx, li); err != nil {
				return fmt.Errorf("create line item: %w", err)
			}
			if err := s.reconciler.ApplyDelta(ctx, o, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ordersCreated.Add(ctx, 1)
	span.SetAttributes(attribute.String("order.id", o.ID.String()))
	return s.Get(ctx, o.ID)
}

// Get returns an active order with its active line items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(apperr.EntityOrder, id.String())
		}
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

// UpdateExternalClient changes the client label of an open order.
func (s *Service) UpdateExternalClient(ctx context.Context, id uuid.UUID, client string) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateExternalClient")
	defer func() { endSpan(span, err) }()

	if err := validateClient(client); err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		o.ExternalClient = client
		o.UpdatedAt = &now
		if err := s.orders.UpdateExternalClient(ctx, o); err != nil {
			return fmt.Errorf("update order %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Close transitions an open order to closed. Closing is irreversible.
func (s *Service) Close(ctx context.Context, id uuid.UUID) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.Close")
	defer func() { endSpan(span, err) }()

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		o.ClosedAt = &now
		o.UpdatedAt = &now
		if err := s.orders.Close(ctx, o); err != nil {
			return fmt.Errorf("close order %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ordersClosed.Add(ctx, 1)
	return s.Get(ctx, id)
}

// Delete soft-deletes an order together with all its active line items and
// returns the order as it was before deletion. Closed orders can be deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (_ *Order, err error) {
	ctx, span := s.tracer.Start(ctx, "order.Delete")
	defer func() { endSpan(span, err) }()

	var deleted *Order
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.lock(ctx, id); err != nil {
			return err
		}
		o, err := s.Get(ctx, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		o.DeletedAt = &now
		if err := s.orders.Delete(ctx, o); err != nil {
			return fmt.Errorf("delete order %s: %w", id, err)
		}
		if err := s.items.DeleteByOrder(ctx, id, now); err != nil {
			return fmt.Errorf("delete line items of order %s: %w", id, err)
		}
		for i := range o.Items {
			o.Items[i].DeletedAt = &now
		}
		deleted = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ordersDeleted.Add(ctx, 1)
	return deleted, nil
}

// AddLineItem adds a new product to an open order. Adding a product that
// already has an active line item in the order is a conflict.
func (s *Service) AddLineItem(ctx context.Context, orderID, productID uuid.UUID, quantity int64) (_ *LineItem, err error) {
	ctx, span := s.tracer.Start(ctx, "order.AddLineItem")
	defer func() { endSpan(span, err) }()

	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	var li *LineItem
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOpen(ctx, orderID)
		if err != nil {
			return err
		}
		p, err := s.catalog.Get(ctx, productID)
		if err != nil {
			return err
		}

		switch _, err := s.items.GetByOrderAndProduct(ctx, orderID, productID); {
		case err == nil:
			return apperr.Conflict(apperr.EntityLineItem, productID.String(), apperr.ReasonDuplicateLine)
		case !errors.Is(err, ErrLineItemNotFound):
			return fmt.Errorf("lookup line item: %w", err)
		}

		li = &LineItem{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: productID,
			Quantity:  quantity,
			Product:   *p,
			CreatedAt: s.now().UTC(),
		}
		if err := s.items.Create(ctx, li); err != nil {
			return fmt.Errorf("create line item: %w", err)
		}
		return s.reconciler.ApplyDelta(ctx, o, productID, quantity)
	})
	if err != nil {
		return nil, err
	}

	s.itemMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "add")))
	return li, nil
}

// GetLineItem returns an active line item of an order.
func (s *Service) GetLineItem(ctx context.Context, orderID, id uuid.UUID) (*LineItem, error) {
	li, err := s.items.GetByID(ctx, orderID, id)
	if err != nil {
		if errors.Is(err, ErrLineItemNotFound) {
			return nil, apperr.NotFound(apperr.EntityLineItem, id.String())
		}
		return nil, fmt.Errorf("get line item %s: %w", id, err)
	}
	return li, nil
}

// UpdateLineItem sets a new quantity on a line item of an open order and
// applies the difference to the order total.
func (s *Service) UpdateLineItem(ctx context.Context, orderID, id uuid.UUID, quantity int64) (_ *LineItem, err error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateLineItem")
	defer func() { endSpan(span, err) }()

	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	var li *LineItem
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOpen(ctx, orderID)
		if err != nil {
			return err
		}
		if li, err = s.GetLineItem(ctx, orderID, id); err != nil {
			return err
		}

		delta := quantity - li.Quantity
		now := s.now().UTC()
		li.Quantity = quantity
		li.UpdatedAt = &now
		if err := s.items.UpdateQuantity(ctx, li); err != nil {
			return fmt.Errorf("update line item %s: %w", id, err)
		}
		return s.reconciler.ApplyDelta(ctx, o, li.ProductID, delta)
	})
	if err != nil {
		return nil, err
	}

	s.itemMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "update")))
	return li, nil
}

// RemoveLineItem soft-deletes a line item of an open order and subtracts its
// contribution from the order total.
func (s *Service) RemoveLineItem(ctx context.Context, orderID, id uuid.UUID) (_ *LineItem, err error) {
	ctx, span := s.tracer.Start(ctx, "order.RemoveLineItem")
	defer func() { endSpan(span, err) }()

	var li *LineItem
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.lockOpen(ctx, orderID)
		if err != nil {
			return err
		}
		if li, err = s.GetLineItem(ctx, orderID, id); err != nil {
			return err
		}

		now := s.now().UTC()
		li.DeletedAt = &now
		if err := s.items.Delete(ctx, li); err != nil {
			return fmt.Errorf("delete line item %s: %w", id, err)
		}
		return s.reconciler.ApplyDelta(ctx, o, li.ProductID, -li.Quantity)
	})
	if err != nil {
		return nil, err
	}

	s.itemMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "remove")))
	return li, nil
}

// lock loads and row-locks an active order.
func (s *Service) lock(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(apperr.EntityOrder, id.String())
		}
		return nil, fmt.Errorf("lock order %s: %w", id, err)
	}
	return o, nil
}

// lockOpen is lock plus the open-state check shared by every mutation.
func (s *Service) lockOpen(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.State() == StateClosed {
		return nil, apperr.Conflict(apperr.EntityOrder, id.String(), apperr.ReasonOrderClosed)
	}
	return o, nil
}

func validateClient(client string) error {
	if strings.TrimSpace(client) == "" {
		return apperr.Validation(apperr.EntityOrder, "external_client", apperr.ReasonRequired)
	}
	return product.ValidateText(apperr.EntityOrder, "external_client", client, maxClientLen)
}

func validateQuantity(q int64) error {
	switch {
	case q <= 0:
		return apperr.Validation(apperr.EntityLineItem, "quantity", apperr.ReasonNotPositive)
	case q > amount.MaxQuantity:
		return apperr.Validation(apperr.EntityLineItem, "quantity", apperr.ReasonTooLarge)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
	span.End()
}
