// Package report aggregates sales of closed orders per product.
package report

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/order-ledger/internal/domain/amount"
	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/order"
)

// ProductReport is the sales summary of one product over a closure window.
type ProductReport struct {
	ID            uuid.UUID
	Name          string
	Description   string
	TotalQuantity int64
	// TotalPrice uses the product's current price, not the price at closing.
	TotalPrice int64
}

// Source returns the active line items of active orders whose closing time
// falls within [start, end], with the current product row joined.
type Source interface {
	FindByClosureWindow(ctx context.Context, start, end time.Time) ([]order.LineItem, error)
}

// Aggregator builds product reports.
type Aggregator struct {
	source Source
	tracer trace.Tracer
}

// NewAggregator creates an Aggregator. A nil tp disables tracing.
func NewAggregator(source Source, tp trace.TracerProvider) *Aggregator {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	return &Aggregator{
		source: source,
		tracer: tp.Tracer("github.com/xenking/order-ledger/internal/domain/report"),
	}
}

// ByClosureWindow folds line items of orders closed within [start, end] by
// product. Results are sorted by total quantity descending; ties are broken
// by name and then id so the output is stable.
func (a *Aggregator) ByClosureWindow(ctx context.Context, start, end time.Time) (_ []ProductReport, err error) {
	ctx, span := a.tracer.Start(ctx, "report.ByClosureWindow")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.KindOf(err).String())
		}
		span.End()
	}()

	if start.IsZero() {
		return nil, apperr.Validation(apperr.EntityReport, "start_date", apperr.ReasonRequired)
	}
	if end.IsZero() {
		return nil, apperr.Validation(apperr.EntityReport, "end_date", apperr.ReasonRequired)
	}

	items, err := a.source.FindByClosureWindow(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("find line items closed in window: %w", err)
	}
	if len(items) == 0 {
		return nil, &apperr.Error{
			Kind:   apperr.KindNotFound,
			Entity: apperr.EntityReport,
			Reason: apperr.ReasonEmptyWindow,
		}
	}

	reports, err := Fold(items)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("report.line_items", len(items)),
		attribute.Int("report.products", len(reports)),
	)
	return reports, nil
}

// Fold groups line items by product and sorts the result. Sums that do not
// fit in int64 fail with ReasonTooLarge.
func Fold(items []order.LineItem) ([]ProductReport, error) {
	index := make(map[uuid.UUID]int)
	reports := make([]ProductReport, 0)
	for _, li := range items {
		i, ok := index[li.ProductID]
		if !ok {
			i = len(reports)
			index[li.ProductID] = i
			reports = append(reports, ProductReport{
				ID:          li.ProductID,
				Name:        li.Product.Name,
				Description: li.Product.Description,
			})
		}
		r := &reports[i]
		qty, ok := amount.Add(r.TotalQuantity, li.Quantity)
		if !ok {
			return nil, tooLarge(li.ProductID)
		}
		price, ok := amount.Mul(li.Quantity, li.Product.Price)
		if !ok {
			return nil, tooLarge(li.ProductID)
		}
		total, ok := amount.Add(r.TotalPrice, price)
		if !ok {
			return nil, tooLarge(li.ProductID)
		}
		r.TotalQuantity, r.TotalPrice = qty, total
	}

	slices.SortFunc(reports, func(a, b ProductReport) int {
		if c := cmp.Compare(b.TotalQuantity, a.TotalQuantity); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return reports, nil
}

func tooLarge(productID uuid.UUID) error {
	return apperr.Conflict(apperr.EntityReport, productID.String(), apperr.ReasonTooLarge)
}
