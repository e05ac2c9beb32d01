package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/order"
	"github.com/xenking/order-ledger/internal/domain/product"
)

func TestStore_InTxRollsBack(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	existing := product.Product{ID: uuid.New(), Name: "Sprite", Price: 10}
	require.NoError(t, s.Products().Create(ctx, &existing))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context) error {
		fresh := product.Product{ID: uuid.New(), Name: "Fanta", Price: 11}
		require.NoError(t, s.Products().Create(ctx, &fresh))

		renamed := existing
		renamed.Name = "Sprite Zero"
		require.NoError(t, s.Products().Update(ctx, &renamed))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Products().GetByName(ctx, "Fanta")
	assert.ErrorIs(t, err, product.ErrNotFound)
	got, err := s.Products().GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sprite", got.Name)
}

func TestStore_InTxNested(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context) error {
		return s.InTx(ctx, func(ctx context.Context) error {
			p := product.Product{ID: uuid.New(), Name: "Agua", Price: 5}
			return s.Products().Create(ctx, &p)
		})
	})
	require.NoError(t, err)

	_, err = s.Products().GetByName(ctx, "Agua")
	assert.NoError(t, err)
}

func TestStore_UniqueConstraints(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	p := product.Product{ID: uuid.New(), Name: "Sprite", Price: 10}
	require.NoError(t, s.Products().Create(ctx, &p))
	dup := product.Product{ID: uuid.New(), Name: "Sprite", Price: 10}
	assert.True(t, apperr.Is(s.Products().Create(ctx, &dup), apperr.KindConflict, apperr.ReasonNameTaken))

	o := order.Order{ID: uuid.New(), ExternalClient: "Ana"}
	require.NoError(t, s.Orders().Create(ctx, &o))
	li := order.LineItem{ID: uuid.New(), OrderID: o.ID, ProductID: p.ID, Quantity: 1}
	require.NoError(t, s.LineItems().Create(ctx, &li))
	li2 := order.LineItem{ID: uuid.New(), OrderID: o.ID, ProductID: p.ID, Quantity: 2}
	assert.True(t, apperr.Is(s.LineItems().Create(ctx, &li2), apperr.KindConflict, apperr.ReasonDuplicateLine))
}

func TestStore_FindByClosureWindow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	closed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	p := product.Product{ID: uuid.New(), Name: "Sprite", Price: 10}
	require.NoError(t, s.Products().Create(ctx, &p))

	in := order.Order{ID: uuid.New(), ClosedAt: &closed}
	open := order.Order{ID: uuid.New()}
	require.NoError(t, s.Orders().Create(ctx, &in))
	require.NoError(t, s.Orders().Create(ctx, &open))
	require.NoError(t, s.LineItems().Create(ctx, &order.LineItem{ID: uuid.New(), OrderID: in.ID, ProductID: p.ID, Quantity: 3}))
	require.NoError(t, s.LineItems().Create(ctx, &order.LineItem{ID: uuid.New(), OrderID: open.ID, ProductID: p.ID, Quantity: 9}))

	got, err := s.LineItems().FindByClosureWindow(ctx, closed, closed)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Quantity)
	assert.Equal(t, "Sprite", got[0].Product.Name)

	got, err = s.LineItems().FindByClosureWindow(ctx, closed.Add(time.Second), closed.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ReadsWaitForRunningTx(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	written := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTx(ctx, func(ctx context.Context) error {
			p := product.Product{ID: uuid.New(), Name: "Fanta", Price: 11}
			if err := s.Products().Create(ctx, &p); err != nil {
				return err
			}
			close(written)
			<-release
			return boom
		})
	}()
	<-written

	read := make(chan error, 1)
	go func() {
		_, err := s.Products().GetByName(ctx, "Fanta")
		read <- err
	}()
	assert.Never(t, func() bool { return len(read) > 0 }, 30*time.Millisecond, time.Millisecond,
		"read completed while the transaction was running")

	close(release)
	require.ErrorIs(t, <-done, boom)
	assert.ErrorIs(t, <-read, product.ErrNotFound)
}
