//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/auth"
	"github.com/xenking/order-ledger/internal/domain/order"
	"github.com/xenking/order-ledger/internal/domain/product"
	"github.com/xenking/order-ledger/internal/domain/report"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ledger",
				"POSTGRES_PASSWORD": "ledger",
				"POSTGRES_DB":       "ledger",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://ledger:ledger@%s:%s/ledger?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn, PoolConfig{MaxConns: 8})
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	return m.Run()
}

// --- Helpers ---

type stack struct {
	tx       *Transactor
	products *ProductRepository
	orders   *OrderRepository
	items    *LineItemRepository
	catalog  *product.Catalog
	svc      *order.Service
}

func newStack(t *testing.T, now func() time.Time) *stack {
	t.Helper()

	s := &stack{
		tx:       NewTransactor(testPool),
		products: NewProductRepository(testPool),
		orders:   NewOrderRepository(testPool),
		items:    NewLineItemRepository(testPool),
	}
	s.catalog = product.NewCatalog(s.products)
	opts := []order.Option{}
	if now != nil {
		s.catalog.WithClock(now)
		opts = append(opts, order.WithClock(now))
	}
	svc, err := order.NewService(s.tx, s.catalog, s.products, s.orders, s.items, opts...)
	require.NoError(t, err)
	s.svc = svc
	return s
}

// uniqueName keeps product names distinct across tests sharing one database.
// Hex digits are shifted to letters so the suffix passes the name charset.
func uniqueName(t *testing.T, base string) string {
	suffix := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return 'g' + (r - '0')
		}
		return r
	}, uuid.NewString()[:8])
	return fmt.Sprintf("%s %s", base, suffix)
}

// --- Tests ---

func TestProductRepository_NameUniqueAmongActive(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)
	name := uniqueName(t, "Sprite")

	p, err := s.catalog.Create(ctx, product.Descriptor{Name: name, Price: 10})
	require.NoError(t, err)

	dup := &product.Product{ID: uuid.New(), Name: name, Price: 12, CreatedAt: time.Now()}
	err = s.products.Create(ctx, dup)
	assert.True(t, apperr.Is(err, apperr.KindConflict, apperr.ReasonNameTaken), "got %v", err)

	_, err = s.catalog.Delete(ctx, p.ID)
	require.NoError(t, err)

	_, err = s.products.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, product.ErrNotFound)

	again, err := s.catalog.Create(ctx, product.Descriptor{Name: name, Price: 12})
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, again.ID)
}

func TestTransactor_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)
	name := uniqueName(t, "Ghost")
	boom := errors.New("boom")

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.catalog.Create(ctx, product.Descriptor{Name: name, Price: 5}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.products.GetByName(ctx, name)
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestOrderService_CreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)
	good := uniqueName(t, "Good")

	_, err := s.svc.Create(ctx, order.CreateRequest{
		ExternalClient: "Ana",
		Lines: []order.LineRequest{
			{Product: product.Descriptor{Name: good, Price: 10}, Quantity: 1},
			{Product: product.Descriptor{Name: uniqueName(t, "Bad"), Price: 0}, Quantity: 1},
		},
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = s.products.GetByName(ctx, good)
	assert.ErrorIs(t, err, product.ErrNotFound, "product created by a failed order must be rolled back")
}

func TestOrderService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)
	tacos := uniqueName(t, "Tacos")
	agua := uniqueName(t, "Agua")

	o, err := s.svc.Create(ctx, order.CreateRequest{
		ExternalClient: "Ana",
		Lines: []order.LineRequest{
			{Product: product.Descriptor{Name: tacos, Price: 100}, Quantity: 5},
			{Product: product.Descriptor{Name: tacos, Price: 100}, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(6), o.Items[0].Quantity)
	assert.Equal(t, int64(600), o.TotalPrice)
	assert.Equal(t, tacos, o.Items[0].Product.Name)

	p, err := s.catalog.Create(ctx, product.Descriptor{Name: agua, Price: 15})
	require.NoError(t, err)
	li, err := s.svc.AddLineItem(ctx, o.ID, p.ID, 2)
	require.NoError(t, err)

	_, err = s.svc.AddLineItem(ctx, o.ID, p.ID, 2)
	assert.True(t, apperr.Is(err, apperr.KindConflict, apperr.ReasonDuplicateLine))

	_, err = s.svc.UpdateLineItem(ctx, o.ID, o.Items[0].ID, 2)
	require.NoError(t, err)
	_, err = s.svc.RemoveLineItem(ctx, o.ID, li.ID)
	require.NoError(t, err)

	got, err := s.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.TotalPrice)
	require.Len(t, got.Items, 1)

	_, err = s.svc.Close(ctx, o.ID)
	require.NoError(t, err)
	_, err = s.svc.Close(ctx, o.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict, apperr.ReasonOrderClosed))

	deleted, err := s.svc.Delete(ctx, o.ID)
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)

	_, err = s.svc.Get(ctx, o.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = s.items.GetByID(ctx, o.ID, o.Items[0].ID)
	assert.ErrorIs(t, err, order.ErrLineItemNotFound)
}

func TestOrderService_ConcurrentUpdatesKeepTotalConsistent(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)

	var (
		ids []uuid.UUID
		req = order.CreateRequest{ExternalClient: "Ana"}
	)
	for i := 0; i < 4; i++ {
		req.Lines = append(req.Lines, order.LineRequest{
			Product:  product.Descriptor{Name: uniqueName(t, "Item"), Price: int64(10 * (i + 1))},
			Quantity: 1,
		})
	}
	o, err := s.svc.Create(ctx, req)
	require.NoError(t, err)
	for _, li := range o.Items {
		ids = append(ids, li.ID)
	}

	var wg sync.WaitGroup
	for round := int64(2); round <= 6; round++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id uuid.UUID, q int64) {
				defer wg.Done()
				_, err := s.svc.UpdateLineItem(ctx, o.ID, id, q)
				assert.NoError(t, err)
			}(id, round)
		}
	}
	wg.Wait()

	got, err := s.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	var want int64
	for _, li := range got.Items {
		want += li.Quantity * li.Product.Price
	}
	assert.Equal(t, want, got.TotalPrice)
}

func TestLineItemRepository_FindByClosureWindow(t *testing.T) {
	ctx := context.Background()
	t1 := time.Date(2031, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)

	clock := t1
	s := newStack(t, func() time.Time { return clock })
	a, b := uniqueName(t, "A"), uniqueName(t, "B")

	o1, err := s.svc.Create(ctx, order.CreateRequest{
		ExternalClient: "Ana",
		Lines:          []order.LineRequest{{Product: product.Descriptor{Name: a, Price: 100}, Quantity: 10}},
	})
	require.NoError(t, err)
	_, err = s.svc.Close(ctx, o1.ID)
	require.NoError(t, err)

	clock = t2
	o2, err := s.svc.Create(ctx, order.CreateRequest{
		ExternalClient: "Beto",
		Lines:          []order.LineRequest{{Product: product.Descriptor{Name: b, Price: 50}, Quantity: 2}},
	})
	require.NoError(t, err)
	_, err = s.svc.Close(ctx, o2.ID)
	require.NoError(t, err)

	open, err := s.svc.Create(ctx, order.CreateRequest{
		ExternalClient: "Open",
		Lines:          []order.LineRequest{{Product: product.Descriptor{Name: a, Price: 100}, Quantity: 99}},
	})
	require.NoError(t, err)
	require.Nil(t, open.ClosedAt)

	reports, err := report.NewAggregator(s.items, nil).ByClosureWindow(ctx, t1, t2)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, a, reports[0].Name)
	assert.Equal(t, int64(10), reports[0].TotalQuantity)
	assert.Equal(t, int64(1000), reports[0].TotalPrice)
	assert.Equal(t, b, reports[1].Name)
	assert.Equal(t, int64(100), reports[1].TotalPrice)

	_, err = report.NewAggregator(s.items, nil).ByClosureWindow(ctx, t2.Add(time.Hour), t2.Add(2*time.Hour))
	assert.True(t, apperr.Is(err, apperr.KindNotFound, apperr.ReasonEmptyWindow))
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository(testPool)
	hash := uuid.NewString()

	require.NoError(t, repo.Upsert(ctx, &auth.APIKeyInfo{
		ID: "test-" + hash[:8], KeyHash: hash, Name: "test", Scopes: auth.AllScopes,
	}))

	got, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.True(t, got.HasScope(auth.ScopeOrdersWrite))

	_, err = repo.FindByHash(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)
}
