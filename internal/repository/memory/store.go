// Package memory implements the ledger repositories in process memory. It is
// used for local runs without PostgreSQL and by HTTP tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/xenking/order-ledger/internal/domain/auth"
	"github.com/xenking/order-ledger/internal/domain/order"
	"github.com/xenking/order-ledger/internal/domain/product"
)

// Store holds all tables. Transactions are serialized and rolled back with
// an undo log. Calls made outside a transaction wait for the running one to
// finish, so they never observe writes that may still be undone.
type Store struct {
	mu   sync.Mutex
	txMu sync.RWMutex

	products map[uuid.UUID]product.Product
	orders   map[uuid.UUID]order.Order
	items    map[uuid.UUID]order.LineItem
	keys     map[string]auth.APIKeyInfo
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		products: make(map[uuid.UUID]product.Product),
		orders:   make(map[uuid.UUID]order.Order),
		items:    make(map[uuid.UUID]order.LineItem),
		keys:     make(map[string]auth.APIKeyInfo),
	}
}

var _ order.Transactor = (*Store)(nil)

// Ping always succeeds unless ctx is already done.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type txState struct {
	undo []func()
}

type txKey struct{}

// InTx runs fn with the store locked against other transactions and undoes
// every write made through ctx when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	st := &txState{}
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		s.mu.Lock()
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock acquires s.mu for one repository call and returns the release func.
// Outside a transaction it also holds txMu for reading. Lock order is txMu
// then mu.
func (s *Store) lock(ctx context.Context) func() {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.RLock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.RUnlock()
	}
}

// put writes m[k] = v and records the inverse write when ctx carries a
// transaction. Callers hold s.mu.
func put[K comparable, V any](ctx context.Context, m map[K]V, k K, v V) {
	prev, had := m[k]
	m[k] = v
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.undo = append(st.undo, func() {
			if had {
				m[k] = prev
			} else {
				delete(m, k)
			}
		})
	}
}

// Products returns the product repository view of the store.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Orders returns the order repository view of the store.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// LineItems returns the line item repository view of the store.
func (s *Store) LineItems() *LineItemRepository { return &LineItemRepository{s: s} }

// APIKeys returns the API key repository view of the store.
func (s *Store) APIKeys() *APIKeyRepository { return &APIKeyRepository{s: s} }
