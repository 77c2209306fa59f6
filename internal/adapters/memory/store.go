// Package memory implements ports.Store in process memory.
//
// It backs tests and serves as the degraded fallback when the durable
// store cannot be opened. Nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
)

// Store implements ports.Store with maps guarded by a mutex.
type Store struct {
	mu       sync.RWMutex
	txs      map[string]*entry
	seq      int64
	products map[string]domain.Product
	cart     []domain.CartItem
	now      func() time.Time
}

type entry struct {
	tx  domain.Transaction
	seq int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		txs:      make(map[string]*entry),
		products: make(map[string]domain.Product),
		now:      time.Now,
	}
}

// Initialize is a no-op; the store is ready after NewStore.
func (s *Store) Initialize(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// SaveTransaction inserts tx.
func (s *Store) SaveTransaction(ctx context.Context, tx domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs[tx.ID]; ok {
		return domain.ErrDuplicateKey
	}
	s.seq++
	s.txs[tx.ID] = &entry{tx: cloneTx(tx), seq: s.seq}
	return nil
}

// GetTransaction returns the record with the given id.
func (s *Store) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.txs[id]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return cloneTx(e.tx), nil
}

// GetUnsyncedTransactions returns unsynced records by timestamp, then insertion order.
func (s *Store) GetUnsyncedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type row struct {
		tx  domain.Transaction
		seq int64
	}
	s.mu.RLock()
	pending := make([]row, 0, len(s.txs))
	for _, e := range s.txs {
		if !e.tx.Synced {
			pending = append(pending, row{tx: cloneTx(e.tx), seq: e.seq})
		}
	}
	s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].tx.Timestamp != pending[j].tx.Timestamp {
			return pending[i].tx.Timestamp < pending[j].tx.Timestamp
		}
		return pending[i].seq < pending[j].seq
	})

	out := make([]domain.Transaction, len(pending))
	for i, r := range pending {
		out[i] = r.tx
	}
	return out, nil
}

// CountUnsynced returns the number of unsynced records.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.txs {
		if !e.tx.Synced {
			n++
		}
	}
	return n, nil
}

// MarkTransactionSynced flags the record as synced.
func (s *Store) MarkTransactionSynced(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.txs[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.tx.MarkSynced(s.now())
	return nil
}

// SaveProducts replaces the product cache.
func (s *Store) SaveProducts(ctx context.Context, products []domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := make(map[string]domain.Product, len(products))
	for _, p := range products {
		next[p.ID] = p
	}
	s.mu.Lock()
	s.products = next
	s.mu.Unlock()
	return nil
}

// GetProducts returns the product cache ordered by id.
func (s *Store) GetProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveCart replaces the cart with items.
func (s *Store) SaveCart(ctx context.Context, items []domain.CartItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cart = append([]domain.CartItem(nil), items...)
	s.mu.Unlock()
	return nil
}

// GetCart returns the cart in saved order.
func (s *Store) GetCart(ctx context.Context) ([]domain.CartItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CartItem{}, s.cart...), nil
}

// ClearCart empties the cart.
func (s *Store) ClearCart(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cart = nil
	s.mu.Unlock()
	return nil
}

func cloneTx(tx domain.Transaction) domain.Transaction {
	if tx.Payload != nil {
		tx.Payload = append(json.RawMessage(nil), tx.Payload...)
	}
	return tx
}

var _ ports.Store = (*Store)(nil)
