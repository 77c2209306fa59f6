package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bft-labs/possync/internal/clock"
	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
)

// maxIDLen bounds caller-chosen transaction ids.
const maxIDLen = 128

// StatusRefresher is notified after the queue changes.
type StatusRefresher interface {
	Refresh(ctx context.Context) (domain.Status, error)
}

// Queue is the UI-facing API over the local store. Enqueue only writes
// locally; delivery is the engine's job.
type Queue struct {
	store  ports.Store
	clock  clock.Clock
	status StatusRefresher
	logger ports.Logger
	newID  func() string
}

// NewQueue creates a queue service. status may be nil.
func NewQueue(store ports.Store, clk clock.Clock, status StatusRefresher, logger ports.Logger) *Queue {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Queue{
		store:  store,
		clock:  clk,
		status: status,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Enqueue stores a completed sale under a new id and returns the id.
func (q *Queue) Enqueue(ctx context.Context, payload json.RawMessage) (string, error) {
	return q.enqueue(ctx, q.newID(), payload)
}

// EnqueueWithID stores a completed sale under a caller-chosen id. Retrying
// with the same id returns domain.ErrDuplicateKey.
func (q *Queue) EnqueueWithID(ctx context.Context, id string, payload json.RawMessage) (string, error) {
	if id == "" {
		return q.Enqueue(ctx, payload)
	}
	if len(id) > maxIDLen || strings.ContainsAny(id, "/ \t\r\n") {
		return "", fmt.Errorf("transaction id %q: %w", id, domain.ErrInvalidPayload)
	}
	return q.enqueue(ctx, id, payload)
}

func (q *Queue) enqueue(ctx context.Context, id string, payload json.RawMessage) (string, error) {
	if err := domain.ValidatePayload(payload); err != nil {
		return "", err
	}

	tx := domain.NewSale(id, q.clock.Now(), append(json.RawMessage(nil), payload...))
	if err := q.store.SaveTransaction(ctx, tx); err != nil {
		return "", err
	}

	q.logger.Info("transaction queued",
		ports.String("id", id),
		ports.Int("bytes", len(payload)),
	)
	q.refresh(ctx)
	return id, nil
}

// GetPending returns unsynced transactions in submission order.
func (q *Queue) GetPending(ctx context.Context) ([]domain.Transaction, error) {
	return q.store.GetUnsyncedTransactions(ctx)
}

// Get returns one transaction.
func (q *Queue) Get(ctx context.Context, id string) (domain.Transaction, error) {
	return q.store.GetTransaction(ctx, id)
}

// Products returns the cached product snapshot.
func (q *Queue) Products(ctx context.Context) ([]domain.Product, error) {
	return q.store.GetProducts(ctx)
}

// ReplaceProducts overwrites the product snapshot.
func (q *Queue) ReplaceProducts(ctx context.Context, products []domain.Product) error {
	for i, p := range products {
		if p.ID == "" {
			return fmt.Errorf("product %d has no id: %w", i, domain.ErrInvalidPayload)
		}
	}
	return q.store.SaveProducts(ctx, products)
}

// Cart returns the active cart.
func (q *Queue) Cart(ctx context.Context) ([]domain.CartItem, error) {
	return q.store.GetCart(ctx)
}

// ReplaceCart overwrites the active cart.
func (q *Queue) ReplaceCart(ctx context.Context, items []domain.CartItem) error {
	for i, it := range items {
		if it.ProductID == "" {
			return fmt.Errorf("cart item %d has no product_id: %w", i, domain.ErrInvalidPayload)
		}
	}
	return q.store.SaveCart(ctx, items)
}

// ClearCart empties the active cart.
func (q *Queue) ClearCart(ctx context.Context) error {
	return q.store.ClearCart(ctx)
}

func (q *Queue) refresh(ctx context.Context) {
	if q.status == nil {
		return
	}
	if _, err := q.status.Refresh(ctx); err != nil {
		q.logger.Warn("failed to refresh sync status", ports.Err(err))
	}
}
