package ports

import (
	"context"

	"github.com/bft-labs/possync/internal/domain"
)

// TransactionStore persists the transaction queue.
type TransactionStore interface {
	// SaveTransaction inserts a new record.
	// Returns domain.ErrDuplicateKey if the ID already exists.
	SaveTransaction(ctx context.Context, tx domain.Transaction) error

	// GetTransaction returns a single record or domain.ErrNotFound.
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)

	// GetUnsyncedTransactions returns every record with Synced == false,
	// ordered by ascending timestamp, then insertion order.
	GetUnsyncedTransactions(ctx context.Context) ([]domain.Transaction, error)

	// CountUnsynced returns the number of records with Synced == false.
	CountUnsynced(ctx context.Context) (int, error)

	// MarkTransactionSynced sets Synced = true. Marking an already synced
	// record is a no-op. Returns domain.ErrNotFound if the ID does not exist.
	MarkTransactionSynced(ctx context.Context, id string) error
}

// CatalogStore persists the product cache and the active cart.
// Both collections have full-replace semantics.
type CatalogStore interface {
	SaveProducts(ctx context.Context, products []domain.Product) error
	GetProducts(ctx context.Context) ([]domain.Product, error)

	SaveCart(ctx context.Context, items []domain.CartItem) error
	GetCart(ctx context.Context) ([]domain.CartItem, error)
	ClearCart(ctx context.Context) error
}

// Store is the local durable store.
// Implementations must be safe for concurrent use.
type Store interface {
	TransactionStore
	CatalogStore

	// Initialize opens or creates the store. It is idempotent.
	// Returns an error wrapping domain.ErrStorageUnavailable when the
	// backing storage cannot be opened.
	Initialize(ctx context.Context) error

	// Close releases the backing storage.
	Close() error
}
