// Package storetest holds behaviour tests shared by every ports.Store
// implementation.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
)

// Factory returns a fresh, initialized store for one subtest.
type Factory func(t *testing.T) ports.Store

// Run exercises the common store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s ports.Store)
	}{
		{"SaveAndGet", testSaveAndGet},
		{"DuplicateKey", testDuplicateKey},
		{"GetMissing", testGetMissing},
		{"UnsyncedOrder", testUnsyncedOrder},
		{"MarkSynced", testMarkSynced},
		{"MarkSyncedIdempotent", testMarkSyncedIdempotent},
		{"MarkSyncedMissing", testMarkSyncedMissing},
		{"ProductsReplace", testProductsReplace},
		{"CartReplace", testCartReplace},
		{"ClearCart", testClearCart},
		{"ConcurrentMarkAndList", testConcurrentMarkAndList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// Sale builds an unsynced sale with a small JSON payload.
func Sale(id string, ts int64) domain.Transaction {
	return domain.Transaction{
		ID:        id,
		Timestamp: ts,
		Kind:      domain.KindSale,
		Payload:   json.RawMessage(`{"customer":"Walk-in","items":[{"item_code":"` + id + `","qty":1}]}`),
	}
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func testSaveAndGet(t *testing.T, s ports.Store) {
	ctx := context.Background()
	want := Sale("tx-1", 1_700_000_000_000)
	require.NoError(t, s.SaveTransaction(ctx, want))

	got, err := s.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Timestamp, got.Timestamp)
	assert.Equal(t, domain.KindSale, got.Kind)
	assert.JSONEq(t, string(want.Payload), string(got.Payload))
	assert.False(t, got.Synced)
	assert.Zero(t, got.SyncedAt)

	n, err := s.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testDuplicateKey(t *testing.T, s ports.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveTransaction(ctx, Sale("dup", 1)))

	err := s.SaveTransaction(ctx, Sale("dup", 2))
	require.ErrorIs(t, err, domain.ErrDuplicateKey)

	got, err := s.GetTransaction(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Timestamp, "original record must be kept")
}

func testGetMissing(t *testing.T, s ports.Store) {
	_, err := s.GetTransaction(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testUnsyncedOrder(t *testing.T, s ports.Store) {
	ctx := context.Background()
	for _, tx := range []domain.Transaction{
		Sale("c", 30),
		Sale("a", 10),
		Sale("b2", 20),
		Sale("b1", 20),
	} {
		require.NoError(t, s.SaveTransaction(ctx, tx))
	}

	got, err := s.GetUnsyncedTransactions(ctx)
	require.NoError(t, err)
	// equal timestamps keep insertion order
	assert.Equal(t, []string{"a", "b2", "b1", "c"}, ids(got))
}

func testMarkSynced(t *testing.T, s ports.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveTransaction(ctx, Sale("x", 1)))
	require.NoError(t, s.SaveTransaction(ctx, Sale("y", 2)))

	require.NoError(t, s.MarkTransactionSynced(ctx, "x"))

	got, err := s.GetUnsyncedTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, ids(got))

	n, err := s.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	x, err := s.GetTransaction(ctx, "x")
	require.NoError(t, err)
	assert.True(t, x.Synced)
	assert.NotZero(t, x.SyncedAt)
}

func testMarkSyncedIdempotent(t *testing.T, s ports.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveTransaction(ctx, Sale("x", 1)))
	require.NoError(t, s.MarkTransactionSynced(ctx, "x"))

	first, err := s.GetTransaction(ctx, "x")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.MarkTransactionSynced(ctx, "x"))

	second, err := s.GetTransaction(ctx, "x")
	require.NoError(t, err)
	assert.True(t, second.Synced)
	assert.Equal(t, first.SyncedAt, second.SyncedAt)
}

func testMarkSyncedMissing(t *testing.T, s ports.Store) {
	err := s.MarkTransactionSynced(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testProductsReplace(t *testing.T, s ports.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveProducts(ctx, []domain.Product{
		{ID: "p2", Name: "Tea", Price: 2.5},
		{ID: "p1", Name: "Coffee", Price: 3, Barcode: "400123", UOM: "Nos", Attrs: json.RawMessage(`{"hot":true}`)},
	}))

	got, err := s.GetProducts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "400123", got[0].Barcode)
	assert.JSONEq(t, `{"hot":true}`, string(got[0].Attrs))
	assert.Equal(t, "p2", got[1].ID)

	require.NoError(t, s.SaveProducts(ctx, []domain.Product{{ID: "p3", Name: "Juice", Price: 4}}))
	got, err = s.GetProducts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p3", got[0].ID)

	require.NoError(t, s.SaveProducts(ctx, nil))
	got, err = s.GetProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testCartReplace(t *testing.T, s ports.Store) {
	ctx := context.Background()
	first := []domain.CartItem{
		{ProductID: "p1", Name: "Coffee", Qty: 1, Rate: 3},
		{ProductID: "p2", Name: "Tea", Qty: 2, Rate: 2.5},
	}
	second := []domain.CartItem{
		{ProductID: "p9", Name: "Cake", Qty: 1, Rate: 5},
	}
	require.NoError(t, s.SaveCart(ctx, first))
	require.NoError(t, s.SaveCart(ctx, second))

	got, err := s.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p9", got[0].ProductID)
	assert.Equal(t, 5.0, got[0].Rate)
}

func testClearCart(t *testing.T, s ports.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveCart(ctx, []domain.CartItem{
		{ProductID: "p2", Qty: 1},
		{ProductID: "p1", Qty: 1},
	}))

	got, err := s.GetCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", got[0].ProductID, "cart keeps saved order")

	require.NoError(t, s.ClearCart(ctx))
	got, err = s.GetCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// testConcurrentMarkAndList lists pending records while a sync pass marks
// them. Run with -race.
func testConcurrentMarkAndList(t *testing.T, s ports.Store) {
	ctx := context.Background()
	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, s.SaveTransaction(ctx, Sale(fmt.Sprintf("t%03d", i), int64(i))))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			assert.NoError(t, s.MarkTransactionSynced(ctx, fmt.Sprintf("t%03d", i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			got, err := s.GetUnsyncedTransactions(ctx)
			if !assert.NoError(t, err) {
				return
			}
			for j := 1; j < len(got); j++ {
				assert.LessOrEqual(t, got[j-1].Timestamp, got[j].Timestamp)
			}
			_, err = s.CountUnsynced(ctx)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	n2, err := s.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n2)
}
