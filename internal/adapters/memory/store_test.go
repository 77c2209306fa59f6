package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
	"github.com/bft-labs/possync/internal/ports/storetest"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.Store {
		return NewStore()
	})
}

func TestStore_CanceledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.SaveTransaction(ctx, storetest.Sale("a", 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("SaveTransaction() error = %v, want context.Canceled", err)
	}
	if _, err := s.GetUnsyncedTransactions(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("GetUnsyncedTransactions() error = %v, want context.Canceled", err)
	}
}

func TestStore_PayloadIsCopied(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tx := storetest.Sale("a", 1)
	if err := s.SaveTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}
	tx.Payload[0] = 'X'

	got, err := s.GetTransaction(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload[0] != '{' {
		t.Errorf("stored payload was mutated through caller slice: %s", got.Payload)
	}
}

// Unsynced always equals saved minus marked, in timestamp order.
func TestStore_UnsyncedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore()
		ctx := context.Background()

		n := rapid.IntRange(0, 30).Draw(t, "n")
		marked := make(map[string]bool)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("tx-%d", i)
			ts := rapid.Int64Range(0, 5).Draw(t, "ts")
			if err := s.SaveTransaction(ctx, storetest.Sale(id, ts)); err != nil {
				t.Fatal(err)
			}
			if rapid.Bool().Draw(t, "mark") {
				if err := s.MarkTransactionSynced(ctx, id); err != nil {
					t.Fatal(err)
				}
				marked[id] = true
			}
		}

		got, err := s.GetUnsyncedTransactions(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != n-len(marked) {
			t.Fatalf("unsynced = %d, want %d", len(got), n-len(marked))
		}
		for i, tx := range got {
			if marked[tx.ID] || tx.Synced {
				t.Fatalf("synced record %s returned as unsynced", tx.ID)
			}
			if i > 0 && got[i-1].Timestamp > tx.Timestamp {
				t.Fatalf("order violated at %d: %d > %d", i, got[i-1].Timestamp, tx.Timestamp)
			}
		}

		count, err := s.CountUnsynced(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if count != len(got) {
			t.Fatalf("CountUnsynced() = %d, want %d", count, len(got))
		}
	})
}

// The last SaveCart wins regardless of how many preceded it.
func TestStore_CartReplaceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore()
		ctx := context.Background()

		genCart := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) domain.CartItem {
			return domain.CartItem{
				ProductID: rapid.StringMatching(`p[0-9]{1,3}`).Draw(t, "pid"),
				Qty:       float64(rapid.IntRange(1, 10).Draw(t, "qty")),
			}
		}), 0, 8)

		var last []domain.CartItem
		for i, k := 0, rapid.IntRange(1, 5).Draw(t, "saves"); i < k; i++ {
			last = genCart.Draw(t, "cart")
			if err := s.SaveCart(ctx, last); err != nil {
				t.Fatal(err)
			}
		}

		got, err := s.GetCart(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(last) {
			t.Fatalf("cart len = %d, want %d", len(got), len(last))
		}
		for i := range last {
			if got[i].ProductID != last[i].ProductID || got[i].Qty != last[i].Qty {
				t.Fatalf("cart[%d] = %+v, want %+v", i, got[i], last[i])
			}
		}
	})
}
