package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/possync/internal/adapters/memory"
	"github.com/bft-labs/possync/internal/clock"
	"github.com/bft-labs/possync/internal/domain"
)

type countingRefresher struct {
	n int
}

func (c *countingRefresher) Refresh(context.Context) (domain.Status, error) {
	c.n++
	return domain.Status{}, nil
}

func TestQueue_Enqueue(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewManual(time.UnixMilli(1000))
	ref := &countingRefresher{}
	q := NewQueue(store, clk, ref, &mockLogger{})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, json.RawMessage(`{"total":500}`))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("id %q is not a uuid: %v", id, err)
	}

	tx, err := q.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Timestamp != 1000 || tx.Kind != domain.KindSale || tx.Synced {
		t.Errorf("tx = %+v", tx)
	}
	if ref.n != 1 {
		t.Errorf("refreshes = %d, want 1", ref.n)
	}

	pending, err := q.GetPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Errorf("pending = %+v", pending)
	}
}

func TestQueue_EnqueueRejectsInvalidPayload(t *testing.T) {
	q := NewQueue(memory.NewStore(), nil, nil, &mockLogger{})

	for _, p := range []string{``, `null`, `[1,2]`, `"sale"`, `{"total":`} {
		if _, err := q.Enqueue(context.Background(), json.RawMessage(p)); !errors.Is(err, domain.ErrInvalidPayload) {
			t.Errorf("Enqueue(%q) error = %v, want ErrInvalidPayload", p, err)
		}
	}
}

func TestQueue_EnqueueWithID(t *testing.T) {
	q := NewQueue(memory.NewStore(), clock.NewManual(time.UnixMilli(1000)), nil, &mockLogger{})
	ctx := context.Background()
	payload := json.RawMessage(`{"total":500}`)

	id, err := q.EnqueueWithID(ctx, "t1", payload)
	if err != nil || id != "t1" {
		t.Fatalf("EnqueueWithID() = %q, %v", id, err)
	}
	if _, err := q.EnqueueWithID(ctx, "t1", payload); !errors.Is(err, domain.ErrDuplicateKey) {
		t.Errorf("second EnqueueWithID() error = %v, want ErrDuplicateKey", err)
	}
	if _, err := q.EnqueueWithID(ctx, "bad/id", payload); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("EnqueueWithID(bad/id) error = %v, want ErrInvalidPayload", err)
	}
}

func TestQueue_PayloadNotAliased(t *testing.T) {
	q := NewQueue(memory.NewStore(), nil, nil, &mockLogger{})
	payload := json.RawMessage(`{"total":500}`)

	id, err := q.Enqueue(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	payload[1] = 'X'

	tx, _ := q.Get(context.Background(), id)
	if string(tx.Payload) != `{"total":500}` {
		t.Errorf("stored payload = %s", tx.Payload)
	}
}

func TestQueue_Catalog(t *testing.T) {
	q := NewQueue(memory.NewStore(), nil, nil, &mockLogger{})
	ctx := context.Background()

	if err := q.ReplaceProducts(ctx, []domain.Product{{Name: "no id"}}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("ReplaceProducts() error = %v, want ErrInvalidPayload", err)
	}
	if err := q.ReplaceProducts(ctx, []domain.Product{{ID: "p1", Name: "Coffee"}}); err != nil {
		t.Fatal(err)
	}
	products, _ := q.Products(ctx)
	if len(products) != 1 {
		t.Errorf("products = %+v", products)
	}

	if err := q.ReplaceCart(ctx, []domain.CartItem{{Qty: 1}}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Errorf("ReplaceCart() error = %v, want ErrInvalidPayload", err)
	}
	if err := q.ReplaceCart(ctx, []domain.CartItem{{ProductID: "p1", Qty: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := q.ClearCart(ctx); err != nil {
		t.Fatal(err)
	}
	cart, _ := q.Cart(ctx)
	if len(cart) != 0 {
		t.Errorf("cart = %+v after clear", cart)
	}
}
