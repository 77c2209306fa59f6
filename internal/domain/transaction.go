package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// KindSale tags a transaction produced by a completed POS sale.
// It is the only kind queued today.
const KindSale = "sale"

// Transaction is one completed point-of-sale transaction queued locally
// until the tenant service accepts it.
type Transaction struct {
	// ID is client generated and immutable.
	ID string `json:"id"`

	// Timestamp is the creation time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Kind identifies the transaction type (currently always "sale").
	Kind string `json:"kind"`

	// Payload is the sale document sent verbatim to the tenant service.
	Payload json.RawMessage `json:"payload"`

	// Synced is false until the tenant service accepts the payload.
	Synced bool `json:"synced"`

	// SyncedAt is the unix millisecond time of the first successful sync, or 0.
	SyncedAt int64 `json:"synced_at,omitempty"`
}

// NewSale builds an unsynced sale transaction.
func NewSale(id string, at time.Time, payload json.RawMessage) Transaction {
	return Transaction{
		ID:        id,
		Timestamp: at.UnixMilli(),
		Kind:      KindSale,
		Payload:   payload,
	}
}

// CreatedAt returns Timestamp as a time.Time.
func (t Transaction) CreatedAt() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// MarkSynced flips Synced to true. A transaction that is already synced keeps
// its original SyncedAt.
func (t *Transaction) MarkSynced(at time.Time) {
	if t.Synced {
		return
	}
	t.Synced = true
	t.SyncedAt = at.UnixMilli()
}

// ValidatePayload reports whether p is a JSON object.
func ValidatePayload(p json.RawMessage) error {
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return ErrInvalidPayload
	}
	return nil
}
