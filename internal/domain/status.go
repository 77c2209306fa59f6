package domain

import (
	"fmt"
	"time"
)

// SyncState is the UI-facing state derived from connectivity and queue depth.
type SyncState int

const (
	// StateOnlineClean means online with nothing left to sync.
	StateOnlineClean SyncState = iota
	// StateOffline means connectivity is lost.
	StateOffline
	// StateSyncing means a sync pass is running.
	StateSyncing
	// StatePendingSync means online, unsynced records exist, and no pass is running.
	StatePendingSync
)

// String returns a human-readable representation of the state.
func (s SyncState) String() string {
	switch s {
	case StateOnlineClean:
		return "online"
	case StateOffline:
		return "offline"
	case StateSyncing:
		return "syncing"
	case StatePendingSync:
		return "pending"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *SyncState) UnmarshalText(b []byte) error {
	for _, st := range []SyncState{StateOnlineClean, StateOffline, StateSyncing, StatePendingSync} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown sync state %q", b)
}

// Status is a snapshot of sync status. It is always derived, never stored.
type Status struct {
	Online      bool      `json:"online"`
	HasUnsynced bool      `json:"has_unsynced"`
	IsSyncing   bool      `json:"is_syncing"`
	Pending     int       `json:"pending"`
	Durable     bool      `json:"durable"`
	State       SyncState `json:"state"`
}

// DeriveState applies the display precedence Offline > Syncing > PendingSync > OnlineClean.
func DeriveState(online, syncing, hasUnsynced bool) SyncState {
	switch {
	case !online:
		return StateOffline
	case syncing:
		return StateSyncing
	case hasUnsynced:
		return StatePendingSync
	default:
		return StateOnlineClean
	}
}

// ConnectivityEvent reports one online/offline transition.
type ConnectivityEvent struct {
	Online bool
	At     time.Time
}

// NewStatus assembles a Status and derives its State.
func NewStatus(online, syncing bool, pending int, durable bool) Status {
	return Status{
		Online:      online,
		HasUnsynced: pending > 0,
		IsSyncing:   syncing,
		Pending:     pending,
		Durable:     durable,
		State:       DeriveState(online, syncing, pending > 0),
	}
}
