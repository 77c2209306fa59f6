package app

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
)

// Monitor holds the current connectivity state and fans out transitions.
//
// Reports come from the UI (mirroring the browser's online flag) and from an
// optional link prober. Only transitions produce events.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[uint64]chan domain.ConnectivityEvent
	nextID uint64
	now    func() time.Time
	logger ports.Logger
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(initial bool, logger ports.Logger) *Monitor {
	return &Monitor{
		online: initial,
		subs:   make(map[uint64]chan domain.ConnectivityEvent),
		now:    time.Now,
		logger: logger,
	}
}

// Online returns the last reported state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a connectivity report. It returns true when the report changed
// the state, in which case exactly one event is sent to each subscriber.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	ev := domain.ConnectivityEvent{Online: online, At: m.now()}

	// Sends happen under the lock so cancel never closes a channel mid-send
	// and concurrent transitions reach subscribers in order.
	dropped := 0
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", ports.Bool("online", online))
	if dropped > 0 {
		m.logger.Warn("connectivity event dropped for slow subscribers",
			ports.Int("subscribers", dropped),
			ports.Bool("online", online),
		)
	}
	return true
}

// Subscribe registers for transition events. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (m *Monitor) Subscribe(buffer int) (<-chan domain.ConnectivityEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.ConnectivityEvent, buffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
	return ch, cancel
}

// RunProber reports the prober's verdict every interval until ctx is done.
// The first probe runs immediately.
func (m *Monitor) RunProber(ctx context.Context, prober ports.Prober, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := prober.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		if m.Set(err == nil) && err != nil {
			m.logger.Debug("probe failed", ports.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
