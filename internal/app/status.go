package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
)

// refreshTimeout bounds recomputations triggered from pass events.
const refreshTimeout = 5 * time.Second

// Publisher derives sync status from connectivity, pass activity and queue
// depth, and notifies subscribers when it changes.
//
// It implements PassEventEmitter; wire it into the engine so Syncing follows
// pass start and end.
type Publisher struct {
	store   ports.TransactionStore
	monitor *Monitor
	durable bool
	logger  ports.Logger

	// passes counts passes between OnPassStart and OnPassEnd. A new pass can
	// start before the previous one has reported its end.
	passes atomic.Int32

	// refreshMu orders compute-and-publish so a stale snapshot never
	// overwrites a newer one.
	refreshMu sync.Mutex

	mu       sync.Mutex
	last     domain.Status
	hasLast  bool
	subs     map[uint64]chan domain.Status
	nextID   uint64
	onChange func(domain.Status)
}

// NewPublisher creates a status publisher. durable is reported verbatim in
// every snapshot.
func NewPublisher(store ports.TransactionStore, monitor *Monitor, durable bool, logger ports.Logger) *Publisher {
	return &Publisher{
		store:   store,
		monitor: monitor,
		durable: durable,
		logger:  logger,
		subs:    make(map[uint64]chan domain.Status),
	}
}

// OnChange registers fn to be called after each published change.
// It must be set before the publisher is in use.
func (p *Publisher) OnChange(fn func(domain.Status)) {
	p.onChange = fn
}

// Status computes the current snapshot without publishing it.
func (p *Publisher) Status(ctx context.Context) (domain.Status, error) {
	n, err := p.store.CountUnsynced(ctx)
	if err != nil {
		return domain.Status{}, err
	}
	return domain.NewStatus(p.monitor.Online(), p.passes.Load() > 0, n, p.durable), nil
}

// Refresh recomputes the status and notifies subscribers if it differs from
// the last published snapshot.
func (p *Publisher) Refresh(ctx context.Context) (domain.Status, error) {
	p.refreshMu.Lock()
	st, err := p.Status(ctx)
	if err != nil {
		p.refreshMu.Unlock()
		return domain.Status{}, err
	}

	p.mu.Lock()
	if p.hasLast && p.last == st {
		p.mu.Unlock()
		p.refreshMu.Unlock()
		return st, nil
	}
	p.last = st
	p.hasLast = true
	for _, ch := range p.subs {
		offerLatest(ch, st)
	}
	fn := p.onChange
	p.mu.Unlock()
	p.refreshMu.Unlock()

	if fn != nil {
		fn(st)
	}
	return st, nil
}

// Subscribe returns a channel that always holds the most recent unread
// status. A subscriber that falls behind skips intermediate snapshots.
// The cancel func closes the channel and is safe to call more than once.
func (p *Publisher) Subscribe() (<-chan domain.Status, func()) {
	ch := make(chan domain.Status, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	if p.hasLast {
		ch <- p.last
	}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}

// Watch refreshes on every connectivity transition until ctx is done.
func (p *Publisher) Watch(ctx context.Context) {
	events, unsubscribe := p.monitor.Subscribe(4)
	defer unsubscribe()

	p.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			p.refreshLogged(ctx)
		}
	}
}

// OnPassStart marks a pass as running.
func (p *Publisher) OnPassStart() {
	p.passes.Add(1)
	p.refreshDetached()
}

// OnPassEnd marks the pass finished.
func (p *Publisher) OnPassEnd(PassResult) {
	p.passes.Add(-1)
	p.refreshDetached()
}

// OnSubmitSuccess refreshes the pending count.
func (p *Publisher) OnSubmitSuccess(string, time.Duration) {
	p.refreshDetached()
}

// OnSubmitError is a no-op; a failed record leaves the status unchanged.
func (p *Publisher) OnSubmitError(string, error, bool) {}

func (p *Publisher) refreshDetached() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	p.refreshLogged(ctx)
}

func (p *Publisher) refreshLogged(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("failed to refresh sync status", ports.Err(err))
	}
}

// offerLatest replaces any unread value in ch with st. ch has capacity 1 and
// only the publisher sends on it, under p.mu.
func offerLatest(ch chan domain.Status, st domain.Status) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- st
}

var _ PassEventEmitter = (*Publisher)(nil)
