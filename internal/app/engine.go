package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
)

// DefaultSyncInterval is the periodic pass cadence.
const DefaultSyncInterval = 30 * time.Second

// DefaultSubmitTimeout bounds one submission.
const DefaultSubmitTimeout = 15 * time.Second

// EngineConfig contains configuration for the sync engine.
type EngineConfig struct {
	Interval      time.Duration
	SubmitTimeout time.Duration
}

// PassResult summarizes one sync pass.
type PassResult struct {
	Attempted int
	Synced    int
	Failed    int
	Duration  time.Duration
}

// PassEventEmitter observes sync passes.
type PassEventEmitter interface {
	OnPassStart()
	OnPassEnd(result PassResult)
	OnSubmitSuccess(id string, duration time.Duration)
	OnSubmitError(id string, err error, permanent bool)
}

// PassEmitters fans pass events out to several emitters.
type PassEmitters []PassEventEmitter

func (es PassEmitters) OnPassStart() {
	for _, e := range es {
		e.OnPassStart()
	}
}

func (es PassEmitters) OnPassEnd(result PassResult) {
	for _, e := range es {
		e.OnPassEnd(result)
	}
}

func (es PassEmitters) OnSubmitSuccess(id string, duration time.Duration) {
	for _, e := range es {
		e.OnSubmitSuccess(id, duration)
	}
}

func (es PassEmitters) OnSubmitError(id string, err error, permanent bool) {
	for _, e := range es {
		e.OnSubmitError(id, err, permanent)
	}
}

// Engine drains unsynced transactions to the tenant service.
// At most one pass runs at a time.
type Engine struct {
	config    EngineConfig
	store     ports.TransactionStore
	submitter ports.Submitter
	monitor   *Monitor
	logger    ports.Logger
	emitter   PassEventEmitter

	running atomic.Bool
	passes  sync.WaitGroup
}

// NewEngine creates a new sync engine with the given dependencies.
func NewEngine(
	config EngineConfig,
	store ports.TransactionStore,
	submitter ports.Submitter,
	monitor *Monitor,
	logger ports.Logger,
	emitter PassEventEmitter,
) *Engine {
	if config.Interval <= 0 {
		config.Interval = DefaultSyncInterval
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = DefaultSubmitTimeout
	}
	return &Engine{
		config:    config,
		store:     store,
		submitter: submitter,
		monitor:   monitor,
		logger:    logger,
		emitter:   emitter,
	}
}

// Syncing reports whether a pass is in flight.
func (e *Engine) Syncing() bool {
	return e.running.Load()
}

// Run triggers passes on startup, on every tick and on each online
// transition. It returns when ctx is canceled, after the in-flight pass ends.
func (e *Engine) Run(ctx context.Context) error {
	events, unsubscribe := e.monitor.Subscribe(4)
	defer unsubscribe()
	defer e.passes.Wait()

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	_ = e.Trigger(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = e.Trigger(ctx)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Online {
				_ = e.Trigger(ctx)
			}
		}
	}
}

// Trigger starts a pass in the background. It returns domain.ErrOffline or
// domain.ErrPassInProgress when no pass was started; the trigger is dropped.
func (e *Engine) Trigger(ctx context.Context) error {
	if !e.monitor.Online() {
		return domain.ErrOffline
	}
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Debug("sync pass already running, trigger coalesced")
		return domain.ErrPassInProgress
	}

	e.passes.Add(1)
	go func() {
		defer e.passes.Done()
		_, _ = e.runPass(ctx)
	}()
	return nil
}

// SyncOnce runs one pass synchronously.
func (e *Engine) SyncOnce(ctx context.Context) (PassResult, error) {
	if !e.monitor.Online() {
		return PassResult{}, domain.ErrOffline
	}
	if !e.running.CompareAndSwap(false, true) {
		return PassResult{}, domain.ErrPassInProgress
	}
	return e.runPass(ctx)
}

// Wait blocks until background passes started by Trigger have finished.
func (e *Engine) Wait() {
	e.passes.Wait()
}

// runPass must be called with running set; it clears it before OnPassEnd so
// observers see the engine idle when the pass is reported finished.
func (e *Engine) runPass(ctx context.Context) (PassResult, error) {
	if e.emitter != nil {
		e.emitter.OnPassStart()
	}

	result, err := e.pass(ctx)
	e.running.Store(false)

	if e.emitter != nil {
		e.emitter.OnPassEnd(result)
	}
	return result, err
}

func (e *Engine) pass(ctx context.Context) (PassResult, error) {
	start := time.Now()
	var result PassResult

	pending, err := e.store.GetUnsyncedTransactions(ctx)
	if err != nil {
		e.logger.Error("failed to load unsynced transactions", ports.Err(err))
		result.Duration = time.Since(start)
		return result, err
	}
	if len(pending) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	for _, tx := range pending {
		if ctx.Err() != nil {
			break
		}
		result.Attempted++
		if e.submit(ctx, tx) {
			result.Synced++
		} else {
			result.Failed++
		}
	}

	result.Duration = time.Since(start)
	e.logger.Info("sync pass finished",
		ports.Int("attempted", result.Attempted),
		ports.Int("synced", result.Synced),
		ports.Int("failed", result.Failed),
		ports.Duration("duration", result.Duration),
	)
	return result, ctx.Err()
}

// submit sends one record and marks it synced. It reports whether the record
// ended up marked.
func (e *Engine) submit(ctx context.Context, tx domain.Transaction) bool {
	sctx, cancel := context.WithTimeout(ctx, e.config.SubmitTimeout)
	start := time.Now()
	err := e.submitter.Submit(sctx, tx)
	duration := time.Since(start)
	cancel()

	if err != nil {
		permanent := isPermanent(err)
		if permanent {
			// Still retried next pass; nothing marks a record as rejected.
			e.logger.Warn("transaction rejected by tenant service",
				ports.String("id", tx.ID),
				ports.Err(err),
			)
		} else {
			e.logger.Error("submit failed",
				ports.String("id", tx.ID),
				ports.Err(err),
				ports.Duration("duration", duration),
			)
		}
		if e.emitter != nil {
			e.emitter.OnSubmitError(tx.ID, err, permanent)
		}
		return false
	}

	if err := e.store.MarkTransactionSynced(ctx, tx.ID); err != nil {
		// The remote accepted it; the next pass resubmits with the same
		// idempotency key.
		e.logger.Error("failed to mark transaction synced",
			ports.String("id", tx.ID),
			ports.Err(err),
		)
		if e.emitter != nil {
			e.emitter.OnSubmitError(tx.ID, err, false)
		}
		return false
	}

	e.logger.Debug("transaction synced",
		ports.String("id", tx.ID),
		ports.Duration("duration", duration),
	)
	if e.emitter != nil {
		e.emitter.OnSubmitSuccess(tx.ID, duration)
	}
	return true
}

func isPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}
