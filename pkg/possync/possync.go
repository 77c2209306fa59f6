package possync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	httpAdapter "github.com/bft-labs/possync/internal/adapters/http"
	"github.com/bft-labs/possync/internal/adapters/memory"
	"github.com/bft-labs/possync/internal/adapters/netprobe"
	"github.com/bft-labs/possync/internal/adapters/sqlite"
	"github.com/bft-labs/possync/internal/app"
	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
	"github.com/bft-labs/possync/internal/transport/httpapi"
)

// PassResult summarizes one synchronous sync pass.
type PassResult = PassEvent

// Service queues POS transactions locally and syncs them to the tenant
// service when connectivity allows. Use New() to create an instance, Open()
// to use the local store only, or Start() to also run background sync.
type Service struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle
	logger    ports.Logger
	emitter   *eventEmitterWrapper
	creds     *httpAdapter.CredentialStore
	submitter *httpAdapter.Submitter
	monitor   *app.Monitor
	plugins   []Plugin

	mu     sync.RWMutex
	core   *core
	ctx    context.Context
	cancel context.CancelFunc
}

// core holds the components bound to the opened store.
type core struct {
	store     ports.Store
	durable   bool
	publisher *app.Publisher
	engine    *app.Engine
	queue     *app.Queue
}

// New creates a new Service with the given configuration.
// The instance is created in StateStopped with the store closed.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	o := defaultOptions(httpClient)
	for _, opt := range opts {
		opt(&o)
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}
	creds := httpAdapter.NewCredentialStore(ports.Credentials{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	})
	submitter := httpAdapter.NewSubmitter(o.httpClient, creds, httpAdapter.SubmitterConfig{
		ServiceURL: cfg.ServiceURL,
		SubmitPath: cfg.SubmitPath,
	}, o.logger)

	return &Service{
		config:    cfg,
		opts:      o,
		lifecycle: app.NewLifecycle(o.logger, emitter),
		logger:    o.logger,
		emitter:   emitter,
		creds:     creds,
		submitter: submitter,
		monitor:   app.NewMonitor(cfg.AssumeOnline, o.logger),
		plugins:   o.plugins,
	}, nil
}

// Open initializes the local store. If the SQLite database cannot be opened
// the service falls back to a volatile in-memory store and reports
// Durable=false in its status. Open is idempotent.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx)
}

func (s *Service) openLocked(ctx context.Context) error {
	if s.core != nil {
		return nil
	}

	store, durable, err := s.openStore(ctx)
	if err != nil {
		return err
	}

	publisher := app.NewPublisher(store, s.monitor, durable, s.logger)
	publisher.OnChange(s.emitter.onStatus)

	engine := app.NewEngine(app.EngineConfig{
		Interval:      s.config.SyncInterval,
		SubmitTimeout: s.config.SubmitTimeout,
	}, store, s.submitter, s.monitor, s.logger, app.PassEmitters{publisher, s.emitter})

	s.core = &core{
		store:     store,
		durable:   durable,
		publisher: publisher,
		engine:    engine,
		queue:     app.NewQueue(store, s.opts.clock, publisher, s.logger),
	}
	return nil
}

func (s *Service) openStore(ctx context.Context) (ports.Store, bool, error) {
	if s.opts.store != nil {
		if err := s.opts.store.Initialize(ctx); err != nil {
			return nil, false, err
		}
		_, volatile := s.opts.store.(*memory.Store)
		return s.opts.store, !volatile, nil
	}

	store := sqlite.NewStore(s.config.DBPath)
	err := store.Initialize(ctx)
	if err == nil {
		s.logger.Info("local store opened", ports.String("path", store.Path()))
		return store, true, nil
	}
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		return nil, false, err
	}

	s.logger.Error("local store unavailable, queuing in memory; records will not survive a restart",
		ports.String("path", store.Path()),
		ports.Err(err))
	mem := memory.NewStore()
	if err := mem.Initialize(ctx); err != nil {
		return nil, false, err
	}
	return mem, false, nil
}

// Close releases the local store. It fails with ErrAlreadyRunning while the
// service is started. After a crash it first cancels and waits for the
// workers that are still running, so no in-flight write outlives the store.
func (s *Service) Close() error {
	s.mu.Lock()
	if !s.lifecycle.CanStart() {
		s.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	cancel := s.cancel
	s.mu.Unlock()

	// Workers may call back into the service, so wait without holding mu.
	if cancel != nil {
		cancel()
	}
	if err := s.lifecycle.WaitWithTimeout(app.ShutdownTimeout); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if s.core == nil {
		return nil
	}
	err := s.core.store.Close()
	s.core = nil
	return err
}

// Start opens the store if needed and begins background sync.
// Returns immediately after starting the workers.
// The provided context is used for the lifetime of the service.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}

	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	if err := s.openLocked(ctx); err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "store open failed")
		return err
	}
	c := s.core

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel
	s.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		DBPath:          s.config.DBPath,
		ServiceURL:      s.config.ServiceURL,
		CredentialsFile: s.config.CredentialsFile,
		Logger:          s.logger,
		Credentials:     s,
	}
	for _, p := range s.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			cancel()
			_ = s.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		s.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	if s.config.ServiceURL == "" {
		s.logger.Warn("no service_url configured, transactions stay queued locally")
	}

	s.lifecycle.Go("status", func() {
		c.publisher.Watch(runCtx)
	})

	if prober := s.prober(); prober != nil {
		s.lifecycle.Go("prober", func() {
			s.monitor.RunProber(runCtx, prober, s.config.ProbeInterval)
		})
	}

	if s.config.ListenAddr != "" {
		server := httpapi.NewServer(s.config.ListenAddr, httpapi.NewRouter(s, s.logger), s.logger)
		s.lifecycle.Go("bridge", func() {
			if err := server.Run(runCtx); err != nil {
				s.logger.Error("bridge stopped", ports.Err(err))
			}
		})
	}

	s.lifecycle.Go("engine", func() {
		if err := s.lifecycle.TransitionTo(app.StateRunning, "sync engine starting"); err != nil {
			s.logger.Error("failed to transition to running", ports.Err(err))
			return
		}

		err := c.engine.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sync engine error", ports.Err(err))
			_ = s.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		}
	})

	return nil
}

func (s *Service) prober() ports.Prober {
	if s.opts.prober != nil {
		return s.opts.prober
	}
	if s.config.ProbeAddr != "" {
		return netprobe.New(s.config.ProbeAddr, s.config.ProbeTimeout)
	}
	return nil
}

// Stop cancels background sync and waits for the in-flight pass to finish.
// The local store stays open; call Close to release it.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (s *Service) Stop() error {
	s.mu.Lock()

	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}

	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Unlock()

	err := s.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	// Plugins shut down in reverse order.
	shutdownCtx := context.Background()
	for i := len(s.plugins) - 1; i >= 0; i-- {
		p := s.plugins[i]
		if shutdownErr := p.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(shutdownErr))
		} else {
			s.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}

	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}

	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Service) Status() State {
	return convertState(s.lifecycle.State())
}

// SetCredentials replaces the tenant credentials. Submissions already in
// flight keep the credentials they started with.
func (s *Service) SetCredentials(c Credentials) {
	s.creds.Set(c)
	s.logger.Info("credentials updated", ports.Bool("empty", c.Empty()))
}

func (s *Service) opened() (*core, error) {
	s.mu.RLock()
	c := s.core
	s.mu.RUnlock()
	if c == nil {
		return nil, fmt.Errorf("store not open: %w", domain.ErrNotRunning)
	}
	return c, nil
}

// Enqueue stores payload as a new unsynced sale and returns its generated ID.
func (s *Service) Enqueue(ctx context.Context, payload json.RawMessage) (string, error) {
	c, err := s.opened()
	if err != nil {
		return "", err
	}
	return c.queue.Enqueue(ctx, payload)
}

// EnqueueWithID stores payload under a caller-chosen ID. Reusing an ID
// returns ErrDuplicateKey and leaves the first record untouched.
func (s *Service) EnqueueWithID(ctx context.Context, id string, payload json.RawMessage) (string, error) {
	c, err := s.opened()
	if err != nil {
		return "", err
	}
	return c.queue.EnqueueWithID(ctx, id, payload)
}

// Get returns one transaction by ID.
func (s *Service) Get(ctx context.Context, id string) (Transaction, error) {
	c, err := s.opened()
	if err != nil {
		return Transaction{}, err
	}
	return c.queue.Get(ctx, id)
}

// Pending returns unsynced transactions in sync order.
func (s *Service) Pending(ctx context.Context) ([]Transaction, error) {
	c, err := s.opened()
	if err != nil {
		return nil, err
	}
	return c.queue.GetPending(ctx)
}

func (s *Service) Products(ctx context.Context) ([]Product, error) {
	c, err := s.opened()
	if err != nil {
		return nil, err
	}
	return c.queue.Products(ctx)
}

func (s *Service) ReplaceProducts(ctx context.Context, products []Product) error {
	c, err := s.opened()
	if err != nil {
		return err
	}
	return c.queue.ReplaceProducts(ctx, products)
}

func (s *Service) Cart(ctx context.Context) ([]CartItem, error) {
	c, err := s.opened()
	if err != nil {
		return nil, err
	}
	return c.queue.Cart(ctx)
}

func (s *Service) ReplaceCart(ctx context.Context, items []CartItem) error {
	c, err := s.opened()
	if err != nil {
		return err
	}
	return c.queue.ReplaceCart(ctx, items)
}

func (s *Service) ClearCart(ctx context.Context) error {
	c, err := s.opened()
	if err != nil {
		return err
	}
	return c.queue.ClearCart(ctx)
}

// SyncStatus computes the current sync status.
func (s *Service) SyncStatus(ctx context.Context) (Status, error) {
	c, err := s.opened()
	if err != nil {
		return Status{}, err
	}
	return c.publisher.Status(ctx)
}

// SubscribeStatus returns a channel carrying the latest sync status. When
// the store is not open the channel is already closed.
func (s *Service) SubscribeStatus() (<-chan Status, func()) {
	c, err := s.opened()
	if err != nil {
		ch := make(chan Status)
		close(ch)
		return ch, func() {}
	}
	return c.publisher.Subscribe()
}

// Online reports the current connectivity state.
func (s *Service) Online() bool {
	return s.monitor.Online()
}

// SetOnline reports connectivity from the host platform. It returns true if
// the state changed. Going online triggers a sync pass while running.
func (s *Service) SetOnline(online bool) bool {
	changed := s.monitor.Set(online)
	if changed {
		if c, err := s.opened(); err == nil {
			if _, err := c.publisher.Refresh(context.Background()); err != nil {
				s.logger.Warn("failed to refresh sync status", ports.Err(err))
			}
		}
	}
	return changed
}

// SyncNow starts a sync pass in the background. It returns ErrNotRunning
// before Start, ErrOffline while offline and ErrPassInProgress if a pass is
// already running.
func (s *Service) SyncNow() error {
	s.mu.RLock()
	c, ctx := s.core, s.ctx
	s.mu.RUnlock()

	if c == nil || ctx == nil || s.lifecycle.State() != app.StateRunning {
		return domain.ErrNotRunning
	}
	return c.engine.Trigger(ctx)
}

// SyncOnce runs one sync pass and waits for it. It does not require Start.
func (s *Service) SyncOnce(ctx context.Context) (PassResult, error) {
	c, err := s.opened()
	if err != nil {
		return PassResult{}, err
	}
	r, err := c.engine.SyncOnce(ctx)
	return convertPass(r), err
}

// Durable reports whether queued transactions survive a restart. It is
// false after a fallback to the in-memory store.
func (s *Service) Durable() bool {
	c, err := s.opened()
	if err != nil {
		return false
	}
	return c.durable
}

var _ httpapi.Service = (*Service)(nil)
