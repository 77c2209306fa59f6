package possync_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/possync/internal/adapters/memory"
	"github.com/bft-labs/possync/pkg/possync"
)

// =============================================================================
// Test Utilities
// =============================================================================

// tenantServer records submissions and answers with a fixed status code.
type tenantServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	received []submission
}

type submission struct {
	path          string
	authorization string
	idempotency   string
	body          string
}

func newTenantServer(t *testing.T, status int) *tenantServer {
	t.Helper()
	ts := &tenantServer{status: status}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts.mu.Lock()
		ts.received = append(ts.received, submission{
			path:          r.URL.Path,
			authorization: r.Header.Get("Authorization"),
			idempotency:   r.Header.Get("Idempotency-Key"),
			body:          string(body),
		})
		code := ts.status
		ts.mu.Unlock()
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tenantServer) Received() []submission {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	cp := make([]submission, len(ts.received))
	copy(cp, ts.received)
	return cp
}

// trackingPlugin records initialization and shutdown order.
type trackingPlugin struct {
	name      string
	mu        *sync.Mutex
	order     *[]string
	initError error
	creds     *possync.Credentials
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(ctx context.Context, cfg possync.PluginConfig) error {
	if p.initError != nil {
		return p.initError
	}
	if p.creds != nil {
		cfg.Credentials.SetCredentials(*p.creds)
	}
	p.mu.Lock()
	*p.order = append(*p.order, "init:"+p.name)
	p.mu.Unlock()
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	*p.order = append(*p.order, "shutdown:"+p.name)
	p.mu.Unlock()
	return nil
}

// eventTracker collects pass and state events.
type eventTracker struct {
	possync.BaseEventHandler

	mu     sync.Mutex
	states []possync.StateChangeEvent
	passes []possync.PassEvent
	errs   []possync.SubmitErrorEvent
}

func (e *eventTracker) OnStateChange(event possync.StateChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, event)
}

func (e *eventTracker) OnPassEnd(event possync.PassEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passes = append(e.passes, event)
}

func (e *eventTracker) OnSubmitError(event possync.SubmitErrorEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, event)
}

func (e *eventTracker) Passes() []possync.PassEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]possync.PassEvent(nil), e.passes...)
}

func (e *eventTracker) Errors() []possync.SubmitErrorEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]possync.SubmitErrorEvent(nil), e.errs...)
}

func testConfig(t *testing.T, serviceURL string) possync.Config {
	t.Helper()
	cfg := possync.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "pos.db")
	cfg.ServiceURL = serviceURL
	cfg.APIKey = "key"
	cfg.APISecret = "secret"
	cfg.SyncInterval = time.Second
	cfg.ListenAddr = ""
	return cfg
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// =============================================================================
// Tests
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*possync.Config)
		wantErr bool
	}{
		{"defaults", func(c *possync.Config) {}, false},
		{"service url", func(c *possync.Config) { c.ServiceURL = "https://tenant.example.com" }, false},
		{"relative url", func(c *possync.Config) { c.ServiceURL = "tenant.example.com" }, true},
		{"bad scheme", func(c *possync.Config) { c.ServiceURL = "ftp://tenant.example.com" }, true},
		{"key without secret", func(c *possync.Config) { c.APIKey = "k" }, true},
		{"interval too short", func(c *possync.Config) { c.SyncInterval = 10 * time.Millisecond }, true},
		{"zero submit timeout", func(c *possync.Config) { c.SubmitTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := possync.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, possync.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := possync.DefaultConfig()
	cfg.ServiceURL = "::not a url"
	if _, err := possync.New(cfg); !errors.Is(err, possync.ErrInvalidConfig) {
		t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestService_NotOpen(t *testing.T) {
	svc, err := possync.New(testConfig(t, ""))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := svc.Enqueue(context.Background(), json.RawMessage(`{}`)); !errors.Is(err, possync.ErrNotRunning) {
		t.Errorf("Enqueue() before Open error = %v, want ErrNotRunning", err)
	}
	ch, cancel := svc.SubscribeStatus()
	defer cancel()
	if _, ok := <-ch; ok {
		t.Error("SubscribeStatus() before Open should return a closed channel")
	}
	if err := svc.SyncNow(); !errors.Is(err, possync.ErrNotRunning) {
		t.Errorf("SyncNow() error = %v, want ErrNotRunning", err)
	}
}

func TestService_DegradedFallback(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, "")
	cfg.DBPath = filepath.Join(blocker, "pos.db")
	cfg.AssumeOnline = false

	svc, err := possync.New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("Open() should fall back to memory, got %v", err)
	}
	defer svc.Close()

	if svc.Durable() {
		t.Error("Durable() = true after fallback")
	}
	if _, err := svc.EnqueueWithID(ctx, "t1", json.RawMessage(`{"total":500}`)); err != nil {
		t.Fatalf("Enqueue() in degraded mode failed: %v", err)
	}
	st, err := svc.SyncStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Durable || st.Pending != 1 || st.State != possync.SyncOffline {
		t.Errorf("SyncStatus() = %+v, want offline, pending 1, not durable", st)
	}
}

func TestService_SyncOnce(t *testing.T) {
	tenant := newTenantServer(t, http.StatusOK)
	svc, err := possync.New(testConfig(t, tenant.URL))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()
	if err := svc.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	if _, err := svc.EnqueueWithID(ctx, "t1", json.RawMessage(`{"total":500}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnqueueWithID(ctx, "t2", json.RawMessage(`{"total":700}`)); err != nil {
		t.Fatal(err)
	}

	res, err := svc.SyncOnce(ctx)
	if err != nil {
		t.Fatalf("SyncOnce() failed: %v", err)
	}
	if res.Attempted != 2 || res.Synced != 2 || res.Failed != 0 {
		t.Errorf("SyncOnce() = %+v, want 2 attempted and synced", res)
	}

	got := tenant.Received()
	if len(got) != 2 {
		t.Fatalf("tenant received %d submissions, want 2", len(got))
	}
	if got[0].idempotency != "t1" || got[1].idempotency != "t2" {
		t.Errorf("submission order = %q, %q; want t1, t2", got[0].idempotency, got[1].idempotency)
	}
	if got[0].path != "/api/resource/Sales Invoice" {
		t.Errorf("path = %q", got[0].path)
	}
	if got[0].authorization != "token key:secret" {
		t.Errorf("Authorization = %q", got[0].authorization)
	}
	if got[0].body != `{"total":500}` {
		t.Errorf("body = %q", got[0].body)
	}

	pending, err := svc.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("Pending() = %d records after sync, want 0", len(pending))
	}
	tx, err := svc.Get(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !tx.Synced {
		t.Error("t1 not marked synced")
	}
}

func TestService_SyncOnceOffline(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.AssumeOnline = false
	svc, err := possync.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := svc.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	if _, err := svc.SyncOnce(ctx); !errors.Is(err, possync.ErrOffline) {
		t.Errorf("SyncOnce() offline error = %v, want ErrOffline", err)
	}
}

func TestService_StartSyncsOnReconnect(t *testing.T) {
	tenant := newTenantServer(t, http.StatusOK)
	cfg := testConfig(t, tenant.URL)
	cfg.AssumeOnline = false
	events := &eventTracker{}

	svc, err := possync.New(cfg, possync.WithEventHandler(events))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer svc.Close()

	eventually(t, func() bool { return svc.Status() == possync.StateRunning }, "service never reached Running")

	if _, err := svc.EnqueueWithID(ctx, "t1", json.RawMessage(`{"total":500}`)); err != nil {
		t.Fatal(err)
	}
	if err := svc.SyncNow(); !errors.Is(err, possync.ErrOffline) {
		t.Errorf("SyncNow() offline error = %v, want ErrOffline", err)
	}
	if len(tenant.Received()) != 0 {
		t.Fatal("submitted while offline")
	}

	if !svc.SetOnline(true) {
		t.Fatal("SetOnline(true) reported no change")
	}
	eventually(t, func() bool {
		pending, err := svc.Pending(ctx)
		return err == nil && len(pending) == 0
	}, "queue not drained after reconnect")

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if svc.Status() != possync.StateStopped {
		t.Errorf("Status() = %v after Stop, want Stopped", svc.Status())
	}

	var synced int
	for _, p := range events.Passes() {
		synced += p.Synced
	}
	if synced != 1 {
		t.Errorf("passes reported %d synced, want 1", synced)
	}
}

func TestService_RejectedStaysQueued(t *testing.T) {
	tenant := newTenantServer(t, http.StatusUnprocessableEntity)
	events := &eventTracker{}
	svc, err := possync.New(testConfig(t, tenant.URL), possync.WithEventHandler(events))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := svc.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	if _, err := svc.EnqueueWithID(ctx, "t1", json.RawMessage(`{"total":500}`)); err != nil {
		t.Fatal(err)
	}
	res, err := svc.SyncOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Synced != 0 {
		t.Errorf("SyncOnce() = %+v, want 1 failed", res)
	}

	errs := events.Errors()
	if len(errs) != 1 || errs[0].ID != "t1" || !errs[0].Permanent {
		t.Errorf("submit errors = %+v, want one permanent error for t1", errs)
	}
	if !errors.Is(errs[0].Error, possync.ErrSubmissionFailed) {
		t.Errorf("submit error = %v, want ErrSubmissionFailed", errs[0].Error)
	}

	st, err := svc.SyncStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != possync.SyncPending || st.Pending != 1 {
		t.Errorf("SyncStatus() = %+v, want pending with 1 record", st)
	}
}

func TestService_StatusSubscription(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.AssumeOnline = false
	svc, err := possync.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := svc.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	ch, cancel := svc.SubscribeStatus()
	defer cancel()

	if _, err := svc.EnqueueWithID(ctx, "t1", json.RawMessage(`{"total":1}`)); err != nil {
		t.Fatal(err)
	}
	svc.SetOnline(true)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.Online && st.State == possync.SyncPending {
				return
			}
		case <-deadline:
			t.Fatal("no pending status after going online")
		}
	}
}

func TestPlugin_Order(t *testing.T) {
	tenant := newTenantServer(t, http.StatusOK)
	cfg := testConfig(t, tenant.URL)
	cfg.APIKey, cfg.APISecret = "", ""

	var mu sync.Mutex
	var order []string
	rotated := possync.Credentials{APIKey: "k2", APISecret: "s2"}

	svc, err := possync.New(cfg,
		possync.WithPlugin(&trackingPlugin{name: "a", mu: &mu, order: &order}),
		possync.WithPlugin(&trackingPlugin{name: "b", mu: &mu, order: &order, creds: &rotated}),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer svc.Close()

	if _, err := svc.EnqueueWithID(ctx, "t1", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return len(tenant.Received()) > 0 }, "nothing submitted")

	if got := tenant.Received()[0].authorization; got != "token k2:s2" {
		t.Errorf("Authorization = %q, want rotated credentials", got)
	}

	if err := svc.Stop(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"init:a", "init:b", "shutdown:b", "shutdown:a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPlugin_InitFailurePreventsStart(t *testing.T) {
	var mu sync.Mutex
	var order []string
	svc, err := possync.New(testConfig(t, ""),
		possync.WithPlugin(&trackingPlugin{name: "bad", mu: &mu, order: &order, initError: errors.New("boom")}),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when a plugin fails to initialize")
	}
	if svc.Status() != possync.StateCrashed {
		t.Errorf("Status() = %v, want Crashed", svc.Status())
	}
}

func TestService_StartTwice(t *testing.T) {
	svc, err := possync.New(testConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	if err := svc.Start(ctx); !errors.Is(err, possync.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := svc.Close(); !errors.Is(err, possync.ErrAlreadyRunning) {
		t.Errorf("Close() while running error = %v, want ErrAlreadyRunning", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(); !errors.Is(err, possync.ErrNotRunning) {
		t.Errorf("second Stop() error = %v, want ErrNotRunning", err)
	}
}

// slowMarkStore holds MarkTransactionSynced until release is closed.
type slowMarkStore struct {
	*memory.Store
	marking chan struct{}
	release chan struct{}

	mu            sync.Mutex
	markDone      bool
	closedMidMark bool
}

func (s *slowMarkStore) MarkTransactionSynced(ctx context.Context, id string) error {
	close(s.marking)
	<-s.release
	err := s.Store.MarkTransactionSynced(context.Background(), id)
	s.mu.Lock()
	s.markDone = true
	s.mu.Unlock()
	return err
}

func (s *slowMarkStore) Close() error {
	s.mu.Lock()
	s.closedMidMark = !s.markDone
	s.mu.Unlock()
	return s.Store.Close()
}

// panicProber crashes the service once crash is closed.
type panicProber struct{ crash chan struct{} }

func (p panicProber) Probe(ctx context.Context) error {
	<-p.crash
	panic("prober failure")
}

func TestService_CloseAfterCrashWaitsForWorkers(t *testing.T) {
	tenant := newTenantServer(t, http.StatusOK)
	store := &slowMarkStore{
		Store:   memory.NewStore(),
		marking: make(chan struct{}),
		release: make(chan struct{}),
	}
	prober := panicProber{crash: make(chan struct{})}

	svc, err := possync.New(testConfig(t, tenant.URL),
		possync.WithStore(store), possync.WithProber(prober))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := svc.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnqueueWithID(ctx, "t1", json.RawMessage(`{"total":500}`)); err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case <-store.marking:
	case <-time.After(5 * time.Second):
		t.Fatal("engine never reached MarkTransactionSynced")
	}
	close(prober.crash)
	eventually(t, func() bool { return svc.Status() == possync.StateCrashed }, "service did not crash")

	closed := make(chan error, 1)
	go func() { closed <- svc.Close() }()

	select {
	case err := <-closed:
		t.Fatalf("Close() returned %v while a mark was in flight", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(store.release)
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return after the mark finished")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closedMidMark {
		t.Error("store closed before the in-flight mark finished")
	}
}
