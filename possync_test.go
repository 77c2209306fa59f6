package possync

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "pos.db")
	cfg.ListenAddr = ""
	cfg.AssumeOnline = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceURL = "not a url"
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("Run() should reject an invalid config")
	}
}
