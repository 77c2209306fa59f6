// Package possync runs the offline POS transaction queue as a blocking call.
//
// Example usage:
//
//	cfg := possync.DefaultConfig()
//	cfg.ServiceURL = "https://tenant.example.com"
//	cfg.APIKey, cfg.APISecret = "key", "secret"
//	if err := possync.Run(ctx, cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Embedders that need the queue API while syncing should use pkg/possync.
package possync

import (
	"context"

	"github.com/bft-labs/possync/pkg/possync"
)

// Config holds the configuration for the sync service.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = possync.Config

// Option configures optional behavior of the sync service.
type Option = possync.Option

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return possync.DefaultConfig()
}

// Run starts the sync service and blocks until ctx is canceled, then stops
// it and releases the store.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	svc, err := possync.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = svc.Close()
		return err
	}

	<-ctx.Done()

	stopErr := svc.Stop()
	if err := svc.Close(); err != nil && stopErr == nil {
		return err
	}
	return stopErr
}
