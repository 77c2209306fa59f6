package credwatcher

import "github.com/bft-labs/possync/pkg/possync"

// WithCredentialsWatcher returns a possync Option that reloads credentials
// from Config.Path, or from the service's CredentialsFile when Path is empty.
//
// Usage:
//
//	svc, err := possync.New(cfg,
//	    credwatcher.WithCredentialsWatcher(credwatcher.Config{
//	        DebounceDelay: 200 * time.Millisecond,
//	    }),
//	)
func WithCredentialsWatcher(cfg Config) possync.Option {
	return possync.WithPlugin(New(cfg))
}

// WithDefaultCredentialsWatcher enables the watcher with default settings.
func WithDefaultCredentialsWatcher() possync.Option {
	return WithCredentialsWatcher(DefaultConfig())
}
