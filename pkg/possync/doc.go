// Package possync provides an embeddable offline transaction queue for POS
// terminals.
//
// Sales are written to a local SQLite store first and synced to the tenant
// service in the background whenever the terminal is online. The package can
// be used through the possync CLI or embedded as a library.
//
// # Basic Usage
//
//	cfg := possync.DefaultConfig()
//	cfg.ServiceURL = "https://tenant.example.com"
//	cfg.APIKey, cfg.APISecret = "key", "secret"
//
//	svc, err := possync.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	id, err := svc.Enqueue(ctx, json.RawMessage(`{"total":500}`))
//
//	// ... run until shutdown signal ...
//
//	if err := svc.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Sync Status
//
// [Service.SubscribeStatus] delivers the latest [Status] snapshot. A slow
// reader skips intermediate snapshots but never misses the newest one. The
// derived [SyncState] follows the precedence offline, syncing, pending,
// online-clean.
//
// # Connectivity
//
// The host reports connectivity with [Service.SetOnline]. When
// Config.ProbeAddr is set, a TCP prober reports it as well. Every transition
// to online triggers a sync pass.
//
// # Degraded Mode
//
// When the database cannot be opened the service keeps working on a volatile
// in-memory queue and reports Durable=false. Transactions queued in this mode
// are lost on restart.
//
// # Plugins
//
//	import "github.com/bft-labs/possync/plugins/credwatcher"
//
//	svc, err := possync.New(cfg,
//	    credwatcher.WithCredentialsWatcher(credwatcher.DefaultConfig()),
//	)
package possync
