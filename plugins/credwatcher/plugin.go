// Package credwatcher reloads tenant API credentials from a TOML file when it
// changes, so a terminal can rotate keys without a restart.
//
// The file holds two keys:
//
//	api_key = "..."
//	api_secret = "..."
package credwatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/possync/pkg/log"
	"github.com/bft-labs/possync/pkg/possync"
)

// Plugin watches a credentials file and pushes every valid version to the
// service. An invalid or unreadable file keeps the previous credentials.
type Plugin struct {
	mu sync.Mutex

	debounceDelay time.Duration
	path          string

	logger   possync.Logger
	target   possync.CredentialSetter
	current  possync.Credentials
	loaded   bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the credentials watcher.
type Config struct {
	// Path overrides the service's CredentialsFile.
	Path string

	// DebounceDelay is the delay after the last file event before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new credentials watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		debounceDelay: cfg.DebounceDelay,
		path:          cfg.Path,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "credwatcher"
}

// Initialize loads the file once and starts watching it.
func (p *Plugin) Initialize(ctx context.Context, cfg possync.PluginConfig) error {
	p.mu.Lock()
	if p.path == "" {
		p.path = cfg.CredentialsFile
	}
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	p.target = cfg.Credentials
	p.mu.Unlock()

	if p.path == "" || p.target == nil {
		p.logger.Warn("credentials watcher disabled: no credentials file configured")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched so editors that replace the file by rename
	// are still seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	p.reload()

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("credentials watcher initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops watching.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("credentials watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload()
	})
}

// reload applies the file's credentials if they parse and differ from the
// last applied pair.
func (p *Plugin) reload() {
	creds, err := Load(p.path)
	if err != nil {
		p.logger.Warn("credentials file ignored, keeping previous credentials",
			log.String("path", p.path),
			log.Err(err))
		return
	}

	p.mu.Lock()
	if p.loaded && p.current == creds {
		p.mu.Unlock()
		return
	}
	p.current = creds
	p.loaded = true
	p.mu.Unlock()

	p.target.SetCredentials(creds)
	p.logger.Info("credentials reloaded", log.String("path", p.path))
}

type credentialsFile struct {
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
}

var (
	// ErrIncomplete is returned when only one of api_key and api_secret is set.
	ErrIncomplete = errors.New("credwatcher: api_key and api_secret must be set together")

	// ErrEmpty is returned for a file with neither key. A half-written file
	// looks the same, so it never clears live credentials.
	ErrEmpty = errors.New("credwatcher: no credentials in file")
)

// Load reads a credentials file.
func Load(path string) (possync.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return possync.Credentials{}, err
	}

	var f credentialsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return possync.Credentials{}, fmt.Errorf("parse %s: %w", path, err)
	}
	switch {
	case f.APIKey == "" && f.APISecret == "":
		return possync.Credentials{}, ErrEmpty
	case f.APIKey == "" || f.APISecret == "":
		return possync.Credentials{}, ErrIncomplete
	}
	return possync.Credentials{APIKey: f.APIKey, APISecret: f.APISecret}, nil
}

// Ensure Plugin implements possync.Plugin.
var _ possync.Plugin = (*Plugin)(nil)
