package possync

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	httpAdapter "github.com/bft-labs/possync/internal/adapters/http"
	"github.com/bft-labs/possync/internal/app"
	"github.com/bft-labs/possync/internal/domain"
)

// Defaults for Config fields.
const (
	DefaultSubmitPath    = httpAdapter.DefaultSubmitPath
	DefaultSyncInterval  = app.DefaultSyncInterval
	DefaultSubmitTimeout = app.DefaultSubmitTimeout
	DefaultHTTPTimeout   = 20 * time.Second
	DefaultProbeInterval = 5 * time.Second
	DefaultProbeTimeout  = 3 * time.Second
	DefaultListenAddr    = "127.0.0.1:8787"
)

// Config holds the settings of a sync service.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// DBPath is the SQLite file holding the queue, products and cart.
	DBPath string

	// ServiceURL is the base URL of the tenant service. Empty means
	// transactions are only queued locally.
	ServiceURL string

	// SubmitPath is appended to ServiceURL for each submission.
	SubmitPath string

	// APIKey and APISecret authenticate submissions.
	APIKey    string
	APISecret string

	// CredentialsFile is a TOML file with api_key and api_secret that the
	// credentials watcher plugin reloads on change.
	CredentialsFile string

	SyncInterval  time.Duration
	SubmitTimeout time.Duration
	HTTPTimeout   time.Duration

	// AssumeOnline is the connectivity state before the first report.
	AssumeOnline bool

	// ProbeAddr ("host:port") enables the link prober when set.
	ProbeAddr     string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	// ListenAddr is where the local HTTP bridge listens. Empty disables it.
	ListenAddr string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DBPath:        defaultDBPath(),
		SubmitPath:    DefaultSubmitPath,
		SyncInterval:  DefaultSyncInterval,
		SubmitTimeout: DefaultSubmitTimeout,
		HTTPTimeout:   DefaultHTTPTimeout,
		AssumeOnline:  true,
		ProbeInterval: DefaultProbeInterval,
		ProbeTimeout:  DefaultProbeTimeout,
		ListenAddr:    DefaultListenAddr,
	}
}

// SetDefaults fills zero durations and paths. AssumeOnline and ListenAddr
// are left as given.
func (c *Config) SetDefaults() {
	if c.DBPath == "" {
		c.DBPath = defaultDBPath()
	}
	if c.SubmitPath == "" {
		c.SubmitPath = DefaultSubmitPath
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = DefaultSubmitTimeout
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ServiceURL != "" {
		u, err := url.Parse(c.ServiceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: service_url %q must be an absolute URL", domain.ErrInvalidConfig, c.ServiceURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: service_url scheme %q not supported", domain.ErrInvalidConfig, u.Scheme)
		}
	}
	if (c.APIKey == "") != (c.APISecret == "") {
		return fmt.Errorf("%w: api_key and api_secret must be set together", domain.ErrInvalidConfig)
	}
	if c.SyncInterval < time.Second {
		return fmt.Errorf("%w: sync_interval %v below 1s", domain.ErrInvalidConfig, c.SyncInterval)
	}
	if c.SubmitTimeout <= 0 || c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", domain.ErrInvalidConfig)
	}
	if c.ProbeAddr != "" && (c.ProbeInterval <= 0 || c.ProbeTimeout <= 0) {
		return fmt.Errorf("%w: probe_interval and probe_timeout must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".possync", "possync.db")
	}
	return filepath.Join(home, ".possync", "possync.db")
}
