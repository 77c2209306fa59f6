package possync

import (
	"github.com/bft-labs/possync/internal/clock"
	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
	"github.com/bft-labs/possync/pkg/log"
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the interface for structured logging.
type Logger = log.Logger

// LogField represents a structured log field.
type LogField = log.Field

// Store is the local durable store backend.
type Store = ports.Store

// Prober checks link-level connectivity.
type Prober = ports.Prober

// Clock supplies transaction timestamps.
type Clock = clock.Clock

// Credentials is the tenant API key/secret pair.
type Credentials = ports.Credentials

// Data types shared with the UI.
type (
	Transaction = domain.Transaction
	Product     = domain.Product
	CartItem    = domain.CartItem
	Status      = domain.Status
	SyncState   = domain.SyncState
)

// Sync states, in display precedence order.
const (
	SyncOffline     = domain.StateOffline
	SyncSyncing     = domain.StateSyncing
	SyncPending     = domain.StatePendingSync
	SyncOnlineClean = domain.StateOnlineClean
)

// Errors returned by the Service. Check with errors.Is.
var (
	ErrStorageUnavailable = domain.ErrStorageUnavailable
	ErrDuplicateKey       = domain.ErrDuplicateKey
	ErrNotFound           = domain.ErrNotFound
	ErrInvalidPayload     = domain.ErrInvalidPayload
	ErrSubmissionFailed   = domain.ErrSubmissionFailed
	ErrOffline            = domain.ErrOffline
	ErrPassInProgress     = domain.ErrPassInProgress
	ErrAlreadyRunning     = domain.ErrAlreadyRunning
	ErrNotRunning         = domain.ErrNotRunning
	ErrShutdownTimeout    = domain.ErrShutdownTimeout
	ErrInvalidConfig      = domain.ErrInvalidConfig
)

// Option configures optional behavior of a Service.
type Option func(*options)

// options holds the optional configuration for a Service instance.
type options struct {
	httpClient   ports.HTTPClient
	logger       ports.Logger
	eventHandler EventHandler
	plugins      []Plugin
	store        ports.Store
	clock        clock.Clock
	prober       ports.Prober
}

func defaultOptions(client HTTPClient) options {
	return options{
		httpClient: client,
		logger:     log.NewNoopLogger(),
		clock:      clock.NewSystem(),
	}
}

// WithHTTPClient sets a custom HTTP client for tenant submissions.
// If not provided, a client with Config.HTTPTimeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for service events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the Service starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithStore replaces the SQLite store with the given backend.
func WithStore(store Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithClock sets the clock used to timestamp transactions.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithProber sets the link prober. It overrides Config.ProbeAddr.
func WithProber(p Prober) Option {
	return func(o *options) {
		o.prober = p
	}
}
