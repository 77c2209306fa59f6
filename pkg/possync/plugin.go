package possync

import "context"

// Plugin extends a Service with optional behavior that shares its lifetime.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize is called from Start in registration order. An error
	// aborts Start and leaves the Service crashed.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown is called from Stop in reverse registration order.
	Shutdown(ctx context.Context) error
}

// CredentialSetter replaces the credentials used for new submissions.
type CredentialSetter interface {
	SetCredentials(c Credentials)
}

// PluginConfig is what a plugin receives on Initialize.
type PluginConfig struct {
	DBPath          string
	ServiceURL      string
	CredentialsFile string
	Logger          Logger

	// Credentials swaps the live tenant credentials.
	Credentials CredentialSetter
}
