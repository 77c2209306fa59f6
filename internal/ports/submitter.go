package ports

import (
	"context"
	"net/http"

	"github.com/bft-labs/possync/internal/domain"
)

// HTTPClient executes requests against the tenant service.
// *http.Client satisfies it; tests inject fakes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Submitter transmits one queued transaction to the tenant service.
type Submitter interface {
	// Submit sends tx.Payload to the remote transaction-creation endpoint.
	// Returns nil only when the remote accepted the transaction. Every
	// failure wraps domain.ErrSubmissionFailed.
	Submit(ctx context.Context, tx domain.Transaction) error
}

// Credentials is the per-tenant API key/secret pair.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Empty reports whether no credentials are configured.
func (c Credentials) Empty() bool {
	return c.APIKey == "" && c.APISecret == ""
}

// CredentialsProvider supplies the current tenant credentials.
// Implementations may rotate credentials between calls.
type CredentialsProvider interface {
	Credentials() Credentials
}
