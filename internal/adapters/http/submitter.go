package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/bft-labs/possync/internal/domain"
	"github.com/bft-labs/possync/internal/ports"
)

// DefaultSubmitPath is the transaction-creation endpoint of the tenant service.
const DefaultSubmitPath = "/api/resource/Sales Invoice"

// maxErrorBody caps how much of a rejected response is kept.
const maxErrorBody = 4 << 10

// SubmissionError describes a failed submission.
type SubmissionError struct {
	// StatusCode is 0 when no response was received.
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("submit: %v", e.Err)
	}
	return fmt.Sprintf("submit: server returned %d: %s", e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrSubmissionFailed}
	}
	return []error{domain.ErrSubmissionFailed, e.Err}
}

// Permanent reports whether the service rejected the payload itself.
// Resubmitting the same payload is not expected to succeed.
func (e *SubmissionError) Permanent() bool {
	if e.StatusCode < 400 || e.StatusCode >= 500 {
		return false
	}
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}

// IsPermanent reports whether err carries a permanent SubmissionError.
func IsPermanent(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se) && se.Permanent()
}

// SubmitterConfig holds the tenant endpoint.
type SubmitterConfig struct {
	ServiceURL string
	SubmitPath string
}

// Submitter implements ports.Submitter against the tenant REST API.
type Submitter struct {
	client ports.HTTPClient
	creds  ports.CredentialsProvider
	cfg    SubmitterConfig
	logger ports.Logger
}

// NewSubmitter creates a new HTTP submitter.
func NewSubmitter(client ports.HTTPClient, creds ports.CredentialsProvider, cfg SubmitterConfig, logger ports.Logger) *Submitter {
	if cfg.SubmitPath == "" {
		cfg.SubmitPath = DefaultSubmitPath
	}
	return &Submitter{
		client: client,
		creds:  creds,
		cfg:    cfg,
		logger: logger,
	}
}

// Endpoint returns the fully escaped submission URL.
func (s *Submitter) Endpoint() (string, error) {
	if s.cfg.ServiceURL == "" {
		return "", errors.New("service url not configured")
	}
	base, err := url.Parse(strings.TrimRight(s.cfg.ServiceURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse service url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("service url %q must be absolute", s.cfg.ServiceURL)
	}
	return base.JoinPath(s.cfg.SubmitPath).String(), nil
}

// Submit posts the payload verbatim to the tenant service.
func (s *Submitter) Submit(ctx context.Context, tx domain.Transaction) error {
	endpoint, err := s.Endpoint()
	if err != nil {
		return &SubmissionError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(tx.Payload))
	if err != nil {
		return &SubmissionError{Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", tx.ID)
	req.Header.Set("User-Agent", "possync ("+runtime.GOOS+"/"+runtime.GOARCH+")")
	if s.creds != nil {
		if c := s.creds.Credentials(); !c.Empty() {
			req.Header.Set("Authorization", "token "+c.APIKey+":"+c.APISecret)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &SubmissionError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &SubmissionError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	s.logger.Debug("transaction accepted",
		ports.String("id", tx.ID),
		ports.Int("status", resp.StatusCode),
	)
	return nil
}

// CredentialStore holds credentials that may be swapped at runtime.
type CredentialStore struct {
	v atomic.Pointer[ports.Credentials]
}

// NewCredentialStore returns a store seeded with c.
func NewCredentialStore(c ports.Credentials) *CredentialStore {
	s := &CredentialStore{}
	s.Set(c)
	return s
}

// Credentials returns the current pair.
func (s *CredentialStore) Credentials() ports.Credentials {
	if c := s.v.Load(); c != nil {
		return *c
	}
	return ports.Credentials{}
}

// Set replaces the current pair.
func (s *CredentialStore) Set(c ports.Credentials) {
	s.v.Store(&c)
}

var (
	_ ports.Submitter           = (*Submitter)(nil)
	_ ports.CredentialsProvider = (*CredentialStore)(nil)
)
