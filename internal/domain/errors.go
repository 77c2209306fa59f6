package domain

import "errors"

// Domain errors represent error conditions in the possync domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrStorageUnavailable is returned when the local durable store cannot be opened.
	ErrStorageUnavailable = errors.New("possync: storage unavailable")

	// ErrDuplicateKey is returned when a record with the same key already exists.
	ErrDuplicateKey = errors.New("possync: duplicate key")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("possync: not found")

	// ErrInvalidPayload is returned when a transaction payload is not a JSON object.
	ErrInvalidPayload = errors.New("possync: invalid payload")

	// ErrSubmissionFailed wraps every failed submission to the tenant service.
	ErrSubmissionFailed = errors.New("possync: submission failed")

	// ErrOffline is returned when a sync pass is skipped because the client is offline.
	ErrOffline = errors.New("possync: offline")

	// ErrPassInProgress is returned when a sync pass is already running.
	ErrPassInProgress = errors.New("possync: sync pass in progress")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("possync: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("possync: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("possync: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("possync: invalid configuration")
)
