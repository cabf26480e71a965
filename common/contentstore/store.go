// Package contentstore moves opaque blobs to and from a content-addressed
// pinning service. Nothing here retries; callers own the retry policy.
package contentstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
)

// Store is the content-store contract used by the orchestrators
type Store interface {
	// Put pins data and returns its content identifier
	Put(ctx context.Context, data []byte, filenameHint string) (string, error)
	// Get fetches a pinned blob by content identifier
	Get(ctx context.Context, contentID string) ([]byte, error)
	// Unpin removes a pin. Failures are logged and never returned.
	Unpin(ctx context.Context, contentID string)
	// HealthCheck verifies provider credentials
	HealthCheck(ctx context.Context) bool
	// Status describes the provider for the status endpoint
	Status(ctx context.Context) Status
}

// Status is the provider summary reported by /api/ipfs/status
type Status struct {
	Provider   string `json:"provider"`
	Healthy    bool   `json:"healthy"`
	GatewayURL string `json:"gatewayUrl,omitempty"`
}

// ErrorKind classifies store failures
type ErrorKind string

const (
	KindAuth            ErrorKind = "auth"
	KindQuota           ErrorKind = "quota"
	KindTimeout         ErrorKind = "timeout"
	KindNetwork         ErrorKind = "network"
	KindNotFound        ErrorKind = "not_found"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindUnavailable     ErrorKind = "unavailable"
)

// StoreError is returned by every failing Put and Get
type StoreError struct {
	Kind   ErrorKind
	Op     string
	Status int
	Err    error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("content store %s failed (%s)", e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// KindOf returns the store error kind, or "" when err is not a StoreError
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// ValidateContentID checks that id parses as a CID
func ValidateContentID(id string) error {
	if _, err := cid.Decode(id); err != nil {
		return fmt.Errorf("invalid content id %q: %w", id, err)
	}
	return nil
}
