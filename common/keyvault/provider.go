package keyvault

import (
	"context"
	"errors"
	"fmt"
)

// ErrDenied means the requester is not entitled to the dataset key
var ErrDenied = errors.New("key access denied")

// Authorizer answers whether identity may read a dataset
type Authorizer interface {
	CanAccessDataset(ctx context.Context, identity string, datasetID uint64) (bool, error)
}

// KeyStore is the storage side of the vault
type KeyStore interface {
	Get(ctx context.Context, contentID string) ([]byte, error)
}

// Provider releases a dataset key only to requesters the ledger authorizes
type Provider struct {
	keys  KeyStore
	authz Authorizer
}

// NewProvider builds a Provider
func NewProvider(keys KeyStore, authz Authorizer) *Provider {
	return &Provider{keys: keys, authz: authz}
}

// Resolve returns the key for contentID if requester may access datasetID.
// It fails with ErrDenied or ErrKeyNotFound.
func (p *Provider) Resolve(ctx context.Context, datasetID uint64, contentID, requester string) ([]byte, error) {
	ok, err := p.authz.CanAccessDataset(ctx, requester, datasetID)
	if err != nil {
		return nil, fmt.Errorf("authorize key release: %w", err)
	}
	if !ok {
		return nil, ErrDenied
	}
	return p.keys.Get(ctx, contentID)
}
