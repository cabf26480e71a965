package contentstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/healthchain/marketplace/common/logger"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// MemoryStore keeps blobs in process, addressed by CIDv0 of their bytes.
// It backs local development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	putErr error
	log    *logger.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		log:   log.WithComponent("memory-store"),
	}
}

// FailPuts makes every subsequent Put return err; nil restores normal behavior
func (m *MemoryStore) FailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// ComputeCID returns the CIDv0 of data's SHA2-256 multihash
func ComputeCID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return cid.NewCidV0(mh).String(), nil
}

// Put stores a copy of data
func (m *MemoryStore) Put(ctx context.Context, data []byte, filenameHint string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return "", &StoreError{Kind: KindUnavailable, Op: "put", Err: m.putErr}
	}
	if err := ctx.Err(); err != nil {
		return "", &StoreError{Kind: KindTimeout, Op: "put", Err: err}
	}

	id, err := ComputeCID(data)
	if err != nil {
		return "", &StoreError{Kind: KindInvalidResponse, Op: "put", Err: err}
	}

	m.blobs[id] = append([]byte(nil), data...)
	m.log.Debug("pinned content", "cid", id, "name", filenameHint, "size", len(data))
	return id, nil
}

// Get returns a copy of the blob
func (m *MemoryStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[contentID]
	if !ok {
		return nil, &StoreError{Kind: KindNotFound, Op: "get", Err: fmt.Errorf("no blob for %s", contentID)}
	}
	return append([]byte(nil), data...), nil
}

// Unpin drops the blob
func (m *MemoryStore) Unpin(ctx context.Context, contentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, contentID)
}

// Pinned reports whether contentID is held
func (m *MemoryStore) Pinned(contentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[contentID]
	return ok
}

// HealthCheck always succeeds
func (m *MemoryStore) HealthCheck(ctx context.Context) bool {
	return true
}

// Status reports the in-memory provider
func (m *MemoryStore) Status(ctx context.Context) Status {
	return Status{Provider: "memory", Healthy: true}
}

// Len returns the number of pinned blobs
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// ContentIDs lists the pinned content ids in sorted order
func (m *MemoryStore) ContentIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.blobs))
	for id := range m.blobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
