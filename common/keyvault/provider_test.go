package keyvault

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAuthz struct {
	allowed map[string]bool
	err     error
}

func (a staticAuthz) CanAccessDataset(ctx context.Context, identity string, datasetID uint64) (bool, error) {
	return a.allowed[identity], a.err
}

func TestProvider_Resolve(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, filepath.Join(t.TempDir(), "keys.db"))
	defer v.Close()
	require.NoError(t, v.Put(ctx, "QmA", []byte("secret")))

	p := NewProvider(v, staticAuthz{allowed: map[string]bool{"alice": true}})

	key, err := p.Resolve(ctx, 1, "QmA", "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), key)

	_, err = p.Resolve(ctx, 1, "QmA", "mallory")
	assert.ErrorIs(t, err, ErrDenied)

	_, err = p.Resolve(ctx, 2, "QmB", "alice")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestProvider_AuthorizerFailure(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "keys.db"))
	defer v.Close()

	boom := errors.New("rpc down")
	p := NewProvider(v, staticAuthz{err: boom})

	_, err := p.Resolve(context.Background(), 1, "QmA", "alice")
	assert.ErrorIs(t, err, boom)
}
