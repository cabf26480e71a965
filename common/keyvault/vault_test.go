package keyvault

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/healthchain/marketplace/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

const master = "0123456789abcdef0123456789abcdef"

func openTestVault(t *testing.T, path string) *Vault {
	t.Helper()
	v, err := Open(path, master, logger.Discard())
	require.NoError(t, err)
	return v
}

func TestVault_PutGet(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, filepath.Join(t.TempDir(), "keys.db"))
	defer v.Close()

	key := bytes.Repeat([]byte{0x42}, 32)
	require.NoError(t, v.Put(ctx, "QmA", key))

	got, err := v.Get(ctx, "QmA")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	n, err := v.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVault_Missing(t *testing.T) {
	v := openTestVault(t, filepath.Join(t.TempDir(), "keys.db"))
	defer v.Close()

	_, err := v.Get(context.Background(), "QmNope")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestVault_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys.db")
	key := bytes.Repeat([]byte{0x07}, 32)

	v := openTestVault(t, path)
	require.NoError(t, v.Put(ctx, "QmA", key))
	require.NoError(t, v.Close())

	v = openTestVault(t, path)
	defer v.Close()
	got, err := v.Get(ctx, "QmA")
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestVault_WrongMasterCannotUnwrap(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys.db")

	v := openTestVault(t, path)
	require.NoError(t, v.Put(ctx, "QmA", bytes.Repeat([]byte{1}, 32)))
	require.NoError(t, v.Close())

	other, err := Open(path, "ffffffffffffffffffffffffffffffff", logger.Discard())
	require.NoError(t, err)
	defer other.Close()

	_, err = other.Get(ctx, "QmA")
	assert.ErrorIs(t, err, ErrUnwrap)
}

func TestVault_WrappedKeyBoundToContentID(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, filepath.Join(t.TempDir(), "keys.db"))
	defer v.Close()

	require.NoError(t, v.Put(ctx, "QmA", bytes.Repeat([]byte{1}, 32)))

	// Copy the wrapped blob under another id.
	require.NoError(t, v.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKeys)
		return b.Put([]byte("QmB"), append([]byte(nil), b.Get([]byte("QmA"))...))
	}))

	_, err := v.Get(ctx, "QmB")
	assert.ErrorIs(t, err, ErrUnwrap)
}

func TestVault_Delete(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t, filepath.Join(t.TempDir(), "keys.db"))
	defer v.Close()

	require.NoError(t, v.Put(ctx, "QmA", []byte("k")))
	require.NoError(t, v.Delete(ctx, "QmA"))
	require.NoError(t, v.Delete(ctx, "QmA"))

	_, err := v.Get(ctx, "QmA")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestOpen_ShortMasterSecret(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "keys.db"), "short", logger.Discard())
	assert.ErrorIs(t, err, ErrMasterSecret)
}
