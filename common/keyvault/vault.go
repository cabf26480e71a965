// Package keyvault keeps per-dataset encryption keys out of public content.
// Keys are wrapped with AES-256-GCM under a key derived from the service
// master secret and the content id, then persisted in a bbolt file.
package keyvault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/healthchain/marketplace/common/logger"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/hkdf"
)

const (
	wrapInfo     = "healthchain-dataset-key-wrap"
	kekSize      = 32
	minMasterLen = 32
)

var bucketKeys = []byte("dataset_keys")

var (
	// ErrKeyNotFound means no key was ever stored for the content id
	ErrKeyNotFound = errors.New("dataset key not found")
	// ErrUnwrap means the stored key could not be authenticated
	ErrUnwrap = errors.New("dataset key could not be unwrapped")
	// ErrMasterSecret is returned for a missing or short master secret
	ErrMasterSecret = errors.New("vault master secret must be at least 32 characters")
)

// Vault stores dataset keys by content id
type Vault struct {
	db     *bbolt.DB
	master []byte
	log    *logger.Logger
}

// Open opens or creates the vault file at path
func Open(path, masterSecret string, log *logger.Logger) (*Vault, error) {
	if len(masterSecret) < minMasterLen {
		return nil, ErrMasterSecret
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("keyvault: create directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("keyvault: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKeys)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keyvault: create bucket: %w", err)
	}

	v := &Vault{db: db, master: []byte(masterSecret), log: log.WithComponent("keyvault")}
	v.log.Info("key vault opened", "path", path)
	return v, nil
}

// Close closes the underlying database
func (v *Vault) Close() error { return v.db.Close() }

// Put wraps key and stores it under contentID, replacing any previous key
func (v *Vault) Put(ctx context.Context, contentID string, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wrapped, err := v.wrap(contentID, key)
	if err != nil {
		return err
	}
	return v.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketKeys).Put([]byte(contentID), wrapped); err != nil {
			return fmt.Errorf("keyvault: put key: %w", err)
		}
		return nil
	})
}

// Get returns the unwrapped key for contentID
func (v *Vault) Get(ctx context.Context, contentID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var wrapped []byte
	err := v.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketKeys).Get([]byte(contentID))
		if data == nil {
			return ErrKeyNotFound
		}
		// bbolt memory is only valid inside the transaction
		wrapped = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v.unwrap(contentID, wrapped)
}

// Delete removes the key for contentID. Deleting a missing key is not an error.
func (v *Vault) Delete(ctx context.Context, contentID string) error {
	return v.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKeys).Delete([]byte(contentID))
	})
}

// Count returns the number of stored keys
func (v *Vault) Count() (int, error) {
	var n int
	err := v.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketKeys).Stats().KeyN
		return nil
	})
	return n, err
}

func (v *Vault) kek(contentID string) ([]byte, error) {
	r := hkdf.New(sha256.New, v.master, []byte(contentID), []byte(wrapInfo))
	kek := make([]byte, kekSize)
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, fmt.Errorf("keyvault: derive kek: %w", err)
	}
	return kek, nil
}

func (v *Vault) aead(contentID string) (cipher.AEAD, error) {
	kek, err := v.kek(contentID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("keyvault: aes: %w", err)
	}
	return cipher.NewGCM(block)
}

// wrap returns nonce || sealed key. The content id is bound as additional data.
func (v *Vault) wrap(contentID string, key []byte) ([]byte, error) {
	gcm, err := v.aead(contentID)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keyvault: nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, key, []byte(contentID)), nil
}

func (v *Vault) unwrap(contentID string, wrapped []byte) ([]byte, error) {
	gcm, err := v.aead(contentID)
	if err != nil {
		return nil, err
	}
	if len(wrapped) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrUnwrap
	}
	nonce, sealed := wrapped[:gcm.NonceSize()], wrapped[gcm.NonceSize():]
	key, err := gcm.Open(nil, nonce, sealed, []byte(contentID))
	if err != nil {
		return nil, ErrUnwrap
	}
	return key, nil
}
