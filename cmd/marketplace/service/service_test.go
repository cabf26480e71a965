package service

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/healthchain/marketplace/cmd/marketplace/models"
	"github.com/healthchain/marketplace/common/cache"
	"github.com/healthchain/marketplace/common/contentstore"
	"github.com/healthchain/marketplace/common/keyvault"
	"github.com/healthchain/marketplace/common/ledger"
	"github.com/healthchain/marketplace/common/logger"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	providerAddr = "0x1111111111111111111111111111111111111111"
	buyerAddr    = "0x2222222222222222222222222222222222222222"
	masterSecret = "0123456789abcdef0123456789abcdef"
)

var testLimits = UploadLimits{
	MaxBytes:          1024,
	AllowedExtensions: []string{".csv", ".json", ".xml", ".txt", ".pdf", ".xlsx", ".zip"},
}

type harness struct {
	fs      afero.Fs
	store   *contentstore.MemoryStore
	ledger  *ledger.MemoryLedger
	vault   *keyvault.Vault
	upload  *UploadService
	access  *AccessService
	catalog *CatalogService
	seq     atomic.Int64
}

type harnessOption func(*UploadOptions, *AccessOptions, *CatalogOptions)

func withInlineKeys() harnessOption {
	return func(u *UploadOptions, _ *AccessOptions, _ *CatalogOptions) { u.InlineKeys = true }
}

func withServeUndecryptable() harnessOption {
	return func(_ *UploadOptions, a *AccessOptions, _ *CatalogOptions) { a.ServeUndecryptable = true }
}

func withIndex(idx DatasetIndex) harnessOption {
	return func(u *UploadOptions, _ *AccessOptions, c *CatalogOptions) {
		u.Index = idx
		c.Index = idx
	}
}

func withCache(c cache.Cache) harnessOption {
	return func(_ *UploadOptions, _ *AccessOptions, co *CatalogOptions) { co.Cache = c }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	log := logger.Discard()

	vault, err := keyvault.Open(filepath.Join(t.TempDir(), "keys.db"), masterSecret, log)
	require.NoError(t, err)
	t.Cleanup(func() { vault.Close() })

	uploadOpts := UploadOptions{Limits: testLimits}
	accessOpts := AccessOptions{}
	catalogOpts := CatalogOptions{}
	for _, o := range opts {
		o(&uploadOpts, &accessOpts, &catalogOpts)
	}

	filter, err := NewDatasetFilter()
	require.NoError(t, err)

	h := &harness{
		fs:     afero.NewMemMapFs(),
		store:  contentstore.NewMemoryStore(log),
		ledger: ledger.NewMemoryLedger(providerAddr, log),
		vault:  vault,
	}
	h.upload = NewUploadService(h.fs, h.store, h.ledger, vault, uploadOpts, log)
	h.access = NewAccessService(h.store, h.ledger, keyvault.NewProvider(vault, h.ledger), accessOpts, log)
	h.catalog = NewCatalogService(h.ledger, filter, catalogOpts, log)
	return h
}

// spool writes data to a temp file the way the upload handler does
func (h *harness) spool(t *testing.T, name string, data []byte) *models.UploadJob {
	t.Helper()
	n := h.seq.Add(1)
	path := fmt.Sprintf("/uploads/dataset-%d%s", n, filepath.Ext(name))
	require.NoError(t, afero.WriteFile(h.fs, path, data, 0600))
	return &models.UploadJob{
		ID:               fmt.Sprintf("job-%d", n),
		TempPath:         path,
		OriginalFilename: name,
		Size:             int64(len(data)),
		Metadata:         `{"title":"Cardiology cohort","category":"cardiology"}`,
		LicenseTerms:     "Research use only",
		Price:            "0.1",
		Provider:         providerAddr,
	}
}

func (h *harness) mustUpload(t *testing.T, name string, data []byte) *models.UploadResult {
	t.Helper()
	res, err := h.upload.HandleUpload(t.Context(), h.spool(t, name, data))
	require.NoError(t, err)
	require.NotNil(t, res.DatasetID)
	return res
}

func (h *harness) license(datasetID uint64, who string) {
	h.ledger.GrantLicense(who, datasetID, 24*time.Hour)
}
