package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/healthchain/marketplace/cmd/marketplace/models"
	"github.com/healthchain/marketplace/common/apperr"
	"github.com/healthchain/marketplace/common/cipher"
	"github.com/healthchain/marketplace/common/contentstore"
	"github.com/healthchain/marketplace/common/ledger"
	"github.com/healthchain/marketplace/common/logger"
	"github.com/spf13/afero"
)

const uploadMessage = "Dataset uploaded to IPFS (encrypted) and registered on blockchain"

// UploadOptions configures the upload pipeline
type UploadOptions struct {
	Limits UploadLimits
	// InlineKeys stores the key in the envelope and echoes it to the client
	InlineKeys bool
	// Index is optional
	Index   DatasetIndex
	Metrics Metrics
}

// UploadService encrypts, pins and registers datasets
type UploadService struct {
	fs     afero.Fs
	store  contentstore.Store
	ledger ledger.Ledger
	keys   KeyCustodian
	opts   UploadOptions
	log    *logger.Logger
	now    func() time.Time
}

// NewUploadService creates a new upload service. keys may be nil only when
// opts.InlineKeys is set.
func NewUploadService(fs afero.Fs, store contentstore.Store, l ledger.Ledger, keys KeyCustodian, opts UploadOptions, log *logger.Logger) *UploadService {
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}
	return &UploadService{
		fs:     fs,
		store:  store,
		ledger: l,
		keys:   keys,
		opts:   opts,
		log:    log.WithComponent("upload"),
		now:    time.Now,
	}
}

// HandleUpload runs one job through validate, encrypt, store, custody and
// ledger registration. The job's temp file is removed on every path.
func (s *UploadService) HandleUpload(ctx context.Context, job *models.UploadJob) (*models.UploadResult, error) {
	defer s.removeTemp(job.TempPath)

	start := time.Now()
	log := s.log.WithContext(ctx).WithUploadID(job.ID)

	res, err := s.process(ctx, job, log)
	if err != nil {
		s.opts.Metrics.RecordUpload(string(apperr.KindOf(err)))
		return nil, err
	}

	s.opts.Metrics.RecordUpload("success")
	s.opts.Metrics.RecordDuration("upload", start)
	return res, nil
}

func (s *UploadService) process(ctx context.Context, job *models.UploadJob, log *logger.Logger) (*models.UploadResult, error) {
	if err := validateUpload(job, s.opts.Limits); err != nil {
		return nil, err
	}
	priceWei, _ := ledger.ParseEther(job.Price)

	plain, err := afero.ReadFile(s.fs, job.TempPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, apperr.StageRead, err, "Failed to read uploaded file")
	}

	stageStart := time.Now()
	ciphertext, key, err := cipher.Encrypt(plain, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCrypto, apperr.StageEncrypt, err, "Failed to encrypt dataset")
	}
	s.opts.Metrics.RecordDuration(apperr.StageEncrypt, stageStart)

	stageStart = time.Now()
	contentID, err := s.store.Put(ctx, ciphertext, filepath.Base(job.TempPath))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, apperr.StageStore, err, "Failed to upload to IPFS")
	}
	s.opts.Metrics.RecordDuration(apperr.StageStore, stageStart)
	log.Info("ciphertext pinned", "cid", contentID, "size", len(ciphertext))

	facts := storageFacts{
		Encrypted:        true,
		OriginalSize:     int64(len(plain)),
		EncryptedSize:    int64(len(ciphertext)),
		OriginalFilename: job.OriginalFilename,
		FileExtension:    strings.ToLower(filepath.Ext(job.OriginalFilename)),
		EncryptedSHA256:  cipher.Hash(ciphertext),
		UploadedAt:       s.now().UTC().Format(time.RFC3339),
	}

	if s.opts.InlineKeys {
		facts.KeyCustody = CustodyInline
		facts.EncryptionKey = cipher.EncodeKey(key)
	} else {
		facts.KeyCustody = CustodyVault
		if err := s.keys.Put(ctx, contentID, key); err != nil {
			s.store.Unpin(context.WithoutCancel(ctx), contentID)
			return nil, apperr.Wrap(apperr.KindInternal, apperr.StageCustody, err, "Failed to store encryption key")
		}
	}

	env, metadata, err := buildEnvelope(job.Metadata, facts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, apperr.StageEnvelope, err, "Failed to build dataset metadata")
	}

	stageStart = time.Now()
	receipt, err := s.ledger.RegisterDataset(ctx, ledger.Registration{
		ContentID:    contentID,
		Metadata:     env,
		LicenseTerms: job.LicenseTerms,
		PriceWei:     priceWei,
		Provider:     job.Provider,
	})
	if err != nil {
		log.Warn("ledger registration failed, ciphertext stays pinned", "cid", contentID, "error", err)
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to register dataset on blockchain")
	}
	s.opts.Metrics.RecordDuration(apperr.StageLedger, stageStart)

	if receipt.DatasetID == nil {
		log.Warn("DatasetRegistered event missing from receipt", "tx", receipt.TxHash)
	} else {
		provider := receipt.Address
		if provider == "" {
			provider = job.Provider
		}
		s.indexDataset(ctx, log, models.IndexedDataset{
			DatasetID:    *receipt.DatasetID,
			ContentID:    contentID,
			Metadata:     env,
			LicenseTerms: job.LicenseTerms,
			Provider:     provider,
			PriceWei:     priceWei.String(),
			Active:       true,
			Version:      1,
			CreatedAt:    s.now().UTC().Truncate(time.Second),
		})
	}

	log.Info("dataset registered",
		"cid", contentID,
		"tx", receipt.TxHash,
		"block", receipt.BlockNumber,
		"custody", facts.KeyCustody,
	)

	return &models.UploadResult{
		Success:         true,
		IpfsHash:        contentID,
		TransactionHash: receipt.TxHash,
		BlockNumber:     receipt.BlockNumber,
		GasUsed:         receipt.GasUsed,
		DatasetID:       receipt.DatasetID,
		FileSize:        facts.EncryptedSize,
		OriginalSize:    facts.OriginalSize,
		Encrypted:       true,
		KeyCustody:      facts.KeyCustody,
		EncryptionKey:   facts.EncryptionKey,
		Metadata:        metadata,
		Price:           job.Price,
		LicenseTerms:    job.LicenseTerms,
		Provider:        receipt.Address,
		Message:         uploadMessage,
	}, nil
}

func (s *UploadService) indexDataset(ctx context.Context, log *logger.Logger, row models.IndexedDataset) {
	if s.opts.Index == nil {
		return
	}
	if err := s.opts.Index.Upsert(ctx, row); err != nil {
		log.Warn("failed to index dataset", "dataset_id", row.DatasetID, "error", err)
	}
}

func (s *UploadService) removeTemp(path string) {
	if path == "" {
		return
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
		s.log.Warn("failed to remove temp file", "path", path, "error", err)
	}
}
