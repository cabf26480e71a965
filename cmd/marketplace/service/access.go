package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/healthchain/marketplace/cmd/marketplace/models"
	"github.com/healthchain/marketplace/common/apperr"
	"github.com/healthchain/marketplace/common/cipher"
	"github.com/healthchain/marketplace/common/contentstore"
	"github.com/healthchain/marketplace/common/keyvault"
	"github.com/healthchain/marketplace/common/ledger"
	"github.com/healthchain/marketplace/common/logger"
)

// AccessOptions configures the download pipeline
type AccessOptions struct {
	// ServeUndecryptable returns ciphertext instead of failing when an
	// encrypted record has no recoverable key
	ServeUndecryptable bool
	Metrics            Metrics
}

// AccessService serves datasets to licensed requesters
type AccessService struct {
	store  contentstore.Store
	ledger ledger.Ledger
	keys   KeyResolver
	opts   AccessOptions
	log    *logger.Logger
}

// NewAccessService creates a new access service. keys may be nil when
// every record carries its key inline.
func NewAccessService(store contentstore.Store, l ledger.Ledger, keys KeyResolver, opts AccessOptions, log *logger.Logger) *AccessService {
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}
	return &AccessService{
		store:  store,
		ledger: l,
		keys:   keys,
		opts:   opts,
		log:    log.WithComponent("access"),
	}
}

// HandleDownload authorizes requester, fetches the ciphertext and returns
// the decrypted bytes with their download filename
func (s *AccessService) HandleDownload(ctx context.Context, datasetID uint64, requester string) (*models.Download, error) {
	start := time.Now()
	dl, err := s.download(ctx, datasetID, requester)
	if err != nil {
		s.opts.Metrics.RecordDownload(string(apperr.KindOf(err)))
		return nil, err
	}
	s.opts.Metrics.RecordDownload("success")
	s.opts.Metrics.RecordDuration("download", start)
	return dl, nil
}

func (s *AccessService) download(ctx context.Context, datasetID uint64, requester string) (*models.Download, error) {
	if strings.TrimSpace(requester) == "" {
		return nil, invalid("User address required", "")
	}
	if err := ValidateAddress(requester); err != nil {
		return nil, err
	}
	log := s.log.WithContext(ctx).WithDatasetID(datasetID)

	ok, err := s.ledger.CanAccessDataset(ctx, requester, datasetID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageAuthorize, err, "Failed to check dataset access")
	}
	if !ok {
		return nil, &apperr.Error{
			Kind:    apperr.KindAccessDenied,
			Stage:   apperr.StageAuthorize,
			Message: "Access denied",
			Err:     errors.New("You do not have a valid license for this dataset"),
		}
	}

	rec, err := s.ledger.GetDatasetInfo(ctx, datasetID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to retrieve dataset record")
	}
	if rec.ContentID == "" {
		return nil, apperr.New(apperr.KindNotFound, apperr.StageFetch, "Dataset not found")
	}

	env := parseEnvelope(rec.Metadata)
	if !env.valid {
		log.Warn("dataset metadata is not a JSON object, serving as stored")
	}
	filename := resolveFilename(datasetID, env)

	var key []byte
	encrypted := env.encrypted()
	if encrypted {
		if key, err = s.resolveKey(ctx, log, rec, env, requester); err != nil {
			return nil, err
		}
		if key == nil {
			if !s.opts.ServeUndecryptable {
				return nil, apperr.New(apperr.KindKeyUnavailable, apperr.StageDecrypt,
					"Decryption key unavailable for this dataset")
			}
			log.Warn("dataset is encrypted but no key was recovered, serving ciphertext")
		}
	}

	data, err := s.store.Get(ctx, rec.ContentID)
	if err != nil {
		if contentstore.KindOf(err) == contentstore.KindNotFound {
			return nil, apperr.Wrap(apperr.KindNotFound, apperr.StageFetch, err, "Dataset content not found")
		}
		return nil, apperr.Wrap(apperr.KindStore, apperr.StageFetch, err, "Failed to retrieve dataset from IPFS")
	}

	if sum := env.ciphertextSHA256(); sum != "" && !cipher.Verify(data, sum) {
		return nil, apperr.New(apperr.KindCrypto, apperr.StageIntegrity, "Dataset integrity check failed")
	}

	if key == nil {
		return &models.Download{Data: data, Filename: filename, Encrypted: encrypted}, nil
	}

	plain, err := cipher.Decrypt(data, key)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCrypto, apperr.StageDecrypt, err, "Failed to decrypt dataset")
	}

	log.Info("dataset served", "requester", requester, "size", len(plain))
	return &models.Download{Data: plain, Filename: filename}, nil
}

// resolveKey returns nil without error when the record has no usable key
func (s *AccessService) resolveKey(ctx context.Context, log *logger.Logger, rec *ledger.Dataset, env envelope, requester string) ([]byte, error) {
	if inline := env.inlineKey(); inline != "" {
		key, err := cipher.DecodeKey(inline)
		if err != nil {
			log.Warn("inline key is malformed", "error", err)
			return nil, nil
		}
		return key, nil
	}

	if env.custody() != CustodyVault || s.keys == nil {
		return nil, nil
	}

	key, err := s.keys.Resolve(ctx, rec.ID, rec.ContentID, requester)
	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, keyvault.ErrDenied):
		return nil, apperr.Wrap(apperr.KindAccessDenied, apperr.StageAuthorize, err, "Access denied")
	case errors.Is(err, ledger.ErrLedger):
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageAuthorize, err, "Failed to check dataset access")
	case errors.Is(err, keyvault.ErrKeyNotFound), errors.Is(err, keyvault.ErrUnwrap):
		log.Warn("vault has no usable key for dataset", "error", err)
		return nil, nil
	default:
		return nil, apperr.Wrap(apperr.KindInternal, apperr.StageCustody, err, "Failed to recover encryption key")
	}
}
