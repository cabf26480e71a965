package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/healthchain/marketplace/cmd/marketplace/models"
	"github.com/healthchain/marketplace/common/apperr"
	"github.com/healthchain/marketplace/common/cache"
	"github.com/healthchain/marketplace/common/ledger"
	"github.com/healthchain/marketplace/common/logger"
)

// CatalogOptions configures read paths over the registry
type CatalogOptions struct {
	// Cache and Index are optional
	Cache    cache.Cache
	CacheTTL time.Duration
	Index    DatasetIndex
}

// CatalogService serves public dataset info, listings and license lookups
type CatalogService struct {
	ledger ledger.Ledger
	filter *DatasetFilter
	opts   CatalogOptions
	log    *logger.Logger
	now    func() time.Time
}

// NewCatalogService creates a new catalog service
func NewCatalogService(l ledger.Ledger, filter *DatasetFilter, opts CatalogOptions, log *logger.Logger) *CatalogService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &CatalogService{
		ledger: l,
		filter: filter,
		opts:   opts,
		log:    log.WithComponent("catalog"),
		now:    time.Now,
	}
}

func infoCacheKey(id uint64) string {
	return fmt.Sprintf("dataset-info:%d", id)
}

// GetDatasetInfo returns the public view of one dataset. Never-registered
// ids are NotFound and are not cached.
func (s *CatalogService) GetDatasetInfo(ctx context.Context, datasetID uint64) (*models.DatasetInfo, error) {
	key := infoCacheKey(datasetID)
	if s.opts.Cache != nil {
		raw, ok, err := s.opts.Cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("dataset info cache read failed", "error", err)
		} else if ok {
			var info models.DatasetInfo
			if err := json.Unmarshal(raw, &info); err == nil {
				return &info, nil
			}
		}
	}

	rec, err := s.ledger.GetDatasetInfo(ctx, datasetID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to retrieve dataset info")
	}
	if rec.IsZero() {
		return nil, apperr.New(apperr.KindNotFound, apperr.StageLedger, "Dataset not found")
	}

	info := models.NewDatasetInfo(*rec, publicMetadata(rec.Metadata))
	if s.opts.Cache != nil {
		if raw, err := json.Marshal(info); err == nil {
			if err := s.opts.Cache.Set(ctx, key, raw, s.opts.CacheTTL); err != nil {
				s.log.Warn("dataset info cache write failed", "error", err)
			}
		}
	}
	return &info, nil
}

// ListDatasets returns active datasets filtered, sorted and paged per q
func (s *CatalogService) ListDatasets(ctx context.Context, q *models.ListQuery) ([]models.DatasetInfo, error) {
	datasets, err := s.activeDatasets(ctx)
	if err != nil {
		return nil, err
	}

	if q.Filter != "" {
		prg, err := s.filter.Compile(q.Filter)
		if err != nil {
			return nil, invalid("Invalid filter expression", err.Error())
		}
		kept := datasets[:0]
		for _, d := range datasets {
			if s.filter.Match(prg, d) {
				kept = append(kept, d)
			}
		}
		datasets = kept
	}

	sortDatasets(datasets, q.SortBy, q.SortOrder == "desc")

	if q.Offset >= len(datasets) {
		return []models.DatasetInfo{}, nil
	}
	datasets = datasets[q.Offset:]
	if q.Limit > 0 && q.Limit < len(datasets) {
		datasets = datasets[:q.Limit]
	}

	out := make([]models.DatasetInfo, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, models.NewDatasetInfo(d, publicMetadata(d.Metadata)))
	}
	return out, nil
}

func (s *CatalogService) activeDatasets(ctx context.Context) ([]ledger.Dataset, error) {
	if s.opts.Index != nil {
		rows, err := s.opts.Index.ListActive(ctx)
		if err == nil {
			return fromIndex(rows), nil
		}
		s.log.Warn("dataset index unavailable, scanning ledger", "error", err)
	}

	datasets, err := s.ledger.ListAllActive(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to retrieve datasets")
	}
	return datasets, nil
}

func sortDatasets(ds []ledger.Dataset, by string, desc bool) {
	less := func(a, b ledger.Dataset) bool { return a.ID < b.ID }
	switch by {
	case "price":
		less = func(a, b ledger.Dataset) bool { return a.PriceWei.Cmp(b.PriceWei) < 0 }
	case "createdAt":
		less = func(a, b ledger.Dataset) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "version":
		less = func(a, b ledger.Dataset) bool { return a.Version < b.Version }
	case "provider":
		less = func(a, b ledger.Dataset) bool { return strings.ToLower(a.Provider) < strings.ToLower(b.Provider) }
	}
	sort.SliceStable(ds, func(i, j int) bool {
		if desc {
			return less(ds[j], ds[i])
		}
		return less(ds[i], ds[j])
	})
}

// VerifyLicense reports whether user holds a valid license for the dataset
func (s *CatalogService) VerifyLicense(ctx context.Context, datasetID uint64, user string) (bool, error) {
	if err := ValidateAddress(user); err != nil {
		return false, err
	}
	ok, err := s.ledger.HasValidLicense(ctx, user, datasetID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to verify license")
	}
	return ok, nil
}

// UserLicenses returns user's licenses in issuance order, each with the
// public info of its dataset
func (s *CatalogService) UserLicenses(ctx context.Context, user string) ([]models.LicenseView, error) {
	if err := ValidateAddress(user); err != nil {
		return nil, err
	}
	licenses, err := s.ledger.GetUserLicenses(ctx, user)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to retrieve user licenses")
	}

	now := s.now()
	out := make([]models.LicenseView, 0, len(licenses))
	for _, lic := range licenses {
		view := models.LicenseView{
			LicenseID: lic.ID,
			DatasetID: lic.DatasetID,
			Licensee:  lic.Licensee,
			IssuedAt:  lic.IssuedAt.UTC(),
			ExpiresAt: lic.ExpiresAt.UTC(),
			IsActive:  lic.Active,
			IsValid:   lic.Valid(now),
		}
		info, err := s.GetDatasetInfo(ctx, lic.DatasetID)
		switch {
		case err == nil:
			view.DatasetInfo = info
		case apperr.Is(err, apperr.KindNotFound):
		default:
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// Reindex rebuilds the dataset index from a full ledger scan
func (s *CatalogService) Reindex(ctx context.Context) (int, error) {
	if s.opts.Index == nil {
		return 0, apperr.New(apperr.KindNotFound, "reindex", "Dataset index is disabled")
	}
	datasets, err := s.ledger.ListAllActive(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to scan ledger")
	}
	rows := toIndex(datasets)
	if err := s.opts.Index.ReplaceAll(ctx, rows); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "reindex", err, "Failed to rebuild dataset index")
	}
	s.log.Info("dataset index rebuilt", "datasets", len(rows))
	return len(rows), nil
}

// LedgerStatus summarizes the connected chain and signer
func (s *CatalogService) LedgerStatus(ctx context.Context) (*models.LedgerStatus, error) {
	info, err := s.ledger.NetworkInfo(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to read network info")
	}
	count, err := s.ledger.DatasetCount(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to read dataset count")
	}
	return &models.LedgerStatus{
		ChainID:            info.ChainID,
		BlockNumber:        info.BlockNumber,
		Signer:             info.Signer,
		Balance:            info.Balance,
		DatasetSBTAddress:  info.DatasetSBTAddress,
		MarketplaceAddress: info.MarketplaceAddress,
		DatasetCount:       count,
	}, nil
}

func toIndex(ds []ledger.Dataset) []models.IndexedDataset {
	rows := make([]models.IndexedDataset, 0, len(ds))
	for _, d := range ds {
		rows = append(rows, models.IndexedDataset{
			DatasetID:    d.ID,
			ContentID:    d.ContentID,
			Metadata:     d.Metadata,
			LicenseTerms: d.LicenseTerms,
			Provider:     d.Provider,
			PriceWei:     d.PriceWei.String(),
			Active:       d.Active,
			Version:      d.Version,
			CreatedAt:    d.CreatedAt,
		})
	}
	return rows
}

func fromIndex(rows []models.IndexedDataset) []ledger.Dataset {
	out := make([]ledger.Dataset, 0, len(rows))
	for _, r := range rows {
		price, ok := new(big.Int).SetString(r.PriceWei, 10)
		if !ok {
			price = new(big.Int)
		}
		out = append(out, ledger.Dataset{
			ID:           r.DatasetID,
			ContentID:    r.ContentID,
			Metadata:     r.Metadata,
			LicenseTerms: r.LicenseTerms,
			Provider:     r.Provider,
			PriceWei:     price,
			Active:       r.Active,
			Version:      r.Version,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out
}
