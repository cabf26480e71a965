package service

import (
	"context"
	"time"

	"github.com/healthchain/marketplace/cmd/marketplace/models"
)

// KeyCustodian keeps dataset keys out of the public envelope
type KeyCustodian interface {
	Put(ctx context.Context, contentID string, key []byte) error
}

// KeyResolver releases a dataset key to an authorized requester
type KeyResolver interface {
	Resolve(ctx context.Context, datasetID uint64, contentID, requester string) ([]byte, error)
}

// DatasetIndex is the materialized listing of registered datasets
type DatasetIndex interface {
	Upsert(ctx context.Context, d models.IndexedDataset) error
	ListActive(ctx context.Context) ([]models.IndexedDataset, error)
	ReplaceAll(ctx context.Context, rows []models.IndexedDataset) error
}

// Metrics records pipeline outcomes
type Metrics interface {
	RecordUpload(result string)
	RecordDownload(result string)
	RecordDuration(stage string, start time.Time)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RecordUpload(string) {}
func (NopMetrics) RecordDownload(string) {}
func (NopMetrics) RecordDuration(string, time.Time) {}
