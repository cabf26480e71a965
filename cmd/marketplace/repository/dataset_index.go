package repository

import (
	"context"
	"fmt"

	"github.com/healthchain/marketplace/cmd/marketplace/models"
	"github.com/healthchain/marketplace/common/db"
	"github.com/jackc/pgx/v5"
)

// Schema creates the dataset index table
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS dataset_index (
		dataset_id    BIGINT PRIMARY KEY,
		content_id    TEXT NOT NULL,
		metadata      TEXT NOT NULL,
		license_terms TEXT NOT NULL,
		provider      TEXT NOT NULL,
		price_wei     NUMERIC(78, 0) NOT NULL,
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		version       BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		indexed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS dataset_index_active_idx ON dataset_index (is_active, dataset_id)`,
}

// EnsureSchema applies Schema; it is safe to run on every start
func EnsureSchema(database *db.DB) error {
	return database.ExecAll(context.Background(), Schema...)
}

// DatasetIndexRepository handles database operations for the dataset index
type DatasetIndexRepository struct {
	db *db.DB
}

// NewDatasetIndexRepository creates a new dataset index repository
func NewDatasetIndexRepository(db *db.DB) *DatasetIndexRepository {
	return &DatasetIndexRepository{db: db}
}

const upsertQuery = `
	INSERT INTO dataset_index (dataset_id, content_id, metadata, license_terms, provider, price_wei, is_active, version, created_at)
	VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
	ON CONFLICT (dataset_id) DO UPDATE
	SET content_id = EXCLUDED.content_id,
	    metadata = EXCLUDED.metadata,
	    license_terms = EXCLUDED.license_terms,
	    provider = EXCLUDED.provider,
	    price_wei = EXCLUDED.price_wei,
	    is_active = EXCLUDED.is_active,
	    version = EXCLUDED.version,
	    created_at = EXCLUDED.created_at,
	    indexed_at = NOW()
`

// Upsert inserts or refreshes one dataset row
func (r *DatasetIndexRepository) Upsert(ctx context.Context, d models.IndexedDataset) error {
	_, err := r.db.Exec(ctx, upsertQuery, upsertArgs(d)...)
	if err != nil {
		return fmt.Errorf("failed to upsert dataset %d: %w", d.DatasetID, err)
	}
	return nil
}

// ListActive returns active datasets in id order
func (r *DatasetIndexRepository) ListActive(ctx context.Context) ([]models.IndexedDataset, error) {
	query := `
		SELECT dataset_id, content_id, metadata, license_terms, provider, price_wei::text, is_active, version, created_at
		FROM dataset_index
		WHERE is_active
		ORDER BY dataset_id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var out []models.IndexedDataset
	for rows.Next() {
		var d models.IndexedDataset
		var id, version int64
		if err := rows.Scan(
			&id,
			&d.ContentID,
			&d.Metadata,
			&d.LicenseTerms,
			&d.Provider,
			&d.PriceWei,
			&d.Active,
			&version,
			&d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		d.DatasetID = uint64(id)
		d.Version = uint64(version)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return out, nil
}

// ReplaceAll swaps the index contents for rows in one transaction
func (r *DatasetIndexRepository) ReplaceAll(ctx context.Context, rows []models.IndexedDataset) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM dataset_index`); err != nil {
			return fmt.Errorf("failed to clear dataset index: %w", err)
		}

		if len(rows) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, d := range rows {
			batch.Queue(upsertQuery, upsertArgs(d)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to load dataset index: %w", err)
		}
		return nil
	})
}

func upsertArgs(d models.IndexedDataset) []any {
	return []any{
		int64(d.DatasetID),
		d.ContentID,
		d.Metadata,
		d.LicenseTerms,
		d.Provider,
		d.PriceWei,
		d.Active,
		int64(d.Version),
		d.CreatedAt,
	}
}
