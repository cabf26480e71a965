package models

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/healthchain/marketplace/common/ledger"
)

// DatasetInfo is the public view of a registry record. The content id is
// never part of it.
type DatasetInfo struct {
	DatasetID    uint64          `json:"datasetId"`
	Metadata     json.RawMessage `json:"metadata"`
	LicenseTerms string          `json:"licenseTerms"`
	Provider     string          `json:"provider"`
	Price        string          `json:"price"`
	IsActive     bool            `json:"isActive"`
	Version      string          `json:"version"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// NewDatasetInfo builds the public view. publicMetadata must already have
// any key material removed.
func NewDatasetInfo(d ledger.Dataset, publicMetadata json.RawMessage) DatasetInfo {
	if len(publicMetadata) == 0 {
		publicMetadata = json.RawMessage("{}")
	}
	return DatasetInfo{
		DatasetID:    d.ID,
		Metadata:     publicMetadata,
		LicenseTerms: d.LicenseTerms,
		Provider:     d.Provider,
		Price:        d.Price(),
		IsActive:     d.Active,
		Version:      strconv.FormatUint(d.Version, 10),
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

// LicenseView is one license with the public info of its dataset
type LicenseView struct {
	LicenseID   uint64       `json:"licenseId"`
	DatasetID   uint64       `json:"datasetId"`
	Licensee    string       `json:"licensee"`
	IssuedAt    time.Time    `json:"issuedAt"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	IsActive    bool         `json:"isActive"`
	IsValid     bool         `json:"isValid"`
	DatasetInfo *DatasetInfo `json:"datasetInfo,omitempty"`
}

// ListQuery narrows and orders the active dataset listing
type ListQuery struct {
	// Limit of zero means unlimited
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
	Filter    string
}

// Download is a resolved dataset ready to be streamed to the requester
type Download struct {
	Data     []byte
	Filename string
	// Encrypted is set when the bytes are ciphertext served without a key
	Encrypted bool
}

// LedgerStatus is the network summary served by /api/ledger/status
type LedgerStatus struct {
	ChainID            string `json:"chainId"`
	BlockNumber        uint64 `json:"blockNumber"`
	Signer             string `json:"signer"`
	Balance            string `json:"balance"`
	DatasetSBTAddress  string `json:"datasetSbtAddress,omitempty"`
	MarketplaceAddress string `json:"marketplaceAddress,omitempty"`
	DatasetCount       uint64 `json:"datasetCount"`
}

// IndexedDataset is one row of the materialized dataset index
type IndexedDataset struct {
	DatasetID    uint64
	ContentID    string
	Metadata     string
	LicenseTerms string
	Provider     string
	PriceWei     string
	Active       bool
	Version      uint64
	CreatedAt    time.Time
}
