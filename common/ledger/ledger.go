// Package ledger reads and writes the dataset registry and license records
// held by the DatasetSBT and Marketplace contracts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Ledger is the registry contract used by the orchestrators
type Ledger interface {
	RegisterDataset(ctx context.Context, reg Registration) (*Receipt, error)
	GetDatasetInfo(ctx context.Context, datasetID uint64) (*Dataset, error)
	HasValidLicense(ctx context.Context, identity string, datasetID uint64) (bool, error)
	CanAccessDataset(ctx context.Context, identity string, datasetID uint64) (bool, error)
	GetUserLicenses(ctx context.Context, identity string) ([]License, error)
	IsDatasetProvider(ctx context.Context, identity string) (bool, error)
	RegisterAsProvider(ctx context.Context, identity string) (*Receipt, error)
	ListAllActive(ctx context.Context) ([]Dataset, error)
	DatasetCount(ctx context.Context) (uint64, error)
	NetworkInfo(ctx context.Context) (*NetworkInfo, error)
}

// Registration is the payload of a registerDataset transaction
type Registration struct {
	ContentID    string
	Metadata     string
	LicenseTerms string
	PriceWei     *big.Int
	Provider     string
}

// Receipt summarizes a confirmed transaction
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	// DatasetID is nil when the DatasetRegistered event was not in the receipt
	DatasetID *uint64
	// Address is the account the transaction acted for
	Address string
}

// Dataset is one registry record. A never-used id yields a zero record.
type Dataset struct {
	ID           uint64
	ContentID    string
	Metadata     string
	LicenseTerms string
	Provider     string
	PriceWei     *big.Int
	Active       bool
	Version      uint64
	CreatedAt    time.Time
}

// Price renders PriceWei in ether units
func (d Dataset) Price() string {
	return FormatEther(d.PriceWei)
}

// IsZero reports whether the record was never written
func (d Dataset) IsZero() bool {
	return d.ContentID == "" && !d.Active && d.Version == 0 && d.CreatedAt.IsZero()
}

// License is one issued license
type License struct {
	ID        uint64
	DatasetID uint64
	Licensee  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Active    bool
}

// Valid reports whether the license authorizes access at now
func (l License) Valid(now time.Time) bool {
	return l.Active && now.Before(l.ExpiresAt)
}

// NetworkInfo describes the connected chain and signer
type NetworkInfo struct {
	ChainID            string
	BlockNumber        uint64
	Signer             string
	Balance            string
	DatasetSBTAddress  string
	MarketplaceAddress string
}

// ErrLedger matches every error returned by a Ledger
var ErrLedger = errors.New("ledger error")

var (
	ErrTimeout  = errors.New("timeout waiting for confirmation")
	ErrReverted = errors.New("transaction reverted")
	// ErrNotSigner rejects a provider enrollment for an account other
	// than the one that signs transactions
	ErrNotSigner = errors.New("identity is not the signing account")
)

// Error is the single ledger failure kind. Cause is a short human-readable
// classification; callers do not branch on it.
type Error struct {
	Op    string
	Cause string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger %s failed (%s): %v", e.Op, e.Cause, e.Err)
	}
	return fmt.Sprintf("ledger %s failed (%s)", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrLedger) true for every *Error
func (e *Error) Is(target error) bool {
	return target == ErrLedger
}

func ledgerErr(op, cause string, err error) *Error {
	return &Error{Op: op, Cause: cause, Err: err}
}
