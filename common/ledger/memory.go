package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/healthchain/marketplace/common/logger"
)

// MemoryLedger is an in-process registry with the same read and write
// semantics as the contracts. It backs local development and tests.
type MemoryLedger struct {
	mu        sync.RWMutex
	signer    string
	datasets  []Dataset
	licenses  []License
	providers map[string]bool
	nonce     uint64
	block     uint64
	failNext  error
	now       func() time.Time
	log       *logger.Logger
}

// NewMemoryLedger creates an empty ledger whose signer is signer
func NewMemoryLedger(signer string, log *logger.Logger) *MemoryLedger {
	if signer == "" {
		signer = "0x0000000000000000000000000000000000000001"
	}
	return &MemoryLedger{
		signer:    common.HexToAddress(signer).Hex(),
		providers: make(map[string]bool),
		now:       time.Now,
		log:       log.WithComponent("memory-ledger"),
	}
}

// Signer returns the account recorded as provider on registration
func (m *MemoryLedger) Signer() string {
	return m.signer
}

// FailNextWrite makes the next mutating call fail with err
func (m *MemoryLedger) FailNextWrite(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// GrantLicense issues a license the way a marketplace purchase would
func (m *MemoryLedger) GrantLicense(identity string, datasetID uint64, duration time.Duration) License {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC().Truncate(time.Second)
	lic := License{
		ID:        uint64(len(m.licenses) + 1),
		DatasetID: datasetID,
		Licensee:  normalize(identity),
		IssuedAt:  now,
		ExpiresAt: now.Add(duration),
		Active:    true,
	}
	m.licenses = append(m.licenses, lic)
	return lic
}

// SetActive flips a dataset's active flag
func (m *MemoryLedger) SetActive(datasetID uint64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if datasetID >= 1 && datasetID <= uint64(len(m.datasets)) {
		m.datasets[datasetID-1].Active = active
	}
}

func (m *MemoryLedger) nextTx() (string, uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], m.nonce)
	hash := crypto.Keccak256Hash([]byte(m.signer), buf[:])
	m.nonce++
	m.block++
	return hash.Hex(), m.block
}

func (m *MemoryLedger) takeFailure(op string) error {
	if m.failNext == nil {
		return nil
	}
	err := m.failNext
	m.failNext = nil
	return ledgerErr(op, "reverted", err)
}

// RegisterDataset appends a record and returns its id
func (m *MemoryLedger) RegisterDataset(ctx context.Context, reg Registration) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, ledgerErr("registerDataset", "timeout", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure("registerDataset"); err != nil {
		return nil, err
	}

	// The contract records msg.sender; reg.Provider is informational.
	provider := m.signer
	id := uint64(len(m.datasets) + 1)
	m.datasets = append(m.datasets, Dataset{
		ID:           id,
		ContentID:    reg.ContentID,
		Metadata:     reg.Metadata,
		LicenseTerms: reg.LicenseTerms,
		Provider:     provider,
		PriceWei:     new(big.Int).Set(orZero(reg.PriceWei)),
		Active:       true,
		Version:      1,
		CreatedAt:    m.now().UTC().Truncate(time.Second),
	})

	hash, block := m.nextTx()
	m.log.Debug("dataset registered", "dataset_id", id, "tx", hash)
	return &Receipt{TxHash: hash, BlockNumber: block, GasUsed: 21000, DatasetID: &id, Address: provider}, nil
}

// GetDatasetInfo returns a copy of the record, or a zero record
func (m *MemoryLedger) GetDatasetInfo(ctx context.Context, datasetID uint64) (*Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if datasetID == 0 || datasetID > uint64(len(m.datasets)) {
		return &Dataset{ID: datasetID, PriceWei: new(big.Int)}, nil
	}
	d := m.datasets[datasetID-1]
	d.PriceWei = new(big.Int).Set(d.PriceWei)
	return &d, nil
}

// HasValidLicense checks for an active unexpired license
func (m *MemoryLedger) HasValidLicense(ctx context.Context, identity string, datasetID uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasValidLicense(normalize(identity), datasetID), nil
}

func (m *MemoryLedger) hasValidLicense(identity string, datasetID uint64) bool {
	now := m.now()
	for _, lic := range m.licenses {
		if lic.DatasetID == datasetID && lic.Licensee == identity && lic.Valid(now) {
			return true
		}
	}
	return false
}

// CanAccessDataset allows the provider and valid licensees
func (m *MemoryLedger) CanAccessDataset(ctx context.Context, identity string, datasetID uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	who := normalize(identity)
	if datasetID >= 1 && datasetID <= uint64(len(m.datasets)) && m.datasets[datasetID-1].Provider == who {
		return true, nil
	}
	return m.hasValidLicense(who, datasetID), nil
}

// GetUserLicenses returns licenses in issuance order
func (m *MemoryLedger) GetUserLicenses(ctx context.Context, identity string) ([]License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	who := normalize(identity)
	var out []License
	for _, lic := range m.licenses {
		if lic.Licensee == who {
			out = append(out, lic)
		}
	}
	return out, nil
}

// IsDatasetProvider checks the provider set
func (m *MemoryLedger) IsDatasetProvider(ctx context.Context, identity string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[normalize(identity)], nil
}

// RegisterAsProvider adds the signer to the provider set. Like the
// contract, it refuses any other identity.
func (m *MemoryLedger) RegisterAsProvider(ctx context.Context, identity string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if identity != "" && normalize(identity) != m.signer {
		return nil, ledgerErr("registerAsProvider", "not signer", ErrNotSigner)
	}
	if err := m.takeFailure("registerAsProvider"); err != nil {
		return nil, err
	}
	who := m.signer
	if m.providers[who] {
		return nil, ledgerErr("registerAsProvider", "reverted", errors.New("already a provider"))
	}
	m.providers[who] = true

	hash, block := m.nextTx()
	return &Receipt{TxHash: hash, BlockNumber: block, GasUsed: 21000, Address: who}, nil
}

// DatasetCount returns the number of registered datasets
func (m *MemoryLedger) DatasetCount(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.datasets)), nil
}

// ListAllActive returns active datasets in id order
func (m *MemoryLedger) ListAllActive(ctx context.Context) ([]Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Dataset, 0, len(m.datasets))
	for _, d := range m.datasets {
		if d.Active {
			d.PriceWei = new(big.Int).Set(d.PriceWei)
			out = append(out, d)
		}
	}
	return out, nil
}

// NetworkInfo describes the in-memory chain
func (m *MemoryLedger) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &NetworkInfo{
		ChainID:     "31337",
		BlockNumber: m.block,
		Signer:      m.signer,
		Balance:     "0.0",
	}, nil
}

func normalize(identity string) string {
	identity = strings.TrimSpace(identity)
	if common.IsHexAddress(identity) {
		return common.HexToAddress(identity).Hex()
	}
	return identity
}
