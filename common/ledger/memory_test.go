package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/healthchain/marketplace/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	provider = "0x1111111111111111111111111111111111111111"
	licensee = "0x2222222222222222222222222222222222222222"
)

func TestMemoryLedger_RegisterAndRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger(provider, logger.Discard())

	price, err := ParseEther("0.1")
	require.NoError(t, err)

	receipt, err := m.RegisterDataset(ctx, Registration{
		ContentID:    "QmA",
		Metadata:     `{"name":"a"}`,
		LicenseTerms: "Research use only",
		PriceWei:     price,
	})
	require.NoError(t, err)
	require.NotNil(t, receipt.DatasetID)
	assert.Equal(t, uint64(1), *receipt.DatasetID)
	assert.NotEmpty(t, receipt.TxHash)

	second, err := m.RegisterDataset(ctx, Registration{ContentID: "QmB"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), *second.DatasetID)
	assert.NotEqual(t, receipt.TxHash, second.TxHash)

	d, err := m.GetDatasetInfo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "QmA", d.ContentID)
	assert.Equal(t, "0.1", d.Price())
	assert.Equal(t, provider, d.Provider)
	assert.True(t, d.Active)

	count, err := m.DatasetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestMemoryLedger_UnknownIDIsZeroRecord(t *testing.T) {
	m := NewMemoryLedger(provider, logger.Discard())

	d, err := m.GetDatasetInfo(context.Background(), 99)
	require.NoError(t, err)
	assert.True(t, d.IsZero())
	assert.Equal(t, "0.0", d.Price())
}

func TestMemoryLedger_AccessFollowsLicense(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger(provider, logger.Discard())
	_, err := m.RegisterDataset(ctx, Registration{ContentID: "QmA"})
	require.NoError(t, err)

	ok, err := m.CanAccessDataset(ctx, provider, 1)
	require.NoError(t, err)
	assert.True(t, ok, "provider always has access")

	ok, err = m.CanAccessDataset(ctx, licensee, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	m.GrantLicense(licensee, 1, time.Hour)

	ok, err = m.CanAccessDataset(ctx, licensee, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.HasValidLicense(ctx, "0x2222222222222222222222222222222222222222", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	licenses, err := m.GetUserLicenses(ctx, licensee)
	require.NoError(t, err)
	require.Len(t, licenses, 1)
	assert.Equal(t, uint64(1), licenses[0].DatasetID)
}

func TestMemoryLedger_ExpiredLicenseDenied(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger(provider, logger.Discard())
	_, err := m.RegisterDataset(ctx, Registration{ContentID: "QmA"})
	require.NoError(t, err)

	m.GrantLicense(licensee, 1, -time.Minute)

	ok, err := m.CanAccessDataset(ctx, licensee, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLedger_ListAllActive(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger(provider, logger.Discard())
	for _, cid := range []string{"QmA", "QmB", "QmC"} {
		_, err := m.RegisterDataset(ctx, Registration{ContentID: cid})
		require.NoError(t, err)
	}
	m.SetActive(2, false)

	active, err := m.ListAllActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "QmA", active[0].ContentID)
	assert.Equal(t, "QmC", active[1].ContentID)
}

func TestMemoryLedger_Providers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger(provider, logger.Discard())

	ok, err := m.IsDatasetProvider(ctx, provider)
	require.NoError(t, err)
	assert.False(t, ok)

	receipt, err := m.RegisterAsProvider(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, provider, receipt.Address)

	ok, err = m.IsDatasetProvider(ctx, provider)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.RegisterAsProvider(ctx, provider)
	assert.ErrorIs(t, err, ErrLedger)
}

func TestMemoryLedger_ProviderEnrollmentRefusesOtherAccounts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger(provider, logger.Discard())

	_, err := m.RegisterAsProvider(ctx, licensee)
	assert.ErrorIs(t, err, ErrLedger)
	assert.ErrorIs(t, err, ErrNotSigner)

	ok, err := m.IsDatasetProvider(ctx, licensee)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.RegisterAsProvider(ctx, " "+provider)
	require.NoError(t, err)

	ok, err = m.IsDatasetProvider(ctx, provider)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLedger_RegisterRecordsSigner(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger(provider, logger.Discard())

	receipt, err := m.RegisterDataset(ctx, Registration{ContentID: "QmA", Provider: licensee})
	require.NoError(t, err)
	assert.Equal(t, provider, receipt.Address)
	assert.Equal(t, provider, m.Signer())

	d, err := m.GetDatasetInfo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, provider, d.Provider)

	ok, err := m.CanAccessDataset(ctx, licensee, 1)
	require.NoError(t, err)
	assert.False(t, ok, "declared provider gets no access without a license")
}

func TestMemoryLedger_FailNextWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLedger(provider, logger.Discard())
	m.FailNextWrite(errors.New("out of gas"))

	_, err := m.RegisterDataset(ctx, Registration{ContentID: "QmA"})
	assert.ErrorIs(t, err, ErrLedger)

	receipt, err := m.RegisterDataset(ctx, Registration{ContentID: "QmA"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), *receipt.DatasetID)
}
