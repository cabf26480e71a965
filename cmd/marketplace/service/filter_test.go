package service

import (
	"math/big"
	"testing"

	"github.com/healthchain/marketplace/common/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetFilter(t *testing.T) {
	f, err := NewDatasetFilter()
	require.NoError(t, err)

	d := ledger.Dataset{
		ID:           1,
		Metadata:     `{"category":"oncology","rows":1200,"encryptionKey":"k"}`,
		LicenseTerms: "Research use only",
		Provider:     providerAddr,
		PriceWei:     big.NewInt(250000000000000000),
		Version:      2,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`price == 0.25`, true},
		{`price > 1.0`, false},
		{`version >= 2`, true},
		{`licenseTerms.contains("Research")`, true},
		{`metadata.category == "oncology" && metadata.rows > 1000.0`, true},
		{`provider.startsWith("0x1111")`, true},
		{`has(metadata.encryptionKey)`, false},
		{`metadata.absent == 1`, false},
	}
	for _, tt := range tests {
		prg, err := f.Compile(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, f.Match(prg, d), tt.expr)
	}
	assert.Equal(t, len(tests), f.CacheSize())

	_, err = f.Compile(`price`)
	assert.Error(t, err)
	_, err = f.Compile(`unknownVar == 1`)
	assert.Error(t, err)
}
