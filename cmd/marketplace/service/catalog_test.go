package service

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/healthchain/marketplace/cmd/marketplace/models"
	"github.com/healthchain/marketplace/common/apperr"
	"github.com/healthchain/marketplace/common/cache"
	"github.com/healthchain/marketplace/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	mu   sync.Mutex
	rows map[uint64]models.IndexedDataset
	err  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{rows: make(map[uint64]models.IndexedDataset)}
}

func (f *fakeIndex) Upsert(ctx context.Context, d models.IndexedDataset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[d.DatasetID] = d
	return f.err
}

func (f *fakeIndex) ListActive(ctx context.Context) ([]models.IndexedDataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.IndexedDataset
	for _, r := range f.rows {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatasetID < out[j].DatasetID })
	return out, nil
}

func (f *fakeIndex) ReplaceAll(ctx context.Context, rows []models.IndexedDataset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = make(map[uint64]models.IndexedDataset)
	for _, r := range rows {
		f.rows[r.DatasetID] = r
	}
	return f.err
}

// seed uploads three datasets with distinct prices and categories
func seed(t *testing.T, h *harness) {
	t.Helper()
	for _, d := range []struct{ price, category string }{
		{"0.5", "cardiology"},
		{"0.1", "oncology"},
		{"2", "cardiology"},
	} {
		job := h.spool(t, "data.csv", []byte("a,b\n"))
		job.Price = d.price
		job.Metadata = `{"category":"` + d.category + `"}`
		_, err := h.upload.HandleUpload(context.Background(), job)
		require.NoError(t, err)
	}
}

func ids(infos []models.DatasetInfo) []uint64 {
	out := make([]uint64, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.DatasetID)
	}
	return out
}

func listQuery(t *testing.T, raw string) *models.ListQuery {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	q, err := ParseListQuery(values)
	require.NoError(t, err)
	return q
}

func TestGetDatasetInfo_PublicView(t *testing.T) {
	h := newHarness(t, withInlineKeys())
	res := h.mustUpload(t, "hello.txt", []byte("hello12345"))

	info, err := h.catalog.GetDatasetInfo(context.Background(), *res.DatasetID)
	require.NoError(t, err)

	assert.Equal(t, *res.DatasetID, info.DatasetID)
	assert.Equal(t, "0.1", info.Price)
	assert.Equal(t, "1", info.Version)
	assert.True(t, info.IsActive)
	assert.NotContains(t, string(info.Metadata), "encryptionKey")
	assert.NotContains(t, string(info.Metadata), res.IpfsHash)
	assert.Contains(t, string(info.Metadata), `"originalFilename":"hello.txt"`)
}

func TestGetDatasetInfo_UnknownIDIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.catalog.GetDatasetInfo(context.Background(), 42)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetDatasetInfo_Cached(t *testing.T) {
	mem := cache.NewMemoryCache(logger.Discard())
	defer mem.Close()
	h := newHarness(t, withCache(mem))
	res := h.mustUpload(t, "hello.txt", []byte("hello12345"))
	ctx := context.Background()

	_, err := h.catalog.GetDatasetInfo(ctx, *res.DatasetID)
	require.NoError(t, err)

	h.ledger.SetActive(*res.DatasetID, false)

	info, err := h.catalog.GetDatasetInfo(ctx, *res.DatasetID)
	require.NoError(t, err)
	assert.True(t, info.IsActive, "second read is served from cache")

	_, ok, err := mem.Get(ctx, infoCacheKey(*res.DatasetID))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListDatasets_SortAndPage(t *testing.T) {
	h := newHarness(t)
	seed(t, h)
	ctx := context.Background()

	all, err := h.catalog.ListDatasets(ctx, listQuery(t, ""))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids(all))

	byPrice, err := h.catalog.ListDatasets(ctx, listQuery(t, "sortBy=price"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 3}, ids(byPrice))

	desc, err := h.catalog.ListDatasets(ctx, listQuery(t, "sortBy=price&sortOrder=DESC"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 1, 2}, ids(desc))

	page, err := h.catalog.ListDatasets(ctx, listQuery(t, "sortBy=price&limit=1&offset=1"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids(page))

	past, err := h.catalog.ListDatasets(ctx, listQuery(t, "offset=10"))
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestListDatasets_SkipsInactive(t *testing.T) {
	h := newHarness(t)
	seed(t, h)
	h.ledger.SetActive(2, false)

	all, err := h.catalog.ListDatasets(context.Background(), listQuery(t, ""))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, ids(all))
}

func TestListDatasets_Filter(t *testing.T) {
	h := newHarness(t)
	seed(t, h)
	ctx := context.Background()

	got, err := h.catalog.ListDatasets(ctx, listQuery(t, url.Values{
		"filter": {`metadata.category == "cardiology" && price < 1.0`},
	}.Encode()))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids(got))

	// rows without the key do not match
	got, err = h.catalog.ListDatasets(ctx, listQuery(t, url.Values{
		"filter": {`metadata.missing == "x"`},
	}.Encode()))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = h.catalog.ListDatasets(ctx, listQuery(t, "filter=price+%2B"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.catalog.ListDatasets(ctx, listQuery(t, "filter=price"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListDatasets_UsesIndexAndFallsBack(t *testing.T) {
	idx := newFakeIndex()
	h := newHarness(t, withIndex(idx))
	seed(t, h)
	ctx := context.Background()

	// the ledger no longer lists dataset 2, the index still does
	h.ledger.SetActive(2, false)
	got, err := h.catalog.ListDatasets(ctx, listQuery(t, ""))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids(got))

	idx.err = errors.New("connection refused")
	got, err = h.catalog.ListDatasets(ctx, listQuery(t, ""))
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, ids(got))
}

func TestReindex(t *testing.T) {
	idx := newFakeIndex()
	h := newHarness(t, withIndex(idx))
	seed(t, h)
	h.ledger.SetActive(2, false)

	n, err := h.catalog.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := idx.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(3), rows[1].DatasetID)
}

func TestReindex_DisabledIndex(t *testing.T) {
	h := newHarness(t)
	_, err := h.catalog.Reindex(context.Background())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUserLicenses(t *testing.T) {
	h := newHarness(t)
	res := h.mustUpload(t, "hello.txt", []byte("hello12345"))
	h.license(*res.DatasetID, buyerAddr)
	h.ledger.GrantLicense(buyerAddr, 77, -time.Hour)

	views, err := h.catalog.UserLicenses(context.Background(), buyerAddr)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, *res.DatasetID, views[0].DatasetID)
	assert.True(t, views[0].IsValid)
	require.NotNil(t, views[0].DatasetInfo)
	assert.Equal(t, "Research use only", views[0].DatasetInfo.LicenseTerms)

	assert.Equal(t, uint64(77), views[1].DatasetID)
	assert.False(t, views[1].IsValid)
	assert.Nil(t, views[1].DatasetInfo)
}

func TestVerifyLicense(t *testing.T) {
	h := newHarness(t)
	res := h.mustUpload(t, "hello.txt", []byte("hello12345"))
	ctx := context.Background()

	ok, err := h.catalog.VerifyLicense(ctx, *res.DatasetID, buyerAddr)
	require.NoError(t, err)
	assert.False(t, ok)

	h.license(*res.DatasetID, buyerAddr)
	ok, err = h.catalog.VerifyLicense(ctx, *res.DatasetID, buyerAddr)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.catalog.VerifyLicense(ctx, 1, "bob")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLedgerStatus(t *testing.T) {
	h := newHarness(t)
	seed(t, h)

	st, err := h.catalog.LedgerStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "31337", st.ChainID)
	assert.Equal(t, uint64(3), st.DatasetCount)
	assert.Equal(t, providerAddr, st.Signer)
}
