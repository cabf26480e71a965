package contentstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/healthchain/marketplace/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPinata(t *testing.T, handler http.HandlerFunc, fetchTimeout time.Duration) *PinataStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewPinataStore(PinataConfig{
		JWT:          "test-jwt",
		APIURL:       srv.URL,
		GatewayURL:   srv.URL,
		FetchTimeout: fetchTimeout,
	}, srv.Client(), logger.Discard())
}

func TestPinataPut_SendsMultipartAndReturnsCID(t *testing.T) {
	wantCID, err := ComputeCID([]byte("ciphertext"))
	require.NoError(t, err)

	store := newTestPinata(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pinning/pinFileToIPFS", r.URL.Path)
		assert.Equal(t, "Bearer test-jwt", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "ciphertext", string(body))
		assert.Equal(t, "trial.csv", hdr.Filename)

		var meta pinataMetadata
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("pinataMetadata")), &meta))
		assert.Equal(t, "trial.csv", meta.Name)
		assert.Equal(t, "true", meta.KeyValues["encrypted"])
		assert.NotEmpty(t, meta.KeyValues["uploadedAt"])

		var opts pinataOptions
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("pinataOptions")), &opts))
		assert.Equal(t, 0, opts.CIDVersion)

		_ = json.NewEncoder(w).Encode(map[string]any{"IpfsHash": wantCID, "PinSize": 10})
	}, 0)

	got, err := store.Put(context.Background(), []byte("ciphertext"), "trial.csv")
	require.NoError(t, err)
	assert.Equal(t, wantCID, got)
}

func TestPinataPut_ClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad jwt"}`, KindAuth},
		{"quota", http.StatusTooManyRequests, `{"error":"slow down"}`, KindQuota},
		{"server", http.StatusBadGateway, ``, KindUnavailable},
		{"bad cid", http.StatusOK, `{"IpfsHash":"not-a-cid"}`, KindInvalidResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newTestPinata(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, 0)

			_, err := store.Put(context.Background(), []byte("x"), "x.csv")
			require.Error(t, err)
			assert.Equal(t, tc.want, KindOf(err))
		})
	}
}

func TestPinataGet(t *testing.T) {
	store := newTestPinata(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ipfs/QmPresent":
			_, _ = w.Write([]byte("blob"))
		default:
			http.NotFound(w, r)
		}
	}, time.Second)

	data, err := store.Get(context.Background(), "QmPresent")
	require.NoError(t, err)
	assert.Equal(t, "blob", string(data))

	_, err = store.Get(context.Background(), "QmMissing")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestPinataGet_Timeout(t *testing.T) {
	store := newTestPinata(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := store.Get(context.Background(), "QmSlow")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestPinataUnpin_BestEffort(t *testing.T) {
	var calls atomic.Int32
	store := newTestPinata(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/pinning/unpin/QmGone", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}, 0)

	store.Unpin(context.Background(), "QmGone")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPinataHealthCheck(t *testing.T) {
	healthy := newTestPinata(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/testAuthentication", r.URL.Path)
		_, _ = w.Write([]byte(`{"message":"Congratulations!"}`))
	}, 0)
	assert.True(t, healthy.HealthCheck(context.Background()))

	status := healthy.Status(context.Background())
	assert.Equal(t, "pinata", status.Provider)
	assert.True(t, status.Healthy)

	unhealthy := newTestPinata(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, 0)
	assert.False(t, unhealthy.HealthCheck(context.Background()))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(logger.Discard())
	ctx := context.Background()

	id, err := store.Put(ctx, []byte("hello"), "h.txt")
	require.NoError(t, err)
	require.NoError(t, ValidateContentID(id))
	assert.Equal(t, "Qm", id[:2])

	again, err := store.Put(ctx, []byte("hello"), "other.txt")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	data, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	store.Unpin(ctx, id)
	assert.False(t, store.Pinned(id))
	_, err = store.Get(ctx, id)
	assert.Equal(t, KindNotFound, KindOf(err))

	store.FailPuts(io.ErrUnexpectedEOF)
	_, err = store.Put(ctx, []byte("x"), "x")
	assert.Equal(t, KindUnavailable, KindOf(err))
}
