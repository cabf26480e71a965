package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/healthchain/marketplace/common/clients"
	"github.com/healthchain/marketplace/common/logger"
)

const healthTimeout = 10 * time.Second

// PinataConfig holds credentials and endpoints for Pinata
type PinataConfig struct {
	JWT          string
	APIURL       string
	GatewayURL   string
	FetchTimeout time.Duration
	PutTimeout   time.Duration
}

// PinataStore pins blobs through the Pinata HTTP API
type PinataStore struct {
	cfg  PinataConfig
	http *clients.HTTPClient
	log  *logger.Logger
	now  func() time.Time
}

// NewPinataStore creates a Pinata-backed store
func NewPinataStore(cfg PinataConfig, httpClient *http.Client, log *logger.Logger) *PinataStore {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.PutTimeout <= 0 {
		cfg.PutTimeout = 5 * time.Minute
	}
	log = log.WithComponent("pinata")
	return &PinataStore{
		cfg:  cfg,
		http: clients.NewHTTPClient(httpClient, log),
		log:  log,
		now:  time.Now,
	}
}

type pinataMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues"`
}

type pinataOptions struct {
	CIDVersion int `json:"cidVersion"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Put streams data to pinFileToIPFS as multipart form data
func (p *PinataStore) Put(ctx context.Context, data []byte, filenameHint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PutTimeout)
	defer cancel()

	if filenameHint == "" {
		filenameHint = "dataset.bin"
	}

	meta, err := json.Marshal(pinataMetadata{
		Name: filenameHint,
		KeyValues: map[string]string{
			"uploadedAt": p.now().UTC().Format(time.RFC3339),
			"encrypted":  "true",
		},
	})
	if err != nil {
		return "", &StoreError{Kind: KindInvalidResponse, Op: "put", Err: err}
	}
	opts, _ := json.Marshal(pinataOptions{CIDVersion: 0})

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, data, filenameHint, meta, opts))
	}()

	resp, err := p.http.DoRequest(ctx, http.MethodPost, p.cfg.APIURL+"/pinning/pinFileToIPFS", pr,
		clients.WithBearer(p.cfg.JWT),
		clients.WithHeader("Content-Type", mw.FormDataContentType()),
	)
	if err != nil {
		pr.CloseWithError(err)
		return "", transportError(ctx, "put", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", statusError("put", resp)
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &StoreError{Kind: KindInvalidResponse, Op: "put", Status: resp.StatusCode, Err: err}
	}
	if err := ValidateContentID(out.IpfsHash); err != nil {
		return "", &StoreError{Kind: KindInvalidResponse, Op: "put", Status: resp.StatusCode, Err: err}
	}

	p.log.Info("pinned content", "cid", out.IpfsHash, "size", len(data), "pin_size", out.PinSize)
	return out.IpfsHash, nil
}

func writeMultipart(mw *multipart.Writer, data []byte, filename string, meta, opts []byte) error {
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.WriteField("pinataMetadata", string(meta)); err != nil {
		return err
	}
	if err := mw.WriteField("pinataOptions", string(opts)); err != nil {
		return err
	}
	return mw.Close()
}

// Get fetches a blob through the public gateway
func (p *PinataStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	resp, err := p.http.DoRequest(ctx, http.MethodGet, p.cfg.GatewayURL+"/ipfs/"+url.PathEscape(contentID), nil)
	if err != nil {
		return nil, transportError(ctx, "get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError("get", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, "get", err)
	}

	p.log.Debug("fetched content", "cid", contentID, "size", len(data))
	return data, nil
}

// Unpin removes a pin, logging instead of returning failures
func (p *PinataStore) Unpin(ctx context.Context, contentID string) {
	resp, err := p.http.DoRequest(ctx, http.MethodDelete, p.cfg.APIURL+"/pinning/unpin/"+url.PathEscape(contentID), nil,
		clients.WithBearer(p.cfg.JWT),
	)
	if err != nil {
		p.log.Warn("unpin failed", "cid", contentID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		p.log.Warn("unpin rejected", "cid", contentID, "status", resp.StatusCode)
		return
	}
	p.log.Info("unpinned content", "cid", contentID)
}

// HealthCheck calls the authentication test endpoint
func (p *PinataStore) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	resp, err := p.http.DoRequest(ctx, http.MethodGet, p.cfg.APIURL+"/data/testAuthentication", nil,
		clients.WithBearer(p.cfg.JWT),
	)
	if err != nil {
		p.log.Warn("pinata health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Status reports the provider name, gateway and health
func (p *PinataStore) Status(ctx context.Context) Status {
	return Status{
		Provider:   "pinata",
		Healthy:    p.HealthCheck(ctx),
		GatewayURL: p.cfg.GatewayURL,
	}
}

func transportError(ctx context.Context, op string, err error) *StoreError {
	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &StoreError{Kind: kind, Op: op, Err: err}
}

func statusError(op string, resp *http.Response) *StoreError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	kind := KindUnavailable
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		kind = KindAuth
	case resp.StatusCode == http.StatusPaymentRequired, resp.StatusCode == http.StatusTooManyRequests:
		kind = KindQuota
	case resp.StatusCode == http.StatusNotFound:
		kind = KindNotFound
	case resp.StatusCode == http.StatusGatewayTimeout, resp.StatusCode == http.StatusRequestTimeout:
		kind = KindTimeout
	case resp.StatusCode < 500:
		kind = KindInvalidResponse
	}

	var err error
	if len(body) > 0 {
		err = errors.New(string(body))
	}
	return &StoreError{Kind: kind, Op: op, Status: resp.StatusCode, Err: err}
}
