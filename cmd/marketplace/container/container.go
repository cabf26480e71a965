package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/healthchain/marketplace/cmd/marketplace/repository"
	"github.com/healthchain/marketplace/cmd/marketplace/service"
	"github.com/healthchain/marketplace/common/bootstrap"
	"github.com/healthchain/marketplace/common/contentstore"
	"github.com/healthchain/marketplace/common/keyvault"
	"github.com/healthchain/marketplace/common/ledger"
	"github.com/healthchain/marketplace/common/ratelimit"
	"github.com/spf13/afero"
)

// Container holds all initialized adapters and services, built once per
// process
type Container struct {
	// Components
	Components *bootstrap.Components
	Fs         afero.Fs

	// Adapters
	Ledger      ledger.Ledger
	Store       contentstore.Store
	Vault       *keyvault.Vault
	RateLimiter *ratelimit.RateLimiter

	// Repositories, nil when the index is disabled
	IndexRepo *repository.DatasetIndexRepository

	// Services
	UploadService   *service.UploadService
	AccessService   *service.AccessService
	CatalogService  *service.CatalogService
	ProviderService *service.ProviderService
}

// NewContainer initializes all adapters and services once. Cleanup for
// everything it opens is registered on components.
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	return NewContainerWithFs(ctx, components, afero.NewOsFs())
}

// NewContainerWithFs is NewContainer with an explicit upload filesystem
func NewContainerWithFs(ctx context.Context, components *bootstrap.Components, fs afero.Fs) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	if err := fs.MkdirAll(cfg.Upload.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	l, err := newLedger(ctx, components)
	if err != nil {
		return nil, err
	}

	store, err := newStore(components)
	if err != nil {
		return nil, err
	}

	var vault *keyvault.Vault
	if cfg.Vault.MasterSecret != "" {
		vault, err = keyvault.Open(cfg.Vault.Path, cfg.Vault.MasterSecret, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open key vault: %w", err)
		}
		components.AddCleanup(vault.Close)
	} else if !cfg.Vault.LegacyInlineKeys {
		return nil, fmt.Errorf("key vault requires VAULT_MASTER_KEY")
	}

	var index service.DatasetIndex
	var indexRepo *repository.DatasetIndexRepository
	if components.DB != nil {
		indexRepo = repository.NewDatasetIndexRepository(components.DB)
		index = indexRepo
	}

	var metrics service.Metrics = service.NopMetrics{}
	if components.Telemetry != nil {
		metrics = components.Telemetry
	}

	var rateLimiter *ratelimit.RateLimiter
	if components.Redis != nil {
		rateLimiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log)
	}

	filter, err := service.NewDatasetFilter()
	if err != nil {
		return nil, err
	}

	// Initialize services (bottom-up: dependencies first)
	var custodian service.KeyCustodian
	var resolver service.KeyResolver
	if vault != nil {
		custodian = vault
		resolver = keyvault.NewProvider(vault, l)
	}

	uploadService := service.NewUploadService(fs, store, l, custodian, service.UploadOptions{
		Limits: service.UploadLimits{
			MaxBytes:          cfg.Upload.MaxBytes,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
		},
		InlineKeys: cfg.Vault.LegacyInlineKeys,
		Index:      index,
		Metrics:    metrics,
	}, log)

	accessService := service.NewAccessService(store, l, resolver, service.AccessOptions{
		ServeUndecryptable: cfg.Access.ServeUndecryptable,
		Metrics:            metrics,
	}, log)

	catalogService := service.NewCatalogService(l, filter, service.CatalogOptions{
		Cache:    components.Cache,
		CacheTTL: cfg.Cache.DefaultTTL,
		Index:    index,
	}, log)

	providerService := service.NewProviderService(l, log)

	return &Container{
		Components:      components,
		Fs:              fs,
		Ledger:          l,
		Store:           store,
		Vault:           vault,
		RateLimiter:     rateLimiter,
		IndexRepo:       indexRepo,
		UploadService:   uploadService,
		AccessService:   accessService,
		CatalogService:  catalogService,
		ProviderService: providerService,
	}, nil
}

func newLedger(ctx context.Context, components *bootstrap.Components) (ledger.Ledger, error) {
	cfg := components.Config.Ledger
	switch cfg.Driver {
	case "memory":
		components.Logger.Warn("using in-memory ledger, records are lost on restart")
		return ledger.NewMemoryLedger("", components.Logger), nil
	case "eth":
		l, err := ledger.Dial(ctx, cfg.RPCURL, ledger.EthConfig{
			PrivateKey:         cfg.PrivateKey,
			DatasetSBTAddress:  cfg.DatasetSBTAddress,
			MarketplaceAddress: cfg.MarketplaceAddress,
			FinalityTimeout:    cfg.FinalityTimeout,
			PollInterval:       cfg.PollInterval,
			GasLimit:           cfg.GasLimit,
		}, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ledger: %w", err)
		}
		components.AddCleanup(func() error {
			l.Close()
			return nil
		})
		return l, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver: %s", cfg.Driver)
	}
}

func newStore(components *bootstrap.Components) (contentstore.Store, error) {
	cfg := components.Config.Store
	switch cfg.Driver {
	case "memory":
		components.Logger.Warn("using in-memory content store, blobs are lost on restart")
		return contentstore.NewMemoryStore(components.Logger), nil
	case "pinata":
		return contentstore.NewPinataStore(contentstore.PinataConfig{
			JWT:          cfg.PinataJWT,
			APIURL:       cfg.APIURL,
			GatewayURL:   cfg.GatewayURL,
			FetchTimeout: cfg.FetchTimeout,
			PutTimeout:   cfg.PutTimeout,
		}, &http.Client{}, components.Logger), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
