package service

import (
	"context"
	"errors"

	"github.com/healthchain/marketplace/common/apperr"
	"github.com/healthchain/marketplace/common/ledger"
	"github.com/healthchain/marketplace/common/logger"
)

// ProviderRegistration is the outcome of RegisterProvider. Receipt is nil
// when the account was already a provider.
type ProviderRegistration struct {
	AlreadyProvider bool
	Receipt         *ledger.Receipt
}

// ProviderService manages dataset provider enrollment
type ProviderService struct {
	ledger ledger.Ledger
	log    *logger.Logger
}

// NewProviderService creates a new provider service
func NewProviderService(l ledger.Ledger, log *logger.Logger) *ProviderService {
	return &ProviderService{
		ledger: l,
		log:    log.WithComponent("provider"),
	}
}

// RegisterProvider enrolls user as a dataset provider. Enrolling an
// existing provider is a no-op. Only the account that signs ledger
// transactions can be enrolled.
func (s *ProviderService) RegisterProvider(ctx context.Context, user string) (*ProviderRegistration, error) {
	if user == "" {
		return nil, invalid("User address required", "")
	}
	if err := ValidateAddress(user); err != nil {
		return nil, err
	}

	already, err := s.IsProvider(ctx, user)
	if err != nil {
		return nil, err
	}
	if already {
		return &ProviderRegistration{AlreadyProvider: true}, nil
	}

	receipt, err := s.ledger.RegisterAsProvider(ctx, user)
	if errors.Is(err, ledger.ErrNotSigner) {
		return nil, apperr.Wrap(apperr.KindAccessDenied, apperr.StageLedger, err,
			"Provider registration must be sent from the provider's own wallet")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to register as provider")
	}

	s.log.WithContext(ctx).Info("provider registered", "address", receipt.Address, "tx", receipt.TxHash)
	return &ProviderRegistration{Receipt: receipt}, nil
}

// IsProvider reports whether user is an enrolled provider
func (s *ProviderService) IsProvider(ctx context.Context, user string) (bool, error) {
	if err := ValidateAddress(user); err != nil {
		return false, err
	}
	ok, err := s.ledger.IsDatasetProvider(ctx, user)
	if err != nil {
		return false, apperr.Wrap(apperr.KindLedger, apperr.StageLedger, err, "Failed to check provider status")
	}
	return ok, nil
}
