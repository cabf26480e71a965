package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/healthchain/marketplace/common/logger"
)

// ChainClient is the subset of ethclient.Client the ledger needs
type ChainClient interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EthConfig configures an EthLedger
type EthConfig struct {
	PrivateKey         string
	DatasetSBTAddress  string
	MarketplaceAddress string
	FinalityTimeout    time.Duration
	PollInterval       time.Duration
	// GasLimit overrides gas estimation when non-zero
	GasLimit uint64
}

// EthLedger talks to the contracts over JSON-RPC and signs with one key.
// Submissions from that key are serialized so nonces never collide.
type EthLedger struct {
	client    ChainClient
	cfg       EthConfig
	key       *ecdsa.PrivateKey
	signer    common.Address
	sbt       common.Address
	market    common.Address
	hasMarket bool
	chainID   *big.Int
	log       *logger.Logger

	txMu       sync.Mutex
	nextNonce  uint64
	nonceKnown bool
}

type datasetTuple struct {
	IpfsHash     string
	Metadata     string
	LicenseTerms string
	Provider     common.Address
	Price        *big.Int
	IsActive     bool
	Version      *big.Int
	CreatedAt    *big.Int
}

type licenseTuple struct {
	DatasetId *big.Int
	Licensee  common.Address
	IssuedAt  *big.Int
	ExpiresAt *big.Int
	IsActive  bool
}

// Dial connects to rpcURL and builds an EthLedger
func Dial(ctx context.Context, rpcURL string, cfg EthConfig, log *logger.Logger) (*EthLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, ledgerErr("connect", "unreachable", err)
	}
	l, err := NewEthLedger(ctx, client, cfg, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return l, nil
}

// NewEthLedger builds a ledger over an existing client
func NewEthLedger(ctx context.Context, client ChainClient, cfg EthConfig, log *logger.Logger) (*EthLedger, error) {
	if cfg.FinalityTimeout <= 0 {
		cfg.FinalityTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	if !common.IsHexAddress(cfg.DatasetSBTAddress) {
		return nil, fmt.Errorf("invalid DatasetSBT address %q", cfg.DatasetSBTAddress)
	}
	hasMarket := cfg.MarketplaceAddress != ""
	if hasMarket && !common.IsHexAddress(cfg.MarketplaceAddress) {
		return nil, fmt.Errorf("invalid Marketplace address %q", cfg.MarketplaceAddress)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, ledgerErr("connect", "unreachable", err)
	}

	l := &EthLedger{
		client:    client,
		cfg:       cfg,
		key:       key,
		signer:    crypto.PubkeyToAddress(key.PublicKey),
		sbt:       common.HexToAddress(cfg.DatasetSBTAddress),
		market:    common.HexToAddress(cfg.MarketplaceAddress),
		hasMarket: hasMarket,
		chainID:   chainID,
		log:       log.WithComponent("ledger"),
	}

	fields := []any{"chain_id", chainID.String(), "signer", l.signer.Hex(), "dataset_sbt", l.sbt.Hex()}
	if hasMarket {
		fields = append(fields, "marketplace", l.market.Hex())
	}
	if balance, err := client.BalanceAt(ctx, l.signer, nil); err == nil {
		fields = append(fields, "balance", FormatEther(balance))
	}
	l.log.Info("connected to ledger", fields...)

	return l, nil
}

// Close releases the underlying RPC client when it supports closing
func (l *EthLedger) Close() {
	if c, ok := l.client.(interface{ Close() }); ok {
		c.Close()
	}
}

// Signer returns the address transactions are sent from
func (l *EthLedger) Signer() string {
	return l.signer.Hex()
}

// RegisterDataset submits registerDataset and waits for one confirmation.
// The contract records the signer as provider.
func (l *EthLedger) RegisterDataset(ctx context.Context, reg Registration) (*Receipt, error) {
	price := reg.PriceWei
	if price == nil {
		price = new(big.Int)
	}

	data, err := datasetSBTABI.Pack("registerDataset", reg.ContentID, reg.Metadata, reg.LicenseTerms, price)
	if err != nil {
		return nil, ledgerErr("registerDataset", "encode", err)
	}

	receipt, err := l.transact(ctx, "registerDataset", data)
	if err != nil {
		return nil, err
	}

	out := &Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Address:     l.signer.Hex(),
	}
	if id, ok := l.datasetIDFromLogs(receipt.Logs); ok {
		out.DatasetID = &id
	} else {
		l.log.Warn("DatasetRegistered event missing from receipt", "tx", out.TxHash)
	}

	l.log.Info("dataset registered", "tx", out.TxHash, "block", out.BlockNumber, "gas_used", out.GasUsed)
	return out, nil
}

func (l *EthLedger) datasetIDFromLogs(logs []*types.Log) (uint64, bool) {
	event := datasetSBTABI.Events["DatasetRegistered"]
	for _, lg := range logs {
		if lg == nil || lg.Address != l.sbt || len(lg.Topics) < 2 || lg.Topics[0] != event.ID {
			continue
		}
		id := new(big.Int).SetBytes(lg.Topics[1].Bytes())
		if id.IsUint64() {
			return id.Uint64(), true
		}
	}
	return 0, false
}

// GetDatasetInfo reads datasets(id). Unknown ids return a zero record.
func (l *EthLedger) GetDatasetInfo(ctx context.Context, datasetID uint64) (*Dataset, error) {
	raw, err := l.callRaw(ctx, "getDatasetInfo", datasetSBTABI, l.sbt, "datasets", new(big.Int).SetUint64(datasetID))
	if err != nil {
		return nil, err
	}

	var t datasetTuple
	if err := datasetSBTABI.UnpackIntoInterface(&t, "datasets", raw); err != nil {
		return nil, ledgerErr("getDatasetInfo", "decode", err)
	}
	return t.toDataset(datasetID), nil
}

func (t datasetTuple) toDataset(id uint64) *Dataset {
	d := &Dataset{
		ID:           id,
		ContentID:    t.IpfsHash,
		Metadata:     t.Metadata,
		LicenseTerms: t.LicenseTerms,
		PriceWei:     orZero(t.Price),
		Active:       t.IsActive,
		Version:      orZero(t.Version).Uint64(),
		CreatedAt:    unixTime(t.CreatedAt),
	}
	if t.Provider != (common.Address{}) {
		d.Provider = t.Provider.Hex()
	}
	return d
}

// HasValidLicense calls hasValidLicense on the SBT contract
func (l *EthLedger) HasValidLicense(ctx context.Context, identity string, datasetID uint64) (bool, error) {
	return l.callBool(ctx, "hasValidLicense", datasetSBTABI, l.sbt, "hasValidLicense",
		common.HexToAddress(identity), new(big.Int).SetUint64(datasetID))
}

// CanAccessDataset asks the marketplace. Without a marketplace address the
// provider of the dataset or a valid licensee is allowed.
func (l *EthLedger) CanAccessDataset(ctx context.Context, identity string, datasetID uint64) (bool, error) {
	if l.hasMarket {
		return l.callBool(ctx, "canAccessDataset", marketplaceABI, l.market, "canAccessDataset",
			common.HexToAddress(identity), new(big.Int).SetUint64(datasetID))
	}

	d, err := l.GetDatasetInfo(ctx, datasetID)
	if err != nil {
		return false, err
	}
	if d.Provider != "" && strings.EqualFold(d.Provider, identity) {
		return true, nil
	}
	return l.HasValidLicense(ctx, identity, datasetID)
}

// GetUserLicenses resolves each license id held by identity
func (l *EthLedger) GetUserLicenses(ctx context.Context, identity string) ([]License, error) {
	out, err := l.call(ctx, "getUserLicenses", datasetSBTABI, l.sbt, "getUserLicenses", common.HexToAddress(identity))
	if err != nil {
		return nil, err
	}
	ids := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)

	licenses := make([]License, 0, len(ids))
	for _, id := range ids {
		raw, err := l.callRaw(ctx, "getUserLicenses", datasetSBTABI, l.sbt, "licenses", id)
		if err != nil {
			return nil, err
		}
		var t licenseTuple
		if err := datasetSBTABI.UnpackIntoInterface(&t, "licenses", raw); err != nil {
			return nil, ledgerErr("getUserLicenses", "decode", err)
		}
		licenses = append(licenses, License{
			ID:        id.Uint64(),
			DatasetID: orZero(t.DatasetId).Uint64(),
			Licensee:  t.Licensee.Hex(),
			IssuedAt:  unixTime(t.IssuedAt),
			ExpiresAt: unixTime(t.ExpiresAt),
			Active:    t.IsActive,
		})
	}
	return licenses, nil
}

// IsDatasetProvider checks the provider role
func (l *EthLedger) IsDatasetProvider(ctx context.Context, identity string) (bool, error) {
	return l.callBool(ctx, "isDatasetProvider", datasetSBTABI, l.sbt, "isDatasetProvider", common.HexToAddress(identity))
}

// RegisterAsProvider grants the provider role to the signing account. The
// contract enrolls msg.sender, so any other identity is refused with
// ErrNotSigner.
func (l *EthLedger) RegisterAsProvider(ctx context.Context, identity string) (*Receipt, error) {
	if identity != "" && !strings.EqualFold(identity, l.signer.Hex()) {
		return nil, ledgerErr("registerAsProvider", "not signer", ErrNotSigner)
	}

	data, err := datasetSBTABI.Pack("registerAsProvider")
	if err != nil {
		return nil, ledgerErr("registerAsProvider", "encode", err)
	}
	receipt, err := l.transact(ctx, "registerAsProvider", data)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Address:     l.signer.Hex(),
	}, nil
}

// DatasetCount reads datasetCounter
func (l *EthLedger) DatasetCount(ctx context.Context) (uint64, error) {
	out, err := l.call(ctx, "datasetCount", datasetSBTABI, l.sbt, "datasetCounter")
	if err != nil {
		return 0, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int).Uint64(), nil
}

// ListAllActive scans ids 1..datasetCounter and keeps active records.
// One round trip per id. An id that cannot be read is logged and skipped.
func (l *EthLedger) ListAllActive(ctx context.Context) ([]Dataset, error) {
	count, err := l.DatasetCount(ctx)
	if err != nil {
		return nil, err
	}

	datasets := make([]Dataset, 0, count)
	for id := uint64(1); id <= count; id++ {
		d, err := l.GetDatasetInfo(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			l.log.Warn("skipping unreadable dataset", "dataset_id", id, "error", err)
			continue
		}
		if d.Active {
			datasets = append(datasets, *d)
		}
	}
	l.log.Debug("scanned datasets", "counter", count, "active", len(datasets))
	return datasets, nil
}

// NetworkInfo reports chain id, head block and signer balance
func (l *EthLedger) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	block, err := l.client.BlockNumber(ctx)
	if err != nil {
		return nil, ledgerErr("networkInfo", classify(ctx, err), err)
	}
	balance, err := l.client.BalanceAt(ctx, l.signer, nil)
	if err != nil {
		return nil, ledgerErr("networkInfo", classify(ctx, err), err)
	}

	info := &NetworkInfo{
		ChainID:           l.chainID.String(),
		BlockNumber:       block,
		Signer:            l.signer.Hex(),
		Balance:           FormatEther(balance),
		DatasetSBTAddress: l.sbt.Hex(),
	}
	if l.hasMarket {
		info.MarketplaceAddress = l.market.Hex()
	}
	return info, nil
}

func (l *EthLedger) callRaw(ctx context.Context, op string, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]byte, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, ledgerErr(op, "encode", err)
	}
	out, err := l.client.CallContract(ctx, ethereum.CallMsg{From: l.signer, To: &to, Data: data}, nil)
	if err != nil {
		return nil, ledgerErr(op, classify(ctx, err), err)
	}
	return out, nil
}

func (l *EthLedger) call(ctx context.Context, op string, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	raw, err := l.callRaw(ctx, op, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, ledgerErr(op, "decode", err)
	}
	if len(out) == 0 {
		return nil, ledgerErr(op, "decode", errors.New("empty result"))
	}
	return out, nil
}

func (l *EthLedger) callBool(ctx context.Context, op string, contract abi.ABI, to common.Address, method string, args ...interface{}) (bool, error) {
	out, err := l.call(ctx, op, contract, to, method, args...)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// transact submits data to the SBT contract and waits for its receipt
func (l *EthLedger) transact(ctx context.Context, op string, data []byte) (*types.Receipt, error) {
	tx, err := l.submit(ctx, op, data)
	if err != nil {
		return nil, err
	}
	l.log.Info("transaction submitted", "op", op, "tx", tx.Hash().Hex(), "nonce", tx.Nonce())
	return l.waitMined(ctx, op, tx.Hash())
}

// submit signs and sends one transaction while holding txMu. The nonce is
// the larger of the node's pending nonce and the last one used locally.
func (l *EthLedger) submit(ctx context.Context, op string, data []byte) (*types.Transaction, error) {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	nonce, err := l.client.PendingNonceAt(ctx, l.signer)
	if err != nil {
		return nil, ledgerErr(op, classify(ctx, err), fmt.Errorf("pending nonce: %w", err))
	}
	if l.nonceKnown && l.nextNonce > nonce {
		nonce = l.nextNonce
	}

	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, ledgerErr(op, classify(ctx, err), fmt.Errorf("gas price: %w", err))
	}

	gas := l.cfg.GasLimit
	if gas == 0 {
		estimate, err := l.client.EstimateGas(ctx, ethereum.CallMsg{From: l.signer, To: &l.sbt, GasPrice: gasPrice, Data: data})
		if err != nil {
			// Estimation executes the call, so a business-rule revert shows up here.
			return nil, ledgerErr(op, "reverted", fmt.Errorf("estimate gas: %w", err))
		}
		gas = estimate + estimate/5
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &l.sbt,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
	if err != nil {
		return nil, ledgerErr(op, "sign", err)
	}

	if err := l.client.SendTransaction(ctx, signed); err != nil {
		l.nonceKnown = false
		return nil, ledgerErr(op, classify(ctx, err), fmt.Errorf("send transaction: %w", err))
	}

	l.nextNonce = nonce + 1
	l.nonceKnown = true
	return signed, nil
}

// waitMined polls for the receipt until FinalityTimeout elapses
func (l *EthLedger) waitMined(ctx context.Context, op string, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.FinalityTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.PollInterval
	b.MaxInterval = 4 * l.cfg.PollInterval
	b.MaxElapsedTime = 0

	var receipt *types.Receipt
	pollErr := backoff.Retry(func() error {
		r, err := l.client.TransactionReceipt(ctx, hash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				l.log.Debug("receipt poll failed", "tx", hash.Hex(), "error", err)
			}
			return err
		}
		receipt = r
		return nil
	}, backoff.WithContext(b, ctx))

	if receipt == nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ledgerErr(op, "canceled", ctx.Err())
		}
		if ctx.Err() != nil {
			return nil, ledgerErr(op, "timeout", fmt.Errorf("%w: tx %s after %s", ErrTimeout, hash.Hex(), l.cfg.FinalityTimeout))
		}
		return nil, ledgerErr(op, "rpc", pollErr)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, ledgerErr(op, "reverted", fmt.Errorf("%w: tx %s", ErrReverted, hash.Hex()))
	}
	return receipt, nil
}

func classify(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	return "rpc"
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
