// Package market implements a peer-to-peer asset-swap settlement engine: a
// seller signs a sale order off-chain and any buyer holding the signature
// can settle it atomically, at a fixed or Dutch-auction price, against
// injected registry and asset-ledger capabilities.
package market

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/fixedmarket/market-go/chain"
)

// Market is the settlement core. It owns no asset state itself; every
// balance, ownership and nonce read or write goes through the injected
// Registry and AssetLedger capabilities.
type Market struct {
	cfg      Config
	domain   *chain.Domain
	registry Registry
	ledger   AssetLedger
	metrics  *metrics
}

// New wires a Market from its capabilities. The registry and ledger are
// required; logging and metrics are optional.
func New(cfg Config, registry Registry, ledger AssetLedger) (*Market, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, &InvalidConfigError{Message: "registry is required"}
	}
	if ledger == nil {
		return nil, &InvalidConfigError{Message: "asset ledger is required"}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = silentLogger()
	}

	return &Market{
		cfg:      cfg,
		domain:   chain.NewDomain(big.NewInt(cfg.ChainID), cfg.MarketAddress),
		registry: registry,
		ledger:   ledger,
		metrics:  newMetrics(cfg.Metrics),
	}, nil
}

// Domain exposes the signing domain so maker tooling can produce digests
// identical to the ones the market verifies.
func (m *Market) Domain() *chain.Domain {
	return m.domain
}

// Nonce returns the seller's current replay counter: the value their next
// signature must be bound to.
func (m *Market) Nonce(ctx context.Context, seller common.Address) (uint64, error) {
	return m.registry.Nonce(ctx, seller)
}

// PreviewPrice returns the price the order would settle at right now.
func (m *Market) PreviewPrice(order *chain.Order) (*big.Int, error) {
	return chain.CurrentPrice(order, m.cfg.Now().Unix())
}

func (m *Market) liveChainID(ctx context.Context) *big.Int {
	if m.cfg.LiveChainID == nil {
		return nil
	}
	return m.cfg.LiveChainID(ctx)
}

func (m *Market) reject(reason string, err error) error {
	m.metrics.rejections.WithLabelValues(reason).Inc()
	return err
}

// ExecuteSwap settles a signed order for buyer. paymentSupplied is the
// native value attached to the attempt and is only consulted for
// native-payment orders; any excess over the current price is retained by
// the market, not refunded, and is recoverable through SweepNative.
//
// The seller's replay nonce is consumed the moment signature verification
// succeeds. A later failure (say, a rejected transfer) does not restore
// it, so the same signature can never be retried: replay safety is chosen
// over retryability. All ledger movements commit together or not at all.
func (m *Market) ExecuteSwap(ctx context.Context, buyer common.Address, order *chain.Order, sig chain.Signature, paymentSupplied *big.Int) (*Settlement, error) {
	if err := order.Validate(); err != nil {
		return nil, m.reject(reasonMalformed, err)
	}

	if err := m.checkWhitelist(ctx, order); err != nil {
		return nil, err
	}

	now := m.cfg.Now().Unix()
	if big.NewInt(now).Cmp(order.Deadline) >= 0 {
		return nil, m.reject(reasonExpired, ErrOrderExpired)
	}

	nonce, err := m.registry.Nonce(ctx, order.Seller)
	if err != nil {
		return nil, m.reject(reasonRegistry, fmt.Errorf("read nonce: %w", err))
	}
	digest := m.domain.SigningDigest(m.liveChainID(ctx), order, new(big.Int).SetUint64(nonce))
	signer := chain.RecoverSigner(digest, sig)
	if signer == (common.Address{}) || signer != order.Seller {
		return nil, m.reject(reasonBadSignature, ErrInvalidSignature)
	}

	// The signature is spent from here on, success or not.
	if err := m.registry.IncrementNonce(ctx, order.Seller); err != nil {
		return nil, m.reject(reasonRegistry, fmt.Errorf("increment nonce: %w", err))
	}

	price, err := chain.CurrentPrice(order, now)
	if err != nil {
		return nil, m.reject(reasonArithmetic, err)
	}

	fee, err := m.computeFee(ctx, order.Collection, price)
	if err != nil {
		return nil, err
	}
	proceeds := new(big.Int).Sub(price, fee)

	recipient, err := m.registry.FeeRecipient(ctx)
	if err != nil {
		return nil, m.reject(reasonRegistry, fmt.Errorf("read fee recipient: %w", err))
	}

	tx, err := m.ledger.Begin(ctx)
	if err != nil {
		return nil, m.reject(reasonLedger, fmt.Errorf("begin ledger tx: %w", err))
	}
	defer tx.Discard()

	if order.IsNative() {
		if paymentSupplied == nil || paymentSupplied.Cmp(price) < 0 {
			return nil, m.reject(reasonUnderpaid, ErrInsufficientPayment)
		}
		if err := tx.TransferNative(order.Seller, proceeds); err != nil {
			return nil, m.reject(reasonTransfer, fmt.Errorf("%w: pay seller: %v", ErrTransferFailed, err))
		}
	} else {
		if err := tx.TransferFungible(order.PayToken, buyer, order.Seller, proceeds); err != nil {
			return nil, m.reject(reasonTransfer, fmt.Errorf("%w: pay seller: %v", ErrTransferFailed, err))
		}
		if fee.Sign() > 0 {
			if err := tx.TransferFungible(order.PayToken, buyer, recipient, fee); err != nil {
				return nil, m.reject(reasonTransfer, fmt.Errorf("%w: pay fee: %v", ErrTransferFailed, err))
			}
		}
	}

	if err := tx.TransferNonFungible(order.Collection, order.Seller, buyer, order.TokenID); err != nil {
		return nil, m.reject(reasonTransfer, fmt.Errorf("%w: deliver token: %v", ErrTransferFailed, err))
	}

	if err := tx.Commit(); err != nil {
		return nil, m.reject(reasonLedger, fmt.Errorf("commit ledger tx: %w", err))
	}

	s := &Settlement{
		ID:         uuid.New().String(),
		Seller:     order.Seller,
		Buyer:      buyer,
		Collection: order.Collection,
		PayToken:   order.PayToken,
		TokenID:    new(big.Int).Set(order.TokenID),
		Price:      price,
		Fee:        fee,
		Deadline:   new(big.Int).Set(order.Deadline),
		SettledAt:  now,
	}
	m.metrics.settlements.Inc()
	m.cfg.Logger.WithFields(s.fields()).Info("swap settled")
	return s, nil
}

func (m *Market) checkWhitelist(ctx context.Context, order *chain.Order) error {
	ok, err := m.registry.IsWhitelisted(ctx, order.Collection)
	if err != nil {
		return m.reject(reasonRegistry, fmt.Errorf("read whitelist: %w", err))
	}
	if !ok {
		return m.reject(reasonNotWhitelisted, fmt.Errorf("%w: collection %s", ErrAssetNotWhitelisted, order.Collection.Hex()))
	}
	// Native payment is always accepted; only ERC-20 payment tokens need
	// a whitelist entry.
	if !order.IsNative() {
		ok, err = m.registry.IsWhitelisted(ctx, order.PayToken)
		if err != nil {
			return m.reject(reasonRegistry, fmt.Errorf("read whitelist: %w", err))
		}
		if !ok {
			return m.reject(reasonNotWhitelisted, fmt.Errorf("%w: payment token %s", ErrAssetNotWhitelisted, order.PayToken.Hex()))
		}
	}
	return nil
}

func (m *Market) computeFee(ctx context.Context, collection common.Address, price *big.Int) (*big.Int, error) {
	rate, err := m.registry.CollectionFeeRate(ctx, collection)
	if err != nil {
		return nil, m.reject(reasonRegistry, fmt.Errorf("read fee rate: %w", err))
	}
	if rate > FeeDenominator {
		return nil, m.reject(reasonArithmetic, &chain.ArithmeticError{Op: "fee", Reason: "rate above denominator"})
	}
	fee, err := chain.MulDiv(price, new(big.Int).SetUint64(rate), big.NewInt(FeeDenominator))
	if err != nil {
		return nil, m.reject(reasonArithmetic, err)
	}
	return fee, nil
}

// Verify is a read-only preview of whether an order would settle for buyer
// right now: auction start, whitelist, deadline, current token ownership,
// buyer balance (skipped for native orders or a zero buyer) and signature
// against the current unconsumed nonce. State can change between preview
// and settlement, so a true result is not a settlement guarantee.
func (m *Market) Verify(ctx context.Context, buyer common.Address, order *chain.Order, sig chain.Signature) bool {
	if order.Validate() != nil {
		return false
	}

	now := m.cfg.Now().Unix()
	if order.Start.Sign() != 0 && big.NewInt(now).Cmp(order.Start) < 0 {
		return false
	}

	if ok, err := m.registry.IsWhitelisted(ctx, order.Collection); err != nil || !ok {
		return false
	}
	if !order.IsNative() {
		if ok, err := m.registry.IsWhitelisted(ctx, order.PayToken); err != nil || !ok {
			return false
		}
	}

	if big.NewInt(now).Cmp(order.Deadline) >= 0 {
		return false
	}

	owner, err := m.ledger.OwnerOf(ctx, order.Collection, order.TokenID)
	if err != nil || owner != order.Seller {
		return false
	}

	if !order.IsNative() && buyer != (common.Address{}) {
		price, err := chain.CurrentPrice(order, now)
		if err != nil {
			return false
		}
		balance, err := m.ledger.BalanceOf(ctx, order.PayToken, buyer)
		if err != nil || balance.Cmp(price) < 0 {
			return false
		}
	}

	nonce, err := m.registry.Nonce(ctx, order.Seller)
	if err != nil {
		return false
	}
	digest := m.domain.SigningDigest(m.liveChainID(ctx), order, new(big.Int).SetUint64(nonce))
	signer := chain.RecoverSigner(digest, sig)
	return signer != (common.Address{}) && signer == order.Seller
}
