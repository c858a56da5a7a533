package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Administrative operations. Every call takes the caller identity
// explicitly and fails closed with ErrUnauthorized for anyone but the
// configured admin. Changes take effect for the next settlement attempt;
// in-flight attempts keep the values they already read.

func (m *Market) requireAdmin(caller common.Address) error {
	if caller != m.cfg.Admin {
		return ErrUnauthorized
	}
	return nil
}

// SetWhitelisted approves or revokes an asset for trading, as a collection
// or as a payment token.
func (m *Market) SetWhitelisted(ctx context.Context, caller, asset common.Address, ok bool) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	if err := m.registry.SetWhitelisted(ctx, asset, ok); err != nil {
		return fmt.Errorf("set whitelist: %w", err)
	}
	ev := newAdminEvent(EventWhitelistUpdated, caller, m.cfg.Now().Unix())
	ev.Asset = asset
	ev.Enabled = ok
	m.cfg.Logger.WithFields(ev.fields()).Info("whitelist updated")
	return nil
}

// SetCollectionFee sets a collection's fee rate in parts per ten thousand.
func (m *Market) SetCollectionFee(ctx context.Context, caller, collection common.Address, rate uint64) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	if rate > FeeDenominator {
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidFeeRate, rate, FeeDenominator)
	}
	if err := m.registry.SetCollectionFeeRate(ctx, collection, rate); err != nil {
		return fmt.Errorf("set collection fee: %w", err)
	}
	ev := newAdminEvent(EventCollectionFeeSet, caller, m.cfg.Now().Unix())
	ev.Asset = collection
	ev.Rate = rate
	m.cfg.Logger.WithFields(ev.fields()).Info("collection fee updated")
	return nil
}

// SetFeeRecipient changes where fees are paid.
func (m *Market) SetFeeRecipient(ctx context.Context, caller, recipient common.Address) error {
	if err := m.requireAdmin(caller); err != nil {
		return err
	}
	if err := m.registry.SetFeeRecipient(ctx, recipient); err != nil {
		return fmt.Errorf("set fee recipient: %w", err)
	}
	ev := newAdminEvent(EventFeeRecipientUpdated, caller, m.cfg.Now().Unix())
	ev.Asset = recipient
	m.cfg.Logger.WithFields(ev.fields()).Info("fee recipient updated")
	return nil
}

// SweepNative moves the market's whole native balance, accumulated fees
// and unrefunded payment excess, to the fee recipient. Returns the amount
// swept.
func (m *Market) SweepNative(ctx context.Context, caller common.Address) (*big.Int, error) {
	if err := m.requireAdmin(caller); err != nil {
		return nil, err
	}
	balance, err := m.ledger.NativeBalance(ctx, m.cfg.MarketAddress)
	if err != nil {
		return nil, fmt.Errorf("read native balance: %w", err)
	}
	if err := m.sweep(ctx, func(tx LedgerTx, to common.Address) error {
		return tx.TransferNative(to, balance)
	}); err != nil {
		return nil, err
	}
	ev := newAdminEvent(EventSweep, caller, m.cfg.Now().Unix())
	ev.Amount = balance
	m.cfg.Logger.WithFields(ev.fields()).Info("native balance swept")
	return balance, nil
}

// SweepFungible moves the market's whole balance of one fungible token to
// the fee recipient. Returns the amount swept.
func (m *Market) SweepFungible(ctx context.Context, caller, token common.Address) (*big.Int, error) {
	if err := m.requireAdmin(caller); err != nil {
		return nil, err
	}
	balance, err := m.ledger.BalanceOf(ctx, token, m.cfg.MarketAddress)
	if err != nil {
		return nil, fmt.Errorf("read token balance: %w", err)
	}
	if err := m.sweep(ctx, func(tx LedgerTx, to common.Address) error {
		return tx.TransferFungible(token, m.cfg.MarketAddress, to, balance)
	}); err != nil {
		return nil, err
	}
	ev := newAdminEvent(EventSweep, caller, m.cfg.Now().Unix())
	ev.Asset = token
	ev.Amount = balance
	m.cfg.Logger.WithFields(ev.fields()).Info("token balance swept")
	return balance, nil
}

func (m *Market) sweep(ctx context.Context, move func(tx LedgerTx, to common.Address) error) error {
	recipient, err := m.registry.FeeRecipient(ctx)
	if err != nil {
		return fmt.Errorf("read fee recipient: %w", err)
	}
	tx, err := m.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Discard()
	if err := move(tx, recipient); err != nil {
		return fmt.Errorf("%w: sweep: %v", ErrTransferFailed, err)
	}
	return tx.Commit()
}
