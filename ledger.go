package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetLedger moves native value, fungible balances and non-fungible
// ownership on behalf of the market. Transfers happen inside a LedgerTx so
// a settlement either applies every movement or none of them; individual
// transfers may fail but must never partially apply.
type AssetLedger interface {
	// Begin opens an all-or-nothing transfer transaction.
	Begin(ctx context.Context) (LedgerTx, error)

	// OwnerOf returns the current owner of a non-fungible token.
	OwnerOf(ctx context.Context, collection common.Address, tokenID *big.Int) (common.Address, error)

	// BalanceOf returns owner's balance of a fungible token.
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)

	// NativeBalance returns owner's native-value balance.
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// LedgerTx is a pending group of transfers. Nothing is observable until
// Commit; Discard after Commit is a no-op, so it is safe to defer.
type LedgerTx interface {
	// TransferNative pays native value out of the market's own escrow.
	TransferNative(to common.Address, amount *big.Int) error

	// TransferFungible moves a fungible token between accounts. When from
	// is not the market itself, from must have pre-authorized the market
	// to spend at least amount.
	TransferFungible(token, from, to common.Address, amount *big.Int) error

	// TransferNonFungible moves a non-fungible token. from must currently
	// own it and, unless from is the market itself, have approved the
	// market as operator.
	TransferNonFungible(collection, from, to common.Address, tokenID *big.Int) error

	Commit() error
	Discard()
}
