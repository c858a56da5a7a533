package market

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is the authoritative store for per-seller replay nonces, the
// asset whitelist and per-collection fee rates. Implementations must make
// IncrementNonce durable before returning: once a signature is consumed it
// stays consumed, even if the rest of the settlement aborts.
type Registry interface {
	// Nonce returns the seller's current replay counter. Unknown sellers
	// start at zero.
	Nonce(ctx context.Context, seller common.Address) (uint64, error)

	// IncrementNonce advances the seller's replay counter by one.
	IncrementNonce(ctx context.Context, seller common.Address) error

	// IsWhitelisted reports whether an asset is approved for trading,
	// either as a collection or as a payment token.
	IsWhitelisted(ctx context.Context, asset common.Address) (bool, error)

	// CollectionFeeRate returns the fee for a collection in parts per
	// ten thousand. Unknown collections pay no fee.
	CollectionFeeRate(ctx context.Context, collection common.Address) (uint64, error)

	// FeeRecipient returns the address fees are paid to.
	FeeRecipient(ctx context.Context) (common.Address, error)

	SetWhitelisted(ctx context.Context, asset common.Address, ok bool) error
	SetCollectionFeeRate(ctx context.Context, collection common.Address, rate uint64) error
	SetFeeRecipient(ctx context.Context, recipient common.Address) error
}
