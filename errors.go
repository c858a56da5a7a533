package market

import "errors"

var (
	// ErrAssetNotWhitelisted means the collection or the payment token is
	// not approved for trading.
	ErrAssetNotWhitelisted = errors.New("asset not whitelisted")

	// ErrOrderExpired means the order deadline has passed.
	ErrOrderExpired = errors.New("order expired")

	// ErrInvalidSignature means signer recovery failed or the recovered
	// signer is not the order's seller.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInsufficientPayment means the native value attached to a
	// settlement is below the current price.
	ErrInsufficientPayment = errors.New("insufficient payment")

	// ErrTransferFailed means the asset ledger rejected one of the value
	// movements; nothing was applied.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrUnauthorized means the caller is not the market administrator.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidFeeRate means a fee rate above 100% was supplied.
	ErrInvalidFeeRate = errors.New("invalid fee rate")
)
