package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the payment-asset sentinel for orders settled in the
// chain's native value unit instead of an ERC-20 token.
var NativeToken = common.Address{}

// ErrMalformedOrder is returned for orders that can never settle, such as
// a decaying order whose price would rise over time.
var ErrMalformedOrder = errors.New("malformed order")

// Order is a seller-authored sale offer for a single non-fungible token.
// The seller signs it off-chain together with their current nonce; any
// buyer holding the signature can settle it until Deadline.
type Order struct {
	Seller     common.Address
	Collection common.Address
	// PayToken is the demanded ERC-20, or NativeToken for native value.
	PayToken common.Address
	TokenID  *big.Int
	// StartPrice is the price at listing time, or at auction start.
	StartPrice *big.Int
	// EndPrice is the decay floor. Zero disables decay entirely.
	EndPrice *big.Int
	// Start is the auction start timestamp. Zero disables decay.
	Start *big.Int
	// Deadline is the absolute expiry timestamp.
	Deadline *big.Int
}

// NewOrder builds an order, normalizing nil amounts to zero so that
// hashing and pricing never have to nil-check.
func NewOrder(seller, collection, payToken common.Address, tokenID, startPrice, endPrice, start, deadline *big.Int) *Order {
	return &Order{
		Seller:     seller,
		Collection: collection,
		PayToken:   payToken,
		TokenID:    orZero(tokenID),
		StartPrice: orZero(startPrice),
		EndPrice:   orZero(endPrice),
		Start:      orZero(start),
		Deadline:   orZero(deadline),
	}
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

// IsNative reports whether the order demands payment in native value.
func (o *Order) IsNative() bool {
	return o.PayToken == NativeToken
}

// DecayActive reports whether Dutch-auction decay applies. A zero EndPrice
// or a zero Start both mean the order is fixed-price.
func (o *Order) DecayActive() bool {
	return o.EndPrice.Sign() != 0 && o.Start.Sign() != 0
}

// Validate rejects orders that are structurally unsettleable. It does not
// check whitelist, expiry or signature; those are settlement-time concerns.
func (o *Order) Validate() error {
	if o.Seller == (common.Address{}) {
		return fmt.Errorf("%w: missing seller", ErrMalformedOrder)
	}
	if o.Collection == (common.Address{}) {
		return fmt.Errorf("%w: missing collection", ErrMalformedOrder)
	}
	for name, v := range map[string]*big.Int{
		"tokenId":    o.TokenID,
		"startPrice": o.StartPrice,
		"endPrice":   o.EndPrice,
		"start":      o.Start,
		"deadline":   o.Deadline,
	} {
		if v == nil {
			return fmt.Errorf("%w: nil %s", ErrMalformedOrder, name)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("%w: negative %s", ErrMalformedOrder, name)
		}
	}
	if o.DecayActive() && o.EndPrice.Cmp(o.StartPrice) > 0 {
		return fmt.Errorf("%w: endPrice above startPrice", ErrMalformedOrder)
	}
	return nil
}
