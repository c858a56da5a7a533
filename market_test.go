package market_test

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	market "github.com/fixedmarket/market-go"
	"github.com/fixedmarket/market-go/chain"
	"github.com/fixedmarket/market-go/ledger"
	"github.com/fixedmarket/market-go/registry"
)

var (
	marketAddr   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	adminAddr    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	feeRecipient = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	buyerAddr    = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	collection   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	payToken     = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

const testNow = int64(1500)

type fixture struct {
	market   *market.Market
	registry *registry.Memory
	ledger   *ledger.Memory
	key      *ecdsa.PrivateKey
	seller   common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	seller := crypto.PubkeyToAddress(key.PublicKey)

	reg := registry.NewMemory()
	led := ledger.NewMemory(marketAddr)

	m, err := market.New(market.Config{
		ChainID:       56,
		MarketAddress: marketAddr,
		Admin:         adminAddr,
		Now:           func() time.Time { return time.Unix(testNow, 0) },
	}, reg, led)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.SetWhitelisted(ctx, adminAddr, collection, true))
	require.NoError(t, m.SetWhitelisted(ctx, adminAddr, payToken, true))
	require.NoError(t, m.SetFeeRecipient(ctx, adminAddr, feeRecipient))

	led.MintNFT(collection, big.NewInt(7), seller)
	led.SetApprovalForAll(collection, seller, true)

	return &fixture{market: m, registry: reg, ledger: led, key: key, seller: seller}
}

func (f *fixture) order(payAsset common.Address, startPrice, endPrice, start, deadline int64) *chain.Order {
	return chain.NewOrder(
		f.seller, collection, payAsset,
		big.NewInt(7), big.NewInt(startPrice), big.NewInt(endPrice),
		big.NewInt(start), big.NewInt(deadline),
	)
}

func (f *fixture) sign(t *testing.T, order *chain.Order) chain.Signature {
	t.Helper()
	nonce, err := f.market.Nonce(context.Background(), order.Seller)
	require.NoError(t, err)
	sig, err := chain.SignOrder(f.market.Domain(), order, new(big.Int).SetUint64(nonce), f.key)
	require.NoError(t, err)
	return sig
}

func (f *fixture) nonce(t *testing.T) uint64 {
	t.Helper()
	nonce, err := f.market.Nonce(context.Background(), f.seller)
	require.NoError(t, err)
	return nonce
}

// Fixed-price order paid in native value: 2.5% fee rounds down, the seller
// gets the remainder, the fee stays in escrow until swept.
func TestExecuteSwap_NativeFixedPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.market.SetCollectionFee(ctx, adminAddr, collection, 250))

	// the attached payment sits in the market's escrow
	f.ledger.CreditNative(marketAddr, big.NewInt(100))

	order := f.order(chain.NativeToken, 100, 0, 0, 2000)
	sig := f.sign(t, order)

	s, err := f.market.ExecuteSwap(ctx, buyerAddr, order, sig, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(100), s.Price.Int64())
	assert.Equal(t, int64(2), s.Fee.Int64())
	assert.NotEmpty(t, s.ID)

	sellerBal, err := f.ledger.NativeBalance(ctx, f.seller)
	require.NoError(t, err)
	assert.Equal(t, int64(98), sellerBal.Int64())

	owner, err := f.ledger.OwnerOf(ctx, collection, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, buyerAddr, owner)

	assert.Equal(t, uint64(1), f.nonce(t))

	// the 2-unit fee is still in escrow; sweep pays it out
	swept, err := f.market.SweepNative(ctx, adminAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept.Int64())
	recipientBal, err := f.ledger.NativeBalance(ctx, feeRecipient)
	require.NoError(t, err)
	assert.Equal(t, int64(2), recipientBal.Int64())
}

func TestExecuteSwap_NativeExcessRetained(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.CreditNative(marketAddr, big.NewInt(150))

	order := f.order(chain.NativeToken, 100, 0, 0, 2000)
	_, err := f.market.ExecuteSwap(ctx, buyerAddr, order, f.sign(t, order), big.NewInt(150))
	require.NoError(t, err)

	// no refund path: everything above the seller's proceeds stays put
	escrow, err := f.ledger.NativeBalance(ctx, marketAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(50), escrow.Int64())
}

func TestExecuteSwap_NativeUnderpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.CreditNative(marketAddr, big.NewInt(99))

	order := f.order(chain.NativeToken, 100, 0, 0, 2000)
	_, err := f.market.ExecuteSwap(ctx, buyerAddr, order, f.sign(t, order), big.NewInt(99))
	assert.ErrorIs(t, err, market.ErrInsufficientPayment)

	// the signature was still consumed
	assert.Equal(t, uint64(1), f.nonce(t))
}

// Decaying order paid in a fungible token at the midpoint of its window.
func TestExecuteSwap_DutchAuction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ledger.Mint(payToken, buyerAddr, big.NewInt(1000))
	f.ledger.Approve(payToken, buyerAddr, big.NewInt(1000))

	order := f.order(payToken, 100, 50, 1000, 2000)
	s, err := f.market.ExecuteSwap(ctx, buyerAddr, order, f.sign(t, order), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(75), s.Price.Int64())
	assert.Equal(t, int64(0), s.Fee.Int64())

	sellerBal, err := f.ledger.BalanceOf(ctx, payToken, f.seller)
	require.NoError(t, err)
	assert.Equal(t, int64(75), sellerBal.Int64())

	buyerBal, err := f.ledger.BalanceOf(ctx, payToken, buyerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(925), buyerBal.Int64())
}

func TestExecuteSwap_FeePaidToRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.market.SetCollectionFee(ctx, adminAddr, collection, 250))

	f.ledger.Mint(payToken, buyerAddr, big.NewInt(1000))
	f.ledger.Approve(payToken, buyerAddr, big.NewInt(1000))

	order := f.order(payToken, 100, 0, 0, 2000)
	s, err := f.market.ExecuteSwap(ctx, buyerAddr, order, f.sign(t, order), nil)
	require.NoError(t, err)

	// fee + proceeds must account for the full price, no rounding leakage
	assert.Equal(t, s.Price.Int64(), int64(98+2))

	sellerBal, _ := f.ledger.BalanceOf(ctx, payToken, f.seller)
	recipientBal, _ := f.ledger.BalanceOf(ctx, payToken, feeRecipient)
	assert.Equal(t, int64(98), sellerBal.Int64())
	assert.Equal(t, int64(2), recipientBal.Int64())
}

func TestExecuteSwap_Expired(t *testing.T) {
	f := newFixture(t)
	order := f.order(chain.NativeToken, 100, 0, 0, 1400) // deadline < now
	sig := f.sign(t, order)

	_, err := f.market.ExecuteSwap(context.Background(), buyerAddr, order, sig, big.NewInt(100))
	assert.ErrorIs(t, err, market.ErrOrderExpired)
	assert.Equal(t, uint64(0), f.nonce(t))
}

func TestExecuteSwap_NotWhitelisted(t *testing.T) {
	f := newFixture(t)
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")

	order := f.order(other, 100, 0, 0, 2000) // payment token never whitelisted
	sig := f.sign(t, order)

	_, err := f.market.ExecuteSwap(context.Background(), buyerAddr, order, sig, nil)
	assert.ErrorIs(t, err, market.ErrAssetNotWhitelisted)
	// rejected before the signature was ever checked
	assert.Equal(t, uint64(0), f.nonce(t))
}

func TestExecuteSwap_BadSignature(t *testing.T) {
	f := newFixture(t)
	order := f.order(chain.NativeToken, 100, 0, 0, 2000)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := chain.SignOrder(f.market.Domain(), order, big.NewInt(0), otherKey)
	require.NoError(t, err)

	_, err = f.market.ExecuteSwap(context.Background(), buyerAddr, order, sig, big.NewInt(100))
	assert.ErrorIs(t, err, market.ErrInvalidSignature)
	assert.Equal(t, uint64(0), f.nonce(t))
}

func TestExecuteSwap_ReplayRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.CreditNative(marketAddr, big.NewInt(100))

	order := f.order(chain.NativeToken, 100, 0, 0, 2000)
	sig := f.sign(t, order)

	_, err := f.market.ExecuteSwap(ctx, buyerAddr, order, sig, big.NewInt(100))
	require.NoError(t, err)

	// the token moved, but even after moving it back the old signature is
	// dead: the nonce it was bound to is spent
	f.ledger.MintNFT(collection, big.NewInt(7), f.seller)
	f.ledger.CreditNative(marketAddr, big.NewInt(100))
	_, err = f.market.ExecuteSwap(ctx, buyerAddr, order, sig, big.NewInt(100))
	assert.ErrorIs(t, err, market.ErrInvalidSignature)
}

// A failed transfer aborts the swap but still burns the nonce, and the
// ledger rolls back in full.
func TestExecuteSwap_TransferFailureRollsBackButBurnsNonce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// buyer has funds but never granted an allowance
	f.ledger.Mint(payToken, buyerAddr, big.NewInt(1000))

	order := f.order(payToken, 100, 0, 0, 2000)
	sig := f.sign(t, order)

	_, err := f.market.ExecuteSwap(ctx, buyerAddr, order, sig, nil)
	assert.ErrorIs(t, err, market.ErrTransferFailed)

	assert.Equal(t, uint64(1), f.nonce(t))
	owner, err := f.ledger.OwnerOf(ctx, collection, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, f.seller, owner)
	buyerBal, err := f.ledger.BalanceOf(ctx, payToken, buyerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), buyerBal.Int64())

	// retrying with the spent signature cannot work
	_, err = f.market.ExecuteSwap(ctx, buyerAddr, order, sig, nil)
	assert.ErrorIs(t, err, market.ErrInvalidSignature)
}

func TestExecuteSwap_NFTDeliveryFailureRollsBackPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ledger.Mint(payToken, buyerAddr, big.NewInt(1000))
	f.ledger.Approve(payToken, buyerAddr, big.NewInt(1000))
	// seller revokes operator approval after signing
	f.ledger.SetApprovalForAll(collection, f.seller, false)

	order := f.order(payToken, 100, 0, 0, 2000)
	_, err := f.market.ExecuteSwap(ctx, buyerAddr, order, f.sign(t, order), nil)
	assert.ErrorIs(t, err, market.ErrTransferFailed)

	// the fungible leg that succeeded inside the tx is rolled back too
	buyerBal, err := f.ledger.BalanceOf(ctx, payToken, buyerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), buyerBal.Int64())
	sellerBal, err := f.ledger.BalanceOf(ctx, payToken, f.seller)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sellerBal.Int64())
}

func TestExecuteSwap_MalformedOrder(t *testing.T) {
	f := newFixture(t)
	order := f.order(chain.NativeToken, 100, 150, 1000, 2000) // rising price
	sig := f.sign(t, order)

	_, err := f.market.ExecuteSwap(context.Background(), buyerAddr, order, sig, big.NewInt(200))
	assert.ErrorIs(t, err, chain.ErrMalformedOrder)
	assert.Equal(t, uint64(0), f.nonce(t))
}

func TestExecuteSwap_ArithmeticErrorFatal(t *testing.T) {
	f := newFixture(t)
	// decay active, deadline == start, but deadline still in the future
	order := f.order(chain.NativeToken, 100, 50, 2000, 2000)
	sig := f.sign(t, order)

	_, err := f.market.ExecuteSwap(context.Background(), buyerAddr, order, sig, big.NewInt(200))
	var arithErr *chain.ArithmeticError
	assert.ErrorAs(t, err, &arithErr)
	// the signature verified before pricing, so the nonce is gone
	assert.Equal(t, uint64(1), f.nonce(t))
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ledger.Mint(payToken, buyerAddr, big.NewInt(1000))

	order := f.order(payToken, 100, 0, 0, 2000)
	sig := f.sign(t, order)

	assert.True(t, f.market.Verify(ctx, buyerAddr, order, sig))

	// preview never mutates: still valid on a second look
	assert.True(t, f.market.Verify(ctx, buyerAddr, order, sig))
	assert.Equal(t, uint64(0), f.nonce(t))

	// zero buyer skips the balance check
	assert.True(t, f.market.Verify(ctx, common.Address{}, order, sig))

	// poor buyer fails it
	poor := common.HexToAddress("0x7777777777777777777777777777777777777777")
	assert.False(t, f.market.Verify(ctx, poor, order, sig))

	// seller no longer owns the token
	f.ledger.MintNFT(collection, big.NewInt(7), buyerAddr)
	assert.False(t, f.market.Verify(ctx, buyerAddr, order, sig))
	f.ledger.MintNFT(collection, big.NewInt(7), f.seller)

	// auction not started yet
	future := f.order(payToken, 100, 50, testNow+100, testNow+1000)
	futureSig := f.sign(t, future)
	assert.False(t, f.market.Verify(ctx, buyerAddr, future, futureSig))

	// consumed nonce invalidates the preview
	require.NoError(t, f.registry.IncrementNonce(ctx, f.seller))
	assert.False(t, f.market.Verify(ctx, buyerAddr, order, sig))
}

func TestAdmin_FailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := common.HexToAddress("0x8888888888888888888888888888888888888888")

	assert.ErrorIs(t, f.market.SetWhitelisted(ctx, stranger, payToken, false), market.ErrUnauthorized)
	assert.ErrorIs(t, f.market.SetCollectionFee(ctx, stranger, collection, 100), market.ErrUnauthorized)
	assert.ErrorIs(t, f.market.SetFeeRecipient(ctx, stranger, stranger), market.ErrUnauthorized)
	_, err := f.market.SweepNative(ctx, stranger)
	assert.ErrorIs(t, err, market.ErrUnauthorized)
	_, err = f.market.SweepFungible(ctx, stranger, payToken)
	assert.ErrorIs(t, err, market.ErrUnauthorized)

	assert.ErrorIs(t, f.market.SetCollectionFee(ctx, adminAddr, collection, market.FeeDenominator+1), market.ErrInvalidFeeRate)
}

func TestSweepFungible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Mint(payToken, marketAddr, big.NewInt(41))

	swept, err := f.market.SweepFungible(ctx, adminAddr, payToken)
	require.NoError(t, err)
	assert.Equal(t, int64(41), swept.Int64())

	bal, err := f.ledger.BalanceOf(ctx, payToken, feeRecipient)
	require.NoError(t, err)
	assert.Equal(t, int64(41), bal.Int64())
}

func TestPreviewPrice(t *testing.T) {
	f := newFixture(t)
	p, err := f.market.PreviewPrice(f.order(payToken, 100, 50, 1000, 2000))
	require.NoError(t, err)
	assert.Equal(t, int64(75), p.Int64())
}
