// Example: a seller signs a Dutch-auction order off-line and a buyer
// settles it against an in-memory registry and ledger.
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	market "github.com/fixedmarket/market-go"
	"github.com/fixedmarket/market-go/chain"
	"github.com/fixedmarket/market-go/ledger"
	"github.com/fixedmarket/market-go/registry"
)

func main() {
	var (
		marketAddr   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
		admin        = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
		feeRecipient = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
		buyer        = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
		collection   = common.HexToAddress("0x2222222222222222222222222222222222222222")
		payToken     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	)
	ctx := context.Background()

	// The seller's key would normally live in a wallet; the market only
	// ever sees signatures.
	sellerKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}
	seller := crypto.PubkeyToAddress(sellerKey.PublicKey)

	reg := registry.NewMemory()
	led := ledger.NewMemory(marketAddr)

	m, err := market.New(market.Config{
		ChainID:       56,
		MarketAddress: marketAddr,
		Admin:         admin,
		Logger:        market.NewLogger("example"),
	}, reg, led)
	if err != nil {
		log.Fatalf("failed to create market: %v", err)
	}

	// Admin setup: approve the assets and take a 2.5% fee on the
	// collection.
	must(m.SetWhitelisted(ctx, admin, collection, true))
	must(m.SetWhitelisted(ctx, admin, payToken, true))
	must(m.SetFeeRecipient(ctx, admin, feeRecipient))
	must(m.SetCollectionFee(ctx, admin, collection, 250))

	// On-chain state: the seller owns token #7 and has approved the
	// market; the buyer holds payment tokens and an allowance.
	led.MintNFT(collection, big.NewInt(7), seller)
	led.SetApprovalForAll(collection, seller, true)
	led.Mint(payToken, buyer, big.NewInt(1_000_000))
	led.Approve(payToken, buyer, big.NewInt(1_000_000))

	// The seller lists token #7: price decays from 100000 to 50000 over
	// the next hour.
	now := time.Now().Unix()
	order := chain.NewOrder(
		seller, collection, payToken,
		big.NewInt(7),
		big.NewInt(100_000), big.NewInt(50_000),
		big.NewInt(now-1), big.NewInt(now+3600),
	)

	nonce, err := m.Nonce(ctx, seller)
	if err != nil {
		log.Fatalf("failed to read nonce: %v", err)
	}
	sig, err := chain.SignOrder(m.Domain(), order, new(big.Int).SetUint64(nonce), sellerKey)
	if err != nil {
		log.Fatalf("failed to sign order: %v", err)
	}

	// The buyer previews before committing.
	price, err := m.PreviewPrice(order)
	if err != nil {
		log.Fatalf("failed to preview price: %v", err)
	}
	fmt.Printf("current price: %s\n", price)
	fmt.Printf("order valid for buyer: %v\n", m.Verify(ctx, buyer, order, sig))

	settlement, err := m.ExecuteSwap(ctx, buyer, order, sig, nil)
	if err != nil {
		log.Fatalf("swap failed: %v", err)
	}
	fmt.Printf("settled %s: token %s for %s (fee %s)\n",
		settlement.ID, settlement.TokenID, settlement.Price, settlement.Fee)

	owner, _ := led.OwnerOf(ctx, collection, big.NewInt(7))
	sellerBal, _ := led.BalanceOf(ctx, payToken, seller)
	recipientBal, _ := led.BalanceOf(ctx, payToken, feeRecipient)
	fmt.Printf("token #7 owner: %s\n", owner.Hex())
	fmt.Printf("seller proceeds: %s, fees collected: %s\n", sellerBal, recipientBal)

	// The signature is spent: the same order can never settle twice.
	if _, err := m.ExecuteSwap(ctx, buyer, order, sig, nil); err != nil {
		fmt.Printf("replay rejected: %v\n", err)
	}
}

func must(err error) {
	if err != nil {
		log.Fatalf("setup failed: %v", err)
	}
}
