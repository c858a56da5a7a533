package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	market "github.com/fixedmarket/market-go"
)

// ERC20 ABI JSON for the calls the ledger makes
const erc20ABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "transferFrom",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// ERC721 ABI JSON for ownership reads and transfers
const erc721ABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "transferFrom",
		"outputs": [],
		"type": "function"
	}
]`

// GetERC20ABI returns the parsed ERC20 ABI.
func GetERC20ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC20 ABI: " + err.Error())
	}
	return parsed
}

// GetERC721ABI returns the parsed ERC721 ABI.
func GetERC721ABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc721ABIJSON))
	if err != nil {
		panic("failed to parse ERC721 ABI: " + err.Error())
	}
	return parsed
}

// EVM is an AssetLedger that executes transfers as ERC-20/ERC-721 calls
// signed by an operator key. Commit submits the queued transfers one
// transaction at a time and stops at the first failure; when strict
// atomicity across legs is required, point the market at an on-chain
// settlement contract instead.
type EVM struct {
	client         *ethclient.Client
	key            *ecdsa.PrivateKey
	operator       common.Address
	chainID        *big.Int
	erc20          abi.ABI
	erc721         abi.ABI
	receiptTimeout time.Duration
}

var _ market.AssetLedger = (*EVM)(nil)

// NewEVM connects to an RPC endpoint. The operator address derived from
// the private key acts as the market's escrow identity.
func NewEVM(ctx context.Context, rpcURL, privateKeyHex string) (*EVM, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	return &EVM{
		client:         client,
		key:            key,
		operator:       crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		erc20:          GetERC20ABI(),
		erc721:         GetERC721ABI(),
		receiptTimeout: 2 * time.Minute,
	}, nil
}

// Operator returns the escrow identity transfers are signed with.
func (l *EVM) Operator() common.Address {
	return l.operator
}

// ChainID re-reads the connected chain's id; wire this into the market's
// LiveChainID hook to invalidate signatures across a fork.
func (l *EVM) ChainID(ctx context.Context) *big.Int {
	id, err := l.client.ChainID(ctx)
	if err != nil {
		return nil
	}
	return id
}

func (l *EVM) OwnerOf(ctx context.Context, collection common.Address, tokenID *big.Int) (common.Address, error) {
	data, err := l.erc721.Pack("ownerOf", tokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack ownerOf: %w", err)
	}
	out, err := l.client.CallContract(ctx, ethereum.CallMsg{To: &collection, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("ownerOf call failed: %w", err)
	}
	results, err := l.erc721.Unpack("ownerOf", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack ownerOf: %w", err)
	}
	return results[0].(common.Address), nil
}

func (l *EVM) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := l.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}
	out, err := l.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}
	results, err := l.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	return results[0].(*big.Int), nil
}

func (l *EVM) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return l.client.BalanceAt(ctx, owner, nil)
}

func (l *EVM) Begin(ctx context.Context) (market.LedgerTx, error) {
	return &evmTx{ledger: l, ctx: ctx}, nil
}

type queuedCall struct {
	to    common.Address
	value *big.Int
	data  []byte
	gas   uint64
}

type evmTx struct {
	ledger *EVM
	ctx    context.Context
	calls  []queuedCall
	done   bool
}

func (tx *evmTx) TransferNative(to common.Address, amount *big.Int) error {
	tx.calls = append(tx.calls, queuedCall{to: to, value: amount, gas: 21000})
	return nil
}

func (tx *evmTx) TransferFungible(token, from, to common.Address, amount *big.Int) error {
	data, err := tx.ledger.erc20.Pack("transferFrom", from, to, amount)
	if err != nil {
		return fmt.Errorf("failed to pack transferFrom: %w", err)
	}
	tx.calls = append(tx.calls, queuedCall{to: token, value: new(big.Int), data: data, gas: 100000})
	return nil
}

func (tx *evmTx) TransferNonFungible(collection, from, to common.Address, tokenID *big.Int) error {
	data, err := tx.ledger.erc721.Pack("transferFrom", from, to, tokenID)
	if err != nil {
		return fmt.Errorf("failed to pack transferFrom: %w", err)
	}
	tx.calls = append(tx.calls, queuedCall{to: collection, value: new(big.Int), data: data, gas: 150000})
	return nil
}

func (tx *evmTx) Commit() error {
	if tx.done {
		return fmt.Errorf("ledger tx already finished")
	}
	tx.done = true
	for _, call := range tx.calls {
		if err := tx.ledger.submit(tx.ctx, call); err != nil {
			return err
		}
	}
	return nil
}

func (tx *evmTx) Discard() {
	tx.done = true
	tx.calls = nil
}

func (l *EVM) submit(ctx context.Context, call queuedCall) error {
	nonce, err := l.client.PendingNonceAt(ctx, l.operator)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}

	rawTx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &call.to,
		Value:    call.value,
		Gas:      call.gas,
		GasPrice: gasPrice,
		Data:     call.data,
	})
	signed, err := types.SignTx(rawTx, types.NewEIP155Signer(l.chainID), l.key)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := l.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction reverted: %s", signed.Hash().Hex())
	}
	return nil
}

func (l *EVM) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
