// Package ledger provides concrete asset-ledger capabilities for the
// market: an in-memory ledger for tests and simulations, and an EVM
// adapter speaking ERC-20/ERC-721 over JSON-RPC.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	market "github.com/fixedmarket/market-go"
)

// Memory is an in-memory AssetLedger. Transactions clone the whole state
// on Begin and swap it back on Commit, so a discarded transaction leaves
// no trace; this mirrors the all-or-nothing commit boundary a chain gives
// an on-chain settlement.
type Memory struct {
	mu sync.Mutex
	// escrow is the market's own address; it spends without allowance.
	escrow common.Address
	st     *state
}

type state struct {
	native     map[common.Address]*big.Int
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	owners     map[common.Address]map[string]common.Address
	operators  map[common.Address]map[common.Address]bool
}

var _ market.AssetLedger = (*Memory)(nil)

func NewMemory(escrow common.Address) *Memory {
	return &Memory{
		escrow: escrow,
		st: &state{
			native:     make(map[common.Address]*big.Int),
			balances:   make(map[common.Address]map[common.Address]*big.Int),
			allowances: make(map[common.Address]map[common.Address]*big.Int),
			owners:     make(map[common.Address]map[string]common.Address),
			operators:  make(map[common.Address]map[common.Address]bool),
		},
	}
}

// CreditNative adds native value to an account. Crediting the escrow
// address models value attached to a settlement attempt.
func (l *Memory) CreditNative(owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.creditNative(owner, amount)
}

// Mint credits a fungible token balance.
func (l *Memory) Mint(token, owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.credit(token, owner, amount)
}

// Approve authorizes the market to spend owner's tokens up to amount.
func (l *Memory) Approve(token, owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inner(l.st.allowances, token)[owner] = new(big.Int).Set(amount)
}

// MintNFT assigns a non-fungible token to owner.
func (l *Memory) MintNFT(collection common.Address, tokenID *big.Int, owner common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.owners[collection] == nil {
		l.st.owners[collection] = make(map[string]common.Address)
	}
	l.st.owners[collection][tokenID.String()] = owner
}

// SetApprovalForAll lets the market move any of owner's tokens in a
// collection.
func (l *Memory) SetApprovalForAll(collection, owner common.Address, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.operators[collection] == nil {
		l.st.operators[collection] = make(map[common.Address]bool)
	}
	l.st.operators[collection][owner] = ok
}

func (l *Memory) OwnerOf(_ context.Context, collection common.Address, tokenID *big.Int) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.st.owners[collection][tokenID.String()]
	if !ok {
		return common.Address{}, fmt.Errorf("token %s/%s does not exist", collection.Hex(), tokenID)
	}
	return owner, nil
}

func (l *Memory) BalanceOf(_ context.Context, token, owner common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.st.balance(token, owner)), nil
}

func (l *Memory) NativeBalance(_ context.Context, owner common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b := l.st.native[owner]; b != nil {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (l *Memory) Begin(_ context.Context) (market.LedgerTx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &memoryTx{ledger: l, st: l.st.clone()}, nil
}

type memoryTx struct {
	ledger *Memory
	st     *state
	done   bool
}

func (tx *memoryTx) TransferNative(to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	escrow := tx.ledger.escrow
	if have := tx.st.nativeBalance(escrow); have.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient escrow balance: have %s, need %s", have, amount)
	}
	tx.st.creditNative(escrow, new(big.Int).Neg(amount))
	tx.st.creditNative(to, amount)
	return nil
}

func (tx *memoryTx) TransferFungible(token, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from != tx.ledger.escrow {
		allowance := inner(tx.st.allowances, token)[from]
		if allowance == nil || allowance.Cmp(amount) < 0 {
			return fmt.Errorf("insufficient allowance from %s", from.Hex())
		}
		allowance.Sub(allowance, amount)
	}
	if have := tx.st.balance(token, from); have.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: have %s, need %s", have, amount)
	}
	tx.st.credit(token, from, new(big.Int).Neg(amount))
	tx.st.credit(token, to, amount)
	return nil
}

func (tx *memoryTx) TransferNonFungible(collection, from, to common.Address, tokenID *big.Int) error {
	owner, ok := tx.st.owners[collection][tokenID.String()]
	if !ok || owner != from {
		return fmt.Errorf("%s does not own token %s", from.Hex(), tokenID)
	}
	if from != tx.ledger.escrow && !tx.st.operators[collection][from] {
		return fmt.Errorf("transfer of token %s not approved", tokenID)
	}
	tx.st.owners[collection][tokenID.String()] = to
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return errors.New("ledger tx already finished")
	}
	tx.done = true
	tx.ledger.mu.Lock()
	defer tx.ledger.mu.Unlock()
	tx.ledger.st = tx.st
	return nil
}

func (tx *memoryTx) Discard() {
	tx.done = true
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("invalid transfer amount")
	}
	return nil
}

func (s *state) balance(token, owner common.Address) *big.Int {
	if b := inner(s.balances, token)[owner]; b != nil {
		return b
	}
	return new(big.Int)
}

func (s *state) nativeBalance(owner common.Address) *big.Int {
	if b := s.native[owner]; b != nil {
		return b
	}
	return new(big.Int)
}

func (s *state) credit(token, owner common.Address, amount *big.Int) {
	m := inner(s.balances, token)
	if m[owner] == nil {
		m[owner] = new(big.Int)
	}
	m[owner].Add(m[owner], amount)
}

func (s *state) creditNative(owner common.Address, amount *big.Int) {
	if s.native[owner] == nil {
		s.native[owner] = new(big.Int)
	}
	s.native[owner].Add(s.native[owner], amount)
}

func inner(m map[common.Address]map[common.Address]*big.Int, key common.Address) map[common.Address]*big.Int {
	if m[key] == nil {
		m[key] = make(map[common.Address]*big.Int)
	}
	return m[key]
}

func (s *state) clone() *state {
	c := &state{
		native:     make(map[common.Address]*big.Int, len(s.native)),
		balances:   make(map[common.Address]map[common.Address]*big.Int, len(s.balances)),
		allowances: make(map[common.Address]map[common.Address]*big.Int, len(s.allowances)),
		owners:     make(map[common.Address]map[string]common.Address, len(s.owners)),
		operators:  make(map[common.Address]map[common.Address]bool, len(s.operators)),
	}
	for k, v := range s.native {
		c.native[k] = new(big.Int).Set(v)
	}
	for token, m := range s.balances {
		c.balances[token] = cloneAmounts(m)
	}
	for token, m := range s.allowances {
		c.allowances[token] = cloneAmounts(m)
	}
	for collection, m := range s.owners {
		o := make(map[string]common.Address, len(m))
		for id, owner := range m {
			o[id] = owner
		}
		c.owners[collection] = o
	}
	for collection, m := range s.operators {
		o := make(map[common.Address]bool, len(m))
		for owner, ok := range m {
			o[owner] = ok
		}
		c.operators[collection] = o
	}
	return c
}

func cloneAmounts(m map[common.Address]*big.Int) map[common.Address]*big.Int {
	c := make(map[common.Address]*big.Int, len(m))
	for k, v := range m {
		c[k] = new(big.Int).Set(v)
	}
	return c
}
