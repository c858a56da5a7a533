package registry

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	market "github.com/fixedmarket/market-go"
)

// Memory is a map-backed Registry for tests, examples and simulations.
type Memory struct {
	mu           sync.RWMutex
	nonces       map[common.Address]uint64
	whitelist    map[common.Address]bool
	fees         map[common.Address]uint64
	feeRecipient common.Address
}

var _ market.Registry = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		nonces:    make(map[common.Address]uint64),
		whitelist: make(map[common.Address]bool),
		fees:      make(map[common.Address]uint64),
	}
}

func (r *Memory) Nonce(_ context.Context, seller common.Address) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nonces[seller], nil
}

func (r *Memory) IncrementNonce(_ context.Context, seller common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nonces[seller]++
	return nil
}

func (r *Memory) IsWhitelisted(_ context.Context, asset common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.whitelist[asset], nil
}

func (r *Memory) CollectionFeeRate(_ context.Context, collection common.Address) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fees[collection], nil
}

func (r *Memory) FeeRecipient(_ context.Context) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeRecipient, nil
}

func (r *Memory) SetWhitelisted(_ context.Context, asset common.Address, ok bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.whitelist[asset] = ok
	return nil
}

func (r *Memory) SetCollectionFeeRate(_ context.Context, collection common.Address, rate uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fees[collection] = rate
	return nil
}

func (r *Memory) SetFeeRecipient(_ context.Context, recipient common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeRecipient = recipient
	return nil
}
