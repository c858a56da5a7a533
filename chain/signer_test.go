package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverSigner_RoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	domain := NewDomain(big.NewInt(56), testMarket)
	order := decayOrder(100, 50, 1000, 2000)
	order.Seller = addr

	sig, err := SignOrder(domain, order, big.NewInt(0), key)
	require.NoError(t, err)
	assert.Contains(t, []uint8{27, 28}, sig.V)

	digest := domain.SigningDigest(nil, order, big.NewInt(0))
	assert.Equal(t, addr, RecoverSigner(digest, sig))

	// a different nonce yields a different digest, so the recovered
	// signer no longer matches
	other := domain.SigningDigest(nil, order, big.NewInt(1))
	assert.NotEqual(t, addr, RecoverSigner(other, sig))
}

func TestRecoverSigner_MalformedInputs(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := crypto.Keccak256Hash([]byte("digest"))
	sig, err := SignDigest(digest, key)
	require.NoError(t, err)

	zero := common.Address{}

	badV := sig
	badV.V = 29
	assert.Equal(t, zero, RecoverSigner(digest, badV))
	badV.V = 0
	assert.Equal(t, zero, RecoverSigner(digest, badV))

	var empty Signature
	empty.V = 27
	assert.Equal(t, zero, RecoverSigner(digest, empty))
}

func TestRecoverSigner_RejectsHighS(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := crypto.Keccak256Hash([]byte("digest"))
	sig, err := SignDigest(digest, key)
	require.NoError(t, err)

	// Flip to the other half of the curve order: same message, second
	// "valid" signature. It must be rejected, not recovered.
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(sig.S[:])
	malleable := sig
	new(big.Int).Sub(n, s).FillBytes(malleable.S[:])
	if malleable.V == 27 {
		malleable.V = 28
	} else {
		malleable.V = 27
	}

	assert.Equal(t, common.Address{}, RecoverSigner(digest, malleable))
}
