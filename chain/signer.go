package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature is an secp256k1 signature in the (v, r, s) form wallets emit,
// with v in {27, 28}.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// RecoverSigner recovers the address that signed digest. It returns the
// zero address on any malformed or non-canonical input and never fails:
// callers must treat a zero result as "verification failed", never as a
// valid signer. High-s signatures are rejected outright so a third party
// cannot mint a second valid signature from a captured one.
func RecoverSigner(digest common.Hash, sig Signature) common.Address {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}
	}

	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(sig.V-27, r, s, true) {
		return common.Address{}
	}

	raw := make([]byte, 65)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V - 27

	pubkey, err := crypto.Ecrecover(digest.Bytes(), raw)
	if err != nil {
		return common.Address{}
	}

	// Skip the 0x04 uncompressed-point prefix; the address is the last 20
	// bytes of the keccak256 of the point.
	return common.BytesToAddress(crypto.Keccak256(pubkey[1:])[12:])
}

// SignDigest signs a 32-byte digest and returns the signature in (v, r, s)
// form with the recovery id shifted to 27/28.
func SignDigest(digest common.Hash, key *ecdsa.PrivateKey) (Signature, error) {
	raw, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to sign digest: %w", err)
	}

	var sig Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64] + 27
	return sig, nil
}

// SignOrder produces the seller signature authorizing order for the given
// nonce. This is what maker-side tooling calls; the market only verifies.
func SignOrder(domain *Domain, order *Order, nonce *big.Int, key *ecdsa.PrivateKey) (Signature, error) {
	return SignDigest(domain.SigningDigest(nil, order, nonce), key)
}
