package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EIP712 domain constants. Wallets must use the same values to reproduce
// signing digests, so these are part of the wire format.
const (
	DomainName    = "Fixed Order Market"
	DomainVersion = "1"
)

// Pre-computed type hashes using keccak256
var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	// Order(address seller,address collection,address payToken,uint256 tokenId,uint256 startPrice,uint256 endPrice,uint256 start,uint256 deadline,uint256 nonce)
	orderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(address seller,address collection,address payToken,uint256 tokenId,uint256 startPrice,uint256 endPrice,uint256 start,uint256 deadline,uint256 nonce)",
	))
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
)

// Domain binds signatures to one market deployment on one chain. The
// separator is cached at construction; Separator recomputes it if the live
// chain id ever differs from the cached one, so signatures never carry
// across a chain fork or migration.
type Domain struct {
	chainID   *big.Int
	verifying common.Address
	separator common.Hash
}

// NewDomain creates a Domain for the given chain id and market address and
// caches its separator.
func NewDomain(chainID *big.Int, verifyingContract common.Address) *Domain {
	return &Domain{
		chainID:   new(big.Int).Set(chainID),
		verifying: verifyingContract,
		separator: computeSeparator(chainID, verifyingContract),
	}
}

// Separator returns the domain separator for the live chain id. A nil
// liveChainID means "unchanged" and returns the cached value.
func (d *Domain) Separator(liveChainID *big.Int) common.Hash {
	if liveChainID == nil || liveChainID.Cmp(d.chainID) == 0 {
		return d.separator
	}
	return computeSeparator(liveChainID, d.verifying)
}

func computeSeparator(chainID *big.Int, verifyingContract common.Address) common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // nameHash
		{Type: bytes32Type}, // versionHash
		{Type: uint256Type}, // chainId
		{Type: addressType}, // verifyingContract
	}

	encoded, err := arguments.Pack(
		domainTypeHash,
		crypto.Keccak256Hash([]byte(DomainName)),
		crypto.Keccak256Hash([]byte(DomainVersion)),
		chainID,
		verifyingContract,
	)
	if err != nil {
		panic("failed to encode domain separator: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// StructHash computes the EIP-712 struct hash over the order fields and the
// seller nonce the signature consumes. Field order matches the type string
// above byte for byte.
func StructHash(order *Order, nonce *big.Int) common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: addressType}, // seller
		{Type: addressType}, // collection
		{Type: addressType}, // payToken
		{Type: uint256Type}, // tokenId
		{Type: uint256Type}, // startPrice
		{Type: uint256Type}, // endPrice
		{Type: uint256Type}, // start
		{Type: uint256Type}, // deadline
		{Type: uint256Type}, // nonce
	}

	encoded, err := arguments.Pack(
		orderTypeHash,
		order.Seller,
		order.Collection,
		order.PayToken,
		order.TokenID,
		order.StartPrice,
		order.EndPrice,
		order.Start,
		order.Deadline,
		nonce,
	)
	if err != nil {
		panic("failed to encode order struct: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// SigningDigest computes the final EIP-712 digest the seller signs:
// keccak256("\x19\x01" ++ domainSeparator ++ structHash).
func (d *Domain) SigningDigest(liveChainID *big.Int, order *Order, nonce *big.Int) common.Hash {
	separator := d.Separator(liveChainID)
	structHash := StructHash(order, nonce)

	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, separator.Bytes()...)
	data = append(data, structHash.Bytes()...)

	return crypto.Keccak256Hash(data)
}
