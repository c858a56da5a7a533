// Package registry provides concrete stores for the market's replay
// nonces, asset whitelist and fee tables.
package registry

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	market "github.com/fixedmarket/market-go"
)

const boltName = "market.db"

var (
	nonceBucket     = []byte("nonces")
	whitelistBucket = []byte("whitelist")
	feeBucket       = []byte("fees")
	configBucket    = []byte("config")

	feeRecipientKey = []byte("fee_recipient")
)

// Bolt is a bbolt-backed Registry. Nonce increments are durable the moment
// IncrementNonce returns, which is exactly what replay protection needs.
type Bolt struct {
	db *bolt.DB
}

var _ market.Registry = (*Bolt)(nil)

// OpenBolt opens (creating if needed) the registry database under dirPath.
func OpenBolt(dirPath string) (*Bolt, error) {
	if err := os.MkdirAll(dirPath, os.ModePerm); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path.Join(dirPath, boltName), 0660, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{nonceBucket, whitelistBucket, feeBucket, configBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return &Bolt{db: db}, nil
}

func (r *Bolt) Close() error {
	return r.db.Close()
}

func (r *Bolt) Nonce(_ context.Context, seller common.Address) (uint64, error) {
	var nonce uint64
	err := r.db.View(func(tx *bolt.Tx) error {
		nonce = decodeUint64(tx.Bucket(nonceBucket).Get(seller.Bytes()))
		return nil
	})
	return nonce, err
}

func (r *Bolt) IncrementNonce(_ context.Context, seller common.Address) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nonceBucket)
		next := decodeUint64(b.Get(seller.Bytes())) + 1
		return b.Put(seller.Bytes(), encodeUint64(next))
	})
}

func (r *Bolt) IsWhitelisted(_ context.Context, asset common.Address) (bool, error) {
	var ok bool
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(whitelistBucket).Get(asset.Bytes())
		ok = len(v) == 1 && v[0] == 1
		return nil
	})
	return ok, err
}

func (r *Bolt) CollectionFeeRate(_ context.Context, collection common.Address) (uint64, error) {
	var rate uint64
	err := r.db.View(func(tx *bolt.Tx) error {
		rate = decodeUint64(tx.Bucket(feeBucket).Get(collection.Bytes()))
		return nil
	})
	return rate, err
}

func (r *Bolt) FeeRecipient(_ context.Context) (common.Address, error) {
	var recipient common.Address
	err := r.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(configBucket).Get(feeRecipientKey); len(v) == common.AddressLength {
			recipient = common.BytesToAddress(v)
		}
		return nil
	})
	return recipient, err
}

func (r *Bolt) SetWhitelisted(_ context.Context, asset common.Address, ok bool) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		v := []byte{0}
		if ok {
			v[0] = 1
		}
		return tx.Bucket(whitelistBucket).Put(asset.Bytes(), v)
	})
}

func (r *Bolt) SetCollectionFeeRate(_ context.Context, collection common.Address, rate uint64) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(feeBucket).Put(collection.Bytes(), encodeUint64(rate))
	})
}

func (r *Bolt) SetFeeRecipient(_ context.Context, recipient common.Address) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(configBucket).Put(feeRecipientKey, recipient.Bytes())
	})
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}
