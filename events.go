package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Settlement is the record emitted when a swap completes.
type Settlement struct {
	ID         string
	Seller     common.Address
	Buyer      common.Address
	Collection common.Address
	PayToken   common.Address
	TokenID    *big.Int
	Price      *big.Int
	Fee        *big.Int
	Deadline   *big.Int
	SettledAt  int64
}

func (s *Settlement) fields() logrus.Fields {
	return logrus.Fields{
		"id":         s.ID,
		"seller":     s.Seller.Hex(),
		"buyer":      s.Buyer.Hex(),
		"collection": s.Collection.Hex(),
		"payToken":   s.PayToken.Hex(),
		"tokenId":    s.TokenID.String(),
		"price":      s.Price.String(),
		"fee":        s.Fee.String(),
	}
}

// AdminEventKind identifies an administrative state change.
type AdminEventKind string

const (
	EventWhitelistUpdated    AdminEventKind = "whitelist_updated"
	EventCollectionFeeSet    AdminEventKind = "collection_fee_set"
	EventFeeRecipientUpdated AdminEventKind = "fee_recipient_updated"
	EventSweep               AdminEventKind = "sweep"
)

// AdminEvent is the audit record for an administrative operation. Every
// successful admin call emits exactly one.
type AdminEvent struct {
	ID      string
	Kind    AdminEventKind
	Caller  common.Address
	Asset   common.Address
	Rate    uint64
	Enabled bool
	Amount  *big.Int
	At      int64
}

func newAdminEvent(kind AdminEventKind, caller common.Address, at int64) *AdminEvent {
	return &AdminEvent{ID: uuid.New().String(), Kind: kind, Caller: caller, At: at}
}

func (e *AdminEvent) fields() logrus.Fields {
	f := logrus.Fields{
		"id":     e.ID,
		"kind":   string(e.Kind),
		"caller": e.Caller.Hex(),
	}
	if e.Asset != (common.Address{}) {
		f["asset"] = e.Asset.Hex()
	}
	if e.Amount != nil {
		f["amount"] = e.Amount.String()
	}
	return f
}
