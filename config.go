package market

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// FeeDenominator is the fee-rate scale: rates are parts per ten thousand,
// so 250 means 2.5%.
const FeeDenominator = 10000

// Config holds everything needed to construct a Market.
type Config struct {
	// ChainID of the deployment; baked into every signing digest.
	ChainID int64

	// MarketAddress is this market's own identity: the EIP-712 verifying
	// contract and the owner of escrowed fees.
	MarketAddress common.Address

	// Admin is the only identity allowed to perform administrative
	// operations.
	Admin common.Address

	// LiveChainID, when set, is consulted on every digest computation so
	// a chain fork or migration invalidates old signatures. Returning nil
	// means "unchanged". Optional.
	LiveChainID func(ctx context.Context) *big.Int

	// Now supplies the settlement clock. Defaults to time.Now. Tests
	// inject a fixed clock here.
	Now func() time.Time

	// Logger receives settlement and admin audit lines. Optional; the
	// market is silent without one.
	Logger *logrus.Entry

	// Metrics registers the market's counters. Optional.
	Metrics prometheus.Registerer
}

// InvalidConfigError reports an unusable Config.
type InvalidConfigError struct {
	Message string
}

func (e *InvalidConfigError) Error() string {
	return e.Message
}

func (c *Config) validate() error {
	if c.ChainID <= 0 {
		return &InvalidConfigError{Message: fmt.Sprintf("chain id must be positive, got %d", c.ChainID)}
	}
	if c.MarketAddress == (common.Address{}) {
		return &InvalidConfigError{Message: "market address is required"}
	}
	if c.Admin == (common.Address{}) {
		return &InvalidConfigError{Message: "admin address is required"}
	}
	return nil
}
