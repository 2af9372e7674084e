package lending

import (
	"math/big"
	"sync"
	"time"
)

// OracleStalenessBound is the maximum age of a feed answer before the gateway
// refuses to price with it.
const OracleStalenessBound = time.Hour

// PriceFeed is the upstream price source for one asset. Implementations live
// outside the engine; the gateway validates and rescales every answer.
type PriceFeed interface {
	// Latest returns the raw answer in the feed's native decimal precision
	// together with the time the answer was last updated.
	Latest() (answer *big.Int, decimals uint8, updatedAt time.Time, err error)
}

// feedPrice reads a feed and returns its answer rescaled to a WAD (1e18) USD
// price per whole asset unit. A non-positive answer fails with
// ErrInvalidPrice; a zero or too-old update time fails with ErrStalePrice. No
// fallback pricing is ever substituted.
func feedPrice(feed PriceFeed, now time.Time) (*big.Int, error) {
	if feed == nil {
		return nil, ErrOracleZero
	}
	answer, decimals, updatedAt, err := feed.Latest()
	if err != nil {
		return nil, err
	}
	if answer == nil || answer.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if updatedAt.IsZero() || now.Sub(updatedAt) > OracleStalenessBound {
		return nil, ErrStalePrice
	}
	return rescalePrice(answer, decimals), nil
}

// rescalePrice converts a feed answer from its native precision to WAD.
func rescalePrice(answer *big.Int, decimals uint8) *big.Int {
	switch {
	case decimals == 18:
		return new(big.Int).Set(answer)
	case decimals < 18:
		return new(big.Int).Mul(answer, pow10(18-decimals))
	default:
		return new(big.Int).Quo(answer, pow10(decimals-18))
	}
}

// valueUsd prices an asset amount: amount * price / 10^assetDecimals, leaving
// the result WAD scaled.
func valueUsd(amount *big.Int, assetDecimals uint8, price *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 || price == nil {
		return big.NewInt(0)
	}
	return mulDiv(amount, price, pow10(assetDecimals))
}

// ManualFeed is a settable in-process feed used by the daemon's manager price
// endpoint and by tests. Production deployments wire their own PriceFeed.
type ManualFeed struct {
	mu        sync.RWMutex
	answer    *big.Int
	decimals  uint8
	updatedAt time.Time
}

// NewManualFeed constructs a feed reporting answers at the given precision.
func NewManualFeed(decimals uint8) *ManualFeed {
	return &ManualFeed{decimals: decimals}
}

// Set records a new answer with its observation time.
func (f *ManualFeed) Set(answer *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = cloneInt(answer)
	f.updatedAt = updatedAt
}

// Latest implements PriceFeed.
func (f *ManualFeed) Latest() (*big.Int, uint8, time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneInt(f.answer), f.decimals, f.updatedAt, nil
}
