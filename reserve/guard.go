// Package reserve gates mints on the reserve reported by a proof-of-reserve feed.
package reserve

import (
	"context"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/marwen-abid/stablecoin-sdk-go"
	"github.com/marwen-abid/stablecoin-sdk-go/core/amount"
	"github.com/marwen-abid/stablecoin-sdk-go/core/logging"
)

// Decision is the outcome of a reserve check. Supply and Reserve are expressed
// with Decimals decimals.
type Decision struct {
	Allowed  bool
	Reason   string
	Supply   *big.Int
	Reserve  *big.Int
	Decimals int
}

// Guard compares a token's supply after a mint with its reserve.
type Guard struct {
	feed   stablecoin.ReserveFeed
	logger *logrus.Entry
}

// NewGuard creates a Guard reading snapshots from feed.
func NewGuard(feed stablecoin.ReserveFeed, logger *logrus.Entry) *Guard {
	return &Guard{
		feed:   feed,
		logger: logging.OrDiscard(logger).WithField("component", "reserve"),
	}
}

// CheckMintAllowed decides whether minting amount (token decimals) keeps the
// total supply backed by the reserve. Tokens without a reserve are always
// allowed. Both sides are scaled up to the larger decimal count, never down.
func (g *Guard) CheckMintAllowed(ctx context.Context, coin *stablecoin.StableCoin, mint *big.Int) (*Decision, error) {
	if !coin.HasReserve() {
		return &Decision{Allowed: true, Reason: "no reserve configured"}, nil
	}
	snap, err := g.feed.Snapshot(ctx, coin.ReserveAddress)
	if err != nil {
		return nil, err
	}

	supply := new(big.Int).Add(mint, totalSupply(coin))
	scaledSupply, scaledReserve, decimals := amount.CommonScale(supply, coin.Decimals, snap.Amount, snap.Decimals)

	d := &Decision{
		Allowed:  scaledSupply.Cmp(scaledReserve) <= 0,
		Supply:   scaledSupply,
		Reserve:  scaledReserve,
		Decimals: decimals,
	}
	if !d.Allowed {
		d.Reason = "supply " + amount.Format(scaledSupply, decimals) + " would exceed reserve " + amount.Format(scaledReserve, decimals)
	}
	g.logger.WithFields(logrus.Fields{
		"token":    coin.TokenID,
		"allowed":  d.Allowed,
		"supply":   scaledSupply.String(),
		"reserve":  scaledReserve.String(),
		"decimals": decimals,
	}).Debug("reserve checked")
	return d, nil
}

func totalSupply(coin *stablecoin.StableCoin) *big.Int {
	if coin.TotalSupply == nil {
		return new(big.Int)
	}
	return coin.TotalSupply
}
