// Package marketmaker generates the liquidity quotes placed by bot players at
// the start of every trading round.
package marketmaker

import (
	"math/rand/v2"

	"github.com/nathanyu/trading-game/internal/domain"
)

const (
	maxSpread   = 5
	maxQuantity = 10
)

// Quote is one order a bot wants to place.
type Quote struct {
	Side     domain.Side
	Price    int64
	Quantity int64
}

// Quoter draws quotes around the reference price. It is not safe for
// concurrent use; each game owns one.
type Quoter struct {
	rng *rand.Rand
}

// NewQuoter creates a quoter with a seeded source, so a game replays the same
// quotes for the same seed.
func NewQuoter(seed uint64) *Quoter {
	return &Quoter{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Quotes returns a bid 1..5 below price (never below 1) and an ask 1..5 above
// price, each for 1..10 shares.
func (q *Quoter) Quotes(price int64) []Quote {
	bid := max(price-q.spread(), 1)
	ask := price + q.spread()
	return []Quote{
		{Side: domain.SideBuy, Price: bid, Quantity: q.quantity()},
		{Side: domain.SideSell, Price: ask, Quantity: q.quantity()},
	}
}

// Affordable reports whether the bot can back the quote with what it has
// left after its open orders.
func Affordable(bot *domain.Player, quote Quote, reservedCash, reservedShares int64) bool {
	if quote.Side == domain.SideBuy {
		return domain.CanAfford(bot.Cash-reservedCash, quote.Price, quote.Quantity)
	}
	return bot.Holdings-reservedShares >= quote.Quantity
}

func (q *Quoter) spread() int64 {
	return 1 + q.rng.Int64N(maxSpread)
}

func (q *Quoter) quantity() int64 {
	return 1 + q.rng.Int64N(maxQuantity)
}
