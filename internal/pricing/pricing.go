// Package pricing derives the reference price of the instrument after each
// round and generates the synthetic history shown before the first round.
package pricing

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/nathanyu/trading-game/internal/domain"
)

// MinPrice is the floor for any reference price.
const MinPrice int64 = 1

var (
	buyerDecay  = decimal.RequireFromString("0.95")
	sellerDrift = decimal.RequireFromString("1.05")
	two         = decimal.NewFromInt(2)
)

// Book is the part of the order book price discovery looks at: the best
// orders left after matching.
type Book interface {
	BestBid() (*domain.Order, bool)
	BestAsk() (*domain.Order, bool)
}

// Source tells which rule produced a new reference price.
type Source string

const (
	SourceVWAP      Source = "vwap"
	SourceMidpoint  Source = "midpoint"
	SourceBidsOnly  Source = "bids_only"
	SourceAsksOnly  Source = "asks_only"
	SourceUnchanged Source = "unchanged"
)

// Discover computes the new reference price.
//
//   - trades: volume-weighted average price, rounded half up
//   - no trades, both sides open: rounded midpoint of best bid and best ask
//   - only bids open: best bid biased down 5%
//   - only asks open: best ask biased up 5%
//   - empty book: the current price
//
// The result is never below MinPrice.
func Discover(current int64, trades []*domain.Trade, book Book) (int64, Source) {
	if len(trades) > 0 {
		return floor(VWAP(trades)), SourceVWAP
	}

	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()
	switch {
	case hasBid && hasAsk:
		mid := decimal.NewFromInt(bid.Price).Add(decimal.NewFromInt(ask.Price)).Div(two)
		return floor(roundHalfUp(mid)), SourceMidpoint
	case hasBid:
		return floor(roundHalfUp(decimal.NewFromInt(bid.Price).Mul(buyerDecay))), SourceBidsOnly
	case hasAsk:
		return floor(roundHalfUp(decimal.NewFromInt(ask.Price).Mul(sellerDrift))), SourceAsksOnly
	default:
		return floor(current), SourceUnchanged
	}
}

// VWAP returns round_half_up(sum(price*qty) / sum(qty)). It returns 0 when
// there is no traded volume.
func VWAP(trades []*domain.Trade) int64 {
	notional := decimal.Zero
	volume := decimal.Zero
	for _, t := range trades {
		q := decimal.NewFromInt(t.Quantity)
		notional = notional.Add(decimal.NewFromInt(t.Price).Mul(q))
		volume = volume.Add(q)
	}
	if volume.IsZero() {
		return 0
	}
	q, r := notional.QuoRem(volume, 0)
	if r.Mul(two).GreaterThanOrEqual(volume) {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q.IntPart()
}

// roundHalfUp rounds a non-negative value to the nearest integer, halves up.
// decimal.Round rounds halves away from zero, which is the same for
// non-negative prices.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

func floor(p int64) int64 {
	return max(p, MinPrice)
}

// History bounds for the synthetic pre-game prices.
const (
	historyStartMin = 50
	historyStartMax = 70
	historyLow      = 20
	historyHigh     = 100
)

// SyntheticHistory produces days of pre-game prices: a random walk starting
// between 50 and 70, moving at most 2 per day and clamped to [20, 100].
// Points are flagged as non-trade days.
func SyntheticHistory(rng *rand.Rand, days int) []domain.PricePoint {
	price := decimal.NewFromFloat(historyStartMin + rng.Float64()*(historyStartMax-historyStartMin))
	low := decimal.NewFromInt(historyLow)
	high := decimal.NewFromInt(historyHigh)

	history := make([]domain.PricePoint, 0, days)
	for day := 1; day <= days; day++ {
		step := decimal.NewFromFloat((rng.Float64() - 0.5) * 4)
		price = decimal.Min(high, decimal.Max(low, price.Add(step)))
		history = append(history, domain.PricePoint{
			Day:   day,
			Price: floor(roundHalfUp(price)),
		})
	}
	return history
}

// NextPoint builds the history entry for a processed round. Round r follows
// the pre-game days, so its day index is historyDays + r.
func NextPoint(historyDays, round int, price int64, traded bool) domain.PricePoint {
	return domain.PricePoint{
		Day:        historyDays + round,
		Round:      round,
		Price:      price,
		IsTradeDay: traded,
	}
}
