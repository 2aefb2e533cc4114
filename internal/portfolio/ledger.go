package portfolio

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nathanyu/trading-game/internal/domain"
)

// Settle applies trades to the buyers' and sellers' balances. Every trade
// moves price*quantity cash from buyer to seller and quantity shares from
// seller to buyer, so the total cash and total shares across players never
// change.
//
// All counterparties are resolved before anything is applied; an unknown
// player leaves every balance untouched.
func (r *Registry) Settle(trades []*domain.Trade) error {
	type leg struct {
		buyer, seller *domain.Player
		trade         *domain.Trade
	}
	legs := make([]leg, 0, len(trades))
	for _, t := range trades {
		buyer, ok := r.players[t.BuyerID]
		if !ok {
			return errors.Errorf("settle trade %s: unknown buyer %s", t.ID, t.BuyerID)
		}
		seller, ok := r.players[t.SellerID]
		if !ok {
			return errors.Errorf("settle trade %s: unknown seller %s", t.ID, t.SellerID)
		}
		legs = append(legs, leg{buyer: buyer, seller: seller, trade: t})
	}

	for _, l := range legs {
		cost := l.trade.Notional()

		// Buyer: deduct cash, receive shares
		l.buyer.Cash -= cost
		l.buyer.Holdings += l.trade.Quantity

		// Seller: receive cash, deliver shares
		l.seller.Cash += cost
		l.seller.Holdings -= l.trade.Quantity
	}
	return nil
}

// RecomputeTotals revalues every portfolio at price.
func (r *Registry) RecomputeTotals(price int64) {
	for _, p := range r.order {
		p.TotalValue = p.Cash + p.Holdings*price
	}
}

// Totals returns the aggregate cash and shares held by all players.
func (r *Registry) Totals() (cash, shares int64) {
	for _, p := range r.order {
		cash += p.Cash
		shares += p.Holdings
	}
	return cash, shares
}

// MarketValue is sum(cash) + sum(holdings) * price. Settlement leaves it
// unchanged for a fixed price.
func (r *Registry) MarketValue(price int64) int64 {
	cash, shares := r.Totals()
	return cash + shares*price
}

// Rank assigns final ranks to the human players: highest total value first,
// ties kept in join order, ranks 1..N. Monitors and bots get no rank. The
// ranked players are returned in rank order.
func (r *Registry) Rank() []*domain.Player {
	humans := r.Humans()
	sort.SliceStable(humans, func(i, j int) bool {
		return humans[i].TotalValue > humans[j].TotalValue
	})
	for i, p := range humans {
		rank := i + 1
		p.Rank = &rank
	}
	return humans
}
