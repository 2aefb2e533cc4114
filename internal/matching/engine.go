package matching

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/orderbook"
)

// PricePolicy decides the execution price of a crossing bid/ask pair.
type PricePolicy string

const (
	// PriceAtAsk executes at the sell order's limit price. This is the
	// canonical rule.
	PriceAtAsk PricePolicy = "seller"
	// PriceAtMidpoint executes at the rounded midpoint of bid and ask.
	PriceAtMidpoint PricePolicy = "midpoint"
)

// ParsePricePolicy validates a policy name from configuration.
func ParsePricePolicy(s string) (PricePolicy, error) {
	switch PricePolicy(s) {
	case PriceAtAsk, "":
		return PriceAtAsk, nil
	case PriceAtMidpoint:
		return PriceAtMidpoint, nil
	default:
		return "", errors.Errorf("unknown execution price policy %q", s)
	}
}

// Engine runs the batch double auction for one round.
type Engine struct {
	policy PricePolicy
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPricePolicy overrides the execution price rule.
func WithPricePolicy(p PricePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithIDGenerator overrides how trade ids are generated.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// NewEngine creates a new matching engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		policy: PriceAtAsk,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the configured execution price rule.
func (e *Engine) Policy() PricePolicy {
	return e.policy
}

// RunAuction clears the open orders of the book's current round.
//
// Bids are walked from the highest price and asks from the lowest, earlier
// submissions first among equal prices. While the best bid crosses the best
// ask, they trade min(remaining) and any order that fills leaves the book.
// Trades are returned in execution order. Orders that do not fill stay open
// in the book; what happens to them afterwards is the caller's decision.
func (e *Engine) RunAuction(book *orderbook.OrderBook) []*domain.Trade {
	var trades []*domain.Trade

	for {
		bid, ok := book.BestBid()
		if !ok {
			break
		}
		ask, ok := book.BestAsk()
		if !ok {
			break
		}
		if bid.Price < ask.Price {
			break
		}

		qty := min(bid.Remaining, ask.Remaining)
		bid.Fill(qty)
		ask.Fill(qty)

		trades = append(trades, &domain.Trade{
			ID:          e.newID(),
			Stock:       book.Stock,
			Price:       e.executionPrice(bid, ask),
			Quantity:    qty,
			BuyerID:     bid.PlayerID,
			SellerID:    ask.PlayerID,
			BuyOrderID:  bid.ID,
			SellOrderID: ask.ID,
			Round:       book.Round,
			Seq:         len(trades) + 1,
		})

		if bid.Remaining == 0 {
			book.Remove(bid)
		}
		if ask.Remaining == 0 {
			book.Remove(ask)
		}
	}

	return trades
}

func (e *Engine) executionPrice(bid, ask *domain.Order) int64 {
	if e.policy == PriceAtMidpoint {
		// Half-up rounding of (bid+ask)/2 on positive integers.
		return (bid.Price + ask.Price + 1) / 2
	}
	return ask.Price
}
