package orderbook

import (
	"sort"

	"github.com/google/btree"

	"github.com/nathanyu/trading-game/internal/domain"
)

const btreeDegree = 8

// bidLess orders bids by price descending, then by submission sequence.
func bidLess(a, b *domain.Order) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.Seq < b.Seq
}

// askLess orders asks by price ascending, then by submission sequence.
func askLess(a, b *domain.Order) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Seq < b.Seq
}

// OrderBook holds the orders of the active round for a single stock.
//
// Every order submitted this round stays in the insertion-ordered log, while
// the two side trees only index the orders that can still trade. The minimum
// of each tree is the best price with the earliest submission among equals.
type OrderBook struct {
	Stock string
	Round int

	orders []*domain.Order
	bids   *btree.BTreeG[*domain.Order]
	asks   *btree.BTreeG[*domain.Order]

	// seq survives rollovers so carried orders keep their priority.
	seq uint64
}

// NewOrderBook creates an empty book for the given stock and round.
func NewOrderBook(stock string, round int) *OrderBook {
	return &OrderBook{
		Stock: stock,
		Round: round,
		bids:  btree.NewG(btreeDegree, bidLess),
		asks:  btree.NewG(btreeDegree, askLess),
	}
}

func (ob *OrderBook) side(s domain.Side) *btree.BTreeG[*domain.Order] {
	if s == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Add appends an order to the round. The book stamps the submission
// sequence, which is the tie-break key for matching.
func (ob *OrderBook) Add(order *domain.Order) {
	ob.seq++
	order.Seq = ob.seq
	order.Round = ob.Round
	ob.orders = append(ob.orders, order)
	if order.Open() {
		ob.side(order.Side).ReplaceOrInsert(order)
	}
}

// Remove drops an order from the open index. The order stays in the round log.
func (ob *OrderBook) Remove(order *domain.Order) {
	ob.side(order.Side).Delete(order)
}

// Best returns the highest priority open order on a side.
func (ob *OrderBook) Best(s domain.Side) (*domain.Order, bool) {
	return ob.side(s).Min()
}

// BestBid returns the best open buy order.
func (ob *OrderBook) BestBid() (*domain.Order, bool) {
	return ob.bids.Min()
}

// BestAsk returns the best open sell order.
func (ob *OrderBook) BestAsk() (*domain.Order, bool) {
	return ob.asks.Min()
}

// HasOrders returns whether a side has any open orders.
func (ob *OrderBook) HasOrders(s domain.Side) bool {
	return ob.side(s).Len() > 0
}

// Open returns the open orders of a side in priority order.
func (ob *OrderBook) Open(s domain.Side) []*domain.Order {
	tree := ob.side(s)
	result := make([]*domain.Order, 0, tree.Len())
	tree.Ascend(func(o *domain.Order) bool {
		result = append(result, o)
		return true
	})
	return result
}

// Orders returns every order of the round in submission order.
func (ob *OrderBook) Orders() []*domain.Order {
	out := make([]*domain.Order, len(ob.orders))
	copy(out, ob.orders)
	return out
}

// Len returns the number of orders submitted this round.
func (ob *OrderBook) Len() int {
	return len(ob.orders)
}

// ReservedCash is the cash committed to the player's open buy orders.
func (ob *OrderBook) ReservedCash(playerID string) int64 {
	var total int64
	ob.bids.Ascend(func(o *domain.Order) bool {
		if o.PlayerID == playerID {
			total += o.Price * o.Remaining
		}
		return true
	})
	return total
}

// ReservedShares is the quantity committed to the player's open sell orders.
func (ob *OrderBook) ReservedShares(playerID string) int64 {
	var total int64
	ob.asks.Ascend(func(o *domain.Order) bool {
		if o.PlayerID == playerID {
			total += o.Remaining
		}
		return true
	})
	return total
}

// Rollover prepares the book for the next round. With carry set, open orders
// move to the next round and keep their priority; otherwise they are
// cancelled. The returned slice holds the orders cancelled by the rollover.
func (ob *OrderBook) Rollover(nextRound int, carry bool) []*domain.Order {
	var kept, cancelled []*domain.Order
	for _, o := range ob.orders {
		if !o.Open() {
			continue
		}
		if carry {
			o.Round = nextRound
			kept = append(kept, o)
			continue
		}
		o.Status = domain.OrderStatusCancelled
		cancelled = append(cancelled, o)
	}

	ob.bids.Clear(false)
	ob.asks.Clear(false)
	ob.orders = kept
	ob.Round = nextRound
	for _, o := range kept {
		ob.side(o.Side).ReplaceOrInsert(o)
	}
	return cancelled
}

// Consolidated returns an aggregated view of the open orders.
func (ob *OrderBook) Consolidated(depth int) domain.ConsolidatedBook {
	return domain.ConsolidatedBook{
		Stock: ob.Stock,
		Bids:  aggregateLevels(ob.bids, depth, true),
		Asks:  aggregateLevels(ob.asks, depth, false),
	}
}

// aggregateLevels sums remaining quantity per price.
// For bids: descending (highest first). For asks: ascending (lowest first).
func aggregateLevels(tree *btree.BTreeG[*domain.Order], depth int, descending bool) []domain.PriceLevel {
	volume := make(map[int64]int64)
	tree.Ascend(func(o *domain.Order) bool {
		volume[o.Price] += o.Remaining
		return true
	})

	prices := make([]int64, 0, len(volume))
	for price := range volume {
		prices = append(prices, price)
	}

	if descending {
		sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })
	} else {
		sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	}

	if depth > 0 && len(prices) > depth {
		prices = prices[:depth]
	}

	levels := make([]domain.PriceLevel, len(prices))
	for i, price := range prices {
		levels[i] = domain.PriceLevel{
			Price:    price,
			Quantity: volume[price],
		}
	}
	return levels
}
