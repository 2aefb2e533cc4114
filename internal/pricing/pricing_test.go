package pricing

import (
	"math/rand/v2"
	"testing"

	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBook struct {
	bid, ask *domain.Order
}

func (b fakeBook) BestBid() (*domain.Order, bool) { return b.bid, b.bid != nil }
func (b fakeBook) BestAsk() (*domain.Order, bool) { return b.ask, b.ask != nil }

func order(price int64) *domain.Order {
	return &domain.Order{Price: price, Quantity: 1, Remaining: 1, Status: domain.OrderStatusPending}
}

func trade(price, qty int64) *domain.Trade {
	return &domain.Trade{Price: price, Quantity: qty}
}

func TestVWAP(t *testing.T) {
	assert.Equal(t, int64(50), VWAP([]*domain.Trade{trade(50, 10)}))
	// (50*1 + 51*1) / 2 = 50.5 -> 51
	assert.Equal(t, int64(51), VWAP([]*domain.Trade{trade(50, 1), trade(51, 1)}))
	// (50*2 + 51*1) / 3 = 50.33 -> 50
	assert.Equal(t, int64(50), VWAP([]*domain.Trade{trade(50, 2), trade(51, 1)}))
	// (10*1 + 11*2) / 3 = 10.67 -> 11
	assert.Equal(t, int64(11), VWAP([]*domain.Trade{trade(10, 1), trade(11, 2)}))
	assert.Equal(t, int64(0), VWAP(nil))
}

func TestDiscover_Trades(t *testing.T) {
	price, src := Discover(100, []*domain.Trade{trade(50, 10)}, fakeBook{bid: order(40)})
	assert.Equal(t, int64(50), price)
	assert.Equal(t, SourceVWAP, src)
}

func TestDiscover_Midpoint(t *testing.T) {
	price, src := Discover(100, nil, fakeBook{bid: order(48), ask: order(53)})
	assert.Equal(t, int64(51), price) // 50.5 rounds half up
	assert.Equal(t, SourceMidpoint, src)
}

func TestDiscover_BidsOnly(t *testing.T) {
	price, src := Discover(100, nil, fakeBook{bid: order(60)})
	assert.Equal(t, int64(57), price)
	assert.Equal(t, SourceBidsOnly, src)

	// 0.95 * 1 = 0.95 -> 1, and never below the floor.
	price, _ = Discover(100, nil, fakeBook{bid: order(1)})
	assert.Equal(t, int64(1), price)
}

func TestDiscover_AsksOnly(t *testing.T) {
	price, src := Discover(100, nil, fakeBook{ask: order(60)})
	assert.Equal(t, int64(63), price)
	assert.Equal(t, SourceAsksOnly, src)

	// 1.05 * 10 = 10.5 -> 11
	price, _ = Discover(100, nil, fakeBook{ask: order(10)})
	assert.Equal(t, int64(11), price)
}

func TestDiscover_EmptyBookKeepsPrice(t *testing.T) {
	price, src := Discover(73, nil, fakeBook{})
	assert.Equal(t, int64(73), price)
	assert.Equal(t, SourceUnchanged, src)
}

func TestDiscover_NeverBelowFloor(t *testing.T) {
	cases := []struct {
		name    string
		current int64
		trades  []*domain.Trade
		book    fakeBook
	}{
		{"zero current", 0, nil, fakeBook{}},
		{"negative current", -5, nil, fakeBook{}},
		{"tiny bid", 10, nil, fakeBook{bid: order(1)}},
		{"tiny midpoint", 10, nil, fakeBook{bid: order(1), ask: order(2)}},
		{"tiny trade", 10, []*domain.Trade{trade(1, 1)}, fakeBook{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price, _ := Discover(tc.current, tc.trades, tc.book)
			assert.GreaterOrEqual(t, price, MinPrice)
		})
	}
}

func TestSyntheticHistory(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	history := SyntheticHistory(rng, 10)

	require.Len(t, history, 10)
	for i, p := range history {
		assert.Equal(t, i+1, p.Day)
		assert.False(t, p.IsTradeDay)
		assert.GreaterOrEqual(t, p.Price, int64(historyLow))
		assert.LessOrEqual(t, p.Price, int64(historyHigh))
		if i > 0 {
			// Each step moves at most 2, plus one unit of rounding on each side.
			assert.LessOrEqual(t, abs(p.Price-history[i-1].Price), int64(3))
		}
	}

	again := SyntheticHistory(rand.New(rand.NewPCG(1, 2)), 10)
	assert.Equal(t, history, again)
}

func TestNextPoint(t *testing.T) {
	p := NextPoint(10, 3, 55, true)
	assert.Equal(t, domain.PricePoint{Day: 13, Round: 3, Price: 55, IsTradeDay: true}, p)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
