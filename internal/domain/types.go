package domain

import "time"

// DefaultInstrument is the single synthetic stock traded in a game.
const DefaultInstrument = "CAMB"

// Order limits. Their product fits in an int64, so the notional of any
// accepted order does too.
const (
	MaxPrice    int64 = 1_000_000_000
	MaxQuantity int64 = 1_000_000_000
)

// CanAfford reports whether cash covers price x qty. It divides instead of
// multiplying, so it holds for any positive price and qty.
func CanAfford(cash, price, qty int64) bool {
	if cash < 0 || price <= 0 || qty <= 0 {
		return false
	}
	return price <= cash/qty
}

// Side represents the order side (buy or sell).
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Phase is the state of the round lifecycle.
type Phase string

const (
	PhaseLobby      Phase = "LOBBY"
	PhaseSetup      Phase = "SETUP"
	PhaseTrading    Phase = "TRADING"
	PhaseProcessing Phase = "PROCESSING"
	PhaseResults    Phase = "RESULTS"
	PhaseFinished   Phase = "FINISHED"
)

// Player is a participant in a game. Prices and cash are whole currency units.
type Player struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Cash            int64  `json:"cash"`
	Holdings        int64  `json:"holdings"`
	TotalValue      int64  `json:"totalValue"`
	IsMonitor       bool   `json:"isMonitor"`
	IsMarketMaker   bool   `json:"isMarketMaker"`
	OrdersSubmitted int    `json:"ordersSubmitted"`
	IsDone          bool   `json:"isDone"`
	IsOnline        bool   `json:"isOnline"`
	Rank            *int   `json:"rank,omitempty"`
	JoinSeq         uint64 `json:"-"`
}

// IsHuman reports whether the player is an ordinary trader, i.e. neither a
// monitor nor a market-maker bot. Only humans gate round completion and are
// ranked at the end of the game.
func (p *Player) IsHuman() bool {
	return !p.IsMonitor && !p.IsMarketMaker
}

// Order is a limit order for one round.
// Invariant: Filled + Remaining == Quantity, and Status == FILLED iff Remaining == 0.
type Order struct {
	ID         string      `json:"id"`
	PlayerID   string      `json:"playerId"`
	PlayerName string      `json:"playerName"`
	Stock      string      `json:"stock"`
	Side       Side        `json:"type"`
	Price      int64       `json:"price"`
	Quantity   int64       `json:"quantity"`
	Remaining  int64       `json:"remainingQuantity"`
	Filled     int64       `json:"filledQuantity"`
	Round      int         `json:"round"`
	Status     OrderStatus `json:"status"`
	Seq        uint64      `json:"-"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Open reports whether the order can still trade.
func (o *Order) Open() bool {
	return o.Remaining > 0 && (o.Status == OrderStatusPending || o.Status == OrderStatusPartial)
}

// Fill records an execution of qty against the order.
func (o *Order) Fill(qty int64) {
	o.Remaining -= qty
	o.Filled += qty
	if o.Remaining == 0 {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartial
	}
}

// Trade is one execution between a buy and a sell order.
type Trade struct {
	ID          string `json:"id"`
	Stock       string `json:"stock"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	BuyerID     string `json:"buyerId"`
	SellerID    string `json:"sellerId"`
	BuyOrderID  string `json:"buyOrderId"`
	SellOrderID string `json:"sellOrderId"`
	Round       int    `json:"round"`
	Seq         int    `json:"seq"`
}

// Notional returns price x quantity. Order limits keep it within int64.
func (t *Trade) Notional() int64 {
	return t.Price * t.Quantity
}

// PricePoint is one entry of the reference price history.
type PricePoint struct {
	Day        int   `json:"day"`
	Round      int   `json:"round,omitempty"`
	Price      int64 `json:"price"`
	IsTradeDay bool  `json:"isTradeDay"`
}

// Candle is the OHLCV bar of one processed round. A round without trades
// yields a flat bar at the reference price with zero volume.
type Candle struct {
	GameID    string    `json:"gameId"`
	Stock     string    `json:"stock"`
	Round     int       `json:"round"`
	Open      int64     `json:"open"`
	High      int64     `json:"high"`
	Low       int64     `json:"low"`
	Close     int64     `json:"close"`
	Volume    int64     `json:"volume"`
	VWAP      int64     `json:"vwap"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceLevel represents an aggregated price level of the consolidated book.
type PriceLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// ConsolidatedBook is the anonymous, aggregated view of the open orders.
type ConsolidatedBook struct {
	Stock string       `json:"stock"`
	Bids  []PriceLevel `json:"bids"`
	Asks  []PriceLevel `json:"asks"`
}

// PlayerView is a player as seen by a specific viewer. Cash and holdings are
// only disclosed to the player themselves and to monitors.
type PlayerView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Cash            *int64 `json:"cash,omitempty"`
	Holdings        *int64 `json:"holdings,omitempty"`
	TotalValue      int64  `json:"totalValue"`
	IsMonitor       bool   `json:"isMonitor"`
	IsMarketMaker   bool   `json:"isMarketMaker"`
	OrdersSubmitted int    `json:"ordersSubmitted"`
	IsDone          bool   `json:"isDone"`
	IsOnline        bool   `json:"isOnline"`
	Rank            *int   `json:"rank,omitempty"`
}

// Snapshot is the serializable game state sent to one viewer.
type Snapshot struct {
	GameID             string           `json:"gameId"`
	Round              int              `json:"round"`
	MaxRounds          int              `json:"maxRounds"`
	Phase              Phase            `json:"phase"`
	GameStarted        bool             `json:"gameStarted"`
	RoundEndsAt        *time.Time       `json:"roundEndsAt,omitempty"`
	Players            []PlayerView     `json:"players"`
	Orders             []Order          `json:"orders"`
	ConsolidatedOrders ConsolidatedBook `json:"consolidatedOrders"`
	Trades             []Trade          `json:"trades"`
	PriceHistory       []PricePoint     `json:"priceHistory"`
	CurrentPrices      map[string]int64 `json:"currentPrices"`
}

// RoundEvent is emitted once per processed round for downstream consumers.
// Seq is stamped by the sequencer and increases per game.
type RoundEvent struct {
	GameID    string     `json:"gameId"`
	Seq       uint64     `json:"seq"`
	Round     int        `json:"round"`
	Stock     string     `json:"stock"`
	Trades    []*Trade   `json:"trades"`
	PrevPrice int64      `json:"prevPrice"`
	Price     int64      `json:"price"`
	Point     PricePoint `json:"point"`
	Trigger   string     `json:"trigger"`
	Timestamp time.Time  `json:"timestamp"`
}
