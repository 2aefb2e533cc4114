package marketdata

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/pricing"
)

// tape is the market data kept for one game.
type tape struct {
	trades  []*domain.Trade
	candles []domain.Candle
}

// Publisher receives processed rounds and maintains each game's trade tape
// and per-round candles.
type Publisher struct {
	mu    sync.RWMutex
	tapes map[string]*tape

	// Channel to receive round events
	RoundIn chan *domain.RoundEvent

	done    chan struct{}
	stopped chan struct{}
	logger  *zap.Logger
}

// NewPublisher creates a new market data publisher.
func NewPublisher(bufferSize int, logger *zap.Logger) *Publisher {
	return &Publisher{
		tapes:   make(map[string]*tape),
		RoundIn: make(chan *domain.RoundEvent, bufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger.Named("marketdata"),
	}
}

// Start begins the publisher's application loop.
func (p *Publisher) Start() {
	go p.run()
}

// Stop shuts down the publisher and waits for the loop to exit.
func (p *Publisher) Stop() {
	close(p.done)
	<-p.stopped
}

func (p *Publisher) run() {
	defer close(p.stopped)
	p.logger.Info("publisher started")
	for {
		select {
		case event := <-p.RoundIn:
			p.Record(event)
		case <-p.done:
			p.logger.Info("publisher stopped")
			return
		}
	}
}

// Record appends the round's trades to the game's tape and closes its candle.
// Events for a round already recorded are ignored.
func (p *Publisher) Record(event *domain.RoundEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tapes[event.GameID]
	if !ok {
		t = &tape{}
		p.tapes[event.GameID] = t
	}
	if n := len(t.candles); n > 0 && t.candles[n-1].Round >= event.Round {
		p.logger.Warn("duplicate round event ignored",
			zap.String("game", event.GameID),
			zap.Int("round", event.Round),
		)
		return
	}

	t.trades = append(t.trades, event.Trades...)
	t.candles = append(t.candles, candle(event))
}

// candle builds the bar of one round from its trades in execution order.
func candle(event *domain.RoundEvent) domain.Candle {
	c := domain.Candle{
		GameID:    event.GameID,
		Stock:     event.Stock,
		Round:     event.Round,
		Open:      event.Price,
		High:      event.Price,
		Low:       event.Price,
		Close:     event.Price,
		Price:     event.Price,
		Timestamp: event.Timestamp,
	}
	if len(event.Trades) == 0 {
		return c
	}

	first := event.Trades[0]
	c.Open, c.High, c.Low = first.Price, first.Price, first.Price
	for _, tr := range event.Trades {
		if tr.Price > c.High {
			c.High = tr.Price
		}
		if tr.Price < c.Low {
			c.Low = tr.Price
		}
		c.Close = tr.Price
		c.Volume += tr.Quantity
	}
	c.VWAP = pricing.VWAP(event.Trades)
	return c
}

// GetCandles returns the candles of a game in round order.
func (p *Publisher) GetCandles(gameID string) []domain.Candle {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.tapes[gameID]
	if !ok {
		return []domain.Candle{}
	}
	out := make([]domain.Candle, len(t.candles))
	copy(out, t.candles)
	return out
}

// GetTrades returns the trades of a game. A positive round restricts the
// result to that round.
func (p *Publisher) GetTrades(gameID string, round int) []domain.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := []domain.Trade{}
	t, ok := p.tapes[gameID]
	if !ok {
		return result
	}
	for _, tr := range t.trades {
		if round > 0 && tr.Round != round {
			continue
		}
		result = append(result, *tr)
	}
	return result
}

// Forget drops the data kept for a game.
func (p *Publisher) Forget(gameID string) {
	p.mu.Lock()
	delete(p.tapes, gameID)
	p.mu.Unlock()
}
