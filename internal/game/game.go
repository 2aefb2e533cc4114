// Package game holds the state of one trading session and the state machine
// that moves it through its rounds. A Game is not safe for concurrent use;
// the sequencer owns it and applies commands one at a time.
package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/config"
	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/marketmaker"
	"github.com/nathanyu/trading-game/internal/matching"
	"github.com/nathanyu/trading-game/internal/orderbook"
	"github.com/nathanyu/trading-game/internal/portfolio"
	"github.com/nathanyu/trading-game/internal/pricing"
)

// Scheduler arms and cancels the deadline of the running round. When the
// deadline elapses the scheduler must feed a DeadlineCommand for that round
// back through Apply.
type Scheduler interface {
	Schedule(d time.Duration, round int)
	Cancel()
}

type noopScheduler struct{}

func (noopScheduler) Schedule(time.Duration, int) {}
func (noopScheduler) Cancel()                     {}

// Outcome describes what a command did.
type Outcome struct {
	// Changed is set when the state visible to players changed.
	Changed bool
	// Event is set when the command closed a round.
	Event *domain.RoundEvent
}

// Game is the aggregate of one session: players, the current round's book,
// the trade log and the price history.
type Game struct {
	id     string
	cfg    config.GameConfig
	logger *zap.Logger

	engine     *matching.Engine
	quoter     *marketmaker.Quoter
	scheduler  Scheduler
	now        func() time.Time
	newOrderID func() string

	phase   domain.Phase
	round   int
	started bool
	// closed is set once the auction of the current round has run.
	closed      bool
	roundEndsAt *time.Time

	players *portfolio.Registry
	book    *orderbook.OrderBook
	trades  []*domain.Trade
	history []domain.PricePoint
	price   int64
}

// Option configures a Game.
type Option func(*Game)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Game) { g.logger = l }
}

// WithScheduler sets the deadline scheduler. Without one rounds only close
// through player or monitor commands.
func WithScheduler(s Scheduler) Option {
	return func(g *Game) { g.scheduler = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Game) { g.now = now }
}

// WithIDGenerators overrides how order and trade ids are generated.
func WithIDGenerators(orderID, tradeID func() string) Option {
	return func(g *Game) {
		g.newOrderID = orderID
		g.engine = matching.NewEngine(matching.WithPricePolicy(g.engine.Policy()), matching.WithIDGenerator(tradeID))
	}
}

// New creates a game in the lobby. Market-maker bots are registered right
// away and the synthetic price history is generated from the seed.
func New(id string, cfg config.GameConfig, opts ...Option) (*Game, error) {
	policy, err := matching.ParsePricePolicy(cfg.ExecutionPrice)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	g := &Game{
		id:         id,
		cfg:        cfg,
		logger:     zap.NewNop(),
		engine:     matching.NewEngine(matching.WithPricePolicy(policy)),
		quoter:     marketmaker.NewQuoter(seed),
		scheduler:  noopScheduler{},
		now:        time.Now,
		newOrderID: uuid.NewString,
		phase:      domain.PhaseLobby,
		round:      1,
		players:    portfolio.NewRegistry(),
		book:       orderbook.NewOrderBook(cfg.Stock, 1),
		price:      cfg.FallbackPrice,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Named("game").With(zap.String("game", id))

	g.history = pricing.SyntheticHistory(rand.New(rand.NewPCG(seed, seed+1)), cfg.HistoryDays)
	if n := len(g.history); n > 0 {
		g.price = g.history[n-1].Price
	}

	for i := 1; i <= cfg.MarketMakers; i++ {
		g.players.Add(&domain.Player{
			ID:            fmt.Sprintf("mm-%d", i),
			Name:          fmt.Sprintf("Market Maker %d", i),
			Cash:          cfg.MarketMakerCash,
			Holdings:      cfg.MarketMakerShares,
			IsMarketMaker: true,
			IsOnline:      true,
			IsDone:        true,
		})
	}
	g.players.RecomputeTotals(g.price)

	return g, nil
}

// ID returns the game id.
func (g *Game) ID() string { return g.id }

// Phase returns the current phase.
func (g *Game) Phase() domain.Phase { return g.phase }

// Round returns the current round, starting at 1.
func (g *Game) Round() int { return g.round }

// Price returns the current reference price.
func (g *Game) Price() int64 { return g.price }

// Book returns the current round's order book.
func (g *Game) Book() *orderbook.OrderBook { return g.book }

// Player returns a player by id.
func (g *Game) Player(id string) (*domain.Player, bool) { return g.players.Get(id) }

// Apply executes one command. A returned error means the command was
// rejected and the game is unchanged. The exception is an ErrInternal from
// closing the round after an accepted order or PLAYER_DONE: that command's
// own effect stands and the round stays open.
func (g *Game) Apply(ctx context.Context, cmd domain.Command) (Outcome, error) {
	if g.phase == domain.PhaseFinished && cmd.Type() != domain.CommandDisconnect {
		return Outcome{}, domain.Invalid("game %s is finished", g.id)
	}

	switch c := cmd.(type) {
	case domain.JoinCommand:
		return g.join(c)
	case domain.StartCommand:
		return g.start(c)
	case domain.StartTradingCommand:
		return g.startTrading(c)
	case domain.SubmitOrderCommand:
		return g.submitOrder(ctx, c)
	case domain.PlayerDoneCommand:
		return g.playerDone(ctx, c)
	case domain.ForceCloseCommand:
		return g.forceClose(ctx, c)
	case domain.ProcessRoundCommand:
		return g.processRound(ctx, c)
	case domain.AdvanceRoundCommand:
		return g.advanceRound(c)
	case domain.DeadlineCommand:
		return g.deadline(ctx, c)
	case domain.DisconnectCommand:
		return g.disconnect(c)
	default:
		return Outcome{}, domain.Invalid("unsupported command %s", cmd.Type())
	}
}

// Close cancels any pending deadline.
func (g *Game) Close() {
	g.scheduler.Cancel()
}
