package game

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/marketmaker"
	"github.com/nathanyu/trading-game/internal/telemetry"
)

// Round close triggers, reported on RoundEvent and in metrics.
const (
	TriggerAllDone    = "all_done"
	TriggerDeadline   = "deadline"
	TriggerForceClose = "force_close"
	TriggerMonitor    = "monitor"
)

func (g *Game) join(c domain.JoinCommand) (Outcome, error) {
	if c.PlayerID == "" || c.PlayerName == "" {
		return Outcome{}, domain.Invalid("playerId and playerName are required")
	}

	if p, ok := g.players.Get(c.PlayerID); ok {
		if p.IsMarketMaker {
			return Outcome{}, domain.Invalid("player id %s is reserved", c.PlayerID)
		}
		p.IsOnline = true
		g.logger.Info("player rejoined", zap.String("player", p.ID))
		return Outcome{Changed: true}, nil
	}

	p := &domain.Player{
		ID:        c.PlayerID,
		Name:      c.PlayerName,
		IsMonitor: c.IsMonitor,
		IsOnline:  true,
	}
	if !c.IsMonitor {
		p.Cash = g.cfg.StartingCash
		p.Holdings = g.cfg.StartingHoldings
	}
	p.TotalValue = p.Cash + p.Holdings*g.price
	g.players.Add(p)

	g.logger.Info("player joined",
		zap.String("player", p.ID),
		zap.String("name", p.Name),
		zap.Bool("monitor", p.IsMonitor),
	)
	return Outcome{Changed: true}, nil
}

func (g *Game) start(c domain.StartCommand) (Outcome, error) {
	if _, err := g.monitor(c.PlayerID); err != nil {
		return Outcome{}, err
	}
	if g.phase != domain.PhaseLobby {
		return Outcome{}, domain.Invalid("cannot start game in phase %s", g.phase)
	}

	g.started = true
	if c.WithSetup {
		g.phase = domain.PhaseSetup
		g.logger.Info("game entered setup")
		return Outcome{Changed: true}, nil
	}
	g.beginRound(1)
	return Outcome{Changed: true}, nil
}

func (g *Game) startTrading(c domain.StartTradingCommand) (Outcome, error) {
	if _, err := g.monitor(c.PlayerID); err != nil {
		return Outcome{}, err
	}
	if g.phase != domain.PhaseSetup {
		return Outcome{}, domain.Invalid("cannot start trading in phase %s", g.phase)
	}
	g.beginRound(1)
	return Outcome{Changed: true}, nil
}

func (g *Game) submitOrder(ctx context.Context, c domain.SubmitOrderCommand) (Outcome, error) {
	p, ok := g.players.Get(c.PlayerID)
	if !ok {
		return Outcome{}, domain.Invalid("player %s not found", c.PlayerID)
	}
	if !p.IsHuman() {
		return Outcome{}, domain.Invalid("player %s cannot submit orders", p.ID)
	}
	if g.phase != domain.PhaseTrading || g.closed {
		return Outcome{}, domain.Invalid("orders are not accepted in phase %s", g.phase)
	}
	stock := c.Stock
	if stock == "" {
		stock = g.cfg.Stock
	}
	if stock != g.cfg.Stock {
		return Outcome{}, domain.Invalid("unknown stock %s", c.Stock)
	}
	if p.OrdersSubmitted >= g.cfg.MaxOrdersPerRound {
		return Outcome{}, errors.Wrapf(domain.ErrSubmissionCap, "%d orders already submitted this round", p.OrdersSubmitted)
	}
	if err := g.checkOrder(p, c.Side, c.Price, c.Quantity); err != nil {
		return Outcome{}, err
	}

	order := g.place(p, c.Side, c.Price, c.Quantity)
	telemetry.OrdersTotal.WithLabelValues(string(order.Side), "accepted").Inc()
	g.logger.Debug("order accepted",
		zap.String("order", order.ID),
		zap.String("player", p.ID),
		zap.String("side", string(order.Side)),
		zap.Int64("price", order.Price),
		zap.Int64("quantity", order.Quantity),
	)

	return g.closeIfAllDone(ctx)
}

// checkOrder validates the order fields and that the player can back the
// order with cash or shares not yet committed to other open orders.
func (g *Game) checkOrder(p *domain.Player, side domain.Side, price, qty int64) error {
	if !side.Valid() {
		return domain.Invalid("side must be BUY or SELL, got %q", side)
	}
	if price <= 0 {
		return domain.Invalid("price must be a positive integer, got %d", price)
	}
	if qty <= 0 {
		return domain.Invalid("quantity must be a positive integer, got %d", qty)
	}
	if price > domain.MaxPrice {
		return domain.Invalid("price must be at most %d, got %d", domain.MaxPrice, price)
	}
	if qty > domain.MaxQuantity {
		return domain.Invalid("quantity must be at most %d, got %d", domain.MaxQuantity, qty)
	}

	if side == domain.SideBuy {
		available := p.Cash - g.book.ReservedCash(p.ID)
		if !domain.CanAfford(available, price, qty) {
			return errors.Wrapf(domain.ErrInsufficientFunds, "need %d, available %d", price*qty, available)
		}
		return nil
	}
	available := p.Holdings - g.book.ReservedShares(p.ID)
	if available < qty {
		return errors.Wrapf(domain.ErrInsufficientShares, "need %d, available %d", qty, available)
	}
	return nil
}

func (g *Game) place(p *domain.Player, side domain.Side, price, qty int64) *domain.Order {
	order := &domain.Order{
		ID:         g.newOrderID(),
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Stock:      g.cfg.Stock,
		Side:       side,
		Price:      price,
		Quantity:   qty,
		Remaining:  qty,
		Status:     domain.OrderStatusPending,
		CreatedAt:  g.now(),
	}
	g.book.Add(order)
	p.OrdersSubmitted++
	return order
}

func (g *Game) playerDone(ctx context.Context, c domain.PlayerDoneCommand) (Outcome, error) {
	p, ok := g.players.Get(c.PlayerID)
	if !ok {
		return Outcome{}, domain.Invalid("player %s not found", c.PlayerID)
	}
	if !p.IsHuman() {
		return Outcome{}, domain.Invalid("player %s does not trade", p.ID)
	}
	if g.phase != domain.PhaseTrading || g.closed {
		return Outcome{}, domain.Invalid("cannot finish round in phase %s", g.phase)
	}
	p.IsDone = true
	return g.closeIfAllDone(ctx)
}

func (g *Game) closeIfAllDone(ctx context.Context) (Outcome, error) {
	if !g.cfg.AutoCloseWhenAllDone || !g.allDone() {
		return Outcome{Changed: true}, nil
	}
	return g.process(ctx, TriggerAllDone)
}

// allDone reports whether every trader is done or out of submissions. A game
// with no traders is never done on its own.
func (g *Game) allDone() bool {
	humans := g.players.Humans()
	if len(humans) == 0 {
		return false
	}
	for _, p := range humans {
		if !p.IsDone && p.OrdersSubmitted < g.cfg.MaxOrdersPerRound {
			return false
		}
	}
	return true
}

func (g *Game) forceClose(ctx context.Context, c domain.ForceCloseCommand) (Outcome, error) {
	if _, err := g.monitor(c.PlayerID); err != nil {
		return Outcome{}, err
	}
	if g.phase != domain.PhaseTrading || g.closed {
		return Outcome{}, domain.Invalid("no open round to close in phase %s", g.phase)
	}
	if err := g.checkOwners(); err != nil {
		return Outcome{}, err
	}
	for _, p := range g.players.Humans() {
		p.IsDone = true
	}
	return g.process(ctx, TriggerForceClose)
}

func (g *Game) processRound(ctx context.Context, c domain.ProcessRoundCommand) (Outcome, error) {
	if _, err := g.monitor(c.PlayerID); err != nil {
		return Outcome{}, err
	}
	if g.phase != domain.PhaseTrading || g.closed {
		return Outcome{}, domain.Invalid("no open round to process in phase %s", g.phase)
	}
	if !g.allDone() {
		return Outcome{}, domain.Invalid("round %d: not every player is done", g.round)
	}
	return g.process(ctx, TriggerMonitor)
}

func (g *Game) deadline(ctx context.Context, c domain.DeadlineCommand) (Outcome, error) {
	if g.phase != domain.PhaseTrading || g.closed || c.Round != g.round {
		g.logger.Debug("stale deadline ignored", zap.Int("round", c.Round))
		return Outcome{}, nil
	}
	return g.process(ctx, TriggerDeadline)
}

func (g *Game) advanceRound(c domain.AdvanceRoundCommand) (Outcome, error) {
	if _, err := g.monitor(c.PlayerID); err != nil {
		return Outcome{}, err
	}
	if g.phase != domain.PhaseResults {
		return Outcome{}, domain.Invalid("cannot advance round in phase %s", g.phase)
	}

	if g.round >= g.cfg.MaxRounds {
		g.finish()
		return Outcome{Changed: true}, nil
	}

	next := g.round + 1
	cancelled := g.book.Rollover(next, g.cfg.CarryUnmatchedOrders)
	if len(cancelled) > 0 {
		g.logger.Debug("unmatched orders cancelled", zap.Int("round", g.round), zap.Int("orders", len(cancelled)))
	}
	g.beginRound(next)
	return Outcome{Changed: true}, nil
}

func (g *Game) disconnect(c domain.DisconnectCommand) (Outcome, error) {
	p, ok := g.players.Get(c.PlayerID)
	if !ok || !p.IsOnline {
		return Outcome{}, nil
	}
	p.IsOnline = false
	g.logger.Info("player went offline", zap.String("player", p.ID))
	return Outcome{Changed: true}, nil
}

// beginRound opens round for trading: counters reset, bots quote and the
// deadline is armed.
func (g *Game) beginRound(round int) {
	g.round = round
	g.phase = domain.PhaseTrading
	g.closed = false

	for _, p := range g.players.All() {
		p.OrdersSubmitted = 0
		p.IsDone = p.IsMarketMaker
	}
	g.quote()

	g.roundEndsAt = nil
	if d := g.cfg.RoundDuration; d > 0 {
		ends := g.now().Add(d)
		g.roundEndsAt = &ends
		g.scheduler.Schedule(d, round)
	}

	g.logger.Info("round started", zap.Int("round", round), zap.Int64("price", g.price))
}

// quote places the market makers' orders for the round. Quotes a bot cannot
// afford are skipped.
func (g *Game) quote() {
	for _, bot := range g.players.MarketMakers() {
		for _, q := range g.quoter.Quotes(g.price) {
			if !marketmaker.Affordable(bot, q, g.book.ReservedCash(bot.ID), g.book.ReservedShares(bot.ID)) {
				g.logger.Debug("market maker quote skipped",
					zap.String("player", bot.ID),
					zap.String("side", string(q.Side)),
				)
				continue
			}
			g.place(bot, q.Side, q.Price, q.Quantity)
		}
	}
}

func (g *Game) finish() {
	g.scheduler.Cancel()
	g.roundEndsAt = nil
	g.players.RecomputeTotals(g.price)
	ranked := g.players.Rank()
	g.phase = domain.PhaseFinished

	fields := []zap.Field{zap.Int("rounds", g.round)}
	if len(ranked) > 0 {
		fields = append(fields, zap.String("winner", ranked[0].ID), zap.Int64("value", ranked[0].TotalValue))
	}
	g.logger.Info("game finished", fields...)
}

// monitor resolves the issuer of a monitor-only command.
func (g *Game) monitor(playerID string) (*domain.Player, error) {
	p, ok := g.players.Get(playerID)
	if !ok {
		return nil, domain.Invalid("player %s not found", playerID)
	}
	if !p.IsMonitor {
		return nil, domain.Invalid("player %s is not a monitor", playerID)
	}
	return p, nil
}
