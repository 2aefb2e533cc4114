package game

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/pricing"
	"github.com/nathanyu/trading-game/internal/telemetry"
)

// process closes the current round: matching, then price discovery, then
// settlement and revaluation. It runs at most once per round. Every order
// owner is resolved before anything changes, so an error leaves the round
// open and untouched.
func (g *Game) process(ctx context.Context, trigger string) (Outcome, error) {
	if g.closed {
		return Outcome{}, nil
	}
	if err := g.checkOwners(); err != nil {
		g.logger.Error("round not processed", zap.Int("round", g.round), zap.Error(err))
		return Outcome{}, err
	}

	ctx, span := telemetry.Tracer.Start(ctx, "game.process_round",
		trace.WithAttributes(
			attribute.String("game.id", g.id),
			attribute.Int("game.round", g.round),
			attribute.String("game.trigger", trigger),
		),
	)
	defer span.End()

	g.closed = true
	g.scheduler.Cancel()
	g.roundEndsAt = nil
	g.phase = domain.PhaseProcessing

	_, matchSpan := telemetry.Tracer.Start(ctx, "matching")
	trades := g.engine.RunAuction(g.book)
	matchSpan.SetAttributes(attribute.Int("trades", len(trades)))
	matchSpan.End()

	_, priceSpan := telemetry.Tracer.Start(ctx, "pricing")
	prev := g.price
	price, source := pricing.Discover(prev, trades, g.book)
	point := pricing.NextPoint(g.cfg.HistoryDays, g.round, price, len(trades) > 0)
	priceSpan.SetAttributes(
		attribute.Int64("price.previous", prev),
		attribute.Int64("price.new", price),
		attribute.String("price.source", string(source)),
	)
	priceSpan.End()

	_, settleSpan := telemetry.Tracer.Start(ctx, "settlement")
	// Unreachable after checkOwners; the round stays closed if it happens.
	if err := g.players.Settle(trades); err != nil {
		settleSpan.RecordError(err)
		settleSpan.SetStatus(codes.Error, "settlement failed")
		settleSpan.End()
		span.SetStatus(codes.Error, "settlement failed")
		g.logger.Error("settlement failed", zap.Int("round", g.round), zap.Error(err))
		return Outcome{}, errors.Wrapf(domain.ErrInternal, "settle round %d: %v", g.round, err)
	}
	g.trades = append(g.trades, trades...)
	g.history = append(g.history, point)
	g.price = price
	g.players.RecomputeTotals(price)
	settleSpan.End()

	g.phase = domain.PhaseResults

	var volume int64
	for _, t := range trades {
		volume += t.Quantity
	}
	telemetry.TradesTotal.Add(float64(len(trades)))
	telemetry.TradedVolume.Add(float64(volume))
	telemetry.RoundsProcessed.WithLabelValues(trigger).Inc()
	telemetry.ReferencePrice.WithLabelValues(g.id).Set(float64(price))

	g.logger.Info("round processed",
		zap.Int("round", g.round),
		zap.String("trigger", trigger),
		zap.Int("trades", len(trades)),
		zap.Int64("volume", volume),
		zap.Int64("price", price),
		zap.String("price_source", string(source)),
	)

	return Outcome{
		Changed: true,
		Event: &domain.RoundEvent{
			GameID:    g.id,
			Round:     g.round,
			Stock:     g.cfg.Stock,
			Trades:    trades,
			PrevPrice: prev,
			Price:     price,
			Point:     point,
			Trigger:   trigger,
			Timestamp: g.now(),
		},
	}, nil
}

// checkOwners reports an internal error when an open order belongs to no
// registered player, since its trades could not be settled.
func (g *Game) checkOwners() error {
	for _, o := range g.book.Orders() {
		if !o.Open() {
			continue
		}
		if _, ok := g.players.Get(o.PlayerID); !ok {
			return errors.Wrapf(domain.ErrInternal, "order %s belongs to unknown player %s", o.ID, o.PlayerID)
		}
	}
	return nil
}
