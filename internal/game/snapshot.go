package game

import (
	"github.com/jinzhu/copier"

	"github.com/nathanyu/trading-game/internal/domain"
)

const snapshotDepth = 10

// Snapshot renders the game as seen by viewerID. Monitors see everything.
// A player sees their own orders and trades and the public fields of the
// other players. Anyone else, including an empty viewer, sees only public
// data. The consolidated book is public.
func (g *Game) Snapshot(viewerID string) domain.Snapshot {
	viewer, known := g.players.Get(viewerID)
	monitor := known && viewer.IsMonitor

	snap := domain.Snapshot{
		GameID:             g.id,
		Round:              g.round,
		MaxRounds:          g.cfg.MaxRounds,
		Phase:              g.phase,
		GameStarted:        g.started,
		Players:            make([]domain.PlayerView, 0, g.players.Len()),
		Orders:             []domain.Order{},
		ConsolidatedOrders: g.book.Consolidated(snapshotDepth),
		Trades:             []domain.Trade{},
		PriceHistory:       make([]domain.PricePoint, len(g.history)),
		CurrentPrices:      map[string]int64{g.cfg.Stock: g.price},
	}
	if g.roundEndsAt != nil {
		ends := *g.roundEndsAt
		snap.RoundEndsAt = &ends
	}
	copy(snap.PriceHistory, g.history)

	visible := func(playerID string) bool {
		return monitor || known && playerID == viewerID
	}

	for _, p := range g.players.All() {
		snap.Players = append(snap.Players, playerView(p, visible(p.ID)))
	}
	for _, o := range g.book.Orders() {
		if visible(o.PlayerID) {
			snap.Orders = append(snap.Orders, *o)
		}
	}
	for _, t := range g.trades {
		if visible(t.BuyerID) || visible(t.SellerID) {
			snap.Trades = append(snap.Trades, *t)
		}
	}
	return snap
}

// playerView copies the public fields of p and, when disclose is set, its
// balances.
func playerView(p *domain.Player, disclose bool) domain.PlayerView {
	var view domain.PlayerView
	// Only fails on nil or mismatched kinds.
	_ = copier.CopyWithOption(&view, p, copier.Option{DeepCopy: true})
	view.ID = p.ID
	view.Cash, view.Holdings = nil, nil
	if disclose {
		cash, holdings := p.Cash, p.Holdings
		view.Cash = &cash
		view.Holdings = &holdings
	}
	return view
}
