package portfolio

import (
	"github.com/nathanyu/trading-game/internal/domain"
)

// Registry holds the players of one game keyed by id, remembering the order
// in which they joined.
type Registry struct {
	players map[string]*domain.Player
	order   []*domain.Player
	joinSeq uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		players: make(map[string]*domain.Player),
	}
}

// Add registers a player. It returns false and leaves the registry untouched
// when the id is already taken.
func (r *Registry) Add(p *domain.Player) bool {
	if _, exists := r.players[p.ID]; exists {
		return false
	}
	r.joinSeq++
	p.JoinSeq = r.joinSeq
	r.players[p.ID] = p
	r.order = append(r.order, p)
	return true
}

// Get returns a player by id.
func (r *Registry) Get(id string) (*domain.Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// All returns every player in join order.
func (r *Registry) All() []*domain.Player {
	out := make([]*domain.Player, len(r.order))
	copy(out, r.order)
	return out
}

// Humans returns the ordinary traders in join order.
func (r *Registry) Humans() []*domain.Player {
	var out []*domain.Player
	for _, p := range r.order {
		if p.IsHuman() {
			out = append(out, p)
		}
	}
	return out
}

// MarketMakers returns the market-maker bots in join order.
func (r *Registry) MarketMakers() []*domain.Player {
	var out []*domain.Player
	for _, p := range r.order {
		if p.IsMarketMaker {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered players.
func (r *Registry) Len() int {
	return len(r.order)
}
