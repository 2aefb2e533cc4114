// Package session keeps the live games of the process, one sequencer each.
package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/config"
	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/game"
	"github.com/nathanyu/trading-game/internal/sequencer"
	"github.com/nathanyu/trading-game/internal/telemetry"
)

// Manager creates, looks up and closes games.
type Manager struct {
	mu    sync.RWMutex
	games map[string]*sequencer.Sequencer

	gameCfg  config.GameConfig
	cfg      config.SessionConfig
	notifier sequencer.Notifier
	logger   *zap.Logger

	// RoundOut carries the round events of every game.
	RoundOut chan *domain.RoundEvent
}

// NewManager creates an empty manager. Games publish their state changes to
// notifier.
func NewManager(gameCfg config.GameConfig, cfg config.SessionConfig, notifier sequencer.Notifier, logger *zap.Logger) *Manager {
	return &Manager{
		games:    make(map[string]*sequencer.Sequencer),
		gameCfg:  gameCfg,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger.Named("session"),
		RoundOut: make(chan *domain.RoundEvent, cfg.QueueSize),
	}
}

// Create starts a new game. An empty id gets a generated one.
func (m *Manager) Create(id string) (*sequencer.Sequencer, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.games[id]; exists {
		return nil, domain.Invalid("game %s already exists", id)
	}
	return m.createLocked(id)
}

// Get returns a live game.
func (m *Manager) Get(id string) (*sequencer.Sequencer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.games[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownGame, "game %s", id)
	}
	return s, nil
}

// GetOrCreate returns the game with id, creating it when the manager is
// configured to create games on first use.
func (m *Manager) GetOrCreate(id string) (*sequencer.Sequencer, error) {
	if !m.cfg.AutoCreate {
		return m.Get(id)
	}
	if id == "" {
		return nil, domain.Invalid("game id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.games[id]; ok {
		return s, nil
	}
	return m.createLocked(id)
}

func (m *Manager) createLocked(id string) (*sequencer.Sequencer, error) {
	if m.cfg.MaxGames > 0 && len(m.games) >= m.cfg.MaxGames {
		return nil, domain.Invalid("too many games (%d)", m.cfg.MaxGames)
	}

	s, err := sequencer.NewSequencer(sequencer.Config{
		GameID:     id,
		BufferSize: m.cfg.QueueSize,
		Notifier:   m.notifier,
		RoundOut:   m.RoundOut,
		Logger:     m.logger,
	}, func(scheduler game.Scheduler) (*game.Game, error) {
		return game.New(id, m.gameCfg, game.WithScheduler(scheduler), game.WithLogger(m.logger))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create game %s", id)
	}
	s.Start()
	m.games[id] = s
	telemetry.ActiveGames.Set(float64(len(m.games)))
	m.logger.Info("game created", zap.String("game", id))
	return s, nil
}

// Close stops a game and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.games[id]
	delete(m.games, id)
	telemetry.ActiveGames.Set(float64(len(m.games)))
	m.mu.Unlock()

	if !ok {
		return errors.Wrapf(domain.ErrUnknownGame, "game %s", id)
	}
	s.Stop()
	m.logger.Info("game closed", zap.String("game", id))
	return nil
}

// IDs returns the ids of the live games, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.games))
	for id := range m.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown stops every game.
func (m *Manager) Shutdown() {
	for _, id := range m.IDs() {
		_ = m.Close(id)
	}
}
