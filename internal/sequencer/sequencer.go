package sequencer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/game"
	"github.com/nathanyu/trading-game/internal/roundtimer"
	"github.com/nathanyu/trading-game/internal/telemetry"
)

// Notifier receives the game after every change. view renders the snapshot
// for one viewer; it is only valid during the call, which runs on the game's
// loop.
type Notifier interface {
	Publish(gameID string, view func(viewerID string) domain.Snapshot)
}

// Factory builds the game a sequencer owns. The scheduler it receives posts
// round deadlines back into the sequencer.
type Factory func(scheduler game.Scheduler) (*game.Game, error)

// Config wires a sequencer to its surroundings.
type Config struct {
	GameID     string
	BufferSize int
	Notifier   Notifier
	// RoundOut receives one event per processed round. Sends never block;
	// events are dropped when the channel is full.
	RoundOut chan<- *domain.RoundEvent
	Logger   *zap.Logger
}

type request struct {
	ctx   context.Context
	cmd   domain.Command
	query func(*game.Game)
	reply chan error
}

// Sequencer is the single writer of one game. Commands from every player,
// queries and round deadlines go through one channel and are applied one at
// a time in arrival order, each stamped with an inbound sequence number.
// Processed rounds leave with an outbound sequence number.
type Sequencer struct {
	gameID      string
	inboundSeq  atomic.Uint64
	outboundSeq atomic.Uint64

	game     *game.Game
	timer    *roundtimer.Timer
	notifier Notifier
	roundOut chan<- *domain.RoundEvent
	logger   *zap.Logger

	in       chan request
	started  atomic.Bool
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewSequencer creates a sequencer and the game it owns.
func NewSequencer(cfg Config, newGame Factory) (*Sequencer, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	s := &Sequencer{
		gameID:   cfg.GameID,
		timer:    roundtimer.New(),
		notifier: cfg.Notifier,
		roundOut: cfg.RoundOut,
		logger:   cfg.Logger.Named("sequencer").With(zap.String("game", cfg.GameID)),
		in:       make(chan request, cfg.BufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	g, err := newGame(deadlines{s})
	if err != nil {
		return nil, err
	}
	s.game = g
	return s, nil
}

// GameID returns the id of the owned game.
func (s *Sequencer) GameID() string {
	return s.gameID
}

// Start begins the sequencer's application loop in a goroutine.
func (s *Sequencer) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

// Stop shuts the loop down and cancels the pending deadline. Requests not yet
// applied fail with ErrUnknownGame.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.started.CompareAndSwap(false, true) {
			s.game.Close()
			close(s.stopped)
		}
	})
	<-s.stopped
}

// Submit applies cmd and waits for the result. Errors from the game are
// returned as is; a panic while applying is reported as ErrInternal.
func (s *Sequencer) Submit(ctx context.Context, cmd domain.Command) error {
	return s.send(ctx, request{ctx: ctx, cmd: cmd, reply: make(chan error, 1)})
}

// Query runs fn on the loop, where it may read the game safely. fn must not
// retain the game or mutate it.
func (s *Sequencer) Query(ctx context.Context, fn func(*game.Game)) error {
	return s.send(ctx, request{ctx: ctx, query: fn, reply: make(chan error, 1)})
}

func (s *Sequencer) send(ctx context.Context, req request) error {
	select {
	case s.in <- req:
	case <-s.done:
		return s.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-s.stopped:
		return s.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues an internal command without waiting for it.
func (s *Sequencer) post(cmd domain.Command) {
	select {
	case s.in <- request{ctx: context.Background(), cmd: cmd}:
	case <-s.done:
	}
}

func (s *Sequencer) closedErr() error {
	return errors.Wrapf(domain.ErrUnknownGame, "game %s is closed", s.gameID)
}

// CurrentInboundSeq returns the current inbound sequence number.
func (s *Sequencer) CurrentInboundSeq() uint64 {
	return s.inboundSeq.Load()
}

// CurrentOutboundSeq returns the current outbound sequence number.
func (s *Sequencer) CurrentOutboundSeq() uint64 {
	return s.outboundSeq.Load()
}

// run is the main application loop. Single-writer consuming from in.
func (s *Sequencer) run() {
	s.logger.Info("started")
	defer close(s.stopped)
	for {
		select {
		case req := <-s.in:
			err := s.handle(req)
			if req.reply != nil {
				req.reply <- err
			}
		case <-s.done:
			s.game.Close()
			s.timer.Stop()
			s.logger.Info("stopped")
			return
		}
	}
}

func (s *Sequencer) handle(req request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = errors.Wrapf(domain.ErrInternal, "%v", r)
		}
	}()

	if req.query != nil {
		req.query(s.game)
		return nil
	}
	return s.apply(req.ctx, req.cmd)
}

// apply stamps the inbound sequence, runs the command against the game and
// dispatches the consequences.
func (s *Sequencer) apply(ctx context.Context, cmd domain.Command) error {
	seq := s.inboundSeq.Add(1)
	telemetry.SequencerInboundSeq.WithLabelValues(s.gameID).Set(float64(seq))

	out, err := s.game.Apply(ctx, cmd)
	if err != nil {
		telemetry.CommandErrors.WithLabelValues(string(cmd.Type()), domain.KindOf(err)).Inc()
		if cmd.Type() == domain.CommandSubmitOrder {
			side := cmd.(domain.SubmitOrderCommand).Side
			if !side.Valid() {
				side = "INVALID"
			}
			telemetry.OrdersTotal.WithLabelValues(string(side), "rejected").Inc()
		}
		s.logger.Debug("command rejected",
			zap.Uint64("seq", seq),
			zap.String("command", string(cmd.Type())),
			zap.String("player", cmd.Issuer()),
			zap.Error(err),
		)
		return err
	}

	if out.Event != nil {
		out.Event.Seq = s.outboundSeq.Add(1)
		telemetry.SequencerOutboundSeq.WithLabelValues(s.gameID).Set(float64(out.Event.Seq))
		s.emit(out.Event)
	}
	if out.Changed && s.notifier != nil {
		s.notifier.Publish(s.gameID, s.game.Snapshot)
	}
	return nil
}

func (s *Sequencer) emit(event *domain.RoundEvent) {
	if s.roundOut == nil {
		return
	}
	select {
	case s.roundOut <- event:
	default:
		s.logger.Warn("round output channel full, dropping event", zap.Int("round", event.Round))
	}
}

// deadlines arms the round timer on behalf of the game. The timer callback
// runs on its own goroutine and only posts into the loop.
type deadlines struct {
	s *Sequencer
}

func (d deadlines) Schedule(after time.Duration, round int) {
	d.s.timer.Start(after, round, func(round int) {
		d.s.logger.Debug("round deadline elapsed", zap.Int("round", round))
		d.s.post(domain.DeadlineCommand{Round: round})
	})
}

func (d deadlines) Cancel() {
	d.s.timer.Stop()
}
