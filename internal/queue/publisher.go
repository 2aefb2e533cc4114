// Package queue forwards processed rounds to NATS for other services.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/config"
	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/telemetry"
)

// Conn is the part of a NATS connection the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher publishes round events on <prefix>.<gameId>.round.
type Publisher struct {
	conn   Conn
	prefix string
	logger *zap.Logger
}

// NewPublisher wraps an established connection.
func NewPublisher(conn Conn, prefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.Named("queue"),
	}
}

// Connect dials NATS, retrying with exponential backoff until
// cfg.ConnectTimeout elapses or ctx is done.
func Connect(ctx context.Context, cfg config.NATSConfig, logger *zap.Logger) (*Publisher, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond
	expBackoff.MaxInterval = 2 * time.Second
	expBackoff.MaxElapsedTime = cfg.ConnectTimeout

	var conn *nats.Conn
	attempt := 0
	err := backoff.Retry(func() (opErr error) {
		attempt++
		conn, opErr = nats.Connect(cfg.URL,
			nats.Name(telemetry.ServiceName),
			nats.Timeout(2*time.Second),
		)
		if opErr != nil {
			logger.Warn("nats connect failed", zap.Int("attempt", attempt), zap.Error(opErr))
		}
		return opErr
	}, backoff.WithContext(expBackoff, ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "connect to nats at %s", cfg.URL)
	}

	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return NewPublisher(conn, cfg.SubjectPrefix, logger), nil
}

// Subject returns the subject round events of gameID are published on.
func (p *Publisher) Subject(gameID string) string {
	return p.prefix + "." + gameID + ".round"
}

// Publish sends one round event.
func (p *Publisher) Publish(ctx context.Context, event *domain.RoundEvent) error {
	subject := p.Subject(event.GameID)
	_, span := telemetry.Tracer.Start(ctx, "queue.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("messaging.destination", subject),
			attribute.Int("game.round", event.Round),
		),
	)
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal round event")
	}
	if err := p.conn.Publish(subject, data); err != nil {
		telemetry.QueueMessagesPublished.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return errors.Wrapf(err, "publish to %s", subject)
	}
	telemetry.QueueMessagesPublished.WithLabelValues("ok").Inc()
	return nil
}

// Run publishes every event received on in until it is closed or ctx is
// done. Failures are logged and the event is dropped.
func (p *Publisher) Run(ctx context.Context, in <-chan *domain.RoundEvent) {
	for {
		select {
		case event, ok := <-in:
			if !ok {
				return
			}
			if err := p.Publish(ctx, event); err != nil {
				p.logger.Warn("round event not published",
					zap.String("game", event.GameID),
					zap.Int("round", event.Round),
					zap.Error(err),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return errors.Wrap(p.conn.Drain(), "drain nats connection")
}
