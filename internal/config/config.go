// Package config loads the server configuration: built-in defaults, an
// optional TOML file, then environment overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/matching"
)

// Config is the full server configuration.
type Config struct {
	HTTP    HTTPConfig    `toml:"http"`
	Log     LogConfig     `toml:"log"`
	Game    GameConfig    `toml:"game"`
	Session SessionConfig `toml:"session"`
	NATS    NATSConfig    `toml:"nats"`
	Tracing TracingConfig `toml:"tracing"`
}

type HTTPConfig struct {
	Port            string        `toml:"port"`
	MetricsPort     string        `toml:"metrics_port"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `toml:"level"`
	Encoding string `toml:"encoding"`
}

// GameConfig holds the rules every new game is created with.
type GameConfig struct {
	Stock             string        `toml:"stock"`
	MaxRounds         int           `toml:"max_rounds"`
	MaxOrdersPerRound int           `toml:"max_orders_per_round"`
	StartingCash      int64         `toml:"starting_cash"`
	StartingHoldings  int64         `toml:"starting_holdings"`
	FallbackPrice     int64         `toml:"fallback_price"`
	HistoryDays       int           `toml:"history_days"`
	RoundDuration     time.Duration `toml:"round_duration"`

	// ExecutionPrice is "seller" (trade at the ask) or "midpoint".
	ExecutionPrice       string `toml:"execution_price"`
	CarryUnmatchedOrders bool   `toml:"carry_unmatched_orders"`
	AutoCloseWhenAllDone bool   `toml:"auto_close_when_all_done"`

	MarketMakers      int   `toml:"market_makers"`
	MarketMakerCash   int64 `toml:"market_maker_cash"`
	MarketMakerShares int64 `toml:"market_maker_shares"`

	// Seed drives the synthetic history and bot quotes. Zero picks a random
	// seed per game.
	Seed uint64 `toml:"seed"`
}

type SessionConfig struct {
	AutoCreate bool `toml:"auto_create"`
	MaxGames   int  `toml:"max_games"`
	QueueSize  int  `toml:"queue_size"`
	SendBuffer int  `toml:"send_buffer"`
}

type NATSConfig struct {
	URL            string        `toml:"url"`
	SubjectPrefix  string        `toml:"subject_prefix"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
}

type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	Environment string  `toml:"environment"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// Default returns the canonical configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            "8080",
			MetricsPort:     "9090",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Game: GameConfig{
			Stock:                domain.DefaultInstrument,
			MaxRounds:            10,
			MaxOrdersPerRound:    2,
			StartingCash:         10_000,
			FallbackPrice:        100,
			HistoryDays:          10,
			RoundDuration:        30 * time.Second,
			ExecutionPrice:       string(matching.PriceAtAsk),
			AutoCloseWhenAllDone: true,
			MarketMakers:         1,
			MarketMakerCash:      100_000,
			MarketMakerShares:    1_000,
		},
		Session: SessionConfig{
			AutoCreate: true,
			MaxGames:   100,
			QueueSize:  256,
			SendBuffer: 64,
		},
		NATS: NATSConfig{
			SubjectPrefix:  "trading-game",
			ConnectTimeout: 10 * time.Second,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			Environment: "development",
			SampleRatio: 1,
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path (if path is
// not empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, errors.Errorf("unknown config keys in %s: %v", path, undecoded)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Port = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		c.HTTP.MetricsPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
		c.Tracing.Enabled = true
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Tracing.Environment = v
	}
	if v := os.Getenv("GAME_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrap(err, "GAME_SEED")
		}
		c.Game.Seed = seed
	}
	return nil
}

// Validate rejects configurations no game could run with.
func (c Config) Validate() error {
	g := c.Game
	switch {
	case g.Stock == "":
		return errors.New("game.stock must not be empty")
	case g.MaxRounds <= 0:
		return errors.Errorf("game.max_rounds must be positive, got %d", g.MaxRounds)
	case g.MaxOrdersPerRound <= 0:
		return errors.Errorf("game.max_orders_per_round must be positive, got %d", g.MaxOrdersPerRound)
	case g.StartingCash < 0 || g.StartingHoldings < 0:
		return errors.New("game starting balances must not be negative")
	case g.FallbackPrice < 1:
		return errors.Errorf("game.fallback_price must be at least 1, got %d", g.FallbackPrice)
	case g.HistoryDays < 0:
		return errors.Errorf("game.history_days must not be negative, got %d", g.HistoryDays)
	case g.RoundDuration < 0:
		return errors.Errorf("game.round_duration must not be negative, got %s", g.RoundDuration)
	case g.MarketMakers < 0 || g.MarketMakerCash < 0 || g.MarketMakerShares < 0:
		return errors.New("game market maker settings must not be negative")
	}
	if _, err := matching.ParsePricePolicy(g.ExecutionPrice); err != nil {
		return errors.Wrap(err, "game.execution_price")
	}
	if c.Session.QueueSize <= 0 || c.Session.SendBuffer <= 0 {
		return errors.New("session queue_size and send_buffer must be positive")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return errors.Errorf("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	return nil
}
