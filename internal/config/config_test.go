package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Game.MaxRounds)
	assert.Equal(t, 2, cfg.Game.MaxOrdersPerRound)
	assert.Equal(t, int64(10_000), cfg.Game.StartingCash)
	assert.Equal(t, 30*time.Second, cfg.Game.RoundDuration)
	assert.Equal(t, "seller", cfg.Game.ExecutionPrice)
	assert.False(t, cfg.Game.CarryUnmatchedOrders)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.toml")
	err := os.WriteFile(path, []byte(`
[http]
port = "7000"

[game]
max_rounds = 5
round_duration = "45s"
execution_price = "midpoint"
carry_unmatched_orders = true
market_makers = 0
`), 0o600)
	require.NoError(t, err)

	t.Setenv("METRICS_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GAME_SEED", "42")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.HTTP.Port)
	assert.Equal(t, "9999", cfg.HTTP.MetricsPort)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Game.MaxRounds)
	assert.Equal(t, 45*time.Second, cfg.Game.RoundDuration)
	assert.Equal(t, "midpoint", cfg.Game.ExecutionPrice)
	assert.True(t, cfg.Game.CarryUnmatchedOrders)
	assert.Equal(t, 0, cfg.Game.MarketMakers)
	assert.Equal(t, uint64(42), cfg.Game.Seed)
	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Game.MaxOrdersPerRound)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.toml")
	require.NoError(t, os.WriteFile(path, []byte("[game]\nmax_round = 3\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config keys")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rounds", func(c *Config) { c.Game.MaxRounds = 0 }},
		{"zero cap", func(c *Config) { c.Game.MaxOrdersPerRound = 0 }},
		{"negative cash", func(c *Config) { c.Game.StartingCash = -1 }},
		{"zero fallback price", func(c *Config) { c.Game.FallbackPrice = 0 }},
		{"unknown policy", func(c *Config) { c.Game.ExecutionPrice = "vwap" }},
		{"empty stock", func(c *Config) { c.Game.Stock = "" }},
		{"zero queue", func(c *Config) { c.Session.QueueSize = 0 }},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
