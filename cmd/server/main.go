package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/config"
	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/handler"
	"github.com/nathanyu/trading-game/internal/marketdata"
	"github.com/nathanyu/trading-game/internal/middleware"
	"github.com/nathanyu/trading-game/internal/queue"
	"github.com/nathanyu/trading-game/internal/session"
	"github.com/nathanyu/trading-game/internal/telemetry"
	"github.com/nathanyu/trading-game/internal/transport"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:          "trading-game",
	Short:        "Round-based multiplayer market trading game server",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	serveCmd.Flags().String("config", "", "path to a TOML config file")
	serveCmd.Flags().String("port", "", "HTTP port (overrides config)")
	serveCmd.Flags().String("metrics-port", "", "metrics port (overrides config)")
	serveCmd.Flags().String("log-level", "", "log level (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("port"); v != "" {
			cfg.HTTP.Port = v
		}
		if v, _ := cmd.Flags().GetString("metrics-port"); v != "" {
			cfg.HTTP.MetricsPort = v
		}
		if v, _ := cmd.Flags().GetString("log-level"); v != "" {
			cfg.Log.Level = v
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting trading game service", zap.String("version", version))

	// --- Tracing ---
	if cfg.Tracing.Enabled {
		cleanup, err := telemetry.InitTracer(telemetry.TracingConfig{
			Endpoint:    cfg.Tracing.Endpoint,
			Environment: cfg.Tracing.Environment,
			SampleRatio: cfg.Tracing.SampleRatio,
		}, version, logger)
		if err != nil {
			logger.Warn("tracing disabled", zap.Error(err))
		} else {
			defer cleanup()
		}
	}

	// --- Core components ---

	// Websocket hub (renders every client's view after each change)
	hub := transport.NewHub(cfg.HTTP.AllowedOrigins, cfg.Session.SendBuffer, logger)

	// Game sessions, one sequencer per game
	games := session.NewManager(cfg.Game, cfg.Session, hub, logger)

	// Market data publisher (trade tape, per-round candles)
	publisher := marketdata.NewPublisher(cfg.Session.QueueSize, logger)
	publisher.Start()

	// Optional NATS forwarding of processed rounds
	var bus chan *domain.RoundEvent
	var busWG sync.WaitGroup
	if cfg.NATS.URL != "" {
		q, err := queue.Connect(ctx, cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := q.Close(); err != nil {
				logger.Warn("nats close", zap.Error(err))
			}
		}()
		bus = make(chan *domain.RoundEvent, cfg.Session.QueueSize)
		busWG.Add(1)
		go func() {
			defer busWG.Done()
			q.Run(context.Background(), bus)
		}()
	}

	// --- Wire channels ---
	//
	// Sequencers → [RoundOut] → fan-out → Market Data Publisher [RoundIn]
	//                                  → NATS publisher (optional)
	fanoutDone := make(chan struct{})
	go func() {
		defer close(fanoutDone)
		for event := range games.RoundOut {
			select {
			case publisher.RoundIn <- event:
			default:
				logger.Warn("market data round channel full", zap.String("game", event.GameID))
			}
			if bus == nil {
				continue
			}
			select {
			case bus <- event:
			default:
				logger.Warn("nats round channel full", zap.String("game", event.GameID))
			}
		}
	}()

	// --- HTTP Server ---
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Tracing(), middleware.PrometheusMiddleware())
	handler.NewHandler(games, hub, publisher).RegisterRoutes(r)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"*"},
	})
	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: corsHandler.Handler(r),
	}

	// --- Metrics Server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.HTTP.MetricsPort,
		Handler: metricsMux,
	}

	errs := make(chan error, 2)
	go func() {
		logger.Info("metrics server listening", zap.String("port", cfg.HTTP.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- errors.Wrap(err, "metrics server")
		}
	}()
	go func() {
		logger.Info("http server listening", zap.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- errors.Wrap(err, "http server")
		}
	}()

	// --- Graceful shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}

	games.Shutdown()
	close(games.RoundOut)
	<-fanoutDone
	if bus != nil {
		close(bus)
		busWG.Wait()
	}
	publisher.Stop()

	logger.Info("trading game service stopped")
	return runErr
}
