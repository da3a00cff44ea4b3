package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/session-mirror/internal/api"
	"github.com/p-blackswan/session-mirror/internal/cleanup"
	"github.com/p-blackswan/session-mirror/internal/config"
	"github.com/p-blackswan/session-mirror/internal/engine"
	"github.com/p-blackswan/session-mirror/internal/event"
	"github.com/p-blackswan/session-mirror/internal/health"
	"github.com/p-blackswan/session-mirror/internal/metrics"
	"github.com/p-blackswan/session-mirror/internal/pagination"
	"github.com/p-blackswan/session-mirror/internal/persist"
	"github.com/p-blackswan/session-mirror/internal/status"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("server_url", cfg.ServerURL).
		Str("status_addr", cfg.StatusListenAddr).
		Str("db_path", cfg.DBPath).
		Msg("starting session mirror")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Persistence
	store, err := persist.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open persistence store")
	}
	defer store.Close()

	// Metrics
	m := metrics.New()

	// Remote clients
	factory := api.NewFactory(api.Options{
		BaseURL: cfg.ServerURL,
		Token:   cfg.ServerToken,
		Timeout: cfg.HTTPTimeout,
	}, logger)

	// Engine
	eng := engine.New(engine.Options{
		Config:  cfg,
		Factory: factory,
		Store:   store,
		Metrics: m,
		Logger:  logger,
	})
	defer eng.Close()

	// Track manifest workspaces up front; everything else is created
	// lazily when events or API calls mention it.
	dirs, err := cfg.LoadManifest()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load workspace manifest")
	}
	for _, dir := range dirs {
		eng.Child(dir)
	}

	// Event stream
	streamCfg := event.DefaultConfig(eventURL(cfg))
	streamCfg.Token = cfg.ServerToken
	streamCfg.ReconnectInterval = cfg.ReconnectInterval
	streamCfg.MaxReconnectInterval = cfg.MaxReconnectInterval
	stream := event.NewStream(streamCfg, logger)

	// Readiness checks
	checker := health.NewChecker(logger)
	checker.Register("persist", health.ReadyGate(store.Ready()))
	checker.Register("remote", func(ctx context.Context) health.Status {
		if _, err := factory.Global().PathGet(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	// Message pagination, served through the status API
	pager := pagination.New(pagination.Options{
		Backend:  eng,
		PageSize: cfg.MessagePageSize,
		Logger:   logger,
	})

	// Status API
	statusServer := status.NewServer(status.ServerConfig{
		ListenAddr: cfg.StatusListenAddr,
	}, eng, checker, pager, logger)

	// Persistence janitor
	cleaner := cleanup.New(store, cleanup.Config{
		MaxAge:        cfg.PersistMaxAge,
		CheckInterval: cfg.PersistSweepEvery,
	}, logger)

	// Metrics listener
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:         cfg.MetricsListenAddr,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// WaitGroup for in-flight work
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := stream.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("event stream error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx, stream.Events()); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("engine error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cleaner.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := statusServer.Start(); err != nil {
			logger.Error().Err(err).Msg("status server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("metrics listener starting")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics listener error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	// Cancel context to signal all goroutines
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := statusServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("status server shutdown error")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics listener shutdown error")
	}

	// Wait for in-flight work to complete
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("session mirror stopped")
}

// eventURL derives the websocket event endpoint from the server URL
// when not set explicitly.
func eventURL(cfg *config.Config) string {
	if cfg.EventURL != "" {
		return cfg.EventURL
	}
	url := cfg.ServerURL
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return strings.TrimRight(url, "/") + "/event"
}
