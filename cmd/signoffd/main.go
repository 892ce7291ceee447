// Package main is the entry point for the signoff coordination server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/candorops/signoff/internal/bus"
	"github.com/candorops/signoff/internal/config"
	"github.com/candorops/signoff/internal/observability"
	"github.com/candorops/signoff/internal/store"
	"github.com/candorops/signoff/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "signoffd", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Build persistence backends.
	stateStore, storeCloser, err := buildStateStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("state store initialization failed", zap.Error(err))
		return 1
	}

	ledger, ledgerCloser, err := buildResumeLedger(ctx, cfg.Ledger, logger)
	if err != nil {
		logger.Error("resume ledger initialization failed", zap.Error(err))
		return 1
	}

	// Step 5: Build the coordination bus and recover persisted state.
	coordinator := bus.New(
		bus.WithStore(stateStore),
		bus.WithLedger(ledger),
		bus.WithLogger(logger),
		bus.WithMetrics(metrics),
		bus.WithEscalationWindow(cfg.Monitor.EscalationWindow),
	)

	var recovered atomic.Bool
	states, actions, err := coordinator.Restore(ctx)
	if err != nil {
		logger.Error("state recovery failed", zap.Error(err))
		return 1
	}
	recovered.Store(true)
	logger.Info("state recovered",
		zap.Int("states", states),
		zap.Int("pending_actions", actions))

	// Step 6: Start the timeout monitor.
	monitor := bus.NewMonitor(coordinator, cfg.Monitor.SweepInterval, logger)
	monitor.Start()

	// Step 7: Build the HTTP router.
	var jwks *transport.JWKSClient
	if cfg.Identity.Enabled() {
		jwks = transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)
	}

	readinessChecks := observability.ReadinessChecks{
		RecoveryComplete: recovered.Load,
	}
	if hc, ok := stateStore.(observability.HealthChecker); ok {
		readinessChecks.StateStore = hc
	}
	if hc, ok := ledger.(observability.HealthChecker); ok {
		readinessChecks.ResumeLedger = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:         cfg,
		Logger:         logger,
		Bus:            coordinator,
		Metrics:        metrics,
		Authenticate:   transport.Authenticator(cfg.Identity, jwks),
		HealthHandler:  observability.HandleHealth(),
		ReadyHandler:   observability.HandleReady(readinessChecks),
		MetricsHandler: observability.Handler(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 8: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store", cfg.Store.Driver),
		zap.String("ledger", cfg.Ledger.Driver),
		zap.Bool("identity", cfg.Identity.Enabled()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Stop background sweeps, then release the backends.
	monitor.Stop()

	if storeCloser != nil {
		storeCloser()
	}
	if ledgerCloser != nil {
		ledgerCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStateStore creates the workflow state persistence backend.
func buildStateStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.StateStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory state store")
		return store.NewMemoryStateStore(), nil, nil

	case "sqlite":
		s, err := store.NewSQLiteStateStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("state store: %w", err)
		}
		logger.Info("using sqlite state store", zap.String("path", cfg.SQLitePath))
		return s, func() { _ = s.Close() }, nil

	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("state store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("state store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("state store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("state store: ping: %w", err)
		}

		s := store.NewPgStateStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("state store: schema: %w", err)
		}
		logger.Info("using postgres state store")
		return s, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported state store driver: %q", cfg.Driver)
	}
}

// buildResumeLedger creates the resumed-action ledger backend.
func buildResumeLedger(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (bus.ResumeLedger, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory resume ledger")
		return bus.NewMemoryResumeLedger(cfg.Retention), nil, nil

	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("resume ledger: %s environment variable not set", cfg.AddrEnv)
		}

		client := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   cfg.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("resume ledger: ping: %w", err)
		}

		logger.Info("using redis resume ledger", zap.Int("db", cfg.DB))
		return bus.NewRedisResumeLedger(client, cfg.Retention), func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported resume ledger driver: %q", cfg.Driver)
	}
}
