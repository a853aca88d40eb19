package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tiempos-digital/internal/backend"
	"tiempos-digital/internal/cache"
	"tiempos-digital/internal/config"
	"tiempos-digital/internal/httpserver"
	"tiempos-digital/internal/kvstore"
	"tiempos-digital/internal/logging"
	"tiempos-digital/internal/metrics"
	"tiempos-digital/internal/mock"
	"tiempos-digital/internal/supabase"
	"tiempos-digital/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting tiempos-digital backend", "env", cfg.AppEnv, "emulator", cfg.UseEmulator())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	slot, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	client, err := openClient(ctx, cfg, slot, logger, metricRegistry)
	if err != nil {
		_ = slot.Close()
		return err
	}
	defer client.Close()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, client, logger, metricRegistry, httpserver.Options{
		BasePath:        cfg.HTTPBasePath,
		SignInPerMinute: cfg.SignInRatePerMinute,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func openSessionStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (kvstore.Store, error) {
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		return kvstore.NewMemory(), nil
	case config.SessionStoreRedis:
		redisClient := cache.New(cache.Config{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			UseTLS:      cfg.RedisTLS,
			DialTimeout: 5 * time.Second,
		}, logger)
		if err := redisClient.Ping(ctx); err != nil {
			_ = redisClient.Close()
			return nil, err
		}
		return kvstore.NewRedis(redisClient), nil
	default:
		if dir := filepath.Dir(cfg.SessionDBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create session dir: %w", err)
			}
		}
		return kvstore.NewSQLite(ctx, cfg.SessionDBPath, migrations.SQLite(), logger)
	}
}

func openClient(ctx context.Context, cfg config.Config, slot kvstore.Store, logger *slog.Logger, m *metrics.Metrics) (backend.Client, error) {
	if cfg.UseEmulator() {
		gate := mock.NoLatency()
		if cfg.MockLatency {
			gate = mock.DefaultGate()
		}
		client := mock.New(mock.Options{
			Gate: gate,
			Seed: mock.SeedConfig{
				Clientes:   mock.Batch(cfg.MockClientes),
				Vendedores: mock.Batch(cfg.MockVendedores),
				Seed:       cfg.MockSeed,
			},
			Slot:    slot,
			Logger:  logger,
			Metrics: m,
		})
		logger.Info("emulator ready", "tables", client.Tables(), "rows", client.Store().Counts())
		return client, nil
	}

	client, err := supabase.New(ctx, supabase.Config{
		URL:         cfg.SupabaseURL,
		AnonKey:     cfg.SupabaseAnonKey,
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.SupabaseSchema,
		AuthTimeout: cfg.AuthTimeout,
	}, slot, logger, m)
	if err != nil {
		return nil, fmt.Errorf("init supabase client: %w", err)
	}
	if err := client.Repository().ApplyMigrations(ctx, migrations.Postgres()); err != nil {
		client.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")
	return client, nil
}
