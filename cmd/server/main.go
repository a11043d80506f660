// Package main is the entry point for the room calendar sync server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/api"
	"github.com/room-calendar-sync/backend/internal/calendar"
	"github.com/room-calendar-sync/backend/internal/config"
	"github.com/room-calendar-sync/backend/internal/logging"
	"github.com/room-calendar-sync/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	envFile := flag.String("env", ".env", "Optional .env file to load")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Addr()); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting room calendar sync",
		zap.String("version", version),
		zap.Int("feeds", len(cfg.Feeds)),
		zap.Duration("sync_interval", cfg.SyncInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.StoreEndpoint, cfg.StoreKey, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	logger.Info("store ready", zap.String("backend", store.kind))

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	clock := calendar.SystemClock
	syncService := calendar.NewSyncService(calendar.SyncOptions{
		Feeds:       cfg.Feeds,
		Fetcher:     calendar.NewFetcher(&http.Client{}, cfg.FetchTimeout),
		Parser:      calendar.NewParser(clock, cfg.RecurrenceHorizon),
		Guests:      store.guests,
		Bookings:    store.bookings,
		Defaults:    cfg.BookingDefaults,
		Concurrency: cfg.FetchConcurrency,
		Clock:       clock,
		Logger:      logger.Named("sync"),
		Notifier:    websocket.NewEventBroadcaster(hub, logger),
	})

	scheduler := calendar.NewScheduler(syncService, cfg.SyncInterval, logger.Named("scheduler"))
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer scheduler.Stop()

	router := api.NewRouter(api.Services{
		Store:            store,
		Exporter:         calendar.NewRenderer(store.bookings, clock, logger.Named("export")),
		Sync:             syncService,
		Scheduler:        scheduler,
		Hub:              hub,
		Logger:           logger.Named("http"),
		ExportRatePerMin: cfg.ExportRatePerMin,
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	resp, err := http.Get("http://localhost" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
