package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-sync/internal/api"
	"github.com/lysyi3m/rss-sync/internal/broadcast"
	"github.com/lysyi3m/rss-sync/internal/cfg"
	"github.com/lysyi3m/rss-sync/internal/database"
	"github.com/lysyi3m/rss-sync/internal/feed"
	"github.com/lysyi3m/rss-sync/internal/registry"
	"github.com/lysyi3m/rss-sync/internal/tasks"
)

func main() {
	appCfg, err := cfg.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(appCfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting RSS Sync", "version", appCfg.Version, "timezone", appCfg.Timezone)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(appCfg.FeedsFile, feedRepo)
	if err := reg.Load(ctx); err != nil {
		return err
	}
	slog.Debug("Feed definitions enabled", "count", len(reg.Enabled()))

	if appCfg.WatchFeeds {
		go func() {
			if err := reg.Watch(ctx); err != nil {
				slog.Error("Feed definitions watch stopped", "error", err)
			}
		}()
	}

	// per-request timeouts come from the fetcher context
	httpClient := &http.Client{}
	fetcher := feed.NewFetcher(httpClient, feed.FetcherConfig{
		UserAgent:        appCfg.UserAgent,
		BrowserUserAgent: appCfg.BrowserUserAgent,
		Timeout:          appCfg.FetchTimeout,
		Retries:          appCfg.FetchRetries,
	})
	pipeline := feed.NewPipeline(fetcher, feed.NewParser(), feed.NewHTMLParser(), feed.NewContentExtractor())

	hub := broadcast.NewHub()
	coordinator := tasks.NewCoordinator(tasks.NewLockSet(), pipeline, feedRepo, entryRepo)
	scheduler := tasks.NewScheduler(coordinator, reg, hub, appCfg.UpdateInterval, appCfg.WorkerCount)
	scheduler.Start()

	handler := api.NewHandler(reg, feedRepo, entryRepo, scheduler, pipeline, hub, appCfg.Version)
	httpServer := &http.Server{
		Addr:        appCfg.Addr(),
		Handler:     api.NewServer(handler, appCfg.DebugEndpoints),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	stopped := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		slog.Warn("Timed out waiting for feed updates to finish")
	}

	slog.Info("RSS Sync shutdown complete")
	return nil
}
