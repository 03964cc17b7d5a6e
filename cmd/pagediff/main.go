package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/pagediff/api"
	"github.com/use-agent/pagediff/cache"
	"github.com/use-agent/pagediff/capture"
	"github.com/use-agent/pagediff/config"
	"github.com/use-agent/pagediff/differ"
	"github.com/use-agent/pagediff/imgdiff"
	"github.com/use-agent/pagediff/normalizer"
	"github.com/use-agent/pagediff/store"
	"github.com/use-agent/pagediff/store/memory"
	"github.com/use-agent/pagediff/store/redis"
	"github.com/use-agent/pagediff/store/sqlite"
	"github.com/use-agent/pagediff/webhook"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run wires and serves pagediff until a signal or a listener failure. Errors
// are logged before they are returned.
func run() error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return err
	}
	slog.Info("pagediff starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"store", cfg.Store.Driver,
		"maxSessions", cfg.Browser.MaxSessions,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ── 3. Open the snapshot store ──────────────────────────────────
	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open snapshot store", "driver", cfg.Store.Driver, "error", err)
		return err
	}
	defer st.Close()

	// ── 4. Launch the browser ───────────────────────────────────────
	browser, err := capture.NewRodBrowser(cfg.Browser)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		return err
	}
	defer browser.Close()

	capturer := capture.NewCapturer(browser, cfg.Capture, cfg.Browser.MaxSessions, slog.Default())

	// ── 5. Wire the comparison pipeline ─────────────────────────────
	imgOpts, err := cfg.Compare.ImageOptions()
	if err != nil {
		slog.Error("invalid comparison settings", "error", err)
		return err
	}
	ignore, err := normalizer.CompileSelectors(cfg.Compare.IgnoreSelectors)
	if err != nil {
		slog.Error("invalid ignore selectors", "error", err)
		return err
	}

	notifier := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)
	defer notifier.Wait()

	d := differ.New(capturer, imgdiff.New(imgOpts), st, differ.Options{
		IgnoreSelectors:   ignore,
		SeparateDiffAsset: cfg.Compare.SeparateDiffAsset,
		ConcurrentCapture: cfg.Compare.ConcurrentCapture,
		Notifier:          notifier,
		Logger:            slog.Default(),
	})

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(ctx, cfg, d, st, capturer, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		slog.Error("HTTP server error", "error", err)
		return err
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Deferred: pending webhooks, then the browser, then the store.
	slog.Info("pagediff stopped")
	return nil
}

// openStore opens the configured backend and fronts it with the record
// cache when a TTL is set.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "memory":
		st = memory.New()
	case "redis":
		st, err = redis.Open(ctx, cfg.Store)
	default:
		st, err = sqlite.Open(cfg.Store.Path)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Cache.TTL > 0 {
		st = cache.New(st, cfg.Cache.TTL, cfg.Cache.MaxEntries)
	}
	return st, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
