package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/0xADE/ade-appsd/internal/appindex"
	"github.com/0xADE/ade-appsd/internal/catalog"
	"github.com/0xADE/ade-appsd/internal/config"
	"github.com/0xADE/ade-appsd/internal/platform/desktop"
	"github.com/0xADE/ade-appsd/internal/store"
	"github.com/0xADE/ade-appsd/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ade-apps-ctld: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	kv, err := store.Open(store.Backend(cfg.Store()), cfg.DataDir(), logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store(), err)
	}
	defer kv.Close()

	var remote appindex.Catalog
	if url := cfg.CatalogURL(); url != "" {
		c, err := catalog.New(url,
			catalog.WithRateLimit(cfg.CatalogRPS()),
			catalog.WithLogger(logger.With("component", "catalog")))
		if err != nil {
			return err
		}
		remote = c
	} else {
		logger.Info("no catalog configured, tag and experience search limited to the persisted index")
	}

	source := desktop.NewSource(cfg.AppDirs,
		desktop.WithLocale(locale()),
		desktop.WithSourceLogger(logger.With("component", "desktop")))

	svc, err := appindex.New(source, remote, kv,
		appindex.WithLogger(logger.With("component", "appindex")),
		appindex.WithWorkers(cfg.Workers()),
		appindex.WithLookupTimeout(cfg.LookupTimeout()),
		appindex.WithCatalogTimeout(cfg.CatalogTimeout()),
		appindex.WithPatternCache(cfg.MatchCache()),
		appindex.WithExperienceKeys(cfg.Experiences()))
	if err != nil {
		return fmt.Errorf("failed to create app index: %w", err)
	}
	defer svc.Close()

	watcher, err := desktop.NewWatcher(logger.With("component", "watcher"))
	if err != nil {
		return fmt.Errorf("failed to watch application directories: %w", err)
	}
	watcher.Watch(cfg.AppDirs())

	srv, err := server.NewServer(cfg.UnixSocket(), svc,
		server.WithLogger(logger.With("component", "server")),
		server.WithLookupTimeout(cfg.LookupTimeout()*2))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Desktop file changes and rc reloads both trigger a rebuild
	events := make(chan appindex.Event, 16)
	go func() {
		for ev := range watcher.Events() {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() { _ = watcher.Run(ctx) }()
	go func() {
		err := cfg.Watch(ctx, func() {
			watcher.Watch(cfg.AppDirs())
			select {
			case events <- appindex.Event{Kind: appindex.EventInstalled, Path: cfg.RCFile()}:
			default:
			}
		})
		if err != nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	if err := svc.Init(ctx); err != nil {
		logger.Warn("initial index build failed", "error", err)
	}
	go func() {
		if err := svc.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, appindex.ErrClosed) {
			logger.Warn("index event loop stopped", "error", err)
		}
	}()

	logger.Info("ade-apps-ctld started", "socket", cfg.UnixSocket(), "store", cfg.Store(), "dirs", cfg.AppDirs())
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("ade-apps-ctld stopped")
	return nil
}

func newLogger(levelStr string) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func locale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" && v != "C" && v != "POSIX" {
			return v
		}
	}
	return ""
}
