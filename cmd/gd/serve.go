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

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/garden/internal/config"
	"github.com/alfredjeanlab/garden/internal/events"
	"github.com/alfredjeanlab/garden/internal/export"
	"github.com/alfredjeanlab/garden/internal/hooks"
	"github.com/alfredjeanlab/garden/internal/presence"
	"github.com/alfredjeanlab/garden/internal/scene"
	"github.com/alfredjeanlab/garden/internal/server"
	"github.com/alfredjeanlab/garden/internal/source"
	"github.com/alfredjeanlab/garden/internal/telemetry"
)

var serveDebug bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the garden server",
	GroupID: "system",
	// No client connection is needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if serveDebug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		var theme *config.Theme
		if cfg.ThemeFile != "" {
			if theme, err = config.LoadTheme(cfg.ThemeFile); err != nil {
				return err
			}
			logger.Info("theme loaded", "file", cfg.ThemeFile)
		}
		sceneCfg, err := cfg.SceneConfig(theme)
		if err != nil {
			return err
		}

		// Event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (GARDEN_NATS_URL not set)")
		}

		if cfg.OnActivate != "" {
			publisher = events.Multi{publisher, hooks.NewHandler(cfg.OnActivate, cfg.HookTimeout, logger)}
			logger.Info("activation hook enabled", "command", cfg.OnActivate)
		}

		// Snapshot source.
		var src source.Source
		switch {
		case cfg.SnapshotFile != "":
			fs, err := source.NewFileSource(cfg.SnapshotFile)
			if err != nil {
				publisher.Close()
				return err
			}
			src = fs
		case cfg.SourceURL != "":
			src = source.NewHTTPSource(cfg.SourceURL,
				source.WithToken(cfg.SourceToken),
				source.WithLogger(logger))
		}

		metrics := telemetry.New()
		viewers := presence.New()
		viewers.StartReaper(&presence.ReaperConfig{
			IdleThreshold: cfg.ViewerIdleTimeout,
			OnIdle: func(v string) {
				logger.Info("viewer idle", "viewer", v)
			},
		})

		srv := server.New(server.Options{
			Source:      src,
			Publisher:   publisher,
			Metrics:     metrics,
			Presence:    viewers,
			AuthToken:   cfg.AuthToken,
			OverlayRate: cfg.OverlayStreamRate,
		})
		sceneCfg.OnLoaded = func(gen uint64, nodes int) {
			logger.Debug("snapshot published", "generation", gen, "nodes", nodes)
		}
		srv.Bind(&sceneCfg)
		sc, err := scene.New(sceneCfg)
		if err != nil {
			viewers.Stop()
			publisher.Close()
			return err
		}
		srv.Attach(sc)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if src != nil {
			if _, err := srv.Sync(ctx); err != nil {
				logger.Error("initial snapshot failed; serving an empty map", "source", src.Name(), "err", err)
			}
		}

		var watcher *source.Watcher
		if cfg.WatchSnapshot {
			watcher, err = source.NewWatcher(cfg.SnapshotFile, source.DefaultDebounce, func(ctx context.Context) {
				_, _ = srv.Sync(ctx)
			}, logger)
			if err == nil {
				err = watcher.Start(ctx)
			}
			if err != nil {
				logger.Error("snapshot watcher disabled", "file", cfg.SnapshotFile, "err", err)
				watcher = nil
			} else {
				logger.Info("watching snapshot", "file", cfg.SnapshotFile)
			}
		}

		scheduler := startExports(ctx, cfg, sc, metrics, logger)

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("garden server started", "http_addr", cfg.HTTPAddr, "generation", sc.Generation())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if watcher != nil {
			watcher.Stop()
		}
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}
		cancel()
		viewers.Stop()

		if err := sc.Close(); err != nil {
			logger.Error("error closing scene", "err", err)
		}
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging")
}

// startExports starts the export scheduler when an interval and at least one
// destination are configured.
func startExports(ctx context.Context, cfg *config.Config, sc *scene.Scene, metrics *telemetry.Metrics, logger *slog.Logger) *export.Scheduler {
	if cfg.ExportInterval <= 0 {
		return nil
	}
	var dests []export.Destination
	format := export.FormatSVG
	if cfg.ExportS3Bucket != "" {
		s3Dest, err := export.NewS3Destination(ctx, cfg.ExportS3Bucket, cfg.ExportS3Key, cfg.ExportS3Region, cfg.ExportS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			format = export.FormatFor(cfg.ExportS3Key)
			logger.Info("export S3 destination enabled", "bucket", cfg.ExportS3Bucket, "key", cfg.ExportS3Key)
		}
	}
	if cfg.ExportFile != "" {
		dests = append(dests, export.NewFileDestination(cfg.ExportFile))
		format = export.FormatFor(cfg.ExportFile)
		logger.Info("export file destination enabled", "file", cfg.ExportFile)
	}
	if len(dests) == 0 {
		return nil
	}
	scheduler := export.NewScheduler(sc, format, dests, cfg.ExportInterval, logger, metrics)
	scheduler.Start()
	logger.Info("export scheduler started", "interval", cfg.ExportInterval, "format", format)
	return scheduler
}
