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

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/records-archive/internal/adapters/http"
	"github.com/kirillkom/records-archive/internal/bootstrap"
	"github.com/kirillkom/records-archive/internal/config"
	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/infrastructure/watcher"
	"github.com/kirillkom/records-archive/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Syncer:      app.Pipeline,
		Reader:      app.Store,
		Editor:      app.Editor,
		Policies:    app.Policies,
		Audit:       app.Audit,
		Chat:        app.Chat,
		Relay:       app.Relay,
		Blobs:       app.Blobs,
		Sources:     app.Source,
		Metrics:     app.HTTPMetrics,
		BaseContext: ctx,
	})
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.WatchEnabled && cfg.SnapshotSource == "localfs" {
		w := watcher.New(cfg.ArchiveRoot, cfg.WatchDebounce, func(ctx context.Context) error {
			_, err := app.SyncRoot(ctx, "")
			return err
		}, logger)
		g.Go(func() error { return w.Run(gctx) })
	}

	if app.Queue != nil {
		g.Go(func() error {
			return app.Queue.SubscribeSyncRequested(gctx, func(ctx context.Context, root string) error {
				_, err := app.SyncRoot(ctx, root)
				if domain.IsKind(err, domain.ErrBatchInProgress) {
					logger.Info("sync_request_skipped_busy", "root", root)
					return nil
				}
				return err
			})
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("api_stopped", "error", err)
		os.Exit(1)
	}
}
