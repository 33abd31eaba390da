package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/records-archive/internal/bootstrap"
	"github.com/kirillkom/records-archive/internal/config"
	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/infrastructure/watcher"
	"github.com/kirillkom/records-archive/internal/observability/logging"
	"github.com/kirillkom/records-archive/internal/observability/metrics"
)

func main() {
	once := flag.Bool("once", false, "run a single sync of the configured root and exit")
	root := flag.String("root", "", "root to sync instead of the configured one")
	request := flag.Bool("request", false, "publish a sync request for -root on NATS and exit")
	flag.Parse()

	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if *request {
		if app.Queue == nil {
			logger.Error("sync_request_failed", "error", "NATS_ENABLED is false")
			os.Exit(1)
		}
		if err := app.Queue.RequestSync(ctx, *root); err != nil {
			logger.Error("sync_request_failed", "root", *root, "error", err)
			os.Exit(1)
		}
		logger.Info("sync_requested", "root", *root, "subject", cfg.NATSSyncSubject)
		return
	}

	report, err := app.SyncRoot(ctx, *root)
	if err != nil {
		logger.Error("initial_sync_failed", "error", err)
		if *once {
			os.Exit(1)
		}
	} else {
		logger.Info("initial_sync_done",
			"root", report.Root,
			"added", report.Added,
			"modified", report.Modified,
			"deleted", report.Deleted,
			"no_changes", report.NoChanges,
		)
	}
	if *once {
		return
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.Handler(app.Registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
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
			logger.Info("worker_subscribed", "subject", cfg.NATSSyncSubject)
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
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
}
