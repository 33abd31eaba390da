package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/records-archive/internal/adapters/mcp"
	"github.com/kirillkom/records-archive/internal/bootstrap"
	"github.com/kirillkom/records-archive/internal/config"
	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	store, closeStore, err := bootstrap.LoadArchive(context.Background(), cfg)
	if err != nil {
		logger.Error("archive_load_failed", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Sync runs in other processes; report the last completed sync only.
	status := func() domain.BatchProgress {
		p := domain.BatchProgress{Phase: domain.PhaseIdle, Root: store.ConnectedRoot()}
		if at, ok := store.LastSync(); ok {
			p.StartedAt = &at
		}
		return p
	}

	s := mcpadapter.NewServer(mcpadapter.NewTools(store, status))
	logger.Info("mcp_serving_stdio", "records", store.Len())
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_stopped", "error", err)
		os.Exit(1)
	}
}
