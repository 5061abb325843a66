package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/mimir/internal/mcpserver"
)

// RunMCP serves the Model Context Protocol over stdio for a single owner.
// Logs go to stderr because the protocol stream owns stdout.
func RunMCP(_ context.Context, owner string, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	if owner == "" {
		return fmt.Errorf("owner is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	svc, closeStores, err := buildService(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	logger.Info("MCP server starting", slog.String("owner", owner))
	return mcpserver.New(svc, owner).ServeStdio()
}
