// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

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

	"codeberg.org/oliverandrich/go-auth-service/internal/config"
	"codeberg.org/oliverandrich/go-auth-service/internal/database"
	"codeberg.org/oliverandrich/go-auth-service/internal/i18n"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

const cleanupInterval = time.Hour

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	SetupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database (migrations run on open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	svc, err := NewServices(cfg, db)
	if err != nil {
		return err
	}
	defer svc.Close()

	e := New(cfg, svc)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go runCleanup(ctx, svc, cleanupInterval)

	return startWithGracefulShutdown(e, cfg)
}

// New creates the Echo instance with middleware and routes.
func New(cfg *config.Config, svc *Services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg, svc)
	setupRoutes(e, svc)

	return e
}

// Cleanup removes expired sessions and registrations that were never
// verified.
func Cleanup(ctx context.Context, svc *Services) (sessions, principals int64, err error) {
	sessions, err = svc.Sessions.Cleanup(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	principals, err = svc.Auth.CleanupExpiredPending(ctx)
	if err != nil {
		return sessions, 0, fmt.Errorf("failed to clean up pending principals: %w", err)
	}
	return sessions, principals, nil
}

func runCleanup(ctx context.Context, svc *Services, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, principals, err := Cleanup(ctx, svc)
			if err != nil {
				slog.Error("cleanup_failed", "error", err)
				continue
			}
			slog.Info("cleanup_done", "sessions", sessions, "principals", principals)
		}
	}
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
