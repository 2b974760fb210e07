// Package app wires the server together: config, logging, state store, hub,
// poll loop, and the HTTP surface hosting the websocket endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"live-results/dashboard/internal/config"
	"live-results/dashboard/internal/hub"
	"live-results/dashboard/internal/logging"
	"live-results/dashboard/internal/net/proto"
	"live-results/dashboard/internal/net/ws"
	"live-results/dashboard/internal/poll"
	"live-results/dashboard/internal/source"
	"live-results/dashboard/internal/state"
)

const shutdownTimeout = 5 * time.Second

// Run starts the server and blocks until the context is cancelled or a
// termination signal arrives.
func Run(ctx context.Context) error {
	cfg := config.Load()

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := state.NewStore()
	fetcher := source.NewFetcher(cfg.SourceURL, cfg.SourceTimeout)
	broadcaster := hub.New(store, proto.Status{
		DataSourceURL:      cfg.SourceURL,
		DataSourceInterval: cfg.SourceInterval.Seconds(),
	}, logger)
	poller := poll.New(fetcher, store, broadcaster, cfg.SourceInterval, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	wsHandler := ws.NewHandler(broadcaster, logger)
	e.GET("/ws", wsHandler.Handle)
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/diagnostics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, broadcaster.DiagnosticsSnapshot())
	})

	go poller.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- e.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	broadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
