// The relay process: terminates client WebSocket connections, tracks room
// membership, and fans persisted messages out to live members. It does
// not accept client connections until the broker connection is up.
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

	"github.com/fluxchat/relay/internal/auth"
	"github.com/fluxchat/relay/internal/broker"
	"github.com/fluxchat/relay/internal/config"
	"github.com/fluxchat/relay/internal/registry"
	"github.com/fluxchat/relay/internal/relay"
	"github.com/fluxchat/relay/internal/wire"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "relay")
	slog.SetDefault(logger)

	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Joins and sends depend on the broker; connect before serving.
	bc, err := broker.Connect(ctx, cfg.Broker, logger)
	if err != nil {
		logger.Error("broker connection failed", "error", err)
		os.Exit(1)
	}
	defer bc.Close()

	reg := registry.New()
	dispatcher := relay.NewDispatcher(reg, logger)
	sub, err := bc.Subscribe(wire.SubjectMessagePersisted, "relay-broadcast", dispatcher.Handle)
	if err != nil {
		logger.Error("broadcast subscription failed", "error", err)
		os.Exit(1)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	srv := relay.NewServer(cfg, verifier, reg, bc, logger)
	httpServer := relay.NewHTTPServer(cfg.Port, srv.Routes())

	go func() {
		logger.Info("relay listening", "addr", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if err := relay.ShutdownHTTPServer(httpServer, 10*time.Second); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := sub.Drain(); err != nil {
		logger.Warn("subscription drain failed", "error", err)
	}
	if err := bc.Drain(); err != nil {
		logger.Warn("broker drain failed", "error", err)
	}
	logger.Info("relay stopped")
}
