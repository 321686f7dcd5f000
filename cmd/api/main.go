// The API process: account registration and login, room management, and
// message history. Room join authorization happens here, before a join
// command ever reaches the relay.
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

	"github.com/fluxchat/relay/internal/api"
	"github.com/fluxchat/relay/internal/auth"
	"github.com/fluxchat/relay/internal/config"
	"github.com/fluxchat/relay/internal/relay"
	"github.com/fluxchat/relay/internal/store"
)

const tokenTTL = 24 * time.Hour

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "api")
	slog.SetDefault(logger)

	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.InitSchema(ctx); err != nil {
		logger.Error("schema initialization failed", "error", err)
		os.Exit(1)
	}

	signer := auth.NewSigner(cfg.JWTSecret, "chat-api", tokenTTL)
	verifier := auth.NewVerifier(cfg.JWTSecret)
	srv := api.NewServer(st, signer, verifier, logger)
	httpServer := relay.NewHTTPServer(cfg.APIPort, srv.Routes())

	go func() {
		logger.Info("api listening", "addr", cfg.APIPort)
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
	logger.Info("api stopped")
}
