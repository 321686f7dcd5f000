// The ingestion worker process: consumes newly-submitted messages from
// the broker, persists them, and republishes the stored records for
// broadcast. Runs separately from the relay so storage latency never
// stalls a client-facing connection.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxchat/relay/internal/broker"
	"github.com/fluxchat/relay/internal/config"
	"github.com/fluxchat/relay/internal/ingest"
	"github.com/fluxchat/relay/internal/store"
	"github.com/fluxchat/relay/internal/wire"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "worker")
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

	bc, err := broker.Connect(ctx, cfg.Broker, logger)
	if err != nil {
		logger.Error("broker connection failed", "error", err)
		os.Exit(1)
	}
	defer bc.Close()

	worker := ingest.New(st, bc, logger)
	sub, err := bc.Subscribe(wire.SubjectMessageNew, "message-ingest", worker.Handle)
	if err != nil {
		logger.Error("ingest subscription failed", "error", err)
		os.Exit(1)
	}

	logger.Info("worker consuming", "subject", wire.SubjectMessageNew)
	<-ctx.Done()
	logger.Info("shutting down")

	if err := sub.Drain(); err != nil {
		logger.Warn("subscription drain failed", "error", err)
	}
	if err := bc.Drain(); err != nil {
		logger.Warn("broker drain failed", "error", err)
	}
	logger.Info("worker stopped")
}
