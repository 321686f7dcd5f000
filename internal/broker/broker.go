// Package broker wraps the NATS JetStream client behind the small
// publish/subscribe surface the relay needs: a retried initial connection,
// bounded publishes, and durable subscriptions with explicit per-message
// dispositions.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fluxchat/relay/internal/config"
	"github.com/fluxchat/relay/internal/wire"
)

// ErrUnavailable is returned when the broker cannot be reached within the
// configured retry budget.
var ErrUnavailable = errors.New("broker unavailable")

// Disposition tells the consumer loop what to do with a message after its
// handler returns.
type Disposition int

const (
	// Ack confirms the message; it will not be redelivered.
	Ack Disposition = iota
	// Requeue returns the message to the broker for redelivery after a
	// transient failure.
	Requeue
	// Drop terminates a poison message without redelivery.
	Drop
)

// Handler processes one delivered message and decides its fate. Handlers
// are invoked sequentially per subscription, so a single consumer sees
// messages in FIFO order.
type Handler func(subject string, data []byte) Disposition

type dialFunc func(url string, opts ...nats.Option) (*nats.Conn, error)

// Client is a connected broker handle. Publish is safe for concurrent use
// from many sessions; subscriptions each run their own consumer callback.
type Client struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	cfg    config.BrokerConfig
	logger *slog.Logger
}

// Connect dials the broker, retrying with capped exponential backoff, and
// ensures the chat stream exists. It blocks until connected, the context
// is cancelled, or the retry budget is exhausted; callers must not accept
// client traffic before it returns.
func Connect(ctx context.Context, cfg config.BrokerConfig, logger *slog.Logger) (*Client, error) {
	nc, err := connectWithRetry(ctx, cfg, nats.Connect, logger)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	if err := ensureStream(js); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("connected to broker", "url", cfg.URL, "stream", wire.StreamName)
	return &Client{nc: nc, js: js, cfg: cfg, logger: logger}, nil
}

func connectWithRetry(ctx context.Context, cfg config.BrokerConfig, dial dialFunc, logger *slog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.CustomReconnectDelay(func(attempt int) time.Duration {
			return backoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("broker connection lost", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("broker connection restored", "url", nc.ConnectedUrl())
		}),
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		nc, err := dial(cfg.URL, opts...)
		if err == nil {
			return nc, nil
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)
		logger.Warn("broker connection failed, retrying",
			"attempt", attempt, "max_retries", cfg.MaxRetries, "retry_in", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
	}

	return nil, fmt.Errorf("%w: giving up after %d attempts: %v", ErrUnavailable, cfg.MaxRetries, lastErr)
}

func ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(wire.StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream lookup: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     wire.StreamName,
		Subjects: []string{"chat.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("stream create: %w", err)
	}
	return nil
}

// Publish sends payload on subject, waiting at most the configured publish
// timeout for the stream to confirm it. A timeout surfaces as an error
// instead of stalling the caller's command loop.
func (c *Client) Publish(ctx context.Context, subject string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()

	if _, err := c.js.Publish(subject, payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches a durable consumer to subject. The handler runs for
// one message at a time; its disposition is applied before the next
// message is handled. MaxAckPending bounds prefetch so a slow handler
// applies backpressure instead of buffering unboundedly.
func (c *Client) Subscribe(subject, durable string, handler Handler) (*nats.Subscription, error) {
	sub, err := c.js.Subscribe(subject, func(msg *nats.Msg) {
		c.dispose(msg, handler(msg.Subject, msg.Data))
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(30*time.Second),
		nats.MaxAckPending(64),
		nats.DeliverAll(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

func (c *Client) dispose(msg *nats.Msg, d Disposition) {
	var err error
	switch d {
	case Requeue:
		err = msg.Nak()
	case Drop:
		err = msg.Term()
	default:
		err = msg.Ack()
	}
	if err != nil {
		c.logger.Error("broker acknowledgment failed", "subject", msg.Subject, "error", err)
	}
}

// Drain flushes pending operations and closes the connection.
func (c *Client) Drain() error {
	return c.nc.Drain()
}

// Close drops the connection immediately.
func (c *Client) Close() {
	c.nc.Close()
}
