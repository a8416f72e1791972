package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/resilience"
	"github.com/nats-io/nats.go"
)

const sourceNATS = "nats"

type Options struct {
	URL     string
	Subject string
	Queue   string
}

// Subscriber answers scoring requests on a NATS queue group so that several
// service instances share the load.
type Subscriber struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	handler *Handler
	opts    Options
}

// NewSubscriber connects to NATS, retrying the initial dial with backoff.
// Once connected the client reconnects on its own forever.
func NewSubscriber(ctx context.Context, opts Options, handler *Handler) (*Subscriber, error) {
	var conn *nats.Conn
	retry := resilience.DefaultRetryConfig()
	retry.InitialDelay = 200 * time.Millisecond
	retry.MaxDelay = 2 * time.Second

	err := resilience.RetryWithConfig(ctx, retry, func() error {
		var err error
		conn, err = connect(opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Subscriber{conn: conn, handler: handler, opts: opts}, nil
}

func connect(opts Options) (*nats.Conn, error) {
	return nats.Connect(opts.URL,
		nats.Name("runway-scorer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
}

// Start queue-subscribes the configured subject
func (s *Subscriber) Start() error {
	sub, err := s.conn.QueueSubscribe(s.opts.Subject, s.opts.Queue, s.onMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.opts.Subject, err)
	}
	s.sub = sub

	slog.Info("NATS subscriber started",
		"subject", s.opts.Subject,
		"queue", s.opts.Queue)

	return nil
}

func (s *Subscriber) onMessage(msg *nats.Msg) {
	if msg.Reply == "" {
		slog.Warn("Dropping NATS request without reply subject", "subject", msg.Subject)
		return
	}

	if err := msg.Respond(s.handler.HandleBytes(msg.Data)); err != nil {
		slog.Error("Failed to send NATS reply", "subject", msg.Subject, "error", err)
	}
}

// Status reports the connection state for health checks
func (s *Subscriber) Status() string {
	if s == nil || s.conn == nil {
		return "disabled"
	}
	if s.conn.IsConnected() {
		return "connected"
	}
	return "disconnected"
}

// Drain finishes in-flight requests and closes the connection
func (s *Subscriber) Drain() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
