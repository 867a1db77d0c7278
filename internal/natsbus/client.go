// Package natsbus owns the daemon's NATS connection and the subject layout
// shared by the display notifier, the recompute surface, the trigger
// subscription and the JetStream key-value store.
package natsbus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subject suffixes under the configured prefix.
const (
	SubjectDisplayRefresh     = "display.refresh"
	SubjectRecomputeRequest   = "recompute.request"
	SubjectRecomputeResult    = "recompute.result"
	SubjectRecomputeTerminate = "recompute.terminate"
	SubjectTrigger            = "trigger"
)

// Publisher is the publish half of a NATS connection.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subscriber is the subscribe half of a NATS connection.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Client manages the NATS connection and its JetStream context.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// Connect dials url and creates a JetStream context.
func Connect(url, prefix, name string) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
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
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	slog.Info("NATS client connected", "url", url, "prefix", prefix)
	return &Client{conn: conn, js: js, prefix: prefix}, nil
}

// Conn exposes the raw connection; it satisfies Publisher and Subscriber.
func (c *Client) Conn() *nats.Conn { return c.conn }

// JetStream returns the JetStream context used by the KV backend.
func (c *Client) JetStream() jetstream.JetStream { return c.js }

// Prefix returns the subject prefix.
func (c *Client) Prefix() string { return c.prefix }

// Subject joins the configured prefix with suffix.
func (c *Client) Subject(suffix string) string { return Subject(c.prefix, suffix) }

// Drain flushes pending messages and closes the connection.
func (c *Client) Drain(ctx context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- c.conn.Drain() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.conn.Close()
		return ctx.Err()
	}
}

// Close closes the connection immediately.
func (c *Client) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// Subject joins prefix and suffix with a dot, tolerating an empty prefix.
func Subject(prefix, suffix string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}
