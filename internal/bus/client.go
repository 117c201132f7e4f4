package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Client sends events to a Subscriber over NATS.
type Client struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
}

// NewClient creates a client using prefix for subjects.
func NewClient(nc *nats.Conn, prefix string, timeout time.Duration) *Client {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{nc: nc, prefix: prefix, timeout: timeout}
}

// Send dispatches one event and returns the raw reply.
func (c *Client) Send(ctx context.Context, eventType string, payload map[string]any) (json.RawMessage, error) {
	return c.request(ctx, EventSubject(c.prefix, eventType), payload)
}

// SendBatch dispatches a batch operation and returns the raw reply.
func (c *Client) SendBatch(ctx context.Context, operation string, items []map[string]any) (json.RawMessage, error) {
	return c.request(ctx, BatchSubject(c.prefix, operation), items)
}

func (c *Client) request(ctx context.Context, subject string, v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(reqCtx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}
	return json.RawMessage(msg.Data), nil
}
