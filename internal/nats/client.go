package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/previews"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	StreamName = "asset-events"

	SubjectDerive      = "assets.derive"
	SubjectUserDeleted = "users.deleted"
)

// Client wraps a NATS connection with its JetStream context.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials NATS, initializes JetStream and makes sure the event stream
// exists.
func Connect(url, name string) (*Client, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("[NATS] disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[NATS] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Println("[NATS] connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init JetStream: %w", err)
	}

	c := &Client{conn: conn, js: js}
	if err := c.ensureStream(); err != nil {
		log.Printf("[NATS] warning: failed to ensure stream %s: %v", StreamName, err)
	}
	log.Println("[NATS] connected and JetStream initialized")
	return c, nil
}

func (c *Client) ensureStream() error {
	if _, err := c.js.StreamInfo(StreamName); err == nil {
		return nil
	}
	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"assets.*", "users.*"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

// Publish sends payload as JSON through JetStream with a unique message id.
func (c *Client) Publish(ctx context.Context, subject string, payload any) error {
	if c == nil || c.js == nil {
		return errors.New("jetstream not initialized")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if _, err := c.js.Publish(subject, data, nats.MsgId(uuid.NewString()), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Dispatch queues a thumbnail task on the derive subject.
func (c *Client) Dispatch(ctx context.Context, t previews.Task) error {
	return c.Publish(ctx, SubjectDerive, t)
}

// SubscribeAll attaches a durable manual-ack consumer for every route.
func (c *Client) SubscribeAll(routes []Route) error {
	for _, r := range routes {
		_, err := c.js.Subscribe(r.Subject, r.Handler,
			nats.Durable(r.Durable),
			nats.ManualAck(),
			nats.AckWait(r.AckWait),
		)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", r.Subject, err)
		}
		log.Printf("[NATS] subscribed subject=%s durable=%s", r.Subject, r.Durable)
	}
	return nil
}

func (c *Client) Ping() error {
	if c == nil || c.conn == nil || !c.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

// Close drains subscriptions and closes the connection.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
