// Package messaging provides a NATS client wrapper for the coordination
// server's out-of-band channels: asynchronous moderation checks and the chat
// lifecycle firehose consumed by ops tooling. It handles connection
// lifecycle, subject-based subscriptions, and JSON payload convenience
// methods.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used across duochat services.
const (
	SubjectModerationCheck = "moderation.check"
	SubjectChatStarted     = "lifecycle.chat.started"
	SubjectChatEnded       = "lifecycle.chat.ended"
	SubjectLifecycleAll    = "lifecycle.>"
)

// ChatLifecycleEvent is published on chat start and end so external tooling
// can observe session churn without touching the coordination process.
type ChatLifecycleEvent struct {
	ChatID  string `json:"chat_id"`
	UserA   string `json:"user_a"`
	UserB   string `json:"user_b"`
	EndedBy string `json:"ended_by,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Ts      int64  `json:"ts"`
}

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "duochat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishModerationCheck publishes a pre-encoded moderation check request
// (a moderation.CheckRequest marshaled by the caller, which keeps this
// package free of a moderation dependency).
func (c *Client) PublishModerationCheck(data []byte) error {
	return c.Publish(SubjectModerationCheck, data)
}

// SubscribeModerationCheck subscribes to moderation check requests and
// passes the raw message data to the handler.
func (c *Client) SubscribeModerationCheck(handler func(data []byte)) error {
	return c.Subscribe(SubjectModerationCheck, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishLifecycle publishes a chat lifecycle event to the given subject
// (SubjectChatStarted or SubjectChatEnded).
func (c *Client) PublishLifecycle(subject string, event ChatLifecycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats marshal lifecycle event: %w", err)
	}
	return c.Publish(subject, data)
}

// SubscribeLifecycle subscribes to all chat lifecycle events. The handler
// receives the subject alongside the decoded event so consumers can tell
// starts from ends.
func (c *Client) SubscribeLifecycle(handler func(subject string, event ChatLifecycleEvent)) error {
	return c.Subscribe(SubjectLifecycleAll, func(msg *nats.Msg) {
		var event ChatLifecycleEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[nats] bad lifecycle payload on %s: %v", msg.Subject, err)
			return
		}
		handler(msg.Subject, event)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
