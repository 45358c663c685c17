// Package channel carries JSON-RPC style notifications between vista and a
// long-running plugin over Redis Pub/Sub.
//
// Each plugin gets two channels namespaced by instance:
//
//	vista:{instance}:plugin:{id}:inbound   vista -> plugin
//	vista:{instance}:plugin:{id}:outbound  plugin -> vista
//
// Delivery is at-most-once, as with all Redis Pub/Sub.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/dyluth/vista/internal/event"
	"github.com/dyluth/vista/internal/metrics"
	"github.com/dyluth/vista/pkg/protocol"
	"github.com/redis/go-redis/v9"
)

// ErrClosed is returned when using a closed channel.
var ErrClosed = errors.New("channel closed")

// Version is the JSON-RPC version stamped on every notification.
const Version = "2.0"

// DefaultMaxRetries bounds the connection attempts made by Start.
const DefaultMaxRetries = 5

// Notification is the wire form of one message.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Handler receives the raw params of a notification.
type Handler func(params json.RawMessage)

type handlerEntry struct {
	id uint64
	fn Handler
}

// RedisChannel is a notification channel to one plugin.
type RedisChannel struct {
	rdb        *redis.Client
	instance   string
	pluginID   string
	maxRetries uint64
	metrics    *metrics.Metrics

	nextID   atomic.Uint64
	mu       sync.RWMutex
	handlers map[string][]handlerEntry
	pubsub   *redis.PubSub
	started  bool
	closed   bool
	done     chan struct{}
}

// Option configures a RedisChannel.
type Option func(*RedisChannel)

// WithMaxRetries sets how many times Start retries an unreachable Redis.
func WithMaxRetries(n uint64) Option {
	return func(c *RedisChannel) { c.maxRetries = n }
}

// WithMetrics counts notifications in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *RedisChannel) { c.metrics = m }
}

// New creates a channel for pluginID. The channel is inert until Start.
func New(rdb *redis.Client, instance, pluginID string, opts ...Option) (*RedisChannel, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if pluginID == "" {
		return nil, fmt.Errorf("plugin id cannot be empty")
	}
	c := &RedisChannel{
		rdb:        rdb,
		instance:   instance,
		pluginID:   pluginID,
		maxRetries: DefaultMaxRetries,
		handlers:   make(map[string][]handlerEntry),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	return c, nil
}

// Start connects to Redis, retrying with exponential backoff, and
// subscribes to the plugin's outbound channel. It returns once the
// subscription is confirmed, so notifications published afterwards are
// not missed.
func (c *RedisChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	ping := func() error {
		return c.rdb.Ping(ctx).Err()
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(ping, policy); err != nil {
		c.reset()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	channel := protocol.PluginOutboundChannel(c.instance, c.pluginID)
	pubsub := c.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		c.reset()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		pubsub.Close()
		return ErrClosed
	}
	c.pubsub = pubsub
	c.mu.Unlock()

	log.Printf("[INFO] Plugin channel started: plugin=%s channel=%s", c.pluginID, channel)
	go c.dispatch(pubsub)
	return nil
}

func (c *RedisChannel) reset() {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
}

// dispatch delivers messages one at a time in arrival order.
func (c *RedisChannel) dispatch(pubsub *redis.PubSub) {
	defer close(c.done)
	for msg := range pubsub.Channel() {
		var n Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			log.Printf("[WARN] Malformed notification skipped: plugin=%s error=%v", c.pluginID, err)
			continue
		}
		if n.Method == "" {
			log.Printf("[WARN] Notification without method skipped: plugin=%s", c.pluginID)
			continue
		}
		c.metrics.Notifications.WithLabelValues(c.pluginID, "inbound", n.Method).Inc()

		c.mu.RLock()
		handlers := c.handlers[n.Method]
		c.mu.RUnlock()
		if len(handlers) == 0 {
			log.Printf("[DEBUG] No handler for notification: plugin=%s method=%s", c.pluginID, n.Method)
		}
		for _, h := range handlers {
			h.fn(n.Params)
		}
	}
}

// OnNotification registers fn for notifications named method. Handlers run
// sequentially on the dispatch goroutine.
func (c *RedisChannel) OnNotification(method string, fn Handler) event.Disposable {
	id := c.nextID.Add(1)
	c.mu.Lock()
	c.handlers[method] = append(c.handlers[method], handlerEntry{id: id, fn: fn})
	c.mu.Unlock()

	return event.DisposeFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		hs := c.handlers[method]
		kept := make([]handlerEntry, 0, len(hs))
		for _, h := range hs {
			if h.id != id {
				kept = append(kept, h)
			}
		}
		c.handlers[method] = kept
	})
}

// Notify publishes a notification to the plugin.
func (c *RedisChannel) Notify(ctx context.Context, method string, params any) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	n := Notification{JSONRPC: Version, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal %s params: %w", method, err)
		}
		n.Params = raw
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	channel := protocol.PluginInboundChannel(c.instance, c.pluginID)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", method, err)
	}
	c.metrics.Notifications.WithLabelValues(c.pluginID, "outbound", method).Inc()
	return nil
}

// Close unsubscribes and waits for the dispatch goroutine to finish.
// The Redis client is not closed.
func (c *RedisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pubsub := c.pubsub
	c.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-c.done
	if err != nil {
		return fmt.Errorf("failed to close subscription: %w", err)
	}
	return nil
}
