package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client publishes and subscribes to the events of one canvas over Redis Pub/Sub.
// The channel is namespaced with the canvas name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb        *redis.Client
	canvasName string
}

// NewClient creates a new events client for the specified canvas.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - canvasName: canvas identifier (must not be empty)
//
// Returns an error if canvasName is empty.
func NewClient(redisOpts *redis.Options, canvasName string) (*Client, error) {
	if canvasName == "" {
		return nil, fmt.Errorf("canvas name cannot be empty")
	}

	return &Client{
		rdb:        redis.NewClient(redisOpts),
		canvasName: canvasName,
	}, nil
}

// CanvasName returns the canvas this client is bound to.
func (c *Client) CanvasName() string {
	return c.canvasName
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish wraps payload in an envelope and publishes it on the canvas channel.
func (c *Client) Publish(ctx context.Context, name EventName, payload any) error {
	env, err := NewEnvelope(name, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", name, err)
	}

	channel := EventsChannel(c.canvasName)
	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", name, err)
	}

	return nil
}

// Subscription represents an active Pub/Sub subscription to canvas events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Envelope
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of decoded envelopes.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Envelope {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors are non-fatal: the offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe subscribes to every event on the canvas channel.
// It returns once Redis has confirmed the subscription, so events published
// after Subscribe returns are guaranteed to be delivered.
//
// Events are delivered on a buffered channel (size 32). Redis Pub/Sub is
// at-most-once: a subscriber that is not connected misses events.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	channel := EventsChannel(c.canvasName)
	pubsub := c.rdb.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	eventsChan := make(chan *Envelope, 32)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Name == "" {
					if err == nil {
						err = fmt.Errorf("missing event name")
					}
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal canvas event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &env:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
