package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker relays events between server instances over Redis pub/sub.
// Every instance publishes to Redis and delivers what it receives to its own hub.
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
	prefix string
	log    *slog.Logger

	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBroker connects to Redis at redisURL.
func NewRedisBroker(redisURL string, hub *Hub, log *slog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBrokerWithClient(client, hub, log), nil
}

// NewRedisBrokerWithClient creates a broker from an existing Redis client.
func NewRedisBrokerWithClient(client *redis.Client, hub *Hub, log *slog.Logger) *RedisBroker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &RedisBroker{
		client: client,
		hub:    hub,
		prefix: "kanban:board:",
		log:    log,
	}
}

func (b *RedisBroker) channel(boardID string) string {
	return b.prefix + boardID
}

// Publish sends ev to every instance, this one included.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(ev.BoardID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Start subscribes to all board channels and relays messages into the hub
// until ctx ends or Close is called. It returns once the subscription is live.
func (b *RedisBroker) Start(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	b.pubsub = pubsub
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.relay(msg)
			}
		}
	}()
	return nil
}

func (b *RedisBroker) relay(msg *redis.Message) {
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		b.log.Warn("bad event payload", "channel", msg.Channel, "err", err)
		return
	}
	if ev.BoardID == "" {
		ev.BoardID = strings.TrimPrefix(msg.Channel, b.prefix)
	}
	b.hub.Deliver(ev)
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close stops relaying and closes the Redis client.
func (b *RedisBroker) Close() error {
	if b.pubsub != nil {
		_ = b.pubsub.Close()
		<-b.done
	}
	return b.client.Close()
}
