package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const subscribeTimeout = 10 * time.Second

type binding struct {
	spec    EventSpec
	handler Handler
}

// RedisClient builds channels over Redis pub/sub.
type RedisClient struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisClient(rdb *redis.Client, logger *slog.Logger) *RedisClient {
	return &RedisClient{rdb: rdb, logger: logger.With("component", "realtime")}
}

func (c *RedisClient) Channel(name string) Channel {
	return &redisChannel{name: name, rdb: c.rdb, logger: c.logger.With("channel", name)}
}

type redisChannel struct {
	name   string
	rdb    *redis.Client
	logger *slog.Logger

	mu       sync.Mutex
	bindings []binding
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	done     chan struct{}
}

func (ch *redisChannel) Name() string {
	return ch.name
}

func (ch *redisChannel) On(spec EventSpec, handler Handler) Channel {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.bindings = append(ch.bindings, binding{spec: spec, handler: handler})
	return ch
}

func (ch *redisChannel) Subscribe(onStatus StatusFunc) {
	ch.mu.Lock()
	if ch.pubsub != nil {
		ch.mu.Unlock()
		return
	}

	seen := make(map[string]bool)
	var topics []string
	for _, b := range ch.bindings {
		t := topic(b.spec.Table)
		if !seen[t] {
			seen[t] = true
			topics = append(topics, t)
		}
	}
	bindings := append([]binding(nil), ch.bindings...)

	ctx, cancel := context.WithCancel(context.Background())
	ps := ch.rdb.Subscribe(ctx, topics...)
	ch.pubsub = ps
	ch.cancel = cancel
	ch.done = make(chan struct{})
	done := ch.done
	ch.mu.Unlock()

	go func() {
		defer close(done)

		for range topics {
			msg, err := ps.ReceiveTimeout(ctx, subscribeTimeout)
			if err != nil {
				if ctx.Err() != nil {
					onStatus(StatusClosed, nil)
					return
				}
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					onStatus(StatusTimedOut, err)
					return
				}
				onStatus(StatusChannelError, err)
				return
			}
			if _, ok := msg.(*redis.Subscription); !ok {
				onStatus(StatusChannelError, fmt.Errorf("unexpected subscribe reply %T", msg))
				return
			}
		}
		onStatus(StatusSubscribed, nil)

		for msg := range ps.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				ch.logger.Warn("dropping malformed event", "error", err)
				continue
			}
			for _, b := range bindings {
				if b.spec.Matches(event) {
					b.handler(event)
				}
			}
		}
		if ctx.Err() == nil {
			onStatus(StatusClosed, nil)
		}
	}()
}

func (ch *redisChannel) Unsubscribe() error {
	ch.mu.Lock()
	ps, cancel, done := ch.pubsub, ch.cancel, ch.done
	ch.pubsub, ch.cancel, ch.done = nil, nil, nil
	ch.mu.Unlock()

	if ps == nil {
		return nil
	}
	cancel()
	err := ps.Close()
	<-done
	if err != nil {
		return fmt.Errorf("failed to close channel %s: %w", ch.name, err)
	}
	return nil
}

// RedisPublisher fans backend change events out to subscribers.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, topic(event.Table), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
