package feed

import (
	"context"
	"fmt"
	"time"

	"noodlebadge/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisFeed carries updates over Redis pub/sub, one channel per user
type redisFeed struct {
	client     *redis.Client
	prefix     string
	bufferSize int
	logger     *zap.Logger
}

// NewRedisFeed connects to Redis and verifies the connection
func NewRedisFeed(config *Config, logger *zap.Logger) (Feed, error) {
	if config.RedisURL == "" {
		return nil, fmt.Errorf("redis feed requires a redis url")
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisFeed(client, config, logger), nil
}

func newRedisFeed(client *redis.Client, config *Config, logger *zap.Logger) *redisFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisFeed{
		client:     client,
		prefix:     config.ChannelPrefix,
		bufferSize: config.BufferSize,
		logger:     logger.With(zap.String("component", "redis_feed")),
	}
}

func (f *redisFeed) channel(userID string) string {
	return f.prefix + userID
}

// Subscribe implements Feed
func (f *redisFeed) Subscribe(ctx context.Context, userID string) (<-chan models.CounterUpdate, error) {
	pubsub := f.client.Subscribe(ctx, f.channel(userID))

	// wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan models.CounterUpdate, f.bufferSize)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				update, err := DecodeUpdate([]byte(m.Payload))
				if err != nil {
					f.logger.Warn("Bad counter payload",
						zap.String("channel", m.Channel),
						zap.Error(err),
					)
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Publish implements Feed
func (f *redisFeed) Publish(ctx context.Context, update models.CounterUpdate) error {
	raw, err := EncodeUpdate(update)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel(update.UserID), raw).Err()
}

// Close implements Feed
func (f *redisFeed) Close() error {
	return f.client.Close()
}
