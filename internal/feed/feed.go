// Package feed delivers per-user counter updates to the badge engine.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"noodlebadge/internal/models"

	"go.uber.org/zap"
)

// Feed is a counter feed that can also accept updates
type Feed interface {
	// Subscribe returns the user's updates. The channel is closed when ctx
	// is cancelled or the feed is closed.
	Subscribe(ctx context.Context, userID string) (<-chan models.CounterUpdate, error)
	Publish(ctx context.Context, update models.CounterUpdate) error
	Close() error
}

// Config holds feed settings
type Config struct {
	Provider      string // memory, redis, amqp
	RedisURL      string
	ChannelPrefix string
	AMQPURL       string
	Exchange      string
	QueuePrefix   string
	BufferSize    int
}

// DefaultConfig returns an in-memory feed configuration
func DefaultConfig() *Config {
	return &Config{
		Provider:      "memory",
		ChannelPrefix: "badge-counters:",
		Exchange:      "badge.counters",
		QueuePrefix:   "badge-counters.",
		BufferSize:    64,
	}
}

// NewFeed creates the feed selected by config.Provider
func NewFeed(config *Config, logger *zap.Logger) (Feed, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(config.Provider) {
	case "", "memory":
		return NewChannelFeed(config.BufferSize), nil
	case "redis":
		return NewRedisFeed(config, logger)
	case "amqp":
		return NewAMQPFeed(config, logger)
	default:
		return nil, fmt.Errorf("unsupported feed provider: %s", config.Provider)
	}
}

// EncodeUpdate serializes an update for the wire
func EncodeUpdate(update models.CounterUpdate) ([]byte, error) {
	return json.Marshal(update)
}

// DecodeUpdate parses a wire payload. Field validation is left to the engine
// so that invalid items are reported per subscription.
func DecodeUpdate(payload []byte) (models.CounterUpdate, error) {
	var update models.CounterUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return models.CounterUpdate{}, fmt.Errorf("decode counter update: %w", err)
	}
	return update, nil
}

// routingKey is the AMQP topic key for a user's updates
func routingKey(userID string) string {
	return "user." + userID
}
