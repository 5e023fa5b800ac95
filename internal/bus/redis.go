// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/resilience"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
	Prefix   string // channel prefix, "cuepoint" when empty

	// BreakerThreshold consecutive publish failures stop publishing for
	// BreakerReset. Zero values take the breaker defaults.
	BreakerThreshold int
	BreakerReset     time.Duration
}

// RedisPublisher publishes JSON envelopes to "<prefix>:<topic>" channels.
type RedisPublisher struct {
	client  *redis.Client
	prefix  string
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewRedisPublisher connects and verifies the server with PING.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis event channel")

	breaker := resilience.NewCircuitBreaker("redis", cfg.BreakerThreshold, cfg.BreakerReset)
	return newRedisPublisher(client, cfg.Prefix, breaker, logger), nil
}

func newRedisPublisher(client *redis.Client, prefix string, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = "cuepoint"
	}
	return &RedisPublisher{client: client, prefix: prefix, breaker: breaker, logger: logger}
}

// Channel returns the Redis channel used for topic.
func (p *RedisPublisher) Channel(topic string) string {
	return p.prefix + ":" + topic
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(Message{Topic: topic, Payload: payload, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", topic, err)
	}
	err = p.breaker.Execute(func() error {
		return p.client.Publish(ctx, p.Channel(topic), data).Err()
	})
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// HealthCheck pings the server.
func (p *RedisPublisher) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
