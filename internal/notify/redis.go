// Package notify publishes open and close signals for other processes.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"spread-arb-bot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	KindOpen  = "open"
	KindClose = "close"
)

// Signal is the JSON payload sent on the channel.
type Signal struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Symbol        string    `json:"symbol"`
	Low           string    `json:"low"`
	High          string    `json:"high"`
	SpreadPercent float64   `json:"spread_percent"`
	At            time.Time `json:"at"`
}

// publisher is the subset of *redis.Client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher sends signals over Redis Pub/Sub.
type RedisPublisher struct {
	rdb     publisher
	channel string
	symbol  string
	logger  *zap.Logger
	now     func() time.Time
}

// NewRedisClient connects and pings the configured server.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func NewRedisPublisher(rdb publisher, channel, symbol string, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		symbol:  symbol,
		logger:  logger.With(zap.String("component", "redis_publisher")),
		now:     time.Now,
	}
}

func (p *RedisPublisher) PublishOpen(ctx context.Context, low, high string, spreadPercent float64) error {
	return p.publish(ctx, KindOpen, low, high, spreadPercent)
}

func (p *RedisPublisher) PublishClose(ctx context.Context, low, high string, spreadPercent float64) error {
	return p.publish(ctx, KindClose, low, high, spreadPercent)
}

func (p *RedisPublisher) publish(ctx context.Context, kind, low, high string, spreadPercent float64) error {
	sig := Signal{
		ID:            uuid.NewString(),
		Kind:          kind,
		Symbol:        p.symbol,
		Low:           low,
		High:          high,
		SpreadPercent: spreadPercent,
		At:            p.now().UTC(),
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: encode signal: %w", err)
	}

	receivers, err := p.rdb.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("redis: publish %s: %w", p.channel, err)
	}
	p.logger.Debug("signal published",
		zap.String("id", sig.ID),
		zap.String("kind", kind),
		zap.Int64("receivers", receivers))
	return nil
}
