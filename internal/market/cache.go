package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CacheConfig holds the Redis candle cache settings
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" default:"false"`
	Address  string        `yaml:"address" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" default:"0"`
	TTL      time.Duration `yaml:"ttl" default:"1m"`
}

// CachedSource is a read-through Redis cache in front of another candle
// source. Cache failures degrade to direct fetches, never to errors: a broken
// cache must not take down signal generation.
type CachedSource struct {
	inner  Source
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedSource wraps the inner source with a Redis cache
func NewCachedSource(inner Source, cfg CacheConfig, log zerolog.Logger) *CachedSource {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return &CachedSource{
		inner:  inner,
		client: client,
		ttl:    cfg.TTL,
		log:    log.With().Str("component", "candle_cache").Logger(),
	}
}

// Candles implements Source, serving from Redis when a fresh entry exists
func (s *CachedSource) Candles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	key := candleKey(symbol, tf, limit)

	payload, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var candles []Candle
		if err := json.Unmarshal(payload, &candles); err == nil {
			return candles, nil
		}
		s.log.Warn().Str("key", key).Msg("corrupt cache entry, refetching")
	} else if err != redis.Nil {
		s.log.Warn().Err(err).Msg("cache read failed, fetching directly")
	}

	candles, err := s.inner.Candles(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(candles); err == nil {
		if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Msg("cache write failed")
		}
	}

	return candles, nil
}

// Close releases the Redis connection pool
func (s *CachedSource) Close() error {
	return s.client.Close()
}

func candleKey(symbol string, tf Timeframe, limit int) string {
	return fmt.Sprintf("candles:%s:%s:%d", symbol, tf, limit)
}
