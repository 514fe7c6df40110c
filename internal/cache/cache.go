// Package cache stores ML analysis results keyed by a request fingerprint,
// with per-result-type TTLs. It uses redis when configured and reachable,
// falling back to an in-process map with the same semantics.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// Kind selects the TTL class for a cached result.
type Kind string

const (
	KindPrediction Kind = "prediction"
	KindSentiment  Kind = "sentiment"
	KindAnomaly    Kind = "anomaly"
	KindPattern    Kind = "pattern"
	KindTraining   Kind = "training"
)

// TTLFor returns the retention window for a result kind.
func TTLFor(kind Kind) time.Duration {
	switch kind {
	case KindPrediction:
		return time.Hour
	case KindSentiment:
		return 30 * time.Minute
	case KindAnomaly:
		return 15 * time.Minute
	case KindPattern:
		return time.Hour
	case KindTraining:
		return 2 * time.Hour
	default:
		return 15 * time.Minute
	}
}

// Fingerprint derives a stable cache key from the symbol, operation, and
// its parameters. Parameter order does not matter.
func Fingerprint(symbol string, kind Kind, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.ToUpper(symbol))
	b.WriteByte('|')
	b.WriteString(string(kind))
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "mlcache:" + string(kind) + ":" + hex.EncodeToString(sum[:16])
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// Cache is the TTL result cache.
type Cache struct {
	logger *zap.Logger
	rdb    *redis.Client

	mu  sync.RWMutex
	mem map[string]memEntry
}

// New connects to redis when an address is configured; otherwise (or when the
// ping fails) it runs on the in-memory map.
func New(cfg types.CacheConfig, logger *zap.Logger) *Cache {
	c := &Cache{
		logger: logger.Named("cache"),
		mem:    make(map[string]memEntry),
	}
	if cfg.RedisAddr == "" {
		c.logger.Info("redis not configured, using in-memory cache")
		return c
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		c.logger.Warn("redis unreachable, falling back to in-memory cache", zap.Error(err))
		_ = rdb.Close()
		return c
	}
	c.rdb = rdb
	c.logger.Info("redis cache connected", zap.String("addr", cfg.RedisAddr))
	return c
}

// Get loads a cached result into out. The second return is false on a miss
// or an expired entry.
func (c *Cache) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("redis get failed: %w", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("failed to decode cached value: %w", err)
		}
		return true, nil
	}

	c.mu.RLock()
	e, ok := c.mem[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.mem, key)
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(e.data, out); err != nil {
		return false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return true, nil
}

// Set stores a result under its kind's TTL.
func (c *Cache) Set(ctx context.Context, key string, kind Kind, v interface{}) error {
	return c.SetWithTTL(ctx, key, v, TTLFor(kind))
}

// SetWithTTL stores a result under an explicit TTL.
func (c *Cache) SetWithTTL(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
			return fmt.Errorf("redis set failed: %w", err)
		}
		return nil
	}

	c.mu.Lock()
	c.mem[key] = memEntry{data: data, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes one entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.rdb != nil {
		return c.rdb.Del(ctx, key).Err()
	}
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()
	return nil
}

// Close releases the redis connection if one is held.
func (c *Cache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
