package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/izukowska/10xcards/internal/metrics"
	"github.com/izukowska/10xcards/pkg/logging"
)

// LoggingCache wraps a Cache with logging + metrics.
type LoggingCache struct {
	inner  Cache
	logger *zap.Logger
}

// NewLoggingCache returns a cache that logs and records metrics. The
// request-scoped logger from ctx wins over logger when present.
func NewLoggingCache(inner Cache, logger *zap.Logger) Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingCache{inner: inner, logger: logger}
}

func (c *LoggingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
		metrics.ExactHitsTotal.Inc()
	}

	fields := append(keyFields(key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	)

	logger := c.loggerFor(ctx)
	if err != nil {
		logger.Error("chat_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("chat_cache_get", fields...)
	}

	return value, ok, err
}

func (c *LoggingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, value, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	fields := append(keyFields(key),
		zap.Duration("ttl", ttl),
		zap.Float64("latency_ms", latencyMs),
	)

	logger := c.loggerFor(ctx)
	if err != nil {
		logger.Error("chat_cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("chat_cache_set", fields...)
	}

	return err
}

func (c *LoggingCache) loggerFor(ctx context.Context) *zap.Logger {
	if l, ok := logging.Scoped(ctx); ok {
		return l
	}
	return c.logger
}

func keyFields(key string) []zap.Field {
	parts, ok := parseKey(key)
	if !ok {
		return []zap.Field{zap.String("cache_key", key)}
	}
	return []zap.Field{
		zap.String("user_id", parts.UserID),
		zap.String("model", parts.Model),
		zap.String("version_id", parts.VersionID),
		zap.String("hash", parts.Hash),
	}
}

// parseKey is the inverse of Key.String.
// Model names may not contain ':' for the split to succeed.
func parseKey(key string) (Key, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "chat" {
		return Key{}, false
	}
	return Key{
		UserID:    parts[1],
		Model:     parts[2],
		VersionID: parts[3],
		Hash:      parts[4],
	}, true
}
