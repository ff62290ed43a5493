package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// minSweepInterval keeps short TTLs from making the sweeper hold the lock
// too often. Expired entries are still dropped on read.
const minSweepInterval = time.Minute

type Config struct {
	Backend string // memory | redis | none
	TTL     time.Duration
	Prefix  string
}

// New returns the configured backend wrapped with logging and metrics.
// The returned close func releases background resources.
func New(cfg Config, redisClient *redis.Client, logger *zap.Logger) (Cache, func() error) {
	var (
		inner   Cache
		closeFn = func() error { return nil }
	)

	switch cfg.Backend {
	case "none":
		return Noop{}, closeFn
	case "redis":
		inner = NewRedisCache(redisClient, RedisConfig{Prefix: cfg.Prefix})
	default:
		mem := NewMemoryCache(sweepInterval(cfg.TTL))
		inner = mem
		closeFn = mem.Close
	}

	return NewLoggingCache(inner, logger), closeFn
}

func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl, minSweepInterval)
}
