package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/izukowska/10xcards/internal/cache"
	"github.com/izukowska/10xcards/internal/config"
	"github.com/izukowska/10xcards/internal/generation"
	"github.com/izukowska/10xcards/internal/llm"
	"github.com/izukowska/10xcards/internal/ratelimit"
)

// app is the wired service graph shared by the commands.
type app struct {
	client    *llm.Client
	health    *llm.Client
	generator *generation.Service
	cache     cache.Cache

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// newApp wires clients from cfg. withServer adds the cache and rate
// limiter, which only the HTTP server uses.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, withServer bool) (*app, error) {
	a := &app{}

	var limiter llm.RateLimiter
	if withServer {
		redisClient, err := connectRedis(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if redisClient != nil {
			a.closers = append(a.closers, redisClient.Close)
		}

		c, closeCache := cache.New(cache.Config{
			Backend: cfg.Cache.Backend,
			TTL:     cfg.Cache.TTL,
			Prefix:  cfg.Cache.Prefix,
		}, redisClient, logger.Named("cache"))
		a.cache = c
		a.closers = append(a.closers, closeCache)

		limiter, err = ratelimit.New(ratelimit.Config{
			Backend:  cfg.RateLimit.Backend,
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
			Prefix:   cfg.Cache.Prefix,
		}, redisClient)
		if err != nil {
			a.Close()
			return nil, err
		}
		if c, ok := limiter.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	llmCfg := cfg.LLMConfig()
	llmCfg.Logger = logger
	llmCfg.RateLimiter = limiter
	client, err := llm.NewClient(llmCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	healthCfg := cfg.HealthLLMConfig()
	healthCfg.Logger = logger.Named("health")
	health, err := llm.NewClient(healthCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.health = health
	a.closers = append(a.closers, health.Close)

	gen, err := generation.NewService(client, generation.Options{Logger: logger})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.generator = gen

	return a, nil
}

// connectRedis returns nil when no backend needs Redis.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.Cache.Backend != "redis" && cfg.RateLimit.Backend != "redis" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	// Fail fast if Redis is misconfigured
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Error("redis connection failed", zap.Error(err))
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
	return client, nil
}
