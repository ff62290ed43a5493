// Package config loads service configuration from an optional YAML file
// overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/izukowska/10xcards/internal/llm"
)

// Default values for configuration fields.
const (
	DefaultPort      = "8080"
	DefaultVersionID = "v1"
	DefaultRedisAddr = "127.0.0.1:6379"

	DefaultRequestTimeout = 3 * time.Minute
	DefaultMaxBodyBytes   = 512 * 1024

	DefaultOpenRouterTimeout    = 60 * time.Second
	DefaultOpenRouterMaxRetries = 3
	DefaultHealthTimeout        = 10 * time.Second
	DefaultHealthMaxRetries     = 1
	DefaultReferer              = "https://10xcards.app"
	DefaultTitle                = "10xCards"

	DefaultCacheBackend = "memory"
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCachePrefix  = "10xcards"

	DefaultRateLimitBackend  = "none"
	DefaultRateLimitRequests = 20
	DefaultRateLimitWindow   = time.Minute
)

type Config struct {
	Port      string `yaml:"port" env:"PORT" validate:"required,numeric"`
	Env       string `yaml:"env" env:"ENV"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	VersionID string `yaml:"version_id" env:"GATEWAY_VERSION" validate:"required"`
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR" validate:"required"`

	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" validate:"gt=0"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES" validate:"gt=0"`

	OpenRouter OpenRouterConfig `yaml:"openrouter" envPrefix:"OPENROUTER_"`
	Cache      CacheConfig      `yaml:"cache" envPrefix:"CACHE_"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

type OpenRouterConfig struct {
	APIKey       string        `yaml:"api_key" env:"API_KEY" validate:"required"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	DefaultModel string        `yaml:"default_model" env:"DEFAULT_MODEL"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Out-of-range retry counts are clamped by the client, not rejected.
	MaxRetries *int   `yaml:"max_retries" env:"MAX_RETRIES"`
	Referer    string `yaml:"referer" env:"REFERER"`
	Title      string `yaml:"title" env:"TITLE"`

	HealthTimeout    time.Duration `yaml:"health_timeout" env:"HEALTH_TIMEOUT"`
	HealthMaxRetries *int          `yaml:"health_max_retries" env:"HEALTH_MAX_RETRIES"`

	DefaultParams *llm.ModelParams `yaml:"default_params"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend" env:"BACKEND" validate:"oneof=memory redis none"`
	TTL     time.Duration `yaml:"ttl" env:"TTL" validate:"gte=0"`
	Prefix  string        `yaml:"prefix" env:"PREFIX"`
}

type RateLimitConfig struct {
	Backend  string        `yaml:"backend" env:"BACKEND" validate:"oneof=none memory redis"`
	Requests int           `yaml:"requests" env:"REQUESTS" validate:"gte=1"`
	Window   time.Duration `yaml:"window" env:"WINDOW" validate:"gte=1000000000"` // >= 1s
}

// Defaults returns a Config with every default applied.
func Defaults() Config {
	return Config{
		Port:      DefaultPort,
		VersionID: DefaultVersionID,
		RedisAddr: DefaultRedisAddr,

		RequestTimeout: DefaultRequestTimeout,
		MaxBodyBytes:   DefaultMaxBodyBytes,

		OpenRouter: OpenRouterConfig{
			BaseURL:          llm.DefaultBaseURL,
			DefaultModel:     llm.DefaultModel,
			Timeout:          DefaultOpenRouterTimeout,
			MaxRetries:       llm.Int(DefaultOpenRouterMaxRetries),
			Referer:          DefaultReferer,
			Title:            DefaultTitle,
			HealthTimeout:    DefaultHealthTimeout,
			HealthMaxRetries: llm.Int(DefaultHealthMaxRetries),
		},
		Cache: CacheConfig{
			Backend: DefaultCacheBackend,
			TTL:     DefaultCacheTTL,
			Prefix:  DefaultCachePrefix,
		},
		RateLimit: RateLimitConfig{
			Backend:  DefaultRateLimitBackend,
			Requests: DefaultRateLimitRequests,
			Window:   DefaultRateLimitWindow,
		},
	}
}

// Load builds the configuration in three layers: defaults, the YAML file
// at path (skipped when path is empty), then environment variables.
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg and reports every failing field at once.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: validation: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: validation failed: %s", strings.Join(msgs, "; "))
}

// LLMConfig maps the OpenRouter block onto the gateway client config.
// Logger and RateLimiter are wired by the caller.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		APIKey:        c.OpenRouter.APIKey,
		BaseURL:       c.OpenRouter.BaseURL,
		DefaultModel:  c.OpenRouter.DefaultModel,
		DefaultParams: c.OpenRouter.DefaultParams,
		Timeout:       c.OpenRouter.Timeout,
		MaxRetries:    c.OpenRouter.MaxRetries,
		Referer:       c.OpenRouter.Referer,
		Title:         c.OpenRouter.Title,
	}
}

// HealthLLMConfig is LLMConfig with the shorter health-check budget.
func (c *Config) HealthLLMConfig() llm.Config {
	cfg := c.LLMConfig()
	cfg.Timeout = c.OpenRouter.HealthTimeout
	cfg.MaxRetries = c.OpenRouter.HealthMaxRetries
	return cfg
}
