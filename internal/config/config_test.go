package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithEnvKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.OpenRouter.APIKey != "env-key" {
		t.Fatalf("expected API key from env, got %q", cfg.OpenRouter.APIKey)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.OpenRouter.Timeout != DefaultOpenRouterTimeout {
		t.Fatalf("expected default timeout, got %s", cfg.OpenRouter.Timeout)
	}
	if cfg.OpenRouter.MaxRetries == nil || *cfg.OpenRouter.MaxRetries != DefaultOpenRouterMaxRetries {
		t.Fatalf("expected default retries, got %v", cfg.OpenRouter.MaxRetries)
	}
	if cfg.Cache.Backend != "memory" || cfg.RateLimit.Backend != "none" {
		t.Fatalf("unexpected backends: cache=%s ratelimit=%s", cfg.Cache.Backend, cfg.RateLimit.Backend)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "APIKey") {
		t.Fatalf("expected APIKey validation error, got %v", err)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
port: "9090"
log_level: debug
openrouter:
  api_key: file-key
  base_url: https://proxy.example.test/api/v1
  timeout: 45s
  max_retries: 0
  default_params:
    temperature: 0.3
    max_tokens: 2000
cache:
  backend: redis
  ttl: 10m
rate_limit:
  backend: memory
  requests: 5
  window: 30s
`)

	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("OPENROUTER_DEFAULT_MODEL", "anthropic/claude-3.5-sonnet")
	t.Setenv("CACHE_TTL", "1m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9090" || cfg.LogLevel != "debug" {
		t.Fatalf("file values not applied: port=%s level=%s", cfg.Port, cfg.LogLevel)
	}
	if cfg.OpenRouter.APIKey != "env-key" {
		t.Fatalf("env should override file API key, got %q", cfg.OpenRouter.APIKey)
	}
	if cfg.OpenRouter.DefaultModel != "anthropic/claude-3.5-sonnet" {
		t.Fatalf("env model not applied: %q", cfg.OpenRouter.DefaultModel)
	}
	if cfg.OpenRouter.Timeout != 45*time.Second {
		t.Fatalf("file timeout not applied: %s", cfg.OpenRouter.Timeout)
	}
	if cfg.OpenRouter.MaxRetries == nil || *cfg.OpenRouter.MaxRetries != 0 {
		t.Fatalf("explicit zero retries lost: %v", cfg.OpenRouter.MaxRetries)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.TTL != time.Minute {
		t.Fatalf("cache config wrong: %+v", cfg.Cache)
	}
	if cfg.RateLimit.Requests != 5 || cfg.RateLimit.Window != 30*time.Second {
		t.Fatalf("rate limit config wrong: %+v", cfg.RateLimit)
	}

	p := cfg.OpenRouter.DefaultParams
	if p == nil || p.Temperature == nil || *p.Temperature != 0.3 || p.MaxTokens == nil || *p.MaxTokens != 2000 {
		t.Fatalf("default params not parsed: %+v", p)
	}
	if p.TopP != nil {
		t.Fatalf("unset params must stay nil, got %v", *p.TopP)
	}

	llmCfg := cfg.LLMConfig()
	if llmCfg.APIKey != "env-key" || llmCfg.Timeout != 45*time.Second || llmCfg.DefaultParams != p {
		t.Fatalf("LLMConfig mapping wrong: %+v", llmCfg)
	}

	health := cfg.HealthLLMConfig()
	if health.Timeout != DefaultHealthTimeout || *health.MaxRetries != DefaultHealthMaxRetries {
		t.Fatalf("health config wrong: timeout=%s retries=%d", health.Timeout, *health.MaxRetries)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "k")
	t.Setenv("CACHE_BACKEND", "memcached")
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := Load("")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, part := range []string{"Cache.Backend", "LogLevel"} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("expected %s in error, got %v", part, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}
