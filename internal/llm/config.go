package llm

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"

	defaultTimeout    = 30 * time.Second
	minTimeout        = 1 * time.Second
	maxTimeout        = 120 * time.Second
	defaultMaxRetries = 3
	maxMaxRetries     = 5
)

type Config struct {
	// required
	APIKey string

	BaseURL       string       // default: DefaultBaseURL
	DefaultModel  string       // default: DefaultModel
	DefaultParams *ModelParams // service-level parameter defaults

	Timeout    time.Duration // per-attempt timeout (default 30s, clamped to [1s, 120s])
	MaxRetries *int          // retries after the first attempt (default 3, clamped to [0, 5])

	// Optional attribution headers (HTTP-Referer, X-Title).
	Referer string
	Title   string

	Logger      *zap.Logger // nil = no-op
	RateLimiter RateLimiter // nil = no rate limiting

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client

	// Sleep waits between retries. Defaults to a timer that honors ctx;
	// tests replace it to observe backoff without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return newError(KindConfig, "", "API key is required", false, nil)
	}
	return nil
}

// WithDefaults returns a copy of Config with defaults applied and
// numeric settings clamped.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	// Normalize BaseURL: trim trailing slashes so we can safely append paths.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	switch {
	case cfg.Timeout == 0:
		cfg.Timeout = defaultTimeout
	case cfg.Timeout < minTimeout:
		cfg.Timeout = minTimeout
	case cfg.Timeout > maxTimeout:
		cfg.Timeout = maxTimeout
	}

	retries := defaultMaxRetries
	if cfg.MaxRetries != nil {
		retries = clampInt(*cfg.MaxRetries, 0, maxMaxRetries)
	}
	cfg.MaxRetries = &retries

	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	return cfg
}

// Client talks to the chat-completion gateway. It holds no per-call
// state and is safe for concurrent use.
type Client struct {
	cfg        Config
	maxRetries int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new gateway client. A blank API key fails here with
// a KindConfig error rather than on the first call.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg = cfg.WithDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	c := &Client{
		cfg:        cfg,
		maxRetries: *cfg.MaxRetries,
		httpClient: httpClient,
		logger:     logger.Named("llmclient"),
	}

	c.logger.Info("gateway client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("default_model", cfg.DefaultModel),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_retries", c.maxRetries),
	)

	return c, nil
}

// DefaultModel returns the model used when a request does not name one.
func (c *Client) DefaultModel() string { return c.cfg.DefaultModel }

// defaultTransport creates a production-ready HTTP transport
// with connection pooling and reasonable timeouts.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
