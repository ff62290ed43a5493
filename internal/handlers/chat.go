package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/izukowska/10xcards/internal/cache"
	"github.com/izukowska/10xcards/internal/llm"
	"github.com/izukowska/10xcards/pkg/logging"
)

// UserHeader carries the caller's user id, set by the upstream auth proxy.
const UserHeader = "X-User-ID"

// ChatClient is the part of *llm.Client the chat endpoint uses.
type ChatClient interface {
	Send(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	DefaultModel() string
}

// HealthChecker is satisfied by *llm.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) llm.HealthStatus
}

// ChatHandler holds dependencies for the /api/chat endpoint.
type ChatHandler struct {
	Client    ChatClient
	Health    HealthChecker
	Cache     cache.Cache
	CacheTTL  time.Duration
	VersionID string

	validate *validator.Validate
}

func NewChatHandler(client ChatClient, health HealthChecker, c cache.Cache, ttl time.Duration, versionID string) *ChatHandler {
	if c == nil {
		c = cache.Noop{}
	}
	if versionID == "" {
		versionID = "v1"
	}
	return &ChatHandler{
		Client:    client,
		Health:    health,
		Cache:     c,
		CacheTTL:  ttl,
		VersionID: versionID,
		validate:  newValidator(),
	}
}

type chatRequestBody struct {
	Messages       []llm.ChatMessage   `json:"messages" validate:"required,min=1,max=50,dive"`
	Model          string              `json:"model"`
	Params         *llm.ModelParams    `json:"params"`
	ResponseFormat *llm.ResponseFormat `json:"responseFormat"`
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var body chatRequestBody
	if err := decodeJSON(r, &body); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		if bodyTooLarge(err) {
			writeTooLarge(w)
			return
		}
		writeError(w, http.StatusBadRequest, errorBody{
			Error:   "Bad Request",
			Message: "Request body must be valid JSON",
		})
		return
	}

	if err := h.validate.Struct(&body); err != nil {
		issues := issuesFrom(err)
		logger.Warn("request validation failed", zap.Any("issues", issues))
		writeError(w, http.StatusBadRequest, errorBody{
			Error:   "Validation Error",
			Message: "Invalid request format",
			Details: issues,
		})
		return
	}

	userID := r.Header.Get(UserHeader)
	req := &llm.ChatRequest{
		Messages:       body.Messages,
		Model:          body.Model,
		Params:         body.Params,
		ResponseFormat: body.ResponseFormat,
		UserID:         userID,
	}

	model := body.Model
	if model == "" {
		model = h.Client.DefaultModel()
	}
	cacheUser := userID
	if cacheUser == "" {
		cacheUser = "anon"
	}

	// ---- exact cache lookup ----
	cacheKey := ""
	if key, err := cache.BuildKey(req, model, cacheUser, h.VersionID); err != nil {
		logger.Warn("key_builder_error", zap.Error(err))
	} else {
		cacheKey = key.String()
		if resp, ok := h.lookup(ctx, logger, cacheKey); ok {
			logger.Info("cache_decision",
				zap.Bool("cache_hit", true),
				zap.String("hash_key", key.Hash),
				zap.Duration("total_latency", time.Since(start)),
			)
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	logger.Info("processing chat request",
		zap.Int("message_count", len(body.Messages)),
		zap.Bool("has_response_format", body.ResponseFormat != nil),
	)

	resp, err := h.Client.Send(ctx, req)
	if err != nil {
		logger.Error("chat request failed",
			zap.String("kind", string(llm.KindOf(err))),
			zap.Error(err),
		)
		writeGatewayError(w, err)
		return
	}

	if body.ResponseFormat != nil {
		if v := llm.ValidateResponse(resp.Content, body.ResponseFormat); !v.Valid {
			logger.Error("response validation failed",
				zap.String("request_id", resp.RequestID),
				zap.String("error", v.Error),
			)
			writeError(w, http.StatusInternalServerError, errorBody{
				Error:     "Response Validation Error",
				Message:   "AI response does not match expected format",
				Details:   v.Error,
				RequestID: resp.RequestID,
			})
			return
		}
	}

	if cacheKey != "" {
		if raw, err := json.Marshal(resp); err != nil {
			logger.Warn("marshal_response_error", zap.Error(err))
		} else if err := h.Cache.Set(ctx, cacheKey, raw, h.CacheTTL); err != nil {
			logger.Warn("chat_cache_set_error", zap.Error(err))
		}
	}

	logger.Info("chat request successful",
		zap.String("request_id", resp.RequestID),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Bool("cache_hit", false),
		zap.Duration("total_latency", time.Since(start)),
	)

	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, resp)
}

// lookup is best-effort: errors and corrupt entries count as misses.
func (h *ChatHandler) lookup(ctx context.Context, logger *zap.Logger, key string) (*llm.ChatResponse, bool) {
	raw, hit, err := h.Cache.Get(ctx, key)
	if err != nil {
		logger.Warn("chat_cache_get_error", zap.Error(err))
		return nil, false
	}
	if !hit {
		return nil, false
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logger.Warn("chat_cache_unmarshal_error", zap.Error(err))
		return nil, false
	}
	return &resp, true
}

// HealthCheck handles GET /api/chat.
func (h *ChatHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.Health.HealthCheck(r.Context())

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
		logging.L(r.Context()).Warn("gateway unhealthy",
			zap.String("message", status.Message),
			zap.Int64("latency_ms", status.LatencyMs),
		)
	}

	writeJSON(w, code, status)
}
