package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/izukowska/10xcards/internal/metrics"
)

const (
	maxResponseSize = 4 * 1024 * 1024 // 4MB upstream body
	maxLoggedBody   = 200
)

// Send validates req, sends it with retries and returns the normalized
// response. Every returned error is an *Error.
func (c *Client) Send(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	if req == nil {
		return nil, newError(KindValidation, "", "request is nil", false, nil)
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = generateRequestID(start)
	}

	model := req.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	c.logger.Info("sending chat request",
		zap.String("request_id", requestID),
		zap.String("model", model),
		zap.Int("message_count", len(req.Messages)),
	)

	resp, err := c.send(ctx, req, requestID, model)
	if err != nil {
		gerr := asGatewayError(err, requestID)
		metrics.RequestErrorsTotal.WithLabelValues(string(gerr.Kind)).Inc()
		c.logger.Error("chat request failed",
			zap.String("request_id", requestID),
			zap.String("error_kind", string(gerr.Kind)),
			zap.Int("status", gerr.StatusCode),
			zap.Bool("retryable", gerr.Retryable),
			zap.String("error", truncate(gerr.Message, maxLoggedBody)),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, gerr
	}

	metrics.TokensTotal.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.TokensTotal.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

	c.logger.Info("chat request successful",
		zap.String("request_id", requestID),
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return resp, nil
}

func (c *Client) send(ctx context.Context, req *ChatRequest, requestID, model string) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, newError(KindValidation, requestID, err.Error(), false, nil)
	}

	body, err := json.Marshal(c.buildPayload(req, model))
	if err != nil {
		return nil, newError(KindValidation, requestID, "marshal request: "+err.Error(), false, err)
	}

	if err := c.checkRateLimit(ctx, req.UserID, requestID); err != nil {
		return nil, err
	}

	pResp, err := c.doWithRetry(ctx, requestID, func(ctx context.Context) (*providerChatResponse, error) {
		return c.executeRequest(ctx, body, requestID)
	})
	if err != nil {
		return nil, err
	}

	return parseProviderResponse(pResp, requestID)
}

// buildPayload merges parameters and attaches the response format hint.
func (c *Client) buildPayload(req *ChatRequest, model string) providerChatRequest {
	params := mergeParams(req.Params, c.cfg.DefaultParams)

	messages := make([]ChatMessage, len(req.Messages))
	copy(messages, req.Messages)

	return providerChatRequest{
		Model:            model,
		Messages:         messages,
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
		MaxTokens:        params.MaxTokens,
		ResponseFormat:   req.ResponseFormat,
	}
}

// checkRateLimit consults the optional limiter. Limiter failures fail open.
func (c *Client) checkRateLimit(ctx context.Context, userID, requestID string) error {
	if c.cfg.RateLimiter == nil || userID == "" {
		return nil
	}

	allowing, oneStep := c.cfg.RateLimiter.(AllowingRateLimiter)

	var (
		allowed bool
		err     error
	)
	if oneStep {
		allowed, err = allowing.Allow(ctx, userID)
	} else {
		allowed, err = c.cfg.RateLimiter.CheckLimit(ctx, userID)
	}
	if err != nil {
		c.logger.Warn("rate limiter check failed, allowing request",
			zap.String("request_id", requestID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	if !allowed {
		metrics.RateLimitedTotal.Inc()
		return newError(KindRateLimit, requestID,
			fmt.Sprintf("rate limit exceeded for user %s", userID), false, nil)
	}
	if oneStep {
		return nil
	}

	if err := c.cfg.RateLimiter.RecordRequest(ctx, userID); err != nil {
		c.logger.Warn("rate limiter record failed",
			zap.String("request_id", requestID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	return nil
}

// executeRequest performs a single attempt bounded by the configured timeout.
func (c *Client) executeRequest(ctx context.Context, body []byte, requestID string) (*providerChatResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := c.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindConfig, requestID, "build HTTP request: "+err.Error(), false, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		httpReq.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, attemptCtx, err, requestID)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(ctx, attemptCtx, err, requestID)
	}

	// Handle non-2xx responses
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("llm upstream error",
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(respBody), maxLoggedBody)),
		)
		return nil, statusError(resp.StatusCode, string(respBody), requestID)
	}

	var pResp providerChatResponse
	if err := json.Unmarshal(respBody, &pResp); err != nil {
		return nil, newError(KindParse, requestID, "decode upstream response: "+err.Error(), false, err)
	}

	return &pResp, nil
}

// transportError classifies a failed round trip. A caller cancellation is
// final; an expired attempt is a retryable timeout; anything else is a
// retryable network error.
func transportError(parent, attempt context.Context, err error, requestID string) *Error {
	if parent.Err() != nil {
		return contextError(parent.Err(), requestID)
	}

	var netErr net.Error
	if errors.Is(attempt.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(KindTimeout, requestID, "request timeout", true, err)
	}

	return newError(KindNetwork, requestID, err.Error(), true, err)
}

// parseProviderResponse fails closed: anything short of a choice with
// content is a parse error.
func parseProviderResponse(pResp *providerChatResponse, requestID string) (*ChatResponse, error) {
	if len(pResp.Choices) == 0 {
		return nil, newError(KindParse, requestID, "invalid API response: no choices", false, nil)
	}

	choice := pResp.Choices[0]
	if choice.Message == nil || choice.Message.Content == "" {
		return nil, newError(KindParse, requestID, "invalid API response: no message content", false, nil)
	}

	out := &ChatResponse{
		Content:      choice.Message.Content,
		Model:        pResp.Model,
		RequestID:    requestID,
		FinishReason: choice.FinishReason,
	}

	// Usage defaults to zero when absent
	if pResp.Usage != nil {
		out.Usage = Usage{
			PromptTokens:     pResp.Usage.PromptTokens,
			CompletionTokens: pResp.Usage.CompletionTokens,
			TotalTokens:      pResp.Usage.TotalTokens,
		}
	}

	return out, nil
}

// generateRequestID returns req_<unix-ms>_<random>. Good enough for log
// correlation; not a uniqueness guarantee.
func generateRequestID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), suffix)
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
