package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role" validate:"oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ModelParams holds optional sampling knobs. A nil field falls back to the
// service default, then to the built-in baseline.
type ModelParams struct {
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature" validate:"omitnil,gte=0,lte=2"`
	TopP             *float64 `json:"top_p,omitempty" yaml:"top_p" validate:"omitnil,gte=0,lte=1"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty" validate:"omitnil,gte=-2,lte=2"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty" validate:"omitnil,gte=-2,lte=2"`
	MaxTokens        *int     `json:"max_tokens,omitempty" yaml:"max_tokens" validate:"omitnil,gt=0"`
}

// JSONSchema is the top-level object schema a response must follow.
// Properties are kept raw so nested schemas reach the API untouched.
type JSONSchema struct {
	Type                 string                     `json:"type"`
	Properties           map[string]json.RawMessage `json:"properties,omitempty"`
	Required             []string                   `json:"required,omitempty"`
	AdditionalProperties *bool                      `json:"additionalProperties,omitempty"`
}

type JSONSchemaSpec struct {
	Name   string     `json:"name"`
	Strict bool       `json:"strict"`
	Schema JSONSchema `json:"schema"`
}

// ResponseFormat asks the model for structured output.
type ResponseFormat struct {
	Type       string         `json:"type"` // always "json_schema"
	JSONSchema JSONSchemaSpec `json:"json_schema"`
}

// NewResponseFormat returns a json_schema response format.
func NewResponseFormat(name string, strict bool, schema JSONSchema) *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: JSONSchemaSpec{
			Name:   name,
			Strict: strict,
			Schema: schema,
		},
	}
}

type ChatRequest struct {
	Messages       []ChatMessage
	Model          string // empty = Config.DefaultModel
	Params         *ModelParams
	ResponseFormat *ResponseFormat

	// RequestID correlates log lines; generated when empty.
	RequestID string
	// UserID is used only for rate limit bookkeeping.
	UserID string
}

// Validate checks the message list. Whitespace-only content is the
// caller's concern; only empty content is rejected.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages cannot be empty")
	}

	for i, m := range r.Messages {
		if m.Role != RoleSystem && m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("invalid role %q in messages[%d]", m.Role, i)
		}
		if m.Content == "" {
			return fmt.Errorf("content is required for messages[%d]", i)
		}
	}

	return nil
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the normalized result of a successful Send.
type ChatResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	RequestID    string `json:"requestId"`
	FinishReason string `json:"finishReason,omitempty"`
}

type ValidationResult struct {
	Valid bool
	Error string
	// Data is the decoded JSON value, or the raw text when no format was given.
	Data any
}

type HealthStatus struct {
	Healthy   bool   `json:"healthy"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// RateLimiter is consulted before a request leaves the process.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	CheckLimit(ctx context.Context, userID string) (bool, error)
	RecordRequest(ctx context.Context, userID string) error
}

// AllowingRateLimiter checks and records in one step. Send prefers it over
// the CheckLimit/RecordRequest pair, which can overshoot under concurrency.
type AllowingRateLimiter interface {
	RateLimiter
	Allow(ctx context.Context, userID string) (bool, error)
}
