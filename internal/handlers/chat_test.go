package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/izukowska/10xcards/internal/cache"
	"github.com/izukowska/10xcards/internal/llm"
)

type mockLLMClient struct {
	resp        *llm.ChatResponse
	err         error
	calls       int
	lastRequest *llm.ChatRequest
	health      llm.HealthStatus
}

func (m *mockLLMClient) Send(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.calls++
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func (m *mockLLMClient) DefaultModel() string { return "openai/gpt-4o-mini" }

func (m *mockLLMClient) HealthCheck(context.Context) llm.HealthStatus { return m.health }

func newChatHandler(t *testing.T, client *mockLLMClient) (*ChatHandler, *cache.MemoryCache) {
	t.Helper()
	store := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { store.Close() })
	return NewChatHandler(client, client, store, time.Minute, "vtest"), store
}

func postChat(t *testing.T, h *ChatHandler, body string, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	rr := httptest.NewRecorder()
	h.Chat(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestChatHandlerSuccessAndCache(t *testing.T) {
	fakeLLM := &mockLLMClient{
		resp: &llm.ChatResponse{
			Content:   "hello!",
			Model:     "openai/gpt-4o-mini",
			Usage:     llm.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
			RequestID: "req_1",
		},
	}
	h, store := newChatHandler(t, fakeLLM)

	body := `{"messages":[{"role":"user","content":"hi"}],"params":{"temperature":0.2}}`

	rr := postChat(t, h, body, "user-42")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first call should miss the cache")
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Content != "hello!" || resp.RequestID != "req_1" || resp.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(rr.Body.String(), `"requestId":"req_1"`) {
		t.Fatalf("expected camelCase requestId: %s", rr.Body.String())
	}

	got := fakeLLM.lastRequest
	if got.UserID != "user-42" || got.Params == nil || *got.Params.Temperature != 0.2 {
		t.Fatalf("request not forwarded: %+v", got)
	}
	if store.Len() != 1 {
		t.Fatalf("expected response to be cached")
	}

	rr = postChat(t, h, body, "user-42")
	if rr.Code != http.StatusOK || rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second call should hit the cache: %d %s", rr.Code, rr.Header().Get("X-Cache"))
	}
	if fakeLLM.calls != 1 {
		t.Fatalf("cache hit must not call upstream, got %d calls", fakeLLM.calls)
	}

	// cache is scoped per user
	rr = postChat(t, h, body, "someone-else")
	if rr.Header().Get("X-Cache") != "MISS" || fakeLLM.calls != 2 {
		t.Fatalf("other users must not share cache entries")
	}
}

func TestChatHandlerValidation(t *testing.T) {
	many := make([]string, 51)
	for i := range many {
		many[i] = `{"role":"user","content":"x"}`
	}

	tests := []struct {
		name     string
		body     string
		wantPath string
	}{
		{name: "invalid json", body: `{"messages":`},
		{name: "no messages", body: `{"messages":[]}`, wantPath: "messages"},
		{name: "missing messages", body: `{}`, wantPath: "messages"},
		{name: "too many messages", body: `{"messages":[` + strings.Join(many, ",") + `]}`, wantPath: "messages"},
		{name: "bad role", body: `{"messages":[{"role":"tool","content":"x"}]}`, wantPath: "messages[0].role"},
		{name: "empty content", body: `{"messages":[{"role":"user","content":""}]}`, wantPath: "messages[0].content"},
		{name: "temperature range", body: `{"messages":[{"role":"user","content":"x"}],"params":{"temperature":2.5}}`, wantPath: "params.temperature"},
		{name: "max tokens zero", body: `{"messages":[{"role":"user","content":"x"}],"params":{"max_tokens":0}}`, wantPath: "params.max_tokens"},
		{name: "format type", body: `{"messages":[{"role":"user","content":"x"}],"responseFormat":{"type":"text","json_schema":{"name":"n","strict":true,"schema":{"type":"object","properties":{}}}}}`, wantPath: "responseFormat.type"},
		{name: "format schema", body: `{"messages":[{"role":"user","content":"x"}],"responseFormat":{"type":"json_schema","json_schema":{"name":"n","strict":true,"schema":{"type":"array"}}}}`, wantPath: "responseFormat.json_schema.schema.type"},
	}

	for _, tt := range tests {
		fakeLLM := &mockLLMClient{}
		h, _ := newChatHandler(t, fakeLLM)

		rr := postChat(t, h, tt.body, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tt.name, rr.Code)
		}
		if fakeLLM.calls != 0 {
			t.Fatalf("%s: upstream must not be called", tt.name)
		}
		if tt.wantPath == "" {
			continue
		}
		if !strings.Contains(rr.Body.String(), `"path":"`+tt.wantPath+`"`) {
			t.Fatalf("%s: expected issue for %s, got %s", tt.name, tt.wantPath, rr.Body.String())
		}
	}
}

func TestChatHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		kind llm.Kind
		want int
	}{
		{llm.KindConfig, http.StatusInternalServerError},
		{llm.KindAuth, http.StatusUnauthorized},
		{llm.KindRateLimit, http.StatusTooManyRequests},
		{llm.KindServer, http.StatusServiceUnavailable},
		{llm.KindNetwork, http.StatusServiceUnavailable},
		{llm.KindValidation, http.StatusBadRequest},
		{llm.KindParse, http.StatusInternalServerError},
		{llm.KindTimeout, http.StatusGatewayTimeout},
		{llm.KindUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		fakeLLM := &mockLLMClient{err: &llm.Error{Kind: tt.kind, Message: "boom", RequestID: "req_9"}}
		h, store := newChatHandler(t, fakeLLM)

		rr := postChat(t, h, `{"messages":[{"role":"user","content":"hi"}]}`, "u1")
		if rr.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.kind, tt.want, rr.Code)
		}
		body := decodeError(t, rr)
		if body.Error != string(tt.kind) || body.RequestID != "req_9" || body.Message != "boom" {
			t.Fatalf("%s: unexpected body %+v", tt.kind, body)
		}
		if store.Len() != 0 {
			t.Fatalf("%s: errors must not be cached", tt.kind)
		}
	}
}

func TestChatHandlerResponseValidation(t *testing.T) {
	fakeLLM := &mockLLMClient{resp: &llm.ChatResponse{Content: `{"front":"a"}`, RequestID: "req_2"}}
	h, store := newChatHandler(t, fakeLLM)

	body := `{"messages":[{"role":"user","content":"x"}],"responseFormat":{"type":"json_schema","json_schema":{"name":"card","strict":true,"schema":{"type":"object","properties":{"front":{"type":"string"},"back":{"type":"string"}},"required":["front","back"],"additionalProperties":false}}}}`

	rr := postChat(t, h, body, "u1")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	eb := decodeError(t, rr)
	if eb.Error != "Response Validation Error" || eb.Details != "Missing required property: back" {
		t.Fatalf("unexpected body: %+v", eb)
	}
	if store.Len() != 0 {
		t.Fatalf("invalid responses must not be cached")
	}
	if fakeLLM.lastRequest.ResponseFormat == nil || fakeLLM.lastRequest.ResponseFormat.JSONSchema.Name != "card" {
		t.Fatalf("response format not forwarded")
	}
}

func TestChatHandlerHealthCheck(t *testing.T) {
	for _, tt := range []struct {
		status llm.HealthStatus
		want   int
	}{
		{llm.HealthStatus{Healthy: true, LatencyMs: 12}, http.StatusOK},
		{llm.HealthStatus{Healthy: false, Message: "llmclient: auth (status 401): nope"}, http.StatusServiceUnavailable},
	} {
		h, _ := newChatHandler(t, &mockLLMClient{health: tt.status})

		rr := httptest.NewRecorder()
		h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

		if rr.Code != tt.want {
			t.Fatalf("expected %d, got %d", tt.want, rr.Code)
		}
		var got llm.HealthStatus
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != tt.status {
			t.Fatalf("expected %+v, got %+v", tt.status, got)
		}
	}
}
