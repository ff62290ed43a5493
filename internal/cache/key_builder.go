package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/izukowska/10xcards/internal/llm"
)

// normalizedRequest is the subset of a chat request that determines the
// completion. RequestID and UserID are deliberately absent.
type normalizedRequest struct {
	Model          string              `json:"model"`
	Messages       []llm.ChatMessage   `json:"messages"`
	Params         *llm.ModelParams    `json:"params,omitempty"`
	ResponseFormat *llm.ResponseFormat `json:"response_format,omitempty"`
}

// BuildKey builds a Key from:
//   - the chat request,
//   - userID (cache scoping),
//   - versionID (gateway version for invalidation).
//
// model must be the resolved model name so that an empty request model and
// the explicit default share entries.
func BuildKey(req *llm.ChatRequest, model, userID, versionID string) (Key, error) {
	model = strings.TrimSpace(model)

	body, err := json.Marshal(normalizedRequest{
		Model:          model,
		Messages:       req.Messages,
		Params:         req.Params,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		return Key{}, err
	}

	sum := sha256.Sum256(body)

	return Key{
		UserID:    strings.TrimSpace(userID),
		Model:     model,
		VersionID: strings.TrimSpace(versionID),
		Hash:      hex.EncodeToString(sum[:]),
	}, nil
}
