package cache

import (
	"context"
	"fmt"
	"time"
)

// Key identifies a cached chat completion. Hash is the sha256 of the
// normalized request (messages, model, params, response format).
type Key struct {
	UserID    string
	Model     string
	VersionID string
	Hash      string
}

// String converts the structured key into the final string used in Redis/map.
func (k Key) String() string {
	// chat:<USER_ID>:<MODEL>:<VERSION_ID>:<HASH_HEX>
	return fmt.Sprintf("chat:%s:%s:%s:%s", k.UserID, k.Model, k.VersionID, k.Hash)
}

// Cache is the interface used by the chat handler.
// Implemented by memory cache (dev) and Redis cache (prod).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Noop never stores anything. Used for the "none" backend.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error)         { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
