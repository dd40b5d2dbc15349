package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// CacheStore implements Store in process memory with per-session expiry.
// States are stored serialized so callers never share a live object.
type CacheStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewCacheStore(ttl time.Duration) *CacheStore {
	return &CacheStore{
		cache: cache.New(ttl, 10*time.Minute),
		ttl:   ttl,
	}
}

func (c *CacheStore) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	raw, found := c.cache.Get(sessionID)
	if !found {
		return NewConversationState(sessionID), nil
	}

	data, ok := raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected cache entry type %T for session %s", raw, sessionID)
	}

	state := &ConversationState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse session data: %w", err)
	}
	return state, nil
}

func (c *CacheStore) Save(ctx context.Context, state *ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	c.cache.Set(state.SessionID(), data, c.ttl)
	return nil
}

func (c *CacheStore) Clear(ctx context.Context, sessionID string) error {
	c.cache.Delete(sessionID)
	return nil
}

func (c *CacheStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	_, found := c.cache.Get(sessionID)
	return found, nil
}

// Count returns the number of live sessions.
func (c *CacheStore) Count() int {
	return c.cache.ItemCount()
}
