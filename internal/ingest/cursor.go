package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCursorStore keeps the sync cursor in the shared cache.
type RedisCursorStore struct {
	client        *redis.Client
	webhookDriven bool
}

// NewRedisCursorStore wraps an existing client. webhookDriven means the
// webhook handler maintains the dirty flag, so a clean catalog can skip
// the sync entirely.
func NewRedisCursorStore(client *redis.Client, webhookDriven bool) *RedisCursorStore {
	return &RedisCursorStore{client: client, webhookDriven: webhookDriven}
}

// GetCursor returns the stored cursor, or "" on first run.
func (s *RedisCursorStore) GetCursor(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, CursorKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cursor: %w", err)
	}
	return val, nil
}

// Dirty checks the flag the webhook handler sets on product changes.
// Without a webhook feed every run counts as dirty.
func (s *RedisCursorStore) Dirty(ctx context.Context) (bool, error) {
	if !s.webhookDriven {
		return true, nil
	}
	n, err := s.client.Exists(ctx, DirtyKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read dirty flag: %w", err)
	}
	return n > 0, nil
}

// SetCursor advances the cursor and clears the webhook dirty flag.
func (s *RedisCursorStore) SetCursor(ctx context.Context, value string) error {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, CursorKey, value, 0)
	pipe.Del(ctx, DirtyKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write cursor: %w", err)
	}
	return nil
}
