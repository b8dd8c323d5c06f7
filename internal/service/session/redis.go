package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spectraflex/omnichat/internal/model/chat"
)

// RedisStore persists sessions in the external cache. A session is a JSON
// record plus a capped transcript list, both sharing one idle TTL so the
// whole conversation expires together.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }
func historyKey(id string) string { return "session:" + id + ":history" }

// Create provisions a fresh anonymous session.
func (s *RedisStore) Create(ctx context.Context) (chat.Session, error) {
	now := time.Now().UTC()
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		LastSeen:  now,
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return chat.Session{}, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(session.ID), payload, s.ttl).Err(); err != nil {
		return chat.Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Get retrieves a session by identifier.
func (s *RedisStore) Get(ctx context.Context, id string) (chat.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	var session chat.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return chat.Session{}, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return session, nil
}

// Touch refreshes the idle TTL on the session record and its transcript.
func (s *RedisStore) Touch(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	session.LastSeen = time.Now().UTC()
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionKey(id), payload, s.ttl)
	pipe.Expire(ctx, historyKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// AppendMessage adds a turn to the session transcript.
func (s *RedisStore) AppendMessage(ctx context.Context, message chat.Message) error {
	if message.SessionID == "" {
		return ErrSessionNotFound
	}

	exists, err := s.client.Exists(ctx, sessionKey(message.SessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if exists == 0 {
		return ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := historyKey(message.SessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-historyCap), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// History returns the stored transcript, oldest first.
func (s *RedisStore) History(ctx context.Context, id string) ([]chat.Message, error) {
	exists, err := s.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if exists == 0 {
		return nil, ErrSessionNotFound
	}

	raw, err := s.client.LRange(ctx, historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]chat.Message, 0, len(raw))
	for _, item := range raw {
		var message chat.Message
		if err := json.Unmarshal([]byte(item), &message); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}
